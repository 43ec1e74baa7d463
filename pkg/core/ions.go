package core

import (
	"strconv"
	"strings"
)

// IonType is a fragment ion series. The order follows the OMSSA ion type
// enumeration so codes from OMX files convert directly.
type IonType int

const (
	IonA IonType = iota
	IonB
	IonC
	IonX
	IonY
	IonZ
	IonPrecursor
	IonInternal
	IonImmonium
	IonUnknown
)

var ionTypeNames = [...]string{"a", "b", "c", "x", "y", "z", "Prec", "int", "i", "?"}

func (t IonType) String() string {
	if t < IonA || t > IonUnknown {
		return ionTypeNames[IonUnknown]
	}
	return ionTypeNames[t]
}

// IonTypeFromCode converts an OMSSA ion type code. Codes outside the known
// series map to IonUnknown.
func IonTypeFromCode(code int) IonType {
	if code < int(IonA) || code > int(IonUnknown) {
		return IonUnknown
	}
	return IonType(code)
}

// ParseIonType converts a series name such as "b" or "y" to an IonType.
func ParseIonType(name string) (IonType, bool) {
	for i, n := range ionTypeNames {
		if strings.EqualFold(n, name) {
			return IonType(i), true
		}
	}
	return IonUnknown, false
}

// NeutralLoss is the neutral molecule lost by a fragment ion.
type NeutralLoss int

const (
	LossNone NeutralLoss = iota
	LossWater
	LossAmmonia
)

// Suffix returns the label suffix of the loss.
func (l NeutralLoss) Suffix() string {
	switch l {
	case LossWater:
		return " -H2O"
	case LossAmmonia:
		return " -NH3"
	}
	return ""
}

// TheoreticalIon is a fragment ion as predicted by a search engine or a
// fragment ladder.
type TheoreticalIon struct {
	Type   IonType
	Number int
	Charge int
	Loss   NeutralLoss
	MZ     float64 // in the unit of the peak list it is matched against
	Parent string  // parent residue of an immonium ion
}

// Label renders the ion the way it is stored in fragment ion records, for
// example "b3", "y5++" or "y5 -H2O". Immonium ions render as "i" followed by
// their parent residue.
func (ion TheoreticalIon) Label() string {
	if ion.Type == IonImmonium {
		return "i" + ion.Parent
	}

	var b strings.Builder
	b.WriteString(ion.Type.String())
	if ion.Number > 0 && ion.Type != IonPrecursor {
		b.WriteString(strconv.Itoa(ion.Number))
	}
	if ion.Charge > 1 {
		b.WriteString(strings.Repeat("+", ion.Charge))
	}
	b.WriteString(ion.Loss.Suffix())
	return b.String()
}

// IonTypeOfLabel recovers the ion series from a stored label such as
// "y5++ -H2O" or "iY". A leading significance marker is ignored.
func IonTypeOfLabel(label string) IonType {
	label = strings.TrimLeft(label, "#&")
	switch {
	case label == "":
		return IonUnknown
	case strings.HasPrefix(label, "Prec"):
		return IonPrecursor
	case strings.HasPrefix(label, "int"):
		return IonInternal
	case strings.HasPrefix(label, "i"):
		return IonImmonium
	}
	if t, ok := ParseIonType(label[:1]); ok {
		return t
	}
	return IonUnknown
}
