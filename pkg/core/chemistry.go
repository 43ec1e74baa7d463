// Package core provides chemistry calculations for fragment ion ladders
package core

// Atomic masses (monoisotopic)
const (
	MassH = 1.0078250321
	MassC = 12.0000000000
	MassN = 14.0030740052
	MassO = 15.9949146221
	MassS = 31.9720706900

	// Proton mass for charge calculations
	ProtonMass = 1.00727646688

	MassH2O = 2*MassH + MassO
	MassNH3 = MassN + 3*MassH
	MassCO  = MassC + MassO
)

// AminoAcidComposition stores elemental composition
type AminoAcidComposition struct {
	C, H, N, O, S int
}

// Mass returns the monoisotopic mass of the composition
func (c AminoAcidComposition) Mass() float64 {
	return float64(c.C)*MassC +
		float64(c.H)*MassH +
		float64(c.N)*MassN +
		float64(c.O)*MassO +
		float64(c.S)*MassS
}

// AminoAcidMasses maps amino acid one-letter codes to residue composition
var AminoAcidMasses = map[rune]AminoAcidComposition{
	'A': {C: 3, H: 5, N: 1, O: 1, S: 0},
	'R': {C: 6, H: 12, N: 4, O: 1, S: 0},
	'N': {C: 4, H: 6, N: 2, O: 2, S: 0},
	'D': {C: 4, H: 5, N: 1, O: 3, S: 0},
	'C': {C: 3, H: 5, N: 1, O: 1, S: 1},
	'E': {C: 5, H: 7, N: 1, O: 3, S: 0},
	'Q': {C: 5, H: 8, N: 2, O: 2, S: 0},
	'G': {C: 2, H: 3, N: 1, O: 1, S: 0},
	'H': {C: 6, H: 7, N: 3, O: 1, S: 0},
	'I': {C: 6, H: 11, N: 1, O: 1, S: 0},
	'L': {C: 6, H: 11, N: 1, O: 1, S: 0},
	'K': {C: 6, H: 12, N: 2, O: 1, S: 0},
	'M': {C: 5, H: 9, N: 1, O: 1, S: 1},
	'F': {C: 9, H: 9, N: 1, O: 1, S: 0},
	'P': {C: 5, H: 7, N: 1, O: 1, S: 0},
	'S': {C: 3, H: 5, N: 1, O: 2, S: 0},
	'T': {C: 4, H: 7, N: 1, O: 2, S: 0},
	'W': {C: 11, H: 10, N: 2, O: 1, S: 0},
	'Y': {C: 9, H: 9, N: 1, O: 2, S: 0},
	'V': {C: 5, H: 9, N: 1, O: 1, S: 0},
}

// ResidueMass returns the monoisotopic residue mass of an amino acid
func ResidueMass(aa rune) (float64, bool) {
	comp, ok := AminoAcidMasses[aa]
	if !ok {
		return 0, false
	}
	return comp.Mass(), true
}

// CalculateNeutralMass computes the neutral monoisotopic mass of a peptide
// with per-residue modification deltas (deltas may be nil).
func CalculateNeutralMass(sequence string, deltas []float64) float64 {
	mass := MassH2O
	for i, aa := range []byte(sequence) {
		if m, ok := ResidueMass(rune(aa)); ok {
			mass += m
		}
		if i < len(deltas) {
			mass += deltas[i]
		}
	}
	return mass
}

// MZ converts a neutral mass to m/z at the given charge
func MZ(neutralMass float64, charge int) float64 {
	if charge < 1 {
		charge = 1
	}
	return (neutralMass + float64(charge)*ProtonMass) / float64(charge)
}

// FragmentLadder computes the a, b and y series, with water and ammonia
// losses on b and y, for charges 1 up to maxCharge. deltas holds the
// modification mass at each residue (terminal modifications folded into the
// first or last residue). Residues without a known mass make the ladder empty.
func FragmentLadder(sequence string, deltas []float64, maxCharge int) []TheoreticalIon {
	n := len(sequence)
	if n < 2 {
		return nil
	}
	if maxCharge < 1 {
		maxCharge = 1
	}

	residues := make([]float64, n)
	for i := 0; i < n; i++ {
		m, ok := ResidueMass(rune(sequence[i]))
		if !ok {
			return nil
		}
		residues[i] = m
		if i < len(deltas) {
			residues[i] += deltas[i]
		}
	}

	var ions []TheoreticalIon
	add := func(t IonType, number int, neutral float64) {
		for z := 1; z <= maxCharge; z++ {
			ions = append(ions, TheoreticalIon{Type: t, Number: number, Charge: z, MZ: MZ(neutral, z)})
			if t == IonA {
				continue
			}
			ions = append(ions,
				TheoreticalIon{Type: t, Number: number, Charge: z, Loss: LossWater, MZ: MZ(neutral-MassH2O, z)},
				TheoreticalIon{Type: t, Number: number, Charge: z, Loss: LossAmmonia, MZ: MZ(neutral-MassNH3, z)},
			)
		}
	}

	var prefix, suffix float64
	for i := 1; i < n; i++ {
		prefix += residues[i-1]
		suffix += residues[n-i]
		add(IonA, i, prefix-MassCO)
		add(IonB, i, prefix)
		add(IonY, i, suffix+MassH2O)
	}
	return ions
}
