// Package core provides the record types written to a dataset, fragment ion
// matching and peptide modification handling shared by the importers.
package core

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/floats"
)

// UnknownInstrument is recorded when the source carries no instrument name.
const UnknownInstrument = "(unknown)"

// Peak represents a single m/z, intensity pair.
type Peak struct {
	MZ        float64
	Intensity float64
}

// SpectrumPeakList is the peak list of one identification together with its
// precursor metadata.
type SpectrumPeakList struct {
	PrecursorMZ        float64
	PrecursorIntensity float64 // 0 when the source does not report it
	Charge             int
	Peaks              []Peak
}

// Identification is one accepted peptide-spectrum assignment.
type Identification struct {
	ID               int // 1-based, assigned by the run
	Sequence         string
	ModifiedSequence string
	Charge           int
	Instrument       string
	SpectrumFile     string // <ID>.pkl
	TotalIntensity   float64
	Provenance       string // source file plus query or spectrum identifier
}

// FragmentIonRecord is one theoretical fragment ion matched to an observed peak.
type FragmentIonRecord struct {
	ID               int // run-wide counter
	IdentificationID int
	Type             IonType // not persisted, used for filtering
	Label            string
	MZ               float64
	Intensity        float64
	Number           int
	MassError        float64
}

// ValidationError represents an error found while validating a record.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", e.Field, e.Message)
}

// SpectrumFileName returns the peak list file name of an identification.
func SpectrumFileName(id int) string {
	return fmt.Sprintf("%d.pkl", id)
}

// TotalIntensity returns the sum of all peak intensities.
func (s *SpectrumPeakList) TotalIntensity() float64 {
	if len(s.Peaks) == 0 {
		return 0
	}
	return floats.Sum(s.Intensities())
}

// Intensities returns the peak intensities in peak order.
func (s *SpectrumPeakList) Intensities() []float64 {
	out := make([]float64, len(s.Peaks))
	for i, p := range s.Peaks {
		out[i] = p.Intensity
	}
	return out
}

// ArePeaksSorted checks if peaks are sorted by m/z in ascending order.
func (s *SpectrumPeakList) ArePeaksSorted() bool {
	for i := 1; i < len(s.Peaks); i++ {
		if s.Peaks[i].MZ < s.Peaks[i-1].MZ {
			return false
		}
	}
	return true
}

// SortPeaks sorts peaks by m/z in ascending order.
func (s *SpectrumPeakList) SortPeaks() {
	sort.SliceStable(s.Peaks, func(i, j int) bool {
		return s.Peaks[i].MZ < s.Peaks[j].MZ
	})
}

// Validate checks that a peak list can be written.
func (s *SpectrumPeakList) Validate() error {
	var errs []string

	if math.IsNaN(s.PrecursorMZ) || math.IsInf(s.PrecursorMZ, 0) {
		errs = append(errs, "precursor m/z is not a number")
	}
	if math.IsNaN(s.PrecursorIntensity) || math.IsInf(s.PrecursorIntensity, 0) {
		errs = append(errs, "precursor intensity is not a number")
	}
	for i, peak := range s.Peaks {
		if math.IsNaN(peak.MZ) || math.IsInf(peak.MZ, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid m/z", i))
		}
		if math.IsNaN(peak.Intensity) || math.IsInf(peak.Intensity, 0) {
			errs = append(errs, fmt.Sprintf("peak %d has invalid intensity", i))
		}
	}

	if len(errs) > 0 {
		return &ValidationError{
			Field:   "SpectrumPeakList",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Validate checks that an identification can be written as one record line.
func (id *Identification) Validate() error {
	var errs []string

	if id.ID <= 0 {
		errs = append(errs, "id must be positive")
	}
	if id.Sequence == "" {
		errs = append(errs, "sequence is required")
	}
	for name, v := range map[string]string{
		"sequence":          id.Sequence,
		"modified sequence": id.ModifiedSequence,
		"instrument":        id.Instrument,
		"provenance":        id.Provenance,
	} {
		if strings.ContainsAny(v, "\t\n\r") {
			errs = append(errs, name+" contains a field or record separator")
		}
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return &ValidationError{
			Field:   "Identification",
			Message: strings.Join(errs, "; "),
		}
	}
	return nil
}

// Validate checks that a fragment ion record can be written.
func (r *FragmentIonRecord) Validate() error {
	if r.Label == "" || strings.ContainsAny(r.Label, "\t\n\r") {
		return &ValidationError{Field: "FragmentIonRecord", Message: fmt.Sprintf("invalid label %q", r.Label)}
	}
	if r.IdentificationID <= 0 {
		return &ValidationError{Field: "FragmentIonRecord", Message: "identification id must be positive"}
	}
	return nil
}
