package core

import (
	"errors"
	"math"
)

// ErrNoMatch is returned when no observed peak lies within the tolerance.
var ErrNoMatch = errors.New("core: no observed peak within tolerance")

// Matcher maps theoretical fragment ions onto observed peaks.
//
// Peaks and theoretical m/z values may be kept in a source-defined integer
// scale (OMSSA stores m/z multiplied by its response scale). Tolerance is
// compared against raw values, so callers pass it already multiplied by
// MZScale. MZScale and IntensityScale of zero are treated as 1.
type Matcher struct {
	Tolerance      float64
	MZScale        float64
	IntensityScale float64
}

// Match is the observed counterpart of a theoretical ion, in descaled units.
type Match struct {
	Index     int // index into the peak list
	MZ        float64
	Intensity float64
	MassError float64 // observed - theoretical
}

// Match selects the most intense peak whose m/z lies within the tolerance of
// the theoretical m/z. Ties keep the first peak encountered.
func (m Matcher) Match(theoreticalMZ float64, peaks []Peak) (Match, error) {
	mzScale := scaleOrOne(m.MZScale)
	intScale := scaleOrOne(m.IntensityScale)

	best := -1
	bestIntensity := math.Inf(-1)
	for i, p := range peaks {
		if math.Abs(p.MZ-theoreticalMZ) > m.Tolerance {
			continue
		}
		if intensity := p.Intensity / intScale; intensity > bestIntensity {
			best = i
			bestIntensity = intensity
		}
	}
	if best < 0 {
		return Match{}, ErrNoMatch
	}

	return Match{
		Index:     best,
		MZ:        peaks[best].MZ / mzScale,
		Intensity: bestIntensity,
		MassError: (peaks[best].MZ - theoreticalMZ) / mzScale,
	}, nil
}

// MatchIon is Match for a theoretical ion.
func (m Matcher) MatchIon(ion TheoreticalIon, peaks []Peak) (Match, error) {
	return m.Match(ion.MZ, peaks)
}

func scaleOrOne(s float64) float64 {
	if s == 0 {
		return 1
	}
	return s
}
