package mascot

import (
	"sort"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

// SignificanceMarker prefixes the label of an ion whose peak lies among the
// peaks Mascot used for scoring.
const SignificanceMarker = "#"

// FragmentIon is a theoretical ion of a peptide hit matched to a query peak
type FragmentIon struct {
	Ion       core.TheoreticalIon
	Label     string
	MZ        float64 // observed
	Intensity float64 // observed
	MassError float64 // observed - theoretical
}

// FragmentIons annotates the query's peak list with the a, b and y ions of
// the hit. Doubly charged ions are considered when the precursor charge is
// at least 2. Only ions with an observed peak inside the fragment tolerance
// are returned.
func (r *Reader) FragmentIons(hit *PeptideHit, q *Query) []FragmentIon {
	if hit == nil || q == nil || len(q.Spectrum.Peaks) == 0 {
		return nil
	}

	maxCharge := 1
	if q.Spectrum.Charge >= 2 {
		maxCharge = 2
	}
	significant := topPeaks(q.Spectrum.Peaks, hit.PeaksUsed)

	var out []FragmentIon
	for _, ion := range core.FragmentLadder(hit.Sequence, hit.Deltas, maxCharge) {
		tol := r.tolerance
		if r.ppm {
			tol = ion.MZ * r.tolerance / 1e6
		}
		m, err := core.Matcher{Tolerance: tol}.MatchIon(ion, q.Spectrum.Peaks)
		if err != nil {
			continue
		}
		label := ion.Label()
		if significant[m.Index] {
			label = SignificanceMarker + label
		}
		out = append(out, FragmentIon{
			Ion:       ion,
			Label:     label,
			MZ:        m.MZ,
			Intensity: m.Intensity,
			MassError: m.MassError,
		})
	}
	return out
}

// topPeaks marks the n most intense peaks
func topPeaks(peaks []core.Peak, n int) map[int]bool {
	if n <= 0 {
		return nil
	}
	idx := make([]int, len(peaks))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return peaks[idx[a]].Intensity > peaks[idx[b]].Intensity
	})
	if n > len(idx) {
		n = len(idx)
	}
	top := make(map[int]bool, n)
	for _, i := range idx[:n] {
		top[i] = true
	}
	return top
}
