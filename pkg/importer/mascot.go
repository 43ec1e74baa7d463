package importer

import (
	"errors"
	"fmt"
	"strings"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
	"github.com/compomics/fragmentation-analyzer/pkg/reader/mascot"
)

// DefaultConfidence is the Mascot identity threshold confidence
const DefaultConfidence = 0.95

// MascotFile is the part of a Mascot result file the importer reads.
// *mascot.Reader implements it.
type MascotFile interface {
	Instrument() string
	NumQueries() int
	Query(n int) (*mascot.Query, error)
	BestHit(n int) (*mascot.PeptideHit, error)
	FragmentIons(hit *mascot.PeptideHit, q *mascot.Query) []mascot.FragmentIon
}

// MascotImporter accepts the best hit of every query that passes the
// identity threshold at 1 - Confidence.
type MascotImporter struct {
	Confidence float64
	Filter     *filter.Config
}

// Import writes the accepted identifications of one Mascot file. name is
// the source file name recorded in the provenance.
func (im *MascotImporter) Import(rc *RunContext, name string, f MascotFile, sink RecordSink) error {
	confidence := im.Confidence
	if confidence <= 0 || confidence >= 1 {
		confidence = DefaultConfidence
	}
	alpha := 1 - confidence
	instrument := f.Instrument()

	rc.progress.SetTotal(f.NumQueries())
	for n := 1; n <= f.NumQueries(); n++ {
		if err := rc.checkpoint(); err != nil {
			return err
		}
		rc.progress.Advance()

		hit, err := f.BestHit(n)
		if err != nil {
			if skippable(err) {
				rc.notify(Notice{Kind: NoticeSkippedRecord, File: name, Message: fmt.Sprintf("query %d skipped: %v", n, err)})
				continue
			}
			return err
		}
		if hit == nil || hit.Sequence == "" || !hit.ScoresAboveIdentityThreshold(alpha) {
			continue
		}

		q, err := f.Query(n)
		if err != nil {
			if skippable(err) {
				rc.notify(Notice{Kind: NoticeSkippedRecord, File: name, Message: fmt.Sprintf("query %d skipped: %v", n, err)})
				continue
			}
			return err
		}

		spec := im.Filter.Peaks(&q.Spectrum)
		spec.Charge = abs(spec.Charge)
		ident := core.Identification{
			Sequence:         hit.Sequence,
			ModifiedSequence: hit.ModifiedSequence,
			Charge:           spec.Charge,
			Instrument:       instrument,
			Provenance:       fmt.Sprintf("%s_query_%d", name, n),
		}
		id, err := writeIdentification(rc, sink, ident, spec)
		if err != nil {
			return err
		}

		for _, ion := range f.FragmentIons(hit, q) {
			if err := rc.checkpoint(); err != nil {
				return err
			}
			rec := core.FragmentIonRecord{
				IdentificationID: id,
				Type:             ion.Ion.Type,
				Label:            stripSignificance(ion.Label),
				MZ:               ion.MZ,
				Intensity:        ion.Intensity,
				Number:           ion.Ion.Number,
				MassError:        ion.MassError,
			}
			if err := writeFragmentIon(rc, sink, im.Filter, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// stripSignificance removes a leading significance marker from an ion label
func stripSignificance(label string) string {
	if strings.HasPrefix(label, "#") || strings.HasPrefix(label, "&") {
		return label[1:]
	}
	return label
}

// skippable reports whether a read error only affects one query
func skippable(err error) bool {
	return errors.Is(err, mascot.ErrInvalidEntry) || errors.Is(err, mascot.ErrNoSuchQuery)
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
