package importer

import (
	"errors"
	"fmt"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
	"github.com/compomics/fragmentation-analyzer/pkg/reader/omssa"
)

// OmssaFile is the part of an OMSSA result file the importer reads.
// *omssa.File implements it.
type OmssaFile interface {
	Settings() omssa.Settings
	Scale() float64
	Spectra() []omssa.Spectrum
	Hits(number int) []omssa.Hit
	SpectrumIDs(number int) []string
}

// OmssaImporter accepts the lowest e-value hit of every spectrum.
// OMSSA files do not name the instrument, so it is supplied by the caller.
type OmssaImporter struct {
	Instrument string
	Catalog    *core.ModCatalog
	Filter     *filter.Config
}

// BestHit returns the hit with the lowest e-value. The first hit wins ties.
func BestHit(hits []omssa.Hit) (omssa.Hit, bool) {
	if len(hits) == 0 {
		return omssa.Hit{}, false
	}
	best := 0
	for i := 1; i < len(hits); i++ {
		if hits[i].EValue < hits[best].EValue {
			best = i
		}
	}
	return hits[best], true
}

// Import writes the accepted identifications of one OMSSA file. name is
// the source file name recorded in the provenance.
func (im *OmssaImporter) Import(rc *RunContext, name string, f OmssaFile, sink RecordSink) error {
	settings := f.Settings()
	scale := f.Scale()
	if scale <= 0 {
		scale = 1
	}
	// reported sites of fixed mods that cannot be placed stay as hits
	fixed := omssa.FixedMods(settings, im.Catalog)
	fixedIDs := make(map[int]bool, len(fixed))
	for _, fm := range fixed {
		if fm.Placeable(im.Catalog) {
			fixedIDs[fm.ID] = true
		}
	}

	spectra := f.Spectra()
	rc.progress.SetTotal(len(spectra))
	for i := range spectra {
		if err := rc.checkpoint(); err != nil {
			return err
		}
		rc.progress.Advance()

		s := &spectra[i]
		hit, ok := BestHit(f.Hits(s.Number))
		if !ok || hit.Sequence == "" {
			continue
		}

		// fixed modifications are placed from the search settings
		var variable []core.VariableMod
		for _, m := range hit.Mods {
			if !fixedIDs[m.ID] {
				variable = append(variable, core.VariableMod{Site: m.Site, ID: m.ID})
			}
		}

		charge := hit.Charge
		if charge == 0 {
			charge = s.Charge()
		}
		charge = abs(charge)

		iscale := s.IntensityScale
		if iscale <= 0 {
			iscale = 1
		}
		raw := s.Peaks()
		spec := &core.SpectrumPeakList{
			PrecursorMZ: s.PrecursorMZ / scale,
			Charge:      charge,
			Peaks:       make([]core.Peak, len(raw)),
		}
		for j, p := range raw {
			if err := rc.checkpoint(); err != nil {
				return err
			}
			spec.Peaks[j] = core.Peak{MZ: p.MZ / scale, Intensity: p.Intensity / iscale}
		}
		spec = im.Filter.Peaks(spec)

		ident := core.Identification{
			Sequence:         hit.Sequence,
			ModifiedSequence: core.ResolveSequence(hit.Sequence, fixed, variable, im.Catalog),
			Charge:           charge,
			Instrument:       im.Instrument,
			Provenance:       provenance(name, s.Number, f.SpectrumIDs(s.Number)),
		}
		id, err := writeIdentification(rc, sink, ident, spec)
		if err != nil {
			return err
		}

		matcher := core.Matcher{
			Tolerance:      settings.MSMSTolerance * scale,
			MZScale:        scale,
			IntensityScale: iscale,
		}
		for _, mz := range hit.MZHits {
			if err := rc.checkpoint(); err != nil {
				return err
			}
			ion := mz.Theoretical()
			m, err := matcher.MatchIon(ion, raw)
			if errors.Is(err, core.ErrNoMatch) {
				rc.notify(Notice{
					Kind:             NoticeUnmatchedIon,
					File:             name,
					IdentificationID: id,
					Ion:              ion.Label(),
					MZ:               ion.MZ / scale,
					Message:          "no observed peak for fragment ion",
				})
				continue
			}
			rec := core.FragmentIonRecord{
				IdentificationID: id,
				Type:             ion.Type,
				Label:            ion.Label(),
				MZ:               m.MZ,
				Intensity:        m.Intensity,
				Number:           ion.Number,
				MassError:        m.MassError,
			}
			if err := writeFragmentIon(rc, sink, im.Filter, rec); err != nil {
				return err
			}
		}
	}
	return nil
}

// provenance names a spectrum by file, number and its first id when present
func provenance(name string, number int, ids []string) string {
	if len(ids) == 0 || ids[0] == "" {
		return fmt.Sprintf("%s_spectrum_%d", name, number)
	}
	return fmt.Sprintf("%s_spectrum_%d_%s", name, number, ids[0])
}
