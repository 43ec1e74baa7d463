package importer

import (
	"errors"
	"strings"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
)

// RecordSink receives the records of accepted identifications.
// flatfile.Writer and the SQLite mirror implement it.
type RecordSink interface {
	WriteSpectrum(id int, spec *core.SpectrumPeakList) error
	WriteIdentification(id *core.Identification) error
	WriteFragmentIon(rec *core.FragmentIonRecord) error
}

// Finalizer is a sink that needs to commit its records when a run completes
type Finalizer interface {
	Finalize() error
}

// Discarder is a sink that can throw away everything written in a run
type Discarder interface {
	Discard() error
}

// teeSink writes every record to the dataset and then to each mirror
type teeSink []RecordSink

func (t teeSink) WriteSpectrum(id int, spec *core.SpectrumPeakList) error {
	for _, s := range t {
		if err := s.WriteSpectrum(id, spec); err != nil {
			return err
		}
	}
	return nil
}

func (t teeSink) WriteIdentification(id *core.Identification) error {
	for _, s := range t {
		if err := s.WriteIdentification(id); err != nil {
			return err
		}
	}
	return nil
}

func (t teeSink) WriteFragmentIon(rec *core.FragmentIonRecord) error {
	for _, s := range t {
		if err := s.WriteFragmentIon(rec); err != nil {
			return err
		}
	}
	return nil
}

func (t teeSink) Finalize() error {
	var errs []error
	for _, s := range t {
		if f, ok := s.(Finalizer); ok {
			errs = append(errs, f.Finalize())
		}
	}
	return errors.Join(errs...)
}

func (t teeSink) Discard() error {
	var errs []error
	for _, s := range t {
		if d, ok := s.(Discarder); ok {
			errs = append(errs, d.Discard())
		}
	}
	return errors.Join(errs...)
}

// separators replaces characters that would break a record line in free text fields
var separators = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// writeIdentification assigns the next id to an accepted identification and
// writes its peak list and record
func writeIdentification(rc *RunContext, sink RecordSink, ident core.Identification, spec *core.SpectrumPeakList) (int, error) {
	ident.Instrument = separators.Replace(ident.Instrument)
	ident.Provenance = separators.Replace(ident.Provenance)
	if ident.Instrument == "" {
		ident.Instrument = core.UnknownInstrument
	}
	ident.ID = rc.NextIdentificationID()
	ident.SpectrumFile = core.SpectrumFileName(ident.ID)
	ident.TotalIntensity = spec.TotalIntensity()

	if err := spec.Validate(); err != nil {
		return 0, err
	}
	if err := ident.Validate(); err != nil {
		return 0, err
	}
	if err := sink.WriteSpectrum(ident.ID, spec); err != nil {
		return 0, err
	}
	if err := sink.WriteIdentification(&ident); err != nil {
		return 0, err
	}
	return ident.ID, nil
}

// writeFragmentIon writes a matched ion if it passes the filter. Counters
// only advance for written ions.
func writeFragmentIon(rc *RunContext, sink RecordSink, f *filter.Config, rec core.FragmentIonRecord) error {
	if !f.Keep(&rec) {
		return nil
	}
	rec.ID = rc.NextFragmentIonID()
	if err := rec.Validate(); err != nil {
		return err
	}
	return sink.WriteFragmentIon(&rec)
}
