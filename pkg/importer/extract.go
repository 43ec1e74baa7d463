package importer

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
)

// Key batch limits for extraction from an identification store
const (
	DefaultBatchSize = 10000
	MaxBatchSize     = 20000
)

// SourceRecord is one identification read from an identification store,
// with its peak list and fragment ions. Ids are reassigned on extraction.
type SourceRecord struct {
	Identification core.Identification
	Spectrum       core.SpectrumPeakList
	FragmentIons   []core.FragmentIonRecord
}

// IdentificationSource is a store of identifications that is read in key
// batches. The SQLite store implements it.
type IdentificationSource interface {
	// Keys returns the keys of all identifications in extraction order
	Keys(ctx context.Context) ([]int64, error)
	// Load returns the records for keys, in the order of keys
	Load(ctx context.Context, keys []int64) ([]SourceRecord, error)
}

// ExtractRequest is one extraction run
type ExtractRequest struct {
	Output    string // dataset folder, must not exist
	BatchSize int    // keys per Load call, clamped to 1..MaxBatchSize; 0 = DefaultBatchSize
	Filter    *filter.Config
}

// ClampBatchSize applies the batch size limits
func ClampBatchSize(n int) int {
	switch {
	case n == 0:
		return DefaultBatchSize
	case n < 1:
		return 1
	case n > MaxBatchSize:
		return MaxBatchSize
	}
	return n
}

// Extract writes every identification of src into a new dataset folder.
// It follows the same state machine and cleanup rules as Run.
func (p *Pipeline) Extract(ctx context.Context, src IdentificationSource, req ExtractRequest) (Result, error) {
	if req.Output == "" {
		return Result{State: p.State()}, ErrNoOutput
	}
	if _, err := os.Stat(req.Output); err == nil {
		return Result{State: p.State()}, fmt.Errorf("%w: %s", ErrDatasetExists, req.Output)
	}
	if f := req.Filter; f != nil {
		if err := f.Compile(); err != nil {
			return Result{State: p.State()}, fmt.Errorf("invalid filter: %w", err)
		}
	}
	batch := ClampBatchSize(req.BatchSize)

	return p.execute(ctx, req.Output, func(rc *RunContext, sink RecordSink) (int, error) {
		keys, err := src.Keys(rc.ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list identifications: %w", err)
		}
		rc.progress.SetLabel("extract")
		rc.progress.SetTotal(len(keys))
		p.logger.Info("extracting identifications",
			zap.Int("identifications", len(keys)),
			zap.Int("batch_size", batch))

		for start := 0; start < len(keys); start += batch {
			if err := rc.checkpoint(); err != nil {
				return 0, err
			}
			end := start + batch
			if end > len(keys) {
				end = len(keys)
			}
			records, err := src.Load(rc.ctx, keys[start:end])
			if err != nil {
				if rc.Cancelled() {
					return 0, ErrCancelled
				}
				return 0, fmt.Errorf("failed to load identifications %d to %d: %w", keys[start], keys[end-1], err)
			}
			for i := range records {
				if err := rc.checkpoint(); err != nil {
					return 0, err
				}
				rc.progress.Advance()
				if err := extractRecord(rc, sink, req.Filter, &records[i]); err != nil {
					return 0, err
				}
			}
			p.logger.Debug("batch extracted", zap.Int("end", end), zap.Int("total", len(keys)))
		}
		return 1, nil
	})
}

func extractRecord(rc *RunContext, sink RecordSink, f *filter.Config, rec *SourceRecord) error {
	spec := f.Peaks(&rec.Spectrum)
	id, err := writeIdentification(rc, sink, rec.Identification, spec)
	if err != nil {
		return err
	}
	for _, ion := range rec.FragmentIons {
		if err := rc.checkpoint(); err != nil {
			return err
		}
		ion.IdentificationID = id
		ion.Type = core.IonTypeOfLabel(ion.Label)
		if err := writeFragmentIon(rc, sink, f, ion); err != nil {
			return err
		}
	}
	return nil
}
