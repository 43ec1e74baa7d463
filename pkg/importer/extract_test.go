package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
	"github.com/compomics/fragmentation-analyzer/pkg/writer/flatfile"
)

// memorySource serves records from memory and records the batches it is asked for
type memorySource struct {
	records map[int64]SourceRecord
	keys    []int64
	batches [][]int64
	loadErr error
}

func newMemorySource(n int) *memorySource {
	src := &memorySource{records: make(map[int64]SourceRecord)}
	for i := 1; i <= n; i++ {
		key := int64(100 + i)
		src.keys = append(src.keys, key)
		src.records[key] = SourceRecord{
			Identification: core.Identification{
				ID:               i * 7,
				Sequence:         "LIMSK",
				ModifiedSequence: "NH2-LIMSK-COOH",
				Charge:           2,
				Instrument:       "QSTAR",
				Provenance:       fmt.Sprintf("lims_%d", key),
			},
			Spectrum: core.SpectrumPeakList{
				PrecursorMZ: 300.5,
				Charge:      2,
				Peaks:       []core.Peak{{MZ: 100, Intensity: 1}, {MZ: 150, Intensity: 0}, {MZ: 200, Intensity: 3}},
			},
			FragmentIons: []core.FragmentIonRecord{
				{ID: 99, IdentificationID: i * 7, Label: "b2", MZ: 100, Intensity: 1, Number: 2},
				{ID: 98, IdentificationID: i * 7, Label: "y1 -H2O", MZ: 200, Intensity: 3, Number: 1},
			},
		}
	}
	return src
}

func (s *memorySource) Keys(context.Context) ([]int64, error) {
	return s.keys, nil
}

func (s *memorySource) Load(_ context.Context, keys []int64) ([]SourceRecord, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	s.batches = append(s.batches, append([]int64(nil), keys...))
	out := make([]SourceRecord, 0, len(keys))
	for _, k := range keys {
		out = append(out, s.records[k])
	}
	return out, nil
}

func TestExtractBatches(t *testing.T) {
	src := newMemorySource(5)
	out := filepath.Join(t.TempDir(), "dataset")

	res, err := New().Extract(context.Background(), src, ExtractRequest{Output: out, BatchSize: 2})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if res.State != StateCompleted || res.Identifications != 5 || res.FragmentIons != 10 {
		t.Errorf("result = %+v", res)
	}
	if len(src.batches) != 3 {
		t.Fatalf("Load called %d times, want 3", len(src.batches))
	}
	for i, b := range src.batches {
		if len(b) > 2 {
			t.Errorf("batch %d has %d keys", i, len(b))
		}
	}

	ds, err := flatfile.Check(out)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	for i, id := range ds.Identifications {
		if id.ID != i+1 || id.SpectrumFile != core.SpectrumFileName(i+1) {
			t.Errorf("identification %d not renumbered: %+v", i, id)
		}
		if id.TotalIntensity != 4 {
			t.Errorf("total intensity = %v, want 4", id.TotalIntensity)
		}
	}
	for i, ion := range ds.FragmentIons {
		if ion.ID != i+1 || ion.IdentificationID != i/2+1 {
			t.Errorf("fragment ion %d = %+v", i, ion)
		}
	}
}

func TestExtractFilter(t *testing.T) {
	src := newMemorySource(2)
	out := filepath.Join(t.TempDir(), "dataset")
	res, err := New().Extract(context.Background(), src, ExtractRequest{
		Output: out,
		Filter: &filter.Config{IonTypes: []string{"y"}, DropZeroPeaks: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.FragmentIons != 2 {
		t.Errorf("FragmentIons = %d, want 2", res.FragmentIons)
	}
	spec, err := flatfile.ReadSpectrum(out, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(spec.Peaks) != 2 {
		t.Errorf("zero intensity peak kept: %+v", spec.Peaks)
	}
	if len(src.batches) != 1 {
		t.Errorf("default batch size should load 2 keys at once, got %d batches", len(src.batches))
	}
}

func TestExtractFailureRemovesDataset(t *testing.T) {
	src := newMemorySource(3)
	src.loadErr = errors.New("connection lost")
	out := filepath.Join(t.TempDir(), "dataset")
	res, err := New().Extract(context.Background(), src, ExtractRequest{Output: out})
	if err == nil || res.State != StateFailed {
		t.Fatalf("Extract() = %+v, %v; want failure", res, err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Error("dataset folder survived the failure")
	}
}

func TestExtractRejectsExistingFolder(t *testing.T) {
	src := newMemorySource(1)
	out := t.TempDir()
	p := New()
	res, err := p.Extract(context.Background(), src, ExtractRequest{Output: out})
	if !errors.Is(err, ErrDatasetExists) {
		t.Fatalf("Extract() error = %v, want ErrDatasetExists", err)
	}
	if res.State != StateIdle || p.State() != StateIdle {
		t.Errorf("state = %v / %v, want idle", res.State, p.State())
	}
	if len(src.batches) != 0 {
		t.Error("source was read before validation")
	}
	if _, err := os.Stat(out); err != nil {
		t.Errorf("existing folder touched: %v", err)
	}
}

func TestClampBatchSize(t *testing.T) {
	tests := map[int]int{0: DefaultBatchSize, -5: 1, 1: 1, 15000: 15000, 20000: 20000, 50000: MaxBatchSize}
	for in, want := range tests {
		if got := ClampBatchSize(in); got != want {
			t.Errorf("ClampBatchSize(%d) = %d, want %d", in, got, want)
		}
	}
}

// blockingProgress holds the run at its first advance until released
type blockingProgress struct {
	started chan struct{}
	release chan struct{}
	once    bool
}

func (b *blockingProgress) SetTotal(int)    {}
func (b *blockingProgress) SetLabel(string) {}
func (b *blockingProgress) Advance() {
	if b.once {
		return
	}
	b.once = true
	close(b.started)
	<-b.release
}

func TestJobCancel(t *testing.T) {
	p := mascotPipeline(map[string]*fakeMascot{"a.dat": newFakeMascot(3, 1, 2, 3)})
	bp := &blockingProgress{started: make(chan struct{}), release: make(chan struct{})}
	p.SetProgress(bp)
	out := filepath.Join(t.TempDir(), "dataset")

	job := Start(context.Background(), p, Request{Files: touch(t, "a.dat"), Output: out, Format: FormatMascot})
	<-bp.started
	if p.State() != StateRunning {
		t.Errorf("State() = %v while running", p.State())
	}
	job.Cancel()
	close(bp.release)

	res, err := job.Wait()
	if err != nil || res.State != StateCancelled {
		t.Fatalf("Wait() = %+v, %v; want cancelled", res, err)
	}
	<-job.Done()
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Error("dataset folder survived cancellation")
	}
}

func TestJobCompletes(t *testing.T) {
	src := newMemorySource(3)
	out := filepath.Join(t.TempDir(), "dataset")
	job := StartExtract(context.Background(), New(), src, ExtractRequest{Output: out})
	res, err := job.Wait()
	if err != nil || res.State != StateCompleted || res.Identifications != 3 {
		t.Errorf("Wait() = %+v, %v", res, err)
	}
}
