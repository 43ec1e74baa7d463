package importer

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
	"github.com/compomics/fragmentation-analyzer/pkg/reader/mascot"
	"github.com/compomics/fragmentation-analyzer/pkg/reader/omssa"
	"github.com/compomics/fragmentation-analyzer/pkg/writer/flatfile"
)

// fakeMascot serves queries from memory
type fakeMascot struct {
	instrument string
	queries    []*mascot.Query
	hits       map[int]*mascot.PeptideHit
	ions       map[int][]mascot.FragmentIon
	queryErr   error
	closed     bool
}

func (f *fakeMascot) Instrument() string { return f.instrument }
func (f *fakeMascot) NumQueries() int    { return len(f.queries) }
func (f *fakeMascot) Close() error       { f.closed = true; return nil }

func (f *fakeMascot) Query(n int) (*mascot.Query, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if n < 1 || n > len(f.queries) {
		return nil, mascot.ErrNoSuchQuery
	}
	q := *f.queries[n-1]
	return &q, nil
}

func (f *fakeMascot) BestHit(n int) (*mascot.PeptideHit, error) {
	return f.hits[n], nil
}

func (f *fakeMascot) FragmentIons(hit *mascot.PeptideHit, q *mascot.Query) []mascot.FragmentIon {
	return f.ions[q.Number]
}

// newFakeMascot returns a file with accepted hits on the given queries and
// a rejected hit on every other one
func newFakeMascot(queries int, accepted ...int) *fakeMascot {
	f := &fakeMascot{
		instrument: "ESI-TRAP",
		hits:       make(map[int]*mascot.PeptideHit),
		ions:       make(map[int][]mascot.FragmentIon),
	}
	for n := 1; n <= queries; n++ {
		f.queries = append(f.queries, &mascot.Query{
			Number: n,
			Spectrum: core.SpectrumPeakList{
				PrecursorMZ:        500.5,
				PrecursorIntensity: 1000,
				Charge:             2,
				Peaks:              []core.Peak{{MZ: 100, Intensity: 10}, {MZ: 200, Intensity: 20}},
			},
		})
		f.hits[n] = &mascot.PeptideHit{Query: n, Sequence: "PEPTIDE", ModifiedSequence: "NH2-PEPTIDE-COOH", IonsScore: 5, QMatch: 1}
	}
	for _, n := range accepted {
		f.hits[n].IonsScore = 50
		f.ions[n] = []mascot.FragmentIon{
			{Ion: core.TheoreticalIon{Type: core.IonB, Number: 2, Charge: 1}, Label: "#b2", MZ: 200, Intensity: 20, MassError: 0.01},
			{Ion: core.TheoreticalIon{Type: core.IonY, Number: 1, Charge: 1}, Label: "y1", MZ: 100, Intensity: 10, MassError: -0.02},
		}
	}
	return f
}

// fakeOmssa serves one OMX file from memory
type fakeOmssa struct {
	settings omssa.Settings
	scale    float64
	spectra  []omssa.Spectrum
	hits     map[int][]omssa.Hit
	ids      map[int][]string
}

func (f *fakeOmssa) Settings() omssa.Settings   { return f.settings }
func (f *fakeOmssa) Scale() float64             { return f.scale }
func (f *fakeOmssa) Spectra() []omssa.Spectrum  { return f.spectra }
func (f *fakeOmssa) Hits(n int) []omssa.Hit     { return f.hits[n] }
func (f *fakeOmssa) SpectrumIDs(n int) []string { return f.ids[n] }

func newFakeOmssa() *fakeOmssa {
	return &fakeOmssa{
		settings: omssa.Settings{MSMSTolerance: 0.5},
		scale:    100,
		spectra: []omssa.Spectrum{
			{Number: 0, Charges: []int{2}, PrecursorMZ: 40025, MZ: []float64{14711, 21908}, Abundance: []float64{500, 1000}, IntensityScale: 10},
			{Number: 1, Charges: []int{1}, PrecursorMZ: 50000, MZ: []float64{10000}, Abundance: []float64{5}, IntensityScale: 1},
		},
		hits: map[int][]omssa.Hit{
			0: {
				{EValue: 0.01, Charge: 2, Sequence: "AAAK"},
				{EValue: 0.003, Charge: 2, Sequence: "AMTM",
					Mods: []omssa.ModHit{{Site: 1, ID: 1}},
					MZHits: []omssa.MZHit{
						{Ion: core.IonY, Charge: 1, Number: 1, MZ: 14707},
						{Ion: core.IonB, Charge: 1, Number: 3, MZ: 30000},
					}},
			},
		},
		ids: map[int][]string{0: {"scan 7"}},
	}
}

// touch creates empty input files and returns their paths
func touch(t *testing.T, names ...string) []string {
	t.Helper()
	dir := t.TempDir()
	var paths []string
	for _, n := range names {
		p := filepath.Join(dir, n)
		if err := os.WriteFile(p, nil, 0o644); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, p)
	}
	return paths
}

func mascotPipeline(files map[string]*fakeMascot) *Pipeline {
	p := New()
	p.openMascot = func(path string, _ mascot.Options) (MascotFile, error) {
		f, ok := files[filepath.Base(path)]
		if !ok {
			return nil, os.ErrNotExist
		}
		return f, nil
	}
	return p
}

func omssaPipeline(f *fakeOmssa) *Pipeline {
	p := New()
	p.openOmssa = func(string) (OmssaFile, error) { return f, nil }
	p.loadMods = func(...string) (*core.ModCatalog, error) {
		c := core.NewModCatalog()
		c.Add(core.ModInfo{ID: 1, Name: "oxidation of M", Kind: core.ModInternal, MonoMass: 15.994915, Residues: "M"})
		return c, nil
	}
	return p
}

func TestRunMascotAcrossFiles(t *testing.T) {
	files := map[string]*fakeMascot{
		"a.dat": newFakeMascot(3, 1, 3),
		"b.dat": newFakeMascot(2, 2),
	}
	p := mascotPipeline(files)
	out := filepath.Join(t.TempDir(), "dataset")

	res, err := p.Run(context.Background(), Request{
		Files:  touch(t, "a.dat", "b.dat"),
		Output: out,
		Format: FormatMascot,
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := Result{State: StateCompleted, Identifications: 3, FragmentIons: 6, Files: 2}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
	if p.State() != StateCompleted {
		t.Errorf("State() = %v", p.State())
	}
	for name, f := range files {
		if !f.closed {
			t.Errorf("%s was not closed", name)
		}
	}

	ds, err := flatfile.Check(out)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	raw, _ := os.ReadFile(filepath.Join(out, flatfile.IdentificationsFile))
	lines := strings.Split(strings.TrimSuffix(string(raw), "\n"), "\n")
	if len(lines) != 4 || lines[0] != "3" {
		t.Errorf("identifications.txt = %q, want 4 lines starting with 3", lines)
	}

	var provenance []string
	for i, id := range ds.Identifications {
		if id.ID != i+1 {
			t.Errorf("identification %d has id %d", i, id.ID)
		}
		provenance = append(provenance, id.Provenance)
		spec, err := flatfile.ReadSpectrum(out, id.ID)
		if err != nil {
			t.Fatal(err)
		}
		if len(spec.Peaks) != 2 || spec.PrecursorMZ != 500.5 || spec.Charge != 2 {
			t.Errorf("spectrum %d = %+v", id.ID, spec)
		}
		if id.TotalIntensity != 30 || id.Instrument != "ESI-TRAP" {
			t.Errorf("identification %+v", id)
		}
	}
	if diff := cmp.Diff([]string{"a.dat_query_1", "a.dat_query_3", "b.dat_query_2"}, provenance); diff != "" {
		t.Errorf("provenance mismatch (-want +got):\n%s", diff)
	}

	last := 0
	for _, ion := range ds.FragmentIons {
		if ion.ID <= last {
			t.Errorf("fragment ion counter %d after %d", ion.ID, last)
		}
		last = ion.ID
		if strings.HasPrefix(ion.Label, "#") {
			t.Errorf("label %q keeps its significance marker", ion.Label)
		}
	}
	if got := ds.FragmentIons[4].IdentificationID; got != 3 {
		t.Errorf("ions of the second file belong to identification %d, want 3", got)
	}
}

func TestRunOmssaSelectsLowestEValue(t *testing.T) {
	p := omssaPipeline(newFakeOmssa())
	var notices []Notice
	p.SetNotices(NoticeFunc(func(n Notice) { notices = append(notices, n) }))

	files := touch(t, "run.omx", "mods.xml", "usermods.xml")
	out := filepath.Join(t.TempDir(), "dataset")
	res, err := p.Run(context.Background(), Request{
		Files:  files[:1],
		Output: out,
		Format: FormatOmssa,
		Options: Options{
			Instrument:   "LTQ",
			ModsFile:     files[1],
			UserModsFile: files[2],
		},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want := Result{State: StateCompleted, Identifications: 1, FragmentIons: 1, UnmatchedIons: 1, Files: 1}
	if diff := cmp.Diff(want, res); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}

	ds, err := flatfile.Check(out)
	if err != nil {
		t.Fatal(err)
	}
	wantIdent := core.Identification{
		ID:               1,
		Sequence:         "AMTM",
		ModifiedSequence: "NH2-AM<1>TM-COOH",
		Charge:           2,
		Instrument:       "LTQ",
		SpectrumFile:     "1.pkl",
		TotalIntensity:   150,
		Provenance:       "run.omx_spectrum_0_scan 7",
	}
	if diff := cmp.Diff([]core.Identification{wantIdent}, ds.Identifications); diff != "" {
		t.Errorf("identification mismatch (-want +got):\n%s", diff)
	}

	spec, err := flatfile.ReadSpectrum(out, 1)
	if err != nil {
		t.Fatal(err)
	}
	wantSpec := &core.SpectrumPeakList{
		PrecursorMZ: 400.25,
		Charge:      2,
		Peaks:       []core.Peak{{MZ: 147.11, Intensity: 50}, {MZ: 219.08, Intensity: 100}},
	}
	if diff := cmp.Diff(wantSpec, spec); diff != "" {
		t.Errorf("spectrum mismatch (-want +got):\n%s", diff)
	}

	if len(ds.FragmentIons) != 1 {
		t.Fatalf("got %d fragment ions, want 1", len(ds.FragmentIons))
	}
	ion := ds.FragmentIons[0]
	if ion.Label != "y1" || ion.MZ != 147.11 || ion.Intensity != 50 || ion.Number != 1 {
		t.Errorf("fragment ion = %+v", ion)
	}
	// observed - theoretical, the same sign as the Mascot path
	if ion.MassError != 0.04 {
		t.Errorf("mass error = %v, want 0.04", ion.MassError)
	}

	if len(notices) != 1 || notices[0].Kind != NoticeUnmatchedIon || notices[0].Ion != "b3" || notices[0].IdentificationID != 1 {
		t.Errorf("notices = %+v", notices)
	}
}

func TestRunOmssaUncataloguedFixedMod(t *testing.T) {
	f := &fakeOmssa{
		settings: omssa.Settings{MSMSTolerance: 0.5, Fixed: []int{3}},
		scale:    1,
		spectra: []omssa.Spectrum{
			{Number: 0, Charges: []int{2}, PrecursorMZ: 175.5, MZ: []float64{147.1}, Abundance: []float64{10}, IntensityScale: 1},
		},
		hits: map[int][]omssa.Hit{
			0: {{EValue: 0.01, Charge: 2, Sequence: "ACK", Mods: []omssa.ModHit{{Site: 1, ID: 3}}}},
		},
	}
	p := omssaPipeline(f)
	p.loadMods = func(...string) (*core.ModCatalog, error) { return core.NewModCatalog(), nil }

	files := touch(t, "run.omx", "mods.xml", "usermods.xml")
	out := filepath.Join(t.TempDir(), "dataset")
	_, err := p.Run(context.Background(), Request{
		Files:   files[:1],
		Output:  out,
		Format:  FormatOmssa,
		Options: Options{ModsFile: files[1], UserModsFile: files[2]},
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	ds, err := flatfile.Check(out)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Identifications) != 1 {
		t.Fatalf("got %d identifications, want 1", len(ds.Identifications))
	}
	// the reported site keeps its numeric tag
	if got, want := ds.Identifications[0].ModifiedSequence, "NH2-AC<3>K-COOH"; got != want {
		t.Errorf("modified sequence = %q, want %q", got, want)
	}
}

func TestBestHit(t *testing.T) {
	tests := []struct {
		name    string
		evalues []float64
		want    int
	}{
		{"lower second", []float64{0.01, 0.003}, 1},
		{"lower first", []float64{0.003, 0.01}, 0},
		{"tie keeps first", []float64{0.5, 0.2, 0.2}, 1},
		{"single", []float64{3}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var hits []omssa.Hit
			for i, e := range tt.evalues {
				hits = append(hits, omssa.Hit{EValue: e, Sequence: fmt.Sprintf("PEP%d", i)})
			}
			got, ok := BestHit(hits)
			if !ok || got.Sequence != fmt.Sprintf("PEP%d", tt.want) {
				t.Errorf("BestHit() = %+v, want hit %d", got, tt.want)
			}
		})
	}
	if _, ok := BestHit(nil); ok {
		t.Error("BestHit(nil) should report no hit")
	}
}

// cancellingProgress cancels the pipeline on the nth advance
type cancellingProgress struct {
	p     *Pipeline
	n     int
	count int
}

func (c *cancellingProgress) SetTotal(int)    {}
func (c *cancellingProgress) SetLabel(string) {}
func (c *cancellingProgress) Advance() {
	c.count++
	if c.count == c.n {
		c.p.Cancel()
	}
}

func TestRunCancelRemovesDataset(t *testing.T) {
	p := mascotPipeline(map[string]*fakeMascot{
		"a.dat": newFakeMascot(4, 1, 2, 3, 4),
		"b.dat": newFakeMascot(2, 1, 2),
	})
	p.SetProgress(&cancellingProgress{p: p, n: 3})
	out := filepath.Join(t.TempDir(), "dataset")

	res, err := p.Run(context.Background(), Request{Files: touch(t, "a.dat", "b.dat"), Output: out, Format: FormatMascot})
	if err != nil {
		t.Fatalf("Run() error = %v, cancellation is not an error", err)
	}
	if res.State != StateCancelled || p.State() != StateCancelled {
		t.Errorf("state = %v / %v, want cancelled", res.State, p.State())
	}
	if res.Files != 0 {
		t.Errorf("Files = %d, want 0", res.Files)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("dataset folder survived cancellation: %v", err)
	}
}

func TestRunContextCancelled(t *testing.T) {
	p := mascotPipeline(map[string]*fakeMascot{"a.dat": newFakeMascot(2, 1, 2)})
	out := filepath.Join(t.TempDir(), "dataset")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Run(ctx, Request{Files: touch(t, "a.dat"), Output: out, Format: FormatMascot})
	if err != nil || res.State != StateCancelled {
		t.Fatalf("Run() = %+v, %v; want cancelled", res, err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Error("dataset folder survived cancellation")
	}

	// the pipeline accepts a new run afterwards
	res, err = p.Run(context.Background(), Request{Files: touch(t, "a.dat"), Output: out, Format: FormatMascot})
	if err != nil || res.State != StateCompleted {
		t.Errorf("second Run() = %+v, %v", res, err)
	}
}

func TestRunFailureRemovesDataset(t *testing.T) {
	broken := newFakeMascot(2, 1, 2)
	broken.queryErr = errors.New("read error")
	p := mascotPipeline(map[string]*fakeMascot{
		"a.dat": newFakeMascot(2, 1),
		"b.dat": broken,
	})
	out := filepath.Join(t.TempDir(), "dataset")
	paths := touch(t, "a.dat", "b.dat")

	res, err := p.Run(context.Background(), Request{Files: paths, Output: out, Format: FormatMascot})
	if err == nil {
		t.Fatal("expected an error")
	}
	var fe *FileError
	if !errors.As(err, &fe) || fe.Path != paths[1] || fe.Op != "import" {
		t.Errorf("error = %v, want FileError for %s", err, paths[1])
	}
	if res.State != StateFailed || res.Files != 1 {
		t.Errorf("result = %+v", res)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Error("dataset folder survived the failure")
	}
}

func TestRunResourceExhausted(t *testing.T) {
	p := New()
	p.openMascot = func(string, mascot.Options) (MascotFile, error) {
		return nil, fmt.Errorf("failed to read: %w", bufio.ErrTooLong)
	}
	out := filepath.Join(t.TempDir(), "dataset")
	_, err := p.Run(context.Background(), Request{Files: touch(t, "big.dat"), Output: out, Format: FormatMascot})
	if !errors.Is(err, ErrResourceExhausted) {
		t.Errorf("error = %v, want ErrResourceExhausted", err)
	}
	if _, err := os.Stat(out); !errors.Is(err, os.ErrNotExist) {
		t.Error("dataset folder survived the failure")
	}
}

func TestRunValidation(t *testing.T) {
	inputs := touch(t, "a.dat", "run.omx", "mods.xml")
	existing := t.TempDir()
	fresh := filepath.Join(t.TempDir(), "dataset")

	tests := []struct {
		name string
		req  Request
		want error
	}{
		{"no files", Request{Output: fresh}, ErrNoInputFiles},
		{"no output", Request{Files: inputs[:1]}, ErrNoOutput},
		{"existing output", Request{Files: inputs[:1], Output: existing}, ErrDatasetExists},
		{"missing input", Request{Files: []string{filepath.Join(existing, "nope.dat")}, Output: fresh}, os.ErrNotExist},
		{"unknown format", Request{Files: inputs[:1], Output: fresh, Format: Format(9)}, ErrUnknownFormat},
		{"omssa without mods", Request{Files: inputs[1:2], Output: fresh, Format: FormatOmssa}, ErrMissingCompanion},
		{"omssa missing usermods", Request{
			Files: inputs[1:2], Output: fresh, Format: FormatOmssa,
			Options: Options{ModsFile: inputs[2], UserModsFile: filepath.Join(existing, "usermods.xml")},
		}, ErrMissingCompanion},
		{"bad filter", Request{Files: inputs[:1], Output: fresh, Options: Options{Filter: &filter.Config{IonTypes: []string{"q"}}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mascotPipeline(nil)
			_, err := p.Run(context.Background(), tt.req)
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if _, err := os.Stat(fresh); !errors.Is(err, os.ErrNotExist) {
				t.Error("output folder created for an invalid request")
			}
		})
	}
}

func TestRunFilter(t *testing.T) {
	p := mascotPipeline(map[string]*fakeMascot{"a.dat": newFakeMascot(2, 1, 2)})
	out := filepath.Join(t.TempDir(), "dataset")
	res, err := p.Run(context.Background(), Request{
		Files:   touch(t, "a.dat"),
		Output:  out,
		Format:  FormatMascot,
		Options: Options{Filter: &filter.Config{IonTypes: []string{"y"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.FragmentIons != 2 {
		t.Errorf("FragmentIons = %d, want 2", res.FragmentIons)
	}
	ds, err := flatfile.Check(out)
	if err != nil {
		t.Fatal(err)
	}
	for i, ion := range ds.FragmentIons {
		if ion.Label != "y1" || ion.ID != i+1 {
			t.Errorf("ion %d = %+v", i, ion)
		}
	}
}

// recordingMirror keeps what it is sent
type recordingMirror struct {
	spectra, idents, ions int
	finalized, discarded  bool
}

func (m *recordingMirror) WriteSpectrum(int, *core.SpectrumPeakList) error { m.spectra++; return nil }
func (m *recordingMirror) WriteIdentification(*core.Identification) error  { m.idents++; return nil }
func (m *recordingMirror) WriteFragmentIon(*core.FragmentIonRecord) error  { m.ions++; return nil }
func (m *recordingMirror) Finalize() error                                 { m.finalized = true; return nil }
func (m *recordingMirror) Discard() error                                  { m.discarded = true; return nil }

func TestRunMirror(t *testing.T) {
	p := mascotPipeline(map[string]*fakeMascot{"a.dat": newFakeMascot(3, 1, 2)})
	m := &recordingMirror{}
	p.AddMirror(m)
	out := filepath.Join(t.TempDir(), "dataset")
	if _, err := p.Run(context.Background(), Request{Files: touch(t, "a.dat"), Output: out, Format: FormatMascot}); err != nil {
		t.Fatal(err)
	}
	if m.spectra != 2 || m.idents != 2 || m.ions != 4 || !m.finalized || m.discarded {
		t.Errorf("mirror = %+v", m)
	}

	p = mascotPipeline(map[string]*fakeMascot{"a.dat": newFakeMascot(3, 1, 2)})
	m = &recordingMirror{}
	p.AddMirror(m)
	p.SetProgress(&cancellingProgress{p: p, n: 1})
	out = filepath.Join(t.TempDir(), "dataset")
	if _, err := p.Run(context.Background(), Request{Files: touch(t, "a.dat"), Output: out, Format: FormatMascot}); err != nil {
		t.Fatal(err)
	}
	if m.finalized || !m.discarded {
		t.Errorf("cancelled mirror = %+v", m)
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]Format{"mascot": FormatMascot, "DAT": FormatMascot, " omssa ": FormatOmssa, "omx": FormatOmssa}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("mgf"); !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("ParseFormat(mgf) error = %v", err)
	}
	if f, err := DetectFormat("/data/F001234.DAT"); err != nil || f != FormatMascot {
		t.Errorf("DetectFormat() = %v, %v", f, err)
	}
}
