package importer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
	"github.com/compomics/fragmentation-analyzer/pkg/filter"
	"github.com/compomics/fragmentation-analyzer/pkg/reader/mascot"
	"github.com/compomics/fragmentation-analyzer/pkg/reader/omssa"
	"github.com/compomics/fragmentation-analyzer/pkg/writer/flatfile"
)

// Format selects the reader for the input files
type Format int

const (
	FormatMascot Format = iota
	FormatOmssa
)

func (f Format) String() string {
	switch f {
	case FormatMascot:
		return "mascot"
	case FormatOmssa:
		return "omssa"
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

// ParseFormat converts "mascot" or "omssa" to a Format
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mascot", "dat":
		return FormatMascot, nil
	case "omssa", "omx":
		return FormatOmssa, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownFormat, s)
}

// DetectFormat guesses the format from a file extension
func DetectFormat(path string) (Format, error) {
	return ParseFormat(strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
}

// Options configures the importers
type Options struct {
	Confidence     float64 // Mascot identity threshold confidence, 0 = DefaultConfidence
	IndexThreshold int64   // Mascot file size above which the index-backed reader is used
	Instrument     string  // OMSSA instrument name
	ModsFile       string  // OMSSA mods.xml
	UserModsFile   string  // OMSSA usermods.xml
	Filter         *filter.Config
}

// Request is one import run
type Request struct {
	Files   []string
	Output  string // dataset folder, must not exist
	Format  Format
	Options Options
}

// State of a pipeline
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Result summarizes a run
type Result struct {
	State           State
	Identifications int
	FragmentIons    int
	UnmatchedIons   int
	Files           int // input files fully imported
}

// Pipeline imports result files into a dataset folder, one run at a time
type Pipeline struct {
	logger   *zap.Logger
	progress ProgressSink
	notices  NoticeSink
	mirrors  teeSink

	state atomic.Int32
	mu    sync.Mutex
	rc    *RunContext

	openMascot func(path string, opts mascot.Options) (MascotFile, error)
	openOmssa  func(path string) (OmssaFile, error)
	loadMods   func(paths ...string) (*core.ModCatalog, error)
}

// New creates a pipeline
func New() *Pipeline {
	return &Pipeline{
		logger:   zap.NewNop(),
		progress: NopProgress{},
		openMascot: func(path string, opts mascot.Options) (MascotFile, error) {
			return mascot.Open(path, opts)
		},
		openOmssa: func(path string) (OmssaFile, error) {
			return omssa.Open(path)
		},
		loadMods: omssa.LoadModCatalog,
	}
}

// SetLogger sets the logger
func (p *Pipeline) SetLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	p.logger = logger
}

// SetProgress sets the progress sink
func (p *Pipeline) SetProgress(progress ProgressSink) {
	if progress == nil {
		progress = NopProgress{}
	}
	p.progress = progress
}

// SetNotices sets the sink for non-fatal notices
func (p *Pipeline) SetNotices(notices NoticeSink) {
	p.notices = notices
}

// AddMirror adds a sink that receives a copy of every record written to
// the dataset. Mirrors implementing Finalizer are finalized after the
// dataset; mirrors implementing Discarder are discarded with it.
func (p *Pipeline) AddMirror(sink RecordSink) {
	p.mirrors = append(p.mirrors, sink)
}

// State returns the state of the last run
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Cancel asks the running import to stop. The dataset folder is removed.
func (p *Pipeline) Cancel() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rc != nil {
		p.rc.Cancel()
	}
}

// Run imports the request's files. Cancellation, through Cancel or ctx,
// returns a Result in StateCancelled and a nil error.
func (p *Pipeline) Run(ctx context.Context, req Request) (Result, error) {
	if err := p.validate(req); err != nil {
		return Result{State: p.State()}, err
	}

	var catalog *core.ModCatalog
	if req.Format == FormatOmssa {
		c, err := p.loadMods(req.Options.ModsFile, req.Options.UserModsFile)
		if err != nil {
			return Result{State: p.State()}, fileError(req.Options.ModsFile, "load modifications", err)
		}
		catalog = c
	}

	if f := req.Options.Filter; f != nil {
		if err := f.Compile(); err != nil {
			return Result{State: p.State()}, fmt.Errorf("invalid filter: %w", err)
		}
	}

	return p.execute(ctx, req.Output, func(rc *RunContext, sink RecordSink) (int, error) {
		done := 0
		for _, path := range req.Files {
			if err := rc.checkpoint(); err != nil {
				return done, err
			}
			name := filepath.Base(path)
			rc.progress.SetLabel(name)
			p.logger.Info("importing file",
				zap.String("file", path),
				zap.Stringer("format", req.Format))

			var err error
			switch req.Format {
			case FormatMascot:
				err = p.importMascot(rc, path, req.Options, sink)
			case FormatOmssa:
				err = p.importOmssa(rc, path, req.Options, catalog, sink)
			}
			if err != nil {
				return done, fileError(path, "import", err)
			}
			done++
			p.logger.Info("file imported",
				zap.String("file", path),
				zap.Int("identifications", rc.Identifications()),
				zap.Int("fragment_ions", rc.FragmentIons()))
		}
		return done, nil
	})
}

func (p *Pipeline) importMascot(rc *RunContext, path string, opts Options, sink RecordSink) error {
	f, err := p.openMascot(path, mascot.Options{IndexThreshold: opts.IndexThreshold, Logger: p.logger})
	if err != nil {
		return err
	}
	if c, ok := f.(interface{ Close() error }); ok {
		defer c.Close()
	}
	im := &MascotImporter{Confidence: opts.Confidence, Filter: opts.Filter}
	return im.Import(rc, filepath.Base(path), f, sink)
}

func (p *Pipeline) importOmssa(rc *RunContext, path string, opts Options, catalog *core.ModCatalog, sink RecordSink) error {
	f, err := p.openOmssa(path)
	if err != nil {
		return err
	}
	im := &OmssaImporter{Instrument: opts.Instrument, Catalog: catalog, Filter: opts.Filter}
	return im.Import(rc, filepath.Base(path), f, sink)
}

// validate checks a request before any output is created
func (p *Pipeline) validate(req Request) error {
	if len(req.Files) == 0 {
		return ErrNoInputFiles
	}
	if req.Output == "" {
		return ErrNoOutput
	}
	if req.Format != FormatMascot && req.Format != FormatOmssa {
		return fmt.Errorf("%w: %v", ErrUnknownFormat, req.Format)
	}
	if _, err := os.Stat(req.Output); err == nil {
		return fmt.Errorf("%w: %s", ErrDatasetExists, req.Output)
	}
	for _, path := range req.Files {
		if _, err := os.Stat(path); err != nil {
			return fileError(path, "open", err)
		}
	}
	if req.Format == FormatOmssa {
		for _, path := range []string{req.Options.ModsFile, req.Options.UserModsFile} {
			if path == "" {
				return fmt.Errorf("%w: mods.xml and usermods.xml are required for OMSSA files", ErrMissingCompanion)
			}
			if _, err := os.Stat(path); err != nil {
				return fmt.Errorf("%w: %s: %v", ErrMissingCompanion, path, err)
			}
		}
	}
	return nil
}

// execute runs body against a new dataset folder and applies the state
// machine: the dataset is finalized on success and removed on cancellation
// or failure. body returns the number of inputs fully processed.
func (p *Pipeline) execute(ctx context.Context, output string, body func(rc *RunContext, sink RecordSink) (int, error)) (Result, error) {
	for {
		cur := p.state.Load()
		if State(cur) == StateRunning {
			return Result{State: StateRunning}, ErrRunning
		}
		if p.state.CompareAndSwap(cur, int32(StateRunning)) {
			break
		}
	}

	w, err := flatfile.NewWriter(output)
	if err != nil {
		p.state.Store(int32(StateFailed))
		if errors.Is(err, flatfile.ErrExists) {
			return Result{State: StateFailed}, fmt.Errorf("%w: %s", ErrDatasetExists, output)
		}
		return Result{State: StateFailed}, fileError(output, "create", err)
	}

	rc := NewRunContext(ctx, p.progress, p.notices, p.logger)
	p.mu.Lock()
	p.rc = rc
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.rc = nil
		p.mu.Unlock()
	}()

	sink := append(teeSink{w}, p.mirrors...)
	files, err := body(rc, sink)
	res := Result{
		Identifications: rc.Identifications(),
		FragmentIons:    rc.FragmentIons(),
		UnmatchedIons:   rc.UnmatchedIons(),
		Files:           files,
	}

	if err == nil && rc.Cancelled() {
		err = ErrCancelled
	}
	if err == nil {
		if err = w.Finalize(); err != nil {
			err = fileError(output, "finalize", err)
		} else if err = p.mirrors.Finalize(); err != nil {
			err = fmt.Errorf("failed to finalize mirror: %w", err)
		}
		if err == nil {
			res.State = StateCompleted
			p.state.Store(int32(res.State))
			return res, nil
		}
	}

	if derr := w.Discard(); derr != nil {
		p.logger.Error("failed to remove dataset folder", zap.String("dir", output), zap.Error(derr))
	}
	if derr := p.mirrors.Discard(); derr != nil {
		p.logger.Error("failed to discard mirror", zap.Error(derr))
	}

	if errors.Is(err, ErrCancelled) {
		p.logger.Info("import cancelled", zap.String("dir", output))
		res.State = StateCancelled
		p.state.Store(int32(res.State))
		return res, nil
	}
	p.logger.Error("import failed", zap.String("dir", output), zap.Error(err))
	res.State = StateFailed
	p.state.Store(int32(res.State))
	return res, err
}
