// Package mascot reads Mascot result (DAT) files: the MIME multipart layout
// with parameters, masses, summary, peptides and per-query sections.
package mascot

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

// DefaultIndexThreshold is the file size above which sections are read
// through an offset index instead of being loaded into memory.
const DefaultIndexThreshold int64 = 40 * 1024 * 1024

// fixedModIDBase separates fixed modification ids from variable (delta) ids
const fixedModIDBase = 1000

var (
	ErrNotMascot    = errors.New("mascot: not a Mascot result file")
	ErrNoSuchQuery  = errors.New("mascot: query not found")
	ErrInvalidEntry = errors.New("mascot: invalid entry")
)

// Options controls how a DAT file is opened
type Options struct {
	IndexThreshold int64 // 0 = DefaultIndexThreshold
	Logger         *zap.Logger
}

// Query is one spectrum searched by Mascot
type Query struct {
	Number   int
	Title    string
	Spectrum core.SpectrumPeakList
}

// PeptideHit is the top ranked peptide of a query
type PeptideHit struct {
	Query            int
	Sequence         string
	ModifiedSequence string
	PeptideMr        float64
	IonsMatched      int
	PeaksUsed        int // most intense peaks of Ions1 used for scoring
	IonsScore        float64
	QMatch           float64 // number of candidate peptides for the query
	Deltas           []float64
}

// IdentityThreshold returns the Mascot identity score at significance alpha
func (h *PeptideHit) IdentityThreshold(alpha float64) float64 {
	qmatch := h.QMatch
	if qmatch < 1 {
		qmatch = 1
	}
	return 10 * math.Log10(qmatch/alpha)
}

// ScoresAboveIdentityThreshold reports whether the ions score reaches the
// identity threshold at significance alpha (for example 0.05)
func (h *PeptideHit) ScoresAboveIdentityThreshold(alpha float64) bool {
	if alpha <= 0 || alpha >= 1 {
		return false
	}
	return h.IonsScore >= h.IdentityThreshold(alpha)
}

// Reader provides access to a parsed DAT file
type Reader struct {
	path    string
	file    *os.File // open only in indexed mode
	store   sectionStore
	indexed bool
	logger  *zap.Logger

	params  section
	summary section
	hits    section

	queries   int
	catalog   *core.ModCatalog
	fixed     []core.FixedMod
	tolerance float64
	ppm       bool
}

// Open parses the DAT file at path
func Open(path string, opts Options) (*Reader, error) {
	threshold := opts.IndexThreshold
	if threshold <= 0 {
		threshold = DefaultIndexThreshold
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	r := &Reader{path: path, logger: logger}
	if info.Size() > threshold {
		ix, err := buildIndex(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to index %s: %w", path, err)
		}
		r.store, r.file, r.indexed = ix, f, true
	} else {
		mem, err := loadMemory(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		r.store = mem
	}

	if err := r.init(); err != nil {
		r.Close()
		return nil, err
	}

	logger.Debug("mascot file opened",
		zap.String("file", path),
		zap.Int64("size", info.Size()),
		zap.Bool("indexed", r.indexed),
		zap.Int("queries", r.queries))
	return r, nil
}

func (r *Reader) init() error {
	var ok bool
	var err error

	if r.params, ok, err = r.store.section("parameters"); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s has no parameters section", ErrNotMascot, r.path)
	}
	if r.summary, _, err = r.store.section("summary"); err != nil {
		return err
	}
	peptides, _, err := r.store.section("peptides")
	if err != nil {
		return err
	}
	// keep only the best hit of every query
	r.hits = make(section)
	for k, v := range peptides {
		if strings.HasPrefix(k, "q") && strings.HasSuffix(k, "_p1") && strings.Count(k, "_") == 1 {
			r.hits[k] = v
		}
	}

	header, _, err := r.store.section("header")
	if err != nil {
		return err
	}
	if n, err := strconv.Atoi(header["queries"]); err == nil {
		r.queries = n
	} else {
		for k := range r.summary {
			if strings.HasPrefix(k, "qexp") {
				r.queries++
			}
		}
	}

	masses, _, err := r.store.section("masses")
	if err != nil {
		return err
	}
	r.catalog, r.fixed = parseModifications(masses)

	if tol, err := strconv.ParseFloat(r.params["ITOL"], 64); err == nil {
		r.tolerance = tol
	} else {
		r.tolerance = 0.5
	}
	switch strings.ToLower(r.params["ITOLU"]) {
	case "mmu":
		r.tolerance /= 1000
	case "ppm":
		r.ppm = true
	}
	return nil
}

// Indexed reports whether sections are read through the offset index
func (r *Reader) Indexed() bool {
	return r.indexed
}

// Instrument returns the instrument type searched, or "" if absent
func (r *Reader) Instrument() string {
	return r.params["INSTRUMENT"]
}

// NumQueries returns the number of queries; queries are numbered from 1
func (r *Reader) NumQueries() int {
	return r.queries
}

// Modifications returns the fixed and variable modifications of the search
func (r *Reader) Modifications() *core.ModCatalog {
	return r.catalog
}

// Query returns query n with its peak list and precursor
func (r *Reader) Query(n int) (*Query, error) {
	if n < 1 || n > r.queries {
		return nil, ErrNoSuchQuery
	}
	s, ok, err := r.store.section(fmt.Sprintf("query%d", n))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchQuery, n)
	}

	q := &Query{Number: n}
	if title, err := url.QueryUnescape(s["title"]); err == nil {
		q.Title = title
	} else {
		q.Title = s["title"]
	}

	q.Spectrum.Charge = parseCharge(s["charge"])
	if exp := r.summary[fmt.Sprintf("qexp%d", n)]; exp != "" {
		parts := strings.SplitN(exp, ",", 2)
		if mz, err := strconv.ParseFloat(parts[0], 64); err == nil {
			q.Spectrum.PrecursorMZ = mz
		}
		if len(parts) == 2 {
			if z := parseCharge(parts[1]); z != 0 {
				q.Spectrum.Charge = z
			}
		}
	}
	if v, err := strconv.ParseFloat(r.summary[fmt.Sprintf("qintensity%d", n)], 64); err == nil {
		q.Spectrum.PrecursorIntensity = v
	}

	peaks, err := parsePeaks(s["Ions1"])
	if err != nil {
		return nil, fmt.Errorf("query %d: %w", n, err)
	}
	q.Spectrum.Peaks = peaks
	return q, nil
}

// BestHit returns the top ranked peptide of query n, or nil if it has none
func (r *Reader) BestHit(n int) (*PeptideHit, error) {
	raw, ok := r.hits[fmt.Sprintf("q%d_p1", n)]
	if !ok || raw == "-1" {
		return nil, nil
	}

	fields := strings.Split(strings.SplitN(raw, ";", 2)[0], ",")
	if len(fields) < 8 {
		return nil, fmt.Errorf("%w: q%d_p1 has %d fields", ErrInvalidEntry, n, len(fields))
	}

	h := &PeptideHit{Query: n, Sequence: fields[4]}
	var err error
	if h.PeptideMr, err = strconv.ParseFloat(fields[1], 64); err != nil {
		return nil, fmt.Errorf("%w: q%d_p1 peptide mass: %v", ErrInvalidEntry, n, err)
	}
	if h.IonsMatched, err = strconv.Atoi(fields[3]); err != nil {
		return nil, fmt.Errorf("%w: q%d_p1 ions matched: %v", ErrInvalidEntry, n, err)
	}
	if h.PeaksUsed, err = strconv.Atoi(fields[5]); err != nil {
		return nil, fmt.Errorf("%w: q%d_p1 peaks used: %v", ErrInvalidEntry, n, err)
	}
	if h.IonsScore, err = strconv.ParseFloat(fields[7], 64); err != nil {
		return nil, fmt.Errorf("%w: q%d_p1 ions score: %v", ErrInvalidEntry, n, err)
	}
	if v, err := strconv.ParseFloat(r.summary[fmt.Sprintf("qmatch%d", n)], 64); err == nil {
		h.QMatch = v
	}

	variable := parseModString(fields[6], len(h.Sequence))
	mods := core.BuildModificationMap(h.Sequence, r.fixed, variable, r.catalog)
	h.ModifiedSequence = mods.Render(h.Sequence, r.catalog)
	h.Deltas = mods.SiteDeltas(len(h.Sequence), r.catalog)
	return h, nil
}

// Close releases the file held open in indexed mode
func (r *Reader) Close() error {
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// parseCharge reads charges such as "2+", "3-" or "1", dropping the sign
func parseCharge(s string) int {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(strings.TrimLeft(s, "+-"), "+-")
	z, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return z
}

// parsePeaks reads an Ions1 value: "mz:intensity,mz:intensity,..."
func parsePeaks(s string) ([]core.Peak, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	peaks := make([]core.Peak, 0, len(parts))
	for _, p := range parts {
		mzStr, intStr, ok := strings.Cut(p, ":")
		if !ok {
			return nil, fmt.Errorf("%w: peak %q", ErrInvalidEntry, p)
		}
		mz, err := strconv.ParseFloat(mzStr, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: peak m/z %q", ErrInvalidEntry, mzStr)
		}
		intensity, err := strconv.ParseFloat(intStr, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: peak intensity %q", ErrInvalidEntry, intStr)
		}
		peaks = append(peaks, core.Peak{MZ: mz, Intensity: intensity})
	}
	return peaks, nil
}

// parseModifications builds the catalog from the masses section:
// deltaN=mass,Name (Site) for variable and FixedModN / FixedModResiduesN for
// fixed modifications.
func parseModifications(masses section) (*core.ModCatalog, []core.FixedMod) {
	catalog := core.NewModCatalog()
	var fixed []core.FixedMod

	for i := 1; ; i++ {
		v, ok := masses[fmt.Sprintf("delta%d", i)]
		if !ok {
			break
		}
		catalog.Add(modInfo(i, v))
	}

	for i := 1; ; i++ {
		v, ok := masses[fmt.Sprintf("FixedMod%d", i)]
		if !ok {
			break
		}
		info := modInfo(fixedModIDBase+i, v)
		residues := masses[fmt.Sprintf("FixedModResidues%d", i)]
		if strings.Contains(residues, "_term") {
			residues = ""
		}
		info.Residues = residues
		catalog.Add(info)
		fixed = append(fixed, core.FixedMod{ID: info.ID, Residues: residues})
	}

	return catalog, fixed
}

func modInfo(id int, value string) core.ModInfo {
	massStr, name, _ := strings.Cut(value, ",")
	mass, _ := strconv.ParseFloat(massStr, 64)

	info := core.ModInfo{ID: id, Name: name, MonoMass: mass, Kind: core.ModInternal}
	info.Tag = strings.TrimSpace(name)
	if i := strings.Index(info.Tag, " ("); i > 0 {
		info.Tag = info.Tag[:i]
	}
	switch {
	case strings.Contains(name, "N-term"):
		info.Kind = core.ModNTerminal
	case strings.Contains(name, "C-term"):
		info.Kind = core.ModCTerminal
	}
	return info
}

// parseModString converts the variable modification string of a peptide
// line into sites. Position 0 is the N-terminus and position len+1 the
// C-terminus; digits 1-9 and letters A-W index the delta modifications.
func parseModString(s string, seqLen int) []core.VariableMod {
	var mods []core.VariableMod
	for i := 0; i < len(s); i++ {
		c := s[i]
		var id int
		switch {
		case c >= '1' && c <= '9':
			id = int(c - '0')
		case c >= 'A' && c <= 'W':
			id = int(c-'A') + 10
		default:
			continue
		}
		site := i - 1
		if i == 0 {
			site = 0
		}
		if site >= seqLen {
			site = seqLen - 1
		}
		mods = append(mods, core.VariableMod{Site: site, ID: id})
	}
	return mods
}
