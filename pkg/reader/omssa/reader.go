// Package omssa reads OMSSA search results (OMX XML files) and the OMSSA
// modification definitions (mods.xml and usermods.xml).
package omssa

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

var (
	ErrNoRequest = errors.New("omssa: file has no search request")
	ErrBadEnum   = errors.New("omssa: invalid enumeration value")
)

// neutral loss codes of MSIonNeutralLoss
const (
	lossWater   = 0
	lossAmmonia = 1
)

// Settings are the search parameters of the OMSSA run
type Settings struct {
	MSMSTolerance float64 // fragment tolerance in Da
	Fixed         []int   // fixed modification ids
	Variable      []int   // variable modification ids
	IonTypes      []core.IonType
}

// Spectrum is one searched spectrum. M/z values are kept in the integer
// scale of the file; divide by File.Scale to get Da.
type Spectrum struct {
	Number         int
	Charges        []int
	PrecursorMZ    float64
	MZ             []float64
	Abundance      []float64
	IntensityScale float64 // abundance divisor, 1 when absent
	IDs            []string
}

// Charge returns the first candidate precursor charge, 0 if none
func (s *Spectrum) Charge() int {
	if len(s.Charges) == 0 {
		return 0
	}
	return s.Charges[0]
}

// Peaks returns the peak list in file scale
func (s *Spectrum) Peaks() []core.Peak {
	n := len(s.MZ)
	if len(s.Abundance) < n {
		n = len(s.Abundance)
	}
	peaks := make([]core.Peak, n)
	for i := 0; i < n; i++ {
		peaks[i] = core.Peak{MZ: s.MZ[i], Intensity: s.Abundance[i]}
	}
	return peaks
}

// Hit is one peptide reported for a spectrum
type Hit struct {
	EValue   float64
	PValue   float64
	Charge   int
	Sequence string
	Mods     []ModHit
	MZHits   []MZHit
}

// ModHit is a modification reported at a 0-based site of a hit
type ModHit struct {
	Site int
	ID   int
}

// MZHit is a theoretical fragment ion OMSSA matched for a hit
type MZHit struct {
	Ion      core.IonType
	Charge   int
	Number   int
	MZ       float64 // theoretical, in file scale
	Loss     core.NeutralLoss
	Immonium string // parent residue of an immonium ion
}

// Theoretical converts the hit into a theoretical ion for matching
func (h MZHit) Theoretical() core.TheoreticalIon {
	ion := core.TheoreticalIon{
		Type:   h.Ion,
		Number: h.Number,
		Charge: h.Charge,
		Loss:   h.Loss,
		MZ:     h.MZ,
		Parent: h.Immonium,
	}
	if h.Immonium != "" {
		ion.Type = core.IonImmonium
	}
	return ion
}

// File is a decoded OMX file
type File struct {
	settings Settings
	scale    float64
	spectra  []Spectrum
	hits     map[int][]Hit
	hitIDs   map[int][]string
}

// Open reads the OMX file at path
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	omx, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return omx, nil
}

// Read reads OMX content from reader
func Read(reader io.Reader) (*File, error) {
	var content omxContent
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&content); err != nil {
		return nil, err
	}
	if len(content.Request) == 0 {
		return nil, ErrNoRequest
	}

	f := &File{
		scale:  1,
		hits:   make(map[int][]Hit),
		hitIDs: make(map[int][]string),
	}

	req := content.Request[0]
	if req.Settings != nil {
		s, err := convertSettings(req.Settings)
		if err != nil {
			return nil, err
		}
		f.settings = s
	}

	f.spectra = make([]Spectrum, 0, len(req.Spectra))
	for _, s := range req.Spectra {
		iscale := s.IScale
		if iscale == 0 {
			iscale = 1
		}
		f.spectra = append(f.spectra, Spectrum{
			Number:         s.Number,
			Charges:        s.Charge,
			PrecursorMZ:    s.PrecursorMZ,
			MZ:             s.MZ,
			Abundance:      s.Abundance,
			IntensityScale: iscale,
			IDs:            trimAll(s.IDs),
		})
	}

	if len(content.Response) > 0 {
		resp := content.Response[0]
		if resp.Scale != nil && *resp.Scale > 0 {
			f.scale = *resp.Scale
		}
		for _, hs := range resp.HitSets {
			hits := make([]Hit, 0, len(hs.Hits))
			for _, h := range hs.Hits {
				hit, err := convertHit(h)
				if err != nil {
					return nil, fmt.Errorf("hit set %d: %w", hs.Number, err)
				}
				hits = append(hits, hit)
			}
			f.hits[hs.Number] = append(f.hits[hs.Number], hits...)
			if len(hs.IDs) > 0 {
				f.hitIDs[hs.Number] = trimAll(hs.IDs)
			}
		}
	}
	return f, nil
}

// Settings returns the search settings
func (f *File) Settings() Settings {
	return f.settings
}

// Scale returns the response scale m/z values are multiplied by
func (f *File) Scale() float64 {
	return f.scale
}

// Spectra returns the searched spectra in file order
func (f *File) Spectra() []Spectrum {
	return f.spectra
}

// Hits returns the peptide hits of spectrum number, nil if it has none
func (f *File) Hits(number int) []Hit {
	return f.hits[number]
}

// SpectrumIDs returns the ids of spectrum number, falling back to the ids
// recorded with its hit set
func (f *File) SpectrumIDs(number int) []string {
	for i := range f.spectra {
		if f.spectra[i].Number == number && len(f.spectra[i].IDs) > 0 {
			return f.spectra[i].IDs
		}
	}
	return f.hitIDs[number]
}

func convertSettings(s *msSearchSettings) (Settings, error) {
	out := Settings{MSMSTolerance: s.MSMSTolerance}
	var err error
	if out.Fixed, err = enumCodes(s.Fixed); err != nil {
		return out, fmt.Errorf("fixed modifications: %w", err)
	}
	if out.Variable, err = enumCodes(s.Variable); err != nil {
		return out, fmt.Errorf("variable modifications: %w", err)
	}
	codes, err := enumCodes(s.IonsToSearch)
	if err != nil {
		return out, fmt.Errorf("ion types: %w", err)
	}
	for _, c := range codes {
		out.IonTypes = append(out.IonTypes, core.IonTypeFromCode(c))
	}
	return out, nil
}

func convertHit(h msHits) (Hit, error) {
	hit := Hit{
		EValue:   h.EValue,
		PValue:   h.PValue,
		Charge:   h.Charge,
		Sequence: strings.TrimSpace(h.PepString),
	}
	for _, m := range h.Mods {
		id, err := m.ModType.code()
		if err != nil {
			return hit, fmt.Errorf("modification at site %d: %w", m.Site, err)
		}
		hit.Mods = append(hit.Mods, ModHit{Site: m.Site, ID: id})
	}
	for _, mz := range h.MZHits {
		code, err := mz.Ion.code()
		if err != nil {
			return hit, fmt.Errorf("ion type: %w", err)
		}
		ion := MZHit{
			Ion:      core.IonTypeFromCode(code),
			Charge:   mz.Charge,
			Number:   mz.Number,
			MZ:       mz.MZ,
			Immonium: strings.TrimSpace(mz.Immonium),
		}
		if mz.Loss != nil {
			loss, err := mz.Loss.code()
			if err != nil {
				return hit, fmt.Errorf("neutral loss: %w", err)
			}
			switch loss {
			case lossWater:
				ion.Loss = core.LossWater
			case lossAmmonia:
				ion.Loss = core.LossAmmonia
			}
		}
		hit.MZHits = append(hit.MZHits, ion)
	}
	return hit, nil
}

func (e enumValue) code() (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(e.Code))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadEnum, e.Code)
	}
	return v, nil
}

func enumCodes(values []enumValue) ([]int, error) {
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(values))
	for _, v := range values {
		c, err := v.code()
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func trimAll(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
