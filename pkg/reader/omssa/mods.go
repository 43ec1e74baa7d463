package omssa

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/net/html/charset"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

// MSModType codes
const (
	modAA = iota
	modN
	modNAA
	modC
	modCAA
	modNP
	modNPAA
	modCP
	modCPAA
)

// modKind classifies an MSModType code
func modKind(code int) core.ModKind {
	switch code {
	case modN, modNAA, modNP, modNPAA:
		return core.ModNTerminal
	case modC, modCAA, modCP, modCPAA:
		return core.ModCTerminal
	}
	return core.ModInternal
}

// LoadModCatalog reads mods.xml and usermods.xml style files into one
// catalog. Later files override ids defined by earlier ones.
func LoadModCatalog(paths ...string) (*core.ModCatalog, error) {
	catalog := core.NewModCatalog()
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		err = ReadMods(f, catalog)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
	}
	return catalog, nil
}

// ReadMods adds the modification definitions in reader to catalog.
// OMSSA modifications carry no short tag, so they render by id.
func ReadMods(reader io.Reader, catalog *core.ModCatalog) error {
	var set modSpecSet
	d := xml.NewDecoder(reader)
	d.CharsetReader = charset.NewReaderLabel
	if err := d.Decode(&set); err != nil {
		return err
	}

	for _, spec := range set.Specs {
		id, err := spec.Mod.code()
		if err != nil {
			return fmt.Errorf("modification %q: %w", spec.Name, err)
		}
		kind := core.ModInternal
		if t, err := spec.Type.code(); err == nil {
			kind = modKind(t)
		}
		catalog.Add(core.ModInfo{
			ID:       id,
			Name:     strings.TrimSpace(spec.Name),
			Kind:     kind,
			MonoMass: spec.MonoMass,
			Residues: strings.Join(trimAll(spec.Residues), ""),
		})
	}
	return nil
}

// FixedMods returns the fixed modifications of the search with the residues
// they apply to. Terminal modifications apply to the terminal residue only,
// and only when it is one of their residues. Ids missing from catalog get
// no residues.
func FixedMods(s Settings, catalog *core.ModCatalog) []core.FixedMod {
	out := make([]core.FixedMod, 0, len(s.Fixed))
	for _, id := range s.Fixed {
		fm := core.FixedMod{ID: id}
		if info, ok := catalog.Lookup(id); ok {
			fm.Residues = info.Residues
		}
		out = append(out, fm)
	}
	return out
}
