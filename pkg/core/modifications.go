// Package core provides modification metadata and sequence annotation
package core

import (
	"sort"
	"strconv"
	"strings"
)

// ModKind classifies where a modification is rendered in an annotated sequence.
type ModKind int

const (
	ModInternal ModKind = iota
	ModNTerminal
	ModCTerminal
)

// ModInfo is the metadata of one modification as supplied by the source format.
type ModInfo struct {
	ID       int
	Name     string
	Tag      string // display tag; empty renders the numeric id
	Kind     ModKind
	MonoMass float64
	Residues string // residues a fixed modification applies to
}

// DisplayTag returns the text placed between angle brackets.
func (m ModInfo) DisplayTag() string {
	if m.Tag != "" {
		return m.Tag
	}
	return strconv.Itoa(m.ID)
}

// ModCatalog stores modification definitions by id
type ModCatalog struct {
	mods map[int]ModInfo
}

// NewModCatalog creates an empty modification catalog
func NewModCatalog() *ModCatalog {
	return &ModCatalog{
		mods: make(map[int]ModInfo),
	}
}

// Add adds or updates a modification
func (c *ModCatalog) Add(info ModInfo) {
	c.mods[info.ID] = info
}

// Lookup returns the metadata for a modification id. A nil catalog has no entries.
func (c *ModCatalog) Lookup(id int) (ModInfo, bool) {
	if c == nil {
		return ModInfo{}, false
	}
	info, ok := c.mods[id]
	return info, ok
}

// Len returns the number of modifications in the catalog
func (c *ModCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.mods)
}

// IDs returns all modification ids in ascending order
func (c *ModCatalog) IDs() []int {
	if c == nil {
		return nil
	}
	ids := make([]int, 0, len(c.mods))
	for id := range c.mods {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// FixedMod is a modification applied to every occurrence of its residues.
// A terminal modification applies to the first or last residue, restricted
// to Residues when they are given.
type FixedMod struct {
	ID       int
	Residues string
}

// Placeable reports whether the modification can be put on a sequence:
// a terminal modification known to catalog, or one with residues.
func (fm FixedMod) Placeable(catalog *ModCatalog) bool {
	info, ok := catalog.Lookup(fm.ID)
	if ok && (info.Kind == ModNTerminal || info.Kind == ModCTerminal) {
		return true
	}
	return fm.Residues != ""
}

// VariableMod is a modification reported at one 0-based site.
type VariableMod struct {
	Site int
	ID   int
}

// ModificationMap maps a 0-based residue index to the modification ids
// applied at that site, in the order they were applied.
type ModificationMap map[int][]int

// BuildModificationMap places fixed and variable modifications on the sequence.
// Sites outside the sequence are clamped to the nearest terminus.
func BuildModificationMap(sequence string, fixed []FixedMod, variable []VariableMod, catalog *ModCatalog) ModificationMap {
	mods := make(ModificationMap)
	n := len(sequence)
	if n == 0 {
		return mods
	}

	for _, fm := range fixed {
		if info, ok := catalog.Lookup(fm.ID); ok && (info.Kind == ModNTerminal || info.Kind == ModCTerminal) {
			site := 0
			if info.Kind == ModCTerminal {
				site = n - 1
			}
			if fm.Residues == "" || strings.IndexByte(fm.Residues, sequence[site]) >= 0 {
				mods[site] = append(mods[site], fm.ID)
			}
			continue
		}
		for i := 0; i < n; i++ {
			if strings.IndexByte(fm.Residues, sequence[i]) >= 0 {
				mods[i] = append(mods[i], fm.ID)
			}
		}
	}

	for _, vm := range variable {
		site := vm.Site
		if site < 0 {
			site = 0
		}
		if site >= n {
			site = n - 1
		}
		mods[site] = append(mods[site], vm.ID)
	}

	return mods
}

// Render writes the annotated sequence: each residue followed by its internal
// modification tags in angle brackets, N-terminal tags collected before the
// sequence and C-terminal tags after it. Ids missing from the catalog render
// inline as their number.
func (m ModificationMap) Render(sequence string, catalog *ModCatalog) string {
	var body, nterm, cterm strings.Builder

	for i := 0; i < len(sequence); i++ {
		body.WriteByte(sequence[i])
		for _, id := range m[i] {
			info, ok := catalog.Lookup(id)
			if !ok {
				info = ModInfo{ID: id}
			}
			tag := "<" + info.DisplayTag() + ">"
			switch info.Kind {
			case ModNTerminal:
				nterm.WriteString(tag)
			case ModCTerminal:
				cterm.WriteString(tag)
			default:
				body.WriteString(tag)
			}
		}
	}

	var out strings.Builder
	if nterm.Len() == 0 {
		out.WriteString("NH2-")
	} else {
		out.WriteString(nterm.String())
		out.WriteString("-")
	}
	out.WriteString(body.String())
	if cterm.Len() == 0 {
		out.WriteString("-COOH")
	} else {
		out.WriteString("-")
		out.WriteString(cterm.String())
	}
	return out.String()
}

// ResolveSequence returns the annotated form of an unmodified peptide sequence.
func ResolveSequence(sequence string, fixed []FixedMod, variable []VariableMod, catalog *ModCatalog) string {
	return BuildModificationMap(sequence, fixed, variable, catalog).Render(sequence, catalog)
}

// SiteDeltas returns the summed modification mass at each residue, for
// fragment ladder computation. Unknown ids contribute no mass.
func (m ModificationMap) SiteDeltas(n int, catalog *ModCatalog) []float64 {
	deltas := make([]float64, n)
	for site, ids := range m {
		if site < 0 || site >= n {
			continue
		}
		for _, id := range ids {
			if info, ok := catalog.Lookup(id); ok {
				deltas[site] += info.MonoMass
			}
		}
	}
	return deltas
}
