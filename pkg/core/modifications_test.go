package core

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func testCatalog() *ModCatalog {
	c := NewModCatalog()
	c.Add(ModInfo{ID: 35, Kind: ModInternal, Residues: "M", MonoMass: 15.994915})
	c.Add(ModInfo{ID: 3, Name: "carbamidomethyl C", Tag: "Cmm", Kind: ModInternal, Residues: "C", MonoMass: 57.021464})
	c.Add(ModInfo{ID: 10, Name: "acetyl N-term", Tag: "Ace", Kind: ModNTerminal, MonoMass: 42.010565})
	c.Add(ModInfo{ID: 11, Name: "amidation C-term", Tag: "Ami", Kind: ModCTerminal, MonoMass: -0.984016})
	return c
}

func TestResolveSequence(t *testing.T) {
	catalog := testCatalog()

	tests := []struct {
		name     string
		sequence string
		fixed    []FixedMod
		variable []VariableMod
		catalog  *ModCatalog
		want     string
	}{
		{
			name:     "no modifications",
			sequence: "PEPTIDE",
			catalog:  catalog,
			want:     "NH2-PEPTIDE-COOH",
		},
		{
			name:     "no modifications nil catalog",
			sequence: "PEPTIDE",
			want:     "NH2-PEPTIDE-COOH",
		},
		{
			name:     "fixed modification on every M",
			sequence: "AMTM",
			fixed:    []FixedMod{{ID: 35, Residues: "M"}},
			catalog:  catalog,
			want:     "NH2-AM<35>TM<35>-COOH",
		},
		{
			name:     "variable modification with display tag",
			sequence: "ACDC",
			variable: []VariableMod{{Site: 3, ID: 3}},
			catalog:  catalog,
			want:     "NH2-ACDC<Cmm>-COOH",
		},
		{
			name:     "terminal modifications",
			sequence: "PEPTIDE",
			variable: []VariableMod{{Site: 0, ID: 10}, {Site: 6, ID: 11}},
			catalog:  catalog,
			want:     "<Ace>-PEPTIDE-<Ami>",
		},
		{
			name:     "fixed terminal modification without residues",
			sequence: "PEPTIDE",
			fixed:    []FixedMod{{ID: 10}},
			catalog:  catalog,
			want:     "<Ace>-PEPTIDE-COOH",
		},
		{
			name:     "fixed N-terminal modification on a matching residue",
			sequence: "MKR",
			fixed:    []FixedMod{{ID: 10, Residues: "M"}},
			catalog:  catalog,
			want:     "<Ace>-MKR-COOH",
		},
		{
			name:     "fixed N-terminal modification skips other residues",
			sequence: "AKM",
			fixed:    []FixedMod{{ID: 10, Residues: "M"}},
			catalog:  catalog,
			want:     "NH2-AKM-COOH",
		},
		{
			name:     "fixed C-terminal modification restricted to residues",
			sequence: "KAK",
			fixed:    []FixedMod{{ID: 11, Residues: "K"}},
			catalog:  catalog,
			want:     "NH2-KAK-<Ami>",
		},
		{
			name:     "unknown variable id renders numeric inline",
			sequence: "AMK",
			variable: []VariableMod{{Site: 1, ID: 99}},
			catalog:  catalog,
			want:     "NH2-AM<99>K-COOH",
		},
		{
			name:     "fixed and variable on the same site keep order",
			sequence: "MK",
			fixed:    []FixedMod{{ID: 35, Residues: "M"}},
			variable: []VariableMod{{Site: 0, ID: 99}},
			catalog:  catalog,
			want:     "NH2-M<35><99>K-COOH",
		},
		{
			name:     "out of range site is clamped",
			sequence: "AK",
			variable: []VariableMod{{Site: 7, ID: 99}},
			catalog:  catalog,
			want:     "NH2-AK<99>-COOH",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResolveSequence(tt.sequence, tt.fixed, tt.variable, tt.catalog)
			if got != tt.want {
				t.Errorf("ResolveSequence() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildModificationMap(t *testing.T) {
	catalog := testCatalog()
	got := BuildModificationMap("CMCM", []FixedMod{{ID: 3, Residues: "C"}}, []VariableMod{{Site: 1, ID: 35}}, catalog)
	want := ModificationMap{0: {3}, 1: {35}, 2: {3}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BuildModificationMap() mismatch (-want +got):\n%s", diff)
	}

	deltas := got.SiteDeltas(4, catalog)
	wantDeltas := []float64{57.021464, 15.994915, 57.021464, 0}
	if diff := cmp.Diff(wantDeltas, deltas); diff != "" {
		t.Errorf("SiteDeltas() mismatch (-want +got):\n%s", diff)
	}
}

func TestModCatalog(t *testing.T) {
	c := testCatalog()
	if c.Len() != 4 {
		t.Errorf("Len() = %d, want 4", c.Len())
	}
	if diff := cmp.Diff([]int{3, 10, 11, 35}, c.IDs()); diff != "" {
		t.Errorf("IDs() mismatch (-want +got):\n%s", diff)
	}
	var nilCatalog *ModCatalog
	if _, ok := nilCatalog.Lookup(1); ok {
		t.Error("nil catalog lookup should fail")
	}
	info, _ := c.Lookup(35)
	if info.DisplayTag() != "35" {
		t.Errorf("DisplayTag() = %q, want 35", info.DisplayTag())
	}
}

func TestFixedModPlaceable(t *testing.T) {
	catalog := testCatalog()
	tests := []struct {
		name string
		mod  FixedMod
		want bool
	}{
		{"internal with residues", FixedMod{ID: 3, Residues: "C"}, true},
		{"terminal without residues", FixedMod{ID: 10}, true},
		{"terminal with residues", FixedMod{ID: 11, Residues: "K"}, true},
		{"unknown without residues", FixedMod{ID: 77}, false},
		{"unknown with residues", FixedMod{ID: 77, Residues: "S"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.mod.Placeable(catalog); got != tt.want {
				t.Errorf("Placeable() = %v, want %v", got, tt.want)
			}
		})
	}
	if (FixedMod{ID: 10}).Placeable(nil) {
		t.Error("nil catalog knows no terminal modification")
	}
}
