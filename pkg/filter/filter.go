// Package filter provides fragment ion and peak filtering applied before records are written
package filter

import (
	"fmt"
	"strings"

	"github.com/compomics/fragmentation-analyzer/pkg/core"
)

// Config holds filtering configuration
type Config struct {
	IonTypes      []string // Keep only fragment ions of these series (nil = all)
	MinIntensity  float64  // Keep only fragment ions at or above this intensity (0 = no cutoff)
	DropZeroPeaks bool     // Remove zero intensity peaks from written peak lists
	SortPeaks     bool     // Write peak lists in ascending m/z order

	types map[core.IonType]bool
}

// ParseIonTypes splits a comma-separated list such as "b,y" into series names
func ParseIonTypes(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Compile validates the configured ion types
func (c *Config) Compile() error {
	c.types = nil
	if len(c.IonTypes) == 0 {
		return nil
	}

	c.types = make(map[core.IonType]bool, len(c.IonTypes))
	for _, name := range c.IonTypes {
		t, ok := core.ParseIonType(name)
		if !ok {
			return fmt.Errorf("unknown ion type '%s'", name)
		}
		c.types[t] = true
	}
	return nil
}

// Keep reports whether a fragment ion record passes the filter
func (c *Config) Keep(rec *core.FragmentIonRecord) bool {
	if c == nil {
		return true
	}
	if c.MinIntensity > 0 && rec.Intensity < c.MinIntensity {
		return false
	}
	if len(c.IonTypes) > 0 {
		if c.types == nil {
			// not compiled: match the label prefix
			return matchesIonType(rec.Label, c.IonTypes)
		}
		return c.types[rec.Type]
	}
	return true
}

// matchesIonType checks if a label starts with any of the allowed series
func matchesIonType(label string, ionTypes []string) bool {
	if label == "" {
		return false
	}

	for _, ionType := range ionTypes {
		if strings.HasPrefix(label, ionType) {
			return true
		}
	}
	return false
}

// Peaks returns the peak list to write, applying DropZeroPeaks and
// SortPeaks to a copy. spec itself is never modified.
func (c *Config) Peaks(spec *core.SpectrumPeakList) *core.SpectrumPeakList {
	if c == nil || (!c.DropZeroPeaks && !c.SortPeaks) {
		return spec
	}
	out := *spec
	if c.DropZeroPeaks {
		RemoveZeroIntensityPeaks(&out)
	}
	if c.SortPeaks && !out.ArePeaksSorted() {
		out.Peaks = append([]core.Peak(nil), out.Peaks...)
		out.SortPeaks()
	}
	return &out
}

// RemoveZeroIntensityPeaks removes peaks with zero or negative intensity
func RemoveZeroIntensityPeaks(spec *core.SpectrumPeakList) {
	var filtered []core.Peak
	for _, peak := range spec.Peaks {
		if peak.Intensity > 0 {
			filtered = append(filtered, peak)
		}
	}
	spec.Peaks = filtered
}
