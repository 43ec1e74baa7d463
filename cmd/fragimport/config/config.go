// Package config holds the import settings unmarshalled from Viper
// (flags, fragimport.yaml and FRAGIMPORT_* environment variables, see /cmd)
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/compomics/fragmentation-analyzer/pkg/filter"
	"github.com/compomics/fragmentation-analyzer/pkg/importer"
)

// Defaults
const (
	DefaultConfidence       = importer.DefaultConfidence
	DefaultIndexThresholdMB = 40
	DefaultBatchSize        = importer.DefaultBatchSize
)

// MascotConfig settings for DAT files
type MascotConfig struct {
	// confidence of the identity threshold test, e.g. 0.95
	Confidence float64 `mapstructure:"confidence"`

	// file size in MB above which sections are read through an index
	IndexThresholdMB int64 `mapstructure:"index-threshold-mb"`
}

// OmssaConfig settings for OMX files
type OmssaConfig struct {
	Instrument string `mapstructure:"instrument"`

	// companion modification files, required for OMSSA imports
	Mods     string `mapstructure:"mods"`
	UserMods string `mapstructure:"usermods"`
}

// FilterConfig restricts the fragment ions written
type FilterConfig struct {
	// comma-separated ion series, e.g. "b,y"
	IonTypes     string  `mapstructure:"ion-types"`
	MinIntensity float64 `mapstructure:"min-intensity"`
	DropZero     bool    `mapstructure:"drop-zero-peaks"`
	Sort         bool    `mapstructure:"sort-peaks"`
}

// ExtractConfig settings for store extraction
type ExtractConfig struct {
	BatchSize int `mapstructure:"batch-size"`
}

// Config is the root-level settings struct
type Config struct {
	Output  string        `mapstructure:"output"`
	Format  string        `mapstructure:"format"`
	Store   string        `mapstructure:"store"`
	Verbose bool          `mapstructure:"verbose"`
	Mascot  MascotConfig  `mapstructure:"mascot"`
	Omssa   OmssaConfig   `mapstructure:"omssa"`
	Filter  FilterConfig  `mapstructure:"filter"`
	Extract ExtractConfig `mapstructure:"extract"`
}

// SetDefaults registers the default values on v
func SetDefaults(v *viper.Viper) {
	v.SetDefault("mascot.confidence", DefaultConfidence)
	v.SetDefault("mascot.index-threshold-mb", DefaultIndexThresholdMB)
	v.SetDefault("extract.batch-size", DefaultBatchSize)
}

// Load decodes the settings held by v
func Load(v *viper.Viper) (*Config, error) {
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if c.Mascot.Confidence <= 0 || c.Mascot.Confidence >= 1 {
		return nil, fmt.Errorf("mascot.confidence must be between 0 and 1, got %v", c.Mascot.Confidence)
	}
	if c.Mascot.IndexThresholdMB < 0 {
		return nil, fmt.Errorf("mascot.index-threshold-mb must not be negative, got %d", c.Mascot.IndexThresholdMB)
	}
	c.Extract.BatchSize = importer.ClampBatchSize(c.Extract.BatchSize)
	return &c, nil
}

// FragmentFilter builds the fragment ion filter, nil when nothing is filtered
func (c *Config) FragmentFilter() *filter.Config {
	f := &filter.Config{
		IonTypes:      filter.ParseIonTypes(c.Filter.IonTypes),
		MinIntensity:  c.Filter.MinIntensity,
		DropZeroPeaks: c.Filter.DropZero,
		SortPeaks:     c.Filter.Sort,
	}
	if len(f.IonTypes) == 0 && f.MinIntensity <= 0 && !f.DropZeroPeaks && !f.SortPeaks {
		return nil
	}
	return f
}

// Options maps the settings to importer options
func (c *Config) Options() importer.Options {
	return importer.Options{
		Confidence:     c.Mascot.Confidence,
		IndexThreshold: c.Mascot.IndexThresholdMB * 1024 * 1024,
		Instrument:     c.Omssa.Instrument,
		ModsFile:       c.Omssa.Mods,
		UserModsFile:   c.Omssa.UserMods,
		Filter:         c.FragmentFilter(),
	}
}
