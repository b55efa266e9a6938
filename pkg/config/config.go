// Package config provides the configuration system for trainprep.
// A single Config structure drives the dataset loader, the CLI and the
// ambient observability stack.
//
// The configuration is organized into logical sections:
//   - Layout: Group, table and attribute names inside the input container
//   - Features: Excluded bookkeeping columns and strictness of field checks
//   - Observability: Logging, metrics and tracing
//   - Export: Where the export command writes matrices
//   - Remote: Credentials and staging for s3:// and gs:// inputs
//
// Example usage:
//
//	cfg := config.NewConfig("train-v3")
//	cfg.Features.Ignore = append(cfg.Features.Ignore, "run_number")
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
)

// Config is the unified configuration structure used by every component.
type Config struct {
	// Name identifies the run in logs and traces
	Name string `yaml:"name" json:"name"`
	// Version indicates the configuration version
	Version string `yaml:"version" json:"version"`

	// Layout names the required groups, tables and attributes of the container
	Layout LayoutConfig `yaml:"layout" json:"layout"`

	// Features controls which scaling entries become model inputs
	Features FeatureConfig `yaml:"features" json:"features"`

	// Observability settings for logging, metrics and tracing
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`

	// Export settings for the export command
	Export ExportConfig `yaml:"export" json:"export"`

	// Remote settings for inputs stored in object storage
	Remote RemoteConfig `yaml:"remote" json:"remote"`
}

// LayoutConfig names the pieces of the container the loader requires.
// The defaults match the layout written by the pre-processing stage.
type LayoutConfig struct {
	// ScalingGroup is the top-level group holding scaling statistics
	ScalingGroup string `yaml:"scaling_group" json:"scaling_group"`
	// ScalingTable is the table of per-feature statistics inside ScalingGroup
	ScalingTable string `yaml:"scaling_table" json:"scaling_table"`
	// SamplesGroup is the top-level group holding one sub-group per sample
	SamplesGroup string `yaml:"samples_group" json:"samples_group"`
	// FeaturesTable is the per-sample table of event records
	FeaturesTable string `yaml:"features_table" json:"features_table"`
	// LabelAttribute is the integer attribute carrying the class label
	LabelAttribute string `yaml:"label_attribute" json:"label_attribute"`
}

// FeatureConfig controls the trainable feature set.
type FeatureConfig struct {
	// Ignore lists scaling entries that are never model inputs
	Ignore []string `yaml:"ignore" json:"ignore"`
	// Strict rejects sample fields that have no scaling entry
	Strict bool `yaml:"strict" json:"strict"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level"`
	// LogFormat selects the zap encoder (json, console)
	LogFormat string `yaml:"log_format" json:"log_format"`
	// EnableMetrics activates Prometheus collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics"`
	// EnableTracing activates OpenTelemetry spans
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate"`
}

// ExportConfig controls the export command.
type ExportConfig struct {
	// Directory receives the exported files
	Directory string `yaml:"directory" json:"directory"`
	// Prefix is the output filename descriptor
	Prefix string `yaml:"prefix" json:"prefix"`
}

// NewConfig creates a new Config with defaults matching the layout
// produced by the pre-processing stage.
func NewConfig(name string) *Config {
	return &Config{
		Name:    name,
		Version: "1.0.0",
		Layout: LayoutConfig{
			ScalingGroup:   "scaling",
			ScalingTable:   "scaling_data",
			SamplesGroup:   "samples",
			FeaturesTable:  "train_features",
			LabelAttribute: "training_label",
		},
		Features: FeatureConfig{
			Ignore: []string{"eventweight"},
			Strict: true,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "console",
			EnableMetrics:     true,
			EnableTracing:     false,
			TracingSampleRate: 1.0,
		},
		Export: ExportConfig{
			Directory: ".",
			Prefix:    "test",
		},
		Remote: RemoteConfig{
			StagingDir: "",
		},
	}
}

// Validate checks required fields and ensures values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name is required")
	}

	layout := map[string]string{
		"scaling_group":   c.Layout.ScalingGroup,
		"scaling_table":   c.Layout.ScalingTable,
		"samples_group":   c.Layout.SamplesGroup,
		"features_table":  c.Layout.FeaturesTable,
		"label_attribute": c.Layout.LabelAttribute,
	}
	for key, value := range layout {
		if value == "" {
			return fmt.Errorf("layout.%s is required", key)
		}
		if strings.Contains(value, "/") {
			return fmt.Errorf("layout.%s must be a single path element, got %q", key, value)
		}
	}
	if c.Layout.ScalingGroup == c.Layout.SamplesGroup {
		return fmt.Errorf("layout.scaling_group and layout.samples_group must differ")
	}

	seen := make(map[string]struct{}, len(c.Features.Ignore))
	for _, name := range c.Features.Ignore {
		if name == "" {
			return fmt.Errorf("features.ignore contains an empty name")
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("features.ignore lists %q twice", name)
		}
		seen[name] = struct{}{}
	}

	if c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1 {
		return fmt.Errorf("tracing_sample_rate must be within [0, 1]")
	}
	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("log_format must be json or console, got %q", c.Observability.LogFormat)
	}

	return c.Remote.Validate()
}

// IgnoreSet returns Features.Ignore as a lookup set
func (f *FeatureConfig) IgnoreSet() map[string]struct{} {
	set := make(map[string]struct{}, len(f.Ignore))
	for _, name := range f.Ignore {
		set[name] = struct{}{}
	}
	return set
}

// ScalingPath returns the container path of the scaling table
func (l *LayoutConfig) ScalingPath() string {
	return l.ScalingGroup + "/" + l.ScalingTable
}
