// Package config provides configuration types, defaults, and persistence
// for spmbatch.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/zjrosen/spmbatch/internal/tracing"
)

// Config holds all configuration options for spmbatch.
type Config struct {
	// LogFile is the destination for the category debug log. Empty
	// disables file logging.
	LogFile string `mapstructure:"log_file"`

	Registry   RegistryConfig   `mapstructure:"registry"`
	Macro      MacroConfig      `mapstructure:"macro"`
	Processing ProcessingConfig `mapstructure:"processing"`
	Export     ExportConfig     `mapstructure:"export"`
	History    HistoryConfig    `mapstructure:"history"`
	Tracing    tracing.Config   `mapstructure:"tracing"`
}

// RegistryConfig controls how the resource registry tracks the host store.
type RegistryConfig struct {
	// RefreshInterval is the full reconciliation period.
	RefreshInterval time.Duration `mapstructure:"refresh_interval"`

	// ChangeCheckInterval is the cheap identity-comparison period used to
	// decide whether a full refresh is needed sooner.
	ChangeCheckInterval time.Duration `mapstructure:"change_check_interval"`
}

// MacroConfig controls processing-log loading.
type MacroConfig struct {
	// Path is the log file to parse into a macro at startup. Optional.
	Path string `mapstructure:"path"`

	// AutoReload re-parses the log when it changes on disk.
	AutoReload bool `mapstructure:"auto_reload"`

	// ReloadDebounce settles rapid successive writes before re-parsing.
	ReloadDebounce time.Duration `mapstructure:"reload_debounce"`
}

// ProcessingConfig holds defaults for the built-in operations.
type ProcessingConfig struct {
	// DefaultPalette is applied by the palette operation when the caller
	// names none.
	DefaultPalette string `mapstructure:"default_palette"`

	// CropFraction sizes the default crop rectangle as a fraction of each
	// channel's resolution. Clamped to (0, 1].
	CropFraction float64 `mapstructure:"crop_fraction"`

	// CropCreateNew puts crop results in new channels instead of cropping
	// in place.
	CropCreateNew bool `mapstructure:"crop_create_new"`

	// CropKeepOffsets preserves physical offsets of the cropped area.
	CropKeepOffsets bool `mapstructure:"crop_keep_offsets"`
}

// ExportConfig controls the export path planner.
type ExportConfig struct {
	// Dir is the output directory for exported files.
	Dir string `mapstructure:"dir"`

	// Extension is the output format extension, with or without the dot.
	Extension string `mapstructure:"extension"`
}

// HistoryConfig controls the batch-run audit store.
type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Defaults returns the default configuration.
func Defaults() Config {
	return Config{
		LogFile: "",
		Registry: RegistryConfig{
			RefreshInterval:     time.Second,
			ChangeCheckInterval: 500 * time.Millisecond,
		},
		Macro: MacroConfig{
			Path:           "",
			AutoReload:     true,
			ReloadDebounce: 500 * time.Millisecond,
		},
		Processing: ProcessingConfig{
			DefaultPalette:  "Gray",
			CropFraction:    0.25,
			CropCreateNew:   false,
			CropKeepOffsets: false,
		},
		Export: ExportConfig{
			Dir:       ".",
			Extension: ".gwy",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    DefaultHistoryPath(),
		},
		Tracing: tracing.DefaultConfig(),
	}
}

// DefaultHistoryPath returns ~/.config/spmbatch/history.db, or empty string
// if the home directory is unavailable.
func DefaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "spmbatch", "history.db")
}

// DefaultTracesFilePath returns the default path for trace file export, or
// empty string if the home directory is unavailable.
func DefaultTracesFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "spmbatch", "traces", "traces.jsonl")
}

// DefaultConfigPath returns ~/.config/spmbatch/config.yaml, or empty string
// if the home directory is unavailable.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "spmbatch", "config.yaml")
}
