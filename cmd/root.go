package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/spmbatch/internal/config"
	"github.com/zjrosen/spmbatch/internal/log"
)

var (
	version = "dev"
	cfgFile string
	debug   bool
	cfg     config.Config
)

var rootCmd = &cobra.Command{
	Use:     "spmbatch",
	Short:   "Batch processing engine for SPM image data",
	Long:    `Mirrors a host data browser, replays recorded processing logs as macros, and runs batch operations over selected channels.`,
	Version: version,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ~/.config/spmbatch/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug logging")
}

func initConfig() {
	defaults := config.Defaults()
	viper.SetDefault("registry.refresh_interval", defaults.Registry.RefreshInterval)
	viper.SetDefault("registry.change_check_interval", defaults.Registry.ChangeCheckInterval)
	viper.SetDefault("macro.auto_reload", defaults.Macro.AutoReload)
	viper.SetDefault("macro.reload_debounce", defaults.Macro.ReloadDebounce)
	viper.SetDefault("processing.default_palette", defaults.Processing.DefaultPalette)
	viper.SetDefault("processing.crop_fraction", defaults.Processing.CropFraction)
	viper.SetDefault("export.dir", defaults.Export.Dir)
	viper.SetDefault("export.extension", defaults.Export.Extension)
	viper.SetDefault("history.enabled", defaults.History.Enabled)
	viper.SetDefault("history.path", defaults.History.Path)
	viper.SetDefault("tracing.enabled", defaults.Tracing.Enabled)
	viper.SetDefault("tracing.exporter", defaults.Tracing.Exporter)
	viper.SetDefault("tracing.sample_rate", defaults.Tracing.SampleRate)
	viper.SetDefault("tracing.service_name", defaults.Tracing.ServiceName)

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		// Config lookup order:
		// 1. .spmbatch/config.yaml (current directory)
		// 2. ~/.config/spmbatch/config.yaml (user config)
		if _, err := os.Stat(".spmbatch/config.yaml"); err == nil {
			viper.SetConfigFile(".spmbatch/config.yaml")
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(filepath.Join(home, ".config", "spmbatch"))
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			defaultPath := config.DefaultConfigPath()
			if defaultPath != "" {
				if writeErr := config.WriteDefaultConfig(defaultPath); writeErr == nil {
					viper.SetConfigFile(defaultPath)
					_ = viper.ReadInConfig()
				}
			}
			// If write fails, just continue with defaults (no config file)
		}
	}

	_ = viper.Unmarshal(&cfg)

	initLogging()
}

// initLogging wires the category file logger from config and flags.
func initLogging() {
	path := cfg.LogFile
	if path == "" && debug {
		path = filepath.Join(os.TempDir(), "spmbatch.log")
	}
	if path == "" {
		return
	}
	if _, err := log.Init(path); err != nil {
		fmt.Fprintf(os.Stderr, "warning: logging disabled: %v\n", err)
		return
	}
	if debug {
		log.SetMinLevel(log.LevelDebug)
	} else {
		log.SetMinLevel(log.LevelInfo)
	}
}

// persistMacroPath remembers the last parsed processing log in the config
// file in use, so the next session loads the same macro. A run without a
// config file skips persistence.
func persistMacroPath(macroPath string) {
	path := viper.ConfigFileUsed()
	if path == "" {
		return
	}
	if err := config.SaveMacroPath(path, macroPath); err != nil {
		log.Warn(log.CatConfig, "persisting macro path failed", "error", err)
	}
}

// persistExportDir remembers the last export directory across sessions.
func persistExportDir(dir string) {
	path := viper.ConfigFileUsed()
	if path == "" {
		return
	}
	if err := config.SaveExportDir(path, dir); err != nil {
		log.Warn(log.CatConfig, "persisting export dir failed", "error", err)
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets the version string (called from main with ldflags).
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}
