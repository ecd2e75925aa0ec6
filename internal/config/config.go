// Package config handles KotlinRunnerX configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the root configuration structure for KotlinRunnerX.
type Config struct {
	// Global settings
	Global GlobalConfig `yaml:"global" mapstructure:"global"`

	// Database settings
	Database DatabaseConfig `yaml:"database" mapstructure:"database"`

	// Logging settings
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`

	// Runner settings
	Runner RunnerConfig `yaml:"runner" mapstructure:"runner"`

	// History retention settings
	History HistoryConfig `yaml:"history" mapstructure:"history"`
}

// GlobalConfig contains global settings.
type GlobalConfig struct {
	// DataDir is where KotlinRunnerX stores its data (default: ~/.local/share/kotlinrunnerx).
	DataDir string `yaml:"data_dir" mapstructure:"data_dir"`

	// ConfigDir is where config files are stored (default: ~/.config/kotlinrunnerx).
	ConfigDir string `yaml:"config_dir" mapstructure:"config_dir"`
}

// DatabaseConfig contains database settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `yaml:"path" mapstructure:"path"`

	// MaxConnections is the maximum number of database connections.
	MaxConnections int `yaml:"max_connections" mapstructure:"max_connections"`

	// BusyTimeout is how long to wait for a locked database (milliseconds).
	BusyTimeoutMs int `yaml:"busy_timeout_ms" mapstructure:"busy_timeout_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string `yaml:"level" mapstructure:"level"`

	// Format is the output format (json, console).
	Format string `yaml:"format" mapstructure:"format"`

	// File is an optional log file path.
	File string `yaml:"file" mapstructure:"file"`

	// EnableCaller adds caller information to logs.
	EnableCaller bool `yaml:"enable_caller" mapstructure:"enable_caller"`
}

// RunnerConfig contains settings for script execution.
type RunnerConfig struct {
	// Executable is the compiler binary to invoke. Empty uses the
	// platform default (kotlinc, or kotlinc.bat on Windows).
	Executable string `yaml:"executable" mapstructure:"executable"`

	// InstallRoot points at a Kotlin installation whose lib/ jars go on
	// the script classpath. Empty probes KOTLIN_HOME and PATH.
	InstallRoot string `yaml:"install_root" mapstructure:"install_root"`

	// ExtraArgs are appended to every compiler invocation.
	ExtraArgs []string `yaml:"extra_args" mapstructure:"extra_args"`

	// KillGraceMs is the pause between the graceful and forced kill
	// phases when a run is stopped (milliseconds).
	KillGraceMs int `yaml:"kill_grace_ms" mapstructure:"kill_grace_ms"`

	// OutputTailLines is how many trailing output lines each run keeps
	// in its history record.
	OutputTailLines int `yaml:"output_tail_lines" mapstructure:"output_tail_lines"`

	// TranscriptDir receives one transcript file per run. Empty uses
	// DataDir/transcripts.
	TranscriptDir string `yaml:"transcript_dir" mapstructure:"transcript_dir"`

	// ProfileDir holds launcher profile files. Empty uses
	// ConfigDir/profiles.
	ProfileDir string `yaml:"profile_dir" mapstructure:"profile_dir"`
}

// HistoryConfig contains run-history retention settings.
type HistoryConfig struct {
	// Limit is the maximum number of run records to keep. Zero keeps
	// everything.
	Limit int `yaml:"limit" mapstructure:"limit"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	homeDir, _ := os.UserHomeDir()

	return &Config{
		Global: GlobalConfig{
			DataDir:   filepath.Join(homeDir, ".local", "share", "kotlinrunnerx"),
			ConfigDir: filepath.Join(homeDir, ".config", "kotlinrunnerx"),
		},
		Database: DatabaseConfig{
			Path:           "", // Will be set to DataDir/kotlinrunnerx.db
			MaxConnections: 10,
			BusyTimeoutMs:  5000,
		},
		Logging: LoggingConfig{
			Level:        "info",
			Format:       "console",
			EnableCaller: false,
		},
		Runner: RunnerConfig{
			KillGraceMs:     100,
			OutputTailLines: 20,
		},
		History: HistoryConfig{
			Limit: 200,
		},
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Global.DataDir) == "" {
		return fmt.Errorf("global.data_dir is required")
	}
	if strings.TrimSpace(c.Global.ConfigDir) == "" {
		return fmt.Errorf("global.config_dir is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database.max_connections must be at least 1")
	}
	if c.Database.BusyTimeoutMs < 0 {
		return fmt.Errorf("database.busy_timeout_ms must be zero or greater")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Level)) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be one of console, json")
	}

	if c.Runner.KillGraceMs < 1 {
		return fmt.Errorf("runner.kill_grace_ms must be at least 1")
	}
	if c.Runner.OutputTailLines < 1 {
		return fmt.Errorf("runner.output_tail_lines must be at least 1")
	}

	if c.History.Limit < 0 {
		return fmt.Errorf("history.limit must be zero or greater")
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Global.DataDir,
		c.Global.ConfigDir,
		c.TranscriptDir(),
		c.ProfileDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// DatabasePath returns the full database path.
func (c *Config) DatabasePath() string {
	if c.Database.Path != "" {
		return c.Database.Path
	}
	return filepath.Join(c.Global.DataDir, "kotlinrunnerx.db")
}

// TranscriptDir returns the full transcript directory path.
func (c *Config) TranscriptDir() string {
	if c.Runner.TranscriptDir != "" {
		return c.Runner.TranscriptDir
	}
	return filepath.Join(c.Global.DataDir, "transcripts")
}

// ProfileDir returns the full launcher-profile directory path.
func (c *Config) ProfileDir() string {
	if c.Runner.ProfileDir != "" {
		return c.Runner.ProfileDir
	}
	return filepath.Join(c.Global.ConfigDir, "profiles")
}

// KillGrace returns the kill grace period as a duration.
func (c *Config) KillGrace() time.Duration {
	return time.Duration(c.Runner.KillGraceMs) * time.Millisecond
}
