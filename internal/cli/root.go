// Package cli implements the KotlinRunnerX command-line interface using Cobra.
package cli

import (
	"fmt"
	"os"

	"github.com/Amchestnut/KotlinRunnerX/internal/config"
	"github.com/Amchestnut/KotlinRunnerX/internal/logging"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile     string
	jsonOutput  bool
	jsonlOutput bool
	verbose     bool
	noColor     bool
	logLevel    string
	logFormat   string

	// Global config loader and config
	configLoader *config.Loader
	appConfig    *config.Config
	logger       zerolog.Logger
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "kotlinrunnerx",
	Short: "Run Kotlin scripts and navigate their diagnostics",
	Long: `KotlinRunnerX compiles and runs Kotlin scripts through kotlinc -script,
one run at a time, and keeps a local history of every run.

It provides:
  - Live stdout/stderr streaming with clickable source locations
  - Graceful stop that tears down the whole compiler process tree
  - A per-run transcript file and a queryable run history
  - Named launcher profiles for alternate toolchains`,
}

// Execute runs the root command
func Execute(version, commit, date string) error {
	rootCmd.Version = formatVersion(version, commit, date)
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		return handleCLIError(err)
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/kotlinrunnerx/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&jsonlOutput, "jsonl", false, "output in JSON Lines format (for streaming)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "override logging format (json, console)")
}

// initConfig loads configuration using Viper with proper precedence:
// defaults < config file < env vars < CLI flags
func initConfig() {
	configLoader = config.NewLoader()

	// Set explicit config file if provided via CLI flag
	if cfgFile != "" {
		configLoader.SetConfigFile(cfgFile)
	}

	// Load configuration
	var err error
	appConfig, err = configLoader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	applyCLIOverrides()

	// Initialize logging based on config
	initLogging()

	// Ensure directories exist
	if err := appConfig.EnsureDirectories(); err != nil {
		logger.Warn().Err(err).Msg("failed to create directories")
	}

	// Log config file used (if any)
	if cfgUsed := configLoader.ConfigFileUsed(); cfgUsed != "" {
		logger.Debug().Str("config_file", cfgUsed).Msg("loaded config file")
	}
}

func applyCLIOverrides() {
	flags := rootCmd.PersistentFlags()

	if flags.Changed("log-level") {
		appConfig.Logging.Level = logLevel
	} else if verbose {
		appConfig.Logging.Level = "debug"
	}

	if flags.Changed("log-format") {
		appConfig.Logging.Format = logFormat
	}
}

// initLogging sets up the logger based on configuration
func initLogging() {
	logCfg := logging.Config{
		Level:        appConfig.Logging.Level,
		Format:       appConfig.Logging.Format,
		EnableCaller: appConfig.Logging.EnableCaller,
	}

	// TODO: Add file output support when needed
	// if appConfig.Logging.File != "" {
	//     logCfg.Output = ... open file ...
	// }

	logging.Init(logCfg)
	logger = logging.Component("cli")
}

// GetConfig returns the loaded configuration.
// Returns nil if called before initConfig.
func GetConfig() *config.Config {
	return appConfig
}

// GetLogger returns the CLI logger.
func GetLogger() zerolog.Logger {
	return logger
}

// IsJSONOutput returns true if JSON output mode is enabled.
func IsJSONOutput() bool {
	return jsonOutput
}

// IsJSONLOutput returns true if JSONL output mode is enabled.
func IsJSONLOutput() bool {
	return jsonlOutput
}

// IsVerbose returns true if verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

func formatVersion(version, commit, date string) string {
	return version + " (commit: " + commit + ", built: " + date + ")"
}
