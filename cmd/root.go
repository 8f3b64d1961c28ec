package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/fatih/color"
	"github.com/huangsam/macindex/core"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/iocache"
	"github.com/huangsam/macindex/internal/telemetry"
	"github.com/huangsam/macindex/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// All linker flags will be set by goreleaser infra at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCtx is the root context for all operations.
var rootCtx = context.Background()

// cfg will hold the validated, final configuration.
var cfg = &contract.Config{}

// input holds the raw, unvalidated configuration from all sources (file, env, flags).
// Viper will unmarshal into this struct.
var input = &contract.ConfigRawInput{}

// profile holds profiling configuration.
var profile = &contract.ProfileConfig{}

// cacheManager is the global persistence manager instance.
var cacheManager contract.CacheManager

// recorder collects pipeline counters when --metrics-file is set.
var recorder *telemetry.Recorder

// startProfiling starts CPU and memory profiling if enabled.
func startProfiling() error {
	if !profile.Enabled {
		return nil
	}

	// Start CPU profiling
	cpuFile, err := os.Create(profile.Prefix + ".cpu.prof")
	if err != nil {
		return fmt.Errorf("could not create CPU profile: %w", err)
	}
	if err := pprof.StartCPUProfile(cpuFile); err != nil {
		return fmt.Errorf("could not start CPU profiling: %w", err)
	}

	// Memory profiling will be captured at the end
	_, err = fmt.Fprintf(os.Stderr, "Profiling enabled. CPU profile: %s.cpu.prof, Memory profile: %s.mem.prof\n", profile.Prefix, profile.Prefix)
	return err
}

// stopProfiling stops profiling and writes memory profile.
func stopProfiling() error {
	if !profile.Enabled {
		return nil
	}

	pprof.StopCPUProfile()

	// Write memory profile
	memFile, err := os.Create(profile.Prefix + ".mem.prof")
	if err != nil {
		return fmt.Errorf("could not create memory profile: %w", err)
	}
	defer func() { _ = memFile.Close() }()

	if err := pprof.WriteHeapProfile(memFile); err != nil {
		return fmt.Errorf("could not write memory profile: %w", err)
	}

	_, err = fmt.Fprintf(os.Stderr, "Profiling complete. Use 'go tool pprof %s.cpu.prof' to analyze.\n", profile.Prefix)
	return err
}

// rootCmd is the command-line entrypoint for all other commands.
var rootCmd = &cobra.Command{
	Use:                "macindex",
	Short:              "Score market absorption capacity from financial stress indicators.",
	Long:               `macindex turns indicator observations into a composite stress score, fits its weights on historical crises and backtests it walk-forward.`,
	Version:            version,
	SilenceErrors:      true,
	SilenceUsage:       true,
	DisableSuggestions: true,
	Run: func(cmd *cobra.Command, _ []string) {
		_ = cmd.Help()
	},
}

// configureViper points Viper at the config file and environment.
func configureViper() {
	// Check if a specific config file is provided
	if configFile := viper.GetString("config"); configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		// Set config file name and paths
		viper.SetConfigName(".macindex") // Name of config file (without extension)
		viper.SetConfigType("yaml")      // We'll use YAML format
		viper.AddConfigPath(".")         // Look in the current directory
		viper.AddConfigPath("$HOME")     // Look in the home directory
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("MACINDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // Read in environment variables that match
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	configureViper()

	// Calibration overrides have no flags; they come from the file or env only
	for _, key := range []string{"alpha", "alpha-min", "alpha-max"} {
		_ = viper.BindEnv(key)
	}

	// Set defaults in Viper
	viper.SetDefault("family", schema.MACFamily)
	viper.SetDefault("workers", contract.DefaultWorkers)
	viper.SetDefault("seed", contract.DefaultSeed)
	viper.SetDefault("precision", contract.DefaultPrecision)
	viper.SetDefault("output", schema.TextOut)
	viper.SetDefault("color", "yes")
	viper.SetDefault("log-level", "info")
	viper.SetDefault("cache-backend", schema.SQLiteBackend)
	viper.SetDefault("cache-db-connect", "")
	viper.SetDefault("run-backend", "")
	viper.SetDefault("run-db-connect", "")
	viper.SetDefault("penalty-model", schema.StatedPenalty)
	viper.SetDefault("estimator", schema.GBMEstimator)
	viper.SetDefault("replicates", contract.DefaultReplicates)
	viper.SetDefault("step-days", contract.DefaultStepDays)
	viper.SetDefault("refit-every", contract.DefaultRefitEvery)
	viper.SetDefault("lead-time-days", contract.DefaultLeadTimeDays)
	viper.SetDefault("max-staleness", contract.DefaultMaxStaleness)
	viper.SetDefault("decision-threshold", contract.DefaultDecisionThreshold)
	viper.SetDefault("limit", contract.DefaultRunLimit)
}

// sharedSetup unmarshals config and runs validation.
func sharedSetup(ctx context.Context, _ *cobra.Command, _ []string) error {
	// Handle profiling flag
	profilePrefix := viper.GetString("profile")
	if err := contract.ProcessProfilingConfig(profile, profilePrefix); err != nil {
		return fmt.Errorf("failed to process profiling config: %w", err)
	}
	if profile.Enabled {
		if err := startProfiling(); err != nil {
			return fmt.Errorf("failed to start profiling: %w", err)
		}
	}

	// 1. Read config file. This merges defaults, file, env, and flags.
	if err := loadConfigFile(); err != nil {
		return err
	}

	// 2. Unmarshal all resolved values from Viper into our raw input struct.
	if err := viper.Unmarshal(input); err != nil {
		return fmt.Errorf("unable to unmarshal config: %w", err)
	}

	// 3. Run all validation and complex parsing.
	// This function populates the global 'cfg' from 'input'.
	if err := contract.ProcessAndValidate(cfg, input); err != nil {
		return err
	}
	contract.SetLogLevel(cfg.LogLevel)
	color.NoColor = !cfg.UseColors

	// 4. Wire the metrics recorder into the root context
	if cfg.MetricsFile != "" {
		recorder = telemetry.NewRecorder()
		rootCtx = core.WithRecorder(ctx, recorder)
	}

	// 5. Initialize persistence layer with validated config
	if err := iocache.InitCaching(cfg.CacheBackend, cfg.CacheDBConnect, cfg.RunBackend, cfg.RunDBConnect); err != nil {
		return fmt.Errorf("failed to initialize persistence: %w", err)
	}

	return nil
}

// sharedSetupWrapper wraps sharedSetup to provide context for Cobra's PreRunE.
func sharedSetupWrapper(cmd *cobra.Command, args []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("unable to bind %s flags: %w", cmd.Name(), err)
	}
	return sharedSetup(rootCtx, cmd, args)
}

// flushTelemetry writes collected metrics to the configured textfile.
func flushTelemetry(_ *cobra.Command, _ []string) error {
	if recorder == nil || cfg.MetricsFile == "" {
		return nil
	}
	if err := recorder.WriteFile(cfg.MetricsFile); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// loadConfigFile handles config file loading logic common to all setup functions.
func loadConfigFile() error {
	configureViper()

	// Load config file if present
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found, which is fine; we'll use defaults/env/flags.
	}

	return nil
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetCacheManager sets the global cache manager.
func SetCacheManager(mgr contract.CacheManager) {
	cacheManager = mgr
}

// StopProfiling stops profiling if enabled.
func StopProfiling() error {
	return stopProfiling()
}
