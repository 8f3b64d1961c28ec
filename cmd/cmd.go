// Package cmd defines the command-line interface for macindex.
package cmd

import (
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func init() {
	// Call initConfig on Cobra's initialization
	cobra.OnInitialize(initConfig)

	// Add primary subcommands to the root command
	rootCmd.AddCommand(scoreCmd)
	rootCmd.AddCommand(backtestCmd)
	rootCmd.AddCommand(weightsCmd)
	rootCmd.AddCommand(regimeCmd)
	rootCmd.AddCommand(penaltiesCmd)
	rootCmd.AddCommand(metricsCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(cacheCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(versionCmd)

	// Add the runs subcommands to the parent runs command
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsStatusCmd)
	runsCmd.AddCommand(runsExportCmd)
	runsCmd.AddCommand(runsClearCmd)
	runsCmd.AddCommand(runsMigrateCmd)

	// Add the cache subcommands to the parent cache command
	cacheCmd.AddCommand(cacheClearCmd)
	cacheCmd.AddCommand(cacheStatusCmd)

	rootCmd.PersistentPostRunE = flushTelemetry

	// Bind all persistent flags of rootCmd to Viper
	rootCmd.PersistentFlags().String("family", string(schema.MACFamily), "Indicator family: mac or grri")
	rootCmd.PersistentFlags().String("observations", "", "Path to the observations CSV (date,indicator,value[,tier])")
	rootCmd.PersistentFlags().String("indicators", "", "Path to indicator definitions YAML (defaults to the family's built-in set)")
	rootCmd.PersistentFlags().String("scenarios", "", "Path to the crisis scenario catalog YAML (defaults to the built-in catalog)")
	rootCmd.PersistentFlags().String("start", "", "Start date in ISO8601 or time ago")
	rootCmd.PersistentFlags().String("end", "", "End date in ISO8601 or time ago")
	rootCmd.PersistentFlags().String("as-of", "", "Scoring date in ISO8601 or time ago (defaults to the last observation)")
	rootCmd.PersistentFlags().Int("workers", contract.DefaultWorkers, "Number of concurrent workers")
	rootCmd.PersistentFlags().Uint64("seed", contract.DefaultSeed, "Seed for bootstrap and model randomness")
	rootCmd.PersistentFlags().String("output", string(schema.TextOut), "Output format: text or csv or json or parquet or xlsx")
	rootCmd.PersistentFlags().String("output-file", "", "Optional path to write output to")
	rootCmd.PersistentFlags().Int("precision", contract.DefaultPrecision, "Decimal precision for numeric columns")
	rootCmd.PersistentFlags().Int("width", 0, "Terminal width override (0 = auto-detect)")
	rootCmd.PersistentFlags().String("color", "yes", "Enable colored labels in output (yes/no/true/false/1/0)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level: debug or info or warn or error")
	rootCmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this textfile after the command")
	rootCmd.PersistentFlags().String("profile", "", "Enable profiling and write profiles to files with this prefix")
	rootCmd.PersistentFlags().String("penalties", "", "Breach penalty table (format: '2:0.005,3:0.012,6:0.04')")
	rootCmd.PersistentFlags().String("penalty-model", string(schema.StatedPenalty), "Penalty model: stated or independence or dirichlet")
	rootCmd.PersistentFlags().Bool("positioning-heuristic", false, "Apply the positioning breach heuristic when choosing a posture")
	rootCmd.PersistentFlags().String("cache-backend", string(schema.SQLiteBackend), "Fit cache backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("cache-db-connect", "", "Database connection string for mysql/postgresql (e.g., user:pass@tcp(host:port)/dbname)")
	rootCmd.PersistentFlags().String("run-backend", "", "Backtest run store backend: sqlite or mysql or postgresql or none")
	rootCmd.PersistentFlags().String("run-db-connect", "", "Database connection string for the run store (must differ from cache-db-connect)")
	rootCmd.PersistentFlags().String("config", "", "Path to config file")
	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		contract.LogFatal("Error binding root flags", err)
	}

	// Fit and uncertainty flags are shared by score, backtest and weights.
	// They are bound to Viper in sharedSetupWrapper once the running command is known.
	for _, c := range []*cobra.Command{scoreCmd, backtestCmd, weightsCmd} {
		c.Flags().String("estimator", string(schema.GBMEstimator), "Weight estimator: gbm or ridge")
		c.Flags().Bool("validate", false, "Run leave-one-out validation of the weight fit")
		c.Flags().Bool("bootstrap", false, "Attach bootstrap confidence intervals")
		c.Flags().Int("replicates", contract.DefaultReplicates, "Number of bootstrap replicates")
		c.Flags().Bool("conformal", false, "Attach conformal prediction intervals")
		c.Flags().String("max-staleness", contract.DefaultMaxStaleness, "Oldest observation still used for a date")
	}

	// Bind all flags of backtestCmd to Viper
	backtestCmd.Flags().Int("step-days", contract.DefaultStepDays, "Days between scored dates")
	backtestCmd.Flags().Int("refit-every", contract.DefaultRefitEvery, "Scored dates between weight refits")
	backtestCmd.Flags().Int("lead-time-days", contract.DefaultLeadTimeDays, "Days before a crisis a signal still counts as a hit")
	backtestCmd.Flags().Float64("decision-threshold", contract.DefaultDecisionThreshold, "Score below which a date signals stress")
	if err := viper.BindPFlags(backtestCmd.Flags()); err != nil {
		contract.LogFatal("Error binding backtest flags", err)
	}

	// Bind all flags of runsListCmd to Viper
	runsListCmd.Flags().IntP("limit", "l", contract.DefaultRunLimit, "Number of runs to display")
	if err := viper.BindPFlags(runsListCmd.Flags()); err != nil {
		contract.LogFatal("Error binding runs list flags", err)
	}

	// Bind all flags of runsMigrateCmd to Viper
	runsMigrateCmd.Flags().Int("target-version", -1, "Target migration version (-1 means latest, 0 means rollback to initial state)")
	if err := viper.BindPFlags(runsMigrateCmd.Flags()); err != nil {
		contract.LogFatal("Error binding runs migrate flags", err)
	}
}
