package cmd

import (
	"fmt"
	"os"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/iocache"
	"github.com/huangsam/macindex/internal/outwriter"
	"github.com/huangsam/macindex/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// runBackendFromViper resolves the run store backend, treating empty as none.
func runBackendFromViper() (schema.DatabaseBackend, string, error) {
	backend := schema.DatabaseBackend(viper.GetString("run-backend"))
	if backend == "" {
		backend = schema.NoneBackend
	}
	if !schema.ValidDatabaseBackends[backend] {
		return "", "", fmt.Errorf("%w: invalid run backend '%s'. must be sqlite, mysql, postgresql, none", schema.ErrConfig, backend)
	}
	connStr := viper.GetString("run-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return "", "", err
	}
	return backend, connStr, nil
}

// runsSetup loads minimal configuration needed for run store operations.
// This is used by commands that need run access without full shared setup.
func runsSetup(cmd *cobra.Command, _ []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("unable to bind %s flags: %w", cmd.Name(), err)
	}

	backend, connStr, err := runBackendFromViper()
	if err != nil {
		return err
	}

	// Initialize stores with the loaded config (no fit cache for run commands)
	if err := iocache.InitCaching("", "", backend, connStr); err != nil {
		return fmt.Errorf("failed to initialize run store: %w", err)
	}

	cfg.RunBackend = backend
	cfg.RunDBConnect = connStr
	cfg.OutputFile = viper.GetString("output-file")
	cfg.Output = schema.OutputMode(viper.GetString("output"))
	cfg.Precision = viper.GetInt("precision")
	cfg.Width = viper.GetInt("width")
	cfg.RunLimit = viper.GetInt("limit")
	return nil
}

// runsMigrateSetup loads minimal configuration needed for migrate operations.
// This is a specialized setup that does NOT initialize stores or create tables,
// allowing migrations to run on a fresh database.
func runsMigrateSetup(_ *cobra.Command, _ []string) error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	backend, connStr, err := runBackendFromViper()
	if err != nil {
		return err
	}

	// For SQLite backend with empty connection string, use default path
	if backend == schema.SQLiteBackend && connStr == "" {
		connStr = contract.GetRunDBFilePath()
	}

	cfg.RunBackend = backend
	cfg.RunDBConnect = connStr
	return nil
}

// runStore returns the initialized run store or exits.
func runStore() contract.RunStore {
	store := iocache.Manager.GetRunStore()
	if store == nil {
		contract.LogFatal("Run store unavailable", fmt.Errorf("%w: set --run-backend", schema.ErrConfig))
	}
	return store
}

// runsCmd focused on backtest run management.
//
// Note: Runs subcommands use minimal initialization (runsSetup) instead of
// the full sharedSetup used by scoring commands. This avoids reading
// observations and complex config processing for simple store operations.
var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Manage recorded backtest runs and exports",
	Long: `Manage the history of backtest runs.

When a run backend is set, every backtest stores:
- Run metadata (UUID, timestamp, configuration, duration)
- The composite, label, regime and posture for each scored date

This enables comparing runs over time and exporting data for BI tools.

Supported backends: SQLite, MySQL, PostgreSQL, or None (disabled, default)

Subcommands:
  list    - Show the most recent runs
  status  - Show run store statistics
  export  - Export runs and composites to Parquet
  clear   - Remove all recorded runs
  migrate - Run database schema migrations

Examples:
  # Check tracking status
  macindex runs status --run-backend sqlite

  # Export for analysis in pandas/DuckDB
  macindex runs export --run-backend sqlite --output-file runs`,
}

// runsListCmd lists recent runs.
var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the most recent backtest runs",
	Long: `Show recorded backtest runs, newest first.

Examples:
  macindex runs list --run-backend sqlite --limit 5
  macindex runs list --run-backend sqlite --output csv --output-file runs.csv`,
	PreRunE: runsSetup,
	Run: func(_ *cobra.Command, _ []string) {
		runs, err := runStore().ListRuns(cfg.RunLimit)
		if err != nil {
			contract.LogFatal("Failed to list runs", err)
		}
		if err := outwriter.PrintRuns(runs, cfg); err != nil {
			contract.LogFatal("Failed to print runs", err)
		}
	},
}

// runsStatusCmd shows run store status.
var runsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display run store statistics and connection details",
	Long: `Show detailed information about recorded backtest runs.

Displays:
- Backend type and connection status
- Total number of runs and composites stored
- Last and oldest run timestamps
- Database table sizes

Examples:
  macindex runs status --run-backend sqlite`,
	PreRunE: runsSetup,
	Run: func(_ *cobra.Command, _ []string) {
		status, err := runStore().GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get run store status", err)
		}
		iocache.PrintRunStatus(os.Stdout, status)
	},
}

// runsExportCmd exports run data to Parquet files.
var runsExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export recorded runs to Parquet for BI tools and analytics",
	Long: `Export all recorded backtest data to Parquet.

Exports two datasets:
- Runs - metadata about each backtest
- Composites - every scored date of every run

Requires: --output-file parameter

Examples:
  # Export all data
  macindex runs export --run-backend sqlite --output-file macindex

  # Use with DuckDB for analysis
  duckdb -c "SELECT * FROM read_parquet('macindex.composites.parquet') LIMIT 10"`,
	PreRunE: runsSetup,
	Run: func(_ *cobra.Command, _ []string) {
		if err := iocache.ExportRuns(runStore(), cfg.OutputFile, os.Stdout); err != nil {
			contract.LogFatal("Failed to export runs", err)
		}
	},
}

// runsClearCmd clears the run store.
var runsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all recorded backtest runs",
	Long: `Delete all recorded runs and their composites.

WARNING: This action cannot be undone. Consider exporting data first.

Examples:
  # Export before clearing
  macindex runs export --run-backend sqlite --output-file backup
  macindex runs clear --run-backend sqlite`,
	PreRunE: runsSetup,
	Run: func(_ *cobra.Command, _ []string) {
		iocache.CloseCaching()
		if err := iocache.ClearRuns(cfg.RunBackend, contract.GetRunDBFilePath(), cfg.RunDBConnect); err != nil {
			contract.LogFatal("Failed to clear runs", err)
		}
		fmt.Println("Backtest runs cleared successfully.")
	},
}

// runsMigrateCmd runs database migrations for the run store.
var runsMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database schema migrations (upgrades/downgrades)",
	Long: `Manage database schema versions for the backtest run store.

By default, migrates to the latest version. Use --target-version for specific versions.

Examples:
  # Migrate to latest version (default)
  macindex runs migrate --run-backend postgresql --run-db-connect "host=... dbname=..."

  # Rollback to initial state
  macindex runs migrate --run-backend sqlite --target-version 0`,
	PreRunE: runsMigrateSetup,
	Run: func(_ *cobra.Command, _ []string) {
		targetVersion := viper.GetInt("target-version")
		if err := iocache.MigrateRuns(cfg.RunBackend, cfg.RunDBConnect, targetVersion, os.Stdout); err != nil {
			contract.LogFatal("Failed to run migrations", err)
		}
	},
}
