package cmd

import (
	"fmt"
	"os"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/iocache"
	"github.com/huangsam/macindex/schema"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cacheSetup loads minimal configuration needed for cache operations.
// This is used by commands that need cache access without full shared setup.
func cacheSetup() error {
	if err := loadConfigFile(); err != nil {
		return err
	}

	// Get cache-related config values
	backend := schema.DatabaseBackend(viper.GetString("cache-backend"))
	connStr := viper.GetString("cache-db-connect")

	// Basic validation for database backends
	if err := contract.ValidateDatabaseConnectionString(backend, connStr); err != nil {
		return err
	}

	// Initialize caching with the loaded config (no run tracking for cache commands)
	if err := iocache.InitCaching(backend, connStr, "", ""); err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}

	cfg.CacheBackend = backend
	cfg.CacheDBConnect = connStr

	return nil
}

// cacheSetupWrapper wraps cacheSetup to provide PreRunE for cache commands.
func cacheSetupWrapper(_ *cobra.Command, _ []string) error {
	return cacheSetup()
}

// cacheCmd focused on cache management.
//
// Note: Cache subcommands use minimal initialization (cacheSetup) instead of
// the full sharedSetup used by scoring commands. This avoids reading
// observations and complex config processing for simple cache operations.
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the weight fit cache (skips identical refits)",
	Long: `Manage the cache of fitted weight vectors.

macindex caches every weight fit by a hash of its scenarios and settings,
so repeated backtests skip refits they have already done.

Supported backends: SQLite (default), MySQL, PostgreSQL, or None (disabled)

Subcommands:
  status - Show cache statistics and connection info
  clear  - Remove all cached fits

Examples:
  # Check cache status
  macindex cache status

  # Clear cache after editing the scenario catalog
  macindex cache clear`,
}

// cacheClearCmd clears the cache.
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached weight fits",
	Long: `Delete all cached weight fits from the configured backend.

Use this when:
- The fitting code or its defaults changed
- Cache may be stale or corrupted
- Testing performance without cache

For SQLite: Deletes the database file
For MySQL/PostgreSQL: Drops the cache table

Examples:
  # Clear SQLite cache (default)
  macindex cache clear

  # Clear MySQL cache (set connection string via env variable)
  MACINDEX_CACHE_BACKEND=mysql MACINDEX_CACHE_DB_CONNECT="..." macindex cache clear`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		iocache.CloseCaching()
		if err := iocache.ClearCache(cfg.CacheBackend, contract.GetCacheDBFilePath(), cfg.CacheDBConnect); err != nil {
			contract.LogFatal("Failed to clear cache", err)
		}
		fmt.Println("Cache cleared successfully.")
	},
}

// cacheStatusCmd shows cache status.
var cacheStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Display cache statistics and connection details",
	Long: `Show detailed information about the weight fit cache.

Displays:
- Backend type and connection status
- Total number of cached fits
- Last and oldest cache entry timestamps
- Cache database size

Examples:
  # Check cache status
  macindex cache status`,
	PreRunE: cacheSetupWrapper,
	Run: func(_ *cobra.Command, _ []string) {
		store := iocache.Manager.GetFitStore()
		if store == nil {
			contract.LogFatal("Failed to get cache status", fmt.Errorf("%w: fit cache is disabled", schema.ErrConfig))
		}
		status, err := store.GetStatus()
		if err != nil {
			contract.LogFatal("Failed to get cache status", err)
		}
		iocache.PrintCacheStatus(os.Stdout, status)
	},
}
