package iocache

import (
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
)

// fitTable is the name of the table for cached weight fits.
const fitTable = "fit_cache"

// Global Manager instance for main logic.
var (
	Manager   = &CacheStoreManager{}
	initOnce  sync.Once
	closeOnce sync.Once
)

// GetDBFilePath returns the path to the SQLite DB file for the fit cache.
func GetDBFilePath() string {
	return contract.GetCacheDBFilePath()
}

// GetRunDBFilePath returns the path to the SQLite DB file for the run store.
func GetRunDBFilePath() string {
	return contract.GetRunDBFilePath()
}

// InitCaching initializes the global manager with the fit cache and run store.
// An empty backend leaves that store unset.
func InitCaching(fitBackend schema.DatabaseBackend, fitConnStr string, runBackend schema.DatabaseBackend, runConnStr string) error {
	var initErr error

	initOnce.Do(func() {
		var fits contract.CacheStore
		if fitBackend != "" {
			store, err := NewCacheStore(fitTable, fitBackend, fitConnStr)
			if err != nil {
				initErr = fmt.Errorf("failed to initialize fit cache: %w", err)
				return
			}
			fits = store
		}

		var runs contract.RunStore
		if runBackend != "" {
			store, err := NewRunStore(runBackend, runConnStr)
			if err != nil {
				if fits != nil {
					_ = fits.Close()
				}
				initErr = fmt.Errorf("failed to initialize run store: %w", err)
				return
			}
			runs = store
		}

		Manager.Lock()
		Manager.fits = fits
		Manager.runs = runs
		Manager.Unlock()
	})

	return initErr
}

// CloseCaching should be called on application shutdown.
func CloseCaching() {
	closeOnce.Do(func() {
		Manager.Lock()
		defer Manager.Unlock()
		if Manager.fits != nil {
			_ = Manager.fits.Close()
		}
		if Manager.runs != nil {
			_ = Manager.runs.Close()
		}
	})
}

// ClearCache clears the fit cache for the specified backend.
// For SQLite, it deletes the database file.
// For MySQL/PostgreSQL, it drops the table.
func ClearCache(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	return clearStore(backend, dbFilePath, connStr, fitTable)
}

// ClearRuns clears every stored run for the specified backend.
func ClearRuns(backend schema.DatabaseBackend, dbFilePath, connStr string) error {
	return clearStore(backend, dbFilePath, connStr, compositesTable, runsTable, "schema_migrations")
}

func clearStore(backend schema.DatabaseBackend, dbFilePath, connStr string, tables ...string) error {
	switch backend {
	case schema.SQLiteBackend:
		if dbFilePath == "" {
			return fmt.Errorf("dbFilePath cannot be empty for SQLite backend")
		}
		if err := os.Remove(dbFilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove SQLite database file %s: %w", dbFilePath, err)
		}
		return nil

	case schema.MySQLBackend, schema.PostgreSQLBackend:
		for _, table := range tables {
			if err := clearSQLTable(backend, connStr, table); err != nil {
				return err
			}
		}
		return nil

	case schema.NoneBackend:
		return nil

	default:
		return fmt.Errorf("unsupported backend for clearing: %s", backend)
	}
}

// clearSQLTable connects to the SQL database and drops the table if it exists.
func clearSQLTable(backend schema.DatabaseBackend, connStr, tableName string) error {
	driverName, err := driverFor(backend)
	if err != nil {
		return err
	}
	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to %s database: %w", backend, err)
	}
	defer func() { _ = db.Close() }()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", backend, err)
	}
	query := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteTableName(tableName, backend))
	if _, err := db.Exec(query); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", tableName, err)
	}
	return nil
}
