// Package iocache persists fitted weight vectors and backtest runs.
package iocache

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
)

// CacheStoreImpl is a key/value store over one SQL table.
type CacheStoreImpl struct {
	db        *sql.DB
	tableName string
	backend   schema.DatabaseBackend
	connStr   string
}

var _ contract.CacheStore = &CacheStoreImpl{} // Compile-time check

// NewCacheStore opens the store and creates its table when missing.
// The none backend yields a store that never hits.
func NewCacheStore(tableName string, backend schema.DatabaseBackend, connStr string) (*CacheStoreImpl, error) {
	if err := validateTableName(tableName); err != nil {
		return nil, err
	}
	store := &CacheStoreImpl{tableName: tableName, backend: backend, connStr: connStr}
	if backend == schema.NoneBackend {
		return store, nil
	}

	db, err := openDB(backend, connStr, GetDBFilePath())
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(getCreateTableQuery(tableName, backend)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create table %s: %w", tableName, err)
	}
	store.db = db
	return store, nil
}

// getCreateTableQuery returns the CREATE TABLE query for the given backend.
func getCreateTableQuery(tableName string, backend schema.DatabaseBackend) string {
	quoted := quoteTableName(tableName, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key VARCHAR(255) PRIMARY KEY,
				cache_value BLOB NOT NULL,
				cache_version INT NOT NULL,
				cache_timestamp BIGINT NOT NULL
			);
		`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key TEXT PRIMARY KEY,
				cache_value BYTEA NOT NULL,
				cache_version INTEGER NOT NULL,
				cache_timestamp BIGINT NOT NULL
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key TEXT PRIMARY KEY,
				cache_value BLOB NOT NULL,
				cache_version INTEGER NOT NULL,
				cache_timestamp INTEGER NOT NULL
			);
		`, quoted)
	}
}

// Get retrieves a value by key from the store.
func (cs *CacheStoreImpl) Get(key string) ([]byte, int, int64, error) {
	if cs.db == nil {
		return nil, 0, 0, sql.ErrNoRows
	}

	var (
		value   []byte
		version int
		ts      int64
	)
	query := rebind(cs.backend, fmt.Sprintf(`SELECT cache_value, cache_version, cache_timestamp FROM %s WHERE cache_key = ?`, quoteTableName(cs.tableName, cs.backend)))
	if err := cs.db.QueryRow(query, key).Scan(&value, &version, &ts); err != nil {
		return nil, 0, 0, err
	}
	return value, version, ts, nil
}

// Set inserts or replaces a key/value pair in the store.
func (cs *CacheStoreImpl) Set(key string, value []byte, version int, timestamp int64) error {
	if cs.db == nil {
		return nil
	}
	_, err := cs.db.Exec(cs.getUpsertQuery(), key, value, version, timestamp)
	return err
}

// getUpsertQuery returns the UPSERT query for the backend.
func (cs *CacheStoreImpl) getUpsertQuery() string {
	quoted := quoteTableName(cs.tableName, cs.backend)
	switch cs.backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`INSERT INTO %s (cache_key, cache_value, cache_version, cache_timestamp) VALUES (?, ?, ?, ?) AS new
			ON DUPLICATE KEY UPDATE cache_value = new.cache_value, cache_version = new.cache_version, cache_timestamp = new.cache_timestamp`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`INSERT INTO %s (cache_key, cache_value, cache_version, cache_timestamp) VALUES ($1, $2, $3, $4)
			ON CONFLICT (cache_key) DO UPDATE SET cache_value = EXCLUDED.cache_value, cache_version = EXCLUDED.cache_version, cache_timestamp = EXCLUDED.cache_timestamp`, quoted)

	default: // SQLite
		return fmt.Sprintf(`INSERT OR REPLACE INTO %s (cache_key, cache_value, cache_version, cache_timestamp) VALUES (?, ?, ?, ?)`, quoted)
	}
}

// Close closes the underlying DB connection.
func (cs *CacheStoreImpl) Close() error {
	if cs.db != nil {
		return cs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the cache store.
func (cs *CacheStoreImpl) GetStatus() (schema.CacheStatus, error) {
	status := schema.CacheStatus{
		Backend:   string(cs.backend),
		Connected: cs.db != nil,
	}
	if cs.db == nil {
		return status, nil
	}

	quoted := quoteTableName(cs.tableName, cs.backend)
	if err := cs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoted)).Scan(&status.TotalEntries); err != nil {
		return status, fmt.Errorf("failed to get total entries: %w", err)
	}
	if status.TotalEntries == 0 {
		return status, nil
	}

	var lastTs, oldestTs int64
	if err := cs.db.QueryRow(fmt.Sprintf("SELECT MAX(cache_timestamp), MIN(cache_timestamp) FROM %s", quoted)).Scan(&lastTs, &oldestTs); err != nil {
		return status, fmt.Errorf("failed to get entry times: %w", err)
	}
	status.LastEntryTime = time.Unix(lastTs, 0)
	status.OldestEntryTime = time.Unix(oldestTs, 0)
	status.TableSizeBytes = cs.tableSize()
	return status, nil
}

// tableSize estimates the on-disk size of the cache table.
func (cs *CacheStoreImpl) tableSize() int64 {
	var size int64
	switch cs.backend {
	case schema.SQLiteBackend:
		if err := cs.db.QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size); err == nil {
			return size
		}
	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(cs.connStr)
		if err != nil || cfg.DBName == "" {
			break
		}
		row := cs.db.QueryRow("SELECT data_length + index_length FROM information_schema.tables WHERE table_schema = ? AND table_name = ?", cfg.DBName, cs.tableName)
		if err := row.Scan(&size); err == nil {
			return size
		}
	case schema.PostgreSQLBackend:
		if err := cs.db.QueryRow("SELECT pg_total_relation_size($1)", cs.tableName).Scan(&size); err == nil {
			return size
		}
	}
	return 0
}
