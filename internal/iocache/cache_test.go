package iocache

import (
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTableName(t *testing.T) {
	tests := []struct {
		name    string
		table   string
		wantErr bool
	}{
		{"plain", "fit_cache", false},
		{"leading underscore", "_tmp", false},
		{"digits", "runs2", false},
		{"empty", "", true},
		{"leading digit", "2runs", true},
		{"dash", "fit-cache", true},
		{"injection", "fit; DROP TABLE x", true},
		{"quote", `fit"cache`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTableName(tt.table)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestQuoteTableName(t *testing.T) {
	assert.Equal(t, "`fit_cache`", quoteTableName("fit_cache", schema.MySQLBackend))
	assert.Equal(t, `"fit_cache"`, quoteTableName("fit_cache", schema.PostgreSQLBackend))
	assert.Equal(t, `"fit_cache"`, quoteTableName("fit_cache", schema.SQLiteBackend))
}

func TestRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE x = ? AND y = ?"
	assert.Equal(t, q, rebind(schema.SQLiteBackend, q))
	assert.Equal(t, q, rebind(schema.MySQLBackend, q))
	assert.Equal(t, "SELECT a FROM t WHERE x = $1 AND y = $2", rebind(schema.PostgreSQLBackend, q))
}

func TestTimeColumnScan(t *testing.T) {
	ref := time.Date(2020, 3, 16, 12, 30, 0, 0, time.UTC)
	tests := []struct {
		name  string
		src   any
		want  time.Time
		valid bool
	}{
		{"nil", nil, time.Time{}, false},
		{"native", ref, ref, true},
		{"rfc3339", ref.Format(time.RFC3339Nano), ref, true},
		{"bytes", []byte("2020-03-16"), time.Date(2020, 3, 16, 0, 0, 0, 0, time.UTC), true},
		{"datetime", "2020-03-16 12:30:00", ref, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c timeColumn
			require.NoError(t, c.Scan(tt.src))
			assert.Equal(t, tt.valid, c.Valid)
			assert.True(t, tt.want.Equal(c.Time))
		})
	}

	var c timeColumn
	assert.Error(t, c.Scan("yesterday"))
	assert.Error(t, c.Scan(42))
}

func TestGetCreateTableQuery(t *testing.T) {
	tests := []struct {
		backend  schema.DatabaseBackend
		contains []string
	}{
		{schema.SQLiteBackend, []string{`"fit_cache"`, "cache_value BLOB", "cache_timestamp INTEGER"}},
		{schema.MySQLBackend, []string{"`fit_cache`", "VARCHAR(255)", "BIGINT"}},
		{schema.PostgreSQLBackend, []string{`"fit_cache"`, "BYTEA"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			q := getCreateTableQuery(fitTable, tt.backend)
			for _, s := range tt.contains {
				assert.Contains(t, q, s)
			}
		})
	}
}

func TestGetUpsertQuery(t *testing.T) {
	tests := []struct {
		backend schema.DatabaseBackend
		want    string
	}{
		{schema.SQLiteBackend, "INSERT OR REPLACE"},
		{schema.MySQLBackend, "ON DUPLICATE KEY UPDATE"},
		{schema.PostgreSQLBackend, "ON CONFLICT (cache_key)"},
	}
	for _, tt := range tests {
		t.Run(string(tt.backend), func(t *testing.T) {
			cs := &CacheStoreImpl{tableName: fitTable, backend: tt.backend}
			assert.Contains(t, cs.getUpsertQuery(), tt.want)
		})
	}
}

func TestNewCacheStoreErrors(t *testing.T) {
	_, err := NewCacheStore("bad-name", schema.SQLiteBackend, "")
	assert.Error(t, err)

	_, err = NewCacheStore(fitTable, schema.DatabaseBackend("oracle"), "")
	assert.Error(t, err)

	_, err = NewCacheStore(fitTable, schema.MySQLBackend, "not a dsn")
	assert.Error(t, err)
}

func TestCacheStoreNoneBackend(t *testing.T) {
	store, err := NewCacheStore(fitTable, schema.NoneBackend, "")
	require.NoError(t, err)

	_, _, _, err = store.Get("k")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, store.Set("k", []byte("v"), 1, 1))

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.False(t, status.Connected)
	assert.Equal(t, "none", status.Backend)
	assert.NoError(t, store.Close())
}

func TestCacheStoreSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fits.db")
	store, err := NewCacheStore(fitTable, schema.SQLiteBackend, path)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	status, err := store.GetStatus()
	require.NoError(t, err)
	assert.True(t, status.Connected)
	assert.Zero(t, status.TotalEntries)

	_, _, _, err = store.Get("missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)

	require.NoError(t, store.Set("a", []byte(`{"w":1}`), 1, 1000))
	require.NoError(t, store.Set("b", []byte(`{"w":2}`), 1, 2000))
	require.NoError(t, store.Set("a", []byte(`{"w":3}`), 2, 3000))

	value, version, ts, err := store.Get("a")
	require.NoError(t, err)
	assert.Equal(t, `{"w":3}`, string(value))
	assert.Equal(t, 2, version)
	assert.Equal(t, int64(3000), ts)

	status, err = store.GetStatus()
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalEntries)
	assert.Equal(t, time.Unix(3000, 0), status.LastEntryTime)
	assert.Equal(t, time.Unix(2000, 0), status.OldestEntryTime)
	assert.Positive(t, status.TableSizeBytes)
}
