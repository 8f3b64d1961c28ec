package iocache

import (
	"database/sql"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/huangsam/macindex/schema"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

var tableNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateTableName validates that the table name is a safe SQL identifier.
func validateTableName(name string) error {
	if name == "" {
		return fmt.Errorf("table name cannot be empty")
	}
	if !tableNamePattern.MatchString(name) {
		return fmt.Errorf("invalid table name: %s (must match pattern %s)", name, tableNamePattern)
	}
	return nil
}

// quoteTableName returns the properly quoted table name for the given backend.
func quoteTableName(name string, backend schema.DatabaseBackend) string {
	if backend == schema.MySQLBackend {
		return "`" + name + "`"
	}
	return `"` + name + `"`
}

// driverFor maps a backend to its database/sql driver name.
func driverFor(backend schema.DatabaseBackend) (string, error) {
	switch backend {
	case schema.SQLiteBackend:
		return "sqlite", nil
	case schema.MySQLBackend:
		return "mysql", nil
	case schema.PostgreSQLBackend:
		return "pgx", nil
	default:
		return "", fmt.Errorf("unsupported backend: %s. Must be sqlite, mysql, postgresql, or none", backend)
	}
}

// openDB opens and pings a connection. An empty SQLite connection string
// falls back to defaultPath. MySQL connections always parse DATE and
// DATETIME columns into time.Time.
func openDB(backend schema.DatabaseBackend, connStr, defaultPath string) (*sql.DB, error) {
	driverName, err := driverFor(backend)
	if err != nil {
		return nil, err
	}

	switch backend {
	case schema.SQLiteBackend:
		if connStr == "" {
			connStr = defaultPath
		}
	case schema.MySQLBackend:
		cfg, err := mysql.ParseDSN(connStr)
		if err != nil {
			return nil, fmt.Errorf("invalid MySQL connection string: %w. Expected user:password@tcp(host:port)/dbname", err)
		}
		cfg.ParseTime = true
		connStr = cfg.FormatDSN()
	}

	db, err := sql.Open(driverName, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", backend, err)
	}
	if backend == schema.SQLiteBackend {
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s database. Check that the server is running and connection parameters are valid: %w", backend, err)
	}
	return db, nil
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func rebind(backend schema.DatabaseBackend, query string) string {
	if backend != schema.PostgreSQLBackend {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// formatTime converts a time.Time to the appropriate format for the backend.
func formatTime(t time.Time, backend schema.DatabaseBackend) any {
	if backend == schema.SQLiteBackend {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// formatDate stores a calendar date.
func formatDate(t time.Time, backend schema.DatabaseBackend) any {
	if backend == schema.SQLiteBackend {
		return t.Format(time.DateOnly)
	}
	return t.UTC()
}

// timeColumn scans a timestamp column stored as text or native datetime.
type timeColumn struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (c *timeColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.Time, c.Valid = time.Time{}, false
		return nil
	case time.Time:
		c.Time, c.Valid = v.UTC(), true
		return nil
	case []byte:
		return c.parse(string(v))
	case string:
		return c.parse(v)
	default:
		return fmt.Errorf("unsupported time column type %T", src)
	}
}

func (c *timeColumn) parse(s string) error {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			c.Time, c.Valid = t.UTC(), true
			return nil
		}
	}
	return fmt.Errorf("unparseable time %q", s)
}
