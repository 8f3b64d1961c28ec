package iocache

import (
	"embed"
	"errors"
	"fmt"
	"io"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/huangsam/macindex/schema"
)

//go:embed migrations
var migrationsFS embed.FS

// migrationDirs maps each backend to its dialect of the run store migrations.
var migrationDirs = map[schema.DatabaseBackend]string{
	schema.SQLiteBackend:     "migrations/sqlite",
	schema.MySQLBackend:      "migrations/mysql",
	schema.PostgreSQLBackend: "migrations/postgres",
}

// MigrateRuns runs database migrations for the run store.
// - If targetVersion < 0, it migrates to the latest version.
// - If targetVersion == 0, it rolls back all migrations.
// - If targetVersion > 0, it migrates to the specified version.
func MigrateRuns(backend schema.DatabaseBackend, connStr string, targetVersion int, w io.Writer) error {
	dir, ok := migrationDirs[backend]
	if !ok {
		return fmt.Errorf("migrations are not supported for backend %q", backend)
	}
	if backend == schema.MySQLBackend {
		cfg, err := mysql.ParseDSN(connStr)
		if err != nil {
			return fmt.Errorf("invalid MySQL connection string: %w", err)
		}
		cfg.MultiStatements = true
		connStr = cfg.FormatDSN()
	}

	db, err := openDB(backend, connStr, GetRunDBFilePath())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	var driver database.Driver
	switch backend {
	case schema.SQLiteBackend:
		driver, err = sqlite.WithInstance(db, &sqlite.Config{})
	case schema.MySQLBackend:
		driver, err = migratemysql.WithInstance(db, &migratemysql.Config{})
	case schema.PostgreSQLBackend:
		driver, err = postgres.WithInstance(db, &postgres.Config{})
	}
	if err != nil {
		return fmt.Errorf("failed to create %s migrate driver: %w", backend, err)
	}

	sourceDriver, err := iofs.New(migrationsFS, dir)
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "macindex", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	currentVersion, dirty, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("failed to get current migration version: %w", err)
	}
	if dirty {
		return fmt.Errorf("database is in a dirty state at version %d. Please fix manually or force version", currentVersion)
	}

	switch {
	case targetVersion < 0:
		err = m.Up()
	case targetVersion == 0:
		err = m.Down()
	default:
		err = m.Migrate(uint(targetVersion))
	}
	if errors.Is(err, migrate.ErrNoChange) {
		_, _ = fmt.Fprintf(w, "No migration needed. Database is already at version %d\n", currentVersion)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to migrate from version %d: %w", currentVersion, err)
	}

	newVersion, _, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		newVersion = 0
	} else if err != nil {
		return fmt.Errorf("failed to read migrated version: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Successfully migrated from version %d to version %d\n", currentVersion, newVersion)
	return nil
}
