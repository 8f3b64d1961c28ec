package iocache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
)

// Table names for run tracking.
const (
	runsTable       = "macindex_runs"
	compositesTable = "macindex_composites"
)

// RunStoreImpl implements the RunStore interface.
type RunStoreImpl struct {
	db      *sql.DB
	backend schema.DatabaseBackend
}

var _ contract.RunStore = &RunStoreImpl{} // Compile-time check

// NewRunStore opens the run store and creates its tables when missing.
func NewRunStore(backend schema.DatabaseBackend, connStr string) (*RunStoreImpl, error) {
	if backend == schema.NoneBackend {
		return &RunStoreImpl{backend: backend}, nil
	}
	db, err := openDB(backend, connStr, GetRunDBFilePath())
	if err != nil {
		return nil, err
	}
	if err := createRunTables(db, backend); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create run tables: %w", err)
	}
	return &RunStoreImpl{db: db, backend: backend}, nil
}

// createRunTables creates the run tracking tables.
func createRunTables(db *sql.DB, backend schema.DatabaseBackend) error {
	tables := []struct {
		name  string
		query string
	}{
		{runsTable, getCreateRunsQuery(backend)},
		{compositesTable, getCreateCompositesQuery(backend)},
	}
	for _, table := range tables {
		if _, err := db.Exec(table.query); err != nil {
			return fmt.Errorf("failed to create table %s: %w", table.name, err)
		}
	}
	return nil
}

// getCreateRunsQuery returns the CREATE TABLE query for macindex_runs.
func getCreateRunsQuery(backend schema.DatabaseBackend) string {
	quoted := quoteTableName(runsTable, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT AUTO_INCREMENT PRIMARY KEY,
				run_uuid VARCHAR(36) NOT NULL UNIQUE,
				family VARCHAR(16) NOT NULL,
				start_time DATETIME(6) NOT NULL,
				end_time DATETIME(6),
				run_duration_ms INT,
				total_dates INT NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGSERIAL PRIMARY KEY,
				run_uuid TEXT NOT NULL UNIQUE,
				family TEXT NOT NULL,
				start_time TIMESTAMPTZ NOT NULL,
				end_time TIMESTAMPTZ,
				run_duration_ms INT,
				total_dates INT NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER PRIMARY KEY AUTOINCREMENT,
				run_uuid TEXT NOT NULL UNIQUE,
				family TEXT NOT NULL,
				start_time TEXT NOT NULL,
				end_time TEXT,
				run_duration_ms INTEGER,
				total_dates INTEGER NOT NULL DEFAULT 0,
				config_params TEXT
			);
		`, quoted)
	}
}

// getCreateCompositesQuery returns the CREATE TABLE query for macindex_composites.
func getCreateCompositesQuery(backend schema.DatabaseBackend) string {
	quoted := quoteTableName(compositesTable, backend)
	switch backend {
	case schema.MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				score_date DATE NOT NULL,
				score DOUBLE NOT NULL,
				indeterminate BOOLEAN NOT NULL,
				label VARCHAR(32) NOT NULL,
				breach_count INT NOT NULL,
				penalty DOUBLE NOT NULL,
				alpha DOUBLE NOT NULL,
				fragility DOUBLE,
				in_crisis BOOLEAN NOT NULL,
				flags TEXT NOT NULL,
				PRIMARY KEY (run_id, score_date)
			);
		`, quoted)

	case schema.PostgreSQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id BIGINT NOT NULL,
				score_date DATE NOT NULL,
				score DOUBLE PRECISION NOT NULL,
				indeterminate BOOLEAN NOT NULL,
				label TEXT NOT NULL,
				breach_count INT NOT NULL,
				penalty DOUBLE PRECISION NOT NULL,
				alpha DOUBLE PRECISION NOT NULL,
				fragility DOUBLE PRECISION,
				in_crisis BOOLEAN NOT NULL,
				flags TEXT NOT NULL,
				PRIMARY KEY (run_id, score_date)
			);
		`, quoted)

	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				run_id INTEGER NOT NULL,
				score_date TEXT NOT NULL,
				score REAL NOT NULL,
				indeterminate INTEGER NOT NULL,
				label TEXT NOT NULL,
				breach_count INTEGER NOT NULL,
				penalty REAL NOT NULL,
				alpha REAL NOT NULL,
				fragility REAL,
				in_crisis INTEGER NOT NULL,
				flags TEXT NOT NULL,
				PRIMARY KEY (run_id, score_date)
			);
		`, quoted)
	}
}

// BeginRun creates a new run and returns its numeric ID.
func (rs *RunStoreImpl) BeginRun(runUUID string, startTime time.Time, family schema.Family, configParams map[string]any) (int64, error) {
	if rs.db == nil {
		return 0, nil
	}
	configJSON, err := json.Marshal(configParams)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal config params: %w", err)
	}

	quoted := quoteTableName(runsTable, rs.backend)
	args := []any{runUUID, string(family), formatTime(startTime, rs.backend), string(configJSON)}

	var runID int64
	switch rs.backend {
	case schema.PostgreSQLBackend:
		query := fmt.Sprintf(`INSERT INTO %s (run_uuid, family, start_time, config_params) VALUES ($1, $2, $3, $4) RETURNING run_id`, quoted)
		err = rs.db.QueryRow(query, args...).Scan(&runID)
	default: // SQLite and MySQL
		query := fmt.Sprintf(`INSERT INTO %s (run_uuid, family, start_time, config_params) VALUES (?, ?, ?, ?)`, quoted)
		var result sql.Result
		if result, err = rs.db.Exec(query, args...); err == nil {
			runID, err = result.LastInsertId()
		}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to insert run: %w", err)
	}
	return runID, nil
}

// EndRun updates the run with completion data.
func (rs *RunStoreImpl) EndRun(runID int64, endTime time.Time, totalDates int) error {
	if rs.db == nil {
		return nil
	}
	quoted := quoteTableName(runsTable, rs.backend)

	var start timeColumn
	query := rebind(rs.backend, fmt.Sprintf(`SELECT start_time FROM %s WHERE run_id = ?`, quoted))
	if err := rs.db.QueryRow(query, runID).Scan(&start); err != nil {
		return fmt.Errorf("failed to get start_time for run %d: %w", runID, err)
	}

	durationMs := endTime.Sub(start.Time).Milliseconds()
	update := rebind(rs.backend, fmt.Sprintf(`UPDATE %s SET end_time = ?, run_duration_ms = ?, total_dates = ? WHERE run_id = ?`, quoted))
	if _, err := rs.db.Exec(update, formatTime(endTime, rs.backend), durationMs, totalDates, runID); err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	return nil
}

// RecordComposite stores one scored date of a run.
func (rs *RunStoreImpl) RecordComposite(runID int64, rec schema.CompositeRecord) error {
	if rs.db == nil {
		return nil
	}
	query := rebind(rs.backend, fmt.Sprintf(`
		INSERT INTO %s (run_id, score_date, score, indeterminate, label, breach_count,
		                penalty, alpha, fragility, in_crisis, flags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, quoteTableName(compositesTable, rs.backend)))

	var fragility sql.NullFloat64
	if rec.Fragility != nil {
		fragility = sql.NullFloat64{Float64: *rec.Fragility, Valid: true}
	}
	_, err := rs.db.Exec(query,
		runID, formatDate(rec.ScoreDate, rs.backend), rec.Score, rec.Indeterminate, rec.Label, rec.BreachCount,
		rec.Penalty, rec.Alpha, fragility, rec.InCrisis, rec.Flags,
	)
	if err != nil {
		return fmt.Errorf("failed to insert composite for %s: %w", rec.ScoreDate.Format(time.DateOnly), err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (rs *RunStoreImpl) ListRuns(limit int) ([]schema.RunRecord, error) {
	if rs.db == nil {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT run_id, run_uuid, family, start_time, end_time, run_duration_ms, total_dates, config_params
		FROM %s ORDER BY run_id DESC`, quoteTableName(runsTable, rs.backend))
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := rs.db.Query(rebind(rs.backend, query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.RunRecord
	for rows.Next() {
		var (
			rec        schema.RunRecord
			start, end timeColumn
			duration   sql.NullInt32
			params     sql.NullString
		)
		if err := rows.Scan(&rec.RunID, &rec.RunUUID, &rec.Family, &start, &end, &duration, &rec.TotalDates, &params); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		rec.StartTime = start.Time
		if end.Valid {
			t := end.Time
			rec.EndTime = &t
		}
		if duration.Valid {
			d := duration.Int32
			rec.RunDurationMs = &d
		}
		if params.Valid {
			p := params.String
			rec.ConfigParams = &p
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return results, nil
}

// GetComposites returns the stored composites of a run in date order.
func (rs *RunStoreImpl) GetComposites(runID int64) ([]schema.CompositeRecord, error) {
	if rs.db == nil {
		return nil, nil
	}
	query := rebind(rs.backend, fmt.Sprintf(`SELECT run_id, score_date, score, indeterminate, label, breach_count,
		penalty, alpha, fragility, in_crisis, flags
		FROM %s WHERE run_id = ? ORDER BY score_date`, quoteTableName(compositesTable, rs.backend)))

	rows, err := rs.db.Query(query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query composites: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []schema.CompositeRecord
	for rows.Next() {
		var (
			rec       schema.CompositeRecord
			date      timeColumn
			fragility sql.NullFloat64
		)
		if err := rows.Scan(&rec.RunID, &date, &rec.Score, &rec.Indeterminate, &rec.Label, &rec.BreachCount,
			&rec.Penalty, &rec.Alpha, &fragility, &rec.InCrisis, &rec.Flags); err != nil {
			return nil, fmt.Errorf("failed to scan composite: %w", err)
		}
		rec.ScoreDate = date.Time
		if fragility.Valid {
			f := fragility.Float64
			rec.Fragility = &f
		}
		results = append(results, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating composites: %w", err)
	}
	return results, nil
}

// Close closes the underlying connection.
func (rs *RunStoreImpl) Close() error {
	if rs.db != nil {
		return rs.db.Close()
	}
	return nil
}

// GetStatus returns status information about the run store.
func (rs *RunStoreImpl) GetStatus() (schema.RunStoreStatus, error) {
	status := schema.RunStoreStatus{
		Backend:    string(rs.backend),
		Connected:  rs.db != nil,
		TableSizes: make(map[string]int64),
	}
	if rs.db == nil {
		return status, nil
	}

	runs := quoteTableName(runsTable, rs.backend)
	if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", runs)).Scan(&status.TotalRuns); err != nil {
		return status, fmt.Errorf("failed to get total runs: %w", err)
	}

	if status.TotalRuns > 0 {
		var last, oldest timeColumn
		row := rs.db.QueryRow(fmt.Sprintf("SELECT run_id, start_time FROM %s ORDER BY run_id DESC LIMIT 1", runs))
		if err := row.Scan(&status.LastRunID, &last); err != nil {
			return status, fmt.Errorf("failed to get last run info: %w", err)
		}
		row = rs.db.QueryRow(fmt.Sprintf("SELECT start_time FROM %s ORDER BY run_id ASC LIMIT 1", runs))
		if err := row.Scan(&oldest); err != nil {
			return status, fmt.Errorf("failed to get oldest run time: %w", err)
		}
		status.LastRunTime = last.Time
		status.OldestRunTime = oldest.Time
	}

	for _, table := range []string{runsTable, compositesTable} {
		var count int64
		if err := rs.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteTableName(table, rs.backend))).Scan(&count); err != nil {
			return status, fmt.Errorf("failed to get count for table %s: %w", table, err)
		}
		status.TableSizes[table] = count
	}
	status.TotalComposites = int(status.TableSizes[compositesTable])
	return status, nil
}
