//go:build basic

// Package integration contains integration tests for macindex.
// These tests are excluded from normal test runs due to build tags.
// To run these tests: go test -tags basic ./integration
// Database backends need Docker: go test -tags database ./integration
package integration

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestScoreVerification checks the JSON report against the fixture values.
func TestScoreVerification(t *testing.T) {
	f := writeFixture(t)

	tests := []struct {
		name      string
		asOf      string
		wantAvg   float64
		breaches  int
		stressful bool
	}{
		{"calm", "2018-09-07", 0.7, 0, false},
		{"stressed", "2019-04-05", 0.2, 6, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := runMacindex(t, f, nil, f.args("score", "--as-of", tt.asOf, "--output", "json", "--output-file", "score.json", "--cache-backend", "none")...)
			require.NoError(t, err, out)

			data, err := os.ReadFile(filepath.Join(f.dir, "score.json"))
			require.NoError(t, err)
			var report schema.CompositeReport
			require.NoError(t, json.Unmarshal(data, &report))

			assert.Equal(t, schema.MACFamily, report.Family)
			assert.Equal(t, tt.asOf, report.Date.Format("2006-01-02"))
			assert.False(t, report.Indeterminate)
			assert.InDelta(t, tt.wantAvg, report.WeightedAverage, 1e-6)
			assert.Equal(t, tt.breaches, report.BreachCount)
			if tt.stressful {
				assert.Less(t, report.Score, 0.3)
			} else {
				assert.Greater(t, report.Score, 0.3)
			}
		})
	}
}

// TestRegimeVerification checks that the regime series covers every step.
func TestRegimeVerification(t *testing.T) {
	f := writeFixture(t)
	out, err := runMacindex(t, f, nil, f.args("regime", "--start", "2019-01-04", "--end", "2019-06-28", "--output", "csv", "--output-file", "regime.csv", "--cache-backend", "none")...)
	require.NoError(t, err, out)

	file, err := os.Open(filepath.Join(f.dir, "regime.csv"))
	require.NoError(t, err)
	defer func() { _ = file.Close() }()
	records, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)

	// 26 weekly steps plus the header
	require.Len(t, records, 27)
	assert.Equal(t, []string{"date", "fragility", "state"}, records[0])
	for _, r := range records[1:] {
		if r[0] >= "2019-03-01" && r[0] <= "2019-05-31" {
			assert.Equal(t, string(schema.FragileState), r[2], "date %s", r[0])
		}
	}
}

// TestBacktestRecordsRunsInSQLite runs a backtest against the default SQLite
// run store and reads it back through runs list and export.
func TestBacktestRecordsRunsInSQLite(t *testing.T) {
	f := writeFixture(t)
	env := []string{"MACINDEX_RUN_BACKEND=sqlite"}

	out, err := runMacindex(t, f, env, f.args("backtest", "--start", "2018-06-01", "--refit-every", "26")...)
	require.NoError(t, err, out)
	assert.Contains(t, out, "Series:")

	out, err = runMacindex(t, f, env, "runs", "list", "--output", "csv")
	require.NoError(t, err, out)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], ",mac,")

	out, err = runMacindex(t, f, env, "runs", "export", "--output-file", filepath.Join(f.dir, "export"))
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(f.dir, "export.composites.parquet"))
	assert.FileExists(t, filepath.Join(f.dir, "export.runs.parquet"))
}

// TestMetricsAndVersion checks the informational commands.
func TestMetricsAndVersion(t *testing.T) {
	f := writeFixture(t)

	out, err := runMacindex(t, f, nil, "metrics", "--color", "no", "--cache-backend", "none")
	require.NoError(t, err, out)
	assert.Contains(t, out, "MAC")
	assert.Contains(t, out, "α")

	out, err = runMacindex(t, f, nil, "version")
	require.NoError(t, err, out)
	assert.Contains(t, out, "macindex CLI")
}
