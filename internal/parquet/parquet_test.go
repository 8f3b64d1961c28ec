package parquet

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAll[T any](t *testing.T, r io.ReaderAt) []T {
	t.Helper()
	reader := parquet.NewGenericReader[T](r)
	defer func() { _ = reader.Close() }()

	rows := make([]T, reader.NumRows())
	n, err := reader.Read(rows)
	if err != nil && !errors.Is(err, io.EOF) {
		require.NoError(t, err)
	}
	return rows[:n]
}

func TestStructTags(t *testing.T) {
	tests := []struct {
		name    string
		model   any
		columns []string
	}{
		{"run", new(Run), []string{"run_id", "run_uuid", "family", "start_time", "end_time", "run_duration_ms", "total_dates", "config_params"}},
		{"composite", new(Composite), []string{"run_id", "score_date", "score", "indeterminate", "label", "breach_count", "penalty", "alpha", "fragility", "in_crisis", "flags"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := parquet.SchemaOf(tt.model)
			for _, col := range tt.columns {
				_, ok := s.Lookup(col)
				assert.True(t, ok, "column %s should exist", col)
			}
		})
	}
}

func TestWriteRunsParquet(t *testing.T) {
	now := time.Now().UTC()
	end := now.Add(90 * time.Second)
	duration := int32(90000)
	params := `{"family":"mac","step_days":7}`

	records := []schema.RunRecord{
		{RunID: 1, RunUUID: "a", Family: "mac", StartTime: now, EndTime: &end, RunDurationMs: &duration, TotalDates: 520, ConfigParams: &params},
		{RunID: 2, RunUUID: "b", Family: "grri", StartTime: now},
	}
	path := filepath.Join(t.TempDir(), "runs.parquet")
	require.NoError(t, WriteRunsParquet(ConvertRunRecords(records), path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows := readAll[Run](t, f)
	require.Len(t, rows, 2)

	assert.Equal(t, "a", rows[0].RunUUID)
	assert.Equal(t, int32(520), rows[0].TotalDates)
	require.NotNil(t, rows[0].EndTime)
	assert.WithinDuration(t, end, *rows[0].EndTime, time.Nanosecond)
	require.NotNil(t, rows[0].ConfigParams)
	assert.Equal(t, params, *rows[0].ConfigParams)

	assert.Nil(t, rows[1].EndTime)
	assert.Nil(t, rows[1].RunDurationMs)
	assert.Nil(t, rows[1].ConfigParams)
}

func TestCompositesFromSeries(t *testing.T) {
	date := time.Date(2008, 9, 19, 0, 0, 0, 0, time.UTC)
	series := []schema.BacktestPoint{
		{
			CompositeReport: schema.CompositeReport{
				Date: date, Score: 0.18, Label: schema.RegimeBreakLabel, BreachCount: 4, Penalty: 0.02, Alpha: 0.8,
				Regime: &schema.RegimeReading{Fragility: 0.9},
				Flags:  []schema.ReportFlag{schema.FlagPillarExcluded, schema.FlagRefitRetained},
			},
			InCrisis: true,
		},
		{
			CompositeReport: schema.CompositeReport{Date: date.AddDate(0, 0, 7), Indeterminate: true},
		},
	}

	rows := CompositesFromSeries(7, series)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(7), rows[0].RunID)
	assert.Equal(t, int32(4), rows[0].BreachCount)
	require.NotNil(t, rows[0].Fragility)
	assert.Equal(t, 0.9, *rows[0].Fragility)
	assert.Equal(t, schema.JoinFlags(series[0].Flags), rows[0].Flags)
	assert.True(t, rows[0].InCrisis)
	assert.Nil(t, rows[1].Fragility)
	assert.True(t, rows[1].Indeterminate)

	var buf bytes.Buffer
	require.NoError(t, WriteComposites(&buf, rows))
	back := readAll[Composite](t, bytes.NewReader(buf.Bytes()))
	require.Len(t, back, 2)
	assert.True(t, back[0].ScoreDate.Equal(date))
	assert.Equal(t, 0.18, back[0].Score)
	assert.Equal(t, string(schema.RegimeBreakLabel), back[0].Label)
	assert.Nil(t, back[1].Fragility)
}

func TestWriteParquetInvalidPath(t *testing.T) {
	err := WriteCompositesParquet(nil, filepath.Join(t.TempDir(), "missing", "out.parquet"))
	assert.Error(t, err)
}

func TestWriteParquetEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.parquet")
	require.NoError(t, WriteRunsParquet([]Run{}, path))
	_, err := os.Stat(path)
	assert.NoError(t, err)
}
