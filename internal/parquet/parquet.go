// Package parquet exports stored backtest runs and composite series to
// Parquet files using github.com/parquet-go/parquet-go.
package parquet

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/parquet-go/parquet-go"
)

// Run is one backtest run. It maps to the macindex_runs table.
type Run struct {
	RunID         int64      `parquet:"run_id,snappy"`
	RunUUID       string     `parquet:"run_uuid,snappy"`
	Family        string     `parquet:"family,snappy,dict"`
	StartTime     time.Time  `parquet:"start_time,snappy"`
	EndTime       *time.Time `parquet:"end_time,optional,snappy"`
	RunDurationMs *int32     `parquet:"run_duration_ms,optional,snappy"`
	TotalDates    int32      `parquet:"total_dates,snappy"`

	// ConfigParams is the JSON-encoded run configuration
	ConfigParams *string `parquet:"config_params,optional,snappy"`
}

// Composite is one scored date. It maps to the macindex_composites table
// and doubles as the row type of a composite series export.
type Composite struct {
	RunID         int64     `parquet:"run_id,snappy"`
	ScoreDate     time.Time `parquet:"score_date,snappy"`
	Score         float64   `parquet:"score,snappy"`
	Indeterminate bool      `parquet:"indeterminate,snappy"`
	Label         string    `parquet:"label,snappy,dict"`
	BreachCount   int32     `parquet:"breach_count,snappy"`
	Penalty       float64   `parquet:"penalty,snappy"`
	Alpha         float64   `parquet:"alpha,snappy"`
	Fragility     *float64  `parquet:"fragility,optional,snappy"`
	InCrisis      bool      `parquet:"in_crisis,snappy"`

	// Flags is the comma-joined list of report flags
	Flags string `parquet:"flags,snappy"`
}

// ConvertRunRecords maps store rows to Parquet rows.
func ConvertRunRecords(records []schema.RunRecord) []Run {
	out := make([]Run, len(records))
	for i, r := range records {
		out[i] = Run{
			RunID:         r.RunID,
			RunUUID:       r.RunUUID,
			Family:        r.Family,
			StartTime:     r.StartTime,
			EndTime:       r.EndTime,
			RunDurationMs: r.RunDurationMs,
			TotalDates:    r.TotalDates,
			ConfigParams:  r.ConfigParams,
		}
	}
	return out
}

// ConvertCompositeRecords maps store rows to Parquet rows.
func ConvertCompositeRecords(records []schema.CompositeRecord) []Composite {
	out := make([]Composite, len(records))
	for i, r := range records {
		out[i] = Composite{
			RunID:         r.RunID,
			ScoreDate:     r.ScoreDate,
			Score:         r.Score,
			Indeterminate: r.Indeterminate,
			Label:         r.Label,
			BreachCount:   r.BreachCount,
			Penalty:       r.Penalty,
			Alpha:         r.Alpha,
			Fragility:     r.Fragility,
			InCrisis:      r.InCrisis,
			Flags:         r.Flags,
		}
	}
	return out
}

// CompositesFromSeries flattens a backtest series into Parquet rows.
func CompositesFromSeries(runID int64, series []schema.BacktestPoint) []Composite {
	records := make([]schema.CompositeRecord, len(series))
	for i, p := range series {
		records[i] = schema.CompositeRecordFrom(runID, p)
	}
	return ConvertCompositeRecords(records)
}

// WriteRunsParquet writes runs to a Parquet file.
func WriteRunsParquet(data []Run, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteCompositesParquet writes composites to a Parquet file.
func WriteCompositesParquet(data []Composite, outputPath string) error {
	return writeFile(data, outputPath)
}

// WriteComposites streams composites to w.
func WriteComposites(w io.Writer, data []Composite) error {
	return writeRows(w, data)
}

func writeFile[T any](data []T, outputPath string) error {
	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	if err := writeRows(file, data); err != nil {
		_ = file.Close()
		return err
	}
	return file.Close()
}

// writeRows infers the schema from T's struct tags.
func writeRows[T any](w io.Writer, data []T) error {
	writer := parquet.NewGenericWriter[T](w)
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write data to parquet file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize parquet file: %w", err)
	}
	return nil
}
