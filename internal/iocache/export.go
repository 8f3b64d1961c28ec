package iocache

import (
	"errors"
	"fmt"
	"io"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/parquet"
	"github.com/huangsam/macindex/schema"
)

// ExportRuns writes every stored run and its composites to two Parquet
// files named after outputFile.
func ExportRuns(store contract.RunStore, outputFile string, w io.Writer) error {
	if outputFile == "" {
		return errors.New("--output-file is required for export command")
	}
	if store == nil {
		return errors.New("run store is not initialized")
	}

	status, err := store.GetStatus()
	if err != nil {
		return fmt.Errorf("failed to get run store status: %w", err)
	}
	if status.TotalRuns == 0 {
		return errors.New("no backtest runs found to export")
	}
	_, _ = fmt.Fprintf(w, "Exporting data from %s backend...\n", status.Backend)

	runs, err := store.ListRuns(0)
	if err != nil {
		return fmt.Errorf("failed to retrieve runs: %w", err)
	}
	var composites []schema.CompositeRecord
	for i := len(runs) - 1; i >= 0; i-- {
		rows, err := store.GetComposites(runs[i].RunID)
		if err != nil {
			return fmt.Errorf("failed to retrieve composites of run %d: %w", runs[i].RunID, err)
		}
		composites = append(composites, rows...)
	}

	runsFile := outputFile + ".runs.parquet"
	if err := parquet.WriteRunsParquet(parquet.ConvertRunRecords(runs), runsFile); err != nil {
		return fmt.Errorf("failed to write runs: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d runs to: %s\n", len(runs), runsFile)

	compositesFile := outputFile + ".composites.parquet"
	if err := parquet.WriteCompositesParquet(parquet.ConvertCompositeRecords(composites), compositesFile); err != nil {
		return fmt.Errorf("failed to write composites: %w", err)
	}
	_, _ = fmt.Fprintf(w, "Exported %d composites to: %s\n", len(composites), compositesFile)
	return nil
}
