package iocache

import (
	"fmt"
	"io"
	"slices"

	"github.com/huangsam/macindex/schema"
)

const statusTimeFormat = "2006-01-02 15:04:05"

// PrintCacheStatus prints fit cache status information.
func PrintCacheStatus(w io.Writer, status schema.CacheStatus) {
	_, _ = fmt.Fprintf(w, "Fit Cache Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Total Entries: %d\n", status.TotalEntries)
	if status.TotalEntries > 0 {
		_, _ = fmt.Fprintf(w, "Last Entry: %s\n", status.LastEntryTime.Format(statusTimeFormat))
		_, _ = fmt.Fprintf(w, "Oldest Entry: %s\n", status.OldestEntryTime.Format(statusTimeFormat))
	}
	_, _ = fmt.Fprintf(w, "Table Size: %d bytes\n", status.TableSizeBytes)
}

// PrintRunStatus prints run store status information.
func PrintRunStatus(w io.Writer, status schema.RunStoreStatus) {
	_, _ = fmt.Fprintf(w, "Run Store Backend: %s\n", status.Backend)
	_, _ = fmt.Fprintf(w, "Connected: %t\n", status.Connected)
	if !status.Connected {
		return
	}
	_, _ = fmt.Fprintf(w, "Total Runs: %d\n", status.TotalRuns)
	if status.TotalRuns > 0 {
		_, _ = fmt.Fprintf(w, "Last Run ID: %d\n", status.LastRunID)
		_, _ = fmt.Fprintf(w, "Last Run: %s\n", status.LastRunTime.Format(statusTimeFormat))
		_, _ = fmt.Fprintf(w, "Oldest Run: %s\n", status.OldestRunTime.Format(statusTimeFormat))
		_, _ = fmt.Fprintf(w, "Total Composites: %d\n", status.TotalComposites)
	}
	_, _ = fmt.Fprintln(w, "Table Sizes:")
	tables := make([]string, 0, len(status.TableSizes))
	for table := range status.TableSizes {
		tables = append(tables, table)
	}
	slices.Sort(tables)
	for _, table := range tables {
		_, _ = fmt.Fprintf(w, "  %s: %d rows\n", table, status.TableSizes[table])
	}
}
