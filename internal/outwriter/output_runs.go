package outwriter

import (
	"io"
	"strconv"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintRuns outputs recorded backtest runs, newest first, dispatching based on the output format configured.
func PrintRuns(runs []schema.RunRecord, cfg *contract.Config) error {
	return render(cfg, runs,
		func() []sheet { return []sheet{runsSheet(runs)} },
		func(w io.Writer) error { return writeRunsText(w, runs, cfg) },
	)
}

func runsSheet(runs []schema.RunRecord) sheet {
	s := sheet{name: "runs", header: []string{"run_id", "run_uuid", "family", "start_time", "end_time", "duration_ms", "total_dates"}}
	for _, r := range runs {
		end, dur := "", ""
		if r.EndTime != nil {
			end = r.EndTime.Format("2006-01-02T15:04:05Z07:00")
		}
		if r.RunDurationMs != nil {
			dur = strconv.Itoa(int(*r.RunDurationMs))
		}
		s.rows = append(s.rows, []string{
			strconv.FormatInt(r.RunID, 10),
			r.RunUUID,
			r.Family,
			r.StartTime.Format("2006-01-02T15:04:05Z07:00"),
			end,
			dur,
			strconv.Itoa(int(r.TotalDates)),
		})
	}
	return s
}

// writeRunsText generates and writes the human-readable runs table.
func writeRunsText(w io.Writer, runs []schema.RunRecord, cfg *contract.Config) error {
	if len(runs) == 0 {
		return fprintf(w, "No backtest runs recorded. Run store backend: %s\n", cfg.RunBackend)
	}
	table := tablewriter.NewWriter(w)
	table.Header([]string{"ID", "UUID", "Family", "Started", "Duration", "Dates"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var data [][]string
	for _, r := range runs {
		dur := "running"
		if r.RunDurationMs != nil {
			dur = strconv.Itoa(int(*r.RunDurationMs)) + "ms"
		}
		data = append(data, []string{
			strconv.FormatInt(r.RunID, 10),
			contract.TruncateText(r.RunUUID, 13),
			r.Family,
			r.StartTime.Format("2006-01-02 15:04"),
			dur,
			strconv.Itoa(int(r.TotalDates)),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	return fprintf(w, "Showing %d runs. Run store backend: %s\n", len(runs), cfg.RunBackend)
}
