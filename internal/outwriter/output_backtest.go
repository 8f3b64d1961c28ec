package outwriter

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintBacktestReport outputs a walk-forward backtest, dispatching based on the output format configured.
// Tables summarize the run; the full series goes to CSV, XLSX, JSON or Parquet.
func PrintBacktestReport(report schema.BacktestReport, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	if cfg.Output == schema.ParquetOut {
		return writeCompositeParquet(cfg.OutputFile, 0, report.Series)
	}
	return render(cfg, report,
		func() []sheet { return backtestSheets(report, fmtFloat) },
		func(w io.Writer) error { return writeBacktestText(w, report, cfg, fmtFloat, duration) },
	)
}

func backtestSheets(r schema.BacktestReport, fmtFloat func(float64) string) []sheet {
	series := sheet{name: "series", header: append(append([]string{}, compositeHeader...), "in_crisis", "crisis_ids")}
	for _, p := range r.Series {
		row := compositeRow(p.CompositeReport, fmtFloat)
		row = append(row, strconv.FormatBool(p.InCrisis), strings.Join(p.CrisisIDs, ";"))
		series.rows = append(series.rows, row)
	}

	sweep := sheet{name: "sweep", header: []string{"threshold", "tp", "fp", "fn", "tn", "precision", "recall", "f1", "false_positive_rate"}}
	for _, o := range r.Sweep {
		sweep.rows = append(sweep.rows, []string{
			fmtFloat(o.Threshold),
			strconv.Itoa(o.TruePositives),
			strconv.Itoa(o.FalsePositives),
			strconv.Itoa(o.FalseNegatives),
			strconv.Itoa(o.TrueNegatives),
			fmtFloat(o.Precision),
			fmtFloat(o.Recall),
			fmtFloat(o.F1),
			fmtFloat(o.FalsePositiveRate),
		})
	}

	eras := sheet{name: "eras", header: []string{"era", "crises", "detected", "rate", "missed"}}
	for _, e := range r.Eras {
		eras.rows = append(eras.rows, []string{e.Era, strconv.Itoa(e.Crises), strconv.Itoa(e.Detected), fmtFloat(e.Rate), strings.Join(e.Missed, ";")})
	}

	refits := sheet{name: "refits", header: []string{"date", "scenarios", "rejected", "succeeded", "reason", "alpha", "regime", "weights"}}
	for _, rf := range r.Refits {
		refits.rows = append(refits.rows, []string{
			rf.Date.Format("2006-01-02"),
			strconv.Itoa(rf.Scenarios),
			strconv.Itoa(rf.Rejected),
			strconv.FormatBool(rf.Succeeded),
			rf.Reason,
			fmtFloat(rf.Calibration.Default),
			string(rf.Regime),
			formatPillarWeights(rf.Weights.Pillars, fmtFloat),
		})
	}
	return []sheet{series, sweep, eras, refits}
}

// writeBacktestText generates and writes the human-readable backtest summary.
func writeBacktestText(w io.Writer, r schema.BacktestReport, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration) error {
	if err := fprintf(w, "%s backtest %s to %s (run %s)\n",
		strings.ToUpper(string(r.Family)), r.Start.Format("2006-01-02"), r.End.Format("2006-01-02"), r.RunID); err != nil {
		return err
	}
	if err := fprintf(w, "Series: %d dates every %d days, %d indeterminate, refit every %d days, lead time %d days\n",
		len(r.Series), r.StepDays, r.Indeterminate, r.RefitEvery, r.LeadTimeDays); err != nil {
		return err
	}

	// 1. Threshold sweep
	sweep := tablewriter.NewWriter(w)
	sweep.Header([]string{"Threshold", "TP", "FP", "FN", "TN", "Precision", "Recall", "F1"})
	sweep.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var data [][]string
	for _, o := range r.Sweep {
		threshold := fmtFloat(o.Threshold)
		if o.Threshold == r.DecisionThreshold {
			threshold = "*" + threshold
		}
		data = append(data, []string{
			threshold,
			strconv.Itoa(o.TruePositives),
			strconv.Itoa(o.FalsePositives),
			strconv.Itoa(o.FalseNegatives),
			strconv.Itoa(o.TrueNegatives),
			fmtFloat(o.Precision),
			fmtFloat(o.Recall),
			fmtFloat(o.F1),
		})
	}
	if err := sweep.Bulk(data); err != nil {
		return err
	}
	if err := sweep.Render(); err != nil {
		return err
	}

	// 2. Era detection
	if len(r.Eras) > 0 {
		eras := tablewriter.NewWriter(w)
		eras.Header([]string{"Era", "Crises", "Detected", "Rate", "Missed"})
		var rows [][]string
		for _, e := range r.Eras {
			rows = append(rows, []string{
				e.Era,
				strconv.Itoa(e.Crises),
				strconv.Itoa(e.Detected),
				fmtFloat(e.Rate),
				contract.TruncateText(strings.Join(e.Missed, ", "), GetMaxTableFlagsWidth(cfg)),
			})
		}
		if err := eras.Bulk(rows); err != nil {
			return err
		}
		if err := eras.Render(); err != nil {
			return err
		}
	}

	// 3. False positives and stability
	fp := r.FalsePositives
	if err := fprintf(w, "False positives at %s: %d (near miss %d, fragile regime %d, isolated %d)\n",
		fmtFloat(r.DecisionThreshold), fp.Total(), fp.NearMiss, fp.FragileRegime, fp.Isolated); err != nil {
		return err
	}
	st := r.Stability
	if err := fprintf(w, "Refits: %d (%d failed), alpha %s ± %s\n", st.Refits, st.FailedRefits, fmtFloat(st.Alpha.Mean), fmtFloat(st.Alpha.StdDev)); err != nil {
		return err
	}
	for _, p := range schema.SortedPillars(st.Weights) {
		m := st.Weights[p]
		if err := fprintf(w, "  %-14s weight %s ± %s [%s, %s]\n", p, fmtFloat(m.Mean), fmtFloat(m.StdDev), fmtFloat(m.Min), fmtFloat(m.Max)); err != nil {
			return err
		}
	}
	return fprintf(w, "Backtest completed in %v with %d workers. Cache backend: %s\n", duration, cfg.Workers, cfg.CacheBackend)
}
