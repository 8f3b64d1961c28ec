package outwriter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/parquet"
	"github.com/huangsam/macindex/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintCompositeReport outputs a live composite reading, dispatching based on the output format configured.
func PrintCompositeReport(report schema.CompositeReport, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	if cfg.Output == schema.ParquetOut {
		return writeCompositeParquet(cfg.OutputFile, 0, []schema.BacktestPoint{{CompositeReport: report}})
	}
	return render(cfg, report,
		func() []sheet { return compositeSheets(report, fmtFloat) },
		func(w io.Writer) error { return writeCompositeText(w, report, cfg, fmtFloat, duration) },
	)
}

// writeCompositeParquet writes a composite series to a Parquet file.
func writeCompositeParquet(outputFile string, runID int64, series []schema.BacktestPoint) error {
	if outputFile == "" {
		return fmt.Errorf("parquet output requires an output file: %w", schema.ErrConfig)
	}
	return writeWithFile(outputFile, func(w io.Writer) error {
		return parquet.WriteComposites(w, parquet.CompositesFromSeries(runID, series))
	}, "Wrote Parquet")
}

var compositeHeader = []string{
	"date", "family", "score", "label", "weighted_average", "penalty", "breach_count",
	"alpha", "era", "fragility", "regime_state", "posture", "flags",
}

func compositeRow(r schema.CompositeReport, fmtFloat func(float64) string) []string {
	fragility, state := "", ""
	if r.Regime != nil {
		fragility = fmtFloat(r.Regime.Fragility)
		state = string(r.Regime.State)
	}
	score := ""
	if !r.Indeterminate {
		score = fmtFloat(r.Score)
	}
	return []string{
		formatDate(r),
		string(r.Family),
		score,
		string(r.Label),
		fmtFloat(r.WeightedAverage),
		fmtFloat(r.Penalty),
		strconv.Itoa(r.BreachCount),
		fmtFloat(r.Alpha),
		r.Era,
		fragility,
		state,
		string(r.Posture),
		schema.JoinFlags(r.Flags),
	}
}

func compositeSheets(r schema.CompositeReport, fmtFloat func(float64) string) []sheet {
	pillars := sheet{
		name:   "pillars",
		header: []string{"pillar", "score", "weight", "breached", "data_quality", "indicators_used"},
	}
	for _, p := range r.Pillars {
		pillars.rows = append(pillars.rows, []string{
			string(p.Pillar),
			fmtFloat(p.Score),
			fmtFloat(p.Weight),
			strconv.FormatBool(p.Breached),
			string(p.DataQuality),
			strings.Join(p.IndicatorsUsed, ";"),
		})
	}
	sheets := []sheet{
		{name: "composite", header: compositeHeader, rows: [][]string{compositeRow(r, fmtFloat)}},
		pillars,
	}
	if r.Uncertainty != nil {
		sheets = append(sheets, intervalSheet(r.Uncertainty, fmtFloat))
	}
	return sheets
}

func intervalSheet(u *schema.UncertaintyReport, fmtFloat func(float64) string) sheet {
	s := sheet{name: "uncertainty", header: []string{"method", "level", "lower", "upper"}}
	if u.Bootstrap != nil {
		for _, iv := range u.Bootstrap.Intervals {
			s.rows = append(s.rows, []string{"bootstrap", fmtFloat(iv.Level), fmtFloat(iv.Lower), fmtFloat(iv.Upper)})
		}
	}
	if u.Conformal != nil {
		for _, iv := range u.Conformal.Intervals {
			s.rows = append(s.rows, []string{"conformal", fmtFloat(iv.Level), fmtFloat(iv.Lower), fmtFloat(iv.Upper)})
		}
	}
	return s
}

// writeCompositeText generates and writes the human-readable composite reading.
func writeCompositeText(w io.Writer, r schema.CompositeReport, cfg *contract.Config, fmtFloat func(float64) string, duration time.Duration) error {
	score := "n/a"
	if !r.Indeterminate {
		score = fmtFloat(r.Score)
	}
	if err := fprintf(w, "%s composite as of %s: %s (%s)\n", strings.ToUpper(string(r.Family)), formatDate(r), score, labelText(cfg, r.Label)); err != nil {
		return err
	}

	// 1. Pillar table
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Pillar", "Score", "Weight", "Breached", "Quality", "Indicators"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	var data [][]string
	for _, p := range r.Pillars {
		data = append(data, []string{
			string(p.Pillar),
			fmtFloat(p.Score),
			fmtFloat(p.Weight),
			boolText(p.Breached),
			string(p.DataQuality),
			strconv.Itoa(len(p.IndicatorsUsed)),
		})
	}
	if err := table.Bulk(data); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	// 2. Composite breakdown
	if err := fprintf(w, "Weighted average %s, breaches %d, penalty %s, alpha %s", fmtFloat(r.WeightedAverage), r.BreachCount, fmtFloat(r.Penalty), fmtFloat(r.Alpha)); err != nil {
		return err
	}
	if r.Era != "" {
		if err := fprintf(w, " (%s era)", r.Era); err != nil {
			return err
		}
	}
	if err := fprintf(w, "\n"); err != nil {
		return err
	}
	if len(r.ExcludedPillars) > 0 {
		excluded := make([]string, len(r.ExcludedPillars))
		for i, p := range r.ExcludedPillars {
			excluded[i] = string(p)
		}
		if err := fprintf(w, "Excluded pillars: %s\n", strings.Join(excluded, ", ")); err != nil {
			return err
		}
	}
	if len(r.Drivers) > 0 {
		parts := make([]string, len(r.Drivers))
		for i, d := range r.Drivers {
			parts[i] = fmt.Sprintf("%s (-%s)", d.Pillar, fmtFloat(d.Shortfall))
		}
		if err := fprintf(w, "Drivers: %s\n", strings.Join(parts, ", ")); err != nil {
			return err
		}
	}

	// 3. Uncertainty and regime
	if err := writeUncertaintyText(w, r.Uncertainty, fmtFloat); err != nil {
		return err
	}
	if r.Regime != nil {
		if err := fprintf(w, "Regime: %s (fragility %s, %s)\n", r.Regime.State, fmtFloat(r.Regime.Fragility), r.Regime.Method); err != nil {
			return err
		}
	}
	if err := fprintf(w, "Posture: %s\n", postureText(cfg, r.Posture)); err != nil {
		return err
	}
	if len(r.Flags) > 0 {
		if err := fprintf(w, "Flags: %s\n", strings.ReplaceAll(schema.JoinFlags(r.Flags), ",", ", ")); err != nil {
			return err
		}
	}
	return fprintf(w, "Scored in %v with %d workers\n", duration, cfg.Workers)
}

func writeUncertaintyText(w io.Writer, u *schema.UncertaintyReport, fmtFloat func(float64) string) error {
	if u == nil {
		return nil
	}
	if b := u.Bootstrap; b != nil {
		if err := fprintf(w, "Bootstrap (%d replicates): mean %s, sd %s\n", b.Replicates, fmtFloat(b.Mean), fmtFloat(b.StdDev)); err != nil {
			return err
		}
		for _, iv := range b.Intervals {
			if err := fprintf(w, "  %2.0f%%: [%s, %s]\n", iv.Level*100, fmtFloat(iv.Lower), fmtFloat(iv.Upper)); err != nil {
				return err
			}
		}
	}
	if c := u.Conformal; c != nil {
		if err := fprintf(w, "Conformal (%d residuals):\n", c.Residuals); err != nil {
			return err
		}
		for _, iv := range c.Intervals {
			if err := fprintf(w, "  %2.0f%%: [%s, %s]\n", iv.Level*100, fmtFloat(iv.Lower), fmtFloat(iv.Upper)); err != nil {
				return err
			}
		}
	}
	return nil
}
