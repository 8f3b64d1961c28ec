package outwriter

import (
	"io"
	"slices"
	"strconv"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintFitReport outputs fitted pillar weights, dispatching based on the output format configured.
func PrintFitReport(fit schema.FitReport, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return render(cfg, fit,
		func() []sheet { return fitSheets(fit, fmtFloat) },
		func(w io.Writer) error { return writeFitText(w, fit, fmtFloat, duration) },
	)
}

func fitSheets(fit schema.FitReport, fmtFloat func(float64) string) []sheet {
	weights := sheet{name: "weights", header: []string{"pillar", "weight", "interaction_adjusted", "importance"}}
	for _, p := range schema.SortedPillars(fit.Weights.Pillars) {
		adjusted := ""
		if v, ok := fit.Weights.InteractionAdjusted[p]; ok {
			adjusted = fmtFloat(v)
		}
		weights.rows = append(weights.rows, []string{
			string(p),
			fmtFloat(fit.Weights.Pillars[p]),
			adjusted,
			fmtFloat(fit.Importances[string(p)]),
		})
	}

	features := sheet{name: "importances", header: []string{"feature", "importance"}}
	for _, f := range fit.Features {
		features.rows = append(features.rows, []string{f, fmtFloat(fit.Importances[f])})
	}

	sheets := []sheet{weights, features}
	if v := fit.Validation; v != nil {
		folds := sheet{name: "validation", header: []string{"scenario_id", "target", "predicted", "abs_error"}}
		for _, f := range v.Folds {
			folds.rows = append(folds.rows, []string{f.ScenarioID, fmtFloat(f.Target), fmtFloat(f.Predicted), fmtFloat(f.AbsError)})
		}
		sheets = append(sheets, folds)
	}
	return sheets
}

// writeFitText generates and writes the human-readable weight fit.
func writeFitText(w io.Writer, fit schema.FitReport, fmtFloat func(float64) string, duration time.Duration) error {
	wv := fit.Weights
	if err := fprintf(w, "%s weights fitted %s with %s on %d scenarios (%d rows)\n",
		wv.Family, wv.DateFitted.Format("2006-01-02"), wv.Estimator, len(fit.Scenarios), fit.Rows); err != nil {
		return err
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Pillar", "Weight", "Adjusted", "Importance"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(fitSheets(fit, fmtFloat)[0].rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(wv.Interactions) > 0 {
		keys := make([]string, 0, len(wv.Interactions))
		for k := range wv.Interactions {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		for _, k := range keys {
			if err := fprintf(w, "Interaction %s: %s\n", k, fmtFloat(wv.Interactions[k])); err != nil {
				return err
			}
		}
	}
	if err := fprintf(w, "Deviation from priors: %s\n", fmtFloat(wv.Deviation)); err != nil {
		return err
	}
	if fit.FallbackReason != "" {
		if err := fprintf(w, "Fallback: %s\n", fit.FallbackReason); err != nil {
			return err
		}
	}
	for _, s := range fit.Skipped {
		if err := fprintf(w, "Skipped %s: %s\n", s.ID, s.Reason); err != nil {
			return err
		}
	}
	if v := fit.Validation; v != nil {
		if err := fprintf(w, "Leave-one-out: MAE %s, RMSE %s, mean weight sd %s over %d folds\n",
			fmtFloat(v.MAE), fmtFloat(v.RMSE), fmtFloat(v.MeanWeightStd), len(v.Folds)); err != nil {
			return err
		}
	}
	return fprintf(w, "Fit completed in %v\n", duration)
}

// PrintPenaltyDerivation outputs a derived breach penalty table, dispatching based on the output format configured.
func PrintPenaltyDerivation(d schema.PenaltyDerivation, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return render(cfg, d,
		func() []sheet { return penaltySheets(d, fmtFloat) },
		func(w io.Writer) error { return writePenaltyText(w, d, fmtFloat, duration) },
	)
}

func penaltySheets(d schema.PenaltyDerivation, fmtFloat func(float64) string) []sheet {
	table := sheet{name: "penalties", header: []string{"breaches", "penalty", "probability"}}
	for n, pen := range d.Table.Penalties {
		prob := ""
		if n < len(d.CountProbs) {
			prob = fmtFloat(d.CountProbs[n])
		}
		table.rows = append(table.rows, []string{strconv.Itoa(n), fmtFloat(pen), prob})
	}
	rates := sheet{name: "breach_rates", header: []string{"pillar", "breach_rate"}}
	for _, p := range schema.SortedPillars(d.BreachRates) {
		rates.rows = append(rates.rows, []string{string(p), fmtFloat(d.BreachRates[p])})
	}
	return []sheet{table, rates}
}

// writePenaltyText generates and writes the human-readable penalty table.
func writePenaltyText(w io.Writer, d schema.PenaltyDerivation, fmtFloat func(float64) string, duration time.Duration) error {
	header := "Breach penalties (%s model, cap %s, stress threshold %s) from %d observations"
	if err := fprintf(w, header, d.Table.Model, fmtFloat(d.Table.Cap), fmtFloat(d.Table.StressThreshold), d.Observations); err != nil {
		return err
	}
	if d.Era != "" {
		if err := fprintf(w, " in the %s era", d.Era); err != nil {
			return err
		}
	}
	if err := fprintf(w, "\n"); err != nil {
		return err
	}

	sheets := penaltySheets(d, fmtFloat)
	table := tablewriter.NewWriter(w)
	table.Header([]string{"Breaches", "Penalty", "P(n)"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(sheets[0].rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}
	for _, row := range sheets[1].rows {
		if err := fprintf(w, "  %-14s breach rate %s\n", row[0], row[1]); err != nil {
			return err
		}
	}
	return fprintf(w, "Derived in %v\n", duration)
}
