package outwriter

import (
	"io"
	"strings"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
)

// PrintRegimeSeries outputs the fragility path, dispatching based on the output format configured.
func PrintRegimeSeries(series schema.RegimeSeries, cfg *contract.Config, duration time.Duration) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return render(cfg, series,
		func() []sheet { return regimeSheets(series, fmtFloat) },
		func(w io.Writer) error { return writeRegimeText(w, series, fmtFloat, duration) },
	)
}

func regimeSheets(s schema.RegimeSeries, fmtFloat func(float64) string) []sheet {
	path := sheet{name: "regime", header: []string{"date", "fragility", "state"}}
	for i, d := range s.Dates {
		row := []string{d.Format("2006-01-02"), "", ""}
		if i < len(s.Fragility) {
			row[1] = fmtFloat(s.Fragility[i])
		}
		if i < len(s.Path) {
			row[2] = string(s.Path[i])
		}
		path.rows = append(path.rows, row)
	}

	means := sheet{name: "means", header: []string{"state"}}
	for _, p := range s.Pillars {
		means.header = append(means.header, string(p))
	}
	for _, state := range []schema.RegimeState{schema.NormalState, schema.FragileState} {
		values, ok := s.Means[state]
		if !ok {
			continue
		}
		row := []string{string(state)}
		for _, v := range values {
			row = append(row, fmtFloat(v))
		}
		means.rows = append(means.rows, row)
	}
	return []sheet{path, means}
}

// writeRegimeText generates and writes the human-readable regime summary and path.
func writeRegimeText(w io.Writer, s schema.RegimeSeries, fmtFloat func(float64) string, duration time.Duration) error {
	if err := fprintf(w, "Regime method: %s", s.Method); err != nil {
		return err
	}
	if s.Reason != "" {
		if err := fprintf(w, " (%s)", s.Reason); err != nil {
			return err
		}
	}
	if err := fprintf(w, "\n"); err != nil {
		return err
	}
	if s.Method == schema.HMMMethod {
		t := s.Transition
		if err := fprintf(w, "Log-likelihood %s after %d iterations\n", fmtFloat(s.LogLikelihood), s.Iterations); err != nil {
			return err
		}
		if err := fprintf(w, "Transition: normal→normal %s, normal→fragile %s, fragile→normal %s, fragile→fragile %s\n",
			fmtFloat(t[0][0]), fmtFloat(t[0][1]), fmtFloat(t[1][0]), fmtFloat(t[1][1])); err != nil {
			return err
		}
	}

	sheets := regimeSheets(s, fmtFloat)
	if len(sheets[1].rows) > 0 {
		means := tablewriter.NewWriter(w)
		means.Header(sheets[1].header)
		means.Configure(func(cfg *tablewriter.Config) {
			cfg.Row.Alignment.Global = tw.AlignRight
		})
		if err := means.Bulk(sheets[1].rows); err != nil {
			return err
		}
		if err := means.Render(); err != nil {
			return err
		}
	}

	table := tablewriter.NewWriter(w)
	table.Header([]string{"Date", "Fragility", "State"})
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Alignment.Global = tw.AlignRight
	})
	if err := table.Bulk(sheets[0].rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	fragile := 0
	for _, st := range s.Path {
		if st == schema.FragileState {
			fragile++
		}
	}
	pillars := make([]string, len(s.Pillars))
	for i, p := range s.Pillars {
		pillars[i] = string(p)
	}
	if err := fprintf(w, "Fragile on %d of %d dates over %s\n", fragile, len(s.Path), strings.Join(pillars, ", ")); err != nil {
		return err
	}
	return fprintf(w, "Detected in %v\n", duration)
}
