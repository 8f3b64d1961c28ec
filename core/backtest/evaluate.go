package backtest

import (
	"math"
	"sort"
	"time"

	"github.com/huangsam/macindex/schema"
	"gonum.org/v1/gonum/stat"
)

// labelCrisis marks a point inside the window [start − lead, end] of any
// catalog crisis.
func (r *Runner) labelCrisis(p *schema.BacktestPoint) {
	lead := r.cfg.lead()
	for _, s := range r.scenarios {
		if inWindow(p.Date, s.Start.Add(-lead), s.Finish()) {
			p.InCrisis = true
			p.CrisisIDs = append(p.CrisisIDs, s.ID)
		}
	}
}

func inWindow(d, from, to time.Time) bool {
	return !d.Before(from) && !d.After(to)
}

// thresholds returns the sweep grid without accumulating float error.
func (r *Runner) thresholds() []float64 {
	n := int(math.Round((r.cfg.SweepTo - r.cfg.SweepFrom) / r.cfg.SweepStep))
	out := make([]float64, 0, n+1)
	for k := 0; k <= n; k++ {
		out = append(out, math.Round((r.cfg.SweepFrom+float64(k)*r.cfg.SweepStep)*1e9)/1e9)
	}
	return out
}

// sweep builds a confusion matrix per decision threshold. Indeterminate
// dates are not classified.
func (r *Runner) sweep(series []schema.BacktestPoint) []schema.ThresholdOutcome {
	var out []schema.ThresholdOutcome
	for _, th := range r.thresholds() {
		o := schema.ThresholdOutcome{Threshold: th}
		for _, p := range series {
			if p.Indeterminate {
				continue
			}
			predicted := p.Score < th
			switch {
			case predicted && p.InCrisis:
				o.TruePositives++
			case predicted:
				o.FalsePositives++
			case p.InCrisis:
				o.FalseNegatives++
			default:
				o.TrueNegatives++
			}
		}
		o.Precision = ratio(o.TruePositives, o.TruePositives+o.FalsePositives)
		o.Recall = ratio(o.TruePositives, o.TruePositives+o.FalseNegatives)
		o.FalsePositiveRate = ratio(o.FalsePositives, o.FalsePositives+o.TrueNegatives)
		if o.Precision+o.Recall > 0 {
			o.F1 = 2 * o.Precision * o.Recall / (o.Precision + o.Recall)
		}
		out = append(out, o)
	}
	return out
}

// eraDetection reports, per era, how many crises inside the backtest range
// had at least one determinate date below the decision threshold within
// their labeled window.
func (r *Runner) eraDetection(series []schema.BacktestPoint) []schema.EraDetection {
	lead := r.cfg.lead()
	byEra := make(map[string]*schema.EraDetection)
	for _, s := range r.scenarios {
		if s.Finish().Before(r.cfg.Start) || s.Start.Add(-lead).After(r.cfg.End) {
			continue
		}
		era := schema.EraFor(s.Start, r.cfg.Eras)
		det, ok := byEra[era]
		if !ok {
			det = &schema.EraDetection{Era: era}
			byEra[era] = det
		}
		det.Crises++

		hit := false
		for _, p := range series {
			if !p.Indeterminate && inWindow(p.Date, s.Start.Add(-lead), s.Finish()) && p.Score < r.cfg.DecisionThreshold {
				hit = true
				break
			}
		}
		if hit {
			det.Detected++
		} else {
			det.Missed = append(det.Missed, s.ID)
		}
	}

	order := make(map[string]int, len(r.cfg.Eras))
	for i, e := range r.cfg.Eras {
		order[e.Name] = i
	}
	out := make([]schema.EraDetection, 0, len(byEra))
	for _, det := range byEra {
		det.Rate = ratio(det.Detected, det.Crises)
		sort.Strings(det.Missed)
		out = append(out, *det)
	}
	sort.Slice(out, func(i, j int) bool {
		oi, iok := order[out[i].Era]
		oj, jok := order[out[j].Era]
		if iok != jok {
			return iok
		}
		if oi != oj {
			return oi < oj
		}
		return out[i].Era < out[j].Era
	})
	return out
}

// falsePositives classifies false alarms at the decision threshold.
func (r *Runner) falsePositives(series []schema.BacktestPoint) schema.FalsePositiveTaxonomy {
	var tax schema.FalsePositiveTaxonomy
	near := 2 * r.cfg.lead()
	for _, p := range series {
		if p.Indeterminate || p.InCrisis || p.Score >= r.cfg.DecisionThreshold {
			continue
		}
		switch {
		case r.nearCrisis(p.Date, near):
			tax.NearMiss++
		case p.Regime != nil && p.Regime.Fragility >= schema.DefaultFragileThreshold:
			tax.FragileRegime++
		default:
			tax.Isolated++
		}
	}
	return tax
}

func (r *Runner) nearCrisis(d time.Time, margin time.Duration) bool {
	for _, s := range r.scenarios {
		if inWindow(d, s.Start.Add(-margin), s.Finish().Add(margin)) {
			return true
		}
	}
	return false
}

// stability summarizes the weights and α in force after each refit.
func stability(profile schema.FamilyProfile, refits []schema.RefitRecord) schema.StabilityStats {
	st := schema.StabilityStats{Weights: make(map[schema.PillarID]schema.Moments, len(profile.Pillars))}
	var alphas []float64
	weights := make(map[schema.PillarID][]float64, len(profile.Pillars))
	for _, rec := range refits {
		if !rec.Succeeded {
			st.FailedRefits++
			continue
		}
		st.Refits++
		alphas = append(alphas, rec.Calibration.Default)
		for _, p := range profile.Pillars {
			weights[p] = append(weights[p], rec.Weights.Pillars[p])
		}
	}
	st.Alpha = moments(alphas)
	for _, p := range profile.Pillars {
		st.Weights[p] = moments(weights[p])
	}
	return st
}

func moments(xs []float64) schema.Moments {
	if len(xs) == 0 {
		return schema.Moments{}
	}
	mean, std := stat.PopMeanStdDev(xs, nil)
	m := schema.Moments{Mean: mean, StdDev: std, Min: xs[0], Max: xs[0]}
	for _, x := range xs[1:] {
		m.Min = math.Min(m.Min, x)
		m.Max = math.Max(m.Max, x)
	}
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
