// Package calibrate fits the calibration factor α and derives breach penalty
// tables from history.
package calibrate

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/schema"
)

// Sample pairs an uncalibrated composite with its ground-truth target.
type Sample struct {
	ScenarioID string
	Date       time.Time
	Resolved   time.Time
	Raw        float64
	Target     float64
}

// Options bounds the calibration fit.
type Options struct {
	Min       float64
	Max       float64
	MinPerEra int
}

// DefaultOptions returns the default α bounds and per-era minimum.
func DefaultOptions() Options {
	return Options{Min: schema.DefaultAlphaMin, Max: schema.DefaultAlphaMax, MinPerEra: 3}
}

// SamplesFromScenarios computes the raw composite of every scenario snapshot
// under the given weights and penalties. Scenarios without a target or with
// fewer than two pillars are skipped.
func SamplesFromScenarios(scenarios []schema.Scenario, weights map[schema.PillarID]float64, penalties schema.PenaltyTable) ([]Sample, []schema.SkippedScenario) {
	var (
		samples []Sample
		skipped []schema.SkippedScenario
	)
	for _, s := range scenarios {
		target, ok := s.Target()
		if !ok {
			skipped = append(skipped, schema.SkippedScenario{ID: s.ID, Reason: "no severity target"})
			continue
		}
		out := algo.Combine(s.Pillars, weights, penalties, 1)
		if out.Indeterminate {
			skipped = append(skipped, schema.SkippedScenario{ID: s.ID, Reason: "fewer than two pillars"})
			continue
		}
		samples = append(samples, Sample{
			ScenarioID: s.ID,
			Date:       s.Start,
			Resolved:   s.Resolution(),
			Raw:        out.Score,
			Target:     target,
		})
	}
	return samples, skipped
}

// FitCalibration fits α = Σ raw·target / Σ raw² over samples resolved on or
// before asOf, clipped to the option bounds. An era gets its own α when it has
// at least MinPerEra samples. A zero asOf uses every sample.
func FitCalibration(samples []Sample, asOf time.Time, eras []schema.Era, opts Options) (schema.CalibrationSet, error) {
	if opts.Min <= 0 || opts.Max < opts.Min {
		return schema.CalibrationSet{}, fmt.Errorf("%w: calibration bounds [%g, %g] are invalid", schema.ErrConfig, opts.Min, opts.Max)
	}

	usable := make([]Sample, 0, len(samples))
	for _, s := range samples {
		if !asOf.IsZero() && s.Resolved.After(asOf) {
			continue
		}
		usable = append(usable, s)
	}
	sort.Slice(usable, func(i, j int) bool { return usable[i].ScenarioID < usable[j].ScenarioID })

	pooled, ok := leastSquaresAlpha(usable)
	if !ok {
		return schema.CalibrationSet{}, fmt.Errorf("%w: %d usable calibration samples", schema.ErrInsufficientData, len(usable))
	}

	byEra := make(map[string][]Sample)
	for _, s := range usable {
		if era := schema.EraFor(s.Date, eras); era != "" {
			byEra[era] = append(byEra[era], s)
		}
	}

	set := schema.CalibrationSet{
		Default:  clip(pooled, opts.Min, opts.Max),
		Min:      opts.Min,
		Max:      opts.Max,
		FittedAt: asOf,
		Samples:  len(usable),
	}
	for era, group := range byEra {
		if len(group) < opts.MinPerEra {
			continue
		}
		if a, ok := leastSquaresAlpha(group); ok {
			if set.ByEra == nil {
				set.ByEra = make(map[string]float64)
			}
			set.ByEra[era] = clip(a, opts.Min, opts.Max)
		}
	}
	return set, nil
}

// Residuals returns |α·raw − target| for each sample under a calibration set.
func Residuals(samples []Sample, cal schema.CalibrationSet, eras []schema.Era) []float64 {
	out := make([]float64, 0, len(samples))
	for _, s := range samples {
		alpha, _ := cal.AlphaAt(s.Date, eras)
		pred := math.Min(math.Max(alpha*s.Raw, 0), 1)
		out = append(out, math.Abs(pred-s.Target))
	}
	return out
}

func leastSquaresAlpha(samples []Sample) (float64, bool) {
	var num, den float64
	for _, s := range samples {
		num += s.Raw * s.Target
		den += s.Raw * s.Raw
	}
	if den <= 0 {
		return 0, false
	}
	return num / den, true
}

func clip(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
