// Package uncertainty produces bootstrap intervals and conformal bands
// around a composite score.
package uncertainty

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/schema"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// DefaultLevels are the reported interval coverages.
var DefaultLevels = []float64{0.80, 0.90}

// Options configures the bootstrap.
type Options struct {
	Replicates  int
	Seed        uint64
	WeightNoise float64
	AlphaNoise  float64
	Levels      []float64
	Workers     int
}

// DefaultOptions returns 1000 replicates with 10% weight and 0.05 α noise.
func DefaultOptions() Options {
	return Options{
		Replicates:  1000,
		Seed:        42,
		WeightNoise: 0.10,
		AlphaNoise:  0.05,
		Levels:      DefaultLevels,
		Workers:     4,
	}
}

// Bootstrap perturbs indicator scores by tier noise, weights in proportion to
// their size and α within its bounds, then recomputes the composite per
// replicate. Replicate b draws from a stream seeded by (Seed, b), so two calls
// with the same options share their random numbers.
func Bootstrap(ctx context.Context, snap schema.Snapshot, report schema.CompositeReport, pillars []schema.PillarScore, opts Options) (*schema.BootstrapResult, error) {
	if report.Indeterminate {
		return nil, fmt.Errorf("%w: no bootstrap for an indeterminate composite", schema.ErrInsufficientData)
	}
	if opts.Replicates <= 0 {
		return nil, fmt.Errorf("%w: replicates must be positive, got %d", schema.ErrConfig, opts.Replicates)
	}
	workers := max(opts.Workers, 1)

	ordered := make([]schema.PillarScore, 0, len(pillars))
	for _, p := range pillars {
		if _, ok := report.WeightsUsed[p.Pillar]; ok {
			ordered = append(ordered, p)
		}
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Pillar < ordered[j].Pillar })

	samples := make([]float64, opts.Replicates)
	g, ctx := errgroup.WithContext(ctx)
	chunk := (opts.Replicates + workers - 1) / workers
	for start := 0; start < opts.Replicates; start += chunk {
		end := min(start+chunk, opts.Replicates)
		g.Go(func() error {
			for b := start; b < end; b++ {
				if b%64 == 0 {
					if err := ctx.Err(); err != nil {
						return err
					}
				}
				samples[b] = replicate(snap, report, ordered, opts, uint64(b))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Float64s(samples)
	mean, std := stat.MeanStdDev(samples, nil)
	if math.IsNaN(std) {
		std = 0
	}
	res := &schema.BootstrapResult{Replicates: len(samples), Mean: mean, StdDev: std}
	for _, level := range levelsOrDefault(opts.Levels) {
		tail := (1 - level) / 2
		res.Intervals = append(res.Intervals, schema.Interval{
			Level: level,
			Lower: stat.Quantile(tail, stat.Empirical, samples, nil),
			Upper: stat.Quantile(1-tail, stat.Empirical, samples, nil),
		})
	}
	return res, nil
}

func replicate(snap schema.Snapshot, report schema.CompositeReport, pillars []schema.PillarScore, opts Options, b uint64) float64 {
	rng := rand.New(rand.NewPCG(opts.Seed, b))

	scores := make(map[schema.PillarID]float64, len(pillars))
	for _, p := range pillars {
		if len(p.Indicators) == 0 {
			scores[p.Pillar] = clamp01(p.Score + rng.NormFloat64()*schema.TierNoise(p.DataQuality))
			continue
		}
		total := 0.0
		for _, ind := range p.Indicators {
			total += clamp01(ind.Score + rng.NormFloat64()*schema.TierNoise(ind.Tier))
		}
		scores[p.Pillar] = total / float64(len(p.Indicators))
	}

	weights := make(map[schema.PillarID]float64, len(report.WeightsUsed))
	for _, id := range schema.SortedPillars(report.WeightsUsed) {
		w := report.WeightsUsed[id]
		weights[id] = max(w*(1+opts.WeightNoise*rng.NormFloat64()), 0)
	}

	alpha := report.Alpha + opts.AlphaNoise*rng.NormFloat64()
	alpha = math.Min(math.Max(alpha, snap.Calibration.Min), snap.Calibration.Max)

	out := algo.Combine(scores, weights, snap.Penalties, alpha)
	if out.Indeterminate {
		return report.Score
	}
	return out.Score
}

func levelsOrDefault(levels []float64) []float64 {
	if len(levels) == 0 {
		return DefaultLevels
	}
	return levels
}

func clamp01(v float64) float64 {
	return math.Min(math.Max(v, 0), 1)
}
