package calibrate

import (
	"fmt"
	"math"
	"time"

	"github.com/huangsam/macindex/schema"
	"gonum.org/v1/gonum/stat/distuv"
)

// Row is one dated pillar-score vector of history.
type Row struct {
	Date   time.Time
	Scores map[schema.PillarID]float64
}

// PenaltyOptions configures penalty table derivation.
type PenaltyOptions struct {
	Model           schema.PenaltyModel
	Cap             float64
	Scale           float64
	StressThreshold float64
	// Pooled uses one breach rate for every pillar (binomial counts).
	Pooled bool
	// Concentration is the symmetric Dirichlet prior on breach counts.
	Concentration float64
	// Era restricts history to one era when set.
	Era  string
	Eras []schema.Era
}

// DefaultPenaltyOptions returns the derivation defaults for a model.
func DefaultPenaltyOptions(model schema.PenaltyModel) PenaltyOptions {
	return PenaltyOptions{
		Model:           model,
		Cap:             schema.DefaultPenaltyCap,
		Scale:           schema.DefaultPenaltyScale,
		StressThreshold: schema.DefaultStressThreshold,
		Concentration:   1,
		Eras:            schema.DefaultEras(),
	}
}

// DerivePenaltyTable builds π(n) from the joint breach behavior of pillars in
// history: π(n) = min(cap, scale × −ln P(N ≥ n)) for n ≥ 2, zero below, made
// non-decreasing. Rarer joint breaches get larger penalties.
func DerivePenaltyTable(history []Row, pillars []schema.PillarID, opts PenaltyOptions) (schema.PenaltyDerivation, error) {
	if len(pillars) == 0 {
		return schema.PenaltyDerivation{}, fmt.Errorf("%w: no pillars for penalty derivation", schema.ErrConfig)
	}
	if opts.Cap < 0 || opts.Scale <= 0 {
		return schema.PenaltyDerivation{}, fmt.Errorf("%w: penalty cap %g and scale %g are invalid", schema.ErrConfig, opts.Cap, opts.Scale)
	}

	rows := history
	if opts.Era != "" {
		rows = make([]Row, 0, len(history))
		for _, r := range history {
			if schema.EraFor(r.Date, opts.Eras) == opts.Era {
				rows = append(rows, r)
			}
		}
	}
	if len(rows) == 0 {
		return schema.PenaltyDerivation{}, fmt.Errorf("%w: no history rows for penalty derivation", schema.ErrInsufficientData)
	}

	var (
		probs []float64
		rates map[schema.PillarID]float64
	)
	switch opts.Model {
	case schema.IndependencePenalty:
		rates = breachRates(rows, pillars, opts.StressThreshold)
		if opts.Pooled {
			probs = pooledCounts(rows, pillars, opts.StressThreshold)
		} else {
			probs = poissonBinomial(pillars, rates)
		}
	case schema.DirichletPenalty:
		rates = breachRates(rows, pillars, opts.StressThreshold)
		probs = dirichletCounts(rows, pillars, opts.StressThreshold, opts.Concentration)
	default:
		return schema.PenaltyDerivation{}, fmt.Errorf("%w: penalty model %q cannot be derived", schema.ErrConfig, opts.Model)
	}

	table := schema.PenaltyTable{
		Model:           opts.Model,
		Penalties:       make([]float64, len(probs)),
		Cap:             opts.Cap,
		StressThreshold: opts.StressThreshold,
	}
	running := 0.0
	for n := 2; n < len(probs); n++ {
		tail := 0.0
		for _, p := range probs[n:] {
			tail += p
		}
		pen := opts.Cap
		if tail > 0 {
			pen = math.Min(opts.Cap, opts.Scale*-math.Log(tail))
		}
		running = math.Max(running, pen)
		table.Penalties[n] = running
	}

	return schema.PenaltyDerivation{
		Table:        table,
		BreachRates:  rates,
		CountProbs:   probs,
		Observations: len(rows),
		Era:          opts.Era,
	}, nil
}

// breachRates returns the Laplace-smoothed breach rate of each pillar.
func breachRates(rows []Row, pillars []schema.PillarID, threshold float64) map[schema.PillarID]float64 {
	rates := make(map[schema.PillarID]float64, len(pillars))
	for _, p := range pillars {
		var seen, breached int
		for _, r := range rows {
			s, ok := r.Scores[p]
			if !ok {
				continue
			}
			seen++
			if s < threshold {
				breached++
			}
		}
		rates[p] = (float64(breached) + 1) / (float64(seen) + 2)
	}
	return rates
}

// poissonBinomial returns P(N = n) for n = 0..K given independent rates.
func poissonBinomial(pillars []schema.PillarID, rates map[schema.PillarID]float64) []float64 {
	dist := make([]float64, len(pillars)+1)
	dist[0] = 1
	for k, p := range schema.SortedPillars(rates) {
		r := rates[p]
		for n := k + 1; n >= 1; n-- {
			dist[n] = dist[n]*(1-r) + dist[n-1]*r
		}
		dist[0] *= 1 - r
	}
	return dist
}

// pooledCounts returns binomial count probabilities from one shared rate.
func pooledCounts(rows []Row, pillars []schema.PillarID, threshold float64) []float64 {
	var seen, breached int
	for _, r := range rows {
		for _, p := range pillars {
			s, ok := r.Scores[p]
			if !ok {
				continue
			}
			seen++
			if s < threshold {
				breached++
			}
		}
	}
	rate := (float64(breached) + 1) / (float64(seen) + 2)
	bin := distuv.Binomial{N: float64(len(pillars)), P: rate}
	out := make([]float64, len(pillars)+1)
	for n := range out {
		out[n] = bin.Prob(float64(n))
	}
	return out
}

// dirichletCounts returns the posterior-mean distribution of joint breach
// counts under a symmetric Dirichlet prior.
func dirichletCounts(rows []Row, pillars []schema.PillarID, threshold, concentration float64) []float64 {
	if concentration <= 0 {
		concentration = 1
	}
	counts := make([]float64, len(pillars)+1)
	for _, r := range rows {
		n := 0
		for _, p := range pillars {
			if s, ok := r.Scores[p]; ok && s < threshold {
				n++
			}
		}
		counts[n]++
	}
	total := float64(len(rows)) + concentration*float64(len(counts))
	for n := range counts {
		counts[n] = (counts[n] + concentration) / total
	}
	return counts
}
