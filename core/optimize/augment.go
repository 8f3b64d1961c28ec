package optimize

import (
	"math/rand/v2"

	"github.com/huangsam/macindex/schema"
)

// AugmentOptions controls synthetic variants of each real scenario.
type AugmentOptions struct {
	Variants     int
	SharedShift  float64
	FeatureNoise float64
}

// DefaultAugmentOptions returns five variants with a ±0.03 shared shift and
// 0.02 per-feature noise.
func DefaultAugmentOptions() AugmentOptions {
	return AugmentOptions{Variants: 5, SharedShift: 0.03, FeatureNoise: 0.02}
}

// Augment appends noisy variants of each real row. A variant shifts every
// base pillar by one shared uniform draw plus independent Gaussian noise,
// clips to [0,1] and recomputes the interaction products. Targets are kept.
func Augment(profile schema.FamilyProfile, rows []Row, opts AugmentOptions, rng *rand.Rand) []Row {
	out := make([]Row, 0, len(rows)*(1+opts.Variants))
	n := len(profile.Pillars)
	for _, r := range rows {
		out = append(out, r)
		if r.Synthetic {
			continue
		}
		for range opts.Variants {
			shift := (rng.Float64()*2 - 1) * opts.SharedShift
			base := make([]float64, n, len(r.Features))
			for i := range n {
				v := r.Features[i] + shift + rng.NormFloat64()*opts.FeatureNoise
				base[i] = min(max(v, 0), 1)
			}
			out = append(out, Row{
				ScenarioID: r.ScenarioID,
				Features:   appendInteractions(profile, base),
				Target:     r.Target,
				Synthetic:  true,
			})
		}
	}
	return out
}
