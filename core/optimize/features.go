// Package optimize fits pillar weights from a labeled scenario catalog.
package optimize

import (
	"github.com/huangsam/macindex/schema"
)

// Row is one training example.
type Row struct {
	ScenarioID string
	Features   []float64
	Target     float64
	Synthetic  bool
}

// FeatureNames returns base pillars followed by the family's interactions.
func FeatureNames(profile schema.FamilyProfile) []string {
	names := make([]string, 0, len(profile.Pillars)+len(profile.Interactions))
	for _, p := range profile.Pillars {
		names = append(names, string(p))
	}
	for _, in := range profile.Interactions {
		names = append(names, in.ID())
	}
	return names
}

// BuildFeatures lays out pillar scores and their pairwise products in
// FeatureNames order. It returns false when any base pillar is missing.
func BuildFeatures(profile schema.FamilyProfile, scores map[schema.PillarID]float64) ([]float64, bool) {
	out := make([]float64, 0, len(profile.Pillars)+len(profile.Interactions))
	for _, p := range profile.Pillars {
		s, ok := scores[p]
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return appendInteractions(profile, out), true
}

// appendInteractions recomputes interaction products from the base block.
func appendInteractions(profile schema.FamilyProfile, base []float64) []float64 {
	idx := make(map[schema.PillarID]int, len(profile.Pillars))
	for i, p := range profile.Pillars {
		idx[p] = i
	}
	out := base[:len(profile.Pillars)]
	for _, in := range profile.Interactions {
		out = append(out, base[idx[in.A]]*base[idx[in.B]])
	}
	return out
}
