package algo

import (
	"fmt"
	"math"
	"time"

	"github.com/huangsam/macindex/schema"
)

// weightSumTolerance is the allowed deviation of a weight vector's sum from 1.
const weightSumTolerance = 0.001

// Outcome is the result of the three composite stages.
type Outcome struct {
	Score           float64
	WeightedAverage float64
	Penalty         float64
	BreachCount     int
	Breached        map[schema.PillarID]bool
	Weights         map[schema.PillarID]float64
	Indeterminate   bool
}

// Combine runs the composite stages over the available pillar scores:
// weighted average with weights renormalized over available pillars, breach
// penalty subtracted and floored at zero, then calibration and clipping.
// Fewer than two pillars, or no positive weight among them, is indeterminate.
func Combine(scores, weights map[schema.PillarID]float64, penalties schema.PenaltyTable, alpha float64) Outcome {
	pillars := schema.SortedPillars(scores)
	out := Outcome{
		Breached: make(map[schema.PillarID]bool, len(pillars)),
		Weights:  make(map[schema.PillarID]float64, len(pillars)),
	}

	for _, p := range pillars {
		if scores[p] < penalties.StressThreshold {
			out.Breached[p] = true
			out.BreachCount++
		}
	}

	if len(pillars) < schema.MinPillarsForComposite {
		out.Indeterminate = true
		return out
	}

	total := 0.0
	for _, p := range pillars {
		total += max(weights[p], 0)
	}
	if total <= 0 {
		out.Indeterminate = true
		return out
	}

	for _, p := range pillars {
		w := max(weights[p], 0) / total
		out.Weights[p] = w
		out.WeightedAverage += w * scores[p]
	}

	out.Penalty = penalties.Penalty(out.BreachCount)
	raw := math.Max(out.WeightedAverage-out.Penalty, 0)
	out.Score = clamp01(alpha * raw)
	return out
}

// Engine computes composite reports against a frozen snapshot.
type Engine struct {
	snap    schema.Snapshot
	profile schema.FamilyProfile
}

// NewEngine validates a snapshot and returns an engine bound to it.
func NewEngine(snap schema.Snapshot) (*Engine, error) {
	profile, ok := schema.GetProfile(snap.Family)
	if !ok {
		return nil, fmt.Errorf("%w: unknown family %q", schema.ErrConfig, snap.Family)
	}
	if err := ValidateWeights(profile, snap.Weights.Pillars); err != nil {
		return nil, err
	}
	if len(snap.Weights.InteractionAdjusted) > 0 {
		if err := ValidateWeights(profile, snap.Weights.InteractionAdjusted); err != nil {
			return nil, fmt.Errorf("interaction-adjusted weights: %w", err)
		}
	}
	if err := snap.Penalties.Validate(); err != nil {
		return nil, err
	}
	if err := ValidateCalibration(snap.Calibration); err != nil {
		return nil, err
	}
	return &Engine{snap: snap, profile: profile}, nil
}

// Snapshot returns the engine's scoring context.
func (e *Engine) Snapshot() schema.Snapshot {
	return e.snap
}

// Profile returns the family profile of the engine.
func (e *Engine) Profile() schema.FamilyProfile {
	return e.profile
}

// Compute scores one date. Pillars outside the family are ignored.
func (e *Engine) Compute(date time.Time, pillars []schema.PillarScore) schema.CompositeReport {
	available := make(map[schema.PillarID]schema.PillarScore, len(pillars))
	for _, p := range pillars {
		if e.profile.HasPillar(p.Pillar) {
			available[p.Pillar] = p
		}
	}
	scores := make(map[schema.PillarID]float64, len(available))
	for id, p := range available {
		scores[id] = p.Score
	}

	report := schema.CompositeReport{
		Family: e.snap.Family,
		Date:   date,
	}
	for _, id := range e.profile.Pillars {
		if _, ok := available[id]; !ok {
			report.ExcludedPillars = append(report.ExcludedPillars, id)
		}
	}
	if len(report.ExcludedPillars) > 0 {
		report.AddFlag(schema.FlagPillarExcluded)
	}

	weights := e.snap.Weights.Pillars
	if len(e.snap.Weights.InteractionAdjusted) > 0 && StressConditionActive(e.profile, scores, e.snap.Penalties.StressThreshold) {
		weights = e.snap.Weights.InteractionAdjusted
		report.InteractionWeightsActive = true
		report.AddFlag(schema.FlagInteractionWeights)
	}
	if e.snap.Weights.EstimatorFallback {
		report.AddFlag(schema.FlagEstimatorFallback)
	}
	if e.snap.Weights.EqualFallback {
		report.AddFlag(schema.FlagEqualWeightFallback)
	}

	alpha, era := e.snap.Calibration.AlphaAt(date, e.snap.Eras)
	out := Combine(scores, weights, e.snap.Penalties, alpha)

	report.Alpha = alpha
	report.Era = era
	report.BreachCount = out.BreachCount
	report.WeightsUsed = out.Weights
	report.Indeterminate = out.Indeterminate
	if out.Indeterminate {
		report.Label = schema.IndeterminateLabel
		report.AddFlag(schema.FlagIndeterminate)
	} else {
		report.Score = out.Score
		report.WeightedAverage = out.WeightedAverage
		report.Penalty = out.Penalty
		report.Label = schema.LabelFor(out.Score)
	}

	for _, id := range schema.SortedPillars(available) {
		p := available[id]
		report.Pillars = append(report.Pillars, schema.PillarResult{
			Pillar:         id,
			Score:          p.Score,
			Weight:         out.Weights[id],
			Breached:       out.Breached[id],
			DataQuality:    p.DataQuality,
			IndicatorsUsed: p.IndicatorsUsed,
		})
	}
	report.Drivers = RankDrivers(report.Pillars, 3)

	posture, flags := DecidePosture(report.Label, nil, out.Breached[schema.PositioningPillar], e.snap.PositioningHeuristic)
	report.Posture = posture
	for _, f := range flags {
		report.AddFlag(f)
	}
	return report
}

// StressConditionActive reports whether the family's anchor pillar and at
// least one of its partners are below the stress threshold.
func StressConditionActive(profile schema.FamilyProfile, scores map[schema.PillarID]float64, threshold float64) bool {
	anchor, ok := scores[profile.StressAnchor]
	if !ok || anchor >= threshold {
		return false
	}
	for _, partner := range profile.StressPartners {
		if s, ok := scores[partner]; ok && s < threshold {
			return true
		}
	}
	return false
}

// ValidateWeights checks that weights are non-negative, name only family
// pillars and sum to 1.
func ValidateWeights(profile schema.FamilyProfile, weights map[schema.PillarID]float64) error {
	if len(weights) == 0 {
		return fmt.Errorf("%w: empty weight vector for %s", schema.ErrConfig, profile.Family)
	}
	sum := 0.0
	for p, w := range weights {
		if !profile.HasPillar(p) {
			return fmt.Errorf("%w: weight for unknown %s pillar %q", schema.ErrConfig, profile.Family, p)
		}
		if w < 0 || math.IsNaN(w) {
			return fmt.Errorf("%w: weight for %s must be non-negative, got %v", schema.ErrConfig, p, w)
		}
		sum += w
	}
	if math.Abs(sum-1) > weightSumTolerance {
		return fmt.Errorf("%w: %s weights must sum to 1.0, got %.3f", schema.ErrConfig, profile.Family, sum)
	}
	return nil
}

// ValidateCalibration checks that every α lies within the calibration bounds.
func ValidateCalibration(c schema.CalibrationSet) error {
	if c.Min <= 0 || c.Max < c.Min {
		return fmt.Errorf("%w: calibration bounds [%g, %g] are invalid", schema.ErrConfig, c.Min, c.Max)
	}
	if c.Default < c.Min || c.Default > c.Max {
		return fmt.Errorf("%w: calibration factor %g outside [%g, %g]", schema.ErrConfig, c.Default, c.Min, c.Max)
	}
	for era, a := range c.ByEra {
		if a < c.Min || a > c.Max {
			return fmt.Errorf("%w: calibration factor %g for era %s outside [%g, %g]", schema.ErrConfig, a, era, c.Min, c.Max)
		}
	}
	return nil
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
