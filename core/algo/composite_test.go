package algo

import (
	"fmt"
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pillarScores(scores map[schema.PillarID]float64) []schema.PillarScore {
	out := make([]schema.PillarScore, 0, len(scores))
	for _, p := range schema.SortedPillars(scores) {
		out = append(out, schema.PillarScore{
			Pillar:         p,
			Date:           testDate,
			Score:          scores[p],
			IndicatorsUsed: []string{string(p) + "_x"},
			DataQuality:    schema.NativeTier,
		})
	}
	return out
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(schema.DefaultSnapshot(schema.MACFamily))
	require.NoError(t, err)
	return e
}

func lehmanScores(nearZero, valuation, policy float64) map[schema.PillarID]float64 {
	return map[schema.PillarID]float64{
		schema.LiquidityPillar:   nearZero,
		schema.PositioningPillar: 0.18,
		schema.VolatilityPillar:  nearZero,
		schema.ValuationPillar:   valuation,
		schema.PolicyPillar:      policy,
		schema.ContagionPillar:   nearZero,
	}
}

func TestEngineLehman(t *testing.T) {
	e := newTestEngine(t)
	report := e.Compute(testDate, pillarScores(lehmanScores(0, 0.215, 0.5)))

	assert.False(t, report.Indeterminate)
	assert.Equal(t, 5, report.BreachCount)
	assert.InDelta(t, 0.03, report.Penalty, 1e-12)
	assert.InDelta(t, 0.26125, report.WeightedAverage, 1e-12)
	assert.InDelta(t, 0.78*(0.26125-0.03), report.Score, 1e-12)
	assert.Equal(t, schema.RegimeBreakLabel, report.Label)
	assert.Equal(t, schema.CrisisPosture, report.Posture)
	assert.Empty(t, report.ExcludedPillars)
	require.NotEmpty(t, report.Drivers)
	assert.Equal(t, schema.ValuationPillar, report.Drivers[0].Pillar)
}

func TestEngineLehmanRanges(t *testing.T) {
	e := newTestEngine(t)
	for _, nearZero := range []float64{0, 0.02, 0.05} {
		for _, valuation := range []float64{0.17, 0.215, 0.26} {
			for _, policy := range []float64{0.3, 0.4, 0.5, 0.6, 0.7} {
				report := e.Compute(testDate, pillarScores(lehmanScores(nearZero, valuation, policy)))
				name := fmt.Sprintf("near=%g valuation=%g policy=%g", nearZero, valuation, policy)
				assert.Contains(t, []schema.RegimeLabel{schema.RegimeBreakLabel, schema.StretchedLabel}, report.Label, name)
				assert.LessOrEqual(t, report.Score, 0.25, name)
				if policy >= 0.4 || valuation >= 0.26 {
					assert.GreaterOrEqual(t, report.Score, 0.14, name)
				} else {
					assert.GreaterOrEqual(t, report.Score, 0.12, name)
				}
			}
		}
	}
}

func TestEngineHealthy(t *testing.T) {
	e := newTestEngine(t)
	scores := map[schema.PillarID]float64{}
	for _, p := range e.Profile().Pillars {
		scores[p] = 0.7
	}
	report := e.Compute(testDate, pillarScores(scores))

	assert.InDelta(t, 0.546, report.Score, 1e-12)
	assert.Equal(t, 0.0, report.Penalty)
	assert.Equal(t, 0, report.BreachCount)
	assert.Equal(t, schema.ComfortableLabel, report.Label)
	assert.Equal(t, schema.NormalPosture, report.Posture)
}

func TestEngineExcludedPillar(t *testing.T) {
	e := newTestEngine(t)
	report := e.Compute(testDate, pillarScores(map[schema.PillarID]float64{
		schema.LiquidityPillar: 0.8,
		schema.ValuationPillar: 0.6,
	}))

	assert.True(t, report.HasFlag(schema.FlagPillarExcluded))
	assert.Len(t, report.ExcludedPillars, 4)
	assert.InDelta(t, 0.125, report.WeightsUsed[schema.LiquidityPillar], 1e-12)
	assert.InDelta(t, 0.875, report.WeightsUsed[schema.ValuationPillar], 1e-12)
	assert.InDelta(t, 0.78*0.625, report.Score, 1e-12)
}

func TestEngineIndeterminate(t *testing.T) {
	e := newTestEngine(t)
	report := e.Compute(testDate, pillarScores(map[schema.PillarID]float64{
		schema.LiquidityPillar: 0.8,
	}))

	assert.True(t, report.Indeterminate)
	assert.Equal(t, schema.IndeterminateLabel, report.Label)
	assert.True(t, report.HasFlag(schema.FlagIndeterminate))
	assert.Equal(t, schema.CautiousPosture, report.Posture)
	assert.Equal(t, 0.0, report.Score)

	empty := e.Compute(testDate, nil)
	assert.True(t, empty.Indeterminate)
}

func TestEngineOrderInvariance(t *testing.T) {
	e := newTestEngine(t)
	scores := pillarScores(map[schema.PillarID]float64{
		schema.LiquidityPillar:   0.31,
		schema.PositioningPillar: 0.27,
		schema.VolatilityPillar:  0.55,
		schema.ValuationPillar:   0.12,
		schema.PolicyPillar:      0.91,
		schema.ContagionPillar:   0.44,
	})
	reversed := make([]schema.PillarScore, len(scores))
	for i, s := range scores {
		reversed[len(scores)-1-i] = s
	}

	a := e.Compute(testDate, scores)
	b := e.Compute(testDate, reversed)
	assert.Equal(t, a.Score, b.Score)
	assert.Equal(t, a.Pillars, b.Pillars)

	again := e.Compute(testDate, scores)
	assert.Equal(t, a, again)
}

func TestEngineInteractionWeights(t *testing.T) {
	snap := schema.DefaultSnapshot(schema.MACFamily)
	snap.Weights.InteractionAdjusted = map[schema.PillarID]float64{
		schema.LiquidityPillar:   0.2,
		schema.ValuationPillar:   0.1,
		schema.PositioningPillar: 0.3,
		schema.VolatilityPillar:  0.2,
		schema.PolicyPillar:      0.1,
		schema.ContagionPillar:   0.1,
	}
	e, err := NewEngine(snap)
	require.NoError(t, err)

	calm := e.Compute(testDate, pillarScores(map[schema.PillarID]float64{
		schema.PositioningPillar: 0.6,
		schema.VolatilityPillar:  0.2,
	}))
	assert.False(t, calm.InteractionWeightsActive)

	stressed := e.Compute(testDate, pillarScores(map[schema.PillarID]float64{
		schema.PositioningPillar: 0.2,
		schema.VolatilityPillar:  0.2,
	}))
	assert.True(t, stressed.InteractionWeightsActive)
	assert.True(t, stressed.HasFlag(schema.FlagInteractionWeights))
	assert.InDelta(t, 0.6, stressed.WeightsUsed[schema.PositioningPillar], 1e-12)
}

func TestEngineEraCalibration(t *testing.T) {
	snap := schema.DefaultSnapshot(schema.MACFamily)
	snap.Calibration.ByEra = map[string]float64{"floating": 1.0}
	e, err := NewEngine(snap)
	require.NoError(t, err)

	scores := pillarScores(map[schema.PillarID]float64{
		schema.LiquidityPillar: 0.6,
		schema.ValuationPillar: 0.6,
	})
	old := e.Compute(time.Date(1987, 10, 19, 0, 0, 0, 0, time.UTC), scores)
	assert.Equal(t, "floating", old.Era)
	assert.InDelta(t, 0.6, old.Score, 1e-12)

	recent := e.Compute(testDate, scores)
	assert.Equal(t, "post_gfc", recent.Era)
	assert.InDelta(t, 0.78*0.6, recent.Score, 1e-12)
}

func TestNewEngineValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*schema.Snapshot)
	}{
		{"unknown family", func(s *schema.Snapshot) { s.Family = "nope" }},
		{"weights off", func(s *schema.Snapshot) { s.Weights.Pillars[schema.LiquidityPillar] = 0.5 }},
		{"foreign pillar", func(s *schema.Snapshot) { s.Weights.Pillars[schema.GovernancePillar] = 0 }},
		{"penalty not monotone", func(s *schema.Snapshot) { s.Penalties.Penalties = []float64{0, 0, 0.02, 0.01} }},
		{"alpha out of bounds", func(s *schema.Snapshot) { s.Calibration.Default = 2 }},
		{"era alpha out of bounds", func(s *schema.Snapshot) { s.Calibration.ByEra = map[string]float64{"early": 0.1} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := schema.DefaultSnapshot(schema.MACFamily)
			tt.mutate(&snap)
			_, err := NewEngine(snap)
			assert.ErrorIs(t, err, schema.ErrConfig)
		})
	}
}

func TestCombine(t *testing.T) {
	pt := schema.DefaultPenaltyTable()

	t.Run("penalty floors at zero", func(t *testing.T) {
		out := Combine(map[schema.PillarID]float64{"a": 0.0, "b": 0.0, "c": 0.0}, map[schema.PillarID]float64{"a": 1, "b": 1, "c": 1}, pt, 0.78)
		assert.Equal(t, 0.0, out.Score)
		assert.Equal(t, 3, out.BreachCount)
	})

	t.Run("clipped to one", func(t *testing.T) {
		out := Combine(map[schema.PillarID]float64{"a": 1, "b": 1}, map[schema.PillarID]float64{"a": 1, "b": 1}, pt, 1.5)
		assert.Equal(t, 1.0, out.Score)
	})

	t.Run("zero weights are indeterminate", func(t *testing.T) {
		out := Combine(map[schema.PillarID]float64{"a": 1, "b": 1}, map[schema.PillarID]float64{}, pt, 1)
		assert.True(t, out.Indeterminate)
	})
}

func BenchmarkEngineCompute(b *testing.B) {
	e, _ := NewEngine(schema.DefaultSnapshot(schema.MACFamily))
	scores := pillarScores(map[schema.PillarID]float64{
		schema.LiquidityPillar:   0.31,
		schema.PositioningPillar: 0.27,
		schema.VolatilityPillar:  0.55,
		schema.ValuationPillar:   0.12,
		schema.PolicyPillar:      0.91,
		schema.ContagionPillar:   0.44,
	})
	for b.Loop() {
		_ = e.Compute(testDate, scores)
	}
}
