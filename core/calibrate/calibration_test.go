package calibrate

import (
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFitCalibration(t *testing.T) {
	samples := []Sample{
		{ScenarioID: "a", Date: day(1998, 8, 17), Resolved: day(1998, 10, 1), Raw: 0.4, Target: 0.32},
		{ScenarioID: "b", Date: day(2001, 9, 11), Resolved: day(2001, 10, 1), Raw: 0.5, Target: 0.40},
		{ScenarioID: "c", Date: day(2008, 9, 15), Resolved: day(2009, 6, 1), Raw: 0.2, Target: 0.16},
	}

	t.Run("least squares", func(t *testing.T) {
		cal, err := FitCalibration(samples, time.Time{}, schema.DefaultEras(), DefaultOptions())
		require.NoError(t, err)
		assert.InDelta(t, 0.8, cal.Default, 1e-12)
		assert.Equal(t, 3, cal.Samples)
		assert.Empty(t, cal.ByEra, "no era reaches the per-era minimum")
	})

	t.Run("only resolved samples", func(t *testing.T) {
		cal, err := FitCalibration(samples, day(2005, 1, 1), schema.DefaultEras(), DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 2, cal.Samples)
	})

	t.Run("clipped to bounds", func(t *testing.T) {
		high := []Sample{{ScenarioID: "x", Raw: 0.1, Target: 0.9}}
		cal, err := FitCalibration(high, time.Time{}, nil, DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, schema.DefaultAlphaMax, cal.Default)
	})

	t.Run("per era", func(t *testing.T) {
		opts := DefaultOptions()
		opts.MinPerEra = 2
		cal, err := FitCalibration(samples, time.Time{}, schema.DefaultEras(), opts)
		require.NoError(t, err)
		require.Contains(t, cal.ByEra, "floating")
		assert.InDelta(t, 0.8, cal.ByEra["floating"], 1e-12)
		assert.NotContains(t, cal.ByEra, "post_gfc")
	})

	t.Run("nothing resolved", func(t *testing.T) {
		_, err := FitCalibration(samples, day(1990, 1, 1), nil, DefaultOptions())
		assert.ErrorIs(t, err, schema.ErrInsufficientData)
	})

	t.Run("bad bounds", func(t *testing.T) {
		_, err := FitCalibration(samples, time.Time{}, nil, Options{Min: 2, Max: 1})
		assert.ErrorIs(t, err, schema.ErrConfig)
	})
}

func TestSamplesFromScenarios(t *testing.T) {
	sev := 0.8
	scenarios := []schema.Scenario{
		{
			ID:       "ok",
			Start:    day(2008, 9, 15),
			Severity: &sev,
			Pillars:  map[schema.PillarID]float64{schema.LiquidityPillar: 0.5, schema.ValuationPillar: 0.7},
		},
		{ID: "no-target", Start: day(2008, 9, 15), Pillars: map[schema.PillarID]float64{schema.LiquidityPillar: 0.5, schema.ValuationPillar: 0.7}},
		{ID: "thin", Start: day(2008, 9, 15), Severity: &sev, Pillars: map[schema.PillarID]float64{schema.LiquidityPillar: 0.5}},
	}
	samples, skipped := SamplesFromScenarios(scenarios, schema.GetDefaultWeights(schema.MACFamily), schema.DefaultPenaltyTable())
	require.Len(t, samples, 1)
	assert.InDelta(t, 0.675, samples[0].Raw, 1e-12)
	assert.InDelta(t, 0.2, samples[0].Target, 1e-12)
	assert.Len(t, skipped, 2)

	res := Residuals(samples, schema.CalibrationSet{Default: 0.5}, nil)
	assert.InDelta(t, 0.1375, res[0], 1e-12)
}
