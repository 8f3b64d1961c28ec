package uncertainty

import (
	"context"
	"testing"
	"time"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2020, time.March, 16, 0, 0, 0, 0, time.UTC)

func tieredPillars(tier schema.Tier, score float64) []schema.PillarScore {
	profile, _ := schema.GetProfile(schema.MACFamily)
	out := make([]schema.PillarScore, 0, len(profile.Pillars))
	for _, p := range profile.Pillars {
		id := string(p) + "_ind"
		out = append(out, schema.PillarScore{
			Pillar:         p,
			Date:           testDate,
			Score:          score,
			IndicatorsUsed: []string{id},
			DataQuality:    tier,
			Indicators: []schema.IndicatorScore{
				{IndicatorID: id, Pillar: p, Date: testDate, Score: score, Tier: tier},
			},
		})
	}
	return out
}

func linearSnapshot() schema.Snapshot {
	snap := schema.DefaultSnapshot(schema.MACFamily)
	snap.Penalties.Penalties = nil
	return snap
}

func runBootstrap(t *testing.T, snap schema.Snapshot, pillars []schema.PillarScore, opts Options) *schema.BootstrapResult {
	t.Helper()
	engine, err := algo.NewEngine(snap)
	require.NoError(t, err)
	report := engine.Compute(testDate, pillars)
	res, err := Bootstrap(context.Background(), snap, report, pillars, opts)
	require.NoError(t, err)
	return res
}

func TestBootstrapWidthShrinksWithTier(t *testing.T) {
	opts := DefaultOptions()
	opts.WeightNoise = 0
	opts.AlphaNoise = 0
	snap := linearSnapshot()

	tiers := []schema.Tier{schema.NativeTier, schema.ComputedTier, schema.ProxyHistoricalTier, schema.EstimatedTier}
	prev := -1.0
	for _, tier := range tiers {
		res := runBootstrap(t, snap, tieredPillars(tier, 0.5), opts)
		require.Len(t, res.Intervals, 2)
		width := res.Intervals[1].Upper - res.Intervals[1].Lower
		assert.Greater(t, width, prev, "tier %s", tier)
		prev = width
	}
}

func TestBootstrapDeterministic(t *testing.T) {
	snap := schema.DefaultSnapshot(schema.MACFamily)
	pillars := tieredPillars(schema.ProxyModernTier, 0.4)
	opts := DefaultOptions()

	a := runBootstrap(t, snap, pillars, opts)
	opts.Workers = 1
	b := runBootstrap(t, snap, pillars, opts)
	assert.Equal(t, a, b)

	assert.Equal(t, 1000, a.Replicates)
	for _, iv := range a.Intervals {
		assert.True(t, iv.Lower >= 0 && iv.Upper <= 1)
		assert.LessOrEqual(t, iv.Lower, iv.Upper)
	}
	assert.GreaterOrEqual(t, a.Intervals[0].Lower, a.Intervals[1].Lower, "90% band contains 80% band")
	assert.LessOrEqual(t, a.Intervals[0].Upper, a.Intervals[1].Upper)
}

func TestBootstrapErrors(t *testing.T) {
	snap := schema.DefaultSnapshot(schema.MACFamily)
	_, err := Bootstrap(context.Background(), snap, schema.CompositeReport{Indeterminate: true}, nil, DefaultOptions())
	assert.ErrorIs(t, err, schema.ErrInsufficientData)

	opts := DefaultOptions()
	opts.Replicates = 0
	_, err = Bootstrap(context.Background(), snap, schema.CompositeReport{}, nil, opts)
	assert.ErrorIs(t, err, schema.ErrConfig)
}

func TestConformalBands(t *testing.T) {
	residuals := []float64{0.09, 0.01, 0.05, 0.03, 0.07, 0.02, 0.08, 0.04, 0.06}

	res, err := ConformalBands(0.5, residuals, nil)
	require.NoError(t, err)
	assert.Equal(t, 9, res.Residuals)
	require.Len(t, res.Intervals, 2)
	assert.InDelta(t, 0.42, res.Intervals[0].Lower, 1e-12)
	assert.InDelta(t, 0.58, res.Intervals[0].Upper, 1e-12)
	assert.InDelta(t, 0.41, res.Intervals[1].Lower, 1e-12)

	few, err := ConformalBands(0.5, residuals[:3], []float64{0.9})
	require.NoError(t, err)
	assert.Equal(t, schema.Interval{Level: 0.9, Lower: 0, Upper: 1}, few.Intervals[0])

	clipped, err := ConformalBands(0.02, residuals, []float64{0.8})
	require.NoError(t, err)
	assert.Equal(t, 0.0, clipped.Intervals[0].Lower)

	_, err = ConformalBands(0.5, nil, nil)
	assert.ErrorIs(t, err, schema.ErrInsufficientData)
}

func TestAnnotate(t *testing.T) {
	var report schema.CompositeReport
	Annotate(&report, &schema.BootstrapResult{Replicates: 10}, nil)
	require.NotNil(t, report.Uncertainty)
	assert.NotNil(t, report.Uncertainty.Bootstrap)
	assert.True(t, report.HasFlag(schema.FlagConformalUnavailable))
	assert.False(t, report.HasFlag(schema.FlagBootstrapUnavailable))
}

func BenchmarkBootstrap(b *testing.B) {
	snap := schema.DefaultSnapshot(schema.MACFamily)
	engine, _ := algo.NewEngine(snap)
	pillars := tieredPillars(schema.ComputedTier, 0.45)
	report := engine.Compute(testDate, pillars)
	for b.Loop() {
		_, _ = Bootstrap(context.Background(), snap, report, pillars, DefaultOptions())
	}
}
