package optimize

import (
	"context"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// grriCatalog builds scenarios whose target tracks the environmental pillar.
func grriCatalog(n int, severity func(i int) float64) []schema.Scenario {
	out := make([]schema.Scenario, 0, n)
	for i := range n {
		sev := severity(i)
		env := 1 - float64(i)/float64(n)
		out = append(out, schema.Scenario{
			ID:       "s" + string(rune('a'+i)),
			Start:    day(1990+i, 1, 1),
			End:      day(1990+i, 6, 1),
			Severity: &sev,
			Pillars: map[schema.PillarID]float64{
				schema.GovernancePillar:    0.5,
				schema.EconomicPillar:      0.5,
				schema.SocialPillar:        0.5,
				schema.EnvironmentalPillar: env,
			},
		})
	}
	return out
}

func newOptimizer(t *testing.T, f schema.Family) *Optimizer {
	t.Helper()
	o, err := New(DefaultConfig(f), zerolog.Nop())
	require.NoError(t, err)
	return o
}

func TestFitIdenticalLabels(t *testing.T) {
	o := newOptimizer(t, schema.GRRIFamily)
	catalog := grriCatalog(10, func(int) float64 { return 0.5 })

	report, err := o.Fit(context.Background(), catalog, time.Time{})
	require.NoError(t, err)
	assert.True(t, report.Weights.EqualFallback)
	for _, w := range report.Weights.Pillars {
		assert.InDelta(t, 0.25, w, 1e-12)
	}
}

func TestFitRecoversSignal(t *testing.T) {
	o := newOptimizer(t, schema.GRRIFamily)
	n := 12
	catalog := grriCatalog(n, func(i int) float64 { return float64(i) / float64(n) })

	report, err := o.Fit(context.Background(), catalog, time.Time{})
	require.NoError(t, err)
	assert.False(t, report.Weights.EqualFallback)
	assert.Equal(t, schema.GBMEstimator, report.Weights.Estimator)
	assert.Equal(t, n*6, report.Rows)

	sum := 0.0
	top := schema.PillarID("")
	for _, p := range schema.SortedPillars(report.Weights.Pillars) {
		w := report.Weights.Pillars[p]
		sum += w
		if top == "" || w > report.Weights.Pillars[top] {
			top = p
		}
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
	assert.Equal(t, schema.EnvironmentalPillar, top)

	require.NotNil(t, report.Validation)
	assert.Len(t, report.Validation.Folds, n)
	assert.Less(t, report.Validation.MAE, 0.3)
	assert.False(t, math.IsNaN(report.Validation.MeanWeightStd))
}

func TestFitRejectsUnresolvedScenarios(t *testing.T) {
	o := newOptimizer(t, schema.GRRIFamily)
	catalog := grriCatalog(6, func(i int) float64 { return float64(i) / 6 })
	asOf := day(1993, 1, 1)

	rows, skipped := o.Rows(catalog, asOf)
	assert.Len(t, rows, 3)
	require.Len(t, skipped, 3)
	for _, s := range skipped {
		assert.True(t, strings.HasPrefix(s.Reason, "resolved after"))
	}
	for _, r := range rows {
		assert.NotContains(t, []string{"sd", "se", "sf"}, r.ScenarioID)
	}

	_, err := o.Fit(context.Background(), catalog, day(1990, 3, 1))
	assert.ErrorIs(t, err, schema.ErrInsufficientData)
}

func TestFitSmallCatalogFallsBack(t *testing.T) {
	cfg := DefaultConfig(schema.GRRIFamily)
	cfg.Augment.Variants = 0
	o, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)

	catalog := grriCatalog(4, func(i int) float64 { return float64(i) / 4 })
	report, err := o.Fit(context.Background(), catalog, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, schema.RidgeEstimator, report.Weights.Estimator)
	assert.True(t, report.Weights.EstimatorFallback)
	assert.NotEmpty(t, report.FallbackReason)
}

func TestSelectEstimator(t *testing.T) {
	est, fellBack := SelectEstimator(schema.GBMEstimator, 40, 6)
	assert.Equal(t, schema.GBMEstimator, est.Kind())
	assert.False(t, fellBack)

	est, fellBack = SelectEstimator(schema.GBMEstimator, 3, 6)
	assert.Equal(t, schema.RidgeEstimator, est.Kind())
	assert.True(t, fellBack)

	est, fellBack = SelectEstimator(schema.RidgeEstimator, 3, 6)
	assert.Equal(t, schema.RidgeEstimator, est.Kind())
	assert.False(t, fellBack)
}

func TestBuildFeatures(t *testing.T) {
	profile, _ := schema.GetProfile(schema.MACFamily)
	scores := map[schema.PillarID]float64{
		schema.LiquidityPillar:   0.2,
		schema.ValuationPillar:   0.4,
		schema.PositioningPillar: 0.5,
		schema.VolatilityPillar:  0.6,
		schema.PolicyPillar:      0.8,
		schema.ContagionPillar:   1.0,
	}
	got, ok := BuildFeatures(profile, scores)
	require.True(t, ok)
	assert.Len(t, got, len(FeatureNames(profile)))
	assert.InDelta(t, 0.5*0.6, got[6], 1e-12, "positioning x volatility")
	assert.InDelta(t, 0.5*0.2, got[7], 1e-12, "positioning x liquidity")

	delete(scores, schema.PolicyPillar)
	_, ok = BuildFeatures(profile, scores)
	assert.False(t, ok)
}

func TestAugment(t *testing.T) {
	profile, _ := schema.GetProfile(schema.GRRIFamily)
	features, _ := BuildFeatures(profile, map[schema.PillarID]float64{
		schema.GovernancePillar:    0.0,
		schema.EconomicPillar:      1.0,
		schema.SocialPillar:        0.5,
		schema.EnvironmentalPillar: 0.5,
	})
	rows := []Row{{ScenarioID: "x", Features: features, Target: 0.3}}

	out := Augment(profile, rows, DefaultAugmentOptions(), rand.New(rand.NewPCG(1, 2)))
	require.Len(t, out, 6)
	assert.False(t, out[0].Synthetic)
	for _, r := range out[1:] {
		assert.True(t, r.Synthetic)
		assert.Equal(t, 0.3, r.Target)
		for _, v := range r.Features[:4] {
			assert.True(t, v >= 0 && v <= 1)
		}
		assert.InDelta(t, r.Features[1]*r.Features[0], r.Features[4], 1e-12)
	}
	assert.Equal(t, features, rows[0].Features, "input rows are not mutated")
}

func TestGBMFit(t *testing.T) {
	x := make([][]float64, 0, 30)
	y := make([]float64, 0, 30)
	for i := range 30 {
		v := float64(i) / 30
		x = append(x, []float64{v, 0.5})
		y = append(y, v*v)
	}
	model, err := NewGBM(DefaultGBMParams()).Fit(x, y)
	require.NoError(t, err)

	mean := 0.0
	for _, v := range y {
		mean += v
	}
	mean /= float64(len(y))
	var sse, sst float64
	for i := range x {
		d := model.Predict(x[i]) - y[i]
		sse += d * d
		sst += (y[i] - mean) * (y[i] - mean)
	}
	assert.Less(t, sse, sst/2)

	imps := model.Importances()
	assert.Greater(t, imps[0], 0.0)
	assert.Equal(t, 0.0, imps[1])

	_, err = NewGBM(DefaultGBMParams()).Fit(nil, nil)
	assert.ErrorIs(t, err, schema.ErrFitFailed)
}

func TestRidgeFit(t *testing.T) {
	x := [][]float64{{0, 1}, {1, 1}, {2, 1}, {3, 1}}
	y := []float64{1, 3, 5, 7}
	model, err := NewRidge(DefaultRidgeLambda).Fit(x, y)
	require.NoError(t, err)

	imps := model.Importances()
	assert.Greater(t, imps[0], 0.0)
	assert.Equal(t, 0.0, imps[1])
	assert.Greater(t, model.Predict([]float64{3, 1}), model.Predict([]float64{0, 1}))

	_, err = NewRidge(DefaultRidgeLambda).Fit(x[:1], y[:1])
	assert.ErrorIs(t, err, schema.ErrFitFailed)
}

func BenchmarkGBMFit(b *testing.B) {
	rng := rand.New(rand.NewPCG(7, 7))
	x := make([][]float64, 60)
	y := make([]float64, 60)
	for i := range x {
		x[i] = []float64{rng.Float64(), rng.Float64(), rng.Float64(), rng.Float64()}
		y[i] = x[i][0]
	}
	gbm := NewGBM(DefaultGBMParams())
	for b.Loop() {
		_, _ = gbm.Fit(x, y)
	}
}
