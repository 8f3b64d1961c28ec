package regime

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pillars = []schema.PillarID{schema.LiquidityPillar, schema.PositioningPillar, schema.VolatilityPillar}

// twoRegimeHistory returns calm weeks, a stressed stretch, then calm again.
func twoRegimeHistory(calm, stressed int) []Point {
	rng := rand.New(rand.NewPCG(3, 5))
	start := time.Date(2000, 1, 7, 0, 0, 0, 0, time.UTC)
	total := calm + stressed + calm
	out := make([]Point, 0, total)
	for i := range total {
		level := 0.7
		if i >= calm && i < calm+stressed {
			level = 0.2
		}
		scores := make(map[schema.PillarID]float64, len(pillars))
		for _, p := range pillars {
			scores[p] = level + rng.NormFloat64()*0.03
		}
		out = append(out, Point{Date: start.AddDate(0, 0, 7*i), Scores: scores})
	}
	return out
}

func newDetector() *Detector {
	return NewDetector(DefaultConfig(), zerolog.Nop())
}

func TestDetectHMM(t *testing.T) {
	calm, stressed := 60, 30
	history := twoRegimeHistory(calm, stressed)
	series := newDetector().Detect(history)

	require.Equal(t, schema.HMMMethod, series.Method, series.Reason)
	assert.Equal(t, pillars, series.Pillars)
	require.Len(t, series.Fragility, len(history))

	for i, f := range series.Fragility {
		inStress := i >= calm && i < calm+stressed
		if inStress {
			assert.Greater(t, f, 0.9, "week %d", i)
			assert.Equal(t, schema.FragileState, series.Path[i])
		} else {
			assert.Less(t, f, 0.1, "week %d", i)
			assert.Equal(t, schema.NormalState, series.Path[i])
		}
	}
	assert.Less(t, series.Means[schema.FragileState][0], series.Means[schema.NormalState][0])
	assert.Greater(t, series.Transition[0][0], 0.9)
	assert.Equal(t, 0, series.FallbackDates)
}

func TestFilterHasNoLookahead(t *testing.T) {
	history := twoRegimeHistory(60, 30)
	model, err := newDetector().Fit(history)
	require.NoError(t, err)

	full := model.Filter(history)
	prefix := model.Filter(history[:70])
	assert.Equal(t, prefix, full[:70], "filtered values do not depend on later points")

	f := model.NewFilter()
	for _, p := range history[:75] {
		f.Step(p)
	}
	reading := f.Reading()
	assert.Equal(t, schema.FragileState, reading.State)
	assert.Equal(t, schema.HMMMethod, reading.Method)
}

func TestFilterMissingPillar(t *testing.T) {
	history := twoRegimeHistory(60, 30)
	model, err := newDetector().Fit(history)
	require.NoError(t, err)

	f := model.NewFilter()
	for _, p := range history[:80] {
		f.Step(p)
	}
	before := f.Reading().Fragility
	after := f.Step(Point{Date: history[80].Date, Scores: map[schema.PillarID]float64{}})
	assert.InDelta(t, before, after, 0.1, "a point without evidence only propagates the chain")
}

func TestDetectFallback(t *testing.T) {
	history := twoRegimeHistory(10, 10)
	series := newDetector().Detect(history)

	assert.Equal(t, schema.ThresholdMethod, series.Method)
	assert.NotEmpty(t, series.Reason)
	assert.Equal(t, len(history), series.FallbackDates)
	assert.Equal(t, 1.0, series.Fragility[15])
	assert.Equal(t, 0.0, series.Fragility[0])

	_, err := newDetector().Fit(history)
	assert.ErrorIs(t, err, schema.ErrInsufficientData)
}

func TestSelectPillars(t *testing.T) {
	history := twoRegimeHistory(30, 0)
	for i := range history {
		if i%2 == 0 {
			history[i].Scores[schema.PolicyPillar] = 0.5
		}
	}
	assert.Equal(t, pillars, selectPillars(history, 0.8))
}

func TestThresholdClassifier(t *testing.T) {
	clf := ThresholdClassifier{Cutoff: 0.4}
	assert.Equal(t, schema.FragileState, clf.Classify(map[schema.PillarID]float64{"a": 0.1, "b": 0.5}).State)
	assert.Equal(t, schema.NormalState, clf.Classify(map[schema.PillarID]float64{"a": 0.4, "b": 0.5}).State)
	assert.Equal(t, schema.NormalState, clf.Classify(nil).State)
}

func BenchmarkDetect(b *testing.B) {
	history := twoRegimeHistory(120, 60)
	d := newDetector()
	for b.Loop() {
		_ = d.Detect(history)
	}
}
