// Package regime detects normal and fragile market states from pillar-score
// history with a two-state Gaussian hidden Markov model.
package regime

import (
	"fmt"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
)

// Point is one dated pillar-score vector.
type Point struct {
	Date   time.Time
	Scores map[schema.PillarID]float64
}

// Config controls model fitting and the fallback classifier.
type Config struct {
	MinObservations int
	MaxIterations   int
	Tolerance       float64
	Persistence     float64
	MinCoverage     float64
	Regularization  float64
	Cutoff          float64
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{
		MinObservations: 52,
		MaxIterations:   200,
		Tolerance:       1e-6,
		Persistence:     0.95,
		MinCoverage:     0.80,
		Regularization:  1e-4,
		Cutoff:          schema.DefaultFragilityCutoff,
	}
}

// Detector fits regime models and falls back to a threshold classifier.
type Detector struct {
	cfg Config
	log zerolog.Logger
}

// NewDetector returns a detector.
func NewDetector(cfg Config, log zerolog.Logger) *Detector {
	return &Detector{cfg: cfg, log: log.With().Str("component", "regime").Logger()}
}

// Classifier returns the detector's fallback classifier.
func (d *Detector) Classifier() ThresholdClassifier {
	return ThresholdClassifier{Cutoff: d.cfg.Cutoff}
}

// Detect labels every point. When the HMM cannot be fit the threshold
// classifier labels the whole series and the reason is recorded.
func (d *Detector) Detect(history []Point) schema.RegimeSeries {
	series := schema.RegimeSeries{
		Dates:     make([]time.Time, len(history)),
		Fragility: make([]float64, len(history)),
		Path:      make([]schema.RegimeState, len(history)),
	}
	for i, p := range history {
		series.Dates[i] = p.Date
	}

	model, err := d.Fit(history)
	if err != nil {
		d.log.Warn().Err(err).Msg("Regime model unavailable; using threshold classifier")
		series.Method = schema.ThresholdMethod
		series.Reason = err.Error()
		clf := d.Classifier()
		for i, p := range history {
			r := clf.Classify(p.Scores)
			series.Fragility[i] = r.Fragility
			series.Path[i] = r.State
		}
		series.FallbackDates = len(history)
		return series
	}

	series.Method = schema.HMMMethod
	series.Pillars = model.Pillars
	series.Fragility = model.Posterior(history)
	series.Path = model.Viterbi(history)
	series.Means = map[schema.RegimeState][]float64{
		schema.NormalState:  model.Mean(schema.NormalState),
		schema.FragileState: model.Mean(schema.FragileState),
	}
	series.Transition = model.Transition()
	series.LogLikelihood = model.LogLikelihood
	series.Iterations = model.Iterations
	return series
}

// ThresholdClassifier labels a date fragile when its mean pillar score falls
// below Cutoff.
type ThresholdClassifier struct {
	Cutoff float64
}

// Classify returns a hard reading. With no pillar scores the date is normal.
func (c ThresholdClassifier) Classify(scores map[schema.PillarID]float64) schema.RegimeReading {
	reading := schema.RegimeReading{Method: schema.ThresholdMethod, State: schema.NormalState}
	if len(scores) == 0 {
		return reading
	}
	total := 0.0
	for _, p := range schema.SortedPillars(scores) {
		total += scores[p]
	}
	if total/float64(len(scores)) < c.Cutoff {
		reading.Fragility = 1
		reading.State = schema.FragileState
	}
	return reading
}

// selectPillars keeps pillars present in at least minCoverage of history.
func selectPillars(history []Point, minCoverage float64) []schema.PillarID {
	counts := make(map[schema.PillarID]int)
	for _, p := range history {
		for id := range p.Scores {
			counts[id]++
		}
	}
	var out []schema.PillarID
	for _, id := range schema.SortedPillars(counts) {
		if float64(counts[id]) >= minCoverage*float64(len(history)) {
			out = append(out, id)
		}
	}
	return out
}

// vector lays out a point's scores over pillars; false when any is missing.
func vector(p Point, pillars []schema.PillarID) ([]float64, bool) {
	out := make([]float64, len(pillars))
	for i, id := range pillars {
		v, ok := p.Scores[id]
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func errInsufficient(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{schema.ErrInsufficientData}, args...)...)
}
