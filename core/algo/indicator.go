// Package algo has the pure scoring functions: indicator scoring, pillar
// aggregation, the composite combination and driver ranking.
package algo

import (
	"fmt"
	"math"

	"github.com/huangsam/macindex/schema"
)

// ScoreIndicator maps a raw value onto [0,1] using piecewise-linear
// interpolation between the ample, thin and breach boundaries. The thin
// boundary scores exactly 0.5.
func ScoreIndicator(value float64, ts schema.ThresholdSet) (float64, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, fmt.Errorf("%w: non-finite value %v", schema.ErrInsufficientData, value)
	}
	if err := ts.Validate(); err != nil {
		return 0, err
	}

	switch ts.Direction {
	case schema.HigherIsBetter:
		return scoreHigher(value, ts.Ample, ts.Thin, ts.Breach), nil
	case schema.LowerIsBetter:
		return scoreLower(value, ts.Ample, ts.Thin, ts.Breach), nil
	default: // schema.TwoSided
		switch {
		case value < ts.Ample:
			return scoreHigher(value, ts.Ample, ts.Thin, ts.Breach), nil
		case value > ts.UpperAmple:
			return scoreLower(value, ts.UpperAmple, ts.UpperThin, ts.UpperBreach), nil
		default:
			return 1, nil
		}
	}
}

// scoreHigher scores a value where larger is healthier (breach < thin < ample).
func scoreHigher(v, ample, thin, breach float64) float64 {
	switch {
	case v >= ample:
		return 1
	case v <= breach:
		return 0
	case v >= thin:
		return 0.5 + 0.5*(v-thin)/(ample-thin)
	default:
		return 0.5 * (v - breach) / (thin - breach)
	}
}

// scoreLower scores a value where smaller is healthier (ample < thin < breach).
func scoreLower(v, ample, thin, breach float64) float64 {
	return scoreHigher(-v, -ample, -thin, -breach)
}
