package optimize

import (
	"github.com/huangsam/macindex/schema"
)

// minGBMRows is the smallest training set the boosted trees are trusted on.
const minGBMRows = 8

// Model is a fitted regressor.
type Model interface {
	Predict(x []float64) float64
	// Importances returns one non-negative value per feature.
	Importances() []float64
}

// Estimator fits a Model from a feature matrix and targets.
type Estimator interface {
	Kind() schema.EstimatorKind
	// Capable reports whether the estimator can fit a training set of this shape.
	Capable(rows, features int) bool
	Fit(x [][]float64, y []float64) (Model, error)
}

// SelectEstimator returns the requested estimator when it is capable of the
// training set, otherwise the ridge fallback. The second result reports
// whether the fallback was taken.
func SelectEstimator(requested schema.EstimatorKind, rows, features int) (Estimator, bool) {
	var primary Estimator
	switch requested {
	case schema.RidgeEstimator:
		primary = NewRidge(DefaultRidgeLambda)
	default:
		primary = NewGBM(DefaultGBMParams())
	}
	if primary.Capable(rows, features) {
		return primary, false
	}
	return NewRidge(DefaultRidgeLambda), primary.Kind() != schema.RidgeEstimator
}
