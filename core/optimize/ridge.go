package optimize

import (
	"fmt"
	"math"

	"github.com/huangsam/macindex/schema"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultRidgeLambda is the fixed ridge penalty of the fallback estimator.
const DefaultRidgeLambda = 1.0

// Ridge is an L2-regularized linear regression on standardized features.
type Ridge struct {
	lambda float64
}

// NewRidge returns a ridge estimator with a fixed penalty.
func NewRidge(lambda float64) *Ridge {
	return &Ridge{lambda: lambda}
}

func (r *Ridge) Kind() schema.EstimatorKind { return schema.RidgeEstimator }

func (r *Ridge) Capable(rows, features int) bool { return rows >= 2 && features > 0 }

type ridgeModel struct {
	intercept float64
	means     []float64
	scales    []float64
	beta      []float64
}

func (m *ridgeModel) Predict(x []float64) float64 {
	out := m.intercept
	for j, b := range m.beta {
		out += b * (x[j] - m.means[j]) / m.scales[j]
	}
	return out
}

// Importances returns |β| on the standardized scale.
func (m *ridgeModel) Importances() []float64 {
	out := make([]float64, len(m.beta))
	for j, b := range m.beta {
		out[j] = math.Abs(b)
	}
	return out
}

// Fit solves (XᵀX + λI)β = Xᵀy on centered targets and standardized columns.
// Constant columns get zero coefficients.
func (r *Ridge) Fit(x [][]float64, y []float64) (Model, error) {
	if len(x) != len(y) || len(x) < 2 {
		return nil, fmt.Errorf("%w: ridge needs at least two matching rows, got %d and %d", schema.ErrFitFailed, len(x), len(y))
	}
	n, p := len(x), len(x[0])

	m := &ridgeModel{means: make([]float64, p), scales: make([]float64, p)}
	col := make([]float64, n)
	for j := range p {
		for i := range n {
			col[i] = x[i][j]
		}
		mean, std := stat.MeanStdDev(col, nil)
		m.means[j] = mean
		if std <= 0 || math.IsNaN(std) {
			std = 1
		}
		m.scales[j] = std
	}
	m.intercept = stat.Mean(y, nil)

	xs := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i := range n {
		for j := range p {
			xs.Set(i, j, (x[i][j]-m.means[j])/m.scales[j])
		}
		yc.SetVec(i, y[i]-m.intercept)
	}

	var gram mat.Dense
	gram.Mul(xs.T(), xs)
	for j := range p {
		gram.Set(j, j, gram.At(j, j)+r.lambda)
	}
	var rhs mat.VecDense
	rhs.MulVec(xs.T(), yc)

	var beta mat.VecDense
	if err := beta.SolveVec(&gram, &rhs); err != nil {
		return nil, fmt.Errorf("%w: ridge solve: %v", schema.ErrFitFailed, err)
	}
	m.beta = make([]float64, p)
	for j := range p {
		m.beta[j] = beta.AtVec(j)
	}
	return m, nil
}
