package optimize

import (
	"fmt"
	"sort"

	"github.com/huangsam/macindex/schema"
)

// GBMParams are the boosting hyperparameters.
type GBMParams struct {
	Trees        int
	MaxDepth     int
	LearningRate float64
	MinLeaf      int
}

// DefaultGBMParams returns a shallow ensemble suited to small catalogs.
func DefaultGBMParams() GBMParams {
	return GBMParams{Trees: 50, MaxDepth: 3, LearningRate: 0.1, MinLeaf: 2}
}

// GBM is a least-squares gradient-boosted regression tree ensemble.
type GBM struct {
	params GBMParams
}

// NewGBM returns a boosted-tree estimator.
func NewGBM(p GBMParams) *GBM {
	return &GBM{params: p}
}

func (g *GBM) Kind() schema.EstimatorKind { return schema.GBMEstimator }

func (g *GBM) Capable(rows, features int) bool {
	return rows >= max(minGBMRows, 2*g.params.MinLeaf) && features > 0
}

type node struct {
	leaf      bool
	value     float64
	feature   int
	threshold float64
	left      *node
	right     *node
}

func (n *node) predict(x []float64) float64 {
	for !n.leaf {
		if x[n.feature] <= n.threshold {
			n = n.left
		} else {
			n = n.right
		}
	}
	return n.value
}

type gbmModel struct {
	base        float64
	rate        float64
	trees       []*node
	importances []float64
}

func (m *gbmModel) Predict(x []float64) float64 {
	out := m.base
	for _, t := range m.trees {
		out += m.rate * t.predict(x)
	}
	return out
}

func (m *gbmModel) Importances() []float64 {
	out := make([]float64, len(m.importances))
	copy(out, m.importances)
	return out
}

// Fit boosts regression trees on the residuals of a constant base model.
// Feature importance is the total squared-error reduction of its splits.
func (g *GBM) Fit(x [][]float64, y []float64) (Model, error) {
	if len(x) != len(y) || len(x) == 0 {
		return nil, fmt.Errorf("%w: gbm needs matching non-empty rows, got %d and %d", schema.ErrFitFailed, len(x), len(y))
	}
	features := len(x[0])

	base := 0.0
	for _, v := range y {
		base += v
	}
	base /= float64(len(y))

	m := &gbmModel{base: base, rate: g.params.LearningRate, importances: make([]float64, features)}
	pred := make([]float64, len(y))
	for i := range pred {
		pred[i] = base
	}
	residual := make([]float64, len(y))
	all := make([]int, len(y))
	for i := range all {
		all[i] = i
	}

	for range g.params.Trees {
		for i := range y {
			residual[i] = y[i] - pred[i]
		}
		tree := g.grow(x, residual, all, 0, m.importances)
		m.trees = append(m.trees, tree)
		for i := range y {
			pred[i] += g.params.LearningRate * tree.predict(x[i])
		}
	}
	return m, nil
}

// grow builds a tree by exact greedy search over sorted feature values.
func (g *GBM) grow(x [][]float64, r []float64, idx []int, depth int, importances []float64) *node {
	sum := 0.0
	for _, i := range idx {
		sum += r[i]
	}
	leaf := &node{leaf: true, value: sum / float64(len(idx))}
	if depth >= g.params.MaxDepth || len(idx) < 2*g.params.MinLeaf {
		return leaf
	}

	var (
		bestGain    = 1e-12
		bestFeature = -1
		bestThresh  float64
	)
	parent := sum * sum / float64(len(idx))
	order := make([]int, len(idx))
	for f := range x[idx[0]] {
		copy(order, idx)
		sort.SliceStable(order, func(a, b int) bool { return x[order[a]][f] < x[order[b]][f] })

		left := 0.0
		for k := 0; k < len(order)-1; k++ {
			left += r[order[k]]
			nl, nr := k+1, len(order)-k-1
			if nl < g.params.MinLeaf || nr < g.params.MinLeaf {
				continue
			}
			lo, hi := x[order[k]][f], x[order[k+1]][f]
			if lo == hi {
				continue
			}
			right := sum - left
			gain := left*left/float64(nl) + right*right/float64(nr) - parent
			if gain > bestGain {
				bestGain, bestFeature, bestThresh = gain, f, (lo+hi)/2
			}
		}
	}
	if bestFeature < 0 {
		return leaf
	}
	importances[bestFeature] += bestGain

	var li, ri []int
	for _, i := range idx {
		if x[i][bestFeature] <= bestThresh {
			li = append(li, i)
		} else {
			ri = append(ri, i)
		}
	}
	return &node{
		feature:   bestFeature,
		threshold: bestThresh,
		left:      g.grow(x, r, li, depth+1, importances),
		right:     g.grow(x, r, ri, depth+1, importances),
	}
}
