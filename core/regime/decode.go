package regime

import (
	"math"

	"github.com/huangsam/macindex/schema"
)

// Viterbi returns the most likely state path in log space.
func (m *Model) Viterbi(points []Point) []schema.RegimeState {
	if len(points) == 0 {
		return nil
	}
	logB := m.pointEmissions(points)
	var logA [states][states]float64
	for a := range states {
		for c := range states {
			logA[a][c] = math.Log(m.trans[a][c])
		}
	}

	t := len(points)
	delta := make([][states]float64, t)
	back := make([][states]int, t)
	for k := range states {
		delta[0][k] = math.Log(m.initial[k]) + logB[0][k]
	}
	for i := 1; i < t; i++ {
		for c := range states {
			best, arg := math.Inf(-1), 0
			for a := range states {
				if v := delta[i-1][a] + logA[a][c]; v > best {
					best, arg = v, a
				}
			}
			delta[i][c] = best + logB[i][c]
			back[i][c] = arg
		}
	}

	path := make([]schema.RegimeState, t)
	k := 0
	if delta[t-1][1] > delta[t-1][0] {
		k = 1
	}
	for i := t - 1; i >= 0; i-- {
		path[i] = m.stateOf(k)
		k = back[i][k]
	}
	return path
}

// Filter returns the fragile probability of each point given only the points
// up to and including it.
func (m *Model) Filter(points []Point) []float64 {
	f := m.NewFilter()
	out := make([]float64, len(points))
	for i, p := range points {
		out[i] = f.Step(p)
	}
	return out
}

// Filter is an incremental forward recursion over a model.
type Filter struct {
	model   *Model
	alpha   [states]float64
	started bool
}

// NewFilter starts a forward recursion at the model's initial distribution.
func (m *Model) NewFilter() *Filter {
	return &Filter{model: m}
}

// Step folds one point into the recursion and returns the filtered fragile
// probability.
func (f *Filter) Step(p Point) float64 {
	m := f.model
	var prior [states]float64
	if !f.started {
		prior = m.initial
		f.started = true
	} else {
		for k := range states {
			for j := range states {
				prior[k] += f.alpha[j] * m.trans[j][k]
			}
		}
	}

	var logB [states]float64
	if v, ok := vector(p, m.Pillars); ok {
		for k := range states {
			logB[k] = m.dists[k].LogProb(v)
		}
	}
	offset := math.Max(logB[0], logB[1])
	total := 0.0
	for k := range states {
		f.alpha[k] = prior[k] * math.Exp(logB[k]-offset)
		total += f.alpha[k]
	}
	if total <= 0 {
		f.alpha = prior
		total = prior[0] + prior[1]
	}
	for k := range states {
		f.alpha[k] /= total
	}
	return f.alpha[m.fragile]
}

// Reading returns the filter's current state as a regime reading.
func (f *Filter) Reading() schema.RegimeReading {
	fr := f.alpha[f.model.fragile]
	state := schema.NormalState
	if fr >= schema.DefaultFragileThreshold {
		state = schema.FragileState
	}
	return schema.RegimeReading{Method: schema.HMMMethod, Fragility: fr, State: state}
}
