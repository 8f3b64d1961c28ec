package regime

import (
	"fmt"
	"math"
	"sort"

	"github.com/huangsam/macindex/schema"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const states = 2

// Model is a fitted two-state Gaussian HMM. State indices are internal; use
// the exported accessors to read parameters by regime state.
type Model struct {
	Pillars       []schema.PillarID
	LogLikelihood float64
	Iterations    int

	initial [states]float64
	trans   [states][states]float64
	means   [states][]float64
	covs    [states]*mat.SymDense
	dists   [states]*distmv.Normal
	fragile int
}

// Fit estimates the model by Baum-Welch on the complete rows of history.
// Pillars with less than MinCoverage presence are dropped first.
func (d *Detector) Fit(history []Point) (*Model, error) {
	pillars := selectPillars(history, d.cfg.MinCoverage)
	if len(pillars) == 0 {
		return nil, errInsufficient("no pillar reaches %.0f%% coverage", d.cfg.MinCoverage*100)
	}

	var rows [][]float64
	for _, p := range history {
		if v, ok := vector(p, pillars); ok {
			rows = append(rows, v)
		}
	}
	if len(rows) < d.cfg.MinObservations {
		return nil, errInsufficient("%d complete observations, need %d", len(rows), d.cfg.MinObservations)
	}

	m := &Model{Pillars: pillars}
	if err := m.initialize(rows, d.cfg); err != nil {
		return nil, err
	}

	prev := math.Inf(-1)
	converged := false
	for iter := 1; iter <= d.cfg.MaxIterations; iter++ {
		logB := m.emissions(rows)
		gamma, xi, ll := m.forwardBackward(logB)
		if err := m.maximize(rows, gamma, xi, d.cfg.Regularization); err != nil {
			return nil, err
		}
		m.LogLikelihood, m.Iterations = ll, iter
		if math.IsNaN(ll) {
			return nil, fmt.Errorf("%w: log-likelihood diverged at iteration %d", schema.ErrFitFailed, iter)
		}
		if math.Abs(ll-prev) < d.cfg.Tolerance*math.Max(1, math.Abs(ll)) {
			converged = true
			break
		}
		prev = ll
	}
	if !converged {
		return nil, fmt.Errorf("%w: baum-welch did not converge in %d iterations", schema.ErrFitFailed, d.cfg.MaxIterations)
	}

	m.fragile = 0
	if meanOf(m.means[1]) < meanOf(m.means[0]) {
		m.fragile = 1
	}
	d.log.Debug().Int("iterations", m.Iterations).Float64("loglik", m.LogLikelihood).Int("rows", len(rows)).Msg("Regime model fitted")
	return m, nil
}

// initialize splits rows on the median of their mean score.
func (m *Model) initialize(rows [][]float64, cfg Config) error {
	avg := make([]float64, len(rows))
	for i, r := range rows {
		avg[i] = meanOf(r)
	}
	sorted := make([]float64, len(avg))
	copy(sorted, avg)
	sort.Float64s(sorted)
	median := sorted[len(sorted)/2]

	resp := make([][states]float64, len(rows))
	var n [states]int
	for i := range rows {
		k := 1
		if avg[i] < median {
			k = 0
		}
		resp[i][k] = 1
		n[k]++
	}
	if n[0] == 0 || n[1] == 0 {
		return fmt.Errorf("%w: history has no variation to split into regimes", schema.ErrFitFailed)
	}

	stay := cfg.Persistence
	m.initial = [states]float64{0.5, 0.5}
	m.trans = [states][states]float64{{stay, 1 - stay}, {1 - stay, stay}}
	return m.estimateEmissions(rows, resp, cfg.Regularization)
}

// estimateEmissions sets weighted means and covariances from responsibilities.
func (m *Model) estimateEmissions(rows [][]float64, resp [][states]float64, reg float64) error {
	dim := len(rows[0])
	for k := range states {
		total := 0.0
		mu := make([]float64, dim)
		for i, r := range rows {
			total += resp[i][k]
			for j, v := range r {
				mu[j] += resp[i][k] * v
			}
		}
		if total < 1e-9 {
			return fmt.Errorf("%w: state %d lost all responsibility", schema.ErrFitFailed, k)
		}
		for j := range mu {
			mu[j] /= total
		}

		cov := mat.NewSymDense(dim, nil)
		for i, r := range rows {
			w := resp[i][k]
			for a := range dim {
				for b := a; b < dim; b++ {
					cov.SetSym(a, b, cov.At(a, b)+w*(r[a]-mu[a])*(r[b]-mu[b]))
				}
			}
		}
		for a := range dim {
			for b := a; b < dim; b++ {
				v := cov.At(a, b) / total
				if a == b {
					v += reg
				}
				cov.SetSym(a, b, v)
			}
		}

		dist, ok := distmv.NewNormal(mu, cov, nil)
		if !ok {
			return fmt.Errorf("%w: covariance of state %d is not positive definite", schema.ErrFitFailed, k)
		}
		m.means[k], m.covs[k], m.dists[k] = mu, cov, dist
	}
	return nil
}

// emissions returns log densities per row and state.
func (m *Model) emissions(rows [][]float64) [][states]float64 {
	out := make([][states]float64, len(rows))
	for i, r := range rows {
		for k := range states {
			out[i][k] = m.dists[k].LogProb(r)
		}
	}
	return out
}

// forwardBackward runs the scaled recursions. It returns state posteriors,
// summed pairwise posteriors and the log-likelihood.
func (m *Model) forwardBackward(logB [][states]float64) ([][states]float64, [states][states]float64, float64) {
	t := len(logB)
	b := make([][states]float64, t)
	offset := make([]float64, t)
	for i, lb := range logB {
		offset[i] = math.Max(lb[0], lb[1])
		for k := range states {
			b[i][k] = math.Exp(lb[k] - offset[i])
		}
	}

	alpha := make([][states]float64, t)
	scale := make([]float64, t)
	ll := 0.0
	for i := range t {
		for k := range states {
			if i == 0 {
				alpha[i][k] = m.initial[k] * b[i][k]
				continue
			}
			for j := range states {
				alpha[i][k] += alpha[i-1][j] * m.trans[j][k]
			}
			alpha[i][k] *= b[i][k]
		}
		scale[i] = alpha[i][0] + alpha[i][1]
		if scale[i] <= 0 {
			scale[i] = math.SmallestNonzeroFloat64
		}
		alpha[i][0] /= scale[i]
		alpha[i][1] /= scale[i]
		ll += math.Log(scale[i]) + offset[i]
	}

	beta := make([][states]float64, t)
	beta[t-1] = [states]float64{1, 1}
	for i := t - 2; i >= 0; i-- {
		for k := range states {
			for j := range states {
				beta[i][k] += m.trans[k][j] * b[i+1][j] * beta[i+1][j]
			}
			beta[i][k] /= scale[i+1]
		}
	}

	gamma := make([][states]float64, t)
	var xi [states][states]float64
	for i := range t {
		norm := 0.0
		for k := range states {
			gamma[i][k] = alpha[i][k] * beta[i][k]
			norm += gamma[i][k]
		}
		for k := range states {
			gamma[i][k] /= norm
		}
		if i == t-1 {
			continue
		}
		var step [states][states]float64
		total := 0.0
		for a := range states {
			for c := range states {
				step[a][c] = alpha[i][a] * m.trans[a][c] * b[i+1][c] * beta[i+1][c]
				total += step[a][c]
			}
		}
		for a := range states {
			for c := range states {
				xi[a][c] += step[a][c] / total
			}
		}
	}
	return gamma, xi, ll
}

// maximize re-estimates all parameters from the expectations.
func (m *Model) maximize(rows [][]float64, gamma [][states]float64, xi [states][states]float64, reg float64) error {
	m.initial = gamma[0]
	for a := range states {
		out := xi[a][0] + xi[a][1]
		if out <= 0 {
			return fmt.Errorf("%w: state %d has no transitions", schema.ErrFitFailed, a)
		}
		for c := range states {
			m.trans[a][c] = xi[a][c] / out
		}
	}
	return m.estimateEmissions(rows, gamma, reg)
}

// stateIndex maps a regime state onto the model's internal index.
func (m *Model) stateIndex(s schema.RegimeState) int {
	if s == schema.FragileState {
		return m.fragile
	}
	return 1 - m.fragile
}

func (m *Model) stateOf(k int) schema.RegimeState {
	if k == m.fragile {
		return schema.FragileState
	}
	return schema.NormalState
}

// Mean returns the emission mean of a state over Pillars.
func (m *Model) Mean(s schema.RegimeState) []float64 {
	mu := m.means[m.stateIndex(s)]
	out := make([]float64, len(mu))
	copy(out, mu)
	return out
}

// Transition returns the transition matrix indexed [normal, fragile].
func (m *Model) Transition() [2][2]float64 {
	idx := [2]int{m.stateIndex(schema.NormalState), m.stateIndex(schema.FragileState)}
	var out [2][2]float64
	for a := range 2 {
		for c := range 2 {
			out[a][c] = m.trans[idx[a]][idx[c]]
		}
	}
	return out
}

// pointEmissions computes log densities for arbitrary points. Points missing
// a model pillar carry no evidence and get a flat emission.
func (m *Model) pointEmissions(points []Point) [][states]float64 {
	out := make([][states]float64, len(points))
	for i, p := range points {
		v, ok := vector(p, m.Pillars)
		if !ok {
			continue
		}
		for k := range states {
			out[i][k] = m.dists[k].LogProb(v)
		}
	}
	return out
}

// Posterior returns the smoothed fragile-state probability of every point.
func (m *Model) Posterior(points []Point) []float64 {
	if len(points) == 0 {
		return nil
	}
	gamma, _, _ := m.forwardBackward(m.pointEmissions(points))
	out := make([]float64, len(points))
	for i := range gamma {
		out[i] = gamma[i][m.fragile]
	}
	return out
}

func meanOf(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	total := 0.0
	for _, x := range v {
		total += x
	}
	return total / float64(len(v))
}
