package backtest

import (
	"context"
	"errors"
	"time"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/core/calibrate"
	"github.com/huangsam/macindex/core/regime"
	"github.com/huangsam/macindex/schema"
)

// refitState is everything frozen for one refit interval.
type refitState struct {
	snap      schema.Snapshot
	model     *regime.Model
	residuals []float64
	record    schema.RefitRecord
}

// refit re-estimates the scoring context as of t. Only scenarios resolved on
// or before t and pillar history strictly before t are used. A failed weight
// or calibration fit retains the previous snapshot.
func (r *Runner) refit(ctx context.Context, t time.Time, history [][]schema.PillarScore, dates []time.Time, prev *refitState) *refitState {
	next := &refitState{snap: prev.snap, model: prev.model, residuals: prev.residuals}
	rec := schema.RefitRecord{Date: t}

	resolved, rejected := r.resolvedScenarios(t)
	rec.Scenarios, rec.Rejected = len(resolved), rejected

	// --- 1. Weights, penalties and calibration ---
	candidate, residuals, err := r.fitSnapshot(ctx, t, resolved, history, dates, prev.snap)
	if err != nil {
		rec.Reason = err.Error()
		r.log.Warn().Err(err).Time("as_of", t).Msg("Refit failed; retaining previous weights and calibration")
	} else {
		next.snap = candidate
		next.residuals = residuals
		rec.Succeeded = true
	}
	r.rec.Refit(r.cfg.Family, rec.Succeeded)

	// --- 2. Regime model ---
	points := make([]regime.Point, len(history))
	for i := range history {
		points[i] = regimePoint(dates[i], history[i])
	}
	if model, err := r.detector.Fit(points); err == nil {
		next.model = model
	} else if next.model == nil {
		r.rec.RegimeFallback(r.cfg.Family)
	}
	rec.Regime = schema.ThresholdMethod
	if next.model != nil {
		rec.Regime = schema.HMMMethod
	}

	rec.Weights = next.snap.Weights.Clone()
	rec.Calibration = next.snap.Calibration.Clone()
	rec.Penalties = next.snap.Penalties
	next.record = rec
	return next
}

// fitSnapshot builds a candidate snapshot from scratch as of t.
func (r *Runner) fitSnapshot(ctx context.Context, t time.Time, resolved []schema.Scenario, history [][]schema.PillarScore, dates []time.Time, prev schema.Snapshot) (schema.Snapshot, []float64, error) {
	fit, err := r.fitWeights(ctx, resolved, t)
	if err != nil {
		return prev, nil, err
	}
	if fit.Weights.EstimatorFallback {
		r.rec.EstimatorFallback(r.cfg.Family)
	}

	penalties := prev.Penalties
	if r.cfg.PenaltyModel != schema.StatedPenalty {
		rows := make([]calibrate.Row, len(history))
		for i := range history {
			rows[i] = calibrate.Row{Date: dates[i], Scores: regimePoint(dates[i], history[i]).Scores}
		}
		opts := calibrate.DefaultPenaltyOptions(r.cfg.PenaltyModel)
		opts.Cap, opts.StressThreshold = prev.Penalties.Cap, prev.Penalties.StressThreshold
		opts.Eras = r.cfg.Eras
		if d, err := calibrate.DerivePenaltyTable(rows, r.profile.Pillars, opts); err == nil {
			penalties = d.Table
		} else if !errors.Is(err, schema.ErrInsufficientData) {
			return prev, nil, err
		}
	}

	samples, _ := calibrate.SamplesFromScenarios(resolved, fit.Weights.Pillars, penalties)
	calOpts := calibrate.DefaultOptions()
	calOpts.Min, calOpts.Max = prev.Calibration.Min, prev.Calibration.Max
	calOpts.MinPerEra = r.cfg.MinCalibrationScenarios
	cal, err := calibrate.FitCalibration(samples, t, r.cfg.Eras, calOpts)
	if err != nil {
		return prev, nil, err
	}

	candidate := prev
	candidate.Weights = fit.Weights
	candidate.Penalties = penalties
	candidate.Calibration = cal
	if _, err := algo.NewEngine(candidate); err != nil {
		return prev, nil, err
	}
	return candidate, calibrate.Residuals(samples, cal, r.cfg.Eras), nil
}

// resolvedScenarios splits the catalog at t and returns the usable part with
// the number of scenarios rejected as not yet resolved.
func (r *Runner) resolvedScenarios(t time.Time) ([]schema.Scenario, int) {
	out := make([]schema.Scenario, 0, len(r.scenarios))
	rejected := 0
	for _, s := range r.scenarios {
		if s.Resolution().After(t) {
			rejected++
			continue
		}
		out = append(out, s)
	}
	return out, rejected
}
