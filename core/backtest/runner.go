package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/core/optimize"
	"github.com/huangsam/macindex/core/regime"
	"github.com/huangsam/macindex/core/uncertainty"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Runner executes a walk-forward backtest over one family.
type Runner struct {
	cfg       Config
	profile   schema.FamilyProfile
	defs      []schema.IndicatorDefinition
	source    contract.ObservationSource
	scenarios []schema.Scenario

	base      schema.Snapshot
	cache     contract.CacheStore
	rec       contract.Recorder
	log       zerolog.Logger
	bootOpts  uncertainty.Options
	optimizer *optimize.Optimizer
	detector  *regime.Detector
}

// NewRunner validates the configuration and wires the runner's stages.
func NewRunner(cfg Config, defs []schema.IndicatorDefinition, source contract.ObservationSource, scenarios []schema.Scenario, opts ...Option) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	profile, _ := schema.GetProfile(cfg.Family)
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}

	bootOpts := uncertainty.DefaultOptions()
	bootOpts.Replicates = cfg.BootstrapReplicates
	bootOpts.Workers = 1

	r := &Runner{
		cfg:       cfg,
		profile:   profile,
		defs:      defs,
		source:    source,
		scenarios: scenarios,
		base:      schema.DefaultSnapshot(cfg.Family),
		rec:       contract.NopRecorder{},
		log:       zerolog.Nop(),
		bootOpts:  bootOpts,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.base.Eras = cfg.Eras
	r.base.PositioningHeuristic = cfg.PositioningHeuristic
	if _, err := algo.NewEngine(r.base); err != nil {
		return nil, fmt.Errorf("base snapshot: %w", err)
	}

	optCfg := cfg.Optimizer
	optCfg.Family = cfg.Family
	optCfg.Workers = cfg.Workers
	optimizer, err := optimize.New(optCfg, r.log)
	if err != nil {
		return nil, err
	}
	r.optimizer = optimizer
	r.detector = regime.NewDetector(cfg.Regime, r.log)
	return r, nil
}

// interval is the stretch of dates scored under one frozen snapshot.
type interval struct {
	start, end int
	state      *refitState
}

// Run walks the date range. Pillar scores for each date see only
// observations dated on or before it. At every refit boundary the weights,
// calibration, penalties and regime model are re-estimated from information
// available as of the boundary; dates inside an interval are then scored
// concurrently against that frozen state.
func (r *Runner) Run(ctx context.Context) (schema.BacktestReport, error) {
	dates := Schedule(r.cfg.Start, r.cfg.End, r.cfg.StepDays)
	report := schema.BacktestReport{
		RunID:             uuid.NewString(),
		Family:            r.cfg.Family,
		Start:             r.cfg.Start,
		End:               r.cfg.End,
		StepDays:          r.cfg.StepDays,
		RefitEvery:        r.cfg.RefitEvery,
		LeadTimeDays:      r.cfg.LeadTimeDays,
		DecisionThreshold: r.cfg.DecisionThreshold,
	}
	r.log.Info().Str("run_id", report.RunID).Int("dates", len(dates)).Msg("Starting backtest")

	// --- 1. As-of pillar scores ---
	pillars, err := r.scoreDates(ctx, dates)
	if err != nil {
		return report, err
	}

	// --- 2. Walk refit intervals ---
	state := &refitState{snap: r.base}
	report.Series = make([]schema.BacktestPoint, len(dates))
	for start := 0; start < len(dates); start += r.cfg.RefitEvery {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		end := min(start+r.cfg.RefitEvery, len(dates))
		began := time.Now()

		state = r.refit(ctx, dates[start], pillars[:start], dates[:start], state)
		report.Refits = append(report.Refits, state.record)

		iv := interval{start: start, end: end, state: state}
		if err := r.scoreInterval(ctx, iv, dates, pillars, report.Series); err != nil {
			return report, err
		}
		r.applyRegime(iv, dates, pillars, report.Series)
		r.rec.ObserveStep(r.cfg.Family, time.Since(began))
	}

	// --- 3. Evaluate ---
	for i := range report.Series {
		r.labelCrisis(&report.Series[i])
		if report.Series[i].Indeterminate {
			report.Indeterminate++
		}
		r.rec.CompositeComputed(r.cfg.Family, report.Series[i].Indeterminate)
	}
	report.Sweep = r.sweep(report.Series)
	report.Eras = r.eraDetection(report.Series)
	report.FalsePositives = r.falsePositives(report.Series)
	report.Stability = stability(r.profile, report.Refits)

	r.log.Info().
		Str("run_id", report.RunID).
		Int("refits", report.Stability.Refits).
		Int("failed_refits", report.Stability.FailedRefits).
		Int("indeterminate", report.Indeterminate).
		Msg("Backtest complete")
	return report, nil
}

// scoreDates assembles as-of observations and pillar scores for every date.
func (r *Runner) scoreDates(ctx context.Context, dates []time.Time) ([][]schema.PillarScore, error) {
	out := make([][]schema.PillarScore, len(dates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i, t := range dates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obs := AssembleAsOf(r.source, r.defs, t, r.cfg.MaxStaleness)
			ps, err := algo.ScorePillars(t, r.defs, obs)
			if err != nil {
				return fmt.Errorf("scoring %s: %w", t.Format(time.DateOnly), err)
			}
			out[i] = ps
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// scoreInterval computes composites for one interval concurrently.
func (r *Runner) scoreInterval(ctx context.Context, iv interval, dates []time.Time, pillars [][]schema.PillarScore, series []schema.BacktestPoint) error {
	engine, err := algo.NewEngine(iv.state.snap)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for i := iv.start; i < iv.end; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			report := engine.Compute(dates[i], pillars[i])
			if !iv.state.record.Succeeded {
				report.AddFlag(schema.FlagRefitRetained)
			}
			if iv.state.snap.Calibration.Samples > 0 {
				if _, ok := iv.state.snap.Calibration.ByEra[report.Era]; !ok {
					report.AddFlag(schema.FlagCalibrationPooledOnly)
				}
			}
			r.attachUncertainty(ctx, iv.state, &report, pillars[i])
			series[i] = schema.BacktestPoint{CompositeReport: report}
			return nil
		})
	}
	return g.Wait()
}

// attachUncertainty adds the configured interval families to a point.
func (r *Runner) attachUncertainty(ctx context.Context, state *refitState, report *schema.CompositeReport, pillars []schema.PillarScore) {
	if report.Indeterminate || (!r.cfg.Bootstrap && !r.cfg.Conformal) {
		return
	}
	var (
		boot *schema.BootstrapResult
		conf *schema.ConformalResult
	)
	if r.cfg.Bootstrap {
		opts := r.bootOpts
		opts.Seed = r.cfg.Seed
		if b, err := uncertainty.Bootstrap(ctx, state.snap, *report, pillars, opts); err == nil {
			boot = b
		}
	}
	if r.cfg.Conformal {
		if c, err := uncertainty.ConformalBands(report.Score, state.residuals, nil); err == nil {
			conf = c
		}
	}
	uncertainty.Annotate(report, boot, conf)
}

// applyRegime attaches a fragility reading to each point in order. The
// forward filter is warmed on the dates before the interval so that a
// reading never depends on later dates.
func (r *Runner) applyRegime(iv interval, dates []time.Time, pillars [][]schema.PillarScore, series []schema.BacktestPoint) {
	heuristic := iv.state.snap.PositioningHeuristic
	if iv.state.model == nil {
		clf := r.detector.Classifier()
		for i := iv.start; i < iv.end; i++ {
			algo.ApplyRegime(&series[i].CompositeReport, clf.Classify(series[i].Scores()), heuristic)
		}
		return
	}

	filter := iv.state.model.NewFilter()
	for i := 0; i < iv.start; i++ {
		filter.Step(regimePoint(dates[i], pillars[i]))
	}
	for i := iv.start; i < iv.end; i++ {
		filter.Step(regimePoint(dates[i], pillars[i]))
		algo.ApplyRegime(&series[i].CompositeReport, filter.Reading(), heuristic)
	}
}

// Schedule lists the dates from start through end, inclusive, every stepDays
// days. A step below one is treated as daily.
func Schedule(start, end time.Time, stepDays int) []time.Time {
	stepDays = max(stepDays, 1)
	var out []time.Time
	for t := start; !t.After(end); t = t.AddDate(0, 0, stepDays) {
		out = append(out, t)
	}
	return out
}

// AssembleAsOf collects, per indicator, the latest observation dated on or
// before t and within maxAge. Anything else counts as no data.
func AssembleAsOf(source contract.ObservationSource, defs []schema.IndicatorDefinition, t time.Time, maxAge time.Duration) map[string]schema.Observation {
	out := make(map[string]schema.Observation, len(defs))
	for _, d := range defs {
		if o, ok := source.AsOf(d.ID, t, maxAge); ok && !o.Date.After(t) {
			out[d.ID] = o
		}
	}
	return out
}

func regimePoint(date time.Time, pillars []schema.PillarScore) regime.Point {
	scores := make(map[schema.PillarID]float64, len(pillars))
	for _, p := range pillars {
		scores[p.Pillar] = p.Score
	}
	return regime.Point{Date: date, Scores: scores}
}
