package core

import (
	"context"
	"fmt"
	"time"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/core/backtest"
	"github.com/huangsam/macindex/core/calibrate"
	"github.com/huangsam/macindex/core/regime"
	"github.com/huangsam/macindex/core/uncertainty"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
)

// ScoreReportBuilder builds a live composite report using a builder pattern.
// The scenario catalog never reaches the score itself: it only feeds the
// residuals behind the conformal band.
type ScoreReportBuilder struct {
	ctx       context.Context
	cfg       *contract.Config
	rec       contract.Recorder
	in        *feedInputs
	scenarios []schema.Scenario
	snap      schema.Snapshot
	asOf      time.Time
	pillars   []schema.PillarScore
	report    *schema.CompositeReport
}

// NewScoreReportBuilder creates a new builder for a composite report.
func NewScoreReportBuilder(ctx context.Context, cfg *contract.Config) *ScoreReportBuilder {
	return &ScoreReportBuilder{
		ctx:  ctx,
		cfg:  cfg,
		rec:  recorderFrom(ctx),
		snap: cfg.Snapshot(),
	}
}

// WithInputs sets preloaded feed inputs, skipping LoadInputs.
func (b *ScoreReportBuilder) WithInputs(defs []schema.IndicatorDefinition, source contract.ObservationSource) *ScoreReportBuilder {
	b.in = &feedInputs{defs: defs, source: source}
	return b
}

// LoadInputs reads definitions, observations and, for conformal bands, the catalog.
func (b *ScoreReportBuilder) LoadInputs() (*ScoreReportBuilder, error) {
	if b.in == nil {
		in, err := loadFeed(b.cfg)
		if err != nil {
			return nil, err
		}
		b.in = in
	}
	if b.cfg.Conformal && b.scenarios == nil {
		scenarios, err := loadScenarios(b.cfg)
		if err != nil {
			return nil, err
		}
		b.scenarios = scenarios
	}
	b.asOf = scoringDate(b.cfg, b.in.source)
	return b, nil
}

// ScorePillars assembles as-of observations and aggregates them into pillars.
func (b *ScoreReportBuilder) ScorePillars() (*ScoreReportBuilder, error) {
	obs := backtest.AssembleAsOf(b.in.source, b.in.defs, b.asOf, b.cfg.MaxStaleness)
	pillars, err := algo.ScorePillars(b.asOf, b.in.defs, obs)
	if err != nil {
		return nil, fmt.Errorf("scoring pillars as of %s: %w", b.asOf.Format(time.DateOnly), err)
	}
	b.pillars = pillars
	return b, nil
}

// Compute runs the composite engine against the configured snapshot.
func (b *ScoreReportBuilder) Compute() (*ScoreReportBuilder, error) {
	engine, err := algo.NewEngine(b.snap)
	if err != nil {
		return nil, err
	}
	report := engine.Compute(b.asOf, b.pillars)
	b.rec.CompositeComputed(b.cfg.Family, report.Indeterminate)
	b.report = &report
	return b, nil
}

// AttachUncertainty adds the bootstrap interval and the conformal band when enabled.
func (b *ScoreReportBuilder) AttachUncertainty() *ScoreReportBuilder {
	if b.report.Indeterminate || (!b.cfg.Bootstrap && !b.cfg.Conformal) {
		return b
	}
	var (
		boot *schema.BootstrapResult
		conf *schema.ConformalResult
	)
	if b.cfg.Bootstrap {
		opts := uncertainty.DefaultOptions()
		opts.Replicates = b.cfg.Replicates
		opts.Seed = b.cfg.Seed
		opts.Workers = max(b.cfg.Workers, 1)
		result, err := uncertainty.Bootstrap(b.ctx, b.snap, *b.report, b.pillars, opts)
		if err != nil {
			contract.LogWarn("Bootstrap unavailable", err)
		}
		boot = result
	}
	if b.cfg.Conformal {
		resolved := resolvedBy(b.scenarios, b.asOf)
		samples, _ := calibrate.SamplesFromScenarios(resolved, b.snap.Weights.Pillars, b.snap.Penalties)
		residuals := calibrate.Residuals(samples, b.snap.Calibration, b.snap.Eras)
		result, err := uncertainty.ConformalBands(b.report.Score, residuals, nil)
		if err != nil {
			contract.LogWarn("Conformal band unavailable", err)
		}
		conf = result
	}
	uncertainty.Annotate(b.report, boot, conf)
	return b
}

// AttachRegime reads fragility from pillar history up to the scoring date.
// The model is filtered forward so the reading never depends on later dates.
func (b *ScoreReportBuilder) AttachRegime() (*ScoreReportBuilder, error) {
	first, _ := b.in.source.Span()
	dates := backtest.Schedule(first, b.asOf, b.cfg.StepDays)
	if len(dates) == 0 || !dates[len(dates)-1].Equal(b.asOf) {
		dates = append(dates, b.asOf)
	}
	history, err := pillarHistory(b.ctx, b.cfg, b.in, dates)
	if err != nil {
		return nil, err
	}
	points := regimePoints(dates, history)

	log := contract.Logger()
	detector := regime.NewDetector(regime.DefaultConfig(), log)
	reading := detector.Classifier().Classify(b.report.Scores())
	if model, err := detector.Fit(points); err == nil {
		filter := model.NewFilter()
		for _, p := range points {
			filter.Step(p)
		}
		reading = filter.Reading()
	} else {
		log.Debug().Err(err).Msg("Regime model unavailable; using threshold classifier")
		b.rec.RegimeFallback(b.cfg.Family)
	}
	algo.ApplyRegime(b.report, reading, b.snap.PositioningHeuristic)
	return b, nil
}

// GetResult returns the built report.
func (b *ScoreReportBuilder) GetResult() *schema.CompositeReport {
	return b.report
}
