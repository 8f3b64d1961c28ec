// Package core has the entry points that wire feeds, fits and the composite
// pipeline together for the CLI and the MCP server.
package core

import (
	"cmp"
	"context"
	"fmt"
	"time"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/core/backtest"
	"github.com/huangsam/macindex/core/calibrate"
	"github.com/huangsam/macindex/core/optimize"
	"github.com/huangsam/macindex/core/regime"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/feed"
	"github.com/huangsam/macindex/internal/outwriter"
	"github.com/huangsam/macindex/schema"
)

// ExecutorFunc defines the function signature for executing different commands.
type ExecutorFunc func(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error

// ExecuteScore scores the configured family as of one date and prints the report.
func ExecuteScore(ctx context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	report, duration, err := GetScoreResult(ctx, cfg)
	if err != nil {
		return err
	}
	return outwriter.PrintCompositeReport(report, cfg, duration)
}

// GetScoreResult runs the live scoring pipeline.
func GetScoreResult(ctx context.Context, cfg *contract.Config) (schema.CompositeReport, time.Duration, error) {
	start := time.Now()
	logHeader(ctx, cfg, "score")

	builder := NewScoreReportBuilder(ctx, cfg)
	if _, err := builder.LoadInputs(); err != nil {
		return schema.CompositeReport{}, 0, err
	}
	if _, err := builder.ScorePillars(); err != nil {
		return schema.CompositeReport{}, 0, err
	}
	if _, err := builder.Compute(); err != nil {
		return schema.CompositeReport{}, 0, err
	}
	builder.AttachUncertainty()
	if _, err := builder.AttachRegime(); err != nil {
		return schema.CompositeReport{}, 0, err
	}
	return *builder.GetResult(), time.Since(start), nil
}

// ExecuteBacktest runs the walk-forward backtest, records it in the run store
// and prints the report.
func ExecuteBacktest(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) error {
	report, duration, err := GetBacktestResult(ctx, cfg, mgr)
	if err != nil {
		return err
	}
	return outwriter.PrintBacktestReport(report, cfg, duration)
}

// GetBacktestResult runs the walk-forward backtest. Fits go through the fit
// cache and the run is recorded in the run store when the manager has them.
func GetBacktestResult(ctx context.Context, cfg *contract.Config, mgr contract.CacheManager) (schema.BacktestReport, time.Duration, error) {
	start := time.Now()
	logHeader(ctx, cfg, "backtest")

	in, err := loadFeed(cfg)
	if err != nil {
		return schema.BacktestReport{}, 0, err
	}
	scenarios, err := loadScenarios(cfg)
	if err != nil {
		return schema.BacktestReport{}, 0, err
	}
	from, to, err := dateRange(cfg, in.source)
	if err != nil {
		return schema.BacktestReport{}, 0, err
	}

	opts := []backtest.Option{
		backtest.WithLogger(contract.Logger()),
		backtest.WithBaseSnapshot(cfg.Snapshot()),
		backtest.WithRecorder(recorderFrom(ctx)),
	}
	if mgr != nil {
		if store := mgr.GetFitStore(); store != nil {
			opts = append(opts, backtest.WithFitCache(store))
		}
	}
	runner, err := backtest.NewRunner(backtestConfig(cfg, from, to), in.defs, in.source, scenarios, opts...)
	if err != nil {
		return schema.BacktestReport{}, 0, err
	}
	report, err := runner.Run(ctx)
	if err != nil {
		return schema.BacktestReport{}, 0, err
	}

	recordRun(cfg, mgr, report, start, time.Now())
	return report, time.Since(start), nil
}

// backtestConfig maps the validated CLI configuration onto the runner's.
func backtestConfig(cfg *contract.Config, from, to time.Time) backtest.Config {
	bc := backtest.DefaultConfig(cfg.Family, from, to)
	bc.StepDays = cmp.Or(cfg.StepDays, bc.StepDays)
	bc.RefitEvery = cmp.Or(cfg.RefitEvery, bc.RefitEvery)
	bc.LeadTimeDays = cfg.LeadTimeDays
	bc.MaxStaleness = cmp.Or(cfg.MaxStaleness, bc.MaxStaleness)
	bc.DecisionThreshold = cmp.Or(cfg.DecisionThreshold, bc.DecisionThreshold)
	bc.PenaltyModel = cmp.Or(cfg.PenaltyModel, bc.PenaltyModel)
	bc.Bootstrap = cfg.Bootstrap
	bc.Conformal = cfg.Conformal
	bc.PositioningHeuristic = cfg.PositioningHeuristic
	bc.Workers = cmp.Or(cfg.Workers, bc.Workers)
	bc.Seed = cfg.Seed
	bc.Optimizer.Estimator = cmp.Or(cfg.Estimator, bc.Optimizer.Estimator)
	bc.Optimizer.Seed = cfg.Seed
	if cfg.Replicates > 0 {
		bc.BootstrapReplicates = cfg.Replicates
	}
	return bc
}

// recordRun stores a finished backtest. Failures are logged, never returned.
func recordRun(cfg *contract.Config, mgr contract.CacheManager, report schema.BacktestReport, began, finished time.Time) {
	if mgr == nil {
		return
	}
	store := mgr.GetRunStore()
	if store == nil {
		return
	}

	runID, err := store.BeginRun(report.RunID, began, cfg.Family, runParams(cfg, report))
	if err != nil {
		logTrackingError("BeginRun", report.RunID, err)
		return
	}
	for _, p := range report.Series {
		if err := store.RecordComposite(runID, schema.CompositeRecordFrom(runID, p)); err != nil {
			logTrackingError("RecordComposite", report.RunID, err)
		}
	}
	if err := store.EndRun(runID, finished, len(report.Series)); err != nil {
		logTrackingError("EndRun", report.RunID, err)
	}
}

// runParams captures the settings a stored run was produced with.
func runParams(cfg *contract.Config, report schema.BacktestReport) map[string]any {
	params := map[string]any{
		"start":              report.Start.Format(time.DateOnly),
		"end":                report.End.Format(time.DateOnly),
		"step_days":          report.StepDays,
		"refit_every":        report.RefitEvery,
		"lead_time_days":     report.LeadTimeDays,
		"decision_threshold": report.DecisionThreshold,
		"penalty_model":      string(cfg.PenaltyModel),
		"estimator":          string(cfg.Estimator),
		"seed":               cfg.Seed,
		"bootstrap":          cfg.Bootstrap,
		"conformal":          cfg.Conformal,
		"positioning":        cfg.PositioningHeuristic,
	}
	if cfg.CustomWeights {
		params["weights"] = cfg.Weights
	}
	return params
}

// ExecuteWeights fits weights on the scenario catalog and prints the fit.
func ExecuteWeights(ctx context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	fit, duration, err := GetWeightsResult(ctx, cfg)
	if err != nil {
		return err
	}
	return outwriter.PrintFitReport(fit, cfg, duration)
}

// GetWeightsResult fits weights on scenarios resolved by the as-of date.
// A zero as-of date uses the whole catalog.
func GetWeightsResult(ctx context.Context, cfg *contract.Config) (schema.FitReport, time.Duration, error) {
	start := time.Now()
	logHeader(ctx, cfg, "weights")

	scenarios, err := loadScenarios(cfg)
	if err != nil {
		return schema.FitReport{}, 0, err
	}
	optCfg := optimize.DefaultConfig(cfg.Family)
	optCfg.Estimator = cmp.Or(cfg.Estimator, optCfg.Estimator)
	optCfg.Seed = cfg.Seed
	optCfg.Workers = cmp.Or(cfg.Workers, optCfg.Workers)
	optCfg.Validate = cfg.Validate

	opt, err := optimize.New(optCfg, contract.Logger())
	if err != nil {
		return schema.FitReport{}, 0, err
	}
	fit, err := opt.Fit(ctx, scenarios, cfg.AsOf)
	if err != nil {
		return fit, 0, err
	}
	if fit.Weights.EstimatorFallback {
		recorderFrom(ctx).EstimatorFallback(cfg.Family)
	}
	return fit, time.Since(start), nil
}

// ExecuteRegime fits the regime detector on pillar history and prints the series.
func ExecuteRegime(ctx context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	series, duration, err := GetRegimeResult(ctx, cfg)
	if err != nil {
		return err
	}
	return outwriter.PrintRegimeSeries(series, cfg, duration)
}

// GetRegimeResult scores pillar history on the configured step and labels it.
func GetRegimeResult(ctx context.Context, cfg *contract.Config) (schema.RegimeSeries, time.Duration, error) {
	start := time.Now()
	logHeader(ctx, cfg, "regime")

	in, err := loadFeed(cfg)
	if err != nil {
		return schema.RegimeSeries{}, 0, err
	}
	from, to, err := dateRange(cfg, in.source)
	if err != nil {
		return schema.RegimeSeries{}, 0, err
	}
	dates := backtest.Schedule(from, to, cfg.StepDays)
	history, err := pillarHistory(ctx, cfg, in, dates)
	if err != nil {
		return schema.RegimeSeries{}, 0, err
	}

	series := regime.NewDetector(regime.DefaultConfig(), contract.Logger()).Detect(regimePoints(dates, history))
	if series.Method == schema.ThresholdMethod {
		recorderFrom(ctx).RegimeFallback(cfg.Family)
	}
	return series, time.Since(start), nil
}

// ExecutePenalties derives a breach penalty table from pillar history and prints it.
func ExecutePenalties(ctx context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	derivation, duration, err := GetPenaltiesResult(ctx, cfg)
	if err != nil {
		return err
	}
	return outwriter.PrintPenaltyDerivation(derivation, cfg, duration)
}

// GetPenaltiesResult derives π(n) from the joint breach behavior of pillar
// history. The stated model has nothing to derive, so it runs as independence.
func GetPenaltiesResult(ctx context.Context, cfg *contract.Config) (schema.PenaltyDerivation, time.Duration, error) {
	start := time.Now()
	logHeader(ctx, cfg, "penalties")

	in, err := loadFeed(cfg)
	if err != nil {
		return schema.PenaltyDerivation{}, 0, err
	}
	from, to, err := dateRange(cfg, in.source)
	if err != nil {
		return schema.PenaltyDerivation{}, 0, err
	}
	dates := backtest.Schedule(from, to, cfg.StepDays)
	history, err := pillarHistory(ctx, cfg, in, dates)
	if err != nil {
		return schema.PenaltyDerivation{}, 0, err
	}

	model := cfg.PenaltyModel
	if model == "" || model == schema.StatedPenalty {
		model = schema.IndependencePenalty
	}
	opts := calibrate.DefaultPenaltyOptions(model)
	opts.Cap = cmp.Or(cfg.Penalties.Cap, opts.Cap)
	opts.StressThreshold = cmp.Or(cfg.Penalties.StressThreshold, opts.StressThreshold)

	profile, _ := schema.GetProfile(cfg.Family)
	derivation, err := calibrate.DerivePenaltyTable(penaltyRows(dates, history), profile.Pillars, opts)
	if err != nil {
		return derivation, 0, err
	}
	return derivation, time.Since(start), nil
}

// ExecuteMetrics displays the formal definitions of both indicator families.
// This is a static display that does not read observations.
func ExecuteMetrics(_ context.Context, cfg *contract.Config, _ contract.CacheManager) error {
	model, err := GetMetricsResult(cfg)
	if err != nil {
		return err
	}
	return outwriter.PrintMetricsDefinitions(model, cfg)
}

// GetMetricsResult builds the metrics render model. The configured family
// shows the active weights and indicator file; the others show defaults.
func GetMetricsResult(cfg *contract.Config) (*schema.MetricsRenderModel, error) {
	model := &schema.MetricsRenderModel{
		Title:       "MAC Composite Definitions",
		Description: "Pillar scores in [0,1] are combined into one composite: higher means more capacity to absorb shocks.",
		Penalties:   cfg.Snapshot().Penalties,
		Bands:       schema.RegimeBands(),
		Eras:        schema.DefaultEras(),
		TierNoise:   schema.TierNoiseTable(),
	}
	for _, f := range []schema.Family{schema.MACFamily, schema.GRRIFamily} {
		profile, _ := schema.GetProfile(f)
		def := schema.FamilyDefinition{
			Profile:    profile,
			Weights:    schema.GetDefaultWeights(f),
			Indicators: schema.GetDefaultIndicators(f),
			Formula:    formulaFor(f),
		}
		if f == cfg.Family {
			if cfg.Weights != nil {
				def.Weights = cfg.Weights
			}
			if cfg.IndicatorsPath != "" {
				defs, err := feed.LoadIndicators(cfg.IndicatorsPath, f)
				if err != nil {
					return nil, err
				}
				def.Indicators = defs
			}
		}
		model.Families = append(model.Families, def)
	}
	return model, nil
}

func formulaFor(f schema.Family) string {
	cal := schema.DefaultCalibration(f)
	return fmt.Sprintf("score = clip(α × max(Σ wᵢ·pᵢ − π(n), 0), 0, 1), α = %.2f in [%.2f, %.2f]", cal.Default, cal.Min, cal.Max)
}

// ScoreSnapshot computes a composite from pillar scores given directly,
// without observations. It backs the MCP score_snapshot tool.
func ScoreSnapshot(ctx context.Context, cfg *contract.Config, date time.Time, scores map[schema.PillarID]float64) (schema.CompositeReport, error) {
	engine, err := algo.NewEngine(cfg.Snapshot())
	if err != nil {
		return schema.CompositeReport{}, err
	}
	profile := engine.Profile()
	pillars := make([]schema.PillarScore, 0, len(scores))
	for _, p := range schema.SortedPillars(scores) {
		if !profile.HasPillar(p) {
			return schema.CompositeReport{}, fmt.Errorf("%w: pillar %q is not part of family %s", schema.ErrConfig, p, cfg.Family)
		}
		s := scores[p]
		if !(s >= 0 && s <= 1) {
			return schema.CompositeReport{}, fmt.Errorf("%w: pillar %s score %g is outside [0,1]", schema.ErrConfig, p, s)
		}
		pillars = append(pillars, schema.PillarScore{Pillar: p, Date: date, Score: s, DataQuality: schema.NativeTier})
	}
	report := engine.Compute(date, pillars)
	recorderFrom(ctx).CompositeComputed(cfg.Family, report.Indeterminate)
	if !report.Indeterminate {
		reading := regime.ThresholdClassifier{Cutoff: schema.DefaultFragilityCutoff}.Classify(scores)
		algo.ApplyRegime(&report, reading, cfg.PositioningHeuristic)
	}
	return report, nil
}
