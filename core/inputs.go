package core

import (
	"context"
	"fmt"
	"time"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/core/backtest"
	"github.com/huangsam/macindex/core/calibrate"
	"github.com/huangsam/macindex/core/regime"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/internal/feed"
	"github.com/huangsam/macindex/schema"
	"golang.org/x/sync/errgroup"
)

// feedInputs is the observation side of a run.
type feedInputs struct {
	defs   []schema.IndicatorDefinition
	source contract.ObservationSource
}

// loadFeed reads indicator definitions and observations for the configured family.
func loadFeed(cfg *contract.Config) (*feedInputs, error) {
	if cfg.ObservationsPath == "" {
		return nil, fmt.Errorf("%w: --observations is required", schema.ErrConfig)
	}
	defs, err := feed.LoadIndicators(cfg.IndicatorsPath, cfg.Family)
	if err != nil {
		return nil, err
	}
	store, err := feed.LoadObservations(cfg.ObservationsPath)
	if err != nil {
		return nil, err
	}
	if store.Len() == 0 {
		return nil, fmt.Errorf("%w: no observations in %s", schema.ErrInsufficientData, cfg.ObservationsPath)
	}
	return &feedInputs{defs: defs, source: store}, nil
}

// loadScenarios reads the scenario catalog for the configured family.
func loadScenarios(cfg *contract.Config) ([]schema.Scenario, error) {
	return feed.LoadScenarios(cfg.ScenariosPath, cfg.Family)
}

// dateRange resolves the configured range, where zero bounds mean the
// observation span.
func dateRange(cfg *contract.Config, source contract.ObservationSource) (time.Time, time.Time, error) {
	first, last := source.Span()
	start, end := cfg.StartTime, cfg.EndTime
	if start.IsZero() {
		start = first
	}
	if end.IsZero() {
		end = last
	}
	if !end.After(start) {
		return start, end, fmt.Errorf("%w: empty date range %s to %s", schema.ErrInsufficientData, start.Format(time.DateOnly), end.Format(time.DateOnly))
	}
	return start, end, nil
}

// scoringDate resolves the configured as-of date, where zero means the last observation.
func scoringDate(cfg *contract.Config, source contract.ObservationSource) time.Time {
	if !cfg.AsOf.IsZero() {
		return cfg.AsOf
	}
	_, last := source.Span()
	return last
}

// pillarHistory scores every date from as-of observations.
func pillarHistory(ctx context.Context, cfg *contract.Config, in *feedInputs, dates []time.Time) ([][]schema.PillarScore, error) {
	out := make([][]schema.PillarScore, len(dates))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(cfg.Workers, 1))
	for i, t := range dates {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			obs := backtest.AssembleAsOf(in.source, in.defs, t, cfg.MaxStaleness)
			ps, err := algo.ScorePillars(t, in.defs, obs)
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

// scoreMap flattens pillar scores into a map.
func scoreMap(pillars []schema.PillarScore) map[schema.PillarID]float64 {
	out := make(map[schema.PillarID]float64, len(pillars))
	for _, p := range pillars {
		out[p.Pillar] = p.Score
	}
	return out
}

func regimePoints(dates []time.Time, history [][]schema.PillarScore) []regime.Point {
	points := make([]regime.Point, len(history))
	for i := range history {
		points[i] = regime.Point{Date: dates[i], Scores: scoreMap(history[i])}
	}
	return points
}

func penaltyRows(dates []time.Time, history [][]schema.PillarScore) []calibrate.Row {
	rows := make([]calibrate.Row, len(history))
	for i := range history {
		rows[i] = calibrate.Row{Date: dates[i], Scores: scoreMap(history[i])}
	}
	return rows
}

// resolvedBy returns the scenarios whose labels were known on t.
func resolvedBy(scenarios []schema.Scenario, t time.Time) []schema.Scenario {
	out := make([]schema.Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		if !s.Resolution().After(t) {
			out = append(out, s)
		}
	}
	return out
}

// logHeader announces a run unless the context suppresses headers.
func logHeader(ctx context.Context, cfg *contract.Config, command string) {
	if shouldSuppressHeader(ctx) {
		return
	}
	log := contract.Logger()
	log.Info().
		Str("command", command).
		Str("family", string(cfg.Family)).
		Str("observations", cfg.ObservationsPath).
		Msg("Starting")
}

// logTrackingError logs run store errors without disrupting the run.
func logTrackingError(operation, runID string, err error) {
	contract.LogWarn(fmt.Sprintf("Run tracking failed for %s on %s", operation, runID), err)
}
