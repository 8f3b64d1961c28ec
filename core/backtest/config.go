// Package backtest runs the walk-forward validation loop: expanding-window
// refits, as-of scoring, crisis labeling and detection statistics.
package backtest

import (
	"fmt"
	"runtime"
	"time"

	"github.com/huangsam/macindex/core/optimize"
	"github.com/huangsam/macindex/core/regime"
	"github.com/huangsam/macindex/core/uncertainty"
	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
)

// Config holds the walk-forward parameters.
type Config struct {
	Family                  schema.Family
	Start                   time.Time
	End                     time.Time
	StepDays                int
	RefitEvery              int
	LeadTimeDays            int
	MaxStaleness            time.Duration
	DecisionThreshold       float64
	SweepFrom               float64
	SweepTo                 float64
	SweepStep               float64
	PenaltyModel            schema.PenaltyModel
	MinCalibrationScenarios int
	Bootstrap               bool
	BootstrapReplicates     int
	Conformal               bool
	PositioningHeuristic    bool
	Workers                 int
	Seed                    uint64
	Eras                    []schema.Era
	Optimizer               optimize.Config
	Regime                  regime.Config
}

// DefaultConfig returns weekly steps with a yearly refit.
func DefaultConfig(f schema.Family, start, end time.Time) Config {
	opt := optimize.DefaultConfig(f)
	opt.Validate = false
	return Config{
		Family:                  f,
		Start:                   start,
		End:                     end,
		StepDays:                7,
		RefitEvery:              52,
		LeadTimeDays:            90,
		MaxStaleness:            31 * 24 * time.Hour,
		DecisionThreshold:       0.35,
		SweepFrom:               0.20,
		SweepTo:                 0.60,
		SweepStep:               0.05,
		PenaltyModel:            schema.StatedPenalty,
		MinCalibrationScenarios: 3,
		Conformal:               true,
		BootstrapReplicates:     200,
		Workers:                 runtime.GOMAXPROCS(0),
		Seed:                    42,
		Eras:                    schema.DefaultEras(),
		Optimizer:               opt,
		Regime:                  regime.DefaultConfig(),
	}
}

// Validate checks the configuration before a run.
func (c Config) Validate() error {
	if _, ok := schema.GetProfile(c.Family); !ok {
		return fmt.Errorf("%w: unknown family %q", schema.ErrConfig, c.Family)
	}
	if !c.End.After(c.Start) {
		return fmt.Errorf("%w: end %s must be after start %s", schema.ErrConfig, c.End.Format(time.DateOnly), c.Start.Format(time.DateOnly))
	}
	if c.StepDays <= 0 || c.RefitEvery <= 0 {
		return fmt.Errorf("%w: step days and refit interval must be positive", schema.ErrConfig)
	}
	if c.LeadTimeDays < 0 {
		return fmt.Errorf("%w: lead time must be non-negative", schema.ErrConfig)
	}
	if c.SweepStep <= 0 || c.SweepTo < c.SweepFrom {
		return fmt.Errorf("%w: invalid threshold sweep [%g, %g] step %g", schema.ErrConfig, c.SweepFrom, c.SweepTo, c.SweepStep)
	}
	if !schema.ValidPenaltyModels[c.PenaltyModel] {
		return fmt.Errorf("%w: unknown penalty model %q", schema.ErrConfig, c.PenaltyModel)
	}
	return nil
}

func (c Config) lead() time.Duration {
	return time.Duration(c.LeadTimeDays) * 24 * time.Hour
}

// Option configures a Runner.
type Option func(*Runner)

// WithFitCache stores fitted weights by content hash.
func WithFitCache(store contract.CacheStore) Option {
	return func(r *Runner) {
		r.cache = store
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(rec contract.Recorder) Option {
	return func(r *Runner) {
		if rec != nil {
			r.rec = rec
		}
	}
}

// WithLogger sets the runner's logger.
func WithLogger(log zerolog.Logger) Option {
	return func(r *Runner) {
		r.log = log.With().Str("component", "backtest").Logger()
	}
}

// WithBaseSnapshot sets the scoring context used until the first successful refit.
func WithBaseSnapshot(snap schema.Snapshot) Option {
	return func(r *Runner) {
		r.base = snap
	}
}

// WithBootstrapOptions replaces the per-date bootstrap options, including
// the replicate count taken from Config.
func WithBootstrapOptions(opts uncertainty.Options) Option {
	return func(r *Runner) {
		r.bootOpts = opts
	}
}
