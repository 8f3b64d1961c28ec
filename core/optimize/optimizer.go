package optimize

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"
)

// DefaultStabilityThreshold is the mean absolute deviation from equal weights
// below which a fit is discarded as carrying no signal.
const DefaultStabilityThreshold = 0.02

// minValidationScenarios is the smallest catalog leave-one-out runs on.
const minValidationScenarios = 3

// Config configures the weight optimizer.
type Config struct {
	Family             schema.Family
	Estimator          schema.EstimatorKind
	Augment            AugmentOptions
	Seed               uint64
	StabilityThreshold float64
	Workers            int
	Validate           bool
}

// DefaultConfig returns the optimizer defaults for a family.
func DefaultConfig(f schema.Family) Config {
	return Config{
		Family:             f,
		Estimator:          schema.GBMEstimator,
		Augment:            DefaultAugmentOptions(),
		Seed:               42,
		StabilityThreshold: DefaultStabilityThreshold,
		Workers:            4,
		Validate:           true,
	}
}

// Optimizer turns a scenario catalog into a weight vector.
type Optimizer struct {
	cfg     Config
	profile schema.FamilyProfile
	log     zerolog.Logger
}

// New returns an optimizer for the configured family.
func New(cfg Config, log zerolog.Logger) (*Optimizer, error) {
	profile, ok := schema.GetProfile(cfg.Family)
	if !ok {
		return nil, fmt.Errorf("%w: unknown family %q", schema.ErrConfig, cfg.Family)
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	return &Optimizer{
		cfg:     cfg,
		profile: profile,
		log:     log.With().Str("component", "optimizer").Logger(),
	}, nil
}

// Rows turns scenarios into training rows. Scenarios resolved after asOf,
// without a severity target, or missing a base pillar are skipped.
// A zero asOf accepts every resolved scenario.
func (o *Optimizer) Rows(scenarios []schema.Scenario, asOf time.Time) ([]Row, []schema.SkippedScenario) {
	var (
		rows    []Row
		skipped []schema.SkippedScenario
	)
	for _, s := range scenarios {
		if !asOf.IsZero() && s.Resolution().After(asOf) {
			skipped = append(skipped, schema.SkippedScenario{ID: s.ID, Reason: "resolved after " + asOf.Format(time.DateOnly)})
			continue
		}
		target, ok := s.Target()
		if !ok {
			skipped = append(skipped, schema.SkippedScenario{ID: s.ID, Reason: "no severity target"})
			continue
		}
		features, ok := BuildFeatures(o.profile, s.Pillars)
		if !ok {
			skipped = append(skipped, schema.SkippedScenario{ID: s.ID, Reason: "missing pillar scores"})
			continue
		}
		rows = append(rows, Row{ScenarioID: s.ID, Features: features, Target: target})
	}
	return rows, skipped
}

// Fit fits pillar weights on scenarios resolvable as of asOf.
func (o *Optimizer) Fit(ctx context.Context, scenarios []schema.Scenario, asOf time.Time) (schema.FitReport, error) {
	// --- 1. Training rows ---
	rows, skipped := o.Rows(scenarios, asOf)
	report := schema.FitReport{
		Features: FeatureNames(o.profile),
		Skipped:  skipped,
	}
	if len(rows) < 2 {
		return report, fmt.Errorf("%w: %d usable scenarios as of %s", schema.ErrInsufficientData, len(rows), asOf.Format(time.DateOnly))
	}
	for _, r := range rows {
		report.Scenarios = append(report.Scenarios, r.ScenarioID)
	}

	// --- 2. Augment and fit ---
	train := Augment(o.profile, rows, o.cfg.Augment, rand.New(rand.NewPCG(o.cfg.Seed, 0)))
	report.Rows = len(train)
	model, kind, reason, err := o.fit(train)
	if err != nil {
		return report, err
	}
	if reason != "" {
		report.FallbackReason = reason
		o.log.Warn().Str("reason", reason).Msg("Weight estimator fell back to ridge")
	}

	// --- 3. Importances to weights ---
	imps := model.Importances()
	report.Importances = make(map[string]float64, len(imps))
	for i, name := range report.Features {
		report.Importances[name] = imps[i]
	}
	report.Weights = o.weightsFrom(imps, kind, asOf)
	report.Weights.EstimatorFallback = reason != ""
	if report.Weights.EqualFallback {
		o.log.Info().Float64("deviation", report.Weights.Deviation).Msg("Fitted weights too close to equal; using equal weights")
	}

	// --- 4. Validation ---
	if o.cfg.Validate && len(rows) >= minValidationScenarios {
		v, err := o.LeaveOneOut(ctx, rows)
		if err != nil {
			return report, err
		}
		report.Validation = v
	}
	return report, nil
}

// fit runs the selected estimator and falls back to ridge if it fails.
func (o *Optimizer) fit(train []Row) (Model, schema.EstimatorKind, string, error) {
	x := make([][]float64, len(train))
	y := make([]float64, len(train))
	for i, r := range train {
		x[i], y[i] = r.Features, r.Target
	}

	est, fellBack := SelectEstimator(o.cfg.Estimator, len(x), len(x[0]))
	reason := ""
	if fellBack {
		reason = fmt.Sprintf("%s not capable of %d rows", o.cfg.Estimator, len(x))
	}
	model, err := est.Fit(x, y)
	if err == nil {
		return model, est.Kind(), reason, nil
	}
	if est.Kind() == schema.RidgeEstimator {
		return nil, "", "", err
	}

	reason = err.Error()
	ridge := NewRidge(DefaultRidgeLambda)
	model, err = ridge.Fit(x, y)
	if err != nil {
		return nil, "", "", err
	}
	return model, ridge.Kind(), reason, nil
}

// weightsFrom renormalizes base-pillar importances into weights and splits
// each interaction's share evenly between its two pillars for the
// interaction-adjusted set.
func (o *Optimizer) weightsFrom(imps []float64, kind schema.EstimatorKind, asOf time.Time) schema.WeightVector {
	n := len(o.profile.Pillars)
	wv := schema.WeightVector{
		Family:     o.profile.Family,
		DateFitted: asOf,
		Pillars:    make(map[schema.PillarID]float64, n),
		Estimator:  kind,
	}

	baseTotal, allTotal := 0.0, 0.0
	for i, v := range imps {
		if i < n {
			baseTotal += v
		}
		allTotal += v
	}
	if baseTotal <= 0 {
		wv.Pillars = schema.EqualWeights(o.profile.Pillars)
		wv.EqualFallback = true
		return wv
	}

	equal := 1 / float64(n)
	for i, p := range o.profile.Pillars {
		w := imps[i] / baseTotal
		wv.Pillars[p] = w
		wv.Deviation += math.Abs(w - equal)
	}
	wv.Deviation /= float64(n)
	if wv.Deviation < o.cfg.StabilityThreshold {
		wv.Pillars = schema.EqualWeights(o.profile.Pillars)
		wv.EqualFallback = true
		return wv
	}

	if allTotal > baseTotal {
		wv.Interactions = make(map[string]float64, len(o.profile.Interactions))
		adjusted := make(map[schema.PillarID]float64, n)
		for i, p := range o.profile.Pillars {
			adjusted[p] = imps[i] / allTotal
		}
		for k, in := range o.profile.Interactions {
			share := imps[n+k] / allTotal
			wv.Interactions[in.ID()] = share
			adjusted[in.A] += share / 2
			adjusted[in.B] += share / 2
		}
		wv.InteractionAdjusted = adjusted
	}
	return wv
}

// LeaveOneOut holds out each real scenario in turn, fits on the rest (with
// their augmentation) and predicts the held-out target. Synthetic rows are
// never held out. Folds run concurrently.
func (o *Optimizer) LeaveOneOut(ctx context.Context, rows []Row) (*schema.ValidationReport, error) {
	actual := make([]Row, 0, len(rows))
	for _, r := range rows {
		if !r.Synthetic {
			actual = append(actual, r)
		}
	}
	if len(actual) < minValidationScenarios {
		return nil, fmt.Errorf("%w: leave-one-out needs %d scenarios, got %d", schema.ErrInsufficientData, minValidationScenarios, len(actual))
	}

	folds := make([]schema.FoldResult, len(actual))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for i := range actual {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			rest := make([]Row, 0, len(actual)-1)
			rest = append(rest, actual[:i]...)
			rest = append(rest, actual[i+1:]...)

			train := Augment(o.profile, rest, o.cfg.Augment, rand.New(rand.NewPCG(o.cfg.Seed, uint64(i)+1)))
			model, kind, _, err := o.fit(train)
			if err != nil {
				return fmt.Errorf("fold %s: %w", actual[i].ScenarioID, err)
			}
			pred := min(max(model.Predict(actual[i].Features), 0), 1)
			folds[i] = schema.FoldResult{
				ScenarioID: actual[i].ScenarioID,
				Target:     actual[i].Target,
				Predicted:  pred,
				AbsError:   math.Abs(pred - actual[i].Target),
				Weights:    o.weightsFrom(model.Importances(), kind, time.Time{}).Pillars,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summarizeFolds(o.profile, folds), nil
}

func summarizeFolds(profile schema.FamilyProfile, folds []schema.FoldResult) *schema.ValidationReport {
	v := &schema.ValidationReport{Folds: folds, WeightStdDev: make(map[schema.PillarID]float64, len(profile.Pillars))}
	sq := 0.0
	for _, f := range folds {
		v.MAE += f.AbsError
		sq += f.AbsError * f.AbsError
	}
	v.MAE /= float64(len(folds))
	v.RMSE = math.Sqrt(sq / float64(len(folds)))

	ws := make([]float64, len(folds))
	for _, p := range profile.Pillars {
		for i, f := range folds {
			ws[i] = f.Weights[p]
		}
		_, std := stat.PopMeanStdDev(ws, nil)
		v.WeightStdDev[p] = std
		v.MeanWeightStd += std
	}
	v.MeanWeightStd /= float64(len(profile.Pillars))
	return v
}
