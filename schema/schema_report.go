package schema

import "time"

// PillarResult is one pillar's contribution to a composite report.
type PillarResult struct {
	Pillar         PillarID `json:"pillar"`
	Score          float64  `json:"score"`
	Weight         float64  `json:"weight"`
	Breached       bool     `json:"breached"`
	DataQuality    Tier     `json:"data_quality"`
	IndicatorsUsed []string `json:"indicators_used"`
}

// Interval is a two-sided band at a coverage level.
type Interval struct {
	Level float64 `json:"level"`
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// BootstrapResult summarizes the replicate distribution of a composite.
type BootstrapResult struct {
	Replicates int        `json:"replicates"`
	Mean       float64    `json:"mean"`
	StdDev     float64    `json:"std_dev"`
	Intervals  []Interval `json:"intervals"`
}

// ConformalResult holds split-conformal bands built from historical residuals.
type ConformalResult struct {
	Residuals int        `json:"residuals"`
	Intervals []Interval `json:"intervals"`
}

// UncertaintyReport carries both interval families side by side.
type UncertaintyReport struct {
	Bootstrap *BootstrapResult `json:"bootstrap,omitempty"`
	Conformal *ConformalResult `json:"conformal,omitempty"`
}

// RegimeReading is the fragility estimate for one date.
type RegimeReading struct {
	Method    RegimeMethod `json:"method"`
	Fragility float64      `json:"fragility"`
	State     RegimeState  `json:"state"`
}

// Driver is a pillar ranked by its weighted shortfall from full capacity.
type Driver struct {
	Pillar    PillarID `json:"pillar"`
	Shortfall float64  `json:"shortfall"`
}

// CompositeReport is the outward contract for one scored date.
type CompositeReport struct {
	Family                   Family               `json:"family"`
	Date                     time.Time            `json:"date"`
	Score                    float64              `json:"score"`
	Indeterminate            bool                 `json:"indeterminate"`
	Label                    RegimeLabel          `json:"label"`
	WeightedAverage          float64              `json:"weighted_average"`
	Penalty                  float64              `json:"penalty"`
	BreachCount              int                  `json:"breach_count"`
	Pillars                  []PillarResult       `json:"pillars"`
	ExcludedPillars          []PillarID           `json:"excluded_pillars,omitempty"`
	WeightsUsed              map[PillarID]float64 `json:"weights_used"`
	InteractionWeightsActive bool                 `json:"interaction_weights_active"`
	Alpha                    float64              `json:"alpha"`
	Era                      string               `json:"era,omitempty"`
	Drivers                  []Driver             `json:"drivers,omitempty"`
	Uncertainty              *UncertaintyReport   `json:"uncertainty,omitempty"`
	Regime                   *RegimeReading       `json:"regime,omitempty"`
	Posture                  Posture              `json:"posture,omitempty"`
	Flags                    []ReportFlag         `json:"flags,omitempty"`
}

// HasFlag reports whether the report carries flag.
func (r CompositeReport) HasFlag(flag ReportFlag) bool {
	for _, f := range r.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

// AddFlag appends flag once.
func (r *CompositeReport) AddFlag(flag ReportFlag) {
	if !r.HasFlag(flag) {
		r.Flags = append(r.Flags, flag)
	}
}

// Scores returns the pillar scores keyed by pillar.
func (r CompositeReport) Scores() map[PillarID]float64 {
	out := make(map[PillarID]float64, len(r.Pillars))
	for _, p := range r.Pillars {
		out[p.Pillar] = p.Score
	}
	return out
}

// FoldResult is one leave-one-out fold.
type FoldResult struct {
	ScenarioID string               `json:"scenario_id"`
	Target     float64              `json:"target"`
	Predicted  float64              `json:"predicted"`
	AbsError   float64              `json:"abs_error"`
	Weights    map[PillarID]float64 `json:"weights"`
}

// ValidationReport summarizes leave-one-out validation over real scenarios.
type ValidationReport struct {
	Folds         []FoldResult         `json:"folds"`
	MAE           float64              `json:"mae"`
	RMSE          float64              `json:"rmse"`
	WeightStdDev  map[PillarID]float64 `json:"weight_std_dev"`
	MeanWeightStd float64              `json:"mean_weight_std"`
}

// SkippedScenario records a catalog entry the optimizer could not use.
type SkippedScenario struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// FitReport is the Weight Optimizer's output.
type FitReport struct {
	Weights        WeightVector       `json:"weights"`
	Features       []string           `json:"features"`
	Importances    map[string]float64 `json:"importances"`
	Scenarios      []string           `json:"scenarios"`
	Skipped        []SkippedScenario  `json:"skipped,omitempty"`
	Rows           int                `json:"rows"`
	Validation     *ValidationReport  `json:"validation,omitempty"`
	FallbackReason string             `json:"fallback_reason,omitempty"`
}

// RegimeSeries is the Regime Detector's output over a date range.
type RegimeSeries struct {
	Method        RegimeMethod              `json:"method"`
	Reason        string                    `json:"reason,omitempty"`
	Pillars       []PillarID                `json:"pillars"`
	Dates         []time.Time               `json:"dates"`
	Fragility     []float64                 `json:"fragility"`
	Path          []RegimeState             `json:"path"`
	Means         map[RegimeState][]float64 `json:"means,omitempty"`
	Transition    [2][2]float64             `json:"transition"`
	LogLikelihood float64                   `json:"log_likelihood"`
	Iterations    int                       `json:"iterations"`
	FallbackDates int                       `json:"fallback_dates"`
}

// PenaltyDerivation is a derived breach penalty table with its evidence.
type PenaltyDerivation struct {
	Table        PenaltyTable         `json:"table"`
	BreachRates  map[PillarID]float64 `json:"breach_rates"`
	CountProbs   []float64            `json:"count_probs"`
	Observations int                  `json:"observations"`
	Era          string               `json:"era,omitempty"`
}
