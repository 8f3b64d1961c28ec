package schema

import "time"

// BacktestPoint is one scored date of a walk-forward run.
type BacktestPoint struct {
	CompositeReport
	InCrisis  bool     `json:"in_crisis"`
	CrisisIDs []string `json:"crisis_ids,omitempty"`
}

// ThresholdOutcome is the confusion matrix at one decision threshold.
// A date is a predicted positive when its composite falls below the threshold.
type ThresholdOutcome struct {
	Threshold         float64 `json:"threshold"`
	TruePositives     int     `json:"tp"`
	FalsePositives    int     `json:"fp"`
	FalseNegatives    int     `json:"fn"`
	TrueNegatives     int     `json:"tn"`
	Precision         float64 `json:"precision"`
	Recall            float64 `json:"recall"`
	F1                float64 `json:"f1"`
	FalsePositiveRate float64 `json:"false_positive_rate"`
}

// EraDetection is the crisis detection rate within one era.
type EraDetection struct {
	Era      string   `json:"era"`
	Crises   int      `json:"crises"`
	Detected int      `json:"detected"`
	Rate     float64  `json:"rate"`
	Missed   []string `json:"missed,omitempty"`
}

// FalsePositiveTaxonomy splits false-positive dates by context.
type FalsePositiveTaxonomy struct {
	NearMiss      int `json:"near_miss"`
	FragileRegime int `json:"fragile_regime"`
	Isolated      int `json:"isolated"`
}

// Total returns the number of classified false positives.
func (t FalsePositiveTaxonomy) Total() int {
	return t.NearMiss + t.FragileRegime + t.Isolated
}

// Moments are summary statistics of a series.
type Moments struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// StabilityStats summarizes how much weights and calibration moved across refits.
type StabilityStats struct {
	Weights      map[PillarID]Moments `json:"weights"`
	Alpha        Moments              `json:"alpha"`
	Refits       int                  `json:"refits"`
	FailedRefits int                  `json:"failed_refits"`
}

// RefitRecord is one refit boundary of a walk-forward run.
type RefitRecord struct {
	Date        time.Time      `json:"date"`
	Scenarios   int            `json:"scenarios"`
	Rejected    int            `json:"rejected"`
	Succeeded   bool           `json:"succeeded"`
	Reason      string         `json:"reason,omitempty"`
	Weights     WeightVector   `json:"weights"`
	Calibration CalibrationSet `json:"calibration"`
	Penalties   PenaltyTable   `json:"penalties"`
	Regime      RegimeMethod   `json:"regime"`
}

// BacktestReport is the Backtest Runner's output.
type BacktestReport struct {
	RunID             string                `json:"run_id"`
	Family            Family                `json:"family"`
	Start             time.Time             `json:"start"`
	End               time.Time             `json:"end"`
	StepDays          int                   `json:"step_days"`
	RefitEvery        int                   `json:"refit_every"`
	LeadTimeDays      int                   `json:"lead_time_days"`
	DecisionThreshold float64               `json:"decision_threshold"`
	Series            []BacktestPoint       `json:"series"`
	Sweep             []ThresholdOutcome    `json:"sweep"`
	Eras              []EraDetection        `json:"eras"`
	FalsePositives    FalsePositiveTaxonomy `json:"false_positives"`
	Stability         StabilityStats        `json:"stability"`
	Refits            []RefitRecord         `json:"refits"`
	Indeterminate     int                   `json:"indeterminate"`
}
