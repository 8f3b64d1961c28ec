// Package schema has the value types, constants and defaults shared by every pipeline stage.
package schema

import (
	"fmt"
	"sort"
	"time"
)

// Observation is one resolved, dated scalar from the external feed.
type Observation struct {
	IndicatorID string    `json:"indicator_id"`
	Date        time.Time `json:"date"`
	Value       float64   `json:"value"`
	Tier        Tier      `json:"tier"`
}

// ThresholdSet holds the ample/thin/breach boundaries of an indicator.
// For two-sided sets, Ample/Thin/Breach describe the lower tail and the
// Upper* fields describe the upper tail of the healthy middle band.
type ThresholdSet struct {
	Direction   Direction `yaml:"direction" json:"direction" validate:"required,oneof=higher_is_better lower_is_better two_sided"`
	Ample       float64   `yaml:"ample" json:"ample"`
	Thin        float64   `yaml:"thin" json:"thin"`
	Breach      float64   `yaml:"breach" json:"breach"`
	UpperAmple  float64   `yaml:"upper_ample,omitempty" json:"upper_ample,omitempty"`
	UpperThin   float64   `yaml:"upper_thin,omitempty" json:"upper_thin,omitempty"`
	UpperBreach float64   `yaml:"upper_breach,omitempty" json:"upper_breach,omitempty"`
}

// Validate checks boundary ordering. A violation is a configuration error.
func (ts ThresholdSet) Validate() error {
	switch ts.Direction {
	case HigherIsBetter:
		if !(ts.Ample > ts.Thin && ts.Thin > ts.Breach) {
			return fmt.Errorf("%w: higher_is_better requires ample > thin > breach, got %g/%g/%g", ErrConfig, ts.Ample, ts.Thin, ts.Breach)
		}
	case LowerIsBetter:
		if !(ts.Ample < ts.Thin && ts.Thin < ts.Breach) {
			return fmt.Errorf("%w: lower_is_better requires ample < thin < breach, got %g/%g/%g", ErrConfig, ts.Ample, ts.Thin, ts.Breach)
		}
	case TwoSided:
		if !(ts.Breach < ts.Thin && ts.Thin < ts.Ample) {
			return fmt.Errorf("%w: two_sided lower tail requires breach < thin < ample, got %g/%g/%g", ErrConfig, ts.Breach, ts.Thin, ts.Ample)
		}
		if ts.UpperAmple < ts.Ample {
			return fmt.Errorf("%w: two_sided healthy band is empty (%g > %g)", ErrConfig, ts.Ample, ts.UpperAmple)
		}
		if !(ts.UpperAmple < ts.UpperThin && ts.UpperThin < ts.UpperBreach) {
			return fmt.Errorf("%w: two_sided upper tail requires upper_ample < upper_thin < upper_breach, got %g/%g/%g", ErrConfig, ts.UpperAmple, ts.UpperThin, ts.UpperBreach)
		}
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrConfig, ts.Direction)
	}
	return nil
}

// DatedThresholds is a threshold set that applies from a date onward.
// A zero From applies since inception.
type DatedThresholds struct {
	From       time.Time    `yaml:"from,omitempty" json:"from,omitempty"`
	Thresholds ThresholdSet `yaml:"thresholds" json:"thresholds" validate:"required"`
}

// IndicatorDefinition maps an indicator onto a pillar with era-keyed thresholds.
type IndicatorDefinition struct {
	ID          string            `yaml:"id" json:"id" validate:"required"`
	Pillar      PillarID          `yaml:"pillar" json:"pillar" validate:"required"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Thresholds  []DatedThresholds `yaml:"thresholds" json:"thresholds" validate:"required,min=1,dive"`
}

// ThresholdsAt returns the threshold set in force on date.
func (d IndicatorDefinition) ThresholdsAt(date time.Time) (ThresholdSet, bool) {
	sets := make([]DatedThresholds, len(d.Thresholds))
	copy(sets, d.Thresholds)
	sort.SliceStable(sets, func(i, j int) bool { return sets[i].From.Before(sets[j].From) })

	var (
		chosen ThresholdSet
		found  bool
	)
	for _, s := range sets {
		if s.From.After(date) {
			break
		}
		chosen, found = s.Thresholds, true
	}
	return chosen, found
}

// IndicatorScore is the scored form of one observation.
type IndicatorScore struct {
	IndicatorID string    `json:"indicator_id"`
	Pillar      PillarID  `json:"pillar"`
	Date        time.Time `json:"date"`
	Value       float64   `json:"value"`
	Score       float64   `json:"score"`
	Tier        Tier      `json:"tier"`
}

// PillarScore is the aggregated score of one pillar on one date.
type PillarScore struct {
	Pillar         PillarID         `json:"pillar"`
	Date           time.Time        `json:"date"`
	Score          float64          `json:"score"`
	IndicatorsUsed []string         `json:"indicators_used"`
	DataQuality    Tier             `json:"data_quality"`
	Indicators     []IndicatorScore `json:"indicators,omitempty"`
}

// Interaction is a pairwise product feature of two pillars.
type Interaction struct {
	A PillarID `json:"a"`
	B PillarID `json:"b"`
}

// ID returns the feature name of the interaction.
func (i Interaction) ID() string {
	return string(i.A) + "_x_" + string(i.B)
}

// WeightVector holds fitted or default pillar weights.
type WeightVector struct {
	Family              Family               `json:"family"`
	DateFitted          time.Time            `json:"date_fitted"`
	Pillars             map[PillarID]float64 `json:"pillars"`
	Interactions        map[string]float64   `json:"interactions,omitempty"`
	InteractionAdjusted map[PillarID]float64 `json:"interaction_adjusted,omitempty"`
	Estimator           EstimatorKind        `json:"estimator"`
	EstimatorFallback   bool                 `json:"estimator_fallback"`
	EqualFallback       bool                 `json:"equal_fallback"`
	Deviation           float64              `json:"deviation"`
}

// Clone returns a deep copy of the weight vector.
func (w WeightVector) Clone() WeightVector {
	out := w
	out.Pillars = cloneMap(w.Pillars)
	out.Interactions = cloneMap(w.Interactions)
	out.InteractionAdjusted = cloneMap(w.InteractionAdjusted)
	return out
}

// PenaltyTable maps a breach count to a penalty in [0, Cap].
type PenaltyTable struct {
	Model           PenaltyModel `json:"model"`
	Penalties       []float64    `json:"penalties"`
	Cap             float64      `json:"cap"`
	StressThreshold float64      `json:"stress_threshold"`
}

// Penalty returns π(n). Counts past the end of the table reuse its last entry.
func (pt PenaltyTable) Penalty(n int) float64 {
	if n <= 0 || len(pt.Penalties) == 0 {
		return 0
	}
	idx := min(n, len(pt.Penalties)-1)
	return min(max(pt.Penalties[idx], 0), pt.Cap)
}

// Validate checks that the table is monotone non-decreasing and within [0, Cap].
func (pt PenaltyTable) Validate() error {
	if pt.Cap < 0 {
		return fmt.Errorf("%w: penalty cap must be non-negative, got %g", ErrConfig, pt.Cap)
	}
	if pt.StressThreshold <= 0 || pt.StressThreshold >= 1 {
		return fmt.Errorf("%w: stress threshold must be in (0,1), got %g", ErrConfig, pt.StressThreshold)
	}
	prev := 0.0
	for n, p := range pt.Penalties {
		if p < 0 || p > pt.Cap {
			return fmt.Errorf("%w: penalty for %d breaches (%g) outside [0, %g]", ErrConfig, n, p, pt.Cap)
		}
		if p < prev {
			return fmt.Errorf("%w: penalty for %d breaches (%g) is below penalty for %d (%g)", ErrConfig, n, p, n-1, prev)
		}
		prev = p
	}
	return nil
}

// Era is a named calendar span. End is exclusive; a zero End is open.
type Era struct {
	Name  string    `yaml:"name" json:"name"`
	Start time.Time `yaml:"start" json:"start"`
	End   time.Time `yaml:"end,omitempty" json:"end,omitempty"`
}

// Contains reports whether date falls within the era.
func (e Era) Contains(date time.Time) bool {
	if !e.Start.IsZero() && date.Before(e.Start) {
		return false
	}
	return e.End.IsZero() || date.Before(e.End)
}

// EraFor returns the name of the era containing date, or "" when none does.
func EraFor(date time.Time, eras []Era) string {
	for _, e := range eras {
		if e.Contains(date) {
			return e.Name
		}
	}
	return ""
}

// CalibrationSet holds the pooled and per-era calibration factors.
type CalibrationSet struct {
	Default  float64            `json:"default"`
	ByEra    map[string]float64 `json:"by_era,omitempty"`
	Min      float64            `json:"min"`
	Max      float64            `json:"max"`
	FittedAt time.Time          `json:"fitted_at"`
	Samples  int                `json:"samples"`
}

// AlphaAt returns the era-appropriate α for date.
func (c CalibrationSet) AlphaAt(date time.Time, eras []Era) (float64, string) {
	era := EraFor(date, eras)
	if a, ok := c.ByEra[era]; ok {
		return a, era
	}
	return c.Default, era
}

// Clone returns a deep copy of the calibration set.
func (c CalibrationSet) Clone() CalibrationSet {
	out := c
	out.ByEra = cloneMap(c.ByEra)
	return out
}

// Snapshot is the frozen scoring context: everything the composite needs
// besides the pillar scores themselves.
type Snapshot struct {
	Family               Family         `json:"family"`
	Weights              WeightVector   `json:"weights"`
	Penalties            PenaltyTable   `json:"penalties"`
	Calibration          CalibrationSet `json:"calibration"`
	Eras                 []Era          `json:"eras"`
	PositioningHeuristic bool           `json:"positioning_heuristic"`
}

// ScoreRange is an inclusive expected composite range.
type ScoreRange struct {
	Low  float64 `yaml:"low" json:"low" validate:"gte=0,lte=1"`
	High float64 `yaml:"high" json:"high" validate:"gte=0,lte=1,gtefield=Low"`
}

// Scenario is a labeled historical crisis event.
type Scenario struct {
	ID            string               `yaml:"id" json:"id" validate:"required"`
	Name          string               `yaml:"name,omitempty" json:"name,omitempty"`
	Start         time.Time            `yaml:"start" json:"start" validate:"required"`
	End           time.Time            `yaml:"end,omitempty" json:"end,omitempty"`
	ResolvedAt    time.Time            `yaml:"resolved_at,omitempty" json:"resolved_at,omitempty"`
	Severity      *float64             `yaml:"severity,omitempty" json:"severity,omitempty" validate:"omitempty,gte=0,lte=1"`
	Rubric        map[string]float64   `yaml:"rubric,omitempty" json:"rubric,omitempty" validate:"dive,gte=0,lte=1"`
	ExpectedRange *ScoreRange          `yaml:"expected_range,omitempty" json:"expected_range,omitempty"`
	Pillars       map[PillarID]float64 `yaml:"pillars,omitempty" json:"pillars,omitempty" validate:"dive,gte=0,lte=1"`
}

// Finish returns the last date of the crisis window.
func (s Scenario) Finish() time.Time {
	if s.End.IsZero() || s.End.Before(s.Start) {
		return s.Start
	}
	return s.End
}

// Resolution returns the date from which the scenario's label is known.
func (s Scenario) Resolution() time.Time {
	if s.ResolvedAt.IsZero() {
		return s.Finish()
	}
	return s.ResolvedAt
}

// SeverityValue returns the scenario severity, averaging the rubric when no
// single severity was given.
func (s Scenario) SeverityValue() (float64, bool) {
	if s.Severity != nil {
		return *s.Severity, true
	}
	if len(s.Rubric) == 0 {
		return 0, false
	}
	keys := make([]string, 0, len(s.Rubric))
	for k := range s.Rubric {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0.0
	for _, k := range keys {
		total += s.Rubric[k]
	}
	return total / float64(len(keys)), true
}

// Target returns the capacity-scale ground truth used for fitting.
func (s Scenario) Target() (float64, bool) {
	if s.ExpectedRange != nil {
		return (s.ExpectedRange.Low + s.ExpectedRange.High) / 2, true
	}
	sev, ok := s.SeverityValue()
	if !ok {
		return 0, false
	}
	return 1 - sev, true
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	if m == nil {
		return nil
	}
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
