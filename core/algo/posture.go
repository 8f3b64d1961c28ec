package algo

import "github.com/huangsam/macindex/schema"

// basePosture is the decision table keyed by regime label.
var basePosture = map[schema.RegimeLabel]schema.Posture{
	schema.AmpleLabel:         schema.NormalPosture,
	schema.ComfortableLabel:   schema.NormalPosture,
	schema.ThinLabel:          schema.CautiousPosture,
	schema.StretchedLabel:     schema.DefensivePosture,
	schema.RegimeBreakLabel:   schema.CrisisPosture,
	schema.IndeterminateLabel: schema.CautiousPosture,
}

// DecidePosture maps a label to an advisory posture. A fragile regime reading
// shifts it one step more defensive. When the positioning heuristic is
// enabled, a positioning breach forces at least a defensive posture.
// The posture never feeds back into the composite score.
func DecidePosture(label schema.RegimeLabel, fragility *float64, positioningBreached, heuristic bool) (schema.Posture, []schema.ReportFlag) {
	posture, ok := basePosture[label]
	if !ok {
		posture = schema.CautiousPosture
	}
	if fragility != nil && *fragility >= schema.DefaultFragileThreshold {
		posture = posture.MoreDefensive()
	}
	var flags []schema.ReportFlag
	if heuristic && positioningBreached {
		posture = posture.AtLeast(schema.DefensivePosture)
		flags = append(flags, schema.FlagPositioningHeuristic)
	}
	return posture, flags
}

// ApplyRegime attaches a regime reading to a report and recomputes its posture.
func ApplyRegime(report *schema.CompositeReport, reading schema.RegimeReading, heuristic bool) {
	report.Regime = &reading
	if reading.Method == schema.ThresholdMethod {
		report.AddFlag(schema.FlagRegimeFallback)
	}
	positioning := false
	for _, p := range report.Pillars {
		if p.Pillar == schema.PositioningPillar {
			positioning = p.Breached
		}
	}
	fragility := reading.Fragility
	posture, flags := DecidePosture(report.Label, &fragility, positioning, heuristic)
	report.Posture = posture
	for _, f := range flags {
		report.AddFlag(f)
	}
}
