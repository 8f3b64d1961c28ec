package algo

import (
	"testing"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
)

func TestDecidePosture(t *testing.T) {
	fragile, calm := 0.8, 0.1
	tests := []struct {
		name      string
		label     schema.RegimeLabel
		fragility *float64
		breach    bool
		heuristic bool
		want      schema.Posture
		flagged   bool
	}{
		{"ample", schema.AmpleLabel, nil, false, false, schema.NormalPosture, false},
		{"thin", schema.ThinLabel, nil, false, false, schema.CautiousPosture, false},
		{"stretched", schema.StretchedLabel, nil, false, false, schema.DefensivePosture, false},
		{"regime break", schema.RegimeBreakLabel, nil, false, false, schema.CrisisPosture, false},
		{"indeterminate", schema.IndeterminateLabel, nil, false, false, schema.CautiousPosture, false},
		{"fragile shifts", schema.ComfortableLabel, &fragile, false, false, schema.CautiousPosture, false},
		{"calm does not shift", schema.ComfortableLabel, &calm, false, false, schema.NormalPosture, false},
		{"heuristic off ignores breach", schema.AmpleLabel, nil, true, false, schema.NormalPosture, false},
		{"heuristic forces defensive", schema.AmpleLabel, nil, true, true, schema.DefensivePosture, true},
		{"heuristic keeps crisis", schema.RegimeBreakLabel, nil, true, true, schema.CrisisPosture, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flags := DecidePosture(tt.label, tt.fragility, tt.breach, tt.heuristic)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.flagged, len(flags) > 0)
		})
	}
}

func TestApplyRegimeLeavesScore(t *testing.T) {
	report := schema.CompositeReport{
		Score: 0.55,
		Label: schema.ComfortableLabel,
		Pillars: []schema.PillarResult{
			{Pillar: schema.PositioningPillar, Score: 0.1, Breached: true},
		},
	}
	ApplyRegime(&report, schema.RegimeReading{Method: schema.ThresholdMethod, Fragility: 1, State: schema.FragileState}, true)

	assert.Equal(t, 0.55, report.Score)
	assert.Equal(t, schema.DefensivePosture, report.Posture)
	assert.True(t, report.HasFlag(schema.FlagRegimeFallback))
	assert.True(t, report.HasFlag(schema.FlagPositioningHeuristic))
	assert.NotNil(t, report.Regime)
}
