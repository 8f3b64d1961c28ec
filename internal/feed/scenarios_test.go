package feed

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/huangsam/macindex/core/algo"
	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinCatalogs(t *testing.T) {
	for _, f := range []schema.Family{schema.MACFamily, schema.GRRIFamily} {
		t.Run(string(f), func(t *testing.T) {
			scenarios, err := LoadScenarios("", f)
			require.NoError(t, err)
			require.NotEmpty(t, scenarios)

			profile, _ := schema.GetProfile(f)
			for i, s := range scenarios {
				if i > 0 {
					assert.False(t, s.Start.Before(scenarios[i-1].Start), "sorted by start")
				}
				_, ok := s.Target()
				assert.True(t, ok, s.ID)
				assert.Len(t, s.Pillars, len(profile.Pillars), s.ID)
				assert.False(t, s.Resolution().Before(s.Finish()), s.ID)
			}
		})
	}
}

func TestBuiltinMACCatalogLehman(t *testing.T) {
	scenarios, err := LoadScenarios("", schema.MACFamily)
	require.NoError(t, err)

	var found bool
	for _, s := range scenarios {
		if s.ID != "lehman_2008" {
			continue
		}
		found = true
		sev, ok := s.SeverityValue()
		require.True(t, ok)
		assert.InDelta(t, 0.95, sev, 1e-9)
		assert.Equal(t, day("2008-09-15"), s.Start)

		engine, err := algo.NewEngine(schema.DefaultSnapshot(schema.MACFamily))
		require.NoError(t, err)
		var pillars []schema.PillarScore
		for _, p := range schema.SortedPillars(s.Pillars) {
			pillars = append(pillars, schema.PillarScore{Pillar: p, Date: s.Start, Score: s.Pillars[p], DataQuality: schema.NativeTier})
		}
		report := engine.Compute(s.Start, pillars)
		assert.Equal(t, 5, report.BreachCount)
		assert.InDelta(t, 0.78*(0.225-0.03), report.Score, 1e-9)
		assert.Contains(t, []schema.RegimeLabel{schema.RegimeBreakLabel, schema.StretchedLabel}, report.Label)
	}
	assert.True(t, found)
}

func TestReadScenariosErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"wrong family", "family: grri\nscenarios:\n  - id: a\n    start: 2001-01-01\n    severity: 0.5\n", "want \"mac\""},
		{"duplicate", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n    severity: 0.5\n  - id: a\n    start: 2002-01-01\n    severity: 0.5\n", "duplicate"},
		{"severity range", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n    severity: 1.5\n", "lte"},
		{"no target", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n", "no severity"},
		{"ends early", "family: mac\nscenarios:\n  - id: a\n    start: 2001-02-01\n    end: 2001-01-01\n    severity: 0.5\n", "ends before"},
		{"resolves early", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n    end: 2001-03-01\n    resolved_at: 2001-02-01\n    severity: 0.5\n", "resolves before"},
		{"foreign pillar", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n    severity: 0.5\n    pillars: {governance: 0.4}\n", "governance"},
		{"pillar range", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n    severity: 0.5\n    pillars: {liquidity: 2}\n", "lte"},
		{"unknown field", "family: mac\nscenarios:\n  - id: a\n    start: 2001-01-01\n    color: red\n", "decoding"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadScenarios(strings.NewReader(tt.input), schema.MACFamily)
			require.Error(t, err)
			assert.ErrorIs(t, err, schema.ErrConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadScenariosFromFile(t *testing.T) {
	content := `family: mac
scenarios:
  - id: later
    start: 2005-01-01
    expected_range: {low: 0.4, high: 0.6}
  - id: earlier
    start: 2001-01-01
    rubric: {funding: 0.8, market_function: 0.6}
`
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	scenarios, err := LoadScenarios(path, schema.MACFamily)
	require.NoError(t, err)
	require.Len(t, scenarios, 2)
	assert.Equal(t, "earlier", scenarios[0].ID)

	target, ok := scenarios[0].Target()
	require.True(t, ok)
	assert.InDelta(t, 0.3, target, 1e-9)

	target, ok = scenarios[1].Target()
	require.True(t, ok)
	assert.InDelta(t, 0.5, target, 1e-9)

	_, err = LoadScenarios(filepath.Join(t.TempDir(), "none.yaml"), schema.MACFamily)
	assert.Error(t, err)
}
