package algo

import (
	"math"
	"slices"
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDate = time.Date(2008, time.September, 15, 0, 0, 0, 0, time.UTC)

func TestAggregatePillar(t *testing.T) {
	t.Run("mean and worst tier", func(t *testing.T) {
		ps, ok := AggregatePillar(schema.LiquidityPillar, testDate, []schema.IndicatorScore{
			{IndicatorID: "b", Score: 0.2, Tier: schema.ProxyHistoricalTier},
			{IndicatorID: "a", Score: 0.6, Tier: schema.NativeTier},
		})
		require.True(t, ok)
		assert.InDelta(t, 0.4, ps.Score, 1e-12)
		assert.Equal(t, schema.ProxyHistoricalTier, ps.DataQuality)
		assert.Equal(t, []string{"a", "b"}, ps.IndicatorsUsed)
	})

	t.Run("no data excludes the pillar", func(t *testing.T) {
		_, ok := AggregatePillar(schema.LiquidityPillar, testDate, nil)
		assert.False(t, ok)
	})
}

func TestScorePillars(t *testing.T) {
	defs := schema.GetDefaultIndicators(schema.MACFamily)

	t.Run("missing indicators are skipped", func(t *testing.T) {
		obs := map[string]schema.Observation{
			"funding_spread_bps": {IndicatorID: "funding_spread_bps", Date: testDate, Value: 30, Tier: schema.NativeTier},
			"vix":                {IndicatorID: "vix", Date: testDate, Value: 16, Tier: schema.NativeTier},
			"move_index":         {IndicatorID: "move_index", Date: testDate, Value: math.NaN(), Tier: schema.NativeTier},
		}
		got, err := ScorePillars(testDate, defs, obs)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, schema.LiquidityPillar, got[0].Pillar)
		assert.InDelta(t, 0.5, got[0].Score, 1e-12)
		assert.Equal(t, schema.VolatilityPillar, got[1].Pillar)
		assert.Equal(t, []string{"vix"}, got[1].IndicatorsUsed)
	})

	t.Run("no threshold in force is a configuration error", func(t *testing.T) {
		late := []schema.IndicatorDefinition{{
			ID:     "new_series",
			Pillar: schema.LiquidityPillar,
			Thresholds: []schema.DatedThresholds{{
				From:       time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
				Thresholds: schema.ThresholdSet{Direction: schema.HigherIsBetter, Ample: 3, Thin: 2, Breach: 1},
			}},
		}}
		obs := map[string]schema.Observation{"new_series": {IndicatorID: "new_series", Date: testDate, Value: 2}}
		_, err := ScorePillars(testDate, late, obs)
		assert.ErrorIs(t, err, schema.ErrConfig)
	})
}

func TestValidateDefinitions(t *testing.T) {
	for _, f := range []schema.Family{schema.MACFamily, schema.GRRIFamily} {
		assert.NoError(t, ValidateDefinitions(f, schema.GetDefaultIndicators(f)), "built-in %s", f)
	}

	good := schema.IndicatorDefinition{
		ID:     "x",
		Pillar: schema.LiquidityPillar,
		Thresholds: []schema.DatedThresholds{{
			Thresholds: schema.ThresholdSet{Direction: schema.HigherIsBetter, Ample: 1, Thin: 0.5, Breach: 0},
		}},
	}
	misordered := good
	misordered.ID = "y"
	misordered.Thresholds = []schema.DatedThresholds{{
		Thresholds: schema.ThresholdSet{Direction: schema.HigherIsBetter, Ample: 0, Thin: 0.5, Breach: 1},
	}}
	foreign := good
	foreign.ID = "z"
	foreign.Pillar = schema.GovernancePillar
	doubled := good
	doubled.ID = "w"
	doubled.Thresholds = append(slices.Clone(good.Thresholds), good.Thresholds[0])

	tests := []struct {
		name string
		defs []schema.IndicatorDefinition
	}{
		{"duplicate id", []schema.IndicatorDefinition{good, good}},
		{"misordered thresholds", []schema.IndicatorDefinition{misordered}},
		{"foreign pillar", []schema.IndicatorDefinition{foreign}},
		{"same effective date twice", []schema.IndicatorDefinition{doubled}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, ValidateDefinitions(schema.MACFamily, tt.defs), schema.ErrConfig)
		})
	}
}
