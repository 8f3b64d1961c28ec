package algo

import (
	"testing"

	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/assert"
)

func TestRankDrivers(t *testing.T) {
	pillars := []schema.PillarResult{
		{Pillar: schema.LiquidityPillar, Score: 0.9, Weight: 0.25},
		{Pillar: schema.ValuationPillar, Score: 0.2, Weight: 0.25},
		{Pillar: schema.PolicyPillar, Score: 1.0, Weight: 0.25},
		{Pillar: schema.ContagionPillar, Score: 0.5, Weight: 0.25},
	}

	t.Run("rank and limit", func(t *testing.T) {
		ranked := RankDrivers(pillars, 2)
		assert.Len(t, ranked, 2)
		assert.Equal(t, schema.ValuationPillar, ranked[0].Pillar)
		assert.Equal(t, schema.ContagionPillar, ranked[1].Pillar)
	})

	t.Run("full capacity is not a driver", func(t *testing.T) {
		ranked := RankDrivers(pillars, 10)
		assert.Len(t, ranked, 3)
		for i := 1; i < len(ranked); i++ {
			assert.LessOrEqual(t, ranked[i].Shortfall, ranked[i-1].Shortfall)
		}
	})
}
