package algo

import (
	"sort"

	"github.com/huangsam/macindex/schema"
)

// RankDrivers sorts pillars by weighted shortfall from full capacity in
// descending order and returns the top limit entries.
func RankDrivers(pillars []schema.PillarResult, limit int) []schema.Driver {
	drivers := make([]schema.Driver, 0, len(pillars))
	for _, p := range pillars {
		shortfall := p.Weight * (1 - p.Score)
		if shortfall <= 0 {
			continue
		}
		drivers = append(drivers, schema.Driver{Pillar: p.Pillar, Shortfall: shortfall})
	}
	sort.Slice(drivers, func(i, j int) bool {
		if drivers[i].Shortfall == drivers[j].Shortfall {
			return drivers[i].Pillar < drivers[j].Pillar
		}
		return drivers[i].Shortfall > drivers[j].Shortfall
	})
	if len(drivers) > limit {
		return drivers[:limit]
	}
	return drivers
}
