package algo

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/huangsam/macindex/schema"
)

// AggregatePillar averages the available indicator scores of one pillar.
// It returns false when no indicator has data: the pillar is then excluded
// from the composite, never defaulted to a neutral score.
func AggregatePillar(pillar schema.PillarID, date time.Time, scores []schema.IndicatorScore) (schema.PillarScore, bool) {
	if len(scores) == 0 {
		return schema.PillarScore{}, false
	}

	ordered := make([]schema.IndicatorScore, len(scores))
	copy(ordered, scores)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].IndicatorID < ordered[j].IndicatorID })

	var (
		total float64
		tier  schema.Tier
		used  = make([]string, 0, len(ordered))
	)
	for _, s := range ordered {
		total += s.Score
		tier = schema.WorstTier(tier, s.Tier)
		used = append(used, s.IndicatorID)
	}

	return schema.PillarScore{
		Pillar:         pillar,
		Date:           date,
		Score:          total / float64(len(ordered)),
		IndicatorsUsed: used,
		DataQuality:    tier,
		Indicators:     ordered,
	}, true
}

// ScorePillars scores every available observation against its definition and
// aggregates per pillar. Indicators without an observation count as no data.
// An observation whose indicator has no threshold set in force is a
// configuration error.
func ScorePillars(date time.Time, defs []schema.IndicatorDefinition, obs map[string]schema.Observation) ([]schema.PillarScore, error) {
	byPillar := make(map[schema.PillarID][]schema.IndicatorScore)

	for _, def := range defs {
		o, ok := obs[def.ID]
		if !ok || math.IsNaN(o.Value) || math.IsInf(o.Value, 0) {
			continue
		}
		ts, ok := def.ThresholdsAt(date)
		if !ok {
			return nil, fmt.Errorf("%w: indicator %s has an observation on %s but no threshold set in force", schema.ErrConfig, def.ID, date.Format(time.DateOnly))
		}
		score, err := ScoreIndicator(o.Value, ts)
		if err != nil {
			return nil, fmt.Errorf("indicator %s: %w", def.ID, err)
		}
		byPillar[def.Pillar] = append(byPillar[def.Pillar], schema.IndicatorScore{
			IndicatorID: def.ID,
			Pillar:      def.Pillar,
			Date:        o.Date,
			Value:       o.Value,
			Score:       score,
			Tier:        o.Tier,
		})
	}

	out := make([]schema.PillarScore, 0, len(byPillar))
	for _, pillar := range schema.SortedPillars(byPillar) {
		if ps, ok := AggregatePillar(pillar, date, byPillar[pillar]); ok {
			out = append(out, ps)
		}
	}
	return out, nil
}

// ValidateDefinitions checks a definition set for a family: unique IDs,
// pillars declared by the family, well-ordered thresholds and distinct
// effective dates per indicator.
func ValidateDefinitions(f schema.Family, defs []schema.IndicatorDefinition) error {
	profile, ok := schema.GetProfile(f)
	if !ok {
		return fmt.Errorf("%w: unknown family %q", schema.ErrConfig, f)
	}
	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if seen[def.ID] {
			return fmt.Errorf("%w: duplicate indicator %q", schema.ErrConfig, def.ID)
		}
		seen[def.ID] = true
		if !profile.HasPillar(def.Pillar) {
			return fmt.Errorf("%w: indicator %s maps to pillar %q outside family %s", schema.ErrConfig, def.ID, def.Pillar, f)
		}
		if len(def.Thresholds) == 0 {
			return fmt.Errorf("%w: indicator %s has no thresholds", schema.ErrConfig, def.ID)
		}
		from := make(map[time.Time]bool, len(def.Thresholds))
		for _, dt := range def.Thresholds {
			if from[dt.From] {
				return fmt.Errorf("%w: indicator %s has two threshold sets from %s", schema.ErrConfig, def.ID, dt.From.Format(time.DateOnly))
			}
			from[dt.From] = true
			if err := dt.Thresholds.Validate(); err != nil {
				return fmt.Errorf("indicator %s: %w", def.ID, err)
			}
		}
	}
	return nil
}
