package schema

import "time"

func oneSided(dir Direction, ample, thin, breach float64) []DatedThresholds {
	return []DatedThresholds{{Thresholds: ThresholdSet{Direction: dir, Ample: ample, Thin: thin, Breach: breach}}}
}

func band(breach, thin, ample, upperAmple, upperThin, upperBreach float64) ThresholdSet {
	return ThresholdSet{
		Direction:   TwoSided,
		Breach:      breach,
		Thin:        thin,
		Ample:       ample,
		UpperAmple:  upperAmple,
		UpperThin:   upperThin,
		UpperBreach: upperBreach,
	}
}

var defaultIndicators = map[Family][]IndicatorDefinition{
	MACFamily: {
		{ID: "funding_spread_bps", Pillar: LiquidityPillar, Description: "Unsecured-secured funding spread", Thresholds: oneSided(LowerIsBetter, 10, 30, 75)},
		{ID: "cp_bill_spread_bps", Pillar: LiquidityPillar, Description: "Commercial paper over bills", Thresholds: oneSided(LowerIsBetter, 20, 60, 150)},
		{ID: "ig_oas_bps", Pillar: ValuationPillar, Description: "Investment-grade option-adjusted spread", Thresholds: []DatedThresholds{{Thresholds: band(60, 80, 100, 180, 250, 400)}}},
		{ID: "hy_oas_bps", Pillar: ValuationPillar, Description: "High-yield option-adjusted spread", Thresholds: []DatedThresholds{{Thresholds: band(250, 300, 350, 550, 700, 1000)}}},
		{ID: "spec_net_pct", Pillar: PositioningPillar, Description: "Speculative net positioning percentile", Thresholds: []DatedThresholds{{Thresholds: band(5, 15, 30, 70, 85, 95)}}},
		{ID: "basis_trade_gdp_pct", Pillar: PositioningPillar, Description: "Leveraged basis exposure to GDP", Thresholds: oneSided(LowerIsBetter, 0.5, 1.5, 3.0)},
		{ID: "vix", Pillar: VolatilityPillar, Description: "Equity implied volatility (realized before 1990)", Thresholds: []DatedThresholds{
			{Thresholds: band(7, 9, 11, 18, 25, 35)},
			{From: date(1990, time.January, 1), Thresholds: band(9, 11, 14, 20, 28, 40)},
		}},
		{ID: "move_index", Pillar: VolatilityPillar, Description: "Rates implied volatility", Thresholds: []DatedThresholds{{Thresholds: band(50, 60, 70, 110, 140, 180)}}},
		{ID: "policy_room_bps", Pillar: PolicyPillar, Description: "Policy rate distance from the effective lower bound", Thresholds: oneSided(HigherIsBetter, 300, 100, 25)},
		{ID: "debt_gdp_pct", Pillar: PolicyPillar, Description: "Sovereign debt to GDP", Thresholds: oneSided(LowerIsBetter, 60, 90, 120)},
		{ID: "xccy_basis_abs_bps", Pillar: ContagionPillar, Description: "Absolute cross-currency basis", Thresholds: oneSided(LowerIsBetter, 15, 35, 75)},
		{ID: "em_spread_bps", Pillar: ContagionPillar, Description: "Emerging-market sovereign spread", Thresholds: oneSided(LowerIsBetter, 300, 500, 800)},
	},
	GRRIFamily: {
		{ID: "rule_of_law_pct", Pillar: GovernancePillar, Description: "Rule-of-law percentile", Thresholds: oneSided(HigherIsBetter, 75, 50, 25)},
		{ID: "gdp_growth_pct", Pillar: EconomicPillar, Description: "Real GDP growth", Thresholds: []DatedThresholds{{Thresholds: band(-4, -1, 1.5, 5, 8, 12)}}},
		{ID: "reserves_months", Pillar: EconomicPillar, Description: "Import cover of reserves", Thresholds: oneSided(HigherIsBetter, 6, 3, 1)},
		{ID: "unemployment_pct", Pillar: SocialPillar, Description: "Unemployment rate", Thresholds: oneSided(LowerIsBetter, 5, 9, 15)},
		{ID: "climate_exposure_idx", Pillar: EnvironmentalPillar, Description: "Physical climate exposure index", Thresholds: oneSided(LowerIsBetter, 0.3, 0.5, 0.8)},
	},
}

// GetDefaultIndicators returns the built-in indicator definitions of a family.
func GetDefaultIndicators(f Family) []IndicatorDefinition {
	defs := defaultIndicators[f]
	out := make([]IndicatorDefinition, len(defs))
	copy(out, defs)
	return out
}
