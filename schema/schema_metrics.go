package schema

// FamilyDefinition describes a family for the metrics command.
type FamilyDefinition struct {
	Profile    FamilyProfile         `json:"profile"`
	Weights    map[PillarID]float64  `json:"weights"`
	Indicators []IndicatorDefinition `json:"indicators"`
	Formula    string                `json:"formula"`
}

// MetricsRenderModel is everything the metrics command prints.
type MetricsRenderModel struct {
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Families    []FamilyDefinition `json:"families"`
	Penalties   PenaltyTable       `json:"penalties"`
	Bands       []RegimeBand       `json:"bands"`
	Eras        []Era              `json:"eras"`
	TierNoise   map[Tier]float64   `json:"tier_noise"`
}

// TierNoiseTable returns a copy of the bootstrap noise table.
func TierNoiseTable() map[Tier]float64 {
	return cloneMap(tierNoise)
}
