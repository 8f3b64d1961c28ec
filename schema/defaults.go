package schema

import (
	"maps"
	"time"
)

// Engine defaults.
const (
	DefaultStressThreshold  = 0.30
	DefaultPenaltyCap       = 0.05
	DefaultPenaltyScale     = 0.005
	DefaultAlpha            = 0.78
	DefaultAlphaMin         = 0.5
	DefaultAlphaMax         = 1.5
	DefaultFragilityCutoff  = 0.40
	DefaultFragileThreshold = 0.5
	MinPillarsForComposite  = 2
)

// FamilyProfile declares the pillars and fitting structure of a family.
type FamilyProfile struct {
	Family         Family        `json:"family"`
	Description    string        `json:"description"`
	Pillars        []PillarID    `json:"pillars"`
	Interactions   []Interaction `json:"interactions"`
	StressAnchor   PillarID      `json:"stress_anchor"`
	StressPartners []PillarID    `json:"stress_partners"`
	DefaultAlpha   float64       `json:"default_alpha"`

	// Weights is the stated default weight map; nil means equal weights.
	Weights map[PillarID]float64 `json:"-"`
}

var profiles = map[Family]FamilyProfile{
	MACFamily: {
		Family:      MACFamily,
		Description: "Market absorption capacity: systemic shock-absorption of funding, pricing and positioning",
		Pillars: []PillarID{
			LiquidityPillar, ValuationPillar, PositioningPillar,
			VolatilityPillar, PolicyPillar, ContagionPillar,
		},
		Interactions: []Interaction{
			{A: PositioningPillar, B: VolatilityPillar},
			{A: PositioningPillar, B: LiquidityPillar},
			{A: LiquidityPillar, B: ContagionPillar},
			{A: VolatilityPillar, B: ContagionPillar},
		},
		StressAnchor:   PositioningPillar,
		StressPartners: []PillarID{VolatilityPillar, LiquidityPillar},
		DefaultAlpha:   DefaultAlpha,
		Weights: map[PillarID]float64{
			LiquidityPillar:   0.05,
			ValuationPillar:   0.35,
			PositioningPillar: 0.20,
			VolatilityPillar:  0.05,
			PolicyPillar:      0.30,
			ContagionPillar:   0.05,
		},
	},
	GRRIFamily: {
		Family:      GRRIFamily,
		Description: "Country resilience: institutional, economic, social and environmental buffers",
		Pillars: []PillarID{
			GovernancePillar, EconomicPillar, SocialPillar, EnvironmentalPillar,
		},
		Interactions: []Interaction{
			{A: EconomicPillar, B: GovernancePillar},
			{A: EconomicPillar, B: SocialPillar},
		},
		StressAnchor:   EconomicPillar,
		StressPartners: []PillarID{GovernancePillar, SocialPillar},
		DefaultAlpha:   1.0,
	},
}

// GetProfile returns the profile of a family.
func GetProfile(f Family) (FamilyProfile, bool) {
	p, ok := profiles[f]
	return p, ok
}

// HasPillar reports whether the profile declares pillar.
func (p FamilyProfile) HasPillar(pillar PillarID) bool {
	for _, q := range p.Pillars {
		if q == pillar {
			return true
		}
	}
	return false
}

// EqualWeights spreads weight evenly over pillars.
func EqualWeights(pillars []PillarID) map[PillarID]float64 {
	out := make(map[PillarID]float64, len(pillars))
	if len(pillars) == 0 {
		return out
	}
	w := 1.0 / float64(len(pillars))
	for _, p := range pillars {
		out[p] = w
	}
	return out
}

// GetDefaultWeights returns the default weight map for a family.
func GetDefaultWeights(f Family) map[PillarID]float64 {
	p, ok := profiles[f]
	if !ok {
		return map[PillarID]float64{}
	}
	if p.Weights != nil {
		return maps.Clone(p.Weights)
	}
	return EqualWeights(p.Pillars)
}

// DefaultWeightVector returns the default weights wrapped as a vector.
func DefaultWeightVector(f Family) WeightVector {
	return WeightVector{
		Family:        f,
		Pillars:   GetDefaultWeights(f),
		Estimator: StatedEstimator,
	}
}

// DefaultPenaltyTable returns the stated breach penalty table.
func DefaultPenaltyTable() PenaltyTable {
	return PenaltyTable{
		Model:           StatedPenalty,
		Penalties:       []float64{0, 0, 0.005, 0.012, 0.02, 0.03, 0.04},
		Cap:             DefaultPenaltyCap,
		StressThreshold: DefaultStressThreshold,
	}
}

// DefaultEras returns the calibration eras.
func DefaultEras() []Era {
	return []Era{
		{Name: "early", End: date(1945, time.January, 1)},
		{Name: "bretton_woods", Start: date(1945, time.January, 1), End: date(1971, time.August, 15)},
		{Name: "floating", Start: date(1971, time.August, 15), End: date(2008, time.January, 1)},
		{Name: "post_gfc", Start: date(2008, time.January, 1)},
	}
}

// DefaultCalibration returns the pooled default calibration for a family.
func DefaultCalibration(f Family) CalibrationSet {
	alpha := DefaultAlpha
	if p, ok := profiles[f]; ok {
		alpha = p.DefaultAlpha
	}
	return CalibrationSet{Default: alpha, Min: DefaultAlphaMin, Max: DefaultAlphaMax}
}

// DefaultSnapshot returns the scoring context used before any refit.
func DefaultSnapshot(f Family) Snapshot {
	return Snapshot{
		Family:      f,
		Weights:     DefaultWeightVector(f),
		Penalties:   DefaultPenaltyTable(),
		Calibration: DefaultCalibration(f),
		Eras:        DefaultEras(),
	}
}

// regimeBands maps inclusive lower bounds to labels, highest first.
var regimeBands = []struct {
	floor float64
	label RegimeLabel
}{
	{0.65, AmpleLabel},
	{0.50, ComfortableLabel},
	{0.35, ThinLabel},
	{0.20, StretchedLabel},
}

// LabelFor maps a composite score to its regime label.
func LabelFor(score float64) RegimeLabel {
	for _, b := range regimeBands {
		if score >= b.floor {
			return b.label
		}
	}
	return RegimeBreakLabel
}

// RegimeBand describes one row of the label table.
type RegimeBand struct {
	Label RegimeLabel `json:"label"`
	Lower float64     `json:"lower"`
	Upper float64     `json:"upper"`
}

// RegimeBands returns the label table, most capacity first.
func RegimeBands() []RegimeBand {
	out := make([]RegimeBand, 0, len(regimeBands)+1)
	upper := 1.0
	for _, b := range regimeBands {
		out = append(out, RegimeBand{Label: b.label, Lower: b.floor, Upper: upper})
		upper = b.floor
	}
	return append(out, RegimeBand{Label: RegimeBreakLabel, Lower: 0, Upper: upper})
}

// tierNoise is the per-tier standard deviation used by the bootstrap.
var tierNoise = map[Tier]float64{
	NativeTier:          0.01,
	ComputedTier:        0.03,
	ProxyModernTier:     0.05,
	ProxyHistoricalTier: 0.10,
	EstimatedTier:       0.15,
}

// TierNoise returns the noise standard deviation for a tier.
func TierNoise(t Tier) float64 {
	if s, ok := tierNoise[t]; ok {
		return s
	}
	return tierNoise[EstimatedTier]
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
