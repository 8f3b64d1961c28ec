package schema

// Family identifies an indicator family built on the composite pattern.
type Family string

// PillarID identifies one scored dimension of a family.
type PillarID string

// Tier is the data-quality tier attached to an observation.
type Tier string

// Direction says how an indicator's raw value maps onto capacity.
type Direction string

// RegimeLabel is the qualitative label derived from a composite score.
type RegimeLabel string

// RegimeState is the latent state of the regime detector.
type RegimeState string

// RegimeMethod records which detector produced a fragility reading.
type RegimeMethod string

// Posture is the advisory stance from the decision table.
type Posture string

// PenaltyModel selects how the breach penalty table is produced.
type PenaltyModel string

// EstimatorKind names a weight-optimizer regressor.
type EstimatorKind string

// ReportFlag marks a report whose result is partial or used a fallback.
type ReportFlag string

// OutputMode represents the output format.
type OutputMode string

// DatabaseBackend represents the type of database backend for storage.
type DatabaseBackend string

// Families.
const (
	MACFamily  Family = "mac"
	GRRIFamily Family = "grri"
)

// MAC pillars.
const (
	LiquidityPillar   PillarID = "liquidity"
	ValuationPillar   PillarID = "valuation"
	PositioningPillar PillarID = "positioning"
	VolatilityPillar  PillarID = "volatility"
	PolicyPillar      PillarID = "policy"
	ContagionPillar   PillarID = "contagion"
)

// GRRI pillars.
const (
	GovernancePillar    PillarID = "governance"
	EconomicPillar      PillarID = "economic"
	SocialPillar        PillarID = "social"
	EnvironmentalPillar PillarID = "environmental"
)

// Data-quality tiers, finest first.
const (
	NativeTier          Tier = "native"
	ComputedTier        Tier = "computed"
	ProxyModernTier     Tier = "proxy_modern"
	ProxyHistoricalTier Tier = "proxy_historical"
	EstimatedTier       Tier = "estimated"
)

// Scoring directions.
const (
	HigherIsBetter Direction = "higher_is_better"
	LowerIsBetter  Direction = "lower_is_better"
	TwoSided       Direction = "two_sided"
)

// Regime labels, from most to least capacity.
const (
	AmpleLabel         RegimeLabel = "ample"
	ComfortableLabel   RegimeLabel = "comfortable"
	ThinLabel          RegimeLabel = "thin"
	StretchedLabel     RegimeLabel = "stretched"
	RegimeBreakLabel   RegimeLabel = "regime_break"
	IndeterminateLabel RegimeLabel = "indeterminate"
)

// Latent regime states.
const (
	NormalState  RegimeState = "normal"
	FragileState RegimeState = "fragile"
)

// Regime detection methods.
const (
	HMMMethod       RegimeMethod = "hmm"
	ThresholdMethod RegimeMethod = "threshold"
)

// Advisory postures, from least to most defensive.
const (
	NormalPosture    Posture = "normal"
	CautiousPosture  Posture = "cautious"
	DefensivePosture Posture = "defensive"
	CrisisPosture    Posture = "crisis"
)

// Breach penalty models.
const (
	StatedPenalty       PenaltyModel = "stated"
	IndependencePenalty PenaltyModel = "independence"
	DirichletPenalty    PenaltyModel = "dirichlet"
)

// Weight optimizer estimators.
const (
	GBMEstimator    EstimatorKind = "gbm"
	RidgeEstimator  EstimatorKind = "ridge"
	StatedEstimator EstimatorKind = "stated"
)

// Report flags.
const (
	FlagPillarExcluded        ReportFlag = "pillar_excluded"
	FlagIndeterminate         ReportFlag = "indeterminate"
	FlagEstimatorFallback     ReportFlag = "estimator_fallback"
	FlagEqualWeightFallback   ReportFlag = "equal_weight_fallback"
	FlagRegimeFallback        ReportFlag = "regime_fallback"
	FlagRefitRetained         ReportFlag = "refit_retained"
	FlagInteractionWeights    ReportFlag = "interaction_weights"
	FlagPositioningHeuristic  ReportFlag = "positioning_breach_heuristic"
	FlagConformalUnavailable  ReportFlag = "conformal_unavailable"
	FlagBootstrapUnavailable  ReportFlag = "bootstrap_unavailable"
	FlagCalibrationPooledOnly ReportFlag = "calibration_pooled"
)

// Output modes.
const (
	TextOut    OutputMode = "text"
	CSVOut     OutputMode = "csv"
	JSONOut    OutputMode = "json"
	ParquetOut OutputMode = "parquet"
	XLSXOut    OutputMode = "xlsx"
)

// Storage backends.
const (
	SQLiteBackend     DatabaseBackend = "sqlite"
	MySQLBackend      DatabaseBackend = "mysql"
	PostgreSQLBackend DatabaseBackend = "postgresql"
	NoneBackend       DatabaseBackend = "none"
)

// ValidFamilies is the set of supported indicator families.
var ValidFamilies = map[Family]bool{
	MACFamily:  true,
	GRRIFamily: true,
}

// ValidTiers is the set of data-quality tiers.
var ValidTiers = map[Tier]bool{
	NativeTier:          true,
	ComputedTier:        true,
	ProxyModernTier:     true,
	ProxyHistoricalTier: true,
	EstimatedTier:       true,
}

// ValidDirections is the set of scoring directions.
var ValidDirections = map[Direction]bool{
	HigherIsBetter: true,
	LowerIsBetter:  true,
	TwoSided:       true,
}

// ValidPenaltyModels is the set of penalty table models.
var ValidPenaltyModels = map[PenaltyModel]bool{
	StatedPenalty:       true,
	IndependencePenalty: true,
	DirichletPenalty:    true,
}

// ValidEstimators is the set of estimators a user may request.
var ValidEstimators = map[EstimatorKind]bool{
	GBMEstimator:   true,
	RidgeEstimator: true,
}

// ValidOutputModes is the set of output formats.
var ValidOutputModes = map[OutputMode]bool{
	TextOut:    true,
	CSVOut:     true,
	JSONOut:    true,
	ParquetOut: true,
	XLSXOut:    true,
}

// ValidDatabaseBackends is the set of storage backends.
var ValidDatabaseBackends = map[DatabaseBackend]bool{
	SQLiteBackend:     true,
	MySQLBackend:      true,
	PostgreSQLBackend: true,
	NoneBackend:       true,
}

// tierRank orders tiers from finest (0) to coarsest.
var tierRank = map[Tier]int{
	NativeTier:          0,
	ComputedTier:        1,
	ProxyModernTier:     2,
	ProxyHistoricalTier: 3,
	EstimatedTier:       4,
}

// Rank returns the tier's position, finest first. Unknown tiers rank as estimated.
func (t Tier) Rank() int {
	if r, ok := tierRank[t]; ok {
		return r
	}
	return tierRank[EstimatedTier]
}

// WorstTier returns the coarser of two tiers.
func WorstTier(a, b Tier) Tier {
	if a == "" {
		return b
	}
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// postureOrder lists postures from least to most defensive.
var postureOrder = []Posture{NormalPosture, CautiousPosture, DefensivePosture, CrisisPosture}

// MoreDefensive returns the posture one step more defensive, saturating at crisis.
func (p Posture) MoreDefensive() Posture {
	for i, q := range postureOrder {
		if q == p && i+1 < len(postureOrder) {
			return postureOrder[i+1]
		}
	}
	return CrisisPosture
}

// AtLeast returns the more defensive of p and floor.
func (p Posture) AtLeast(floor Posture) Posture {
	pi, fi := 0, 0
	for i, q := range postureOrder {
		if q == p {
			pi = i
		}
		if q == floor {
			fi = i
		}
	}
	if fi > pi {
		return floor
	}
	return p
}
