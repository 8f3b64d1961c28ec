package contract

import (
	"cmp"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
)

// Default values for configuration.
const (
	DefaultPrecision         = 3
	DefaultStepDays          = 7
	DefaultRefitEvery        = 52
	DefaultLeadTimeDays      = 90
	DefaultMaxStaleness      = "31 days"
	DefaultDecisionThreshold = 0.35
	DefaultReplicates        = 1000
	DefaultSeed              = 42
	DefaultRunLimit          = 20
)

// DefaultWorkers is the default number of concurrent workers to use.
var DefaultWorkers = runtime.GOMAXPROCS(0)

// ProfileConfig holds profiling settings.
type ProfileConfig struct {
	Enabled bool
	Prefix  string
}

// Config holds the runtime configuration for every command.
// This struct is the "final, validated" config.
type Config struct {
	Family    schema.Family
	StartTime time.Time // zero means the first observation
	EndTime   time.Time // zero means the last observation
	AsOf      time.Time // zero means the last observation

	ObservationsPath string
	IndicatorsPath   string // empty means the family's built-in definitions
	ScenariosPath    string

	Workers    int
	Seed       uint64
	Output     schema.OutputMode
	OutputFile string
	Precision  int
	Width      int // Terminal width override (0 = auto-detect)
	UseColors  bool
	LogLevel   zerolog.Level
	RunLimit   int

	MetricsFile string // Prometheus textfile target, empty disables

	// Weights is the weight vector in force before any fit.
	Weights       map[schema.PillarID]float64
	CustomWeights bool

	Penalties            schema.PenaltyTable
	PenaltyModel         schema.PenaltyModel
	Calibration          schema.CalibrationSet
	PositioningHeuristic bool

	Estimator  schema.EstimatorKind
	Validate   bool
	Bootstrap  bool
	Replicates int
	Conformal  bool

	StepDays          int
	RefitEvery        int
	LeadTimeDays      int
	MaxStaleness      time.Duration
	DecisionThreshold float64

	CacheBackend   schema.DatabaseBackend
	CacheDBConnect string // Please use env var as this is plaintext

	RunBackend   schema.DatabaseBackend
	RunDBConnect string // Please use env var as this is plaintext
}

// ConfigRawInput holds the raw inputs from all sources (flags, env, config file).
// Viper unmarshals into this struct.
type ConfigRawInput struct {
	// --- Fields from rootCmd.PersistentFlags() ---
	Family         string `mapstructure:"family"`
	Observations   string `mapstructure:"observations"`
	Indicators     string `mapstructure:"indicators"`
	Scenarios      string `mapstructure:"scenarios"`
	Workers        int    `mapstructure:"workers"`
	Seed           uint64 `mapstructure:"seed"`
	Output         string `mapstructure:"output"`
	OutputFile     string `mapstructure:"output-file"`
	Precision      int    `mapstructure:"precision"`
	Width          int    `mapstructure:"width"`
	Color          string `mapstructure:"color"`
	LogLevel       string `mapstructure:"log-level"`
	MetricsFile    string `mapstructure:"metrics-file"`
	CacheBackend   string `mapstructure:"cache-backend"`
	CacheDBConnect string `mapstructure:"cache-db-connect"`
	RunBackend     string `mapstructure:"run-backend"`
	RunDBConnect   string `mapstructure:"run-db-connect"`

	// --- Date range and scoring date ---
	Start string `mapstructure:"start"`
	End   string `mapstructure:"end"`
	AsOf  string `mapstructure:"as-of"`

	// --- Composite settings ---
	PenaltiesStr         string   `mapstructure:"penalties"`
	PenaltyModel         string   `mapstructure:"penalty-model"`
	Alpha                *float64 `mapstructure:"alpha"`
	AlphaMin             *float64 `mapstructure:"alpha-min"`
	AlphaMax             *float64 `mapstructure:"alpha-max"`
	PositioningHeuristic bool     `mapstructure:"positioning-heuristic"`

	// --- Fit and uncertainty settings ---
	Estimator  string `mapstructure:"estimator"`
	Validate   bool   `mapstructure:"validate"`
	Bootstrap  bool   `mapstructure:"bootstrap"`
	Replicates int    `mapstructure:"replicates"`
	Conformal  bool   `mapstructure:"conformal"`

	// --- Fields from backtestCmd.Flags() ---
	StepDays          int     `mapstructure:"step-days"`
	RefitEvery        int     `mapstructure:"refit-every"`
	LeadTimeDays      int     `mapstructure:"lead-time-days"`
	MaxStaleness      string  `mapstructure:"max-staleness"`
	DecisionThreshold float64 `mapstructure:"decision-threshold"`

	// --- Fields from runsListCmd.Flags() ---
	Limit int `mapstructure:"limit"`

	// --- Custom weights from config file, keyed by pillar ---
	Weights map[string]float64 `mapstructure:"weights"`
}

// Clone returns a deep copy of the Config struct.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Weights != nil {
		clone.Weights = make(map[schema.PillarID]float64, len(c.Weights))
		maps.Copy(clone.Weights, c.Weights)
	}
	clone.Penalties.Penalties = slices.Clone(c.Penalties.Penalties)
	clone.Calibration = c.Calibration.Clone()
	return &clone
}

// Snapshot returns the scoring context configured before any fit.
func (c *Config) Snapshot() schema.Snapshot {
	snap := schema.DefaultSnapshot(c.Family)
	if c.Weights != nil {
		snap.Weights.Pillars = maps.Clone(c.Weights)
	}
	if len(c.Penalties.Penalties) > 0 {
		snap.Penalties = c.Penalties
	}
	if c.Calibration.Max > 0 {
		snap.Calibration = c.Calibration.Clone()
	}
	snap.PositioningHeuristic = c.PositioningHeuristic
	return snap
}

// ProcessAndValidate performs all complex parsing and validation on the raw inputs
// and updates the final Config struct.
func ProcessAndValidate(cfg *Config, input *ConfigRawInput) error {
	if err := validateSimpleInputs(cfg, input); err != nil {
		return err
	}
	if err := processFamily(cfg, input); err != nil {
		return err
	}
	if err := processTimeRange(cfg, input, time.Now()); err != nil {
		return err
	}
	if err := processCustomWeights(cfg, input); err != nil {
		return err
	}
	if err := processPenalties(cfg, input); err != nil {
		return err
	}
	if err := processCalibration(cfg, input); err != nil {
		return err
	}
	if err := processBacktest(cfg, input); err != nil {
		return err
	}
	return nil
}

// ValidateDatabaseConnectionString validates the format of database connection strings
// for MySQL and PostgreSQL backends.
func ValidateDatabaseConnectionString(backend schema.DatabaseBackend, connStr string) error {
	switch backend {
	case schema.SQLiteBackend, schema.NoneBackend:
		return nil
	case schema.MySQLBackend:
		if connStr == "" {
			return fmt.Errorf("%w: a connection string is required when using %s backend", schema.ErrConfig, backend)
		}
		if !strings.Contains(connStr, "@tcp(") {
			return fmt.Errorf("%w: MySQL connection string must contain '@tcp(' for host:port specification", schema.ErrConfig)
		}
		if !strings.Contains(connStr, "/") {
			return fmt.Errorf("%w: MySQL connection string must contain '/' followed by database name", schema.ErrConfig)
		}
	case schema.PostgreSQLBackend:
		if connStr == "" {
			return fmt.Errorf("%w: a connection string is required when using %s backend", schema.ErrConfig, backend)
		}
		if !strings.Contains(connStr, "host=") {
			return fmt.Errorf("%w: PostgreSQL connection string must contain 'host=' parameter", schema.ErrConfig)
		}
		if !strings.Contains(connStr, "dbname=") {
			return fmt.Errorf("%w: PostgreSQL connection string must contain 'dbname=' parameter", schema.ErrConfig)
		}
	}
	return nil
}

// validateBackendConfigs validates fit cache and run store backend configurations.
func validateBackendConfigs(cfg *Config, input *ConfigRawInput) error {
	// --- Cache Backend Validation ---
	cfg.CacheBackend = schema.DatabaseBackend(strings.ToLower(input.CacheBackend))
	if !schema.ValidDatabaseBackends[cfg.CacheBackend] {
		return fmt.Errorf("%w: invalid cache backend '%s'. must be sqlite, mysql, postgresql, none", schema.ErrConfig, input.CacheBackend)
	}
	cfg.CacheDBConnect = input.CacheDBConnect
	if err := ValidateDatabaseConnectionString(cfg.CacheBackend, cfg.CacheDBConnect); err != nil {
		return err
	}

	// --- Run Backend Validation ---
	cfg.RunBackend = schema.DatabaseBackend(strings.ToLower(input.RunBackend))
	if cfg.RunBackend == "" {
		cfg.RunBackend = schema.NoneBackend
		return nil
	}
	if !schema.ValidDatabaseBackends[cfg.RunBackend] {
		return fmt.Errorf("%w: invalid run backend '%s'. must be sqlite, mysql, postgresql, none", schema.ErrConfig, input.RunBackend)
	}
	cfg.RunDBConnect = input.RunDBConnect
	if err := ValidateDatabaseConnectionString(cfg.RunBackend, cfg.RunDBConnect); err != nil {
		return err
	}

	// SQLite stores must resolve to different files
	if cfg.CacheBackend == schema.SQLiteBackend && cfg.RunBackend == schema.SQLiteBackend {
		cachePath := cfg.CacheDBConnect
		if cachePath == "" {
			cachePath = GetCacheDBFilePath()
		}
		runPath := cfg.RunDBConnect
		if runPath == "" {
			runPath = GetRunDBFilePath()
		}
		if cachePath == runPath {
			return fmt.Errorf("%w: cache and run storage must use different SQLite database files. Both resolve to %q", schema.ErrConfig, cachePath)
		}
	}
	return nil
}

// validateSimpleInputs processes and validates all scalar fields.
func validateSimpleInputs(cfg *Config, input *ConfigRawInput) error {
	// --- 0. Transfer simple non-validated fields from input -> cfg ---
	cfg.ObservationsPath = strings.TrimSpace(input.Observations)
	cfg.IndicatorsPath = strings.TrimSpace(input.Indicators)
	cfg.ScenariosPath = strings.TrimSpace(input.Scenarios)
	cfg.OutputFile = input.OutputFile
	cfg.Width = input.Width
	cfg.Seed = input.Seed
	cfg.MetricsFile = input.MetricsFile
	cfg.PositioningHeuristic = input.PositioningHeuristic
	cfg.Validate = input.Validate
	cfg.Bootstrap = input.Bootstrap
	cfg.Conformal = input.Conformal

	colors, err := ParseBoolString(input.Color)
	if err != nil {
		return fmt.Errorf("%w: invalid --color value: %w", schema.ErrConfig, err)
	}
	cfg.UseColors = colors

	// --- 1. Log level ---
	level := zerolog.InfoLevel
	if input.LogLevel != "" {
		if level, err = zerolog.ParseLevel(strings.ToLower(input.LogLevel)); err != nil {
			return fmt.Errorf("%w: invalid log level '%s'", schema.ErrConfig, input.LogLevel)
		}
	}
	cfg.LogLevel = level

	// --- 2. Workers Validation ---
	if input.Workers <= 0 {
		return fmt.Errorf("%w: workers must be greater than 0 (received %d)", schema.ErrConfig, input.Workers)
	}
	cfg.Workers = input.Workers

	// --- 3. Precision and Output Validation ---
	if input.Precision < 1 || input.Precision > 6 {
		return fmt.Errorf("%w: precision must be between 1 and 6 (received %d)", schema.ErrConfig, input.Precision)
	}
	cfg.Precision = input.Precision

	cfg.Output = schema.OutputMode(strings.ToLower(input.Output))
	if !schema.ValidOutputModes[cfg.Output] {
		return fmt.Errorf("%w: invalid output format '%s'. must be text, csv, json, parquet, xlsx", schema.ErrConfig, input.Output)
	}

	// --- 4. Estimator and replicates ---
	cfg.Estimator = schema.GBMEstimator
	if input.Estimator != "" {
		cfg.Estimator = schema.EstimatorKind(strings.ToLower(input.Estimator))
	}
	if !schema.ValidEstimators[cfg.Estimator] {
		return fmt.Errorf("%w: invalid estimator '%s'. must be gbm or ridge", schema.ErrConfig, input.Estimator)
	}
	cfg.Replicates = input.Replicates
	if cfg.Replicates == 0 {
		cfg.Replicates = DefaultReplicates
	}
	if cfg.Replicates < 0 {
		return fmt.Errorf("%w: replicates must be positive (received %d)", schema.ErrConfig, input.Replicates)
	}

	cfg.RunLimit = input.Limit
	if cfg.RunLimit <= 0 {
		cfg.RunLimit = DefaultRunLimit
	}

	// --- 5. Backend Validation ---
	return validateBackendConfigs(cfg, input)
}

// processFamily resolves the indicator family.
func processFamily(cfg *Config, input *ConfigRawInput) error {
	cfg.Family = schema.MACFamily
	if input.Family != "" {
		cfg.Family = schema.Family(strings.ToLower(input.Family))
	}
	if !schema.ValidFamilies[cfg.Family] {
		return fmt.Errorf("%w: invalid family '%s'. must be mac or grri", schema.ErrConfig, input.Family)
	}
	return nil
}

// processTimeRange parses the backtest range and the scoring date.
func processTimeRange(cfg *Config, input *ConfigRawInput, now time.Time) error {
	parse := func(name, s string) (time.Time, error) {
		if strings.TrimSpace(s) == "" {
			return time.Time{}, nil
		}
		t, err := ParseDate(s, now)
		if err != nil {
			return time.Time{}, fmt.Errorf("%w: invalid --%s: %w", schema.ErrConfig, name, err)
		}
		return t, nil
	}

	var err error
	if cfg.StartTime, err = parse("start", input.Start); err != nil {
		return err
	}
	if cfg.EndTime, err = parse("end", input.End); err != nil {
		return err
	}
	if cfg.AsOf, err = parse("as-of", input.AsOf); err != nil {
		return err
	}

	if !cfg.StartTime.IsZero() && !cfg.EndTime.IsZero() && !cfg.StartTime.Before(cfg.EndTime) {
		return fmt.Errorf("%w: start (%s) must be before end (%s)", schema.ErrConfig, cfg.StartTime.Format(time.DateOnly), cfg.EndTime.Format(time.DateOnly))
	}
	return nil
}

// ProcessWeightsRawInput converts pillar-keyed weights into a weight map for
// a family. If validateSum is true, the weights must sum to 1.0 within 0.001.
func ProcessWeightsRawInput(f schema.Family, weights map[string]float64, validateSum bool) (map[schema.PillarID]float64, error) {
	if len(weights) == 0 {
		return nil, nil
	}
	profile, ok := schema.GetProfile(f)
	if !ok {
		return nil, fmt.Errorf("%w: unknown family %q", schema.ErrConfig, f)
	}

	result := make(map[schema.PillarID]float64, len(weights))
	sum := 0.0
	keys := slices.Sorted(maps.Keys(weights))
	for _, k := range keys {
		pillar := schema.PillarID(strings.ToLower(strings.TrimSpace(k)))
		if !profile.HasPillar(pillar) {
			return nil, fmt.Errorf("%w: pillar %q is not part of family %s", schema.ErrConfig, k, f)
		}
		w := weights[k]
		if w < 0 {
			return nil, fmt.Errorf("%w: weight for pillar %s must be non-negative, got %g", schema.ErrConfig, pillar, w)
		}
		result[pillar] = w
		sum += w
	}
	for _, p := range profile.Pillars {
		if _, ok := result[p]; !ok {
			result[p] = 0
		}
	}
	if validateSum && (sum < 0.999 || sum > 1.001) {
		return nil, fmt.Errorf("%w: custom weights for family %s must sum to 1.0, got %.3f", schema.ErrConfig, f, sum)
	}
	return result, nil
}

// processCustomWeights resolves the starting weight vector: family defaults,
// replaced wholesale by a custom map when the config file has one.
func processCustomWeights(cfg *Config, input *ConfigRawInput) error {
	custom, err := ProcessWeightsRawInput(cfg.Family, input.Weights, true)
	if err != nil {
		return err
	}
	if custom != nil {
		cfg.Weights = custom
		cfg.CustomWeights = true
		return nil
	}
	cfg.Weights = schema.GetDefaultWeights(cfg.Family)
	cfg.CustomWeights = false
	return nil
}

// processPenalties resolves the penalty model and the stated table.
func processPenalties(cfg *Config, input *ConfigRawInput) error {
	cfg.PenaltyModel = schema.StatedPenalty
	if input.PenaltyModel != "" {
		cfg.PenaltyModel = schema.PenaltyModel(strings.ToLower(input.PenaltyModel))
	}
	if !schema.ValidPenaltyModels[cfg.PenaltyModel] {
		return fmt.Errorf("%w: invalid penalty model '%s'. must be stated, independence, dirichlet", schema.ErrConfig, input.PenaltyModel)
	}

	table := schema.DefaultPenaltyTable()
	if input.PenaltiesStr != "" {
		profile, _ := schema.GetProfile(cfg.Family)
		parsed, err := ParsePenaltiesString(input.PenaltiesStr, table.Cap, len(profile.Pillars))
		if err != nil {
			return fmt.Errorf("%w: invalid --penalties: %w", schema.ErrConfig, err)
		}
		table.Penalties = parsed
	}
	if err := table.Validate(); err != nil {
		return err
	}
	cfg.Penalties = table
	return nil
}

// processCalibration resolves α and its bounds.
func processCalibration(cfg *Config, input *ConfigRawInput) error {
	cal := schema.DefaultCalibration(cfg.Family)
	if input.AlphaMin != nil {
		cal.Min = *input.AlphaMin
	}
	if input.AlphaMax != nil {
		cal.Max = *input.AlphaMax
	}
	if input.Alpha != nil {
		cal.Default = *input.Alpha
	}
	if cal.Min <= 0 || cal.Max < cal.Min {
		return fmt.Errorf("%w: calibration bounds [%g, %g] are invalid", schema.ErrConfig, cal.Min, cal.Max)
	}
	if cal.Default < cal.Min || cal.Default > cal.Max {
		return fmt.Errorf("%w: alpha %g is outside [%g, %g]", schema.ErrConfig, cal.Default, cal.Min, cal.Max)
	}
	cfg.Calibration = cal
	return nil
}

// processBacktest validates the walk-forward parameters.
func processBacktest(cfg *Config, input *ConfigRawInput) error {
	cfg.StepDays = cmp.Or(input.StepDays, DefaultStepDays)
	cfg.RefitEvery = cmp.Or(input.RefitEvery, DefaultRefitEvery)
	cfg.LeadTimeDays = input.LeadTimeDays
	if cfg.StepDays < 0 || cfg.RefitEvery < 0 || cfg.LeadTimeDays < 0 {
		return fmt.Errorf("%w: step days, refit interval and lead time must be non-negative", schema.ErrConfig)
	}

	staleness := input.MaxStaleness
	if staleness == "" {
		staleness = DefaultMaxStaleness
	}
	d, err := ParseLookbackDuration(staleness)
	if err != nil {
		return fmt.Errorf("%w: invalid --max-staleness: %w", schema.ErrConfig, err)
	}
	cfg.MaxStaleness = d

	cfg.DecisionThreshold = input.DecisionThreshold
	if cfg.DecisionThreshold == 0 {
		cfg.DecisionThreshold = DefaultDecisionThreshold
	}
	if cfg.DecisionThreshold <= 0 || cfg.DecisionThreshold >= 1 {
		return fmt.Errorf("%w: decision threshold must be in (0,1), got %g", schema.ErrConfig, cfg.DecisionThreshold)
	}
	return nil
}

// ProcessProfilingConfig handles the profiling flag and sets up profiling configuration.
func ProcessProfilingConfig(profile *ProfileConfig, profilePrefix string) error {
	if profilePrefix != "" {
		profile.Enabled = true
		profile.Prefix = profilePrefix
	}
	return nil
}

// ParsePenaltiesString parses a string like "2:0.005,3:0.012,6:0.04" into a
// dense table indexed by breach count. Unlisted counts carry the previous
// entry forward, so the table is monotone whenever the listed values are.
// Breach counts above maxCount are rejected.
func ParsePenaltiesString(s string, maxPenalty float64, maxCount int) ([]float64, error) {
	entries := make(map[int]float64)
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		keyValue := strings.Split(part, ":")
		if len(keyValue) != 2 {
			return nil, fmt.Errorf("invalid penalty format '%s', expected 'count:value'", part)
		}
		n, err := strconv.Atoi(strings.TrimSpace(keyValue[0]))
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid breach count '%s'", keyValue[0])
		}
		if n > maxCount {
			return nil, fmt.Errorf("breach count %d exceeds the %d pillars of the family", n, maxCount)
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(keyValue[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid penalty value '%s' for count %d: %w", keyValue[1], n, err)
		}
		if !(v >= 0 && v <= maxPenalty) {
			return nil, fmt.Errorf("penalty %g for count %d is outside [0, %g]", v, n, maxPenalty)
		}
		entries[n] = v
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no penalty entries in '%s'", s)
	}

	counts := make([]int, 0, len(entries))
	for n := range entries {
		counts = append(counts, n)
	}
	sort.Ints(counts)
	out := make([]float64, counts[len(counts)-1]+1)
	prev := 0.0
	for n := range out {
		if v, ok := entries[n]; ok {
			if v < prev {
				return nil, fmt.Errorf("penalty for %d breaches (%g) is below a smaller count (%g)", n, v, prev)
			}
			prev = v
		}
		out[n] = prev
	}
	return out, nil
}
