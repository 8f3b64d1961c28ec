package contract

import (
	"testing"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validInput() *ConfigRawInput {
	return &ConfigRawInput{
		Family:       "mac",
		Workers:      4,
		Precision:    3,
		Output:       "text",
		Color:        "yes",
		CacheBackend: "none",
	}
}

func TestProcessAndValidate(t *testing.T) {
	alpha := func(v float64) *float64 { return &v }
	tests := []struct {
		name        string
		mutate      func(*ConfigRawInput)
		expectError bool
	}{
		{name: "valid minimal config", mutate: func(*ConfigRawInput) {}},
		{name: "grri family", mutate: func(in *ConfigRawInput) { in.Family = "GRRI" }},
		{name: "invalid family", mutate: func(in *ConfigRawInput) { in.Family = "vix" }, expectError: true},
		{name: "zero workers", mutate: func(in *ConfigRawInput) { in.Workers = 0 }, expectError: true},
		{name: "precision too large", mutate: func(in *ConfigRawInput) { in.Precision = 9 }, expectError: true},
		{name: "invalid output", mutate: func(in *ConfigRawInput) { in.Output = "html" }, expectError: true},
		{name: "xlsx output", mutate: func(in *ConfigRawInput) { in.Output = "XLSX" }},
		{name: "invalid color", mutate: func(in *ConfigRawInput) { in.Color = "maybe" }, expectError: true},
		{name: "invalid log level", mutate: func(in *ConfigRawInput) { in.LogLevel = "loud" }, expectError: true},
		{name: "invalid estimator", mutate: func(in *ConfigRawInput) { in.Estimator = "forest" }, expectError: true},
		{name: "ridge estimator", mutate: func(in *ConfigRawInput) { in.Estimator = "ridge" }},
		{name: "date range", mutate: func(in *ConfigRawInput) { in.Start = "1990-01-05"; in.End = "2020-12-25" }},
		{name: "reversed date range", mutate: func(in *ConfigRawInput) { in.Start = "2020-01-01"; in.End = "1990-01-01" }, expectError: true},
		{name: "bad as-of", mutate: func(in *ConfigRawInput) { in.AsOf = "yesterday-ish" }, expectError: true},
		{name: "custom weights", mutate: func(in *ConfigRawInput) {
			in.Weights = map[string]float64{"liquidity": 0.3, "valuation": 0.2, "positioning": 0.2, "volatility": 0.1, "policy": 0.1, "contagion": 0.1}
		}},
		{name: "weights not summing to one", mutate: func(in *ConfigRawInput) {
			in.Weights = map[string]float64{"liquidity": 0.5, "valuation": 0.2}
		}, expectError: true},
		{name: "weights for foreign pillar", mutate: func(in *ConfigRawInput) {
			in.Weights = map[string]float64{"governance": 1}
		}, expectError: true},
		{name: "penalty string", mutate: func(in *ConfigRawInput) { in.PenaltiesStr = "2:0.01,3:0.02" }},
		{name: "penalty above cap", mutate: func(in *ConfigRawInput) { in.PenaltiesStr = "2:0.2" }, expectError: true},
		{name: "decreasing penalties", mutate: func(in *ConfigRawInput) { in.PenaltiesStr = "2:0.03,3:0.01" }, expectError: true},
		{name: "unknown penalty model", mutate: func(in *ConfigRawInput) { in.PenaltyModel = "copula" }, expectError: true},
		{name: "alpha out of bounds", mutate: func(in *ConfigRawInput) { in.Alpha = alpha(2) }, expectError: true},
		{name: "inverted alpha bounds", mutate: func(in *ConfigRawInput) { in.AlphaMin = alpha(1.2); in.AlphaMax = alpha(0.9) }, expectError: true},
		{name: "bad staleness", mutate: func(in *ConfigRawInput) { in.MaxStaleness = "a while" }, expectError: true},
		{name: "decision threshold out of range", mutate: func(in *ConfigRawInput) { in.DecisionThreshold = 1.5 }, expectError: true},
		{name: "invalid cache backend", mutate: func(in *ConfigRawInput) { in.CacheBackend = "redis" }, expectError: true},
		{name: "mysql without connection", mutate: func(in *ConfigRawInput) { in.RunBackend = "mysql" }, expectError: true},
		{name: "sqlite stores on the same file", mutate: func(in *ConfigRawInput) {
			in.CacheBackend, in.RunBackend = "sqlite", "sqlite"
			in.CacheDBConnect, in.RunDBConnect = "/tmp/x.db", "/tmp/x.db"
		}, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validInput()
			tt.mutate(input)
			cfg := &Config{}
			err := ProcessAndValidate(cfg, input)
			if tt.expectError {
				require.Error(t, err)
				assert.ErrorIs(t, err, schema.ErrConfig)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestProcessAndValidateDefaults(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, validInput()))

	assert.Equal(t, schema.MACFamily, cfg.Family)
	assert.Equal(t, schema.GBMEstimator, cfg.Estimator)
	assert.Equal(t, schema.StatedPenalty, cfg.PenaltyModel)
	assert.Equal(t, schema.DefaultPenaltyTable(), cfg.Penalties)
	assert.Equal(t, schema.DefaultAlpha, cfg.Calibration.Default)
	assert.Equal(t, 31*24*time.Hour, cfg.MaxStaleness)
	assert.Equal(t, DefaultStepDays, cfg.StepDays)
	assert.Equal(t, DefaultRefitEvery, cfg.RefitEvery)
	assert.Equal(t, DefaultDecisionThreshold, cfg.DecisionThreshold)
	assert.Equal(t, DefaultReplicates, cfg.Replicates)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel)
	assert.Equal(t, schema.NoneBackend, cfg.RunBackend)
	assert.True(t, cfg.StartTime.IsZero())
	assert.False(t, cfg.CustomWeights)
	assert.Len(t, cfg.Weights, 6)
}

func TestConfigSnapshot(t *testing.T) {
	input := validInput()
	input.Weights = map[string]float64{"liquidity": 0.5, "valuation": 0.5}
	input.PenaltiesStr = "2:0.01,4:0.03"
	input.PositioningHeuristic = true
	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))

	snap := cfg.Snapshot()
	assert.Equal(t, 0.5, snap.Weights.Pillars[schema.LiquidityPillar])
	assert.Zero(t, snap.Weights.Pillars[schema.ContagionPillar])
	assert.False(t, snap.Weights.EqualFallback)
	assert.Equal(t, []float64{0, 0, 0.01, 0.01, 0.03}, snap.Penalties.Penalties)
	assert.True(t, snap.PositioningHeuristic)

	clone := cfg.Clone()
	clone.Weights[schema.LiquidityPillar] = 0
	clone.Penalties.Penalties[2] = 0
	assert.Equal(t, 0.5, cfg.Weights[schema.LiquidityPillar])
	assert.Equal(t, 0.01, cfg.Penalties.Penalties[2])
}

func TestParsePenaltiesString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []float64
		wantErr  bool
	}{
		{"dense", "0:0,1:0,2:0.005,3:0.012", []float64{0, 0, 0.005, 0.012}, false},
		{"sparse carries forward", "2:0.01,5:0.03", []float64{0, 0, 0.01, 0.01, 0.01, 0.03}, false},
		{"spaces and trailing comma", " 2 : 0.01 , ", []float64{0, 0, 0.01}, false},
		{"missing colon", "2=0.01", nil, true},
		{"negative count", "-1:0.01", nil, true},
		{"bad value", "2:abc", nil, true},
		{"above cap", "2:0.06", nil, true},
		{"decreasing", "2:0.02,3:0.01", nil, true},
		{"count at pillar total", "6:0.04", []float64{0, 0, 0, 0, 0, 0, 0.04}, false},
		{"count above pillar total", "7:0.04", nil, true},
		{"huge count", "100000000000000000:0.01", nil, true},
		{"overflowing count", "1000000000:0.01", nil, true},
		{"empty", "", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePenaltiesString(tt.input, schema.DefaultPenaltyCap, 6)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestPenaltiesCountBoundByFamily(t *testing.T) {
	input := validInput()
	input.Family = string(schema.GRRIFamily)
	input.PenaltiesStr = "5:0.03"
	err := ProcessAndValidate(&Config{}, input)
	assert.ErrorIs(t, err, schema.ErrConfig)

	input.PenaltiesStr = "4:0.03"
	cfg := &Config{}
	require.NoError(t, ProcessAndValidate(cfg, input))
	assert.Len(t, cfg.Penalties.Penalties, 5)
}

func TestValidateDatabaseConnectionString(t *testing.T) {
	tests := []struct {
		backend schema.DatabaseBackend
		conn    string
		wantErr bool
	}{
		{schema.SQLiteBackend, "", false},
		{schema.NoneBackend, "", false},
		{schema.MySQLBackend, "user:pass@tcp(localhost:3306)/macindex", false},
		{schema.MySQLBackend, "user:pass@localhost/macindex", true},
		{schema.MySQLBackend, "", true},
		{schema.PostgreSQLBackend, "host=localhost dbname=macindex", false},
		{schema.PostgreSQLBackend, "host=localhost", true},
	}
	for _, tt := range tests {
		err := ValidateDatabaseConnectionString(tt.backend, tt.conn)
		if tt.wantErr {
			assert.ErrorIs(t, err, schema.ErrConfig, "%s %q", tt.backend, tt.conn)
		} else {
			assert.NoError(t, err, "%s %q", tt.backend, tt.conn)
		}
	}
}

func FuzzParsePenaltiesString(f *testing.F) {
	for _, seed := range []string{"2:0.01,3:0.02", "", "9:0.05", "1:-1", "2:0.01,2:0.02"} {
		f.Add(seed)
	}
	f.Fuzz(func(t *testing.T, s string) {
		got, err := ParsePenaltiesString(s, schema.DefaultPenaltyCap, 6)
		if err != nil {
			return
		}
		prev := 0.0
		for n, p := range got {
			if p < prev || p > schema.DefaultPenaltyCap {
				t.Errorf("entry %d (%g) breaks monotonicity or cap for %q", n, p, s)
			}
			prev = p
		}
	})
}
