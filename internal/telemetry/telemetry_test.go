package telemetry

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ contract.Recorder = (*Recorder)(nil)

func TestRecorderCounters(t *testing.T) {
	r := NewRecorder()

	r.CompositeComputed(schema.MACFamily, false)
	r.CompositeComputed(schema.MACFamily, false)
	r.CompositeComputed(schema.MACFamily, true)
	r.Refit(schema.MACFamily, true)
	r.Refit(schema.MACFamily, false)
	r.Refit(schema.MACFamily, false)
	r.EstimatorFallback(schema.GRRIFamily)
	r.RegimeFallback(schema.MACFamily)

	tests := []struct {
		name  string
		value float64
		want  float64
	}{
		{"determinate", testutil.ToFloat64(r.composites.WithLabelValues("mac", "false")), 2},
		{"indeterminate", testutil.ToFloat64(r.composites.WithLabelValues("mac", "true")), 1},
		{"fitted", testutil.ToFloat64(r.refits.WithLabelValues("mac", "fitted")), 1},
		{"retained", testutil.ToFloat64(r.refits.WithLabelValues("mac", "retained")), 2},
		{"estimator", testutil.ToFloat64(r.estimatorFallbacks.WithLabelValues("grri")), 1},
		{"regime", testutil.ToFloat64(r.regimeFallbacks.WithLabelValues("mac")), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value)
		})
	}
}

func TestRecorderSharedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := NewRecorder(WithRegistry(reg), WithStepBuckets([]float64{0.01, 0.1}))
	assert.Same(t, reg, r.Registry())

	r.ObserveStep(schema.MACFamily, 5*time.Millisecond)
	r.ObserveStep(schema.MACFamily, 50*time.Millisecond)

	count, err := testutil.GatherAndCount(reg, "macindex_backtest_step_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorderWriteFile(t *testing.T) {
	r := NewRecorder()
	r.CompositeComputed(schema.GRRIFamily, false)
	r.ObserveStep(schema.GRRIFamily, time.Millisecond)

	path := filepath.Join(t.TempDir(), "macindex.prom")
	require.NoError(t, r.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `macindex_composites_total{family="grri",indeterminate="false"} 1`)
	assert.Contains(t, text, "macindex_backtest_step_duration_seconds_count")
}
