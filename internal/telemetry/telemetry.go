// Package telemetry records pipeline counters as Prometheus metrics and
// writes them in the text exposition format for node-exporter style
// textfile collection.
package telemetry

import (
	"strconv"
	"time"

	"github.com/huangsam/macindex/schema"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "macindex"

// Option configures a Recorder.
type Option func(*Recorder)

// WithRegistry registers the metrics on reg instead of a private registry.
func WithRegistry(reg *prometheus.Registry) Option {
	return func(r *Recorder) {
		if reg != nil {
			r.registry = reg
		}
	}
}

// WithStepBuckets overrides the step latency histogram buckets, in seconds.
func WithStepBuckets(buckets []float64) Option {
	return func(r *Recorder) {
		if len(buckets) > 0 {
			r.buckets = buckets
		}
	}
}

// Recorder implements contract.Recorder on top of Prometheus collectors.
type Recorder struct {
	registry *prometheus.Registry
	buckets  []float64

	composites         *prometheus.CounterVec
	refits             *prometheus.CounterVec
	estimatorFallbacks *prometheus.CounterVec
	regimeFallbacks    *prometheus.CounterVec
	stepDuration       *prometheus.HistogramVec
}

// NewRecorder builds a recorder with its collectors registered.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		buckets:  prometheus.ExponentialBuckets(0.0005, 4, 8),
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.composites = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "composites_total",
		Help:      "Composite scores computed, by family and determinacy",
	}, []string{"family", "indeterminate"})
	r.refits = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "backtest",
		Name:      "refits_total",
		Help:      "Snapshot refits attempted during backtests, by outcome",
	}, []string{"family", "outcome"})
	r.estimatorFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "optimizer",
		Name:      "estimator_fallbacks_total",
		Help:      "Weight fits that fell back to the ridge estimator",
	}, []string{"family"})
	r.regimeFallbacks = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "regime",
		Name:      "fallbacks_total",
		Help:      "Regime readings that used the threshold fallback",
	}, []string{"family"})
	r.stepDuration = auto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "backtest",
		Name:      "step_duration_seconds",
		Help:      "Wall time spent scoring one backtest date",
		Buckets:   r.buckets,
	}, []string{"family"})
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry { return r.registry }

// CompositeComputed counts one composite score.
func (r *Recorder) CompositeComputed(family schema.Family, indeterminate bool) {
	r.composites.WithLabelValues(string(family), strconv.FormatBool(indeterminate)).Inc()
}

// Refit counts one refit attempt.
func (r *Recorder) Refit(family schema.Family, succeeded bool) {
	outcome := "retained"
	if succeeded {
		outcome = "fitted"
	}
	r.refits.WithLabelValues(string(family), outcome).Inc()
}

// EstimatorFallback counts one estimator fallback.
func (r *Recorder) EstimatorFallback(family schema.Family) {
	r.estimatorFallbacks.WithLabelValues(string(family)).Inc()
}

// RegimeFallback counts one regime fallback.
func (r *Recorder) RegimeFallback(family schema.Family) {
	r.regimeFallbacks.WithLabelValues(string(family)).Inc()
}

// ObserveStep records the time spent on one backtest date.
func (r *Recorder) ObserveStep(family schema.Family, d time.Duration) {
	r.stepDuration.WithLabelValues(string(family)).Observe(d.Seconds())
}

// WriteFile writes every gathered metric to path atomically.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
