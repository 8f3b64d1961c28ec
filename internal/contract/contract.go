// Package contract provides interfaces and shared utilities for internal architecture.
package contract

import (
	"time"

	"github.com/huangsam/macindex/schema"
)

// ObservationSource defines read access to resolved observations.
// This allows the pipeline to be tested without files on disk.
type ObservationSource interface {
	// AsOf returns the latest observation of an indicator dated on or before t
	// and no older than maxAge. A zero maxAge disables the staleness check.
	AsOf(indicatorID string, t time.Time, maxAge time.Duration) (schema.Observation, bool)

	// Span returns the first and last observation dates in the source.
	Span() (time.Time, time.Time)
}

// CacheManager defines the interface for managing cache stores.
// This allows the cache layer to be mocked for testing.
type CacheManager interface {
	GetFitStore() CacheStore
	GetRunStore() RunStore
}

// CacheStore defines the interface for the fit cache.
// This allows mocking the store for testing.
type CacheStore interface {
	Get(key string) ([]byte, int, int64, error)
	Set(key string, value []byte, version int, timestamp int64) error
	GetStatus() (schema.CacheStatus, error)
	Close() error
}

// RunStore defines the interface for tracking backtest runs and their composites.
type RunStore interface {
	// BeginRun creates a new run keyed by its UUID and returns its numeric ID
	BeginRun(runUUID string, startTime time.Time, family schema.Family, configParams map[string]any) (int64, error)

	// EndRun updates the run with completion data
	EndRun(runID int64, endTime time.Time, totalDates int) error

	// RecordComposite stores one scored date of a run
	RecordComposite(runID int64, record schema.CompositeRecord) error

	// ListRuns returns the most recent runs, newest first. A limit of zero returns all runs
	ListRuns(limit int) ([]schema.RunRecord, error)

	// GetComposites returns the stored composites of a run in date order
	GetComposites(runID int64) ([]schema.CompositeRecord, error)

	// GetStatus returns status information about the run store
	GetStatus() (schema.RunStoreStatus, error)

	// Close closes the underlying connection
	Close() error
}

// Recorder receives pipeline counters.
type Recorder interface {
	CompositeComputed(family schema.Family, indeterminate bool)
	Refit(family schema.Family, succeeded bool)
	EstimatorFallback(family schema.Family)
	RegimeFallback(family schema.Family)
	ObserveStep(family schema.Family, d time.Duration)
}

// NopRecorder discards every measurement.
type NopRecorder struct{}

func (NopRecorder) CompositeComputed(schema.Family, bool) {}
func (NopRecorder) Refit(schema.Family, bool) {}
func (NopRecorder) EstimatorFallback(schema.Family) {}
func (NopRecorder) RegimeFallback(schema.Family) {}
func (NopRecorder) ObserveStep(schema.Family, time.Duration) {}
