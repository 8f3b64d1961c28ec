package iocache

import (
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
	"github.com/stretchr/testify/mock"
)

// MockCacheManager is a mock implementation of CacheManager for testing.
type MockCacheManager struct {
	mock.Mock
}

var _ contract.CacheManager = &MockCacheManager{} // Compile-time check

// GetFitStore implements the CacheManager interface.
func (m *MockCacheManager) GetFitStore() contract.CacheStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.CacheStore)
	return store
}

// GetRunStore implements the CacheManager interface.
func (m *MockCacheManager) GetRunStore() contract.RunStore {
	ret := m.Called()
	store, _ := ret.Get(0).(contract.RunStore)
	return store
}

// MockCacheStore is a mock implementation of CacheStore for testing.
type MockCacheStore struct {
	mock.Mock
}

var _ contract.CacheStore = &MockCacheStore{} // Compile-time check

// Get implements the CacheStore interface.
func (m *MockCacheStore) Get(key string) ([]byte, int, int64, error) {
	args := m.Called(key)
	data, _ := args.Get(0).([]byte)
	return data, args.Int(1), args.Get(2).(int64), args.Error(3)
}

// Set implements the CacheStore interface.
func (m *MockCacheStore) Set(key string, data []byte, version int, ts int64) error {
	args := m.Called(key, data, version, ts)
	return args.Error(0)
}

// Close implements the CacheStore interface.
func (m *MockCacheStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// GetStatus implements the CacheStore interface.
func (m *MockCacheStore) GetStatus() (schema.CacheStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.CacheStatus), args.Error(1)
}

// MockRunStore is a mock implementation of RunStore for testing.
type MockRunStore struct {
	mock.Mock
}

var _ contract.RunStore = &MockRunStore{} // Compile-time check

// BeginRun implements the RunStore interface.
func (m *MockRunStore) BeginRun(runUUID string, startTime time.Time, family schema.Family, configParams map[string]any) (int64, error) {
	args := m.Called(runUUID, startTime, family, configParams)
	return args.Get(0).(int64), args.Error(1)
}

// EndRun implements the RunStore interface.
func (m *MockRunStore) EndRun(runID int64, endTime time.Time, totalDates int) error {
	args := m.Called(runID, endTime, totalDates)
	return args.Error(0)
}

// RecordComposite implements the RunStore interface.
func (m *MockRunStore) RecordComposite(runID int64, record schema.CompositeRecord) error {
	args := m.Called(runID, record)
	return args.Error(0)
}

// ListRuns implements the RunStore interface.
func (m *MockRunStore) ListRuns(limit int) ([]schema.RunRecord, error) {
	args := m.Called(limit)
	runs, _ := args.Get(0).([]schema.RunRecord)
	return runs, args.Error(1)
}

// GetComposites implements the RunStore interface.
func (m *MockRunStore) GetComposites(runID int64) ([]schema.CompositeRecord, error) {
	args := m.Called(runID)
	rows, _ := args.Get(0).([]schema.CompositeRecord)
	return rows, args.Error(1)
}

// Close implements the RunStore interface.
func (m *MockRunStore) Close() error {
	args := m.Called()
	return args.Error(0)
}

// GetStatus implements the RunStore interface.
func (m *MockRunStore) GetStatus() (schema.RunStoreStatus, error) {
	args := m.Called()
	return args.Get(0).(schema.RunStoreStatus), args.Error(1)
}
