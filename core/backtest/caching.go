package backtest

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
)

// currentCacheVersion defines the version of the fit cache schema
const currentCacheVersion = 1

// fitWeights runs the optimizer through the fit cache when one is configured.
func (r *Runner) fitWeights(ctx context.Context, resolved []schema.Scenario, t time.Time) (schema.FitReport, error) {
	if r.cache == nil {
		return r.optimizer.Fit(ctx, resolved, t)
	}

	key, err := generateFitKey(r.cfg, resolved)
	if err != nil {
		return r.optimizer.Fit(ctx, resolved, t)
	}

	// Check for cache hit
	if fit, ok := checkCacheHit(r.cache, key); ok {
		fit.Weights.DateFitted = t
		return fit, nil
	}

	// Cache miss: compute and store
	return computeAndStore(ctx, r, resolved, t, key)
}

// checkCacheHit attempts to retrieve and validate a cached fit
func checkCacheHit(store contract.CacheStore, key string) (schema.FitReport, bool) {
	data, version, _, err := store.Get(key)
	if err != nil || version != currentCacheVersion {
		return schema.FitReport{}, false
	}
	var fit schema.FitReport
	if err := json.Unmarshal(data, &fit); err != nil {
		return schema.FitReport{}, false
	}
	return fit, true
}

// computeAndStore fits weights and stores the result in the cache
func computeAndStore(ctx context.Context, r *Runner, resolved []schema.Scenario, t time.Time, key string) (schema.FitReport, error) {
	fit, err := r.optimizer.Fit(ctx, resolved, t)
	if err != nil {
		return fit, err
	}
	if data, err := json.Marshal(fit); err == nil {
		_ = r.cache.Set(key, data, currentCacheVersion, time.Now().Unix())
	}
	return fit, nil
}

// generateFitKey hashes everything the fit depends on: the family, optimizer
// settings and the content of the resolved scenarios.
func generateFitKey(cfg Config, resolved []schema.Scenario) (string, error) {
	sorted := make([]schema.Scenario, len(resolved))
	copy(sorted, resolved)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	payload, err := json.Marshal(struct {
		Family    schema.Family
		Estimator schema.EstimatorKind
		Seed      uint64
		Augment   any
		Stability float64
		Validate  bool
		Scenarios []schema.Scenario
	}{
		Family:    cfg.Family,
		Estimator: cfg.Optimizer.Estimator,
		Seed:      cfg.Optimizer.Seed,
		Augment:   cfg.Optimizer.Augment,
		Stability: cfg.Optimizer.StabilityThreshold,
		Validate:  cfg.Optimizer.Validate,
		Scenarios: sorted,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("fit:%x", sha256.Sum256(payload)), nil
}
