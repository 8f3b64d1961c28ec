package iocache

import (
	"sync"

	"github.com/huangsam/macindex/internal/contract"
)

// CacheStoreManager holds the fit cache and the run store.
type CacheStoreManager struct {
	sync.RWMutex // Protects the store pointers during initialization
	fits         contract.CacheStore
	runs         contract.RunStore
}

var _ contract.CacheManager = &CacheStoreManager{} // Compile-time check

// NewCacheStoreManager wraps already opened stores.
func NewCacheStoreManager(fits contract.CacheStore, runs contract.RunStore) *CacheStoreManager {
	return &CacheStoreManager{fits: fits, runs: runs}
}

// GetFitStore returns the fit cache.
func (mgr *CacheStoreManager) GetFitStore() contract.CacheStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.fits
}

// GetRunStore returns the run store.
func (mgr *CacheStoreManager) GetRunStore() contract.RunStore {
	mgr.RLock()
	defer mgr.RUnlock()
	return mgr.runs
}
