package crawl

import (
	"sync"

	"github.com/shelfbase/catalog-harvester/internal/catalog"
)

// RunCache memoizes enumeration results for one run, keyed by market and
// category slug. Each run owns its own instance; nothing outlives the
// run. Entries are copied on the way in and out so cached identifier
// lists stay immutable.
type RunCache struct {
	mu      sync.RWMutex
	entries map[cacheKey][]catalog.ProductIdentifier
}

type cacheKey struct {
	market string
	slug   string
}

// NewRunCache returns an empty cache.
func NewRunCache() *RunCache {
	return &RunCache{entries: make(map[cacheKey][]catalog.ProductIdentifier)}
}

// Get returns the memoized identifiers for the market and slug.
func (c *RunCache) Get(market, slug string) ([]catalog.ProductIdentifier, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids, ok := c.entries[cacheKey{market: market, slug: slug}]
	if !ok {
		return nil, false
	}
	out := make([]catalog.ProductIdentifier, len(ids))
	copy(out, ids)
	return out, true
}

// Put memoizes the identifiers for the market and slug, replacing any
// previous entry.
func (c *RunCache) Put(market, slug string, ids []catalog.ProductIdentifier) {
	stored := make([]catalog.ProductIdentifier, len(ids))
	copy(stored, ids)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey{market: market, slug: slug}] = stored
}

// Len reports how many categories have memoized enumerations.
func (c *RunCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
