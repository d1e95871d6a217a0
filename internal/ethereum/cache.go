package ethereum

import (
	"sync"
	"time"
)

// BlockTimestampCache holds block timestamps in memory so a batch of logs
// touching the same blocks costs one header fetch per block instead of one
// per log. Timestamps never change once a block is final, the TTL only bounds
// memory growth.
type BlockTimestampCache struct {
	mu    sync.RWMutex
	cache map[uint64]cachedTimestamp
	ttl   time.Duration
	nowFn func() time.Time
}

type cachedTimestamp struct {
	timestamp time.Time
	expiresAt time.Time
}

// NewBlockTimestampCache creates a cache with the given TTL. The TTL should
// cover a typical batch processing window; 5 minutes is safe.
func NewBlockTimestampCache(ttl time.Duration) *BlockTimestampCache {
	return &BlockTimestampCache{
		cache: make(map[uint64]cachedTimestamp),
		ttl:   ttl,
		nowFn: time.Now,
	}
}

// Get returns the cached timestamp for a block, if present and not expired.
func (c *BlockTimestampCache) Get(blockNumber uint64) (time.Time, bool) {
	c.mu.RLock()
	cached, exists := c.cache[blockNumber]
	c.mu.RUnlock()

	if !exists {
		return time.Time{}, false
	}
	if c.nowFn().After(cached.expiresAt) {
		c.Delete(blockNumber)
		return time.Time{}, false
	}
	return cached.timestamp, true
}

// Set stores a block timestamp.
func (c *BlockTimestampCache) Set(blockNumber uint64, timestamp time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache[blockNumber] = cachedTimestamp{
		timestamp: timestamp,
		expiresAt: c.nowFn().Add(c.ttl),
	}
}

// Delete removes a block from the cache.
func (c *BlockTimestampCache) Delete(blockNumber uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cache, blockNumber)
}

// Clear removes all entries.
func (c *BlockTimestampCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache = make(map[uint64]cachedTimestamp)
}

// Size returns the number of cached entries.
func (c *BlockTimestampCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.cache)
}
