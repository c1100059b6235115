package library

import (
	"sync"
	"sync/atomic"
	"time"

	"muufin/internal/jellyfin"
)

// queryCache is a small TTL cache for listing results. Library views are
// re-requested constantly while the catalog changes rarely; a short TTL
// keeps the UI snappy without holding stale data for long.
type queryCache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	ttl     time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

type cacheEntry struct {
	result    *jellyfin.QueryResult
	timestamp time.Time
}

func newQueryCache(ttl time.Duration) *queryCache {
	return &queryCache{
		entries: make(map[string]*cacheEntry),
		ttl:     ttl,
	}
}

// get returns a cached result when present and within TTL.
func (c *queryCache) get(key string) (*jellyfin.QueryResult, bool) {
	c.mu.RLock()
	entry, exists := c.entries[key]
	c.mu.RUnlock()

	if !exists || time.Since(entry.timestamp) > c.ttl {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return entry.result, true
}

func (c *queryCache) set(key string, result *jellyfin.QueryResult) {
	c.mu.Lock()
	c.entries[key] = &cacheEntry{result: result, timestamp: time.Now()}
	c.mu.Unlock()
}

// invalidate drops every entry. Called on sign-out and sign-in so one
// user's listings never leak into another session.
func (c *queryCache) invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry)
	c.mu.Unlock()
}

// Stats reports cache effectiveness for the health surface.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
}

func (c *queryCache) stats() CacheStats {
	c.mu.RLock()
	n := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Entries: n, Hits: c.hits.Load(), Misses: c.misses.Load()}
}
