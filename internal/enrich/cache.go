package enrich

import (
	"sync"
	"time"
)

// cacheEntry pairs a candidate with its expiry.
type cacheEntry struct {
	candidate Candidate
	expiresAt time.Time
}

// candidateCache is a TTL cache keyed by symbol. Expired entries are dropped
// lazily on read and swept by Cleanup.
type candidateCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
}

func newCandidateCache(ttl time.Duration) *candidateCache {
	return &candidateCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
	}
}

// Get returns the cached candidate for a symbol if it has not expired.
func (c *candidateCache) Get(symbol string, now time.Time) (Candidate, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[symbol]
	if !ok || now.After(entry.expiresAt) {
		return Candidate{}, false
	}
	return entry.candidate, true
}

// Set stores a candidate with the cache TTL.
func (c *candidateCache) Set(candidate Candidate, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[candidate.Symbol] = cacheEntry{
		candidate: candidate,
		expiresAt: now.Add(c.ttl),
	}
}

// Cleanup removes expired entries.
func (c *candidateCache) Cleanup(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for symbol, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, symbol)
		}
	}
}
