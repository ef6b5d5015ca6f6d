package quote

import (
	"sync"
	"time"

	"github.com/seenimoa/papertrade/pkg/models"
)

// cacheEntry holds a cached quote with expiration.
type cacheEntry struct {
	quote     models.Quote
	expiresAt time.Time
}

// Cache is a thread-safe TTL cache of quotes keyed by symbol. It lets an
// order placement and the refresh that follows it share one provider call.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// NewCache creates a cache whose entries live for ttl.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get returns the quote for symbol unless it is missing or expired.
func (c *Cache) Get(symbol string) (models.Quote, bool) {
	c.mu.RLock()
	entry, ok := c.entries[symbol]
	c.mu.RUnlock()
	if !ok || !c.now().Before(entry.expiresAt) {
		return models.Quote{}, false
	}
	return entry.quote, true
}

// Set stores q under symbol.
func (c *Cache) Set(symbol string, q models.Quote) {
	c.mu.Lock()
	c.entries[symbol] = cacheEntry{quote: q, expiresAt: c.now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate removes a symbol from the cache.
func (c *Cache) Invalidate(symbol string) {
	c.mu.Lock()
	delete(c.entries, symbol)
	c.mu.Unlock()
}

// Cleanup removes expired entries. Fetcher calls it after every fetch.
func (c *Cache) Cleanup() {
	c.mu.Lock()
	now := c.now()
	for k, v := range c.entries {
		if !now.Before(v.expiresAt) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Len returns the number of entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
