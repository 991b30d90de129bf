// Package cache memoizes resolved quotes for a short TTL.
package cache

import (
	"strings"
	"sync"
	"time"

	"portfolioquotes/internal/quote"
)

// DefaultTTL matches the reference resolver behavior.
const DefaultTTL = 5 * time.Minute

// entry stores one cached quote with its fetch time.
type entry struct {
	quote     quote.Quote
	fetchedAt time.Time
}

// Cache is a mutex-guarded TTL map keyed by uppercased symbol.
// An entry older than TTL is a miss and is deleted on read. Purely
// in-memory; nothing survives a restart.
type Cache struct {
	TTL time.Duration

	// now is swappable in tests to advance simulated time.
	now func() time.Time

	mu    sync.Mutex
	items map[string]entry
}

func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{TTL: ttl, now: time.Now, items: make(map[string]entry)}
}

// NewWithClock is like New but with an injected clock, for tests.
func NewWithClock(ttl time.Duration, now func() time.Time) *Cache {
	c := New(ttl)
	c.now = now
	return c
}

// Get returns the cached quote for symbol if present and fresh.
func (c *Cache) Get(symbol string) (quote.Quote, bool) {
	key := strings.ToUpper(symbol)
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return quote.Quote{}, false
	}
	if c.now().Sub(e.fetchedAt) >= c.TTL {
		delete(c.items, key)
		return quote.Quote{}, false
	}
	return e.quote, true
}

// Put stores q under the uppercased symbol, overwriting any older entry.
func (c *Cache) Put(symbol string, q quote.Quote) {
	key := strings.ToUpper(symbol)
	c.mu.Lock()
	c.items[key] = entry{quote: q, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Len reports the number of entries, fresh or not. Used by status output.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
