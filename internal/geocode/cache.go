package geocode

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/example/van-notify/internal/models"
)

// Cached wraps a Client with a small in-memory TTL cache keyed by the
// normalized address. Caching here is an optimization, not a source of
// truth: entries expire and misses fall through to the inner client.
type Cached struct {
	inner Client
	ttl   time.Duration

	mu    sync.RWMutex
	store map[string]cacheEntry
}

type cacheEntry struct {
	coord models.Coord
	ts    time.Time
}

func NewCached(inner Client, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cached{inner: inner, ttl: ttl, store: make(map[string]cacheEntry)}
}

func (c *Cached) Geocode(ctx context.Context, address string) (models.Coord, bool) {
	k := keyFor(address)

	c.mu.RLock()
	e, ok := c.store[k]
	c.mu.RUnlock()
	if ok {
		if time.Since(e.ts) <= c.ttl {
			return e.coord, true
		}
		c.mu.Lock()
		delete(c.store, k)
		c.mu.Unlock()
	}

	coord, ok := c.inner.Geocode(ctx, address)
	if !ok {
		return models.Coord{}, false
	}
	c.mu.Lock()
	c.store[k] = cacheEntry{coord: coord, ts: time.Now()}
	c.mu.Unlock()
	return coord, true
}

func keyFor(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}
