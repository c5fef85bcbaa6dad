package router

import "sync"

// seenCache remembers which notification ids were fanned out to subscribers
// in this process. Bounded FIFO: once full, the oldest ids are forgotten,
// which is safe because the poller's watermark has long moved past them.
type seenCache struct {
	mu    sync.Mutex
	ids   map[string]struct{}
	order []string
	cap   int
}

func newSeenCache(capacity int) *seenCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &seenCache{ids: make(map[string]struct{}), cap: capacity}
}

// add records id and reports whether it was new.
func (c *seenCache) add(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.ids[id]; ok {
		return false
	}
	c.ids[id] = struct{}{}
	c.order = append(c.order, id)
	if len(c.order) > c.cap {
		evict := c.order[0]
		c.order = c.order[1:]
		delete(c.ids, evict)
	}
	return true
}
