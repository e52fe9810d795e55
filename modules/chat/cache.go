package chat

import (
	"sync"
	"time"
)

// responseCache remembers model answers by normalized prompt.
type responseCache struct {
	mu       sync.Mutex
	items    map[string]cacheItem
	maxItems int
	ttl      time.Duration
	now      func() time.Time

	hits, misses int
}

type cacheItem struct {
	value      string
	expiration time.Time
}

func newResponseCache(maxItems int, ttl time.Duration, now func() time.Time) *responseCache {
	return &responseCache{
		items:    make(map[string]cacheItem),
		maxItems: maxItems,
		ttl:      ttl,
		now:      now,
	}
}

func (c *responseCache) get(key string) (string, bool) {
	if c.maxItems == 0 {
		return "", false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found || (!item.expiration.IsZero() && c.now().After(item.expiration)) {
		c.misses++
		return "", false
	}
	c.hits++
	return item.value, true
}

func (c *responseCache) set(key, value string) {
	if c.maxItems == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.items[key]; !exists && len(c.items) >= c.maxItems {
		c.evictLocked()
	}

	var exp time.Time
	if c.ttl > 0 {
		exp = c.now().Add(c.ttl)
	}
	c.items[key] = cacheItem{value: value, expiration: exp}
}

// evictLocked drops expired items, or the one closest to expiry when none are.
func (c *responseCache) evictLocked() {
	now := c.now()
	oldest := ""
	for key, item := range c.items {
		if !item.expiration.IsZero() && now.After(item.expiration) {
			delete(c.items, key)
			continue
		}
		if oldest == "" || item.expiration.Before(c.items[oldest].expiration) {
			oldest = key
		}
	}
	if len(c.items) >= c.maxItems && oldest != "" {
		delete(c.items, oldest)
	}
}

func (c *responseCache) stats() (size, hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items), c.hits, c.misses
}
