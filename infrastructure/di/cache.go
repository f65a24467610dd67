package di

import (
	"context"
	"sync"
	"time"

	"stash-backend/application/queries/bus"
)

// TTLCache is a small in-memory cache for query results. It backs the query
// bus caching middleware in a single process; a multi-instance deployment
// would swap in a shared store behind the same interface.
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]ttlItem
	done  chan struct{}
}

type ttlItem struct {
	value     interface{}
	expiresAt time.Time
}

// NewTTLCache creates the cache and starts its janitor goroutine.
func NewTTLCache() *TTLCache {
	cache := &TTLCache{
		items: make(map[string]ttlItem),
		done:  make(chan struct{}),
	}
	go cache.janitor()
	return cache
}

// Get retrieves a value. Expired entries read as misses; the janitor removes
// them later.
func (c *TTLCache) Get(ctx context.Context, key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		return nil, false
	}
	return item.value, true
}

// Set stores a value with a TTL in seconds.
func (c *TTLCache) Set(ctx context.Context, key string, value interface{}, ttl int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = ttlItem{
		value:     value,
		expiresAt: time.Now().Add(time.Duration(ttl) * time.Second),
	}
	return nil
}

// Close stops the janitor.
func (c *TTLCache) Close() {
	close(c.done)
}

func (c *TTLCache) janitor() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

var _ bus.Cache = (*TTLCache)(nil)
