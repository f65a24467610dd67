package services

import (
	"sync"

	"stash-backend/domain/core/valueobjects"
	"stash-backend/domain/relationships"
)

// DisplayCache bridges the gap between "user picked a link target" and
// "server confirmed it": relationship pickers can stage a label for an
// entity whose server copy has not been fetched yet. It is scoped to one
// edit session and cleared when the session ends. It is a cache, never a
// source of truth: server data always replaces a staged hint for the same
// key, never the other way around.
type DisplayCache struct {
	mu      sync.RWMutex
	entries map[string]displayEntry
}

type displayEntry struct {
	display    relationships.Display
	fromServer bool
}

// NewDisplayCache creates an empty cache.
func NewDisplayCache() *DisplayCache {
	return &DisplayCache{entries: make(map[string]displayEntry)}
}

// Seed stages a caller-supplied hint. It never displaces server data.
func (c *DisplayCache) Seed(ref valueobjects.EntityRef, d relationships.Display) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[ref.Key()]; ok && existing.fromServer {
		return
	}
	c.entries[ref.Key()] = displayEntry{display: d}
}

// PutServer records server-confirmed display data, replacing any hint.
func (c *DisplayCache) PutServer(ref valueobjects.EntityRef, d relationships.Display) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ref.Key()] = displayEntry{display: d, fromServer: true}
}

// Get returns the best known display for ref.
func (c *DisplayCache) Get(ref valueobjects.EntityRef) (relationships.Display, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[ref.Key()]
	return entry.display, ok
}

// Clear empties the cache when the owning edit session ends.
func (c *DisplayCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]displayEntry)
}

// Len reports how many entries are staged, mostly for tests and metrics.
func (c *DisplayCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
