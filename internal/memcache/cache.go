// Package memcache holds the process-lifetime snapshot cache. It is the
// authoritative current view of every source while the process is running.
package memcache

import (
	"sync"

	"github.com/SwarmMonkey/NewsTerminal/pkg/newsfeed"
)

// Cache maps source ids to their last-known snapshot.
//
// The universe of ids is bounded by the static catalog, so there is no
// eviction; staleness is tracked through snapshot timestamps, not size.
// Snapshots are cloned on both write and read so callers can never mutate
// cached state through a handed-out reference.
type Cache struct {
	mu      sync.RWMutex
	entries map[newsfeed.SourceID]newsfeed.SourceSnapshot
}

// New creates an empty, concurrency-safe snapshot cache.
func New() *Cache {
	return &Cache{
		entries: make(map[newsfeed.SourceID]newsfeed.SourceSnapshot),
	}
}

// Has reports whether a snapshot is cached for id.
func (c *Cache) Has(id newsfeed.SourceID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[id]
	return ok
}

// Get returns a copy of the cached snapshot for id.
func (c *Cache) Get(id newsfeed.SourceID) (newsfeed.SourceSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap, ok := c.entries[id]
	if !ok {
		return newsfeed.SourceSnapshot{}, false
	}

	return snap.Clone(), true
}

// Set stores a snapshot unconditionally. Direct per-source fetches are
// authoritative for their id, so ordering against the previous entry is not
// checked here.
func (c *Cache) Set(id newsfeed.SourceID, snap newsfeed.SourceSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[id] = snap.Clone()
}

// SetIfNewer stores a snapshot only when its UpdatedTime is strictly greater
// than the cached entry's, and reports whether the write took effect.
//
// The batch path uses this to discard out-of-order responses that would
// otherwise roll cached state backward.
func (c *Cache) SetIfNewer(id newsfeed.SourceID, snap newsfeed.SourceSnapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if current, ok := c.entries[id]; ok && snap.UpdatedTime <= current.UpdatedTime {
		return false
	}
	c.entries[id] = snap.Clone()

	return true
}

// Len returns the number of cached sources.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
