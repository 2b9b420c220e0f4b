package shader

import (
	"hash/fnv"
	"sync"
)

// DefaultCacheSize is the soft limit used when NewCache is given zero.
const DefaultCacheSize = 64

// Cache memoises ReflectWGSL by source text. When it grows past its soft
// limit the least recently used quarter is evicted. Failed reflections are
// not cached.
//
// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	entries   map[uint64]*cacheEntry
	softLimit int
	tick      int64

	hits, misses, evictions uint64
}

type cacheEntry struct {
	source string
	module *Module
	atime  int64
}

// CacheStats reports cache usage.
type CacheStats struct {
	Len       int
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// NewCache creates a cache holding about softLimit modules.
func NewCache(softLimit int) *Cache {
	if softLimit <= 0 {
		softLimit = DefaultCacheSize
	}
	return &Cache{entries: make(map[uint64]*cacheEntry), softLimit: softLimit}
}

func sourceKey(source string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(source))
	return h.Sum64()
}

// Reflect returns the reflected module for source, parsing it only on a
// miss. The returned module carries label; its Code and Bindings are shared
// with other callers and must not be modified.
func (c *Cache) Reflect(label, source string) (*Module, error) {
	key := sourceKey(source)

	c.mu.Lock()
	c.tick++
	if e, ok := c.entries[key]; ok && e.source == source {
		e.atime = c.tick
		c.hits++
		m := *e.module
		c.mu.Unlock()
		m.Label = label
		return &m, nil
	}
	c.misses++
	c.mu.Unlock()

	mod, err := ReflectWGSL(label, source)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.tick++
	c.entries[key] = &cacheEntry{source: source, module: mod, atime: c.tick}
	if len(c.entries) > c.softLimit {
		c.evictOldest()
	}
	return mod, nil
}

// evictOldest drops entries until a quarter of the limit is free.
// Caller must hold c.mu.
func (c *Cache) evictOldest() {
	target := max(c.softLimit*3/4, 1)
	for len(c.entries) > target {
		var oldest uint64
		first := true
		for k, e := range c.entries {
			if first || e.atime < c.entries[oldest].atime {
				oldest, first = k, false
			}
		}
		delete(c.entries, oldest)
		c.evictions++
	}
}

// Len returns the number of cached modules.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{Len: len(c.entries), Hits: c.hits, Misses: c.misses, Evictions: c.evictions}
}

// Clear drops every cached module. Counters are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}
