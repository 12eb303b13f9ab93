package memtable

import (
	"context"
	"sync"

	"github.com/flowfile/flowfile/pkg/lazyframe"
)

// memoryCache is the default in-process implementation of
// lazyframe.Cache, backing write_to_cache/read_from_cache for flows that
// don't supply their own persistent cache.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]lazyframe.Handle
}

// NewMemoryCache returns a content-addressed cache held entirely in
// process memory.
func NewMemoryCache() lazyframe.Cache {
	return &memoryCache{entries: make(map[string]lazyframe.Handle)}
}

func (c *memoryCache) WriteToCache(ctx context.Context, id string, h lazyframe.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[id] = h
	return nil
}

func (c *memoryCache) ReadFromCache(ctx context.Context, id string) (lazyframe.Handle, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.entries[id]
	return h, ok, nil
}

func (c *memoryCache) Evict(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}
