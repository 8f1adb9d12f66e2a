package cache

import (
	"context"
	"slices"
	"sync"

	"statusable/internal/status/models"
)

// InMemoryIndexCache is a process-local stand-in for the distributed cache,
// used when no redis is configured and in tests.
type InMemoryIndexCache struct {
	mu      sync.Mutex
	indexes map[string][]models.IDEntry
}

func NewInMemoryIndexCache() *InMemoryIndexCache {
	return &InMemoryIndexCache{indexes: make(map[string][]models.IDEntry)}
}

func (c *InMemoryIndexCache) Get(_ context.Context, key string) ([]models.IDEntry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.indexes[key]
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(entries), true, nil
}

func (c *InMemoryIndexCache) Put(_ context.Context, key string, entries []models.IDEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.indexes[key] = slices.Clone(entries)
	if c.indexes[key] == nil {
		c.indexes[key] = []models.IDEntry{}
	}
	return nil
}

func (c *InMemoryIndexCache) Append(_ context.Context, key string, entry models.IDEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entries, ok := c.indexes[key]
	if !ok || containsEntry(entries, entry) {
		return nil
	}
	c.indexes[key] = append(entries, entry)
	return nil
}

// Forget drops key, simulating an evicted or flushed cache.
func (c *InMemoryIndexCache) Forget(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.indexes, key)
}
