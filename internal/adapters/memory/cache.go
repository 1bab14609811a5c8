package memory

import (
	"context"
	"sync"
	"time"

	"github.com/groovy/replicasync/internal/domain"
)

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache is a process-local ports.Cache used when no Redis is configured.
type Cache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
	nowFn   func() time.Time
}

func NewCache() *Cache {
	return &Cache{entries: map[string]cacheEntry{}, nowFn: time.Now}
}

func (c *Cache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok {
		return "", domain.ErrNotFound
	}
	if !entry.expiresAt.IsZero() && c.nowFn().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", domain.ErrNotFound
	}
	return entry.value, nil
}

func (c *Cache) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cacheEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = c.nowFn().Add(ttl)
	}
	c.entries[key] = entry
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.entries, key)
	}
	return nil
}
