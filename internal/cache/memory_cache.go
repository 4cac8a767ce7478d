package cache

import (
	"context"
	"fmt"
	"sync"
)

// MemoryUnreadCache implements UnreadCache in process memory. It backs
// single-process deployments and tests.
type MemoryUnreadCache struct {
	mu     sync.Mutex
	totals map[string]int
}

// NewMemoryUnreadCache creates an empty in-memory cache.
func NewMemoryUnreadCache() *MemoryUnreadCache {
	return &MemoryUnreadCache{totals: make(map[string]int)}
}

// AddTotal adjusts the participant's badge counter, clamped at zero.
func (c *MemoryUnreadCache) AddTotal(ctx context.Context, participantID string, delta int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.totals[participantID] + delta
	if next < 0 {
		next = 0
	}
	c.totals[participantID] = next
	return nil
}

// SetTotal overwrites the participant's badge counter.
func (c *MemoryUnreadCache) SetTotal(ctx context.Context, participantID string, total int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if total < 0 {
		total = 0
	}
	c.totals[participantID] = total
	return nil
}

// GetTotal returns the participant's badge counter.
func (c *MemoryUnreadCache) GetTotal(ctx context.Context, participantID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	total, ok := c.totals[participantID]
	if !ok {
		return 0, ErrCacheMiss
	}
	return total, nil
}

func (c *MemoryUnreadCache) Close() error { return nil }

// NewUnreadCache selects the cache backend by driver name.
func NewUnreadCache(driver string, redisCfg RedisConfig, prefix string) (UnreadCache, error) {
	switch driver {
	case "memory":
		return NewMemoryUnreadCache(), nil
	case "redis", "":
		return NewRedisUnreadCache(redisCfg, prefix)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}
