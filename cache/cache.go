// Package cache keeps the last successfully reconciled rows per period so
// a recap view can still be served when a data source is unreachable.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warp/bonus-recap/recap"
)

type RecapCache interface {
	Get(ctx context.Context, period recap.Period) ([]recap.RecapRow, bool, error)
	Set(ctx context.Context, period recap.Period, rows []recap.RecapRow, ttl time.Duration) error
}

// Key is shared by every implementation.
func Key(period recap.Period) string {
	return fmt.Sprintf("recap:%s", period.String())
}

type NoopRecapCache struct{}

func (NoopRecapCache) Get(_ context.Context, _ recap.Period) ([]recap.RecapRow, bool, error) {
	return nil, false, nil
}

func (NoopRecapCache) Set(_ context.Context, _ recap.Period, _ []recap.RecapRow, _ time.Duration) error {
	return nil
}

// MemoryRecapCache is a process-local cache. A zero ttl never expires.
type MemoryRecapCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	rows      []recap.RecapRow
	expiresAt time.Time
}

func NewMemoryRecapCache() *MemoryRecapCache {
	return &MemoryRecapCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryRecapCache) Get(_ context.Context, period recap.Period) ([]recap.RecapRow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := Key(period)
	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return append([]recap.RecapRow(nil), entry.rows...), true, nil
}

func (c *MemoryRecapCache) Set(_ context.Context, period recap.Period, rows []recap.RecapRow, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{rows: append([]recap.RecapRow(nil), rows...)}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}
	c.entries[Key(period)] = entry
	return nil
}
