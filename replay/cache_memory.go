package replay

import (
	"context"
	"sync"
	"time"

	"github.com/MrEthical07/goStepUp/clock"
)

// DefaultPruneThreshold is the table size above which MemoryCache prunes.
const DefaultPruneThreshold = 1024

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]time.Time
	window    time.Duration
	threshold int
	clock     clock.Clock
}

// NewMemoryCache returns a cache for the given acceptance window. A
// threshold <= 0 selects DefaultPruneThreshold.
func NewMemoryCache(window time.Duration, threshold int, c clock.Clock) *MemoryCache {
	if threshold <= 0 {
		threshold = DefaultPruneThreshold
	}
	return &MemoryCache{
		entries:   make(map[string]time.Time),
		window:    window,
		threshold: threshold,
		clock:     clock.OrSystem(c),
	}
}

func (c *MemoryCache) Insert(_ context.Context, value string, issuedAt time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[value]; ok {
		return false, nil
	}
	c.entries[value] = issuedAt
	if len(c.entries) > c.threshold {
		c.pruneLocked()
	}
	return true, nil
}

// entries strictly older than twice the window can no longer pass the freshness gate
func (c *MemoryCache) pruneLocked() {
	cutoff := c.clock.Now().Add(-2 * c.window)
	for v, issuedAt := range c.entries {
		if issuedAt.Before(cutoff) {
			delete(c.entries, v)
		}
	}
}

// Len returns the number of remembered values.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
