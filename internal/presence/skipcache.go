package presence

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultSkipWindow = 5 * time.Second
	DefaultSkipTTL    = 10 * time.Minute
)

// SkipCache filters radio noise: repeated sightings of the same subject at the
// same beacon inside a short window. It is advisory; losing its contents only
// risks an occasional double count.
type SkipCache interface {
	// Admit reports whether a detection for key at now should be processed.
	// An admitted detection becomes the reference for the next call; a
	// skipped one leaves the cache untouched.
	Admit(ctx context.Context, key string, now time.Time) (bool, error)
}

// SkipKey is the cache key for a (subject, beacon) pair.
func SkipKey(d Detection) string { return d.Subject() + "|" + d.BeaconID }

// MemorySkipCache is a process-local SkipCache. Entries older than ttl are
// evicted lazily.
type MemorySkipCache struct {
	mu        sync.Mutex
	window    time.Duration
	ttl       time.Duration
	last      map[string]time.Time
	lastSweep time.Time
}

func NewMemorySkipCache(window, ttl time.Duration) *MemorySkipCache {
	if window <= 0 {
		window = DefaultSkipWindow
	}
	if ttl < window {
		ttl = window
	}
	return &MemorySkipCache{window: window, ttl: ttl, last: make(map[string]time.Time)}
}

func (c *MemorySkipCache) Admit(_ context.Context, key string, now time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.sweep(now)
	if prev, ok := c.last[key]; ok && now.Sub(prev) < c.window {
		return false, nil
	}
	c.last[key] = now
	return true, nil
}

// sweep drops stale entries at most once per ttl.
func (c *MemorySkipCache) sweep(now time.Time) {
	if now.Sub(c.lastSweep) < c.ttl {
		return
	}
	for k, t := range c.last {
		if now.Sub(t) >= c.ttl {
			delete(c.last, k)
		}
	}
	c.lastSweep = now
}

// Len is the number of tracked pairs.
func (c *MemorySkipCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
