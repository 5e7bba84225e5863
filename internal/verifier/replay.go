package verifier

import (
	"context"
	"sync"
	"time"
)

// ReplayCache is the seen-set of consumed proof tokens. Claim must be
// atomic: when two callers race on the same token, exactly one wins.
type ReplayCache interface {
	// Seen reports whether the token was already consumed.
	Seen(ctx context.Context, token string) (bool, error)
	// Claim consumes the token. Returns false if someone else already
	// holds it. Entries become collectable once expiry has passed,
	// since an expired proof can never be replayed to effect.
	Claim(ctx context.Context, token string, expiry time.Time) (bool, error)
}

// sweep the memory cache once it grows past this many entries.
const sweepThreshold = 4096

// MemoryReplayCache is the single-process seen-set.
type MemoryReplayCache struct {
	mu    sync.Mutex
	seen  map[string]time.Time
	now   func() time.Time
}

func NewMemoryReplayCache() *MemoryReplayCache {
	return &MemoryReplayCache{
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (c *MemoryReplayCache) Seen(ctx context.Context, token string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.seen[token]
	return ok, nil
}

func (c *MemoryReplayCache) Claim(ctx context.Context, token string, expiry time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.seen[token]; ok {
		return false, nil
	}

	if len(c.seen) >= sweepThreshold {
		c.sweepLocked()
	}

	c.seen[token] = expiry
	return true, nil
}

// sweepLocked drops entries whose validity window has passed.
func (c *MemoryReplayCache) sweepLocked() {
	now := c.now()
	for token, expiry := range c.seen {
		if now.After(expiry) {
			delete(c.seen, token)
		}
	}
}

// Len returns the current entry count. Test hook.
func (c *MemoryReplayCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}
