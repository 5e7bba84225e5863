package ledger

import (
	"context"
	"sync"
)

// counter is one usage counter. Each counter carries its own lock so
// concurrent subscribers never contend with each other; the store mutex
// only covers map lookup and lazy creation.
type counter struct {
	mu    sync.Mutex
	count int64
	limit int64
}

// MemoryStore is the single-process counter store. Counters for past
// periods stay in the map untouched, which keeps them queryable for
// audit.
type MemoryStore struct {
	mu       sync.Mutex
	counters map[string]*counter
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{counters: make(map[string]*counter)}
}

// get creates the counter on first access, exactly once even under
// concurrent first access, snapshotting the limit at creation.
func (s *MemoryStore) get(key string, limit int64) *counter {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.counters[key]
	if !ok {
		c = &counter{limit: limit}
		s.counters[key] = c
	}
	return c
}

func (s *MemoryStore) ConsumeIfAllowed(ctx context.Context, key string, limit, n int64) (bool, int64, int64, error) {
	c := s.get(key, limit)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.limit >= 0 && c.count+n > c.limit {
		return false, c.count, c.limit, nil
	}

	c.count += n
	return true, c.count, c.limit, nil
}

func (s *MemoryStore) Peek(ctx context.Context, key string, limit int64) (int64, int64, error) {
	s.mu.Lock()
	c, ok := s.counters[key]
	s.mu.Unlock()

	if !ok {
		return 0, limit, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count, c.limit, nil
}
