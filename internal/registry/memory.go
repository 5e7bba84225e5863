package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aman-churiwal/x402-gateway/internal/models"
)

// subscriberEntry holds one subscriber's tier history behind its own
// lock, so supersession is serialized per subscriber without a global
// write lock.
type subscriberEntry struct {
	mu        sync.Mutex
	createdAt time.Time
	records   []models.TierRecord
}

// MemoryStore is the single-process subscriber store.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*subscriberEntry
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*subscriberEntry),
		now:     time.Now,
	}
}

func (s *MemoryStore) entry(subscriberID string) *subscriberEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[subscriberID]
	if !ok {
		e = &subscriberEntry{createdAt: s.now()}
		s.entries[subscriberID] = e
	}
	return e
}

func (s *MemoryStore) lookup(subscriberID string) *subscriberEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[subscriberID]
}

func (s *MemoryStore) ActiveRecord(ctx context.Context, subscriberID string) (*models.TierRecord, error) {
	e := s.lookup(subscriberID)
	if e == nil {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for i := len(e.records) - 1; i >= 0; i-- {
		if e.records[i].SupersededAt == nil {
			rec := e.records[i]
			return &rec, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) Supersede(ctx context.Context, rec *models.TierRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = s.now()

	e := s.entry(rec.SubscriberID)

	e.mu.Lock()
	defer e.mu.Unlock()

	now := s.now()
	for i := range e.records {
		if e.records[i].SupersededAt == nil {
			t := now
			e.records[i].SupersededAt = &t
		}
	}
	e.records = append(e.records, *rec)
	return nil
}

func (s *MemoryStore) History(ctx context.Context, subscriberID string) ([]models.TierRecord, error) {
	e := s.lookup(subscriberID)
	if e == nil {
		return nil, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]models.TierRecord, len(e.records))
	copy(out, e.records)
	return out, nil
}

func (s *MemoryStore) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Subscriber, 0, len(s.entries))
	for id, e := range s.entries {
		out = append(out, models.Subscriber{ID: id, CreatedAt: e.createdAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
