package statestore

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store. It is thread-safe and suitable for
// development, tests and single-instance deployments.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*SessionRecord
	guidance map[string]*CachedGuidance
	ttl      time.Duration
	now      func() time.Time
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMemoryTTL expires records not accessed within ttl. Zero disables expiry.
func WithMemoryTTL(ttl time.Duration) MemoryOption {
	return func(s *MemoryStore) { s.ttl = ttl }
}

// WithMemoryClock sets the time source, for tests.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) { s.now = now }
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions: make(map[string]*SessionRecord),
		guidance: make(map[string]*CachedGuidance),
		ttl:      DefaultTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadSession returns a copy of the record and refreshes its access time.
func (s *MemoryStore) LoadSession(_ context.Context, id string) (*SessionRecord, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	now := s.now()
	if s.expired(rec, now) {
		delete(s.sessions, id)
		delete(s.guidance, id)
		return nil, ErrNotFound
	}
	rec.LastAccessedAt = now
	return copyRecord(rec), nil
}

// SaveSession stores a copy of record.
func (s *MemoryStore) SaveSession(_ context.Context, record *SessionRecord) error {
	if record == nil {
		return ErrInvalidRecord
	}
	if record.ID == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := copyRecord(record)
	rec.LastAccessedAt = s.now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.LastAccessedAt
	}
	s.sessions[rec.ID] = rec
	return nil
}

// DeleteSession removes a record and its cached guidance.
func (s *MemoryStore) DeleteSession(_ context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, id)
	delete(s.guidance, id)
	return nil
}

// LoadGuidance returns a copy of the cached guidance.
func (s *MemoryStore) LoadGuidance(_ context.Context, sessionID string) (*CachedGuidance, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guidance[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyGuidance(g), nil
}

// SaveGuidance stores a copy of cached.
func (s *MemoryStore) SaveGuidance(_ context.Context, sessionID string, cached *CachedGuidance) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	if cached == nil {
		return ErrInvalidRecord
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	g := copyGuidance(cached)
	if g.ComputedAt.IsZero() {
		g.ComputedAt = s.now()
	}
	s.guidance[sessionID] = g
	return nil
}

// Len returns the number of live session records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *MemoryStore) expired(rec *SessionRecord, now time.Time) bool {
	return s.ttl > 0 && now.Sub(rec.LastAccessedAt) > s.ttl
}
