package statestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPrefix is the default Redis key prefix.
const DefaultPrefix = "voicemod"

// RedisStore is a Redis-backed Store. Records are stored as JSON and expire
// after the configured TTL, refreshed on every load.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// RedisOption configures a RedisStore.
type RedisOption func(*RedisStore)

// WithTTL sets the time-to-live for records. Zero disables expiry.
func WithTTL(ttl time.Duration) RedisOption {
	return func(s *RedisStore) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for Redis keys.
func WithPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore creates a new Redis-backed store.
//
// Example:
//
//	store := NewRedisStore(
//	    redis.NewClient(&redis.Options{Addr: "localhost:6379"}),
//	    WithTTL(2 * time.Hour),
//	)
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	store := &RedisStore{
		client: client,
		ttl:    DefaultTTL,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// Ping checks connectivity.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// LoadSession retrieves a session record and refreshes its TTL.
func (s *RedisStore) LoadSession(ctx context.Context, id string) (*SessionRecord, error) {
	if id == "" {
		return nil, ErrInvalidID
	}

	var rec SessionRecord
	if err := s.getJSON(ctx, s.sessionKey(id), &rec); err != nil {
		return nil, err
	}
	if s.ttl > 0 {
		pipe := s.client.Pipeline()
		pipe.Expire(ctx, s.sessionKey(id), s.ttl)
		pipe.Expire(ctx, s.guidanceKey(id), s.ttl)
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("redis pipeline failed: %w", err)
		}
	}
	return &rec, nil
}

// SaveSession persists a session record with TTL.
func (s *RedisStore) SaveSession(ctx context.Context, record *SessionRecord) error {
	if record == nil {
		return ErrInvalidRecord
	}
	if record.ID == "" {
		return ErrInvalidID
	}

	rec := copyRecord(record)
	rec.LastAccessedAt = time.Now()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.LastAccessedAt
	}
	return s.setJSON(ctx, s.sessionKey(rec.ID), rec)
}

// DeleteSession removes a session record and its cached guidance.
func (s *RedisStore) DeleteSession(ctx context.Context, id string) error {
	if id == "" {
		return ErrInvalidID
	}

	pipe := s.client.Pipeline()
	delCmd := pipe.Del(ctx, s.sessionKey(id))
	pipe.Del(ctx, s.guidanceKey(id))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	if delCmd.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

// LoadGuidance returns the cached guidance for a session.
func (s *RedisStore) LoadGuidance(ctx context.Context, sessionID string) (*CachedGuidance, error) {
	if sessionID == "" {
		return nil, ErrInvalidID
	}
	var g CachedGuidance
	if err := s.getJSON(ctx, s.guidanceKey(sessionID), &g); err != nil {
		return nil, err
	}
	return &g, nil
}

// SaveGuidance replaces the cached guidance for a session.
func (s *RedisStore) SaveGuidance(ctx context.Context, sessionID string, cached *CachedGuidance) error {
	if sessionID == "" {
		return ErrInvalidID
	}
	if cached == nil {
		return ErrInvalidRecord
	}
	g := copyGuidance(cached)
	if g.ComputedAt.IsZero() {
		g.ComputedAt = time.Now()
	}
	return s.setJSON(ctx, s.guidanceKey(sessionID), g)
}

func (s *RedisStore) getJSON(ctx context.Context, key string, v any) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		return fmt.Errorf("redis get failed: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return nil
}

func (s *RedisStore) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *RedisStore) guidanceKey(id string) string {
	return fmt.Sprintf("%s:guidance:%s", s.prefix, id)
}
