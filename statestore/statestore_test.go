package statestore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
)

func setupRedisStore(t *testing.T, opts ...RedisOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, opts...), mr
}

func sampleRecord() *SessionRecord {
	return &SessionRecord{
		ID:                "sess-1",
		ConversationToken: "tok-1",
		Provider:          "azure",
		Model:             "gpt-realtime",
		Voice:             "alloy",
		Checklist:         []string{"Confirm identity", "Offer discount"},
	}
}

func sampleGuidance() *CachedGuidance {
	next := 12.0
	return &CachedGuidance{
		TranscriptLen: 3,
		Response: guidance.Response{
			GuidanceID:      "guidance-3",
			GuidanceText:    "Ask about the billing date.",
			MissingItems:    []string{"Offer discount"},
			Tone:            "calm",
			NextPollSeconds: &next,
		},
	}
}

// storeContract runs the behaviour every Store must share.
func storeContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("save and load", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveSession(ctx, sampleRecord()))

		got, err := s.LoadSession(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, "tok-1", got.ConversationToken)
		assert.Equal(t, []string{"Confirm identity", "Offer discount"}, got.Checklist)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.LoadSession(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.LoadGuidance(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
		assert.ErrorIs(t, s.DeleteSession(ctx, "missing"), ErrNotFound)
	})

	t.Run("invalid input", func(t *testing.T) {
		s := newStore(t)
		assert.ErrorIs(t, s.SaveSession(ctx, nil), ErrInvalidRecord)
		assert.ErrorIs(t, s.SaveSession(ctx, &SessionRecord{}), ErrInvalidID)
		_, err := s.LoadSession(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidID)
		assert.ErrorIs(t, s.SaveGuidance(ctx, "", sampleGuidance()), ErrInvalidID)
		assert.ErrorIs(t, s.SaveGuidance(ctx, "sess-1", nil), ErrInvalidRecord)
	})

	t.Run("guidance cache", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveSession(ctx, sampleRecord()))
		require.NoError(t, s.SaveGuidance(ctx, "sess-1", sampleGuidance()))

		got, err := s.LoadGuidance(ctx, "sess-1")
		require.NoError(t, err)
		assert.Equal(t, 3, got.TranscriptLen)
		assert.Equal(t, "guidance-3", got.Response.GuidanceID)
		require.NotNil(t, got.Response.NextPollSeconds)
		assert.Equal(t, 12.0, *got.Response.NextPollSeconds)
	})

	t.Run("delete removes guidance", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.SaveSession(ctx, sampleRecord()))
		require.NoError(t, s.SaveGuidance(ctx, "sess-1", sampleGuidance()))
		require.NoError(t, s.DeleteSession(ctx, "sess-1"))

		_, err := s.LoadSession(ctx, "sess-1")
		assert.ErrorIs(t, err, ErrNotFound)
		_, err = s.LoadGuidance(ctx, "sess-1")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMemoryStore(t *testing.T) {
	storeContract(t, func(*testing.T) Store { return NewMemoryStore() })
}

func TestRedisStore(t *testing.T) {
	storeContract(t, func(t *testing.T) Store {
		s, _ := setupRedisStore(t)
		return s
	})
}

func TestMemoryStoreCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	rec := sampleRecord()
	require.NoError(t, s.SaveSession(ctx, rec))

	rec.Checklist[0] = "mutated"
	got, err := s.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Confirm identity", got.Checklist[0])

	got.Checklist[1] = "mutated"
	again, err := s.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, "Offer discount", again.Checklist[1])
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewMemoryStore(WithMemoryTTL(time.Minute), WithMemoryClock(func() time.Time { return now }))

	require.NoError(t, s.SaveSession(ctx, sampleRecord()))
	require.NoError(t, s.SaveGuidance(ctx, "sess-1", sampleGuidance()))

	now = now.Add(50 * time.Second)
	_, err := s.LoadSession(ctx, "sess-1")
	require.NoError(t, err, "access refreshes the TTL")

	now = now.Add(50 * time.Second)
	_, err = s.LoadSession(ctx, "sess-1")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = s.LoadSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.LoadGuidance(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 0, s.Len())
}

func TestRedisStoreKeysAndTTL(t *testing.T) {
	ctx := context.Background()
	s, mr := setupRedisStore(t, WithPrefix("test"), WithTTL(time.Hour))

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.SaveSession(ctx, sampleRecord()))
	require.NoError(t, s.SaveGuidance(ctx, "sess-1", sampleGuidance()))

	assert.True(t, mr.Exists("test:session:sess-1"))
	assert.True(t, mr.Exists("test:guidance:sess-1"))
	assert.Equal(t, time.Hour, mr.TTL("test:session:sess-1"))

	mr.FastForward(30 * time.Minute)
	_, err := s.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, time.Hour, mr.TTL("test:session:sess-1"), "load refreshes TTL")
	assert.Equal(t, time.Hour, mr.TTL("test:guidance:sess-1"))

	mr.FastForward(2 * time.Hour)
	_, err = s.LoadSession(ctx, "sess-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreCorruptRecord(t *testing.T) {
	s, mr := setupRedisStore(t)
	require.NoError(t, mr.Set("voicemod:session:bad", "{not json"))

	_, err := s.LoadSession(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestRedisStoreUnavailable(t *testing.T) {
	s, mr := setupRedisStore(t)
	mr.Close()

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis ping failed")
}
