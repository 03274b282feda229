// Package statestore persists realtime session records and the last guidance
// computed for each session.
package statestore

import (
	"context"
	"errors"
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
)

// DefaultTTL is how long records live without access.
const DefaultTTL = 2 * time.Hour

// Store defines session and guidance-cache storage.
type Store interface {
	// LoadSession retrieves a session record. Returns ErrNotFound if absent.
	LoadSession(ctx context.Context, id string) (*SessionRecord, error)

	// SaveSession creates or replaces a session record.
	SaveSession(ctx context.Context, record *SessionRecord) error

	// DeleteSession removes a session record and its cached guidance.
	DeleteSession(ctx context.Context, id string) error

	// LoadGuidance returns the cached guidance for a session, or ErrNotFound.
	LoadGuidance(ctx context.Context, sessionID string) (*CachedGuidance, error)

	// SaveGuidance replaces the cached guidance for a session.
	SaveGuidance(ctx context.Context, sessionID string, cached *CachedGuidance) error
}

// SessionRecord is what the API remembers about a minted session.
type SessionRecord struct {
	ID                string    `json:"session_id"`
	ConversationToken string    `json:"conversation_token"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`
	Voice             string    `json:"voice_name"`
	ParticipantName   string    `json:"participant_name,omitempty"`
	Checklist         []string  `json:"checklist"`
	CreatedAt         time.Time `json:"created_at"`
	LastAccessedAt    time.Time `json:"last_accessed_at"`
}

// CachedGuidance is the guidance computed for a transcript, identified by
// its length and the timestamp of its last segment.
type CachedGuidance struct {
	TranscriptLen int               `json:"transcript_len"`
	LastSegmentAt time.Time         `json:"last_segment_at"`
	Response      guidance.Response `json:"response"`
	ComputedAt    time.Time         `json:"computed_at"`
}

// ErrNotFound is returned when a record doesn't exist in the store.
var ErrNotFound = errors.New("session not found")

// ErrInvalidID is returned when an empty session ID is provided.
var ErrInvalidID = errors.New("invalid session ID")

// ErrInvalidRecord is returned when a nil record is saved.
var ErrInvalidRecord = errors.New("invalid session record")

func copyRecord(r *SessionRecord) *SessionRecord {
	c := *r
	c.Checklist = append([]string(nil), r.Checklist...)
	return &c
}

func copyGuidance(g *CachedGuidance) *CachedGuidance {
	c := *g
	c.Response.MissingItems = append([]string(nil), g.Response.MissingItems...)
	if g.Response.NextPollSeconds != nil {
		v := *g.Response.NextPollSeconds
		c.Response.NextPollSeconds = &v
	}
	return &c
}
