package logger

import (
	"context"
	"strconv"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey string

// Context keys for common logging fields. Values stored under these keys are
// added to every record logged with the context.
const (
	// ContextKeySessionID identifies the realtime session.
	ContextKeySessionID contextKey = "session_id"

	// ContextKeyTurnToken identifies the turn token a coordinator task belongs to.
	ContextKeyTurnToken contextKey = "turn_token"

	// ContextKeyGuidanceID identifies the moderator guidance being handled.
	ContextKeyGuidanceID contextKey = "guidance_id"

	// ContextKeyRequestID identifies the individual HTTP request.
	ContextKeyRequestID contextKey = "request_id"

	// ContextKeyProvider identifies the realtime or LLM provider (e.g., "openai", "azure").
	ContextKeyProvider contextKey = "provider"
)

var allContextKeys = []contextKey{
	ContextKeySessionID,
	ContextKeyTurnToken,
	ContextKeyGuidanceID,
	ContextKeyRequestID,
	ContextKeyProvider,
}

// WithSessionID returns a new context with the session ID set.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, ContextKeySessionID, sessionID)
}

// WithTurnToken returns a new context with the turn token set.
func WithTurnToken(ctx context.Context, token uint64) context.Context {
	return context.WithValue(ctx, ContextKeyTurnToken, strconv.FormatUint(token, 10))
}

// WithGuidanceID returns a new context with the guidance ID set.
func WithGuidanceID(ctx context.Context, guidanceID string) context.Context {
	return context.WithValue(ctx, ContextKeyGuidanceID, guidanceID)
}

// WithRequestID returns a new context with the request ID set.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// WithProvider returns a new context with the provider name set.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ContextKeyProvider, provider)
}

// LoggingFields holds all standard logging context fields.
type LoggingFields struct {
	SessionID  string
	TurnToken  string
	GuidanceID string
	RequestID  string
	Provider   string
}

// ExtractLoggingFields extracts all logging fields from a context.
func ExtractLoggingFields(ctx context.Context) LoggingFields {
	get := func(k contextKey) string {
		s, _ := ctx.Value(k).(string)
		return s
	}
	return LoggingFields{
		SessionID:  get(ContextKeySessionID),
		TurnToken:  get(ContextKeyTurnToken),
		GuidanceID: get(ContextKeyGuidanceID),
		RequestID:  get(ContextKeyRequestID),
		Provider:   get(ContextKeyProvider),
	}
}
