package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/sessions"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/statestore"
)

// Error details returned in {"detail": ...} bodies.
const (
	detailSessionNotFound = "session_not_found"
	detailRealtimeFailed  = "realtime_session_failed"
	detailRateLimited     = "rate_limited"
	detailGuidanceFailed  = "guidance_failed"
	detailStoreFailed     = "session_store_failed"
	detailBodyTooLarge    = "request_too_large"
)

// Guidance sources for metrics.
const (
	sourceEngine = "engine"
	sourceCache  = "cache"
)

// CreateSessionRequest is the optional body of POST /api/sessions.
type CreateSessionRequest struct {
	ParticipantName string `json:"participant_name,omitempty"`
}

// SessionResponse is returned by POST /api/sessions.
type SessionResponse struct {
	SessionID         string    `json:"session_id"`
	ConversationToken string    `json:"conversation_token"`
	Provider          string    `json:"provider"`
	Model             string    `json:"model"`
	RealtimeURL       string    `json:"realtime_url"`
	EphemeralKey      string    `json:"ephemeral_key"`
	ExpiresAt         time.Time `json:"expires_at"`
	VoiceName         string    `json:"voice_name"`
	Checklist         []string  `json:"checklist"`
}

type errorBody struct {
	Detail any `json:"detail"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	var req CreateSessionRequest
	if len(strings.TrimSpace(string(body))) > 0 {
		if errs := s.schemas.validate(s.schemas.session, body); errs != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: errs})
			return
		}
		if err := json.Unmarshal(body, &req); err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
			return
		}
	}

	ctx := r.Context()
	profile := s.engine.Profile()
	instructions := profile.Instructions(req.ParticipantName)
	if s.defaults.Persona != "" {
		p := *profile
		p.Persona = s.defaults.Persona
		instructions = p.Instructions(req.ParticipantName)
	}

	minted, err := s.minter.Mint(ctx, sessions.Request{
		Model:              s.defaults.Model,
		Voice:              s.defaults.Voice,
		Instructions:       instructions,
		TranscriptionModel: s.defaults.TranscriptionModel,
	})
	s.metrics.RecordSessionMinted(s.minter.Provider(), err)
	if err != nil {
		if errors.Is(err, sessions.ErrNotConfigured) {
			logger.ErrorContext(ctx, "Session creation failed (config error)", "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Detail: err.Error()})
			return
		}
		logger.ErrorContext(ctx, "Session creation failed (provider error)", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: detailRealtimeFailed})
		return
	}

	record := &statestore.SessionRecord{
		ID:                uuid.NewString(),
		ConversationToken: uuid.NewString(),
		Provider:          minted.Provider,
		Model:             minted.Model,
		Voice:             minted.Voice,
		ParticipantName:   req.ParticipantName,
		Checklist:         profile.Keys(),
		CreatedAt:         s.now().UTC(),
	}
	if err := s.store.SaveSession(ctx, record); err != nil {
		logger.ErrorContext(ctx, "Failed to store session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: detailStoreFailed})
		return
	}
	logger.InfoContext(logger.WithSessionID(ctx, record.ID), "Session minted",
		"provider", record.Provider, "model", record.Model)

	writeJSON(w, http.StatusOK, SessionResponse{
		SessionID:         record.ID,
		ConversationToken: record.ConversationToken,
		Provider:          minted.Provider,
		Model:             minted.Model,
		RealtimeURL:       minted.URL,
		EphemeralKey:      minted.EphemeralKey,
		ExpiresAt:         minted.ExpiresAt,
		VoiceName:         minted.Voice,
		Checklist:         record.Checklist,
	})
}

func (s *Server) handleGuidance(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r)
	if !ok {
		return
	}
	if errs := s.schemas.validate(s.schemas.guidance, body); errs != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: errs})
		return
	}
	var req guidance.Request
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Detail: err.Error()})
		return
	}

	ctx := logger.WithSessionID(r.Context(), req.SessionID)
	if _, err := s.store.LoadSession(ctx, req.SessionID); err != nil {
		if errors.Is(err, statestore.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorBody{Detail: detailSessionNotFound})
			return
		}
		logger.ErrorContext(ctx, "Failed to load session", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{Detail: detailStoreFailed})
		return
	}

	if ok, retryAfter := s.limiters.allow(req.SessionID); !ok {
		w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Round(time.Second)/time.Second)+1))
		writeJSON(w, http.StatusTooManyRequests, errorBody{Detail: detailRateLimited})
		return
	}

	var lastAt time.Time
	if n := len(req.Transcript); n > 0 {
		lastAt = req.Transcript[n-1].Timestamp
	}
	cached, err := s.store.LoadGuidance(ctx, req.SessionID)
	if err == nil && cached.TranscriptLen == len(req.Transcript) && cached.LastSegmentAt.Equal(lastAt) {
		s.metrics.RecordGuidanceServed(sourceCache)
		writeJSON(w, http.StatusOK, cached.Response)
		return
	}
	if err != nil && !errors.Is(err, statestore.ErrNotFound) {
		logger.WarnContext(ctx, "Guidance cache unavailable", "error", err)
	}

	resp, err := s.engine.Analyse(ctx, req.Transcript)
	if err != nil {
		logger.ErrorContext(ctx, "Guidance generation failed", "error", err)
		writeJSON(w, http.StatusBadGateway, errorBody{Detail: detailGuidanceFailed})
		return
	}
	if err := s.store.SaveGuidance(ctx, req.SessionID, &statestore.CachedGuidance{
		TranscriptLen: len(req.Transcript),
		LastSegmentAt: lastAt,
		Response:      *resp,
		ComputedAt:    s.now().UTC(),
	}); err != nil {
		logger.WarnContext(ctx, "Failed to cache guidance", "error", err)
	}
	s.metrics.RecordGuidanceServed(sourceEngine)
	logger.DebugContext(logger.WithGuidanceID(ctx, resp.GuidanceID), "Guidance generated",
		"missing", len(resp.MissingItems), "tone", resp.Tone)
	writeJSON(w, http.StatusOK, resp)
}

// readBody reads a size-limited request body, answering 413 when too large.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodySize))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Detail: detailBodyTooLarge})
			return nil, false
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Detail: err.Error()})
		return nil, false
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
