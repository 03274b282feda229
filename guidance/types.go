// Package guidance defines the moderator guidance wire format, the
// instruction delimiters and an HTTP client for the guidance endpoint.
package guidance

import (
	"encoding/json"
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// Tone is the customer tone reported with guidance.
type Tone string

// Tone labels.
const (
	ToneNegative Tone = "negative"
	ToneNeutral  Tone = "neutral"
	TonePositive Tone = "positive"
)

// Valid reports whether t is one of the known labels. The empty tone means
// absent and is also valid.
func (t Tone) Valid() bool {
	switch t {
	case "", ToneNegative, ToneNeutral, TonePositive:
		return true
	}
	return false
}

// Request is the body of a guidance poll.
type Request struct {
	SessionID  string               `json:"session_id"`
	Transcript []transcript.Segment `json:"transcript"`
}

// Response is one piece of moderator guidance. Responses are identified by
// GuidanceID; the same id is never delivered twice.
type Response struct {
	GuidanceID      string   `json:"guidance_id"`
	GuidanceText    string   `json:"guidance_text"`
	MissingItems    []string `json:"missing_items"`
	Tone            Tone     `json:"tone_alert,omitempty"`
	NextPollSeconds *float64 `json:"next_poll_seconds,omitempty"`
}

// responseWire accepts the field aliases some servers send.
type responseWire struct {
	GuidanceID            string   `json:"guidance_id"`
	GuidanceText          string   `json:"guidance_text"`
	MissingItems          []string `json:"missing_items"`
	MissingChecklistItems []string `json:"missing_checklist_items"`
	ToneAlert             *Tone    `json:"tone_alert"`
	ToneLegacy            *Tone    `json:"tone"`
	NextPollSeconds       *float64 `json:"next_poll_seconds"`
}

// UnmarshalJSON decodes a response, accepting missing_checklist_items and
// tone as aliases for missing_items and tone_alert. Unknown tones decode as
// absent.
func (r *Response) UnmarshalJSON(data []byte) error {
	var w responseWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*r = Response{
		GuidanceID:      w.GuidanceID,
		GuidanceText:    w.GuidanceText,
		MissingItems:    w.MissingItems,
		NextPollSeconds: w.NextPollSeconds,
	}
	if r.MissingItems == nil {
		r.MissingItems = w.MissingChecklistItems
	}
	switch {
	case w.ToneAlert != nil:
		r.Tone = *w.ToneAlert
	case w.ToneLegacy != nil:
		r.Tone = *w.ToneLegacy
	}
	if !r.Tone.Valid() {
		r.Tone = ""
	}
	return nil
}

// HasText reports whether the response carries deliverable guidance.
func (r *Response) HasText() bool {
	return r != nil && r.GuidanceText != ""
}

// NextPoll returns the server-suggested poll interval, or zero when absent.
func (r *Response) NextPoll() time.Duration {
	if r == nil || r.NextPollSeconds == nil || *r.NextPollSeconds <= 0 {
		return 0
	}
	return time.Duration(*r.NextPollSeconds * float64(time.Second))
}
