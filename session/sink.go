package session

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/audio"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/events"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// Sink receives what a user interface shows for one session. Methods are
// called from the session's goroutines and must not block.
type Sink interface {
	// OnSegment is called for each completed segment with the display window.
	OnSegment(seg transcript.Segment, recent []transcript.Segment)

	// OnGuidance is called for each new guidance response. parsed is only
	// meaningful when ok is true.
	OnGuidance(text string, parsed guidance.Parsed, ok bool, missing []string)

	OnSpeakingState(state audio.SpeakingState)
	OnConnectionState(state events.ConnectionState, err error)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) OnSegment(transcript.Segment, []transcript.Segment) {}
func (NopSink) OnGuidance(string, guidance.Parsed, bool, []string) {}
func (NopSink) OnSpeakingState(audio.SpeakingState) {}
func (NopSink) OnConnectionState(events.ConnectionState, error) {}

// TextSink writes a line-oriented log of the session to w.
type TextSink struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewTextSink creates a TextSink writing to w.
func NewTextSink(w io.Writer) *TextSink {
	return &TextSink{w: w, now: time.Now}
}

func (s *TextSink) printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintf(s.w, format, args...)
}

// OnSegment prints the segment with its actor.
func (s *TextSink) OnSegment(seg transcript.Segment, _ []transcript.Segment) {
	s.printf("[%s] %-8s %s\n", seg.Timestamp.Format("15:04:05"), seg.Actor, seg.Text)
}

// OnGuidance prints the parsed Checklist/Coach/Prompt block, or the raw text
// when it does not parse.
func (s *TextSink) OnGuidance(text string, parsed guidance.Parsed, ok bool, missing []string) {
	var b strings.Builder
	b.WriteString("--- moderator ---\n")
	if ok {
		fmt.Fprintf(&b, "  checklist: %s\n  coach:     %s\n  prompt:    %s\n", parsed.Checklist, parsed.Coach, parsed.Prompt)
	} else {
		fmt.Fprintf(&b, "  %s\n", strings.TrimSpace(text))
	}
	if len(missing) > 0 {
		fmt.Fprintf(&b, "  missing:   %s\n", strings.Join(missing, ", "))
	}
	s.printf("%s", b.String())
}

// OnSpeakingState prints speaking transitions.
func (s *TextSink) OnSpeakingState(state audio.SpeakingState) {
	s.printf("[%s] speaking: %s\n", s.now().Format("15:04:05"), state)
}

// OnConnectionState prints connection transitions.
func (s *TextSink) OnConnectionState(state events.ConnectionState, err error) {
	if err != nil {
		s.printf("connection %s: %v\n", state, err)
		return
	}
	s.printf("connection %s\n", state)
}
