package events

import (
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// Emitter provides helpers for publishing session events with shared metadata.
type Emitter struct {
	bus       *EventBus
	sessionID string
	now       func() time.Time
}

// NewEmitter creates a new event emitter. A nil bus is allowed; events are
// then built but not published.
func NewEmitter(bus *EventBus, sessionID string) *Emitter {
	return &Emitter{
		bus:       bus,
		sessionID: sessionID,
		now:       time.Now,
	}
}

// SessionID returns the session the emitter stamps on events.
func (e *Emitter) SessionID() string {
	if e == nil {
		return ""
	}
	return e.sessionID
}

// Emit builds an event with shared context fields, publishes it and returns it.
func (e *Emitter) Emit(eventType EventType, data EventData) *Event {
	event := &Event{
		Type: eventType,
		Data: data,
	}
	if e == nil {
		event.Timestamp = time.Now()
		return event
	}
	event.Timestamp = e.now()
	event.SessionID = e.sessionID
	if e.bus != nil {
		e.bus.Publish(event)
	}
	return event
}

// ConnectionStateChanged emits the connection.state_changed event.
func (e *Emitter) ConnectionStateChanged(state ConnectionState, err error) *Event {
	return e.Emit(EventConnectionStateChanged, ConnectionStateData{State: state, Err: err})
}

// RemoteMedia emits media.remote_available or media.remote_ended.
func (e *Emitter) RemoteMedia(available bool) *Event {
	if available {
		return e.Emit(EventRemoteMediaAvailable, RemoteMediaData{Available: true})
	}
	return e.Emit(EventRemoteMediaEnded, RemoteMediaData{Available: false})
}

// MuteChanged emits the audio.mute_changed event.
func (e *Emitter) MuteChanged(muted bool) *Event {
	return e.Emit(EventMuteChanged, MuteChangedData{Muted: muted})
}

// RealtimeEvent emits the realtime.event event for an inbound protocol event.
func (e *Emitter) RealtimeEvent(kind, eventID string, payload any) *Event {
	return e.Emit(EventRealtimeEvent, RealtimeEventData{Kind: kind, EventID: eventID, Payload: payload})
}

// RealtimeError emits the realtime.error event.
func (e *Emitter) RealtimeError(code, message string) *Event {
	return e.Emit(EventRealtimeError, RealtimeErrorData{Code: code, Message: message})
}

// UserSpeech emits the speech.user event.
func (e *Emitter) UserSpeech(speaking bool, source SpeechSource) *Event {
	return e.Emit(EventUserSpeech, UserSpeechData{Speaking: speaking, Source: source})
}

// AgentSpeech emits the speech.agent event.
func (e *Emitter) AgentSpeech(speaking bool) *Event {
	return e.Emit(EventAgentSpeech, AgentSpeechData{Speaking: speaking})
}

// AgentTurnDone emits the speech.agent_turn_done event.
func (e *Emitter) AgentTurnDone(responseID string) *Event {
	return e.Emit(EventAgentTurnDone, AgentTurnDoneData{ResponseID: responseID})
}

// SpeakingChanged emits the speaking.changed event.
func (e *Emitter) SpeakingChanged(state, prev string) *Event {
	return e.Emit(EventSpeakingChanged, SpeakingChangedData{State: state, PrevState: prev})
}

// TranscriptSegment emits the transcript.segment event.
func (e *Emitter) TranscriptSegment(seg transcript.Segment) *Event {
	return e.Emit(EventTranscriptSegment, TranscriptSegmentData{Segment: seg})
}

// GuidancePolled emits the guidance.polled event.
func (e *Emitter) GuidancePolled(segments int, duration time.Duration, err error) *Event {
	return e.Emit(EventGuidancePolled, GuidancePolledData{Segments: segments, Duration: duration, Err: err})
}

// GuidanceReceived emits the guidance.received event.
func (e *Emitter) GuidanceReceived(guidanceID, text string, missing []string, tone string) *Event {
	return e.Emit(EventGuidanceReceived, GuidanceReceivedData{
		GuidanceID:   guidanceID,
		Text:         text,
		MissingItems: missing,
		Tone:         tone,
	})
}

// GuidanceDelivered emits the guidance.delivered event.
func (e *Emitter) GuidanceDelivered(guidanceID string, token uint64, attempts int) *Event {
	return e.Emit(EventGuidanceDelivered, GuidanceDeliveredData{
		GuidanceID: guidanceID,
		Token:      token,
		Attempts:   attempts,
	})
}

// TurnRequested emits the turn.requested event.
func (e *Emitter) TurnRequested(token uint64, withGuidance bool) *Event {
	return e.Emit(EventTurnRequested, TurnRequestedData{Token: token, WithGuidance: withGuidance})
}

// TurnRetryScheduled emits the turn.retry_scheduled event.
func (e *Emitter) TurnRetryScheduled(token uint64, reason string, delay time.Duration) *Event {
	return e.Emit(EventTurnRetryScheduled, TurnRetryScheduledData{Token: token, Reason: reason, Delay: delay})
}
