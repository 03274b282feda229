package events

import (
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// EventType identifies the type of event emitted by a voice session.
type EventType string

const (
	// EventConnectionStateChanged marks a realtime connection state change.
	EventConnectionStateChanged EventType = "connection.state_changed"
	// EventRemoteMediaAvailable marks the agent's media stream becoming available.
	EventRemoteMediaAvailable EventType = "media.remote_available"
	// EventRemoteMediaEnded marks the agent's media stream ending.
	EventRemoteMediaEnded EventType = "media.remote_ended"
	// EventMuteChanged marks a local microphone mute change.
	EventMuteChanged EventType = "audio.mute_changed"

	// EventRealtimeEvent carries every inbound realtime protocol event, normalized.
	EventRealtimeEvent EventType = "realtime.event"
	// EventRealtimeError marks an error event sent by the realtime service.
	EventRealtimeError EventType = "realtime.error"

	// EventUserSpeech marks the human starting or stopping speech.
	EventUserSpeech EventType = "speech.user"
	// EventAgentSpeech marks the agent starting or stopping speech.
	EventAgentSpeech EventType = "speech.agent"
	// EventAgentTurnDone marks the agent finishing a response.
	EventAgentTurnDone EventType = "speech.agent_turn_done"
	// EventSpeakingChanged marks a change of the detector's speaking state.
	EventSpeakingChanged EventType = "speaking.changed"

	// EventTranscriptSegment marks a completed transcript segment.
	EventTranscriptSegment EventType = "transcript.segment"

	// EventGuidancePolled marks a completed guidance request, successful or not.
	EventGuidancePolled EventType = "guidance.polled"
	// EventGuidanceReceived marks new non-empty guidance from the moderator.
	EventGuidanceReceived EventType = "guidance.received"
	// EventGuidanceDelivered marks guidance injected into the live conversation.
	EventGuidanceDelivered EventType = "guidance.delivered"
	// EventTurnRequested marks a request for the agent's next turn.
	EventTurnRequested EventType = "turn.requested"
	// EventTurnRetryScheduled marks a turn action postponed for later.
	EventTurnRetryScheduled EventType = "turn.retry_scheduled"
)

// EventData is a marker interface for event payloads. Only types in this
// package implement it, so a type switch over EventData is closed.
type EventData interface {
	eventData()
}

// Event represents a session event delivered to listeners.
type Event struct {
	Type      EventType
	Timestamp time.Time
	SessionID string
	Data      EventData
}

// baseEventData provides the shared marker implementation for all event payloads.
type baseEventData struct{}

func (baseEventData) eventData() {}

// ConnectionState is the lifecycle state of a realtime connection.
type ConnectionState string

// Connection states reported by EventConnectionStateChanged.
const (
	ConnectionConnecting   ConnectionState = "connecting"
	ConnectionConnected    ConnectionState = "connected"
	ConnectionDisconnected ConnectionState = "disconnected"
	ConnectionFailed       ConnectionState = "failed"
)

// ConnectionStateData contains connection state change information.
type ConnectionStateData struct {
	baseEventData
	State ConnectionState
	Err   error
}

// RemoteMediaData describes the agent's media stream becoming available or ending.
type RemoteMediaData struct {
	baseEventData
	Available bool
}

// MuteChangedData contains the new mute state.
type MuteChangedData struct {
	baseEventData
	Muted bool
}

// RealtimeEventData carries one inbound protocol event.
type RealtimeEventData struct {
	baseEventData
	Kind    string
	EventID string
	Payload any
}

// RealtimeErrorData contains an error reported by the realtime service.
type RealtimeErrorData struct {
	baseEventData
	Code    string
	Message string
}

// SpeechSource says which detector produced a speech signal.
type SpeechSource string

// Speech sources.
const (
	SourceRemote SpeechSource = "remote"
	SourceLocal  SpeechSource = "local"
)

// UserSpeechData reports the human starting or stopping speech.
type UserSpeechData struct {
	baseEventData
	Speaking bool
	Source   SpeechSource
}

// AgentSpeechData reports the agent starting or stopping speech.
type AgentSpeechData struct {
	baseEventData
	Speaking bool
}

// AgentTurnDoneData reports the end of an agent response.
type AgentTurnDoneData struct {
	baseEventData
	ResponseID string
}

// SpeakingChangedData reports a detector state change ("idle", "human", "agent").
type SpeakingChangedData struct {
	baseEventData
	State     string
	PrevState string
}

// TranscriptSegmentData carries a completed transcript segment.
type TranscriptSegmentData struct {
	baseEventData
	Segment transcript.Segment
}

// GuidancePolledData describes one guidance request.
type GuidancePolledData struct {
	baseEventData
	Segments int
	Duration time.Duration
	Err      error
}

// GuidanceReceivedData describes guidance accepted as pending.
type GuidanceReceivedData struct {
	baseEventData
	GuidanceID   string
	Text         string
	MissingItems []string
	Tone         string
}

// GuidanceDeliveredData describes guidance injected into the conversation.
type GuidanceDeliveredData struct {
	baseEventData
	GuidanceID string
	Token      uint64
	Attempts   int
}

// TurnRequestedData describes a turn-advance command sent for a token.
type TurnRequestedData struct {
	baseEventData
	Token        uint64
	WithGuidance bool
}

// TurnRetryScheduledData describes a postponed turn action.
type TurnRetryScheduledData struct {
	baseEventData
	Token  uint64
	Reason string
	Delay  time.Duration
}
