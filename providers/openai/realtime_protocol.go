// Package openai provides the OpenAI / Azure OpenAI Realtime transport.
package openai

import "encoding/json"

// Client Events - sent from client to server

// ClientEvent is the base structure for all client events.
type ClientEvent struct {
	EventID string `json:"event_id,omitempty"`
	Type    string `json:"type"`
}

// SessionUpdateEvent updates session configuration.
type SessionUpdateEvent struct {
	ClientEvent
	Session SessionConfig `json:"session"`
}

// SessionConfig is the session configuration sent in session.update.
// TurnDetection has no omitempty so an explicit null disables server VAD.
type SessionConfig struct {
	Modalities              []string             `json:"modalities,omitempty"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format,omitempty"`
	OutputAudioFormat       string               `json:"output_audio_format,omitempty"`
	InputAudioTranscription *TranscriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *TurnDetectionConfig `json:"turn_detection"`
	Temperature             float64              `json:"temperature,omitempty"`
}

// TranscriptionConfig configures input audio transcription.
type TranscriptionConfig struct {
	Model string `json:"model"`
}

// TurnDetectionConfig configures server-side VAD.
type TurnDetectionConfig struct {
	Type              string  `json:"type"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response"`
}

// InputAudioBufferAppendEvent appends audio to the input buffer.
type InputAudioBufferAppendEvent struct {
	ClientEvent
	Audio string `json:"audio"` // Base64-encoded audio data
}

// ConversationItemCreateEvent adds an item to the conversation.
type ConversationItemCreateEvent struct {
	ClientEvent
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

// ConversationItem represents an item in the conversation.
type ConversationItem struct {
	ID      string                `json:"id,omitempty"`
	Type    string                `json:"type"`           // "message"
	Status  string                `json:"status,omitempty"`
	Role    string                `json:"role,omitempty"` // "user", "assistant", "system"
	Content []ConversationContent `json:"content,omitempty"`
}

// ConversationContent represents content within a conversation item.
type ConversationContent struct {
	Type       string `json:"type"` // "input_text", "input_audio", "text", "audio"
	Text       string `json:"text,omitempty"`
	Audio      string `json:"audio,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// ResponseCreateEvent triggers a response from the model.
type ResponseCreateEvent struct {
	ClientEvent
	Response *ResponseConfig `json:"response,omitempty"`
}

// ResponseConfig configures a response.
type ResponseConfig struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// Server Events - received from server

// ServerEvent is implemented by every inbound event type. The set is closed:
// only types in this package can satisfy it, so switches over it are total
// once *UnknownEvent is handled.
type ServerEvent interface {
	Header() EventHeader
	serverEvent()
}

// EventHeader is the common envelope of every server event.
type EventHeader struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
}

// Header returns the envelope.
func (h EventHeader) Header() EventHeader { return h }

func (EventHeader) serverEvent() {}

// UnknownEvent carries a server event whose type is not modelled.
type UnknownEvent struct {
	EventHeader
	Raw json.RawMessage `json:"-"`
}

// ErrorEvent indicates an error occurred.
type ErrorEvent struct {
	EventHeader
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error information.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
	EventID string `json:"event_id,omitempty"`
}

// SessionCreatedEvent is sent when the session is established or updated.
type SessionCreatedEvent struct {
	EventHeader
	Session SessionInfo `json:"session"`
}

// SessionInfo contains session details.
type SessionInfo struct {
	ID    string `json:"id"`
	Model string `json:"model"`
	Voice string `json:"voice"`
}

// SpeechStartedEvent indicates server VAD detected the user speaking.
type SpeechStartedEvent struct {
	EventHeader
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

// SpeechStoppedEvent indicates server VAD detected the user stopped speaking.
type SpeechStoppedEvent struct {
	EventHeader
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

// InputTranscriptionDeltaEvent provides streaming user transcription.
type InputTranscriptionDeltaEvent struct {
	EventHeader
	ItemID string `json:"item_id"`
	Delta  string `json:"delta"`
}

// InputTranscriptionCompletedEvent provides the final user transcription.
type InputTranscriptionCompletedEvent struct {
	EventHeader
	ItemID     string `json:"item_id"`
	Transcript string `json:"transcript"`
}

// ResponseCreatedEvent indicates a response is starting.
type ResponseCreatedEvent struct {
	EventHeader
	Response ResponseInfo `json:"response"`
}

// ResponseInfo contains response details.
type ResponseInfo struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// TranscriptDeltaEvent is a streamed fragment of the agent's words. It covers
// the text and audio-transcript delta variants.
type TranscriptDeltaEvent struct {
	EventHeader
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"`
}

// TranscriptDoneEvent ends a text or audio-transcript stream.
type TranscriptDoneEvent struct {
	EventHeader
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Text       string `json:"text,omitempty"`
	Transcript string `json:"transcript,omitempty"`
}

// FinalText returns the completed text carried by the event, if any.
func (e *TranscriptDoneEvent) FinalText() string {
	if e.Transcript != "" {
		return e.Transcript
	}
	return e.Text
}

// AudioDeltaEvent provides streaming agent audio.
type AudioDeltaEvent struct {
	EventHeader
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
	Delta      string `json:"delta"` // Base64-encoded audio
}

// AudioDoneEvent indicates agent audio streaming completed.
type AudioDoneEvent struct {
	EventHeader
	ResponseID string `json:"response_id"`
	ItemID     string `json:"item_id"`
}

// ResponseDoneEvent indicates a response finished. It covers response.done
// and response.completed; the latter may carry the final transcript.
type ResponseDoneEvent struct {
	EventHeader
	Response   ResponseInfo `json:"response"`
	Transcript string       `json:"transcript,omitempty"`
}

// OutputAudioBufferEvent reports playback of agent audio starting or stopping.
type OutputAudioBufferEvent struct {
	EventHeader
	ResponseID string `json:"response_id"`
	Started    bool   `json:"-"`
}

// Server event type names.
const (
	TypeError                       = "error"
	TypeSessionCreated              = "session.created"
	TypeSessionUpdated              = "session.updated"
	TypeSpeechStarted               = "input_audio_buffer.speech_started"
	TypeSpeechStopped               = "input_audio_buffer.speech_stopped"
	TypeInputTranscriptionDelta     = "conversation.item.input_audio_transcription.delta"
	TypeInputTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeResponseCreated             = "response.created"
	TypeResponseDone                = "response.done"
	TypeResponseCompleted           = "response.completed"
	TypeTextDelta                   = "response.text.delta"
	TypeTextDone                    = "response.text.done"
	TypeOutputTextDelta             = "response.output_text.delta"
	TypeOutputTextDone              = "response.output_text.done"
	TypeAudioTranscriptDelta        = "response.audio_transcript.delta"
	TypeAudioTranscriptDone         = "response.audio_transcript.done"
	TypeOutputAudioTranscriptDelta  = "response.output_audio_transcript.delta"
	TypeOutputAudioTranscriptDone   = "response.output_audio_transcript.done"
	TypeAudioDelta                  = "response.audio.delta"
	TypeAudioDone                   = "response.audio.done"
	TypeOutputAudioStarted          = "output_audio_buffer.started"
	TypeOutputAudioStopped          = "output_audio_buffer.stopped"
	TypeResponseOutputAudioStarted  = "response.output_audio_buffer.started"
	TypeResponseOutputAudioStopped  = "response.output_audio_buffer.stopped"
)

// ParseServerEvent parses a raw JSON message into its concrete event type.
// Unmodelled types are returned as *UnknownEvent.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var base EventHeader
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, err
	}

	switch base.Type {
	case TypeError:
		return decodeInto(data, &ErrorEvent{})
	case TypeSessionCreated, TypeSessionUpdated:
		return decodeInto(data, &SessionCreatedEvent{})
	case TypeSpeechStarted:
		return decodeInto(data, &SpeechStartedEvent{})
	case TypeSpeechStopped:
		return decodeInto(data, &SpeechStoppedEvent{})
	case TypeInputTranscriptionDelta:
		return decodeInto(data, &InputTranscriptionDeltaEvent{})
	case TypeInputTranscriptionCompleted:
		return decodeInto(data, &InputTranscriptionCompletedEvent{})
	case TypeResponseCreated:
		return decodeInto(data, &ResponseCreatedEvent{})
	case TypeResponseDone, TypeResponseCompleted:
		return decodeInto(data, &ResponseDoneEvent{})
	case TypeTextDelta, TypeOutputTextDelta, TypeAudioTranscriptDelta, TypeOutputAudioTranscriptDelta:
		return decodeInto(data, &TranscriptDeltaEvent{})
	case TypeTextDone, TypeOutputTextDone, TypeAudioTranscriptDone, TypeOutputAudioTranscriptDone:
		return decodeInto(data, &TranscriptDoneEvent{})
	case TypeAudioDelta:
		return decodeInto(data, &AudioDeltaEvent{})
	case TypeAudioDone:
		return decodeInto(data, &AudioDoneEvent{})
	case TypeOutputAudioStarted, TypeResponseOutputAudioStarted:
		e := &OutputAudioBufferEvent{Started: true}
		return decodeInto(data, e)
	case TypeOutputAudioStopped, TypeResponseOutputAudioStopped:
		return decodeInto(data, &OutputAudioBufferEvent{})
	default:
		return &UnknownEvent{EventHeader: base, Raw: append(json.RawMessage(nil), data...)}, nil
	}
}

func decodeInto[T ServerEvent](data []byte, e T) (ServerEvent, error) {
	if err := json.Unmarshal(data, e); err != nil {
		return nil, err
	}
	return e, nil
}
