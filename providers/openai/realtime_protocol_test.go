package openai

import (
	"encoding/json"
	"testing"
)

func TestParseServerEvent(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		check func(t *testing.T, ev ServerEvent)
	}{
		{
			name: "error event",
			data: `{"event_id":"evt_1","type":"error","error":{"type":"invalid_request_error","code":"bad","message":"nope"}}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*ErrorEvent)
				if !ok {
					t.Fatalf("got %T, want *ErrorEvent", ev)
				}
				if e.Error.Code != "bad" || e.Error.Message != "nope" {
					t.Errorf("unexpected error detail: %+v", e.Error)
				}
			},
		},
		{
			name: "session.updated maps to session event",
			data: `{"event_id":"evt_2","type":"session.updated","session":{"id":"sess_1","model":"m"}}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*SessionCreatedEvent)
				if !ok {
					t.Fatalf("got %T, want *SessionCreatedEvent", ev)
				}
				if e.Session.ID != "sess_1" || e.Header().Type != TypeSessionUpdated {
					t.Errorf("unexpected session event: %+v", e)
				}
			},
		},
		{
			name: "output audio transcript delta",
			data: `{"type":"response.output_audio_transcript.delta","response_id":"r1","delta":"Hel"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*TranscriptDeltaEvent)
				if !ok {
					t.Fatalf("got %T, want *TranscriptDeltaEvent", ev)
				}
				if e.Delta != "Hel" || e.ResponseID != "r1" {
					t.Errorf("unexpected delta: %+v", e)
				}
			},
		},
		{
			name: "text done carries text",
			data: `{"type":"response.output_text.done","text":"Hello"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*TranscriptDoneEvent)
				if !ok {
					t.Fatalf("got %T, want *TranscriptDoneEvent", ev)
				}
				if e.FinalText() != "Hello" {
					t.Errorf("FinalText() = %q", e.FinalText())
				}
			},
		},
		{
			name: "audio transcript done prefers transcript",
			data: `{"type":"response.audio_transcript.done","transcript":"Hi there"}`,
			check: func(t *testing.T, ev ServerEvent) {
				if got := ev.(*TranscriptDoneEvent).FinalText(); got != "Hi there" {
					t.Errorf("FinalText() = %q", got)
				}
			},
		},
		{
			name: "response.completed",
			data: `{"type":"response.completed","response":{"id":"r2"},"transcript":"Bye"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*ResponseDoneEvent)
				if !ok {
					t.Fatalf("got %T, want *ResponseDoneEvent", ev)
				}
				if e.Response.ID != "r2" || e.Transcript != "Bye" {
					t.Errorf("unexpected response done: %+v", e)
				}
			},
		},
		{
			name: "output audio buffer started with prefix",
			data: `{"type":"response.output_audio_buffer.started","response_id":"r3"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*OutputAudioBufferEvent)
				if !ok || !e.Started {
					t.Fatalf("got %#v, want started buffer event", ev)
				}
			},
		},
		{
			name: "output audio buffer stopped",
			data: `{"type":"output_audio_buffer.stopped"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*OutputAudioBufferEvent)
				if !ok || e.Started {
					t.Fatalf("got %#v, want stopped buffer event", ev)
				}
			},
		},
		{
			name: "input transcription completed",
			data: `{"type":"conversation.item.input_audio_transcription.completed","item_id":"i1","transcript":"four"}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*InputTranscriptionCompletedEvent)
				if !ok || e.Transcript != "four" {
					t.Fatalf("got %#v", ev)
				}
			},
		},
		{
			name: "unknown type",
			data: `{"event_id":"evt_9","type":"rate_limits.updated","rate_limits":[]}`,
			check: func(t *testing.T, ev ServerEvent) {
				e, ok := ev.(*UnknownEvent)
				if !ok {
					t.Fatalf("got %T, want *UnknownEvent", ev)
				}
				if e.Type != "rate_limits.updated" || len(e.Raw) == 0 {
					t.Errorf("unexpected unknown event: %+v", e)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseServerEvent([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseServerEvent() error = %v", err)
			}
			tt.check(t, ev)
		})
	}
}

func TestParseServerEvent_InvalidJSON(t *testing.T) {
	if _, err := ParseServerEvent([]byte(`{not json`)); err == nil {
		t.Error("expected error for invalid JSON")
	}
	if _, err := ParseServerEvent([]byte(`{"type":"error","error":"oops"}`)); err == nil {
		t.Error("expected error for mistyped payload")
	}
}

func TestClientEventSerialization(t *testing.T) {
	msg := ConversationItemCreateEvent{
		ClientEvent: ClientEvent{Type: "conversation.item.create"},
		Item: ConversationItem{
			Type:    "message",
			Role:    "system",
			Content: []ConversationContent{{Type: "input_text", Text: "hi"}},
		},
	}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded["type"] != "conversation.item.create" {
		t.Errorf("type = %v", decoded["type"])
	}
	item := decoded["item"].(map[string]any)
	if item["role"] != "system" {
		t.Errorf("role = %v", item["role"])
	}

	cfg := DefaultSessionConfig("be brief")
	data, err = json.Marshal(SessionUpdateEvent{ClientEvent: ClientEvent{Type: "session.update"}, Session: cfg})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var update struct {
		Session struct {
			TurnDetection map[string]any `json:"turn_detection"`
		} `json:"session"`
	}
	if err := json.Unmarshal(data, &update); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if update.Session.TurnDetection["create_response"] != false {
		t.Errorf("create_response = %v, want false", update.Session.TurnDetection["create_response"])
	}
}

func TestConnectParams(t *testing.T) {
	openai := ConnectParams{Token: "ek_123"}
	url, err := openai.DialURL()
	if err != nil {
		t.Fatalf("DialURL() error = %v", err)
	}
	if url != RealtimeAPIEndpoint+"?model="+DefaultRealtimeModel {
		t.Errorf("openai url = %s", url)
	}
	h := openai.headers()
	if h.Get("Authorization") != "Bearer ek_123" || h.Get("OpenAI-Beta") != RealtimeBetaHeader {
		t.Errorf("openai headers = %v", h)
	}

	azure := ConnectParams{Provider: ProviderAzure, Endpoint: "https://res.openai.azure.com/", Model: "gpt-realtime", APIKey: "k"}
	url, err = azure.DialURL()
	if err != nil {
		t.Fatalf("DialURL() error = %v", err)
	}
	want := "wss://res.openai.azure.com/openai/realtime?api-version=" + DefaultAzureAPIVersion + "&deployment=gpt-realtime"
	if url != want {
		t.Errorf("azure url = %s, want %s", url, want)
	}
	h = azure.headers()
	if h.Get("api-key") != "k" || h.Get("Authorization") != "" || h.Get("OpenAI-Beta") != "" {
		t.Errorf("azure headers = %v", h)
	}

	if _, err := (ConnectParams{Provider: ProviderAzure}).DialURL(); err == nil {
		t.Error("azure without endpoint should error")
	}
	if !ProviderAzure.Valid() || Provider("gcp").Valid() {
		t.Error("Provider.Valid() mismatch")
	}
}
