package guidance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "  Ask for a rating  ", "<MODERATOR_GUIDANCE>\nAsk for a rating\n</MODERATOR_GUIDANCE>"},
		{"already wrapped", "<MODERATOR_GUIDANCE>\nx\n</MODERATOR_GUIDANCE>", "<MODERATOR_GUIDANCE>\nx\n</MODERATOR_GUIDANCE>"},
		{"wrapped with padding", "  <MODERATOR_GUIDANCE>x</MODERATOR_GUIDANCE>\n", "<MODERATOR_GUIDANCE>x</MODERATOR_GUIDANCE>"},
		{"empty", "   ", ""},
		{"open tag only", "<MODERATOR_GUIDANCE> x", "<MODERATOR_GUIDANCE>\n<MODERATOR_GUIDANCE> x\n</MODERATOR_GUIDANCE>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.in))
			assert.Equal(t, Wrap(tt.in), Wrap(Wrap(tt.in)), "Wrap must be idempotent")
		})
	}
}

func TestUnwrap(t *testing.T) {
	body, ok := Unwrap("noise <MODERATOR_GUIDANCE>\n hi \n</MODERATOR_GUIDANCE> tail")
	require.True(t, ok)
	assert.Equal(t, "hi", body)

	_, ok = Unwrap("<MODERATOR_GUIDANCE> unterminated")
	assert.False(t, ok)
	_, ok = Unwrap("plain")
	assert.False(t, ok)
}

func TestParse(t *testing.T) {
	raw := "<MODERATOR_GUIDANCE>\r\nchecklist: Satisfaction rating\r\nCOACH: Guide them back.\r\nPrompt: On a scale of 1 to 5?\r\n</MODERATOR_GUIDANCE>"
	p, ok := Parse(raw)
	require.True(t, ok)
	assert.Equal(t, "Satisfaction rating", p.Checklist)
	assert.Equal(t, "Guide them back.", p.Coach)
	assert.Equal(t, "On a scale of 1 to 5?", p.Prompt)

	round, ok := Parse(p.Format())
	require.True(t, ok)
	assert.Equal(t, p, round)

	_, ok = Parse("<MODERATOR_GUIDANCE>\nCoach: x\nPrompt: y\n</MODERATOR_GUIDANCE>")
	assert.False(t, ok, "missing checklist line")
	_, ok = Parse("Checklist: a\nCoach: b\nPrompt: c")
	assert.False(t, ok, "missing delimiters")
}

func TestResponseUnmarshalAliases(t *testing.T) {
	var r Response
	require.NoError(t, json.Unmarshal([]byte(`{
		"guidance_id": "g1",
		"guidance_text": "text",
		"missing_checklist_items": ["rating"],
		"tone": "negative",
		"next_poll_seconds": 7.5
	}`), &r))
	assert.Equal(t, "g1", r.GuidanceID)
	assert.Equal(t, []string{"rating"}, r.MissingItems)
	assert.Equal(t, ToneNegative, r.Tone)
	assert.Equal(t, 7500*time.Millisecond, r.NextPoll())

	var canonical Response
	require.NoError(t, json.Unmarshal([]byte(`{
		"guidance_id": "g2",
		"guidance_text": "",
		"missing_items": ["closing"],
		"missing_checklist_items": ["rating"],
		"tone_alert": "positive",
		"tone": "negative"
	}`), &canonical))
	assert.Equal(t, []string{"closing"}, canonical.MissingItems)
	assert.Equal(t, TonePositive, canonical.Tone)
	assert.False(t, canonical.HasText())
	assert.Zero(t, canonical.NextPoll())
}

func TestResponseUnknownToneIsAbsent(t *testing.T) {
	tests := []struct {
		body string
		want Tone
	}{
		{`{"guidance_id":"g1","tone_alert":"furious"}`, ""},
		{`{"guidance_id":"g1","tone":"Negative"}`, ""},
		{`{"guidance_id":"g1","tone_alert":null}`, ""},
		{`{"guidance_id":"g1","tone_alert":"neutral"}`, ToneNeutral},
	}
	for _, tt := range tests {
		var r Response
		require.NoError(t, json.Unmarshal([]byte(tt.body), &r))
		assert.Equal(t, tt.want, r.Tone, tt.body)
		assert.True(t, r.Tone.Valid())
	}
	assert.False(t, Tone("angry").Valid())
}

func TestClientFetch(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, GuidancePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.NoError(t, json.Unmarshal(body, &got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"guidance_id":"guidance-1","guidance_text":"Ask for rating","missing_items":["rating"],"tone_alert":null}`))
	}))
	defer server.Close()

	exp := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exp))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	client := NewClient(server.URL+"/", "session-1", WithTracerProvider(tp))
	seg, err := transcript.NewSegment(transcript.ActorCustomer, "hello", time.Now())
	require.NoError(t, err)

	resp, err := client.Fetch(context.Background(), []transcript.Segment{seg})
	require.NoError(t, err)
	assert.Equal(t, "guidance-1", resp.GuidanceID)
	assert.True(t, resp.HasText())
	assert.Equal(t, Tone(""), resp.Tone)

	assert.Equal(t, "session-1", got.SessionID)
	require.Len(t, got.Transcript, 1)
	assert.Equal(t, "hello", got.Transcript[0].Text)

	var names []string
	for _, s := range exp.GetSpans() {
		names = append(names, s.Name)
	}
	assert.Contains(t, names, "voicemod.guidance.fetch")
}

func TestClientFetchErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session_not_found", http.StatusNotFound)
	}))
	defer server.Close()

	_, err := NewClient(server.URL, "missing").Fetch(context.Background(), nil)
	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, http.StatusNotFound, reqErr.StatusCode)
	assert.Contains(t, reqErr.Body, "session_not_found")
}

func TestClientFetchHonoursContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := NewClient(server.URL, "s").Fetch(ctx, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
