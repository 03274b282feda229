package guidance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/telemetry"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

const (
	// GuidancePath is the guidance endpoint relative to the API base URL.
	GuidancePath = "/api/moderator/guidance"

	defaultClientTimeout = 30 * time.Second
	maxErrorBody         = 4 * 1024
	providerName         = "guidance"
)

// RequestError reports a non-2xx response from the guidance endpoint.
type RequestError struct {
	StatusCode int
	Body       string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("guidance request failed (status %d): %s", e.StatusCode, e.Body)
}

// Client polls the guidance endpoint for one session.
type Client struct {
	baseURL    string
	sessionID  string
	httpClient *http.Client
	tracer     trace.Tracer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its transport is still
// wrapped for tracing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTracerProvider sets the provider used for guidance spans.
func WithTracerProvider(tp trace.TracerProvider) ClientOption {
	return func(c *Client) {
		c.tracer = telemetry.Tracer(tp)
	}
}

// NewClient creates a guidance client for baseURL and sessionID.
func NewClient(baseURL, sessionID string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		sessionID:  sessionID,
		httpClient: &http.Client{Timeout: defaultClientTimeout},
		tracer:     telemetry.Tracer(nil),
	}
	for _, opt := range opts {
		opt(c)
	}
	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	wrapped := *c.httpClient
	wrapped.Transport = otelhttp.NewTransport(base)
	c.httpClient = &wrapped
	return c
}

// SessionID returns the session the client polls for.
func (c *Client) SessionID() string {
	return c.sessionID
}

// Fetch posts the transcript and returns the decoded guidance.
func (c *Client) Fetch(ctx context.Context, segments []transcript.Segment) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "voicemod.guidance.fetch",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("session.id", c.sessionID),
			attribute.Int("transcript.segments", len(segments)),
		),
	)
	defer span.End()

	resp, err := c.fetch(ctx, segments)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("guidance.id", resp.GuidanceID))
	return resp, nil
}

func (c *Client) fetch(ctx context.Context, segments []transcript.Segment) (*Response, error) {
	if segments == nil {
		segments = []transcript.Segment{}
	}
	body, err := json.Marshal(Request{SessionID: c.sessionID, Transcript: segments})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + GuidancePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	logger.APIRequest(providerName, http.MethodPost, url, map[string]string{"Content-Type": "application/json"}, json.RawMessage(body))

	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	respBytes, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	logger.APIResponse(providerName, httpResp.StatusCode, string(respBytes), nil)

	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		msg := string(respBytes)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &RequestError{StatusCode: httpResp.StatusCode, Body: msg}
	}

	var out Response
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return nil, fmt.Errorf("failed to decode guidance: %w", err)
	}
	return &out, nil
}
