// Package sessions mints short-lived realtime credentials. The browser or
// CLI client connects to the realtime service with the ephemeral key, never
// with the long-lived API key.
package sessions

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/credentials"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/providers/openai"
)

const (
	// OpenAISessionsURL is the OpenAI ephemeral session endpoint.
	OpenAISessionsURL = "https://api.openai.com/v1/realtime/sessions"

	// azureSessionsPath is appended to the Azure resource endpoint.
	azureSessionsPath = "/openai/realtimeapi/sessions"

	// defaultKeyLifetime applies when the provider omits an expiry.
	defaultKeyLifetime = 60 * time.Second

	defaultMintTimeout = 15 * time.Second
	maxErrorBody       = 2 * 1024
)

// ErrNotConfigured is returned when the minter lacks required settings.
// It indicates a server misconfiguration rather than a provider failure.
var ErrNotConfigured = errors.New("realtime provider is not configured")

// MintError reports a failed or malformed provider response.
type MintError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *MintError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s session mint failed: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s session mint failed: %d %s", e.Provider, e.StatusCode, e.Body)
}

// Request describes the realtime session to mint.
type Request struct {
	Model              string
	Voice              string
	Instructions       string
	TranscriptionModel string
}

// Minted is a freshly minted realtime session.
type Minted struct {
	Provider     string
	Model        string
	Voice        string
	EphemeralKey string
	ExpiresAt    time.Time

	// URL is the websocket URL clients connect to with EphemeralKey.
	URL string
}

// Minter mints ephemeral realtime sessions.
type Minter interface {
	Provider() string
	Mint(ctx context.Context, req Request) (*Minted, error)
}

// Option configures a minter.
type Option func(*minter)

// WithHTTPClient sets the base HTTP client. Credentials and tracing are
// layered on top of its transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(m *minter) { m.base = hc }
}

// WithNow sets the clock used for default expiries.
func WithNow(now func() time.Time) Option {
	return func(m *minter) { m.now = now }
}

// WithSessionsURL overrides the mint endpoint.
func WithSessionsURL(url string) Option {
	return func(m *minter) { m.sessionsURL = url }
}

// minter holds what both providers share: the endpoint, the authenticated
// client and the dial parameters reported back to callers.
type minter struct {
	provider    openai.Provider
	sessionsURL string
	dial        openai.ConnectParams
	base        *http.Client
	client      *http.Client
	now         func() time.Time
}

func newMinter(provider openai.Provider, sessionsURL string, dial openai.ConnectParams, cred credentials.Credential, opts []Option) *minter {
	m := &minter{
		provider:    provider,
		sessionsURL: sessionsURL,
		dial:        dial,
		base:        &http.Client{Timeout: defaultMintTimeout},
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.client = credentials.NewHTTPClient(cred, m.base)
	return m
}

// Provider returns the provider name.
func (m *minter) Provider() string {
	return string(m.provider)
}

// mintPayload is the body of a session mint request.
type mintPayload struct {
	Model string `json:"model"`
	openai.SessionConfig
}

// mintResponse accepts both the sessions shape (client_secret object) and the
// client secrets shape (top-level value).
type mintResponse struct {
	ClientSecret *struct {
		Value     string `json:"value"`
		ExpiresAt int64  `json:"expires_at"`
	} `json:"client_secret"`
	Value     string `json:"value"`
	ExpiresAt int64  `json:"expires_at"`
}

// Mint requests an ephemeral key for req.
func (m *minter) Mint(ctx context.Context, req Request) (*Minted, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("%w: model is required", ErrNotConfigured)
	}

	session := openai.DefaultSessionConfig(req.Instructions)
	if req.Voice != "" {
		session.Voice = req.Voice
	}
	if req.TranscriptionModel != "" {
		session.InputAudioTranscription = &openai.TranscriptionConfig{Model: req.TranscriptionModel}
	}
	body, err := json.Marshal(mintPayload{Model: req.Model, SessionConfig: session})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.sessionsURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if m.provider == openai.ProviderOpenAI {
		httpReq.Header.Set("OpenAI-Beta", openai.RealtimeBetaHeader)
	}
	logger.APIRequest(m.Provider(), http.MethodPost, m.sessionsURL, nil, json.RawMessage(body))

	resp, err := m.client.Do(httpReq)
	if err != nil {
		return nil, &MintError{Provider: m.Provider(), Body: err.Error()}
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &MintError{Provider: m.Provider(), StatusCode: resp.StatusCode, Body: err.Error()}
	}
	logger.APIResponse(m.Provider(), resp.StatusCode, "", nil)

	if resp.StatusCode != http.StatusOK {
		msg := string(respBytes)
		if len(msg) > maxErrorBody {
			msg = msg[:maxErrorBody]
		}
		return nil, &MintError{Provider: m.Provider(), StatusCode: resp.StatusCode, Body: logger.RedactSensitiveData(msg)}
	}

	var out mintResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return nil, &MintError{Provider: m.Provider(), StatusCode: resp.StatusCode, Body: "invalid JSON response"}
	}
	key, expires := out.Value, out.ExpiresAt
	if out.ClientSecret != nil && out.ClientSecret.Value != "" {
		key, expires = out.ClientSecret.Value, out.ClientSecret.ExpiresAt
	}
	if key == "" {
		return nil, &MintError{Provider: m.Provider(), StatusCode: resp.StatusCode, Body: "response missing client secret"}
	}

	expiresAt := m.now().Add(defaultKeyLifetime).UTC()
	if expires > 0 {
		expiresAt = time.Unix(expires, 0).UTC()
	}

	dial := m.dial
	dial.Model = req.Model
	url, err := dial.DialURL()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}

	return &Minted{
		Provider:     m.Provider(),
		Model:        req.Model,
		Voice:        session.Voice,
		EphemeralKey: key,
		ExpiresAt:    expiresAt,
		URL:          url,
	}, nil
}
