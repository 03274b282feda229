package openai

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Realtime API constants
const (
	// RealtimeAPIEndpoint is the base WebSocket endpoint for OpenAI Realtime API.
	RealtimeAPIEndpoint = "wss://api.openai.com/v1/realtime"

	// RealtimeBetaHeader is required for the Realtime API.
	RealtimeBetaHeader = "realtime=v1"

	// DefaultRealtimeModel is used when no model is configured.
	DefaultRealtimeModel = "gpt-4o-realtime-preview"

	// DefaultAzureAPIVersion is the Azure OpenAI realtime API version.
	DefaultAzureAPIVersion = "2025-04-01-preview"

	// OpenAI Realtime uses 24kHz 16-bit PCM mono audio.
	DefaultRealtimeSampleRate = 24000

	defaultTemperature       = 0.8
	defaultVADThreshold      = 0.5
	defaultPrefixPaddingMs   = 300
	defaultSilenceDurationMs = 500
)

// Provider selects the realtime backend flavour.
type Provider string

const (
	// ProviderOpenAI talks to api.openai.com.
	ProviderOpenAI Provider = "openai"
	// ProviderAzure talks to an Azure OpenAI resource.
	ProviderAzure Provider = "azure"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderOpenAI || p == ProviderAzure
}

// ConnectParams describes one realtime connection.
type ConnectParams struct {
	Provider Provider

	// URL overrides the computed websocket URL when set.
	URL string

	// Endpoint is the Azure resource endpoint (https://name.openai.azure.com).
	Endpoint string

	// Model is the model (OpenAI) or deployment name (Azure).
	Model string

	// APIVersion is the Azure api-version query parameter.
	APIVersion string

	// Token is sent as a Bearer credential. It is usually an ephemeral key
	// minted by the session service, or an Entra access token for Azure.
	Token string

	// APIKey is sent as the api-key header for Azure when Token is empty.
	APIKey string

	// Session, when non-nil, is sent as session.update right after connecting.
	Session *SessionConfig

	// Greet requests the first agent turn as soon as the channel opens.
	Greet bool
}

// DialURL returns the websocket URL Connect dials for the parameters.
func (p ConnectParams) DialURL() (string, error) {
	if p.URL != "" {
		return p.URL, nil
	}
	model := p.Model
	if model == "" {
		model = DefaultRealtimeModel
	}
	switch p.provider() {
	case ProviderAzure:
		if p.Endpoint == "" {
			return "", fmt.Errorf("azure realtime requires an endpoint")
		}
		u, err := url.Parse(strings.TrimRight(p.Endpoint, "/"))
		if err != nil {
			return "", fmt.Errorf("invalid azure endpoint: %w", err)
		}
		switch u.Scheme {
		case "https", "wss":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
		u.Path += "/openai/realtime"
		version := p.APIVersion
		if version == "" {
			version = DefaultAzureAPIVersion
		}
		q := url.Values{}
		q.Set("api-version", version)
		q.Set("deployment", model)
		u.RawQuery = q.Encode()
		return u.String(), nil
	default:
		return fmt.Sprintf("%s?model=%s", RealtimeAPIEndpoint, url.QueryEscape(model)), nil
	}
}

// headers returns the handshake headers for the parameters.
func (p ConnectParams) headers() http.Header {
	h := http.Header{}
	switch {
	case p.Token != "":
		h.Set("Authorization", "Bearer "+p.Token)
	case p.provider() == ProviderAzure && p.APIKey != "":
		h.Set("api-key", p.APIKey)
	case p.APIKey != "":
		h.Set("Authorization", "Bearer "+p.APIKey)
	}
	if p.provider() == ProviderOpenAI {
		h.Set("OpenAI-Beta", RealtimeBetaHeader)
	}
	return h
}

func (p ConnectParams) provider() Provider {
	if p.Provider == "" {
		return ProviderOpenAI
	}
	return p.Provider
}

// DefaultSessionConfig returns sensible defaults for a moderated session:
// audio in and out, input transcription on, server VAD detecting turns but
// not auto-creating responses so the coordinator owns turn advancement.
func DefaultSessionConfig(instructions string) SessionConfig {
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Instructions:            instructions,
		Voice:                   "alloy",
		InputAudioFormat:        "pcm16",
		OutputAudioFormat:       "pcm16",
		InputAudioTranscription: &TranscriptionConfig{Model: "whisper-1"},
		Temperature:             defaultTemperature,
		TurnDetection: &TurnDetectionConfig{
			Type:              "server_vad",
			Threshold:         defaultVADThreshold,
			PrefixPaddingMs:   defaultPrefixPaddingMs,
			SilenceDurationMs: defaultSilenceDurationMs,
			CreateResponse:    false,
		},
	}
}
