package sessions

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/credentials"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/providers/openai"
)

// NewOpenAIMinter mints sessions against api.openai.com with a bearer API key.
func NewOpenAIMinter(apiKey string, opts ...Option) (Minter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY must be set for the openai provider", ErrNotConfigured)
	}
	dial := openai.ConnectParams{Provider: openai.ProviderOpenAI}
	return newMinter(openai.ProviderOpenAI, OpenAISessionsURL, dial, credentials.NewAPIKeyCredential(apiKey), opts), nil
}

// NewAzureMinter mints sessions against an Azure OpenAI resource. cred is
// usually an api-key credential or an Entra ID credential.
func NewAzureMinter(endpoint, apiVersion string, cred credentials.Credential, opts ...Option) (Minter, error) {
	if endpoint == "" || cred == nil {
		return nil, fmt.Errorf("%w: Azure OpenAI credentials are missing", ErrNotConfigured)
	}
	if apiVersion == "" {
		apiVersion = openai.DefaultAzureAPIVersion
	}
	base := strings.TrimRight(endpoint, "/")
	sessionsURL := base + azureSessionsPath + "?api-version=" + url.QueryEscape(apiVersion)
	dial := openai.ConnectParams{Provider: openai.ProviderAzure, Endpoint: base, APIVersion: apiVersion}
	return newMinter(openai.ProviderAzure, sessionsURL, dial, cred, opts), nil
}

// FromConfig builds the minter for the configured realtime provider. Missing
// credentials and unknown providers wrap ErrNotConfigured.
func FromConfig(ctx context.Context, cfg config.RealtimeConfig, opts ...Option) (Minter, error) {
	cred, err := credentials.Resolve(ctx, cfg.Provider, cfg.APIKey, cfg.UseEntraID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotConfigured, err)
	}
	if cfg.Provider == config.ProviderAzure {
		return NewAzureMinter(cfg.Endpoint, cfg.APIVersion, cred, opts...)
	}
	return NewOpenAIMinter(cfg.APIKey, opts...)
}

type unavailable struct {
	provider string
	err      error
}

// Unavailable returns a Minter whose Mint always fails with err. The API
// uses it when the realtime provider is not configured, so it can still
// serve guidance and report the problem per request.
func Unavailable(provider string, err error) Minter {
	return &unavailable{provider: provider, err: err}
}

func (u *unavailable) Provider() string { return u.provider }

func (u *unavailable) Mint(context.Context, Request) (*Minted, error) {
	return nil, u.err
}
