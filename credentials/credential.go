// Package credentials applies provider authentication to outgoing HTTP
// requests: API keys for OpenAI and Azure, and Entra ID tokens for Azure.
package credentials

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Credential applies authentication to HTTP requests.
type Credential interface {
	// Apply adds authentication to the HTTP request.
	Apply(ctx context.Context, req *http.Request) error

	// Type returns the credential type identifier ("api_key", "azure" or "none").
	Type() string
}

// APIKeyCredential implements header-based API key authentication.
type APIKeyCredential struct {
	apiKey     string
	headerName string
	prefix     string // Optional prefix like "Bearer "
}

// APIKeyOption configures an APIKeyCredential.
type APIKeyOption func(*APIKeyCredential)

// WithHeaderName sets the header name for the API key.
func WithHeaderName(name string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.headerName = name
	}
}

// WithPrefix sets a custom prefix for the API key.
func WithPrefix(prefix string) APIKeyOption {
	return func(c *APIKeyCredential) {
		c.prefix = prefix
	}
}

// NewAPIKeyCredential creates a new API key credential.
// By default, it uses "Authorization" header with "Bearer " prefix.
func NewAPIKeyCredential(apiKey string, opts ...APIKeyOption) *APIKeyCredential {
	c := &APIKeyCredential{
		apiKey:     apiKey,
		headerName: "Authorization",
		prefix:     "Bearer ",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply adds the API key to the request header.
func (c *APIKeyCredential) Apply(_ context.Context, req *http.Request) error {
	if c.apiKey != "" {
		req.Header.Set(c.headerName, c.prefix+c.apiKey)
	}
	return nil
}

// Type returns "api_key".
func (c *APIKeyCredential) Type() string {
	return "api_key"
}

// APIKey returns the raw API key value.
func (c *APIKeyCredential) APIKey() string {
	return c.apiKey
}

// NoOpCredential is a credential that does nothing.
type NoOpCredential struct{}

// Apply does nothing.
func (c *NoOpCredential) Apply(_ context.Context, _ *http.Request) error {
	return nil
}

// Type returns "none".
func (c *NoOpCredential) Type() string {
	return "none"
}

// Resolve picks the credential for a provider. Azure uses the api-key header
// unless useEntraID is set, in which case the default Azure credential chain
// supplies bearer tokens. OpenAI uses a bearer API key.
func Resolve(ctx context.Context, provider, apiKey string, useEntraID bool) (Credential, error) {
	switch provider {
	case "azure":
		if useEntraID {
			return NewAzureCredential(ctx)
		}
		if apiKey == "" {
			return nil, fmt.Errorf("AZURE_OPENAI_KEY or AZURE_USE_ENTRA_ID must be set for the azure provider")
		}
		return NewAPIKeyCredential(apiKey, WithHeaderName("api-key"), WithPrefix("")), nil
	case "openai":
		if apiKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY must be set for the openai provider")
		}
		return NewAPIKeyCredential(apiKey), nil
	default:
		return nil, fmt.Errorf("unsupported provider %q", provider)
	}
}

// transport applies a credential to every request before sending it.
type transport struct {
	cred Credential
	base http.RoundTripper
}

func (t *transport) RoundTrip(req *http.Request) (*http.Response, error) {
	r := req.Clone(req.Context())
	if err := t.cred.Apply(req.Context(), r); err != nil {
		return nil, fmt.Errorf("failed to apply %s credential: %w", t.cred.Type(), err)
	}
	return t.base.RoundTrip(r)
}

// NewHTTPClient returns a traced HTTP client that authenticates every request
// with cred. A nil base uses http.DefaultTransport.
func NewHTTPClient(cred Credential, base *http.Client) *http.Client {
	client := &http.Client{}
	if base != nil {
		*client = *base
	}
	rt := client.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	if cred == nil {
		cred = &NoOpCredential{}
	}
	client.Transport = otelhttp.NewTransport(&transport{cred: cred, base: rt})
	return client
}
