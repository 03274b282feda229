package credentials

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
)

// tokenRefreshBuffer is the time before token expiration to trigger a refresh.
const tokenRefreshBuffer = 5 * time.Minute

// CognitiveServicesScope is the Entra scope for Azure OpenAI.
const CognitiveServicesScope = "https://cognitiveservices.azure.com/.default"

// AzureCredential implements Entra ID token authentication for Azure OpenAI.
type AzureCredential struct {
	cred        azcore.TokenCredential
	mu          sync.RWMutex
	cachedToken *azcore.AccessToken
	now         func() time.Time
}

// NewAzureCredential creates a credential using the default Azure credential
// chain (environment, workload identity, managed identity, Azure CLI).
func NewAzureCredential(_ context.Context) (*AzureCredential, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure credential: %w", err)
	}
	return NewAzureTokenCredential(cred), nil
}

// NewAzureTokenCredential wraps an existing token credential.
func NewAzureTokenCredential(cred azcore.TokenCredential) *AzureCredential {
	return &AzureCredential{cred: cred, now: time.Now}
}

// Apply adds the Entra bearer token to the request.
func (c *AzureCredential) Apply(ctx context.Context, req *http.Request) error {
	token, err := c.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Del("api-key")
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// Type returns "azure".
func (c *AzureCredential) Type() string {
	return "azure"
}

// Token returns a valid access token, refreshing it shortly before expiry.
func (c *AzureCredential) Token(ctx context.Context) (string, error) {
	c.mu.RLock()
	if c.fresh() {
		token := c.cachedToken.Token
		c.mu.RUnlock()
		return token, nil
	}
	c.mu.RUnlock()

	c.mu.Lock()
	defer c.mu.Unlock()

	// Double-check after acquiring write lock
	if c.fresh() {
		return c.cachedToken.Token, nil
	}

	token, err := c.cred.GetToken(ctx, policy.TokenRequestOptions{
		Scopes: []string{CognitiveServicesScope},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get Azure token: %w", err)
	}
	c.cachedToken = &token
	return token.Token, nil
}

func (c *AzureCredential) fresh() bool {
	return c.cachedToken != nil && c.cachedToken.ExpiresOn.After(c.now().Add(tokenRefreshBuffer))
}
