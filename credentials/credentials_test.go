package credentials

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTokenCredential struct {
	calls  int
	expiry time.Time
	err    error
	scopes []string
}

func (f *fakeTokenCredential) GetToken(_ context.Context, opts policy.TokenRequestOptions) (azcore.AccessToken, error) {
	f.calls++
	f.scopes = opts.Scopes
	if f.err != nil {
		return azcore.AccessToken{}, f.err
	}
	return azcore.AccessToken{Token: "entra-token", ExpiresOn: f.expiry}, nil
}

func TestAPIKeyCredential_Apply(t *testing.T) {
	cred := NewAPIKeyCredential("sk-test-key")

	req, err := http.NewRequest("POST", "https://api.example.com", nil)
	require.NoError(t, err)
	require.NoError(t, cred.Apply(context.Background(), req))

	assert.Equal(t, "Bearer sk-test-key", req.Header.Get("Authorization"))
	assert.Equal(t, "api_key", cred.Type())
	assert.Equal(t, "sk-test-key", cred.APIKey())
}

func TestAPIKeyCredential_CustomHeader(t *testing.T) {
	cred := NewAPIKeyCredential("az-key", WithHeaderName("api-key"), WithPrefix(""))

	req, err := http.NewRequest("POST", "https://example.openai.azure.com", nil)
	require.NoError(t, err)
	require.NoError(t, cred.Apply(context.Background(), req))

	assert.Equal(t, "az-key", req.Header.Get("api-key"))
	assert.Empty(t, req.Header.Get("Authorization"))
}

func TestNoOpCredential_Apply(t *testing.T) {
	cred := &NoOpCredential{}
	req, err := http.NewRequest("POST", "https://api.example.com", nil)
	require.NoError(t, err)
	require.NoError(t, cred.Apply(context.Background(), req))
	assert.Empty(t, req.Header.Get("Authorization"))
	assert.Equal(t, "none", cred.Type())
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	cred, err := Resolve(ctx, "openai", "sk", false)
	require.NoError(t, err)
	assert.Equal(t, "api_key", cred.Type())

	cred, err = Resolve(ctx, "azure", "az", false)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	require.NoError(t, cred.Apply(ctx, req))
	assert.Equal(t, "az", req.Header.Get("api-key"))

	_, err = Resolve(ctx, "azure", "", false)
	assert.Error(t, err)
	_, err = Resolve(ctx, "openai", "", false)
	assert.Error(t, err)
	_, err = Resolve(ctx, "gemini", "k", false)
	assert.Error(t, err)
}

func TestAzureCredential_CachesToken(t *testing.T) {
	fake := &fakeTokenCredential{expiry: time.Now().Add(time.Hour)}
	cred := NewAzureTokenCredential(fake)

	for i := 0; i < 3; i++ {
		token, err := cred.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "entra-token", token)
	}
	assert.Equal(t, 1, fake.calls)
	assert.Equal(t, []string{CognitiveServicesScope}, fake.scopes)
	assert.Equal(t, "azure", cred.Type())
}

func TestAzureCredential_RefreshesNearExpiry(t *testing.T) {
	fake := &fakeTokenCredential{expiry: time.Now().Add(2 * time.Minute)}
	cred := NewAzureTokenCredential(fake)

	_, err := cred.Token(context.Background())
	require.NoError(t, err)
	_, err = cred.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)
}

func TestAzureCredential_ApplyReplacesAPIKey(t *testing.T) {
	cred := NewAzureTokenCredential(&fakeTokenCredential{expiry: time.Now().Add(time.Hour)})
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("api-key", "stale")

	require.NoError(t, cred.Apply(context.Background(), req))
	assert.Equal(t, "Bearer entra-token", req.Header.Get("Authorization"))
	assert.Empty(t, req.Header.Get("api-key"))
}

func TestAzureCredential_Error(t *testing.T) {
	cred := NewAzureTokenCredential(&fakeTokenCredential{err: errors.New("no identity")})
	_, err := cred.Token(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no identity")
}

func TestNewHTTPClient(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewHTTPClient(NewAPIKeyCredential("sk"), &http.Client{Timeout: time.Second})
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "Bearer sk", gotAuth)
	assert.Equal(t, time.Second, client.Timeout)
}

func TestNewHTTPClient_CredentialError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cred := NewAzureTokenCredential(&fakeTokenCredential{err: errors.New("denied")})
	_, err := NewHTTPClient(cred, nil).Get(srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}
