package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/engine"
	prommetrics "github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/metrics/prometheus"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/providers/openai"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/server"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/sessions"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/statestore"
)

type stubMinter struct{}

func (stubMinter) Provider() string { return "openai" }

func (stubMinter) Mint(_ context.Context, req sessions.Request) (*sessions.Minted, error) {
	return &sessions.Minted{
		Provider:     "openai",
		Model:        req.Model,
		Voice:        req.Voice,
		EphemeralKey: "ek_cli",
		ExpiresAt:    time.Now().Add(time.Minute),
		URL:          "wss://api.openai.com/v1/realtime?model=" + req.Model,
	}, nil
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(""))
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))

	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VOICEMOD_CLI_TEST_KEY=from-file\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("VOICEMOD_CLI_TEST_KEY") })

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("VOICEMOD_CLI_TEST_KEY"))
}

func TestLoadEnvFileKeepsExisting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("VOICEMOD_CLI_EXISTING=from-file\n"), 0o600))
	t.Setenv("VOICEMOD_CLI_EXISTING", "from-env")

	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("VOICEMOD_CLI_EXISTING"))
}

func TestBuildStore(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		store, closeFn, err := buildStore(ctx, config.Default().Server)
		require.NoError(t, err)
		defer closeFn()
		assert.IsType(t, &statestore.MemoryStore{}, store)
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := config.Default().Server
		cfg.StateStore.Type = config.StateStoreRedis
		cfg.StateStore.Redis.Address = mr.Addr()
		cfg.StateStore.Redis.Prefix = "cli"

		store, closeFn, err := buildStore(ctx, cfg)
		require.NoError(t, err)
		defer closeFn()
		require.IsType(t, &statestore.RedisStore{}, store)

		require.NoError(t, store.SaveSession(ctx, &statestore.SessionRecord{ID: "s1"}))
		assert.True(t, mr.Exists("cli:session:s1"))
	})

	t.Run("redis unreachable", func(t *testing.T) {
		mr := miniredis.RunT(t)
		addr := mr.Addr()
		mr.Close()

		cfg := config.Default().Server
		cfg.StateStore.Type = config.StateStoreRedis
		cfg.StateStore.Redis.Address = addr

		_, _, err := buildStore(ctx, cfg)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "redis ping failed")
	})
}

func TestBuildServerWithoutRealtimeCredentials(t *testing.T) {
	cfg := config.Default()
	cfg.Realtime.APIKey = ""

	metrics := prommetrics.NewMetrics("clitest")
	exporter := prommetrics.NewExporter("", metrics)
	srv, err := buildServer(context.Background(), cfg, statestore.NewMemoryStore(), metrics, exporter, noop.NewTracerProvider())
	require.NoError(t, err)

	h := srv.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/sessions", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "OPENAI_API_KEY")
}

func TestSetupTracingDisabled(t *testing.T) {
	tp, shutdown, err := setupTracing(context.Background(), config.Default())
	require.NoError(t, err)
	require.NotNil(t, tp)
	shutdown()

	cfg := config.Default()
	cfg.Telemetry.OTLPEndpoint = "http://localhost:0/v1/traces"
	cfg.Telemetry.SampleRatio = 0.5
	tp, shutdown, err = setupTracing(context.Background(), cfg)
	require.NoError(t, err)
	require.NotNil(t, tp)
	shutdown()
}

func newAPI(t *testing.T) *httptest.Server {
	t.Helper()
	srv, err := server.NewServer(stubMinter{}, engine.New(nil),
		server.WithSessionDefaults(server.SessionDefaults{Model: "gpt-realtime", Voice: "verse"}))
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestMintSession(t *testing.T) {
	ts := newAPI(t)

	resp, err := mintSession(context.Background(), ts.Client(), ts.URL+"/", "Dana")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.SessionID)
	assert.Equal(t, "ek_cli", resp.EphemeralKey)
	assert.Equal(t, "openai", resp.Provider)
	assert.Equal(t, "verse", resp.VoiceName)
	assert.Contains(t, resp.RealtimeURL, "model=gpt-realtime")
}

func TestMintSessionErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/nokey/api/sessions":
			_, _ = io.WriteString(w, `{"session_id":"s1"}`)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadGateway)
			_, _ = io.WriteString(w, `{"detail":"upstream refused"}`)
		}
	}))
	defer ts.Close()

	_, err := mintSession(context.Background(), ts.Client(), ts.URL, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream refused")

	_, err = mintSession(context.Background(), ts.Client(), ts.URL+"/nokey", "")
	require.Error(t, err)
}

func TestConnectParamsEphemeralKey(t *testing.T) {
	saved := callFlags
	t.Cleanup(func() { callFlags = saved })
	callFlags.ephemeralKey = "ek_manual"
	callFlags.sessionID = "sess-9"
	callFlags.participant = "Dana"

	cfg := config.Default()
	cfg.Realtime.Voice = "verse"

	id, params, err := connectParams(context.Background(), cfg, "http://unused")
	require.NoError(t, err)
	assert.Equal(t, "sess-9", id)
	assert.Equal(t, "ek_manual", params.Token)
	assert.Equal(t, openai.ProviderOpenAI, params.Provider)
	require.NotNil(t, params.Session)
	assert.Equal(t, "verse", params.Session.Voice)
	assert.Contains(t, params.Session.Instructions, "is named Dana")
	assert.True(t, params.Greet)
}

func TestChunkSize(t *testing.T) {
	assert.Equal(t, 960, chunkSize(20*time.Millisecond))
	assert.Equal(t, 4800, chunkSize(100*time.Millisecond))
	assert.Equal(t, 960, chunkSize(0))
	assert.Equal(t, 2, chunkSize(time.Microsecond))
}

func TestOpenInput(t *testing.T) {
	r, err := openInput("", strings.NewReader(""))
	require.NoError(t, err)
	assert.Nil(t, r)

	r, err = openInput("-", strings.NewReader("pcm"))
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "pcm", string(data))

	_, err = openInput(filepath.Join(t.TempDir(), "missing.pcm"), nil)
	assert.Error(t, err)
}

func TestStreamAudio(t *testing.T) {
	src := strings.NewReader(strings.Repeat("x", 2001))
	var chunks []int
	calls := 0
	push := func(pcm []byte) error {
		calls++
		if calls == 1 {
			return openai.ErrNotReady
		}
		chunks = append(chunks, len(pcm))
		return nil
	}

	err := streamAudio(context.Background(), src, time.Millisecond, push)
	require.NoError(t, err)
	// 48 bytes per millisecond; the odd trailing byte is dropped.
	require.NotEmpty(t, chunks)
	for _, n := range chunks[:len(chunks)-1] {
		assert.Equal(t, 48, n)
	}
	assert.Equal(t, 0, chunks[len(chunks)-1]%2)
	assert.Equal(t, 42, calls)
	assert.Equal(t, 32, chunks[len(chunks)-1])
}

func TestStreamAudioPushError(t *testing.T) {
	boom := errors.New("boom")
	err := streamAudio(context.Background(), strings.NewReader(strings.Repeat("x", 96)), time.Millisecond,
		func([]byte) error { return boom })
	assert.ErrorIs(t, err, boom)
}

func TestStreamAudioCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := streamAudio(ctx, strings.NewReader("xxxx"), time.Millisecond, func([]byte) error {
		t.Fatal("push after cancel")
		return nil
	})
	assert.NoError(t, err)
}
