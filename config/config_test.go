package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envMap(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicemod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWithLookup("", envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenAI, cfg.Realtime.Provider)
	assert.Equal(t, DefaultVoice, cfg.Realtime.Voice)
	assert.Equal(t, 5*time.Second, cfg.Moderator.Interval)
	assert.Equal(t, 1500*time.Millisecond, cfg.Moderator.InitialPollDelay)
	assert.Equal(t, 400, cfg.Moderator.MaxSegments)
	assert.Equal(t, 0.08, cfg.Detector.Activity.StartThreshold)
	assert.Equal(t, 3, cfg.Detector.Gate.StartFrames)
	assert.Equal(t, StateStoreMemory, cfg.Server.StateStore.Type)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Equal(t, ProviderTemplate, cfg.Engine.Provider)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
realtime:
  provider: azure
  endpoint: https://res.openai.azure.com
  voice: verse
moderator:
  interval: 8s
  post_speech_delay: 300ms
  guidance_url: http://moderator:8000
detector:
  activity:
    start_threshold: 0.1
    stop_threshold: 0.05
    hold: 500ms
server:
  addr: ":9000"
  state_store:
    type: redis
    redis:
      address: localhost:6379
logging:
  level: debug
  format: json
`)
	cfg, err := LoadWithLookup(path, envMap(nil))
	require.NoError(t, err)

	assert.Equal(t, ProviderAzure, cfg.Realtime.Provider)
	assert.Equal(t, "verse", cfg.Realtime.Voice)
	assert.Equal(t, DefaultRealtimeModel, cfg.Realtime.Model, "unset fields keep defaults")
	assert.Equal(t, 8*time.Second, cfg.Moderator.Interval)
	assert.Equal(t, 300*time.Millisecond, cfg.Moderator.PostSpeechDelay)
	assert.Equal(t, 1500*time.Millisecond, cfg.Moderator.RetryDelay)
	assert.Equal(t, "http://moderator:8000", cfg.Moderator.GuidanceURL)
	assert.Equal(t, 0.1, cfg.Detector.Activity.StartThreshold)
	assert.Equal(t, 500*time.Millisecond, cfg.Detector.Activity.Hold)
	assert.Equal(t, 0.04, cfg.Detector.Gate.Threshold)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, "localhost:6379", cfg.Server.StateStore.Redis.Address)
	assert.Equal(t, DefaultRedisPrefix, cfg.Server.StateStore.Redis.Prefix)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, "realtime:\n  voice: verse\n")
	cfg, err := LoadWithLookup(path, envMap(map[string]string{
		"PROVIDER":                          "azure",
		"VOICE_NAME":                        "alloy",
		"AZURE_OPENAI_ENDPOINT":             "https://res.openai.azure.com",
		"AZURE_OPENAI_KEY":                  "secret",
		"AZURE_OPENAI_MODERATOR_DEPLOYMENT": "gpt-4o-mini",
		"CORS_ORIGINS":                      `["http://a.test", "http://b.test"]`,
		"MODERATOR_POLL_INTERVAL":           "12s",
		"REDIS_ADDR":                        "redis:6379",
		"LOG_LEVEL":                         "  ",
	}))
	require.NoError(t, err)

	assert.Equal(t, ProviderAzure, cfg.Realtime.Provider)
	assert.Equal(t, "alloy", cfg.Realtime.Voice)
	assert.Equal(t, "https://res.openai.azure.com", cfg.Realtime.Endpoint)
	assert.Equal(t, "secret", cfg.Realtime.APIKey)
	assert.Equal(t, ProviderAzure, cfg.Engine.Provider)
	assert.Equal(t, "secret", cfg.Engine.APIKey)
	assert.Equal(t, "gpt-4o-mini", cfg.Engine.Deployment)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 12*time.Second, cfg.Moderator.Interval)
	assert.Equal(t, StateStoreRedis, cfg.Server.StateStore.Type)
	assert.Equal(t, DefaultLogLevel, cfg.Logging.Level, "blank values are ignored")
}

func TestLoadErrors(t *testing.T) {
	_, err := LoadWithLookup(filepath.Join(t.TempDir(), "missing.yaml"), nil)
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadWithLookup(writeConfig(t, "realtime: [oops"), nil)
	assert.ErrorContains(t, err, "failed to parse config file")

	_, err = LoadWithLookup("", envMap(map[string]string{"MODERATOR_POLL_INTERVAL": "soon"}))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "MODERATOR_POLL_INTERVAL", verr.Field)

	_, err = LoadWithLookup("", envMap(map[string]string{"OTEL_TRACES_SAMPLER_ARG": "half"}))
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "OTEL_TRACES_SAMPLER_ARG", verr.Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"unknown realtime provider", func(c *Config) { c.Realtime.Provider = "gcp" }, "realtime.provider"},
		{"azure without endpoint", func(c *Config) { c.Realtime.Provider = ProviderAzure }, "realtime.endpoint"},
		{"relative azure endpoint", func(c *Config) {
			c.Realtime.Provider = ProviderAzure
			c.Realtime.Endpoint = "res.openai.azure.com"
		}, "realtime.endpoint"},
		{"interval below floor", func(c *Config) { c.Moderator.Interval = time.Second }, "moderator.interval"},
		{"bad guidance url", func(c *Config) { c.Moderator.GuidanceURL = "moderator" }, "moderator.guidance_url"},
		{"azure engine without deployment", func(c *Config) {
			c.Engine.Provider = ProviderAzure
			c.Engine.Endpoint = "https://res.openai.azure.com"
		}, "engine.deployment"},
		{"stop above start", func(c *Config) { c.Detector.Activity.StopThreshold = 0.5 }, "detector.activity.stopthreshold"},
		{"gate start frames", func(c *Config) { c.Detector.Gate.StartFrames = 0 }, "detector.gate.startframes"},
		{"redis without address", func(c *Config) { c.Server.StateStore.Type = StateStoreRedis }, "server.state_store.redis.address"},
		{"unknown store", func(c *Config) { c.Server.StateStore.Type = "etcd" }, "server.state_store.type"},
		{"sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, "telemetry.sample_ratio"},
		{"relative otlp endpoint", func(c *Config) { c.Telemetry.OTLPEndpoint = "collector:4318" }, "telemetry.otlp_endpoint"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestValidationErrorMessage(t *testing.T) {
	err := &ValidationError{Field: "realtime.provider", Message: "must be one of: openai, azure", Value: "gcp"}
	assert.Equal(t, "config validation error: realtime.provider: must be one of: openai, azure (got: gcp)", err.Error())
	err.Value = ""
	assert.Equal(t, "config validation error: realtime.provider: must be one of: openai, azure", err.Error())
}

func TestEnvKeys(t *testing.T) {
	keys := EnvKeys()
	assert.Contains(t, keys, "PROVIDER")
	assert.Contains(t, keys, "AZURE_OPENAI_REALTIME_ENDPOINT")
	assert.Contains(t, keys, "CORS_ORIGINS")
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitList("a, b"))
	assert.Equal(t, []string{"http://x"}, splitList(`["http://x"]`))
	assert.Nil(t, splitList(" "))
}
