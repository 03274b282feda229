// Package config loads voicemod configuration from YAML and the environment.
package config

import (
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/audio"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/moderator"
)

// Provider names accepted in realtime.provider and engine.provider.
const (
	ProviderOpenAI   = "openai"
	ProviderAzure    = "azure"
	ProviderTemplate = "template"
)

// State store types.
const (
	StateStoreMemory = "memory"
	StateStoreRedis  = "redis"
)

// Defaults not owned by another package.
const (
	DefaultVoice              = "alloy"
	DefaultRealtimeModel      = "gpt-realtime"
	DefaultTranscriptionModel = "whisper-1"
	DefaultAzureAPIVersion    = "2025-04-01-preview"
	DefaultChatAPIVersion     = "2024-05-01-preview"
	DefaultChatModel          = "gpt-4o-mini"
	DefaultServerAddr         = ":8000"
	DefaultMetricsAddr        = ":9090"
	DefaultServiceName        = "voicemod"
	DefaultMetricsNamespace   = "voicemod"
	DefaultGuidanceURL        = "http://localhost:8000"
	DefaultRateLimit          = 2.0
	DefaultRateBurst          = 4
	DefaultSessionTTL         = 2 * time.Hour
	DefaultRedisPrefix        = "voicemod"
	DefaultDetectorTick       = 50 * time.Millisecond
	DefaultTranscriptCapacity = 40
	DefaultDisplaySegments    = 8
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "text"
)

// DefaultCORSOrigins is the origin list used when none is configured.
var DefaultCORSOrigins = []string{"http://localhost:5173"}

// Config is the complete voicemod configuration.
type Config struct {
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Moderator ModeratorConfig `yaml:"moderator"`
	Engine    EngineConfig    `yaml:"engine"`
	Detector  DetectorConfig  `yaml:"detector"`
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// RealtimeConfig configures the realtime voice session.
type RealtimeConfig struct {
	// Provider is "openai" or "azure".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	Voice    string `yaml:"voice"`

	// Endpoint is the Azure OpenAI resource endpoint used for realtime.
	Endpoint   string `yaml:"endpoint,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`

	// UseEntraID authenticates Azure requests with a DefaultAzureCredential
	// token instead of an api-key.
	UseEntraID bool `yaml:"use_entra_id,omitempty"`

	// Instructions is the persona prompt. Empty uses the built-in persona.
	Instructions       string `yaml:"instructions,omitempty"`
	TranscriptionModel string `yaml:"transcription_model,omitempty"`
	Greet              bool   `yaml:"greet"`
}

// ModeratorConfig configures the turn coordinator and its guidance source.
type ModeratorConfig struct {
	moderator.Config `yaml:",inline"`

	// GuidanceURL is the base URL of the guidance service.
	GuidanceURL        string `yaml:"guidance_url"`
	TranscriptCapacity int    `yaml:"transcript_capacity"`
	DisplaySegments    int    `yaml:"display_segments"`
}

// EngineConfig configures how the guidance service writes guidance text.
type EngineConfig struct {
	// Provider is "template", "openai" or "azure".
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model,omitempty"`
	Endpoint   string `yaml:"endpoint,omitempty"`
	Deployment string `yaml:"deployment,omitempty"`
	APIVersion string `yaml:"api_version,omitempty"`
	APIKey     string `yaml:"api_key,omitempty"`
	UseEntraID bool   `yaml:"use_entra_id,omitempty"`

	// ProfilePath points at a checklist profile YAML. Empty uses the built-in profile.
	ProfilePath string `yaml:"profile_path,omitempty"`

	// FallbackToTemplate answers with template guidance when the LLM fails.
	FallbackToTemplate bool `yaml:"fallback_to_template"`
}

// DetectorConfig holds speech detector thresholds.
type DetectorConfig struct {
	Activity audio.ActivityParams `yaml:"activity"`
	Gate     audio.GateParams     `yaml:"gate"`

	// Tick is how often the speaking state is sampled.
	Tick time.Duration `yaml:"tick"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	CORSOrigins []string `yaml:"cors_origins"`

	// RateLimit is the sustained guidance requests per second per session.
	RateLimit  float64          `yaml:"rate_limit"`
	RateBurst  int              `yaml:"rate_burst"`
	SessionTTL time.Duration    `yaml:"session_ttl"`
	StateStore StateStoreConfig `yaml:"state_store"`
}

// StateStoreConfig selects session record storage.
type StateStoreConfig struct {
	// Type is "memory" or "redis".
	Type  string      `yaml:"type"`
	Redis RedisConfig `yaml:"redis,omitempty"`
}

// RedisConfig contains Redis-specific configuration.
type RedisConfig struct {
	// Address of the Redis server (e.g., "localhost:6379")
	Address  string `yaml:"address"`
	Password string `yaml:"password,omitempty"`
	Database int    `yaml:"database,omitempty"`
	Prefix   string `yaml:"prefix,omitempty"`
}

// TelemetryConfig configures OpenTelemetry tracing. An empty endpoint
// disables export.
type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`
	ServiceName  string `yaml:"service_name"`

	// SampleRatio samples root spans; 0 or 1 keeps every trace.
	SampleRatio float64 `yaml:"sample_ratio,omitempty"`
}

// MetricsConfig configures the Prometheus exporter. An empty address
// serves metrics from the API server only.
type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
}

// LoggingConfig configures the process logger.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Fields map[string]string `yaml:"fields,omitempty"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Realtime: RealtimeConfig{
			Provider:           ProviderOpenAI,
			Model:              DefaultRealtimeModel,
			Voice:              DefaultVoice,
			APIVersion:         DefaultAzureAPIVersion,
			TranscriptionModel: DefaultTranscriptionModel,
			Greet:              true,
		},
		Moderator: ModeratorConfig{
			Config:             moderator.DefaultConfig(),
			GuidanceURL:        DefaultGuidanceURL,
			TranscriptCapacity: DefaultTranscriptCapacity,
			DisplaySegments:    DefaultDisplaySegments,
		},
		Engine: EngineConfig{
			Provider:           ProviderTemplate,
			Model:              DefaultChatModel,
			APIVersion:         DefaultChatAPIVersion,
			FallbackToTemplate: true,
		},
		Detector: DetectorConfig{
			Activity: audio.DefaultActivityParams(),
			Gate:     audio.DefaultGateParams(),
			Tick:     DefaultDetectorTick,
		},
		Server: ServerConfig{
			Addr:        DefaultServerAddr,
			CORSOrigins: append([]string(nil), DefaultCORSOrigins...),
			RateLimit:   DefaultRateLimit,
			RateBurst:   DefaultRateBurst,
			SessionTTL:  DefaultSessionTTL,
			StateStore: StateStoreConfig{
				Type:  StateStoreMemory,
				Redis: RedisConfig{Prefix: DefaultRedisPrefix},
			},
		},
		Telemetry: TelemetryConfig{ServiceName: DefaultServiceName},
		Metrics:   MetricsConfig{Addr: DefaultMetricsAddr, Namespace: DefaultMetricsNamespace},
		Logging:   LoggingConfig{Level: DefaultLogLevel, Format: DefaultLogFormat},
	}
}

// applyDefaults fills fields left empty after loading.
func (c *Config) applyDefaults() {
	d := Default()

	setString(&c.Realtime.Provider, d.Realtime.Provider)
	setString(&c.Realtime.Model, d.Realtime.Model)
	setString(&c.Realtime.Voice, d.Realtime.Voice)
	setString(&c.Realtime.APIVersion, d.Realtime.APIVersion)
	setString(&c.Realtime.TranscriptionModel, d.Realtime.TranscriptionModel)

	c.Moderator.Config = fillModerator(c.Moderator.Config, d.Moderator.Config)
	setString(&c.Moderator.GuidanceURL, d.Moderator.GuidanceURL)
	setInt(&c.Moderator.TranscriptCapacity, d.Moderator.TranscriptCapacity)
	setInt(&c.Moderator.DisplaySegments, d.Moderator.DisplaySegments)

	setString(&c.Engine.Provider, d.Engine.Provider)
	setString(&c.Engine.Model, d.Engine.Model)
	setString(&c.Engine.APIVersion, d.Engine.APIVersion)

	if c.Detector.Activity == (audio.ActivityParams{}) {
		c.Detector.Activity = d.Detector.Activity
	}
	if c.Detector.Gate == (audio.GateParams{}) {
		c.Detector.Gate = d.Detector.Gate
	}
	if c.Detector.Tick <= 0 {
		c.Detector.Tick = d.Detector.Tick
	}

	setString(&c.Server.Addr, d.Server.Addr)
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = d.Server.CORSOrigins
	}
	if c.Server.RateLimit <= 0 {
		c.Server.RateLimit = d.Server.RateLimit
	}
	setInt(&c.Server.RateBurst, d.Server.RateBurst)
	if c.Server.SessionTTL <= 0 {
		c.Server.SessionTTL = d.Server.SessionTTL
	}
	setString(&c.Server.StateStore.Type, d.Server.StateStore.Type)
	setString(&c.Server.StateStore.Redis.Prefix, d.Server.StateStore.Redis.Prefix)

	setString(&c.Telemetry.ServiceName, d.Telemetry.ServiceName)
	setString(&c.Metrics.Namespace, d.Metrics.Namespace)
	setString(&c.Logging.Level, d.Logging.Level)
	setString(&c.Logging.Format, d.Logging.Format)
}

func fillModerator(c, d moderator.Config) moderator.Config {
	if c.Interval <= 0 {
		c.Interval = d.Interval
	}
	if c.MinInterval <= 0 {
		c.MinInterval = d.MinInterval
	}
	if c.InitialPollDelay <= 0 {
		c.InitialPollDelay = d.InitialPollDelay
	}
	if c.PostSpeechDelay <= 0 {
		c.PostSpeechDelay = d.PostSpeechDelay
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.UnmuteResumeDelay <= 0 {
		c.UnmuteResumeDelay = d.UnmuteResumeDelay
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = d.RequestTimeout
	}
	if c.MaxSegments <= 0 {
		c.MaxSegments = d.MaxSegments
	}
	return c
}

func setString(dst *string, def string) {
	if *dst == "" {
		*dst = def
	}
}

func setInt(dst *int, def int) {
	if *dst <= 0 {
		*dst = def
	}
}
