package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from filename (optional), applies environment
// overrides and defaults, then validates the result.
func Load(filename string) (*Config, error) {
	return LoadWithLookup(filename, os.LookupEnv)
}

// LoadWithLookup is Load with a custom environment source.
func LoadWithLookup(filename string, lookup LookupFunc) (*Config, error) {
	cfg := Default()

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// envBinding maps one environment variable onto a config field.
type envBinding struct {
	key   string
	apply func(c *Config, v string) error
}

func str(field func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = v
		return nil
	}
}

func duration(field func(c *Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*field(c) = d
		return nil
	}
}

// envBindings lists the supported environment overrides. Names are
// unprefixed so existing deployment .env files keep working.
var envBindings = []envBinding{
	{"PROVIDER", str(func(c *Config) *string { return &c.Realtime.Provider })},
	{"MODERATOR_PROVIDER", str(func(c *Config) *string { return &c.Engine.Provider })},
	{"AZURE_OPENAI_MODERATOR_DEPLOYMENT", func(c *Config, v string) error {
		c.Engine.Deployment = v
		if c.Engine.Provider == ProviderTemplate {
			c.Engine.Provider = ProviderAzure
		}
		return nil
	}},
	{"VOICE_NAME", str(func(c *Config) *string { return &c.Realtime.Voice })},
	{"REALTIME_MODEL", str(func(c *Config) *string { return &c.Realtime.Model })},
	{"AZURE_OPENAI_REALTIME_ENDPOINT", str(func(c *Config) *string { return &c.Realtime.Endpoint })},
	{"AZURE_OPENAI_REALTIME_API_VERSION", str(func(c *Config) *string { return &c.Realtime.APIVersion })},
	{"OPENAI_API_KEY", func(c *Config, v string) error {
		if c.Realtime.Provider == ProviderOpenAI || c.Realtime.APIKey == "" {
			c.Realtime.APIKey = v
		}
		if c.Engine.Provider == ProviderOpenAI && c.Engine.APIKey == "" {
			c.Engine.APIKey = v
		}
		return nil
	}},
	{"AZURE_OPENAI_KEY", func(c *Config, v string) error {
		if c.Realtime.Provider == ProviderAzure {
			c.Realtime.APIKey = v
		}
		if c.Engine.Provider == ProviderAzure {
			c.Engine.APIKey = v
		}
		return nil
	}},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config, v string) error {
		c.Engine.Endpoint = v
		if c.Realtime.Endpoint == "" && c.Realtime.Provider == ProviderAzure {
			c.Realtime.Endpoint = v
		}
		return nil
	}},
	{"AZURE_OPENAI_API_VERSION", str(func(c *Config) *string { return &c.Engine.APIVersion })},
	{"AZURE_USE_ENTRA_ID", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Engine.UseEntraID = b
		c.Realtime.UseEntraID = b
		return nil
	}},
	{"MODERATOR_MODEL", str(func(c *Config) *string { return &c.Engine.Model })},
	{"MODERATOR_PROFILE", str(func(c *Config) *string { return &c.Engine.ProfilePath })},
	{"GUIDANCE_URL", str(func(c *Config) *string { return &c.Moderator.GuidanceURL })},
	{"MODERATOR_POLL_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Moderator.Interval })},
	{"CORS_ORIGINS", func(c *Config, v string) error {
		c.Server.CORSOrigins = splitList(v)
		return nil
	}},
	{"SERVER_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"REDIS_ADDR", func(c *Config, v string) error {
		c.Server.StateStore.Redis.Address = v
		if v != "" {
			c.Server.StateStore.Type = StateStoreRedis
		}
		return nil
	}},
	{"REDIS_PASSWORD", str(func(c *Config) *string { return &c.Server.StateStore.Redis.Password })},
	{"OTEL_EXPORTER_OTLP_ENDPOINT", str(func(c *Config) *string { return &c.Telemetry.OTLPEndpoint })},
	{"OTEL_SERVICE_NAME", str(func(c *Config) *string { return &c.Telemetry.ServiceName })},
	{"OTEL_TRACES_SAMPLER_ARG", func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		c.Telemetry.SampleRatio = f
		return nil
	}},
	{"METRICS_ADDR", str(func(c *Config) *string { return &c.Metrics.Addr })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", str(func(c *Config) *string { return &c.Logging.Format })},
}

// EnvKeys returns the environment variables ApplyEnv reads.
func EnvKeys() []string {
	keys := make([]string, len(envBindings))
	for i, b := range envBindings {
		keys[i] = b.key
	}
	return keys
}

// ApplyEnv overrides fields from the environment. Empty values are ignored.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}
	for _, b := range envBindings {
		v, ok := lookup(b.key)
		v = strings.TrimSpace(v)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(c, v); err != nil {
			return &ValidationError{Field: b.key, Message: err.Error(), Value: v}
		}
	}
	return nil
}

// splitList parses a comma separated list or a JSON-style ["a","b"] array.
func splitList(v string) []string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "[")
	v = strings.TrimSuffix(v, "]")
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.Trim(strings.TrimSpace(part), `"'`)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
