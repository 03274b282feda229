package config

import (
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/audio"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
	Value   string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return "config validation error: " + e.Field + ": " + e.Message + " (got: " + e.Value + ")"
	}
	return "config validation error: " + e.Field + ": " + e.Message
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	checks := []func() error{
		c.validateRealtime,
		c.validateModerator,
		c.validateEngine,
		c.validateDetector,
		c.validateServer,
		c.validateTelemetry,
		c.validateLogging,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateRealtime() error {
	r := c.Realtime
	switch r.Provider {
	case ProviderOpenAI:
	case ProviderAzure:
		if r.Endpoint == "" {
			return &ValidationError{Field: "realtime.endpoint", Message: "required for the azure provider"}
		}
		if err := validateURL("realtime.endpoint", r.Endpoint); err != nil {
			return err
		}
	default:
		return &ValidationError{Field: "realtime.provider", Message: "must be one of: openai, azure", Value: r.Provider}
	}
	if r.Model == "" {
		return &ValidationError{Field: "realtime.model", Message: "is required"}
	}
	return nil
}

func (c *Config) validateModerator() error {
	m := c.Moderator
	if m.MinInterval <= 0 {
		return &ValidationError{Field: "moderator.min_interval", Message: "must be positive", Value: m.MinInterval.String()}
	}
	if m.Interval < m.MinInterval {
		return &ValidationError{Field: "moderator.interval", Message: "must not be below min_interval", Value: m.Interval.String()}
	}
	if m.MaxSegments <= 0 {
		return &ValidationError{Field: "moderator.max_segments", Message: "must be positive"}
	}
	if m.GuidanceURL != "" {
		if err := validateURL("moderator.guidance_url", m.GuidanceURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateEngine() error {
	e := c.Engine
	switch e.Provider {
	case ProviderTemplate, ProviderOpenAI:
	case ProviderAzure:
		if e.Endpoint == "" {
			return &ValidationError{Field: "engine.endpoint", Message: "required for the azure provider"}
		}
		if e.Deployment == "" {
			return &ValidationError{Field: "engine.deployment", Message: "required for the azure provider"}
		}
	default:
		return &ValidationError{Field: "engine.provider", Message: "must be one of: template, openai, azure", Value: e.Provider}
	}
	return nil
}

func (c *Config) validateDetector() error {
	var verr *audio.ValidationError
	if err := c.Detector.Activity.Validate(); err != nil {
		if errors.As(err, &verr) {
			return &ValidationError{Field: "detector.activity." + strings.ToLower(verr.Field), Message: verr.Message}
		}
		return err
	}
	if err := c.Detector.Gate.Validate(); err != nil {
		if errors.As(err, &verr) {
			return &ValidationError{Field: "detector.gate." + strings.ToLower(verr.Field), Message: verr.Message}
		}
		return err
	}
	return nil
}

func (c *Config) validateServer() error {
	s := c.Server
	switch s.StateStore.Type {
	case StateStoreMemory:
	case StateStoreRedis:
		if s.StateStore.Redis.Address == "" {
			return &ValidationError{Field: "server.state_store.redis.address", Message: "required for the redis state store"}
		}
	default:
		return &ValidationError{Field: "server.state_store.type", Message: "must be one of: memory, redis", Value: s.StateStore.Type}
	}
	if s.RateBurst < 1 {
		return &ValidationError{Field: "server.rate_burst", Message: "must be at least 1"}
	}
	return nil
}

func (c *Config) validateTelemetry() error {
	if r := c.Telemetry.SampleRatio; r < 0 || r > 1 {
		return &ValidationError{Field: "telemetry.sample_ratio", Message: "must be between 0 and 1", Value: strconv.FormatFloat(r, 'g', -1, 64)}
	}
	if c.Telemetry.OTLPEndpoint != "" {
		return validateURL("telemetry.otlp_endpoint", c.Telemetry.OTLPEndpoint)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return &ValidationError{Field: "logging.format", Message: "must be one of: text, json", Value: c.Logging.Format}
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return &ValidationError{Field: "logging.level", Message: "must be one of: debug, info, warn, error", Value: c.Logging.Level}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return &ValidationError{Field: field, Message: "must be an absolute URL", Value: raw}
	}
	return nil
}
