package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/credentials"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/telemetry"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// Observer is told about every generator attempt.
type Observer func(generator string, d time.Duration, err error)

// Engine analyses transcripts into guidance responses. It is safe for
// concurrent use when its generators are.
type Engine struct {
	profile   *Profile
	generator Generator
	fallback  Generator
	observer  Observer
	tracer    trace.Tracer
}

// Option configures an Engine.
type Option func(*Engine)

// WithGenerator sets the primary generator. The default is TemplateGenerator.
func WithGenerator(g Generator) Option {
	return func(e *Engine) { e.generator = g }
}

// WithFallback sets a generator used when the primary one fails.
func WithFallback(g Generator) Option {
	return func(e *Engine) { e.fallback = g }
}

// WithObserver sets a callback for generator attempts.
func WithObserver(fn Observer) Option {
	return func(e *Engine) { e.observer = fn }
}

// WithTracerProvider sets the provider used for analysis spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = telemetry.Tracer(tp) }
}

// New creates an engine for profile. A nil profile uses DefaultProfile.
func New(profile *Profile, opts ...Option) *Engine {
	if profile == nil {
		profile = DefaultProfile()
	}
	e := &Engine{
		profile:   profile,
		generator: TemplateGenerator{},
		tracer:    telemetry.Tracer(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromConfig builds an engine from configuration: the profile from
// ProfilePath and a chat generator for the openai and azure providers, with
// the template generator as fallback when enabled.
func FromConfig(ctx context.Context, cfg config.EngineConfig, opts ...Option) (*Engine, error) {
	profile, err := LoadProfile(cfg.ProfilePath)
	if err != nil {
		return nil, err
	}
	if cfg.Provider == config.ProviderTemplate || cfg.Provider == "" {
		return New(profile, opts...), nil
	}

	chatCfg := ChatConfig{
		Provider:   cfg.Provider,
		Model:      cfg.Model,
		Endpoint:   cfg.Endpoint,
		APIVersion: cfg.APIVersion,
		APIKey:     cfg.APIKey,
	}
	if cfg.Provider == config.ProviderAzure {
		chatCfg.Model = cfg.Deployment
		if cfg.UseEntraID {
			cred, err := credentials.NewAzureCredential(ctx)
			if err != nil {
				return nil, err
			}
			chatCfg.Credential = cred
		}
	}
	chat, err := NewChatGenerator(chatCfg)
	if err != nil {
		return nil, err
	}

	all := []Option{WithGenerator(chat)}
	if cfg.FallbackToTemplate {
		all = append(all, WithFallback(TemplateGenerator{}))
	}
	return New(profile, append(all, opts...)...), nil
}

// Profile returns the engine's checklist profile.
func (e *Engine) Profile() *Profile {
	return e.profile
}

// Analyse evaluates the checklist and tone and generates guidance text.
// The guidance id is derived from the transcript length, so an unchanged
// transcript yields the same id.
func (e *Engine) Analyse(ctx context.Context, segs []transcript.Segment) (*guidance.Response, error) {
	ctx, span := e.tracer.Start(ctx, "voicemod.engine.analyse",
		trace.WithAttributes(attribute.Int("transcript.segments", len(segs))),
	)
	defer span.End()

	in := Input{
		Profile:  e.profile,
		Status:   e.profile.Evaluate(segs),
		Tone:     e.profile.MeasureTone(segs),
		Segments: segs,
	}

	text, err := e.generate(ctx, e.generator, in)
	if err != nil && e.fallback != nil {
		logger.WarnContext(ctx, "Guidance generator failed, using fallback",
			"generator", e.generator.Name(), "fallback", e.fallback.Name(), "error", err)
		text, err = e.generate(ctx, e.fallback, in)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &guidance.Response{
		GuidanceID:   GuidanceID(segs),
		GuidanceText: text,
		MissingItems: in.Status.Missing,
		Tone:         in.Tone,
	}
	span.SetAttributes(
		attribute.String("guidance.id", resp.GuidanceID),
		attribute.Int("checklist.missing", len(resp.MissingItems)),
	)
	return resp, nil
}

func (e *Engine) generate(ctx context.Context, g Generator, in Input) (string, error) {
	start := time.Now()
	text, err := g.Generate(ctx, in)
	if err == nil && text == "" {
		err = ErrEmptyGuidance
	}
	if err != nil {
		err = fmt.Errorf("%s generator: %w", g.Name(), err)
	}
	if e.observer != nil {
		e.observer(g.Name(), time.Since(start), err)
	}
	return text, err
}

// GuidanceID returns the id for guidance computed over segs. The same window
// always yields the same id; windows of equal length but different content do
// not, so a transcript capped at its maximum size keeps producing fresh ids.
func GuidanceID(segs []transcript.Segment) string {
	var b strings.Builder
	for _, s := range segs {
		b.WriteString(string(s.Actor))
		b.WriteByte(0)
		b.WriteString(s.Text)
		b.WriteByte(0)
		b.WriteString(strconv.FormatInt(s.Timestamp.UnixNano(), 10))
		b.WriteByte('\n')
	}
	digest := uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String()))
	return fmt.Sprintf("guidance-%d-%s", len(segs), digest.String()[:8])
}
