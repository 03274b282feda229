// Package telemetry provides OpenTelemetry integration for voice sessions,
// including TracerProvider management and an event-to-span listener.
package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/contrib/propagators/aws/xray"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/version"
)

// InstrumentationName is the OTel instrumentation scope name.
const InstrumentationName = "github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap"

// ErrNoEndpoint is returned when neither an OTLP endpoint nor an exporter is set.
var ErrNoEndpoint = errors.New("telemetry: OTLP endpoint is required")

// Tracer returns the voicemod tracer from tp, or from the global provider
// when tp is nil.
func Tracer(tp trace.TracerProvider) trace.Tracer {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return tp.Tracer(InstrumentationName, trace.WithInstrumentationVersion(version.GetVersion()))
}

type providerConfig struct {
	sampleRatio float64
	attrs       []attribute.KeyValue
	exporter    sdktrace.SpanExporter
}

// ProviderOption configures NewTracerProvider.
type ProviderOption func(*providerConfig)

// WithSampleRatio samples root spans at ratio. Values outside (0, 1) sample
// everything. Child spans follow their parent.
func WithSampleRatio(ratio float64) ProviderOption {
	return func(c *providerConfig) { c.sampleRatio = ratio }
}

// WithResourceAttributes adds attributes to the service resource, such as
// the realtime provider a deployment talks to.
func WithResourceAttributes(kv ...attribute.KeyValue) ProviderOption {
	return func(c *providerConfig) { c.attrs = append(c.attrs, kv...) }
}

// WithSpanExporter replaces the OTLP/HTTP exporter.
func WithSpanExporter(exp sdktrace.SpanExporter) ProviderOption {
	return func(c *providerConfig) { c.exporter = exp }
}

// NewTracerProvider creates a TracerProvider for serviceName that batches
// spans to the OTLP/HTTP endpoint. The caller must Shutdown the provider to
// flush pending spans.
func NewTracerProvider(ctx context.Context, endpoint, serviceName string, opts ...ProviderOption) (*sdktrace.TracerProvider, error) {
	var cfg providerConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	exp := cfg.exporter
	if exp == nil {
		if endpoint == "" {
			return nil, ErrNoEndpoint
		}
		otlp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, err
		}
		exp = otlp
	}

	attrs := append([]attribute.KeyValue{
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version.GetVersion()),
	}, cfg.attrs...)
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(attrs...))
	if err != nil {
		return nil, err
	}

	sampler := sdktrace.AlwaysSample()
	if cfg.sampleRatio > 0 && cfg.sampleRatio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.sampleRatio))
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler),
	), nil
}

// SetupPropagation installs the global propagator: W3C trace context and
// baggage, plus X-Ray headers for load balancers in front of the API.
func SetupPropagation() {
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
		xray.Propagator{},
	))
}
