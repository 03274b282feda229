// Package server exposes the session and moderator guidance HTTP API.
package server

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/engine"
	prommetrics "github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/metrics/prometheus"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/sessions"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/statestore"
)

const (
	// defaultReadHeaderTimeout prevents Slowloris attacks.
	defaultReadHeaderTimeout = 10 * time.Second

	// defaultReadTimeout is the maximum duration for reading the entire
	// request, including the body.
	defaultReadTimeout = 30 * time.Second

	// defaultWriteTimeout covers a slow LLM call plus the response write.
	defaultWriteTimeout = 60 * time.Second

	defaultIdleTimeout = 120 * time.Second

	// defaultMaxBodySize is the maximum allowed size of a request body (1 MB).
	defaultMaxBodySize int64 = 1 << 20

	defaultRateLimit  = 2.0
	defaultRateBurst  = 4
	defaultLimiterTTL = 2 * time.Hour
)

// SessionDefaults describes the realtime sessions the API mints.
type SessionDefaults struct {
	Model              string
	Voice              string
	TranscriptionModel string

	// Persona replaces the profile persona when set.
	Persona string
}

// Option configures a Server.
type Option func(*Server)

// WithStore sets the session store. The default is an in-memory store.
func WithStore(store statestore.Store) Option {
	return func(s *Server) { s.store = store }
}

// WithMetrics records API metrics into m.
func WithMetrics(m *prommetrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithMetricsHandler serves h at GET /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metricsHandler = h }
}

// WithCORSOrigins sets the allowed browser origins. "*" allows any origin.
func WithCORSOrigins(origins ...string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// WithRateLimit sets the per-session guidance rate (requests per second)
// and burst.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Server) {
		s.rateLimit = perSecond
		s.rateBurst = burst
	}
}

// WithLimiterTTL sets how long an idle session keeps its rate limiter.
func WithLimiterTTL(d time.Duration) Option {
	return func(s *Server) { s.limiterTTL = d }
}

// WithSessionDefaults sets the model, voice and persona of minted sessions.
func WithSessionDefaults(d SessionDefaults) Option {
	return func(s *Server) { s.defaults = d }
}

// WithMaxBodySize limits request bodies.
func WithMaxBodySize(n int64) Option {
	return func(s *Server) { s.maxBodySize = n }
}

// WithTracerProvider sets the provider for request spans.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Server) { s.tracerProvider = tp }
}

// WithNow sets the clock, for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server serves the voicemod HTTP API.
type Server struct {
	minter         sessions.Minter
	engine         *engine.Engine
	store          statestore.Store
	metrics        *prommetrics.Metrics
	metricsHandler http.Handler
	tracerProvider trace.TracerProvider
	defaults       SessionDefaults
	corsOrigins    []string
	rateLimit      float64
	rateBurst      int
	limiterTTL     time.Duration
	maxBodySize    int64
	now            func() time.Time

	limiters *limiterSet
	schemas  *schemas

	httpSrv   *http.Server
	httpSrvMu sync.Mutex
}

// NewServer creates an API server minting sessions with minter and
// answering guidance requests with eng.
func NewServer(minter sessions.Minter, eng *engine.Engine, opts ...Option) (*Server, error) {
	s := &Server{
		minter:      minter,
		engine:      eng,
		rateLimit:   defaultRateLimit,
		rateBurst:   defaultRateBurst,
		limiterTTL:  defaultLimiterTTL,
		maxBodySize: defaultMaxBodySize,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.store == nil {
		s.store = statestore.NewMemoryStore()
	}
	if s.engine == nil {
		s.engine = engine.New(nil)
	}

	compiled, err := compileSchemas()
	if err != nil {
		return nil, err
	}
	s.schemas = compiled
	s.limiters = newLimiterSet(s.rateLimit, s.rateBurst, s.limiterTTL, s.now)
	return s, nil
}

// Handler returns the API handler with CORS and tracing applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/sessions", s.handleCreateSession)
	mux.HandleFunc("POST /api/moderator/guidance", s.handleGuidance)
	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /{$}", s.handleHealth)
	if s.metricsHandler != nil {
		mux.Handle("GET /metrics", s.metricsHandler)
	}

	var opts []otelhttp.Option
	if s.tracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(s.tracerProvider))
	}
	return otelhttp.NewHandler(s.cors(mux), "voicemod-api", opts...)
}

// ListenAndServe starts the HTTP server on addr.
func (s *Server) ListenAndServe(addr string) error {
	srv := s.newHTTPServer()
	srv.Addr = addr
	return srv.ListenAndServe()
}

// Serve starts the HTTP server on the given listener.
func (s *Server) Serve(ln net.Listener) error {
	return s.newHTTPServer().Serve(ln)
}

func (s *Server) newHTTPServer() *http.Server {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	s.httpSrvMu.Lock()
	s.httpSrv = srv
	s.httpSrvMu.Unlock()
	return srv
}

// Shutdown gracefully drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.httpSrvMu.Lock()
	srv := s.httpSrv
	s.httpSrvMu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
