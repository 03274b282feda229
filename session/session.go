// Package session wires one moderated voice call together: the realtime
// transport, the turn coordinator, the speaking-state detector, the
// transcript history and the observers (UI sink, metrics, tracing).
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/audio"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/config"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/events"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	prommetrics "github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/metrics/prometheus"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/moderator"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/providers/openai"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/telemetry"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("session is closed")

// Transport is the realtime connection a session drives.
type Transport interface {
	moderator.TurnTransport
	Connect(ctx context.Context, params openai.ConnectParams) error
	Disconnect() error
	PushLocalAudio(pcm []byte) error
	Levels() (local, remote float64)
	SetMuted(muted bool)
}

// Config describes one call.
type Config struct {
	// ID is the session id shared with the guidance service. Empty mints a
	// local id.
	ID string

	Connect     openai.ConnectParams
	Moderator   moderator.Config
	GuidanceURL string

	Activity audio.ActivityParams
	Gate     audio.GateParams

	// Tick is how often the speaking state is sampled.
	Tick time.Duration

	// TranscriptCapacity bounds the transcript history. It is raised to
	// Moderator.MaxSegments so guidance requests see the full window.
	TranscriptCapacity int
	DisplaySegments    int
}

// FromConfig builds a session Config from the loaded configuration.
func FromConfig(cfg *config.Config, id string, params openai.ConnectParams) Config {
	return Config{
		ID:                 id,
		Connect:            params,
		Moderator:          cfg.Moderator.Config,
		GuidanceURL:        cfg.Moderator.GuidanceURL,
		Activity:           cfg.Detector.Activity,
		Gate:               cfg.Detector.Gate,
		Tick:               cfg.Detector.Tick,
		TranscriptCapacity: cfg.Moderator.TranscriptCapacity,
		DisplaySegments:    cfg.Moderator.DisplaySegments,
	}
}

// Option configures a Session.
type Option func(*Session)

// WithSink sets the UI sink.
func WithSink(sink Sink) Option {
	return func(s *Session) { s.sink = sink }
}

// WithTransport replaces the realtime transport, mainly for tests.
func WithTransport(t Transport) Option {
	return func(s *Session) { s.transport = t }
}

// WithGuidanceSource replaces the HTTP guidance client.
func WithGuidanceSource(src moderator.GuidanceSource) Option {
	return func(s *Session) { s.source = src }
}

// WithMetrics records session events into m.
func WithMetrics(m *prommetrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithTracerProvider traces guidance requests and session events.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *Session) { s.tracerProvider = tp }
}

// WithClock drives the coordinator from clock.
func WithClock(clock moderator.Clock) Option {
	return func(s *Session) { s.clock = clock }
}

// WithRemoteAudio receives decoded agent audio for playback.
func WithRemoteAudio(fn func(pcm []byte)) Option {
	return func(s *Session) { s.remoteAudio = fn }
}

// Session owns every per-call component. Nothing is shared between sessions.
type Session struct {
	id             string
	cfg            Config
	sink           Sink
	transport      Transport
	source         moderator.GuidanceSource
	metrics        *prommetrics.Metrics
	tracerProvider trace.TracerProvider
	clock          moderator.Clock
	remoteAudio    func([]byte)

	bus         *events.EventBus
	emitter     *events.Emitter
	coordinator *moderator.Coordinator
	detector    *audio.ActivityDetector
	history     *transcript.Buffer
	tracing     *telemetry.EventListener
	unsubs      []func()

	mu       sync.Mutex
	started  bool
	closed   bool
	speaking audio.SpeakingState
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds a session. Nothing connects until Start.
func New(cfg Config, opts ...Option) (*Session, error) {
	s := &Session{cfg: cfg, sink: NopSink{}}
	for _, opt := range opts {
		opt(s)
	}

	s.id = cfg.ID
	if s.id == "" {
		s.id = "local-" + uuid.NewString()
	}
	if s.cfg.Tick <= 0 {
		s.cfg.Tick = config.DefaultDetectorTick
	}
	if s.cfg.DisplaySegments <= 0 {
		s.cfg.DisplaySegments = transcript.DefaultDisplayWindow
	}
	if s.cfg.Activity == (audio.ActivityParams{}) {
		s.cfg.Activity = audio.DefaultActivityParams()
	}
	if s.cfg.Gate == (audio.GateParams{}) {
		s.cfg.Gate = audio.DefaultGateParams()
	}

	detector, err := audio.NewActivityDetector(s.cfg.Activity)
	if err != nil {
		return nil, fmt.Errorf("invalid activity params: %w", err)
	}
	s.detector = detector
	s.speaking = audio.StateIdle

	s.bus = events.NewEventBus()
	s.emitter = events.NewEmitter(s.bus, s.id)

	if s.transport == nil {
		topts := []openai.TransportOption{
			openai.WithEmitter(s.emitter),
			openai.WithGateParams(s.cfg.Gate),
		}
		if s.remoteAudio != nil {
			topts = append(topts, openai.WithRemoteAudioHandler(s.remoteAudio))
		}
		t, err := openai.NewTransport(topts...)
		if err != nil {
			s.bus.Close()
			return nil, err
		}
		s.transport = t
	}

	if s.source == nil {
		if s.cfg.GuidanceURL == "" {
			s.bus.Close()
			return nil, errors.New("guidance URL is required")
		}
		var copts []guidance.ClientOption
		if s.tracerProvider != nil {
			copts = append(copts, guidance.WithTracerProvider(s.tracerProvider))
		}
		s.source = guidance.NewClient(s.cfg.GuidanceURL, s.id, copts...)
	}

	maxSegments := s.cfg.Moderator.MaxSegments
	if maxSegments <= 0 {
		maxSegments = moderator.DefaultMaxSegments
	}
	s.history = transcript.NewBuffer(max(s.cfg.TranscriptCapacity, maxSegments))

	if s.metrics != nil {
		s.unsubs = append(s.unsubs, s.bus.SubscribeAll(prommetrics.NewMetricsListener(s.metrics).Listener()))
	}
	if s.tracerProvider != nil {
		s.tracing = telemetry.NewEventListener(telemetry.Tracer(s.tracerProvider))
		s.unsubs = append(s.unsubs, s.bus.SubscribeAll(s.tracing.OnEvent))
	}

	// Subscribed before the coordinator so the history already holds a
	// customer segment when the coordinator reacts to it.
	s.unsubs = append(s.unsubs, s.transport.Subscribe(s.handleTransportEvent))

	copts := []moderator.Option{
		moderator.WithConfig(s.cfg.Moderator),
		moderator.WithEmitter(s.emitter),
		moderator.WithGuidanceObserver(s.handleGuidance),
	}
	if s.clock != nil {
		copts = append(copts, moderator.WithClock(s.clock))
	}
	s.coordinator = moderator.NewCoordinator(s.transport, s.source, s.history.All, copts...)
	return s, nil
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Bus returns the session's event bus.
func (s *Session) Bus() *events.EventBus { return s.bus }

// Coordinator returns the turn coordinator.
func (s *Session) Coordinator() *moderator.Coordinator { return s.coordinator }

// Transcript returns the transcript history, oldest first.
func (s *Session) Transcript() []transcript.Segment { return s.history.All() }

// Speaking returns the last sampled speaking state.
func (s *Session) Speaking() audio.SpeakingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speaking
}

// Start connects the transport, starts the coordinator and begins sampling
// the speaking state. A connection failure is returned as-is.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.started {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	ctx = logger.WithSessionID(ctx, s.id)
	if err := s.transport.Connect(ctx, s.cfg.Connect); err != nil {
		logger.ErrorContext(ctx, "Session: connect failed", "error", err)
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = s.transport.Disconnect()
		return ErrClosed
	}
	s.started = true
	loopCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.detectLoop(loopCtx, s.done)
	s.mu.Unlock()

	s.coordinator.Start()
	logger.InfoContext(ctx, "Session started")
	return nil
}

// PushAudio forwards one chunk of microphone PCM16.
func (s *Session) PushAudio(pcm []byte) error {
	return s.transport.PushLocalAudio(pcm)
}

// SetMuted mutes or unmutes the microphone. The coordinator follows the
// transport's mute events.
func (s *Session) SetMuted(muted bool) {
	s.transport.SetMuted(muted)
}

// Muted reports whether the microphone is muted.
func (s *Session) Muted() bool {
	return s.transport.IsMuted()
}

// Close tears the session down. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
	s.coordinator.Destroy()
	err := s.transport.Disconnect()
	for _, unsub := range s.unsubs {
		unsub()
	}
	if s.tracing != nil {
		s.tracing.Close()
	}
	s.bus.Close()
	logger.Info("Session closed", "session_id", s.id)
	return err
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) handleTransportEvent(ev *events.Event) {
	switch d := ev.Data.(type) {
	case events.TranscriptSegmentData:
		if s.isClosed() {
			return
		}
		s.history.Append(d.Segment)
		s.sink.OnSegment(d.Segment, s.history.Recent(s.cfg.DisplaySegments))
	case events.ConnectionStateData:
		if d.State != events.ConnectionConnected {
			s.detector.Reset()
		}
		s.sink.OnConnectionState(d.State, d.Err)
	}
}

func (s *Session) handleGuidance(resp *guidance.Response) {
	if s.isClosed() {
		return
	}
	parsed, ok := guidance.Parse(guidance.Wrap(resp.GuidanceText))
	s.sink.OnGuidance(resp.GuidanceText, parsed, ok, resp.MissingItems)
}

func (s *Session) detectLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sampleSpeaking()
		}
	}
}

// sampleSpeaking feeds the current energy levels to the detector and
// reports state changes.
func (s *Session) sampleSpeaking() {
	local, remote := s.transport.Levels()
	monitoring := s.transport.IsChannelReady()
	if s.transport.IsMuted() {
		local = 0
	}
	state := s.detector.Update(local, remote, monitoring)

	s.mu.Lock()
	prev := s.speaking
	s.speaking = state
	s.mu.Unlock()

	if state == prev {
		return
	}
	s.emitter.SpeakingChanged(state.String(), prev.String())
	s.sink.OnSpeakingState(state)
}
