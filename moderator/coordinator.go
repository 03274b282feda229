package moderator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/events"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

// Default coordinator timing.
const (
	DefaultInterval          = 5 * time.Second
	DefaultMinInterval       = 5 * time.Second
	DefaultInitialPollDelay  = 1500 * time.Millisecond
	DefaultPostSpeechDelay   = 250 * time.Millisecond
	DefaultRetryDelay        = 1500 * time.Millisecond
	DefaultUnmuteResumeDelay = 250 * time.Millisecond
	DefaultRequestTimeout    = 10 * time.Second
	DefaultMaxSegments       = 400
)

// Retry reasons reported on TurnRetryScheduled events.
const (
	ReasonNotReady      = "channel_not_ready"
	ReasonUserSpeaking  = "user_speaking"
	ReasonAgentSpeaking = "agent_speaking"
	ReasonSendFailed    = "send_failed"
)

// TurnTransport is everything the coordinator needs from the realtime
// connection.
type TurnTransport interface {
	IsChannelReady() bool
	IsAgentSpeaking() bool
	IsUserSpeaking() bool
	IsMuted() bool
	SendInstruction(ctx context.Context, text string) error
	RequestNextTurn(ctx context.Context) error
	Subscribe(fn func(*events.Event)) func()
}

// GuidanceSource fetches moderator guidance for a transcript window.
type GuidanceSource interface {
	Fetch(ctx context.Context, segments []transcript.Segment) (*guidance.Response, error)
}

// TranscriptFunc returns the transcript collected so far, oldest first.
type TranscriptFunc func() []transcript.Segment

// Config holds coordinator timing and limits.
type Config struct {
	Interval          time.Duration `yaml:"interval" mapstructure:"interval"`
	MinInterval       time.Duration `yaml:"min_interval" mapstructure:"min_interval"`
	InitialPollDelay  time.Duration `yaml:"initial_poll_delay" mapstructure:"initial_poll_delay"`
	PostSpeechDelay   time.Duration `yaml:"post_speech_delay" mapstructure:"post_speech_delay"`
	RetryDelay        time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
	UnmuteResumeDelay time.Duration `yaml:"unmute_resume_delay" mapstructure:"unmute_resume_delay"`
	RequestTimeout    time.Duration `yaml:"request_timeout" mapstructure:"request_timeout"`
	MaxSegments       int           `yaml:"max_segments" mapstructure:"max_segments"`
}

// DefaultConfig returns the default coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Interval:          DefaultInterval,
		MinInterval:       DefaultMinInterval,
		InitialPollDelay:  DefaultInitialPollDelay,
		PostSpeechDelay:   DefaultPostSpeechDelay,
		RetryDelay:        DefaultRetryDelay,
		UnmuteResumeDelay: DefaultUnmuteResumeDelay,
		RequestTimeout:    DefaultRequestTimeout,
		MaxSegments:       DefaultMaxSegments,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
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

// pollInterval clamps d to the configured floor.
func (c Config) pollInterval(d time.Duration) time.Duration {
	if d <= 0 {
		d = c.Interval
	}
	if d < c.MinInterval {
		return c.MinInterval
	}
	return d
}

// Phase is the coarse lifecycle state of a coordinator.
type Phase int

// Coordinator phases.
const (
	PhaseIdle Phase = iota
	PhaseRunning
	PhaseAwaitingTurn
	PhaseDestroyed
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRunning:
		return "running"
	case PhaseAwaitingTurn:
		return "awaiting_turn_action"
	case PhaseDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// State is a snapshot of coordinator state.
type State struct {
	Phase             Phase
	Muted             bool
	ActiveToken       TurnToken
	PendingGuidanceID string
	LastDeliveredID   string
	RequestInFlight   bool
	AgentSpeaking     bool
	UserSpeaking      bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithConfig sets timing and limits. Zero fields take defaults.
func WithConfig(cfg Config) Option {
	return func(c *Coordinator) { c.cfg = cfg.withDefaults() }
}

// WithClock replaces the wall clock, for tests.
func WithClock(clock Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

// WithEmitter publishes coordinator events through emitter.
func WithEmitter(emitter *events.Emitter) Option {
	return func(c *Coordinator) { c.emitter = emitter }
}

// WithGuidanceObserver registers a callback for every accepted guidance
// response. It is invoked outside the coordinator lock.
func WithGuidanceObserver(fn func(*guidance.Response)) Option {
	return func(c *Coordinator) { c.onGuidance = fn }
}

// Coordinator decides when to poll for guidance, when to inject it and when
// to advance the agent's turn. One instance serves one session.
type Coordinator struct {
	transport  TurnTransport
	source     GuidanceSource
	transcript TranscriptFunc
	cfg        Config
	clock      Clock
	emitter    *events.Emitter
	onGuidance func(*guidance.Response)

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	sched       *Scheduler

	mu            sync.Mutex
	deferred      []func()
	started       bool
	destroyed     bool
	muted         bool
	inFlight      bool
	pollSeq       uint64
	turnCounter   TurnToken
	activeToken   TurnToken
	awaitingStop  bool
	attempts      int
	agentSpeaking bool
	userSpeaking  bool
	pending       *guidance.Response
	latest        *guidance.Response
	lastDelivered string
}

// NewCoordinator creates a coordinator and subscribes it to transport
// events. Polling begins at Start.
func NewCoordinator(transport TurnTransport, source GuidanceSource, transcriptFn TranscriptFunc, opts ...Option) *Coordinator {
	c := &Coordinator{
		transport:    transport,
		source:       source,
		transcript:   transcriptFn,
		cfg:          DefaultConfig(),
		clock:        RealClock{},
		awaitingStop: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.transcript == nil {
		c.transcript = func() []transcript.Segment { return nil }
	}
	c.sched = NewScheduler(c.clock)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.muted = transport.IsMuted()
	c.unsubscribe = transport.Subscribe(c.handleEvent)
	return c
}

// unlock releases the lock and runs callbacks queued while it was held.
func (c *Coordinator) unlock() {
	fns := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// Start begins polling. It is a no-op after Destroy or a previous Start.
func (c *Coordinator) Start() {
	c.mu.Lock()
	defer c.unlock()

	if c.started || c.destroyed {
		return
	}
	c.started = true
	if c.muted {
		logger.Debug("Moderator: started while muted, polling deferred")
		return
	}
	c.schedulePollLocked(c.cfg.InitialPollDelay)
}

// Destroy stops all activity. It is safe to call more than once.
func (c *Coordinator) Destroy() {
	c.mu.Lock()
	defer c.unlock()

	if c.destroyed {
		return
	}
	c.destroyed = true
	c.started = false
	c.sched.CancelAll()
	c.cancel()
	if c.unsubscribe != nil {
		c.unsubscribe()
		c.unsubscribe = nil
	}
	c.pending = nil
	c.activeToken = 0
	c.inFlight = false
	c.agentSpeaking = false
	c.userSpeaking = false
}

// State returns a snapshot of the coordinator.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Muted:           c.muted,
		ActiveToken:     c.activeToken,
		LastDeliveredID: c.lastDelivered,
		RequestInFlight: c.inFlight,
		AgentSpeaking:   c.agentSpeaking,
		UserSpeaking:    c.userSpeaking,
	}
	if c.pending != nil {
		s.PendingGuidanceID = c.pending.GuidanceID
	}
	switch {
	case c.destroyed:
		s.Phase = PhaseDestroyed
	case !c.started:
		s.Phase = PhaseIdle
	case c.activeToken != 0:
		s.Phase = PhaseAwaitingTurn
	default:
		s.Phase = PhaseRunning
	}
	return s
}

// LatestGuidance returns the most recent guidance with text, or nil.
func (c *Coordinator) LatestGuidance() *guidance.Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.latest
}

// handleEvent is the transport subscriber.
func (c *Coordinator) handleEvent(ev *events.Event) {
	c.mu.Lock()
	defer c.unlock()

	if c.destroyed {
		return
	}

	switch d := ev.Data.(type) {
	case events.AgentSpeechData:
		c.agentSpeaking = d.Speaking
		if d.Speaking && c.activeToken != 0 {
			c.sched.CancelKey(TaskKey{Kind: TaskRetry, Token: c.activeToken})
		}
	case events.AgentTurnDoneData:
		c.agentSpeaking = false
		c.attemptLocked(c.activeToken)
	case events.UserSpeechData:
		if d.Speaking {
			c.userSpeechStartedLocked()
		} else {
			c.userSpeechStoppedLocked()
		}
	case events.TranscriptSegmentData:
		if d.Segment.Actor == transcript.ActorCustomer {
			c.userSpeechStoppedLocked()
		}
	case events.MuteChangedData:
		c.setMutedLocked(d.Muted)
	case events.ConnectionStateData:
		if d.State != events.ConnectionConnected {
			c.agentSpeaking = false
			c.userSpeaking = false
		}
	case events.RemoteMediaData, events.RealtimeEventData, events.RealtimeErrorData,
		events.SpeakingChangedData, events.GuidancePolledData, events.GuidanceReceivedData,
		events.GuidanceDeliveredData, events.TurnRequestedData, events.TurnRetryScheduledData:
	default:
		logger.Debug("Moderator: ignoring event", "type", ev.Type)
	}
}

func (c *Coordinator) userSpeechStartedLocked() {
	c.userSpeaking = true
	c.awaitingStop = true
	if c.activeToken != 0 {
		c.sched.CancelToken(c.activeToken)
		c.activeToken = 0
	}
}

// userSpeechStoppedLocked mints a token for the turn that just ended. Several
// stop signals for one utterance (remote VAD, local gate, transcription)
// mint a single token.
func (c *Coordinator) userSpeechStoppedLocked() {
	c.userSpeaking = false
	if !c.awaitingStop {
		return
	}
	c.awaitingStop = false

	if c.activeToken != 0 {
		c.sched.CancelToken(c.activeToken)
	}
	c.turnCounter++
	token := c.turnCounter
	c.activeToken = token
	c.attempts = 0

	c.sched.Schedule(TaskKey{Kind: TaskSettle, Token: token}, c.cfg.PostSpeechDelay, func(id TaskID) {
		c.mu.Lock()
		defer c.unlock()
		if c.destroyed || !c.sched.Claim(id) || c.activeToken != token {
			return
		}
		c.attemptLocked(token)
	})
}

func (c *Coordinator) setMutedLocked(muted bool) {
	if c.muted == muted {
		return
	}
	c.muted = muted
	if muted {
		c.sched.CancelKey(TaskKey{Kind: TaskPoll})
		return
	}
	if c.started && !c.inFlight {
		c.schedulePollLocked(c.cfg.UnmuteResumeDelay)
	}
}

// attemptLocked delivers pending guidance or advances the turn for token.
// A zero token means no turn is waiting.
func (c *Coordinator) attemptLocked(token TurnToken) {
	if c.destroyed || !c.started || token == 0 || token != c.activeToken {
		return
	}
	if c.sched.Pending(TaskKey{Kind: TaskSettle, Token: token}) {
		return
	}

	c.attempts++
	switch {
	case !c.transport.IsChannelReady():
		c.scheduleRetryLocked(token, ReasonNotReady)
		return
	case c.userSpeaking || c.transport.IsUserSpeaking():
		c.scheduleRetryLocked(token, ReasonUserSpeaking)
		return
	case c.agentSpeaking || c.transport.IsAgentSpeaking():
		c.scheduleRetryLocked(token, ReasonAgentSpeaking)
		return
	}

	ctx := logger.WithTurnToken(c.ctx, uint64(token))
	if g := c.pending; g != nil && g.GuidanceID != c.lastDelivered {
		c.deliverLocked(ctx, token, g)
		return
	}

	if err := c.transport.RequestNextTurn(ctx); err != nil {
		logger.WarnContext(ctx, "Moderator: turn request failed", "error", err)
		c.scheduleRetryLocked(token, ReasonSendFailed)
		return
	}
	c.emitter.TurnRequested(uint64(token), false)
	c.completeTurnLocked(token)
}

// deliverLocked injects g and advances the turn. The guidance counts as
// delivered once the instruction is on the wire; a failed turn request after
// that is retried as a plain turn advance.
func (c *Coordinator) deliverLocked(ctx context.Context, token TurnToken, g *guidance.Response) {
	ctx = logger.WithGuidanceID(ctx, g.GuidanceID)
	if err := c.transport.SendInstruction(ctx, g.GuidanceText); err != nil {
		logger.WarnContext(ctx, "Moderator: guidance delivery failed", "error", err)
		c.scheduleRetryLocked(token, ReasonSendFailed)
		return
	}
	c.lastDelivered = g.GuidanceID
	c.pending = nil
	c.emitter.GuidanceDelivered(g.GuidanceID, uint64(token), c.attempts)
	logger.InfoContext(ctx, "Moderator: guidance delivered", "attempts", c.attempts)

	if err := c.transport.RequestNextTurn(ctx); err != nil {
		logger.WarnContext(ctx, "Moderator: turn request failed after guidance", "error", err)
		c.scheduleRetryLocked(token, ReasonSendFailed)
		return
	}
	c.emitter.TurnRequested(uint64(token), true)
	c.completeTurnLocked(token)
}

func (c *Coordinator) completeTurnLocked(token TurnToken) {
	if c.activeToken != token {
		return
	}
	c.sched.CancelToken(token)
	c.activeToken = 0
	c.pending = nil
}

func (c *Coordinator) scheduleRetryLocked(token TurnToken, reason string) {
	key := TaskKey{Kind: TaskRetry, Token: token}
	if c.sched.Pending(key) {
		return
	}
	c.emitter.TurnRetryScheduled(uint64(token), reason, c.cfg.RetryDelay)
	c.sched.Schedule(key, c.cfg.RetryDelay, func(id TaskID) {
		c.mu.Lock()
		defer c.unlock()
		if c.destroyed || !c.sched.Claim(id) {
			return
		}
		c.attemptLocked(token)
	})
}

func (c *Coordinator) schedulePollLocked(d time.Duration) {
	if c.destroyed || !c.started || c.muted {
		return
	}
	c.sched.Schedule(TaskKey{Kind: TaskPoll}, d, func(id TaskID) {
		c.mu.Lock()
		defer c.unlock()
		if c.destroyed || !c.sched.Claim(id) {
			return
		}
		c.pollLocked()
	})
}

// pollLocked starts one guidance request if none is in flight.
func (c *Coordinator) pollLocked() {
	if c.inFlight || !c.started {
		return
	}
	if c.muted {
		return
	}

	segments := transcript.Window(c.transcript(), c.cfg.MaxSegments)
	if len(segments) == 0 {
		c.schedulePollLocked(c.cfg.Interval)
		return
	}

	c.inFlight = true
	c.pollSeq++
	seq := c.pollSeq
	ctx, cancel := context.WithTimeout(c.ctx, c.cfg.RequestTimeout)
	start := c.clock.Now()

	go func() {
		defer cancel()
		resp, err := c.source.Fetch(ctx, segments)
		c.finishPoll(seq, len(segments), c.clock.Now().Sub(start), resp, err)
	}()
}

func (c *Coordinator) finishPoll(seq uint64, segments int, took time.Duration, resp *guidance.Response, err error) {
	c.mu.Lock()
	defer c.unlock()

	if c.destroyed || seq != c.pollSeq {
		return
	}
	c.inFlight = false
	c.emitter.GuidancePolled(segments, took, err)

	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn("Moderator: guidance poll failed", "error", err, "segments", segments)
		}
		c.schedulePollLocked(c.cfg.Interval)
		return
	}
	if resp == nil || !resp.HasText() {
		c.schedulePollLocked(c.cfg.pollInterval(nextPoll(resp)))
		return
	}

	c.latest = resp
	if resp.GuidanceID != c.lastDelivered {
		c.pending = resp
	}
	c.emitter.GuidanceReceived(resp.GuidanceID, resp.GuidanceText, resp.MissingItems, string(resp.Tone))
	if c.onGuidance != nil {
		fn := c.onGuidance
		c.deferred = append(c.deferred, func() { fn(resp) })
	}
	logger.Debug("Moderator: guidance received", "guidance_id", resp.GuidanceID, "missing", resp.MissingItems)

	c.attemptLocked(c.activeToken)
	c.schedulePollLocked(c.cfg.pollInterval(resp.NextPoll()))
}

func nextPoll(resp *guidance.Response) time.Duration {
	if resp == nil {
		return 0
	}
	return resp.NextPoll()
}
