package openai

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/audio"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/events"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/guidance"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/logger"
	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/transcript"
)

const (
	// flushDedupeWindow suppresses the same completed text flushed twice in a
	// row, since several done-type events arrive for one utterance.
	flushDedupeWindow = 500 * time.Millisecond

	// maxPendingUserItems bounds input items awaiting transcription.
	maxPendingUserItems = 16

	// levelTTL is how long an energy reading stays current without new audio.
	levelTTL = 250 * time.Millisecond
)

// ErrNotReady is returned when a command needs an open control channel.
var ErrNotReady = errors.New("realtime channel is not ready")

// TransportOption configures a Transport.
type TransportOption func(*Transport)

// WithEmitter publishes transport events to the emitter's bus.
func WithEmitter(emitter *events.Emitter) TransportOption {
	return func(t *Transport) {
		t.emitter = emitter
	}
}

// WithGateParams sets the local speech gate parameters.
func WithGateParams(params audio.GateParams) TransportOption {
	return func(t *Transport) {
		t.gateParams = params
	}
}

// WithRemoteAudioHandler receives decoded agent audio as it arrives.
func WithRemoteAudioHandler(fn func(pcm []byte)) TransportOption {
	return func(t *Transport) {
		t.remoteAudio = fn
	}
}

// WithNow overrides the transport's time source.
func WithNow(now func() time.Time) TransportOption {
	return func(t *Transport) {
		if now != nil {
			t.now = now
		}
	}
}

// WithHeartbeat sets the websocket ping interval.
func WithHeartbeat(interval time.Duration) TransportOption {
	return func(t *Transport) {
		if interval > 0 {
			t.heartbeat = interval
		}
	}
}

// WithDialBackoff sets the base delay between transient dial retries.
func WithDialBackoff(base time.Duration) TransportOption {
	return func(t *Transport) {
		if base > 0 {
			t.dialBackoff = base
		}
	}
}

type subscriber struct {
	id int
	fn func(*events.Event)
}

type flushRecord struct {
	text string
	at   time.Time
}

// userItem collects transcription deltas for one input audio item. Deltas
// for an item can still arrive after the next utterance has started.
type userItem struct {
	text      strings.Builder
	startedAt time.Time
}

type levelSample struct {
	value float64
	at    time.Time
}

func (l levelSample) current(now time.Time) float64 {
	if l.at.IsZero() || now.Sub(l.at) > levelTTL {
		return 0
	}
	return l.value
}

// Transport owns the lifecycle of one realtime session: the control channel,
// inbound event mapping, transcript flushing, mute and outbound commands.
type Transport struct {
	emitter     *events.Emitter
	gate        *audio.SpeechGate
	gateParams  audio.GateParams
	remoteAudio func([]byte)
	now         func() time.Time
	heartbeat   time.Duration
	dialBackoff time.Duration
	eventSeq    atomic.Int64

	mu                 sync.Mutex
	conn               *realtimeConn
	cancel             context.CancelFunc
	done               chan struct{}
	provider           Provider
	ready              bool
	muted              bool
	agentSpeaking      bool
	remoteUserSpeaking bool
	localMonitoring    bool
	remoteMedia        bool
	agentBuf           strings.Builder
	agentStartedAt     time.Time
	userItems          map[string]*userItem
	lastFlush          map[transcript.Actor]flushRecord
	localLevel         levelSample
	remoteLevel        levelSample

	subMu   sync.RWMutex
	subs    []subscriber
	nextSub int
}

// NewTransport creates a disconnected transport.
func NewTransport(opts ...TransportOption) (*Transport, error) {
	t := &Transport{
		gateParams:  audio.DefaultGateParams(),
		now:         time.Now,
		heartbeat:   wsHeartbeat,
		dialBackoff: wsRetryBackoffBase,
		lastFlush:   make(map[transcript.Actor]flushRecord),
		userItems:   make(map[string]*userItem),
	}
	for _, opt := range opts {
		opt(t)
	}
	gate, err := audio.NewSpeechGate(t.gateParams, audio.WithGateClock(t.now))
	if err != nil {
		return nil, fmt.Errorf("invalid gate params: %w", err)
	}
	t.gate = gate
	return t, nil
}

// Subscribe registers fn for every event the transport produces, in order.
// Callbacks run on the transport's goroutines outside its lock and must not
// call Disconnect. The returned function unsubscribes.
func (t *Transport) Subscribe(fn func(*events.Event)) func() {
	t.subMu.Lock()
	defer t.subMu.Unlock()
	t.nextSub++
	id := t.nextSub
	t.subs = append(t.subs, subscriber{id: id, fn: fn})
	return func() {
		t.subMu.Lock()
		defer t.subMu.Unlock()
		for i, s := range t.subs {
			if s.id == id {
				t.subs = append(t.subs[:i:i], t.subs[i+1:]...)
				return
			}
		}
	}
}

func (t *Transport) notify(evs ...*events.Event) {
	if len(evs) == 0 {
		return
	}
	t.subMu.RLock()
	subs := make([]subscriber, len(t.subs))
	copy(subs, t.subs)
	t.subMu.RUnlock()

	for _, ev := range evs {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}

// Connect opens the realtime control channel. Any existing connection is
// torn down first. A failed handshake returns *ConnectionError.
func (t *Transport) Connect(ctx context.Context, params ConnectParams) error {
	url, err := params.DialURL()
	if err != nil {
		return &ConnectionError{Err: err}
	}

	if err := t.Disconnect(); err != nil {
		logger.Debug("OpenAI Realtime: closing previous connection", "error", err)
	}

	t.notify(t.emitter.ConnectionStateChanged(events.ConnectionConnecting, nil))

	conn, err := dialRealtime(ctx, url, params.headers(), t.dialBackoff)
	if err != nil {
		t.notify(t.emitter.ConnectionStateChanged(events.ConnectionFailed, err))
		return err
	}

	if params.Session != nil {
		update := SessionUpdateEvent{
			ClientEvent: ClientEvent{EventID: t.nextEventID(), Type: "session.update"},
			Session:     *params.Session,
		}
		if err := conn.Send(update); err != nil {
			_ = conn.Close()
			cerr := &ConnectionError{Err: fmt.Errorf("failed to send session update: %w", err)}
			t.notify(t.emitter.ConnectionStateChanged(events.ConnectionFailed, cerr))
			return cerr
		}
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	t.mu.Lock()
	t.conn = conn
	t.cancel = cancel
	t.done = done
	t.provider = params.provider()
	t.ready = true
	t.resetStateLocked()
	connected := t.emitter.ConnectionStateChanged(events.ConnectionConnected, nil)
	t.mu.Unlock()

	go t.readLoop(conn, done)
	go t.gateLoop(loopCtx)
	conn.StartHeartbeat(t.heartbeat)

	logger.Info("OpenAI Realtime: transport connected", "provider", string(params.provider()))
	t.notify(connected)

	if params.Greet {
		if err := t.RequestNextTurn(ctx); err != nil {
			logger.Warn("OpenAI Realtime: initial turn request failed", "error", err)
		}
	}
	return nil
}

// Disconnect releases the connection and all transcript state. It waits for
// the receive loop to exit, so no inbound events are delivered afterwards.
// It is safe to call when already disconnected.
func (t *Transport) Disconnect() error {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	err := t.release(conn, nil)
	if done != nil {
		<-done
	}
	return err
}

// Close is an alias for Disconnect.
func (t *Transport) Close() error {
	return t.Disconnect()
}

// release tears down conn if it is still the current connection.
func (t *Transport) release(conn *realtimeConn, cause error) error {
	t.mu.Lock()
	if t.conn != conn {
		t.mu.Unlock()
		return nil
	}
	cancel := t.cancel
	t.conn = nil
	t.cancel = nil
	t.done = nil
	t.ready = false

	var out []*events.Event
	if t.remoteMedia {
		out = append(out, t.emitter.RemoteMedia(false))
	}
	t.resetStateLocked()
	out = append(out, t.emitter.ConnectionStateChanged(events.ConnectionDisconnected, cause))
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := conn.Close()
	logger.Info("OpenAI Realtime: transport disconnected")
	t.notify(out...)
	return err
}

func (t *Transport) resetStateLocked() {
	t.agentSpeaking = false
	t.remoteUserSpeaking = false
	t.localMonitoring = false
	t.remoteMedia = false
	t.agentBuf.Reset()
	t.agentStartedAt = time.Time{}
	t.userItems = make(map[string]*userItem)
	t.lastFlush = make(map[transcript.Actor]flushRecord)
	t.localLevel = levelSample{}
	t.remoteLevel = levelSample{}
	t.gate.Reset()
}

func (t *Transport) readLoop(conn *realtimeConn, done chan struct{}) {
	defer close(done)
	err := conn.ReadLoop(t.handleMessage)
	if err != nil {
		logger.Warn("OpenAI Realtime: receive loop ended", "error", err)
	}
	_ = t.release(conn, err)
}

// gateLoop turns local gate transitions into user speech events.
func (t *Transport) gateLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-t.gate.Events():
			t.mu.Lock()
			if !t.ready || t.muted {
				t.mu.Unlock()
				continue
			}
			out := t.emitter.UserSpeech(ev.Speaking, events.SourceLocal)
			t.mu.Unlock()
			t.notify(out)
		}
	}
}

func (t *Transport) handleMessage(data []byte) {
	ev, err := ParseServerEvent(data)
	if err != nil {
		logger.Warn("OpenAI Realtime: failed to parse server event", "error", err)
		return
	}

	var pcm []byte
	t.mu.Lock()
	if !t.ready {
		t.mu.Unlock()
		return
	}
	out := []*events.Event{t.emitter.RealtimeEvent(ev.Header().Type, ev.Header().EventID, ev)}
	out, pcm = t.applyLocked(ev, out)
	t.mu.Unlock()

	if pcm != nil && t.remoteAudio != nil {
		t.remoteAudio(pcm)
	}
	t.notify(out...)
}

// applyLocked maps one inbound event onto transport state and returns the
// normalized events to publish, plus any decoded agent audio.
func (t *Transport) applyLocked(ev ServerEvent, out []*events.Event) ([]*events.Event, []byte) {
	now := t.now()

	switch e := ev.(type) {
	case *ErrorEvent:
		logger.Warn("OpenAI Realtime: server error",
			"type", e.Error.Type,
			"code", e.Error.Code,
			"message", e.Error.Message)
		out = append(out, t.emitter.RealtimeError(e.Error.Code, e.Error.Message))

	case *SessionCreatedEvent:
		logger.Info("OpenAI Realtime: session ready", "session_id", e.Session.ID, "model", e.Session.Model)

	case *SpeechStartedEvent:
		t.remoteUserSpeaking = true
		t.userItemLocked(e.ItemID, now)
		out = append(out, t.emitter.UserSpeech(true, events.SourceRemote))

	case *SpeechStoppedEvent:
		t.remoteUserSpeaking = false
		out = append(out, t.emitter.UserSpeech(false, events.SourceRemote))

	case *InputTranscriptionDeltaEvent:
		t.userItemLocked(e.ItemID, now).text.WriteString(e.Delta)

	case *InputTranscriptionCompletedEvent:
		t.remoteUserSpeaking = false
		out = t.flushUserItem(out, e.ItemID, e.Transcript, now)

	case *ResponseCreatedEvent:
		logger.Debug("OpenAI Realtime: response started", "response_id", e.Response.ID)

	case *TranscriptDeltaEvent:
		if t.agentBuf.Len() == 0 {
			t.agentStartedAt = now
			delete(t.lastFlush, transcript.ActorAgent)
		}
		t.agentBuf.WriteString(e.Delta)
		out = t.setAgentSpeaking(out, true)

	case *TranscriptDoneEvent:
		out = t.flushAgent(out, e.FinalText(), now)
		out = t.finishAgentTurn(out, e.ResponseID)

	case *AudioDeltaEvent:
		pcm, err := base64.StdEncoding.DecodeString(e.Delta)
		if err != nil {
			logger.Warn("OpenAI Realtime: invalid audio delta", "error", err)
			return out, nil
		}
		t.remoteLevel = levelSample{value: audio.PCM16RMS(pcm), at: now}
		if !t.remoteMedia {
			t.remoteMedia = true
			out = append(out, t.emitter.RemoteMedia(true))
		}
		out = t.setAgentSpeaking(out, true)
		return out, pcm

	case *AudioDoneEvent:
		// Playback end is signalled by the transcript and response done events.

	case *ResponseDoneEvent:
		out = t.flushAgent(out, e.Transcript, now)
		out = t.finishAgentTurn(out, e.Response.ID)

	case *OutputAudioBufferEvent:
		if e.Started {
			out = t.setAgentSpeaking(out, true)
		} else {
			out = t.flushAgent(out, "", now)
			out = t.finishAgentTurn(out, e.ResponseID)
		}

	case *UnknownEvent:
		logger.Debug("OpenAI Realtime: unhandled event", "type", e.Type)

	default:
		logger.Debug("OpenAI Realtime: unmapped event", "type", ev.Header().Type)
	}
	return out, nil
}

func (t *Transport) setAgentSpeaking(out []*events.Event, speaking bool) []*events.Event {
	if t.agentSpeaking == speaking {
		return out
	}
	t.agentSpeaking = speaking
	return append(out, t.emitter.AgentSpeech(speaking))
}

func (t *Transport) finishAgentTurn(out []*events.Event, responseID string) []*events.Event {
	out = t.setAgentSpeaking(out, false)
	return append(out, t.emitter.AgentTurnDone(responseID))
}

func (t *Transport) userItemLocked(itemID string, now time.Time) *userItem {
	it, ok := t.userItems[itemID]
	if ok {
		return it
	}
	// Items whose transcription never completes (transcription disabled or
	// failed) would otherwise accumulate for the life of the call.
	if len(t.userItems) >= maxPendingUserItems {
		var oldest string
		var oldestAt time.Time
		for id, p := range t.userItems {
			if oldestAt.IsZero() || p.startedAt.Before(oldestAt) {
				oldest, oldestAt = id, p.startedAt
			}
		}
		delete(t.userItems, oldest)
	}
	it = &userItem{startedAt: now}
	t.userItems[itemID] = it
	return it
}

// flushUserItem emits the customer segment for a completed input item. The
// completed transcript wins; accumulated deltas only stand in when it is
// empty.
func (t *Transport) flushUserItem(out []*events.Event, itemID, final string, now time.Time) []*events.Event {
	text := strings.TrimSpace(final)
	ts := now
	if it, ok := t.userItems[itemID]; ok {
		delete(t.userItems, itemID)
		if text == "" {
			text = strings.TrimSpace(it.text.String())
		}
		ts = it.startedAt
	}
	return t.appendSegment(out, transcript.ActorCustomer, text, ts, now)
}

// flushAgent turns the agent's buffered text (or final when the buffer is
// empty) into a transcript segment.
func (t *Transport) flushAgent(out []*events.Event, final string, now time.Time) []*events.Event {
	text := strings.TrimSpace(t.agentBuf.String())
	if text == "" {
		text = strings.TrimSpace(final)
	}
	ts := t.agentStartedAt
	if ts.IsZero() {
		ts = now
	}
	t.agentBuf.Reset()
	t.agentStartedAt = time.Time{}
	return t.appendSegment(out, transcript.ActorAgent, text, ts, now)
}

func (t *Transport) appendSegment(out []*events.Event, actor transcript.Actor, text string, ts, now time.Time) []*events.Event {
	if text == "" {
		return out
	}
	if last, ok := t.lastFlush[actor]; ok && last.text == text && now.Sub(last.at) < flushDedupeWindow {
		return out
	}
	t.lastFlush[actor] = flushRecord{text: text, at: now}

	seg, err := transcript.NewSegment(actor, text, ts)
	if err != nil {
		return out
	}
	return append(out, t.emitter.TranscriptSegment(seg))
}

// SendInstruction injects moderator guidance as a system message, wrapped in
// the guidance delimiters unless already wrapped.
func (t *Transport) SendInstruction(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	conn := t.readyConn()
	if conn == nil {
		return ErrNotReady
	}
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	msg := ConversationItemCreateEvent{
		ClientEvent: ClientEvent{EventID: t.nextEventID(), Type: "conversation.item.create"},
		Item: ConversationItem{
			Type: "message",
			Role: "system",
			Content: []ConversationContent{
				{Type: "input_text", Text: guidance.Wrap(trimmed)},
			},
		},
	}
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("failed to send instruction: %w", err)
	}
	logger.Debug("OpenAI Realtime: instruction sent", "chars", len(trimmed))
	return nil
}

// RequestNextTurn asks the agent to respond. It does nothing when the
// channel is not open.
func (t *Transport) RequestNextTurn(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	conn := t.conn
	ready := t.ready
	provider := t.provider
	t.mu.Unlock()
	if !ready || conn == nil {
		return nil
	}

	msg := ResponseCreateEvent{
		ClientEvent: ClientEvent{EventID: t.nextEventID(), Type: "response.create"},
	}
	if provider == ProviderAzure {
		msg.Response = &ResponseConfig{Modalities: []string{"text", "audio"}}
	}
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("failed to request response: %w", err)
	}
	return nil
}

// PushLocalAudio feeds one chunk of microphone PCM16 into the local speech
// gate and forwards it upstream unless muted.
func (t *Transport) PushLocalAudio(pcm []byte) error {
	energy := audio.PCM16RMS(pcm)

	t.mu.Lock()
	if t.muted {
		t.mu.Unlock()
		return nil
	}
	conn := t.conn
	ready := t.ready
	if ready {
		t.localMonitoring = true
		t.localLevel = levelSample{value: energy, at: t.now()}
	}
	t.mu.Unlock()

	if !ready || conn == nil {
		return ErrNotReady
	}
	t.gate.Update(energy)

	msg := InputAudioBufferAppendEvent{
		ClientEvent: ClientEvent{Type: "input_audio_buffer.append"},
		Audio:       base64.StdEncoding.EncodeToString(pcm),
	}
	if err := conn.Send(msg); err != nil {
		return fmt.Errorf("failed to append audio: %w", err)
	}
	return nil
}

// PushRemoteAudio records agent playback energy from an external player.
func (t *Transport) PushRemoteAudio(pcm []byte) {
	energy := audio.PCM16RMS(pcm)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteLevel = levelSample{value: energy, at: t.now()}
}

// Levels returns the current local (human) and remote (agent) energy.
func (t *Transport) Levels() (local, remote float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return t.localLevel.current(now), t.remoteLevel.current(now)
}

// SetMuted stops or resumes outbound audio and local speech detection.
func (t *Transport) SetMuted(muted bool) {
	t.mu.Lock()
	if t.muted == muted {
		t.mu.Unlock()
		return
	}
	t.muted = muted
	if muted {
		t.localLevel = levelSample{}
		t.gate.Reset()
	}
	out := t.emitter.MuteChanged(muted)
	t.mu.Unlock()

	logger.Info("OpenAI Realtime: mute changed", "muted", muted)
	t.notify(out)
}

// IsMuted reports whether outbound audio is muted.
func (t *Transport) IsMuted() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.muted
}

// IsChannelReady reports whether the control channel is open.
func (t *Transport) IsChannelReady() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ready
}

// IsAgentSpeaking reports whether the agent is producing a response.
func (t *Transport) IsAgentSpeaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.agentSpeaking
}

// IsUserSpeaking reports whether the human is talking. The local gate wins
// when microphone audio is flowing; otherwise server VAD is used.
func (t *Transport) IsUserSpeaking() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.muted {
		return false
	}
	if t.localMonitoring {
		return t.gate.Speaking()
	}
	return t.remoteUserSpeaking
}

func (t *Transport) readyConn() *realtimeConn {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.ready {
		return nil
	}
	return t.conn
}

func (t *Transport) nextEventID() string {
	return fmt.Sprintf("evt_%d", t.eventSeq.Add(1))
}
