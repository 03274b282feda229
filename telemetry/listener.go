package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/events"
)

// Span names produced by the listener.
const (
	SpanSession      = "voicemod.session"
	SpanGuidancePoll = "voicemod.guidance.poll"
)

type sessionSpan struct {
	span trace.Span
	ctx  context.Context //nolint:containedctx // needed to parent child spans
}

// EventListener converts session events into OTel spans. A session span is
// opened when the connection comes up and closed when it goes down; polls
// become child spans and turn decisions become span events.
type EventListener struct {
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[string]*sessionSpan
}

// NewEventListener creates a listener that records spans with tracer.
func NewEventListener(tracer trace.Tracer) *EventListener {
	return &EventListener{
		tracer:   tracer,
		sessions: make(map[string]*sessionSpan),
	}
}

// OnEvent handles one event. It can be passed to EventBus.SubscribeAll.
func (l *EventListener) OnEvent(evt *events.Event) {
	switch data := evt.Data.(type) {
	case events.ConnectionStateData:
		l.connectionChanged(evt, data)
	case events.GuidancePolledData:
		l.guidancePolled(evt, data)
	case events.GuidanceDeliveredData:
		l.addEvent(evt.SessionID, "guidance.delivered",
			attribute.String("guidance.id", data.GuidanceID),
			attribute.Int64("turn.token", int64(data.Token)),
			attribute.Int("attempts", data.Attempts))
	case events.TurnRequestedData:
		l.addEvent(evt.SessionID, "turn.requested",
			attribute.Int64("turn.token", int64(data.Token)),
			attribute.Bool("with_guidance", data.WithGuidance))
	case events.TurnRetryScheduledData:
		l.addEvent(evt.SessionID, "turn.retry",
			attribute.Int64("turn.token", int64(data.Token)),
			attribute.String("reason", data.Reason))
	case events.MuteChangedData:
		l.addEvent(evt.SessionID, "audio.mute", attribute.Bool("muted", data.Muted))
	case events.RealtimeErrorData:
		l.addEvent(evt.SessionID, "realtime.error",
			attribute.String("code", data.Code),
			attribute.String("message", data.Message))
	default:
		// Remaining events are too frequent to be useful as spans.
	}
}

func (l *EventListener) connectionChanged(evt *events.Event, data events.ConnectionStateData) {
	switch data.State {
	case events.ConnectionConnected:
		_, span := l.tracer.Start(context.Background(), SpanSession,
			trace.WithTimestamp(evt.Timestamp),
			trace.WithAttributes(attribute.String("session.id", evt.SessionID)),
		)
		ctx := trace.ContextWithSpan(context.Background(), span)
		l.mu.Lock()
		prev := l.sessions[evt.SessionID]
		l.sessions[evt.SessionID] = &sessionSpan{span: span, ctx: ctx}
		l.mu.Unlock()
		if prev != nil {
			prev.span.End()
		}
	case events.ConnectionDisconnected, events.ConnectionFailed:
		l.mu.Lock()
		ss := l.sessions[evt.SessionID]
		delete(l.sessions, evt.SessionID)
		l.mu.Unlock()
		if ss == nil {
			return
		}
		if data.Err != nil {
			ss.span.RecordError(data.Err)
			ss.span.SetStatus(codes.Error, data.Err.Error())
		}
		ss.span.End(trace.WithTimestamp(evt.Timestamp))
	case events.ConnectionConnecting:
	}
}

func (l *EventListener) guidancePolled(evt *events.Event, data events.GuidancePolledData) {
	start := evt.Timestamp.Add(-data.Duration)
	_, span := l.tracer.Start(l.sessionCtx(evt.SessionID), SpanGuidancePoll,
		trace.WithTimestamp(start),
		trace.WithAttributes(
			attribute.String("session.id", evt.SessionID),
			attribute.Int("transcript.segments", data.Segments),
		),
	)
	if data.Err != nil {
		span.RecordError(data.Err)
		span.SetStatus(codes.Error, data.Err.Error())
	}
	span.End(trace.WithTimestamp(evt.Timestamp))
}

func (l *EventListener) sessionCtx(sessionID string) context.Context {
	l.mu.Lock()
	defer l.mu.Unlock()
	if ss, ok := l.sessions[sessionID]; ok {
		return ss.ctx
	}
	return context.Background()
}

func (l *EventListener) addEvent(sessionID, name string, attrs ...attribute.KeyValue) {
	l.mu.Lock()
	ss, ok := l.sessions[sessionID]
	l.mu.Unlock()
	if !ok {
		return
	}
	ss.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// Close ends any session spans still open.
func (l *EventListener) Close() {
	l.mu.Lock()
	open := l.sessions
	l.sessions = make(map[string]*sessionSpan)
	l.mu.Unlock()
	for _, ss := range open {
		ss.span.End()
	}
}
