package prometheus

import (
	"strconv"
	"sync"

	"github.com/AI-Engineer-Skool/ai-voice-agent-bootstrap/events"
)

// MetricsListener records session events as Prometheus metrics.
// Register it with an EventBus using SubscribeAll.
type MetricsListener struct {
	metrics *Metrics

	mu        sync.Mutex
	connected map[string]bool
}

// NewMetricsListener creates a listener that records into m.
func NewMetricsListener(m *Metrics) *MetricsListener {
	return &MetricsListener{
		metrics:   m,
		connected: make(map[string]bool),
	}
}

// Handle processes an event and records relevant metrics.
func (l *MetricsListener) Handle(event *events.Event) {
	m := l.metrics
	switch data := event.Data.(type) {
	case events.ConnectionStateData:
		m.connectionsTotal.WithLabelValues(string(data.State)).Inc()
		l.trackConnection(event.SessionID, data.State)
	case events.RealtimeEventData:
		m.realtimeEventsTotal.WithLabelValues(data.Kind).Inc()
	case events.RealtimeErrorData:
		code := data.Code
		if code == "" {
			code = "unknown"
		}
		m.realtimeErrorsTotal.WithLabelValues(code).Inc()
	case events.SpeakingChangedData:
		m.speakingChangesTotal.WithLabelValues(data.State).Inc()
	case events.TranscriptSegmentData:
		m.transcriptSegments.WithLabelValues(string(data.Segment.Actor)).Inc()
	case events.GuidancePolledData:
		m.guidanceRequestsTotal.WithLabelValues(status(data.Err)).Inc()
		m.guidanceRequestSeconds.Observe(data.Duration.Seconds())
	case events.GuidanceReceivedData:
		m.guidanceReceivedTotal.Inc()
	case events.GuidanceDeliveredData:
		m.guidanceDeliveredTotal.Inc()
		m.deliveryAttempts.Observe(float64(data.Attempts))
	case events.TurnRequestedData:
		m.turnRequestsTotal.WithLabelValues(strconv.FormatBool(data.WithGuidance)).Inc()
	case events.TurnRetryScheduledData:
		m.turnRetriesTotal.WithLabelValues(data.Reason).Inc()
	default:
		// Ignore events that don't have metrics
	}
}

// trackConnection keeps sessions_active in step with connect and disconnect
// pairs, so repeated terminal events do not drive the gauge negative.
func (l *MetricsListener) trackConnection(sessionID string, state events.ConnectionState) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch state {
	case events.ConnectionConnected:
		if !l.connected[sessionID] {
			l.connected[sessionID] = true
			l.metrics.sessionsActive.Inc()
		}
	case events.ConnectionDisconnected, events.ConnectionFailed:
		if l.connected[sessionID] {
			delete(l.connected, sessionID)
			l.metrics.sessionsActive.Dec()
		}
	case events.ConnectionConnecting:
	}
}

// Listener returns an events.Listener function that can be registered with an EventBus.
func (l *MetricsListener) Listener() events.Listener {
	return l.Handle
}
