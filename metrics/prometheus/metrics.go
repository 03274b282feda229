// Package prometheus provides Prometheus metrics for voice sessions and the
// guidance service.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "voicemod"

// Label values shared by several metrics.
const (
	statusSuccess = "success"
	statusError   = "error"
)

// Metrics holds every voicemod collector. Create one per registry.
type Metrics struct {
	namespace string

	sessionsActive         prometheus.Gauge
	connectionsTotal       *prometheus.CounterVec
	realtimeEventsTotal    *prometheus.CounterVec
	realtimeErrorsTotal    *prometheus.CounterVec
	speakingChangesTotal   *prometheus.CounterVec
	transcriptSegments     *prometheus.CounterVec
	guidanceRequestsTotal  *prometheus.CounterVec
	guidanceRequestSeconds prometheus.Histogram
	guidanceReceivedTotal  prometheus.Counter
	guidanceDeliveredTotal prometheus.Counter
	deliveryAttempts       prometheus.Histogram
	turnRequestsTotal      *prometheus.CounterVec
	turnRetriesTotal       *prometheus.CounterVec

	sessionsMintedTotal *prometheus.CounterVec
	guidanceServedTotal *prometheus.CounterVec
	engineSeconds       *prometheus.HistogramVec
}

// NewMetrics creates the collectors under namespace. An empty namespace
// uses DefaultNamespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	return &Metrics{
		namespace: namespace,

		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of realtime sessions currently connected",
		}),
		connectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_connections_total",
			Help:      "Realtime connection state transitions",
		}, []string{"state"}),
		realtimeEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_events_total",
			Help:      "Inbound realtime protocol events by kind",
		}, []string{"kind"}),
		realtimeErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_errors_total",
			Help:      "Error events reported by the realtime service",
		}, []string{"code"}),
		speakingChangesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speaking_state_changes_total",
			Help:      "Speaking state transitions by new state",
		}, []string{"state"}),
		transcriptSegments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_segments_total",
			Help:      "Completed transcript segments by actor",
		}, []string{"actor"}),
		guidanceRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guidance_requests_total",
			Help:      "Guidance polls by outcome",
		}, []string{"status"}),
		guidanceRequestSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guidance_request_duration_seconds",
			Help:      "Duration of guidance polls in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		guidanceReceivedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guidance_received_total",
			Help:      "Guidance responses with text accepted as pending",
		}),
		guidanceDeliveredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guidance_delivered_total",
			Help:      "Guidance instructions injected into the conversation",
		}),
		deliveryAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "guidance_delivery_attempts",
			Help:      "Turn-action attempts needed to deliver guidance",
			Buckets:   []float64{1, 2, 3, 5, 8, 13},
		}),
		turnRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_requests_total",
			Help:      "Agent turn requests",
		}, []string{"with_guidance"}),
		turnRetriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turn_retries_total",
			Help:      "Postponed turn actions by reason",
		}, []string{"reason"}),
		sessionsMintedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_minted_total",
			Help:      "Realtime sessions minted by the API",
		}, []string{"provider", "status"}),
		guidanceServedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guidance_served_total",
			Help:      "Guidance responses served by the API by source",
		}, []string{"source"}),
		engineSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_analysis_duration_seconds",
			Help:      "Duration of moderator engine analysis in seconds",
			Buckets:   []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"generator", "status"}),
	}
}

// Collectors returns every collector for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.sessionsActive,
		m.connectionsTotal,
		m.realtimeEventsTotal,
		m.realtimeErrorsTotal,
		m.speakingChangesTotal,
		m.transcriptSegments,
		m.guidanceRequestsTotal,
		m.guidanceRequestSeconds,
		m.guidanceReceivedTotal,
		m.guidanceDeliveredTotal,
		m.deliveryAttempts,
		m.turnRequestsTotal,
		m.turnRetriesTotal,
		m.sessionsMintedTotal,
		m.guidanceServedTotal,
		m.engineSeconds,
	}
}

// RecordSessionMinted records a session mint attempt. The Record methods
// are no-ops on a nil Metrics.
func (m *Metrics) RecordSessionMinted(provider string, err error) {
	if m == nil {
		return
	}
	m.sessionsMintedTotal.WithLabelValues(provider, status(err)).Inc()
}

// RecordGuidanceServed records a guidance response served from source
// ("engine", "cache").
func (m *Metrics) RecordGuidanceServed(source string) {
	if m == nil {
		return
	}
	m.guidanceServedTotal.WithLabelValues(source).Inc()
}

// RecordEngineAnalysis records one engine run.
func (m *Metrics) RecordEngineAnalysis(generator string, durationSeconds float64, err error) {
	if m == nil {
		return
	}
	m.engineSeconds.WithLabelValues(generator, status(err)).Observe(durationSeconds)
}

func status(err error) string {
	if err != nil {
		return statusError
	}
	return statusSuccess
}
