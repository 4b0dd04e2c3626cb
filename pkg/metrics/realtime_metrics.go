package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Realtime gateway metrics
var (
	WebSocketConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_websocket_connections_active",
		Help: "Current number of registered WebSocket connections",
	})

	WebSocketConnectionsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_websocket_connections_rejected_total",
		Help: "Total number of rejected WebSocket connections",
	}, []string{"reason"}) // "auth", "capacity"

	WebSocketEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "realtime_websocket_events_total",
		Help: "Total number of inbound realtime events processed",
	}, []string{"event", "status"})

	TopicSubscriptionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "realtime_topic_subscriptions_active",
		Help: "Current number of active Redis topic subscriptions",
	})
)

// Presence metrics
var (
	PresenceUpdatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "presence_updates_total",
		Help: "Total number of presence status writes",
	}, []string{"status"})

	PresenceHeartbeatsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "presence_heartbeats_total",
		Help: "Total number of presence heartbeats, explicit and swept",
	})
)

// Call signaling metrics
var (
	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calls_active",
		Help: "Current number of in-memory call sessions",
	})

	CallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calls_total",
		Help: "Total number of calls by terminal outcome",
	}, []string{"outcome"}) // "ended", "declined", "missed"

	CallSignalsRelayedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_signals_relayed_total",
		Help: "Total number of WebRTC payloads relayed",
	}, []string{"signal"}) // "offer", "answer", "ice_candidate"

	CallErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "call_errors_total",
		Help: "Total number of rejected call actions",
	}, []string{"code"})
)

// Group mutation metrics
var (
	GroupMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "group_mutations_total",
		Help: "Total number of group mutations by operation and status",
	}, []string{"operation", "status"})

	GroupVersionConflictsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "group_version_conflicts_total",
		Help: "Total number of conditional group writes lost to a concurrent writer",
	})
)

// HTTP server metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "http_requests_in_flight",
		Help: "Current number of HTTP requests being served",
	})
)
