package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// History
	PageFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_page_fetch_duration_seconds",
			Help:    "Duration of message history page fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"scope"},
	)

	// Fanout
	MessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_published_total",
			Help: "Total number of events published to fanout topics",
		},
		[]string{"event"},
	)

	PublishErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_publish_errors_total",
			Help: "Total number of failed publishes, by broker",
		},
		[]string{"broker"},
	)

	DeliveriesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_deliveries_dropped_total",
			Help: "Total number of live pushes dropped because a subscriber queue was full",
		},
	)

	LaggingSubscribers = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_lagging_subscribers_total",
			Help: "Total number of subscribers marked as lagging",
		},
	)

	ActiveSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_active_subscribers",
			Help: "Current number of topic subscriptions",
		},
	)

	WebSocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_websocket_connections",
			Help: "Current number of open websocket connections",
		},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chat_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// Authorization
	AuthorizationDenials = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_authorization_denials_total",
			Help: "Total number of denied authorization checks, by reason",
		},
		[]string{"reason"},
	)

	// Sessions
	SessionRetries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_session_retries_total",
			Help: "Total number of retried transient failures in chat sessions",
		},
	)

	SessionStates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_session_state_transitions_total",
			Help: "Total number of chat session state transitions, by target state",
		},
		[]string{"state"},
	)

	// API
	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chat_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}
