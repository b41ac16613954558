package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records authentication attempts by result (success|failure|locked).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labmgr_auth_attempts_total",
			Help: "Total number of authentication attempts",
		},
		[]string{"result"},
	)

	// ActiveSessions tracks active sessions (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labmgr_active_sessions",
			Help: "Number of active sessions",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "labmgr_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RegistrationTransitions counts workflow operations by action (submit|approve|reject) and outcome.
	RegistrationTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labmgr_registration_transitions_total",
			Help: "Registration workflow operations by action and outcome",
		},
		[]string{"action", "result"},
	)

	// Notifications counts delivery attempts by template kind and result (sent|failed|dropped|panic).
	Notifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labmgr_notifications_total",
			Help: "Notification jobs by kind and delivery result",
		},
		[]string{"kind", "result"},
	)

	// NotificationQueueDepth reports jobs waiting for a dispatcher worker.
	NotificationQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "labmgr_notification_queue_depth",
			Help: "Notification jobs waiting for delivery",
		},
	)

	// HTTPPanics counts handler panics recovered by the HTTP stack, by matched route.
	HTTPPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "labmgr_http_panics_total",
			Help: "Recovered handler panics by route",
		},
		[]string{"route"},
	)
)
