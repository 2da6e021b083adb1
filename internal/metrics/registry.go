// Package metrics holds the Prometheus collectors for keepalive.
//
// Collectors are registered on the default registry at init, so the status
// server can expose them through promhttp without extra wiring.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Remote API metrics
var (
	// APIRequests counts HTTP round trips by route and status code.
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_api_requests_total",
			Help: "Total HTTP requests to the remote service by route and status code",
		},
		[]string{"route", "status_code"},
	)

	// APIDuration tracks round trip latency.
	APIDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "keepalive_api_request_duration_ms",
			Help:                            "HTTP request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"route"},
	)

	// APIErrors counts failed round trips by error class.
	APIErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_api_errors_total",
			Help: "Total failed HTTP requests by route and error type",
		},
		[]string{"route", "error_type"},
	)

	// APIAttempts counts caller attempts by outcome, including bodies
	// that failed validation.
	APIAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_api_attempts_total",
			Help: "Total API call attempts by route and outcome",
		},
		[]string{"route", "outcome"},
	)
)

// Session metrics
var (
	// Pings counts ping operations by outcome.
	Pings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_pings_total",
			Help: "Total ping operations by outcome",
		},
		[]string{"outcome"},
	)

	// PingEscalations counts failure streaks that crossed the threshold.
	PingEscalations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "keepalive_ping_escalations_total",
			Help: "Total consecutive-failure streaks that reached the failure threshold",
		},
	)

	// Logouts counts session logouts by reason.
	Logouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "keepalive_logouts_total",
			Help: "Total session logouts by reason",
		},
		[]string{"reason"},
	)

	// ActiveSessions tracks sessions currently running a ping loop.
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "keepalive_active_sessions",
			Help: "Number of sessions currently running a ping loop",
		},
	)

	// SessionStatus is 1 for the current status of each session, 0 otherwise.
	SessionStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keepalive_session_status",
			Help: "Connection status per session (1 for the current status)",
		},
		[]string{"session", "status"},
	)

	// ConsecutiveFailures tracks the retry counter of each session.
	ConsecutiveFailures = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "keepalive_consecutive_failures",
			Help: "Consecutive ping failures per session",
		},
		[]string{"session"},
	)
)
