package metrics

import (
	"net/url"
)

// connectionStatuses lists every status label so stale ones can be zeroed.
var connectionStatuses = []string{"connected", "disconnected", "none_connection"}

// RecordAPIAttempt records one caller attempt against endpoint.
// outcome: "ok", "transport", "http_status" or "invalid"
func RecordAPIAttempt(endpoint, outcome string) {
	APIAttempts.WithLabelValues(routeFromURL(endpoint), outcome).Inc()
}

// RecordSessionHealth publishes a session's status and failure counter.
func RecordSessionHealth(session, status string, retries int) {
	for _, s := range connectionStatuses {
		v := 0.0
		if s == status {
			v = 1
		}
		SessionStatus.WithLabelValues(session, s).Set(v)
	}
	ConsecutiveFailures.WithLabelValues(session).Set(float64(retries))
}

// routeFromURL reduces a URL to host and path so query strings do not
// inflate label cardinality.
func routeFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "unknown"
	}
	return u.Host + u.Path
}
