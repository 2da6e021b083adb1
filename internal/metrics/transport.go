package metrics

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

// instrumentedTransport wraps an http.RoundTripper to collect metrics on
// calls to the remote service.
type instrumentedTransport struct {
	base http.RoundTripper
}

// NewTransport creates a transport wrapper that records request counts,
// latency and errors for every round trip.
func NewTransport(base http.RoundTripper) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &instrumentedTransport{base: base}
}

// RoundTrip implements http.RoundTripper.
func (t *instrumentedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	duration := time.Since(start)

	route := req.URL.Host + req.URL.Path

	statusCode := 0
	if resp != nil {
		statusCode = resp.StatusCode
	}

	APIRequests.WithLabelValues(route, strconv.Itoa(statusCode)).Inc()
	APIDuration.WithLabelValues(route).Observe(float64(duration.Milliseconds()))

	if err != nil || statusCode >= 400 {
		APIErrors.WithLabelValues(route, classifyError(statusCode, err)).Inc()
	}

	return resp, err
}

// classifyError categorizes failed round trips for metrics
func classifyError(statusCode int, err error) string {
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return "timeout"
		}
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline"):
			return "timeout"
		case strings.Contains(errStr, "canceled"):
			return "canceled"
		case strings.Contains(errStr, "connection"):
			return "connection"
		case strings.Contains(errStr, "tls") || strings.Contains(errStr, "TLS"):
			return "tls"
		default:
			return "network"
		}
	}

	switch {
	case statusCode == 401:
		return "unauthorized"
	case statusCode == 403:
		return "forbidden"
	case statusCode == 404:
		return "not_found"
	case statusCode == 429:
		return "rate_limited"
	case statusCode >= 500:
		return "server_error"
	case statusCode >= 400:
		return "client_error"
	default:
		return "unknown"
	}
}
