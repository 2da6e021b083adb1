// Package server provides the optional HTTP status server.
//
// It serves the session records held by a [store.Store]:
//
//   - REST API: JSON snapshot at "/api/sessions"
//   - Server-Sent Events: live updates at "/api/sse"
//   - Prometheus metrics at "/metrics"
//   - Liveness at "/healthz"
//
// The server shuts down gracefully on context cancellation, with a
// 5-second timeout for in-flight requests.
package server
