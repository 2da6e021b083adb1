// Package keepalive keeps authenticated client sessions alive against a
// remote service by pinging it on a fixed interval.
//
// Each bearer token becomes a session. The session is established by
// fetching account info from the session endpoint; a fresh client identity
// is generated every time. The session then pings a list of endpoints in
// order until one succeeds, once per interval, and tracks its connection
// health:
//
//   - connected: the last ping succeeded
//   - disconnected: the last ping failed; the failure counter grows
//   - none_connection: no session, before authentication or after logout
//
// A ping answered with code 403 means the service revoked the session and
// logs it out. Every API call retries failed attempts with exponential
// backoff (1s, 2s, 4s, ...) and yields no result once retries run out.
//
// # Quick Start
//
//	r, err := keepalive.New(
//	    keepalive.WithSessionURL("https://api.example.com/api/auth/session"),
//	    keepalive.WithPingURLs("https://ping.example.com/api/network/ping"),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	return r.Run(ctx, tokens)
//
// # Configuration
//
// Runner uses the functional options pattern:
//
//	r, err := keepalive.New(
//	    keepalive.WithSessionURL(sessionURL),
//	    keepalive.WithPingURLs(primary, fallback),
//	    keepalive.WithPingInterval(30*time.Second),
//	    keepalive.WithConcurrency(4),
//	    keepalive.WithStatusPort(9090),
//	    keepalive.WithStatusCallback(func(s keepalive.SessionStatus) {
//	        if s.Escalated {
//	            slog.Error("session keeps failing", "session", s.Name)
//	        }
//	    }),
//	)
//
// The config package loads the same settings from YAML.
//
// # Architecture
//
//   - internal/poller: pooled HTTP client and the retrying API caller
//   - internal/session: per-token session state machine and ping loop
//   - internal/store: latest session records with pub/sub
//   - internal/server: optional status server (JSON, SSE, Prometheus)
//   - internal/metrics: Prometheus collectors and instrumented transport
//
// The internal packages are not part of the public API and may change
// without notice.
package keepalive
