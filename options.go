package keepalive

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"
)

// runnerConfig holds mutable state during Runner construction.
type runnerConfig struct {
	sessionURL       string
	pingURLs         []string
	pingInterval     time.Duration
	requestTimeout   time.Duration
	maxRetries       int
	backoffBase      time.Duration
	tokenDelay       time.Duration
	concurrency      int
	failureThreshold int
	protocolVersion  string
	referer          string
	headers          map[string]string
	maxPings         int
	statusPort       int
	logger           *slog.Logger
	statusCallbacks  []func(SessionStatus)
}

// Option is a function that configures a [Runner] during construction.
//
// Options return an error if validation fails; [New] surfaces the first
// such error.
type Option func(*runnerConfig) error

// WithSessionURL sets the session-info endpoint. Required.
func WithSessionURL(rawURL string) Option {
	return func(cfg *runnerConfig) error {
		if err := validateURL(rawURL); err != nil {
			return fmt.Errorf("session url: %w", err)
		}
		cfg.sessionURL = rawURL
		return nil
	}
}

// WithPingURLs sets the ordered ping endpoints. At least one is required.
//
// Every ping tries the endpoints in order until one reports success.
func WithPingURLs(urls ...string) Option {
	return func(cfg *runnerConfig) error {
		if len(urls) == 0 {
			return errors.New("at least one ping url is required")
		}
		for i, u := range urls {
			if err := validateURL(u); err != nil {
				return fmt.Errorf("ping url %d: %w", i, err)
			}
		}
		cfg.pingURLs = append([]string(nil), urls...)
		return nil
	}
}

// WithPingInterval sets the wait between pings. Defaults to 60 seconds.
//
// The interval also debounces pings: a ping attempted sooner than one
// interval after the previous one is skipped.
//
// Returns an error if the duration is zero or negative.
func WithPingInterval(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d <= 0 {
			return errors.New("ping interval must be positive")
		}
		cfg.pingInterval = d
		return nil
	}
}

// WithRequestTimeout sets the timeout of a single HTTP attempt.
// Defaults to 10 seconds.
func WithRequestTimeout(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d <= 0 {
			return errors.New("request timeout must be positive")
		}
		cfg.requestTimeout = d
		return nil
	}
}

// WithMaxRetries sets the number of attempts per API call. Defaults to 3.
func WithMaxRetries(n int) Option {
	return func(cfg *runnerConfig) error {
		if n <= 0 {
			return errors.New("max retries must be positive")
		}
		cfg.maxRetries = n
		return nil
	}
}

// WithBackoffBase sets the wait after the first failed attempt of an API
// call. Each further failure doubles it. Defaults to 1 second.
func WithBackoffBase(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d <= 0 {
			return errors.New("backoff base must be positive")
		}
		cfg.backoffBase = d
		return nil
	}
}

// WithTokenDelay sets the pause between tokens in sequential mode.
// Defaults to 10 seconds. Zero disables the pause.
func WithTokenDelay(d time.Duration) Option {
	return func(cfg *runnerConfig) error {
		if d < 0 {
			return errors.New("token delay cannot be negative")
		}
		cfg.tokenDelay = d
		return nil
	}
}

// WithConcurrency sets how many sessions run at once. One (the default)
// runs tokens sequentially; larger values run them through a bounded pool.
func WithConcurrency(n int) Option {
	return func(cfg *runnerConfig) error {
		if n <= 0 {
			return errors.New("concurrency must be positive")
		}
		cfg.concurrency = n
		return nil
	}
}

// WithFailureThreshold sets the consecutive-failure count at which a
// session's failure streak is escalated. Defaults to 2; zero disables
// escalation.
func WithFailureThreshold(n int) Option {
	return func(cfg *runnerConfig) error {
		if n < 0 {
			return errors.New("failure threshold cannot be negative")
		}
		cfg.failureThreshold = n
		return nil
	}
}

// WithProtocolVersion sets the version string sent in ping payloads.
func WithProtocolVersion(v string) Option {
	return func(cfg *runnerConfig) error {
		if v == "" {
			return errors.New("protocol version cannot be empty")
		}
		cfg.protocolVersion = v
		return nil
	}
}

// WithReferer overrides the Referer header sent with every request.
func WithReferer(referer string) Option {
	return func(cfg *runnerConfig) error {
		if referer == "" {
			return errors.New("referer cannot be empty")
		}
		cfg.referer = referer
		return nil
	}
}

// WithHeaders adds extra request headers. They may override the browser
// defaults but never Authorization or Content-Type.
//
// Can be called multiple times; later values win.
func WithHeaders(headers map[string]string) Option {
	return func(cfg *runnerConfig) error {
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			if k == "" {
				return errors.New("header name cannot be empty")
			}
			cfg.headers[k] = v
		}
		return nil
	}
}

// WithMaxPings ends each session's ping loop after n pings so the next
// token can start. Zero (the default) pings until cancelled or logged out.
func WithMaxPings(n int) Option {
	return func(cfg *runnerConfig) error {
		if n < 0 {
			return errors.New("max pings cannot be negative")
		}
		cfg.maxPings = n
		return nil
	}
}

// WithStatusPort enables the HTTP status server on port. Zero (the
// default) leaves it off.
//
// Returns an error if the port is outside 0-65535.
func WithStatusPort(port int) Option {
	return func(cfg *runnerConfig) error {
		if port < 0 || port > 65535 {
			return errors.New("status port must be between 0 and 65535")
		}
		cfg.statusPort = port
		return nil
	}
}

// WithLogger sets a custom [slog.Logger]. If not specified, [slog.Default]
// is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *runnerConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithStatusCallback registers a function called on every session health
// change: authentication, each ping outcome, logout.
//
// Multiple callbacks may be registered; they execute in registration order.
//
// IMPORTANT: Callbacks must be non-blocking. They run on the session's
// goroutine and delay its next ping. With concurrency above one they are
// called from several goroutines at once and must be safe for that.
//
// Panics within callbacks are recovered and logged. Nil callbacks are
// silently ignored.
func WithStatusCallback(cb func(SessionStatus)) Option {
	return func(cfg *runnerConfig) error {
		if cb != nil {
			cfg.statusCallbacks = append(cfg.statusCallbacks, cb)
		}
		return nil
	}
}

// validateURL requires an absolute http(s) URL.
func validateURL(rawURL string) error {
	if rawURL == "" {
		return errors.New("url cannot be empty")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("url must have a host")
	}
	return nil
}
