package poller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/jpalmerr/keepalive/internal/metrics"
)

const (
	// DefaultMaxRetries is the number of attempts made before giving up.
	DefaultMaxRetries = 3

	// DefaultBackoffBase is the wait after the first failed attempt. The
	// wait doubles after every further failure.
	DefaultBackoffBase = time.Second

	// DefaultTimeout bounds a single attempt.
	DefaultTimeout = 10 * time.Second

	// DefaultReferer is sent with every request unless overridden.
	DefaultReferer = "https://app.nodepay.ai"

	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/90.0.4430.212 Safari/537.36"
)

// Result is a validated response from the remote service.
//
// A Result always carries a non-negative Code. Whether that code means
// success is up to the caller: 0 is success for pings, 403 means the
// session was revoked.
type Result struct {
	// Code is the service-level result code from the response body.
	Code int

	// Data is the raw "data" member of the response, if present.
	Data json.RawMessage

	// Body is the full response body.
	Body []byte
}

// ValidateResponse parses body and checks the minimal success contract:
// a JSON object with an integer code that is zero or greater.
//
// Returns an error wrapping [ErrInvalidResponse] otherwise.
func ValidateResponse(body []byte) (*Result, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrInvalidResponse)
	}

	var raw struct {
		Code *int            `json:"code"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if raw.Code == nil {
		return nil, fmt.Errorf("%w: missing code", ErrInvalidResponse)
	}
	if *raw.Code < 0 {
		return nil, fmt.Errorf("%w: negative code %d", ErrInvalidResponse, *raw.Code)
	}

	return &Result{Code: *raw.Code, Data: raw.Data, Body: body}, nil
}

// Caller posts JSON payloads with bearer-token auth and retries failed
// attempts with exponential backoff.
//
// Caller is safe for concurrent use; it holds no per-call state.
type Caller struct {
	client      *Client
	headers     map[string]string
	timeout     time.Duration
	maxRetries  int
	backoffBase time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
}

// CallerOption configures a [Caller].
type CallerOption func(*Caller)

// WithMaxRetries sets the number of attempts per call. Values below one
// are ignored.
func WithMaxRetries(n int) CallerOption {
	return func(c *Caller) {
		if n > 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoffBase sets the wait after the first failed attempt.
func WithBackoffBase(d time.Duration) CallerOption {
	return func(c *Caller) {
		if d > 0 {
			c.backoffBase = d
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) CallerOption {
	return func(c *Caller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithReferer overrides the Referer header.
func WithReferer(referer string) CallerOption {
	return func(c *Caller) {
		c.headers["Referer"] = referer
	}
}

// WithHeaders adds extra headers to every request. They may override the
// browser-emulation defaults but never Authorization or Content-Type.
func WithHeaders(headers map[string]string) CallerOption {
	return func(c *Caller) {
		for k, v := range headers {
			c.headers[k] = v
		}
	}
}

// WithLogger sets the logger for attempt failures.
func WithLogger(logger *slog.Logger) CallerOption {
	return func(c *Caller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSleep replaces the backoff wait. The function must return a non-nil
// error when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) CallerOption {
	return func(c *Caller) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewCaller creates a [Caller] that sends requests through client.
func NewCaller(client *Client, opts ...CallerOption) *Caller {
	c := &Caller{
		client: client,
		headers: map[string]string{
			"User-Agent":      defaultUserAgent,
			"Accept":          "application/json",
			"Accept-Language": "en-US,en;q=0.5",
			"Referer":         DefaultReferer,
		},
		timeout:     DefaultTimeout,
		maxRetries:  DefaultMaxRetries,
		backoffBase: DefaultBackoffBase,
		logger:      slog.Default(),
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call posts payload to endpoint and returns the first valid [Result].
//
// Every failed attempt (transport error, non-2xx status, invalid body) is
// followed by a wait of base*2^attempt. After maxRetries failed attempts
// Call returns nil; no error escapes. Call also returns nil promptly once
// ctx is done.
func (c *Caller) Call(ctx context.Context, endpoint string, payload any, token string) *Result {
	body, err := json.Marshal(payload)
	if err != nil {
		c.logger.Error("failed to encode payload", "endpoint", endpoint, "error", err)
		return nil
	}

	headers := c.requestHeaders(token)
	schedule := c.newBackOff()

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		result, err := c.attempt(ctx, endpoint, body, headers)
		metrics.RecordAPIAttempt(endpoint, attemptOutcome(err))
		if err == nil {
			return result
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := schedule.NextBackOff()
		c.logger.Debug("api call attempt failed",
			"endpoint", endpoint,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"backoff", wait.String(),
			"error", err,
		)
		if err := c.sleep(ctx, wait); err != nil {
			return nil
		}
	}

	c.logger.Warn("api call failed after retries",
		"endpoint", endpoint,
		"attempts", c.maxRetries,
	)
	return nil
}

// attempt performs one request and classifies its failure.
func (c *Caller) attempt(ctx context.Context, endpoint string, body []byte, headers map[string]string) (*Result, error) {
	resp := c.client.Post(ctx, endpoint, body, headers, c.timeout)
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, resp.Error)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: %d", ErrHTTPStatus, resp.StatusCode)
	}
	return ValidateResponse(resp.Body)
}

// attemptOutcome maps an attempt error to a metrics label.
func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTransport):
		return "transport"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	default:
		return "invalid"
	}
}

// requestHeaders returns the headers for one call. Auth and content type
// are applied last so configured headers cannot replace them.
func (c *Caller) requestHeaders(token string) map[string]string {
	headers := make(map[string]string, len(c.headers)+2)
	for k, v := range c.headers {
		headers[k] = v
	}
	headers["Authorization"] = "Bearer " + token
	headers["Content-Type"] = "application/json"
	return headers
}

// newBackOff returns a jitter-free doubling schedule starting at backoffBase.
func (c *Caller) newBackOff() *backoff.ExponentialBackOff {
	shift := c.maxRetries
	if shift > 20 {
		shift = 20
	}
	b := &backoff.ExponentialBackOff{
		InitialInterval:     c.backoffBase,
		RandomizationFactor: 0,
		Multiplier:          2,
		MaxInterval:         c.backoffBase << uint(shift),
		MaxElapsedTime:      0,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
