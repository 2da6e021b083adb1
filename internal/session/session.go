package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/keepalive/internal/metrics"
	"github.com/jpalmerr/keepalive/internal/poller"
)

const (
	// DefaultPingInterval is the wait between pings.
	DefaultPingInterval = 60 * time.Second

	// DefaultProtocolVersion is sent in every ping payload.
	DefaultProtocolVersion = "2.2.7"

	// DefaultFailureThreshold is the consecutive-failure count that
	// escalates a disconnected session.
	DefaultFailureThreshold = 2

	// CodeSessionRevoked is the ping code that forces a logout.
	CodeSessionRevoked = 403
)

// logout reasons, used as metric labels
const (
	reasonManual     = "manual"
	reasonRevoked    = "revoked"
	reasonMissingUID = "missing_uid"
)

// APICaller performs one logical API call. A nil result means the call
// produced nothing usable after its own retries.
//
// Results should already satisfy [poller.ValidateResponse], as those of
// [poller.Caller] do. Establish still checks the session response body so
// a caller that skips validation cannot establish a session.
type APICaller interface {
	Call(ctx context.Context, endpoint string, payload any, token string) *poller.Result
}

// Config holds the endpoints and timing shared by sessions.
type Config struct {
	// SessionURL is the session-info endpoint.
	SessionURL string

	// PingURLs are tried in order on every ping until one succeeds.
	PingURLs []string

	// PingInterval is the wait between pings and the debounce window.
	PingInterval time.Duration

	// ProtocolVersion is sent in every ping payload.
	ProtocolVersion string

	// FailureThreshold escalates a failure streak once reached.
	// Zero disables escalation.
	FailureThreshold int

	// MaxPings ends the ping loop after that many pings. Zero means the
	// loop runs until cancelled or logged out.
	MaxPings int
}

// Option configures a [Session].
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Session) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator replaces the client identity generator.
func WithIDGenerator(newID func() string) Option {
	return func(s *Session) {
		if newID != nil {
			s.newID = newID
		}
	}
}

// WithObserver registers a function called with a fresh [Snapshot] after
// every health change. It runs on the session goroutine and must not block.
func WithObserver(observe func(Snapshot)) Option {
	return func(s *Session) {
		s.observe = observe
	}
}

// Session is the state machine for one token.
//
// All state is owned by the session. The ping loop is the only writer in
// normal operation; Snapshot and the accessors may be called from any
// goroutine.
type Session struct {
	name    string
	token   string
	cfg     Config
	caller  APICaller
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
	observe func(Snapshot)

	mu         sync.RWMutex
	status     Status
	retries    int
	escalated  bool
	account    AccountInfo
	clientID   string
	lastPingAt time.Time
	pings      int
	lastErr    error
}

// New creates a [Session] for token. name identifies it in logs and must
// not contain the token itself.
func New(name, token string, cfg Config, caller APICaller, opts ...Option) *Session {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = DefaultProtocolVersion
	}

	s := &Session{
		name:   name,
		token:  token,
		cfg:    cfg,
		caller: caller,
		logger: slog.Default(),
		now:    time.Now,
		newID:  newClientID,
		status: StatusNone,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", name)
	return s
}

// Name returns the session name.
func (s *Session) Name() string {
	return s.name
}

// Establish fetches the account for the session's token and, on success,
// runs the ping loop until it ends.
//
// The returned error explains why the session ended; it is informational
// and never fatal. ErrNoResult, ErrMissingUID and errors wrapping
// poller.ErrInvalidResponse mean the ping loop never started.
func (s *Session) Establish(ctx context.Context) error {
	clientID := s.newID()

	result := s.caller.Call(ctx, s.cfg.SessionURL, struct{}{}, s.token)
	if result == nil {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.logger.Warn("session fetch returned no result", "endpoint", s.cfg.SessionURL)
		return ErrNoResult
	}

	// guard for APICaller implementations that do not validate
	if _, err := poller.ValidateResponse(result.Body); err != nil {
		s.logger.Error("session fetch returned an invalid response",
			"endpoint", s.cfg.SessionURL,
			"error", err,
		)
		return fmt.Errorf("establish session: %w", err)
	}

	account := decodeAccountInfo(result.Data)
	uid := account.UID()
	if uid == "" {
		s.logger.Warn("session response has no account uid", "code", result.Code)
		s.logout(reasonMissingUID)
		return ErrMissingUID
	}

	s.mu.Lock()
	s.account = account
	s.clientID = clientID
	s.retries = 0
	s.escalated = false
	s.lastErr = nil
	// a new session pings immediately and gets its own ping budget
	s.lastPingAt = time.Time{}
	s.pings = 0
	s.mu.Unlock()

	s.logger.Info("authentication successful", "uid", uid, "client_id", clientID)
	s.publish()

	return s.pingLoop(ctx)
}

// Logout clears the session: status becomes none_connection and the
// account info, client identity and failure counter are reset.
// Logout is idempotent.
func (s *Session) Logout() {
	s.logout(reasonManual)
}

func (s *Session) logout(reason string) {
	s.mu.Lock()
	s.logoutLocked()
	s.mu.Unlock()

	metrics.Logouts.WithLabelValues(reason).Inc()
	s.logger.Info("logged out and cleared session info", "reason", reason)
	s.publish()
}

// logoutLocked resets session state. Caller must hold s.mu.
func (s *Session) logoutLocked() {
	s.status = StatusNone
	s.account = nil
	s.clientID = ""
	s.retries = 0
	s.escalated = false
}

// Status returns the current connection status.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Retries returns the consecutive-failure counter.
func (s *Session) Retries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retries
}

// AccountInfo returns a copy of the active account info, or nil.
func (s *Session) AccountInfo() AccountInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account.clone()
}

// ClientID returns the client identity of the active session, or "".
func (s *Session) ClientID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clientID
}

// Active reports whether the session holds account info.
func (s *Session) Active() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.account) > 0
}

// Snapshot returns the current health of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Name:       s.name,
		Token:      MaskToken(s.token),
		Status:     s.status,
		Retries:    s.retries,
		Escalated:  s.escalated,
		AccountID:  s.account.UID(),
		ClientID:   s.clientID,
		LastPingAt: s.lastPingAt,
		UpdatedAt:  s.now(),
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// publish reports the current health to metrics and the observer.
func (s *Session) publish() {
	snap := s.Snapshot()
	metrics.RecordSessionHealth(s.name, snap.Status.String(), snap.Retries)
	if s.observe != nil {
		s.observe(snap)
	}
}

// decodeAccountInfo decodes the data member of the session response.
// Anything other than a JSON object yields empty account info.
func decodeAccountInfo(data json.RawMessage) AccountInfo {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var account AccountInfo
	if err := dec.Decode(&account); err != nil {
		return nil
	}
	return account
}
