package keepalive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/keepalive/internal/metrics"
	"github.com/jpalmerr/keepalive/internal/poller"
	"github.com/jpalmerr/keepalive/internal/server"
	"github.com/jpalmerr/keepalive/internal/session"
	"github.com/jpalmerr/keepalive/internal/store"
)

const (
	defaultTokenDelay  = 10 * time.Second
	defaultConcurrency = 1
)

// ErrAlreadyRunning is returned by [Runner.Run] while another Run is active.
var ErrAlreadyRunning = errors.New("runner is already running")

// Runner keeps one session alive per token.
//
// Runner authenticates each token against the session endpoint and then
// pings the configured endpoints on a fixed interval, tracking connection
// health per session. It is created using [New] with functional options
// and driven with [Runner.Run].
//
// The typical lifecycle is:
//
//	r, err := keepalive.New(
//	    keepalive.WithSessionURL(sessionURL),
//	    keepalive.WithPingURLs(pingURL),
//	)
//	if err != nil {
//	    slog.Error("failed to create runner", "error", err)
//	    os.Exit(1)
//	}
//
//	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer cancel()
//
//	r.Run(ctx, tokens) // blocks until every session ended or ctx is cancelled
type Runner struct {
	cfg     runnerConfig
	logger  *slog.Logger
	store   *store.MemoryStore
	running atomic.Bool
}

// New creates a [Runner] with the given options.
//
// [WithSessionURL] and [WithPingURLs] are required. Other options have
// defaults:
//   - Ping interval: 60 seconds
//   - Request timeout: 10 seconds, 3 attempts, 1 second backoff base
//   - Token delay: 10 seconds, sequential mode
//   - Failure threshold: 2
//   - Status server: off
//
// Returns an error if a required option is missing or any option is invalid.
func New(opts ...Option) (*Runner, error) {
	cfg := runnerConfig{
		pingInterval:     session.DefaultPingInterval,
		requestTimeout:   poller.DefaultTimeout,
		maxRetries:       poller.DefaultMaxRetries,
		backoffBase:      poller.DefaultBackoffBase,
		tokenDelay:       defaultTokenDelay,
		concurrency:      defaultConcurrency,
		failureThreshold: session.DefaultFailureThreshold,
		protocolVersion:  session.DefaultProtocolVersion,
		referer:          poller.DefaultReferer,
	}

	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if cfg.sessionURL == "" {
		return nil, errors.New("session url is required")
	}
	if len(cfg.pingURLs) == 0 {
		return nil, errors.New("at least one ping url is required")
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Runner{
		cfg:    cfg,
		logger: logger,
		store:  store.NewMemoryStore(),
	}, nil
}

// Run keeps a session alive for every token and blocks until all sessions
// have ended or ctx is cancelled.
//
// With concurrency one, tokens run one after another with the configured
// token delay between them; a session ends when it is logged out, fails to
// authenticate, or reaches [WithMaxPings]. With higher concurrency, up to
// that many sessions run at once.
//
// A session that fails never stops the others. Run returns nil when the
// tokens are exhausted or ctx is cancelled, and an error only if the status
// server cannot start. The status server is shut down before Run returns.
func (r *Runner) Run(ctx context.Context, tokens []string) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	if len(tokens) == 0 {
		r.logger.Warn("no tokens to run")
		return nil
	}
	if ctx.Err() != nil {
		return nil
	}

	r.logger.Info("keepalive starting",
		"token_count", len(tokens),
		"concurrency", r.cfg.concurrency,
		"ping_interval", r.cfg.pingInterval.String(),
		"ping_urls", len(r.cfg.pingURLs),
	)

	if r.cfg.statusPort > 0 {
		// the status server lives only as long as this Run
		srvCtx, cancelSrv := context.WithCancel(ctx)
		srv := server.NewServer(r.store, r.cfg.statusPort, r.logger)
		if err := srv.Start(srvCtx); err != nil {
			cancelSrv()
			return fmt.Errorf("failed to start status server: %w", err)
		}
		defer func() {
			cancelSrv()
			<-srv.Done()
		}()
	}

	client := poller.NewClient(metrics.NewTransport)
	defer client.Close()
	caller := r.newCaller(client)

	if r.cfg.concurrency > 1 {
		r.runPool(ctx, caller, tokens)
	} else {
		r.runSequential(ctx, caller, tokens)
	}

	r.logger.Info("keepalive stopped")
	return nil
}

// Sessions returns the latest status of every session started so far,
// ordered by name.
func (r *Runner) Sessions() []SessionStatus {
	records := r.store.GetAll()
	out := make([]SessionStatus, len(records))
	for i, rec := range records {
		out[i] = fromRecord(rec)
	}
	return out
}

// runSequential runs sessions one at a time. The delay between tokens is
// skipped after the last one.
func (r *Runner) runSequential(ctx context.Context, caller session.APICaller, tokens []string) {
	for i, token := range tokens {
		r.runSession(ctx, caller, i, token)

		if ctx.Err() != nil {
			return
		}
		if i == len(tokens)-1 || r.cfg.tokenDelay == 0 {
			continue
		}

		r.logger.Debug("waiting before next token", "delay", r.cfg.tokenDelay.String())
		wait := time.NewTimer(r.cfg.tokenDelay)
		select {
		case <-ctx.Done():
			wait.Stop()
			return
		case <-wait.C:
		}
	}
}

// runPool runs up to concurrency sessions at once.
func (r *Runner) runPool(ctx context.Context, caller session.APICaller, tokens []string) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.concurrency)

	for i, token := range tokens {
		if gctx.Err() != nil {
			break
		}
		i, token := i, token
		g.Go(func() error {
			r.runSession(gctx, caller, i, token)
			return nil
		})
	}

	// sessions never fail the group
	_ = g.Wait()
}

// runSession establishes one session and logs why it ended.
// A panic inside the session is recovered so other sessions keep running.
func (r *Runner) runSession(ctx context.Context, caller session.APICaller, index int, token string) {
	name := fmt.Sprintf("account-%d", index+1)
	logger := r.logger.With("token", session.MaskToken(token))

	defer func() {
		if rec := recover(); rec != nil {
			correlationID := uuid.NewString()
			logger.Error("session panic",
				"session", name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", rec),
				"stack", string(debug.Stack()),
			)
		}
	}()

	s := session.New(name, token, r.sessionConfig(), caller,
		session.WithLogger(logger),
		session.WithObserver(r.observe),
	)

	err := s.Establish(ctx)
	switch {
	case err == nil:
		logger.Info("session finished", "session", name, "status", s.Status().String())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		logger.Debug("session stopped", "session", name)
	case errors.Is(err, session.ErrLoggedOut):
		logger.Info("session ended", "session", name, "reason", err.Error())
	default:
		logger.Warn("session could not be established", "session", name, "error", err)
	}
}

// observe stores a session snapshot, then fans it out to the callbacks.
func (r *Runner) observe(snap session.Snapshot) {
	// store update first (callbacks fire after data is persisted)
	r.store.Update(toRecord(snap))

	if len(r.cfg.statusCallbacks) == 0 {
		return
	}
	status := fromSnapshot(snap)
	for _, cb := range r.cfg.statusCallbacks {
		invokeCallbackSafe(cb, status, r.logger)
	}
}

func (r *Runner) newCaller(client *poller.Client) *poller.Caller {
	opts := []poller.CallerOption{
		poller.WithTimeout(r.cfg.requestTimeout),
		poller.WithMaxRetries(r.cfg.maxRetries),
		poller.WithBackoffBase(r.cfg.backoffBase),
		poller.WithReferer(r.cfg.referer),
		poller.WithLogger(r.logger),
	}
	if len(r.cfg.headers) > 0 {
		opts = append(opts, poller.WithHeaders(r.cfg.headers))
	}
	return poller.NewCaller(client, opts...)
}

func (r *Runner) sessionConfig() session.Config {
	return session.Config{
		SessionURL:       r.cfg.sessionURL,
		PingURLs:         append([]string(nil), r.cfg.pingURLs...),
		PingInterval:     r.cfg.pingInterval,
		ProtocolVersion:  r.cfg.protocolVersion,
		FailureThreshold: r.cfg.failureThreshold,
		MaxPings:         r.cfg.maxPings,
	}
}

// toRecord converts a session snapshot to its stored form.
func toRecord(snap session.Snapshot) store.SessionRecord {
	rec := store.SessionRecord{
		Name:      snap.Name,
		Token:     snap.Token,
		Status:    snap.Status.String(),
		Retries:   snap.Retries,
		Escalated: snap.Escalated,
		AccountID: snap.AccountID,
		ClientID:  snap.ClientID,
		UpdatedAt: snap.UpdatedAt,
	}
	if !snap.LastPingAt.IsZero() {
		t := snap.LastPingAt
		rec.LastPingAt = &t
	}
	if snap.LastError != "" {
		e := snap.LastError
		rec.Error = &e
	}
	return rec
}

// fromRecord converts a stored record to the public type.
func fromRecord(rec store.SessionRecord) SessionStatus {
	status := SessionStatus{
		Name:      rec.Name,
		Token:     rec.Token,
		Status:    Status(rec.Status),
		Retries:   rec.Retries,
		Escalated: rec.Escalated,
		AccountID: rec.AccountID,
		ClientID:  rec.ClientID,
		UpdatedAt: rec.UpdatedAt,
	}
	if rec.LastPingAt != nil {
		status.LastPingAt = *rec.LastPingAt
	}
	if rec.Error != nil {
		status.LastError = *rec.Error
	}
	return status
}

// invokeCallbackSafe calls a status callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(SessionStatus), status SessionStatus, logger *slog.Logger) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("status callback panicked",
				"correlation_id", uuid.NewString(),
				"panic", rec,
				"session", status.Name,
			)
		}
	}()
	cb(status)
}
