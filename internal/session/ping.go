package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jpalmerr/keepalive/internal/metrics"
	"github.com/jpalmerr/keepalive/internal/poller"
)

// PingPayload is the body of a ping request.
type PingPayload struct {
	ID        string `json:"id"`
	BrowserID string `json:"browser_id"`
	Timestamp int64  `json:"timestamp"`
	Version   string `json:"version"`
}

// pingLoop pings, then waits one interval, until ctx is done, the session
// is logged out, or MaxPings is reached.
func (s *Session) pingLoop(ctx context.Context) error {
	metrics.ActiveSessions.Inc()
	defer metrics.ActiveSessions.Dec()

	s.logger.Debug("ping loop started", "interval", s.cfg.PingInterval.String())

	for {
		s.Ping(ctx)

		if err := ctx.Err(); err != nil {
			s.logger.Info("ping loop cancelled")
			return err
		}
		if !s.Active() {
			return s.loggedOutError()
		}
		if s.cfg.MaxPings > 0 && s.pingCount() >= s.cfg.MaxPings {
			s.logger.Info("ping limit reached", "pings", s.cfg.MaxPings)
			return nil
		}

		wait := time.NewTimer(s.cfg.PingInterval)
		select {
		case <-ctx.Done():
			wait.Stop()
			s.logger.Info("ping loop cancelled")
			return ctx.Err()
		case <-wait.C:
		}
	}
}

// Ping performs one ping across the configured endpoints.
//
// Ping is debounced: if a ping was attempted less than one interval ago it
// does nothing and returns false. The first endpoint answering code 0 marks
// the session connected. Other codes run failure handling and move on to
// the next endpoint; endpoints with no result are skipped. If no endpoint
// succeeds, failure handling runs once more without a response.
//
// A cancelled ctx leaves the connection status untouched.
func (s *Session) Ping(ctx context.Context) bool {
	now := s.now()

	s.mu.Lock()
	if !s.lastPingAt.IsZero() && now.Sub(s.lastPingAt) < s.cfg.PingInterval {
		s.mu.Unlock()
		return false
	}
	s.lastPingAt = now
	s.pings++
	uid := s.account.UID()
	clientID := s.clientID
	s.mu.Unlock()

	for _, endpoint := range s.cfg.PingURLs {
		payload := PingPayload{
			ID:        uid,
			BrowserID: clientID,
			Timestamp: s.now().Unix(),
			Version:   s.cfg.ProtocolVersion,
		}
		s.logger.Debug("sending ping", "endpoint", endpoint, "payload", payload)

		result := s.caller.Call(ctx, endpoint, payload, s.token)
		if ctx.Err() != nil {
			return true
		}
		if result == nil {
			s.logger.Warn("ping endpoint returned no result", "endpoint", endpoint)
			continue
		}

		if result.Code == 0 {
			s.markConnected()
			metrics.Pings.WithLabelValues("success").Inc()
			s.logger.Info("ping successful", "endpoint", endpoint)
			return true
		}

		metrics.Pings.WithLabelValues("failure").Inc()
		s.logger.Warn("ping failed",
			"endpoint", endpoint,
			"code", result.Code,
			"response", string(result.Body),
		)
		if loggedOut := s.handlePingFail(result); loggedOut {
			return true
		}
	}

	metrics.Pings.WithLabelValues("exhausted").Inc()
	s.logger.Warn("no ping endpoint succeeded", "endpoints", len(s.cfg.PingURLs))
	s.handlePingFail(nil)
	return true
}

// markConnected records a successful ping.
func (s *Session) markConnected() {
	s.mu.Lock()
	s.retries = 0
	s.escalated = false
	s.status = StatusConnected
	s.lastErr = nil
	s.mu.Unlock()

	s.publish()
}

// handlePingFail counts a failure. A 403 response logs the session out
// and reports true; anything else marks it disconnected.
func (s *Session) handlePingFail(result *poller.Result) bool {
	s.mu.Lock()
	s.retries++

	if result != nil && result.Code == CodeSessionRevoked {
		s.lastErr = ErrSessionRejected
		s.mu.Unlock()
		s.logger.Warn("session revoked by service", "code", result.Code)
		s.logout(reasonRevoked)
		return true
	}

	if result != nil {
		s.lastErr = fmt.Errorf("%w: code %d", ErrPingFailed, result.Code)
	} else {
		s.lastErr = fmt.Errorf("%w: no endpoint succeeded", ErrPingFailed)
	}
	s.status = StatusDisconnected

	// escalate once per streak
	escalate := s.cfg.FailureThreshold > 0 && !s.escalated && s.retries >= s.cfg.FailureThreshold
	if escalate {
		s.escalated = true
	}
	retries := s.retries
	s.mu.Unlock()

	if escalate {
		metrics.PingEscalations.Inc()
		s.logger.Error("consecutive ping failures reached threshold",
			"retries", retries,
			"threshold", s.cfg.FailureThreshold,
		)
	}

	s.publish()
	return false
}

// pingCount returns the number of pings attempted.
func (s *Session) pingCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pings
}

// loggedOutError explains why the ping loop stopped on logout.
func (s *Session) loggedOutError() error {
	s.mu.RLock()
	cause := s.lastErr
	s.mu.RUnlock()

	if errors.Is(cause, ErrSessionRejected) {
		return fmt.Errorf("%w: %w", ErrLoggedOut, cause)
	}
	return ErrLoggedOut
}
