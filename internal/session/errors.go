package session

import "errors"

var (
	// ErrNoResult means the session fetch produced no result after retries.
	ErrNoResult = errors.New("session fetch returned no result")

	// ErrMissingUID means the account info had no unique identifier.
	ErrMissingUID = errors.New("account info has no uid")

	// ErrLoggedOut means the ping loop stopped because the session ended.
	ErrLoggedOut = errors.New("session logged out")

	// ErrSessionRejected means the service revoked the session (code 403).
	ErrSessionRejected = errors.New("session rejected by service")

	// ErrPingFailed marks a ping that did not succeed on any endpoint.
	ErrPingFailed = errors.New("ping failed")
)
