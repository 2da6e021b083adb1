// Package session implements the per-token session and ping state machine.
//
// A [Session] owns all state for one account: its account info, client
// identity, connection status and consecutive-failure counter. Nothing is
// shared between sessions, so any number of them may run concurrently.
//
// The lifecycle is:
//
//	s := session.New("account-1", token, cfg, caller)
//	err := s.Establish(ctx) // blocks while the ping loop runs
//
// [Session.Establish] fetches the account, generates a fresh client
// identity and runs the ping loop until the context is cancelled, the
// session is logged out, or the configured ping limit is reached.
package session
