package keepalive

import (
	"time"

	"github.com/jpalmerr/keepalive/internal/session"
)

// Status is the connection health of a session.
//
// Status is a string type holding one of [StatusConnected],
// [StatusDisconnected] or [StatusNone], so it logs and serializes
// readably.
type Status string

const (
	// StatusConnected indicates the most recent ping succeeded.
	StatusConnected Status = "connected"

	// StatusDisconnected indicates the most recent ping failed but the
	// session is still held.
	StatusDisconnected Status = "disconnected"

	// StatusNone indicates there is no session: before authentication, after
	// a missing uid, or after the service revoked it.
	StatusNone Status = "none_connection"
)

// String returns the string representation of the status.
// This implements the fmt.Stringer interface.
func (s Status) String() string {
	return string(s)
}

// SessionStatus describes the health of one session at a point in time.
//
// SessionStatus is passed to callbacks registered with
// [WithStatusCallback]. It never contains the raw token.
type SessionStatus struct {
	// Name identifies the session, e.g. "account-1". Names follow the
	// order of the token list.
	Name string

	// Token is the masked token ("abcd…wxyz").
	Token string

	// Status is the connection health.
	Status Status

	// Retries is the number of consecutive ping failures.
	Retries int

	// Escalated is true once Retries reached the failure threshold. It is
	// cleared by the next successful ping.
	Escalated bool

	// AccountID is the uid of the authenticated account. Empty when
	// Status is [StatusNone].
	AccountID string

	// ClientID is the client identity sent with every ping. A new one is
	// generated each time the session is established.
	ClientID string

	// LastPingAt is when the last ping was attempted. Zero before the
	// first ping.
	LastPingAt time.Time

	// UpdatedAt is when this status was recorded.
	UpdatedAt time.Time

	// LastError describes the most recent failure. Empty when healthy.
	LastError string
}

// fromSnapshot converts an internal session snapshot to the public type.
func fromSnapshot(snap session.Snapshot) SessionStatus {
	return SessionStatus{
		Name:       snap.Name,
		Token:      snap.Token,
		Status:     Status(snap.Status),
		Retries:    snap.Retries,
		Escalated:  snap.Escalated,
		AccountID:  snap.AccountID,
		ClientID:   snap.ClientID,
		LastPingAt: snap.LastPingAt,
		UpdatedAt:  snap.UpdatedAt,
		LastError:  snap.LastError,
	}
}
