package session

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Status is the connection health of a session.
type Status string

const (
	// StatusConnected means the last ping succeeded.
	StatusConnected Status = "connected"

	// StatusDisconnected means the last ping failed.
	StatusDisconnected Status = "disconnected"

	// StatusNone means there is no session. It is the initial status.
	StatusNone Status = "none_connection"
)

// String returns the string representation of the status.
func (s Status) String() string {
	return string(s)
}

// AccountInfo is the "data" object returned by the session fetch.
type AccountInfo map[string]any

// UID returns the account's unique identifier, or "" if absent.
func (a AccountInfo) UID() string {
	switch v := a["uid"].(type) {
	case string:
		return strings.TrimSpace(v)
	case json.Number:
		return v.String()
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// clone returns a shallow copy.
func (a AccountInfo) clone() AccountInfo {
	if a == nil {
		return nil
	}
	cp := make(AccountInfo, len(a))
	for k, v := range a {
		cp[k] = v
	}
	return cp
}

// Snapshot is an immutable view of one session's health.
type Snapshot struct {
	// Name identifies the session in logs and the status API.
	Name string

	// Token is the masked form of the session's token.
	Token string

	// Status is the current connection status.
	Status Status

	// Retries is the number of consecutive ping failures.
	Retries int

	// Escalated is true once Retries has reached the failure threshold.
	Escalated bool

	// AccountID is the uid of the active account, empty when logged out.
	AccountID string

	// ClientID is the client identity sent with pings, empty when logged out.
	ClientID string

	// LastPingAt is when the last ping was attempted.
	LastPingAt time.Time

	// UpdatedAt is when this snapshot was taken.
	UpdatedAt time.Time

	// LastError describes the most recent failure, if any.
	LastError string
}
