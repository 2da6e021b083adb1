package store

import "time"

// SessionRecord is the stored health of one session.
//
// SessionRecord is shaped for JSON (the REST API and SSE stream) and is
// decoupled from the session package so the wire format can evolve on its
// own. It never carries a raw token.
type SessionRecord struct {
	// Name identifies the session, e.g. "account-1".
	Name string `json:"name"`

	// Token is the masked token.
	Token string `json:"token"`

	// Status is "connected", "disconnected" or "none_connection".
	Status string `json:"status"`

	// Retries is the consecutive ping failure count.
	Retries int `json:"retries"`

	// Escalated is true once the failure streak reached the threshold.
	Escalated bool `json:"escalated"`

	// AccountID is the account uid, empty when logged out.
	AccountID string `json:"account_id,omitempty"`

	// ClientID is the client identity sent with pings.
	ClientID string `json:"client_id,omitempty"`

	// LastPingAt is when the last ping was attempted. Zero before the first.
	LastPingAt *time.Time `json:"last_ping_at"`

	// UpdatedAt is when this record was produced.
	UpdatedAt time.Time `json:"updated_at"`

	// Error describes the most recent failure. nil when healthy.
	Error *string `json:"error"`
}

// Store defines storage and subscription for session records.
//
// Implementations must be safe for concurrent access.
type Store interface {
	// Update stores a record keyed by Name and notifies all subscribers.
	Update(record SessionRecord)

	// GetAll returns every stored record sorted by Name.
	GetAll() []SessionRecord

	// Subscribe returns a buffered channel of updates; slow consumers may
	// miss updates. Callers must Unsubscribe when done.
	Subscribe() <-chan SessionRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan SessionRecord)
}
