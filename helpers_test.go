package keepalive

import "github.com/jpalmerr/keepalive/internal/session"

// snapshotFrom builds the internal snapshot matching a public status.
func snapshotFrom(s SessionStatus) session.Snapshot {
	return session.Snapshot{
		Name:       s.Name,
		Token:      s.Token,
		Status:     session.Status(s.Status),
		Retries:    s.Retries,
		Escalated:  s.Escalated,
		AccountID:  s.AccountID,
		ClientID:   s.ClientID,
		LastPingAt: s.LastPingAt,
		UpdatedAt:  s.UpdatedAt,
		LastError:  s.LastError,
	}
}
