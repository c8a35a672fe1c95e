package ledger

import "time"

// Session identifies the single authenticated account. It is ephemeral:
// never persisted, replaced on re-authentication, destroyed on logout,
// closure or idle expiry. SortAscending is pure view-state for the
// movements rendering and never reorders the stored log.
type Session struct {
	ID            string    `json:"id"`
	AccountID     string    `json:"account_id"`
	SortAscending bool      `json:"sort_ascending"`
	ExpiresAt     time.Time `json:"expires_at"`
}

func (s *Session) clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	return &out
}
