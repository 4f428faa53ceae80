package models

import "time"

// SessionTTL is the absolute lifetime of a session from issuance.
const SessionTTL = 7 * 24 * time.Hour

// Session maps an opaque bearer token to an account. A row whose ExpiresAt
// is in the past must be treated as absent; the auth gate purges such rows
// when it encounters them.
type Session struct {
	Token     string    `json:"token"`
	AccountID int64     `json:"account_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at the given instant.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
