package domain

import "time"

// Session is a persisted refresh-token record. The raw token never hits the
// store; TokenHash is the SHA-256 of the opaque token string and is unique.
type Session struct {
	ID        string
	TokenHash string
	UserID    string
	ExpiresAt time.Time
	IsRevoked bool
	CreatedAt time.Time
}

// Valid reports whether the session is usable at the given instant:
// not revoked and not past its expiry.
func (s *Session) Valid(now time.Time) bool {
	return !s.IsRevoked && s.ExpiresAt.After(now)
}
