package domain

import "time"

// Credentials are exchanged for an AccessToken once per run.
type Credentials struct {
	Username          string
	Password          string
	Referer           string
	ExpirationMinutes int
}

// AccessToken is shared read-only by all workers of a run.
type AccessToken struct {
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// Expired reports whether the token is past its expiry. A zero ExpiresAt never expires.
func (t AccessToken) Expired(now time.Time) bool {
	if t.ExpiresAt.IsZero() {
		return false
	}
	return !now.Before(t.ExpiresAt)
}

// Session is the per-run state every worker reads.
type Session struct {
	Token    AccessToken
	PortalID string
}
