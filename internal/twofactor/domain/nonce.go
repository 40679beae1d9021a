package domain

import "time"

// VerificationNonce binds one login attempt to a user between the primary
// credential check (done by the surrounding application) and the second
// factor. Only the fingerprint of the opaque token is stored.
//
// A nonce is usable while ConsumedAt is nil and ExpiresAt is in the future,
// and admits at most one successful verification.
type VerificationNonce struct {
	TokenHash  string
	UserID     string
	Attempts   int
	ConsumedAt *time.Time
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Usable reports whether the nonce can still gate a verification at now.
func (n VerificationNonce) Usable(now time.Time) bool {
	return n.ConsumedAt == nil && now.Before(n.ExpiresAt)
}
