package domain

import "time"

// Revocation reasons recorded on trusted devices.
const (
	RevokeReasonRotated     = "rotated"
	RevokeReasonUserRequest = "user_request"
	RevokeReasonDisabled    = "2fa_disabled"
	RevokeReasonReEnrolled  = "re_enrolled"
)

// TrustedDevice is one "skip the second factor on this browser" grant. The
// raw bearer token is returned to the caller exactly once; only its hash is
// stored. Rotation revokes the old row and creates a new one in the same
// transaction, so at no point are two tokens live for the same grant.
type TrustedDevice struct {
	ID            string
	UserID        string
	TokenHash     string
	Fingerprint   string
	Name          string
	FirstIP       string
	LastIP        string
	LastUserAgent string
	CreatedAt     time.Time
	LastSeenAt    time.Time
	ExpiresAt     time.Time
	Revoked       bool
	RevokeReason  *string
}

// Live reports whether the grant can still satisfy a device-trust check at
// now. Expiry is evaluated lazily against stored timestamps; there is no
// background invalidation to wait for.
func (d TrustedDevice) Live(now time.Time) bool {
	return !d.Revoked && now.Before(d.ExpiresAt)
}

// DeviceCheck is the outcome of presenting a trust token.
type DeviceCheck struct {
	Valid         bool
	NeedsRotation bool
	Device        *TrustedDevice
}
