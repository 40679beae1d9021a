package service

import "errors"

// The closed set of protocol outcomes. Handlers map these to wire codes;
// anything outside the set is infrastructure trouble and is reported as the
// store being unavailable, the only kind a caller may retry.
var (
	ErrNotEnrolled         = errors.New("two-factor not enrolled")
	ErrAlreadyEnrolled     = errors.New("two-factor already enrolled")
	ErrSessionExpired      = errors.New("verification session expired")
	ErrInvalidCode         = errors.New("invalid code")
	ErrInvalidRecoveryCode = errors.New("invalid recovery code")
	ErrCodeAlreadyUsed     = errors.New("code already used")
	ErrTooManyAttempts     = errors.New("too many attempts")
	ErrDeviceNotFound      = errors.New("trusted device not found")
	ErrDeviceRevoked       = errors.New("trusted device revoked")
	ErrDeviceExpired       = errors.New("trusted device expired")
)
