package twofasdk

import "time"

// BeginEnrollmentRequest starts a new enrollment for the acting user.
type BeginEnrollmentRequest struct {
	// AccountName is the label shown in the authenticator app, usually the
	// user's email address.
	AccountName string `json:"account_name"`
}

// EnrollmentOfferResponse is everything the user needs to set up their
// authenticator. None of it is stored server-side until ConfirmEnrollment.
type EnrollmentOfferResponse struct {
	Secret          string   `json:"secret"`
	ProvisioningURI string   `json:"provisioning_uri"`
	QRCodePNG       []byte   `json:"qr_code_png"`
	RecoveryCodes   []string `json:"recovery_codes"`
}

// ConfirmEnrollmentRequest proves possession of the offered secret.
type ConfirmEnrollmentRequest struct {
	Secret        string   `json:"secret"`
	RecoveryCodes []string `json:"recovery_codes"`
	Code          string   `json:"code"`
}

// RegenerateRecoveryCodesRequest replaces the recovery set after verifying a
// current code.
type RegenerateRecoveryCodesRequest struct {
	Code string `json:"code"`
}

// RecoveryCodesResponse carries a freshly generated recovery set. Shown once.
type RecoveryCodesResponse struct {
	RecoveryCodes []string `json:"recovery_codes"`
}

// ChallengeResponse is an issued verification nonce.
type ChallengeResponse struct {
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

// VerifyRequest submits a TOTP code against a challenge nonce.
type VerifyRequest struct {
	Nonce string `json:"nonce"`
	Code  string `json:"code"`

	// TrustDevice requests a device-trust grant alongside the verification.
	TrustDevice bool   `json:"trust_device,omitempty"`
	DeviceName  string `json:"device_name,omitempty"`
}

// VerifyResponse reports a successful verification. TrustToken is set only
// when the request asked for device trust; it is also delivered as a cookie.
type VerifyResponse struct {
	UserID         string     `json:"user_id"`
	TrustToken     string     `json:"trust_token,omitempty"`
	TrustExpiresAt *time.Time `json:"trust_expires_at,omitempty"`
}

// VerifyRecoveryRequest submits a recovery code against a challenge nonce.
type VerifyRecoveryRequest struct {
	Nonce        string `json:"nonce"`
	RecoveryCode string `json:"recovery_code"`

	TrustDevice bool   `json:"trust_device,omitempty"`
	DeviceName  string `json:"device_name,omitempty"`
}

// VerifyRecoveryResponse reports a successful recovery verification.
// RemainingCodes lets the UI nag the user when they are running low.
type VerifyRecoveryResponse struct {
	UserID         string     `json:"user_id"`
	RemainingCodes int        `json:"remaining_codes"`
	TrustToken     string     `json:"trust_token,omitempty"`
	TrustExpiresAt *time.Time `json:"trust_expires_at,omitempty"`
}

// DeviceCheckRequest presents a device-trust token. When Token is empty the
// service falls back to the trust cookie on the request.
type DeviceCheckRequest struct {
	Token string `json:"token,omitempty"`
}

// DeviceCheckResponse reports whether the second factor may be skipped.
// Rotated indicates the token was replaced; the new one rides the Set-Cookie
// header and, for non-browser callers, TrustToken.
type DeviceCheckResponse struct {
	Valid      bool       `json:"valid"`
	UserID     string     `json:"user_id,omitempty"`
	Device     *DeviceInfo `json:"device,omitempty"`
	Rotated    bool       `json:"rotated,omitempty"`
	TrustToken string     `json:"trust_token,omitempty"`
}

// DeviceInfo is the caller-visible view of a trusted device. Token material
// never appears here.
type DeviceInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	FirstIP    string    `json:"first_ip"`
	LastIP     string    `json:"last_ip"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// DevicesResponse lists the acting user's live trusted devices.
type DevicesResponse struct {
	Devices []DeviceInfo `json:"devices"`
}

// HealthResponse is returned by the liveness and readiness endpoints.
type HealthResponse struct {
	Status  string        `json:"status"`
	Version string        `json:"version,omitempty"`
	Uptime  string        `json:"uptime,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports per-dependency readiness.
type HealthChecks struct {
	Database string `json:"database"`
}
