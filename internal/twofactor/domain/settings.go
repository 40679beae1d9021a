package domain

import "time"

// TwoFactorSettings is the per-user second-factor state. The shared secret is
// stored sealed; the row exists only while enrollment is confirmed or was
// previously confirmed and later disabled.
//
// Invariant: SecretSealed is non-empty iff Enabled. Disabling clears the
// secret and every recovery code.
type TwoFactorSettings struct {
	UserID         string
	Enabled        bool
	SecretSealed   []byte // sealed base32 TOTP secret; nil when disabled
	LastVerifiedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// EnrollmentOffer is the response to beginning enrollment. Nothing in it has
// been persisted; the user proves possession via ConfirmEnrollment before any
// state is written.
type EnrollmentOffer struct {
	Secret          string   // base32, shown to the user once
	ProvisioningURI string   // otpauth:// URI for authenticator apps
	QRCodePNG       []byte   // PNG rendering of the provisioning URI
	RecoveryCodes   []string // single-use fallback codes, shown once
}
