package store

import (
	"context"
	"errors"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. Sub-repositories keep concerns tidy; the protocol's
// atomicity requirements all bottom out here, either in single constrained
// statements or in WithTx blocks.
type Store interface {
	Settings() Settings
	RecoveryCodes() RecoveryCodes
	Nonces() Nonces
	ClaimedPeriods() ClaimedPeriods
	TrustedDevices() TrustedDevices

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction, committing on nil and
	// rolling back on error. This is the recommended entry point for the
	// multi-step operations (verification, rotation, disable).
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Settings interface {
	// GetSettings returns the settings row for a user.
	GetSettings(ctx context.Context, userID string) (domain.TwoFactorSettings, error)

	// UpsertEnabled writes an enabled settings row with the sealed secret,
	// replacing any prior row for the user.
	UpsertEnabled(ctx context.Context, userID string, secretSealed []byte, verifiedAt time.Time) error

	// DisableSettings clears the secret and flips enabled off. Succeeds
	// even when no row exists.
	DisableSettings(ctx context.Context, userID string) error

	// TouchLastVerified updates last_verified_at after a successful
	// verification.
	TouchLastVerified(ctx context.Context, userID string, verifiedAt time.Time) error
}

type RecoveryCodes interface {
	// CreateRecoveryCode stores one recovery code hash for a user.
	CreateRecoveryCode(ctx context.Context, userID string, codeHash string) error

	// ConsumeRecoveryCode atomically removes the code identified by hash.
	// Returns ErrNotFound when the code does not exist, which is also the
	// outcome when a concurrent request consumed it first.
	ConsumeRecoveryCode(ctx context.Context, userID string, codeHash string) error

	// DeleteAllRecoveryCodes removes every recovery code for a user.
	DeleteAllRecoveryCodes(ctx context.Context, userID string) error

	// CountRecoveryCodes returns how many codes remain.
	CountRecoveryCodes(ctx context.Context, userID string) (int, error)
}

type Nonces interface {
	// CreateNonce stores a new verification nonce (hash only).
	CreateNonce(ctx context.Context, n domain.VerificationNonce) error

	// GetNonce fetches a nonce by token hash regardless of state; callers
	// decide how unusable states map to the error taxonomy.
	GetNonce(ctx context.Context, tokenHash string) (domain.VerificationNonce, error)

	// ConsumeNonce marks the nonce consumed iff it is not already.
	// Returns ErrNotFound when the nonce is missing or was consumed by a
	// concurrent request; this conditional update is the race gate.
	ConsumeNonce(ctx context.Context, tokenHash string, at time.Time) error

	// IncrementNonceAttempts bumps the failed-attempt counter and returns
	// the new value.
	IncrementNonceAttempts(ctx context.Context, tokenHash string) (int, error)

	// DeleteExpiredNonces is housekeeping.
	DeleteExpiredNonces(ctx context.Context, before time.Time) error
}

type ClaimedPeriods interface {
	// ClaimPeriod inserts (userID, period) into the anti-replay ledger.
	// Returns ErrAlreadyExists when the period was already claimed; the
	// uniqueness constraint in the schema is what closes the race between
	// concurrent submissions of the same code.
	ClaimPeriod(ctx context.Context, userID string, period int64, at time.Time) error

	// DeleteClaimedPeriodsBefore drops ledger rows old enough to be
	// outside any validation window. Housekeeping only; correctness never
	// depends on deletion.
	DeleteClaimedPeriodsBefore(ctx context.Context, before time.Time) error
}

type TrustedDevices interface {
	// CreateTrustedDevice stores a new device-trust grant.
	CreateTrustedDevice(ctx context.Context, d domain.TrustedDevice) error

	// GetTrustedDeviceByHash returns the grant matching a presented
	// token's hash, revoked or not.
	GetTrustedDeviceByHash(ctx context.Context, tokenHash string) (domain.TrustedDevice, error)

	// GetTrustedDevice returns a grant by id scoped to its owner.
	GetTrustedDevice(ctx context.Context, userID, deviceID string) (domain.TrustedDevice, error)

	// ListTrustedDevices returns the user's non-revoked grants, newest first.
	ListTrustedDevices(ctx context.Context, userID string) ([]domain.TrustedDevice, error)

	// TouchTrustedDevice updates last_seen_at, last_ip and last_user_agent.
	TouchTrustedDevice(ctx context.Context, id string, seenAt time.Time, ip, userAgent string) error

	// RevokeTrustedDevice flips revoked on; idempotent.
	RevokeTrustedDevice(ctx context.Context, id string, reason string) error

	// RevokeAllTrustedDevices revokes every live grant for a user.
	RevokeAllTrustedDevices(ctx context.Context, userID string, reason string) error

	// DeleteExpiredTrustedDevices is housekeeping.
	DeleteExpiredTrustedDevices(ctx context.Context, before time.Time) error
}
