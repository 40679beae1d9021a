package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/totp"
)

const (
	// DefaultNonceTTL bounds how long a login attempt may wait between the
	// primary credential check and the second factor.
	DefaultNonceTTL = 5 * time.Minute

	// maxNonceAttempts caps failed code submissions per nonce before the
	// whole login attempt is burned.
	maxNonceAttempts = 5
)

// VerificationService runs the challenge step of a login: issue a nonce
// after the primary credentials pass, then accept exactly one valid TOTP or
// recovery code against it.
type VerificationService struct {
	Store    store.Store
	Box      cryptox.SecretBox
	Engine   totp.Engine
	NonceTTL time.Duration
}

func (s *VerificationService) nonceTTL() time.Duration {
	if s.NonceTTL > 0 {
		return s.NonceTTL
	}
	return DefaultNonceTTL
}

// IssueNonce creates a verification nonce for an enrolled user and returns
// the opaque token and its expiry. The token itself is never stored; only
// its fingerprint is.
func (s *VerificationService) IssueNonce(ctx context.Context, userID string) (string, time.Time, error) {
	settings, err := s.Store.Settings().GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", time.Time{}, ErrNotEnrolled
		}
		return "", time.Time{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.Enabled {
		return "", time.Time{}, ErrNotEnrolled
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to generate nonce token: %w", err)
	}

	now := time.Now()
	expires := now.Add(s.nonceTTL())
	err = s.Store.Nonces().CreateNonce(ctx, domain.VerificationNonce{
		TokenHash: cryptox.FingerprintToken(token),
		UserID:    userID,
		CreatedAt: now,
		ExpiresAt: expires,
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store nonce: %w", err)
	}
	return token, expires, nil
}

// Verify checks a TOTP code against the nonce's user. On success the nonce
// is consumed, the matched period is claimed, and the user ID is returned.
//
// A replayed code consumes the nonce too: by the time the ledger rejects the
// period the code itself was valid, so the login attempt is burned rather
// than left open for retries with the same stolen code.
func (s *VerificationService) Verify(ctx context.Context, nonceToken, code string) (string, error) {
	nonce, err := s.usableNonce(ctx, nonceToken)
	if err != nil {
		return "", err
	}

	secret, err := loadSecret(ctx, s.Store, s.Box, nonce.UserID)
	if err != nil {
		return "", err
	}

	now := time.Now()
	period, ok := s.Engine.Validate(secret, code, now)
	if !ok {
		return "", s.recordFailure(ctx, nonce.TokenHash, ErrInvalidCode)
	}

	var outErr error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Nonces().ConsumeNonce(ctx, nonce.TokenHash, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				outErr = ErrSessionExpired
				return err // lost the race to a concurrent submission
			}
			return fmt.Errorf("failed to consume nonce: %w", err)
		}

		if err := tx.ClaimedPeriods().ClaimPeriod(ctx, nonce.UserID, period, now); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				outErr = ErrCodeAlreadyUsed
				return nil // commit: the nonce stays consumed
			}
			return fmt.Errorf("failed to claim period: %w", err)
		}

		if err := tx.Settings().TouchLastVerified(ctx, nonce.UserID, now); err != nil {
			return fmt.Errorf("failed to record verification: %w", err)
		}
		return nil
	})
	if outErr != nil {
		return "", outErr
	}
	if err != nil {
		return "", err
	}
	return nonce.UserID, nil
}

// VerifyRecovery checks a recovery code against the nonce's user. A valid
// code is removed in the same transaction that consumes the nonce, so it can
// never satisfy two logins. Returns the user ID and how many codes remain.
func (s *VerificationService) VerifyRecovery(ctx context.Context, nonceToken, recoveryCode string) (string, int, error) {
	nonce, err := s.usableNonce(ctx, nonceToken)
	if err != nil {
		return "", 0, err
	}

	settings, err := s.Store.Settings().GetSettings(ctx, nonce.UserID)
	if err != nil || !settings.Enabled {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return "", 0, fmt.Errorf("failed to load settings: %w", err)
		}
		return "", 0, ErrNotEnrolled
	}

	hash := cryptox.FingerprintToken(totp.NormalizeRecoveryCode(recoveryCode))
	now := time.Now()

	var outErr error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.RecoveryCodes().ConsumeRecoveryCode(ctx, nonce.UserID, hash); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				outErr = ErrInvalidRecoveryCode
				return err
			}
			return fmt.Errorf("failed to consume recovery code: %w", err)
		}

		if err := tx.Nonces().ConsumeNonce(ctx, nonce.TokenHash, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				outErr = ErrSessionExpired
				return err
			}
			return fmt.Errorf("failed to consume nonce: %w", err)
		}

		if err := tx.Settings().TouchLastVerified(ctx, nonce.UserID, now); err != nil {
			return fmt.Errorf("failed to record verification: %w", err)
		}
		return nil
	})
	if outErr != nil {
		if errors.Is(outErr, ErrInvalidRecoveryCode) {
			return "", 0, s.recordFailure(ctx, nonce.TokenHash, ErrInvalidRecoveryCode)
		}
		return "", 0, outErr
	}
	if err != nil {
		return "", 0, err
	}

	remaining, err := s.Store.RecoveryCodes().CountRecoveryCodes(ctx, nonce.UserID)
	if err != nil {
		return "", 0, fmt.Errorf("failed to count recovery codes: %w", err)
	}
	return nonce.UserID, remaining, nil
}

// usableNonce resolves a presented token to a nonce that can still gate a
// verification. Expired, consumed and unknown tokens are indistinguishable
// to the caller.
func (s *VerificationService) usableNonce(ctx context.Context, token string) (domain.VerificationNonce, error) {
	nonce, err := s.Store.Nonces().GetNonce(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.VerificationNonce{}, ErrSessionExpired
		}
		return domain.VerificationNonce{}, fmt.Errorf("failed to load nonce: %w", err)
	}
	if !nonce.Usable(time.Now()) {
		return domain.VerificationNonce{}, ErrSessionExpired
	}
	if nonce.Attempts >= maxNonceAttempts {
		return domain.VerificationNonce{}, ErrTooManyAttempts
	}
	return nonce, nil
}

// recordFailure bumps the nonce's attempt counter and maps the outcome:
// the caller's invalid sentinel while attempts remain, ErrTooManyAttempts
// once the nonce is burned. The nonce is consumed at the cap so later
// submissions fail fast.
func (s *VerificationService) recordFailure(ctx context.Context, tokenHash string, invalid error) error {
	attempts, err := s.Store.Nonces().IncrementNonceAttempts(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrSessionExpired
		}
		return fmt.Errorf("failed to record failed attempt: %w", err)
	}
	if attempts >= maxNonceAttempts {
		if err := s.Store.Nonces().ConsumeNonce(ctx, tokenHash, time.Now()); err != nil && !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to burn nonce: %w", err)
		}
		return ErrTooManyAttempts
	}
	return invalid
}
