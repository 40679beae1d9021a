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
	"github.com/pquerna/otp"
	ptotp "github.com/pquerna/otp/totp"
	qrcode "github.com/skip2/go-qrcode"
)

const (
	// recoveryCodeCount is how many single-use fallback codes each
	// enrollment gets.
	recoveryCodeCount = 10

	// qrCodeSize is the pixel width/height of the enrollment QR PNG.
	qrCodeSize = 256
)

// EnrollmentService owns the provisioning lifecycle: offering a secret,
// confirming possession, regenerating recovery codes, and disabling.
type EnrollmentService struct {
	Store  store.Store
	Box    cryptox.SecretBox
	Engine totp.Engine
	Issuer string // issuer label shown in authenticator apps
}

// Begin generates a fresh secret, provisioning URI, QR rendering and
// recovery-code set for the user. Nothing is persisted: an abandoned
// enrollment leaves no state, and the user proves possession via Confirm
// before anything is written.
func (s *EnrollmentService) Begin(ctx context.Context, userID, accountName string) (domain.EnrollmentOffer, error) {
	settings, err := s.Store.Settings().GetSettings(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.EnrollmentOffer{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if err == nil && settings.Enabled {
		return domain.EnrollmentOffer{}, ErrAlreadyEnrolled
	}

	key, err := ptotp.Generate(ptotp.GenerateOpts{
		Issuer:      s.Issuer,
		AccountName: accountName,
		Period:      uint(s.Engine.Step() / time.Second),
		Digits:      otp.DigitsSix,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return domain.EnrollmentOffer{}, fmt.Errorf("failed to generate secret: %w", err)
	}

	png, err := qrcode.Encode(key.URL(), qrcode.Medium, qrCodeSize)
	if err != nil {
		return domain.EnrollmentOffer{}, fmt.Errorf("failed to render QR code: %w", err)
	}

	codes, err := totp.GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return domain.EnrollmentOffer{}, fmt.Errorf("failed to generate recovery codes: %w", err)
	}

	return domain.EnrollmentOffer{
		Secret:          key.Secret(),
		ProvisioningURI: key.URL(),
		QRCodePNG:       png,
		RecoveryCodes:   codes,
	}, nil
}

// Confirm validates a code against the offered secret and, on success,
// persists the enrollment in one transaction: claim the matched period,
// write the enabled settings row with the sealed secret, install the
// recovery codes, and revoke any device-trust grants issued before 2FA was
// on. A grant earned without a second factor must not bypass it afterwards.
func (s *EnrollmentService) Confirm(ctx context.Context, userID, secret string, recoveryCodes []string, code string) error {
	if len(recoveryCodes) == 0 {
		return ErrInvalidCode
	}

	existing, err := s.Store.Settings().GetSettings(ctx, userID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to load settings: %w", err)
	}
	if err == nil && existing.Enabled {
		return ErrAlreadyEnrolled
	}

	key, err := totp.DecodeSecret(secret)
	if err != nil {
		return ErrInvalidCode
	}

	now := time.Now()
	period, ok := s.Engine.Validate(key, code, now)
	if !ok {
		return ErrInvalidCode
	}

	sealed, err := s.Box.Seal([]byte(secret))
	if err != nil {
		return fmt.Errorf("failed to seal secret: %w", err)
	}

	var outErr error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ClaimedPeriods().ClaimPeriod(ctx, userID, period, now); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				outErr = ErrCodeAlreadyUsed
				return err // rollback; nothing else was written
			}
			return fmt.Errorf("failed to claim period: %w", err)
		}

		if err := tx.Settings().UpsertEnabled(ctx, userID, sealed, now); err != nil {
			return fmt.Errorf("failed to enable settings: %w", err)
		}

		if err := tx.RecoveryCodes().DeleteAllRecoveryCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear recovery codes: %w", err)
		}
		for _, c := range recoveryCodes {
			hash := cryptox.FingerprintToken(totp.NormalizeRecoveryCode(c))
			if err := tx.RecoveryCodes().CreateRecoveryCode(ctx, userID, hash); err != nil {
				return fmt.Errorf("failed to store recovery code: %w", err)
			}
		}

		if err := tx.TrustedDevices().RevokeAllTrustedDevices(ctx, userID, domain.RevokeReasonReEnrolled); err != nil {
			return fmt.Errorf("failed to revoke prior device trust: %w", err)
		}

		return nil
	})
	if outErr != nil {
		return outErr
	}
	return err
}

// RegenerateRecoveryCodes replaces the recovery set after verifying a
// current TOTP code. The matched period is claimed like any other use of a
// code.
func (s *EnrollmentService) RegenerateRecoveryCodes(ctx context.Context, userID, code string) ([]string, error) {
	secret, err := loadSecret(ctx, s.Store, s.Box, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	period, ok := s.Engine.Validate(secret, code, now)
	if !ok {
		return nil, ErrInvalidCode
	}

	codes, err := totp.GenerateRecoveryCodes(recoveryCodeCount)
	if err != nil {
		return nil, fmt.Errorf("failed to generate recovery codes: %w", err)
	}

	var outErr error
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.ClaimedPeriods().ClaimPeriod(ctx, userID, period, now); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				outErr = ErrCodeAlreadyUsed
				return err
			}
			return fmt.Errorf("failed to claim period: %w", err)
		}

		if err := tx.RecoveryCodes().DeleteAllRecoveryCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to clear recovery codes: %w", err)
		}
		for _, c := range codes {
			hash := cryptox.FingerprintToken(totp.NormalizeRecoveryCode(c))
			if err := tx.RecoveryCodes().CreateRecoveryCode(ctx, userID, hash); err != nil {
				return fmt.Errorf("failed to store recovery code: %w", err)
			}
		}
		return nil
	})
	if outErr != nil {
		return nil, outErr
	}
	if err != nil {
		return nil, err
	}
	return codes, nil
}

// Disable turns 2FA off for the user: the secret and every recovery code
// are cleared and every trusted device is revoked, all in one transaction.
func (s *EnrollmentService) Disable(ctx context.Context, userID string) error {
	return s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Settings().DisableSettings(ctx, userID); err != nil {
			return fmt.Errorf("failed to disable settings: %w", err)
		}
		if err := tx.RecoveryCodes().DeleteAllRecoveryCodes(ctx, userID); err != nil {
			return fmt.Errorf("failed to delete recovery codes: %w", err)
		}
		if err := tx.TrustedDevices().RevokeAllTrustedDevices(ctx, userID, domain.RevokeReasonDisabled); err != nil {
			return fmt.Errorf("failed to revoke trusted devices: %w", err)
		}
		return nil
	})
}

// loadSecret returns the unsealed TOTP secret for an enrolled user.
func loadSecret(ctx context.Context, st store.Store, box cryptox.SecretBox, userID string) ([]byte, error) {
	settings, err := st.Settings().GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotEnrolled
		}
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.Enabled || len(settings.SecretSealed) == 0 {
		return nil, ErrNotEnrolled
	}

	raw, err := box.Open(settings.SecretSealed)
	if err != nil {
		return nil, fmt.Errorf("failed to unseal secret: %w", err)
	}
	return totp.DecodeSecret(string(raw))
}
