package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/idx"
	"github.com/caseloop/twofactor/pkg/totp"
	"github.com/stretchr/testify/require"
)

func newEnrollmentService(t *testing.T) *EnrollmentService {
	t.Helper()

	return &EnrollmentService{
		Store:  newTestStore(t),
		Box:    newTestBox(t),
		Engine: totp.Default(),
		Issuer: "Caseloop",
	}
}

func TestBeginProducesCompleteOffer(t *testing.T) {
	svc := newEnrollmentService(t)
	ctx := context.Background()

	offer, err := svc.Begin(ctx, "user-1", "alice@example.com")
	require.NoError(t, err)

	key, err := totp.DecodeSecret(offer.Secret)
	require.NoError(t, err)
	require.NotEmpty(t, key)

	require.Contains(t, offer.ProvisioningURI, "otpauth://totp/")
	require.Contains(t, offer.ProvisioningURI, "Caseloop")
	require.Contains(t, offer.ProvisioningURI, "alice%40example.com")

	require.NotEmpty(t, offer.QRCodePNG)
	require.Equal(t, "\x89PNG", string(offer.QRCodePNG[:4]))

	require.Len(t, offer.RecoveryCodes, recoveryCodeCount)
	for _, c := range offer.RecoveryCodes {
		require.Len(t, c, totp.RecoveryCodeLength)
	}

	// Nothing is persisted until Confirm.
	_, err = svc.Store.Settings().GetSettings(ctx, "user-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestBeginRejectsEnrolledUser(t *testing.T) {
	svc := newEnrollmentService(t)
	enrollTestUser(t, svc, "user-1")

	_, err := svc.Begin(context.Background(), "user-1", "alice@example.com")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
}

func TestConfirmRejectsWrongCode(t *testing.T) {
	svc := newEnrollmentService(t)
	ctx := context.Background()

	offer, err := svc.Begin(ctx, "user-1", "alice@example.com")
	require.NoError(t, err)

	key, err := totp.DecodeSecret(offer.Secret)
	require.NoError(t, err)
	wrong := wrongCode(svc.Engine, key)

	err = svc.Confirm(ctx, "user-1", offer.Secret, offer.RecoveryCodes, wrong)
	require.ErrorIs(t, err, ErrInvalidCode)

	_, err = svc.Store.Settings().GetSettings(ctx, "user-1")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestConfirmPersistsEnrollment(t *testing.T) {
	svc := newEnrollmentService(t)
	ctx := context.Background()

	key, _ := enrollTestUser(t, svc, "user-1")

	settings, err := svc.Store.Settings().GetSettings(ctx, "user-1")
	require.NoError(t, err)
	require.True(t, settings.Enabled)
	require.NotEmpty(t, settings.SecretSealed)
	require.NotNil(t, settings.LastVerifiedAt)

	// The sealed secret round-trips to the offered one.
	raw, err := svc.Box.Open(settings.SecretSealed)
	require.NoError(t, err)
	decoded, err := totp.DecodeSecret(string(raw))
	require.NoError(t, err)
	require.Equal(t, key, decoded)

	count, err := svc.Store.RecoveryCodes().CountRecoveryCodes(ctx, "user-1")
	require.NoError(t, err)
	require.Equal(t, recoveryCodeCount, count)
}

func TestConfirmRevokesPreEnrollmentTrust(t *testing.T) {
	svc := newEnrollmentService(t)
	ctx := context.Background()

	// A grant that somehow predates this enrollment must not survive it.
	now := time.Now()
	stale := domain.TrustedDevice{
		ID:         string(idx.New()),
		UserID:     "user-1",
		TokenHash:  cryptox.FingerprintToken("stale-token"),
		Name:       "old laptop",
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}
	require.NoError(t, svc.Store.TrustedDevices().CreateTrustedDevice(ctx, stale))

	enrollTestUser(t, svc, "user-1")

	got, err := svc.Store.TrustedDevices().GetTrustedDeviceByHash(ctx, stale.TokenHash)
	require.NoError(t, err)
	require.True(t, got.Revoked)
	require.NotNil(t, got.RevokeReason)
	require.Equal(t, domain.RevokeReasonReEnrolled, *got.RevokeReason)
}

func TestDisableClearsEverything(t *testing.T) {
	svc := newEnrollmentService(t)
	ctx := context.Background()

	enrollTestUser(t, svc, "user-1")

	trust := &DeviceTrustService{Store: svc.Store}
	grant, err := trust.Trust(ctx, "user-1", "laptop", "203.0.113.7", "Mozilla/5.0")
	require.NoError(t, err)

	require.NoError(t, svc.Disable(ctx, "user-1"))

	settings, err := svc.Store.Settings().GetSettings(ctx, "user-1")
	require.NoError(t, err)
	require.False(t, settings.Enabled)
	require.Empty(t, settings.SecretSealed)

	count, err := svc.Store.RecoveryCodes().CountRecoveryCodes(ctx, "user-1")
	require.NoError(t, err)
	require.Zero(t, count)

	_, err = trust.Check(ctx, grant.Token, "203.0.113.7", "Mozilla/5.0")
	require.ErrorIs(t, err, ErrDeviceRevoked)
}

func TestDisableIsIdempotent(t *testing.T) {
	svc := newEnrollmentService(t)
	require.NoError(t, svc.Disable(context.Background(), "never-enrolled"))
}

func TestRegenerateRecoveryCodesReplacesSet(t *testing.T) {
	svc := newEnrollmentService(t)
	ctx := context.Background()

	key, oldCodes := enrollTestUser(t, svc, "user-1")

	codes, err := svc.RegenerateRecoveryCodes(ctx, "user-1", codeAt(svc.Engine, key, 1))
	require.NoError(t, err)
	require.Len(t, codes, recoveryCodeCount)

	for _, c := range oldCodes {
		require.NotContains(t, codes, c)
		err := svc.Store.RecoveryCodes().ConsumeRecoveryCode(ctx, "user-1",
			cryptox.FingerprintToken(totp.NormalizeRecoveryCode(c)))
		require.ErrorIs(t, err, store.ErrNotFound)
	}
}

func TestRegenerateRecoveryCodesRequiresEnrollment(t *testing.T) {
	svc := newEnrollmentService(t)
	_, err := svc.RegenerateRecoveryCodes(context.Background(), "user-1", "123456")
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestRecoveryCodesAreWellFormed(t *testing.T) {
	codes, err := totp.GenerateRecoveryCodes(recoveryCodeCount)
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, c := range codes {
		require.False(t, seen[c], "duplicate recovery code")
		seen[c] = true
		require.Equal(t, strings.ToUpper(c), c)
	}
}
