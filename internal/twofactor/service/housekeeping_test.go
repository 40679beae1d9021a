package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestHousekeepingCleanupRemovesExpiredRows(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	// One expired and one live row per table.
	require.NoError(t, st.Nonces().CreateNonce(ctx, domain.VerificationNonce{
		TokenHash: cryptox.FingerprintToken("dead-nonce"),
		UserID:    "user-1",
		CreatedAt: now.Add(-time.Hour),
		ExpiresAt: now.Add(-30 * time.Minute),
	}))
	require.NoError(t, st.Nonces().CreateNonce(ctx, domain.VerificationNonce{
		TokenHash: cryptox.FingerprintToken("live-nonce"),
		UserID:    "user-1",
		CreatedAt: now,
		ExpiresAt: now.Add(5 * time.Minute),
	}))

	require.NoError(t, st.ClaimedPeriods().ClaimPeriod(ctx, "user-1", 100, now.Add(-2*time.Hour)))
	require.NoError(t, st.ClaimedPeriods().ClaimPeriod(ctx, "user-1", 200, now))

	require.NoError(t, st.TrustedDevices().CreateTrustedDevice(ctx, domain.TrustedDevice{
		ID:         string(idx.New()),
		UserID:     "user-1",
		TokenHash:  cryptox.FingerprintToken("dead-device"),
		Name:       "old phone",
		CreatedAt:  now.Add(-90 * 24 * time.Hour),
		LastSeenAt: now.Add(-40 * 24 * time.Hour),
		ExpiresAt:  now.Add(-time.Hour),
	}))
	require.NoError(t, st.TrustedDevices().CreateTrustedDevice(ctx, domain.TrustedDevice{
		ID:         string(idx.New()),
		UserID:     "user-1",
		TokenHash:  cryptox.FingerprintToken("live-device"),
		Name:       "laptop",
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(24 * time.Hour),
	}))

	svc := NewHousekeepingService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	svc.cleanup()

	_, err := st.Nonces().GetNonce(ctx, cryptox.FingerprintToken("dead-nonce"))
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Nonces().GetNonce(ctx, cryptox.FingerprintToken("live-nonce"))
	require.NoError(t, err)

	// The swept period can be claimed again; the recent one cannot.
	require.NoError(t, st.ClaimedPeriods().ClaimPeriod(ctx, "user-1", 100, now))
	require.ErrorIs(t, st.ClaimedPeriods().ClaimPeriod(ctx, "user-1", 200, now), store.ErrAlreadyExists)

	_, err = st.TrustedDevices().GetTrustedDeviceByHash(ctx, cryptox.FingerprintToken("dead-device"))
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.TrustedDevices().GetTrustedDeviceByHash(ctx, cryptox.FingerprintToken("live-device"))
	require.NoError(t, err)
}

func TestHousekeepingStartStop(t *testing.T) {
	st := newTestStore(t)

	svc := NewHousekeepingService(st, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	svc.Start()
	svc.Stop()
}
