package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/totp"
	"github.com/stretchr/testify/require"
)

// newVerificationFixture enrolls a user and returns the services sharing one
// store, plus the user's secret and recovery codes.
func newVerificationFixture(t *testing.T, userID string) (*EnrollmentService, *VerificationService, []byte, []string) {
	t.Helper()

	enroll := &EnrollmentService{
		Store:  newTestStore(t),
		Box:    newTestBox(t),
		Engine: totp.Default(),
		Issuer: "Caseloop",
	}
	key, codes := enrollTestUser(t, enroll, userID)

	verify := &VerificationService{
		Store:  enroll.Store,
		Box:    enroll.Box,
		Engine: enroll.Engine,
	}
	return enroll, verify, key, codes
}

func TestIssueNonceRequiresEnrollment(t *testing.T) {
	svc := &VerificationService{Store: newTestStore(t), Box: newTestBox(t), Engine: totp.Default()}

	_, _, err := svc.IssueNonce(context.Background(), "nobody")
	require.ErrorIs(t, err, ErrNotEnrolled)
}

func TestIssueNonceReturnsOpaqueToken(t *testing.T) {
	_, verify, _, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, expires, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.True(t, expires.After(time.Now()))

	// Only the fingerprint is stored.
	nonce, err := verify.Store.Nonces().GetNonce(ctx, cryptox.FingerprintToken(token))
	require.NoError(t, err)
	require.Equal(t, "user-1", nonce.UserID)
	require.NotEqual(t, token, nonce.TokenHash)
}

func TestVerifyAcceptsValidCodeOnce(t *testing.T) {
	_, verify, key, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)

	userID, err := verify.Verify(ctx, token, codeAt(verify.Engine, key, 1))
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)

	// The nonce admits exactly one success.
	_, err = verify.Verify(ctx, token, codeAt(verify.Engine, key, 1))
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyRejectsReplayedCode(t *testing.T) {
	_, verify, key, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	code := codeAt(verify.Engine, key, 1)

	first, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)
	_, err = verify.Verify(ctx, first, code)
	require.NoError(t, err)

	second, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)
	_, err = verify.Verify(ctx, second, code)
	require.ErrorIs(t, err, ErrCodeAlreadyUsed)

	// The replay burned the second nonce too.
	_, err = verify.Verify(ctx, second, codeAt(verify.Engine, key, 0))
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyConcurrentSubmissionsAdmitOne(t *testing.T) {
	_, verify, key, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	code := codeAt(verify.Engine, key, 1)

	const workers = 8
	tokens := make([]string, workers)
	for i := range tokens {
		token, _, err := verify.IssueNonce(ctx, "user-1")
		require.NoError(t, err)
		tokens[i] = token
	}

	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = verify.Verify(ctx, tokens[i], code)
		}(i)
	}
	wg.Wait()

	var successes, replays int
	for _, err := range results {
		switch {
		case err == nil:
			successes++
		default:
			require.ErrorIs(t, err, ErrCodeAlreadyUsed)
			replays++
		}
	}
	require.Equal(t, 1, successes)
	require.Equal(t, workers-1, replays)
}

func TestVerifyCapsFailedAttempts(t *testing.T) {
	_, verify, key, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)

	wrong := wrongCode(verify.Engine, key)
	for i := 0; i < maxNonceAttempts-1; i++ {
		_, err := verify.Verify(ctx, token, wrong)
		require.ErrorIs(t, err, ErrInvalidCode)
	}

	_, err = verify.Verify(ctx, token, wrong)
	require.ErrorIs(t, err, ErrTooManyAttempts)

	// The cap burns the nonce; even the right code is refused now.
	_, err = verify.Verify(ctx, token, codeAt(verify.Engine, key, 1))
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyRejectsExpiredNonce(t *testing.T) {
	_, verify, key, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	now := time.Now()
	token := "expired-token"
	require.NoError(t, verify.Store.Nonces().CreateNonce(ctx, domain.VerificationNonce{
		TokenHash: cryptox.FingerprintToken(token),
		UserID:    "user-1",
		CreatedAt: now.Add(-10 * time.Minute),
		ExpiresAt: now.Add(-5 * time.Minute),
	}))

	_, err := verify.Verify(ctx, token, codeAt(verify.Engine, key, 0))
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyRejectsUnknownNonce(t *testing.T) {
	_, verify, key, _ := newVerificationFixture(t, "user-1")

	_, err := verify.Verify(context.Background(), "no-such-token", codeAt(verify.Engine, key, 0))
	require.ErrorIs(t, err, ErrSessionExpired)
}

func TestVerifyRecoveryConsumesCode(t *testing.T) {
	_, verify, _, codes := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)

	userID, remaining, err := verify.VerifyRecovery(ctx, token, codes[0])
	require.NoError(t, err)
	require.Equal(t, "user-1", userID)
	require.Equal(t, len(codes)-1, remaining)

	// Same code on a fresh nonce fails: single use.
	token2, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)
	_, _, err = verify.VerifyRecovery(ctx, token2, codes[0])
	require.ErrorIs(t, err, ErrInvalidRecoveryCode)
}

func TestVerifyRecoveryNormalizesInput(t *testing.T) {
	_, verify, _, codes := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)

	// Lowercased with a hyphen in the middle, as a user might type it.
	sloppy := strings.ToLower(codes[0][:5] + "-" + codes[0][5:])
	_, _, err = verify.VerifyRecovery(ctx, token, sloppy)
	require.NoError(t, err)
}

func TestVerifyRecoveryRejectsUnknownCode(t *testing.T) {
	_, verify, _, _ := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)

	_, _, err = verify.VerifyRecovery(ctx, token, "NOTA-REALCODE")
	require.ErrorIs(t, err, ErrInvalidRecoveryCode)

	// The failure counted against the nonce.
	nonce, err := verify.Store.Nonces().GetNonce(ctx, cryptox.FingerprintToken(token))
	require.NoError(t, err)
	require.Equal(t, 1, nonce.Attempts)
}

func TestVerifyRecoveryLeavesNonceUsableAfterFailure(t *testing.T) {
	_, verify, _, codes := newVerificationFixture(t, "user-1")
	ctx := context.Background()

	token, _, err := verify.IssueNonce(ctx, "user-1")
	require.NoError(t, err)

	_, _, err = verify.VerifyRecovery(ctx, token, "WRONG00000")
	require.ErrorIs(t, err, ErrInvalidRecoveryCode)

	// A failed guess does not burn the login attempt.
	_, _, err = verify.VerifyRecovery(ctx, token, codes[1])
	require.NoError(t, err)
}
