package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/store/drivers/sqlite"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/totp"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.ApplyMigrations())
	return st
}

func newTestBox(t *testing.T) cryptox.SecretBox {
	t.Helper()

	box, err := cryptox.NewSecretBox([]byte("test master key material"))
	require.NoError(t, err)
	return box
}

// enrollTestUser walks a user through Begin+Confirm and returns the decoded
// secret plus the recovery codes the user would have saved.
func enrollTestUser(t *testing.T, svc *EnrollmentService, userID string) ([]byte, []string) {
	t.Helper()

	ctx := context.Background()
	offer, err := svc.Begin(ctx, userID, userID+"@example.com")
	require.NoError(t, err)

	key, err := totp.DecodeSecret(offer.Secret)
	require.NoError(t, err)

	code := svc.Engine.Generate(key, svc.Engine.Period(time.Now()))
	require.NoError(t, svc.Confirm(ctx, userID, offer.Secret, offer.RecoveryCodes, code))

	return key, offer.RecoveryCodes
}

// codeAt generates a code for the current period plus offset. Offsets of 0
// and +1 are always inside the validation window even if the wall clock
// crosses a period boundary mid-test.
func codeAt(e totp.Engine, key []byte, offset int64) string {
	return e.Generate(key, e.Period(time.Now())+offset)
}

// wrongCode returns a six-digit string that no period near now produces, so
// rejection tests cannot collide with a real code.
func wrongCode(e totp.Engine, key []byte) string {
	valid := map[string]bool{}
	p := e.Period(time.Now())
	for off := int64(-2); off <= 2; off++ {
		valid[e.Generate(key, p+off)] = true
	}
	for i := 0; ; i++ {
		candidate := fmt.Sprintf("%06d", i)
		if !valid[candidate] {
			return candidate
		}
	}
}
