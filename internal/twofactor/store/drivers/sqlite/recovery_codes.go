package sqlite

import (
	"context"

	"github.com/caseloop/twofactor/internal/twofactor/store"
)

type recoveryCodesRepo struct {
	db dbtx
}

func (r *recoveryCodesRepo) CreateRecoveryCode(ctx context.Context, userID string, codeHash string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO recovery_codes (user_id, code_hash)
		VALUES (?, ?)`, userID, codeHash)
	return mapConstraint(err)
}

// ConsumeRecoveryCode deletes the code in a single statement. The
// rows-affected check makes single-use hold under concurrent submissions:
// whichever request deletes the row wins, the other sees ErrNotFound.
func (r *recoveryCodesRepo) ConsumeRecoveryCode(ctx context.Context, userID string, codeHash string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM recovery_codes
		WHERE user_id = ? AND code_hash = ?`, userID, codeHash)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *recoveryCodesRepo) DeleteAllRecoveryCodes(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recovery_codes WHERE user_id = ?`, userID)
	return err
}

func (r *recoveryCodesRepo) CountRecoveryCodes(ctx context.Context, userID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM recovery_codes WHERE user_id = ?`, userID).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}
