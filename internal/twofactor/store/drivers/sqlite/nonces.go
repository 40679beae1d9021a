package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/internal/twofactor/store"
)

type noncesRepo struct {
	db dbtx
}

func (r *noncesRepo) CreateNonce(ctx context.Context, n domain.VerificationNonce) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO verification_nonces (token_hash, user_id, attempts, created_at, expires_at)
		VALUES (?, ?, 0, ?, ?)`,
		n.TokenHash, n.UserID, n.CreatedAt.UTC(), n.ExpiresAt.UTC())
	return mapConstraint(err)
}

func (r *noncesRepo) GetNonce(ctx context.Context, tokenHash string) (domain.VerificationNonce, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT token_hash, user_id, attempts, consumed_at, created_at, expires_at
		FROM verification_nonces
		WHERE token_hash = ?`, tokenHash)

	var (
		n        domain.VerificationNonce
		consumed sql.NullTime
	)
	if err := row.Scan(&n.TokenHash, &n.UserID, &n.Attempts, &consumed, &n.CreatedAt, &n.ExpiresAt); err != nil {
		return domain.VerificationNonce{}, mapNotFound(err)
	}
	n.ConsumedAt = mapNullTimePtr(consumed)
	return n, nil
}

// ConsumeNonce is a conditional update: only an unconsumed nonce transitions.
// Two requests racing on the same nonce cannot both see one row affected.
func (r *noncesRepo) ConsumeNonce(ctx context.Context, tokenHash string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verification_nonces
		SET consumed_at = ?
		WHERE token_hash = ? AND consumed_at IS NULL`, at.UTC(), tokenHash)
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

func (r *noncesRepo) IncrementNonceAttempts(ctx context.Context, tokenHash string) (int, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE verification_nonces
		SET attempts = attempts + 1
		WHERE token_hash = ?
		RETURNING attempts`, tokenHash)

	var attempts int
	if err := row.Scan(&attempts); err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *noncesRepo) DeleteExpiredNonces(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM verification_nonces WHERE expires_at < ?`, before.UTC())
	return err
}
