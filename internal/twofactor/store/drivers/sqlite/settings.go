package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
)

type settingsRepo struct {
	db dbtx
}

func (r *settingsRepo) GetSettings(ctx context.Context, userID string) (domain.TwoFactorSettings, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT user_id, enabled, secret_sealed, last_verified_at, created_at, updated_at
		FROM two_factor_settings
		WHERE user_id = ?`, userID)

	var (
		s            domain.TwoFactorSettings
		secret       []byte
		lastVerified sql.NullTime
	)
	if err := row.Scan(&s.UserID, &s.Enabled, &secret, &lastVerified, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return domain.TwoFactorSettings{}, mapNotFound(err)
	}
	s.SecretSealed = secret
	s.LastVerifiedAt = mapNullTimePtr(lastVerified)
	return s, nil
}

func (r *settingsRepo) UpsertEnabled(ctx context.Context, userID string, secretSealed []byte, verifiedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO two_factor_settings (user_id, enabled, secret_sealed, last_verified_at, created_at, updated_at)
		VALUES (?, 1, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (user_id) DO UPDATE SET
			enabled = 1,
			secret_sealed = excluded.secret_sealed,
			last_verified_at = excluded.last_verified_at,
			updated_at = CURRENT_TIMESTAMP`,
		userID, secretSealed, verifiedAt.UTC())
	return err
}

func (r *settingsRepo) DisableSettings(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_settings
		SET enabled = 0, secret_sealed = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`, userID)
	return err
}

func (r *settingsRepo) TouchLastVerified(ctx context.Context, userID string, verifiedAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE two_factor_settings
		SET last_verified_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`, verifiedAt.UTC(), userID)
	return err
}
