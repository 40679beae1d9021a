package sqlite

import (
	"context"
	"time"
)

type claimedPeriodsRepo struct {
	db dbtx
}

// ClaimPeriod relies entirely on the composite primary key: a replayed code
// lands on the constraint and comes back as store.ErrAlreadyExists. There is
// deliberately no SELECT first.
func (r *claimedPeriodsRepo) ClaimPeriod(ctx context.Context, userID string, period int64, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO claimed_periods (user_id, period, claimed_at)
		VALUES (?, ?, ?)`, userID, period, at.UTC())
	return mapConstraint(err)
}

func (r *claimedPeriodsRepo) DeleteClaimedPeriodsBefore(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM claimed_periods WHERE claimed_at < ?`, before.UTC())
	return err
}
