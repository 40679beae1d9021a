package domain

import "time"

// ClaimedPeriod is one row of the anti-replay ledger: user U consumed a code
// for TOTP period P. The store enforces at most one row per (user, period)
// with a uniqueness constraint, so two requests racing on the same code
// resolve in the database rather than in application logic.
type ClaimedPeriod struct {
	UserID    string
	Period    int64
	ClaimedAt time.Time
}
