package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/store"
)

// claimedPeriodRetention is how long ledger rows are kept before sweeping.
// It only needs to exceed the widest validation window; an hour is orders of
// magnitude beyond any sane skew setting.
const claimedPeriodRetention = 1 * time.Hour

// HousekeepingService periodically deletes expired database records to
// prevent unbounded growth of verification_nonces, claimed_periods, and
// trusted_devices.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Internal channels for lifecycle management
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker that periodically runs cleanup.
// This is non-blocking and should be called after the database is ready.
// Call Stop() to gracefully shutdown the worker.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop gracefully shuts down the background worker.
// Blocks until the worker has finished any in-progress cleanup.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

// run is the main background worker loop.
func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Run cleanup immediately on startup
	s.cleanup()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup performs the actual deletion of expired records.
// Each deletion is independent - failures in one won't stop the others.
// Correctness never depends on these sweeps; replay protection and expiry
// checks hold whether or not stale rows are present.
func (s *HousekeepingService) cleanup() {
	ctx := context.Background()
	now := time.Now()
	s.Logger.Info("starting housekeeping cleanup")

	var totalDeleted int

	// Clean expired verification nonces
	if err := s.Store.Nonces().DeleteExpiredNonces(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired nonces", "error", err)
	} else {
		s.Logger.Debug("deleted expired nonces")
		totalDeleted++
	}

	// Clean claimed periods too old to matter to any validation window
	if err := s.Store.ClaimedPeriods().DeleteClaimedPeriodsBefore(ctx, now.Add(-claimedPeriodRetention)); err != nil {
		s.Logger.Error("failed to delete old claimed periods", "error", err)
	} else {
		s.Logger.Debug("deleted old claimed periods")
		totalDeleted++
	}

	// Clean expired device-trust grants
	if err := s.Store.TrustedDevices().DeleteExpiredTrustedDevices(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired trusted devices", "error", err)
	} else {
		s.Logger.Debug("deleted expired trusted devices")
		totalDeleted++
	}

	s.Logger.Info("housekeeping cleanup completed", "successful_cleanups", totalDeleted)
}
