package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
	"github.com/caseloop/twofactor/internal/twofactor/store"
	"github.com/caseloop/twofactor/pkg/cryptox"
	"github.com/caseloop/twofactor/pkg/idx"
)

const (
	// DefaultTrustTTL is how long a device-trust grant lives before the
	// second factor is required again.
	DefaultTrustTTL = 30 * 24 * time.Hour

	// DefaultRotateAfter is the grant age past which a successful check
	// also rotates the token.
	DefaultRotateAfter = 7 * 24 * time.Hour
)

// TrustGrant is a freshly issued device-trust token with its row. The raw
// token appears here and nowhere else.
type TrustGrant struct {
	Token   string
	Device  domain.TrustedDevice
	Expires time.Time
}

// DeviceTrustService manages "remember this browser" grants. Tokens are
// bearer credentials stored only as fingerprints; every check re-reads the
// user's settings so a disabled enrollment invalidates all grants at once.
type DeviceTrustService struct {
	Store       store.Store
	TrustTTL    time.Duration
	RotateAfter time.Duration
}

func (s *DeviceTrustService) trustTTL() time.Duration {
	if s.TrustTTL > 0 {
		return s.TrustTTL
	}
	return DefaultTrustTTL
}

func (s *DeviceTrustService) rotateAfter() time.Duration {
	if s.RotateAfter > 0 {
		return s.RotateAfter
	}
	return DefaultRotateAfter
}

// Trust creates a grant for the user, typically right after a successful
// verification. The caller supplies a display name and the request's client
// metadata.
func (s *DeviceTrustService) Trust(ctx context.Context, userID, name, ip, userAgent string) (TrustGrant, error) {
	settings, err := s.Store.Settings().GetSettings(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TrustGrant{}, ErrNotEnrolled
		}
		return TrustGrant{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if !settings.Enabled {
		return TrustGrant{}, ErrNotEnrolled
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return TrustGrant{}, fmt.Errorf("failed to generate trust token: %w", err)
	}

	now := time.Now()
	device := domain.TrustedDevice{
		ID:            string(idx.New()),
		UserID:        userID,
		TokenHash:     cryptox.FingerprintToken(token),
		Fingerprint:   cryptox.FingerprintToken(userAgent),
		Name:          name,
		FirstIP:       ip,
		LastIP:        ip,
		LastUserAgent: userAgent,
		CreatedAt:     now,
		LastSeenAt:    now,
		ExpiresAt:     now.Add(s.trustTTL()),
	}
	if err := s.Store.TrustedDevices().CreateTrustedDevice(ctx, device); err != nil {
		return TrustGrant{}, fmt.Errorf("failed to store trusted device: %w", err)
	}
	return TrustGrant{Token: token, Device: device, Expires: device.ExpiresAt}, nil
}

// Check resolves a presented trust token. A valid result means the second
// factor may be skipped for this login. NeedsRotation signals the caller to
// follow up with Rotate and re-issue the cookie.
func (s *DeviceTrustService) Check(ctx context.Context, token, ip, userAgent string) (domain.DeviceCheck, error) {
	device, err := s.Store.TrustedDevices().GetTrustedDeviceByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.DeviceCheck{}, ErrDeviceNotFound
		}
		return domain.DeviceCheck{}, fmt.Errorf("failed to load trusted device: %w", err)
	}

	now := time.Now()
	if device.Revoked {
		return domain.DeviceCheck{Device: &device}, ErrDeviceRevoked
	}
	if !now.Before(device.ExpiresAt) {
		return domain.DeviceCheck{Device: &device}, ErrDeviceExpired
	}

	// The grant only means anything while 2FA is on. If it was turned off
	// since issuance, retire the grant instead of honouring it.
	settings, err := s.Store.Settings().GetSettings(ctx, device.UserID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.DeviceCheck{}, fmt.Errorf("failed to load settings: %w", err)
	}
	if err != nil || !settings.Enabled {
		if rerr := s.Store.TrustedDevices().RevokeTrustedDevice(ctx, device.ID, domain.RevokeReasonDisabled); rerr != nil {
			return domain.DeviceCheck{}, fmt.Errorf("failed to revoke stale grant: %w", rerr)
		}
		return domain.DeviceCheck{Device: &device}, ErrDeviceRevoked
	}

	if err := s.Store.TrustedDevices().TouchTrustedDevice(ctx, device.ID, now, ip, userAgent); err != nil {
		return domain.DeviceCheck{}, fmt.Errorf("failed to touch trusted device: %w", err)
	}
	device.LastSeenAt = now
	device.LastIP = ip
	device.LastUserAgent = userAgent

	return domain.DeviceCheck{
		Valid:         true,
		NeedsRotation: now.Sub(device.CreatedAt) >= s.rotateAfter(),
		Device:        &device,
	}, nil
}

// Rotate replaces a grant's token: the old row is revoked and a new one
// created in the same transaction, preserving the grant's identity metadata.
// The returned token supersedes the old one immediately.
func (s *DeviceTrustService) Rotate(ctx context.Context, token, ip, userAgent string) (TrustGrant, error) {
	old, err := s.Store.TrustedDevices().GetTrustedDeviceByHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TrustGrant{}, ErrDeviceNotFound
		}
		return TrustGrant{}, fmt.Errorf("failed to load trusted device: %w", err)
	}

	now := time.Now()
	if old.Revoked {
		return TrustGrant{}, ErrDeviceRevoked
	}
	if !old.Live(now) {
		return TrustGrant{}, ErrDeviceExpired
	}

	newToken, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return TrustGrant{}, fmt.Errorf("failed to generate trust token: %w", err)
	}

	replacement := domain.TrustedDevice{
		ID:            string(idx.New()),
		UserID:        old.UserID,
		TokenHash:     cryptox.FingerprintToken(newToken),
		Fingerprint:   cryptox.FingerprintToken(userAgent),
		Name:          old.Name,
		FirstIP:       old.FirstIP,
		LastIP:        ip,
		LastUserAgent: userAgent,
		CreatedAt:     now,
		LastSeenAt:    now,
		ExpiresAt:     now.Add(s.trustTTL()),
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.TrustedDevices().RevokeTrustedDevice(ctx, old.ID, domain.RevokeReasonRotated); err != nil {
			return fmt.Errorf("failed to revoke old grant: %w", err)
		}
		if err := tx.TrustedDevices().CreateTrustedDevice(ctx, replacement); err != nil {
			return fmt.Errorf("failed to store replacement grant: %w", err)
		}
		return nil
	})
	if err != nil {
		return TrustGrant{}, err
	}
	return TrustGrant{Token: newToken, Device: replacement, Expires: replacement.ExpiresAt}, nil
}

// List returns the user's live grants, newest first.
func (s *DeviceTrustService) List(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	devices, err := s.Store.TrustedDevices().ListTrustedDevices(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list trusted devices: %w", err)
	}

	now := time.Now()
	live := devices[:0]
	for _, d := range devices {
		if d.Live(now) {
			live = append(live, d)
		}
	}
	return live, nil
}

// Revoke withdraws one grant by id, scoped to its owner. Revoking an already
// revoked grant succeeds.
func (s *DeviceTrustService) Revoke(ctx context.Context, userID, deviceID string) error {
	device, err := s.Store.TrustedDevices().GetTrustedDevice(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrDeviceNotFound
		}
		return fmt.Errorf("failed to load trusted device: %w", err)
	}
	if device.Revoked {
		return nil
	}
	if err := s.Store.TrustedDevices().RevokeTrustedDevice(ctx, device.ID, domain.RevokeReasonUserRequest); err != nil {
		return fmt.Errorf("failed to revoke trusted device: %w", err)
	}
	return nil
}

// RevokeAll withdraws every live grant for the user.
func (s *DeviceTrustService) RevokeAll(ctx context.Context, userID string) error {
	if err := s.Store.TrustedDevices().RevokeAllTrustedDevices(ctx, userID, domain.RevokeReasonUserRequest); err != nil {
		return fmt.Errorf("failed to revoke trusted devices: %w", err)
	}
	return nil
}
