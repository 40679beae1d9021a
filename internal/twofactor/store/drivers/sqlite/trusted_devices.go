package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/caseloop/twofactor/internal/twofactor/domain"
)

type trustedDevicesRepo struct {
	db dbtx
}

func (r *trustedDevicesRepo) CreateTrustedDevice(ctx context.Context, d domain.TrustedDevice) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO trusted_devices (
			id, user_id, token_hash, fingerprint, name,
			first_ip, last_ip, last_user_agent,
			created_at, last_seen_at, expires_at, revoked
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		d.ID, d.UserID, d.TokenHash, d.Fingerprint, d.Name,
		d.FirstIP, d.LastIP, d.LastUserAgent,
		d.CreatedAt.UTC(), d.LastSeenAt.UTC(), d.ExpiresAt.UTC())
	return mapConstraint(err)
}

const trustedDeviceColumns = `
	id, user_id, token_hash, fingerprint, name,
	first_ip, last_ip, last_user_agent,
	created_at, last_seen_at, expires_at, revoked, revoke_reason`

func scanTrustedDevice(row interface{ Scan(...any) error }) (domain.TrustedDevice, error) {
	var (
		d      domain.TrustedDevice
		reason sql.NullString
	)
	err := row.Scan(
		&d.ID, &d.UserID, &d.TokenHash, &d.Fingerprint, &d.Name,
		&d.FirstIP, &d.LastIP, &d.LastUserAgent,
		&d.CreatedAt, &d.LastSeenAt, &d.ExpiresAt, &d.Revoked, &reason)
	if err != nil {
		return domain.TrustedDevice{}, err
	}
	d.RevokeReason = mapNullStringPtr(reason)
	return d, nil
}

func (r *trustedDevicesRepo) GetTrustedDeviceByHash(ctx context.Context, tokenHash string) (domain.TrustedDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+trustedDeviceColumns+`
		FROM trusted_devices
		WHERE token_hash = ?`, tokenHash)

	d, err := scanTrustedDevice(row)
	if err != nil {
		return domain.TrustedDevice{}, mapNotFound(err)
	}
	return d, nil
}

func (r *trustedDevicesRepo) GetTrustedDevice(ctx context.Context, userID, deviceID string) (domain.TrustedDevice, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+trustedDeviceColumns+`
		FROM trusted_devices
		WHERE id = ? AND user_id = ?`, deviceID, userID)

	d, err := scanTrustedDevice(row)
	if err != nil {
		return domain.TrustedDevice{}, mapNotFound(err)
	}
	return d, nil
}

func (r *trustedDevicesRepo) ListTrustedDevices(ctx context.Context, userID string) ([]domain.TrustedDevice, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+trustedDeviceColumns+`
		FROM trusted_devices
		WHERE user_id = ? AND revoked = 0
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var devices []domain.TrustedDevice
	for rows.Next() {
		d, err := scanTrustedDevice(rows)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, rows.Err()
}

func (r *trustedDevicesRepo) TouchTrustedDevice(ctx context.Context, id string, seenAt time.Time, ip, userAgent string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE trusted_devices
		SET last_seen_at = ?, last_ip = ?, last_user_agent = ?
		WHERE id = ?`, seenAt.UTC(), ip, userAgent, id)
	return err
}

func (r *trustedDevicesRepo) RevokeTrustedDevice(ctx context.Context, id string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE trusted_devices
		SET revoked = 1, revoke_reason = ?
		WHERE id = ? AND revoked = 0`, reason, id)
	return err
}

func (r *trustedDevicesRepo) RevokeAllTrustedDevices(ctx context.Context, userID string, reason string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE trusted_devices
		SET revoked = 1, revoke_reason = ?
		WHERE user_id = ? AND revoked = 0`, reason, userID)
	return err
}

func (r *trustedDevicesRepo) DeleteExpiredTrustedDevices(ctx context.Context, before time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM trusted_devices WHERE expires_at < ?`, before.UTC())
	return err
}
