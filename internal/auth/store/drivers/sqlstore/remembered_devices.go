package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type rememberedDevicesRepo struct {
	c conn
}

func (r *rememberedDevicesRepo) CreateRememberedDevice(ctx context.Context, d domain.RememberedDevice) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO remembered_devices
		 (id, configuration_id, token_hash, expires_at, last_used_at, last_ip, last_user_agent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.ConfigurationID, d.TokenHash, millis(d.ExpiresAt), nullMillis(d.LastUsedAt),
		d.LastIP, d.LastUserAgent, millis(d.CreatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *rememberedDevicesRepo) ListRememberedDevices(ctx context.Context, configurationID string) ([]domain.RememberedDevice, error) {
	rows, err := r.c.query(ctx,
		`SELECT id, configuration_id, token_hash, expires_at, last_used_at, last_ip, last_user_agent, created_at
		 FROM remembered_devices WHERE configuration_id = ? ORDER BY created_at DESC`, configurationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.RememberedDevice
	for rows.Next() {
		var (
			d                    domain.RememberedDevice
			lastUsed             sql.NullInt64
			expiresAt, createdAt int64
		)
		if err := rows.Scan(&d.ID, &d.ConfigurationID, &d.TokenHash, &expiresAt, &lastUsed,
			&d.LastIP, &d.LastUserAgent, &createdAt); err != nil {
			return nil, err
		}
		d.ExpiresAt = fromMillis(expiresAt)
		d.LastUsedAt = fromNullMillis(lastUsed)
		d.CreatedAt = fromMillis(createdAt)
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *rememberedDevicesRepo) TouchRememberedDevice(ctx context.Context, id string, at time.Time, client domain.ClientInfo) error {
	_, err := r.c.exec(ctx,
		`UPDATE remembered_devices SET last_used_at = ?, last_ip = ?, last_user_agent = ? WHERE id = ?`,
		millis(at), client.IP, client.UserAgent, id)
	return err
}

func (r *rememberedDevicesRepo) DeleteExpiredRememberedDevices(ctx context.Context, configurationID string, now time.Time) (int64, error) {
	if configurationID == "" {
		return r.c.execCount(ctx, `DELETE FROM remembered_devices WHERE expires_at <= ?`, millis(now))
	}
	return r.c.execCount(ctx,
		`DELETE FROM remembered_devices WHERE configuration_id = ? AND expires_at <= ?`, configurationID, millis(now))
}
