package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type signingKeysRepo struct {
	c conn
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO signing_keys (id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		key.ID, key.Kid, key.Algorithm, key.PrivateKeyEncrypted, millis(key.CreatedAt),
		nullMillis(key.RetiredAt), millis(key.ExpiresAt))
	return r.c.d.mapWriteError(err)
}

func (r *signingKeysRepo) ListVerificationKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	rows, err := r.c.query(ctx,
		`SELECT id, kid, algorithm, private_key_encrypted, created_at, retired_at, expires_at
		 FROM signing_keys WHERE expires_at > ? ORDER BY created_at DESC, id DESC`, millis(now))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SigningKey
	for rows.Next() {
		var (
			key                  domain.SigningKey
			retiredAt            sql.NullInt64
			createdAt, expiresAt int64
		)
		if err := rows.Scan(&key.ID, &key.Kid, &key.Algorithm, &key.PrivateKeyEncrypted,
			&createdAt, &retiredAt, &expiresAt); err != nil {
			return nil, err
		}
		key.CreatedAt = fromMillis(createdAt)
		key.RetiredAt = fromNullMillis(retiredAt)
		key.ExpiresAt = fromMillis(expiresAt)
		out = append(out, key)
	}
	return out, rows.Err()
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	return r.c.execCount(ctx, `DELETE FROM signing_keys WHERE expires_at <= ?`, millis(now))
}
