package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type refreshTokensRepo struct {
	c conn
}

func (r *refreshTokensRepo) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO refresh_tokens
		 (id, user_id, secret_hash, remember_me, amr, expires_at, revoked_at, replaced_by_token_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.SecretHash, t.RememberMe, joinFields(t.AMR), millis(t.ExpiresAt),
		nullMillis(t.RevokedAt), nullString(t.ReplacedByTokenID), millis(t.CreatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *refreshTokensRepo) GetRefreshToken(ctx context.Context, id string) (domain.RefreshToken, error) {
	var (
		t                    domain.RefreshToken
		amr                  string
		revokedAt            sql.NullInt64
		replacedBy           sql.NullString
		expiresAt, createdAt int64
	)
	err := r.c.queryRow(ctx,
		`SELECT id, user_id, secret_hash, remember_me, amr, expires_at, revoked_at, replaced_by_token_id, created_at
		 FROM refresh_tokens WHERE id = ?`, id).
		Scan(&t.ID, &t.UserID, &t.SecretHash, &t.RememberMe, &amr, &expiresAt, &revokedAt, &replacedBy, &createdAt)
	if err != nil {
		return domain.RefreshToken{}, mapNotFound(err)
	}
	t.AMR = splitFields(amr)
	t.ExpiresAt = fromMillis(expiresAt)
	t.RevokedAt = fromNullMillis(revokedAt)
	t.ReplacedByTokenID = replacedBy.String
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *refreshTokensRepo) RevokeRefreshToken(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error) {
	return r.c.execConditional(ctx,
		`UPDATE refresh_tokens SET revoked_at = ?, replaced_by_token_id = ?
		 WHERE id = ? AND revoked_at IS NULL`,
		millis(at), nullString(replacedBy), id)
}

func (r *refreshTokensRepo) RevokeAllUserRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error) {
	return r.c.execCount(ctx,
		`UPDATE refresh_tokens SET revoked_at = ? WHERE user_id = ? AND revoked_at IS NULL`, millis(at), userID)
}

func (r *refreshTokensRepo) DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error) {
	return r.c.execCount(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, millis(before))
}
