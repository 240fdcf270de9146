package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type oneTimeTokensRepo struct {
	c conn
}

func (r *oneTimeTokensRepo) CreateOneTimeToken(ctx context.Context, t domain.OneTimeToken) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO one_time_tokens (id, user_id, purpose, token_hash, expires_at, consumed_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, string(t.Purpose), t.TokenHash, millis(t.ExpiresAt), nullMillis(t.ConsumedAt), millis(t.CreatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *oneTimeTokensRepo) GetOneTimeTokenByHash(ctx context.Context, purpose domain.TokenPurpose, hash string) (domain.OneTimeToken, error) {
	var (
		t                    domain.OneTimeToken
		p                    string
		consumedAt           sql.NullInt64
		expiresAt, createdAt int64
	)
	err := r.c.queryRow(ctx,
		`SELECT id, user_id, purpose, token_hash, expires_at, consumed_at, created_at
		 FROM one_time_tokens WHERE purpose = ? AND token_hash = ?`, string(purpose), hash).
		Scan(&t.ID, &t.UserID, &p, &t.TokenHash, &expiresAt, &consumedAt, &createdAt)
	if err != nil {
		return domain.OneTimeToken{}, mapNotFound(err)
	}
	t.Purpose = domain.TokenPurpose(p)
	t.ExpiresAt = fromMillis(expiresAt)
	t.ConsumedAt = fromNullMillis(consumedAt)
	t.CreatedAt = fromMillis(createdAt)
	return t, nil
}

func (r *oneTimeTokensRepo) ConsumeOneTimeToken(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.c.execConditional(ctx,
		`UPDATE one_time_tokens SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`, millis(at), id)
}

func (r *oneTimeTokensRepo) ConsumeUserOneTimeTokens(ctx context.Context, userID string, purpose domain.TokenPurpose, at time.Time) (int64, error) {
	return r.c.execCount(ctx,
		`UPDATE one_time_tokens SET consumed_at = ?
		 WHERE user_id = ? AND purpose = ? AND consumed_at IS NULL`, millis(at), userID, string(purpose))
}

func (r *oneTimeTokensRepo) DeleteExpiredOneTimeTokens(ctx context.Context, before time.Time) (int64, error) {
	return r.c.execCount(ctx, `DELETE FROM one_time_tokens WHERE expires_at < ?`, millis(before))
}
