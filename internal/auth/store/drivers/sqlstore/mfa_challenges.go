package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

const mfaChallengeColumns = `id, user_id, type, configuration_id, secret_encrypted, context, attempts, expires_at, consumed_at, created_at`

type mfaChallengesRepo struct {
	c conn
}

func (r *mfaChallengesRepo) CreateMFAChallenge(ctx context.Context, ch domain.MFAChallenge) error {
	raw, err := domain.EncodeChallengeContext(ch.Context)
	if err != nil {
		return err
	}
	_, err = r.c.exec(ctx,
		`INSERT INTO mfa_challenges (`+mfaChallengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.UserID, string(ch.Type), nullString(ch.ConfigurationID), nullString(ch.SecretEncrypted),
		raw, ch.Attempts, millis(ch.ExpiresAt), nullMillis(ch.ConsumedAt), millis(ch.CreatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *mfaChallengesRepo) GetMFAChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	var (
		ch                   domain.MFAChallenge
		typ, raw             string
		cfgID, secret        sql.NullString
		consumedAt           sql.NullInt64
		expiresAt, createdAt int64
	)
	err := r.c.queryRow(ctx, `SELECT `+mfaChallengeColumns+` FROM mfa_challenges WHERE id = ?`, id).
		Scan(&ch.ID, &ch.UserID, &typ, &cfgID, &secret, &raw, &ch.Attempts, &expiresAt, &consumedAt, &createdAt)
	if err != nil {
		return domain.MFAChallenge{}, mapNotFound(err)
	}

	ch.Type = domain.ChallengeType(typ)
	ch.Context, err = domain.DecodeChallengeContext(ch.Type, raw)
	if err != nil {
		return domain.MFAChallenge{}, err
	}
	ch.ConfigurationID = cfgID.String
	ch.SecretEncrypted = secret.String
	ch.ExpiresAt = fromMillis(expiresAt)
	ch.ConsumedAt = fromNullMillis(consumedAt)
	ch.CreatedAt = fromMillis(createdAt)
	return ch, nil
}

func (r *mfaChallengesRepo) IncrementMFAChallengeAttempts(ctx context.Context, id string) (int, error) {
	var attempts int
	err := r.c.queryRow(ctx,
		`UPDATE mfa_challenges SET attempts = attempts + 1
		 WHERE id = ? AND consumed_at IS NULL
		 RETURNING attempts`, id).Scan(&attempts)
	if err != nil {
		return 0, mapNotFound(err)
	}
	return attempts, nil
}

func (r *mfaChallengesRepo) ConsumeMFAChallenge(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.c.execConditional(ctx,
		`UPDATE mfa_challenges SET consumed_at = ? WHERE id = ? AND consumed_at IS NULL`, millis(at), id)
}

func (r *mfaChallengesRepo) DeleteMFAChallenge(ctx context.Context, id string) error {
	_, err := r.c.exec(ctx, `DELETE FROM mfa_challenges WHERE id = ?`, id)
	return err
}

func (r *mfaChallengesRepo) DeleteExpiredMFAChallenges(ctx context.Context, now time.Time) (int64, error) {
	return r.c.execCount(ctx, `DELETE FROM mfa_challenges WHERE expires_at < ?`, millis(now))
}
