package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

const mfaConfigurationColumns = `id, user_id, method, secret_encrypted, activated_at, created_at, updated_at`

type mfaConfigurationsRepo struct {
	c conn
}

func scanMFAConfiguration(row scanner) (domain.MFAConfiguration, error) {
	var (
		cfg                  domain.MFAConfiguration
		secret               sql.NullString
		activatedAt          sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&cfg.ID, &cfg.UserID, &cfg.Method, &secret, &activatedAt, &createdAt, &updatedAt); err != nil {
		return domain.MFAConfiguration{}, mapNotFound(err)
	}
	cfg.SecretEncrypted = secret.String
	cfg.ActivatedAt = fromNullMillis(activatedAt)
	cfg.CreatedAt = fromMillis(createdAt)
	cfg.UpdatedAt = fromMillis(updatedAt)
	return cfg, nil
}

func (r *mfaConfigurationsRepo) GetMFAConfiguration(ctx context.Context, id string) (domain.MFAConfiguration, error) {
	return scanMFAConfiguration(r.c.queryRow(ctx,
		`SELECT `+mfaConfigurationColumns+` FROM mfa_configurations WHERE id = ?`, id))
}

func (r *mfaConfigurationsRepo) GetMFAConfigurationByUser(ctx context.Context, userID string) (domain.MFAConfiguration, error) {
	return scanMFAConfiguration(r.c.queryRow(ctx,
		`SELECT `+mfaConfigurationColumns+` FROM mfa_configurations WHERE user_id = ?`, userID))
}

func (r *mfaConfigurationsRepo) CreateMFAConfiguration(ctx context.Context, cfg domain.MFAConfiguration) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO mfa_configurations (`+mfaConfigurationColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		cfg.ID, cfg.UserID, cfg.Method, nullString(cfg.SecretEncrypted), nullMillis(cfg.ActivatedAt),
		millis(cfg.CreatedAt), millis(cfg.UpdatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *mfaConfigurationsRepo) ActivateMFAConfiguration(ctx context.Context, id, secretEncrypted string, at time.Time) (bool, error) {
	return r.c.execConditional(ctx,
		`UPDATE mfa_configurations SET secret_encrypted = ?, activated_at = ?, updated_at = ?
		 WHERE id = ? AND activated_at IS NULL`,
		secretEncrypted, millis(at), millis(at), id)
}
