package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

type backupCodesRepo struct {
	c conn
}

func (r *backupCodesRepo) CreateBackupCode(ctx context.Context, code domain.BackupCode) error {
	_, err := r.c.exec(ctx,
		`INSERT INTO backup_codes (id, configuration_id, code_hash, used_at, created_at) VALUES (?, ?, ?, ?, ?)`,
		code.ID, code.ConfigurationID, code.CodeHash, nullMillis(code.UsedAt), millis(code.CreatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *backupCodesRepo) DeleteBackupCodes(ctx context.Context, configurationID string) error {
	_, err := r.c.exec(ctx, `DELETE FROM backup_codes WHERE configuration_id = ?`, configurationID)
	return err
}

func (r *backupCodesRepo) ListUnusedBackupCodes(ctx context.Context, configurationID string) ([]domain.BackupCode, error) {
	rows, err := r.c.query(ctx,
		`SELECT id, configuration_id, code_hash, used_at, created_at FROM backup_codes
		 WHERE configuration_id = ? AND used_at IS NULL ORDER BY id`, configurationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.BackupCode
	for rows.Next() {
		var (
			code      domain.BackupCode
			usedAt    sql.NullInt64
			createdAt int64
		)
		if err := rows.Scan(&code.ID, &code.ConfigurationID, &code.CodeHash, &usedAt, &createdAt); err != nil {
			return nil, err
		}
		code.UsedAt = fromNullMillis(usedAt)
		code.CreatedAt = fromMillis(createdAt)
		out = append(out, code)
	}
	return out, rows.Err()
}

func (r *backupCodesRepo) MarkBackupCodeUsed(ctx context.Context, id string, at time.Time) (bool, error) {
	return r.c.execConditional(ctx,
		`UPDATE backup_codes SET used_at = ? WHERE id = ? AND used_at IS NULL`, millis(at), id)
}
