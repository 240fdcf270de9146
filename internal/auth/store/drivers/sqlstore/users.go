package sqlstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
)

const userColumns = `id, email, status, password_hash, roles, plan, email_verified_at, last_login_at, created_at, updated_at`

type usersRepo struct {
	c conn
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                    domain.User
		status, roles        string
		verified, lastLogin  sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&u.ID, &u.Email, &status, &u.PasswordHash, &roles, &u.Plan,
		&verified, &lastLogin, &createdAt, &updatedAt)
	if err != nil {
		return domain.User{}, mapNotFound(err)
	}
	u.Status = domain.UserStatus(status)
	u.Roles = splitFields(roles)
	u.EmailVerifiedAt = fromNullMillis(verified)
	u.LastLoginAt = fromNullMillis(lastLogin)
	u.CreatedAt = fromMillis(createdAt)
	u.UpdatedAt = fromMillis(updatedAt)
	return u, nil
}

func (r *usersRepo) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	return scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id))
}

func (r *usersRepo) GetUserByEmail(ctx context.Context, email string) (domain.User, error) {
	return scanUser(r.c.queryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (r *usersRepo) CreateUser(ctx context.Context, u domain.User) error {
	_, err := r.c.exec(ctx, `INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Email, string(u.Status), u.PasswordHash, joinFields(u.Roles), u.Plan,
		nullMillis(u.EmailVerifiedAt), nullMillis(u.LastLoginAt), millis(u.CreatedAt), millis(u.UpdatedAt))
	return r.c.d.mapWriteError(err)
}

func (r *usersRepo) UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`, hash, millis(at), userID)
}

func (r *usersRepo) UpdateStatus(ctx context.Context, userID string, status domain.UserStatus, at time.Time) error {
	return r.update(ctx, `UPDATE users SET status = ?, updated_at = ? WHERE id = ?`, string(status), millis(at), userID)
}

func (r *usersRepo) MarkEmailVerified(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx,
		`UPDATE users SET email_verified_at = COALESCE(email_verified_at, ?), updated_at = ? WHERE id = ?`,
		millis(at), millis(at), userID)
}

func (r *usersRepo) TouchLastLogin(ctx context.Context, userID string, at time.Time) error {
	return r.update(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, millis(at), userID)
}

func (r *usersRepo) update(ctx context.Context, query string, args ...any) error {
	ok, err := r.c.execConditional(ctx, query, args...)
	if err != nil {
		return err
	}
	if !ok {
		return store.ErrNotFound
	}
	return nil
}
