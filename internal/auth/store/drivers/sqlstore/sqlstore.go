// Package sqlstore implements the store repositories on database/sql. The
// sqlite and postgres drivers wrap it with their connection setup and
// migrations; queries are written once with '?' placeholders and rebound
// per dialect.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/aussiebroadwan/purse/internal/auth/store"
)

// DBTX is the subset of database/sql used by the repos.
// Both *sql.DB and *sql.Tx satisfy this interface.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect captures what differs between drivers.
type Dialect struct {
	Name string

	// NumberedPlaceholders rewrites '?' to $1, $2, ... (postgres).
	NumberedPlaceholders bool

	// IsUniqueViolation reports whether err is a unique constraint failure.
	IsUniqueViolation func(err error) bool
}

func (d Dialect) rebind(query string) string {
	if !d.NumberedPlaceholders {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (d Dialect) mapWriteError(err error) error {
	if err != nil && d.IsUniqueViolation != nil && d.IsUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return err
}

// conn binds a DBTX to its dialect.
type conn struct {
	db DBTX
	d  Dialect
}

func (c conn) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.db.ExecContext(ctx, c.d.rebind(query), args...)
}

func (c conn) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.db.QueryContext(ctx, c.d.rebind(query), args...)
}

func (c conn) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return c.db.QueryRowContext(ctx, c.d.rebind(query), args...)
}

// execConditional runs a guarded UPDATE and reports whether it matched.
func (c conn) execConditional(ctx context.Context, query string, args ...any) (bool, error) {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (c conn) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := c.exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DB is the non-transactional store. Drivers embed it and add
// ApplyMigrations.
type DB struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB, dialect Dialect) *DB {
	return &DB{db: db, dialect: dialect}
}

// Conn exposes the pool for migrations and health checks.
func (s *DB) Conn() *sql.DB { return s.db }

func (s *DB) Close() error { return s.db.Close() }

// Ping verifies the database connection is still alive.
func (s *DB) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx starts a read/write transaction and returns a Tx-scoped Store.
func (s *DB) Tx(ctx context.Context) (store.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return newTx(tx, s.dialect), nil
}

// WithTx executes fn within a transaction, automatically handling commit/rollback.
func (s *DB) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	tx, err := s.Tx(ctx)
	if err != nil {
		return err
	}

	// Ensure rollback is called if we panic or return early with error
	defer func() {
		_ = tx.Rollback() // safe to call even after commit
	}()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *DB) c() conn { return conn{db: s.db, d: s.dialect} }

func (s *DB) Users() store.Users                         { return &usersRepo{c: s.c()} }
func (s *DB) MFAConfigurations() store.MFAConfigurations { return &mfaConfigurationsRepo{c: s.c()} }
func (s *DB) MFAChallenges() store.MFAChallenges         { return &mfaChallengesRepo{c: s.c()} }
func (s *DB) BackupCodes() store.BackupCodes             { return &backupCodesRepo{c: s.c()} }
func (s *DB) RememberedDevices() store.RememberedDevices { return &rememberedDevicesRepo{c: s.c()} }
func (s *DB) RefreshTokens() store.RefreshTokens         { return &refreshTokensRepo{c: s.c()} }
func (s *DB) OneTimeTokens() store.OneTimeTokens         { return &oneTimeTokensRepo{c: s.c()} }
func (s *DB) AuditEvents() store.AuditEvents             { return &auditEventsRepo{c: s.c()} }
func (s *DB) SigningKeys() store.SigningKeys             { return &signingKeysRepo{c: s.c()} }

var (
	_ store.Tx = (*txStore)(nil)

	_ store.Users             = (*usersRepo)(nil)
	_ store.MFAConfigurations = (*mfaConfigurationsRepo)(nil)
	_ store.MFAChallenges     = (*mfaChallengesRepo)(nil)
	_ store.BackupCodes       = (*backupCodesRepo)(nil)
	_ store.RememberedDevices = (*rememberedDevicesRepo)(nil)
	_ store.RefreshTokens     = (*refreshTokensRepo)(nil)
	_ store.OneTimeTokens     = (*oneTimeTokensRepo)(nil)
	_ store.AuditEvents       = (*auditEventsRepo)(nil)
	_ store.SigningKeys       = (*signingKeysRepo)(nil)
)

func mapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	return err
}
