package sqlstore

import (
	"context"
	"database/sql"

	"github.com/aussiebroadwan/purse/internal/auth/store"
)

type txStore struct {
	tx *sql.Tx
	cn conn
}

func newTx(tx *sql.Tx, d Dialect) *txStore {
	return &txStore{tx: tx, cn: conn{db: tx, d: d}}
}

func (t *txStore) Commit() error   { return t.tx.Commit() }
func (t *txStore) Rollback() error { return t.tx.Rollback() }

func (t *txStore) Close() error { return nil } // caller commits or rolls back; the pool stays open

// Ping is a no-op; the transaction already holds a live connection.
func (t *txStore) Ping(ctx context.Context) error {
	return nil
}

func (t *txStore) Tx(ctx context.Context) (store.Tx, error) {
	// Nested tx not supported; could emulate with SAVEPOINT if needed
	return nil, sql.ErrTxDone
}

func (t *txStore) WithTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return sql.ErrTxDone
}

func (t *txStore) ApplyMigrations() error { return nil } // migrations run before any tx

func (t *txStore) Users() store.Users                         { return &usersRepo{c: t.cn} }
func (t *txStore) MFAConfigurations() store.MFAConfigurations { return &mfaConfigurationsRepo{c: t.cn} }
func (t *txStore) MFAChallenges() store.MFAChallenges         { return &mfaChallengesRepo{c: t.cn} }
func (t *txStore) BackupCodes() store.BackupCodes             { return &backupCodesRepo{c: t.cn} }
func (t *txStore) RememberedDevices() store.RememberedDevices { return &rememberedDevicesRepo{c: t.cn} }
func (t *txStore) RefreshTokens() store.RefreshTokens         { return &refreshTokensRepo{c: t.cn} }
func (t *txStore) OneTimeTokens() store.OneTimeTokens         { return &oneTimeTokensRepo{c: t.cn} }
func (t *txStore) AuditEvents() store.AuditEvents             { return &auditEventsRepo{c: t.cn} }
func (t *txStore) SigningKeys() store.SigningKeys             { return &signingKeysRepo{c: t.cn} }
