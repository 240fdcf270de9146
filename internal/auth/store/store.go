package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite,
// postgres) implement it. Repositories hang off it as sub-interfaces so a
// Tx-scoped store exposes exactly the same surface, and nobody can open a
// transaction inside a transaction.
//
// Methods documented as conditional update a row only when its guard still
// holds and report whether they did. They are the concurrency control of
// the service: several instances may share one database, so nothing relies
// on in-process locks.
type Store interface {
	Users() Users
	MFAConfigurations() MFAConfigurations
	MFAChallenges() MFAChallenges
	BackupCodes() BackupCodes
	RememberedDevices() RememberedDevices
	RefreshTokens() RefreshTokens
	OneTimeTokens() OneTimeTokens
	AuditEvents() AuditEvents
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx runs fn in a transaction, committing when fn returns nil and
	// rolling back otherwise.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail expects an already normalised address.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser returns ErrAlreadyExists when the email is taken.
	CreateUser(ctx context.Context, u domain.User) error

	UpdatePasswordHash(ctx context.Context, userID, hash string, at time.Time) error
	UpdateStatus(ctx context.Context, userID string, status domain.UserStatus, at time.Time) error

	// MarkEmailVerified sets email_verified_at unless it is already set.
	MarkEmailVerified(ctx context.Context, userID string, at time.Time) error

	TouchLastLogin(ctx context.Context, userID string, at time.Time) error
}

type MFAConfigurations interface {
	GetMFAConfiguration(ctx context.Context, id string) (domain.MFAConfiguration, error)
	GetMFAConfigurationByUser(ctx context.Context, userID string) (domain.MFAConfiguration, error)

	// CreateMFAConfiguration returns ErrAlreadyExists when the user already
	// has one.
	CreateMFAConfiguration(ctx context.Context, c domain.MFAConfiguration) error

	// ActivateMFAConfiguration is conditional on activated_at IS NULL.
	ActivateMFAConfiguration(ctx context.Context, id, secretEncrypted string, at time.Time) (bool, error)
}

type MFAChallenges interface {
	CreateMFAChallenge(ctx context.Context, c domain.MFAChallenge) error
	GetMFAChallenge(ctx context.Context, id string) (domain.MFAChallenge, error)

	// IncrementMFAChallengeAttempts bumps the counter of an unconsumed
	// challenge and returns the new value. ErrNotFound when the challenge is
	// gone or already consumed.
	IncrementMFAChallengeAttempts(ctx context.Context, id string) (int, error)

	// ConsumeMFAChallenge is conditional on consumed_at IS NULL.
	ConsumeMFAChallenge(ctx context.Context, id string, at time.Time) (bool, error)

	DeleteMFAChallenge(ctx context.Context, id string) error

	// DeleteExpiredMFAChallenges is optional housekeeping.
	DeleteExpiredMFAChallenges(ctx context.Context, now time.Time) (int64, error)
}

type BackupCodes interface {
	CreateBackupCode(ctx context.Context, c domain.BackupCode) error
	DeleteBackupCodes(ctx context.Context, configurationID string) error
	ListUnusedBackupCodes(ctx context.Context, configurationID string) ([]domain.BackupCode, error)

	// MarkBackupCodeUsed is conditional on used_at IS NULL.
	MarkBackupCodeUsed(ctx context.Context, id string, at time.Time) (bool, error)
}

type RememberedDevices interface {
	CreateRememberedDevice(ctx context.Context, d domain.RememberedDevice) error
	ListRememberedDevices(ctx context.Context, configurationID string) ([]domain.RememberedDevice, error)
	TouchRememberedDevice(ctx context.Context, id string, at time.Time, client domain.ClientInfo) error

	// DeleteExpiredRememberedDevices prunes one configuration, or every
	// configuration when configurationID is empty.
	DeleteExpiredRememberedDevices(ctx context.Context, configurationID string, now time.Time) (int64, error)
}

type RefreshTokens interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	GetRefreshToken(ctx context.Context, id string) (domain.RefreshToken, error)

	// RevokeRefreshToken is conditional on revoked_at IS NULL. replacedBy
	// may be empty.
	RevokeRefreshToken(ctx context.Context, id string, at time.Time, replacedBy string) (bool, error)

	// RevokeAllUserRefreshTokens revokes every live token of a user.
	RevokeAllUserRefreshTokens(ctx context.Context, userID string, at time.Time) (int64, error)

	// DeleteExpiredRefreshTokens is optional housekeeping.
	DeleteExpiredRefreshTokens(ctx context.Context, before time.Time) (int64, error)
}

type OneTimeTokens interface {
	CreateOneTimeToken(ctx context.Context, t domain.OneTimeToken) error
	GetOneTimeTokenByHash(ctx context.Context, purpose domain.TokenPurpose, hash string) (domain.OneTimeToken, error)

	// ConsumeOneTimeToken is conditional on consumed_at IS NULL.
	ConsumeOneTimeToken(ctx context.Context, id string, at time.Time) (bool, error)

	// ConsumeUserOneTimeTokens consumes every outstanding token of a purpose.
	ConsumeUserOneTimeTokens(ctx context.Context, userID string, purpose domain.TokenPurpose, at time.Time) (int64, error)

	// DeleteExpiredOneTimeTokens is optional housekeeping.
	DeleteExpiredOneTimeTokens(ctx context.Context, before time.Time) (int64, error)
}

type AuditEvents interface {
	CreateAuditEvent(ctx context.Context, e domain.AuditEvent) error

	// ListUserAuditEvents returns the newest events first.
	ListUserAuditEvents(ctx context.Context, userID string, limit int) ([]domain.AuditEvent, error)
}

type SigningKeys interface {
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// ListVerificationKeys returns keys that have not reached expires_at,
	// newest first.
	ListVerificationKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	// DeleteExpiredSigningKeys is optional housekeeping.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}
