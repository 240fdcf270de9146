// Package storetest is the conformance suite every store driver runs. The
// conditional-update tests are what the service's concurrency guarantees
// rest on.
package storetest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// Factory returns an empty, migrated store. The suite closes nothing; the
// factory registers its own cleanup.
type Factory func(t *testing.T) store.Store

// Run executes the whole suite against stores made by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("MFAConfigurations", func(t *testing.T) { testMFAConfigurations(t, newStore(t)) })
	t.Run("MFAChallenges", func(t *testing.T) { testMFAChallenges(t, newStore(t)) })
	t.Run("ConcurrentChallengeConsume", func(t *testing.T) { testConcurrentChallengeConsume(t, newStore(t)) })
	t.Run("BackupCodes", func(t *testing.T) { testBackupCodes(t, newStore(t)) })
	t.Run("RememberedDevices", func(t *testing.T) { testRememberedDevices(t, newStore(t)) })
	t.Run("RefreshTokens", func(t *testing.T) { testRefreshTokens(t, newStore(t)) })
	t.Run("ConcurrentRefreshRevoke", func(t *testing.T) { testConcurrentRefreshRevoke(t, newStore(t)) })
	t.Run("OneTimeTokens", func(t *testing.T) { testOneTimeTokens(t, newStore(t)) })
	t.Run("AuditEvents", func(t *testing.T) { testAuditEvents(t, newStore(t)) })
	t.Run("SigningKeys", func(t *testing.T) { testSigningKeys(t, newStore(t)) })
	t.Run("WithTxRollback", func(t *testing.T) { testWithTxRollback(t, newStore(t)) })
}

func now() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

func newUser(t *testing.T, s store.Store, email string) domain.User {
	t.Helper()
	at := now()
	u := domain.User{
		ID:           idx.New().String(),
		Email:        email,
		Status:       domain.UserStatusActive,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		Roles:        []string{"user"},
		Plan:         domain.PlanFree,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func newConfiguration(t *testing.T, s store.Store, userID string) domain.MFAConfiguration {
	t.Helper()
	at := now()
	cfg := domain.MFAConfiguration{
		ID:        idx.New().String(),
		UserID:    userID,
		Method:    domain.MFAMethodTOTP,
		CreatedAt: at,
		UpdatedAt: at,
	}
	require.NoError(t, s.MFAConfigurations().CreateMFAConfiguration(context.Background(), cfg))
	return cfg
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "a@x.com")

	got, err := s.Users().GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	require.Equal(t, u, got)

	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, u.Email, got.Email)
	require.Nil(t, got.EmailVerifiedAt)

	_, err = s.Users().GetUserByEmail(ctx, "nobody@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	dup := u
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.Users().CreateUser(ctx, dup), store.ErrAlreadyExists)

	first := now()
	require.NoError(t, s.Users().MarkEmailVerified(ctx, u.ID, first))
	require.NoError(t, s.Users().MarkEmailVerified(ctx, u.ID, first.Add(time.Hour)))
	require.NoError(t, s.Users().UpdatePasswordHash(ctx, u.ID, "new-hash", first))
	require.NoError(t, s.Users().UpdateStatus(ctx, u.ID, domain.UserStatusSuspended, first))
	require.NoError(t, s.Users().TouchLastLogin(ctx, u.ID, first))

	got, err = s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EmailVerifiedAt)
	require.True(t, got.EmailVerifiedAt.Equal(first), "first verification wins")
	require.Equal(t, "new-hash", got.PasswordHash)
	require.True(t, got.IsSuspended())
	require.NotNil(t, got.LastLoginAt)

	require.ErrorIs(t, s.Users().UpdatePasswordHash(ctx, "missing", "h", first), store.ErrNotFound)
}

func testMFAConfigurations(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "mfa@x.com")
	cfg := newConfiguration(t, s, u.ID)

	got, err := s.MFAConfigurations().GetMFAConfigurationByUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, cfg.ID, got.ID)
	require.False(t, got.IsActive())
	require.Empty(t, got.SecretEncrypted)

	second := cfg
	second.ID = idx.New().String()
	require.ErrorIs(t, s.MFAConfigurations().CreateMFAConfiguration(ctx, second), store.ErrAlreadyExists)

	ok, err := s.MFAConfigurations().ActivateMFAConfiguration(ctx, cfg.ID, "sealed", now())
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.MFAConfigurations().ActivateMFAConfiguration(ctx, cfg.ID, "other", now())
	require.NoError(t, err)
	require.False(t, ok, "activation is one-shot")

	got, err = s.MFAConfigurations().GetMFAConfiguration(ctx, cfg.ID)
	require.NoError(t, err)
	require.True(t, got.IsActive())
	require.Equal(t, "sealed", got.SecretEncrypted)
}

func newChallenge(t *testing.T, s store.Store, userID, cfgID string, ttl time.Duration) domain.MFAChallenge {
	t.Helper()
	at := now()
	ch := domain.MFAChallenge{
		ID:              idx.New().String(),
		UserID:          userID,
		Type:            domain.ChallengeLogin,
		ConfigurationID: cfgID,
		Context:         domain.LoginContext{RememberMe: true},
		ExpiresAt:       at.Add(ttl),
		CreatedAt:       at,
	}
	require.NoError(t, s.MFAChallenges().CreateMFAChallenge(context.Background(), ch))
	return ch
}

func testMFAChallenges(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "challenge@x.com")
	cfg := newConfiguration(t, s, u.ID)
	ch := newChallenge(t, s, u.ID, cfg.ID, 5*time.Minute)

	got, err := s.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.NoError(t, err)
	require.Equal(t, ch, got)

	for want := 1; want <= 3; want++ {
		n, err := s.MFAChallenges().IncrementMFAChallengeAttempts(ctx, ch.ID)
		require.NoError(t, err)
		require.Equal(t, want, n)
	}

	ok, err := s.MFAChallenges().ConsumeMFAChallenge(ctx, ch.ID, now())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.MFAChallenges().ConsumeMFAChallenge(ctx, ch.ID, now())
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.MFAChallenges().IncrementMFAChallengeAttempts(ctx, ch.ID)
	require.ErrorIs(t, err, store.ErrNotFound, "consumed challenges take no more attempts")

	require.NoError(t, s.MFAChallenges().DeleteMFAChallenge(ctx, ch.ID))
	_, err = s.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	// Setup challenges carry a pending secret and no configuration link.
	setup := domain.MFAChallenge{
		ID:              idx.New().String(),
		UserID:          u.ID,
		Type:            domain.ChallengeSetup,
		SecretEncrypted: "pending",
		Context:         domain.SetupContext{},
		ExpiresAt:       now().Add(-time.Minute),
		CreatedAt:       now(),
	}
	require.NoError(t, s.MFAChallenges().CreateMFAChallenge(ctx, setup))
	got, err = s.MFAChallenges().GetMFAChallenge(ctx, setup.ID)
	require.NoError(t, err)
	require.Equal(t, domain.SetupContext{}, got.Context)
	require.Equal(t, "pending", got.SecretEncrypted)
	require.Empty(t, got.ConfigurationID)

	n, err := s.MFAChallenges().DeleteExpiredMFAChallenges(ctx, now())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func testConcurrentChallengeConsume(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "race@x.com")
	cfg := newConfiguration(t, s, u.ID)
	ch := newChallenge(t, s, u.ID, cfg.ID, 5*time.Minute)

	var wins atomic.Int32
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			ok, err := s.MFAChallenges().ConsumeMFAChallenge(ctx, ch.ID, now())
			if ok {
				wins.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
}

func testBackupCodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "backup@x.com")
	cfg := newConfiguration(t, s, u.ID)

	for _, hash := range []string{"h1", "h2", "h3"} {
		require.NoError(t, s.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID: idx.New().String(), ConfigurationID: cfg.ID, CodeHash: hash, CreatedAt: now(),
		}))
	}
	codes, err := s.BackupCodes().ListUnusedBackupCodes(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, codes, 3)

	ok, err := s.BackupCodes().MarkBackupCodeUsed(ctx, codes[0].ID, now())
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.BackupCodes().MarkBackupCodeUsed(ctx, codes[0].ID, now())
	require.NoError(t, err)
	require.False(t, ok)

	codes, err = s.BackupCodes().ListUnusedBackupCodes(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)

	// Replacing the set in a transaction that fails leaves the old set.
	errBoom := errors.New("boom")
	err = s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteBackupCodes(ctx, cfg.ID); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)
	codes, err = s.BackupCodes().ListUnusedBackupCodes(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)

	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.BackupCodes().DeleteBackupCodes(ctx, cfg.ID); err != nil {
			return err
		}
		return tx.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID: idx.New().String(), ConfigurationID: cfg.ID, CodeHash: "fresh", CreatedAt: now(),
		})
	}))
	codes, err = s.BackupCodes().ListUnusedBackupCodes(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, codes, 1)
	require.Equal(t, "fresh", codes[0].CodeHash)
}

func testRememberedDevices(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "device@x.com")
	cfg := newConfiguration(t, s, u.ID)
	at := now()

	live := domain.RememberedDevice{
		ID: idx.New().String(), ConfigurationID: cfg.ID, TokenHash: "live",
		ExpiresAt: at.Add(time.Hour), LastIP: "10.0.0.1", CreatedAt: at,
	}
	dead := domain.RememberedDevice{
		ID: idx.New().String(), ConfigurationID: cfg.ID, TokenHash: "dead",
		ExpiresAt: at.Add(-time.Hour), CreatedAt: at.Add(-2 * time.Hour),
	}
	require.NoError(t, s.RememberedDevices().CreateRememberedDevice(ctx, live))
	require.NoError(t, s.RememberedDevices().CreateRememberedDevice(ctx, dead))

	require.NoError(t, s.RememberedDevices().TouchRememberedDevice(ctx, live.ID, at,
		domain.ClientInfo{IP: "10.0.0.2", UserAgent: "test/1.0"}))

	n, err := s.RememberedDevices().DeleteExpiredRememberedDevices(ctx, cfg.ID, at)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	devices, err := s.RememberedDevices().ListRememberedDevices(ctx, cfg.ID)
	require.NoError(t, err)
	require.Len(t, devices, 1)
	require.Equal(t, "live", devices[0].TokenHash)
	require.Equal(t, "10.0.0.2", devices[0].LastIP)
	require.Equal(t, "test/1.0", devices[0].LastUserAgent)
	require.NotNil(t, devices[0].LastUsedAt)
}

func newRefreshToken(t *testing.T, s store.Store, userID string, ttl time.Duration) domain.RefreshToken {
	t.Helper()
	at := now()
	rt := domain.RefreshToken{
		ID:         idx.New().String(),
		UserID:     userID,
		SecretHash: "hash-" + idx.New().String(),
		RememberMe: true,
		AMR:        []string{"pwd", "otp"},
		ExpiresAt:  at.Add(ttl),
		CreatedAt:  at,
	}
	require.NoError(t, s.RefreshTokens().CreateRefreshToken(context.Background(), rt))
	return rt
}

func testRefreshTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "refresh@x.com")
	rt := newRefreshToken(t, s, u.ID, time.Hour)

	got, err := s.RefreshTokens().GetRefreshToken(ctx, rt.ID)
	require.NoError(t, err)
	require.Equal(t, rt, got)

	next := newRefreshToken(t, s, u.ID, time.Hour)
	ok, err := s.RefreshTokens().RevokeRefreshToken(ctx, rt.ID, now(), next.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.RefreshTokens().RevokeRefreshToken(ctx, rt.ID, now(), "")
	require.NoError(t, err)
	require.False(t, ok, "revocation is permanent and one-shot")

	got, err = s.RefreshTokens().GetRefreshToken(ctx, rt.ID)
	require.NoError(t, err)
	require.True(t, got.IsRevoked())
	require.Equal(t, next.ID, got.ReplacedByTokenID)

	_ = newRefreshToken(t, s, u.ID, -time.Hour)
	n, err := s.RefreshTokens().RevokeAllUserRefreshTokens(ctx, u.ID, now())
	require.NoError(t, err)
	require.EqualValues(t, 2, n, "only live tokens are counted")

	n, err = s.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now())
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.RefreshTokens().GetRefreshToken(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testConcurrentRefreshRevoke(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "refresh-race@x.com")
	rt := newRefreshToken(t, s, u.ID, time.Hour)

	var wins atomic.Int32
	var g errgroup.Group
	for range 8 {
		g.Go(func() error {
			ok, err := s.RefreshTokens().RevokeRefreshToken(ctx, rt.ID, now(), "")
			if ok {
				wins.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
}

func testOneTimeTokens(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := newUser(t, s, "ott@x.com")
	at := now()

	mk := func(hash string) domain.OneTimeToken {
		tok := domain.OneTimeToken{
			ID: idx.New().String(), UserID: u.ID, Purpose: domain.PurposePasswordReset,
			TokenHash: hash, ExpiresAt: at.Add(time.Hour), CreatedAt: at,
		}
		require.NoError(t, s.OneTimeTokens().CreateOneTimeToken(ctx, tok))
		return tok
	}
	first := mk("first")
	mk("second")

	got, err := s.OneTimeTokens().GetOneTimeTokenByHash(ctx, domain.PurposePasswordReset, "first")
	require.NoError(t, err)
	require.Equal(t, first, got)

	_, err = s.OneTimeTokens().GetOneTimeTokenByHash(ctx, domain.PurposeEmailVerification, "first")
	require.ErrorIs(t, err, store.ErrNotFound, "purpose is part of the lookup")

	ok, err := s.OneTimeTokens().ConsumeOneTimeToken(ctx, first.ID, at)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.OneTimeTokens().ConsumeOneTimeToken(ctx, first.ID, at)
	require.NoError(t, err)
	require.False(t, ok)

	n, err := s.OneTimeTokens().ConsumeUserOneTimeTokens(ctx, u.ID, domain.PurposePasswordReset, at)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = s.OneTimeTokens().DeleteExpiredOneTimeTokens(ctx, at.Add(2*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
}

func testAuditEvents(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()

	for i, action := range []domain.AuditAction{domain.AuditSignup, domain.AuditLogin} {
		require.NoError(t, s.AuditEvents().CreateAuditEvent(ctx, domain.AuditEvent{
			ID:        idx.New().String(),
			Action:    action,
			ActorID:   "user-1",
			UserID:    "user-1",
			IP:        "10.0.0.1",
			Metadata:  map[string]string{"n": string(rune('0' + i))},
			CreatedAt: at.Add(time.Duration(i) * time.Second),
		}))
	}

	events, err := s.AuditEvents().ListUserAuditEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, domain.AuditLogin, events[0].Action, "newest first")
	require.Equal(t, map[string]string{"n": "0"}, events[1].Metadata)
}

func testSigningKeys(t *testing.T, s store.Store) {
	ctx := context.Background()
	at := now()

	live := domain.SigningKey{
		ID: idx.New().String(), Kid: "purse-live", Algorithm: "EdDSA",
		PrivateKeyEncrypted: "sealed", CreatedAt: at, ExpiresAt: at.Add(time.Hour),
	}
	expired := domain.SigningKey{
		ID: idx.New().String(), Kid: "purse-expired", Algorithm: "EdDSA",
		PrivateKeyEncrypted: "sealed", CreatedAt: at.Add(-2 * time.Hour), ExpiresAt: at.Add(-time.Hour),
	}
	require.NoError(t, s.SigningKeys().CreateSigningKey(ctx, live))
	require.NoError(t, s.SigningKeys().CreateSigningKey(ctx, expired))

	dup := live
	dup.ID = idx.New().String()
	require.ErrorIs(t, s.SigningKeys().CreateSigningKey(ctx, dup), store.ErrAlreadyExists)

	keys, err := s.SigningKeys().ListVerificationKeys(ctx, at)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.Equal(t, live, keys[0])

	n, err := s.SigningKeys().DeleteExpiredSigningKeys(ctx, at)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func testWithTxRollback(t *testing.T, s store.Store) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	err := s.WithTx(ctx, func(tx store.Tx) error {
		at := now()
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID: idx.New().String(), Email: "tx@x.com", Status: domain.UserStatusActive,
			PasswordHash: "h", Plan: domain.PlanFree, CreatedAt: at, UpdatedAt: at,
		}); err != nil {
			return err
		}
		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = s.Users().GetUserByEmail(ctx, "tx@x.com")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Transactions do not nest.
	require.NoError(t, s.WithTx(ctx, func(tx store.Tx) error {
		require.Error(t, tx.WithTx(ctx, func(store.Tx) error { return nil }))
		return nil
	}))
}
