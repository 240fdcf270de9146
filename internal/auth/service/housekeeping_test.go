package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/stretchr/testify/require"
)

type countingRefresher struct{ calls int }

func (r *countingRefresher) Refresh(context.Context) (int, error) {
	r.calls++
	return 1, nil
}

func TestHousekeeping_Sweep(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	user, _, cfg := mfaUser(t, env, "sweep@example.com")
	sess, err := env.sessions.Issue(ctx, user, IssueOptions{})
	require.NoError(t, err)
	ch, err := env.challenges.CreateLogin(ctx, user, cfg, false)
	require.NoError(t, err)
	dt, err := env.devices.Create(ctx, cfg.ID, domain.ClientInfo{})
	require.NoError(t, err)

	keys := &countingRefresher{}
	hk := NewHousekeepingService(env.store, slog.New(slog.DiscardHandler), time.Hour)
	hk.Keys = keys
	hk.Now = env.clock.Now

	// nothing has expired yet
	require.Zero(t, hk.Sweep(ctx))
	require.Equal(t, 1, keys.calls)

	env.clock.Advance(DefaultRememberedDeviceTTL + time.Hour)
	require.Positive(t, hk.Sweep(ctx))

	_, err = env.store.RefreshTokens().GetRefreshToken(ctx, refreshID(t, sess.RefreshToken))
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.MFAChallenges().GetMFAChallenge(ctx, ch.ID)
	require.ErrorIs(t, err, store.ErrNotFound)

	devices, err := env.store.RememberedDevices().ListRememberedDevices(ctx, cfg.ID)
	require.NoError(t, err)
	require.Empty(t, devices)

	id, err := env.devices.Validate(ctx, cfg.ID, dt.Token, domain.ClientInfo{})
	require.NoError(t, err)
	require.Empty(t, id)

	// the user and the configuration are untouched
	_, err = env.store.Users().GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	_, err = env.store.MFAConfigurations().GetMFAConfiguration(ctx, cfg.ID)
	require.NoError(t, err)
}

func TestHousekeeping_RetentionKeepsRecentlyExpired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.signup(t, "retention@example.com").Session

	hk := NewHousekeepingService(env.store, slog.New(slog.DiscardHandler), 0)
	require.Equal(t, time.Hour, hk.Interval)
	hk.Now = env.clock.Now
	hk.Retention = 30 * 24 * time.Hour

	env.clock.Advance(DefaultRefreshTokenShortTTL + time.Hour)
	hk.Sweep(ctx)

	_, err := env.store.RefreshTokens().GetRefreshToken(ctx, refreshID(t, sess.RefreshToken))
	require.NoError(t, err)
}

func TestHousekeeping_StartStop(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	keys := &countingRefresher{}

	hk := NewHousekeepingService(env.store, slog.New(slog.DiscardHandler), time.Hour)
	hk.Keys = keys
	hk.Start()
	hk.Stop()

	// the first sweep runs on start
	require.Equal(t, 1, keys.calls)
}
