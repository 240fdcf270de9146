package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func refreshID(t *testing.T, value string) string {
	t.Helper()
	id, _, ok := parseRefreshToken(value)
	require.True(t, ok, "malformed refresh token %q", value)
	return id
}

func TestSessionIssuer_Issue(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "issue@example.com").User

	sess, err := env.sessions.Issue(ctx, user, IssueOptions{AMR: []string{jwtx.AMRPassword}})
	require.NoError(t, err)

	parts := strings.Split(sess.RefreshToken, ".")
	require.Len(t, parts, 3)
	require.Equal(t, "v1", parts[0])

	claims, err := env.keys.Verifier.Verify(sess.AccessToken)
	require.NoError(t, err)
	require.Equal(t, user.ID, claims.Subject)
	require.Equal(t, user.Email, claims.Email)
	require.Equal(t, []string{"user"}, claims.Roles)
	require.Equal(t, domain.PlanFree, claims.Plan)
	require.False(t, claims.EmailVerified)
	require.Equal(t, []string{jwtx.AMRPassword}, claims.AMR)
	require.Equal(t, parts[1], claims.SID)
	require.WithinDuration(t, env.clock.Now().Add(jwtx.DefaultAccessTokenTTL), sess.AccessTokenExpiresAt, 0)

	// only the fingerprint is stored
	rt, err := env.store.RefreshTokens().GetRefreshToken(ctx, parts[1])
	require.NoError(t, err)
	require.NotEqual(t, parts[2], rt.SecretHash)
	require.Equal(t, user.ID, rt.UserID)
}

func TestSessionIssuer_RefreshTTL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		issuer     SessionIssuer
		rememberMe bool
		want       time.Duration
	}{
		{"remember me uses default", SessionIssuer{}, true, DefaultRefreshTokenTTL},
		{"short ceiling without remember me", SessionIssuer{}, false, DefaultRefreshTokenShortTTL},
		{"default shorter than ceiling", SessionIssuer{RefreshTTL: 24 * time.Hour}, false, 24 * time.Hour},
		{"custom ceiling", SessionIssuer{RefreshTTL: 60 * 24 * time.Hour, RefreshShortTTL: 48 * time.Hour}, false, 48 * time.Hour},
		{"custom default with remember me", SessionIssuer{RefreshTTL: 60 * 24 * time.Hour}, true, 60 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.issuer.refreshTTL(tt.rememberMe))
		})
	}
}

func TestSessionIssuer_RefreshRotates(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	first := env.signup(t, "rotate@example.com").Session

	second, err := env.sessions.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	// The presented token is revoked and points at its successor.
	old, err := env.store.RefreshTokens().GetRefreshToken(ctx, refreshID(t, first.RefreshToken))
	require.NoError(t, err)
	require.True(t, old.IsRevoked())
	require.Equal(t, refreshID(t, second.RefreshToken), old.ReplacedByTokenID)

	_, err = env.sessions.Refresh(ctx, first.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)

	// The successor keeps working.
	_, err = env.sessions.Refresh(ctx, second.RefreshToken)
	require.NoError(t, err)
}

func TestSessionIssuer_RefreshCarriesSessionShape(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.signup(t, "shape@example.com").User

	sess, err := env.sessions.Issue(ctx, user, IssueOptions{RememberMe: true, AMR: []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}})
	require.NoError(t, err)

	env.clock.Advance(time.Minute)
	next, err := env.sessions.Refresh(ctx, sess.RefreshToken)
	require.NoError(t, err)
	require.WithinDuration(t, env.clock.Now().Add(DefaultRefreshTokenTTL), next.RefreshTokenExpiresAt, 0)

	rt, err := env.store.RefreshTokens().GetRefreshToken(ctx, refreshID(t, next.RefreshToken))
	require.NoError(t, err)
	require.True(t, rt.RememberMe)
	require.Equal(t, []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}, rt.AMR)
}

func TestSessionIssuer_RefreshRejects(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.signup(t, "malformed@example.com").Session
	id := refreshID(t, sess.RefreshToken)
	secret := sess.RefreshToken[strings.LastIndex(sess.RefreshToken, ".")+1:]

	tests := []struct {
		name  string
		value string
	}{
		{"empty", ""},
		{"garbage", "not-a-token"},
		{"two parts", id + "." + secret},
		{"wrong version", "v2." + id + "." + secret},
		{"bad id", "v1.not-a-ulid." + secret},
		{"short secret", "v1." + id + ".abc"},
		{"bad alphabet", "v1." + id + "." + strings.Repeat("+", 43)},
		{"extra part", sess.RefreshToken + ".x"},
		{"unknown id", "v1.01ARZ3NDEKTSV4RRFFQ69G5FAV." + secret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.sessions.Refresh(context.Background(), tt.value)
			require.ErrorIs(t, err, ErrInvalidRefreshToken)
		})
	}

	// none of the above touched the real token
	_, err := env.sessions.Refresh(context.Background(), sess.RefreshToken)
	require.NoError(t, err)
}

func TestSessionIssuer_SecretMismatchRevokes(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.signup(t, "mismatch@example.com").Session
	id := refreshID(t, sess.RefreshToken)

	forged := "v1." + id + "." + strings.Repeat("A", 43)
	_, err := env.sessions.Refresh(ctx, forged)
	require.ErrorIs(t, err, ErrInvalidRefreshToken)

	// the genuine holder is cut off too
	_, err = env.sessions.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestSessionIssuer_RefreshExpired(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	sess := env.signup(t, "expired@example.com").Session

	env.clock.Advance(DefaultRefreshTokenShortTTL)

	_, err := env.sessions.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenExpired)

	rt, err := env.store.RefreshTokens().GetRefreshToken(ctx, refreshID(t, sess.RefreshToken))
	require.NoError(t, err)
	require.True(t, rt.IsRevoked())

	_, err = env.sessions.Refresh(ctx, sess.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestSessionIssuer_RefreshSuspendedUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signup(t, "suspended@example.com")

	require.NoError(t, env.store.Users().UpdateStatus(ctx, res.User.ID, domain.UserStatusSuspended, env.clock.Now()))

	_, err := env.sessions.Refresh(ctx, res.Session.RefreshToken)
	require.ErrorIs(t, err, ErrAccountSuspended)

	_, err = env.sessions.Refresh(ctx, res.Session.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)
}

func TestSessionIssuer_ConcurrentRefresh(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	sess := env.signup(t, "race@example.com").Session

	const workers = 8
	var (
		wins   atomic.Int32
		losses atomic.Int32
		g      errgroup.Group
	)
	for range workers {
		g.Go(func() error {
			_, err := env.sessions.Refresh(context.Background(), sess.RefreshToken)
			switch {
			case err == nil:
				wins.Add(1)
			case errors.Is(err, ErrRefreshTokenRevoked), errors.Is(err, ErrInvalidRefreshToken):
				losses.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, wins.Load())
	require.EqualValues(t, workers-1, losses.Load())

	// exactly one successor exists
	rt, err := env.store.RefreshTokens().GetRefreshToken(context.Background(), refreshID(t, sess.RefreshToken))
	require.NoError(t, err)
	require.NotEmpty(t, rt.ReplacedByTokenID)
}

func TestSessionIssuer_Revoke(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signup(t, "revoke@example.com")

	rt, err := env.sessions.Revoke(ctx, res.Session.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, res.User.ID, rt.UserID)

	// idempotent
	_, err = env.sessions.Revoke(ctx, res.Session.RefreshToken)
	require.NoError(t, err)

	_, err = env.sessions.Refresh(ctx, res.Session.RefreshToken)
	require.ErrorIs(t, err, ErrRefreshTokenRevoked)

	_, err = env.sessions.Revoke(ctx, "v1.garbage")
	require.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestSessionIssuer_RevokeAllForUser(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()
	res := env.signup(t, "all@example.com")

	second, err := env.sessions.Issue(ctx, res.User, IssueOptions{})
	require.NoError(t, err)

	n, err := env.sessions.RevokeAllForUser(ctx, res.User.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	for _, value := range []string{res.Session.RefreshToken, second.RefreshToken} {
		_, err := env.sessions.Refresh(ctx, value)
		require.ErrorIs(t, err, ErrRefreshTokenRevoked)
	}
}
