package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

const (
	DefaultRefreshTokenTTL      = 30 * 24 * time.Hour
	DefaultRefreshTokenShortTTL = 7 * 24 * time.Hour
)

// Refresh token wire format, version 1:
//
//	v1.<id>.<secret>
//
// id is a ULID (Crockford base32) and secret is base64url without padding.
// Neither alphabet contains '.', so the value always splits into exactly
// three parts.
const (
	refreshTokenVersion = "v1"
	refreshTokenSep     = "."
)

// TokenSigner signs access-token claims. *jwtx.KeyManager satisfies it.
type TokenSigner interface {
	Sign(claims jwtx.Claims) (string, error)
}

// IssueOptions tune a single session issuance.
type IssueOptions struct {
	// PreviousRefreshTokenID is revoked and chained to the new token in the
	// same transaction. Issuance fails with ErrRefreshTokenRevoked if it was
	// already revoked.
	PreviousRefreshTokenID string

	// RememberMe selects the long refresh TTL.
	RememberMe bool

	// AMR is stamped on the access token and carried across rotations.
	AMR []string
}

// SessionIssuer mints access/refresh token pairs and rotates refresh
// tokens. Rotation is guarded by a conditional revoke in the database, so
// exactly one of several concurrent redemptions of a token wins, even
// across instances.
type SessionIssuer struct {
	Store  store.Store
	Signer TokenSigner

	Issuer   string
	Audience []string

	AccessTTL       time.Duration // default jwtx.DefaultAccessTokenTTL
	RefreshTTL      time.Duration // remember-me lifetime, default 30d
	RefreshShortTTL time.Duration // ceiling without remember-me, default 7d

	Now func() time.Time
}

func (s *SessionIssuer) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// refreshTTL picks the refresh lifetime for a session.
func (s *SessionIssuer) refreshTTL(rememberMe bool) time.Duration {
	ttl := s.RefreshTTL
	if ttl <= 0 {
		ttl = DefaultRefreshTokenTTL
	}
	if rememberMe {
		return ttl
	}
	short := s.RefreshShortTTL
	if short <= 0 {
		short = DefaultRefreshTokenShortTTL
	}
	return min(ttl, short)
}

// Issue mints a new session for user.
func (s *SessionIssuer) Issue(ctx context.Context, user domain.User, opts IssueOptions) (domain.Session, error) {
	now := s.now()

	secret, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	rt := domain.RefreshToken{
		ID:         idx.NewAt(now).String(),
		UserID:     user.ID,
		SecretHash: cryptox.FingerprintToken(secret),
		RememberMe: opts.RememberMe,
		AMR:        opts.AMR,
		ExpiresAt:  now.Add(s.refreshTTL(opts.RememberMe)),
		CreatedAt:  now,
	}

	claims := jwtx.NewAccessClaims(jwtx.AccessClaimsParams{
		Subject:       user.ID,
		SessionID:     rt.ID,
		Email:         user.Email,
		EmailVerified: user.EmailVerified(),
		Roles:         user.Roles,
		Plan:          user.Plan,
		AMR:           opts.AMR,
		Issuer:        s.Issuer,
		Audience:      s.Audience,
		TTL:           s.AccessTTL,
		Now:           now,
	})
	accessToken, err := s.Signer.Sign(claims)
	if err != nil {
		return domain.Session{}, fmt.Errorf("failed to sign access token: %w", err)
	}

	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Revoke first: the conditional update is what serialises
		// concurrent rotations of the same token.
		if opts.PreviousRefreshTokenID != "" {
			revoked, err := tx.RefreshTokens().RevokeRefreshToken(ctx, opts.PreviousRefreshTokenID, now, rt.ID)
			if err != nil {
				return fmt.Errorf("failed to revoke previous refresh token: %w", err)
			}
			if !revoked {
				return ErrRefreshTokenRevoked
			}
		}

		if err := tx.RefreshTokens().CreateRefreshToken(ctx, rt); err != nil {
			return fmt.Errorf("failed to store refresh token: %w", err)
		}
		return nil
	})
	if err != nil {
		return domain.Session{}, err
	}

	return domain.Session{
		AccessToken:           accessToken,
		AccessTokenExpiresAt:  claims.ExpiresAtTime(),
		RefreshToken:          encodeRefreshToken(rt.ID, secret),
		RefreshTokenExpiresAt: rt.ExpiresAt,
	}, nil
}

// Refresh redeems a refresh token for a new session, revoking the
// presented token.
func (s *SessionIssuer) Refresh(ctx context.Context, value string) (domain.Session, error) {
	sess, _, err := s.refresh(ctx, value)
	return sess, err
}

func (s *SessionIssuer) refresh(ctx context.Context, value string) (domain.Session, domain.User, error) {
	l := slogx.FromContext(ctx)

	// 1. Parse
	id, secret, ok := parseRefreshToken(value)
	if !ok {
		return domain.Session{}, domain.User{}, ErrInvalidRefreshToken
	}

	// 2. Lookup
	rt, err := s.Store.RefreshTokens().GetRefreshToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, domain.User{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return domain.Session{}, domain.User{}, fmt.Errorf("failed to get refresh token: %w", err)
	}

	// 3. Revoked
	if rt.IsRevoked() {
		return domain.Session{}, domain.User{}, ErrRefreshTokenRevoked
	}

	now := s.now()

	// 4. Expired
	if rt.IsExpired(now) {
		s.revokeQuietly(ctx, rt.ID, now)
		return domain.Session{}, domain.User{}, ErrRefreshTokenExpired
	}

	// 5. Secret. A live id with the wrong secret means someone has seen the
	// id but not the token: kill it.
	if !cryptox.MatchFingerprint(secret, rt.SecretHash) {
		l.Warn("refresh token secret mismatch, revoking",
			slog.String("refresh_token_id", rt.ID),
			slog.String("user_id", rt.UserID),
		)
		s.revokeQuietly(ctx, rt.ID, now)
		return domain.Session{}, domain.User{}, ErrInvalidRefreshToken
	}

	// 6. Owner
	user, err := s.Store.Users().GetUserByID(ctx, rt.UserID)
	if errors.Is(err, store.ErrNotFound) {
		s.revokeQuietly(ctx, rt.ID, now)
		return domain.Session{}, domain.User{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return domain.Session{}, domain.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsSuspended() {
		s.revokeQuietly(ctx, rt.ID, now)
		return domain.Session{}, domain.User{}, ErrAccountSuspended
	}

	// 7. Rotate
	sess, err := s.Issue(ctx, user, IssueOptions{
		PreviousRefreshTokenID: rt.ID,
		RememberMe:             rt.RememberMe,
		AMR:                    rt.AMR,
	})
	if err != nil {
		return domain.Session{}, domain.User{}, err
	}
	return sess, user, nil
}

// Revoke revokes the presented refresh token. Revoking an already revoked
// token is not an error.
func (s *SessionIssuer) Revoke(ctx context.Context, value string) (domain.RefreshToken, error) {
	id, secret, ok := parseRefreshToken(value)
	if !ok {
		return domain.RefreshToken{}, ErrInvalidRefreshToken
	}

	rt, err := s.Store.RefreshTokens().GetRefreshToken(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.RefreshToken{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("failed to get refresh token: %w", err)
	}
	if !cryptox.MatchFingerprint(secret, rt.SecretHash) {
		return domain.RefreshToken{}, ErrInvalidRefreshToken
	}

	if _, err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, rt.ID, s.now(), ""); err != nil {
		return domain.RefreshToken{}, fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return rt, nil
}

// RevokeAllForUser revokes every live refresh token of a user.
func (s *SessionIssuer) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.Store.RefreshTokens().RevokeAllUserRefreshTokens(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("failed to revoke refresh tokens: %w", err)
	}
	return n, nil
}

func (s *SessionIssuer) revokeQuietly(ctx context.Context, id string, now time.Time) {
	if _, err := s.Store.RefreshTokens().RevokeRefreshToken(ctx, id, now, ""); err != nil {
		slogx.FromContext(ctx).Error("failed to revoke refresh token",
			slog.String("refresh_token_id", id),
			slog.Any("error", err),
		)
	}
}

func encodeRefreshToken(id, secret string) string {
	return refreshTokenVersion + refreshTokenSep + id + refreshTokenSep + secret
}

// parseRefreshToken splits a v1 refresh token. The secret must be the
// base64url encoding of 32 bytes.
func parseRefreshToken(value string) (id, secret string, ok bool) {
	parts := strings.Split(value, refreshTokenSep)
	if len(parts) != 3 || parts[0] != refreshTokenVersion {
		return "", "", false
	}
	parsed, err := idx.Parse(parts[1])
	if err != nil {
		return "", "", false
	}
	if len(parts[2]) != 43 || !isBase64URL(parts[2]) {
		return "", "", false
	}
	return parsed.String(), parts[2], true
}

func isBase64URL(s string) bool {
	for _, r := range s {
		switch {
		case r >= 'A' && r <= 'Z', r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
