package service

import (
	"context"
	"log/slog"
	"net/url"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// Mailer delivers account emails. Delivery is best effort: a failure is
// logged and never undoes the operation that asked for it.
type Mailer interface {
	SendVerificationEmail(ctx context.Context, user domain.User, token string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, user domain.User, token string, expiresAt time.Time) error
}

// LogMailer is the development transport: it writes the email to the log
// instead of sending it.
type LogMailer struct {
	// BaseURL is the front end that owns the verify and reset pages.
	BaseURL string

	// IncludeLinks puts the tokenised link in the log line. Only for local
	// development; the link is a live credential.
	IncludeLinks bool
}

func (m LogMailer) SendVerificationEmail(ctx context.Context, user domain.User, token string, expiresAt time.Time) error {
	m.log(ctx, "verification email", user, "/verify-email", token, expiresAt)
	return nil
}

func (m LogMailer) SendPasswordResetEmail(ctx context.Context, user domain.User, token string, expiresAt time.Time) error {
	m.log(ctx, "password reset email", user, "/reset-password", token, expiresAt)
	return nil
}

func (m LogMailer) log(ctx context.Context, msg string, user domain.User, path, token string, expiresAt time.Time) {
	attrs := []any{
		slog.String("user_id", user.ID),
		slog.String("to", user.Email),
		slog.Time("expires_at", expiresAt),
	}
	if m.IncludeLinks {
		attrs = append(attrs, slog.String("link", m.link(path, token)))
	}
	slogx.FromContext(ctx).Info(msg, attrs...)
}

func (m LogMailer) link(path, token string) string {
	u, err := url.Parse(m.BaseURL)
	if err != nil || m.BaseURL == "" {
		u = &url.URL{Path: "/"}
	}
	u = u.JoinPath(path)
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String()
}
