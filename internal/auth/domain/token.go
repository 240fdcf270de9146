package domain

import "time"

// RefreshToken is the stored half of a refresh token. The secret half only
// exists on the client; SecretHash is its fingerprint.
//
// Once RevokedAt is set it is never cleared. ReplacedByTokenID links a
// rotated token to its successor.
type RefreshToken struct {
	ID                string
	UserID            string
	SecretHash        string
	RememberMe        bool
	AMR               []string
	ExpiresAt         time.Time
	RevokedAt         *time.Time
	ReplacedByTokenID string
	CreatedAt         time.Time
}

func (t *RefreshToken) IsRevoked() bool { return t.RevokedAt != nil }

func (t *RefreshToken) IsExpired(now time.Time) bool { return !now.Before(t.ExpiresAt) }

type TokenPurpose string

const (
	PurposeEmailVerification TokenPurpose = "email_verification"
	PurposePasswordReset     TokenPurpose = "password_reset"
)

// OneTimeToken backs email verification and password reset links.
type OneTimeToken struct {
	ID         string
	UserID     string
	Purpose    TokenPurpose
	TokenHash  string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Session is what a successful authentication hands back to the caller.
type Session struct {
	AccessToken           string    `json:"access_token"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}
