package jwtx

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultAccessTokenTTL is the lifetime of an access token.
const DefaultAccessTokenTTL = 15 * time.Minute

// Authentication method references carried in "amr".
const (
	AMRPassword = "pwd"
	AMROTP      = "otp"
	AMRMFA      = "mfa"
	AMRRecovery = "rec" // backup code
	AMRDevice   = "dev" // remembered device skipped the challenge
)

// Claims are the access-token claims every downstream service reads.
// Fields are additive only.
type Claims struct {
	jwt.RegisteredClaims

	// Session ID: the refresh token the access token was minted alongside.
	SID string `json:"sid,omitempty"`

	Email         string   `json:"email,omitempty"`
	EmailVerified bool     `json:"email_verified"`
	Roles         []string `json:"roles,omitempty"`
	Plan          string   `json:"plan,omitempty"`

	// Authentication Methods Reference, e.g. ["pwd","otp","mfa"].
	AMR []string `json:"amr,omitempty"`
}

// AccessClaimsParams are the inputs to NewAccessClaims.
type AccessClaimsParams struct {
	Subject       string
	SessionID     string
	Email         string
	EmailVerified bool
	Roles         []string
	Plan          string
	AMR           []string

	Issuer   string
	Audience []string
	TTL      time.Duration
	Now      time.Time
}

// NewAccessClaims builds claims with a fresh jti.
func NewAccessClaims(p AccessClaimsParams) Claims {
	ttl := p.TTL
	if ttl <= 0 {
		ttl = DefaultAccessTokenTTL
	}
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.Issuer,
			Subject:   p.Subject,
			Audience:  jwt.ClaimStrings(p.Audience),
			IssuedAt:  jwt.NewNumericDate(p.Now),
			NotBefore: jwt.NewNumericDate(p.Now),
			ExpiresAt: jwt.NewNumericDate(p.Now.Add(ttl)),
			ID:        NewJTI(),
		},
		SID:           p.SessionID,
		Email:         p.Email,
		EmailVerified: p.EmailVerified,
		Roles:         p.Roles,
		Plan:          p.Plan,
		AMR:           p.AMR,
	}
}

// ExpiresAtTime returns exp, or the zero time when unset.
func (c Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
