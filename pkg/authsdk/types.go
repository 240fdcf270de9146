package authsdk

import (
	"time"

	"github.com/aussiebroadwan/purse/pkg/jwtx"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ============================================================================
// Authentication
// ============================================================================

type SignupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	AcceptTerms bool   `json:"accept_terms"`
	RememberMe  bool   `json:"remember_me,omitempty"`
}

type SignupResponse struct {
	UserID                    string          `json:"user_id"`
	Email                     string          `json:"email"`
	RequiresEmailVerification bool            `json:"requires_email_verification"`
	Session                   SessionResponse `json:"session"`
}

type LoginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me,omitempty"`

	// DeviceToken is a remembered-device token from an earlier challenge.
	DeviceToken string `json:"device_token,omitempty"`
}

// Login statuses.
const (
	LoginStatusAuthenticated = "authenticated"
	LoginStatusMFARequired   = "mfa_required"
)

// LoginResponse carries a session when Status is "authenticated" and a
// challenge when it is "mfa_required".
type LoginResponse struct {
	Status           string             `json:"status"`
	Session          *SessionResponse   `json:"session,omitempty"`
	Challenge        *ChallengeResponse `json:"challenge,omitempty"`
	DeviceRemembered bool               `json:"device_remembered,omitempty"`
}

// SessionResponse is an access token plus the refresh token that renews it.
type SessionResponse struct {
	AccessToken           string    `json:"access_token"`
	TokenType             string    `json:"token_type"`
	ExpiresIn             int       `json:"expires_in"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at"`
	RefreshToken          string    `json:"refresh_token"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at"`
}

// RefreshRequest may be sent empty when the refresh cookie is present.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token,omitempty"`
}

type LogoutAllResponse struct {
	Revoked int64 `json:"revoked"`
}

// ============================================================================
// Password reset and email verification
// ============================================================================

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

type ResetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type VerifyEmailRequest struct {
	Token string `json:"token"`
}

// ============================================================================
// MFA
// ============================================================================

// ChallengeResponse describes a pending MFA challenge.
type ChallengeResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Methods     []string  `json:"methods"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// TOTPEnrollResponse is everything an authenticator app needs. Answer
// ChallengeID with a code from the app to turn MFA on.
type TOTPEnrollResponse struct {
	ChallengeID string    `json:"challenge_id"`
	Secret      string    `json:"secret"`
	OTPAuthURL  string    `json:"otpauth_url"`
	QRCode      string    `json:"qr_code"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type VerifyChallengeRequest struct {
	ChallengeID    string `json:"challenge_id"`
	Code           string `json:"code"`
	RememberDevice bool   `json:"remember_device,omitempty"`
}

// VerifyChallengeResponse is the outcome of a passed challenge. Setup
// challenges return BackupCodes (shown once); login challenges return a
// Session.
type VerifyChallengeResponse struct {
	Type           string               `json:"type"`
	BackupCodes    []string             `json:"backup_codes,omitempty"`
	Session        *SessionResponse     `json:"session,omitempty"`
	DeviceToken    *DeviceTokenResponse `json:"device_token,omitempty"`
	UsedBackupCode bool                 `json:"used_backup_code,omitempty"`
}

type DeviceTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type MFAStatusResponse struct {
	Enabled              bool       `json:"enabled"`
	ActivatedAt          *time.Time `json:"activated_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}

// ============================================================================
// Health and discovery
// ============================================================================

// HealthResponse is returned by /livez and /readyz. Checks is only set by
// /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime,omitempty"`
	Version string        `json:"version,omitempty"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}

// JWKSResponse is the public key set that verifies access tokens.
type JWKSResponse jwtx.JWKS
