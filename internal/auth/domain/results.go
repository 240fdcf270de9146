package domain

import "time"

// ClientInfo is the network context of the caller, used for audit records
// and remembered devices.
type ClientInfo struct {
	IP        string
	UserAgent string
}

type SignupResult struct {
	User                      User
	Session                   Session
	RequiresEmailVerification bool
}

// ChallengeDescriptor tells the caller which challenge to answer.
type ChallengeDescriptor struct {
	ChallengeID string    `json:"challenge_id"`
	Methods     []string  `json:"methods"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// LoginResult holds either a session or a pending challenge, never both.
type LoginResult struct {
	Session   *Session
	Challenge *ChallengeDescriptor
	// DeviceRemembered is set when a remembered device skipped the challenge.
	DeviceRemembered bool
}

func (r LoginResult) Authenticated() bool { return r.Session != nil }

// DeviceToken is a freshly minted remembered-device token. Only shown once.
type DeviceToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// EnrollmentResult carries what an authenticator app needs to add the
// account.
type EnrollmentResult struct {
	ChallengeID string
	Secret      string
	OTPAuthURL  string
	QRCode      string // data:image/png;base64,...
	ExpiresAt   time.Time
}

// ChallengeResult is the outcome of a verified challenge. Setup challenges
// carry BackupCodes; login challenges carry Session.
type ChallengeResult struct {
	Type             ChallengeType
	UserID           string
	BackupCodes      []string
	Session          *Session
	RememberedDevice *DeviceToken
	UsedBackupCode   bool
}

// PasswordResetRequest reports whether a reset token was issued. Unknown
// emails report false without an error.
type PasswordResetRequest struct {
	Requested bool
}

// MFAStatus summarises a user's second factor for account screens.
type MFAStatus struct {
	Enabled              bool       `json:"enabled"`
	ActivatedAt          *time.Time `json:"activated_at,omitempty"`
	BackupCodesRemaining int        `json:"backup_codes_remaining"`
}
