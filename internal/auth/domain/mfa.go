package domain

import "time"

// MFAMethodTOTP is the only method a configuration can carry today.
const MFAMethodTOTP = "totp"

// MFAConfiguration is a user's second factor. There is at most one per user.
// It is created unactivated when enrollment starts and only counts as
// enabled once a setup challenge has been verified.
type MFAConfiguration struct {
	ID              string
	UserID          string
	Method          string
	SecretEncrypted string // sealed with the secret cipher; empty until activation
	ActivatedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *MFAConfiguration) IsActive() bool { return c.ActivatedAt != nil }

// MFAChallenge is a short-lived, attempt-limited MFA verification step.
// It ends exactly once: consumed, or deleted on expiry or lockout.
type MFAChallenge struct {
	ID              string
	UserID          string
	Type            ChallengeType
	ConfigurationID string // empty for setup challenges of a brand new configuration
	SecretEncrypted string // pending secret of a setup challenge
	Context         ChallengeContext
	Attempts        int
	ExpiresAt       time.Time
	ConsumedAt      *time.Time
	CreatedAt       time.Time
}

func (c *MFAChallenge) IsExpired(now time.Time) bool { return now.After(c.ExpiresAt) }

func (c *MFAChallenge) IsConsumed() bool { return c.ConsumedAt != nil }

// BackupCode is one hashed single-use recovery code of a configuration.
type BackupCode struct {
	ID              string
	ConfigurationID string
	CodeHash        string // argon2id PHC
	UsedAt          *time.Time
	CreatedAt       time.Time
}

// RememberedDevice lets a device skip the MFA challenge until ExpiresAt.
type RememberedDevice struct {
	ID              string
	ConfigurationID string
	TokenHash       string
	ExpiresAt       time.Time
	LastUsedAt      *time.Time
	LastIP          string
	LastUserAgent   string
	CreatedAt       time.Time
}

func (d *RememberedDevice) IsExpired(now time.Time) bool { return !now.Before(d.ExpiresAt) }
