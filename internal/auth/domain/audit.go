package domain

import "time"

type AuditAction string

const (
	AuditSignup               AuditAction = "user.signup"
	AuditLogin                AuditAction = "user.login"
	AuditLoginFailed          AuditAction = "user.login_failed"
	AuditLoginChallenged      AuditAction = "user.login_challenged"
	AuditLogout               AuditAction = "user.logout"
	AuditLogoutAll            AuditAction = "user.logout_all"
	AuditSessionRefreshed     AuditAction = "session.refreshed"
	AuditPasswordResetRequest AuditAction = "password.reset_requested"
	AuditPasswordReset        AuditAction = "password.reset"
	AuditEmailVerified        AuditAction = "email.verified"
	AuditEmailVerifyResent    AuditAction = "email.verification_resent"
	AuditMFAEnrollStarted     AuditAction = "mfa.enroll_started"
	AuditMFAEnabled           AuditAction = "mfa.enabled"
	AuditMFAChallengePassed   AuditAction = "mfa.challenge_passed"
	AuditMFAChallengeFailed   AuditAction = "mfa.challenge_failed"
	AuditMFAChallengeLocked   AuditAction = "mfa.challenge_locked"
	AuditBackupCodeUsed       AuditAction = "mfa.backup_code_used"
)

// AuditEvent is an append-only record of something a user did.
type AuditEvent struct {
	ID        string
	Action    AuditAction
	ActorID   string
	UserID    string
	IP        string
	UserAgent string
	Metadata  map[string]string
	CreatedAt time.Time
}
