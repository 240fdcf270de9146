package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
	"unicode"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/aussiebroadwan/purse/pkg/totpx"
)

const (
	DefaultResetTokenTTL        = time.Hour
	DefaultVerificationTokenTTL = 24 * time.Hour

	MinPasswordLength = 12
)

// dummyPassword is hashed once and verified against when a login names an
// unknown email, so both paths cost one hash.
const dummyPassword = "purse-dummy-password-for-timing"

type SignupInput struct {
	Email       string
	Password    string
	AcceptTerms bool
	RememberMe  bool
	Client      domain.ClientInfo
}

type LoginInput struct {
	Email      string
	Password   string
	RememberMe bool
	// DeviceToken is a remembered-device token from an earlier challenge.
	DeviceToken string
	Client      domain.ClientInfo
}

type VerifyChallengeInput struct {
	ChallengeID    string
	Code           string
	RememberDevice bool
	Client         domain.ClientInfo
}

// AuthService composes the credential, session and MFA components into
// the account use cases.
type AuthService struct {
	Store      store.Store
	Hasher     PasswordHasher
	Codec      *totpx.Codec
	Sessions   *SessionIssuer
	Challenges *ChallengeEngine
	Devices    *DeviceRegistry
	Vault      *BackupCodeVault
	Mailer     Mailer
	Audit      AuditSink

	// DefaultRoles are granted at signup (default ["user"]).
	DefaultRoles []string

	ResetTokenTTL        time.Duration // default 1h
	VerificationTokenTTL time.Duration // default 24h

	Now func() time.Time

	dummyMu   sync.Mutex
	dummyHash string
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Signup creates an account and signs it in straight away. The email
// still has to be verified.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (domain.SignupResult, error) {
	l := slogx.FromContext(ctx)

	// 1. Validate input
	if !in.AcceptTerms {
		return domain.SignupResult{}, ErrTermsNotAccepted
	}
	email := domain.NormalizeEmail(in.Email)
	if err := ValidatePassword(in.Password); err != nil {
		return domain.SignupResult{}, err
	}

	// 2. Reject duplicates early; the unique index catches the race.
	if _, err := s.Store.Users().GetUserByEmail(ctx, email); err == nil {
		return domain.SignupResult{}, ErrEmailAlreadyExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.SignupResult{}, fmt.Errorf("failed to look up email: %w", err)
	}

	// 3. Hash
	hash, err := s.Hasher.Hash(ctx, in.Password)
	if err != nil {
		return domain.SignupResult{}, fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	roles := s.DefaultRoles
	if len(roles) == 0 {
		roles = []string{"user"}
	}
	user := domain.User{
		ID:           idx.NewAt(now).String(),
		Email:        email,
		Status:       domain.UserStatusActive,
		PasswordHash: hash,
		Roles:        roles,
		Plan:         domain.PlanFree,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 4. User and verification token land together
	var (
		verifyToken string
		verifyExp   time.Time
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, user); err != nil {
			if errors.Is(err, store.ErrAlreadyExists) {
				return ErrEmailAlreadyExists
			}
			return fmt.Errorf("failed to create user: %w", err)
		}
		var err error
		verifyToken, verifyExp, err = s.issueOneTimeToken(ctx, tx, user.ID, domain.PurposeEmailVerification, s.verificationTTL())
		return err
	})
	if err != nil {
		return domain.SignupResult{}, err
	}

	// 5. Session
	sess, err := s.Sessions.Issue(ctx, user, IssueOptions{
		RememberMe: in.RememberMe,
		AMR:        []string{jwtx.AMRPassword},
	})
	if err != nil {
		return domain.SignupResult{}, err
	}

	s.audit(ctx, domain.AuditSignup, user.ID, in.Client, nil)
	if err := s.Mailer.SendVerificationEmail(ctx, user, verifyToken, verifyExp); err != nil {
		l.Error("failed to send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	l.Info("user signed up", slog.String("user_id", user.ID))

	return domain.SignupResult{
		User:                      user,
		Session:                   sess,
		RequiresEmailVerification: true,
	}, nil
}

// Login checks credentials and either signs the user in or hands back an
// MFA challenge. It never returns both.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (domain.LoginResult, error) {
	l := slogx.FromContext(ctx)
	email := domain.NormalizeEmail(in.Email)

	// 1. Credentials. Unknown email and wrong password look the same.
	user, err := s.Store.Users().GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		dummy, err := s.dummy(ctx)
		if err != nil {
			return domain.LoginResult{}, err
		}
		if _, err := s.Hasher.Verify(ctx, dummy, in.Password); err != nil {
			return domain.LoginResult{}, err
		}
		s.audit(ctx, domain.AuditLoginFailed, "", in.Client, map[string]string{"reason": "unknown_email"})
		return domain.LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return domain.LoginResult{}, fmt.Errorf("failed to get user: %w", err)
	}

	ok, err := s.Hasher.Verify(ctx, user.PasswordHash, in.Password)
	if err != nil {
		return domain.LoginResult{}, err
	}
	if !ok {
		s.audit(ctx, domain.AuditLoginFailed, user.ID, in.Client, map[string]string{"reason": "bad_password"})
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	// 2. Status
	if user.IsSuspended() {
		s.audit(ctx, domain.AuditLoginFailed, user.ID, in.Client, map[string]string{"reason": "suspended"})
		return domain.LoginResult{}, ErrAccountSuspended
	}

	s.maybeRehash(ctx, user, in.Password)

	// 3. Second factor
	cfg, err := s.Store.MFAConfigurations().GetMFAConfigurationByUser(ctx, user.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.LoginResult{}, fmt.Errorf("failed to get mfa configuration: %w", err)
	}
	if err != nil || !cfg.IsActive() {
		sess, err := s.completeLogin(ctx, user, IssueOptions{
			RememberMe: in.RememberMe,
			AMR:        []string{jwtx.AMRPassword},
		}, in.Client, nil)
		if err != nil {
			return domain.LoginResult{}, err
		}
		return domain.LoginResult{Session: &sess}, nil
	}

	// 4. Remembered device
	deviceID, err := s.Devices.Validate(ctx, cfg.ID, in.DeviceToken, in.Client)
	if err != nil {
		return domain.LoginResult{}, err
	}
	if deviceID != "" {
		sess, err := s.completeLogin(ctx, user, IssueOptions{
			RememberMe: in.RememberMe,
			AMR:        []string{jwtx.AMRPassword, jwtx.AMRDevice},
		}, in.Client, map[string]string{"device_id": deviceID})
		if err != nil {
			return domain.LoginResult{}, err
		}
		return domain.LoginResult{Session: &sess, DeviceRemembered: true}, nil
	}

	// 5. Challenge
	ch, err := s.Challenges.CreateLogin(ctx, user, cfg, in.RememberMe)
	if err != nil {
		return domain.LoginResult{}, err
	}
	s.audit(ctx, domain.AuditLoginChallenged, user.ID, in.Client, nil)
	l.Info("login challenged", slog.String("user_id", user.ID))

	return domain.LoginResult{
		Challenge: &domain.ChallengeDescriptor{
			ChallengeID: ch.ID,
			Methods:     []string{MethodTOTP, MethodBackupCode},
			ExpiresAt:   ch.ExpiresAt,
		},
	}, nil
}

// completeLogin issues the session that ends a successful login.
func (s *AuthService) completeLogin(ctx context.Context, user domain.User, opts IssueOptions, client domain.ClientInfo, md map[string]string) (domain.Session, error) {
	sess, err := s.Sessions.Issue(ctx, user, opts)
	if err != nil {
		return domain.Session{}, err
	}
	s.touchLastLogin(ctx, user.ID)
	s.audit(ctx, domain.AuditLogin, user.ID, client, md)
	return sess, nil
}

func (s *AuthService) touchLastLogin(ctx context.Context, userID string) {
	if err := s.Store.Users().TouchLastLogin(ctx, userID, s.now()); err != nil {
		slogx.FromContext(ctx).Error("failed to update last login", slog.String("user_id", userID), slog.Any("error", err))
	}
}

// maybeRehash upgrades a hash made with weaker parameters. The password
// is only in hand at login, so this is the only place it can happen.
func (s *AuthService) maybeRehash(ctx context.Context, user domain.User, password string) {
	if !s.Hasher.NeedsRehash(user.PasswordHash) {
		return
	}
	l := slogx.FromContext(ctx)
	hash, err := s.Hasher.Hash(ctx, password)
	if err != nil {
		l.Error("failed to rehash password", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	if err := s.Store.Users().UpdatePasswordHash(ctx, user.ID, hash, s.now()); err != nil {
		l.Error("failed to store rehashed password", slog.String("user_id", user.ID), slog.Any("error", err))
		return
	}
	l.Debug("password rehashed", slog.String("user_id", user.ID))
}

// dummy returns the hash unknown-email logins are verified against. A
// failed attempt is not cached; the next login tries again.
func (s *AuthService) dummy(ctx context.Context) (string, error) {
	s.dummyMu.Lock()
	defer s.dummyMu.Unlock()
	if s.dummyHash != "" {
		return s.dummyHash, nil
	}
	h, err := s.Hasher.Hash(ctx, dummyPassword)
	if err != nil {
		return "", fmt.Errorf("failed to hash dummy password: %w", err)
	}
	s.dummyHash = h
	return h, nil
}

// RefreshSession rotates a refresh token.
func (s *AuthService) RefreshSession(ctx context.Context, refreshToken string, client domain.ClientInfo) (domain.Session, error) {
	sess, user, err := s.Sessions.refresh(ctx, refreshToken)
	if err != nil {
		return domain.Session{}, err
	}
	s.audit(ctx, domain.AuditSessionRefreshed, user.ID, client, nil)
	return sess, nil
}

// Logout revokes one refresh token.
func (s *AuthService) Logout(ctx context.Context, refreshToken string, client domain.ClientInfo) error {
	rt, err := s.Sessions.Revoke(ctx, refreshToken)
	if err != nil {
		return err
	}
	s.audit(ctx, domain.AuditLogout, rt.UserID, client, nil)
	return nil
}

// LogoutEverywhere revokes every refresh token of the user.
func (s *AuthService) LogoutEverywhere(ctx context.Context, userID string, client domain.ClientInfo) (int64, error) {
	n, err := s.Sessions.RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.audit(ctx, domain.AuditLogoutAll, userID, client, map[string]string{"revoked": fmt.Sprint(n)})
	return n, nil
}

// RequestPasswordReset mails a reset link to a known address. For an
// unknown address it reports Requested=false and no error, so callers can
// answer both cases the same way.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string, client domain.ClientInfo) (domain.PasswordResetRequest, error) {
	l := slogx.FromContext(ctx)

	user, err := s.Store.Users().GetUserByEmail(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return domain.PasswordResetRequest{Requested: false}, nil
	}
	if err != nil {
		return domain.PasswordResetRequest{}, fmt.Errorf("failed to get user: %w", err)
	}

	var (
		token string
		exp   time.Time
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		token, exp, err = s.issueOneTimeToken(ctx, tx, user.ID, domain.PurposePasswordReset, s.resetTTL())
		return err
	})
	if err != nil {
		return domain.PasswordResetRequest{}, err
	}

	s.audit(ctx, domain.AuditPasswordResetRequest, user.ID, client, nil)
	if err := s.Mailer.SendPasswordResetEmail(ctx, user, token, exp); err != nil {
		l.Error("failed to send password reset email", slog.String("user_id", user.ID), slog.Any("error", err))
	}

	return domain.PasswordResetRequest{Requested: true}, nil
}

// ResetPassword sets a new password with a reset token and signs the user
// out everywhere.
func (s *AuthService) ResetPassword(ctx context.Context, token, newPassword string, client domain.ClientInfo) error {
	l := slogx.FromContext(ctx)

	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	ott, err := s.lookupOneTimeToken(ctx, domain.PurposePasswordReset, token)
	if err != nil {
		return err
	}

	hash, err := s.Hasher.Hash(ctx, newPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	now := s.now()
	var revoked int64
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.OneTimeTokens().ConsumeOneTimeToken(ctx, ott.ID, now)
		if err != nil {
			return fmt.Errorf("failed to consume reset token: %w", err)
		}
		if !consumed {
			return ErrInvalidOrExpiredToken
		}
		if err := tx.Users().UpdatePasswordHash(ctx, ott.UserID, hash, now); err != nil {
			return fmt.Errorf("failed to update password: %w", err)
		}
		revoked, err = tx.RefreshTokens().RevokeAllUserRefreshTokens(ctx, ott.UserID, now)
		if err != nil {
			return fmt.Errorf("failed to revoke refresh tokens: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, domain.AuditPasswordReset, ott.UserID, client, map[string]string{"revoked_sessions": fmt.Sprint(revoked)})
	l.Info("password reset", slog.String("user_id", ott.UserID), slog.Int64("revoked_sessions", revoked))
	return nil
}

// VerifyEmail marks the address behind a verification token as verified.
func (s *AuthService) VerifyEmail(ctx context.Context, token string, client domain.ClientInfo) error {
	ott, err := s.lookupOneTimeToken(ctx, domain.PurposeEmailVerification, token)
	if err != nil {
		return err
	}

	now := s.now()
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.OneTimeTokens().ConsumeOneTimeToken(ctx, ott.ID, now)
		if err != nil {
			return fmt.Errorf("failed to consume verification token: %w", err)
		}
		if !consumed {
			return ErrInvalidOrExpiredToken
		}
		if err := tx.Users().MarkEmailVerified(ctx, ott.UserID, now); err != nil {
			return fmt.Errorf("failed to mark email verified: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.audit(ctx, domain.AuditEmailVerified, ott.UserID, client, nil)
	return nil
}

// ResendVerification mails a fresh verification link, invalidating older
// ones. Already verified users are left alone.
func (s *AuthService) ResendVerification(ctx context.Context, userID string, client domain.ClientInfo) error {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrUnknownSubject
	}
	if err != nil {
		return fmt.Errorf("failed to get user: %w", err)
	}
	if user.EmailVerified() {
		return nil
	}

	var (
		token string
		exp   time.Time
	)
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		var err error
		token, exp, err = s.issueOneTimeToken(ctx, tx, user.ID, domain.PurposeEmailVerification, s.verificationTTL())
		return err
	})
	if err != nil {
		return err
	}

	s.audit(ctx, domain.AuditEmailVerifyResent, user.ID, client, nil)
	if err := s.Mailer.SendVerificationEmail(ctx, user, token, exp); err != nil {
		slogx.FromContext(ctx).Error("failed to send verification email", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

// StartMFAEnrollment creates a setup challenge with a fresh TOTP secret.
// MFA is not enabled until the challenge is answered.
func (s *AuthService) StartMFAEnrollment(ctx context.Context, userID string, client domain.ClientInfo) (domain.EnrollmentResult, error) {
	user, err := s.Store.Users().GetUserByID(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.EnrollmentResult{}, ErrUnknownSubject
	}
	if err != nil {
		return domain.EnrollmentResult{}, fmt.Errorf("failed to get user: %w", err)
	}

	cfg, err := s.mfaConfiguration(ctx, user.ID)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}
	if cfg.IsActive() {
		return domain.EnrollmentResult{}, ErrMFAAlreadyEnabled
	}

	secret, err := s.Codec.CreateSecret(totpx.DefaultSecretBytes)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}
	ch, err := s.Challenges.CreateSetup(ctx, cfg, secret)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}

	uri, err := s.Codec.ProvisioningURI(secret, user.Email)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}
	qr, err := s.Codec.QRCodePNG(secret, user.Email)
	if err != nil {
		return domain.EnrollmentResult{}, err
	}

	s.audit(ctx, domain.AuditMFAEnrollStarted, user.ID, client, nil)

	return domain.EnrollmentResult{
		ChallengeID: ch.ID,
		Secret:      secret,
		OTPAuthURL:  uri,
		QRCode:      qr,
		ExpiresAt:   ch.ExpiresAt,
	}, nil
}

// mfaConfiguration returns the user's configuration, creating an inactive
// one on first enrollment.
func (s *AuthService) mfaConfiguration(ctx context.Context, userID string) (domain.MFAConfiguration, error) {
	cfg, err := s.Store.MFAConfigurations().GetMFAConfigurationByUser(ctx, userID)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return domain.MFAConfiguration{}, fmt.Errorf("failed to get mfa configuration: %w", err)
	}

	now := s.now()
	cfg = domain.MFAConfiguration{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		Method:    domain.MFAMethodTOTP,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err = s.Store.MFAConfigurations().CreateMFAConfiguration(ctx, cfg)
	if errors.Is(err, store.ErrAlreadyExists) {
		// A concurrent enrollment created it first.
		return s.Store.MFAConfigurations().GetMFAConfigurationByUser(ctx, userID)
	}
	if err != nil {
		return domain.MFAConfiguration{}, fmt.Errorf("failed to create mfa configuration: %w", err)
	}
	return cfg, nil
}

// VerifyMFAChallenge answers any challenge. The stored challenge type
// decides whether this finishes an enrollment or a login.
func (s *AuthService) VerifyMFAChallenge(ctx context.Context, in VerifyChallengeInput) (domain.ChallengeResult, error) {
	res, err := s.Challenges.Verify(ctx, in.ChallengeID, in.Code, VerifyOptions{
		RememberDevice: in.RememberDevice,
		Client:         in.Client,
	})
	if err != nil {
		var se *Error
		if errors.As(err, &se) {
			switch se.Code {
			case CodeChallengeLocked:
				s.audit(ctx, domain.AuditMFAChallengeLocked, "", in.Client, nil)
			case CodeCodeIncorrect, CodeChallengeExpired, CodeChallengeInvalid:
				s.audit(ctx, domain.AuditMFAChallengeFailed, "", in.Client, map[string]string{"reason": string(se.Code)})
			}
		}
		return domain.ChallengeResult{}, err
	}

	switch res.Type {
	case domain.ChallengeSetup:
		s.audit(ctx, domain.AuditMFAEnabled, res.UserID, in.Client, nil)
	case domain.ChallengeLogin:
		s.audit(ctx, domain.AuditMFAChallengePassed, res.UserID, in.Client, nil)
		if res.UsedBackupCode {
			s.audit(ctx, domain.AuditBackupCodeUsed, res.UserID, in.Client, nil)
		}
		s.touchLastLogin(ctx, res.UserID)
		s.audit(ctx, domain.AuditLogin, res.UserID, in.Client, map[string]string{"mfa": "true"})
	}
	return res, nil
}

// MFAStatus reports whether MFA is on and how many backup codes are left.
func (s *AuthService) MFAStatus(ctx context.Context, userID string) (domain.MFAStatus, error) {
	cfg, err := s.Store.MFAConfigurations().GetMFAConfigurationByUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.MFAStatus{}, nil
	}
	if err != nil {
		return domain.MFAStatus{}, fmt.Errorf("failed to get mfa configuration: %w", err)
	}
	if !cfg.IsActive() {
		return domain.MFAStatus{}, nil
	}

	remaining, err := s.Vault.Remaining(ctx, cfg.ID)
	if err != nil {
		return domain.MFAStatus{}, err
	}
	return domain.MFAStatus{
		Enabled:              true,
		ActivatedAt:          cfg.ActivatedAt,
		BackupCodesRemaining: remaining,
	}, nil
}

// issueOneTimeToken consumes the user's outstanding tokens of purpose and
// stores a fresh one. It returns the plaintext token.
func (s *AuthService) issueOneTimeToken(ctx context.Context, tx store.Store, userID string, purpose domain.TokenPurpose, ttl time.Duration) (string, time.Time, error) {
	now := s.now()

	if _, err := tx.OneTimeTokens().ConsumeUserOneTimeTokens(ctx, userID, purpose, now); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to consume outstanding tokens: %w", err)
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", time.Time{}, err
	}
	ott := domain.OneTimeToken{
		ID:        idx.NewAt(now).String(),
		UserID:    userID,
		Purpose:   purpose,
		TokenHash: cryptox.FingerprintToken(token),
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := tx.OneTimeTokens().CreateOneTimeToken(ctx, ott); err != nil {
		return "", time.Time{}, fmt.Errorf("failed to store one-time token: %w", err)
	}
	return token, ott.ExpiresAt, nil
}

// lookupOneTimeToken finds a live token of purpose. Missing, consumed and
// expired tokens are indistinguishable to the caller.
func (s *AuthService) lookupOneTimeToken(ctx context.Context, purpose domain.TokenPurpose, token string) (domain.OneTimeToken, error) {
	if token == "" {
		return domain.OneTimeToken{}, ErrInvalidOrExpiredToken
	}
	ott, err := s.Store.OneTimeTokens().GetOneTimeTokenByHash(ctx, purpose, cryptox.FingerprintToken(token))
	if errors.Is(err, store.ErrNotFound) {
		return domain.OneTimeToken{}, ErrInvalidOrExpiredToken
	}
	if err != nil {
		return domain.OneTimeToken{}, fmt.Errorf("failed to get one-time token: %w", err)
	}
	if ott.ConsumedAt != nil || !s.now().Before(ott.ExpiresAt) {
		return domain.OneTimeToken{}, ErrInvalidOrExpiredToken
	}
	return ott, nil
}

func (s *AuthService) resetTTL() time.Duration {
	if s.ResetTokenTTL > 0 {
		return s.ResetTokenTTL
	}
	return DefaultResetTokenTTL
}

func (s *AuthService) verificationTTL() time.Duration {
	if s.VerificationTokenTTL > 0 {
		return s.VerificationTokenTTL
	}
	return DefaultVerificationTokenTTL
}

func (s *AuthService) audit(ctx context.Context, action domain.AuditAction, userID string, client domain.ClientInfo, md map[string]string) {
	if s.Audit == nil {
		return
	}
	s.Audit.Record(ctx, domain.AuditEvent{
		Action:    action,
		ActorID:   userID,
		UserID:    userID,
		IP:        client.IP,
		UserAgent: client.UserAgent,
		Metadata:  md,
		CreatedAt: s.now(),
	})
}

// ValidatePassword enforces the password policy: at least
// MinPasswordLength characters with an upper-case letter, a lower-case
// letter and a digit.
func ValidatePassword(pw string) error {
	if len([]rune(pw)) < MinPasswordLength {
		return ErrWeakPassword.WithMessage(fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !upper || !lower || !digit {
		return ErrWeakPassword.WithMessage("password needs an upper-case letter, a lower-case letter and a digit")
	}
	return nil
}
