package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
	"github.com/aussiebroadwan/purse/pkg/totpx"
)

const (
	DefaultSetupChallengeTTL    = 10 * time.Minute
	DefaultLoginChallengeTTL    = 5 * time.Minute
	DefaultMaxChallengeAttempts = 6
)

// Methods a login challenge accepts.
const (
	MethodTOTP       = "totp"
	MethodBackupCode = "backup_code"
)

// errBackupCodeSpent aborts a login transaction when the matched backup
// code was used by a concurrent request.
var errBackupCodeSpent = errors.New("backup code already used")

// SecretSealer encrypts TOTP secrets at rest. *cryptox.SecretCipher
// satisfies it.
type SecretSealer interface {
	EncryptString(s string) (string, error)
	DecryptString(payload string) (string, error)
}

// VerifyOptions carry the caller's side of a login challenge.
type VerifyOptions struct {
	// RememberDevice asks for a remembered-device token. Ignored when the
	// challenge is passed with a backup code.
	RememberDevice bool
	Client         domain.ClientInfo
}

// ChallengeEngine runs the MFA challenge state machine. A challenge starts
// unconsumed and ends exactly once: consumed on success, deleted on expiry
// or when it runs out of attempts.
type ChallengeEngine struct {
	Store    store.Store
	Cipher   SecretSealer
	Codec    *totpx.Codec
	Vault    *BackupCodeVault
	Devices  *DeviceRegistry
	Sessions *SessionIssuer

	SetupTTL    time.Duration // default 10m
	LoginTTL    time.Duration // default 5m
	MaxAttempts int           // default 6

	Now func() time.Time
}

func (e *ChallengeEngine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *ChallengeEngine) maxAttempts() int {
	if e.MaxAttempts <= 0 {
		return DefaultMaxChallengeAttempts
	}
	return e.MaxAttempts
}

// CreateSetup opens an enrollment challenge for cfg carrying the pending
// secret, sealed.
func (e *ChallengeEngine) CreateSetup(ctx context.Context, cfg domain.MFAConfiguration, secret string) (domain.MFAChallenge, error) {
	sealed, err := e.Cipher.EncryptString(secret)
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("failed to encrypt pending secret: %w", err)
	}

	ttl := e.SetupTTL
	if ttl <= 0 {
		ttl = DefaultSetupChallengeTTL
	}
	return e.create(ctx, domain.MFAChallenge{
		UserID:          cfg.UserID,
		Type:            domain.ChallengeSetup,
		ConfigurationID: cfg.ID,
		SecretEncrypted: sealed,
		Context:         domain.SetupContext{},
	}, ttl)
}

// CreateLogin opens a login challenge against an active configuration.
func (e *ChallengeEngine) CreateLogin(ctx context.Context, user domain.User, cfg domain.MFAConfiguration, rememberMe bool) (domain.MFAChallenge, error) {
	ttl := e.LoginTTL
	if ttl <= 0 {
		ttl = DefaultLoginChallengeTTL
	}
	return e.create(ctx, domain.MFAChallenge{
		UserID:          user.ID,
		Type:            domain.ChallengeLogin,
		ConfigurationID: cfg.ID,
		Context:         domain.LoginContext{RememberMe: rememberMe},
	}, ttl)
}

func (e *ChallengeEngine) create(ctx context.Context, ch domain.MFAChallenge, ttl time.Duration) (domain.MFAChallenge, error) {
	// The id is the only handle a login challenge has, so it must not be
	// guessable from a neighbouring one.
	id, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("failed to generate challenge id: %w", err)
	}

	now := e.now()
	ch.ID = id
	ch.ExpiresAt = now.Add(ttl)
	ch.CreatedAt = now

	if err := e.Store.MFAChallenges().CreateMFAChallenge(ctx, ch); err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("failed to create challenge: %w", err)
	}
	return ch, nil
}

// Verify answers a challenge with code. What success produces depends on
// the challenge's stored type.
func (e *ChallengeEngine) Verify(ctx context.Context, challengeID, code string, opts VerifyOptions) (domain.ChallengeResult, error) {
	// 1. Lookup
	ch, err := e.Store.MFAChallenges().GetMFAChallenge(ctx, challengeID)
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, domain.ErrChallengeContext) {
		return domain.ChallengeResult{}, ErrChallengeInvalid
	}
	if err != nil {
		return domain.ChallengeResult{}, fmt.Errorf("failed to get challenge: %w", err)
	}

	now := e.now()

	// 2. Expiry
	if ch.IsExpired(now) {
		if err := e.Store.MFAChallenges().DeleteMFAChallenge(ctx, ch.ID); err != nil {
			return domain.ChallengeResult{}, fmt.Errorf("failed to delete expired challenge: %w", err)
		}
		return domain.ChallengeResult{}, ErrChallengeExpired
	}

	// 3. Single use
	if ch.IsConsumed() {
		return domain.ChallengeResult{}, ErrChallengeInvalid
	}

	switch c := ch.Context.(type) {
	case domain.SetupContext:
		return e.verifySetup(ctx, ch, code, now)
	case domain.LoginContext:
		return e.verifyLogin(ctx, ch, c, code, opts, now)
	default:
		// recovery challenges have no transitions
		return domain.ChallengeResult{}, ErrChallengeInvalid
	}
}

func (e *ChallengeEngine) verifySetup(ctx context.Context, ch domain.MFAChallenge, code string, now time.Time) (domain.ChallengeResult, error) {
	if ch.ConfigurationID == "" || ch.SecretEncrypted == "" {
		return domain.ChallengeResult{}, ErrChallengeInvalid
	}

	// 4. Acceptance. There are no backup codes before activation.
	secret, err := e.Cipher.DecryptString(ch.SecretEncrypted)
	if err != nil {
		return domain.ChallengeResult{}, fmt.Errorf("failed to decrypt pending secret: %w", err)
	}
	if !totpx.IsTOTPShaped(code) || !e.Codec.VerifyCode(secret, code, now) {
		// 5. Failure
		return domain.ChallengeResult{}, e.fail(ctx, ch)
	}

	// Hash outside the transaction; it is the slow part.
	codes, hashes, err := e.Vault.Generate(ctx)
	if err != nil {
		return domain.ChallengeResult{}, err
	}

	// 6. Success: consume, activate and hand out the codes together.
	err = e.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.MFAChallenges().ConsumeMFAChallenge(ctx, ch.ID, now)
		if err != nil {
			return fmt.Errorf("failed to consume challenge: %w", err)
		}
		if !consumed {
			return ErrChallengeInvalid
		}

		activated, err := tx.MFAConfigurations().ActivateMFAConfiguration(ctx, ch.ConfigurationID, ch.SecretEncrypted, now)
		if err != nil {
			return fmt.Errorf("failed to activate mfa configuration: %w", err)
		}
		if !activated {
			return ErrMFAAlreadyEnabled
		}

		return e.Vault.Replace(ctx, tx, ch.ConfigurationID, hashes)
	})
	if err != nil {
		return domain.ChallengeResult{}, err
	}

	return domain.ChallengeResult{
		Type:        domain.ChallengeSetup,
		UserID:      ch.UserID,
		BackupCodes: codes,
	}, nil
}

func (e *ChallengeEngine) verifyLogin(ctx context.Context, ch domain.MFAChallenge, lc domain.LoginContext, code string, opts VerifyOptions, now time.Time) (domain.ChallengeResult, error) {
	cfg, err := e.Store.MFAConfigurations().GetMFAConfiguration(ctx, ch.ConfigurationID)
	if errors.Is(err, store.ErrNotFound) {
		return domain.ChallengeResult{}, ErrChallengeInvalid
	}
	if err != nil {
		return domain.ChallengeResult{}, fmt.Errorf("failed to get mfa configuration: %w", err)
	}
	if !cfg.IsActive() {
		return domain.ChallengeResult{}, ErrChallengeInvalid
	}

	// 4. Acceptance
	var (
		accepted bool
		backupID string
	)
	switch {
	case totpx.IsTOTPShaped(code):
		secret, err := e.Cipher.DecryptString(cfg.SecretEncrypted)
		if err != nil {
			return domain.ChallengeResult{}, fmt.Errorf("failed to decrypt mfa secret: %w", err)
		}
		accepted = e.Codec.VerifyCode(secret, code, now)
	case totpx.IsBackupCodeShaped(code):
		backupID, err = e.Vault.Match(ctx, cfg.ID, code)
		if err != nil {
			return domain.ChallengeResult{}, err
		}
		accepted = backupID != ""
	}
	if !accepted {
		// 5. Failure
		return domain.ChallengeResult{}, e.fail(ctx, ch)
	}

	user, err := e.Store.Users().GetUserByID(ctx, ch.UserID)
	if err != nil {
		return domain.ChallengeResult{}, fmt.Errorf("failed to get user: %w", err)
	}
	if user.IsSuspended() {
		return domain.ChallengeResult{}, ErrAccountSuspended
	}

	// 6. Success: the challenge and the backup code are burnt together.
	err = e.Store.WithTx(ctx, func(tx store.Tx) error {
		consumed, err := tx.MFAChallenges().ConsumeMFAChallenge(ctx, ch.ID, now)
		if err != nil {
			return fmt.Errorf("failed to consume challenge: %w", err)
		}
		if !consumed {
			return ErrChallengeInvalid
		}
		if backupID != "" {
			used, err := e.Vault.MarkUsed(ctx, tx, backupID)
			if err != nil {
				return err
			}
			if !used {
				return errBackupCodeSpent
			}
		}
		return nil
	})
	if errors.Is(err, errBackupCodeSpent) {
		return domain.ChallengeResult{}, e.fail(ctx, ch)
	}
	if err != nil {
		return domain.ChallengeResult{}, err
	}

	usedBackup := backupID != ""
	amr := []string{jwtx.AMRPassword, jwtx.AMROTP, jwtx.AMRMFA}
	if usedBackup {
		amr = []string{jwtx.AMRPassword, jwtx.AMRRecovery, jwtx.AMRMFA}
	}

	sess, err := e.Sessions.Issue(ctx, user, IssueOptions{RememberMe: lc.RememberMe, AMR: amr})
	if err != nil {
		return domain.ChallengeResult{}, err
	}

	result := domain.ChallengeResult{
		Type:           domain.ChallengeLogin,
		UserID:         user.ID,
		Session:        &sess,
		UsedBackupCode: usedBackup,
	}

	// A backup code is a last resort; it never earns a device a bypass.
	if opts.RememberDevice && !usedBackup {
		device, err := e.Devices.Create(ctx, cfg.ID, opts.Client)
		if err != nil {
			slogx.FromContext(ctx).Error("failed to remember device",
				slog.String("user_id", user.ID),
				slog.Any("error", err),
			)
		} else {
			result.RememberedDevice = &device
		}
	}

	return result, nil
}

// fail records a wrong answer. The answer that exhausts the attempts
// deletes the challenge.
func (e *ChallengeEngine) fail(ctx context.Context, ch domain.MFAChallenge) error {
	attempts, err := e.Store.MFAChallenges().IncrementMFAChallengeAttempts(ctx, ch.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrChallengeInvalid
	}
	if err != nil {
		return fmt.Errorf("failed to record challenge attempt: %w", err)
	}

	if attempts >= e.maxAttempts() {
		if err := e.Store.MFAChallenges().DeleteMFAChallenge(ctx, ch.ID); err != nil {
			return fmt.Errorf("failed to delete locked challenge: %w", err)
		}
		slogx.FromContext(ctx).Warn("mfa challenge locked",
			slog.String("user_id", ch.UserID),
			slog.String("challenge_type", string(ch.Type)),
			slog.Int("attempts", attempts),
		)
		return ErrChallengeLocked
	}
	return ErrCodeIncorrect
}
