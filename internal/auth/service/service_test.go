package service

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/totpx"
	"github.com/stretchr/testify/require"
)

const testPassword = "Aa1!aaaaaaaaaa"

// cheap parameters keep the suite fast; the hash format is the same.
var testHashParams = cryptox.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	user      domain.User
	token     string
	expiresAt time.Time
}

type captureMailer struct {
	mu     sync.Mutex
	verify []sentMail
	reset  []sentMail
}

func (m *captureMailer) SendVerificationEmail(_ context.Context, u domain.User, token string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verify = append(m.verify, sentMail{u, token, exp})
	return nil
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, u domain.User, token string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reset = append(m.reset, sentMail{u, token, exp})
	return nil
}

func (m *captureMailer) lastVerify(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.verify, "no verification email sent")
	return m.verify[len(m.verify)-1]
}

func (m *captureMailer) lastReset(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.reset, "no reset email sent")
	return m.reset[len(m.reset)-1]
}

var errMailDown = errors.New("smtp down")

// failingMailer records what it was asked to send, then reports a
// delivery failure.
type failingMailer struct {
	captureMailer
}

func (m *failingMailer) SendVerificationEmail(ctx context.Context, u domain.User, token string, exp time.Time) error {
	_ = m.captureMailer.SendVerificationEmail(ctx, u, token, exp)
	return errMailDown
}

func (m *failingMailer) SendPasswordResetEmail(ctx context.Context, u domain.User, token string, exp time.Time) error {
	_ = m.captureMailer.SendPasswordResetEmail(ctx, u, token, exp)
	return errMailDown
}

var errHashUnavailable = errors.New("hash pool unavailable")

// flakyHasher fails the first failures calls to Hash.
type flakyHasher struct {
	PasswordHasher

	mu       sync.Mutex
	failures int
	calls    int
}

func (h *flakyHasher) Hash(ctx context.Context, password string) (string, error) {
	h.mu.Lock()
	h.calls++
	fail := h.calls <= h.failures
	h.mu.Unlock()
	if fail {
		return "", errHashUnavailable
	}
	return h.PasswordHasher.Hash(ctx, password)
}

func (h *flakyHasher) hashCalls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type recordingAudit struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (r *recordingAudit) Record(_ context.Context, e domain.AuditEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingAudit) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}

type testEnv struct {
	store      *sqlite.Store
	clock      *testClock
	keys       *jwtx.KeyManager
	codec      *totpx.Codec
	cipher     *cryptox.SecretCipher
	mailer     *captureMailer
	audit      *recordingAudit
	sessions   *SessionIssuer
	vault      *BackupCodeVault
	devices    *DeviceRegistry
	challenges *ChallengeEngine
	auth       *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	keys, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
		Algorithm: jwtx.AlgorithmEdDSA,
		Issuer:    "purse-test",
		Audience:  []string{"purse"},
		NumKeys:   1,
	})
	require.NoError(t, err)

	key, err := cryptox.GenerateSecretKey()
	require.NoError(t, err)
	cipher, err := cryptox.NewSecretCipher(key)
	require.NoError(t, err)

	clock := &testClock{now: time.Now().UTC().Truncate(time.Second)}
	hasher := cryptox.NewHasher(cryptox.HasherConfig{Pepper: "pepper", Params: testHashParams, Concurrency: 4})
	codec := totpx.NewCodec("purse-test")

	env := &testEnv{
		store:  st,
		clock:  clock,
		keys:   keys,
		codec:  codec,
		cipher: cipher,
		mailer: &captureMailer{},
		audit:  &recordingAudit{},
	}
	env.sessions = &SessionIssuer{
		Store:    st,
		Signer:   keys,
		Issuer:   "purse-test",
		Audience: []string{"purse"},
		Now:      clock.Now,
	}
	env.vault = &BackupCodeVault{Store: st, Hasher: hasher, Now: clock.Now}
	env.devices = &DeviceRegistry{Store: st, Now: clock.Now}
	env.challenges = &ChallengeEngine{
		Store:    st,
		Cipher:   cipher,
		Codec:    codec,
		Vault:    env.vault,
		Devices:  env.devices,
		Sessions: env.sessions,
		Now:      clock.Now,
	}
	env.auth = &AuthService{
		Store:      st,
		Hasher:     hasher,
		Codec:      codec,
		Sessions:   env.sessions,
		Challenges: env.challenges,
		Devices:    env.devices,
		Vault:      env.vault,
		Mailer:     env.mailer,
		Audit:      env.audit,
		Now:        clock.Now,
	}
	return env
}

func (env *testEnv) signup(t *testing.T, email string) domain.SignupResult {
	t.Helper()
	res, err := env.auth.Signup(context.Background(), SignupInput{
		Email:       email,
		Password:    testPassword,
		AcceptTerms: true,
	})
	require.NoError(t, err)
	return res
}

// enableMFA enrolls the user and answers the setup challenge. It returns
// the TOTP secret and the backup codes.
func (env *testEnv) enableMFA(t *testing.T, userID string) (string, []string) {
	t.Helper()
	ctx := context.Background()

	enroll, err := env.auth.StartMFAEnrollment(ctx, userID, domain.ClientInfo{})
	require.NoError(t, err)

	code, err := env.codec.GenerateCode(enroll.Secret, env.clock.Now())
	require.NoError(t, err)

	res, err := env.auth.VerifyMFAChallenge(ctx, VerifyChallengeInput{ChallengeID: enroll.ChallengeID, Code: code})
	require.NoError(t, err)
	require.Equal(t, domain.ChallengeSetup, res.Type)
	return enroll.Secret, res.BackupCodes
}

// totp returns the current code for secret.
func (env *testEnv) totp(t *testing.T, secret string) string {
	t.Helper()
	code, err := env.codec.GenerateCode(secret, env.clock.Now())
	require.NoError(t, err)
	return code
}

// wrongTOTP returns a well-formed code that is not accepted right now.
func (env *testEnv) wrongTOTP(t *testing.T, secret string) string {
	t.Helper()
	for _, candidate := range []string{"000000", "111111", "222222", "333333", "444444"} {
		if !env.codec.VerifyCode(secret, candidate, env.clock.Now()) {
			return candidate
		}
	}
	t.Fatal("no rejected candidate code")
	return ""
}

// cryptoxWeakHash hashes password with the test pepper and parameters the
// test hasher considers outdated.
func cryptoxWeakHash(t *testing.T, password string) string {
	t.Helper()
	weak := cryptox.NewHasher(cryptox.HasherConfig{
		Pepper: "pepper",
		Params: cryptox.HashParams{Memory: 512, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})
	h, err := weak.Hash(context.Background(), password)
	require.NoError(t, err)
	return h
}

// toSloppy is how a user might type a backup code.
func toSloppy(code string) string {
	return strings.ToLower(strings.ReplaceAll(code, "-", ""))
}
