package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	httpapi "github.com/aussiebroadwan/purse/internal/auth/http"
	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
	"github.com/aussiebroadwan/purse/pkg/totpx"
)

const testPassword = "Aa1!aaaaaaaaaa"

var relaxedLimits = httpx.RateLimitProfiles{
	Strict:   httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	Moderate: httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	Lenient:  httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
	Public:   httpx.RateLimitConfig{RequestsPerWindow: 1000, Window: time.Minute, Burst: 1000},
}

type mailbox struct {
	mu     sync.Mutex
	tokens map[string]string // email -> last token, verify and reset alike
}

func (m *mailbox) SendVerificationEmail(_ context.Context, u domain.User, token string, _ time.Time) error {
	m.put(u.Email, token)
	return nil
}

func (m *mailbox) SendPasswordResetEmail(_ context.Context, u domain.User, token string, _ time.Time) error {
	m.put(u.Email, token)
	return nil
}

func (m *mailbox) put(email, token string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
}

func (m *mailbox) last(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type testServer struct {
	*httptest.Server
	client *http.Client
	codec  *totpx.Codec
	mail   *mailbox
}

func newTestServer(t *testing.T, limits httpx.RateLimitProfiles) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "auth.db"))
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	km, err := jwtx.NewEphemeralKeyManager(jwtx.KeyManagerOptions{
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

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hasher := cryptox.NewHasher(cryptox.HasherConfig{
		Pepper: "pepper",
		Params: cryptox.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32},
	})
	codec := totpx.NewCodec("purse-test")
	mail := &mailbox{tokens: map[string]string{}}

	audit := service.NewAuditDispatcher(service.AuditConfig{BufferSize: 16}, st.AuditEvents(), logger)
	t.Cleanup(audit.Close)

	sessions := &service.SessionIssuer{Store: st, Signer: km, Issuer: "purse-test", Audience: []string{"purse"}}
	vault := &service.BackupCodeVault{Store: st, Hasher: hasher}
	devices := &service.DeviceRegistry{Store: st}
	auth := &service.AuthService{
		Store:    st,
		Hasher:   hasher,
		Codec:    codec,
		Sessions: sessions,
		Challenges: &service.ChallengeEngine{
			Store:    st,
			Cipher:   cipher,
			Codec:    codec,
			Vault:    vault,
			Devices:  devices,
			Sessions: sessions,
		},
		Devices: devices,
		Vault:   vault,
		Mailer:  mail,
		Audit:   audit,
	}

	router := httpapi.NewRouter(km.KeySet, km.Verifier, "test", st, logger, limits)
	router.AuthService = auth
	router.ApplyRoutes()

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &testServer{
		Server: srv,
		client: &http.Client{Jar: jar, Timeout: 10 * time.Second},
		codec:  codec,
		mail:   mail,
	}
}

// call sends body as JSON (nil means no body) and decodes the response
// into out when out is non-nil.
func (s *testServer) call(t *testing.T, method, path, bearer string, body, out any) *http.Response {
	t.Helper()

	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(t.Context(), method, s.URL+path, rd)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := s.client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if out != nil && len(data) > 0 {
		require.NoError(t, json.Unmarshal(data, out), "body: %s", data)
	}
	return resp
}

func (s *testServer) signup(t *testing.T, email string) authsdk.SignupResponse {
	t.Helper()
	var out authsdk.SignupResponse
	resp := s.call(t, http.MethodPost, "/v1/auth/signup", "", authsdk.SignupRequest{
		Email:       email,
		Password:    testPassword,
		AcceptTerms: true,
	}, &out)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return out
}

func (s *testServer) totp(t *testing.T, secret string) string {
	t.Helper()
	code, err := s.codec.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

func cookieNamed(resp *http.Response, name string) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSignupLoginRefresh(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)

	var signup authsdk.SignupResponse
	resp := s.call(t, http.MethodPost, "/v1/auth/signup", "", authsdk.SignupRequest{
		Email:       "Flow@Example.com",
		Password:    testPassword,
		AcceptTerms: true,
	}, &signup)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.Equal(t, "flow@example.com", signup.Email)
	require.True(t, signup.RequiresEmailVerification)
	require.Equal(t, "Bearer", signup.Session.TokenType)
	require.Positive(t, signup.Session.ExpiresIn)
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	ck := cookieNamed(resp, httpapi.RefreshCookieName)
	require.NotNil(t, ck)
	require.True(t, ck.HttpOnly)
	require.Equal(t, http.SameSiteStrictMode, ck.SameSite)
	require.Equal(t, signup.Session.RefreshToken, ck.Value)

	var login authsdk.LoginResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/login", "", authsdk.LoginRequest{
		Email:    "flow@example.com",
		Password: testPassword,
	}, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, authsdk.LoginStatusAuthenticated, login.Status)
	require.NotNil(t, login.Session)
	require.Nil(t, login.Challenge)

	// the cookie alone is enough to refresh
	var rotated authsdk.SessionResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/refresh", "", nil, &rotated)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEqual(t, login.Session.RefreshToken, rotated.RefreshToken)

	// replaying the rotated-out token fails and clears the cookie
	var apiErr authsdk.ErrorResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/refresh", "", authsdk.RefreshRequest{RefreshToken: login.Session.RefreshToken}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRefreshTokenRevoked, apiErr.Error)
	ck = cookieNamed(resp, httpapi.RefreshCookieName)
	require.NotNil(t, ck)
	require.Negative(t, ck.MaxAge)
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)
	s.signup(t, "taken@example.com")

	tests := []struct {
		name       string
		path       string
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "duplicate email",
			path:       "/v1/auth/signup",
			body:       authsdk.SignupRequest{Email: "TAKEN@example.com", Password: testPassword, AcceptTerms: true},
			wantStatus: http.StatusConflict,
			wantCode:   authsdk.ErrorCodeEmailAlreadyExists,
		},
		{
			name:       "weak password",
			path:       "/v1/auth/signup",
			body:       authsdk.SignupRequest{Email: "weak@example.com", Password: "short", AcceptTerms: true},
			wantStatus: http.StatusBadRequest,
			wantCode:   authsdk.ErrorCodeWeakPassword,
		},
		{
			name:       "terms not accepted",
			path:       "/v1/auth/signup",
			body:       authsdk.SignupRequest{Email: "terms@example.com", Password: testPassword},
			wantStatus: http.StatusBadRequest,
			wantCode:   authsdk.ErrorCodeTermsNotAccepted,
		},
		{
			name:       "unknown field",
			path:       "/v1/auth/signup",
			body:       map[string]any{"email": "x@example.com", "password": testPassword, "admin": true},
			wantStatus: http.StatusBadRequest,
			wantCode:   authsdk.ErrorCodeInvalidRequest,
		},
		{
			name:       "wrong password",
			path:       "/v1/auth/login",
			body:       authsdk.LoginRequest{Email: "taken@example.com", Password: testPassword + "x"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   authsdk.ErrorCodeInvalidCredentials,
		},
		{
			name:       "unknown account",
			path:       "/v1/auth/login",
			body:       authsdk.LoginRequest{Email: "nobody@example.com", Password: testPassword},
			wantStatus: http.StatusUnauthorized,
			wantCode:   authsdk.ErrorCodeInvalidCredentials,
		},
		{
			name:       "garbage refresh token",
			path:       "/v1/auth/refresh",
			body:       authsdk.RefreshRequest{RefreshToken: "garbage"},
			wantStatus: http.StatusUnauthorized,
			wantCode:   authsdk.ErrorCodeInvalidRefreshToken,
		},
		{
			name:       "bad reset token",
			path:       "/v1/auth/password/reset",
			body:       authsdk.ResetPasswordRequest{Token: "nope", Password: testPassword},
			wantStatus: http.StatusBadRequest,
			wantCode:   authsdk.ErrorCodeInvalidOrExpired,
		},
		{
			name:       "unknown challenge",
			path:       "/v1/mfa/challenges/verify",
			body:       authsdk.VerifyChallengeRequest{ChallengeID: "nope", Code: "123456"},
			wantStatus: http.StatusBadRequest,
			wantCode:   authsdk.ErrorCodeChallengeInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var apiErr authsdk.ErrorResponse
			resp := s.call(t, http.MethodPost, tt.path, "", tt.body, &apiErr)
			require.Equal(t, tt.wantStatus, resp.StatusCode)
			require.Equal(t, tt.wantCode, apiErr.Error)
		})
	}
}

func TestMFAFlow(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)
	signup := s.signup(t, "mfa@example.com")
	access := signup.Session.AccessToken

	// enrollment needs a bearer token
	resp := s.call(t, http.MethodPost, "/v1/mfa/totp/enroll", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var enroll authsdk.TOTPEnrollResponse
	resp = s.call(t, http.MethodPost, "/v1/mfa/totp/enroll", access, nil, &enroll)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, enroll.Secret)
	require.Contains(t, enroll.OTPAuthURL, "otpauth://totp/")
	require.Contains(t, enroll.QRCode, "data:image/png;base64,")

	var setup authsdk.VerifyChallengeResponse
	resp = s.call(t, http.MethodPost, "/v1/mfa/challenges/verify", "", authsdk.VerifyChallengeRequest{
		ChallengeID: enroll.ChallengeID,
		Code:        s.totp(t, enroll.Secret),
	}, &setup)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "setup", setup.Type)
	require.Len(t, setup.BackupCodes, 8)
	require.Nil(t, setup.Session)

	var status authsdk.MFAStatusResponse
	resp = s.call(t, http.MethodGet, "/v1/mfa/status", access, nil, &status)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, status.Enabled)
	require.NotNil(t, status.ActivatedAt)
	require.Equal(t, 8, status.BackupCodesRemaining)

	var apiErr authsdk.ErrorResponse
	resp = s.call(t, http.MethodPost, "/v1/mfa/totp/enroll", access, nil, &apiErr)
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeMFAAlreadyEnabled, apiErr.Error)

	creds := authsdk.LoginRequest{Email: "mfa@example.com", Password: testPassword}
	var login authsdk.LoginResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/login", "", creds, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, authsdk.LoginStatusMFARequired, login.Status)
	require.Nil(t, login.Session)
	require.NotNil(t, login.Challenge)
	require.ElementsMatch(t, []string{"totp", "backup_code"}, login.Challenge.Methods)

	resp = s.call(t, http.MethodPost, "/v1/mfa/challenges/verify", "", authsdk.VerifyChallengeRequest{
		ChallengeID: login.Challenge.ChallengeID,
		Code:        "ABCD-EFGH",
	}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeCodeIncorrect, apiErr.Error)

	var passed authsdk.VerifyChallengeResponse
	resp = s.call(t, http.MethodPost, "/v1/mfa/challenges/verify", "", authsdk.VerifyChallengeRequest{
		ChallengeID:    login.Challenge.ChallengeID,
		Code:           s.totp(t, enroll.Secret),
		RememberDevice: true,
	}, &passed)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "login", passed.Type)
	require.NotNil(t, passed.Session)
	require.NotNil(t, passed.DeviceToken)
	require.NotNil(t, cookieNamed(resp, httpapi.DeviceCookieName))
	require.NotNil(t, cookieNamed(resp, httpapi.RefreshCookieName))

	// the device cookie now skips the challenge
	login = authsdk.LoginResponse{}
	resp = s.call(t, http.MethodPost, "/v1/auth/login", "", creds, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, authsdk.LoginStatusAuthenticated, login.Status)
	require.True(t, login.DeviceRemembered)

	// and a backup code works exactly once from a fresh client
	s.client.Jar, _ = cookiejar.New(nil)
	for i, wantStatus := range []int{http.StatusOK, http.StatusUnauthorized} {
		login = authsdk.LoginResponse{}
		resp = s.call(t, http.MethodPost, "/v1/auth/login", "", creds, &login)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, authsdk.LoginStatusMFARequired, login.Status, "attempt %d", i)

		resp = s.call(t, http.MethodPost, "/v1/mfa/challenges/verify", "", authsdk.VerifyChallengeRequest{
			ChallengeID: login.Challenge.ChallengeID,
			Code:        setup.BackupCodes[0],
		}, nil)
		require.Equal(t, wantStatus, resp.StatusCode, "attempt %d", i)
	}
}

func TestLogout(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)
	signup := s.signup(t, "logout@example.com")

	resp := s.call(t, http.MethodPost, "/v1/auth/logout", "", nil, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	ck := cookieNamed(resp, httpapi.RefreshCookieName)
	require.NotNil(t, ck)
	require.Negative(t, ck.MaxAge)

	var apiErr authsdk.ErrorResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/refresh", "", authsdk.RefreshRequest{RefreshToken: signup.Session.RefreshToken}, &apiErr)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRefreshTokenRevoked, apiErr.Error)

	// unknown tokens still sign out
	resp = s.call(t, http.MethodPost, "/v1/auth/logout", "", authsdk.LogoutRequest{RefreshToken: "garbage"}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestLogoutAll(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)
	signup := s.signup(t, "everywhere@example.com")

	resp := s.call(t, http.MethodPost, "/v1/auth/login", "", authsdk.LoginRequest{Email: "everywhere@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.call(t, http.MethodPost, "/v1/auth/logout/all", "", nil, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")

	var out authsdk.LogoutAllResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/logout/all", signup.Session.AccessToken, nil, &out)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.EqualValues(t, 2, out.Revoked)
}

func TestPasswordResetAndEmailVerification(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)
	signup := s.signup(t, "reset@example.com")

	resp := s.call(t, http.MethodPost, "/v1/auth/email/verify", "", authsdk.VerifyEmailRequest{Token: s.mail.last("reset@example.com")}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// unknown addresses get the same answer
	for _, email := range []string{"reset@example.com", "ghost@example.com"} {
		resp = s.call(t, http.MethodPost, "/v1/auth/password/forgot", "", authsdk.ForgotPasswordRequest{Email: email}, nil)
		require.Equal(t, http.StatusAccepted, resp.StatusCode, email)
	}
	require.Empty(t, s.mail.last("ghost@example.com"))

	newPassword := testPassword + "Z"
	resp = s.call(t, http.MethodPost, "/v1/auth/password/reset", "", authsdk.ResetPasswordRequest{
		Token:    s.mail.last("reset@example.com"),
		Password: newPassword,
	}, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	// every session ended with the reset
	resp = s.call(t, http.MethodPost, "/v1/auth/refresh", "", authsdk.RefreshRequest{RefreshToken: signup.Session.RefreshToken}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	var login authsdk.LoginResponse
	resp = s.call(t, http.MethodPost, "/v1/auth/login", "", authsdk.LoginRequest{Email: "reset@example.com", Password: newPassword}, &login)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, authsdk.LoginStatusAuthenticated, login.Status)
}

func TestSystemEndpoints(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, relaxedLimits)

	var jwks authsdk.JWKSResponse
	resp := s.call(t, http.MethodGet, "/.well-known/jwks.json", "", nil, &jwks)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, jwks.Keys, 1)
	require.Equal(t, "OKP", jwks.Keys[0].Kty)

	var live authsdk.HealthResponse
	resp = s.call(t, http.MethodGet, "/livez", "", nil, &live)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	var ready authsdk.HealthResponse
	resp = s.call(t, http.MethodGet, "/readyz", "", nil, &ready)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)
}

func TestLoginRateLimit(t *testing.T) {
	t.Parallel()
	limits := relaxedLimits
	limits.Strict = httpx.RateLimitConfig{RequestsPerWindow: 2, Window: time.Hour, Burst: 2}
	s := newTestServer(t, limits)

	creds := authsdk.LoginRequest{Email: "limited@example.com", Password: testPassword}
	for range 2 {
		resp := s.call(t, http.MethodPost, "/v1/auth/login", "", creds, nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}

	var apiErr authsdk.ErrorResponse
	resp := s.call(t, http.MethodPost, "/v1/auth/login", "", creds, &apiErr)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, authsdk.ErrorCodeRateLimitExceeded, apiErr.Error)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	// a different account from the same address has its own bucket
	resp = s.call(t, http.MethodPost, "/v1/auth/login", "", authsdk.LoginRequest{Email: "other@example.com", Password: testPassword}, nil)
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}
