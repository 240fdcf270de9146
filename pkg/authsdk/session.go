package authsdk

import (
	"context"
	"net/http"
	"sync"
	"time"
)

// Session is an authenticated user. It refreshes the access token when it
// is about to expire; rotation means only one refresh may be in flight,
// so refreshes are serialised.
type Session struct {
	client *SDKClient

	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiresAt    time.Time
}

// AccessToken returns the current access token without refreshing it.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token. It changes after every
// refresh.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshToken
}

// Refresh rotates the tokens now.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshLocked(ctx)
}

func (s *Session) refreshLocked(ctx context.Context) error {
	resp, err := s.client.Refresh(ctx, s.refreshToken)
	if err != nil {
		return err
	}
	s.accessToken = resp.AccessToken
	s.refreshToken = resp.RefreshToken
	s.expiresAt = resp.AccessTokenExpiresAt
	return nil
}

// getValidToken returns an access token that is not about to expire.
func (s *Session) getValidToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if time.Now().Add(s.client.RefreshSkew).Before(s.expiresAt) {
		return s.accessToken, nil
	}
	if err := s.refreshLocked(ctx); err != nil {
		return "", err
	}
	return s.accessToken, nil
}

// doAuthRequest performs a request with a valid access token.
func (s *Session) doAuthRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	token, err := s.getValidToken(ctx)
	if err != nil {
		return nil, err
	}
	return s.client.doRequest(ctx, method, path, body, token)
}

// Logout revokes this session's refresh token. The access token stays
// valid until it expires.
func (s *Session) Logout(ctx context.Context) error {
	return s.client.Logout(ctx, s.RefreshToken())
}

// LogoutAll revokes every refresh token of the user, including this one.
func (s *Session) LogoutAll(ctx context.Context) (int64, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/logout/all", nil)
	if err != nil {
		return 0, err
	}

	var out LogoutAllResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return 0, err
	}
	return out.Revoked, nil
}

// ResendVerification sends a new email verification link.
func (s *Session) ResendVerification(ctx context.Context) error {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/auth/email/resend", nil)
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// EnrollTOTP starts MFA enrollment. Answer the returned challenge with
// SDKClient.VerifyChallenge to turn MFA on.
func (s *Session) EnrollTOTP(ctx context.Context) (*TOTPEnrollResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodPost, "/v1/mfa/totp/enroll", nil)
	if err != nil {
		return nil, err
	}

	var out TOTPEnrollResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// MFAStatus reports whether MFA is on and how many backup codes are left.
func (s *Session) MFAStatus(ctx context.Context) (*MFAStatusResponse, error) {
	resp, err := s.doAuthRequest(ctx, http.MethodGet, "/v1/mfa/status", nil)
	if err != nil {
		return nil, err
	}

	var out MFAStatusResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}
