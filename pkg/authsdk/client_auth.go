package authsdk

import (
	"context"
	"net/http"
)

// Signup creates an account and returns its first session.
func (c *SDKClient) Signup(ctx context.Context, req SignupRequest) (*Session, *SignupResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/signup", req, "")
	if err != nil {
		return nil, nil, err
	}

	var out SignupResponse
	if err := decodeJSON(resp, &out, http.StatusCreated); err != nil {
		return nil, nil, err
	}
	return c.newSession(out.Session), &out, nil
}

// Login checks the password. When a second factor is required it returns
// an *MFARequiredError; finish with CompleteLogin.
func (c *SDKClient) Login(ctx context.Context, req LoginRequest) (*Session, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/login", req, "")
	if err != nil {
		return nil, err
	}

	var out LoginResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}

	if out.Status == LoginStatusMFARequired && out.Challenge != nil {
		return nil, &MFARequiredError{Challenge: *out.Challenge}
	}
	if out.Session == nil {
		return nil, ErrServerError.WithDescription("login response carried no session")
	}
	return c.newSession(*out.Session), nil
}

// VerifyChallenge answers an MFA challenge, either the setup challenge
// from EnrollTOTP or a login challenge.
func (c *SDKClient) VerifyChallenge(ctx context.Context, req VerifyChallengeRequest) (*VerifyChallengeResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/mfa/challenges/verify", req, "")
	if err != nil {
		return nil, err
	}

	var out VerifyChallengeResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// CompleteLogin answers the challenge of an MFARequiredError. The device
// token is nil unless rememberDevice was set and a TOTP code was used.
func (c *SDKClient) CompleteLogin(ctx context.Context, mfa *MFARequiredError, code string, rememberDevice bool) (*Session, *DeviceTokenResponse, error) {
	out, err := c.VerifyChallenge(ctx, VerifyChallengeRequest{
		ChallengeID:    mfa.Challenge.ChallengeID,
		Code:           code,
		RememberDevice: rememberDevice,
	})
	if err != nil {
		return nil, nil, err
	}
	if out.Session == nil {
		return nil, nil, ErrServerError.WithDescription("challenge response carried no session")
	}
	return c.newSession(*out.Session), out.DeviceToken, nil
}

// Refresh exchanges a refresh token for a new pair. The presented token
// is revoked.
func (c *SDKClient) Refresh(ctx context.Context, refreshToken string) (*SessionResponse, error) {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/refresh", RefreshRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return nil, err
	}

	var out SessionResponse
	if err := decodeJSON(resp, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes a refresh token.
func (c *SDKClient) Logout(ctx context.Context, refreshToken string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/logout", LogoutRequest{RefreshToken: refreshToken}, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// ForgotPassword asks for a reset email. The answer is the same whether
// or not the address has an account.
func (c *SDKClient) ForgotPassword(ctx context.Context, email string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/password/forgot", ForgotPasswordRequest{Email: email}, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusAccepted)
}

// ResetPassword sets a new password with a token from the reset email.
// Every session of the account is signed out.
func (c *SDKClient) ResetPassword(ctx context.Context, token, password string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/password/reset", ResetPasswordRequest{Token: token, Password: password}, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}

// VerifyEmail confirms an address with a token from the verification
// email.
func (c *SDKClient) VerifyEmail(ctx context.Context, token string) error {
	resp, err := c.doRequest(ctx, http.MethodPost, "/v1/auth/email/verify", VerifyEmailRequest{Token: token}, "")
	if err != nil {
		return err
	}
	return checkStatus(resp, http.StatusNoContent)
}
