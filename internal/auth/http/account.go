package http

import (
	"net/http"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

// HandleForgotPassword handles POST /v1/auth/password/forgot
//
//	@Summary		Request a password reset
//	@Description	Mails a reset link when the address has an account. The response is the same either way.
//	@Tags			Account
//	@Accept			json
//	@Param			request	body	authsdk.ForgotPasswordRequest	true	"Email address"
//	@Success		202		"Accepted"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/v1/auth/password/forgot [post].
func (h *AuthHandler) HandleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ForgotPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if _, err := h.Auth.RequestPasswordReset(r.Context(), req.Email, clientInfo(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleResetPassword handles POST /v1/auth/password/reset
//
//	@Summary		Reset a password
//	@Description	Sets a new password with the token from the reset email and signs out every session of the account.
//	@Tags			Account
//	@Accept			json
//	@Param			request	body	authsdk.ResetPasswordRequest	true	"Token and new password"
//	@Success		204		"Password changed"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Weak password or invalid/expired token"
//	@Router			/v1/auth/password/reset [post].
func (h *AuthHandler) HandleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ResetPasswordRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Auth.ResetPassword(r.Context(), req.Token, req.Password, clientInfo(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleVerifyEmail handles POST /v1/auth/email/verify
//
//	@Summary		Verify an email address
//	@Tags			Account
//	@Accept			json
//	@Param			request	body	authsdk.VerifyEmailRequest	true	"Token from the verification email"
//	@Success		204		"Verified"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Invalid or expired token"
//	@Router			/v1/auth/email/verify [post].
func (h *AuthHandler) HandleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req authsdk.VerifyEmailRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	if err := h.Auth.VerifyEmail(r.Context(), req.Token, clientInfo(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleResendVerification handles POST /v1/auth/email/resend
//
//	@Summary		Resend the verification email
//	@Description	Replaces any outstanding verification link. Does nothing when the address is already verified.
//	@Tags			Account
//	@Security		BearerAuth
//	@Success		204	"Sent"
//	@Failure		401	{object}	authsdk.ErrorResponse	"Invalid or missing access token"
//	@Router			/v1/auth/email/resend [post].
func (h *AuthHandler) HandleResendVerification(w http.ResponseWriter, r *http.Request) {
	userID, ok := httpx.UserIDFromContext(r.Context())
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	if err := h.Auth.ResendVerification(r.Context(), userID, clientInfo(r)); err != nil {
		writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
