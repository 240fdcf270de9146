package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// AuthHandler handles signup, login and the session lifecycle.
type AuthHandler struct {
	Auth    *service.AuthService
	Cookies CookieConfig
}

// HandleSignup handles POST /v1/auth/signup
//
//	@Summary		Create an account
//	@Description	Creates an account and signs it in. A verification email is sent; the address is unverified until it is confirmed.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.SignupRequest	true	"Account details"
//	@Success		201		{object}	authsdk.SignupResponse	"Account and first session"
//	@Failure		400		{object}	authsdk.ErrorResponse	"Weak password, terms not accepted or malformed body"
//	@Failure		409		{object}	authsdk.ErrorResponse	"Email already registered"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/v1/auth/signup [post].
func (h *AuthHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SignupRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	res, err := h.Auth.Signup(r.Context(), service.SignupInput{
		Email:       req.Email,
		Password:    req.Password,
		AcceptTerms: req.AcceptTerms,
		RememberMe:  req.RememberMe,
		Client:      clientInfo(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.setSession(w, res.Session)
	httpx.WriteJSON(w, http.StatusCreated, authsdk.SignupResponse{
		UserID:                    res.User.ID,
		Email:                     res.User.Email,
		RequiresEmailVerification: res.RequiresEmailVerification,
		Session:                   sessionResponse(res.Session),
	})
}

// HandleLogin handles POST /v1/auth/login
//
//	@Summary		Sign in with email and password
//	@Description	Returns a session, or an MFA challenge when the account has a second factor and the device is not remembered.
//	@Description	The remembered-device token may be sent in the body or the purse_device cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.LoginRequest	true	"Credentials"
//	@Success		200		{object}	authsdk.LoginResponse	"Session or pending challenge"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid credentials"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account suspended"
//	@Failure		429		{object}	authsdk.ErrorResponse	"Rate limit exceeded"
//	@Router			/v1/auth/login [post].
func (h *AuthHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LoginRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	res, err := h.Auth.Login(r.Context(), service.LoginInput{
		Email:       req.Email,
		Password:    req.Password,
		RememberMe:  req.RememberMe,
		DeviceToken: fromBodyOrCookie(r, req.DeviceToken, DeviceCookieName),
		Client:      clientInfo(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if res.Challenge != nil {
		httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
			Status:    authsdk.LoginStatusMFARequired,
			Challenge: challengeResponse(*res.Challenge),
		})
		return
	}

	h.Cookies.setSession(w, *res.Session)
	sess := sessionResponse(*res.Session)
	httpx.WriteJSON(w, http.StatusOK, authsdk.LoginResponse{
		Status:           authsdk.LoginStatusAuthenticated,
		Session:          &sess,
		DeviceRemembered: res.DeviceRemembered,
	})
}

// HandleRefresh handles POST /v1/auth/refresh
//
//	@Summary		Rotate a refresh token
//	@Description	Exchanges a refresh token for a new access and refresh token. The presented token is revoked; presenting it again fails with refresh_token_revoked.
//	@Description	The token may be sent in the body or the purse_refresh cookie.
//	@Tags			Auth
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	false	"Refresh token"
//	@Success		200		{object}	authsdk.SessionResponse	"New session"
//	@Failure		401		{object}	authsdk.ErrorResponse	"Invalid, revoked or expired refresh token"
//	@Failure		403		{object}	authsdk.ErrorResponse	"Account suspended"
//	@Router			/v1/auth/refresh [post].
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	sess, err := h.Auth.RefreshSession(r.Context(), fromBodyOrCookie(r, req.RefreshToken, RefreshCookieName), clientInfo(r))
	if err != nil {
		var se *service.Error
		if errors.As(err, &se) {
			h.Cookies.clearSession(w)
		}
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.setSession(w, sess)
	httpx.WriteJSON(w, http.StatusOK, sessionResponse(sess))
}

// HandleLogout handles POST /v1/auth/logout
//
//	@Summary		Sign out
//	@Description	Revokes the refresh token. Access tokens already issued stay valid until they expire. Unknown tokens are ignored.
//	@Tags			Auth
//	@Accept			json
//	@Param			request	body	authsdk.LogoutRequest	false	"Refresh token"
//	@Success		204		"Signed out"
//	@Router			/v1/auth/logout [post].
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LogoutRequest
	if err := decodeOptionalJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	err := h.Auth.Logout(r.Context(), fromBodyOrCookie(r, req.RefreshToken, RefreshCookieName), clientInfo(r))
	if err != nil && !errors.Is(err, service.ErrInvalidRefreshToken) {
		writeServiceError(w, r, err)
		return
	}

	h.Cookies.clearSession(w)
	w.WriteHeader(http.StatusNoContent)
}

// HandleLogoutAll handles POST /v1/auth/logout/all
//
//	@Summary		Sign out everywhere
//	@Description	Revokes every refresh token of the authenticated user.
//	@Tags			Auth
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.LogoutAllResponse	"Number of sessions revoked"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Router			/v1/auth/logout/all [post].
func (h *AuthHandler) HandleLogoutAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	n, err := h.Auth.LogoutEverywhere(ctx, userID, clientInfo(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	slogx.FromContext(ctx).Info("signed out everywhere", "sessions", n)
	h.Cookies.clearSession(w)
	httpx.WriteJSON(w, http.StatusOK, authsdk.LogoutAllResponse{Revoked: n})
}
