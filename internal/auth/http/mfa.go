package http

import (
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// MFAHandler handles all MFA-related endpoints.
type MFAHandler struct {
	Auth    *service.AuthService
	Cookies CookieConfig
}

// HandleEnroll handles POST /v1/mfa/totp/enroll
//
//	@Summary		Start TOTP enrollment
//	@Description	Generates a TOTP secret and opens a setup challenge. MFA is enabled once the challenge is answered with a code from the authenticator app.
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.TOTPEnrollResponse	"Secret, QR code and setup challenge"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Failure		409	{object}	authsdk.ErrorResponse		"MFA already enabled"
//	@Router			/v1/mfa/totp/enroll [post].
func (h *MFAHandler) HandleEnroll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	res, err := h.Auth.StartMFAEnrollment(ctx, userID, clientInfo(r))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.TOTPEnrollResponse{
		ChallengeID: res.ChallengeID,
		Secret:      res.Secret,
		OTPAuthURL:  res.OTPAuthURL,
		QRCode:      res.QRCode,
		ExpiresAt:   res.ExpiresAt,
	})
}

// HandleStatus handles GET /v1/mfa/status
//
//	@Summary		MFA status
//	@Tags			MFA
//	@Security		BearerAuth
//	@Produce		json
//	@Success		200	{object}	authsdk.MFAStatusResponse	"Whether MFA is on and how many backup codes are left"
//	@Failure		401	{object}	authsdk.ErrorResponse		"Invalid or missing access token"
//	@Router			/v1/mfa/status [get].
func (h *MFAHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID, ok := httpx.UserIDFromContext(ctx)
	if !ok {
		authsdk.ErrInvalidToken.WriteError(w)
		return
	}

	st, err := h.Auth.MFAStatus(ctx, userID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.MFAStatusResponse{
		Enabled:              st.Enabled,
		ActivatedAt:          st.ActivatedAt,
		BackupCodesRemaining: st.BackupCodesRemaining,
	})
}

// HandleVerifyChallenge handles POST /v1/mfa/challenges/verify
//
//	@Summary		Answer an MFA challenge
//	@Description	Setup challenges return the backup codes (shown once). Login challenges return a session and, when asked for and a TOTP code was used, a remembered-device token.
//	@Description	The challenge id is the credential here; no access token is needed.
//	@Tags			MFA
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.VerifyChallengeRequest	true	"Challenge id and code"
//	@Success		200		{object}	authsdk.VerifyChallengeResponse	"Challenge passed"
//	@Failure		400		{object}	authsdk.ErrorResponse			"Unknown or already used challenge"
//	@Failure		401		{object}	authsdk.ErrorResponse			"Wrong code"
//	@Failure		409		{object}	authsdk.ErrorResponse			"MFA already enabled"
//	@Failure		410		{object}	authsdk.ErrorResponse			"Challenge expired"
//	@Failure		429		{object}	authsdk.ErrorResponse			"Challenge locked after too many wrong codes"
//	@Router			/v1/mfa/challenges/verify [post].
func (h *MFAHandler) HandleVerifyChallenge(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req authsdk.VerifyChallengeRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, r, err)
		return
	}

	res, err := h.Auth.VerifyMFAChallenge(ctx, service.VerifyChallengeInput{
		ChallengeID:    req.ChallengeID,
		Code:           req.Code,
		RememberDevice: req.RememberDevice,
		Client:         clientInfo(r),
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	out := authsdk.VerifyChallengeResponse{
		Type:           string(res.Type),
		BackupCodes:    res.BackupCodes,
		UsedBackupCode: res.UsedBackupCode,
	}
	if res.Session != nil {
		h.Cookies.setSession(w, *res.Session)
		sess := sessionResponse(*res.Session)
		out.Session = &sess
	}
	if res.RememberedDevice != nil {
		h.Cookies.setDevice(w, *res.RememberedDevice)
		out.DeviceToken = &authsdk.DeviceTokenResponse{
			Token:     res.RememberedDevice.Token,
			ExpiresAt: res.RememberedDevice.ExpiresAt,
		}
	}
	if res.UsedBackupCode {
		slogx.FromContext(ctx).Info("challenge passed with backup code", "user_id", res.UserID)
	}

	httpx.WriteJSON(w, http.StatusOK, out)
}
