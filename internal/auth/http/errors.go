package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/purse/internal/auth/service"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

// statusByCode maps service error codes to HTTP statuses.
var statusByCode = map[service.Code]int{
	service.CodeInvalidCredentials:    http.StatusUnauthorized,
	service.CodeAccountSuspended:      http.StatusForbidden,
	service.CodeEmailAlreadyExists:    http.StatusConflict,
	service.CodeTermsNotAccepted:      http.StatusBadRequest,
	service.CodeWeakPassword:          http.StatusBadRequest,
	service.CodeInvalidOrExpiredToken: http.StatusBadRequest,
	service.CodeChallengeInvalid:      http.StatusBadRequest,
	service.CodeChallengeExpired:      http.StatusGone,
	service.CodeChallengeLocked:       http.StatusTooManyRequests,
	service.CodeCodeIncorrect:         http.StatusUnauthorized,
	service.CodeMFAAlreadyEnabled:     http.StatusConflict,
	service.CodeInvalidRefreshToken:   http.StatusUnauthorized,
	service.CodeRefreshTokenRevoked:   http.StatusUnauthorized,
	service.CodeRefreshTokenExpired:   http.StatusUnauthorized,
}

// writeServiceError answers with the typed error's code, or a bare 500 for
// anything else. Internal error text never reaches the client.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		status, ok := statusByCode[se.Code]
		if !ok {
			status = http.StatusBadRequest
		}
		(&authsdk.APIError{StatusCode: status, Code: string(se.Code), Description: se.Message}).WriteError(w)
		return
	}

	slogx.FromContext(r.Context()).Error("request failed", "err", err)
	authsdk.ErrServerError.WriteError(w)
}

func writeBadRequest(w http.ResponseWriter, r *http.Request, err error) {
	slogx.FromContext(r.Context()).Debug("rejected request body", "err", err)
	authsdk.ErrInvalidRequest.WithDescription(err.Error()).WriteError(w)
}
