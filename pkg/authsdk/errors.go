package authsdk

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/purse/pkg/httpx"
)

// Error codes returned by the service. The service-level codes match the
// auth service's typed errors one to one.
const (
	ErrorCodeInvalidRequest      = "invalid_request"
	ErrorCodeInvalidToken        = "invalid_token"
	ErrorCodeServerError         = "server_error"
	ErrorCodeRateLimitExceeded   = "rate_limit_exceeded"
	ErrorCodeInvalidCredentials  = "invalid_credentials"
	ErrorCodeAccountSuspended    = "account_suspended"
	ErrorCodeEmailAlreadyExists  = "email_already_exists"
	ErrorCodeTermsNotAccepted    = "terms_not_accepted"
	ErrorCodeWeakPassword        = "weak_password"
	ErrorCodeInvalidOrExpired    = "invalid_or_expired_token"
	ErrorCodeChallengeInvalid    = "challenge_invalid"
	ErrorCodeChallengeExpired    = "challenge_expired"
	ErrorCodeChallengeLocked     = "challenge_locked"
	ErrorCodeCodeIncorrect       = "code_incorrect"
	ErrorCodeMFAAlreadyEnabled   = "mfa_already_enabled"
	ErrorCodeInvalidRefreshToken = "invalid_refresh_token"
	ErrorCodeRefreshTokenRevoked = "refresh_token_revoked"
	ErrorCodeRefreshTokenExpired = "refresh_token_expired"
)

// APIError is an error response. The server writes it and the client
// parses it back.
type APIError struct {
	StatusCode  int    `json:"-"`
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches on Code so a parsed error compares equal to the predefined
// value with the same code.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as the response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	httpx.WriteError(w, e.StatusCode, e.Code, e.Description)
}

// WithDescription returns a copy of e with a different description.
func (e *APIError) WithDescription(desc string) *APIError {
	return &APIError{StatusCode: e.StatusCode, Code: e.Code, Description: desc}
}

var (
	ErrInvalidRequest = &APIError{
		StatusCode:  http.StatusBadRequest,
		Code:        ErrorCodeInvalidRequest,
		Description: "the request is malformed or missing required parameters",
	}

	ErrInvalidToken = &APIError{
		StatusCode:  http.StatusUnauthorized,
		Code:        ErrorCodeInvalidToken,
		Description: "the access token is missing or invalid",
	}

	ErrServerError = &APIError{
		StatusCode:  http.StatusInternalServerError,
		Code:        ErrorCodeServerError,
		Description: "internal server error",
	}

	ErrRateLimited = &APIError{
		StatusCode: http.StatusTooManyRequests,
		Code:       ErrorCodeRateLimitExceeded,
	}

	ErrInvalidCredentials  = &APIError{StatusCode: http.StatusUnauthorized, Code: ErrorCodeInvalidCredentials}
	ErrAccountSuspended    = &APIError{StatusCode: http.StatusForbidden, Code: ErrorCodeAccountSuspended}
	ErrEmailAlreadyExists  = &APIError{StatusCode: http.StatusConflict, Code: ErrorCodeEmailAlreadyExists}
	ErrChallengeInvalid    = &APIError{StatusCode: http.StatusBadRequest, Code: ErrorCodeChallengeInvalid}
	ErrChallengeExpired    = &APIError{StatusCode: http.StatusGone, Code: ErrorCodeChallengeExpired}
	ErrChallengeLocked     = &APIError{StatusCode: http.StatusTooManyRequests, Code: ErrorCodeChallengeLocked}
	ErrCodeIncorrect       = &APIError{StatusCode: http.StatusUnauthorized, Code: ErrorCodeCodeIncorrect}
	ErrMFAAlreadyEnabled   = &APIError{StatusCode: http.StatusConflict, Code: ErrorCodeMFAAlreadyEnabled}
	ErrRefreshTokenRevoked = &APIError{StatusCode: http.StatusUnauthorized, Code: ErrorCodeRefreshTokenRevoked}
)

// HasCode reports whether err is an *APIError with the given code.
func HasCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// MFARequiredError is returned by Login when the account has a second
// factor and the device is not remembered.
type MFARequiredError struct {
	Challenge ChallengeResponse
}

func (e *MFARequiredError) Error() string {
	return "mfa required: answer challenge with one of " + strings.Join(e.Challenge.Methods, ", ")
}

// parseErrorResponse turns a non-2xx response into an *APIError. Bodies
// that are not error JSON keep the status and a generic code.
func parseErrorResponse(resp *http.Response, body []byte) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	var er ErrorResponse
	if err := json.Unmarshal(body, &er); err == nil && er.Error != "" {
		apiErr.Code = er.Error
		apiErr.Description = er.ErrorDescription
		return apiErr
	}

	apiErr.Code = ErrorCodeServerError
	if resp.StatusCode < http.StatusInternalServerError {
		apiErr.Code = ErrorCodeInvalidRequest
	}
	apiErr.Description = strings.TrimSpace(string(body))
	if apiErr.Description == "" {
		apiErr.Description = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
