package service

// Code is the stable machine-readable identifier of a service failure.
type Code string

const (
	CodeInvalidCredentials    Code = "invalid_credentials"
	CodeAccountSuspended      Code = "account_suspended"
	CodeEmailAlreadyExists    Code = "email_already_exists"
	CodeTermsNotAccepted      Code = "terms_not_accepted"
	CodeWeakPassword          Code = "weak_password"
	CodeInvalidOrExpiredToken Code = "invalid_or_expired_token"
	CodeChallengeInvalid      Code = "challenge_invalid"
	CodeChallengeExpired      Code = "challenge_expired"
	CodeChallengeLocked       Code = "challenge_locked"
	CodeCodeIncorrect         Code = "code_incorrect"
	CodeMFAAlreadyEnabled     Code = "mfa_already_enabled"
	CodeInvalidRefreshToken   Code = "invalid_refresh_token"
	CodeRefreshTokenRevoked   Code = "refresh_token_revoked"
	CodeRefreshTokenExpired   Code = "refresh_token_expired"
)

// Error is a typed failure returned by the services. Two errors match
// under errors.Is when their codes are equal, so callers compare against
// the package values regardless of the message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return string(e.Code) + ": " + e.Message }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithMessage returns a copy of e carrying a more specific message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Code: e.Code, Message: msg}
}

var (
	ErrInvalidCredentials    = &Error{CodeInvalidCredentials, "invalid email or password"}
	ErrAccountSuspended      = &Error{CodeAccountSuspended, "account is suspended"}
	ErrEmailAlreadyExists    = &Error{CodeEmailAlreadyExists, "an account with this email already exists"}
	ErrTermsNotAccepted      = &Error{CodeTermsNotAccepted, "terms of service must be accepted"}
	ErrWeakPassword          = &Error{CodeWeakPassword, "password does not meet the policy"}
	ErrInvalidOrExpiredToken = &Error{CodeInvalidOrExpiredToken, "token is invalid or has expired"}
	ErrChallengeInvalid      = &Error{CodeChallengeInvalid, "challenge is invalid"}
	ErrChallengeExpired      = &Error{CodeChallengeExpired, "challenge has expired"}
	ErrChallengeLocked       = &Error{CodeChallengeLocked, "too many attempts, start again"}
	ErrCodeIncorrect         = &Error{CodeCodeIncorrect, "code is incorrect"}
	ErrMFAAlreadyEnabled     = &Error{CodeMFAAlreadyEnabled, "multi-factor authentication is already enabled"}
	ErrInvalidRefreshToken   = &Error{CodeInvalidRefreshToken, "refresh token is invalid"}
	ErrRefreshTokenRevoked   = &Error{CodeRefreshTokenRevoked, "refresh token has been revoked"}
	ErrRefreshTokenExpired   = &Error{CodeRefreshTokenExpired, "refresh token has expired"}

	// ErrUnknownSubject is returned when a valid access token names an
	// account that no longer exists.
	ErrUnknownSubject = ErrInvalidOrExpiredToken.WithMessage("token subject no longer exists")
)
