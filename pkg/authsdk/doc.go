/*
Package authsdk is the Go client for the purse authentication service.

# SDKClient vs Session

SDKClient covers the public endpoints: signup, login, challenge
verification, token refresh, password reset and email verification.
Authenticating through it yields a Session, which carries the access and
refresh tokens and rotates them when the access token runs out.

	client := authsdk.NewSDKClient("https://auth.example.com")

	session, err := client.Login(ctx, authsdk.LoginRequest{
		Email:    "ada@example.com",
		Password: password,
	})

# Second factor

When the account has MFA enabled, Login returns an *MFARequiredError
describing the challenge. Answer it with a TOTP code or a backup code:

	var mfaErr *authsdk.MFARequiredError
	if errors.As(err, &mfaErr) {
		session, device, err = client.CompleteLogin(ctx, mfaErr, code, true)
	}

A returned DeviceTokenResponse can be passed as LoginRequest.DeviceToken on
later logins to skip the challenge until it expires.

# Errors

Every non-2xx response becomes an *APIError whose Code is the service's
stable error code (for example "invalid_credentials" or
"challenge_locked"). Compare with errors.Is against the predefined values
or use HasCode.

# Refresh tokens

Refresh tokens rotate: every refresh revokes the presented token, and
presenting a revoked one fails with "refresh_token_revoked". Session
serialises its own refreshes, so share one Session per login rather than
copying tokens between goroutines.
*/
package authsdk
