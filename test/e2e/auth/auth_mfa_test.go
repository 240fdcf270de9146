package auth_test

import (
	"errors"
	"testing"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/stretchr/testify/require"
)

// TestMFALogin enrolls TOTP and signs in with a code, a remembered device
// and a backup code.
func TestMFALogin(t *testing.T) {
	svc := setupAuthContainer(t)
	client := svc.Client
	ctx := t.Context()

	session, _ := signup(t, client, "mfa@example.com")
	secret, backupCodes := enableMFA(t, client, session)
	require.Len(t, backupCodes, 8)

	status, err := session.MFAStatus(ctx)
	require.NoError(t, err)
	require.True(t, status.Enabled)
	require.Equal(t, 8, status.BackupCodesRemaining)

	_, err = session.EnrollTOTP(ctx)
	require.ErrorIs(t, err, authsdk.ErrMFAAlreadyEnabled)

	creds := authsdk.LoginRequest{Email: "mfa@example.com", Password: testPassword}

	// password alone is not enough any more
	_, err = client.Login(ctx, creds)
	var mfaErr *authsdk.MFARequiredError
	require.True(t, errors.As(err, &mfaErr), "expected MFA challenge, got %v", err)
	require.Contains(t, mfaErr.Challenge.Methods, "totp")

	_, _, err = client.CompleteLogin(ctx, mfaErr, "000000", false)
	assertAPIError(t, err, authsdk.ErrorCodeCodeIncorrect)

	mfaSession, device, err := client.CompleteLogin(ctx, mfaErr, totpCode(t, secret), true)
	require.NoError(t, err)
	require.NotEmpty(t, mfaSession.AccessToken())
	require.NotNil(t, device)

	// the challenge is spent
	_, _, err = client.CompleteLogin(ctx, mfaErr, totpCode(t, secret), false)
	require.ErrorIs(t, err, authsdk.ErrChallengeInvalid)

	// the remembered device skips the challenge
	remembered := creds
	remembered.DeviceToken = device.Token
	_, err = client.Login(ctx, remembered)
	require.NoError(t, err)

	// a backup code works once
	_, err = client.Login(ctx, creds)
	require.True(t, errors.As(err, &mfaErr))
	_, _, err = client.CompleteLogin(ctx, mfaErr, backupCodes[0], false)
	require.NoError(t, err)

	_, err = client.Login(ctx, creds)
	require.True(t, errors.As(err, &mfaErr))
	_, _, err = client.CompleteLogin(ctx, mfaErr, backupCodes[0], false)
	assertAPIError(t, err, authsdk.ErrorCodeCodeIncorrect)

	status, err = mfaSession.MFAStatus(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, status.BackupCodesRemaining)
}

// TestMFAChallengeLockout verifies a challenge dies after too many wrong
// codes, even if the right code follows.
func TestMFAChallengeLockout(t *testing.T) {
	svc := setupAuthContainer(t)
	client := svc.Client
	ctx := t.Context()

	session, _ := signup(t, client, "lockout@example.com")
	secret, _ := enableMFA(t, client, session)

	_, err := client.Login(ctx, authsdk.LoginRequest{Email: "lockout@example.com", Password: testPassword})
	var mfaErr *authsdk.MFARequiredError
	require.True(t, errors.As(err, &mfaErr))

	wrong := "000000"
	if wrong == totpCode(t, secret) {
		wrong = "111111"
	}
	for range 5 {
		_, _, err = client.CompleteLogin(ctx, mfaErr, wrong, false)
		require.ErrorIs(t, err, authsdk.ErrCodeIncorrect)
	}
	_, _, err = client.CompleteLogin(ctx, mfaErr, wrong, false)
	require.ErrorIs(t, err, authsdk.ErrChallengeLocked)

	_, _, err = client.CompleteLogin(ctx, mfaErr, totpCode(t, secret), false)
	require.ErrorIs(t, err, authsdk.ErrChallengeInvalid)
}
