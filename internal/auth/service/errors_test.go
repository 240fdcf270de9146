package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_Is(t *testing.T) {
	t.Parallel()

	custom := ErrWeakPassword.WithMessage("password must be at least 12 characters")
	require.ErrorIs(t, custom, ErrWeakPassword)
	require.NotErrorIs(t, custom, ErrInvalidCredentials)
	require.Equal(t, "weak_password: password must be at least 12 characters", custom.Error())

	// the package value is not modified
	require.NotEqual(t, custom.Message, ErrWeakPassword.Message)

	wrapped := fmt.Errorf("signup: %w", ErrChallengeLocked)
	require.ErrorIs(t, wrapped, ErrChallengeLocked)

	var se *Error
	require.True(t, errors.As(wrapped, &se))
	require.Equal(t, CodeChallengeLocked, se.Code)
}
