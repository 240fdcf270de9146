package auth_test

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestHealthEndpoints checks the liveness and readiness probes.
func TestHealthEndpoints(t *testing.T) {
	svc := setupAuthContainer(t)
	ctx := t.Context()

	live, err := svc.Client.GetLiveness(ctx)
	assertHealthy(t, live, err)
	require.NotEmpty(t, live.Version)

	ready, err := svc.Client.GetReadiness(ctx)
	assertHealthy(t, ready, err)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)
}
