package auth_test

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/totpx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

/*
 * Common constants and helper functions for auth service end-to-end tests.
 * This includes container setup, account flows, and assertions.
 */

const (
	testImageName = "purse-auth-test:latest"

	// 32 bytes, hex. Only ever used by these tests.
	testEncryptionKey = "8f1c2d3e4a5b6c7d8e9fa0b1c2d3e4f5061728394a5b6c7d8e9fa0b1c2d3e4f5"

	testPassword = "Correct-Horse-9"
)

// TestMain manages the test lifecycle, builds the Docker image once before
// all tests and cleans it up after all tests complete.
func TestMain(m *testing.M) {
	fmt.Fprintf(os.Stdout, "Building Auth Service Docker image...")

	if err := buildDockerImage(); err != nil {
		fmt.Fprintf(os.Stderr, "\nFailed to build Docker image: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, " done\n")

	exitCode := m.Run()

	fmt.Fprintf(os.Stdout, "Cleaning up Auth Service Docker image...")
	cleanupDockerImage()
	fmt.Fprintf(os.Stdout, " done\n")

	os.Exit(exitCode)
}

// buildDockerImage builds the test Docker image if it doesn't exist.
func buildDockerImage() error {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "build",
		"-t", testImageName,
		"-f", "../../../cmd/auth/Dockerfile",
		"../../../")
	cmd.Dir = "."
	cmd.Stdout = os.Stdout
	cmd.Stderr = nil

	return cmd.Run()
}

// cleanupDockerImage removes the test Docker image.
func cleanupDockerImage() {
	ctx := context.Background()
	cmd := exec.CommandContext(ctx, "docker", "rmi", "-f", testImageName)
	_ = cmd.Run() // Ignore errors - image might not exist
}

// authContainer is a running service plus what tests need to talk to it.
type authContainer struct {
	container testcontainers.Container
	BaseURL   string
	Client    *authsdk.SDKClient
}

// baseEnv is the environment every test container starts with.
func baseEnv() map[string]string {
	return map[string]string{
		"AUTH_DATABASE_FILE":    "/tmp/auth.db",
		"AUTH_PEPPER_FILE":      "/tmp/pepper",
		"AUTH_ISSUER":           "purse-auth",
		"AUTH_ALGORITHM":        "EdDSA",
		"AUTH_NUM_KEYS":         "1",
		"AUTH_ENCRYPTION_KEY":   testEncryptionKey,
		"AUTH_MAILER_LOG_LINKS": "true",
		"ENV":                   "test",
		"LOG_LEVEL":             "info",
		"LOG_FORMAT":            "json",
	}
}

// setupAuthContainer starts the service with relaxed rate limits. Tests
// make many rapid requests which would otherwise hit the production limits.
func setupAuthContainer(t *testing.T) *authContainer {
	t.Helper()
	env := baseEnv()
	for _, profile := range []string{"STRICT", "MODERATE", "LENIENT"} {
		env["RATELIMIT_"+profile+"_REQUESTS"] = "1000"
		env["RATELIMIT_"+profile+"_BURST"] = "1000"
	}
	return startContainer(t, env)
}

// setupAuthContainerWithDefaultRateLimits starts the service with the
// production limits, for the rate limit tests only.
func setupAuthContainerWithDefaultRateLimits(t *testing.T) *authContainer {
	t.Helper()
	return startContainer(t, baseEnv())
}

func startContainer(t *testing.T, env map[string]string) *authContainer {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        testImageName,
		ExposedPorts: []string{"8080/tcp"},
		Env:          env,
		WaitingFor: wait.ForHTTP("/readyz").
			WithPort("8080/tcp").
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	mappedPort, err := container.MappedPort(ctx, "8080")
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	baseURL := fmt.Sprintf("http://%s:%s", host, mappedPort.Port())
	return &authContainer{
		container: container,
		BaseURL:   baseURL,
		Client:    authsdk.NewSDKClient(baseURL),
	}
}

// mailedToken digs the newest token mailed to email out of the container
// log. The service logs links instead of sending mail in these tests.
func (c *authContainer) mailedToken(t *testing.T, msg, email string) string {
	t.Helper()

	var token string
	require.Eventually(t, func() bool {
		logs, err := c.container.Logs(context.Background())
		if err != nil {
			return false
		}
		defer logs.Close()

		sc := bufio.NewScanner(logs)
		sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for sc.Scan() {
			var line struct {
				Msg  string `json:"msg"`
				To   string `json:"to"`
				Link string `json:"link"`
			}
			// Docker prefixes multiplexed frames; skip to the JSON.
			b := sc.Bytes()
			for i, ch := range b {
				if ch == '{' {
					b = b[i:]
					break
				}
			}
			if json.Unmarshal(b, &line) != nil || line.Msg != msg || line.To != email {
				continue
			}
			if u, err := url.Parse(line.Link); err == nil {
				token = u.Query().Get("token")
			}
		}
		return token != ""
	}, 5*time.Second, 100*time.Millisecond, "no %q for %s in the service log", msg, email)

	return token
}

// signup creates an account and returns its session.
func signup(t *testing.T, client *authsdk.SDKClient, email string) (*authsdk.Session, *authsdk.SignupResponse) {
	t.Helper()

	session, resp, err := client.Signup(t.Context(), authsdk.SignupRequest{
		Email:       email,
		Password:    testPassword,
		AcceptTerms: true,
	})
	require.NoError(t, err, "Signup should succeed")
	require.NotNil(t, session)
	require.NotEmpty(t, resp.UserID)

	return session, resp
}

// enableMFA enrolls TOTP for the session's account and returns the secret
// and the backup codes.
func enableMFA(t *testing.T, client *authsdk.SDKClient, session *authsdk.Session) (string, []string) {
	t.Helper()
	ctx := t.Context()

	enroll, err := session.EnrollTOTP(ctx)
	require.NoError(t, err)

	res, err := client.VerifyChallenge(ctx, authsdk.VerifyChallengeRequest{
		ChallengeID: enroll.ChallengeID,
		Code:        totpCode(t, enroll.Secret),
	})
	require.NoError(t, err)
	require.Equal(t, "setup", res.Type)
	require.NotEmpty(t, res.BackupCodes)

	return enroll.Secret, res.BackupCodes
}

func totpCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totpx.NewCodec("purse-auth").GenerateCode(secret, time.Now())
	require.NoError(t, err)
	return code
}

// assertAPIError checks err carries the given error code.
func assertAPIError(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.True(t, authsdk.HasCode(err, code), "expected %s, got: %v", code, err)
}

// assertHealthy verifies a health check response is OK.
func assertHealthy(t *testing.T, health *authsdk.HealthResponse, err error) {
	t.Helper()
	require.NoError(t, err)
	require.NotNil(t, health)
	require.Equal(t, "ok", health.Status)
}
