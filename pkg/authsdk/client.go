package authsdk

import (
	"net/http"
	"strings"
	"time"
)

// SDKClient is a client for the purse authentication service. It covers
// unauthenticated operations and creates authenticated Sessions.
type SDKClient struct {
	BaseURL    string
	HTTPClient *http.Client

	// RefreshSkew refreshes the access token this long before it expires.
	// Default: 30s.
	RefreshSkew time.Duration
}

// NewSDKClient creates a new auth service client.
func NewSDKClient(baseURL string) *SDKClient {
	return &SDKClient{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		RefreshSkew: 30 * time.Second,
	}
}

// NewSessionFromTokens wraps tokens obtained elsewhere (for example stored
// from an earlier login). The session still refreshes itself.
func (c *SDKClient) NewSessionFromTokens(accessToken, refreshToken string, expiresAt time.Time) *Session {
	return &Session{
		client:       c,
		accessToken:  accessToken,
		refreshToken: refreshToken,
		expiresAt:    expiresAt,
	}
}

func (c *SDKClient) newSession(resp SessionResponse) *Session {
	return c.NewSessionFromTokens(resp.AccessToken, resp.RefreshToken, resp.AccessTokenExpiresAt)
}
