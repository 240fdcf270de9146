package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/pkg/authsdk"
	"github.com/aussiebroadwan/purse/pkg/httpx"
)

func clientInfo(r *http.Request) domain.ClientInfo {
	return domain.ClientInfo{IP: httpx.ClientIP(r), UserAgent: r.UserAgent()}
}

func sessionResponse(s domain.Session) authsdk.SessionResponse {
	return authsdk.SessionResponse{
		AccessToken:           s.AccessToken,
		TokenType:             "Bearer",
		ExpiresIn:             max(int(time.Until(s.AccessTokenExpiresAt).Seconds()), 0),
		AccessTokenExpiresAt:  s.AccessTokenExpiresAt,
		RefreshToken:          s.RefreshToken,
		RefreshTokenExpiresAt: s.RefreshTokenExpiresAt,
	}
}

func challengeResponse(c domain.ChallengeDescriptor) *authsdk.ChallengeResponse {
	return &authsdk.ChallengeResponse{
		ChallengeID: c.ChallengeID,
		Methods:     c.Methods,
		ExpiresAt:   c.ExpiresAt,
	}
}

// decodeOptionalJSON accepts an empty body for endpoints whose only field
// can also come from a cookie.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	return httpx.DecodeJSON(w, r, v)
}
