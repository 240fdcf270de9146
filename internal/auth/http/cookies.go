package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
)

const (
	RefreshCookieName = "purse_refresh"
	DeviceCookieName  = "purse_device"

	refreshCookiePath = "/v1/auth"
	deviceCookiePath  = "/v1/auth/login"
)

// CookieConfig controls the cookies browser clients get alongside the JSON
// body. Both cookies are HttpOnly and SameSite=Strict.
type CookieConfig struct {
	// Secure should only be off for plain-http local development.
	Secure bool
	Domain string
}

func (c CookieConfig) cookie(name, value, path string, expires time.Time) *http.Cookie {
	ck := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
	if value == "" {
		ck.MaxAge = -1
		return ck
	}
	ck.Expires = expires
	ck.MaxAge = max(int(time.Until(expires).Seconds()), 1)
	return ck
}

func (c CookieConfig) setSession(w http.ResponseWriter, s domain.Session) {
	http.SetCookie(w, c.cookie(RefreshCookieName, s.RefreshToken, refreshCookiePath, s.RefreshTokenExpiresAt))
}

func (c CookieConfig) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, c.cookie(RefreshCookieName, "", refreshCookiePath, time.Time{}))
}

func (c CookieConfig) setDevice(w http.ResponseWriter, d domain.DeviceToken) {
	http.SetCookie(w, c.cookie(DeviceCookieName, d.Token, deviceCookiePath, d.ExpiresAt))
}

// fromBodyOrCookie prefers the explicit value so API clients and browsers
// can share an endpoint.
func fromBodyOrCookie(r *http.Request, body, cookie string) string {
	if body != "" {
		return body
	}
	if ck, err := r.Cookie(cookie); err == nil {
		return ck.Value
	}
	return ""
}
