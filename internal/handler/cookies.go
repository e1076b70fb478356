package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/newsroom-auth/internal/middleware"
	"github.com/iliyamo/newsroom-auth/internal/service"
)

// RefreshCookie carries the refresh token; it is only sent to /v1/auth.
const RefreshCookie = "refresh_token"

// CookieConfig controls the auth cookies.
type CookieConfig struct {
	Secure      bool
	RefreshPath string
}

func (cc CookieConfig) refreshPath() string {
	if cc.RefreshPath == "" {
		return "/v1/auth"
	}
	return cc.RefreshPath
}

// setAuthCookies writes both tokens as HTTP-only cookies whose max-age
// matches each token's remaining lifetime.
func (cc CookieConfig) setAuthCookies(c echo.Context, pair *service.TokenPair, now time.Time) {
	c.SetCookie(cc.cookie(middleware.AccessCookie, pair.AccessToken, "/", pair.AccessExpiresAt.Sub(now)))
	c.SetCookie(cc.cookie(RefreshCookie, pair.RefreshToken, cc.refreshPath(), pair.RefreshExpiresAt.Sub(now)))
}

func (cc CookieConfig) clearAuthCookies(c echo.Context) {
	for _, ck := range []*http.Cookie{
		cc.cookie(middleware.AccessCookie, "", "/", 0),
		cc.cookie(RefreshCookie, "", cc.refreshPath(), 0),
	} {
		ck.MaxAge = -1
		ck.Expires = time.Unix(0, 0)
		c.SetCookie(ck)
	}
}

func (cc CookieConfig) cookie(name, value, path string, ttl time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl / time.Second),
		HttpOnly: true,
		Secure:   cc.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
