package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/newsroom-auth/internal/config"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
)

type stubVerifier map[string]*rbac.Principal

func (s stubVerifier) Verify(raw string) (*rbac.Principal, error) {
	if p, ok := s[raw]; ok {
		return p, nil
	}
	return nil, errors.New("bad token")
}

var (
	editor = &rbac.Principal{UserID: 7, Email: "ed@news.example", Role: "editor",
		Permissions: rbac.NewSet(rbac.P("articles", "publish"), rbac.P("articles", "read"))}
	reader = &rbac.Principal{UserID: 9, Email: "r@news.example", Role: "public",
		Permissions: rbac.NewSet(rbac.P("articles", "read"))}
	verifier = stubVerifier{"ed-token": editor, "reader-token": reader}
)

func okHandler(c echo.Context) error {
	p := PrincipalFrom(c)
	if p == nil {
		return c.String(http.StatusOK, "anon")
	}
	return c.String(http.StatusOK, c.Get(UserIDKey).(string)+":"+p.Role)
}

func do(e *echo.Echo, method, path string, mod func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if mod != nil {
		mod(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func bearer(tok string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
}

func TestAuthenticate(t *testing.T) {
	e := echo.New()
	e.GET("/me", okHandler, Authenticate(verifier))

	tests := []struct {
		name   string
		mod    func(*http.Request)
		status int
		body   string
	}{
		{"no credentials", nil, http.StatusUnauthorized, ""},
		{"unknown token", bearer("forged"), http.StatusUnauthorized, ""},
		{"wrong scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic ed-token") }, http.StatusUnauthorized, ""},
		{"bearer", bearer("ed-token"), http.StatusOK, "7:editor"},
		{"lowercase scheme", func(r *http.Request) { r.Header.Set("Authorization", "bearer reader-token") }, http.StatusOK, "9:public"},
		{"cookie", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "reader-token"}) }, http.StatusOK, "9:public"},
		{"header wins over cookie", func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer forged")
			r.AddCookie(&http.Cookie{Name: AccessCookie, Value: "ed-token"})
		}, http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, "/me", tt.mod)
			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"success":false`)
			}
		})
	}
}

func TestGate(t *testing.T) {
	e := echo.New()
	auth := Authenticate(verifier)
	e.GET("/publish", okHandler, auth, RequirePermission(rbac.P("articles", "publish")))
	e.GET("/desk", okHandler, auth, RequireRole("editor", "super_admin"))
	e.GET("/open", okHandler, Gate(rbac.Rule{}))

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"permission held", "/publish", "ed-token", http.StatusOK},
		{"permission missing", "/publish", "reader-token", http.StatusForbidden},
		{"role held", "/desk", "ed-token", http.StatusOK},
		{"role missing", "/desk", "reader-token", http.StatusForbidden},
		{"invalid token is 401 not 403", "/publish", "forged", http.StatusUnauthorized},
		{"gate without authentication", "/open", "ed-token", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(e, http.MethodGet, tt.path, bearer(tt.token))
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestTokenBucket(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled: true, Capacity: 2, RefillTokens: 1, RefillInterval: time.Minute,
		TTL: 5 * time.Minute, KeyStrategy: "ip_route", Prefix: "rl",
	}
	e := echo.New()
	e.POST("/login", okHandler, NewTokenBucket(cfg, rdb, zap.NewNop()))
	e.POST("/register", okHandler, NewTokenBucket(cfg, rdb, zap.NewNop()))

	for i := 0; i < 2; i++ {
		rec := do(e, http.MethodPost, "/login", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
	}
	rec := do(e, http.MethodPost, "/login", nil)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	// buckets are per route
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/register", nil).Code)
	// other clients are unaffected
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/login", func(r *http.Request) {
		r.RemoteAddr = "198.51.100.7:4000"
	}).Code)
}

func TestTokenBucket_DegradesWithoutRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Minute, TTL: time.Hour, Prefix: "rl"}

	e := echo.New()
	e.POST("/nil", okHandler, NewTokenBucket(cfg, nil, nil))
	core, logs := observer.New(zapcore.WarnLevel)
	e.POST("/down", okHandler, NewTokenBucket(cfg, rdb, zap.New(core)))

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/nil", nil).Code)
	}
	mr.Close()
	assert.Equal(t, http.StatusOK, do(e, http.MethodPost, "/down", nil).Code)
	assert.Equal(t, 1, logs.FilterMessage("rate limiter unavailable").Len())
}

func TestRedisCache(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled: true, Methods: map[string]bool{"GET": true}, TTL: time.Minute,
		KeyStrategy: "route_query", Prefix: "cache", MaxBodyBytes: 1 << 10,
	}
	calls := 0
	h := func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}
	e := echo.New()
	e.GET("/roles", h, NewRedisCache(cfg, rdb, zap.NewNop()))
	e.GET("/session", func(c echo.Context) error {
		calls++
		c.SetCookie(&http.Cookie{Name: "sid", Value: "x"})
		return c.String(http.StatusOK, "cookie")
	}, NewRedisCache(cfg, rdb, zap.NewNop()))

	first := do(e, http.MethodGet, "/roles", nil)
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := do(e, http.MethodGet, "/roles", nil)
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, echo.MIMEApplicationJSON, second.Header().Get("Content-Type"))
	assert.Equal(t, 1, calls)

	// a different query string is a different entry
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/roles?page=2", nil).Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)

	do(e, http.MethodGet, "/session", nil)
	assert.Equal(t, "MISS", do(e, http.MethodGet, "/session", nil).Header().Get("X-Cache"))
	assert.Equal(t, 4, calls)
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/me", okHandler, Authenticate(verifier))

	rec := do(e, http.MethodGet, "/me", bearer("ed-token"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rec = do(e, http.MethodGet, "/me", func(r *http.Request) { r.Header.Set(echo.HeaderXRequestID, "req-42") })
	assert.Equal(t, "req-42", rec.Header().Get(echo.HeaderXRequestID))

	entries := logs.FilterMessage("request").AllUntimed()
	require.Len(t, entries, 2)
	first := entries[0].ContextMap()
	assert.Equal(t, "/me", first["route"])
	assert.Equal(t, int64(http.StatusOK), first["status"])
	assert.Equal(t, "7", first["user_id"])
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, "req-42", entries[1].ContextMap()["request_id"])
	for _, en := range entries {
		assert.NotContains(t, en.ContextMap(), "authorization")
	}
}
