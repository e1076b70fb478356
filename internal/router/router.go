package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/config"
	"github.com/iliyamo/newsroom-auth/internal/handler"
	"github.com/iliyamo/newsroom-auth/internal/middleware"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
)

// Deps is everything the HTTP layer is built from.  Redis may be nil, in
// which case rate limiting and caching are disabled.
type Deps struct {
	Auth      *handler.AuthHandler
	Roles     *handler.RoleHandler
	Users     *handler.UserHandler
	Verifier  middleware.Verifier
	DB        handler.Pinger
	Redis     *redis.Client
	RateLimit config.RateLimitConfig
	Cache     config.CacheConfig
	Logger    *zap.Logger
}

// New builds the Echo instance with global middleware and every route.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Logger))
	e.Use(echomw.BodyLimit("64K"))

	RegisterRoutes(e, d.DB)
	RegisterAuth(e, d.Auth, d.Verifier, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Logger))
	RegisterRoles(e, d.Roles, d.Verifier, middleware.NewRedisCache(d.Cache, d.Redis, d.Logger))
	RegisterUsers(e, d.Users, d.Verifier)
	return e
}

// RegisterRoutes registers routes that do not require authentication.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health(db))
}

// RegisterAuth registers the account and session endpoints under /v1/auth.
// Credential endpoints sit behind the limiter; the rest of the protected
// ones require a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, v middleware.Verifier, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register, limiter)
	g.POST("/login", a.Login, limiter)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.POST("/verify-email", a.VerifyEmail)
	g.POST("/resend-verification", a.ResendVerification, limiter)
	g.POST("/forgot-password", a.ForgotPassword, limiter)
	g.POST("/reset-password", a.ResetPassword)

	auth := g.Group("", middleware.Authenticate(v))
	auth.GET("/me", a.Me)
	auth.POST("/change-password", a.ChangePassword)
	auth.POST("/logout-all", a.LogoutAll)
	auth.POST("/mfa/setup", a.MFASetup)
	auth.POST("/mfa/verify", a.MFAVerify)
	auth.POST("/mfa/disable", a.MFADisable)
}

// RegisterRoles registers the role catalogue and assignment endpoints.
func RegisterRoles(e *echo.Echo, r *handler.RoleHandler, v middleware.Verifier, cache echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.Authenticate(v))
	g.GET("/roles", r.ListRoles, middleware.RequirePermission(rbac.P("roles", "read")), cache)
	g.GET("/users/:id/roles", r.UserRoles, middleware.RequirePermission(rbac.P("users", "read")))
	g.POST("/users/:id/roles", r.AssignRole, middleware.RequirePermission(rbac.P("roles", "manage")))
	g.DELETE("/users/:id/roles/:role", r.RevokeRole, middleware.RequirePermission(rbac.P("roles", "manage")))
}

// RegisterUsers registers account administration endpoints.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, v middleware.Verifier) {
	g := e.Group("/v1/users", middleware.Authenticate(v))
	g.POST("/:id/status", u.SetStatus, middleware.RequirePermission(rbac.P("users", "manage")))
}
