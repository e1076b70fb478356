package middleware // middleware provides shared request processing for handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/newsroom-auth/internal/rbac"
)

// Context keys set by Authenticate.
const (
	PrincipalKey = "principal"
	UserIDKey    = "user_id"
	RoleKey      = "role"
)

// AccessCookie is the cookie carrying the access token for browser clients.
const AccessCookie = "access_token"

// Verifier turns a raw access token into a principal.  Any error means the
// token is not trusted.
type Verifier interface {
	Verify(raw string) (*rbac.Principal, error)
}

// Authenticate validates the access token from the Authorization header, or
// from the access_token cookie when no header is present, and stores the
// principal in the context.  Requests without a valid token get 401.
func Authenticate(v Verifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c)
			if raw == "" {
				return deny(c, http.StatusUnauthorized, "authentication required")
			}
			p, err := v.Verify(raw)
			if err != nil || p == nil {
				return deny(c, http.StatusUnauthorized, "invalid or expired token")
			}
			c.Set(PrincipalKey, p)
			c.Set(UserIDKey, strconv.FormatUint(p.UserID, 10))
			c.Set(RoleKey, p.Role)
			return next(c)
		}
	}
}

func bearerToken(c echo.Context) string {
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if auth != "" {
		if len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
			return strings.TrimSpace(auth[7:])
		}
		return ""
	}
	if ck, err := c.Cookie(AccessCookie); err == nil {
		return ck.Value
	}
	return ""
}

// PrincipalFrom returns the principal stored by Authenticate, or nil.
func PrincipalFrom(c echo.Context) *rbac.Principal {
	p, _ := c.Get(PrincipalKey).(*rbac.Principal)
	return p
}

// Gate enforces a rule against the request principal: 401 without one, 403
// when the principal lacks the role or a permission.
func Gate(rule rbac.Rule) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			switch rbac.Authorize(PrincipalFrom(c), rule) {
			case rbac.Allow:
				return next(c)
			case rbac.Forbidden:
				return deny(c, http.StatusForbidden, "insufficient permissions")
			default:
				return deny(c, http.StatusUnauthorized, "authentication required")
			}
		}
	}
}

// RequireRole admits principals whose role is one of roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	return Gate(rbac.Rule{Roles: roles})
}

// RequirePermission admits principals holding every listed permission.
func RequirePermission(perms ...rbac.Permission) echo.MiddlewareFunc {
	return Gate(rbac.Rule{Permissions: perms})
}

// deny writes the standard error envelope.
func deny(c echo.Context, status int, message string) error {
	return c.JSON(status, echo.Map{"success": false, "message": message})
}
