package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/middleware"
	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/service"
)

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Auth    *service.AuthService
	Tokens  *service.TokenService
	MFA     *service.MFAService
	Cookies CookieConfig
	Logger  *zap.Logger
	Timeout time.Duration
	Now     func() time.Time
}

func NewAuthHandler(auth *service.AuthService, tokens *service.TokenService, mfaSvc *service.MFAService, cookies CookieConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Auth: auth, Tokens: tokens, MFA: mfaSvc, Cookies: cookies, Logger: logger, Timeout: 5 * time.Second}
}

// ----- DTOs -----

type registerReq struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	Username    string `json:"username"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DisplayName string `json:"display_name"`
}

type loginReq struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
	MFACode    string `json:"mfa_code"`
}

type tokenReq struct {
	Token string `json:"token"`
}

type emailReq struct {
	Email string `json:"email"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

type resetReq struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type changePasswordReq struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// authData is the payload of login and refresh.
type authData struct {
	User *model.PublicUser `json:"user,omitempty"`
	*service.TokenPair
}

// Generic replies that must not depend on whether the account exists.
const (
	forgotPasswordMessage = "if the address is registered, a password reset link has been sent"
	resendMessage         = "if the address has a pending account, a verification link has been sent"
)

func (h *AuthHandler) ctx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), h.Timeout)
}

func (h *AuthHandler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

// Register creates a pending account and mails a verification link.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.Register(ctx, service.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		Username:    req.Username,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusCreated, "registration successful, check your email to verify the account", u)
}

// Login verifies credentials.  MFA accounts without a code get 200 with
// success=false and mfa_required instead of tokens.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	res, err := h.Auth.Login(ctx, service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		RememberMe: req.RememberMe,
		MFACode:    req.MFACode,
	})
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	if res.MFARequired {
		return c.JSON(http.StatusOK, Response{
			Success: false,
			Message: "multi-factor authentication code required",
			Data:    echo.Map{"mfa_required": true},
		})
	}
	h.Cookies.setAuthCookies(c, res.Tokens, h.now())
	return ok(c, http.StatusOK, "login successful", authData{User: res.User, TokenPair: res.Tokens})
}

// refreshToken reads the refresh token from the body, falling back to the
// refresh_token cookie.
func refreshToken(c echo.Context) string {
	var req refreshReq
	_ = c.Bind(&req)
	if raw := strings.TrimSpace(req.RefreshToken); raw != "" {
		return raw
	}
	if ck, err := c.Cookie(RefreshCookie); err == nil {
		return ck.Value
	}
	return ""
}

// Refresh rotates the refresh token and issues a new access token.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := refreshToken(c)
	if raw == "" {
		return respondError(c, h.Logger, service.ErrInvalidRefresh)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	pair, _, err := h.Tokens.Refresh(ctx, raw)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Cookies.setAuthCookies(c, pair, h.now())
	return ok(c, http.StatusOK, "token refreshed", authData{TokenPair: pair})
}

// Logout revokes the presented refresh token, if any, and clears cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	if raw := refreshToken(c); raw != "" {
		ctx, cancel := h.ctx(c)
		defer cancel()
		if err := h.Auth.Logout(ctx, raw); err != nil {
			return respondError(c, h.Logger, err)
		}
	}
	h.Cookies.clearAuthCookies(c)
	return ok(c, http.StatusOK, "logged out", nil)
}

// VerifyEmail activates the account owning the token.
func (h *AuthHandler) VerifyEmail(c echo.Context) error {
	var req tokenReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.VerifyEmail(ctx, req.Token)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "email verified", u)
}

// ResendVerification issues a new verification link for pending accounts.
func (h *AuthHandler) ResendVerification(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ResendVerification(ctx, req.Email); err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, resendMessage, nil)
}

// ForgotPassword always answers with the same body once the address is
// well-formed.
func (h *AuthHandler) ForgotPassword(c echo.Context) error {
	var req emailReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.RequestPasswordReset(ctx, req.Email); err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, forgotPasswordMessage, nil)
}

// ResetPassword sets a new password with a single-use reset token.
func (h *AuthHandler) ResetPassword(c echo.Context) error {
	var req resetReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ResetPassword(ctx, req.Token, req.Password); err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "password has been reset", nil)
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	u, err := h.Auth.Profile(ctx, p)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "profile", echo.Map{"user": u, "permissions": p.Permissions.Strings()})
}

// ChangePassword requires the current password and ends all other sessions.
func (h *AuthHandler) ChangePassword(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.Auth.ChangePassword(ctx, p.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Cookies.clearAuthCookies(c)
	return ok(c, http.StatusOK, "password changed, sign in again", nil)
}

// LogoutAll revokes every refresh token of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	n, err := h.Auth.LogoutAll(ctx, p.UserID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	h.Cookies.clearAuthCookies(c)
	return ok(c, http.StatusOK, "all sessions revoked", echo.Map{"revoked": n})
}
