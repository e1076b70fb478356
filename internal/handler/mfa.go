package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/newsroom-auth/internal/middleware"
	"github.com/iliyamo/newsroom-auth/internal/service"
)

type mfaCodeReq struct {
	Code string `json:"code"`
}

type passwordReq struct {
	Password string `json:"password"`
}

// MFASetup returns a new secret, its QR code and the backup codes.  The
// codes are shown only here.
func (h *AuthHandler) MFASetup(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	setup, err := h.MFA.Setup(ctx, p.UserID)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return ok(c, http.StatusOK, "scan the QR code and confirm with a code from the app", setup)
}

// MFAVerify confirms setup with a current code and turns MFA on.
func (h *AuthHandler) MFAVerify(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	var req mfaCodeReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.MFA.Enable(ctx, p.UserID, req.Code); err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "multi-factor authentication enabled", echo.Map{"mfa_enabled": true})
}

// MFADisable turns MFA off after checking the account password.
func (h *AuthHandler) MFADisable(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	var req passwordReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := h.ctx(c)
	defer cancel()

	if err := h.MFA.Disable(ctx, p.UserID, req.Password); err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "multi-factor authentication disabled", echo.Map{"mfa_enabled": false})
}
