package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/service"
)

// RoleHandler exposes the role catalogue and assignments.
type RoleHandler struct {
	Roles   *service.RoleService
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewRoleHandler(roles *service.RoleService, logger *zap.Logger) *RoleHandler {
	return &RoleHandler{Roles: roles, Logger: logger, Timeout: 5 * time.Second}
}

type assignRoleReq struct {
	Role    string `json:"role"`
	Replace bool   `json:"replace"`
}

// pathID parses a positive numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// ListRoles returns every role with its permissions.
func (h *RoleHandler) ListRoles(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	roles, err := h.Roles.List(ctx)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "roles", roles)
}

// UserRoles lists the roles of the user in the path, primary first.
func (h *RoleHandler) UserRoles(c echo.Context) error {
	id, valid := pathID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	roles, err := h.Roles.UserRoles(ctx, id)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "user roles", echo.Map{"user_id": id, "roles": roles})
}

// AssignRole gives the user in the path a role.  New roles apply to access
// tokens minted afterwards.
func (h *RoleHandler) AssignRole(c echo.Context) error {
	id, valid := pathID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var req assignRoleReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	roles, err := h.Roles.Assign(ctx, id, req.Role, req.Replace)
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "role assigned", echo.Map{"user_id": id, "roles": roles})
}

// RevokeRole removes the role named in the path from the user.
func (h *RoleHandler) RevokeRole(c echo.Context) error {
	id, valid := pathID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	roles, err := h.Roles.Revoke(ctx, id, c.Param("role"))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "role revoked", echo.Map{"user_id": id, "roles": roles})
}
