package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/middleware"
	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/service"
)

// UserHandler exposes administrative account operations.
type UserHandler struct {
	Users   *service.UserService
	Logger  *zap.Logger
	Timeout time.Duration
}

func NewUserHandler(users *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{Users: users, Logger: logger, Timeout: 5 * time.Second}
}

type setStatusReq struct {
	Status string `json:"status"`
}

// SetStatus suspends or reactivates the user in the path.
func (h *UserHandler) SetStatus(c echo.Context) error {
	p := middleware.PrincipalFrom(c)
	if p == nil {
		return respondError(c, h.Logger, service.ErrUnauthenticated)
	}
	id, valid := pathID(c, "id")
	if !valid {
		return fail(c, http.StatusBadRequest, "invalid user id")
	}
	var req setStatusReq
	if err := c.Bind(&req); err != nil {
		return badBody(c)
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Timeout)
	defer cancel()

	u, err := h.Users.SetStatus(ctx, p.UserID, id, model.UserStatus(req.Status))
	if err != nil {
		return respondError(c, h.Logger, err)
	}
	return ok(c, http.StatusOK, "status updated", u)
}
