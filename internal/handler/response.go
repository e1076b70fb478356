package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/newsroom-auth/internal/service"
)

// Response is the envelope every endpoint returns.
type Response struct {
	Success bool                 `json:"success"`
	Message string               `json:"message"`
	Data    any                  `json:"data,omitempty"`
	Errors  []service.FieldError `json:"errors,omitempty"`
}

func ok(c echo.Context, status int, message string, data any) error {
	return c.JSON(status, Response{Success: true, Message: message, Data: data})
}

func fail(c echo.Context, status int, message string) error {
	return c.JSON(status, Response{Success: false, Message: message})
}

func badBody(c echo.Context) error {
	return fail(c, http.StatusBadRequest, "invalid request body")
}

// statusFor maps an error kind to its HTTP status.
func statusFor(k service.Kind) int {
	switch k {
	case service.KindValidation, service.KindBadRequest:
		return http.StatusBadRequest
	case service.KindConflict:
		return http.StatusConflict
	case service.KindAuthentication:
		return http.StatusUnauthorized
	case service.KindAuthorization:
		return http.StatusForbidden
	case service.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// respondError is the single error exit of every handler.  Unknown errors are
// logged and reported as a generic 500.
func respondError(c echo.Context, logger *zap.Logger, err error) error {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		return c.JSON(http.StatusBadRequest, Response{Success: false, Message: "validation failed", Errors: ve.Fields})
	}
	var se *service.Error
	if errors.As(err, &se) {
		return fail(c, statusFor(se.Kind), se.Message)
	}
	logger.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("route", c.Path()),
		zap.Error(err))
	return fail(c, http.StatusInternalServerError, "internal server error")
}
