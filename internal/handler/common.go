package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/bookify-reservation/internal/middleware"
	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/repository"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID extracts the authenticated caller set by JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	if id, ok := middleware.UserID(c); ok {
		return id, nil
	}
	return 0, errNoUser
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// parseDay accepts YYYY-MM-DD or RFC 3339.  An empty string yields nil.
func parseDay(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, errors.New("dates must be YYYY-MM-DD or RFC 3339")
	}
	return &t, nil
}

// allowed reports whether the caller is ownerID or an admin.
func allowed(c echo.Context, ownerID uint64) bool {
	if middleware.IsAdmin(c) {
		return true
	}
	uid, err := getUserID(c)
	return err == nil && uid == ownerID
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// writeError maps the error taxonomy onto HTTP responses.
//
//	not found          404
//	validation         400
//	capacity exceeded  409 {"error":"capacity_exceeded","reason":...}
//	conflict           503 + Retry-After (the service already retried)
//	forbidden          403
func writeError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, reservation.ErrCapacityExceeded):
		return c.JSON(http.StatusConflict, echo.Map{"error": "capacity_exceeded", "reason": reservation.Reason(err)})
	case errors.Is(err, reservation.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case errors.Is(err, reservation.ErrValidation):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": reservation.Reason(err)})
	case errors.Is(err, model.ErrInvalid):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, reservation.ErrConflict):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "busy, retry"})
	case errors.Is(err, context.Canceled):
		// client went away; nobody reads this
		return c.NoContent(499)
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err),
	)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
