package middleware

// identity.go exposes the caller identity stored by JWTAuth.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id.  ok is false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get(ctxUserID).(type) {
	case uint64:
		return v, v != 0
	case int:
		return uint64(v), v > 0
	case int64:
		return uint64(v), v > 0
	case float64:
		return uint64(v), v > 0
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		return n, err == nil && n != 0
	}
	return 0, false
}

// Role returns the caller's role, or "" when unauthenticated.
func Role(c echo.Context) string {
	r, _ := c.Get(ctxRole).(string)
	return r
}

// IsAdmin reports whether the caller holds the ADMIN role.
func IsAdmin(c echo.Context) bool { return Role(c) == RoleAdmin }

// identityKey names the caller for rate limiting.
func identityKey(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
