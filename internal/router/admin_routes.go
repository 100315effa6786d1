package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bookify-reservation/internal/handler"
	"github.com/iliyamo/bookify-reservation/internal/middleware"
)

// RegisterAdmin registers the administrative booking routes.  They bypass
// availability checks and, for deletes, leave inventory untouched.
func RegisterAdmin(e *echo.Echo, b *handler.BookingHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleAdmin),
	)
	g.GET("/bookings", b.AdminList)
	g.PUT("/bookings/:id", b.AdminUpdate)
	g.DELETE("/bookings/:id", b.AdminDelete)
}
