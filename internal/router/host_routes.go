package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bookify-reservation/internal/handler"
	"github.com/iliyamo/bookify-reservation/internal/middleware"
)

// RegisterHost registers HOST-scoped endpoints under /v1: listing writes
// and the bookings made on the caller's listings.  Admins may use them
// too; the handlers check listing ownership for everybody else.
func RegisterHost(e *echo.Echo, l *handler.ListingHandler, b *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group(
		"/v1",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleHost, middleware.RoleAdmin),
		limit,
	)

	g.POST("/listings", l.Create)
	g.PUT("/listings/:id", l.Update)
	g.DELETE("/listings/:id", l.Delete)

	g.GET("/host/bookings", b.HostList)
}
