package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bookify-reservation/internal/handler"
	"github.com/iliyamo/bookify-reservation/internal/middleware"
)

// RegisterBookings registers the traveller-facing booking and payment
// endpoints under /v1.  Every route needs a valid JWT; creating a booking
// needs the USER role.  Reads and cancellation are open to any role and
// the handlers check that the caller owns the booking unless they are an
// admin.
func RegisterBookings(e *echo.Echo, b *handler.BookingHandler, p *handler.PaymentHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), limit)

	g.POST("/bookings", b.Create, middleware.RequireRole(middleware.RoleUser))
	g.GET("/bookings/me", b.Mine)
	g.GET("/bookings/:id", b.Get)
	g.POST("/bookings/:id/cancel", b.Cancel)

	g.POST("/bookings/:id/payments", p.Record)
	g.GET("/bookings/:id/payments", p.ListByBooking)
	g.GET("/payments/:id", p.Get)
}
