package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/bookify-reservation/internal/handler"
)

// RegisterRoutes registers routes that do not require authentication and
// are not rate limited.  Currently it exposes only the health check.
func RegisterRoutes(e *echo.Echo, h *handler.HealthHandler) {
	e.GET("/healthz", h.Health)
}

// RegisterPublic registers the unauthenticated catalog reads.  limit is
// applied to every route; respCache only to the listing index, whose
// responses are shared by all callers.
func RegisterPublic(e *echo.Echo, l *handler.ListingHandler, limit, respCache echo.MiddlewareFunc) {
	g := e.Group("/v1/listings", limit)
	g.GET("", l.List, respCache)
	g.GET("/:id", l.Get)
	g.GET("/:id/availability", l.Availability)
}
