package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

// BookingHandler exposes the reservation service.  JWTAuth has already run
// on every route; ownership of individual bookings is checked here.
type BookingHandler struct {
	Svc *reservation.Service
	log *zap.Logger
}

// NewBookingHandler panics when svc is nil.
func NewBookingHandler(svc *reservation.Service, logger *zap.Logger) *BookingHandler {
	if svc == nil {
		panic("nil service passed to NewBookingHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingHandler{Svc: svc, log: logger.Named("http.bookings")}
}

type createBookingRequest struct {
	ListingID uint64 `json:"listing_id"`
	Category  string `json:"category"`
	CheckIn   string `json:"check_in"`
	CheckOut  string `json:"check_out"`
	NumGuests int    `json:"num_guests"`
	PayNow    bool   `json:"pay_now"`
}

// Create handles POST /v1/bookings.  201 with the booking, 409 with a
// reason when the listing has no capacity left.
func (h *BookingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body createBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	checkIn, err := parseDay(body.CheckIn)
	if err != nil {
		return badRequest(c, "check_in: "+err.Error())
	}
	checkOut, err := parseDay(body.CheckOut)
	if err != nil {
		return badRequest(c, "check_out: "+err.Error())
	}
	b, err := h.Svc.Create(c.Request().Context(), reservation.CreateRequest{
		UserID:    userID,
		ListingID: body.ListingID,
		Category:  model.Category(strings.ToUpper(strings.TrimSpace(body.Category))),
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		NumGuests: body.NumGuests,
		PayNow:    body.PayNow,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, b)
}

// Get handles GET /v1/bookings/:id for the booking's user or an admin.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	b, err := h.Svc.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if !allowed(c, b.UserID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return c.JSON(http.StatusOK, b)
}

// Mine handles GET /v1/bookings/me.
func (h *BookingHandler) Mine(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Svc.ListByUser(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// Cancel handles POST /v1/bookings/:id/cancel.  Cancelling twice returns
// the cancelled booking again.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	ctx := c.Request().Context()
	cur, err := h.Svc.Get(ctx, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if !allowed(c, cur.UserID) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	b, err := h.Svc.Cancel(ctx, id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// HostList handles GET /v1/host/bookings: bookings on the caller's
// listings.
func (h *BookingHandler) HostList(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	list, err := h.Svc.ListByListingOwner(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// AdminList handles GET /v1/admin/bookings.
func (h *BookingHandler) AdminList(c echo.Context) error {
	list, err := h.Svc.ListAll(c.Request().Context())
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

type updateBookingRequest struct {
	Status    *string `json:"status"`
	CheckIn   *string `json:"check_in"`
	CheckOut  *string `json:"check_out"`
	NumGuests *int    `json:"num_guests"`
}

func (r updateBookingRequest) patch() (model.BookingPatch, error) {
	var p model.BookingPatch
	if r.Status != nil {
		s, err := model.ParseStatus(*r.Status)
		if err != nil {
			return p, err
		}
		p.Status = &s
	}
	var err error
	if r.CheckIn != nil {
		if p.CheckIn, err = parseDay(*r.CheckIn); err != nil {
			return p, err
		}
	}
	if r.CheckOut != nil {
		if p.CheckOut, err = parseDay(*r.CheckOut); err != nil {
			return p, err
		}
	}
	p.NumGuests = r.NumGuests
	return p, nil
}

// AdminUpdate handles PUT /v1/admin/bookings/:id.  Availability is not
// re-checked for admin overrides.
func (h *BookingHandler) AdminUpdate(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	var body updateBookingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	patch, err := body.patch()
	if err != nil {
		return badRequest(c, err.Error())
	}
	b, err := h.Svc.Update(c.Request().Context(), id, patch)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, b)
}

// AdminDelete handles DELETE /v1/admin/bookings/:id.  It hard deletes the
// booking and its payments without releasing inventory.
func (h *BookingHandler) AdminDelete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	if err := h.Svc.Delete(c.Request().Context(), id); err != nil {
		return writeError(c, h.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
