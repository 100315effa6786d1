package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/bookify-reservation/internal/cache"
	"github.com/iliyamo/bookify-reservation/internal/middleware"
	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/repository"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

// ListingHandler serves the listing catalog and the advisory availability
// query.  Reads go through the listing cache; writes invalidate it.
type ListingHandler struct {
	Catalog cache.Catalog
	Svc     *reservation.Service
	log     *zap.Logger
}

// NewListingHandler panics when a dependency is missing.
func NewListingHandler(catalog cache.Catalog, svc *reservation.Service, logger *zap.Logger) *ListingHandler {
	if catalog == nil || svc == nil {
		panic("nil dependency passed to NewListingHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ListingHandler{Catalog: catalog, Svc: svc, log: logger.Named("http.listings")}
}

// listingRequest is the write body for a listing.  Dates accept
// YYYY-MM-DD or RFC 3339.
type listingRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Country     string `json:"country"`
	Category    string `json:"category"`

	Address       string `json:"address"`
	City          string `json:"city"`
	StarRating    int    `json:"star_rating"`
	TotalRooms    int    `json:"total_rooms"`
	AvailableFrom string `json:"available_from"`
	AvailableTo   string `json:"available_to"`

	Airline       string `json:"airline"`
	Departure     string `json:"departure"`
	Arrival       string `json:"arrival"`
	DepartureTime string `json:"departure_time"`
	ArrivalTime   string `json:"arrival_time"`
	SeatCapacity  int    `json:"seat_capacity"`

	Venue          string `json:"venue"`
	EventDate      string `json:"event_date"`
	TicketCapacity int    `json:"ticket_capacity"`
}

func (r listingRequest) listing() (model.Listing, error) {
	l := model.Listing{
		Title:          r.Title,
		Description:    r.Description,
		PriceCents:     r.PriceCents,
		Country:        r.Country,
		Category:       model.Category(strings.ToUpper(strings.TrimSpace(r.Category))),
		Address:        r.Address,
		City:           r.City,
		StarRating:     r.StarRating,
		TotalRooms:     r.TotalRooms,
		Airline:        r.Airline,
		Departure:      r.Departure,
		Arrival:        r.Arrival,
		SeatCapacity:   r.SeatCapacity,
		Venue:          r.Venue,
		TicketCapacity: r.TicketCapacity,
	}
	for _, f := range []struct {
		name string
		raw  string
		dst  **time.Time
	}{
		{"available_from", r.AvailableFrom, &l.AvailableFrom},
		{"available_to", r.AvailableTo, &l.AvailableTo},
		{"departure_time", r.DepartureTime, &l.DepartureTime},
		{"arrival_time", r.ArrivalTime, &l.ArrivalTime},
		{"event_date", r.EventDate, &l.EventDate},
	} {
		t, err := parseDay(f.raw)
		if err != nil {
			return model.Listing{}, errors.New(f.name + ": " + err.Error())
		}
		*f.dst = t
	}
	return l, nil
}

// Create handles POST /v1/listings.  The caller becomes the owner.
func (h *ListingHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body listingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	in, err := body.listing()
	if err != nil {
		return badRequest(c, err.Error())
	}
	in.OwnerID = &userID
	l, err := model.NewListing(in)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if err := h.Catalog.CreateListing(c.Request().Context(), &l); err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, l)
}

// Get handles GET /v1/listings/:id.
func (h *ListingHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing id")
	}
	l, err := h.Catalog.GetListing(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, l)
}

// List handles GET /v1/listings with an optional ?category= filter.
func (h *ListingHandler) List(c echo.Context) error {
	var category model.Category
	if raw := c.QueryParam("category"); raw != "" {
		cat, err := model.ParseCategory(raw)
		if err != nil {
			return badRequest(c, "invalid category")
		}
		category = cat
	}
	list, err := h.Catalog.ListListings(c.Request().Context(), category)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list})
}

// ownedListing loads a listing and checks that the caller may change it.
// When ok is false the response has already been written and err is what
// the handler should return.
func (h *ListingHandler) ownedListing(c echo.Context) (l model.Listing, ok bool, err error) {
	id, valid := parseID(c, "id")
	if !valid {
		return l, false, badRequest(c, "invalid listing id")
	}
	l, err = h.Catalog.GetListing(c.Request().Context(), id)
	if err != nil {
		return l, false, writeError(c, h.log, err)
	}
	uid, _ := getUserID(c)
	if !middleware.IsAdmin(c) && !l.OwnedBy(uid) {
		return l, false, writeError(c, h.log, repository.ErrForbidden)
	}
	return l, true, nil
}

// Update handles PUT /v1/listings/:id.  Category, owner and the committed
// counter cannot change; a flight or event capacity below the committed
// units is rejected.
func (h *ListingHandler) Update(c echo.Context) error {
	cur, ok, err := h.ownedListing(c)
	if !ok {
		return err
	}
	var body listingRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	upd, err := body.listing()
	if err != nil {
		return badRequest(c, err.Error())
	}
	upd.ID = cur.ID
	upd.Category = cur.Category
	l, err := h.Catalog.UpdateListing(c.Request().Context(), upd)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, l)
}

// Delete handles DELETE /v1/listings/:id.  Listings with bookings are kept
// and answered with 409.
func (h *ListingHandler) Delete(c echo.Context) error {
	cur, ok, err := h.ownedListing(c)
	if !ok {
		return err
	}
	err = h.Catalog.DeleteListing(c.Request().Context(), cur.ID)
	switch {
	case err == nil:
		return c.NoContent(http.StatusNoContent)
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "listing has bookings"})
	}
	return writeError(c, h.log, err)
}

// Availability handles GET /v1/listings/:id/availability.  The answer is
// advisory and reserves nothing.
func (h *ListingHandler) Availability(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid listing id")
	}
	checkIn, err := parseDay(c.QueryParam("check_in"))
	if err != nil {
		return badRequest(c, "check_in: "+err.Error())
	}
	checkOut, err := parseDay(c.QueryParam("check_out"))
	if err != nil {
		return badRequest(c, "check_out: "+err.Error())
	}
	guests := 1
	if raw := c.QueryParam("guests"); raw != "" {
		if guests, err = strconv.Atoi(raw); err != nil || guests <= 0 {
			return badRequest(c, "guests must be a positive integer")
		}
	}
	d, err := h.Svc.CheckAvailability(c.Request().Context(), reservation.AvailabilityQuery{
		ListingID: id,
		CheckIn:   checkIn,
		CheckOut:  checkOut,
		NumGuests: guests,
	})
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusOK, d)
}
