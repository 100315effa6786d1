package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

// PaymentHandler records and lists payment references.  No gateway is
// involved; the client reports the status.
type PaymentHandler struct {
	Payments *reservation.Payments
	Bookings *reservation.Service
	log      *zap.Logger
}

// NewPaymentHandler panics when a dependency is missing.
func NewPaymentHandler(payments *reservation.Payments, bookings *reservation.Service, logger *zap.Logger) *PaymentHandler {
	if payments == nil || bookings == nil {
		panic("nil dependency passed to NewPaymentHandler")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{Payments: payments, Bookings: bookings, log: logger.Named("http.payments")}
}

// bookingFor loads the booking and checks that the caller is its user or
// an admin.  ok is false once a response has been written.
func (h *PaymentHandler) bookingFor(c echo.Context, bookingID uint64) (b model.Booking, ok bool, err error) {
	b, err = h.Bookings.Get(c.Request().Context(), bookingID)
	if err != nil {
		return b, false, writeError(c, h.log, err)
	}
	if !allowed(c, b.UserID) {
		return b, false, c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return b, true, nil
}

type recordPaymentRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Status      string `json:"status"`
}

// Record handles POST /v1/bookings/:id/payments.
func (h *PaymentHandler) Record(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return badRequest(c, "invalid booking id")
	}
	var body recordPaymentRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	status, err := model.ParsePaymentStatus(body.Status)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if _, ok, err := h.bookingFor(c, id); !ok {
		return err
	}
	p, err := h.Payments.Record(c.Request().Context(), id, body.AmountCents, status)
	if err != nil {
		return writeError(c, h.log, err)
	}
	return c.JSON(http.StatusCreated, p)
}

// ListByBooking handles GET /v1/bookings/:id/payments.
func (h *PaymentHandler) ListByBooking(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return badRequest(c, "invalid booking id")
	}
	if _, ok, err := h.bookingFor(c, id); !ok {
		return err
	}
	pays, err := h.Payments.ListByBooking(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if pays == nil {
		pays = []model.Payment{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": pays})
}

// Get handles GET /v1/payments/:id.
func (h *PaymentHandler) Get(c echo.Context) error {
	id, valid := parseID(c, "id")
	if !valid {
		return badRequest(c, "invalid payment id")
	}
	p, err := h.Payments.Get(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.log, err)
	}
	if _, ok, err := h.bookingFor(c, p.BookingID); !ok {
		return err
	}
	return c.JSON(http.StatusOK, p)
}
