package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

type bookingGetter interface {
	GetBooking(ctx context.Context, bookingID uint64) (model.Booking, error)
}

// Payments attaches payment records to bookings.  It never talks to a
// payment gateway; the status is recorded as reported.
type Payments struct {
	store    PaymentStore
	bookings bookingGetter
	log      *zap.Logger
	now      func() time.Time
	newTxID  func() string
}

// NewPayments returns a Payments backed by store.  bookings is used to
// check that a booking exists before a payment is recorded against it.
func NewPayments(store PaymentStore, bookings bookingGetter, logger *zap.Logger) *Payments {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Payments{
		store:    store,
		bookings: bookings,
		log:      logger.Named("payments"),
		now:      time.Now,
		newTxID:  uuid.NewString,
	}
}

// Attach records a payment for an existing booking b with a generated
// transaction id.
func (p *Payments) Attach(ctx context.Context, b model.Booking, amountCents int64, status model.PaymentStatus) (model.Payment, error) {
	pay, err := model.NewPayment(b.ID, amountCents, status, p.newTxID(), p.now())
	if err != nil {
		return model.Payment{}, classify(err)
	}
	if err := p.store.CreatePayment(ctx, &pay); err != nil {
		return model.Payment{}, fmt.Errorf("create payment: %w", err)
	}
	p.log.Info("payment attached",
		zap.Uint64("booking_id", b.ID),
		zap.Uint64("payment_id", pay.ID),
		zap.String("status", string(pay.Status)),
		zap.Int64("amount_cents", pay.AmountCents),
	)
	return pay, nil
}

// Record attaches a payment to the booking with id bookingID after
// checking that the booking exists.
func (p *Payments) Record(ctx context.Context, bookingID uint64, amountCents int64, status model.PaymentStatus) (model.Payment, error) {
	b, err := p.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Payment{}, err
	}
	return p.Attach(ctx, b, amountCents, status)
}

// Get returns a single payment.
func (p *Payments) Get(ctx context.Context, paymentID uint64) (model.Payment, error) {
	return p.store.GetPayment(ctx, paymentID)
}

// ListByBooking returns every payment recorded against bookingID, oldest
// first.
func (p *Payments) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	return p.store.ListPaymentsByBooking(ctx, bookingID)
}
