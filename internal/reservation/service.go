// Package reservation decides whether a listing can take a booking and
// records it without ever overbooking.  Hotel availability is derived by
// counting overlapping stays; flights and events keep a remaining-units
// counter next to their configured capacity.  Every check-then-write runs
// inside Store.Atomically while the listing is locked.
package reservation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

const tracerName = "github.com/iliyamo/bookify-reservation/internal/reservation"

// Config tunes retry and notification behaviour.
type Config struct {
	// MaxAttempts bounds how often a unit is tried when it loses a race
	// on the listing lock.  Values below one mean a single attempt.
	MaxAttempts int
	// RetryBackoff is multiplied by the attempt number between tries.
	RetryBackoff time.Duration
	// NotifyTimeout caps each notifier call.
	NotifyTimeout time.Duration
}

// DefaultConfig is used for zero fields of the Config given to NewService.
var DefaultConfig = Config{
	MaxAttempts:   3,
	RetryBackoff:  25 * time.Millisecond,
	NotifyTimeout: 5 * time.Second,
}

// Service orchestrates availability checks, booking writes and inventory
// updates.  It is safe for concurrent use.
type Service struct {
	store    Store
	payments *Payments
	notifier Notifier
	log      *zap.Logger
	tracer   trace.Tracer
	cfg      Config
	now      func() time.Time

	availability singleflight.Group
	inflight     sync.WaitGroup
}

// Option customises a Service.
type Option func(*Service)

// WithNotifier registers the hook told about confirmed and cancelled
// bookings.
func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

// WithTracer replaces the global tracer.
func WithTracer(t trace.Tracer) Option { return func(s *Service) { s.tracer = t } }

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// NewService wires a Service.  payments may be nil, in which case PayNow
// requests are booked without a payment record.
func NewService(store Store, payments *Payments, logger *zap.Logger, cfg Config, opts ...Option) *Service {
	if store == nil {
		panic("nil store passed to NewService")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig.RetryBackoff
	}
	if cfg.NotifyTimeout <= 0 {
		cfg.NotifyTimeout = DefaultConfig.NotifyTimeout
	}
	s := &Service{
		store:    store,
		payments: payments,
		log:      logger.Named("reservation"),
		tracer:   otel.Tracer(tracerName),
		cfg:      cfg,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateRequest describes a new booking.  Category is optional; when set
// it must match the listing.  Hotels need both dates.
type CreateRequest struct {
	UserID    uint64         `validate:"required"`
	ListingID uint64         `validate:"required"`
	Category  model.Category `validate:"omitempty,oneof=HOTEL FLIGHT EVENT"`
	CheckIn   *time.Time
	CheckOut  *time.Time
	NumGuests int `validate:"gt=0"`
	PayNow    bool
}

// Create reserves inventory and records a CONFIRMED booking.  Either the
// booking and its inventory effect are both persisted or neither is.
func (s *Service) Create(ctx context.Context, req CreateRequest) (model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.Create", trace.WithAttributes(
		attribute.Int64("listing.id", int64(req.ListingID)),
		attribute.Int64("user.id", int64(req.UserID)),
		attribute.Int("booking.guests", req.NumGuests),
	))
	defer span.End()

	if err := model.CheckStruct(req); err != nil {
		return model.Booking{}, s.fail(span, "create", classify(err))
	}
	// Cancellation is honoured up to here; once the unit starts it runs
	// to commit or rollback.
	if err := ctx.Err(); err != nil {
		return model.Booking{}, s.fail(span, "create", err)
	}
	work := context.WithoutCancel(ctx)

	var (
		booking model.Booking
		listing model.Listing
	)
	err := s.retry(ctx, "create", func() error {
		return s.store.Atomically(work, func(tx Tx) error {
			l, err := tx.LockListing(work, req.ListingID)
			if err != nil {
				return err
			}
			if req.Category != "" && req.Category != l.Category {
				return newError(ErrValidation, "listing %d is %s, not %s", l.ID, l.Category, req.Category)
			}
			b, err := model.NewBooking(req.UserID, l, req.CheckIn, req.CheckOut, req.NumGuests, s.now())
			if err != nil {
				return err
			}
			snap, err := s.lockedSnapshot(work, tx, l, b)
			if err != nil {
				return err
			}
			if d := Check(l, snap, Request{CheckIn: b.CheckIn, CheckOut: b.CheckOut, NumGuests: b.NumGuests}); !d.Available {
				return newError(ErrCapacityExceeded, "%s", d.Reason)
			}
			if err := tx.InsertBooking(work, &b); err != nil {
				return fmt.Errorf("insert booking: %w", err)
			}
			if b.HoldsUnits() {
				if err := tx.DecrementInventory(work, l.ID, b.NumGuests); err != nil {
					return fmt.Errorf("decrement inventory: %w", err)
				}
			}
			booking, listing = b, l
			return nil
		})
	})
	if err != nil {
		return model.Booking{}, s.fail(span, "create", classify(err))
	}
	span.SetAttributes(attribute.Int64("booking.id", int64(booking.ID)))
	s.log.Info("booking confirmed",
		zap.Uint64("booking_id", booking.ID),
		zap.Uint64("listing_id", booking.ListingID),
		zap.Uint64("user_id", booking.UserID),
		zap.String("category", string(booking.Category)),
		zap.Int("num_guests", booking.NumGuests),
	)

	if req.PayNow {
		s.attachPayment(work, &booking, listing)
	}
	if s.notifier != nil {
		confirmed := booking
		s.notify(work, "booking confirmed", func(nctx context.Context) error {
			return s.notifier.BookingConfirmed(nctx, confirmed, listing)
		})
	}
	return booking, nil
}

// attachPayment records the immediate payment.  The booking is already
// committed, so a failure is logged and otherwise ignored.
func (s *Service) attachPayment(ctx context.Context, b *model.Booking, l model.Listing) {
	if s.payments == nil {
		s.log.Warn("pay now requested but no payment store configured", zap.Uint64("booking_id", b.ID))
		return
	}
	pay, err := s.payments.Attach(ctx, *b, l.PriceCents, model.PaymentSuccessful)
	if err != nil {
		s.log.Warn("attach payment failed", zap.Uint64("booking_id", b.ID), zap.Error(err))
		return
	}
	b.Payments = append(b.Payments, pay)
}

func (s *Service) lockedSnapshot(ctx context.Context, tx Tx, l model.Listing, b model.Booking) (Snapshot, error) {
	if l.Category == model.CategoryHotel {
		n, err := tx.CountOverlapping(ctx, l.ID, *b.CheckIn, *b.CheckOut)
		if err != nil {
			return Snapshot{}, fmt.Errorf("count overlapping: %w", err)
		}
		return Snapshot{Overlapping: n}, nil
	}
	n, err := tx.SumConfirmedGuests(ctx, l.ID, l.Category)
	if err != nil {
		return Snapshot{}, fmt.Errorf("sum confirmed guests: %w", err)
	}
	return Snapshot{ConfirmedGuests: n}, nil
}

// Cancel moves a booking to CANCELLED and releases its flight or event
// units.  Cancelling a cancelled booking returns it unchanged.
func (s *Service) Cancel(ctx context.Context, bookingID uint64) (model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.Cancel", trace.WithAttributes(
		attribute.Int64("booking.id", int64(bookingID)),
	))
	defer span.End()

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, s.fail(span, "cancel", classify(err))
	}
	if current.Status == model.StatusCancelled {
		return current, nil
	}
	if err := ctx.Err(); err != nil {
		return model.Booking{}, s.fail(span, "cancel", err)
	}
	work := context.WithoutCancel(ctx)

	var (
		out     model.Booking
		changed bool
	)
	err = s.retry(ctx, "cancel", func() error {
		changed = false
		return s.store.Atomically(work, func(tx Tx) error {
			// Listing first, then booking: the same order Create uses.
			if _, err := tx.LockListing(work, current.ListingID); err != nil {
				return err
			}
			b, err := tx.LockBooking(work, bookingID)
			if err != nil {
				return err
			}
			if b.Status == model.StatusCancelled {
				out = b
				return nil
			}
			now := s.now().UTC()
			if err := tx.SetBookingStatus(work, b.ID, model.StatusConfirmed, model.StatusCancelled, now); err != nil {
				return fmt.Errorf("set booking status: %w", err)
			}
			if b.HoldsUnits() {
				if err := tx.IncrementInventory(work, b.ListingID, b.NumGuests); err != nil {
					return fmt.Errorf("increment inventory: %w", err)
				}
			}
			b.Status = model.StatusCancelled
			b.UpdatedAt = now
			out, changed = b, true
			return nil
		})
	})
	if err != nil {
		return model.Booking{}, s.fail(span, "cancel", classify(err))
	}
	if changed {
		s.log.Info("booking cancelled",
			zap.Uint64("booking_id", out.ID),
			zap.Uint64("listing_id", out.ListingID),
			zap.Int("released", releasedUnits(out)),
		)
		if s.notifier != nil {
			cancelled := out
			s.notify(work, "booking cancelled", func(nctx context.Context) error {
				return s.notifier.BookingCancelled(nctx, cancelled)
			})
		}
	}
	return out, nil
}

func releasedUnits(b model.Booking) int {
	if b.Category == model.CategoryHotel {
		return 0
	}
	return b.NumGuests
}

// Get returns a booking together with its payments.
func (s *Service) Get(ctx context.Context, bookingID uint64) (model.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, classify(err)
	}
	if s.payments != nil {
		pays, err := s.payments.ListByBooking(ctx, bookingID)
		if err != nil {
			return model.Booking{}, fmt.Errorf("list payments: %w", err)
		}
		b.Payments = pays
	}
	return b, nil
}

// ListByUser returns the bookings made by userID, newest first.
func (s *Service) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.store.ListBookingsByUser(ctx, userID)
}

// ListByListingOwner returns bookings on listings created by ownerID.
func (s *Service) ListByListingOwner(ctx context.Context, ownerID uint64) ([]model.Booking, error) {
	return s.store.ListBookingsByListingOwner(ctx, ownerID)
}

// ListAll returns every booking.  Administrative.
func (s *Service) ListAll(ctx context.Context) ([]model.Booking, error) {
	return s.store.ListBookings(ctx)
}

// Update applies an administrative partial update.  Availability is not
// re-checked, but a changed seat or ticket count moves units_committed by
// the difference and fails with ErrCapacityExceeded when the listing
// cannot hold it.  A status change to CANCELLED goes through Cancel so the
// units are released; CANCELLED bookings cannot be reconfirmed.
func (s *Service) Update(ctx context.Context, bookingID uint64, patch model.BookingPatch) (model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.Update", trace.WithAttributes(
		attribute.Int64("booking.id", int64(bookingID)),
	))
	defer span.End()

	current, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return model.Booking{}, s.fail(span, "update", classify(err))
	}
	if patch.Status != nil {
		to, err := model.ParseStatus(string(*patch.Status))
		if err != nil {
			return model.Booking{}, s.fail(span, "update", classify(err))
		}
		switch {
		case current.Status == model.StatusCancelled && to == model.StatusConfirmed:
			return model.Booking{}, s.fail(span, "update", newError(ErrValidation, "booking %d is cancelled and cannot be reconfirmed", bookingID))
		case current.Status == model.StatusConfirmed && to == model.StatusCancelled:
			if current, err = s.Cancel(ctx, bookingID); err != nil {
				return model.Booking{}, err
			}
		}
		patch.Status = nil
	}
	if patch.Empty() {
		return current, nil
	}
	if err := ctx.Err(); err != nil {
		return model.Booking{}, s.fail(span, "update", err)
	}
	work := context.WithoutCancel(ctx)

	var (
		out   model.Booking
		delta int
	)
	err = s.retry(ctx, "update", func() error {
		delta = 0
		return s.store.Atomically(work, func(tx Tx) error {
			if _, err := tx.LockListing(work, current.ListingID); err != nil {
				return err
			}
			locked, err := tx.LockBooking(work, bookingID)
			if err != nil {
				return err
			}
			merged := locked.Apply(patch, s.now())
			if err := merged.Validate(); err != nil {
				return err
			}
			if err := tx.UpdateBooking(work, merged); err != nil {
				return fmt.Errorf("update booking: %w", err)
			}
			if merged.HoldsUnits() {
				delta = merged.NumGuests - locked.NumGuests
				switch {
				case delta > 0:
					err = tx.DecrementInventory(work, merged.ListingID, delta)
				case delta < 0:
					err = tx.IncrementInventory(work, merged.ListingID, -delta)
				}
				if err != nil {
					return fmt.Errorf("adjust inventory: %w", err)
				}
			}
			out = merged
			return nil
		})
	})
	if err != nil {
		return model.Booking{}, s.fail(span, "update", classify(err))
	}
	s.log.Info("booking updated",
		zap.Uint64("booking_id", out.ID),
		zap.Uint64("listing_id", out.ListingID),
		zap.Int("num_guests", out.NumGuests),
		zap.Int("units_delta", delta),
	)
	return out, nil
}

// Delete hard deletes a booking and its payments.  Inventory held by the
// booking is NOT released.
func (s *Service) Delete(ctx context.Context, bookingID uint64) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return classify(err)
	}
	if err := s.store.DeleteBooking(ctx, bookingID); err != nil {
		return classify(err)
	}
	s.log.Warn("booking deleted without inventory release",
		zap.Uint64("booking_id", b.ID),
		zap.Uint64("listing_id", b.ListingID),
		zap.String("status", string(b.Status)),
		zap.Int("units_not_released", heldUnits(b)),
	)
	return nil
}

func heldUnits(b model.Booking) int {
	if b.HoldsUnits() {
		return b.NumGuests
	}
	return 0
}

// AvailabilityQuery asks whether a listing could take a booking now.
type AvailabilityQuery struct {
	ListingID uint64
	CheckIn   *time.Time
	CheckOut  *time.Time
	NumGuests int
}

// CheckAvailability answers an availability query without taking any
// lock.  The answer is advisory; only Create reserves.  Identical
// concurrent queries share one store read.
func (s *Service) CheckAvailability(ctx context.Context, q AvailabilityQuery) (Decision, error) {
	if q.NumGuests <= 0 {
		q.NumGuests = 1
	}
	q.CheckIn, q.CheckOut = model.DayPtr(q.CheckIn), model.DayPtr(q.CheckOut)
	if q.CheckIn != nil && q.CheckOut != nil && !q.CheckIn.Before(*q.CheckOut) {
		return Decision{}, newError(ErrValidation, "check_in must be before check_out")
	}
	key := fmt.Sprintf("%d|%s|%s|%d", q.ListingID, dayKey(q.CheckIn), dayKey(q.CheckOut), q.NumGuests)
	// The shared read must outlive whichever caller started it; each
	// caller stops waiting on its own ctx.
	shared := context.WithoutCancel(ctx)
	ch := s.availability.DoChan(key, func() (interface{}, error) {
		l, err := s.store.GetListing(shared, q.ListingID)
		if err != nil {
			return nil, err
		}
		if l.Category == model.CategoryHotel && (q.CheckIn == nil || q.CheckOut == nil) {
			return nil, newError(ErrValidation, "hotel availability needs check_in and check_out")
		}
		snap, err := s.store.Snapshot(shared, l, q.CheckIn, q.CheckOut)
		if err != nil {
			return nil, err
		}
		return Check(l, snap, Request{CheckIn: q.CheckIn, CheckOut: q.CheckOut, NumGuests: q.NumGuests}), nil
	})
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Decision{}, classify(res.Err)
		}
		return res.Val.(Decision), nil
	}
}

func dayKey(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.DateOnly)
}

// Wait blocks until every in-flight notification has returned.
func (s *Service) Wait() { s.inflight.Wait() }

// retry runs fn until it succeeds, fails with something other than a
// conflict, or runs out of attempts.  ctx is checked between attempts so a
// caller that has gone away does not start another unit.
func (s *Service) retry(ctx context.Context, op string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if cerr := ctx.Err(); cerr != nil {
				return err
			}
			time.Sleep(time.Duration(attempt-1) * s.cfg.RetryBackoff)
		}
		err = fn()
		if err == nil || !errors.Is(err, ErrConflict) {
			return err
		}
		s.log.Warn("lost race on listing, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.cfg.MaxAttempts),
			zap.Error(err),
		)
	}
	return err
}

func (s *Service) notify(ctx context.Context, what string, fn func(context.Context) error) {
	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("notifier panicked", zap.String("event", what), zap.Any("panic", r))
			}
		}()
		nctx, cancel := context.WithTimeout(ctx, s.cfg.NotifyTimeout)
		defer cancel()
		if err := fn(nctx); err != nil {
			s.log.Warn("notify failed", zap.String("event", what), zap.Error(err))
		}
	}()
}

// fail records err on span and logs client errors at debug and everything
// else at error level.
func (s *Service) fail(span trace.Span, op string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrNotFound), errors.Is(err, ErrCapacityExceeded):
		s.log.Debug(op+" rejected", zap.Error(err))
	default:
		s.log.Error(op+" failed", zap.Error(err))
	}
	return err
}
