package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// Publisher delivers one booking event to one broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, ev BookingEvent) error
}

// Notifier turns reservation outcomes into BookingEvents and hands them to
// every configured publisher.  It satisfies reservation.Notifier.
type Notifier struct {
	publishers []Publisher
	log        *zap.Logger
	now        func() time.Time
}

// NewNotifier returns a Notifier fanning out to publishers.
func NewNotifier(logger *zap.Logger, publishers ...Publisher) *Notifier {
	return &Notifier{publishers: publishers, log: logger.Named("queue"), now: time.Now}
}

// BookingConfirmed publishes a booking.confirmed event.
func (n *Notifier) BookingConfirmed(ctx context.Context, b model.Booking, l model.Listing) error {
	return n.fanOut(ctx, NewConfirmedEvent(b, l, n.now()))
}

// BookingCancelled publishes a booking.cancelled event.
func (n *Notifier) BookingCancelled(ctx context.Context, b model.Booking) error {
	return n.fanOut(ctx, NewCancelledEvent(b, n.now()))
}

// fanOut tries every publisher even when an earlier one fails and joins
// the failures.
func (n *Notifier) fanOut(ctx context.Context, ev BookingEvent) error {
	var errs error
	for _, p := range n.publishers {
		if err := p.Publish(ctx, ev); err != nil {
			errs = errors.Join(errs, fmt.Errorf("%s: %w", p.Name(), err))
			continue
		}
		n.log.Debug("event published",
			zap.String("publisher", p.Name()),
			zap.String("type", string(ev.Type)),
			zap.Uint64("booking_id", ev.BookingID),
		)
	}
	return errs
}
