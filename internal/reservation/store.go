package reservation

import (
	"context"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// Tx is the view of the backing store inside one atomic unit.  Every
// method runs in the same transaction; nothing is visible to other
// writers until Atomically returns nil.
type Tx interface {
	// LockListing loads the listing and holds an exclusive lock on it
	// until the unit ends.  Concurrent units on the same listing block.
	LockListing(ctx context.Context, listingID uint64) (model.Listing, error)
	// CountOverlapping counts confirmed hotel bookings of listingID whose
	// stay intersects [checkIn, checkOut).
	CountOverlapping(ctx context.Context, listingID uint64, checkIn, checkOut time.Time) (int, error)
	// SumConfirmedGuests sums NumGuests over confirmed bookings of
	// listingID in the given category.
	SumConfirmedGuests(ctx context.Context, listingID uint64, category model.Category) (int, error)
	// InsertBooking validates and stores b, assigning b.ID.
	InsertBooking(ctx context.Context, b *model.Booking) error
	// LockBooking loads a booking for update.
	LockBooking(ctx context.Context, bookingID uint64) (model.Booking, error)
	// SetBookingStatus moves a booking from one status to another.  It
	// fails with a conflict when the stored status is not from.
	SetBookingStatus(ctx context.Context, bookingID uint64, from, to model.Status, at time.Time) error
	// UpdateBooking overwrites the dates and guest count of a booking
	// locked by this unit.  Status is not written; the stored status must
	// still equal b.Status or the call fails with a conflict.
	UpdateBooking(ctx context.Context, b model.Booking) error
	// DecrementInventory takes n units from the listing's remaining
	// counter, refusing to go below zero.
	DecrementInventory(ctx context.Context, listingID uint64, n int) error
	// IncrementInventory hands n units back.
	IncrementInventory(ctx context.Context, listingID uint64, n int) error
}

// Store is the persistence boundary of the service.
type Store interface {
	// Atomically runs fn in a single transaction.  The transaction is
	// committed when fn returns nil and rolled back otherwise.
	Atomically(ctx context.Context, fn func(Tx) error) error

	GetListing(ctx context.Context, listingID uint64) (model.Listing, error)
	GetBooking(ctx context.Context, bookingID uint64) (model.Booking, error)
	ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error)
	ListBookingsByListingOwner(ctx context.Context, ownerID uint64) ([]model.Booking, error)
	ListBookings(ctx context.Context) ([]model.Booking, error)
	// Snapshot reads the inventory state without locking.  Used by the
	// advisory availability query only.
	Snapshot(ctx context.Context, listing model.Listing, checkIn, checkOut *time.Time) (Snapshot, error)
	// DeleteBooking removes a booking and its payments.
	DeleteBooking(ctx context.Context, bookingID uint64) error
}

// PaymentStore persists payments.
type PaymentStore interface {
	CreatePayment(ctx context.Context, p *model.Payment) error
	GetPayment(ctx context.Context, paymentID uint64) (model.Payment, error)
	ListPaymentsByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error)
}

// Notifier is told about committed state changes.  Calls are fire and
// forget: errors are logged and never reach the caller of the service.
type Notifier interface {
	BookingConfirmed(ctx context.Context, b model.Booking, l model.Listing) error
	BookingCancelled(ctx context.Context, b model.Booking) error
}
