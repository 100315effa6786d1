package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

// MySQLStore combines the listing, booking and payment repositories behind
// the interfaces the reservation service and the HTTP handlers consume.
type MySQLStore struct {
	db       *sql.DB
	Listings *ListingRepo
	Bookings *BookingRepo
	Payments *PaymentRepo
}

// NewMySQLStore returns a store bound to db.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	if db == nil {
		panic("nil database passed to NewMySQLStore")
	}
	return &MySQLStore{
		db:       db,
		Listings: NewListingRepo(db),
		Bookings: NewBookingRepo(db),
		Payments: NewPaymentRepo(db),
	}
}

// withTx runs fn inside a READ COMMITTED transaction.  Every read after
// the listing's FOR UPDATE therefore sees the rows committed by whoever
// held the lock before.  The transaction is rolled back unless fn and
// Commit both succeed.
func (s *MySQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return translate(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return translate(err)
	}
	if err := tx.Commit(); err != nil {
		return translate(err)
	}
	committed = true
	return nil
}

// Atomically implements reservation.Store.
func (s *MySQLStore) Atomically(ctx context.Context, fn func(reservation.Tx) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(&mysqlTx{tx: tx, s: s})
	})
}

// mysqlTx adapts a *sql.Tx to reservation.Tx.
type mysqlTx struct {
	tx *sql.Tx
	s  *MySQLStore
}

func (t *mysqlTx) LockListing(ctx context.Context, listingID uint64) (model.Listing, error) {
	l, err := t.s.Listings.LockTx(ctx, t.tx, listingID)
	return l, translate(err)
}

func (t *mysqlTx) CountOverlapping(ctx context.Context, listingID uint64, checkIn, checkOut time.Time) (int, error) {
	n, err := t.s.Bookings.CountOverlapping(ctx, t.tx, listingID, checkIn, checkOut)
	return n, translate(err)
}

func (t *mysqlTx) SumConfirmedGuests(ctx context.Context, listingID uint64, category model.Category) (int, error) {
	n, err := t.s.Bookings.SumConfirmedGuests(ctx, t.tx, listingID, category)
	return n, translate(err)
}

func (t *mysqlTx) InsertBooking(ctx context.Context, b *model.Booking) error {
	return translate(t.s.Bookings.InsertTx(ctx, t.tx, b))
}

func (t *mysqlTx) LockBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	b, err := t.s.Bookings.LockTx(ctx, t.tx, bookingID)
	return b, translate(err)
}

func (t *mysqlTx) SetBookingStatus(ctx context.Context, bookingID uint64, from, to model.Status, at time.Time) error {
	return translate(t.s.Bookings.SetStatusTx(ctx, t.tx, bookingID, from, to, at))
}

func (t *mysqlTx) UpdateBooking(ctx context.Context, b model.Booking) error {
	return translate(t.s.Bookings.UpdateTx(ctx, t.tx, b))
}

func (t *mysqlTx) DecrementInventory(ctx context.Context, listingID uint64, n int) error {
	return translate(t.s.Listings.ReserveUnitsTx(ctx, t.tx, listingID, n))
}

func (t *mysqlTx) IncrementInventory(ctx context.Context, listingID uint64, n int) error {
	return translate(t.s.Listings.ReleaseUnitsTx(ctx, t.tx, listingID, n))
}

// GetListing returns a listing without locking it.
func (s *MySQLStore) GetListing(ctx context.Context, listingID uint64) (model.Listing, error) {
	return s.Listings.GetByID(ctx, listingID)
}

// GetBooking returns a booking without locking it.
func (s *MySQLStore) GetBooking(ctx context.Context, bookingID uint64) (model.Booking, error) {
	return s.Bookings.GetByID(ctx, bookingID)
}

func (s *MySQLStore) ListBookingsByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return s.Bookings.ListByUser(ctx, userID)
}

func (s *MySQLStore) ListBookingsByListingOwner(ctx context.Context, ownerID uint64) ([]model.Booking, error) {
	return s.Bookings.ListByListingOwner(ctx, ownerID)
}

func (s *MySQLStore) ListBookings(ctx context.Context) ([]model.Booking, error) {
	return s.Bookings.ListAll(ctx)
}

// Snapshot reads the inventory state of l outside any transaction.
func (s *MySQLStore) Snapshot(ctx context.Context, l model.Listing, checkIn, checkOut *time.Time) (reservation.Snapshot, error) {
	if l.Category == model.CategoryHotel {
		if checkIn == nil || checkOut == nil {
			return reservation.Snapshot{}, nil
		}
		n, err := s.Bookings.CountOverlapping(ctx, s.db, l.ID, *checkIn, *checkOut)
		return reservation.Snapshot{Overlapping: n}, err
	}
	n, err := s.Bookings.SumConfirmedGuests(ctx, s.db, l.ID, l.Category)
	return reservation.Snapshot{ConfirmedGuests: n}, err
}

func (s *MySQLStore) DeleteBooking(ctx context.Context, bookingID uint64) error {
	return s.Bookings.Delete(ctx, bookingID)
}

// CreatePayment implements reservation.PaymentStore.
func (s *MySQLStore) CreatePayment(ctx context.Context, p *model.Payment) error {
	return s.Payments.Create(ctx, p)
}

func (s *MySQLStore) GetPayment(ctx context.Context, paymentID uint64) (model.Payment, error) {
	return s.Payments.GetByID(ctx, paymentID)
}

func (s *MySQLStore) ListPaymentsByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	return s.Payments.ListByBooking(ctx, bookingID)
}

// CreateListing inserts a validated listing.
func (s *MySQLStore) CreateListing(ctx context.Context, l *model.Listing) error {
	return s.Listings.Create(ctx, l)
}

func (s *MySQLStore) ListListings(ctx context.Context, category model.Category) ([]model.Listing, error) {
	return s.Listings.List(ctx, category)
}

// UpdateListing locks the stored listing, carries over the fields callers
// may not change, re-validates the result against the units already
// committed and writes it.
func (s *MySQLStore) UpdateListing(ctx context.Context, l model.Listing) (model.Listing, error) {
	var out model.Listing
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		cur, err := s.Listings.LockTx(ctx, tx, l.ID)
		if err != nil {
			return err
		}
		merged, err := mergeListing(cur, l)
		if err != nil {
			return err
		}
		if err := s.Listings.UpdateTx(ctx, tx, merged); err != nil {
			return fmt.Errorf("update listing: %w", err)
		}
		out = merged
		return nil
	})
	if err != nil {
		return model.Listing{}, err
	}
	return s.Listings.GetByID(ctx, out.ID)
}

// DeleteListing removes a listing that has no bookings.
func (s *MySQLStore) DeleteListing(ctx context.Context, listingID uint64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.Listings.LockTx(ctx, tx, listingID); err != nil {
			return err
		}
		return s.Listings.DeleteTx(ctx, tx, listingID)
	})
}

// mergeListing applies an update on top of the stored listing.  Identity,
// ownership, category and the committed counter always come from cur.
func mergeListing(cur, upd model.Listing) (model.Listing, error) {
	upd.ID = cur.ID
	upd.OwnerID = cur.OwnerID
	upd.Category = cur.Category
	upd.UnitsCommitted = cur.UnitsCommitted
	upd.CreatedAt = cur.CreatedAt
	upd.UpdatedAt = cur.UpdatedAt
	return model.NewListing(upd)
}
