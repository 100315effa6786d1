package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// BookingRepo is the MySQL booking ledger.  Writes that take part in a
// reservation run through the *Tx methods on a caller-owned transaction;
// the caller must commit or rollback.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `b.id, b.user_id, b.listing_id, b.category, b.status, b.booked_at,
	b.check_in, b.check_out, b.num_guests, b.updated_at`

func scanBooking(row rowScanner) (model.Booking, error) {
	var (
		b                 model.Booking
		category, status  string
		checkIn, checkOut sql.NullTime
	)
	if err := row.Scan(&b.ID, &b.UserID, &b.ListingID, &category, &status, &b.BookedAt,
		&checkIn, &checkOut, &b.NumGuests, &b.UpdatedAt); err != nil {
		return model.Booking{}, err
	}
	b.Category = model.Category(category)
	b.Status = model.Status(status)
	b.CheckIn = timePtr(checkIn)
	b.CheckOut = timePtr(checkOut)
	return b, nil
}

// InsertTx validates b and inserts it within tx.  It populates the
// generated id on b.
func (r *BookingRepo) InsertTx(ctx context.Context, tx DBTX, b *model.Booking) error {
	if err := b.Validate(); err != nil {
		return err
	}
	const q = `INSERT INTO bookings (user_id, listing_id, category, status, booked_at, check_in, check_out, num_guests, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q,
		b.UserID, b.ListingID, string(b.Category), string(b.Status), b.BookedAt.UTC(),
		nullTime(b.CheckIn), nullTime(b.CheckOut), b.NumGuests, b.UpdatedAt.UTC(),
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	b.ID = uint64(id)
	return nil
}

// CountOverlapping counts confirmed hotel bookings of listingID whose stay
// intersects the half-open range [checkIn, checkOut).
func (r *BookingRepo) CountOverlapping(ctx context.Context, q DBTX, listingID uint64, checkIn, checkOut time.Time) (int, error) {
	const query = `SELECT COUNT(*) FROM bookings
		WHERE listing_id = ? AND status = 'CONFIRMED' AND category = 'HOTEL'
		AND check_in < ? AND check_out > ?`
	var n int
	err := q.QueryRowContext(ctx, query, listingID, checkOut.UTC(), checkIn.UTC()).Scan(&n)
	return n, err
}

// SumConfirmedGuests sums num_guests over confirmed bookings of listingID in
// the given category.
func (r *BookingRepo) SumConfirmedGuests(ctx context.Context, q DBTX, listingID uint64, category model.Category) (int, error) {
	const query = `SELECT COALESCE(SUM(num_guests), 0) FROM bookings
		WHERE listing_id = ? AND status = 'CONFIRMED' AND category = ?`
	var n int
	err := q.QueryRowContext(ctx, query, listingID, string(category)).Scan(&n)
	return n, err
}

// LockTx loads a booking with SELECT ... FOR UPDATE inside tx.
func (r *BookingRepo) LockTx(ctx context.Context, tx DBTX, id uint64) (model.Booking, error) {
	return r.get(ctx, tx, id, true)
}

// SetStatusTx moves a booking from one status to another.  The WHERE
// clause includes the expected current status, so a concurrent transition
// shows up as zero affected rows and ErrConflict.
func (r *BookingRepo) SetStatusTx(ctx context.Context, tx DBTX, id uint64, from, to model.Status, at time.Time) error {
	const q = `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(to), at.UTC(), id, string(from))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: booking %d is not %s", ErrConflict, id, from)
	}
	return nil
}

// GetByID returns a booking or ErrBookingNotFound.
func (r *BookingRepo) GetByID(ctx context.Context, id uint64) (model.Booking, error) {
	return r.get(ctx, r.db, id, false)
}

func (r *BookingRepo) get(ctx context.Context, q DBTX, id uint64, forUpdate bool) (model.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE b.id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Booking{}, ErrBookingNotFound
	}
	return b, err
}

// ListByUser returns a user's bookings, newest first.
func (r *BookingRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.user_id = ? ORDER BY b.booked_at DESC, b.id DESC`, userID)
}

// ListByListingOwner returns bookings on listings created by ownerID,
// newest first.
func (r *BookingRepo) ListByListingOwner(ctx context.Context, ownerID uint64) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings b
		JOIN listings l ON l.id = b.listing_id
		WHERE l.owner_id = ? ORDER BY b.booked_at DESC, b.id DESC`, ownerID)
}

// ListAll returns every booking, newest first.
func (r *BookingRepo) ListAll(ctx context.Context) ([]model.Booking, error) {
	return r.list(ctx, `SELECT `+bookingColumns+` FROM bookings b ORDER BY b.booked_at DESC, b.id DESC`)
}

func (r *BookingRepo) list(ctx context.Context, query string, args ...any) ([]model.Booking, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// UpdateTx overwrites the dates and guest count of b inside tx.  Status
// is never written here; the WHERE clause pins the status the caller read
// under lock, so a transition it did not see yields ErrConflict.
func (r *BookingRepo) UpdateTx(ctx context.Context, tx DBTX, b model.Booking) error {
	const q = `UPDATE bookings SET check_in = ?, check_out = ?, num_guests = ?, updated_at = ? WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, nullTime(b.CheckIn), nullTime(b.CheckOut), b.NumGuests, b.UpdatedAt.UTC(), b.ID, string(b.Status))
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: booking %d is no longer %s", ErrConflict, b.ID, b.Status)
	}
	return nil
}

// Delete hard deletes a booking.  Payments go with it through the
// ON DELETE CASCADE foreign key.
func (r *BookingRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM bookings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrBookingNotFound
	}
	return nil
}
