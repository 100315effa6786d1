package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// DBTX is the subset of *sql.DB and *sql.Tx used by the repositories, so
// the same query code serves both plain reads and reads inside a
// transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// ListingRepo provides CRUD operations for listings and maintains the
// units_committed counter of flight and event listings.  All timestamp
// fields are stored in UTC.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a new ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, owner_id, title, description, price_cents, country, category,
	address, city, star_rating, total_rooms, available_from, available_to,
	airline, departure, arrival, departure_time, arrival_time, seat_capacity,
	venue, event_date, ticket_capacity, units_committed, created_at, updated_at`

func scanListing(row rowScanner) (model.Listing, error) {
	var (
		l                          model.Listing
		ownerID                    sql.NullInt64
		description                sql.NullString
		category                   string
		availFrom, availTo         sql.NullTime
		departureTime, arrivalTime sql.NullTime
		eventDate                  sql.NullTime
	)
	err := row.Scan(
		&l.ID, &ownerID, &l.Title, &description, &l.PriceCents, &l.Country, &category,
		&l.Address, &l.City, &l.StarRating, &l.TotalRooms, &availFrom, &availTo,
		&l.Airline, &l.Departure, &l.Arrival, &departureTime, &arrivalTime, &l.SeatCapacity,
		&l.Venue, &eventDate, &l.TicketCapacity, &l.UnitsCommitted, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return model.Listing{}, err
	}
	if ownerID.Valid {
		id := uint64(ownerID.Int64)
		l.OwnerID = &id
	}
	l.Description = description.String
	l.Category = model.Category(category)
	l.AvailableFrom = timePtr(availFrom)
	l.AvailableTo = timePtr(availTo)
	l.DepartureTime = timePtr(departureTime)
	l.ArrivalTime = timePtr(arrivalTime)
	l.EventDate = timePtr(eventDate)
	return l, nil
}

// Create inserts a listing and reads it back to populate the generated id
// and timestamps.  units_committed always starts at zero.
func (r *ListingRepo) Create(ctx context.Context, l *model.Listing) error {
	const q = `INSERT INTO listings (owner_id, title, description, price_cents, country, category,
		address, city, star_rating, total_rooms, available_from, available_to,
		airline, departure, arrival, departure_time, arrival_time, seat_capacity,
		venue, event_date, ticket_capacity)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		nullUint(l.OwnerID), l.Title, l.Description, l.PriceCents, l.Country, string(l.Category),
		l.Address, l.City, l.StarRating, l.TotalRooms, nullTime(l.AvailableFrom), nullTime(l.AvailableTo),
		l.Airline, l.Departure, l.Arrival, nullTime(l.DepartureTime), nullTime(l.ArrivalTime), l.SeatCapacity,
		l.Venue, nullTime(l.EventDate), l.TicketCapacity,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	got, err := r.get(ctx, r.db, uint64(id), false)
	if err != nil {
		return err
	}
	*l = got
	return nil
}

// GetByID returns the listing with the given id or ErrListingNotFound.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (model.Listing, error) {
	return r.get(ctx, r.db, id, false)
}

// LockTx loads a listing with SELECT ... FOR UPDATE inside tx.  The row
// lock is held until tx commits or rolls back, which serialises every
// reservation on the listing.
func (r *ListingRepo) LockTx(ctx context.Context, tx DBTX, id uint64) (model.Listing, error) {
	return r.get(ctx, tx, id, true)
}

func (r *ListingRepo) get(ctx context.Context, q DBTX, id uint64, forUpdate bool) (model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	l, err := scanListing(q.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Listing{}, ErrListingNotFound
	}
	return l, err
}

// List returns listings ordered by id.  An empty category lists all.
func (r *ListingRepo) List(ctx context.Context, category model.Category) ([]model.Listing, error) {
	query := `SELECT ` + listingColumns + ` FROM listings`
	var args []any
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, string(category))
	}
	query += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UpdateTx overwrites the descriptive and capacity columns of l.  The
// category, owner and units_committed are not touched.
func (r *ListingRepo) UpdateTx(ctx context.Context, tx DBTX, l model.Listing) error {
	const q = `UPDATE listings SET title = ?, description = ?, price_cents = ?, country = ?,
		address = ?, city = ?, star_rating = ?, total_rooms = ?, available_from = ?, available_to = ?,
		airline = ?, departure = ?, arrival = ?, departure_time = ?, arrival_time = ?, seat_capacity = ?,
		venue = ?, event_date = ?, ticket_capacity = ?
		WHERE id = ?`
	_, err := tx.ExecContext(ctx, q,
		l.Title, l.Description, l.PriceCents, l.Country,
		l.Address, l.City, l.StarRating, l.TotalRooms, nullTime(l.AvailableFrom), nullTime(l.AvailableTo),
		l.Airline, l.Departure, l.Arrival, nullTime(l.DepartureTime), nullTime(l.ArrivalTime), l.SeatCapacity,
		l.Venue, nullTime(l.EventDate), l.TicketCapacity,
		l.ID,
	)
	return err
}

// DeleteTx removes a listing that no booking references.  It returns
// ErrConflict while bookings exist and ErrListingNotFound when nothing was
// deleted.
func (r *ListingRepo) DeleteTx(ctx context.Context, tx DBTX, id uint64) error {
	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE listing_id = ?`, id).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: listing %d has %d bookings", ErrConflict, id, n)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM listings WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ReserveUnitsTx adds n to units_committed provided the result stays
// within the listing's seat or ticket capacity.  It returns
// ErrInsufficientInventory when the guard rejects the update.
func (r *ListingRepo) ReserveUnitsTx(ctx context.Context, tx DBTX, id uint64, n int) error {
	const q = `UPDATE listings SET units_committed = units_committed + ?
		WHERE id = ? AND category IN ('FLIGHT', 'EVENT')
		AND units_committed + ? <= CASE category WHEN 'FLIGHT' THEN seat_capacity ELSE ticket_capacity END`
	res, err := tx.ExecContext(ctx, q, n, id, n)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: listing %d cannot take %d more units", ErrInsufficientInventory, id, n)
	}
	return nil
}

// ReleaseUnitsTx subtracts n from units_committed, flooring at zero.
func (r *ListingRepo) ReleaseUnitsTx(ctx context.Context, tx DBTX, id uint64, n int) error {
	const q = `UPDATE listings SET units_committed = GREATEST(units_committed - ?, 0) WHERE id = ?`
	_, err := tx.ExecContext(ctx, q, n, id)
	return err
}

func nullUint(v *uint64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}
