package repository_test

import (
	"context"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap/zaptest"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/repository"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

var created = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)

var listingCols = []string{
	"id", "owner_id", "title", "description", "price_cents", "country", "category",
	"address", "city", "star_rating", "total_rooms", "available_from", "available_to",
	"airline", "departure", "arrival", "departure_time", "arrival_time", "seat_capacity",
	"venue", "event_date", "ticket_capacity", "units_committed", "created_at", "updated_at",
}

func flightRow(id int64, seats, committed int) *sqlmock.Rows {
	return sqlmock.NewRows(listingCols).AddRow(
		id, int64(900), "OPO-LIS", "", int64(9900), "PT", "FLIGHT",
		"", "", 0, 0, nil, nil,
		"TP", "OPO", "LIS", nil, nil, seats,
		"", nil, 0, committed, created, created,
	)
}

func hotelRow(id int64, rooms int) *sqlmock.Rows {
	return sqlmock.NewRows(listingCols).AddRow(
		id, int64(900), "Harbour View", "", int64(12000), "PT", "HOTEL",
		"Rua das Flores 1", "Porto", 4, rooms, nil, nil,
		"", "", "", nil, nil, 0,
		"", nil, 0, 0, created, created,
	)
}

var bookingCols = []string{"id", "user_id", "listing_id", "category", "status", "booked_at", "check_in", "check_out", "num_guests", "updated_at"}

func flightBookingRow(id, listingID int64, status model.Status, guests int) *sqlmock.Rows {
	return sqlmock.NewRows(bookingCols).AddRow(id, int64(1), listingID, "FLIGHT", string(status), created, nil, nil, guests, created)
}

func newMock(t *testing.T) (*repository.MySQLStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.NewMySQLStore(db), mock
}

func newMySQLService(t *testing.T, store *repository.MySQLStore) *reservation.Service {
	t.Helper()
	svc := reservation.NewService(store, nil, zaptest.NewLogger(t), reservation.Config{MaxAttempts: 2, RetryBackoff: time.Millisecond},
		reservation.WithTracer(noop.NewTracerProvider().Tracer("test")))
	t.Cleanup(svc.Wait)
	return svc
}

func TestMySQLCreateFlightCommits(t *testing.T) {
	store, mock := newMock(t)
	svc := newMySQLService(t, store)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM listings WHERE id = \? FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 3, 1))
	mock.ExpectQuery(`SELECT COALESCE\(SUM\(num_guests\), 0\) FROM bookings`).
		WithArgs(7, "FLIGHT").
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO bookings`).
		WithArgs(1, 7, "FLIGHT", "CONFIRMED", sqlmock.AnyArg(), nil, nil, 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectExec(`UPDATE listings SET units_committed = units_committed \+ \?`).
		WithArgs(2, 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, err := svc.Create(context.Background(), reservation.CreateRequest{UserID: 1, ListingID: 7, NumGuests: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if b.ID != 42 || b.Status != model.StatusConfirmed || b.Category != model.CategoryFlight {
		t.Errorf("booking = %+v", b)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLCreateRollsBackWhenGuardRejects(t *testing.T) {
	store, mock := newMock(t)
	svc := newMySQLService(t, store)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 3, 1))
	mock.ExpectQuery(`SUM\(num_guests\)`).WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(1))
	mock.ExpectExec(`INSERT INTO bookings`).WillReturnResult(sqlmock.NewResult(43, 1))
	mock.ExpectExec(`UPDATE listings SET units_committed`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), reservation.CreateRequest{UserID: 1, ListingID: 7, NumGuests: 2})
	if !errors.Is(err, reservation.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want capacity exceeded", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLCreateHotelRejectsOverlap(t *testing.T) {
	store, mock := newMock(t)
	svc := newMySQLService(t, store)
	in := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	out := time.Date(2025, 6, 4, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(3).WillReturnRows(hotelRow(3, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings`).
		WithArgs(3, out, in).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(1))
	mock.ExpectRollback()

	_, err := svc.Create(context.Background(), reservation.CreateRequest{UserID: 1, ListingID: 3, CheckIn: &in, CheckOut: &out, NumGuests: 1})
	if !errors.Is(err, reservation.ErrCapacityExceeded) || reservation.Reason(err) != reservation.ReasonNoRooms {
		t.Fatalf("err = %v, want no rooms", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLCancelReleasesUnits(t *testing.T) {
	store, mock := newMock(t)
	svc := newMySQLService(t, store)

	mock.ExpectQuery(`FROM bookings b WHERE b.id = \?`).WithArgs(5).WillReturnRows(flightBookingRow(5, 7, model.StatusConfirmed, 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM listings WHERE id = \? FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 3, 2))
	mock.ExpectQuery(`FROM bookings b WHERE b.id = \? FOR UPDATE`).WithArgs(5).WillReturnRows(flightBookingRow(5, 7, model.StatusConfirmed, 2))
	mock.ExpectExec(`UPDATE bookings SET status = \?`).
		WithArgs("CANCELLED", sqlmock.AnyArg(), 5, "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`GREATEST\(units_committed - \?, 0\)`).WithArgs(2, 7).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	b, err := svc.Cancel(context.Background(), 5)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if b.Status != model.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", b.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLUpdateMovesUnitsUnderLock(t *testing.T) {
	store, mock := newMock(t)
	svc := newMySQLService(t, store)

	mock.ExpectQuery(`FROM bookings b WHERE b.id = \?`).WithArgs(5).WillReturnRows(flightBookingRow(5, 7, model.StatusConfirmed, 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM listings WHERE id = \? FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 6, 2))
	mock.ExpectQuery(`FROM bookings b WHERE b.id = \? FOR UPDATE`).WithArgs(5).WillReturnRows(flightBookingRow(5, 7, model.StatusConfirmed, 2))
	mock.ExpectExec(`UPDATE bookings SET check_in = \?, check_out = \?, num_guests = \?, updated_at = \? WHERE id = \? AND status = \?`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 4, sqlmock.AnyArg(), 5, "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE listings SET units_committed = units_committed \+ \?`).
		WithArgs(2, 7, 2).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	guests := 4
	b, err := svc.Update(context.Background(), 5, model.BookingPatch{NumGuests: &guests})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if b.NumGuests != 4 || b.Status != model.StatusConfirmed {
		t.Errorf("booking = %+v", b)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLUpdateNeverRewritesCancelledStatus(t *testing.T) {
	store, mock := newMock(t)
	svc := newMySQLService(t, store)

	// Read as CONFIRMED, cancelled by the time the lock is taken.
	mock.ExpectQuery(`FROM bookings b WHERE b.id = \?`).WithArgs(5).WillReturnRows(flightBookingRow(5, 7, model.StatusConfirmed, 2))
	mock.ExpectBegin()
	mock.ExpectQuery(`FROM listings WHERE id = \? FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 6, 0))
	mock.ExpectQuery(`FROM bookings b WHERE b.id = \? FOR UPDATE`).WithArgs(5).WillReturnRows(flightBookingRow(5, 7, model.StatusCancelled, 2))
	mock.ExpectExec(`UPDATE bookings SET check_in = \?`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), 3, sqlmock.AnyArg(), 5, "CANCELLED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	guests := 3
	b, err := svc.Update(context.Background(), 5, model.BookingPatch{NumGuests: &guests})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if b.Status != model.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", b.Status)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLDeadlockBecomesConflict(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found when trying to get lock"})
	mock.ExpectRollback()

	err := store.Atomically(context.Background(), func(tx reservation.Tx) error {
		_, err := tx.LockListing(context.Background(), 7)
		return err
	})
	if !errors.Is(err, reservation.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLSnapshotUsesHalfOpenRange(t *testing.T) {
	store, mock := newMock(t)
	in := time.Date(2025, 6, 5, 0, 0, 0, 0, time.UTC)
	out := time.Date(2025, 6, 7, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`check_in < \? AND check_out > \?`).
		WithArgs(3, out, in).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(0))

	l := model.Listing{ID: 3, Category: model.CategoryHotel, TotalRooms: 1}
	snap, err := store.Snapshot(context.Background(), l, &in, &out)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if snap.Overlapping != 0 {
		t.Errorf("overlapping = %d, want 0", snap.Overlapping)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLDeleteListingWithBookings(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 3, 0))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM bookings WHERE listing_id = \?`).WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"n"}).AddRow(2))
	mock.ExpectRollback()

	err := store.DeleteListing(context.Background(), 7)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLUpdateListingBelowCommitted(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WithArgs(7).WillReturnRows(flightRow(7, 5, 4))
	mock.ExpectRollback()

	_, err := store.UpdateListing(context.Background(), model.Listing{
		ID: 7, Title: "OPO-LIS", Country: "PT", Airline: "TP", Departure: "OPO", Arrival: "LIS", SeatCapacity: 3,
	})
	if !errors.Is(err, model.ErrInvalid) {
		t.Fatalf("err = %v, want invalid", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLPaymentForMissingBooking(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(`INSERT INTO payments`).
		WillReturnError(&mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"})

	p, err := model.NewPayment(99, 500, model.PaymentSuccessful, "tx-1", created)
	if err != nil {
		t.Fatalf("NewPayment: %v", err)
	}
	if err := store.CreatePayment(context.Background(), &p); !errors.Is(err, repository.ErrBookingNotFound) {
		t.Fatalf("err = %v, want booking not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMySQLDeleteBookingNotFound(t *testing.T) {
	store, mock := newMock(t)

	mock.ExpectExec(`DELETE FROM bookings WHERE id = \?`).WithArgs(8).WillReturnResult(driver.RowsAffected(0))

	if err := store.DeleteBooking(context.Background(), 8); !errors.Is(err, reservation.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
