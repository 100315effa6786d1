package repository_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
	"github.com/iliyamo/bookify-reservation/internal/repository"
	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

var host uint64 = 900

func memFlight(t *testing.T, s *repository.MemoryStore, seats int) model.Listing {
	t.Helper()
	l, err := model.NewListing(model.Listing{
		OwnerID: &host, Title: "OPO-LIS", Country: "PT", Category: model.CategoryFlight,
		Airline: "TP", Departure: "OPO", Arrival: "LIS", SeatCapacity: seats,
	})
	if err != nil {
		t.Fatalf("NewListing: %v", err)
	}
	if err := s.CreateListing(context.Background(), &l); err != nil {
		t.Fatalf("CreateListing: %v", err)
	}
	return l
}

func reserve(ctx context.Context, s *repository.MemoryStore, l model.Listing, guests int, after func(reservation.Tx) error) (model.Booking, error) {
	var out model.Booking
	err := s.Atomically(ctx, func(tx reservation.Tx) error {
		locked, err := tx.LockListing(ctx, l.ID)
		if err != nil {
			return err
		}
		b, err := model.NewBooking(1, locked, nil, nil, guests, time.Now())
		if err != nil {
			return err
		}
		if err := tx.InsertBooking(ctx, &b); err != nil {
			return err
		}
		if err := tx.DecrementInventory(ctx, l.ID, guests); err != nil {
			return err
		}
		out = b
		if after != nil {
			return after(tx)
		}
		return nil
	})
	return out, err
}

func TestMemoryStoreDiscardsFailedUnit(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 4)
	ctx := context.Background()

	boom := errors.New("boom")
	_, err := reserve(ctx, s, l, 2, func(tx reservation.Tx) error {
		got, err := tx.LockListing(ctx, l.ID)
		if err != nil {
			return err
		}
		if got.UnitsCommitted != 2 {
			t.Errorf("staged units_committed = %d, want 2", got.UnitsCommitted)
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}

	all, _ := s.ListBookings(ctx)
	if len(all) != 0 {
		t.Errorf("bookings = %d, want 0", len(all))
	}
	got, _ := s.GetListing(ctx, l.ID)
	if got.UnitsCommitted != 0 {
		t.Errorf("units_committed = %d, want 0", got.UnitsCommitted)
	}
}

func TestMemoryStoreDecrementGuard(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 3)
	ctx := context.Background()

	if _, err := reserve(ctx, s, l, 2, nil); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	_, err := reserve(ctx, s, l, 2, nil)
	if !errors.Is(err, repository.ErrInsufficientInventory) || !errors.Is(err, reservation.ErrCapacityExceeded) {
		t.Fatalf("err = %v, want insufficient inventory", err)
	}
	got, _ := s.GetListing(ctx, l.ID)
	if got.UnitsCommitted != 2 {
		t.Errorf("units_committed = %d, want 2", got.UnitsCommitted)
	}
}

func TestMemoryStoreRequiresLock(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 3)
	ctx := context.Background()

	err := s.Atomically(ctx, func(tx reservation.Tx) error {
		return tx.DecrementInventory(ctx, l.ID, 1)
	})
	if err == nil {
		t.Fatal("decrement without the listing lock succeeded")
	}
}

func TestMemoryStoreStatusTransition(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 3)
	ctx := context.Background()

	b, err := reserve(ctx, s, l, 1, nil)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	cancel := func() error {
		return s.Atomically(ctx, func(tx reservation.Tx) error {
			if _, err := tx.LockListing(ctx, l.ID); err != nil {
				return err
			}
			if _, err := tx.LockBooking(ctx, b.ID); err != nil {
				return err
			}
			if err := tx.SetBookingStatus(ctx, b.ID, model.StatusConfirmed, model.StatusCancelled, time.Now()); err != nil {
				return err
			}
			return tx.IncrementInventory(ctx, l.ID, 5)
		})
	}
	if err := cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	got, _ := s.GetBooking(ctx, b.ID)
	if got.Status != model.StatusCancelled {
		t.Errorf("status = %s, want CANCELLED", got.Status)
	}
	gl, _ := s.GetListing(ctx, l.ID)
	if gl.UnitsCommitted != 0 {
		t.Errorf("units_committed = %d, want it floored at 0", gl.UnitsCommitted)
	}
	if err := cancel(); !errors.Is(err, reservation.ErrConflict) {
		t.Errorf("second transition: err = %v, want conflict", err)
	}
}

func TestMemoryStoreHonoursCancelledContext(t *testing.T) {
	s := repository.NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.Atomically(ctx, func(reservation.Tx) error {
		called = true
		return nil
	})
	if !errors.Is(err, context.Canceled) || called {
		t.Fatalf("err = %v called = %v, want context.Canceled before the unit runs", err, called)
	}
}

func TestMemoryStoreListingCatalog(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 3)
	ctx := context.Background()

	if _, err := reserve(ctx, s, l, 2, nil); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	upd := l
	upd.SeatCapacity = 1
	if _, err := s.UpdateListing(ctx, upd); !errors.Is(err, model.ErrInvalid) {
		t.Errorf("shrink below committed: err = %v, want invalid", err)
	}
	upd.SeatCapacity = 6
	upd.Category = model.CategoryEvent
	got, err := s.UpdateListing(ctx, upd)
	if err != nil {
		t.Fatalf("UpdateListing: %v", err)
	}
	if got.SeatCapacity != 6 || got.Category != model.CategoryFlight || got.UnitsCommitted != 2 {
		t.Errorf("updated listing = %+v", got)
	}

	if err := s.DeleteListing(ctx, l.ID); !errors.Is(err, repository.ErrConflict) {
		t.Errorf("delete with bookings: err = %v, want conflict", err)
	}
	other := memFlight(t, s, 1)
	if err := s.DeleteListing(ctx, other.ID); err != nil {
		t.Errorf("DeleteListing: %v", err)
	}
	if err := s.DeleteListing(ctx, other.ID); !errors.Is(err, repository.ErrListingNotFound) {
		t.Errorf("second delete: err = %v, want not found", err)
	}

	flights, _ := s.ListListings(ctx, model.CategoryFlight)
	hotels, _ := s.ListListings(ctx, model.CategoryHotel)
	if len(flights) != 1 || len(hotels) != 0 {
		t.Errorf("flights = %d hotels = %d, want 1 and 0", len(flights), len(hotels))
	}
}

func TestMemoryStorePaymentsFollowBooking(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 3)
	ctx := context.Background()

	b, err := reserve(ctx, s, l, 1, nil)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	for i := 0; i < 2; i++ {
		p, _ := model.NewPayment(b.ID, 100, model.PaymentPending, "tx", time.Now())
		if err := s.CreatePayment(ctx, &p); err != nil {
			t.Fatalf("CreatePayment: %v", err)
		}
	}
	orphan, _ := model.NewPayment(404, 100, model.PaymentPending, "tx", time.Now())
	if err := s.CreatePayment(ctx, &orphan); !errors.Is(err, repository.ErrBookingNotFound) {
		t.Errorf("orphan payment: err = %v, want booking not found", err)
	}

	pays, _ := s.ListPaymentsByBooking(ctx, b.ID)
	if len(pays) != 2 || pays[0].ID > pays[1].ID {
		t.Fatalf("payments = %+v", pays)
	}
	if err := s.DeleteBooking(ctx, b.ID); err != nil {
		t.Fatalf("DeleteBooking: %v", err)
	}
	if _, err := s.GetPayment(ctx, pays[0].ID); !errors.Is(err, repository.ErrPaymentNotFound) {
		t.Errorf("payment survived booking delete: %v", err)
	}
}

func TestMemoryStoreUpdateBookingGuards(t *testing.T) {
	s := repository.NewMemoryStore()
	l := memFlight(t, s, 3)
	ctx := context.Background()

	b, err := reserve(ctx, s, l, 1, nil)
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	edit := b
	edit.NumGuests = 2

	err = s.Atomically(ctx, func(tx reservation.Tx) error {
		return tx.UpdateBooking(ctx, edit)
	})
	if err == nil {
		t.Fatal("update without the booking lock succeeded")
	}

	stale := edit
	stale.Status = model.StatusCancelled
	err = s.Atomically(ctx, func(tx reservation.Tx) error {
		if _, err := tx.LockBooking(ctx, b.ID); err != nil {
			return err
		}
		return tx.UpdateBooking(ctx, stale)
	})
	if !errors.Is(err, reservation.ErrConflict) {
		t.Errorf("status mismatch: err = %v, want conflict", err)
	}

	err = s.Atomically(ctx, func(tx reservation.Tx) error {
		if _, err := tx.LockBooking(ctx, b.ID); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, edit); err != nil {
			return err
		}
		seen, err := tx.LockBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		if seen.NumGuests != 2 {
			t.Errorf("staged num_guests = %d, want 2", seen.NumGuests)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("UpdateBooking: %v", err)
	}
	got, _ := s.GetBooking(ctx, b.ID)
	if got.NumGuests != 2 || got.Status != model.StatusConfirmed {
		t.Errorf("stored booking = %+v", got)
	}
}
