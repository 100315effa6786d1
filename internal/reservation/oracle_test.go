package reservation

import (
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestOverlaps(t *testing.T) {
	tests := []struct {
		name       string
		a, b, c, d time.Time
		want       bool
	}{
		{"back to back", day(2025, 6, 1), day(2025, 6, 5), day(2025, 6, 5), day(2025, 6, 8), false},
		{"back to back reversed", day(2025, 6, 5), day(2025, 6, 8), day(2025, 6, 1), day(2025, 6, 5), false},
		{"one night shared", day(2025, 6, 1), day(2025, 6, 3), day(2025, 6, 2), day(2025, 6, 4), true},
		{"contained", day(2025, 6, 1), day(2025, 6, 10), day(2025, 6, 3), day(2025, 6, 4), true},
		{"identical", day(2025, 6, 1), day(2025, 6, 2), day(2025, 6, 1), day(2025, 6, 2), true},
		{"disjoint", day(2025, 6, 1), day(2025, 6, 2), day(2025, 7, 1), day(2025, 7, 2), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Overlaps(tt.a, tt.b, tt.c, tt.d); got != tt.want {
				t.Errorf("Overlaps() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCheck(t *testing.T) {
	hotel := model.Listing{ID: 1, Category: model.CategoryHotel, TotalRooms: 2}
	flight := model.Listing{ID: 2, Category: model.CategoryFlight, SeatCapacity: 10}
	event := model.Listing{ID: 3, Category: model.CategoryEvent, TicketCapacity: 4}
	in, out := day(2025, 6, 1), day(2025, 6, 3)

	tests := []struct {
		name      string
		listing   model.Listing
		snap      Snapshot
		guests    int
		available bool
		reason    string
		remaining int
	}{
		{"hotel free", hotel, Snapshot{Overlapping: 1}, 2, true, "", 1},
		{"hotel full", hotel, Snapshot{Overlapping: 2}, 1, false, ReasonNoRooms, 0},
		{"hotel zero rooms", model.Listing{Category: model.CategoryHotel}, Snapshot{}, 1, false, ReasonNoRooms, 0},
		{"flight exact fit", flight, Snapshot{ConfirmedGuests: 7}, 3, true, "", 3},
		{"flight one over", flight, Snapshot{ConfirmedGuests: 8}, 3, false, ReasonNotEnoughSeats, 2},
		{"event sold out", event, Snapshot{ConfirmedGuests: 4}, 1, false, ReasonSoldOut, 0},
		{"event fits", event, Snapshot{}, 4, true, "", 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Check(tt.listing, tt.snap, Request{CheckIn: &in, CheckOut: &out, NumGuests: tt.guests})
			if d.Available != tt.available || d.Reason != tt.reason || d.Remaining != tt.remaining {
				t.Errorf("Check() = %+v, want available=%v reason=%q remaining=%d", d, tt.available, tt.reason, tt.remaining)
			}
		})
	}
}

func TestErrorKinds(t *testing.T) {
	err := newError(ErrCapacityExceeded, "%s", ReasonSoldOut)
	if got := err.Error(); got != "capacity exceeded: sold out" {
		t.Errorf("Error() = %q", got)
	}
	if Reason(err) != ReasonSoldOut {
		t.Errorf("Reason() = %q", Reason(err))
	}
	invalid := classify(model.ErrInvalid)
	var e *Error
	if !errors.As(invalid, &e) || e.Kind != ErrValidation {
		t.Errorf("classify(model.ErrInvalid) = %v, want a validation error", invalid)
	}
}
