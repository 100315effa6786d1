package reservation

import (
	"time"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// Reasons reported by Check when a request cannot be satisfied.
const (
	ReasonNoRooms        = "no rooms"
	ReasonNotEnoughSeats = "not enough seats"
	ReasonSoldOut        = "sold out"
)

// Snapshot is the inventory state Check decides on.  Overlapping is the
// number of confirmed hotel bookings intersecting the requested stay;
// ConfirmedGuests is the sum of guests over confirmed flight or event
// bookings.  Only the field matching the listing's category is read.
type Snapshot struct {
	Overlapping     int
	ConfirmedGuests int
}

// Request is the part of a reservation the availability check looks at.
type Request struct {
	CheckIn   *time.Time
	CheckOut  *time.Time
	NumGuests int
}

// Decision is the outcome of Check.
type Decision struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
	Remaining int    `json:"remaining"`
}

// Check decides whether req fits in listing given snap.  It performs no
// I/O; callers are responsible for taking snap under the listing lock.
func Check(listing model.Listing, snap Snapshot, req Request) Decision {
	switch listing.Category {
	case model.CategoryHotel:
		free := listing.TotalRooms - snap.Overlapping
		if free <= 0 {
			return Decision{Reason: ReasonNoRooms}
		}
		return Decision{Available: true, Remaining: free}
	case model.CategoryFlight:
		return guestDecision(listing.SeatCapacity, snap.ConfirmedGuests, req.NumGuests, ReasonNotEnoughSeats)
	case model.CategoryEvent:
		return guestDecision(listing.TicketCapacity, snap.ConfirmedGuests, req.NumGuests, ReasonSoldOut)
	}
	return Decision{Reason: "unsupported category"}
}

func guestDecision(capacity, confirmed, requested int, reason string) Decision {
	free := capacity - confirmed
	if free < 0 {
		free = 0
	}
	if confirmed+requested > capacity {
		return Decision{Reason: reason, Remaining: free}
	}
	return Decision{Available: true, Remaining: free}
}

// Overlaps reports whether the half-open ranges [a,b) and [c,d) intersect.
// A stay ending on day X does not collide with one starting on day X.
func Overlaps(a, b, c, d time.Time) bool {
	return a.Before(d) && c.Before(b)
}
