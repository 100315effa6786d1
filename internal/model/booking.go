package model

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a booking.  CONFIRMED is the only
// initial state and CANCELLED is terminal.
type Status string

const (
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusConfirmed, StatusCancelled:
		return st, nil
	}
	return "", invalidf("unknown booking status %q", s)
}

// Booking records a user's claim on a listing's inventory.
//
// Fields:
//	ID        – primary key identifier.
//	UserID    – user who made the booking.
//	ListingID – listing being booked.
//	Category  – copy of the listing's category at booking time.
//	Status    – CONFIRMED or CANCELLED.
//	BookedAt  – creation timestamp.
//	CheckIn   – first night (hotel), optional otherwise.
//	CheckOut  – departure day, exclusive.
//	NumGuests – rooms occupants, seats or tickets requested.
//	Payments  – payments attached to the booking; only filled on
//	            single booking reads.
type Booking struct {
	ID        uint64     `json:"id"`                  // bookings.id
	UserID    uint64     `json:"user_id"`             // bookings.user_id
	ListingID uint64     `json:"listing_id"`          // bookings.listing_id
	Category  Category   `json:"category"`            // bookings.category
	Status    Status     `json:"status"`              // bookings.status
	BookedAt  time.Time  `json:"booked_at"`           // bookings.booked_at
	CheckIn   *time.Time `json:"check_in,omitempty"`  // bookings.check_in (nullable)
	CheckOut  *time.Time `json:"check_out,omitempty"` // bookings.check_out (nullable)
	NumGuests int        `json:"num_guests"`          // bookings.num_guests
	UpdatedAt time.Time  `json:"updated_at"`          // bookings.updated_at
	Payments  []Payment  `json:"payments,omitempty"`
}

// NewBooking builds a CONFIRMED booking of listing for userID.  Dates are
// truncated to whole days.  The returned booking has passed Validate.
func NewBooking(userID uint64, listing Listing, checkIn, checkOut *time.Time, numGuests int, bookedAt time.Time) (Booking, error) {
	b := Booking{
		UserID:    userID,
		ListingID: listing.ID,
		Category:  listing.Category,
		Status:    StatusConfirmed,
		BookedAt:  bookedAt.UTC(),
		CheckIn:   DayPtr(checkIn),
		CheckOut:  DayPtr(checkOut),
		NumGuests: numGuests,
		UpdatedAt: bookedAt.UTC(),
	}
	if err := b.Validate(); err != nil {
		return Booking{}, err
	}
	return b, nil
}

// Validate checks the invariants every stored booking must hold.
func (b Booking) Validate() error {
	if b.UserID == 0 {
		return invalidf("user_id is required")
	}
	if b.ListingID == 0 {
		return invalidf("listing_id is required")
	}
	if _, err := ParseCategory(string(b.Category)); err != nil {
		return err
	}
	if _, err := ParseStatus(string(b.Status)); err != nil {
		return err
	}
	if b.NumGuests <= 0 {
		return invalidf("num_guests must be positive")
	}
	if b.Category == CategoryHotel && (b.CheckIn == nil || b.CheckOut == nil) {
		return invalidf("hotel bookings need check_in and check_out")
	}
	if b.CheckIn != nil && b.CheckOut != nil && !b.CheckIn.Before(*b.CheckOut) {
		return invalidf("check_in must be before check_out")
	}
	return nil
}

// Active reports whether the booking still holds inventory.
func (b Booking) Active() bool { return b.Status == StatusConfirmed }

// HoldsUnits reports whether cancelling b must hand units back to the
// listing's inventory counter.
func (b Booking) HoldsUnits() bool {
	return b.Active() && (b.Category == CategoryFlight || b.Category == CategoryEvent)
}

// BookingPatch is a partial update.  Nil fields are left untouched.
type BookingPatch struct {
	Status    *Status    `json:"status,omitempty"`
	CheckIn   *time.Time `json:"check_in,omitempty"`
	CheckOut  *time.Time `json:"check_out,omitempty"`
	NumGuests *int       `json:"num_guests,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p BookingPatch) Empty() bool {
	return p.Status == nil && p.CheckIn == nil && p.CheckOut == nil && p.NumGuests == nil
}

// Apply returns b with the non-nil fields of p copied over.
func (b Booking) Apply(p BookingPatch, now time.Time) Booking {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.CheckIn != nil {
		b.CheckIn = DayPtr(p.CheckIn)
	}
	if p.CheckOut != nil {
		b.CheckOut = DayPtr(p.CheckOut)
	}
	if p.NumGuests != nil {
		b.NumGuests = *p.NumGuests
	}
	b.UpdatedAt = now.UTC()
	return b
}
