package model

import (
	"strings"
	"time"
)

// Category identifies the kind of inventory a listing sells.
type Category string

const (
	CategoryHotel  Category = "HOTEL"
	CategoryFlight Category = "FLIGHT"
	CategoryEvent  Category = "EVENT"
)

// ParseCategory converts user input into a Category. Matching is case
// insensitive; an unknown value yields an ErrInvalid error.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToUpper(strings.TrimSpace(s))); c {
	case CategoryHotel, CategoryFlight, CategoryEvent:
		return c, nil
	}
	return "", invalidf("unknown category %q", s)
}

// Listing is a sellable item on the platform.  Every listing shares the
// descriptive columns; the remaining fields only carry meaning for the
// matching category and are left at their zero value otherwise.
//
// Fields:
//	ID             – primary key identifier.
//	OwnerID        – host that created the listing, if known.
//	Title          – display title.
//	Description    – free text description.
//	PriceCents     – unit price in the platform currency.
//	Country        – country the listing is located in.
//	Category       – HOTEL, FLIGHT or EVENT.
//	TotalRooms     – hotel rooms; availability is derived from bookings.
//	SeatCapacity   – flight seats.
//	TicketCapacity – event tickets.
//	UnitsCommitted – seats/tickets held by confirmed bookings (flight/event).
type Listing struct {
	ID          uint64   `json:"id"`                                   // listings.id
	OwnerID     *uint64  `json:"owner_id,omitempty"`                   // listings.owner_id (nullable)
	Title       string   `json:"title" validate:"required,max=200"`    // listings.title
	Description string   `json:"description" validate:"max=4000"`      // listings.description
	PriceCents  int64    `json:"price_cents" validate:"gte=0"`         // listings.price_cents
	Country     string   `json:"country" validate:"required,max=100"`  // listings.country
	Category    Category `json:"category" validate:"oneof=HOTEL FLIGHT EVENT"` // listings.category

	// Hotel
	Address       string     `json:"address,omitempty" validate:"required_if=Category HOTEL"`
	City          string     `json:"city,omitempty" validate:"required_if=Category HOTEL"`
	StarRating    int        `json:"star_rating,omitempty" validate:"gte=0,lte=5"`
	TotalRooms    int        `json:"total_rooms,omitempty" validate:"gte=0"`
	AvailableFrom *time.Time `json:"available_from,omitempty"`
	AvailableTo   *time.Time `json:"available_to,omitempty"`

	// Flight
	Airline       string     `json:"airline,omitempty" validate:"required_if=Category FLIGHT"`
	Departure     string     `json:"departure,omitempty" validate:"required_if=Category FLIGHT"`
	Arrival       string     `json:"arrival,omitempty" validate:"required_if=Category FLIGHT"`
	DepartureTime *time.Time `json:"departure_time,omitempty"`
	ArrivalTime   *time.Time `json:"arrival_time,omitempty"`
	SeatCapacity  int        `json:"seat_capacity,omitempty" validate:"gte=0"`

	// Event
	Venue          string     `json:"venue,omitempty" validate:"required_if=Category EVENT"`
	EventDate      *time.Time `json:"event_date,omitempty"`
	TicketCapacity int        `json:"ticket_capacity,omitempty" validate:"gte=0"`

	UnitsCommitted int       `json:"units_committed"` // listings.units_committed
	CreatedAt      time.Time `json:"created_at"`      // listings.created_at
	UpdatedAt      time.Time `json:"updated_at"`      // listings.updated_at
}

// NewListing validates l and returns it with dates normalised to UTC.  It
// does not assign an ID; that happens on insert.
func NewListing(l Listing) (Listing, error) {
	l.Title = strings.TrimSpace(l.Title)
	l.Country = strings.TrimSpace(l.Country)
	if err := CheckStruct(l); err != nil {
		return Listing{}, err
	}
	l.AvailableFrom = DayPtr(l.AvailableFrom)
	l.AvailableTo = DayPtr(l.AvailableTo)
	if l.AvailableFrom != nil && l.AvailableTo != nil && !l.AvailableFrom.Before(*l.AvailableTo) {
		return Listing{}, invalidf("available_from must be before available_to")
	}
	if l.DepartureTime != nil && l.ArrivalTime != nil && !l.DepartureTime.Before(*l.ArrivalTime) {
		return Listing{}, invalidf("departure_time must be before arrival_time")
	}
	if l.UnitsCommitted < 0 || (l.Category != CategoryHotel && l.UnitsCommitted > l.Capacity()) {
		return Listing{}, invalidf("capacity %d is below the %d units already committed", l.Capacity(), l.UnitsCommitted)
	}
	return l, nil
}

// Capacity returns the category specific capacity field.
func (l Listing) Capacity() int {
	switch l.Category {
	case CategoryHotel:
		return l.TotalRooms
	case CategoryFlight:
		return l.SeatCapacity
	case CategoryEvent:
		return l.TicketCapacity
	}
	return 0
}

// Inventory returns the listing's capacity counters.
func (l Listing) Inventory() Inventory {
	return Inventory{ListingID: l.ID, Capacity: l.Capacity(), Committed: l.UnitsCommitted}
}

// OwnedBy reports whether userID created the listing.
func (l Listing) OwnedBy(userID uint64) bool {
	return l.OwnerID != nil && *l.OwnerID == userID
}

// Inventory is the capacity model of a single listing.  For flights and
// events Committed tracks the units held by confirmed bookings and never
// exceeds Capacity.  Hotels leave Committed at zero because their
// availability is computed from overlapping stays.
type Inventory struct {
	ListingID uint64 `json:"listing_id"`
	Capacity  int    `json:"capacity"`
	Committed int    `json:"committed"`
}

// Remaining returns the number of units still free.
func (i Inventory) Remaining() int {
	if r := i.Capacity - i.Committed; r > 0 {
		return r
	}
	return 0
}

// Day truncates t to midnight UTC, the resolution used for stay dates.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DayPtr is Day for optional dates.
func DayPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := Day(*t)
	return &d
}
