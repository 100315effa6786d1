// Package queue carries booking events to the message brokers and back.
// Events are published after a reservation commits; consumers must treat
// them as at-most-once notifications, not as the source of truth.
package queue

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// EventType names what happened to a booking.
type EventType string

const (
	EventBookingConfirmed EventType = "booking.confirmed"
	EventBookingCancelled EventType = "booking.cancelled"
)

// BookingEvent is published when a booking is confirmed or cancelled. It
// contains enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type BookingEvent struct {
	EventID      string         `json:"event_id"`
	Type         EventType      `json:"type"`
	BookingID    uint64         `json:"booking_id"`
	UserID       uint64         `json:"user_id"`
	ListingID    uint64         `json:"listing_id"`
	Category     model.Category `json:"category"`
	ListingTitle string         `json:"listing_title,omitempty"`
	CheckIn      *time.Time     `json:"check_in,omitempty"`
	CheckOut     *time.Time     `json:"check_out,omitempty"`
	NumGuests    int            `json:"num_guests"`
	Status       model.Status   `json:"status"`
	OccurredAt   time.Time      `json:"occurred_at"`
}

// NewConfirmedEvent describes a freshly confirmed booking of l.
func NewConfirmedEvent(b model.Booking, l model.Listing, now time.Time) BookingEvent {
	ev := newEvent(EventBookingConfirmed, b, now)
	ev.ListingTitle = l.Title
	return ev
}

// NewCancelledEvent describes a booking that moved to CANCELLED.
func NewCancelledEvent(b model.Booking, now time.Time) BookingEvent {
	return newEvent(EventBookingCancelled, b, now)
}

func newEvent(t EventType, b model.Booking, now time.Time) BookingEvent {
	return BookingEvent{
		EventID:    uuid.NewString(),
		Type:       t,
		BookingID:  b.ID,
		UserID:     b.UserID,
		ListingID:  b.ListingID,
		Category:   b.Category,
		CheckIn:    b.CheckIn,
		CheckOut:   b.CheckOut,
		NumGuests:  b.NumGuests,
		Status:     b.Status,
		OccurredAt: now.UTC(),
	}
}

// LogLine renders the event as the single line the audit log stores.
func (e BookingEvent) LogLine() string {
	stay := "-"
	if e.CheckIn != nil && e.CheckOut != nil {
		stay = e.CheckIn.Format(time.DateOnly) + ".." + e.CheckOut.Format(time.DateOnly)
	}
	return fmt.Sprintf("[%s] %s | booking_id=%d | user_id=%d | listing_id=%d | category=%s | listing=%q | guests=%d | stay=%s | event_id=%s\n",
		e.OccurredAt.Format(time.RFC3339), e.Type, e.BookingID, e.UserID, e.ListingID, e.Category, e.ListingTitle, e.NumGuests, stay, e.EventID)
}
