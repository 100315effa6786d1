// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// handlers and the reservation service to distinguish between failure
// scenarios. Each one wraps the matching reservation error kind, so a
// caller can test either errors.Is(err, repository.ErrBookingNotFound)
// or errors.Is(err, reservation.ErrNotFound).
package repository

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/bookify-reservation/internal/reservation"
)

var (
	// ErrListingNotFound is returned when no listing matches the id.
	ErrListingNotFound = fmt.Errorf("listing %w", reservation.ErrNotFound)
	// ErrBookingNotFound is returned when no booking matches the id.
	ErrBookingNotFound = fmt.Errorf("booking %w", reservation.ErrNotFound)
	// ErrPaymentNotFound is returned when no payment matches the id.
	ErrPaymentNotFound = fmt.Errorf("payment %w", reservation.ErrNotFound)

	// ErrConflict signals a lost race (deadlock, lock wait timeout, or a
	// stale status) or a write blocked by dependent rows, such as deleting
	// a listing that still has bookings. Handlers translate it into 409
	// or 503 depending on the route.
	ErrConflict = fmt.Errorf("repository: %w", reservation.ErrConflict)

	// ErrInsufficientInventory is returned when a decrement would take a
	// listing's remaining units below zero.
	ErrInsufficientInventory = fmt.Errorf("insufficient inventory: %w", reservation.ErrCapacityExceeded)
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate this into an HTTP 403.
var ErrForbidden = errors.New("forbidden")

// MySQL server error numbers that mean "another transaction got there
// first; try again".
const (
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
)

// translate maps driver errors that indicate contention onto ErrConflict.
// Everything else is returned unchanged.
func translate(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlLockWaitTimeout, mysqlDeadlock:
			return fmt.Errorf("%w (mysql %d: %s)", ErrConflict, me.Number, me.Message)
		}
	}
	return err
}
