package model

import (
	"strings"
	"time"
)

// PaymentStatus is the outcome recorded for a payment.  No gateway is
// consulted; the status is whatever the caller reports.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "PENDING"
	PaymentSuccessful PaymentStatus = "SUCCESSFUL"
	PaymentFailed     PaymentStatus = "FAILED"
)

// ParsePaymentStatus converts user input into a PaymentStatus.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(strings.ToUpper(strings.TrimSpace(s))); st {
	case PaymentPending, PaymentSuccessful, PaymentFailed:
		return st, nil
	}
	return "", invalidf("unknown payment status %q", s)
}

// Payment is a side record attached to a booking.  It is deleted together
// with the booking it belongs to.
type Payment struct {
	ID            uint64        `json:"id"`                // payments.id
	BookingID     uint64        `json:"booking_id"`        // payments.booking_id
	AmountCents   int64         `json:"amount_cents"`      // payments.amount_cents
	Status        PaymentStatus `json:"status"`            // payments.status
	TransactionID string        `json:"transaction_id"`    // payments.transaction_id
	PaidAt        *time.Time    `json:"paid_at,omitempty"` // payments.paid_at (nullable)
	CreatedAt     time.Time     `json:"created_at"`        // payments.created_at
}

// NewPayment builds a payment for bookingID.  PaidAt is stamped with now
// only for successful payments.
func NewPayment(bookingID uint64, amountCents int64, status PaymentStatus, transactionID string, now time.Time) (Payment, error) {
	if bookingID == 0 {
		return Payment{}, invalidf("booking_id is required")
	}
	if amountCents < 0 {
		return Payment{}, invalidf("amount_cents must not be negative")
	}
	if _, err := ParsePaymentStatus(string(status)); err != nil {
		return Payment{}, err
	}
	if strings.TrimSpace(transactionID) == "" {
		return Payment{}, invalidf("transaction_id is required")
	}
	p := Payment{
		BookingID:     bookingID,
		AmountCents:   amountCents,
		Status:        status,
		TransactionID: transactionID,
		CreatedAt:     now.UTC(),
	}
	if status == PaymentSuccessful {
		paid := now.UTC()
		p.PaidAt = &paid
	}
	return p, nil
}
