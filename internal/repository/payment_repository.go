package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/bookify-reservation/internal/model"
)

// mysqlNoReferencedRow is raised when a foreign key points at nothing.
const mysqlNoReferencedRow = 1452

// PaymentRepo stores payments attached to bookings.
type PaymentRepo struct {
	db *sql.DB
}

// NewPaymentRepo returns a new PaymentRepo bound to the given database.
func NewPaymentRepo(db *sql.DB) *PaymentRepo { return &PaymentRepo{db: db} }

const paymentColumns = `id, booking_id, amount_cents, status, transaction_id, paid_at, created_at`

func scanPayment(row rowScanner) (model.Payment, error) {
	var (
		p      model.Payment
		status string
		paidAt sql.NullTime
	)
	if err := row.Scan(&p.ID, &p.BookingID, &p.AmountCents, &status, &p.TransactionID, &paidAt, &p.CreatedAt); err != nil {
		return model.Payment{}, err
	}
	p.Status = model.PaymentStatus(status)
	p.PaidAt = timePtr(paidAt)
	return p, nil
}

// Create inserts p and sets its id.  A booking id that does not exist
// yields ErrBookingNotFound.
func (r *PaymentRepo) Create(ctx context.Context, p *model.Payment) error {
	const q = `INSERT INTO payments (booking_id, amount_cents, status, transaction_id, paid_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.BookingID, p.AmountCents, string(p.Status), p.TransactionID, nullTime(p.PaidAt), p.CreatedAt.UTC())
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlNoReferencedRow {
			return ErrBookingNotFound
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// GetByID returns a payment or ErrPaymentNotFound.
func (r *PaymentRepo) GetByID(ctx context.Context, id uint64) (model.Payment, error) {
	p, err := scanPayment(r.db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Payment{}, ErrPaymentNotFound
	}
	return p, err
}

// ListByBooking returns a booking's payments in insertion order.
func (r *PaymentRepo) ListByBooking(ctx context.Context, bookingID uint64) ([]model.Payment, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE booking_id = ? ORDER BY id`, bookingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
