package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixit/internal/models"
)

const paymentColumns = `id, booking_id, amount, method, status, gateway_order_id, gateway_payment_id,
	gateway_signature, created_at, updated_at`

func scanPayment(row rowScanner) (*models.Payment, error) {
	p := &models.Payment{}
	var method, status string
	err := row.Scan(&p.ID, &p.BookingID, &p.Amount, &method, &status, &p.GatewayOrderID,
		&p.GatewayPaymentID, &p.GatewaySignature, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.Method = models.PaymentMethod(method)
	p.Status = models.PaymentStatus(status)
	return p, nil
}

// CreatePaymentAndLink inserts the payment and points the booking at it.
// The booking must be at bookingVersion and have no linked payment.
func (db *DB) CreatePaymentAndLink(ctx context.Context, bookingVersion int64, payment *models.Payment) error {
	if payment.Status == "" {
		payment.Status = models.PaymentPending
	}
	now := time.Now()

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`INSERT INTO payments (booking_id, amount, method, status, gateway_order_id, gateway_payment_id,
                gateway_signature, created_at, updated_at)
             VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			payment.BookingID, payment.Amount, string(payment.Method), string(payment.Status),
			payment.GatewayOrderID, payment.GatewayPaymentID, payment.GatewaySignature, now, now)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to create payment: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}

		result, err = tx.ExecContext(ctx,
			`UPDATE bookings SET payment_id = ?, version = version + 1, updated_at = ?
             WHERE id = ? AND version = ? AND payment_id IS NULL`,
			id, now, payment.BookingID, bookingVersion)
		if err != nil {
			return fmt.Errorf("failed to link payment: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrConcurrentModification
		}

		payment.ID = id
		payment.CreatedAt = now
		payment.UpdatedAt = now
		return nil
	})
}

func (db *DB) GetPayment(ctx context.Context, id int64) (*models.Payment, error) {
	row := db.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id = ?`, id)
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// GetPaymentByBooking returns the live (non-failed) payment of a booking.
func (db *DB) GetPaymentByBooking(ctx context.Context, bookingID int64) (*models.Payment, error) {
	row := db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE booking_id = ? AND status != ? ORDER BY id DESC LIMIT 1`,
		bookingID, string(models.PaymentFailed))
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment by booking: %w", err)
	}
	return p, nil
}

func (db *DB) MarkPaymentSuccess(ctx context.Context, id int64, gatewayPaymentID, signature string) error {
	result, err := db.ExecContext(ctx,
		`UPDATE payments SET status = ?, gateway_payment_id = ?, gateway_signature = ?, updated_at = ?
         WHERE id = ? AND status = ?`,
		string(models.PaymentSuccess), gatewayPaymentID, signature, time.Now(), id, string(models.PaymentPending))
	if err != nil {
		return fmt.Errorf("failed to mark payment success: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// MarkPaymentFailedAndUnlink fails a pending payment and detaches it from its
// booking so a new payment can be started.
func (db *DB) MarkPaymentFailedAndUnlink(ctx context.Context, id int64, gatewayPaymentID string) error {
	return db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now()
		result, err := tx.ExecContext(ctx,
			`UPDATE payments SET status = ?, gateway_payment_id = ?, updated_at = ? WHERE id = ? AND status = ?`,
			string(models.PaymentFailed), gatewayPaymentID, now, id, string(models.PaymentPending))
		if err != nil {
			return fmt.Errorf("failed to mark payment failed: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrConcurrentModification
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE bookings SET payment_id = NULL, version = version + 1, updated_at = ? WHERE payment_id = ?`,
			now, id)
		if err != nil {
			return fmt.Errorf("failed to unlink payment: %w", err)
		}
		return nil
	})
}
