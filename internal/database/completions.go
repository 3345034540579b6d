package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fixit/internal/models"
)

// SubmitCompletion stores the completion record and projects it onto the
// booking in one transaction. The booking must still be in progress, owned
// by the completing provider and at the given version.
func (db *DB) SubmitCompletion(ctx context.Context, bookingVersion int64, completion *models.Completion) error {
	images, err := encodeStrings(completion.Images)
	if err != nil {
		return fmt.Errorf("failed to encode images: %w", err)
	}
	if completion.CompletedAt.IsZero() {
		completion.CompletedAt = time.Now()
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx,
			`UPDATE bookings SET status = ?, completion_notes = ?, completion_images = ?, completed_at = ?,
                version = version + 1, updated_at = ?
             WHERE id = ? AND version = ? AND status = ? AND provider_id = ?`,
			string(models.StatusCompleted), completion.Notes, images, completion.CompletedAt, time.Now(),
			completion.BookingID, bookingVersion, string(models.StatusInProgress), completion.ProviderID)
		if err != nil {
			return fmt.Errorf("failed to project completion: %w", err)
		}
		rows, _ := result.RowsAffected()
		if rows == 0 {
			return ErrConcurrentModification
		}

		result, err = tx.ExecContext(ctx,
			`INSERT INTO completions (booking_id, provider_id, notes, images, completed_at) VALUES (?, ?, ?, ?, ?)`,
			completion.BookingID, completion.ProviderID, completion.Notes, images, completion.CompletedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return ErrDuplicate
			}
			return fmt.Errorf("failed to create completion: %w", err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		completion.ID = id
		return nil
	})
}

func (db *DB) GetCompletionByBooking(ctx context.Context, bookingID int64) (*models.Completion, error) {
	c := &models.Completion{}
	var images string
	err := db.QueryRowContext(ctx,
		`SELECT id, booking_id, provider_id, notes, images, completed_at FROM completions WHERE booking_id = ?`,
		bookingID).Scan(&c.ID, &c.BookingID, &c.ProviderID, &c.Notes, &images, &c.CompletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get completion: %w", err)
	}
	if err := json.Unmarshal([]byte(images), &c.Images); err != nil {
		return nil, fmt.Errorf("failed to decode completion images: %w", err)
	}
	return c, nil
}
