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

const bookingColumns = `b.id, b.user_id, b.provider_id, b.service_id, b.status, b.scheduled_time, b.price,
	b.location_lat, b.location_lon, b.notes, b.rating, b.review, b.completion_notes,
	b.completion_images, b.completed_at, b.payment_id, b.version, b.created_at, b.updated_at`

func scanBooking(row rowScanner, extra ...any) (*models.Booking, error) {
	b := &models.Booking{}
	var (
		providerID, rating, paymentID sql.NullInt64
		scheduled, completedAt        sql.NullTime
		lat, lon                      sql.NullFloat64
		status, images                string
	)
	dest := append([]any{
		&b.ID, &b.UserID, &providerID, &b.ServiceID, &status, &scheduled, &b.Price,
		&lat, &lon, &b.Notes, &rating, &b.Review, &b.CompletionNotes,
		&images, &completedAt, &paymentID, &b.Version, &b.CreatedAt, &b.UpdatedAt,
	}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	b.Status = models.BookingStatus(status)
	b.ProviderID = int64Ptr(providerID)
	b.PaymentID = int64Ptr(paymentID)
	b.ScheduledTime = timePtr(scheduled)
	b.CompletedAt = timePtr(completedAt)
	b.LocationLat = floatPtr(lat)
	b.LocationLon = floatPtr(lon)
	if rating.Valid {
		r := int(rating.Int64)
		b.Rating = &r
	}
	if err := json.Unmarshal([]byte(images), &b.CompletionImages); err != nil {
		return nil, fmt.Errorf("failed to decode completion images: %w", err)
	}
	return b, nil
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}

	query := `INSERT INTO bookings (
                user_id, provider_id, service_id, status, scheduled_time, price,
                location_lat, location_lon, notes, version, created_at, updated_at
              ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	var scheduled sql.NullTime
	if booking.ScheduledTime != nil {
		scheduled = sql.NullTime{Time: *booking.ScheduledTime, Valid: true}
	}

	result, err := db.ExecContext(ctx, query,
		booking.UserID,
		nullInt(booking.ProviderID),
		booking.ServiceID,
		string(booking.Status),
		scheduled,
		booking.Price,
		nullFloat(booking.LocationLat),
		nullFloat(booking.LocationLon),
		booking.Notes,
		1,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.Version = 1
	booking.CreatedAt = now
	booking.UpdatedAt = now
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	row := db.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id)
	b, err := scanBooking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

const bookingDetailsQuery = `SELECT ` + bookingColumns + `,
	u.name, COALESCE(pu.name, ''), s.name, s.category
	FROM bookings b
	JOIN users u ON u.id = b.user_id
	JOIN services s ON s.id = b.service_id
	LEFT JOIN providers p ON p.id = b.provider_id
	LEFT JOIN users pu ON pu.id = p.user_id`

func scanBookingDetails(row rowScanner) (*models.BookingDetails, error) {
	d := &models.BookingDetails{}
	b, err := scanBooking(row, &d.UserName, &d.ProviderName, &d.ServiceName, &d.Category)
	if err != nil {
		return nil, err
	}
	d.Booking = *b
	return d, nil
}

func (db *DB) GetBookingDetails(ctx context.Context, id int64) (*models.BookingDetails, error) {
	row := db.QueryRowContext(ctx, bookingDetailsQuery+` WHERE b.id = ?`, id)
	d, err := scanBookingDetails(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking details: %w", err)
	}
	return d, nil
}

func (db *DB) queryBookings(ctx context.Context, where string, args ...any) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings b WHERE ` + where + ` ORDER BY b.created_at DESC, b.id DESC`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

func (db *DB) ListBookingsByUser(ctx context.Context, userID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `b.user_id = ?`, userID)
}

func (db *DB) ListBookingsByProvider(ctx context.Context, providerID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `b.provider_id = ?`, providerID)
}

func (db *DB) ListBookingsByStatus(ctx context.Context, status models.BookingStatus) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `b.status = ?`, string(status))
}

func (db *DB) ListUnassignedPendingBookings(ctx context.Context) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `b.provider_id IS NULL AND b.status = ?`, string(models.StatusPending))
}

// ListActiveBookingsByProvider returns accepted and in-progress jobs of a provider.
func (db *DB) ListActiveBookingsByProvider(ctx context.Context, providerID int64) ([]*models.Booking, error) {
	return db.queryBookings(ctx, `b.provider_id = ? AND b.status IN (?, ?)`,
		providerID, string(models.StatusAccepted), string(models.StatusInProgress))
}

func (db *DB) ListBookingsByDateRange(ctx context.Context, start, end time.Time) ([]*models.BookingDetails, error) {
	rows, err := db.QueryContext(ctx,
		bookingDetailsQuery+` WHERE b.created_at >= ? AND b.created_at < ? ORDER BY b.created_at ASC, b.id ASC`,
		start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by date range: %w", err)
	}
	defer rows.Close()

	var bookings []*models.BookingDetails
	for rows.Next() {
		d, err := scanBookingDetails(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, d)
	}
	return bookings, rows.Err()
}

// UpdateBookingStatusWithVersion moves a booking from one status to another.
// It fails with ErrConcurrentModification when the row changed since it was read.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, version int64, from, to models.BookingStatus) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ?`
	result, err := db.ExecContext(ctx, query, string(to), time.Now(), id, version, string(from))
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// AcceptBookingWithVersion assigns the provider and marks a pending booking accepted.
func (db *DB) AcceptBookingWithVersion(ctx context.Context, id, version, providerID int64) error {
	query := `UPDATE bookings SET provider_id = ?, status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ? AND (provider_id IS NULL OR provider_id = ?)`
	result, err := db.ExecContext(ctx, query,
		providerID, string(models.StatusAccepted), time.Now(),
		id, version, string(models.StatusPending), providerID)
	if err != nil {
		return fmt.Errorf("failed to accept booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// RateBookingWithVersion records the single rating a completed booking may carry.
func (db *DB) RateBookingWithVersion(ctx context.Context, id, version int64, rating int, review string) error {
	query := `UPDATE bookings SET rating = ?, review = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ? AND status = ? AND rating IS NULL`
	result, err := db.ExecContext(ctx, query, rating, review, time.Now(), id, version, string(models.StatusCompleted))
	if err != nil {
		return fmt.Errorf("failed to rate booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// ProviderRatingAverage returns the mean rating and the number of rated bookings.
func (db *DB) ProviderRatingAverage(ctx context.Context, providerID int64) (float64, int64, error) {
	var (
		avg   sql.NullFloat64
		count int64
	)
	err := db.QueryRowContext(ctx,
		`SELECT AVG(rating), COUNT(rating) FROM bookings WHERE provider_id = ? AND rating IS NOT NULL`,
		providerID).Scan(&avg, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to average provider rating: %w", err)
	}
	return avg.Float64, count, nil
}
