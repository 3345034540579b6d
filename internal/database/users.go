package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fixit/internal/models"
)

const userColumns = `id, name, email, phone, role, latitude, longitude, address, avatar_path,
	credits, rating, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var lat, lon sql.NullFloat64
	var role string
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &role, &lat, &lon, &u.Address, &u.AvatarPath,
		&u.Credits, &u.Rating, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Latitude = floatPtr(lat)
	u.Longitude = floatPtr(lon)
	return u, nil
}

func (db *DB) CreateUser(ctx context.Context, user *models.User) error {
	if user.Role == "" {
		user.Role = models.RoleCustomer
	}
	if user.Rating == 0 {
		user.Rating = models.DefaultUserRating
	}

	query := `INSERT INTO users (name, email, phone, role, latitude, longitude, address, avatar_path,
                credits, rating, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		user.Name,
		user.Email,
		user.Phone,
		string(user.Role),
		nullFloat(user.Latitude),
		nullFloat(user.Longitude),
		user.Address,
		user.AvatarPath,
		user.Credits,
		user.Rating,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	user.ID = id
	user.CreatedAt = now
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	row := db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

// UpdateUserLocation stores coordinates; a nil address leaves the stored one untouched.
func (db *DB) UpdateUserLocation(ctx context.Context, id int64, lat, lon float64, address *string) error {
	var (
		result sql.Result
		err    error
	)
	if address != nil {
		result, err = db.ExecContext(ctx,
			`UPDATE users SET latitude = ?, longitude = ?, address = ?, updated_at = ? WHERE id = ?`,
			lat, lon, *address, time.Now(), id)
	} else {
		result, err = db.ExecContext(ctx,
			`UPDATE users SET latitude = ?, longitude = ?, updated_at = ? WHERE id = ?`,
			lat, lon, time.Now(), id)
	}
	if err != nil {
		return fmt.Errorf("failed to update user location: %w", err)
	}
	return expectOneRow(result)
}

func (db *DB) UpdateUserRating(ctx context.Context, id int64, rating float64) error {
	result, err := db.ExecContext(ctx, `UPDATE users SET rating = ?, updated_at = ? WHERE id = ?`, rating, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update user rating: %w", err)
	}
	return expectOneRow(result)
}

func expectOneRow(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}
