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

const providerColumns = `p.id, p.user_id, p.skills, p.availability, p.created_at, p.updated_at`

func scanProvider(row rowScanner, extra ...any) (*models.Provider, error) {
	p := &models.Provider{}
	var skills string
	dest := append([]any{&p.ID, &p.UserID, &skills, &p.Availability, &p.CreatedAt, &p.UpdatedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(skills), &p.Skills); err != nil {
		return nil, fmt.Errorf("failed to decode skills: %w", err)
	}
	if p.Skills == nil {
		p.Skills = []string{}
	}
	return p, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (db *DB) CreateProvider(ctx context.Context, provider *models.Provider) error {
	skills, err := encodeStrings(provider.Skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}

	now := time.Now()
	result, err := db.ExecContext(ctx,
		`INSERT INTO providers (user_id, skills, availability, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
		provider.UserID, skills, provider.Availability, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create provider: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	provider.ID = id
	provider.CreatedAt = now
	provider.UpdatedAt = now
	return nil
}

func (db *DB) GetProviderByID(ctx context.Context, id int64) (*models.Provider, error) {
	row := db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers p WHERE p.id = ?`, id)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider: %w", err)
	}
	return p, nil
}

func (db *DB) GetProviderByUserID(ctx context.Context, userID int64) (*models.Provider, error) {
	row := db.QueryRowContext(ctx, `SELECT `+providerColumns+` FROM providers p WHERE p.user_id = ?`, userID)
	p, err := scanProvider(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider by user: %w", err)
	}
	return p, nil
}

const providerWithUserQuery = `SELECT ` + providerColumns + `,
	u.id, u.name, u.email, u.phone, u.role, u.latitude, u.longitude, u.address, u.avatar_path,
	u.credits, u.rating, u.created_at, u.updated_at
	FROM providers p JOIN users u ON u.id = p.user_id`

func scanProviderWithUser(row rowScanner) (*models.ProviderWithUser, error) {
	var (
		u        models.User
		role     string
		lat, lon sql.NullFloat64
	)
	p, err := scanProvider(row,
		&u.ID, &u.Name, &u.Email, &u.Phone, &role, &lat, &lon, &u.Address, &u.AvatarPath,
		&u.Credits, &u.Rating, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	u.Latitude = floatPtr(lat)
	u.Longitude = floatPtr(lon)
	return &models.ProviderWithUser{Provider: *p, User: u}, nil
}

func (db *DB) GetProviderWithUser(ctx context.Context, id int64) (*models.ProviderWithUser, error) {
	row := db.QueryRowContext(ctx, providerWithUserQuery+` WHERE p.id = ?`, id)
	p, err := scanProviderWithUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get provider with user: %w", err)
	}
	return p, nil
}

func (db *DB) ListProvidersWithUsers(ctx context.Context) ([]*models.ProviderWithUser, error) {
	rows, err := db.QueryContext(ctx, providerWithUserQuery+` ORDER BY p.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list providers: %w", err)
	}
	defer rows.Close()

	var providers []*models.ProviderWithUser
	for rows.Next() {
		p, err := scanProviderWithUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

// FindProvidersBySkills returns providers holding any of the given skills verbatim.
func (db *DB) FindProvidersBySkills(ctx context.Context, skills []string) ([]*models.Provider, error) {
	if len(skills) == 0 {
		return nil, nil
	}

	args := make([]any, len(skills))
	for i, s := range skills {
		args[i] = s
	}
	query := `SELECT ` + providerColumns + ` FROM providers p
              WHERE EXISTS (SELECT 1 FROM json_each(p.skills) s WHERE s.value IN (` + placeholders(len(skills)) + `))
              ORDER BY p.id`
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find providers by skills: %w", err)
	}
	defer rows.Close()

	var providers []*models.Provider
	for rows.Next() {
		p, err := scanProvider(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan provider: %w", err)
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}

func (db *DB) UpdateProviderSkills(ctx context.Context, id int64, skills []string) error {
	encoded, err := encodeStrings(skills)
	if err != nil {
		return fmt.Errorf("failed to encode skills: %w", err)
	}
	result, err := db.ExecContext(ctx, `UPDATE providers SET skills = ?, updated_at = ? WHERE id = ?`, encoded, time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to update provider skills: %w", err)
	}
	return expectOneRow(result)
}

func (db *DB) CountProviderBookings(ctx context.Context, providerID int64) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE provider_id = ?`, providerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count provider bookings: %w", err)
	}
	return count, nil
}
