package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"fixit/internal/models"
)

const serviceColumns = `id, name, category, base_price, image_path, location_lat, location_lon`

func scanService(row rowScanner) (*models.Service, error) {
	s := &models.Service{}
	var lat, lon sql.NullFloat64
	if err := row.Scan(&s.ID, &s.Name, &s.Category, &s.BasePrice, &s.ImagePath, &lat, &lon); err != nil {
		return nil, err
	}
	s.LocationLat = floatPtr(lat)
	s.LocationLon = floatPtr(lon)
	return s, nil
}

func (db *DB) CreateService(ctx context.Context, service *models.Service) error {
	result, err := db.ExecContext(ctx,
		`INSERT INTO services (name, category, base_price, image_path, location_lat, location_lon) VALUES (?, ?, ?, ?, ?, ?)`,
		service.Name, service.Category, service.BasePrice, service.ImagePath,
		nullFloat(service.LocationLat), nullFloat(service.LocationLon))
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	service.ID = id
	return nil
}

func (db *DB) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	row := db.QueryRowContext(ctx, `SELECT `+serviceColumns+` FROM services WHERE id = ?`, id)
	s, err := scanService(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return s, nil
}

// ListServices returns the catalog in insertion order.
func (db *DB) ListServices(ctx context.Context) ([]*models.Service, error) {
	rows, err := db.QueryContext(ctx, `SELECT `+serviceColumns+` FROM services ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	defer rows.Close()

	var services []*models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, s)
	}
	return services, rows.Err()
}

func (db *DB) CountServicesByCategory(ctx context.Context) ([]models.CategoryCount, error) {
	rows, err := db.QueryContext(ctx, `SELECT category, COUNT(*) FROM services GROUP BY category ORDER BY category`)
	if err != nil {
		return nil, fmt.Errorf("failed to count services by category: %w", err)
	}
	defer rows.Close()

	var counts []models.CategoryCount
	for rows.Next() {
		var c models.CategoryCount
		if err := rows.Scan(&c.Category, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan category count: %w", err)
		}
		counts = append(counts, c)
	}
	return counts, rows.Err()
}

// SeedServices inserts the given catalog when the services table is empty.
// It returns the number of inserted rows.
func (db *DB) SeedServices(ctx context.Context, services []models.Service) (int, error) {
	inserted := 0
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var count int64
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM services`).Scan(&count); err != nil {
			return fmt.Errorf("failed to count services: %w", err)
		}
		if count > 0 {
			return nil
		}
		for _, s := range services {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO services (name, category, base_price, image_path, location_lat, location_lon) VALUES (?, ?, ?, ?, ?, ?)`,
				s.Name, s.Category, s.BasePrice, s.ImagePath, nullFloat(s.LocationLat), nullFloat(s.LocationLon))
			if err != nil {
				return fmt.Errorf("failed to seed service %s: %w", s.Name, err)
			}
			inserted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if inserted > 0 {
		db.logger.Info().Int("count", inserted).Msg("service catalog seeded")
	}
	return inserted, nil
}
