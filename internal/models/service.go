package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v2"
)

// Service is a catalog entry bookings refer to.
type Service struct {
	ID          int64    `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Category    string   `json:"category" yaml:"category"`
	BasePrice   float64  `json:"base_price" yaml:"base_price"`
	ImagePath   string   `json:"image_path,omitempty" yaml:"image_path"`
	LocationLat *float64 `json:"location_lat,omitempty" yaml:"location_lat"`
	LocationLon *float64 `json:"location_lon,omitempty" yaml:"location_lon"`
}

// CategoryCount is one row of the count-by-category aggregate.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int64  `json:"count"`
}

// DefaultServices is the catalog seeded into an empty store.
func DefaultServices() []Service {
	return []Service{
		{Name: "Electrician", Category: "Electrical", BasePrice: 20},
		{Name: "Plumber", Category: "Plumbing", BasePrice: 18},
		{Name: "Carpenter", Category: "Woodwork", BasePrice: 22},
		{Name: "Cleaner", Category: "Cleaning", BasePrice: 15},
	}
}

// LoadServices reads a catalog seed file with a top-level services list.
// A missing file yields no services and no error.
func LoadServices(path string) ([]Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var file struct {
		Services []Service `yaml:"services"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return file.Services, nil
}
