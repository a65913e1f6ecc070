package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

// CityRepository handles serviceable city records
type CityRepository struct {
	db *sqlx.DB
}

// NewCityRepository creates a new CityRepository
func NewCityRepository(db *sqlx.DB) *CityRepository {
	return &CityRepository{db: db}
}

// Add inserts a city as unavailable. Returns false when it already exists.
func (r *CityRepository) Add(ctx context.Context, name string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO cities (id, name, is_available) VALUES ($1, $2, false)
		ON CONFLICT (name) DO NOTHING`, uuid.New(), name)
	if err != nil {
		return false, fmt.Errorf("failed to add city: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to add city: %w", err)
	}
	return rows > 0, nil
}

// List returns cities ordered by name
func (r *CityRepository) List(ctx context.Context) ([]models.City, error) {
	cities := []models.City{}
	if err := r.db.SelectContext(ctx, &cities, `SELECT id, name, is_available FROM cities ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list cities: %w", err)
	}
	return cities, nil
}

// SetAvailability toggles whether bookings are offered in a city
func (r *CityRepository) SetAvailability(ctx context.Context, name string, available bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE cities SET is_available = $2 WHERE name = $1`, name, available)
	if err != nil {
		return fmt.Errorf("failed to set city availability: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
