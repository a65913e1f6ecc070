package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

const technicianColumns = `id, name, phone_number, skills, active, created_at`

// TechnicianRepository handles technician database operations
type TechnicianRepository struct {
	db *sqlx.DB
}

// NewTechnicianRepository creates a new TechnicianRepository
func NewTechnicianRepository(db *sqlx.DB) *TechnicianRepository {
	return &TechnicianRepository{db: db}
}

// Create inserts a technician. Phone numbers are unique.
func (r *TechnicianRepository) Create(ctx context.Context, t *models.Technician) error {
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	t.Active = true

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO technicians (id, name, phone_number, skills, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.PhoneNumber, t.Skills, t.Active, t.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create technician: %w", err)
	}
	return nil
}

// GetByID retrieves a technician
func (r *TechnicianRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Technician, error) {
	var t models.Technician
	if err := r.db.GetContext(ctx, &t, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get technician: %w", err)
	}
	return &t, nil
}

// List returns all technicians
func (r *TechnicianRepository) List(ctx context.Context) ([]models.Technician, error) {
	techs := []models.Technician{}
	if err := r.db.SelectContext(ctx, &techs, `SELECT `+technicianColumns+` FROM technicians ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list technicians: %w", err)
	}
	return techs, nil
}

// SetActive toggles a technician's availability
func (r *TechnicianRepository) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	result, err := r.db.ExecContext(ctx, `UPDATE technicians SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update technician: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}
