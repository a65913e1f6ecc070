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

const serviceColumns = `id, name, description, price, category_id, image_url, image_public_id, created_at, updated_at`

// ServiceRepository handles catalog service database operations
type ServiceRepository struct {
	db *sqlx.DB
}

// NewServiceRepository creates a new ServiceRepository
func NewServiceRepository(db *sqlx.DB) *ServiceRepository {
	return &ServiceRepository{db: db}
}

// Create inserts a service and bumps its category's service count
func (r *ServiceRepository) Create(ctx context.Context, svc *models.Service) error {
	svc.ID = uuid.New()
	svc.CreatedAt = time.Now()
	svc.UpdatedAt = svc.CreatedAt

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO services (id, name, description, price, category_id, image_url, image_public_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		svc.ID, svc.Name, svc.Description, svc.Price, svc.CategoryID, svc.ImageURL, svc.ImagePublicID,
		svc.CreatedAt, svc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create service: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE categories SET service_count = service_count + 1 WHERE id = $1`, svc.CategoryID); err != nil {
		return fmt.Errorf("failed to update category count: %w", err)
	}

	return tx.Commit()
}

// GetByID retrieves a service by ID
func (r *ServiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	var svc models.Service
	err := r.db.GetContext(ctx, &svc, `SELECT `+serviceColumns+` FROM services WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get service: %w", err)
	}
	return &svc, nil
}

// GetByIDs returns the services found for ids keyed by id; unknown ids are absent
func (r *ServiceRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Service, error) {
	result := make(map[uuid.UUID]*models.Service, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var services []models.Service
	err := r.db.SelectContext(ctx, &services,
		`SELECT `+serviceColumns+` FROM services WHERE id = ANY($1)`, models.UUIDArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to get services: %w", err)
	}

	for i := range services {
		result[services[i].ID] = &services[i]
	}
	return result, nil
}

// List returns all services, optionally filtered by category
func (r *ServiceRepository) List(ctx context.Context, categoryID *uuid.UUID) ([]models.Service, error) {
	services := []models.Service{}
	var err error
	if categoryID != nil {
		err = r.db.SelectContext(ctx, &services,
			`SELECT `+serviceColumns+` FROM services WHERE category_id = $1 ORDER BY name`, *categoryID)
	} else {
		err = r.db.SelectContext(ctx, &services, `SELECT `+serviceColumns+` FROM services ORDER BY name`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return services, nil
}

// Update persists the mutable fields of a service. Moving a service between
// categories adjusts both counts.
func (r *ServiceRepository) Update(ctx context.Context, svc *models.Service, previousCategory uuid.UUID) error {
	svc.UpdatedAt = time.Now()

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE services
		SET name = $2, description = $3, price = $4, category_id = $5,
		    image_url = $6, image_public_id = $7, updated_at = $8
		WHERE id = $1`,
		svc.ID, svc.Name, svc.Description, svc.Price, svc.CategoryID, svc.ImageURL, svc.ImagePublicID, svc.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update service: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}

	if previousCategory != svc.CategoryID {
		if _, err := tx.ExecContext(ctx, `
			UPDATE categories SET service_count = service_count + CASE WHEN id = $1 THEN -1 ELSE 1 END
			WHERE id IN ($1, $2)`, previousCategory, svc.CategoryID); err != nil {
			return fmt.Errorf("failed to update category counts: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes a service and returns the deleted row
func (r *ServiceRepository) Delete(ctx context.Context, id uuid.UUID) (*models.Service, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var svc models.Service
	err = tx.GetContext(ctx, &svc, `DELETE FROM services WHERE id = $1 RETURNING `+serviceColumns, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete service: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE categories SET service_count = GREATEST(service_count - 1, 0) WHERE id = $1`, svc.CategoryID); err != nil {
		return nil, fmt.Errorf("failed to update category count: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}
	return &svc, nil
}
