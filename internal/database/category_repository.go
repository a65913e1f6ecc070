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

const categoryColumns = `id, name, image_url, image_public_id, service_count, created_at`

// CategoryRepository handles category database operations
type CategoryRepository struct {
	db *sqlx.DB
}

// NewCategoryRepository creates a new CategoryRepository
func NewCategoryRepository(db *sqlx.DB) *CategoryRepository {
	return &CategoryRepository{db: db}
}

// Create inserts a category
func (r *CategoryRepository) Create(ctx context.Context, c *models.Category) error {
	c.ID = uuid.New()
	c.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, image_url, image_public_id, service_count, created_at)
		VALUES ($1, $2, $3, $4, 0, $5)`,
		c.ID, c.Name, c.ImageURL, c.ImagePublicID, c.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create category: %w", err)
	}
	return nil
}

// GetByID retrieves a category
func (r *CategoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	if err := r.db.GetContext(ctx, &c, `SELECT `+categoryColumns+` FROM categories WHERE id = $1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return &c, nil
}

// List returns all categories by name
func (r *CategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	categories := []models.Category{}
	if err := r.db.SelectContext(ctx, &categories, `SELECT `+categoryColumns+` FROM categories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	return categories, nil
}

// Update persists name and image
func (r *CategoryRepository) Update(ctx context.Context, c *models.Category) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE categories SET name = $2, image_url = $3, image_public_id = $4 WHERE id = $1`,
		c.ID, c.Name, c.ImageURL, c.ImagePublicID)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to update category: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a category and returns the deleted row
func (r *CategoryRepository) Delete(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var c models.Category
	err := r.db.GetContext(ctx, &c, `DELETE FROM categories WHERE id = $1 RETURNING `+categoryColumns, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to delete category: %w", err)
	}
	return &c, nil
}
