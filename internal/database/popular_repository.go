package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

// PopularRepository maintains the ordered popular services list.
// Positions are dense and start at 0.
type PopularRepository struct {
	db *sqlx.DB
}

// NewPopularRepository creates a new PopularRepository
func NewPopularRepository(db *sqlx.DB) *PopularRepository {
	return &PopularRepository{db: db}
}

// List returns the popular entries in position order with their services
func (r *PopularRepository) List(ctx context.Context) ([]models.PopularService, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT p.service_id, p.position,
		       s.id, s.name, s.description, s.price, s.category_id, s.image_url, s.image_public_id,
		       s.created_at, s.updated_at
		FROM popular_services p
		JOIN services s ON s.id = p.service_id
		ORDER BY p.position`)
	if err != nil {
		return nil, fmt.Errorf("failed to list popular services: %w", err)
	}
	defer rows.Close()

	entries := []models.PopularService{}
	for rows.Next() {
		var p models.PopularService
		svc := &models.Service{}
		if err := rows.Scan(
			&p.ServiceID, &p.Position,
			&svc.ID, &svc.Name, &svc.Description, &svc.Price, &svc.CategoryID, &svc.ImageURL, &svc.ImagePublicID,
			&svc.CreatedAt, &svc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan popular service: %w", err)
		}
		p.Service = svc
		entries = append(entries, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read popular services: %w", err)
	}
	return entries, nil
}

// Add inserts a service at position, shifting later entries down. A nil
// position or one past the end appends. Returns ErrDuplicate when the
// service is already listed.
func (r *PopularRepository) Add(ctx context.Context, serviceID uuid.UUID, position *int) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM popular_services`); err != nil {
		return fmt.Errorf("failed to count popular services: %w", err)
	}

	pos := count
	if position != nil && *position >= 0 && *position < count {
		pos = *position
		if _, err := tx.ExecContext(ctx,
			`UPDATE popular_services SET position = position + 1 WHERE position >= $1`, pos); err != nil {
			return fmt.Errorf("failed to shift popular services: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO popular_services (service_id, position) VALUES ($1, $2)`, serviceID, pos); err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to add popular service: %w", err)
	}

	return tx.Commit()
}

// Remove drops a service from the list and closes the gap
func (r *PopularRepository) Remove(ctx context.Context, serviceID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var pos int
	if err := tx.GetContext(ctx, &pos,
		`DELETE FROM popular_services WHERE service_id = $1 RETURNING position`, serviceID); err != nil {
		if isNoRows(err) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to remove popular service: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE popular_services SET position = position - 1 WHERE position > $1`, pos); err != nil {
		return fmt.Errorf("failed to compact popular services: %w", err)
	}

	return tx.Commit()
}

// Reorder rewrites positions to follow orderedIDs. Ids not in the list are
// ignored and listed services missing from orderedIDs keep their relative
// order after the given ones.
func (r *PopularRepository) Reorder(ctx context.Context, orderedIDs []uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var current []uuid.UUID
	if err := tx.SelectContext(ctx, &current,
		`SELECT service_id FROM popular_services ORDER BY position FOR UPDATE`); err != nil {
		return fmt.Errorf("failed to load popular services: %w", err)
	}

	listed := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		listed[id] = true
	}

	next := make([]uuid.UUID, 0, len(current))
	placed := make(map[uuid.UUID]bool, len(current))
	for _, id := range orderedIDs {
		if listed[id] && !placed[id] {
			next = append(next, id)
			placed[id] = true
		}
	}
	for _, id := range current {
		if !placed[id] {
			next = append(next, id)
		}
	}

	for i, id := range next {
		if _, err := tx.ExecContext(ctx,
			`UPDATE popular_services SET position = $2 WHERE service_id = $1`, id, i); err != nil {
			return fmt.Errorf("failed to reorder popular services: %w", err)
		}
	}

	return tx.Commit()
}
