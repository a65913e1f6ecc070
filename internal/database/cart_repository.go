package database

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

// CartRepository handles cart line items. A cart is the set of cart_items rows for a user.
type CartRepository struct {
	db *sqlx.DB
}

// NewCartRepository creates a new CartRepository
func NewCartRepository(db *sqlx.DB) *CartRepository {
	return &CartRepository{db: db}
}

// Get returns the user's cart in insertion order with services attached
func (r *CartRepository) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT ci.service_id, ci.quantity, ci.added_at,
		       s.id, s.name, s.description, s.price, s.category_id, s.image_url, s.image_public_id,
		       s.created_at, s.updated_at
		FROM cart_items ci
		JOIN services s ON s.id = ci.service_id
		WHERE ci.user_id = $1
		ORDER BY ci.added_at`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}
	defer rows.Close()

	cart := &models.Cart{UserID: userID, Items: []models.CartItem{}}
	for rows.Next() {
		var item models.CartItem
		svc := &models.Service{}
		if err := rows.Scan(
			&item.ServiceID, &item.Quantity, &item.AddedAt,
			&svc.ID, &svc.Name, &svc.Description, &svc.Price, &svc.CategoryID, &svc.ImageURL, &svc.ImagePublicID,
			&svc.CreatedAt, &svc.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		item.Service = svc
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read cart: %w", err)
	}
	return cart, nil
}

// AddItem adds one unit of a service, inserting the line when absent
func (r *CartRepository) AddItem(ctx context.Context, userID, serviceID uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cart_items (user_id, service_id, quantity, added_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (user_id, service_id) DO UPDATE SET quantity = cart_items.quantity + 1`,
		userID, serviceID)
	if err != nil {
		return fmt.Errorf("failed to add cart item: %w", err)
	}
	return nil
}

// RemoveItem takes one unit off a line and drops the line when it reaches zero
func (r *CartRepository) RemoveItem(ctx context.Context, userID, serviceID uuid.UUID) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// delete before decrementing so a 2 -> 1 line survives
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM cart_items WHERE user_id = $1 AND service_id = $2 AND quantity <= 1`, userID, serviceID); err != nil {
		return fmt.Errorf("failed to remove cart item: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE cart_items SET quantity = quantity - 1
		WHERE user_id = $1 AND service_id = $2 AND quantity > 1`, userID, serviceID); err != nil {
		return fmt.Errorf("failed to decrement cart item: %w", err)
	}

	return tx.Commit()
}

// Clear empties the user's cart
func (r *CartRepository) Clear(ctx context.Context, userID uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM cart_items WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	return nil
}
