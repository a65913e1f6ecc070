package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// CartStore persists cart lines
type CartStore interface {
	CartClearer
	Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error)
	AddItem(ctx context.Context, userID, serviceID uuid.UUID) error
	RemoveItem(ctx context.Context, userID, serviceID uuid.UUID) error
}

// ServiceGetter finds a single catalog service
type ServiceGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Service, error)
}

// CartService manages per-user carts. Every mutation returns the resulting cart.
type CartService struct {
	carts    CartStore
	services ServiceGetter
	logger   *logrus.Logger
}

// NewCartService creates a new CartService
func NewCartService(carts CartStore, services ServiceGetter, logger *logrus.Logger) *CartService {
	return &CartService{carts: carts, services: services, logger: logger}
}

// Get returns the user's cart
func (s *CartService) Get(ctx context.Context, userID uuid.UUID) (*models.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, Internal("failed to load cart", err)
	}
	return cart, nil
}

// Add puts one more unit of a service in the cart
func (s *CartService) Add(ctx context.Context, userID, serviceID uuid.UUID) (*models.Cart, error) {
	if _, err := s.services.GetByID(ctx, serviceID); err != nil {
		return nil, storeError(err, "service")
	}
	if err := s.carts.AddItem(ctx, userID, serviceID); err != nil {
		return nil, Internal("failed to add to cart", err)
	}
	return s.Get(ctx, userID)
}

// Remove takes one unit of a service out of the cart
func (s *CartService) Remove(ctx context.Context, userID, serviceID uuid.UUID) (*models.Cart, error) {
	if err := s.carts.RemoveItem(ctx, userID, serviceID); err != nil {
		return nil, Internal("failed to remove from cart", err)
	}
	return s.Get(ctx, userID)
}

// Clear empties the cart
func (s *CartService) Clear(ctx context.Context, userID uuid.UUID) error {
	if err := s.carts.Clear(ctx, userID); err != nil {
		return Internal("failed to clear cart", err)
	}
	s.logger.WithField("user_id", userID).Debug("Cart cleared")
	return nil
}
