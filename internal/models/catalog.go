package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Service is a purchasable catalog entry
type Service struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	Name          string          `json:"name" db:"name"`
	Description   string          `json:"description" db:"description"`
	Price         decimal.Decimal `json:"price" db:"price"`
	CategoryID    uuid.UUID       `json:"category_id" db:"category_id"`
	ImageURL      *string         `json:"image_url,omitempty" db:"image_url"`
	ImagePublicID *string         `json:"-" db:"image_public_id"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// Category groups services
type Category struct {
	ID            uuid.UUID `json:"id" db:"id"`
	Name          string    `json:"name" db:"name"`
	ImageURL      *string   `json:"image_url,omitempty" db:"image_url"`
	ImagePublicID *string   `json:"-" db:"image_public_id"`
	ServiceCount  int       `json:"service_count" db:"service_count"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// City is a serviceable location
type City struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	IsAvailable bool      `json:"is_available" db:"is_available"`
}

// Technician performs bookings
type Technician struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	Name        string      `json:"name" db:"name"`
	PhoneNumber string      `json:"phone_number" db:"phone_number"`
	Skills      StringArray `json:"skills" db:"skills"`
	Active      bool        `json:"active" db:"active"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// CartItem is one line of a user's cart, joined with its service
type CartItem struct {
	ServiceID uuid.UUID `json:"service_id" db:"service_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
	Service   *Service  `json:"service,omitempty" db:"-"`
}

// Cart is the ordered content of a user's cart
type Cart struct {
	UserID uuid.UUID  `json:"user_id"`
	Items  []CartItem `json:"items"`
}

// PopularService is a slot in the curated popular list
type PopularService struct {
	ServiceID uuid.UUID `json:"service_id" db:"service_id"`
	Position  int       `json:"position" db:"position"`
	Service   *Service  `json:"service,omitempty" db:"-"`
}
