package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentStatus represents the state of a gateway order
type PaymentStatus string

const (
	PaymentStatusCreated PaymentStatus = "created"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Payment is one gateway order and its settlement outcome. Amount is in minor units.
type Payment struct {
	ID             uuid.UUID       `json:"id" db:"id"`
	OrderID        string          `json:"order_id" db:"order_id"`
	PaymentID      *string         `json:"payment_id,omitempty" db:"payment_id"`
	Signature      *string         `json:"-" db:"signature"`
	Amount         int64           `json:"amount" db:"amount"`
	Currency       string          `json:"currency" db:"currency"`
	Status         PaymentStatus   `json:"status" db:"status"`
	BookingID      *uuid.UUID      `json:"booking_id,omitempty" db:"booking_id"`
	BookingIDs     UUIDArray       `json:"booking_ids" db:"booking_ids"`
	ItemRefs       StringArray     `json:"item_refs" db:"item_refs"`
	BookingPayload *BookingPayload `json:"booking_payload,omitempty" db:"booking_payload"`
	UserID         *uuid.UUID      `json:"user_id,omitempty" db:"user_id"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// HasBookingRefs reports whether the payment already points at bookings
func (p *Payment) HasBookingRefs() bool {
	return p.BookingID != nil || len(p.BookingIDs) > 0
}

// ReferencedBookings returns every booking id the payment points at
func (p *Payment) ReferencedBookings() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.BookingIDs)+1)
	if p.BookingID != nil {
		ids = append(ids, *p.BookingID)
	}
	return append(ids, p.BookingIDs...)
}

// ToMinorUnits converts a major-unit amount (rupees) into minor units (paise)
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// FromMinorUnits converts minor units back into a major-unit amount
func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

// ServiceRef is a service id that clients send either as a string or as an
// embedded service object ({"_id": ...} / {"id": ...}).
type ServiceRef string

// UnmarshalJSON implements json.Unmarshaler
func (r *ServiceRef) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*r = ServiceRef(strings.TrimSpace(s))
		return nil
	}

	var obj struct {
		MongoID string `json:"_id"`
		ID      string `json:"id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("serviceId must be a string or an object with an id: %w", err)
	}
	if obj.ID != "" {
		*r = ServiceRef(obj.ID)
	} else {
		*r = ServiceRef(obj.MongoID)
	}
	return nil
}

// UUID parses the reference
func (r ServiceRef) UUID() (uuid.UUID, error) {
	return uuid.Parse(string(r))
}

// PayloadAddress accepts a plain string or a {line1, city, pincode} object
type PayloadAddress struct {
	Line1   string `json:"line1,omitempty"`
	City    string `json:"city,omitempty"`
	Pincode string `json:"pincode,omitempty"`
	Text    string `json:"text,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler
func (a *PayloadAddress) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*a = PayloadAddress{Text: strings.TrimSpace(s)}
		return nil
	}

	type plain PayloadAddress
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("address must be a string or an object: %w", err)
	}
	*a = PayloadAddress(p)
	return nil
}

// String flattens the address into the single line stored on bookings
func (a PayloadAddress) String() string {
	if a.Text != "" {
		return a.Text
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{a.Line1, a.City, a.Pincode} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// PayloadItem is one cart line inside a payload snapshot. Price is whatever
// the client sent and is never trusted; ServiceName and UnitPrice are filled
// in server-side when the order is created.
type PayloadItem struct {
	ServiceID   ServiceRef       `json:"serviceId" validate:"required"`
	Quantity    int              `json:"quantity" validate:"gte=1"`
	Price       *decimal.Decimal `json:"price,omitempty"`
	ServiceName string           `json:"serviceName,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unitPrice,omitempty"`
}

// UnmarshalJSON implements json.Unmarshaler. An omitted quantity means 1.
func (i *PayloadItem) UnmarshalJSON(data []byte) error {
	type plain PayloadItem
	item := plain{Quantity: 1}
	if err := json.Unmarshal(data, &item); err != nil {
		return err
	}
	*i = PayloadItem(item)
	return nil
}

// BookingPayload is the cart snapshot a payment order is created from
type BookingPayload struct {
	Items      []PayloadItem    `json:"items" validate:"required,min=1,dive"`
	Address    PayloadAddress   `json:"address"`
	ScheduleAt *time.Time       `json:"scheduleAt" validate:"required"`
	Notes      string           `json:"notes,omitempty"`
	Total      *decimal.Decimal `json:"total,omitempty"`
}

// Value implements the driver.Valuer interface for the JSONB column
func (p BookingPayload) Value() (driver.Value, error) {
	return json.Marshal(p)
}

// Scan implements the sql.Scanner interface
func (p *BookingPayload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into BookingPayload", src)
	}
}
