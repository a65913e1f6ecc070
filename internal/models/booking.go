package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending    BookingStatus = "pending"
	BookingStatusConfirmed  BookingStatus = "confirmed"
	BookingStatusInProgress BookingStatus = "in_progress"
	BookingStatusCompleted  BookingStatus = "completed"
	BookingStatusCancelled  BookingStatus = "cancelled"
)

// bookingStatusRank orders the forward path of the state machine
var bookingStatusRank = map[BookingStatus]int{
	BookingStatusPending:    0,
	BookingStatusConfirmed:  1,
	BookingStatusInProgress: 2,
	BookingStatusCompleted:  3,
}

// ParseBookingStatus validates a raw status value
func ParseBookingStatus(s string) (BookingStatus, bool) {
	status := BookingStatus(s)
	if status == BookingStatusCancelled {
		return status, true
	}
	_, ok := bookingStatusRank[status]
	return status, ok
}

// IsTerminal reports whether no further transition is possible
func (s BookingStatus) IsTerminal() bool {
	return s == BookingStatusCompleted || s == BookingStatusCancelled
}

// CanCancel reports whether the booking may still be cancelled
func (s BookingStatus) CanCancel() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// CanAssign reports whether a technician may be assigned
func (s BookingStatus) CanAssign() bool {
	return s == BookingStatusPending || s == BookingStatusConfirmed
}

// CanTransitionTo is the transition table: forward moves along
// pending -> confirmed -> in_progress -> completed, cancellation from
// pending/confirmed only, and staying in place.
func (s BookingStatus) CanTransitionTo(next BookingStatus) bool {
	if s == next {
		return true
	}
	if s.IsTerminal() {
		return false
	}
	if next == BookingStatusCancelled {
		return s.CanCancel()
	}

	from, okFrom := bookingStatusRank[s]
	to, okTo := bookingStatusRank[next]
	return okFrom && okTo && to > from
}

// BookingPaymentStatus represents the settlement state of a booking
type BookingPaymentStatus string

const (
	BookingPaymentUnpaid   BookingPaymentStatus = "unpaid"
	BookingPaymentPaid     BookingPaymentStatus = "paid"
	BookingPaymentRefunded BookingPaymentStatus = "refunded"
)

// Booking is one service line item purchased by one user at one scheduled time.
// ServiceName and ServicePriceAtBooking are snapshots and never change after creation.
type Booking struct {
	ID                    uuid.UUID            `json:"id" db:"id"`
	UserID                uuid.UUID            `json:"user_id" db:"user_id"`
	ServiceID             uuid.UUID            `json:"service_id" db:"service_id"`
	ServiceName           string               `json:"service_name" db:"service_name"`
	ServicePriceAtBooking decimal.Decimal      `json:"service_price_at_booking" db:"service_price_at_booking"`
	Quantity              int                  `json:"quantity" db:"quantity"`
	TotalAmount           decimal.Decimal      `json:"total_amount" db:"total_amount"`
	ScheduledAt           time.Time            `json:"scheduled_at" db:"scheduled_at"`
	Address               string               `json:"address" db:"address"`
	Notes                 string               `json:"notes" db:"notes"`
	Status                BookingStatus        `json:"status" db:"status"`
	PaymentStatus         BookingPaymentStatus `json:"payment_status" db:"payment_status"`
	AssignedTo            *uuid.UUID           `json:"assigned_to,omitempty" db:"assigned_to"`
	AssignedAt            *time.Time           `json:"assigned_at,omitempty" db:"assigned_at"`
	CancelReason          *string              `json:"cancel_reason,omitempty" db:"cancel_reason"`
	OTPHash               *string              `json:"-" db:"otp_hash"`
	OTPExpiry             *time.Time           `json:"-" db:"otp_expiry"`
	CreatedAt             time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time            `json:"updated_at" db:"updated_at"`
}

// NewBooking builds a booking from a snapshot price; the total is always price x quantity
func NewBooking(userID uuid.UUID, service *Service, quantity int, scheduledAt time.Time, address, notes string) *Booking {
	now := time.Now()
	return &Booking{
		ID:                    uuid.New(),
		UserID:                userID,
		ServiceID:             service.ID,
		ServiceName:           service.Name,
		ServicePriceAtBooking: service.Price,
		Quantity:              quantity,
		TotalAmount:           LineTotal(service.Price, quantity),
		ScheduledAt:           scheduledAt,
		Address:               address,
		Notes:                 notes,
		Status:                BookingStatusPending,
		PaymentStatus:         BookingPaymentUnpaid,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
}

// LineTotal returns price x quantity
func LineTotal(price decimal.Decimal, quantity int) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(int64(quantity)))
}

// OTPState returns the stored hash/expiry pair, empty when none
func (b *Booking) OTPState() (string, time.Time) {
	if b.OTPHash == nil || b.OTPExpiry == nil {
		return "", time.Time{}
	}
	return *b.OTPHash, *b.OTPExpiry
}

// BookingWithUser is the admin listing row
type BookingWithUser struct {
	Booking
	UserName  string `json:"user_name" db:"user_name"`
	UserEmail string `json:"user_email" db:"user_email"`
}
