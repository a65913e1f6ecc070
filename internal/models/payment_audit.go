package models

import (
	"time"

	"github.com/google/uuid"
)

// PaymentEventType represents the type of payment event
type PaymentEventType string

const (
	PaymentEventOrderCreated         PaymentEventType = "order_created"
	PaymentEventVerifyRequested      PaymentEventType = "verify_requested"
	PaymentEventSignatureMismatch    PaymentEventType = "signature_mismatch"
	PaymentEventWebhookReceived      PaymentEventType = "webhook_received"
	PaymentEventWebhookRejected      PaymentEventType = "webhook_rejected"
	PaymentEventWebhookUnmatched     PaymentEventType = "webhook_unmatched"
	PaymentEventSettled              PaymentEventType = "payment_settled"
	PaymentEventBookingsMaterialized PaymentEventType = "bookings_materialized"
	PaymentEventBookingsConfirmed    PaymentEventType = "bookings_confirmed"
	PaymentEventAlreadyReconciled    PaymentEventType = "already_reconciled"
	PaymentEventError                PaymentEventType = "error"
)

// PaymentEventSource identifies where the event originated
type PaymentEventSource string

const (
	PaymentSourceUser    PaymentEventSource = "user"
	PaymentSourceWebhook PaymentEventSource = "razorpay_webhook"
	PaymentSourceGateway PaymentEventSource = "razorpay_api"
	PaymentSourceSystem  PaymentEventSource = "system"
)

// PaymentAudit represents an immutable audit log entry for payment events
type PaymentAudit struct {
	ID          uuid.UUID          `json:"id" db:"id"`
	OrderID     *string            `json:"order_id,omitempty" db:"order_id"`
	PaymentID   *string            `json:"payment_id,omitempty" db:"payment_id"`
	EventType   PaymentEventType   `json:"event_type" db:"event_type"`
	EventSource PaymentEventSource `json:"event_source" db:"event_source"`
	Amount      *int64             `json:"amount,omitempty" db:"amount"`
	Signature   *string            `json:"signature,omitempty" db:"signature"`
	Details     JSONB              `json:"details,omitempty" db:"details"`
	RawBody     *string            `json:"raw_body,omitempty" db:"raw_body"`
	IPAddress   *string            `json:"ip_address,omitempty" db:"ip_address"`
	UserAgent   *string            `json:"user_agent,omitempty" db:"user_agent"`
	UserID      *uuid.UUID         `json:"user_id,omitempty" db:"user_id"`
	CreatedAt   time.Time          `json:"created_at" db:"created_at"`
}

// NewPaymentAudit creates a new payment audit entry with required fields
func NewPaymentAudit(eventType PaymentEventType, source PaymentEventSource) *PaymentAudit {
	return &PaymentAudit{
		ID:          uuid.New(),
		EventType:   eventType,
		EventSource: source,
		CreatedAt:   time.Now(),
	}
}

// SetOrder sets the gateway order id
func (pa *PaymentAudit) SetOrder(orderID string) *PaymentAudit {
	if orderID != "" {
		pa.OrderID = &orderID
	}
	return pa
}

// SetPayment sets the gateway payment id and the signature that came with it
func (pa *PaymentAudit) SetPayment(paymentID, signature string) *PaymentAudit {
	if paymentID != "" {
		pa.PaymentID = &paymentID
	}
	if signature != "" {
		pa.Signature = &signature
	}
	return pa
}

// SetAmount sets the amount in minor units
func (pa *PaymentAudit) SetAmount(amount int64) *PaymentAudit {
	pa.Amount = &amount
	return pa
}

// SetUser sets the acting user
func (pa *PaymentAudit) SetUser(userID *uuid.UUID) *PaymentAudit {
	pa.UserID = userID
	return pa
}

// SetDetails stores structured context
func (pa *PaymentAudit) SetDetails(details map[string]interface{}) *PaymentAudit {
	pa.Details = JSONB(details)
	return pa
}

// SetRawBody stores the raw webhook body before parsing
func (pa *PaymentAudit) SetRawBody(body string) *PaymentAudit {
	pa.RawBody = &body
	return pa
}

// SetMetadata sets request metadata
func (pa *PaymentAudit) SetMetadata(ip, userAgent string) *PaymentAudit {
	if ip != "" {
		pa.IPAddress = &ip
	}
	if userAgent != "" {
		pa.UserAgent = &userAgent
	}
	return pa
}
