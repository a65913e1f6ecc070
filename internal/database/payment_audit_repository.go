package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/sirupsen/logrus"
)

// PaymentAuditRepository writes the append-only payment event trail
type PaymentAuditRepository struct {
	db     *sqlx.DB
	logger *logrus.Logger
}

// NewPaymentAuditRepository creates a new payment audit repository
func NewPaymentAuditRepository(db *sqlx.DB, logger *logrus.Logger) *PaymentAuditRepository {
	return &PaymentAuditRepository{db: db, logger: logger}
}

// Log appends an audit entry. Failures are logged loudly as well as returned.
func (r *PaymentAuditRepository) Log(ctx context.Context, audit *models.PaymentAudit) error {
	if audit == nil {
		return fmt.Errorf("audit entry cannot be nil")
	}
	if audit.ID == uuid.Nil {
		audit.ID = uuid.New()
	}
	if audit.CreatedAt.IsZero() {
		audit.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_audit_logs (
			id, order_id, payment_id, event_type, event_source, amount, signature,
			details, raw_body, ip_address, user_agent, user_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		audit.ID, audit.OrderID, audit.PaymentID, audit.EventType, audit.EventSource, audit.Amount,
		audit.Signature, audit.Details, audit.RawBody, audit.IPAddress, audit.UserAgent, audit.UserID,
		audit.CreatedAt,
	)
	if err != nil {
		r.logger.WithError(err).WithFields(logrus.Fields{
			"event_type": audit.EventType,
			"order_id":   audit.OrderID,
		}).Error("Failed to write payment audit entry")
		return fmt.Errorf("failed to log payment audit: %w", err)
	}

	r.logger.WithFields(logrus.Fields{
		"audit_id":   audit.ID,
		"event_type": audit.EventType,
	}).Debug("Payment audit logged")
	return nil
}

// ListByOrderID returns the trail for one gateway order, oldest first
func (r *PaymentAuditRepository) ListByOrderID(ctx context.Context, orderID string) ([]models.PaymentAudit, error) {
	audits := []models.PaymentAudit{}
	err := r.db.SelectContext(ctx, &audits, `
		SELECT id, order_id, payment_id, event_type, event_source, amount, signature,
		       details, raw_body, ip_address, user_agent, user_id, created_at
		FROM payment_audit_logs
		WHERE order_id = $1
		ORDER BY created_at ASC`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment audits: %w", err)
	}
	return audits, nil
}
