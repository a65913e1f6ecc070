package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

const paymentColumns = `id, order_id, payment_id, signature, amount, currency, status, booking_id,
	booking_ids, item_refs, booking_payload, user_id, created_at, updated_at`

// SettleOutcome describes which reconciliation branch ran
type SettleOutcome string

const (
	// SettleMaterialized means bookings were created from the payload snapshot
	SettleMaterialized SettleOutcome = "materialized"
	// SettleConfirmed means bookings the payment referenced were marked paid
	SettleConfirmed SettleOutcome = "confirmed"
	// SettleAlreadyReconciled means an earlier call already did the work
	SettleAlreadyReconciled SettleOutcome = "already_reconciled"
	// SettlePaidOnly means the payment carried no bookings
	SettlePaidOnly SettleOutcome = "paid_only"
)

// SettleResult is returned by Settle
type SettleResult struct {
	Payment    *models.Payment
	Outcome    SettleOutcome
	BookingIDs []uuid.UUID
}

// BookingBuilder turns a locked payment into the bookings it pays for
type BookingBuilder func(p *models.Payment) ([]*models.Booking, error)

// PaymentRepository handles gateway order records
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository creates a new PaymentRepository
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// Create persists a new payment in the created state
func (r *PaymentRepository) Create(ctx context.Context, p *models.Payment) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.Status = models.PaymentStatusCreated
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, order_id, amount, currency, status, booking_id, booking_ids, item_refs,
			booking_payload, user_id, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.OrderID, p.Amount, p.Currency, p.Status, p.BookingID, p.BookingIDs, p.ItemRefs,
		p.BookingPayload, p.UserID, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetByOrderID retrieves a payment by gateway order id
func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	var p models.Payment
	if err := r.db.GetContext(ctx, &p, `SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &p, nil
}

// MarkFailed records a rejected verification attempt. A paid payment is
// never moved back.
func (r *PaymentRepository) MarkFailed(ctx context.Context, orderID, paymentID, signature string) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, payment_id = NULLIF($3, ''), signature = NULLIF($4, ''), updated_at = NOW()
		WHERE order_id = $1 AND status <> $5`,
		orderID, models.PaymentStatusFailed, paymentID, signature, models.PaymentStatusPaid)
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		if _, err := r.GetByOrderID(ctx, orderID); err != nil {
			return err
		}
	}
	return nil
}

// Settle marks the payment paid and reconciles its bookings in one
// transaction holding the payment row lock. Exactly one branch runs:
// materialize from the payload when no bookings exist yet, confirm the
// referenced bookings, or nothing for a bare amount. booking_ids is
// written with a compare-and-set so a second materialization can never
// commit.
func (r *PaymentRepository) Settle(ctx context.Context, orderID, paymentID, signature string, build BookingBuilder) (*SettleResult, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var p models.Payment
	if err := tx.GetContext(ctx, &p,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1 FOR UPDATE`, orderID); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to lock payment: %w", err)
	}
	wasPaid := p.Status == models.PaymentStatusPaid

	if _, err := tx.ExecContext(ctx, `
		UPDATE payments
		SET status = $2, payment_id = COALESCE(NULLIF($3, ''), payment_id),
		    signature = COALESCE(NULLIF($4, ''), signature), updated_at = NOW()
		WHERE id = $1`,
		p.ID, models.PaymentStatusPaid, paymentID, signature); err != nil {
		return nil, fmt.Errorf("failed to mark payment paid: %w", err)
	}
	p.Status = models.PaymentStatusPaid

	result := &SettleResult{Payment: &p}

	switch {
	case p.BookingPayload != nil && len(p.BookingIDs) == 0:
		bookings, err := build(&p)
		if err != nil {
			return nil, err
		}
		if err := insertBookings(ctx, tx, bookings); err != nil {
			return nil, err
		}

		ids := make(models.UUIDArray, len(bookings))
		for i, b := range bookings {
			ids[i] = b.ID
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE payments SET booking_ids = $2 WHERE id = $1 AND cardinality(booking_ids) = 0`, p.ID, ids)
		if err != nil {
			return nil, fmt.Errorf("failed to link bookings: %w", err)
		}
		if rows, _ := res.RowsAffected(); rows == 0 {
			tx.Rollback()
			current, err := r.GetByOrderID(ctx, orderID)
			if err != nil {
				return nil, err
			}
			return &SettleResult{
				Payment:    current,
				Outcome:    SettleAlreadyReconciled,
				BookingIDs: current.ReferencedBookings(),
			}, nil
		}
		p.BookingIDs = ids
		result.Outcome = SettleMaterialized
		result.BookingIDs = ids

	case p.HasBookingRefs():
		ids := p.ReferencedBookings()
		if _, err := markPaidConfirmed(ctx, tx, ids); err != nil {
			return nil, err
		}
		result.Outcome = SettleConfirmed
		if wasPaid {
			result.Outcome = SettleAlreadyReconciled
		}
		result.BookingIDs = ids

	default:
		result.Outcome = SettlePaidOnly
		if wasPaid {
			result.Outcome = SettleAlreadyReconciled
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return result, nil
}
