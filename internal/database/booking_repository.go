package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

// ErrStale is returned when a conditional update finds the row no longer in
// the state the caller read it in
var ErrStale = errors.New("record changed concurrently")

const bookingColumns = `id, user_id, service_id, service_name, service_price_at_booking, quantity,
	total_amount, scheduled_at, address, notes, status, payment_status, assigned_to, assigned_at,
	cancel_reason, otp_hash, otp_expiry, created_at, updated_at`

// BookingRepository handles database operations for the bookings table.
// Bookings are never deleted.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateMany inserts all bookings in one transaction
func (r *BookingRepository) CreateMany(ctx context.Context, bookings []*models.Booking) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertBookings(ctx, tx, bookings); err != nil {
		return err
	}
	return tx.Commit()
}

func insertBookings(ctx context.Context, tx *sqlx.Tx, bookings []*models.Booking) error {
	query := `
		INSERT INTO bookings (
			id, user_id, service_id, service_name, service_price_at_booking, quantity,
			total_amount, scheduled_at, address, notes, status, payment_status,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	for _, b := range bookings {
		if _, err := tx.ExecContext(ctx, query,
			b.ID, b.UserID, b.ServiceID, b.ServiceName, b.ServicePriceAtBooking, b.Quantity,
			b.TotalAmount, b.ScheduledAt, b.Address, b.Notes, b.Status, b.PaymentStatus,
			b.CreatedAt, b.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert booking: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a booking
func (r *BookingRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	if err := r.db.GetContext(ctx, &b, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// GetWithOwner retrieves a booking together with its owner's name and email
func (r *BookingRepository) GetWithOwner(ctx context.Context, id uuid.UUID) (*models.BookingWithUser, error) {
	var b models.BookingWithUser
	err := r.db.GetContext(ctx, &b, `
		SELECT `+prefixedBookingColumns+`, u.name AS user_name, u.email AS user_email
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		WHERE b.id = $1`, id)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return &b, nil
}

// ListAll returns every booking with its owner, newest first
func (r *BookingRepository) ListAll(ctx context.Context) ([]models.BookingWithUser, error) {
	bookings := []models.BookingWithUser{}
	err := r.db.SelectContext(ctx, &bookings, `
		SELECT `+prefixedBookingColumns+`, u.name AS user_name, u.email AS user_email
		FROM bookings b
		JOIN users u ON u.id = b.user_id
		ORDER BY b.created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// ListByUser returns a user's bookings, newest first
func (r *BookingRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.Booking, error) {
	bookings := []models.Booking{}
	err := r.db.SelectContext(ctx, &bookings,
		`SELECT `+bookingColumns+` FROM bookings WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user bookings: %w", err)
	}
	return bookings, nil
}

// TransitionStatus moves a booking from one status to another. Returns
// ErrStale when the booking is no longer in from.
func (r *BookingRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to models.BookingStatus) error {
	return r.execConditional(ctx, "update booking status",
		`UPDATE bookings SET status = $3, updated_at = NOW() WHERE id = $1 AND status = $2`,
		id, from, to)
}

// Cancel cancels a booking still in from and records the reason
func (r *BookingRepository) Cancel(ctx context.Context, id uuid.UUID, from models.BookingStatus, reason string) error {
	return r.execConditional(ctx, "cancel booking", `
		UPDATE bookings
		SET status = $3, cancel_reason = NULLIF($4, ''), otp_hash = NULL, otp_expiry = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, models.BookingStatusCancelled, reason)
}

// Assign attaches a technician and confirms the booking
func (r *BookingRepository) Assign(ctx context.Context, id uuid.UUID, from models.BookingStatus, technicianID uuid.UUID, at time.Time) error {
	return r.execConditional(ctx, "assign booking", `
		UPDATE bookings
		SET status = $3, assigned_to = $4, assigned_at = $5, updated_at = NOW()
		WHERE id = $1 AND status = $2`,
		id, from, models.BookingStatusConfirmed, technicianID, at)
}

// SetOTP stores a completion OTP, replacing any earlier one
func (r *BookingRepository) SetOTP(ctx context.Context, id uuid.UUID, hash string, expiry time.Time) error {
	return r.exec(ctx, "set booking otp",
		`UPDATE bookings SET otp_hash = $2, otp_expiry = $3, updated_at = NOW() WHERE id = $1`,
		id, hash, expiry)
}

// ClearOTP removes the completion OTP
func (r *BookingRepository) ClearOTP(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "clear booking otp",
		`UPDATE bookings SET otp_hash = NULL, otp_expiry = NULL, updated_at = NOW() WHERE id = $1`, id)
}

// Complete marks a booking completed and consumes its OTP in one statement.
// otpHash must still be the stored code.
func (r *BookingRepository) Complete(ctx context.Context, id uuid.UUID, from models.BookingStatus, otpHash string) error {
	return r.execConditional(ctx, "complete booking", `
		UPDATE bookings
		SET status = $3, otp_hash = NULL, otp_expiry = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND otp_hash = $4`,
		id, from, models.BookingStatusCompleted, otpHash)
}

// ClearExpiredOTPs drops completion OTPs that expired before now
func (r *BookingRepository) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE bookings SET otp_hash = NULL, otp_expiry = NULL WHERE otp_expiry IS NOT NULL AND otp_expiry < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired booking otps: %w", err)
	}
	return result.RowsAffected()
}

// markPaidConfirmed settles existing bookings: payment becomes paid and
// pending bookings are confirmed. Later states are left alone.
func markPaidConfirmed(ctx context.Context, tx *sqlx.Tx, ids []uuid.UUID) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE bookings
		SET payment_status = 'paid',
		    status = CASE WHEN status = 'pending' THEN 'confirmed' ELSE status END,
		    updated_at = NOW()
		WHERE id = ANY($1)`, models.UUIDArray(ids))
	if err != nil {
		return 0, fmt.Errorf("failed to confirm bookings: %w", err)
	}
	return result.RowsAffected()
}

func (r *BookingRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *BookingRepository) execConditional(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrStale
	}
	return nil
}

const prefixedBookingColumns = `b.id, b.user_id, b.service_id, b.service_name, b.service_price_at_booking, b.quantity,
	b.total_amount, b.scheduled_at, b.address, b.notes, b.status, b.payment_status, b.assigned_to, b.assigned_at,
	b.cancel_reason, b.otp_hash, b.otp_expiry, b.created_at, b.updated_at`
