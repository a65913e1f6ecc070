package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/servicehub/marketplace-backend/internal/models"
)

const userColumns = `id, name, email, phone_number, password_hash, role, is_verified,
	otp_hash, otp_expiry, oauth_provider, oauth_id, created_at, updated_at`

// UserRepository handles user-related database operations
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository creates a new UserRepository
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateUser inserts a new user
func (r *UserRepository) CreateUser(ctx context.Context, user *models.User) error {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	query := `
		INSERT INTO users (id, name, email, phone_number, password_hash, role, is_verified,
			otp_hash, otp_expiry, oauth_provider, oauth_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.ExecContext(ctx, query,
		user.ID, user.Name, user.Email, user.PhoneNumber, user.PasswordHash, user.Role, user.IsVerified,
		user.OTPHash, user.OTPExpiry, user.OAuthProvider, user.OAuthID, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// GetUserByID retrieves a user by ID
func (r *UserRepository) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// GetUserByEmail retrieves a user by email
func (r *UserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// DeleteUnverifiedByEmail removes abandoned, unverified registrations for an email
func (r *UserRepository) DeleteUnverifiedByEmail(ctx context.Context, email string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE email = $1 AND is_verified = false`, email)
	if err != nil {
		return fmt.Errorf("failed to delete unverified users: %w", err)
	}
	return nil
}

// SetOTP stores a new OTP hash and expiry, replacing any outstanding one
func (r *UserRepository) SetOTP(ctx context.Context, id uuid.UUID, hash string, expiry time.Time) error {
	return r.exec(ctx, "set OTP",
		`UPDATE users SET otp_hash = $2, otp_expiry = $3, updated_at = NOW() WHERE id = $1`,
		id, hash, expiry)
}

// ClearOTP removes the stored OTP state
func (r *UserRepository) ClearOTP(ctx context.Context, id uuid.UUID) error {
	return r.exec(ctx, "clear OTP",
		`UPDATE users SET otp_hash = NULL, otp_expiry = NULL, updated_at = NOW() WHERE id = $1`, id)
}

// MarkVerified marks the email verified and consumes the OTP. It returns
// ErrStale when otpHash is no longer the stored code.
func (r *UserRepository) MarkVerified(ctx context.Context, id uuid.UUID, otpHash string) error {
	return r.consumeOTP(ctx, "mark user verified",
		`UPDATE users SET is_verified = true, otp_hash = NULL, otp_expiry = NULL, updated_at = NOW() WHERE id = $1 AND otp_hash = $2`,
		id, otpHash)
}

// UpdatePassword stores a new password hash and consumes the OTP. It returns
// ErrStale when otpHash is no longer the stored code.
func (r *UserRepository) UpdatePassword(ctx context.Context, id uuid.UUID, otpHash, passwordHash string) error {
	return r.consumeOTP(ctx, "update password",
		`UPDATE users SET password_hash = $3, otp_hash = NULL, otp_expiry = NULL, updated_at = NOW() WHERE id = $1 AND otp_hash = $2`,
		id, otpHash, passwordHash)
}

// UpdatePhone sets the user's phone number
func (r *UserRepository) UpdatePhone(ctx context.Context, id uuid.UUID, phone string) error {
	return r.exec(ctx, "update phone",
		`UPDATE users SET phone_number = $2, updated_at = NOW() WHERE id = $1`, id, phone)
}

// LinkOAuth attaches an external identity and marks the account verified.
// Existing provider/subject values are kept.
func (r *UserRepository) LinkOAuth(ctx context.Context, id uuid.UUID, provider, subject string) error {
	return r.exec(ctx, "link oauth identity", `
		UPDATE users
		SET is_verified = true,
		    oauth_provider = COALESCE(oauth_provider, $2),
		    oauth_id = COALESCE(oauth_id, $3),
		    updated_at = NOW()
		WHERE id = $1`, id, provider, subject)
}

// ClearExpiredOTPs drops OTP state that expired before now
func (r *UserRepository) ClearExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET otp_hash = NULL, otp_expiry = NULL WHERE otp_expiry IS NOT NULL AND otp_expiry < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear expired user OTPs: %w", err)
	}
	return result.RowsAffected()
}

// DeleteStaleUnverified removes unverified accounts created before cutoff
func (r *UserRepository) DeleteStaleUnverified(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE is_verified = false AND oauth_id IS NULL AND created_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete stale unverified users: %w", err)
	}
	return result.RowsAffected()
}

func (r *UserRepository) exec(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *UserRepository) consumeOTP(ctx context.Context, op, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return ErrStale
	}
	return nil
}
