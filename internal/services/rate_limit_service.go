package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/servicehub/marketplace-backend/internal/config"
	"github.com/servicehub/marketplace-backend/internal/database"
)

// Rate limit scopes
const (
	ScopeLogin = "login"
	ScopeOTP   = "otp"
)

// RateLimitService throttles the auth endpoints. Only failed attempts are
// recorded, so a user who keeps succeeding is never locked out.
type RateLimitService struct {
	db     database.DB
	limits map[string]int
	window time.Duration
}

// NewRateLimitService creates a new rate limit service
func NewRateLimitService(db database.DB, cfg config.RateLimitConfig) *RateLimitService {
	window := cfg.Window
	if window <= 0 {
		window = 15 * time.Minute
	}
	return &RateLimitService{
		db: db,
		limits: map[string]int{
			ScopeLogin: cfg.LoginAttempts,
			ScopeOTP:   cfg.OTPAttempts,
		},
		window: window,
	}
}

// RateLimitError represents a rate limit exceeded error
type RateLimitError struct {
	Message    string
	RetryAfter time.Time
	Scope      string
}

func (e *RateLimitError) Error() string {
	return e.Message
}

// Key builds the identifier a scope is counted under
func Key(ip, email string) string {
	return ip + "|" + strings.ToLower(strings.TrimSpace(email))
}

// CheckLimit returns a RateLimitError when key has used up its failures for scope
func (s *RateLimitService) CheckLimit(ctx context.Context, scope, key string) error {
	limit, ok := s.limits[scope]
	if !ok || limit <= 0 {
		return nil
	}

	count, firstFailure, err := s.getFailureCount(ctx, scope, key)
	if err != nil {
		return fmt.Errorf("failed to check %s rate limit: %w", scope, err)
	}

	if count >= limit {
		retryAfter := firstFailure.Add(s.window)
		return &RateLimitError{
			Message:    fmt.Sprintf("Too many failed attempts. Please try again after %s", retryAfter.Format("15:04:05")),
			RetryAfter: retryAfter,
			Scope:      scope,
		}
	}
	return nil
}

// getFailureCount returns the failures inside the window and the oldest of them
func (s *RateLimitService) getFailureCount(ctx context.Context, scope, key string) (int, time.Time, error) {
	query := `
		SELECT COUNT(*), COALESCE(MIN(created_at), NOW())
		FROM rate_limit_hits
		WHERE key = $1
		  AND scope = $2
		  AND created_at > $3
	`

	var count int
	var firstFailure time.Time
	err := s.db.QueryRowContext(ctx, query, key, scope, time.Now().Add(-s.window)).Scan(&count, &firstFailure)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, err
	}
	return count, firstFailure, nil
}

// RecordFailure counts one failed attempt
func (s *RateLimitService) RecordFailure(ctx context.Context, scope, key string) error {
	query := `
		INSERT INTO rate_limit_hits (key, scope, created_at)
		VALUES ($1, $2, NOW())
	`
	if _, err := s.db.ExecContext(ctx, query, key, scope); err != nil {
		return fmt.Errorf("failed to record %s failure: %w", scope, err)
	}
	return nil
}

// CleanupExpired removes rows older than the window
func (s *RateLimitService) CleanupExpired(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM rate_limit_hits WHERE created_at < $1`, time.Now().Add(-s.window))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup rate limits: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
