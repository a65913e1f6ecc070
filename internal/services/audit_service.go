package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/database"
	"github.com/servicehub/marketplace-backend/internal/models"
	"github.com/servicehub/marketplace-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// Audit actions
const (
	AuditRegister          = "register"
	AuditEmailVerified     = "email_verified"
	AuditLoginSuccess      = "login_success"
	AuditLoginFailed       = "login_failed"
	AuditOAuthLogin        = "oauth_login"
	AuditPasswordReset     = "password_reset"
	AuditOTPFailed         = "otp_failed"
	AuditRateLimitExceeded = "rate_limit_exceeded"
)

// RequestMeta carries the caller's network identity into the services
type RequestMeta struct {
	IP        string
	UserAgent string
}

// AuditService writes security events to audit_logs. A disabled service
// accepts every call and writes nothing.
type AuditService struct {
	db      database.DB
	logger  *logrus.Logger
	enabled bool
}

// NewAuditService creates a new audit service
func NewAuditService(db database.DB, logger *logrus.Logger, enabled bool) *AuditService {
	return &AuditService{db: db, logger: logger, enabled: enabled}
}

// AuditEvent represents a security event to be logged
type AuditEvent struct {
	UserID     *uuid.UUID // nil before authentication
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	Meta       RequestMeta
	Details    map[string]interface{}
}

// LogAuth records an authentication event for an email
func (s *AuditService) LogAuth(ctx context.Context, action string, userID *uuid.UUID, email string, meta RequestMeta, reason string) {
	details := map[string]interface{}{"email": email}
	if reason != "" {
		details["reason"] = reason
	}
	s.record(ctx, AuditEvent{
		UserID:     userID,
		Action:     action,
		EntityType: "user",
		EntityID:   userID,
		Meta:       meta,
		Details:    details,
	})
}

// LogRateLimit records a rejected request
func (s *AuditService) LogRateLimit(ctx context.Context, rlErr *RateLimitError, key string, meta RequestMeta) {
	s.record(ctx, AuditEvent{
		Action:     AuditRateLimitExceeded,
		EntityType: "rate_limit",
		Meta:       meta,
		Details: map[string]interface{}{
			"scope":       rlErr.Scope,
			"key":         key,
			"retry_after": rlErr.RetryAfter,
		},
	})
}

// record writes the event and only logs a failure, so auditing never breaks a request
func (s *AuditService) record(ctx context.Context, event AuditEvent) {
	if s == nil || !s.enabled {
		return
	}
	if err := s.logEvent(ctx, event); err != nil {
		s.logger.WithError(err).WithField("action", event.Action).Warn("Failed to write audit log")
	}
}

func (s *AuditService) logEvent(ctx context.Context, event AuditEvent) error {
	details := models.JSONB{}
	for k, v := range event.Details {
		details[k] = v
	}
	details["device"] = utils.ParseUserAgent(event.Meta.UserAgent).Map()

	query := `
		INSERT INTO audit_logs (user_id, action, entity_type, entity_id, ip_address, user_agent, details, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := s.db.ExecContext(ctx, query,
		event.UserID,
		event.Action,
		event.EntityType,
		event.EntityID,
		event.Meta.IP,
		event.Meta.UserAgent,
		details,
	)
	if err != nil {
		return fmt.Errorf("failed to log audit event: %w", err)
	}
	return nil
}

// CleanupOldAuditLogs removes audit logs older than the specified duration
func (s *AuditService) CleanupOldAuditLogs(ctx context.Context, olderThan time.Duration) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_logs WHERE created_at < $1`, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old audit logs: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}
