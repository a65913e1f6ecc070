package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/servicehub/marketplace-backend/internal/utils"
	"github.com/sirupsen/logrus"
)

// FailureLimiter counts failed attempts per scope and key
type FailureLimiter interface {
	CheckLimit(ctx context.Context, scope, key string) error
	RecordFailure(ctx context.Context, scope, key string) error
}

// RequestMeta collects the caller details recorded in audit rows
func RequestMeta(c *gin.Context) services.RequestMeta {
	return services.RequestMeta{IP: utils.GetRealIP(c), UserAgent: utils.GetUserAgent(c)}
}

// peekEmail reads the "email" field of a JSON body and puts the body back
func peekEmail(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	if err != nil {
		return ""
	}

	var payload struct {
		Email string `json:"email"`
	}
	_ = json.Unmarshal(body, &payload)
	return payload.Email
}

// RateLimit rejects callers that have used up their failed attempts for scope.
// Only responses with 400 or 401 count as failures. Limiter errors let the
// request through.
func RateLimit(limiter FailureLimiter, audit *services.AuditService, scope string, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := RequestMeta(c)
		key := services.Key(meta.IP, peekEmail(c))
		ctx := c.Request.Context()

		if err := limiter.CheckLimit(ctx, scope, key); err != nil {
			var rlErr *services.RateLimitError
			if !errors.As(err, &rlErr) {
				logger.WithError(err).WithField("scope", scope).Error("Rate limit check failed")
				c.Next()
				return
			}

			audit.LogRateLimit(ctx, rlErr, key, meta)
			rateLimitedTotal.WithLabelValues(scope).Inc()
			logger.WithFields(logrus.Fields{"scope": scope, "ip": meta.IP}).Warn("Rate limit exceeded")

			retry := int(time.Until(rlErr.RetryAfter).Seconds())
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       string(services.KindRateLimited),
				"message":     rlErr.Message,
				"code":        services.CodeRateLimited,
				"retry_after": rlErr.RetryAfter,
			})
			return
		}

		c.Next()

		if status := c.Writer.Status(); status == http.StatusBadRequest || status == http.StatusUnauthorized {
			if err := limiter.RecordFailure(ctx, scope, key); err != nil {
				logger.WithError(err).WithField("scope", scope).Error("Failed to record rate limit failure")
			}
		}
	}
}
