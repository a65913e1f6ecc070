package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingLimiter struct {
	mu       sync.Mutex
	limit    int
	failures map[string]int
	checkErr error
}

func newCountingLimiter(limit int) *countingLimiter {
	return &countingLimiter{limit: limit, failures: map[string]int{}}
}

func (l *countingLimiter) CheckLimit(_ context.Context, scope, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.checkErr != nil {
		return l.checkErr
	}
	if l.failures[scope+"/"+key] >= l.limit {
		return &services.RateLimitError{Message: "Too many failed attempts", RetryAfter: time.Now().Add(time.Minute), Scope: scope}
	}
	return nil
}

func (l *countingLimiter) RecordFailure(_ context.Context, scope, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failures[scope+"/"+key]++
	return nil
}

func loginRouter(limiter FailureLimiter) *gin.Engine {
	router := setupTestRouter()
	router.POST("/login", RateLimit(limiter, nil, services.ScopeLogin, testLogger()), func(c *gin.Context) {
		var body struct {
			Email    string `json:"email"`
			Password string `json:"password"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "bad body"})
			return
		}
		if body.Password != "right" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "bad password"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"email": body.Email})
	})
	return router
}

func login(router *gin.Engine, email, password string) *httptest.ResponseRecorder {
	body := `{"email":"` + email + `","password":"` + password + `"}`
	req := httptest.NewRequest("POST", "/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "203.0.113.9:5000"
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRateLimit_CountsFailuresOnly(t *testing.T) {
	limiter := newCountingLimiter(2)
	router := loginRouter(limiter)

	w := login(router, "asha@example.com", "right")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "asha@example.com", "body is restored for the handler")
	assert.Empty(t, limiter.failures)

	assert.Equal(t, http.StatusUnauthorized, login(router, "asha@example.com", "wrong").Code)
	assert.Equal(t, http.StatusUnauthorized, login(router, "ASHA@example.com", "wrong").Code)
	assert.Equal(t, 2, limiter.failures[services.ScopeLogin+"/203.0.113.9|asha@example.com"])

	w = login(router, "asha@example.com", "right")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Contains(t, w.Body.String(), services.CodeRateLimited)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, login(router, "other@example.com", "right").Code, "keys are per email")
}

func TestRateLimit_LimiterErrorFailsOpen(t *testing.T) {
	limiter := newCountingLimiter(1)
	limiter.checkErr = errors.New("db down")

	w := login(loginRouter(limiter), "a@example.com", "right")
	assert.Equal(t, http.StatusOK, w.Code)
}
