package handlers

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/servicehub/marketplace-backend/internal/middleware"
	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, RegisterValidators())
	return gin.New()
}

// asUser stands in for AuthMiddleware
func asUser(userID uuid.UUID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.UserContextKey, middleware.UserContext{UserID: userID, Email: "u@example.com", Role: role})
		c.Next()
	}
}

func TestRespondError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"not found", services.NotFound("booking"), http.StatusNotFound, services.CodeNotFound, "booking not found"},
		{"transition", services.InvalidTransition("completed", "pending"), http.StatusConflict, services.CodeInvalidTransition, ""},
		{"no contact email", services.NoContactEmail(), http.StatusUnprocessableEntity, services.CodeNoContactEmail, ""},
		{"upstream", services.Upstream(services.CodeGatewayError, "gateway down", errors.New("503")), http.StatusBadGateway, services.CodeGatewayError, "gateway down"},
		{"plain error hides detail", errors.New("pq: connection refused"), http.StatusInternalServerError, services.CodeInternal, "Something went wrong"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupTestRouter(t)
			router.GET("/", func(c *gin.Context) { respondError(c, testLogger(), tt.err) })

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			body := decodeBody(t, w)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["error"])
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body["message"])
			}
		})
	}
}

func TestUUIDParam(t *testing.T) {
	router := setupTestRouter(t)
	router.GET("/items/:id", func(c *gin.Context) {
		id, ok := uuidParam(c, "id")
		if !ok {
			return
		}
		c.String(http.StatusOK, id.String())
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/items/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, services.CodeInvalidInput, decodeBody(t, w)["code"])

	id := uuid.New()
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/items/"+id.String(), nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, id.String(), w.Body.String())
}
