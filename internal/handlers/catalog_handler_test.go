package handlers

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/servicehub/marketplace-backend/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func multipartBody(t *testing.T, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestCatalogHandler_CreateServiceForm(t *testing.T) {
	h := NewCatalogHandler(services.NewCatalogService(nil, nil, nil, nil, nil, nil, testLogger()), testLogger())
	router := setupTestRouter(t)
	router.POST("/services", h.CreateService)

	tests := []struct {
		name   string
		fields map[string]string
	}{
		{"price is not a number", map[string]string{"name": "Clean", "price": "cheap", "categoryId": "8d0a4c1e-3b8e-4f7a-9a59-3a8f0c1d2e3f"}},
		{"category is not a uuid", map[string]string{"name": "Clean", "price": "10", "categoryId": "cleaning"}},
		{"name is missing", map[string]string{"price": "10", "categoryId": "8d0a4c1e-3b8e-4f7a-9a59-3a8f0c1d2e3f"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body, contentType := multipartBody(t, tt.fields)
			req := httptest.NewRequest("POST", "/services", body)
			req.Header.Set("Content-Type", contentType)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, services.CodeInvalidInput, decodeBody(t, w)["code"])
		})
	}
}
