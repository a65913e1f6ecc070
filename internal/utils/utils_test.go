package utils

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserAgent(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		kind string
	}{
		{"empty", "", "unknown"},
		{"desktop chrome", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36", "desktop"},
		{"android phone", "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Mobile Safari/537.36", "mobile"},
		{"ipad", "Mozilla/5.0 (iPad; CPU OS 16_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.0 Mobile/15E148 Safari/604.1", "tablet"},
		{"googlebot", "Mozilla/5.0 (compatible; Googlebot/2.1; +http://www.google.com/bot.html)", "bot"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := ParseUserAgent(tt.ua)
			assert.Equal(t, tt.kind, info.Kind)
			assert.NotEmpty(t, info.Browser)
		})
	}
}

func TestParseUserAgent_Map(t *testing.T) {
	m := ParseUserAgent("").Map()
	assert.Equal(t, "unknown", m["kind"])
	assert.Contains(t, m, "browser")
}

func TestGetRealIP(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name      string
		realIP    string
		forwarded string
		expected  string
	}{
		{"x-real-ip public", "203.0.113.7", "", "203.0.113.7"},
		{"first public forwarded hop", "", "10.0.0.1, 198.51.100.4, 203.0.113.9", "198.51.100.4"},
		{"no headers uses socket address", "", "", "192.0.2.1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/", nil)
			c.Request.RemoteAddr = "192.0.2.1:1234"
			if tt.realIP != "" {
				c.Request.Header.Set("X-Real-IP", tt.realIP)
			}
			if tt.forwarded != "" {
				c.Request.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			assert.Equal(t, tt.expected, GetRealIP(c))
		})
	}
}

func TestGenerateSecrets(t *testing.T) {
	secrets, err := GenerateSecrets()
	require.NoError(t, err)
	require.Len(t, secrets, len(SecretNames))

	seen := map[string]bool{}
	for _, name := range SecretNames {
		value := secrets[name]
		assert.Len(t, value, 64)
		assert.False(t, seen[value], "secrets must differ")
		seen[value] = true
	}
}
