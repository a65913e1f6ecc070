package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Database: DatabaseConfig{URL: "postgres://localhost/marketplace"},
		JWT:      JWTConfig{Secret: "secret", TokenExpiry: time.Hour},
		OTP:      OTPConfig{Length: 6, ExpiryMinutes: 10, HashSalt: "salt"},
		Payment:  PaymentConfig{Mode: "mock", Currency: "INR"},
		Server:   ServerConfig{Environment: "development"},
	}
}

func TestValidate(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("Missing Database URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.URL = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("Missing OTP Salt", func(t *testing.T) {
		cfg := validConfig()
		cfg.OTP.HashSalt = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("Live Payment Without Keys", func(t *testing.T) {
		cfg := validConfig()
		cfg.Payment.Mode = "live"
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "RAZORPAY_KEY_ID")
	})

	t.Run("Unknown Payment Mode", func(t *testing.T) {
		cfg := validConfig()
		cfg.Payment.Mode = "sandbox"
		assert.Error(t, cfg.Validate())
	})

	t.Run("Production Requires SMTP", func(t *testing.T) {
		cfg := validConfig()
		cfg.Server.Environment = "production"
		assert.Error(t, cfg.Validate())

		cfg.Mail.Host = "smtp.example.com"
		assert.NoError(t, cfg.Validate())
	})
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	t.Setenv("TEST_BAD_INT", "forty")
	t.Setenv("TEST_BOOL", "true")
	t.Setenv("TEST_SLICE", "a, b,,c")

	assert.Equal(t, 42, getEnvAsInt("TEST_INT", 1))
	assert.Equal(t, 1, getEnvAsInt("TEST_BAD_INT", 1))
	assert.True(t, getEnvAsBool("TEST_BOOL", false))
	assert.Equal(t, []string{"a", "b", "c"}, getEnvAsSlice("TEST_SLICE", nil))
	assert.Equal(t, "fallback", getEnv("TEST_UNSET_KEY", "fallback"))
}

func TestOTPExpiry(t *testing.T) {
	assert.Equal(t, 10*time.Minute, OTPConfig{ExpiryMinutes: 10}.Expiry())
}
