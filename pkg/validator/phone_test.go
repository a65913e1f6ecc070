package validator

import (
	"testing"

	playground "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidNumbers(t *testing.T) {
	validator := NewPhoneValidator()

	validNumbers := []struct {
		input    string
		expected string
		name     string
	}{
		{"9876543210", "9876543210", "Plain"},
		{"98765 43210", "9876543210", "With space"},
		{"98765-43210", "9876543210", "With dash"},
		{"+91 98765 43210", "9876543210", "Country code"},
		{"919876543210", "9876543210", "Country code without plus"},
		{"09876543210", "9876543210", "Trunk prefix"},
		{"6123456789", "6123456789", "Starts with 6"},
	}

	for _, tc := range validNumbers {
		t.Run(tc.name, func(t *testing.T) {
			sanitized, err := validator.Validate(tc.input)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, sanitized)
		})
	}
}

func TestValidate_InvalidNumbers(t *testing.T) {
	validator := NewPhoneValidator()

	invalid := []struct {
		input string
		err   error
		name  string
	}{
		{"", ErrEmptyPhone, "Empty"},
		{"   ", ErrEmptyPhone, "Blank"},
		{"98765abcde", ErrInvalidFormat, "Letters"},
		{"98765432", ErrInvalidLength, "Too short"},
		{"98765432101", ErrInvalidLength, "Too long"},
		{"5876543210", ErrInvalidPrefix, "Landline style prefix"},
	}

	for _, tc := range invalid {
		t.Run(tc.name, func(t *testing.T) {
			_, err := validator.Validate(tc.input)
			assert.ErrorIs(t, err, tc.err)
		})
	}
}

func TestFormat(t *testing.T) {
	formatted, err := NewPhoneValidator().Format("9876543210")
	require.NoError(t, err)
	assert.Equal(t, "+91 98765 43210", formatted)
}

func TestRegisterTags(t *testing.T) {
	v := playground.New()
	require.NoError(t, RegisterTags(v))

	type req struct {
		Phone string `validate:"required,in_mobile"`
	}

	assert.NoError(t, v.Struct(req{Phone: "+91 98765 43210"}))
	assert.Error(t, v.Struct(req{Phone: "12345"}))
}
