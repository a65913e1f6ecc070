package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// SecretNames are the environment variables cmd/generate-secrets fills in
var SecretNames = []string{"JWT_SECRET", "OTP_HASH_SALT", "PAYMENT_WEBHOOK_SECRET"}

// GenerateSecret returns a hex string of n random bytes
func GenerateSecret(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateSecrets returns a fresh 256-bit value for every name in SecretNames
func GenerateSecrets() (map[string]string, error) {
	secrets := make(map[string]string, len(SecretNames))
	for _, name := range SecretNames {
		value, err := GenerateSecret(32)
		if err != nil {
			return nil, fmt.Errorf("failed to generate %s: %w", name, err)
		}
		secrets[name] = value
	}
	return secrets, nil
}
