// Package otp issues and verifies salted, expiring one-time codes.
//
// Only the hash and the absolute expiry of a code are ever persisted. A
// successful verification or a detected expiry must be followed by clearing
// the stored State so a code can never be used twice.
package otp

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"time"
)

const (
	// DefaultLength is the number of digits in a code
	DefaultLength = 6

	// DefaultExpiry is how long an issued code stays valid
	DefaultExpiry = 10 * time.Minute
)

var (
	// ErrExpired indicates the stored code is past its expiry
	ErrExpired = errors.New("OTP has expired")

	// ErrInvalid indicates the supplied code does not match
	ErrInvalid = errors.New("invalid OTP code")

	// ErrNotRequested indicates no code was ever issued (or it was already consumed)
	ErrNotRequested = errors.New("no OTP was requested")
)

// State is the persisted form of an issued code
type State struct {
	Hash   string
	Expiry time.Time
}

// IsZero reports whether no code is currently outstanding
func (s State) IsZero() bool {
	return s.Hash == "" || s.Expiry.IsZero()
}

// Engine generates, hashes and verifies codes
type Engine struct {
	salt   string
	length int
	expiry time.Duration
}

// NewEngine creates an engine. Non-positive length or expiry fall back to the defaults.
func NewEngine(salt string, length int, expiry time.Duration) *Engine {
	if length <= 0 {
		length = DefaultLength
	}
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &Engine{salt: salt, length: length, expiry: expiry}
}

// Expiry returns the validity window
func (e *Engine) Expiry() time.Duration {
	return e.expiry
}

// Generate returns a numeric code drawn uniformly from [10^(length-1), 10^length - 1]
func Generate(length int) (string, error) {
	if length <= 0 || length > 18 {
		return "", fmt.Errorf("invalid OTP length: %d", length)
	}

	min := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	max := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length)), nil)
	span := new(big.Int).Sub(max, min)

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}

	return n.Add(n, min).String(), nil
}

// Hash returns the hex SHA-256 digest of code+salt
func (e *Engine) Hash(code string) string {
	sum := sha256.Sum256([]byte(code + e.salt))
	return hex.EncodeToString(sum[:])
}

// Matches compares code against a stored hash in constant time
func (e *Engine) Matches(code, hash string) bool {
	computed := e.Hash(code)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

// Issue generates a fresh code and the State to persist for it.
// Persisting the returned State replaces any earlier outstanding code.
func (e *Engine) Issue(now time.Time) (string, State, error) {
	code, err := Generate(e.length)
	if err != nil {
		return "", State{}, err
	}

	return code, State{
		Hash:   e.Hash(code),
		Expiry: now.Add(e.expiry),
	}, nil
}

// Verify checks code against state at the given instant.
// On ErrExpired and on success the caller must clear the stored state.
func (e *Engine) Verify(state State, code string, now time.Time) error {
	if state.IsZero() {
		return ErrNotRequested
	}

	if now.After(state.Expiry) {
		return ErrExpired
	}

	if !e.Matches(code, state.Hash) {
		return ErrInvalid
	}

	return nil
}

// MustClear reports whether a verification result consumes the stored state
func MustClear(err error) bool {
	return err == nil || errors.Is(err, ErrExpired)
}
