package models

import (
	"time"

	"github.com/google/uuid"
)

// UserRole represents the role of an account
type UserRole string

const (
	RoleUser  UserRole = "user"
	RoleAdmin UserRole = "admin"
)

// User represents a marketplace account
type User struct {
	ID            uuid.UUID  `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Email         string     `json:"email" db:"email"`
	PhoneNumber   *string    `json:"phone_number,omitempty" db:"phone_number"`
	PasswordHash  string     `json:"-" db:"password_hash"`
	Role          UserRole   `json:"role" db:"role"`
	IsVerified    bool       `json:"is_verified" db:"is_verified"`
	OTPHash       *string    `json:"-" db:"otp_hash"`
	OTPExpiry     *time.Time `json:"-" db:"otp_expiry"`
	OAuthProvider *string    `json:"oauth_provider,omitempty" db:"oauth_provider"`
	OAuthID       *string    `json:"-" db:"oauth_id"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// IsAdmin reports whether the user has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// OTPState returns the stored hash/expiry pair, empty strings when none
func (u *User) OTPState() (string, time.Time) {
	if u.OTPHash == nil || u.OTPExpiry == nil {
		return "", time.Time{}
	}
	return *u.OTPHash, *u.OTPExpiry
}
