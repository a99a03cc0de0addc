package domain

import (
	"strings"
	"time"
)

// LowestTier is the subscription level every identity starts on.
const LowestTier = 0

// Identity is a registered account. Email is stored in its normalized form.
type Identity struct {
	ID                string    `json:"user_id"`
	Email             string    `json:"email"`
	PasswordDigest    string    `json:"-"`
	DisplayName       string    `json:"name"`
	Verified          bool      `json:"verified"`
	RegisteredAt      time.Time `json:"registered_at"`
	SubscriptionLevel int       `json:"subscription_level"`
}

// NormalizeEmail performs case-insensitive canonicalization.
// Every read and write keyed by email goes through it.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

type RegisterRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required,max=72"`
	Name     string `json:"name" validate:"required"`
}

type VerifyRequest struct {
	Email string `json:"email" validate:"required"`
	OTP   string `json:"otp" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type EmailRequest struct {
	Email string `json:"email" validate:"required"`
}

type ResetConfirmRequest struct {
	OTP         string `json:"otp" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,max=72"`
}

// ClientInfo describes the caller for audit purposes.
type ClientInfo struct {
	IP         string
	UserAgent  string
	DeviceID   string
	DeviceName string
}

// DeviceFields are client details older apps report in the request body.
type DeviceFields struct {
	IPAddress  string `json:"ip_address"`
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
}

type SessionCheckRequest struct {
	Email   string `json:"email" validate:"required"`
	SavedID string `json:"saved_u_id" validate:"required"`
	DeviceFields
}

type SignOutRequest struct {
	Email string `json:"email" validate:"required"`
	DeviceFields
}

type SetSubscriptionRequest struct {
	Level *int `json:"subscription_level" validate:"required,min=0"`
}
