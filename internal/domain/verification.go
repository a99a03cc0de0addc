package domain

import "time"

const (
	// CodeValidity is how long a one-time code validates after issuance.
	CodeValidity = 2 * time.Minute
	// CodeRetention is the age after which the sweep removes a one-time code, used or not.
	CodeRetention = 12 * time.Hour
	// ResetTokenValidity is how long a password-reset token can be consumed.
	ResetTokenValidity = 10 * time.Minute
)

// OneTimeCode is the single active registration/login code for an email.
type OneTimeCode struct {
	Email     string
	Code      string
	CreatedAt time.Time
}

// ValidAt reports whether the code is still inside its validity window at now.
func (c OneTimeCode) ValidAt(now time.Time) bool {
	return now.Before(c.CreatedAt.Add(CodeValidity))
}

// ResetToken maps a password-reset code to the email it was issued for.
type ResetToken struct {
	Token     string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}
