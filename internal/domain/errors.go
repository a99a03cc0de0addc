package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound              = errors.New("not found")
	ErrConflict              = errors.New("conflict")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrBadRequest            = errors.New("bad request")
	ErrInvalidEmailFormat    = errors.New("invalid email format")
	ErrInvalidOrExpiredCode  = errors.New("invalid or expired code")
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrAlreadyVerified       = errors.New("already verified")
	ErrDeliveryFailed        = errors.New("delivery failed")
	ErrUnknownTier           = errors.New("unknown tier")
	ErrUnknownIdentity       = errors.New("unknown identity")
	ErrStoreUnavailable      = errors.New("store unavailable")
)

// kinds is ordered: the first sentinel matched wins.
var kinds = []struct {
	err  error
	kind string
}{
	{ErrConflict, "conflict"},
	{ErrInvalidEmailFormat, "invalid_email_format"},
	{ErrInvalidOrExpiredCode, "invalid_or_expired_code"},
	{ErrInvalidOrExpiredToken, "invalid_or_expired_token"},
	{ErrInvalidCredentials, "invalid_credentials"},
	{ErrAlreadyVerified, "already_verified"},
	{ErrDeliveryFailed, "delivery_failed"},
	{ErrUnknownTier, "unknown_tier"},
	{ErrUnknownIdentity, "unknown_identity"},
	{ErrNotFound, "not_found"},
	{ErrUnauthorized, "unauthorized"},
	{ErrBadRequest, "bad_request"},
	{ErrStoreUnavailable, "store_unavailable"},
}

// KindOf returns the stable, enumerable kind of err. Unclassified errors report "internal".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return "internal"
}

// Unavailable wraps a persistence fault so callers see ErrStoreUnavailable while the cause stays inspectable.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
