// Package otp issues and validates the single active one-time code per email.
package otp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/go-identity-quota/internal/pkg/otpcode"
	"github.com/jonboulle/clockwork"
)

// Repository persists one-time codes keyed by normalized email.
type Repository interface {
	// Put replaces any existing code for c.Email.
	Put(ctx context.Context, c domain.OneTimeCode) error
	// Get returns domain.ErrNotFound when no code exists for email.
	Get(ctx context.Context, email string) (*domain.OneTimeCode, error)
	// DeleteCreatedBefore removes codes whose created_at is strictly before cutoff.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

type Store struct {
	repo    Repository
	clock   clockwork.Clock
	newCode func() (string, error)
}

func NewStore(repo Repository, clock clockwork.Clock) *Store {
	return &Store{repo: repo, clock: clock, newCode: otpcode.New}
}

// Issue generates a fresh code for email, replacing any earlier one.
func (s *Store) Issue(ctx context.Context, email string) (string, error) {
	code, err := s.newCode()
	if err != nil {
		return "", err
	}
	c := domain.OneTimeCode{
		Email:     domain.NormalizeEmail(email),
		Code:      code,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.Put(ctx, c); err != nil {
		return "", fmt.Errorf("issue code: %w", err)
	}
	return code, nil
}

// Validate reports whether candidate matches the current code for email and is inside
// its validity window. The code is not consumed.
func (s *Store) Validate(ctx context.Context, email, candidate string) (bool, error) {
	c, err := s.repo.Get(ctx, domain.NormalizeEmail(email))
	if errors.Is(err, domain.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("validate code: %w", err)
	}
	if !otpcode.Equal(c.Code, candidate) {
		return false, nil
	}
	return c.ValidAt(s.clock.Now()), nil
}

// Sweep deletes every code created more than domain.CodeRetention before now.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	return s.repo.DeleteCreatedBefore(ctx, now.Add(-domain.CodeRetention))
}
