// Package admin implements operator-facing identity and audit-log management.
package admin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jonboulle/clockwork"
)

// Named registration windows accepted by RegisteredIn. Any other name means all time.
const (
	WindowLast30Days   = "Last 30 Days"
	WindowLast6Months  = "Last 6 Months"
	WindowLastYear     = "Last Year"
	registrationLayout = "2006-01-02"
)

var windows = map[string]time.Duration{
	WindowLast30Days:  30 * 24 * time.Hour,
	WindowLast6Months: 180 * 24 * time.Hour,
	WindowLastYear:    365 * 24 * time.Hour,
}

type Service interface {
	List(ctx context.Context) ([]domain.Identity, error)
	Get(ctx context.Context, email string) (*domain.Identity, error)
	Delete(ctx context.Context, email string) error
	MarkVerified(ctx context.Context, email string) error
	ListUnverified(ctx context.Context) ([]domain.Identity, error)
	DeleteUnverified(ctx context.Context) (int, error)
	RegisteredOn(ctx context.Context, date string) ([]domain.Identity, error)
	RegisteredIn(ctx context.Context, window string) ([]domain.Identity, error)
	SetSubscriptionLevel(ctx context.Context, identityID string, level int) error
	OpenAuditLog() (io.ReadCloser, string, error)
	PurgeAuditLogs() (int, error)
}

type identityStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.Identity, error)
	MarkVerified(ctx context.Context, email string) error
	SetSubscriptionLevel(ctx context.Context, id string, level int) error
	Delete(ctx context.Context, email string) (bool, error)
	List(ctx context.Context) ([]domain.Identity, error)
	ListUnverified(ctx context.Context) ([]domain.Identity, error)
	ListRegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Identity, error)
	DeleteUnverified(ctx context.Context) (int, error)
}

type tierTable interface {
	Get(ctx context.Context, level int) (*domain.SubscriptionTier, error)
}

// AuditLog exposes the current audit file. Open returns an error wrapping domain.ErrNotFound
// when nothing has been written yet.
type AuditLog interface {
	Open() (io.ReadCloser, string, error)
	Purge() (int, error)
}

type ServiceDeps struct {
	Identities identityStore
	Tiers      tierTable
	Audit      AuditLog // optional
	Clock      clockwork.Clock
}

type service struct {
	identities identityStore
	tiers      tierTable
	audit      AuditLog
	clock      clockwork.Clock
}

func NewService(deps ServiceDeps) Service {
	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &service{
		identities: deps.Identities,
		tiers:      deps.Tiers,
		audit:      deps.Audit,
		clock:      clock,
	}
}

func (s *service) List(ctx context.Context) ([]domain.Identity, error) {
	return s.identities.List(ctx)
}

func (s *service) Get(ctx context.Context, email string) (*domain.Identity, error) {
	return s.identities.FindByEmail(ctx, domain.NormalizeEmail(email))
}

func (s *service) Delete(ctx context.Context, email string) error {
	deleted, err := s.identities.Delete(ctx, domain.NormalizeEmail(email))
	if err != nil {
		return err
	}
	if !deleted {
		return fmt.Errorf("identity %q: %w", email, domain.ErrNotFound)
	}
	return nil
}

func (s *service) MarkVerified(ctx context.Context, email string) error {
	return s.identities.MarkVerified(ctx, domain.NormalizeEmail(email))
}

func (s *service) ListUnverified(ctx context.Context) ([]domain.Identity, error) {
	return s.identities.ListUnverified(ctx)
}

func (s *service) DeleteUnverified(ctx context.Context) (int, error) {
	n, err := s.identities.DeleteUnverified(ctx)
	if err != nil {
		return n, err
	}
	slog.Info("deleted unverified identities", "count", n)
	return n, nil
}

// RegisteredOn lists identities registered on the given UTC calendar day (YYYY-MM-DD).
func (s *service) RegisteredOn(ctx context.Context, date string) ([]domain.Identity, error) {
	day, err := time.Parse(registrationLayout, date)
	if err != nil {
		return nil, fmt.Errorf("date must be in YYYY-MM-DD format: %w", domain.ErrBadRequest)
	}
	return s.identities.ListRegisteredBetween(ctx, day, day.AddDate(0, 0, 1))
}

func (s *service) RegisteredIn(ctx context.Context, window string) ([]domain.Identity, error) {
	now := s.clock.Now().UTC()
	span, ok := windows[window]
	if !ok {
		return s.identities.List(ctx)
	}
	// Upper bound is exclusive; include registrations at now.
	return s.identities.ListRegisteredBetween(ctx, now.Add(-span), now.Add(time.Millisecond))
}

func (s *service) SetSubscriptionLevel(ctx context.Context, identityID string, level int) error {
	if _, err := s.tiers.Get(ctx, level); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("level %d: %w", level, domain.ErrUnknownTier)
		}
		return err
	}
	return s.identities.SetSubscriptionLevel(ctx, identityID, level)
}

func (s *service) OpenAuditLog() (io.ReadCloser, string, error) {
	if s.audit == nil {
		return nil, "", fmt.Errorf("audit log disabled: %w", domain.ErrNotFound)
	}
	return s.audit.Open()
}

func (s *service) PurgeAuditLogs() (int, error) {
	if s.audit == nil {
		return 0, nil
	}
	n, err := s.audit.Purge()
	if err != nil {
		return n, err
	}
	slog.Info("purged audit logs", "files", n)
	return n, nil
}
