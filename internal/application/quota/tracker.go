// Package quota enforces per-identity request limits derived from subscription tiers.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jonboulle/clockwork"
)

// TierTable is the read-only tier catalogue.
type TierTable interface {
	// Get returns domain.ErrNotFound when level is not defined.
	Get(ctx context.Context, level int) (*domain.SubscriptionTier, error)
	List(ctx context.Context) ([]domain.SubscriptionTier, error)
}

// CounterRepository persists quota counters.
type CounterRepository interface {
	// Increment applies the check-and-increment rule as one atomic store operation:
	// a missing counter is created at 1; an existing one is incremented when max is
	// domain.Unlimited or requests_made < max. It reports false, leaving the counter
	// untouched, when the limit has been reached.
	Increment(ctx context.Context, identityID string, max int64, at time.Time) (bool, error)
	// Get returns domain.ErrNotFound when identityID has no counter.
	Get(ctx context.Context, identityID string) (*domain.QuotaCounter, error)
	// DeleteIdleBefore removes counters whose last_request_at is strictly before cutoff.
	DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// IdentityLookup resolves an identity id to its record.
type IdentityLookup interface {
	FindByID(ctx context.Context, id string) (*domain.Identity, error)
}

// Observer receives quota decisions, e.g. for metrics.
type Observer interface {
	QuotaDecision(level int, d domain.Decision)
}

type nopObserver struct{}

func (nopObserver) QuotaDecision(int, domain.Decision) {}

type Tracker struct {
	tiers      TierTable
	counters   CounterRepository
	identities IdentityLookup
	clock      clockwork.Clock
	observer   Observer
}

func NewTracker(tiers TierTable, counters CounterRepository, identities IdentityLookup, clock clockwork.Clock) *Tracker {
	return &Tracker{
		tiers:      tiers,
		counters:   counters,
		identities: identities,
		clock:      clock,
		observer:   nopObserver{},
	}
}

// WithObserver sets o as the decision observer and returns t.
func (t *Tracker) WithObserver(o Observer) *Tracker {
	if o != nil {
		t.observer = o
	}
	return t
}

// TierLimit returns the max request count for level.
func (t *Tracker) TierLimit(ctx context.Context, level int) (int64, error) {
	tier, err := t.tiers.Get(ctx, level)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("tier %d: %w", level, domain.ErrUnknownTier)
	}
	if err != nil {
		return 0, fmt.Errorf("tier limit: %w", err)
	}
	return tier.MaxRequests, nil
}

// CheckAndIncrement counts one request for identityID against the limit of level.
// Denied is a normal outcome, not an error.
func (t *Tracker) CheckAndIncrement(ctx context.Context, identityID string, level int) (domain.Decision, error) {
	max, err := t.TierLimit(ctx, level)
	if err != nil {
		return domain.Denied, err
	}
	ok, err := t.counters.Increment(ctx, identityID, max, t.clock.Now().UTC())
	if err != nil {
		return domain.Denied, fmt.Errorf("check and increment: %w", err)
	}
	d := domain.Denied
	if ok {
		d = domain.Allowed
	}
	t.observer.QuotaDecision(level, d)
	return d, nil
}

// Check resolves identityID's subscription level and applies CheckAndIncrement.
func (t *Tracker) Check(ctx context.Context, identityID string) (domain.Decision, error) {
	ident, err := t.identities.FindByID(ctx, identityID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Denied, fmt.Errorf("identity %s: %w", identityID, domain.ErrUnknownIdentity)
	}
	if err != nil {
		return domain.Denied, fmt.Errorf("quota check: %w", err)
	}
	return t.CheckAndIncrement(ctx, ident.ID, ident.SubscriptionLevel)
}

// Usage returns the current counter for identityID, or a zero counter if none exists.
func (t *Tracker) Usage(ctx context.Context, identityID string) (*domain.QuotaCounter, error) {
	c, err := t.counters.Get(ctx, identityID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.QuotaCounter{IdentityID: identityID}, nil
	}
	return c, err
}

// Tiers lists the tier catalogue ordered by level.
func (t *Tracker) Tiers(ctx context.Context) ([]domain.SubscriptionTier, error) {
	return t.tiers.List(ctx)
}

// Sweep deletes every counter idle for longer than domain.CounterRetention at now.
func (t *Tracker) Sweep(ctx context.Context, now time.Time) (int, error) {
	return t.counters.DeleteIdleBefore(ctx, now.Add(-domain.CounterRetention))
}
