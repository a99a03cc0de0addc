package domain

import "time"

// Unlimited is the MaxRequests sentinel for tiers without a request cap.
const Unlimited = -1

// CounterRetention is the idle time after which a quota counter is swept.
const CounterRetention = 24 * time.Hour

type SubscriptionTier struct {
	Level       int    `json:"level"`
	Name        string `json:"name"`
	MaxRequests int64  `json:"max_requests"`
}

func (t SubscriptionTier) Unlimited() bool { return t.MaxRequests == Unlimited }

// DefaultTiers seeds the tier table on first start.
var DefaultTiers = []SubscriptionTier{
	{Level: 0, Name: "Free", MaxRequests: 20},
	{Level: 1, Name: "Basic", MaxRequests: 100},
	{Level: 2, Name: "Pro", MaxRequests: 500},
	{Level: 3, Name: "Unlimited", MaxRequests: Unlimited},
}

type QuotaCounter struct {
	IdentityID    string    `json:"identity_id"`
	RequestsMade  int64     `json:"requests_made"`
	LastRequestAt time.Time `json:"last_request_at"`
}

// Decision is the outcome of a quota check.
type Decision int

const (
	Denied Decision = iota
	Allowed
)

func (d Decision) String() string {
	if d == Allowed {
		return "allowed"
	}
	return "denied"
}

type QuotaCheckRequest struct {
	UserID string `json:"user_id"`
}
