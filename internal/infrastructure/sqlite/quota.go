package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jmoiron/sqlx"
)

type TierRepo struct {
	db *sqlx.DB
}

func NewTierRepo(db *sqlx.DB) *TierRepo { return &TierRepo{db: db} }

// Seed inserts tiers that are not present yet; existing rows are never overwritten.
func (r *TierRepo) Seed(ctx context.Context, tiers []domain.SubscriptionTier) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return domain.Unavailable("seed tiers", err)
	}
	defer func() { _ = tx.Rollback() }()
	for _, t := range tiers {
		if _, err := tx.NamedExecContext(ctx,
			`INSERT OR IGNORE INTO subscription_tiers (level, name, max_requests) VALUES (:level, :name, :max_requests)`,
			tierRecord(t)); err != nil {
			return domain.Unavailable("seed tiers", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.Unavailable("seed tiers", err)
	}
	return nil
}

type tierRow struct {
	Level       int    `db:"level"`
	Name        string `db:"name"`
	MaxRequests int64  `db:"max_requests"`
}

func tierRecord(t domain.SubscriptionTier) tierRow {
	return tierRow{Level: t.Level, Name: t.Name, MaxRequests: t.MaxRequests}
}

func (r *TierRepo) Get(ctx context.Context, level int) (*domain.SubscriptionTier, error) {
	var row tierRow
	err := r.db.GetContext(ctx, &row, `SELECT level, name, max_requests FROM subscription_tiers WHERE level = ?`, level)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("get tier", err)
	}
	return &domain.SubscriptionTier{Level: row.Level, Name: row.Name, MaxRequests: row.MaxRequests}, nil
}

func (r *TierRepo) List(ctx context.Context) ([]domain.SubscriptionTier, error) {
	var rows []tierRow
	if err := r.db.SelectContext(ctx, &rows, `SELECT level, name, max_requests FROM subscription_tiers ORDER BY level`); err != nil {
		return nil, domain.Unavailable("list tiers", err)
	}
	out := make([]domain.SubscriptionTier, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.SubscriptionTier{Level: row.Level, Name: row.Name, MaxRequests: row.MaxRequests})
	}
	return out, nil
}

type counterRow struct {
	IdentityID    string `db:"identity_id"`
	RequestsMade  int64  `db:"requests_made"`
	LastRequestAt int64  `db:"last_request_at"`
}

type QuotaRepo struct {
	db *sqlx.DB
}

func NewQuotaRepo(db *sqlx.DB) *QuotaRepo { return &QuotaRepo{db: db} }

// Increment is a single upsert: the DO UPDATE branch only fires while the counter is under max
// (or max is unlimited), so a denied request changes zero rows.
func (r *QuotaRepo) Increment(ctx context.Context, identityID string, max int64, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
INSERT INTO quota_counters (identity_id, requests_made, last_request_at) VALUES (?1, 1, ?2)
ON CONFLICT(identity_id) DO UPDATE SET
    requests_made   = quota_counters.requests_made + 1,
    last_request_at = excluded.last_request_at
WHERE ?3 = -1 OR quota_counters.requests_made < ?3`,
		identityID, toMillis(at), max)
	if err != nil {
		return false, domain.Unavailable("increment quota", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.Unavailable("increment quota", err)
	}
	return n > 0, nil
}

func (r *QuotaRepo) Get(ctx context.Context, identityID string) (*domain.QuotaCounter, error) {
	var row counterRow
	err := r.db.GetContext(ctx, &row,
		`SELECT identity_id, requests_made, last_request_at FROM quota_counters WHERE identity_id = ?`, identityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("get quota", err)
	}
	return &domain.QuotaCounter{
		IdentityID:    row.IdentityID,
		RequestsMade:  row.RequestsMade,
		LastRequestAt: fromMillis(row.LastRequestAt),
	}, nil
}

func (r *QuotaRepo) DeleteIdleBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM quota_counters WHERE last_request_at < ?`, toMillis(cutoff))
	if err != nil {
		return 0, domain.Unavailable("sweep quota", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
