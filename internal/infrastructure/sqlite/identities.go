package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jmoiron/sqlx"
)

type identityRecord struct {
	ID                string `db:"id"`
	Email             string `db:"email"`
	PasswordDigest    string `db:"password_digest"`
	Name              string `db:"name"`
	Verified          bool   `db:"verified"`
	RegisteredAt      int64  `db:"registered_at"`
	SubscriptionLevel int    `db:"subscription_level"`
}

func (r identityRecord) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:                r.ID,
		Email:             r.Email,
		PasswordDigest:    r.PasswordDigest,
		DisplayName:       r.Name,
		Verified:          r.Verified,
		RegisteredAt:      fromMillis(r.RegisteredAt),
		SubscriptionLevel: r.SubscriptionLevel,
	}
}

const identityColumns = `id, email, password_digest, name, verified, registered_at, subscription_level`

type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(db *sqlx.DB) *IdentityRepo { return &IdentityRepo{db: db} }

// Create inserts ident; it returns domain.ErrConflict when the email is taken.
func (r *IdentityRepo) Create(ctx context.Context, ident *domain.Identity) error {
	res, err := r.db.NamedExecContext(ctx, `
INSERT INTO identities (`+identityColumns+`)
VALUES (:id, :email, :password_digest, :name, :verified, :registered_at, :subscription_level)
ON CONFLICT(email) DO NOTHING`, identityRecord{
		ID:                ident.ID,
		Email:             ident.Email,
		PasswordDigest:    ident.PasswordDigest,
		Name:              ident.DisplayName,
		Verified:          ident.Verified,
		RegisteredAt:      toMillis(ident.RegisteredAt),
		SubscriptionLevel: ident.SubscriptionLevel,
	})
	if err != nil {
		return domain.Unavailable("create identity", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("email %s: %w", ident.Email, domain.ErrConflict)
	}
	return nil
}

func (r *IdentityRepo) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return r.get(ctx, "find identity by email", `SELECT `+identityColumns+` FROM identities WHERE email = ?`, email)
}

func (r *IdentityRepo) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	return r.get(ctx, "find identity by id", `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
}

func (r *IdentityRepo) get(ctx context.Context, op, query string, arg any) (*domain.Identity, error) {
	var rec identityRecord
	err := r.db.GetContext(ctx, &rec, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable(op, err)
	}
	return rec.toDomain(), nil
}

// MarkVerified is idempotent.
func (r *IdentityRepo) MarkVerified(ctx context.Context, email string) error {
	return r.update(ctx, "mark verified", `UPDATE identities SET verified = 1 WHERE email = ?`, email)
}

func (r *IdentityRepo) UpdatePassword(ctx context.Context, email, digest string) error {
	return r.update(ctx, "update password", `UPDATE identities SET password_digest = ? WHERE email = ?`, digest, email)
}

func (r *IdentityRepo) SetSubscriptionLevel(ctx context.Context, id string, level int) error {
	return r.update(ctx, "set subscription level", `UPDATE identities SET subscription_level = ? WHERE id = ?`, level, id)
}

func (r *IdentityRepo) update(ctx context.Context, op, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return domain.Unavailable(op, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Delete reports whether a row was removed.
func (r *IdentityRepo) Delete(ctx context.Context, email string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE email = ?`, email)
	if err != nil {
		return false, domain.Unavailable("delete identity", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (r *IdentityRepo) List(ctx context.Context) ([]domain.Identity, error) {
	return r.list(ctx, "list identities", `SELECT `+identityColumns+` FROM identities ORDER BY registered_at`)
}

func (r *IdentityRepo) ListUnverified(ctx context.Context) ([]domain.Identity, error) {
	return r.list(ctx, "list unverified", `SELECT `+identityColumns+` FROM identities WHERE verified = 0 ORDER BY registered_at`)
}

// ListRegisteredBetween returns identities registered in [from, to).
func (r *IdentityRepo) ListRegisteredBetween(ctx context.Context, from, to time.Time) ([]domain.Identity, error) {
	return r.list(ctx, "list registered between", `SELECT `+identityColumns+` FROM identities
WHERE registered_at >= ? AND registered_at < ? ORDER BY registered_at`, toMillis(from), toMillis(to))
}

func (r *IdentityRepo) DeleteUnverified(ctx context.Context) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM identities WHERE verified = 0`)
	if err != nil {
		return 0, domain.Unavailable("delete unverified", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (r *IdentityRepo) list(ctx context.Context, op, query string, args ...any) ([]domain.Identity, error) {
	var recs []identityRecord
	if err := r.db.SelectContext(ctx, &recs, query, args...); err != nil {
		return nil, domain.Unavailable(op, err)
	}
	out := make([]domain.Identity, 0, len(recs))
	for _, rec := range recs {
		out = append(out, *rec.toDomain())
	}
	return out, nil
}
