package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-identity-quota/internal/domain"
	"github.com/jmoiron/sqlx"
)

type codeRecord struct {
	Email     string `db:"email"`
	Code      string `db:"code"`
	CreatedAt int64  `db:"created_at"`
}

type OneTimeCodeRepo struct {
	db *sqlx.DB
}

func NewOneTimeCodeRepo(db *sqlx.DB) *OneTimeCodeRepo { return &OneTimeCodeRepo{db: db} }

// Put upserts the single code for c.Email.
func (r *OneTimeCodeRepo) Put(ctx context.Context, c domain.OneTimeCode) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO one_time_codes (email, code, created_at) VALUES (?, ?, ?)
ON CONFLICT(email) DO UPDATE SET code = excluded.code, created_at = excluded.created_at`,
		c.Email, c.Code, toNanos(c.CreatedAt))
	if err != nil {
		return domain.Unavailable("put code", err)
	}
	return nil
}

func (r *OneTimeCodeRepo) Get(ctx context.Context, email string) (*domain.OneTimeCode, error) {
	var rec codeRecord
	err := r.db.GetContext(ctx, &rec, `SELECT email, code, created_at FROM one_time_codes WHERE email = ?`, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("get code", err)
	}
	return &domain.OneTimeCode{Email: rec.Email, Code: rec.Code, CreatedAt: fromNanos(rec.CreatedAt)}, nil
}

func (r *OneTimeCodeRepo) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM one_time_codes WHERE created_at < ?`, toNanos(cutoff))
	if err != nil {
		return 0, domain.Unavailable("sweep codes", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
