package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"rainbow-buyers/internal/model"
)

type OTPRepository struct {
	pool *pgxpool.Pool
}

func NewOTPRepository(pool *pgxpool.Pool) *OTPRepository {
	return &OTPRepository{pool: pool}
}

// Replace drops every outstanding code for the email and purpose and stores the
// new one in a single transaction.
func (r *OTPRepository) Replace(ctx context.Context, challenge model.OTPChallenge) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin otp replace: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM otps WHERE email = $1 AND purpose = $2`, challenge.Email, challenge.Purpose); err != nil {
		return fmt.Errorf("delete prior otps: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO otps (id, email, purpose, code, expires_at, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		challenge.ID, challenge.Email, challenge.Purpose, challenge.Code, challenge.ExpiresAt, challenge.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert otp: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit otp replace: %w", err)
	}
	return nil
}

// Consume deletes the matching unexpired code and reports it. The delete is the
// check, so two concurrent callers cannot both succeed.
func (r *OTPRepository) Consume(ctx context.Context, email string, purpose model.OTPPurpose, code string, now time.Time) (model.OTPChallenge, error) {
	var c model.OTPChallenge
	err := r.pool.QueryRow(ctx,
		`DELETE FROM otps
		 WHERE email = $1 AND purpose = $2 AND code = $3 AND expires_at > $4
		 RETURNING id, email, purpose, code, expires_at, created_at`,
		email, purpose, code, now).
		Scan(&c.ID, &c.Email, &c.Purpose, &c.Code, &c.ExpiresAt, &c.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return model.OTPChallenge{}, model.ErrInvalidOrExpiredOTP
	}
	if err != nil {
		return model.OTPChallenge{}, fmt.Errorf("consume otp: %w", err)
	}
	return c, nil
}

func (r *OTPRepository) CleanExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM otps WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("clean expired otps: %w", err)
	}
	return tag.RowsAffected(), nil
}
