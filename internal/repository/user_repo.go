package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rainbow-buyers/internal/model"
	"rainbow-buyers/pkg/apierror"
)

const pgUniqueViolation = "23505"

const userColumns = `id, name, email, password_hash, role, is_email_verified,
	avatar, phone, address, deleted_at, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) FindByID(ctx context.Context, id string) (model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by id: %w", err)
	}
	return u, nil
}

// FindByEmail matches the address exactly as stored.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (model.User, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
	u, err := scanUser(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.User{}, model.ErrUserNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("find user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Create(ctx context.Context, u model.User) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, is_email_verified,
		                    avatar, phone, address, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		u.ID, u.Name, u.Email, u.PasswordHash, u.Role, u.IsEmailVerified,
		u.Avatar, u.Phone, u.Address, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return apierror.DuplicateField(duplicateFields(pgErr.ConstraintName)...)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string, at time.Time) error {
	return r.exec(ctx, "mark email verified",
		`UPDATE users SET is_email_verified = true, updated_at = $2 WHERE id = $1`, id, at)
}

func (r *UserRepository) UpdatePassword(ctx context.Context, id string, passwordHash string, at time.Time) error {
	return r.exec(ctx, "update password",
		`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, passwordHash, at)
}

func (r *UserRepository) UpdateAvatar(ctx context.Context, id string, avatar string, at time.Time) error {
	return r.exec(ctx, "update avatar",
		`UPDATE users SET avatar = $2, updated_at = $3 WHERE id = $1`, id, avatar, at)
}

func (r *UserRepository) exec(ctx context.Context, op string, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return model.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &u.Role, &u.IsEmailVerified,
		&u.Avatar, &u.Phone, &u.Address, &u.DeletedAt, &u.CreatedAt, &u.UpdatedAt)
	return u, err
}

func duplicateFields(constraint string) []string {
	switch constraint {
	case "users_email_key", "":
		return []string{"email"}
	default:
		return []string{constraint}
	}
}
