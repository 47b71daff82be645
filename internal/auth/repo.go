package auth

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sojourn-loans/sojourn/internal/shared"
)

// Repository defines user lookup and credential updates.
type Repository interface {
	FindByPhone(ctx context.Context, phone string) (*User, error)
	FindByID(ctx context.Context, id int64) (*User, error)
	UpdatePassword(ctx context.Context, userID int64, passwordHash string, mustReset bool) error
}

// PgRepository is the PostgreSQL backed Repository.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const userColumns = `id, phone_number, full_name, password_hash, role, must_reset_password, is_active, created_at`

func (r *PgRepository) scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.PhoneNumber, &u.FullName, &u.PasswordHash, &u.Role, &u.MustResetPassword, &u.IsActive, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// FindByPhone loads a user by canonical phone number.
func (r *PgRepository) FindByPhone(ctx context.Context, phone string) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE phone_number = $1`, phone))
}

// FindByID loads a user by id.
func (r *PgRepository) FindByID(ctx context.Context, id int64) (*User, error) {
	return r.scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// UpdatePassword replaces the stored credential.
func (r *PgRepository) UpdatePassword(ctx context.Context, userID int64, passwordHash string, mustReset bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1, must_reset_password = $2 WHERE id = $3`, passwordHash, mustReset, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
