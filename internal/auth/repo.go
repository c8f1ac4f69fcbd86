package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

// Repository defines persistence operations for auth module.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (Account, error)
}

// PGRepository implements Repository using PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindByEmail fetches an account by its normalised e-mail.
func (r *PGRepository) FindByEmail(ctx context.Context, email string) (Account, error) {
	var (
		acc  Account
		role string
	)
	err := r.pool.QueryRow(ctx, `SELECT id, name, email, password_hash, role FROM users WHERE email = $1`, email).
		Scan(&acc.ID, &acc.Name, &acc.Email, &acc.PasswordHash, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, shared.ErrNotFound
		}
		return Account{}, fmt.Errorf("auth: find by email: %w", err)
	}
	acc.Role = rbac.Role(role)
	return acc, nil
}

var _ Repository = (*PGRepository)(nil)
