package users

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

// Repository persists users.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]User, int, error)
	Get(ctx context.Context, id int64) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Update(ctx context.Context, id int64, apply func(*User) error) (before, after User, err error)
	Delete(ctx context.Context, id int64) (User, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const userColumns = `id, name, email, password_hash, role, created_at, updated_at`

// List returns a page of users ordered by name and the total match count.
func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]User, int, error) {
	where := ""
	args := []any{}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where = ` WHERE name ILIKE $1 OR email ILIKE $1`
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("users: count: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users` + where + ` ORDER BY name, id`
	if filters.PerPage > 0 {
		offset := (filters.Page - 1) * filters.PerPage
		if offset < 0 {
			offset = 0
		}
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.PerPage, offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("users: list: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) { return scanUser(row) })
	if err != nil {
		return nil, 0, fmt.Errorf("users: scan: %w", err)
	}
	return users, total, nil
}

// Get loads one user.
func (r *PGRepository) Get(ctx context.Context, id int64) (User, error) {
	user, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: get: %w", err)
	}
	return user, nil
}

// Create inserts user.
func (r *PGRepository) Create(ctx context.Context, user User) (User, error) {
	created, err := scanUser(r.pool.QueryRow(ctx, `INSERT INTO users (name, email, password_hash, role, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
RETURNING `+userColumns, user.Name, user.Email, user.PasswordHash, user.Role.String()))
	if err != nil {
		return User{}, mapWriteError(err)
	}
	return created, nil
}

// Update locks the row, lets apply mutate it and writes it back in one
// transaction.
func (r *PGRepository) Update(ctx context.Context, id int64, apply func(*User) error) (User, User, error) {
	var before, after User
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		current, err := scanUser(tx.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("users: lock: %w", err)
		}
		before = current
		if err := apply(&current); err != nil {
			return err
		}
		after, err = scanUser(tx.QueryRow(ctx, `UPDATE users SET name = $2, email = $3, password_hash = $4, role = $5, updated_at = NOW()
WHERE id = $1
RETURNING `+userColumns, id, current.Name, current.Email, current.PasswordHash, current.Role.String()))
		if err != nil {
			return mapWriteError(err)
		}
		return nil
	})
	if err != nil {
		return User{}, User{}, err
	}
	return before, after, nil
}

// Delete removes a user and returns the deleted row.
func (r *PGRepository) Delete(ctx context.Context, id int64) (User, error) {
	deleted, err := scanUser(r.pool.QueryRow(ctx, `DELETE FROM users WHERE id = $1 RETURNING `+userColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, shared.ErrNotFound
	}
	if err != nil {
		return User{}, fmt.Errorf("users: delete: %w", err)
	}
	return deleted, nil
}

func mapWriteError(err error) error {
	if _, ok := db.IsUniqueViolation(err); ok {
		return shared.Duplicate("Já existe um usuário com este e-mail.")
	}
	return fmt.Errorf("users: write: %w", err)
}

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		role string
	)
	if err := row.Scan(&u.ID, &u.Name, &u.Email, &u.PasswordHash, &role, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return User{}, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return User{}, err
	}
	u.Role = parsed
	return u, nil
}

var _ Repository = (*PGRepository)(nil)
