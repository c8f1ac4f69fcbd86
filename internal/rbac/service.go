package rbac

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/shared"
)

// Service resolves identities from the users table.
type Service struct {
	pool *pgxpool.Pool
}

// NewService constructs a Service backed by the provided pool.
func NewService(pool *pgxpool.Pool) *Service {
	return &Service{pool: pool}
}

// FindIdentity loads the current name and role of a user.
func (s *Service) FindIdentity(ctx context.Context, id int64) (Identity, error) {
	var (
		identity Identity
		role     string
	)
	err := s.pool.QueryRow(ctx, `SELECT id, name, role FROM users WHERE id = $1`, id).Scan(&identity.ID, &identity.Name, &role)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Identity{}, shared.ErrNotFound
		}
		return Identity{}, fmt.Errorf("rbac: find identity: %w", err)
	}
	identity.Role = Role(role)
	return identity, nil
}

var _ IdentityStore = (*Service)(nil)
