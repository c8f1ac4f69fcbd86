package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/shared"
)

// Repository runs the aggregate queries.
type Repository interface {
	Totals(ctx context.Context) (Totals, error)
	CountOperationSince(ctx context.Context, operation string, since time.Time) (int, error)
	UsersByRole(ctx context.Context) ([]Count, error)
	// OperationPerDay counts operation per calendar day in loc since the given instant.
	OperationPerDay(ctx context.Context, operation string, since time.Time, loc *time.Location) ([]Count, error)
	Operations(ctx context.Context) ([]Count, error)
	Recent(ctx context.Context, limit int) ([]RecentEntry, error)
	Grouped(ctx context.Context, entity Entity) ([]Count, error)
	Rows(ctx context.Context, entity Entity, limit int) ([]map[string]any, error)
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Totals(ctx context.Context) (Totals, error) {
	var t Totals
	err := r.pool.QueryRow(ctx, `SELECT
  (SELECT COUNT(*) FROM users),
  (SELECT COUNT(*) FROM vehicles),
  (SELECT COUNT(*) FROM equipment)`).Scan(&t.Users, &t.Vehicles, &t.Equipment)
	if err != nil {
		return Totals{}, fmt.Errorf("dashboard: totals: %w", err)
	}
	return t, nil
}

func (r *PGRepository) CountOperationSince(ctx context.Context, operation string, since time.Time) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM audit_logs WHERE operation = $1 AND occurred_at >= $2`, operation, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("dashboard: count %s: %w", operation, err)
	}
	return n, nil
}

func (r *PGRepository) UsersByRole(ctx context.Context) ([]Count, error) {
	return r.counts(ctx, `SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY role`)
}

func (r *PGRepository) OperationPerDay(ctx context.Context, operation string, since time.Time, loc *time.Location) ([]Count, error) {
	return r.counts(ctx, `SELECT to_char(occurred_at AT TIME ZONE $3, 'YYYY-MM-DD') AS day, COUNT(*)
FROM audit_logs
WHERE operation = $1 AND occurred_at >= $2
GROUP BY day
ORDER BY day`, operation, since.UTC(), loc.String())
}

func (r *PGRepository) Operations(ctx context.Context) ([]Count, error) {
	return r.counts(ctx, `SELECT operation, COUNT(*) FROM audit_logs GROUP BY operation ORDER BY COUNT(*) DESC, operation`)
}

func (r *PGRepository) Recent(ctx context.Context, limit int) ([]RecentEntry, error) {
	rows, err := r.pool.Query(ctx, `SELECT occurred_at, actor_name, actor_role, operation, entity, description
FROM audit_logs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("dashboard: recent: %w", err)
	}
	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RecentEntry, error) {
		var e RecentEntry
		err := row.Scan(&e.At, &e.Actor, &e.Role, &e.Operation, &e.Entity, &e.Description)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: recent scan: %w", err)
	}
	return entries, nil
}

var groupedQueries = map[Entity]string{
	EntityUsers:     `SELECT role, COUNT(*) FROM users GROUP BY role ORDER BY role`,
	EntityVehicles:  `SELECT status, COUNT(*) FROM vehicles GROUP BY status ORDER BY status`,
	EntityEquipment: `SELECT danger_level, COUNT(*) FROM equipment GROUP BY danger_level ORDER BY danger_level`,
}

func (r *PGRepository) Grouped(ctx context.Context, entity Entity) ([]Count, error) {
	query, ok := groupedQueries[entity]
	if !ok {
		return nil, shared.Invalid("Entidade inválida.")
	}
	return r.counts(ctx, query)
}

type rowQuery struct {
	sql     string
	columns []string
}

var rowQueries = map[Entity]rowQuery{
	EntityUsers: {
		sql:     `SELECT id, name, email, role FROM users ORDER BY id DESC LIMIT $1`,
		columns: []string{"id", "nome", "email", "perfil"},
	},
	EntityVehicles: {
		sql:     `SELECT id, brand, model, manufacture_year, status FROM vehicles ORDER BY id DESC LIMIT $1`,
		columns: []string{"id", "marca", "modelo", "ano", "situacao"},
	},
	EntityEquipment: {
		sql:     `SELECT id, name, quantity, status, danger_level FROM equipment ORDER BY id DESC LIMIT $1`,
		columns: []string{"id", "nome", "quantidade", "situacao", "nivel_perigo"},
	},
}

func (r *PGRepository) Rows(ctx context.Context, entity Entity, limit int) ([]map[string]any, error) {
	q, ok := rowQueries[entity]
	if !ok {
		return nil, shared.Invalid("Entidade inválida.")
	}
	rows, err := r.pool.Query(ctx, q.sql, limit)
	if err != nil {
		return nil, fmt.Errorf("dashboard: %s rows: %w", entity, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (map[string]any, error) {
		values, err := row.Values()
		if err != nil {
			return nil, err
		}
		m := make(map[string]any, len(q.columns))
		for i, col := range q.columns {
			m[col] = values[i]
		}
		return m, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: %s scan: %w", entity, err)
	}
	return out, nil
}

func (r *PGRepository) counts(ctx context.Context, query string, args ...any) ([]Count, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dashboard: query: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Count, error) {
		var c Count
		err := row.Scan(&c.Label, &c.Total)
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("dashboard: scan: %w", err)
	}
	return out, nil
}

var _ Repository = (*PGRepository)(nil)
