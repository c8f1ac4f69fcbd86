package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/rbac"
)

// Repository runs the per-resource lookups.
type Repository interface {
	Users(ctx context.Context, q Query, limit int) ([]UserHit, error)
	Vehicles(ctx context.Context, q Query, limit int) ([]VehicleHit, error)
	Equipment(ctx context.Context, q Query, limit int) ([]EquipmentHit, error)
}

// PGRepository searches the PostgreSQL tables directly.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// where accumulates positional predicates.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(w.args))))
}

func (w *where) sql(orderBy string, limit int) string {
	out := ""
	if len(w.clauses) > 0 {
		out = ` WHERE ` + strings.Join(w.clauses, ` AND `)
	}
	w.args = append(w.args, limit)
	return out + ` ORDER BY ` + orderBy + ` LIMIT $` + strconv.Itoa(len(w.args))
}

func like(term string) string { return "%" + term + "%" }

func (r *PGRepository) Users(ctx context.Context, q Query, limit int) ([]UserHit, error) {
	var w where
	if q.Term != "" {
		w.add(`(name ILIKE ? OR email ILIKE ?)`, like(q.Term))
	}
	if q.Role != "" {
		w.add(`role = ?`, q.Role)
	}
	query := `SELECT id, name, email, role FROM users` + w.sql(`name, id`, limit)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search: users: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (UserHit, error) {
		var (
			hit  UserHit
			role string
		)
		err := row.Scan(&hit.ID, &hit.Name, &hit.Email, &role)
		hit.Role = rbac.Role(role)
		return hit, err
	})
}

func (r *PGRepository) Vehicles(ctx context.Context, q Query, limit int) ([]VehicleHit, error) {
	var w where
	if q.Term != "" {
		w.add(`(model ILIKE ? OR brand ILIKE ? OR plate ILIKE ?)`, like(q.Term))
	}
	if q.VehicleStatus != "" {
		w.add(`status = ?`, q.VehicleStatus)
	}
	if q.VehicleLocation != "" {
		w.add(`storage_location ILIKE ?`, like(q.VehicleLocation))
	}
	query := `SELECT id, model, brand, plate, storage_location, status FROM vehicles` + w.sql(`brand, model, id`, limit)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search: vehicles: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[VehicleHit])
}

func (r *PGRepository) Equipment(ctx context.Context, q Query, limit int) ([]EquipmentHit, error) {
	var w where
	if q.Term != "" {
		w.add(`name ILIKE ?`, like(q.Term))
	}
	if q.DangerLevel != "" {
		w.add(`danger_level = ?`, q.DangerLevel)
	}
	query := `SELECT id, name, quantity, danger_level, status FROM equipment` + w.sql(`name, id`, limit)
	rows, err := r.pool.Query(ctx, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("search: equipment: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[EquipmentHit])
}
