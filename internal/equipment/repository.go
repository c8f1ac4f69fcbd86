package equipment

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/shared"
)

// Repository persists inventory items.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Item, int, error)
	Get(ctx context.Context, id int64) (Item, error)
	Create(ctx context.Context, it Item) (Item, error)
	Update(ctx context.Context, id int64, it Item) (before, after Item, err error)
	Delete(ctx context.Context, id int64) (Item, error)
}

// PGRepository is the PostgreSQL Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const itemColumns = `id, name, quantity, expires_on, description, danger_level, status`

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Item, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		clauses = append(clauses, `name ILIKE $`+strconv.Itoa(len(args)))
	}
	if filters.DangerLevel != "" {
		args = append(args, filters.DangerLevel)
		clauses = append(clauses, `danger_level = $`+strconv.Itoa(len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = ` WHERE ` + strings.Join(clauses, ` AND `)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM equipment`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("equipment: count: %w", err)
	}
	query := `SELECT ` + itemColumns + ` FROM equipment` + where + ` ORDER BY name, id`
	if filters.PerPage > 0 {
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.PerPage, max((filters.Page-1)*filters.PerPage, 0))
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("equipment: list: %w", err)
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Item, error) { return scanItem(row) })
	if err != nil {
		return nil, 0, fmt.Errorf("equipment: scan: %w", err)
	}
	return items, total, nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM equipment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("equipment: get: %w", err)
	}
	return it, nil
}

func (r *PGRepository) Create(ctx context.Context, it Item) (Item, error) {
	created, err := scanItem(r.pool.QueryRow(ctx, `INSERT INTO equipment (name, quantity, expires_on, description, danger_level, status)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING `+itemColumns, it.Name, it.Quantity, it.ExpiresOn, it.Description, it.DangerLevel, it.Status))
	if err != nil {
		return Item{}, fmt.Errorf("equipment: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Update(ctx context.Context, id int64, it Item) (Item, Item, error) {
	var before, after Item
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		before, err = scanItem(tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM equipment WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("equipment: lock: %w", err)
		}
		after, err = scanItem(tx.QueryRow(ctx, `UPDATE equipment
SET name = $2, quantity = $3, expires_on = $4, description = $5, danger_level = $6, status = $7
WHERE id = $1
RETURNING `+itemColumns, id, it.Name, it.Quantity, it.ExpiresOn, it.Description, it.DangerLevel, it.Status))
		if err != nil {
			return fmt.Errorf("equipment: update: %w", err)
		}
		return nil
	})
	if err != nil {
		return Item{}, Item{}, err
	}
	return before, after, nil
}

func (r *PGRepository) Delete(ctx context.Context, id int64) (Item, error) {
	it, err := scanItem(r.pool.QueryRow(ctx, `DELETE FROM equipment WHERE id = $1 RETURNING `+itemColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Item{}, shared.ErrNotFound
	}
	if err != nil {
		return Item{}, fmt.Errorf("equipment: delete: %w", err)
	}
	return it, nil
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	err := row.Scan(&it.ID, &it.Name, &it.Quantity, &it.ExpiresOn, &it.Description, &it.DangerLevel, &it.Status)
	return it, err
}
