package vehicles

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

// Repository persists vehicles.
type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Vehicle, int, error)
	Get(ctx context.Context, id int64) (Vehicle, error)
	Create(ctx context.Context, v Vehicle) (Vehicle, error)
	Update(ctx context.Context, id int64, v Vehicle) (before, after Vehicle, err error)
	Delete(ctx context.Context, id int64) (Vehicle, error)
}

// PGRepository is the PostgreSQL-backed Repository.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const vehicleColumns = `id, model, brand, manufacture_year, color, description, plate, storage_location, status`

func (r *PGRepository) List(ctx context.Context, filters ListFilters) ([]Vehicle, int, error) {
	var (
		clauses []string
		args    []any
	)
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		clauses = append(clauses, `(plate ILIKE $`+n+` OR model ILIKE $`+n+` OR brand ILIKE $`+n+`)`)
	}
	if filters.Status != "" {
		args = append(args, filters.Status)
		clauses = append(clauses, `status = $`+strconv.Itoa(len(args)))
	}
	where := ""
	if len(clauses) > 0 {
		where = ` WHERE ` + strings.Join(clauses, ` AND `)
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vehicles`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("vehicles: count: %w", err)
	}

	query := `SELECT ` + vehicleColumns + ` FROM vehicles` + where + ` ORDER BY brand, model, id`
	if filters.PerPage > 0 {
		offset := max((filters.Page-1)*filters.PerPage, 0)
		query += ` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
		args = append(args, filters.PerPage, offset)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("vehicles: list: %w", err)
	}
	list, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Vehicle, error) { return scanVehicle(row) })
	if err != nil {
		return nil, 0, fmt.Errorf("vehicles: scan: %w", err)
	}
	return list, total, nil
}

func (r *PGRepository) Get(ctx context.Context, id int64) (Vehicle, error) {
	v, err := scanVehicle(r.pool.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vehicle{}, shared.ErrNotFound
	}
	if err != nil {
		return Vehicle{}, fmt.Errorf("vehicles: get: %w", err)
	}
	return v, nil
}

func (r *PGRepository) Create(ctx context.Context, v Vehicle) (Vehicle, error) {
	created, err := scanVehicle(r.pool.QueryRow(ctx, `INSERT INTO vehicles (model, brand, manufacture_year, color, description, plate, storage_location, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING `+vehicleColumns, v.Model, v.Brand, v.Year, v.Color, v.Description, v.Plate, v.StorageLocation, v.Status))
	if err != nil {
		return Vehicle{}, mapWriteError(err)
	}
	return created, nil
}

func (r *PGRepository) Update(ctx context.Context, id int64, v Vehicle) (Vehicle, Vehicle, error) {
	var before, after Vehicle
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		before, err = scanVehicle(tx.QueryRow(ctx, `SELECT `+vehicleColumns+` FROM vehicles WHERE id = $1 FOR UPDATE`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return shared.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("vehicles: lock: %w", err)
		}
		after, err = scanVehicle(tx.QueryRow(ctx, `UPDATE vehicles
SET model = $2, brand = $3, manufacture_year = $4, color = $5, description = $6, plate = $7, storage_location = $8, status = $9
WHERE id = $1
RETURNING `+vehicleColumns, id, v.Model, v.Brand, v.Year, v.Color, v.Description, v.Plate, v.StorageLocation, v.Status))
		if err != nil {
			return mapWriteError(err)
		}
		return nil
	})
	if err != nil {
		return Vehicle{}, Vehicle{}, err
	}
	return before, after, nil
}

func (r *PGRepository) Delete(ctx context.Context, id int64) (Vehicle, error) {
	v, err := scanVehicle(r.pool.QueryRow(ctx, `DELETE FROM vehicles WHERE id = $1 RETURNING `+vehicleColumns, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Vehicle{}, shared.ErrNotFound
	}
	if err != nil {
		return Vehicle{}, fmt.Errorf("vehicles: delete: %w", err)
	}
	return v, nil
}

func mapWriteError(err error) error {
	if _, ok := db.IsUniqueViolation(err); ok {
		return shared.Duplicate("Já existe um veículo com esta placa.")
	}
	return fmt.Errorf("vehicles: write: %w", err)
}

func scanVehicle(row pgx.Row) (Vehicle, error) {
	var v Vehicle
	err := row.Scan(&v.ID, &v.Model, &v.Brand, &v.Year, &v.Color, &v.Description, &v.Plate, &v.StorageLocation, &v.Status)
	return v, err
}
