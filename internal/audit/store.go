package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore reads and writes audit_logs.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore constructs a PGStore.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Insert writes the entry in a dedicated transaction. The transaction is
// rolled back on any failure.
func (s *PGStore) Insert(ctx context.Context, entry Entry) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("audit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `INSERT INTO audit_logs (occurred_at, actor_id, actor_name, actor_role, operation, entity, description, changes)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.At, entry.ActorID, nullable(entry.ActorName), nullable(entry.ActorRole),
		entry.Operation, entry.Entity, entry.Description, entry.Changes)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("audit: commit: %w", err)
	}
	return nil
}

// List returns entries matching filters, newest first. A non-positive limit
// returns every match.
func (s *PGStore) List(ctx context.Context, filters Filters, limit, offset int) ([]Entry, error) {
	query, args := buildListQuery(filters, limit, offset)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e          Entry
			name, role *string
		)
		if err := rows.Scan(&e.ID, &e.At, &e.ActorID, &name, &role, &e.Operation, &e.Entity, &e.Description, &e.Changes); err != nil {
			return nil, err
		}
		if name != nil {
			e.ActorName = *name
		}
		if role != nil {
			e.ActorRole = *role
		}
		e.At = e.At.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func buildListQuery(filters Filters, limit, offset int) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(`SELECT id, occurred_at, actor_id, actor_name, actor_role, operation, entity, description, changes FROM audit_logs WHERE 1=1`)
	next := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}
	if actor := strings.TrimSpace(filters.Actor); actor != "" {
		b.WriteString(" AND actor_name ILIKE " + next("%"+actor+"%"))
	}
	if op := strings.TrimSpace(filters.Operation); op != "" {
		b.WriteString(" AND operation ILIKE " + next("%"+op+"%"))
	}
	if !filters.From.IsZero() {
		b.WriteString(" AND occurred_at >= " + next(filters.From.UTC()))
	}
	if !filters.To.IsZero() {
		b.WriteString(" AND occurred_at < " + next(filters.To.UTC()))
	}
	b.WriteString(" ORDER BY id DESC")
	if limit > 0 {
		b.WriteString(" LIMIT " + next(limit))
		if offset > 0 {
			b.WriteString(" OFFSET " + next(offset))
		}
	}
	return b.String(), args
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Writer = (*PGStore)(nil)
