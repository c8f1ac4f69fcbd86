package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guardpost/guardpost/internal/platform/db"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

// Repository persists participants, messages and sessions.
type Repository interface {
	FindParticipant(ctx context.Context, id int64) (Participant, error)
	ParticipantsByRole(ctx context.Context, roles []rbac.Role, exclude int64) ([]Participant, error)
	ActivePartners(ctx context.Context, userID int64) ([]Participant, error)
	SaveMessage(ctx context.Context, senderID, recipientID int64, text string, at time.Time) (Message, error)
	History(ctx context.Context, a, b int64) ([]Message, error)
	DeactivateSession(ctx context.Context, a, b int64) error
}

// PGRepository implements Repository on PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewPGRepository constructs a PGRepository.
func NewPGRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// FindParticipant loads a single user.
func (r *PGRepository) FindParticipant(ctx context.Context, id int64) (Participant, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, name, role FROM users WHERE id = $1`, id)
	p, err := scanParticipant(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Participant{}, shared.ErrNotFound
	}
	if err != nil {
		return Participant{}, fmt.Errorf("chat: find participant: %w", err)
	}
	return p, nil
}

// ParticipantsByRole lists users holding any of roles, except exclude.
func (r *PGRepository) ParticipantsByRole(ctx context.Context, roles []rbac.Role, exclude int64) ([]Participant, error) {
	values := make([]string, 0, len(roles))
	for _, role := range roles {
		values = append(values, role.String())
	}
	rows, err := r.pool.Query(ctx, `SELECT id, name, role FROM users
WHERE role = ANY($1) AND id <> $2
ORDER BY name`, values, exclude)
	if err != nil {
		return nil, fmt.Errorf("chat: participants by role: %w", err)
	}
	return collectParticipants(rows)
}

// ActivePartners lists users holding an active session with userID.
func (r *PGRepository) ActivePartners(ctx context.Context, userID int64) ([]Participant, error) {
	rows, err := r.pool.Query(ctx, `SELECT u.id, u.name, u.role
FROM chat_sessions s
JOIN users u ON u.id = CASE WHEN s.user_low = $1 THEN s.user_high ELSE s.user_low END
WHERE s.active AND (s.user_low = $1 OR s.user_high = $1)
ORDER BY u.name`, userID)
	if err != nil {
		return nil, fmt.Errorf("chat: active partners: %w", err)
	}
	return collectParticipants(rows)
}

// SaveMessage opens or reactivates the pair's session and stores the message
// in one transaction.
func (r *PGRepository) SaveMessage(ctx context.Context, senderID, recipientID int64, text string, at time.Time) (Message, error) {
	msg := Message{SenderID: senderID, RecipientID: recipientID, Text: text, SentAt: at}
	low, high := Pair(senderID, recipientID)
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `INSERT INTO chat_sessions (user_low, user_high, active, created_at)
VALUES ($1, $2, TRUE, $3)
ON CONFLICT (user_low, user_high) DO UPDATE SET active = TRUE`, low, high, at); err != nil {
			return fmt.Errorf("chat: upsert session: %w", err)
		}
		if err := tx.QueryRow(ctx, `INSERT INTO chat_messages (sender_id, recipient_id, body, sent_at)
VALUES ($1, $2, $3, $4) RETURNING id`, senderID, recipientID, text, at).Scan(&msg.ID); err != nil {
			return fmt.Errorf("chat: insert message: %w", err)
		}
		return nil
	})
	if err != nil {
		return Message{}, err
	}
	return msg, nil
}

// History returns every message between a and b, oldest first.
func (r *PGRepository) History(ctx context.Context, a, b int64) ([]Message, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, sender_id, recipient_id, body, sent_at
FROM chat_messages
WHERE (sender_id = $1 AND recipient_id = $2) OR (sender_id = $2 AND recipient_id = $1)
ORDER BY sent_at ASC, id ASC`, a, b)
	if err != nil {
		return nil, fmt.Errorf("chat: history: %w", err)
	}
	messages, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Message, error) {
		var m Message
		err := row.Scan(&m.ID, &m.SenderID, &m.RecipientID, &m.Text, &m.SentAt)
		m.SentAt = m.SentAt.UTC()
		return m, err
	})
	if err != nil {
		return nil, fmt.Errorf("chat: scan history: %w", err)
	}
	return messages, nil
}

// DeactivateSession marks the pair's session inactive. A missing session is
// left missing.
func (r *PGRepository) DeactivateSession(ctx context.Context, a, b int64) error {
	low, high := Pair(a, b)
	if _, err := r.pool.Exec(ctx, `UPDATE chat_sessions SET active = FALSE WHERE user_low = $1 AND user_high = $2`, low, high); err != nil {
		return fmt.Errorf("chat: deactivate session: %w", err)
	}
	return nil
}

func collectParticipants(rows pgx.Rows) ([]Participant, error) {
	participants, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Participant, error) {
		return scanParticipant(row)
	})
	if err != nil {
		return nil, fmt.Errorf("chat: scan participants: %w", err)
	}
	return participants, nil
}

func scanParticipant(row pgx.Row) (Participant, error) {
	var (
		p    Participant
		role string
	)
	if err := row.Scan(&p.ID, &p.Name, &role); err != nil {
		return Participant{}, err
	}
	parsed, err := rbac.ParseRole(role)
	if err != nil {
		return Participant{}, err
	}
	p.Role = parsed
	return p, nil
}

var _ Repository = (*PGRepository)(nil)
