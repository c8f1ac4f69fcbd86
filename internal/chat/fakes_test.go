package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

type pairKey struct{ low, high int64 }

// memoryRepository is an in-memory Repository for tests.
type memoryRepository struct {
	mu       sync.Mutex
	users    map[int64]Participant
	messages []Message
	sessions map[pairKey]*Session
	nextID   int64
}

func newMemoryRepository(users ...Participant) *memoryRepository {
	r := &memoryRepository{users: map[int64]Participant{}, sessions: map[pairKey]*Session{}}
	for _, u := range users {
		r.users[u.ID] = u
	}
	return r
}

func (r *memoryRepository) FindParticipant(_ context.Context, id int64) (Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.users[id]
	if !ok {
		return Participant{}, shared.ErrNotFound
	}
	return p, nil
}

func (r *memoryRepository) ParticipantsByRole(_ context.Context, roles []rbac.Role, exclude int64) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Participant
	for _, u := range r.users {
		if u.ID == exclude {
			continue
		}
		for _, role := range roles {
			if u.Role == role {
				out = append(out, u)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepository) ActivePartners(_ context.Context, userID int64) ([]Participant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Participant
	for key, s := range r.sessions {
		if !s.Active {
			continue
		}
		switch userID {
		case key.low:
			out = append(out, r.users[key.high])
		case key.high:
			out = append(out, r.users[key.low])
		}
	}
	return out, nil
}

func (r *memoryRepository) SaveMessage(_ context.Context, senderID, recipientID int64, text string, at time.Time) (Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	low, high := Pair(senderID, recipientID)
	key := pairKey{low, high}
	if s, ok := r.sessions[key]; ok {
		s.Active = true
	} else {
		r.nextID++
		r.sessions[key] = &Session{ID: r.nextID, UserLow: low, UserHigh: high, Active: true, CreatedAt: at}
	}
	r.nextID++
	msg := Message{ID: r.nextID, SenderID: senderID, RecipientID: recipientID, Text: text, SentAt: at}
	r.messages = append(r.messages, msg)
	return msg, nil
}

func (r *memoryRepository) History(_ context.Context, a, b int64) ([]Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Message
	for _, m := range r.messages {
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.Before(out[j].SentAt) })
	return out, nil
}

func (r *memoryRepository) DeactivateSession(_ context.Context, a, b int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	low, high := Pair(a, b)
	if s, ok := r.sessions[pairKey{low, high}]; ok {
		s.Active = false
	}
	return nil
}

func (r *memoryRepository) sessionRows(a, b int64) []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	low, high := Pair(a, b)
	if s, ok := r.sessions[pairKey{low, high}]; ok {
		return []Session{*s}
	}
	return nil
}

// recordingBus captures published envelopes.
type recordingBus struct {
	mu        sync.Mutex
	envelopes []Envelope
}

func (b *recordingBus) Publish(_ context.Context, env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envelopes = append(b.envelopes, env)
	return nil
}

func (b *recordingBus) events() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.envelopes))
	for _, env := range b.envelopes {
		out = append(out, env.Frame.Event)
	}
	return out
}

// recordingConn is a hub connection that keeps every payload.
type recordingConn struct {
	id       int64
	mu       sync.Mutex
	payloads [][]byte
	full     bool
	hungUp   bool
}

func (c *recordingConn) userID() int64 { return c.id }

func (c *recordingConn) enqueue(payload []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return false
	}
	c.payloads = append(c.payloads, payload)
	return true
}

func (c *recordingConn) hangup() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hungUp = true
}

func (c *recordingConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

var (
	alice = Participant{ID: 1, Name: "Alice", Role: rbac.RoleStaff}
	bob   = Participant{ID: 2, Name: "Bob", Role: rbac.RoleSecurityAdmin}
	carol = Participant{ID: 3, Name: "Carol", Role: rbac.RoleStaff}
	dave  = Participant{ID: 4, Name: "Dave", Role: rbac.RoleManager}
)
