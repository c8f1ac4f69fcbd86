package chat

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

// visibleRoles is the role-visibility rule for contact lists.
var visibleRoles = map[rbac.Role][]rbac.Role{
	rbac.RoleStaff:         {rbac.RoleStaff},
	rbac.RoleManager:       {rbac.RoleStaff, rbac.RoleManager},
	rbac.RoleSecurityAdmin: rbac.Roles,
}

// Service implements contacts, messaging, history and presence.
type Service struct {
	repo     Repository
	presence Presence
	bus      Bus
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires a Service.
func NewService(repo Repository, presence Presence, bus Bus, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, presence: presence, bus: bus, logger: logger, now: time.Now}
}

// Connect registers a live connection for p. The first connection of a user
// announces user_online to everyone.
func (s *Service) Connect(ctx context.Context, p Participant) error {
	first, err := s.presence.Join(ctx, p.ID)
	if err != nil {
		return err
	}
	if first {
		s.publish(ctx, Broadcast, EventUserOnline, onlinePayload{ID: p.ID, Name: p.Name, Role: p.Role.String()})
	}
	return nil
}

// Disconnect drops a live connection for userID. The last one announces
// user_offline.
func (s *Service) Disconnect(ctx context.Context, userID int64) error {
	last, err := s.presence.Leave(ctx, userID)
	if err != nil {
		return err
	}
	if last {
		s.publish(ctx, Broadcast, EventUserOffline, offlinePayload{ID: userID})
	}
	return nil
}

// Contacts lists the online users caller may talk to: those visible to the
// caller's role plus those holding an active session with the caller. The
// role is read from the store, not the session.
func (s *Service) Contacts(ctx context.Context, caller Participant) ([]Contact, error) {
	current, err := s.repo.FindParticipant(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	caller = current
	roles := visibleRoles[caller.Role]
	candidates := map[int64]Participant{}
	if len(roles) > 0 {
		visible, err := s.repo.ParticipantsByRole(ctx, roles, caller.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range visible {
			candidates[p.ID] = p
		}
	}
	partners, err := s.repo.ActivePartners(ctx, caller.ID)
	if err != nil {
		return nil, err
	}
	for _, p := range partners {
		candidates[p.ID] = p
	}
	delete(candidates, caller.ID)

	ids := make([]int64, 0, len(candidates))
	for id := range candidates {
		ids = append(ids, id)
	}
	online, err := s.presence.Online(ctx, ids)
	if err != nil {
		return nil, err
	}

	contacts := make([]Contact, 0, len(ids))
	for _, id := range ids {
		if !online[id] {
			continue
		}
		p := candidates[id]
		contacts = append(contacts, Contact{ID: p.ID, Name: p.Name, Role: p.Role.String(), Online: true})
	}
	sort.Slice(contacts, func(i, j int) bool {
		if contacts[i].Name != contacts[j].Name {
			return contacts[i].Name < contacts[j].Name
		}
		return contacts[i].ID < contacts[j].ID
	})
	return contacts, nil
}

// Send stores a message from sender to recipient and notifies both sides.
// Blank text is ignored. Notification failures are logged only.
func (s *Service) Send(ctx context.Context, sender Participant, recipientID int64, text string) (*Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	if recipientID == sender.ID {
		return nil, shared.Invalid("Não é possível enviar mensagens para si mesmo.")
	}
	if _, err := s.repo.FindParticipant(ctx, recipientID); err != nil {
		return nil, err
	}
	msg, err := s.repo.SaveMessage(ctx, sender.ID, recipientID, text, s.now().UTC())
	if err != nil {
		return nil, err
	}
	sentAt := formatTime(msg.SentAt)
	s.publish(ctx, recipientID, EventReceiveMessage, receivePayload{From: sender.ID, Name: sender.Name, Text: msg.Text, SentAt: sentAt})
	s.publish(ctx, sender.ID, EventMessageSent, sentPayload{To: recipientID, Text: msg.Text, SentAt: sentAt})
	return &msg, nil
}

// History returns all messages between caller and counterpart, oldest first.
func (s *Service) History(ctx context.Context, callerID, counterpartID int64) ([]Message, error) {
	messages, err := s.repo.History(ctx, callerID, counterpartID)
	if err != nil {
		return nil, err
	}
	if messages == nil {
		messages = []Message{}
	}
	return messages, nil
}

// CloseSession deactivates the conversation between caller and counterpart
// and notifies the counterpart. History is kept.
func (s *Service) CloseSession(ctx context.Context, callerID, counterpartID int64) error {
	if err := s.repo.DeactivateSession(ctx, callerID, counterpartID); err != nil {
		return err
	}
	s.publish(ctx, counterpartID, EventSessionClosed, closedPayload{From: callerID})
	return nil
}

func (s *Service) publish(ctx context.Context, to int64, event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err == nil {
		err = s.bus.Publish(context.WithoutCancel(ctx), Envelope{To: to, Frame: frame})
	}
	if err != nil {
		s.logger.Error("chat: publish event", slog.String("event", event), slog.Int64("to", to), slog.Any("error", err))
	}
}

// ParticipantFromIdentity adapts a session identity.
func ParticipantFromIdentity(identity rbac.Identity) Participant {
	return Participant{ID: identity.ID, Name: identity.Name, Role: identity.Role}
}
