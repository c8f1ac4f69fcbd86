package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	_ "github.com/guardpost/guardpost/testing"
)

func newTestService(repo Repository) (*Service, *MemoryPresence, *recordingBus) {
	presence := NewMemoryPresence()
	bus := &recordingBus{}
	svc := NewService(repo, presence, bus, nil)
	return svc, presence, bus
}

func contactIDs(contacts []Contact) []int64 {
	ids := make([]int64, 0, len(contacts))
	for _, c := range contacts {
		ids = append(ids, c.ID)
	}
	return ids
}

func TestContactsFollowRoleVisibilityAndPresence(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newMemoryRepository(alice, bob, carol, dave))
	for _, p := range []Participant{alice, bob, carol, dave} {
		require.NoError(t, svc.Connect(ctx, p))
	}

	staff, err := svc.Contacts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{carol.ID}, contactIDs(staff))

	manager, err := svc.Contacts(ctx, dave)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, carol.ID}, contactIDs(manager))

	admin, err := svc.Contacts(ctx, bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, carol.ID, dave.ID}, contactIDs(admin))
	for _, c := range admin {
		assert.True(t, c.Online)
	}
}

func TestContactsUseStoredRoleOverSession(t *testing.T) {
	ctx := context.Background()
	demoted := bob
	demoted.Role = rbac.RoleStaff
	svc, _, _ := newTestService(newMemoryRepository(alice, demoted, carol, dave))
	for _, p := range []Participant{alice, demoted, carol, dave} {
		require.NoError(t, svc.Connect(ctx, p))
	}

	contacts, err := svc.Contacts(ctx, bob)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{alice.ID, carol.ID}, contactIDs(contacts))

	_, err = svc.Contacts(ctx, Participant{ID: 99, Role: rbac.RoleSecurityAdmin})
	assert.True(t, errors.Is(err, shared.ErrNotFound))
}

func TestContactsIncludeActiveSessionPartners(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newMemoryRepository(alice, bob))
	require.NoError(t, svc.Connect(ctx, alice))
	require.NoError(t, svc.Connect(ctx, bob))

	_, err := svc.Send(ctx, bob, alice.ID, "Olá")
	require.NoError(t, err)

	contacts, err := svc.Contacts(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{bob.ID}, contactIDs(contacts))
}

func TestDisconnectRemovesContactEvenWithActiveSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newMemoryRepository(alice, bob, carol))
	for _, p := range []Participant{alice, bob, carol} {
		require.NoError(t, svc.Connect(ctx, p))
	}
	_, err := svc.Send(ctx, alice, carol.ID, "oi")
	require.NoError(t, err)

	require.NoError(t, svc.Disconnect(ctx, carol.ID))

	for _, peer := range []Participant{alice, bob} {
		contacts, err := svc.Contacts(ctx, peer)
		require.NoError(t, err)
		assert.NotContains(t, contactIDs(contacts), carol.ID)
	}
}

func TestPresenceAnnouncesFirstAndLastConnectionOnly(t *testing.T) {
	ctx := context.Background()
	svc, _, bus := newTestService(newMemoryRepository(alice))

	require.NoError(t, svc.Connect(ctx, alice))
	require.NoError(t, svc.Connect(ctx, alice))
	require.NoError(t, svc.Disconnect(ctx, alice.ID))
	assert.Equal(t, []string{EventUserOnline}, bus.events())

	require.NoError(t, svc.Disconnect(ctx, alice.ID))
	assert.Equal(t, []string{EventUserOnline, EventUserOffline}, bus.events())

	var payload onlinePayload
	require.NoError(t, json.Unmarshal(bus.envelopes[0].Frame.Data, &payload))
	assert.Equal(t, onlinePayload{ID: 1, Name: "Alice", Role: "Funcionário"}, payload)
	assert.Equal(t, Broadcast, bus.envelopes[0].To)
}

func TestSendPersistsAndNotifiesBothSides(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository(alice, bob)
	svc, _, bus := newTestService(repo)
	svc.now = func() time.Time { return time.Date(2024, 5, 1, 12, 30, 0, 0, time.FixedZone("BRT", -3*3600)) }

	msg, err := svc.Send(ctx, alice, bob.ID, "  bom dia  ")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, "bom dia", msg.Text)
	assert.Equal(t, time.UTC, msg.SentAt.Location())

	require.Len(t, bus.envelopes, 2)
	assert.Equal(t, bob.ID, bus.envelopes[0].To)
	assert.Equal(t, EventReceiveMessage, bus.envelopes[0].Frame.Event)
	var received receivePayload
	require.NoError(t, json.Unmarshal(bus.envelopes[0].Frame.Data, &received))
	assert.Equal(t, receivePayload{From: 1, Name: "Alice", Text: "bom dia", SentAt: "2024-05-01T15:30:00Z"}, received)

	assert.Equal(t, alice.ID, bus.envelopes[1].To)
	assert.Equal(t, EventMessageSent, bus.envelopes[1].Frame.Event)
	var sent sentPayload
	require.NoError(t, json.Unmarshal(bus.envelopes[1].Frame.Data, &sent))
	assert.Equal(t, sentPayload{To: 2, Text: "bom dia", SentAt: "2024-05-01T15:30:00Z"}, sent)

	rows := repo.sessionRows(alice.ID, bob.ID)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Active)
}

func TestSendIgnoresBlankText(t *testing.T) {
	repo := newMemoryRepository(alice, bob)
	svc, _, bus := newTestService(repo)

	msg, err := svc.Send(context.Background(), alice, bob.ID, "   \n\t")

	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Empty(t, bus.envelopes)
	assert.Empty(t, repo.sessionRows(alice.ID, bob.ID))
}

func TestSendRejectsUnknownRecipientAndSelf(t *testing.T) {
	svc, _, _ := newTestService(newMemoryRepository(alice))

	_, err := svc.Send(context.Background(), alice, 99, "oi")
	assert.True(t, errors.Is(err, shared.ErrNotFound))

	_, err = svc.Send(context.Background(), alice, alice.ID, "oi")
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestHistoryRoundTripOldestFirst(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newTestService(newMemoryRepository(alice, bob, carol))
	base := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	step := 0
	svc.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Minute)
	}

	_, err := svc.Send(ctx, alice, bob.ID, "primeira")
	require.NoError(t, err)
	_, err = svc.Send(ctx, bob, alice.ID, "segunda")
	require.NoError(t, err)
	_, err = svc.Send(ctx, alice, carol.ID, "outra conversa")
	require.NoError(t, err)

	history, err := svc.History(ctx, bob.ID, alice.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "primeira", history[0].Text)
	assert.Equal(t, "segunda", history[1].Text)
	assert.Equal(t, MessageView{From: 1, To: 2, Text: "primeira", SentAt: "2024-05-01T08:01:00Z"}, history[0].View())

	empty, err := svc.History(ctx, bob.ID, carol.ID)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestCloseSessionIsIdempotentAndKeepsHistory(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryRepository(alice, bob)
	svc, _, bus := newTestService(repo)
	_, err := svc.Send(ctx, alice, bob.ID, "oi")
	require.NoError(t, err)

	require.NoError(t, svc.CloseSession(ctx, alice.ID, bob.ID))
	require.NoError(t, svc.CloseSession(ctx, bob.ID, alice.ID))

	rows := repo.sessionRows(alice.ID, bob.ID)
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Active)

	history, err := svc.History(ctx, alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	last := bus.envelopes[len(bus.envelopes)-1]
	assert.Equal(t, EventSessionClosed, last.Frame.Event)
	assert.Equal(t, alice.ID, last.To)
	assert.JSONEq(t, `{"de":2}`, string(last.Frame.Data))
}

func TestCloseSessionWithoutConversationCreatesNothing(t *testing.T) {
	repo := newMemoryRepository(alice, bob)
	svc, _, bus := newTestService(repo)

	require.NoError(t, svc.CloseSession(context.Background(), alice.ID, bob.ID))

	assert.Empty(t, repo.sessionRows(alice.ID, bob.ID))
	assert.Equal(t, []string{EventSessionClosed}, bus.events())
}

type failingBus struct{}

func (failingBus) Publish(context.Context, Envelope) error { return errors.New("bus down") }

func TestSendSurvivesPublishFailure(t *testing.T) {
	repo := newMemoryRepository(alice, bob)
	svc := NewService(repo, NewMemoryPresence(), failingBus{}, nil)

	msg, err := svc.Send(context.Background(), alice, bob.ID, "oi")

	require.NoError(t, err)
	require.NotNil(t, msg)
	history, err := svc.History(context.Background(), alice.ID, bob.ID)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestUserRefAcceptsNumbersAndStrings(t *testing.T) {
	var req sendRequest
	require.NoError(t, json.Unmarshal([]byte(`{"para":"7","texto":"x"}`), &req))
	assert.EqualValues(t, 7, req.To)
	require.NoError(t, json.Unmarshal([]byte(`{"para":8}`), &req))
	assert.EqualValues(t, 8, req.To)
	assert.Error(t, json.Unmarshal([]byte(`{"para":"abc"}`), &req))
}
