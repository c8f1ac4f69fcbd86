package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/shared"
)

func newRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestHubRoutesByRecipientAndBroadcast(t *testing.T) {
	hub := NewHub(nil, prometheus.NewRegistry())
	a1, a2, b := &recordingConn{id: 1}, &recordingConn{id: 1}, &recordingConn{id: 2}
	hub.register(a1)
	hub.register(a2)
	hub.register(b)
	assert.Equal(t, 2, hub.Connections(1))
	assert.Equal(t, float64(3), testutil.ToFloat64(hub.gauge))

	frame, err := NewFrame(EventSessionClosed, closedPayload{From: 2})
	require.NoError(t, err)
	hub.Deliver(Envelope{To: 1, Frame: frame})
	assert.Equal(t, 1, a1.count())
	assert.Equal(t, 1, a2.count())
	assert.Equal(t, 0, b.count())

	hub.Deliver(Envelope{To: Broadcast, Frame: frame})
	assert.Equal(t, 1, b.count())

	hub.unregister(a1)
	hub.unregister(a1)
	assert.Equal(t, 1, hub.Connections(1))
	assert.Equal(t, float64(2), testutil.ToFloat64(hub.gauge))
}

func TestHubCountsDroppedFrames(t *testing.T) {
	hub := NewHub(nil, nil)
	slow := &recordingConn{id: 5, full: true}
	hub.register(slow)

	frame, err := NewFrame(EventUserOffline, offlinePayload{ID: 9})
	require.NoError(t, err)
	hub.Deliver(Envelope{To: 5, Frame: frame})

	assert.Equal(t, float64(1), testutil.ToFloat64(hub.dropped))
}

func TestRedisPresenceCountsConnections(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)
	presence := NewRedisPresence(client, "", time.Minute, nil)

	first, err := presence.Join(ctx, 7)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = presence.Join(ctx, 7)
	require.NoError(t, err)
	assert.False(t, first)

	online, err := presence.Online(ctx, []int64{7, 8})
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{7: true, 8: false}, online)

	last, err := presence.Leave(ctx, 7)
	require.NoError(t, err)
	assert.False(t, last)
	last, err = presence.Leave(ctx, 7)
	require.NoError(t, err)
	assert.True(t, last)

	exists, err := client.HExists(ctx, presence.countsKey(presence.instance), "7").Result()
	require.NoError(t, err)
	assert.False(t, exists)

	last, err = presence.Leave(ctx, 7)
	require.NoError(t, err)
	assert.False(t, last)
}

func TestRedisPresenceSumsAcrossProcesses(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)
	a := NewRedisPresence(client, "", time.Minute, nil)
	b := NewRedisPresence(client, "", time.Minute, nil)

	first, err := a.Join(ctx, 7)
	require.NoError(t, err)
	assert.True(t, first)
	first, err = b.Join(ctx, 7)
	require.NoError(t, err)
	assert.False(t, first)

	last, err := a.Leave(ctx, 7)
	require.NoError(t, err)
	assert.False(t, last)
	last, err = b.Leave(ctx, 7)
	require.NoError(t, err)
	assert.True(t, last)
}

func TestRedisPresenceForgetsCrashedProcess(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ttl := 30 * time.Second
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	crashed := NewRedisPresence(client, "", ttl, nil)
	crashed.now = clock
	first, err := crashed.Join(ctx, 7)
	require.NoError(t, err)
	require.True(t, first)

	// The process dies without leaving; its lease runs out.
	now = now.Add(ttl + time.Second)
	mr.FastForward(ttl + time.Second)

	restarted := NewRedisPresence(client, "", ttl, nil)
	restarted.now = clock
	online, err := restarted.Online(ctx, []int64{7})
	require.NoError(t, err)
	assert.False(t, online[7])

	first, err = restarted.Join(ctx, 7)
	require.NoError(t, err)
	assert.True(t, first)
	last, err := restarted.Leave(ctx, 7)
	require.NoError(t, err)
	assert.True(t, last)

	online, err = restarted.Online(ctx, []int64{7})
	require.NoError(t, err)
	assert.False(t, online[7])
}

func TestRedisPresenceHeartbeatKeepsProcessLive(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)

	ttl := 30 * time.Second
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	a := NewRedisPresence(client, "", ttl, nil)
	a.now = clock
	b := NewRedisPresence(client, "", ttl, nil)
	b.now = clock

	_, err := a.Join(ctx, 7)
	require.NoError(t, err)
	now = now.Add(ttl / 2)
	require.NoError(t, a.Heartbeat(ctx))
	now = now.Add(ttl / 2)

	online, err := b.Online(ctx, []int64{7})
	require.NoError(t, err)
	assert.True(t, online[7])
}

func TestRedisPresenceCloseReleasesConnections(t *testing.T) {
	ctx := context.Background()
	client := newRedisClient(t)
	a := NewRedisPresence(client, "", time.Minute, nil)
	b := NewRedisPresence(client, "", time.Minute, nil)

	_, err := a.Join(ctx, 7)
	require.NoError(t, err)
	require.NoError(t, a.Close(ctx))

	online, err := b.Online(ctx, []int64{7})
	require.NoError(t, err)
	assert.False(t, online[7])

	first, err := b.Join(ctx, 7)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestHubCloseAllHangsUpConnections(t *testing.T) {
	hub := NewHub(nil, nil)
	a, b := &recordingConn{id: 1}, &recordingConn{id: 2}
	hub.register(a)
	hub.register(b)

	hub.CloseAll()

	assert.True(t, a.hungUp)
	assert.True(t, b.hungUp)
}

func TestRedisBusDeliversAcrossHubs(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client := newRedisClient(t)

	hubA, hubB := NewHub(nil, nil), NewHub(nil, nil)
	busA := NewRedisBus(client, "", hubA, nil)
	busB := NewRedisBus(client, "", hubB, nil)
	require.NoError(t, busA.Start(ctx))
	require.NoError(t, busB.Start(ctx))
	defer busA.Close()
	defer busB.Close()

	onB := &recordingConn{id: 3}
	hubB.register(onB)

	frame, err := NewFrame(EventReceiveMessage, receivePayload{From: 1, Name: "Alice", Text: "oi"})
	require.NoError(t, err)
	require.NoError(t, busA.Publish(ctx, Envelope{To: 3, Frame: frame}))

	require.Eventually(t, func() bool { return onB.count() == 1 }, 2*time.Second, 10*time.Millisecond)
}

// wsFixture runs the socket behind a stub that binds the identity named in
// the X-Test-User header.
type wsFixture struct {
	server  *httptest.Server
	service *Service
	repo    *memoryRepository
	hub     *Hub
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()
	client := newRedisClient(t)
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	repo := newMemoryRepository(alice, bob, carol)
	hub := NewHub(nil, nil)
	service := NewService(repo, NewMemoryPresence(), NewLocalBus(hub), nil)
	socket := NewSocket(service, hub, nil, nil)

	users := map[string]Participant{"alice": alice, "bob": bob, "carol": carol}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := sessions.Load(r.Context(), r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if p, ok := users[r.Header.Get("X-Test-User")]; ok {
			sess.SetIdentity(p.ID, p.Name, p.Role.String())
		}
		socket.ServeHTTP(w, r.WithContext(shared.ContextWithSession(r.Context(), sess)))
	}))
	t.Cleanup(server.Close)
	return &wsFixture{server: server, service: service, repo: repo, hub: hub}
}

func (f *wsFixture) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")
	header := http.Header{"X-Test-User": []string{user}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var frame Frame
		require.NoError(t, conn.ReadJSON(&frame))
		if frame.Event == event {
			return frame
		}
	}
}

func TestWebsocketMessageRoundTrip(t *testing.T) {
	f := newWSFixture(t)
	aliceConn := f.dial(t, "alice")
	readUntil(t, aliceConn, EventUserOnline)
	bobConn := f.dial(t, "bob")
	online := readUntil(t, aliceConn, EventUserOnline)
	assert.JSONEq(t, `{"id":2,"nome":"Bob","perfil":"Administrador de Segurança"}`, string(online.Data))

	require.NoError(t, aliceConn.WriteJSON(map[string]any{
		"event": EventSendMessage,
		"data":  map[string]any{"para": 2, "texto": "Olá Bob", "de": 3},
	}))

	received := readUntil(t, bobConn, EventReceiveMessage)
	var payload receivePayload
	require.NoError(t, json.Unmarshal(received.Data, &payload))
	assert.Equal(t, int64(1), payload.From, "sender comes from the session")
	assert.Equal(t, "Olá Bob", payload.Text)

	sent := readUntil(t, aliceConn, EventMessageSent)
	assert.Contains(t, string(sent.Data), `"para":2`)

	require.NoError(t, bobConn.WriteJSON(map[string]any{"event": EventLoadMessages, "data": map[string]any{"para": "1"}}))
	history := readUntil(t, bobConn, EventLoadMessagesResponse)
	var views []MessageView
	require.NoError(t, json.Unmarshal(history.Data, &views))
	require.Len(t, views, 1)
	assert.Equal(t, "Olá Bob", views[0].Text)
}

func TestHubCloseAllDisconnectsLiveSockets(t *testing.T) {
	f := newWSFixture(t)
	aliceConn := f.dial(t, "alice")
	readUntil(t, aliceConn, EventUserOnline)

	f.hub.CloseAll()

	require.Eventually(t, func() bool {
		online, err := f.service.presence.Online(context.Background(), []int64{alice.ID})
		return err == nil && !online[alice.ID]
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 0, f.hub.Connections(alice.ID))
}

func TestWebsocketDisconnectAnnouncesOffline(t *testing.T) {
	f := newWSFixture(t)
	aliceConn := f.dial(t, "alice")
	readUntil(t, aliceConn, EventUserOnline)
	carolConn := f.dial(t, "carol")
	readUntil(t, aliceConn, EventUserOnline)

	contacts, err := f.service.Contacts(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, []int64{carol.ID}, contactIDs(contacts))

	require.NoError(t, carolConn.Close())
	offline := readUntil(t, aliceConn, EventUserOffline)
	assert.JSONEq(t, `{"id":3}`, string(offline.Data))

	contacts, err = f.service.Contacts(context.Background(), alice)
	require.NoError(t, err)
	assert.Empty(t, contacts)
}

func TestWebsocketRejectsUnknownEvent(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	require.NoError(t, conn.WriteJSON(map[string]any{"event": "typing"}))

	frame := readUntil(t, conn, EventError)
	assert.Contains(t, string(frame.Data), "Evento desconhecido")
}

func TestWebsocketRequiresIdentity(t *testing.T) {
	f := newWSFixture(t)
	url := "ws" + strings.TrimPrefix(f.server.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)

	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://chat.example.com/"})
	req := httptest.NewRequest(http.MethodGet, "http://app.local/chat/ws", nil)

	req.Header.Set("Origin", "https://chat.example.com")
	assert.True(t, check(req))
	req.Header.Set("Origin", "http://app.local")
	assert.True(t, check(req))
	req.Header.Set("Origin", "https://evil.example.com")
	assert.False(t, check(req))
}
