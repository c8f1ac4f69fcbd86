package chat

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 8 << 10
	sendBufferSize = 32
)

// client is one websocket connection.
type client struct {
	participant Participant
	ws          *websocket.Conn
	send        chan []byte
	closed      chan struct{}
}

func (c *client) userID() int64 { return c.participant.ID }

func (c *client) enqueue(payload []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

func (c *client) hangup() { _ = c.ws.Close() }

func (c *client) reply(event string, payload any) {
	frame, err := NewFrame(event, payload)
	if err != nil {
		return
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.enqueue(data)
}

// Socket upgrades requests to chat websocket connections.
type Socket struct {
	service  *Service
	hub      *Hub
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewSocket builds a Socket. allowedOrigins lists the browser origins
// accepted besides the request's own host.
func NewSocket(service *Service, hub *Hub, logger *slog.Logger, allowedOrigins []string) *Socket {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Socket{service: service, hub: hub, logger: logger}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return s
}

// ServeHTTP accepts a connection for the identity held in the session.
func (s *Socket) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity, ok := rbac.IdentityFromSession(shared.SessionFromContext(r.Context()))
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("chat: upgrade", slog.Any("error", err))
		return
	}
	c := &client{
		participant: ParticipantFromIdentity(identity),
		ws:          ws,
		send:        make(chan []byte, sendBufferSize),
		closed:      make(chan struct{}),
	}
	ctx := context.WithoutCancel(r.Context())

	s.hub.register(c)
	if err := s.service.Connect(ctx, c.participant); err != nil {
		s.logger.Error("chat: presence join", slog.Int64("user_id", c.userID()), slog.Any("error", err))
	}

	go s.writePump(c)
	s.readPump(ctx, c)

	close(c.closed)
	s.hub.unregister(c)
	if err := s.service.Disconnect(ctx, c.userID()); err != nil {
		s.logger.Error("chat: presence leave", slog.Int64("user_id", c.userID()), slog.Any("error", err))
	}
}

func (s *Socket) readPump(ctx context.Context, c *client) {
	c.ws.SetReadLimit(maxFrameSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var frame Frame
		if err := c.ws.ReadJSON(&frame); err != nil {
			var (
				syntaxErr *json.SyntaxError
				typeErr   *json.UnmarshalTypeError
			)
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				c.reply(EventError, errorPayload{Message: "Mensagem inválida."})
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("chat: read", slog.Int64("user_id", c.userID()), slog.Any("error", err))
			}
			return
		}
		s.handle(ctx, c, frame)
	}
}

func (s *Socket) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case <-c.closed:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle dispatches one inbound frame. The sender is always the connection's
// own identity.
func (s *Socket) handle(ctx context.Context, c *client, frame Frame) {
	switch frame.Event {
	case EventSendMessage:
		var req sendRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.To == 0 {
			c.reply(EventError, errorPayload{Message: "Destinatário inválido."})
			return
		}
		if _, err := s.service.Send(ctx, c.participant, int64(req.To), req.Text); err != nil {
			s.logger.Warn("chat: send", slog.Int64("user_id", c.userID()), slog.Any("error", err))
			c.reply(EventError, errorPayload{Message: shared.UserSafeMessage(err)})
		}
	case EventLoadMessages:
		var req counterpartRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.To == 0 {
			c.reply(EventError, errorPayload{Message: "Contato inválido."})
			return
		}
		messages, err := s.service.History(ctx, c.userID(), int64(req.To))
		if err != nil {
			s.logger.Error("chat: history", slog.Int64("user_id", c.userID()), slog.Any("error", err))
			c.reply(EventError, errorPayload{Message: shared.UserSafeMessage(err)})
			return
		}
		c.reply(EventLoadMessagesResponse, views(messages))
	case EventCloseSession:
		var req counterpartRequest
		if err := json.Unmarshal(frame.Data, &req); err != nil || req.To == 0 {
			c.reply(EventError, errorPayload{Message: "Contato inválido."})
			return
		}
		if err := s.service.CloseSession(ctx, c.userID(), int64(req.To)); err != nil {
			s.logger.Error("chat: close session", slog.Int64("user_id", c.userID()), slog.Any("error", err))
			c.reply(EventError, errorPayload{Message: shared.UserSafeMessage(err)})
		}
	default:
		c.reply(EventError, errorPayload{Message: "Evento desconhecido."})
	}
}

func views(messages []Message) []MessageView {
	out := make([]MessageView, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.View())
	}
	return out
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, origin := range allowed {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			set[strings.ToLower(origin)] = struct{}{}
		}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if _, ok := set[strings.ToLower(origin)]; ok {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		return strings.EqualFold(u.Host, r.Host)
	}
}
