// Package chat provides real-time messaging between signed-in staff: presence
// tracking, contact resolution, persisted history and conversation sessions.
package chat

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/guardpost/guardpost/internal/rbac"
)

// Wire event names.
const (
	EventUserOnline           = "user_online"
	EventUserOffline          = "user_offline"
	EventSendMessage          = "send_message"
	EventReceiveMessage       = "receive_message"
	EventMessageSent          = "message_sent"
	EventLoadMessages         = "load_messages"
	EventLoadMessagesResponse = "load_messages_response"
	EventCloseSession         = "close_session"
	EventSessionClosed        = "session_closed"
	EventError                = "error"
)

// Participant is a user as seen by the chat layer.
type Participant struct {
	ID   int64
	Name string
	Role rbac.Role
}

// Contact is one entry of the contact list.
type Contact struct {
	ID     int64  `json:"id"`
	Name   string `json:"nome"`
	Role   string `json:"perfil"`
	Online bool   `json:"online"`
}

// Message is a persisted chat message. Messages are never mutated.
type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Text        string
	SentAt      time.Time
}

// MessageView is the wire form of a history entry.
type MessageView struct {
	From   int64  `json:"de"`
	To     int64  `json:"para"`
	Text   string `json:"texto"`
	SentAt string `json:"horario"`
}

// View converts m to its wire form.
func (m Message) View() MessageView {
	return MessageView{From: m.SenderID, To: m.RecipientID, Text: m.Text, SentAt: formatTime(m.SentAt)}
}

// Session is the open/closed state of a conversation between two users. The
// pair is stored ordered, low id first.
type Session struct {
	ID        int64
	UserLow   int64
	UserHigh  int64
	Active    bool
	CreatedAt time.Time
}

// Pair orders two ids the way sessions are keyed.
func Pair(a, b int64) (low, high int64) {
	if a < b {
		return a, b
	}
	return b, a
}

// Frame is the JSON envelope exchanged over the websocket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewFrame encodes payload into a frame for event.
func NewFrame(event string, payload any) (Frame, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("chat: encode %s: %w", event, err)
	}
	return Frame{Event: event, Data: data}, nil
}

type onlinePayload struct {
	ID   int64  `json:"id"`
	Name string `json:"nome"`
	Role string `json:"perfil"`
}

type offlinePayload struct {
	ID int64 `json:"id"`
}

type receivePayload struct {
	From   int64  `json:"de"`
	Name   string `json:"nome"`
	Text   string `json:"texto"`
	SentAt string `json:"horario"`
}

type sentPayload struct {
	To     int64  `json:"para"`
	Text   string `json:"texto"`
	SentAt string `json:"horario"`
}

type closedPayload struct {
	From int64 `json:"de"`
}

type errorPayload struct {
	Message string `json:"mensagem"`
}

// userRef accepts a user id sent either as a JSON number or a string.
type userRef int64

func (u *userRef) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if raw == "" || raw == "null" {
		*u = 0
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("chat: invalid user id %q", raw)
	}
	*u = userRef(id)
	return nil
}

type sendRequest struct {
	To   userRef `json:"para"`
	Text string  `json:"texto"`
}

type counterpartRequest struct {
	To userRef `json:"para"`
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
