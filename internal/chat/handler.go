package chat

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

// Handler serves the chat page, its JSON endpoints and the websocket.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	socket    http.Handler
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Guard
}

// NewHandler builds the chat handler.
func NewHandler(logger *slog.Logger, service *Service, socket http.Handler, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, socket: socket, templates: templates, csrf: csrf, guard: guard}
}

// MountRoutes registers chat routes under /chat. The page and the websocket
// are subject to lockdown; the JSON endpoints only need a session.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Authenticated()...)
		r.Get("/", h.page)
		r.Handle("/ws", h.socket)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.SessionOnly()...)
		r.Get("/contacts", h.contacts)
		r.Get("/history/{id}", h.history)
		r.Post("/sessions/{id}/close", h.closeSession)
	})
}

type pageData struct {
	Me Contact
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	data := pageData{Me: Contact{ID: me.ID, Name: me.Name, Role: me.Role.String(), Online: true}}
	if err := h.templates.Render(w, "pages/chat.html", view.Page(r, h.csrf, "Chat interno", data)); err != nil {
		h.logger.Error("render chat", slog.Any("error", err))
	}
}

func (h *Handler) contacts(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	contacts, err := h.service.Contacts(r.Context(), me)
	if err != nil {
		h.logger.Error("chat contacts", slog.Int64("user_id", me.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, contacts)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	counterpart, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	messages, err := h.service.History(r.Context(), me.ID, counterpart)
	if err != nil {
		h.logger.Error("chat history", slog.Int64("user_id", me.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, views(messages))
}

func (h *Handler) closeSession(w http.ResponseWriter, r *http.Request) {
	me, ok := caller(r)
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	counterpart, err := pathID(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.CloseSession(r.Context(), me.ID, counterpart); err != nil {
		h.logger.Error("chat close session", slog.Int64("user_id", me.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func caller(r *http.Request) (Participant, bool) {
	identity, ok := rbac.IdentityFromSession(shared.SessionFromContext(r.Context()))
	if !ok {
		return Participant{}, false
	}
	return ParticipantFromIdentity(identity), true
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, shared.Invalid("Contato inválido.")
	}
	return id, nil
}
