package lockdown

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

// Handler exposes the lockdown toggles and the blocked page.
type Handler struct {
	logger    *slog.Logger
	gate      *Gate
	templates *view.Engine
	csrf      *shared.CSRFManager
	guard     rbac.Guard
}

// NewHandler builds the lockdown handler.
func NewHandler(logger *slog.Logger, gate *Gate, templates *view.Engine, csrf *shared.CSRFManager, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, gate: gate, templates: templates, csrf: csrf, guard: guard}
}

// MountAdminRoutes registers the toggles; only the security administrator may
// use them.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Roles(rbac.RoleSecurityAdmin)...)
		r.Post("/activate", h.activate)
		r.Post("/deactivate", h.deactivate)
	})
}

// Blocked renders the page shown to callers turned away by Enforce.
func (h *Handler) Blocked(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusForbidden)
	if err := h.templates.Render(w, "pages/blocked.html", view.Page(r, h.csrf, "Acesso bloqueado", nil)); err != nil {
		h.logger.Error("render blocked", slog.Any("error", err))
	}
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Activate(r.Context()); err != nil {
		h.logger.Error("activate lockdown", slog.Any("error", err))
		h.redirectWithFlash(w, r, "danger", "Não foi possível ativar o lockdown.")
		return
	}
	h.redirectWithFlash(w, r, "warning", "Lockdown ativado. Apenas administradores de segurança têm acesso.")
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	if err := h.gate.Deactivate(r.Context()); err != nil {
		h.logger.Error("deactivate lockdown", slog.Any("error", err))
		h.redirectWithFlash(w, r, "danger", "Não foi possível desativar o lockdown.")
		return
	}
	h.redirectWithFlash(w, r, "success", "Lockdown desativado.")
}

func (h *Handler) redirectWithFlash(w http.ResponseWriter, r *http.Request, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
