package search

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/vehicles"
	"github.com/guardpost/guardpost/internal/view"
)

// Handler serves the administrative search page.
type Handler struct {
	logger  *slog.Logger
	service *Service
	view    view.Renderer
	guard   rbac.Guard
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, renderer view.Renderer, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, view: renderer, guard: guard}
}

// MountRoutes registers the search page under /admin/search.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Roles(rbac.RoleSecurityAdmin)...).Get("/", h.search)
}

type pageData struct {
	Query           Query
	Results         Results
	Searched        bool
	Kinds           []string
	Roles           []rbac.Role
	VehicleStatuses []string
	DangerLevels    []string
}

func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	q := Query{
		Term:            values.Get("q"),
		Kind:            values.Get("tipo"),
		Role:            values.Get("perfil"),
		VehicleStatus:   values.Get("situacao"),
		VehicleLocation: values.Get("local"),
		DangerLevel:     values.Get("nivel"),
	}
	q, results, err := h.service.Search(r.Context(), q)
	if err != nil {
		if shared.IsUserFacing(err) {
			view.RedirectWithFlash(w, r, "/admin/search", "warning", shared.UserSafeMessage(err))
			return
		}
		h.logger.Error("admin search", slog.Any("error", err))
		h.view.Error(w, r, http.StatusInternalServerError, "Erro inesperado na busca administrativa.")
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/search.html", "Busca administrativa", pageData{
		Query:           q,
		Results:         results,
		Searched:        q.Active(),
		Kinds:           Kinds,
		Roles:           rbac.Roles,
		VehicleStatuses: vehicles.Statuses,
		DangerLevels:    equipment.DangerLevels,
	})
}
