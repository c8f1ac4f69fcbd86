package dashboard

import (
	"errors"
	"html/template"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
	"github.com/guardpost/guardpost/internal/view/chart"
)

// Handler serves the dashboard page and its drill-down API.
type Handler struct {
	logger  *slog.Logger
	service *Service
	view    view.Renderer
	audit   shared.Auditor
	guard   rbac.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, renderer view.Renderer, auditor shared.Auditor, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	return &Handler{logger: logger, service: service, view: renderer, audit: auditor, guard: guard}
}

// MountRoutes registers routes under /dashboard.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(h.guard.Roles(rbac.RoleSecurityAdmin)...)
	r.Get("/", h.page)
	r.Get("/data/{entity}", h.data)
}

type pageData struct {
	Snapshot   Snapshot
	RoleChart  template.HTML
	LoginChart template.HTML
	OpsChart   template.HTML
}

func (h *Handler) page(w http.ResponseWriter, r *http.Request) {
	snap, err := h.service.Snapshot(r.Context())
	if err != nil {
		h.logger.Error("dashboard snapshot", slog.Any("error", err))
		h.audit.Record(r.Context(), shared.OpError, shared.EntityDashboard,
			"Erro ao carregar dashboard.", map[string]any{"erro": err.Error()})
		h.view.Error(w, r, http.StatusInternalServerError, "Erro ao carregar dashboard.")
		return
	}
	data := pageData{
		Snapshot:   snap,
		RoleChart:  h.render(chart.Bars, snap.UsersByRole, "Usuários por perfil"),
		LoginChart: h.render(chart.Line, snap.LoginsPerDay, "Logins nos últimos 7 dias"),
		OpsChart:   h.render(chart.Bars, snap.Operations, "Operações por tipo"),
	}
	h.view.HTML(w, r, http.StatusOK, "pages/dashboard.html", "Dashboard do Sistema", data)
}

func (h *Handler) render(fn func(chart.Series, chart.Opts) (template.HTML, error), counts []Count, title string) template.HTML {
	if len(counts) == 0 {
		return ""
	}
	out, err := fn(series(counts), chart.Opts{Title: title})
	if err != nil {
		h.logger.Warn("dashboard chart", slog.String("chart", title), slog.Any("error", err))
		return ""
	}
	return out
}

func (h *Handler) data(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	data, err := h.service.EntityData(r.Context(), entity)
	if err != nil {
		if !errors.Is(err, shared.ErrValidation) {
			h.logger.Error("dashboard data", slog.String("entity", entity), slog.Any("error", err))
			h.audit.Record(r.Context(), shared.OpError, shared.EntityDashboard,
				"Erro na API do dashboard para "+entity+".", map[string]any{"erro": err.Error()})
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}
