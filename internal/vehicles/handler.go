package vehicles

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

// Handler serves the vehicle register.
type Handler struct {
	logger  *slog.Logger
	service *Service
	view    view.Renderer
	guard   rbac.Guard
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, renderer view.Renderer, guard rbac.Guard) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, view: renderer, guard: guard}
}

// MountRoutes registers vehicle routes under /vehicles.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Roles(rbac.RoleManager, rbac.RoleSecurityAdmin)...)
		r.Get("/", h.list)
		r.Get("/new", h.newForm)
		r.Post("/", h.create)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Roles(rbac.RoleSecurityAdmin)...)
		r.Get("/{id}/edit", h.editForm)
		r.Post("/{id}/edit", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

type formData struct {
	ID       int64
	Input    Input
	Statuses []string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	filters := ListFilters{Search: q.Get("q"), Status: q.Get("status"), Page: page}
	list, paging, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list vehicles", slog.Any("error", err))
		h.view.Error(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/vehicles_list.html", "Veículos", map[string]any{
		"Vehicles": list,
		"Paging":   paging,
		"Filters":  filters,
		"Statuses": Statuses,
	})
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.view.HTML(w, r, http.StatusOK, "pages/vehicles_form.html", "Novo veículo", formData{
		Input:    Input{Status: StatusActive},
		Statuses: Statuses,
	})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.view.Error(w, r, http.StatusBadRequest, "Formulário inválido.")
		return
	}
	created, err := h.service.Create(r.Context(), readInput(r))
	if err != nil {
		h.fail(w, r, "create vehicle", err, "/vehicles/new")
		return
	}
	view.RedirectWithFlash(w, r, "/vehicles", "success", "Veículo "+created.Label()+" cadastrado com sucesso.")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	v, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get vehicle", err, "/vehicles")
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/vehicles_form.html", "Editar veículo", formData{
		ID: v.ID,
		Input: Input{
			Model: v.Model, Brand: v.Brand, Year: v.Year, Color: v.Color, Description: v.Description,
			Plate: v.Plate, StorageLocation: v.StorageLocation, Status: v.Status,
		},
		Statuses: Statuses,
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := r.ParseForm(); err != nil {
		h.view.Error(w, r, http.StatusBadRequest, "Formulário inválido.")
		return
	}
	updated, err := h.service.Update(r.Context(), id, readInput(r))
	if err != nil {
		h.fail(w, r, "update vehicle", err, "/vehicles/"+strconv.FormatInt(id, 10)+"/edit")
		return
	}
	view.RedirectWithFlash(w, r, "/vehicles", "success", "Veículo "+updated.Label()+" atualizado com sucesso.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "delete vehicle", err, "/vehicles")
		return
	}
	view.RedirectWithFlash(w, r, "/vehicles", "success", "Veículo "+deleted.Label()+" excluído com sucesso.")
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error, back string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.view.NotFound(w, r)
	case shared.IsUserFacing(err):
		view.RedirectWithFlash(w, r, back, "danger", shared.UserSafeMessage(err))
	default:
		h.logger.Error(action, slog.Any("error", err))
		h.view.Error(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
	}
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.view.NotFound(w, r)
		return 0, false
	}
	return id, true
}

func readInput(r *http.Request) Input {
	year, _ := strconv.Atoi(strings.TrimSpace(r.PostFormValue("year")))
	return Input{
		Model:           r.PostFormValue("model"),
		Brand:           r.PostFormValue("brand"),
		Year:            year,
		Color:           r.PostFormValue("color"),
		Description:     r.PostFormValue("description"),
		Plate:           r.PostFormValue("plate"),
		StorageLocation: r.PostFormValue("storage_location"),
		Status:          r.PostFormValue("status"),
	}
}
