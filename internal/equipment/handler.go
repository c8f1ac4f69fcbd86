package equipment

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

// Handler serves the equipment inventory.
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

// MountRoutes registers inventory routes under /equipment. Listing is open
// to every signed-in role.
func (h *Handler) MountRoutes(r chi.Router) {
	r.With(h.guard.Roles(rbac.RoleStaff, rbac.RoleManager, rbac.RoleSecurityAdmin)...).Get("/", h.list)
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Roles(rbac.RoleManager, rbac.RoleSecurityAdmin)...)
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

type listData struct {
	Items        []Item
	Paging       shared.Pagination
	Filters      ListFilters
	DangerLevels []string
	Today        time.Time
}

type formData struct {
	ID           int64
	Input        Input
	DangerLevels []string
	Statuses     []string
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	filters := ListFilters{Search: q.Get("q"), DangerLevel: q.Get("danger_level"), Page: page}
	items, paging, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list equipment", slog.Any("error", err))
		h.view.Error(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/equipment_list.html", "Equipamentos", listData{
		Items: items, Paging: paging, Filters: filters, DangerLevels: DangerLevels, Today: time.Now().UTC(),
	})
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, "Novo equipamento", 0, Input{DangerLevel: DangerLow, Status: StatusActive})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	in, ok := h.readInput(w, r)
	if !ok {
		return
	}
	created, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.fail(w, r, "create equipment", err, "/equipment/new")
		return
	}
	view.RedirectWithFlash(w, r, "/equipment", "success", "Equipamento "+created.Name+" cadastrado com sucesso.")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	it, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get equipment", err, "/equipment")
		return
	}
	h.renderForm(w, r, "Editar equipamento", it.ID, inputFrom(it))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	in, ok := h.readInput(w, r)
	if !ok {
		return
	}
	updated, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		h.fail(w, r, "update equipment", err, "/equipment/"+strconv.FormatInt(id, 10)+"/edit")
		return
	}
	view.RedirectWithFlash(w, r, "/equipment", "success", "Equipamento "+updated.Name+" atualizado com sucesso.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	deleted, err := h.service.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, "delete equipment", err, "/equipment")
		return
	}
	view.RedirectWithFlash(w, r, "/equipment", "success", "Equipamento "+deleted.Name+" excluído com sucesso.")
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, title string, id int64, in Input) {
	h.view.HTML(w, r, http.StatusOK, "pages/equipment_form.html", title, formData{
		ID: id, Input: in, DangerLevels: DangerLevels, Statuses: Statuses,
	})
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

func (h *Handler) readInput(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if err := r.ParseForm(); err != nil {
		h.view.Error(w, r, http.StatusBadRequest, "Formulário inválido.")
		return Input{}, false
	}
	qty, err := strconv.Atoi(strings.TrimSpace(r.PostFormValue("quantity")))
	if err != nil {
		qty = -1
	}
	return Input{
		Name:        r.PostFormValue("name"),
		Quantity:    qty,
		ExpiresOn:   r.PostFormValue("expires_on"),
		Description: r.PostFormValue("description"),
		DangerLevel: r.PostFormValue("danger_level"),
		Status:      r.PostFormValue("status"),
	}, true
}
