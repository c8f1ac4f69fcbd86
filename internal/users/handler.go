package users

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

// Handler manages user management endpoints.
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

// MountRoutes registers user routes under /users.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Roles(rbac.RoleManager, rbac.RoleSecurityAdmin)...)
		r.Get("/", h.list)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.guard.Roles(rbac.RoleSecurityAdmin)...)
		r.Get("/new", h.newForm)
		r.Post("/", h.create)
		r.Get("/{id}/edit", h.editForm)
		r.Post("/{id}/edit", h.update)
		r.Post("/{id}/delete", h.delete)
	})
}

type formData struct {
	ID    int64
	Input Input
	Roles []rbac.Role
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	filters := ListFilters{Search: r.URL.Query().Get("q"), Page: page}
	users, paging, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list users", slog.Any("error", err))
		h.view.Error(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/users_list.html", "Usuários", map[string]any{
		"Users":  users,
		"Paging": paging,
		"Search": filters.Search,
	})
}

func (h *Handler) newForm(w http.ResponseWriter, r *http.Request) {
	h.view.HTML(w, r, http.StatusOK, "pages/users_form.html", "Novo usuário", formData{Roles: rbac.Roles})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.view.Error(w, r, http.StatusBadRequest, "Formulário inválido.")
		return
	}
	created, err := h.service.Create(r.Context(), readInput(r))
	if err != nil {
		h.fail(w, r, "create user", err, "/users/new")
		return
	}
	view.RedirectWithFlash(w, r, "/users", "success", "Usuário "+created.Name+" criado com sucesso.")
}

func (h *Handler) editForm(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	user, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, "get user", err, "/users")
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/users_form.html", "Editar usuário", formData{
		ID:    user.ID,
		Input: Input{Name: user.Name, Email: user.Email, Role: user.Role.String()},
		Roles: rbac.Roles,
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
		h.fail(w, r, "update user", err, "/users/"+strconv.FormatInt(id, 10)+"/edit")
		return
	}
	view.RedirectWithFlash(w, r, "/users", "success", "Usuário "+updated.Name+" atualizado com sucesso.")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	actor, _ := rbac.IdentityFromSession(shared.SessionFromContext(r.Context()))
	deleted, err := h.service.Delete(r.Context(), actor.ID, id)
	if err != nil {
		h.fail(w, r, "delete user", err, "/users")
		return
	}
	view.RedirectWithFlash(w, r, "/users", "success", "Usuário "+deleted.Name+" excluído com sucesso.")
}

// fail maps err onto the response: user errors flash and go back, missing
// rows render 404, anything else renders a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, action string, err error, back string) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		h.view.NotFound(w, r)
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrDuplicate), errors.Is(err, shared.ErrForbidden):
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
	return Input{
		Name:     r.PostFormValue("name"),
		Email:    r.PostFormValue("email"),
		Password: r.PostFormValue("password"),
		Role:     r.PostFormValue("role"),
	}
}
