package auth

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
)

const defaultLoginLimit = 10

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger     *slog.Logger
	service    *Service
	view       view.Renderer
	sessions   *shared.SessionManager
	audit      shared.Auditor
	validator  *validator.Validate
	loginLimit int
}

// NewHandler constructs a Handler instance. loginLimit caps login attempts
// per client IP per minute; zero selects the default.
func NewHandler(logger *slog.Logger, service *Service, renderer view.Renderer, sessions *shared.SessionManager, auditor shared.Auditor, loginLimit int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	if loginLimit <= 0 {
		loginLimit = defaultLoginLimit
	}
	return &Handler{
		logger:     logger,
		service:    service,
		view:       renderer,
		sessions:   sessions,
		audit:      auditor,
		validator:  shared.NewValidator(),
		loginLimit: loginLimit,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.With(httprate.Limit(h.loginLimit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(h.tooManyAttempts),
	)).Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `form:"email" label:"E-mail" validate:"required,email"`
	Password string `form:"password" label:"Senha" validate:"required"`
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	if _, ok := rbac.IdentityFromSession(shared.SessionFromContext(r.Context())); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	h.view.HTML(w, r, http.StatusOK, "pages/login.html", "Entrar", loginForm{})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.view.Error(w, r, http.StatusBadRequest, "Formulário inválido.")
		return
	}
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		h.view.Error(w, r, http.StatusInternalServerError, "Sessão indisponível. Tente novamente.")
		return
	}

	form := loginForm{
		Email:    NormalizeEmail(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if err := shared.ValidateStruct(h.validator, form); err != nil {
		view.RedirectWithFlash(w, r, "/login", "danger", shared.UserSafeMessage(err))
		return
	}

	acc, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	switch {
	case errors.Is(err, shared.ErrInvalidCredentials):
		h.audit.Record(r.Context(), shared.OpLoginFailed, shared.EntityUser,
			fmt.Sprintf("Tentativa de login falhou para o e-mail %s.", form.Email), nil)
		view.RedirectWithFlash(w, r, "/login", "danger", shared.UserSafeMessage(shared.ErrInvalidCredentials))
		return
	case err != nil:
		h.logger.Error("authenticate", slog.Any("error", err))
		h.view.Error(w, r, http.StatusInternalServerError, shared.UserSafeMessage(err))
		return
	}

	h.sessions.Renew(sess)
	sess.SetIdentity(acc.ID, acc.Name, acc.Role.String())
	h.audit.Record(r.Context(), shared.OpLoginSuccess, shared.EntityUser,
		fmt.Sprintf("Usuário %s entrou no sistema.", acc.Email), nil)
	view.RedirectWithFlash(w, r, "/", "success", "Bem-vindo, "+acc.Name+"!")
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if identity, ok := rbac.IdentityFromSession(sess); ok {
		h.audit.Record(r.Context(), shared.OpLogout, shared.EntityUser,
			fmt.Sprintf("Usuário %s saiu do sistema.", identity.Name), nil)
	}
	h.sessions.Destroy(sess)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) tooManyAttempts(w http.ResponseWriter, r *http.Request) {
	h.view.Error(w, r, http.StatusTooManyRequests, "Muitas tentativas de login. Aguarde um minuto.")
}
