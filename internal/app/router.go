package app

import (
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	audithttp "github.com/guardpost/guardpost/internal/audit/http"
	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/chat"
	"github.com/guardpost/guardpost/internal/dashboard"
	"github.com/guardpost/guardpost/internal/equipment"
	"github.com/guardpost/guardpost/internal/lockdown"
	"github.com/guardpost/guardpost/internal/observability"
	"github.com/guardpost/guardpost/internal/platform/httpx"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/search"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/users"
	"github.com/guardpost/guardpost/internal/vehicles"
	"github.com/guardpost/guardpost/internal/view"
	"github.com/guardpost/guardpost/jobs"
	"github.com/guardpost/guardpost/web"
)

// RouterParams groups dependencies for building the HTTP router. Nil
// handlers leave their routes unmounted.
type RouterParams struct {
	Logger         *slog.Logger
	Config         *Config
	Renderer       view.Renderer
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Guard          rbac.Guard
	Lockdown       LockdownState

	AuthHandler      *auth.Handler
	LockdownHandler  *lockdown.Handler
	UsersHandler     *users.Handler
	VehiclesHandler  *vehicles.Handler
	EquipmentHandler *equipment.Handler
	DashboardHandler *dashboard.Handler
	ChatHandler      *chat.Handler
	AuditHandler     *audithttp.Handler
	SearchHandler    *search.Handler
	JobHandler       *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with GuardPost defaults.
func NewRouter(params RouterParams) http.Handler {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(params.Renderer.NotFound)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.With(params.Guard.Authenticated()...).Get("/", homeHandler(params.Renderer, params.Lockdown, params.Config))
	r.Get("/sobre", staticPage(params.Renderer, "pages/about.html", "Sobre"))
	r.Get("/contatos", staticPage(params.Renderer, "pages/contact.html", "Contatos"))

	if params.AuthHandler != nil {
		r.Group(params.AuthHandler.MountRoutes)
	}
	if params.LockdownHandler != nil {
		r.Get(lockdown.BlockedPath, params.LockdownHandler.Blocked)
		r.Route("/admin/lockdown", params.LockdownHandler.MountAdminRoutes)
	}
	if params.SearchHandler != nil {
		r.Route("/admin/search", params.SearchHandler.MountRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/users", params.UsersHandler.MountRoutes)
	}
	if params.VehiclesHandler != nil {
		r.Route("/vehicles", params.VehiclesHandler.MountRoutes)
	}
	if params.EquipmentHandler != nil {
		r.Route("/equipment", params.EquipmentHandler.MountRoutes)
	}
	if params.DashboardHandler != nil {
		r.Route("/dashboard", params.DashboardHandler.MountRoutes)
	}
	if params.ChatHandler != nil {
		r.Route("/chat", params.ChatHandler.MountRoutes)
	}
	if params.AuditHandler != nil {
		r.Route("/audit", params.AuditHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.With(params.Guard.Roles(rbac.RoleSecurityAdmin)...).Route("/jobs", params.JobHandler.MountRoutes)
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	staticFS, err := fs.Sub(web.Static, "static")
	if err != nil {
		logger.Error("create static sub filesystem", slog.Any("error", err))
	} else {
		fileServer := http.StripPrefix("/static/", http.FileServer(http.FS(staticFS)))
		r.Handle("/static/*", staticCacheHandler(fileServer))
	}

	return r
}

// staticCacheHandler lets browsers cache embedded assets for an hour.
func staticCacheHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "public, max-age=3600")
		next.ServeHTTP(w, r)
	})
}
