package rbac

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/guardpost/guardpost/internal/shared"
)

const (
	defaultLoginPath = "/login"
	defaultHomePath  = "/"
)

// IdentityStore resolves the current state of a principal. Implementations
// return shared.ErrNotFound when the identity no longer exists.
type IdentityStore interface {
	FindIdentity(ctx context.Context, id int64) (Identity, error)
}

// Middleware wires authentication and role gates for HTTP handlers.
type Middleware struct {
	Identities IdentityStore
	Audit      shared.Auditor
	Logger     *slog.Logger
	LoginPath  string
	HomePath   string
}

// RequireAuthenticated lets the request through only when the session holds
// an identity. Anonymous callers are audited and sent to the login page.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess := shared.SessionFromContext(r.Context())
		if _, ok := IdentityFromSession(sess); ok {
			next.ServeHTTP(w, r)
			return
		}
		m.auditor().Record(r.Context(), shared.OpAccessDenied, shared.EntitySystem,
			fmt.Sprintf("Acesso à URL %s negado. Não logado.", r.URL.Path), nil)
		flash(sess, "warning", "Faça login para acessar esta página.")
		http.Redirect(w, r, m.loginPath(), http.StatusSeeOther)
	})
}

// RequireRole lets the request through only when the identity's current role
// is one of roles. Roles may be given as Role, string or fmt.Stringer.
func (m Middleware) RequireRole(roles ...any) func(http.Handler) http.Handler {
	allowed := NormalizeRoles(roles...)
	allowedValues := make([]string, 0, len(allowed))
	for _, role := range allowed {
		allowedValues = append(allowedValues, role.String())
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess := shared.SessionFromContext(r.Context())
			current, ok := IdentityFromSession(sess)
			if !ok {
				http.Redirect(w, r, m.loginPath(), http.StatusSeeOther)
				return
			}
			identity, err := m.lookup(r.Context(), current)
			if err != nil {
				if errors.Is(err, shared.ErrNotFound) {
					sess.Clear()
					flash(sess, "danger", "Sessão inválida. Faça login novamente.")
					http.Redirect(w, r, m.loginPath(), http.StatusSeeOther)
					return
				}
				m.logger().Error("rbac resolve identity", slog.Int64("user_id", current.ID), slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			if containsRole(allowed, identity.Role) {
				next.ServeHTTP(w, r)
				return
			}
			m.auditor().Record(r.Context(), shared.OpAccessDenied, shared.EntitySystem,
				fmt.Sprintf("Acesso à URL %s negado para o perfil %s.", r.URL.Path, identity.Role),
				map[string]any{
					"rota":              r.URL.Path,
					"perfil_usuario":    identity.Role.String(),
					"perfis_permitidos": allowedValues,
				})
			flash(sess, "danger", "Você não tem permissão para acessar esta página.")
			http.Redirect(w, r, m.homePath(), http.StatusSeeOther)
		})
	}
}

func (m Middleware) lookup(ctx context.Context, current Identity) (Identity, error) {
	if m.Identities == nil {
		return current, nil
	}
	return m.Identities.FindIdentity(ctx, current.ID)
}

func (m Middleware) auditor() shared.Auditor {
	if m.Audit == nil {
		return shared.NopAuditor{}
	}
	return m.Audit
}

func (m Middleware) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}

func (m Middleware) loginPath() string {
	if m.LoginPath == "" {
		return defaultLoginPath
	}
	return m.LoginPath
}

func (m Middleware) homePath() string {
	if m.HomePath == "" {
		return defaultHomePath
	}
	return m.HomePath
}

func containsRole(roles []Role, role Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

func flash(sess *shared.Session, kind, message string) {
	if sess == nil {
		return
	}
	sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
}

// Guard composes the gates in their fixed order: authentication, then
// lockdown, then role.
type Guard struct {
	RBAC     Middleware
	Lockdown func(http.Handler) http.Handler
}

// Authenticated returns the authentication and lockdown gates.
func (g Guard) Authenticated() []func(http.Handler) http.Handler {
	chain := []func(http.Handler) http.Handler{g.RBAC.RequireAuthenticated}
	if g.Lockdown != nil {
		chain = append(chain, g.Lockdown)
	}
	return chain
}

// Roles returns the full gate chain restricted to roles.
func (g Guard) Roles(roles ...any) []func(http.Handler) http.Handler {
	return append(g.Authenticated(), g.RBAC.RequireRole(roles...))
}

// SessionOnly returns the authentication gate alone, for endpoints that are
// not subject to lockdown.
func (g Guard) SessionOnly() []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{g.RBAC.RequireAuthenticated}
}
