package view

import (
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/web"
)

// Engine renders HTML templates.
type Engine struct {
	templates *template.Template
}

// CurrentUser is the signed-in identity as seen by templates.
type CurrentUser struct {
	ID        int64
	Name      string
	Role      string
	CanManage bool
	IsAdmin   bool
}

// TemplateData contains values shared across templates.
type TemplateData struct {
	Title       string
	CSRFToken   string
	Flash       *shared.FlashMessage
	CurrentPath string
	User        *CurrentUser
	Data        any
}

// NewEngine parses templates at build-time.
func NewEngine() (*Engine, error) {
	funcMap := template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return ""
			}
			return t.Format("02/01/2006 15:04")
		},
		"formatDay": func(t *time.Time) string {
			if t == nil || t.IsZero() {
				return ""
			}
			return t.Format("2006-01-02")
		},
		"roles": func() []rbac.Role { return rbac.Roles },
	}
	tpl, err := template.New("root").Funcs(funcMap).ParseFS(web.Templates, "templates/layouts/*.html", "templates/partials/*.html", "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	return &Engine{templates: tpl}, nil
}

// Render executes a named template with TemplateData.
func (e *Engine) Render(w http.ResponseWriter, name string, data TemplateData) error {
	if e == nil {
		return fmt.Errorf("template engine not initialised")
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	return e.templates.ExecuteTemplate(w, name, data)
}

// Page assembles TemplateData from the request session: the pending flash,
// a CSRF token and the signed-in user.
func Page(r *http.Request, csrf *shared.CSRFManager, title string, data any) TemplateData {
	sess := shared.SessionFromContext(r.Context())
	td := TemplateData{Title: title, CurrentPath: r.URL.Path, Data: data}
	if sess == nil {
		return td
	}
	if csrf != nil {
		td.CSRFToken, _ = csrf.EnsureToken(r.Context(), sess)
	}
	td.Flash = sess.PopFlash()
	if identity, ok := rbac.IdentityFromSession(sess); ok {
		td.User = &CurrentUser{
			ID:        identity.ID,
			Name:      identity.Name,
			Role:      identity.Role.String(),
			CanManage: identity.Role == rbac.RoleManager || identity.Role == rbac.RoleSecurityAdmin,
			IsAdmin:   identity.Role == rbac.RoleSecurityAdmin,
		}
	}
	return td
}
