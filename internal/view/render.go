package view

import (
	"log/slog"
	"net/http"

	"github.com/guardpost/guardpost/internal/shared"
)

// Renderer renders pages for handlers that share an engine and CSRF manager.
type Renderer struct {
	Engine *Engine
	CSRF   *shared.CSRFManager
	Logger *slog.Logger
}

// HTML renders the named page with status.
func (rd Renderer) HTML(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	td := Page(r, rd.CSRF, title, data)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := rd.Engine.Render(w, name, td); err != nil {
		rd.logger().Error("render template", slog.String("template", name), slog.Any("error", err))
	}
}

// Error renders the generic error page. message must be user-safe.
func (rd Renderer) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	rd.HTML(w, r, status, "pages/error.html", http.StatusText(status), map[string]any{"Status": status, "Message": message})
}

// NotFound renders the not-found page.
func (rd Renderer) NotFound(w http.ResponseWriter, r *http.Request) {
	rd.HTML(w, r, http.StatusNotFound, "pages/not_found.html", "Página não encontrada", nil)
}

func (rd Renderer) logger() *slog.Logger {
	if rd.Logger == nil {
		return slog.Default()
	}
	return rd.Logger
}

// RedirectWithFlash queues a flash message and redirects with 303.
func RedirectWithFlash(w http.ResponseWriter, r *http.Request, location, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, location, http.StatusSeeOther)
}
