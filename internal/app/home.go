package app

import (
	"context"
	"net/http"

	"github.com/guardpost/guardpost/internal/view"
)

// LockdownState reports whether lockdown is on.
type LockdownState interface {
	Active(ctx context.Context) bool
}

type homeData struct {
	LockdownActive bool
	AppEnv         string
}

func homeHandler(renderer view.Renderer, lockdown LockdownState, cfg *Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data := homeData{}
		if lockdown != nil {
			data.LockdownActive = lockdown.Active(r.Context())
		}
		if cfg != nil {
			data.AppEnv = cfg.AppEnv
		}
		renderer.HTML(w, r, http.StatusOK, "pages/home.html", "Início", data)
	}
}

// staticPage serves a public page with no data.
func staticPage(renderer view.Renderer, name, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renderer.HTML(w, r, http.StatusOK, name, title, nil)
	}
}
