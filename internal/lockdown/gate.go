package lockdown

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
)

// BlockedPath is where blocked requests are sent.
const BlockedPath = "/blocked"

// Gate enforces and toggles lockdown.
type Gate struct {
	store  Store
	audit  shared.Auditor
	logger *slog.Logger
}

// NewGate wires a Gate. A nil store falls back to a MemoryStore.
func NewGate(store Store, auditor shared.Auditor, logger *slog.Logger) *Gate {
	if store == nil {
		store = NewMemoryStore()
	}
	if auditor == nil {
		auditor = shared.NopAuditor{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{store: store, audit: auditor, logger: logger}
}

// Active reports the current state. Read errors are reported as active.
func (g *Gate) Active(ctx context.Context) bool {
	active, err := g.store.Active(ctx)
	if err != nil {
		g.logger.Error("lockdown: read state", slog.Any("error", err))
		return true
	}
	return active
}

// Enforce redirects every caller but the security administrator to the
// blocked page while lockdown is active. Blocks are not audited.
func (g *Gate) Enforce(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Active(r.Context()) {
			next.ServeHTTP(w, r)
			return
		}
		identity, ok := rbac.IdentityFromSession(shared.SessionFromContext(r.Context()))
		if ok && identity.Role == rbac.RoleSecurityAdmin {
			next.ServeHTTP(w, r)
			return
		}
		http.Redirect(w, r, BlockedPath, http.StatusSeeOther)
	})
}

// Activate turns lockdown on and records LOCKDOWN_ACTIVATED.
func (g *Gate) Activate(ctx context.Context) error {
	return g.set(ctx, true, shared.OpLockdownActivated, "Modo lockdown ativado.")
}

// Deactivate turns lockdown off and records LOCKDOWN_DEACTIVATED.
func (g *Gate) Deactivate(ctx context.Context) error {
	return g.set(ctx, false, shared.OpLockdownDeactivated, "Modo lockdown desativado.")
}

func (g *Gate) set(ctx context.Context, active bool, operation, description string) error {
	if err := g.store.Set(ctx, active); err != nil {
		return fmt.Errorf("lockdown: set state: %w", err)
	}
	g.audit.Record(ctx, operation, shared.EntitySystem, description, map[string]any{"ativo": active})
	return nil
}
