package rbac_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	_ "github.com/guardpost/guardpost/testing"
)

type recordedEvent struct {
	Operation   string
	Entity      string
	Description string
	Changes     any
}

type recordingAuditor struct {
	events []recordedEvent
}

func (a *recordingAuditor) Record(ctx context.Context, operation, entity, description string, changes any) {
	a.events = append(a.events, recordedEvent{operation, entity, description, changes})
}

type stubIdentities struct {
	identities map[int64]rbac.Identity
}

func (s stubIdentities) FindIdentity(ctx context.Context, id int64) (rbac.Identity, error) {
	identity, ok := s.identities[id]
	if !ok {
		return rbac.Identity{}, shared.ErrNotFound
	}
	return identity, nil
}

func newSession(t *testing.T) *shared.Session {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	manager := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	sess, err := manager.Load(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	return sess
}

func serve(handler http.Handler, sess *shared.Session, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequireAuthenticatedRedirectsAnonymous(t *testing.T) {
	auditor := &recordingAuditor{}
	mw := rbac.Middleware{Audit: auditor}
	called := false

	rr := serve(mw.RequireAuthenticated(okHandler(&called)), newSession(t), "/vehicles")

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	require.Len(t, auditor.events, 1)
	assert.Equal(t, shared.OpAccessDenied, auditor.events[0].Operation)
	assert.Contains(t, auditor.events[0].Description, "/vehicles")
}

func TestRequireAuthenticatedPassesIdentity(t *testing.T) {
	auditor := &recordingAuditor{}
	mw := rbac.Middleware{Audit: auditor}
	sess := newSession(t)
	sess.SetIdentity(7, "Ana", rbac.RoleManager.String())
	called := false

	rr := serve(mw.RequireAuthenticated(okHandler(&called)), sess, "/")

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, auditor.events)
}

func TestRequireRoleDeniesWithPayload(t *testing.T) {
	auditor := &recordingAuditor{}
	mw := rbac.Middleware{
		Audit:      auditor,
		Identities: stubIdentities{identities: map[int64]rbac.Identity{7: {ID: 7, Name: "Ana", Role: rbac.RoleManager}}},
	}
	sess := newSession(t)
	sess.SetIdentity(7, "Ana", rbac.RoleManager.String())
	called := false

	rr := serve(mw.RequireRole(rbac.RoleSecurityAdmin)(okHandler(&called)), sess, "/users/3/delete")

	assert.False(t, called)
	assert.Equal(t, http.StatusSeeOther, rr.Code)
	assert.Equal(t, "/", rr.Header().Get("Location"))
	require.Len(t, auditor.events, 1)
	event := auditor.events[0]
	assert.Equal(t, shared.OpAccessDenied, event.Operation)
	payload, ok := event.Changes.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Gerente", payload["perfil_usuario"])
	assert.Equal(t, []string{"Administrador de Segurança"}, payload["perfis_permitidos"])
	assert.Equal(t, "/users/3/delete", payload["rota"])
}

func TestRequireRoleAcceptsMixedRoleSpellings(t *testing.T) {
	mw := rbac.Middleware{
		Audit:      &recordingAuditor{},
		Identities: stubIdentities{identities: map[int64]rbac.Identity{1: {ID: 1, Name: "Bob", Role: rbac.RoleSecurityAdmin}}},
	}
	sess := newSession(t)
	sess.SetIdentity(1, "Bob", rbac.RoleSecurityAdmin.String())

	for _, allowed := range []any{rbac.RoleSecurityAdmin, "SecurityAdmin", "ADMIN_SEGURANCA", "administrador de seguranca"} {
		called := false
		rr := serve(mw.RequireRole(allowed)(okHandler(&called)), sess, "/dashboard")
		assert.True(t, called, "allowed=%v", allowed)
		assert.Equal(t, http.StatusOK, rr.Code)
	}
}

func TestRequireRoleClearsSessionOfDeletedIdentity(t *testing.T) {
	auditor := &recordingAuditor{}
	mw := rbac.Middleware{Audit: auditor, Identities: stubIdentities{identities: map[int64]rbac.Identity{}}}
	sess := newSession(t)
	sess.SetIdentity(9, "Ghost", rbac.RoleStaff.String())
	called := false

	rr := serve(mw.RequireRole(rbac.RoleStaff)(okHandler(&called)), sess, "/equipment")

	assert.False(t, called)
	assert.Equal(t, "/login", rr.Header().Get("Location"))
	_, ok := rbac.IdentityFromSession(sess)
	assert.False(t, ok)
	flash := sess.PopFlash()
	require.NotNil(t, flash)
	assert.Contains(t, flash.Message, "Sessão inválida")
	assert.Empty(t, auditor.events)
}

func TestRequireRoleUsesStoredRole(t *testing.T) {
	mw := rbac.Middleware{
		Audit:      &recordingAuditor{},
		Identities: stubIdentities{identities: map[int64]rbac.Identity{4: {ID: 4, Name: "Carol", Role: rbac.RoleStaff}}},
	}
	sess := newSession(t)
	// Session still carries the role granted before a demotion.
	sess.SetIdentity(4, "Carol", rbac.RoleManager.String())
	called := false

	serve(mw.RequireRole(rbac.RoleManager)(okHandler(&called)), sess, "/vehicles")

	assert.False(t, called)
}

func TestGuardOrdersAuthenticationBeforeRole(t *testing.T) {
	auditor := &recordingAuditor{}
	lockdownCalls := 0
	guard := rbac.Guard{
		RBAC: rbac.Middleware{Audit: auditor, Identities: stubIdentities{}},
		Lockdown: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				lockdownCalls++
				next.ServeHTTP(w, r)
			})
		},
	}
	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	chain := guard.Roles(rbac.RoleSecurityAdmin)
	for i := len(chain) - 1; i >= 0; i-- {
		handler = chain[i](handler)
	}

	rr := serve(handler, newSession(t), "/users")

	assert.Equal(t, "/login", rr.Header().Get("Location"))
	assert.Zero(t, lockdownCalls)
	require.Len(t, auditor.events, 1)
}
