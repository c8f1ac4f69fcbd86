package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/guardpost/guardpost/internal/auth"
	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
	_ "github.com/guardpost/guardpost/testing"
)

type stubRepo struct {
	account *auth.Account
}

func (s *stubRepo) FindByEmail(_ context.Context, email string) (auth.Account, error) {
	if s.account == nil || s.account.Email != email {
		return auth.Account{}, shared.ErrNotFound
	}
	return *s.account, nil
}

type auditEvent struct {
	operation string
	actorID   int64
}

type recordingAuditor struct {
	mu     sync.Mutex
	events []auditEvent
}

func (a *recordingAuditor) Record(ctx context.Context, operation, _, _ string, _ any) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, _, _, _ := shared.SessionFromContext(ctx).Identity()
	a.events = append(a.events, auditEvent{operation: operation, actorID: id})
}

type fixture struct {
	router   http.Handler
	sessions *shared.SessionManager
	audit    *recordingAuditor
}

func newFixture(t *testing.T, account *auth.Account, loginLimit int) *fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	templates, err := view.NewEngine()
	if err != nil {
		t.Fatalf("templates: %v", err)
	}
	auditor := &recordingAuditor{}
	renderer := view.Renderer{Engine: templates, CSRF: shared.NewCSRFManager("csrfsecret")}
	handler := auth.NewHandler(nil, auth.NewService(&stubRepo{account: account}), renderer, sessions, auditor, loginLimit)
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return &fixture{router: r, sessions: sessions, audit: auditor}
}

func (f *fixture) do(t *testing.T, req *http.Request, sess *shared.Session) *httptest.ResponseRecorder {
	t.Helper()
	if sess == nil {
		var err error
		sess, err = f.sessions.Load(context.Background(), req)
		if err != nil {
			t.Fatalf("load session: %v", err)
		}
	}
	req = req.WithContext(shared.ContextWithSession(req.Context(), sess))
	res := httptest.NewRecorder()
	f.router.ServeHTTP(res, req)
	return res
}

func loginRequest(email, password string) *http.Request {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func testAccount(t *testing.T) *auth.Account {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &auth.Account{ID: 7, Name: "Bia", Email: "bia@test.local", PasswordHash: string(hashed), Role: rbac.RoleManager}
}

func TestLoginPage(t *testing.T) {
	f := newFixture(t, nil, 0)

	res := f.do(t, httptest.NewRequest(http.MethodGet, "/login", nil), nil)

	if res.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "<form") {
		t.Fatalf("expected login form in body")
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newFixture(t, testAccount(t), 0)
	req := loginRequest("BIA@test.local", "wrongpass")
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}

	res := f.do(t, req, sess)

	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if _, _, _, ok := sess.Identity(); ok {
		t.Fatalf("session must stay anonymous")
	}
	flash := sess.PopFlash()
	if flash == nil || flash.Message != "E-mail ou senha inválidos." {
		t.Fatalf("unexpected flash %+v", flash)
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != (auditEvent{shared.OpLoginFailed, 0}) {
		t.Fatalf("unexpected audit events %+v", f.audit.events)
	}
}

func TestLoginSuccessRenewsSessionAndAudits(t *testing.T) {
	f := newFixture(t, testAccount(t), 0)
	req := loginRequest(" bia@TEST.local ", "correctpass")
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	before := sess.ID

	res := f.do(t, req, sess)

	if res.Code != http.StatusSeeOther || res.Header().Get("Location") != "/" {
		t.Fatalf("expected redirect to /, got %d %q", res.Code, res.Header().Get("Location"))
	}
	if sess.ID == before {
		t.Fatalf("session id must be renewed on login")
	}
	id, name, role, ok := sess.Identity()
	if !ok || id != 7 || name != "Bia" || role != rbac.RoleManager.String() {
		t.Fatalf("unexpected identity %d %q %q %v", id, name, role, ok)
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != (auditEvent{shared.OpLoginSuccess, 7}) {
		t.Fatalf("unexpected audit events %+v", f.audit.events)
	}
}

func TestLoginValidationSkipsAudit(t *testing.T) {
	f := newFixture(t, testAccount(t), 0)

	res := f.do(t, loginRequest("not-an-email", ""), nil)

	if res.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", res.Code)
	}
	if len(f.audit.events) != 0 {
		t.Fatalf("validation failures are not audited: %+v", f.audit.events)
	}
}

func TestLogoutAuditsAndDestroys(t *testing.T) {
	f := newFixture(t, nil, 0)
	req := httptest.NewRequest(http.MethodPost, "/logout", nil)
	sess, err := f.sessions.Load(context.Background(), req)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	sess.SetIdentity(3, "Caio", rbac.RoleStaff.String())

	res := f.do(t, req, sess)

	if res.Header().Get("Location") != "/login" {
		t.Fatalf("expected redirect to /login, got %q", res.Header().Get("Location"))
	}
	if len(f.audit.events) != 1 || f.audit.events[0] != (auditEvent{shared.OpLogout, 3}) {
		t.Fatalf("unexpected audit events %+v", f.audit.events)
	}
}

func TestLoginRateLimited(t *testing.T) {
	f := newFixture(t, testAccount(t), 2)

	for i := 0; i < 2; i++ {
		if res := f.do(t, loginRequest("bia@test.local", "wrongpass"), nil); res.Code != http.StatusSeeOther {
			t.Fatalf("attempt %d: expected 303, got %d", i, res.Code)
		}
	}
	res := f.do(t, loginRequest("bia@test.local", "correctpass"), nil)
	if res.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", res.Code)
	}
}
