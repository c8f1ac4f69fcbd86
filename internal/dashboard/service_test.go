package dashboard

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/rbac"
	"github.com/guardpost/guardpost/internal/shared"
	"github.com/guardpost/guardpost/internal/view"
	_ "github.com/guardpost/guardpost/testing"
)

type stubRepo struct {
	loads     atomic.Int32
	gate      chan struct{}
	since     time.Time
	loginDays []Count
	fail      error
}

func (s *stubRepo) Totals(context.Context) (Totals, error) {
	s.loads.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return Totals{Users: 3, Vehicles: 2, Equipment: 5}, s.fail
}

func (s *stubRepo) CountOperationSince(_ context.Context, op string, since time.Time) (int, error) {
	s.since = since
	if op != shared.OpAccessDenied {
		return 0, errors.New("unexpected operation " + op)
	}
	return 4, nil
}

func (s *stubRepo) UsersByRole(context.Context) ([]Count, error) {
	return []Count{{Label: "Funcionário", Total: 2}, {Label: "Gerente", Total: 1}}, nil
}

func (s *stubRepo) OperationPerDay(context.Context, string, time.Time, *time.Location) ([]Count, error) {
	return s.loginDays, nil
}

func (s *stubRepo) Operations(context.Context) ([]Count, error) {
	return []Count{{Label: shared.OpLoginSuccess, Total: 9}}, nil
}

func (s *stubRepo) Recent(context.Context, int) ([]RecentEntry, error) {
	return []RecentEntry{{Actor: "Sistema", Operation: shared.OpLockdownActivated}}, nil
}

func (s *stubRepo) Grouped(_ context.Context, entity Entity) ([]Count, error) {
	return []Count{{Label: string(entity), Total: 1}}, nil
}

func (s *stubRepo) Rows(context.Context, Entity, int) ([]map[string]any, error) {
	return nil, nil
}

func newCache(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute, nil)
}

func saoPaulo(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)
	return loc
}

func TestSnapshotAggregatesAndCaches(t *testing.T) {
	repo := &stubRepo{loginDays: []Count{{Label: "2024-05-09", Total: 2}}}
	loc := saoPaulo(t)
	svc := NewService(repo, newCache(t), loc, nil)
	svc.now = func() time.Time { return time.Date(2024, 5, 10, 2, 0, 0, 0, time.UTC) }

	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Totals{Users: 3, Vehicles: 2, Equipment: 5}, snap.Totals)
	assert.Equal(t, 4, snap.DeniedToday)
	assert.True(t, repo.since.Equal(time.Date(2024, 5, 9, 0, 0, 0, 0, loc)), "today starts at local midnight")
	require.Len(t, snap.LoginsPerDay, loginWindowDays)
	assert.Equal(t, Count{Label: "2024-05-03", Total: 0}, snap.LoginsPerDay[0])
	assert.Equal(t, Count{Label: "2024-05-09", Total: 2}, snap.LoginsPerDay[6])
	assert.Len(t, snap.Recent, 1)

	_, err = svc.Snapshot(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 1, repo.loads.Load(), "second call is served from cache")

	_, err = svc.Refresh(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 2, repo.loads.Load())
}

func TestSnapshotSharesConcurrentLoads(t *testing.T) {
	repo := &stubRepo{gate: make(chan struct{})}
	svc := NewService(repo, NewCache(nil, 0, nil), nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Snapshot(context.Background())
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return repo.loads.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, repo.loads.Load(), "callers wait on the in-flight load")
	close(repo.gate)
	wg.Wait()
}

func TestSnapshotPropagatesFailure(t *testing.T) {
	repo := &stubRepo{fail: errors.New("db down")}
	svc := NewService(repo, newCache(t), nil, nil)

	_, err := svc.Snapshot(context.Background())

	require.Error(t, err)
}

func TestEntityData(t *testing.T) {
	svc := NewService(&stubRepo{}, nil, nil, nil)

	data, err := svc.EntityData(context.Background(), "veiculos")
	require.NoError(t, err)
	assert.Equal(t, EntityVehicles, data.Entity)
	assert.Equal(t, "bar", data.Chart.Type)
	assert.Equal(t, []string{"vehicles"}, data.Chart.Labels)
	assert.NotNil(t, data.Table)

	users, err := svc.EntityData(context.Background(), "users")
	require.NoError(t, err)
	assert.Equal(t, "pie", users.Chart.Type)

	_, err = svc.EntityData(context.Background(), "produtos")
	assert.True(t, errors.Is(err, shared.ErrValidation))
}

func TestDataEndpoint(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	h := NewHandler(nil, NewService(&stubRepo{}, nil, nil, nil), view.Renderer{}, nil, rbac.Guard{})
	router := chi.NewRouter()
	router.Route("/dashboard", h.MountRoutes)

	get := func(role rbac.Role, target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		sess, err := sessions.Load(context.Background(), req)
		require.NoError(t, err)
		sess.SetIdentity(1, "Ana", role.String())
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		return rr
	}

	rr := get(rbac.RoleSecurityAdmin, "/dashboard/data/equipamentos")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"entity":"equipment","chart":{"type":"bar","labels":["equipment"],"values":[1]},"table":[]}`, rr.Body.String())

	rr = get(rbac.RoleSecurityAdmin, "/dashboard/data/produtos")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = get(rbac.RoleManager, "/dashboard/data/users")
	assert.Equal(t, http.StatusSeeOther, rr.Code)
}
