package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardpost/guardpost/internal/dashboard"
	jobmetrics "github.com/guardpost/guardpost/internal/jobs"
	_ "github.com/guardpost/guardpost/testing"
)

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) Refresh(ctx context.Context) (dashboard.Snapshot, error) {
	f.calls++
	if _, ok := ctx.Deadline(); !ok {
		return dashboard.Snapshot{}, errors.New("expected a deadline")
	}
	return dashboard.Snapshot{Totals: dashboard.Totals{Users: 3}}, f.err
}

func TestDashboardWarmupRefreshes(t *testing.T) {
	refresher := &fakeRefresher{}
	job := NewDashboardWarmupJob(refresher, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	task, err := NewDashboardWarmupTask("")
	require.NoError(t, err)
	var payload DashboardWarmupPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "cron", payload.Trigger)
	assert.Equal(t, TaskDashboardWarmup, task.Type())

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, refresher.calls)
}

func TestDashboardWarmupPropagatesFailure(t *testing.T) {
	boom := errors.New("redis down")
	job := NewDashboardWarmupJob(&fakeRefresher{err: boom}, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	task, err := NewDashboardWarmupTask("guardctl")
	require.NoError(t, err)

	assert.ErrorIs(t, job.Handle(context.Background(), task), boom)
}

func TestDashboardWarmupSkipsRetryOnBadPayload(t *testing.T) {
	refresher := &fakeRefresher{}
	job := NewDashboardWarmupJob(refresher, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	err := job.Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, []byte("{")))

	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, refresher.calls)
}

func TestUnconfiguredWarmupFails(t *testing.T) {
	var job *DashboardWarmupJob
	assert.Error(t, job.Handle(context.Background(), asynq.NewTask(TaskDashboardWarmup, nil)))
}

func TestHealthWithoutInspector(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"queue":"default","pending":0,"active":0,"retry":0}`, rr.Body.String())
}
