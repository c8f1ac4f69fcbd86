package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/guardpost/guardpost/internal/dashboard"
	jobmetrics "github.com/guardpost/guardpost/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// SnapshotRefresher rebuilds the dashboard snapshot and its cache entry.
type SnapshotRefresher interface {
	Refresh(ctx context.Context) (dashboard.Snapshot, error)
}

// DashboardWarmupJob keeps the dashboard cache warm between admin visits.
type DashboardWarmupJob struct {
	Dashboard SnapshotRefresher
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Timeout   time.Duration
	clock     func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(refresher SnapshotRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *DashboardWarmupJob {
	return &DashboardWarmupJob{
		Dashboard: refresher,
		Logger:    logger,
		Metrics:   metrics,
		Timeout:   30 * time.Second,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	tracker := j.metrics().Track(TaskDashboardWarmup)
	defer func() { resultErr = tracker.End(resultErr) }()

	logger := j.logger().With(slog.String("trigger", payload.Trigger))
	start := j.now()

	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}
	snap, err := j.Dashboard.Refresh(ctx)
	if err != nil {
		logger.Error("refresh dashboard", slog.Any("error", err))
		return err
	}
	logger.Info("dashboard warmed",
		slog.Int("users", snap.Totals.Users),
		slog.Int("recent", len(snap.Recent)),
		slog.Duration("duration", j.now().Sub(start)))
	return nil
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
