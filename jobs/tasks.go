package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDashboardWarmup rebuilds the cached dashboard snapshot.
	TaskDashboardWarmup = "dashboard:warmup"
)

// DashboardWarmupPayload names who asked for the warmup, for the job log.
type DashboardWarmupPayload struct {
	Trigger string `json:"trigger"`
}

// NewDashboardWarmupTask constructs a warmup task.
func NewDashboardWarmupTask(trigger string) (*asynq.Task, error) {
	if trigger == "" {
		trigger = "cron"
	}
	data, err := json.Marshal(DashboardWarmupPayload{Trigger: trigger})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDashboardWarmup, data, asynq.Queue(QueueDefault), asynq.MaxRetry(3)), nil
}
