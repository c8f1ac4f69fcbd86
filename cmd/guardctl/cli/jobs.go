package cli

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/guardpost/guardpost/jobs"
)

// JobQueue enqueues tasks by name and reports queue depth.
type JobQueue interface {
	Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error)
}

// JobsClient talks to the asynq queue directly.
type JobsClient struct {
	client    *asynq.Client
	inspector *asynq.Inspector
}

// NewJobsClient opens an asynq client and inspector on the same Redis.
func NewJobsClient(opt asynq.RedisClientOpt) *JobsClient {
	return &JobsClient{client: asynq.NewClient(opt), inspector: asynq.NewInspector(opt)}
}

// Close releases both connections.
func (c *JobsClient) Close() error {
	var err error
	if c.inspector != nil {
		err = errors.Join(err, c.inspector.Close())
	}
	if c.client != nil {
		err = errors.Join(err, c.client.Close())
	}
	return err
}

// Trigger enqueues a supported job with the "manual" trigger.
func (c *JobsClient) Trigger(ctx context.Context, name string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs: client not configured")
	}
	var (
		task *asynq.Task
		err  error
	)
	switch name {
	case jobs.TaskDashboardWarmup:
		task, err = jobs.NewDashboardWarmupTask("manual")
	default:
		return nil, fmt.Errorf("jobs: unsupported job %s", name)
	}
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// QueueStats summarises the default queue.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Failed    int
}

// InspectQueue reports the default queue counters.
func (c *JobsClient) InspectQueue(context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
		stats.Failed = info.Failed
	}
	return stats, nil
}

// ListScheduled returns the first size scheduled tasks.
func (c *JobsClient) ListScheduled(_ context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCommand(r *runner) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect and trigger background jobs",
	}
	var size int
	scheduled := &cobra.Command{
		Use:   "scheduled",
		Short: "List scheduled tasks",
		Args:  cobra.NoArgs,
		RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
			tasks, err := env.Jobs.ListScheduled(cmd.Context(), size)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tNEXT")
			for _, t := range tasks {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
			}
			return tw.Flush()
		}),
	}
	scheduled.Flags().IntVar(&size, "size", 10, "number of tasks to list")

	cmd.AddCommand(
		&cobra.Command{
			Use:       "trigger <job>",
			Short:     "Enqueue a job now",
			Args:      cobra.ExactArgs(1),
			ValidArgs: []string{jobs.TaskDashboardWarmup},
			RunE: r.run(func(cmd *cobra.Command, env *Env, args []string) error {
				info, err := env.Jobs.Trigger(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show queue counters",
			Args:  cobra.NoArgs,
			RunE: r.run(func(cmd *cobra.Command, env *Env, _ []string) error {
				stats, err := env.Jobs.InspectQueue(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queue=%s pending=%d active=%d scheduled=%d retry=%d failed=%d\n",
					stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Failed)
				return nil
			}),
		},
		scheduled,
	)
	return cmd
}
