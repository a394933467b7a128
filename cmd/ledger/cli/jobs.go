package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/jobs"
)

// JobsCLI wraps manual management helpers for Asynq jobs.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	opts, err := jobs.RedisOpt(redisAddr)
	if err != nil {
		return nil, err
	}
	client, err := jobs.NewClient(opts)
	if err != nil {
		return nil, err
	}
	return &JobsCLI{client: client, inspector: asynq.NewInspector(opts)}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// TriggerOptions selects the payload of a manually enqueued job.
type TriggerOptions struct {
	Year     int
	Currency string
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	switch name {
	case jobs.TaskLedgerIntegrity:
		if opts.Year == 0 {
			return c.client.EnqueueIntegrity(ctx)
		}
		return c.client.EnqueueIntegrity(ctx, opts.Year)
	case jobs.TaskReportsWarmup:
		return c.client.EnqueueWarmup(ctx, opts.Year, opts.Currency)
	default:
		return nil, fmt.Errorf("jobs cli: unsupported job %s", name)
	}
}

// InspectQueue reports the default queue's depth.
func (c *JobsCLI) InspectQueue(ctx context.Context) (jobs.QueueStats, error) {
	if c == nil || c.inspector == nil {
		return jobs.QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	return jobs.Stats(c.inspector)
}

// ListScheduled returns scheduled task infos for observability.
func (c *JobsCLI) ListScheduled(ctx context.Context, size int) ([]*asynq.TaskInfo, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	if size <= 0 {
		size = 10
	}
	return c.inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(size), asynq.Page(1))
}

func newJobsCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "jobs",
		Short: "Enqueue and inspect background jobs",
	}

	withCLI := func(run func(*cobra.Command, *JobsCLI, []string) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			if !rt.cfg.RedisEnabled() {
				return errors.New("jobs require REDIS_ADDR")
			}
			c, err := NewJobsCLI(rt.cfg.RedisAddr)
			if err != nil {
				return err
			}
			defer func() { _ = c.Close() }()
			return run(cmd, c, args)
		}
	}

	var trigger TriggerOptions
	triggerCmd := &cobra.Command{
		Use:       "trigger JOB",
		Short:     "Enqueue " + jobs.TaskLedgerIntegrity + " or " + jobs.TaskReportsWarmup,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{jobs.TaskLedgerIntegrity, jobs.TaskReportsWarmup},
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			info, err := c.Trigger(cmd.Context(), args[0], trigger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
			return nil
		}),
	}
	triggerCmd.Flags().IntVar(&trigger.Year, "year", 0, "period year (defaults to the current year)")
	triggerCmd.Flags().StringVar(&trigger.Currency, "currency", "", "warmup currency (defaults to the reporting currency)")

	var scheduled int
	statsCmd := &cobra.Command{
		Use:   "stats",
		Short: "Show queue depth and scheduled tasks",
		RunE: withCLI(func(cmd *cobra.Command, c *JobsCLI, args []string) error {
			stats, err := c.InspectQueue(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "queue=%s pending=%d active=%d scheduled=%d retry=%d archived=%d failed_today=%d\n",
				stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived, stats.FailedToday)
			tasks, err := c.ListScheduled(cmd.Context(), scheduled)
			if err != nil {
				return err
			}
			for _, task := range tasks {
				fmt.Fprintf(out, "  %s %s at %s\n", task.ID, task.Type, task.NextProcessAt.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		}),
	}
	statsCmd.Flags().IntVar(&scheduled, "scheduled", 10, "number of scheduled tasks to list")

	cmd.AddCommand(triggerCmd, statsCmd)
	return cmd
}
