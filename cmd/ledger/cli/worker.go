package cli

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/app"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/jobs"
)

func newWorkerCommand(rt *runtime) *cobra.Command {
	var integritySpec, warmupSpec string
	var concurrency int
	var shutdownTimeout time.Duration
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the background job worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				rt.logger.Info("test mode detected, skipping worker startup")
				return nil
			}
			if !rt.cfg.RedisEnabled() {
				return errors.New("worker requires REDIS_ADDR")
			}
			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			metrics := jobmetrics.NewMetrics(l.Metrics.Registerer())
			integrityJob := jobs.NewIntegrityJob(l.Ledger, rt.logger, metrics)
			warmupJob := jobs.NewWarmupJob(l.Reports, rt.logger, metrics)

			var schedules []jobs.Schedule
			if integritySpec != "" {
				task, err := jobs.NewIntegrityTask()
				if err != nil {
					return err
				}
				schedules = append(schedules, jobs.Schedule{Cron: integritySpec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
			}
			if warmupSpec != "" {
				task, err := jobs.NewWarmupTask(0, "")
				if err != nil {
					return err
				}
				schedules = append(schedules, jobs.Schedule{Cron: warmupSpec, Task: task, Options: []asynq.Option{asynq.MaxRetry(3)}})
			}

			redisOpt, err := jobs.RedisOpt(rt.cfg.RedisAddr)
			if err != nil {
				return err
			}
			worker, err := jobs.NewWorker(jobs.WorkerConfig{
				Redis:           redisOpt,
				Logger:          rt.logger,
				Concurrency:     concurrency,
				ShutdownTimeout: shutdownTimeout,
				Tasks: map[string]asynq.HandlerFunc{
					jobs.TaskLedgerIntegrity: integrityJob.Handle,
					jobs.TaskReportsWarmup:   warmupJob.Handle,
				},
				Schedules: schedules,
			})
			if err != nil {
				return err
			}
			rt.logger.Info("starting worker", slog.Int("schedules", len(schedules)))
			if err := worker.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&integritySpec, "integrity-cron", "0 2 * * *", "cron spec for the integrity check (empty disables)")
	cmd.Flags().StringVar(&warmupSpec, "warmup-cron", "15 1 * * *", "cron spec for the statement warmup (empty disables)")
	cmd.Flags().IntVar(&concurrency, "concurrency", 5, "number of concurrent task handlers")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 30*time.Second, "time allowed for in-flight tasks on shutdown")
	return cmd
}
