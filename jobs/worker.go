package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

const (
	defaultConcurrency     = 5
	defaultShutdownTimeout = 30 * time.Second
)

// Schedule enqueues Task on every tick of the cron expression Cron.
type Schedule struct {
	Cron    string
	Task    *asynq.Task
	Options []asynq.Option
}

// WorkerConfig collects dependencies required to bootstrap the worker.
type WorkerConfig struct {
	Redis           asynq.RedisConnOpt
	Logger          *slog.Logger
	Concurrency     int
	ShutdownTimeout time.Duration
	// Tasks maps a task type onto its handler.
	Tasks     map[string]asynq.HandlerFunc
	Schedules []Schedule
}

// Worker processes ledger tasks from the default queue and, when schedules
// are configured, enqueues them on their cron ticks.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *slog.Logger
}

// NewWorker validates cfg and prepares the server, mux and scheduler.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Redis == nil {
		return nil, errors.New("worker: redis connection required")
	}
	if len(cfg.Tasks) == 0 {
		return nil, errors.New("worker: no task handlers registered")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	shutdown := cfg.ShutdownTimeout
	if shutdown <= 0 {
		shutdown = defaultShutdownTimeout
	}

	mux := asynq.NewServeMux()
	for typ, handler := range cfg.Tasks {
		if typ == "" || handler == nil {
			return nil, fmt.Errorf("worker: invalid handler for task %q", typ)
		}
		mux.HandleFunc(typ, handler)
	}

	w := &Worker{mux: mux, logger: logger}
	w.server = asynq.NewServer(cfg.Redis, asynq.Config{
		Concurrency:     concurrency,
		Queues:          map[string]int{QueueDefault: 1},
		ShutdownTimeout: shutdown,
		ErrorHandler:    asynq.ErrorHandlerFunc(w.taskFailed),
		Logger:          newAsynqLogger(logger),
		LogLevel:        asynq.InfoLevel,
	})

	if len(cfg.Schedules) > 0 {
		w.scheduler = asynq.NewScheduler(cfg.Redis, &asynq.SchedulerOpts{
			Location: time.UTC,
			Logger:   newAsynqLogger(logger),
		})
		for _, s := range cfg.Schedules {
			if s.Cron == "" || s.Task == nil {
				continue
			}
			if _, err := w.scheduler.Register(s.Cron, s.Task, s.Options...); err != nil {
				return nil, fmt.Errorf("worker: schedule %s %q: %w", s.Task.Type(), s.Cron, err)
			}
		}
	}
	return w, nil
}

// taskFailed logs a failed attempt with its retry position.
func (w *Worker) taskFailed(ctx context.Context, task *asynq.Task, err error) {
	retry, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	id, _ := asynq.GetTaskID(ctx)
	level := slog.LevelWarn
	if retry >= maxRetry {
		level = slog.LevelError
	}
	w.logger.Log(ctx, level, "task failed",
		slog.String("task", task.Type()),
		slog.String("id", id),
		slog.Int("retry", retry),
		slog.Int("max_retry", maxRetry),
		slog.Any("error", err))
}

// Run processes tasks until ctx is cancelled, then drains in-flight work
// within the shutdown timeout.
func (w *Worker) Run(ctx context.Context) error {
	if w == nil || w.server == nil {
		return errors.New("worker: not configured")
	}
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("worker: start server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("worker: start scheduler: %w", err)
		}
	}
	<-ctx.Done()
	w.logger.Info("worker stopping")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return ctx.Err()
}
