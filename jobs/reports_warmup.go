package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

// WarmupJob pre-populates the report cache with the three statements.
type WarmupJob struct {
	Reports *reports.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	Timeout time.Duration
	clock   func() time.Time
}

// NewWarmupJob wires dependencies for the warmup handler.
func NewWarmupJob(reportSvc *reports.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *WarmupJob {
	return &WarmupJob{
		Reports: reportSvc,
		Logger:  logger,
		Metrics: metrics,
		Timeout: 30 * time.Second,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes statement warmup tasks.
func (j *WarmupJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Reports == nil {
		return errors.New("reports warmup: handler not configured")
	}
	var payload WarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Year == 0 {
		payload.Year = j.now().Year()
	}

	tracker := j.metrics().Track(TaskReportsWarmup)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	err := j.Warm(ctx, reports.Request{Year: payload.Year, Currency: payload.Currency})
	if errors.Is(err, accounting.ErrMissingPeriod) {
		j.logger().Warn("no period to warm", slog.Int("year", payload.Year))
		return nil
	}
	return err
}

// Warm builds every statement for req concurrently.
func (j *WarmupJob) Warm(ctx context.Context, req reports.Request) error {
	start := time.Now()
	logger := j.logger().With(slog.Int("year", req.Year), slog.String("currency", req.Currency))
	if j.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.Timeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := j.Reports.BuildTrialBalance(gctx, req)
		return err
	})
	g.Go(func() error {
		_, err := j.Reports.BuildIncomeStatement(gctx, req)
		return err
	})
	g.Go(func() error {
		_, err := j.Reports.BuildBalanceSheet(gctx, req)
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("warm statements", slog.Any("error", err))
		return err
	}
	logger.Info("statements warmed", slog.Duration("duration", time.Since(start)))
	return nil
}

func (j *WarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskReportsWarmup))
	}
	return slog.Default().With(slog.String("job", TaskReportsWarmup))
}

func (j *WarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *WarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
