package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/ledger/internal/accounting"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// IntegrityJob checks that every posted period still balances.
type IntegrityJob struct {
	Ledger  *accounting.Service
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewIntegrityJob wires dependencies for the integrity handler.
func NewIntegrityJob(ledger *accounting.Service, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntegrityJob {
	return &IntegrityJob{
		Ledger:  ledger,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes ledger integrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Ledger == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	years := payload.Years
	if len(years) == 0 {
		years = []int{j.now().Year()}
	}

	tracker := j.metrics().Track(TaskLedgerIntegrity)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	_, err := j.Check(ctx, years...)
	var unbalanced *accounting.UnbalancedPostingError
	if errors.As(err, &unbalanced) {
		// Re-running cannot fix a broken ledger.
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}
	return err
}

// Check verifies each year and returns the totals of the periods found.
// Missing periods are skipped; the first imbalance is returned after all
// years have been checked.
func (j *IntegrityJob) Check(ctx context.Context, years ...int) ([]accounting.PeriodTotals, error) {
	logger := j.logger()
	out := make([]accounting.PeriodTotals, 0, len(years))
	var firstErr error
	for _, year := range years {
		totals, err := j.Ledger.VerifyPeriod(ctx, year)
		var unbalanced *accounting.UnbalancedPostingError
		switch {
		case err == nil:
			logger.Info("period balanced",
				slog.Int("year", year),
				slog.String("debit", totals.Debit.StringFixed(2)),
				slog.String("credit", totals.Credit.StringFixed(2)))
			out = append(out, totals)
		case errors.Is(err, accounting.ErrMissingPeriod):
			logger.Warn("no period to verify", slog.Int("year", year))
		case errors.As(err, &unbalanced):
			logger.Error("period out of balance", slog.Int("year", year), slog.Any("error", err))
			j.metrics().AddImbalance(year)
			out = append(out, totals)
			if firstErr == nil {
				firstErr = err
			}
		default:
			return out, fmt.Errorf("verify %d: %w", year, err)
		}
	}
	return out, firstErr
}

func (j *IntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskLedgerIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskLedgerIntegrity))
}

func (j *IntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *IntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
