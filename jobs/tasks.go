package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerIntegrity verifies that each period's debits equal its credits.
	TaskLedgerIntegrity = "ledger:integrity"
	// TaskReportsWarmup pre-builds the financial statements into the report cache.
	TaskReportsWarmup = "reports:warmup"
)

// IntegrityPayload selects the period years to verify. Empty means the current year.
type IntegrityPayload struct {
	Years []int `json:"years,omitempty"`
}

// WarmupPayload scopes a statement warmup. Zero values use the current year
// and the reporting currency.
type WarmupPayload struct {
	Year     int    `json:"year,omitempty"`
	Currency string `json:"currency,omitempty"`
}

// NewIntegrityTask constructs an integrity check task.
func NewIntegrityTask(years ...int) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityPayload{Years: years})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, data), nil
}

// NewWarmupTask constructs a statement warmup task.
func NewWarmupTask(year int, currency string) (*asynq.Task, error) {
	data, err := json.Marshal(WarmupPayload{Year: year, Currency: currency})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReportsWarmup, data), nil
}
