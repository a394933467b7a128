package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
	"github.com/odyssey-erp/ledger/internal/accounting/memory"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/currency"
	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
)

var testClock = func() time.Time { return time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC) }

type ledgerFixture struct {
	store   *memory.Store
	ledger  *accounting.Service
	reports func(*reports.Cache) *reports.Service
	period  accounting.Period
	logger  *slog.Logger
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memory.New()
	ledger := accounting.NewService(store, nil, logger)
	ledger.WithNow(testClock)
	period, err := ledger.OpenPeriod(ctx, 2024)
	require.NoError(t, err)

	bank, err := ledger.CreateAccount(ctx, accounting.AccountInput{Code: "1000", Name: "Bank", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.NoError(t, err)
	revenue, err := ledger.CreateAccount(ctx, accounting.AccountInput{Code: "4000", Name: "Sales", Type: accounting.AccountTypeOperatingRevenue, Currency: "USD"})
	require.NoError(t, err)
	sale := accounting.NewTransaction(accounting.CashSale, bank, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), "sale")
	require.NoError(t, sale.AddLineItem(accounting.LineItem{Account: revenue, Amount: decimal.NewFromInt(250)}))
	require.NoError(t, ledger.Post(ctx, sale))

	resolver, err := currency.NewStatic("USD")
	require.NoError(t, err)
	return &ledgerFixture{
		store:  store,
		ledger: ledger,
		period: period,
		logger: logger,
		reports: func(cache *reports.Cache) *reports.Service {
			svc := reports.NewService(store, chart.Default(), resolver, cache, logger)
			svc.WithNow(testClock)
			return svc
		},
	}
}

func (f *ledgerFixture) corrupt(t *testing.T) {
	t.Helper()
	err := f.store.WithTx(context.Background(), func(ctx context.Context, tx accounting.TxRepository) error {
		return tx.SaveEntries(ctx, []accounting.LedgerEntry{{
			ID:          uuid.New(),
			Type:        accounting.Debit,
			Amount:      decimal.NewFromInt(5),
			PostAccount: uuid.New(),
			PeriodID:    f.period.ID,
			Date:        f.period.Start,
			Currency:    "USD",
		}})
	})
	require.NoError(t, err)
}

func newTestMetrics(t *testing.T) (*jobmetrics.Metrics, *prometheus.Registry) {
	t.Helper()
	registry := prometheus.NewRegistry()
	return jobmetrics.NewMetrics(registry), registry
}

func TestIntegrityJobBalancedPeriod(t *testing.T) {
	f := newLedgerFixture(t)
	metrics, _ := newTestMetrics(t)
	job := NewIntegrityJob(f.ledger, f.logger, metrics)
	job.clock = testClock

	task, err := NewIntegrityTask()
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	totals, err := job.Check(context.Background(), 2024, 2030)
	require.NoError(t, err)
	require.Len(t, totals, 1, "missing 2030 period is skipped")
	require.Equal(t, "250.00", totals[0].Debit.StringFixed(2))
	require.Equal(t, "250.00", totals[0].Credit.StringFixed(2))
}

func TestIntegrityJobDetectsImbalance(t *testing.T) {
	f := newLedgerFixture(t)
	f.corrupt(t)
	metrics, registry := newTestMetrics(t)
	job := NewIntegrityJob(f.ledger, f.logger, metrics)
	job.clock = testClock

	task, err := NewIntegrityTask(2024)
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}

	expected := `
# HELP ledger_period_imbalances_total Integrity checks that found debits and credits out of balance, by period year.
# TYPE ledger_period_imbalances_total counter
ledger_period_imbalances_total{year="2024"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "ledger_period_imbalances_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestIntegrityJobRejectsBadPayload(t *testing.T) {
	f := newLedgerFixture(t)
	job := NewIntegrityJob(f.ledger, f.logger, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	var nilJob *IntegrityJob
	require.Error(t, nilJob.Handle(context.Background(), asynq.NewTask(TaskLedgerIntegrity, nil)))
}

func TestWarmupJobPopulatesCache(t *testing.T) {
	f := newLedgerFixture(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := reports.NewCache(client, time.Minute)

	job := NewWarmupJob(f.reports(cache), f.logger, nil)
	job.clock = testClock
	task, err := NewWarmupTask(0, "")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	var warmed []string
	for _, key := range mr.Keys() {
		if strings.HasPrefix(key, "reports:") && key != "reports:version" {
			warmed = append(warmed, key)
		}
	}
	require.ElementsMatch(t, []string{
		"reports:trial_balance:2024:end:USD:1",
		"reports:income_statement:2024:end:USD:1",
		"reports:balance_sheet:2024:end:USD:1",
	}, warmed)
}

func TestWarmupJobSkipsMissingPeriod(t *testing.T) {
	f := newLedgerFixture(t)
	job := NewWarmupJob(f.reports(nil), f.logger, nil)
	task, err := NewWarmupTask(2031, "USD")
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	err = job.Warm(context.Background(), reports.Request{Year: 2024, Currency: "NOPE1"})
	require.ErrorIs(t, err, currency.ErrInvalidCurrency)
}

func TestClientEnqueuesLedgerTasks(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	info, err := client.EnqueueIntegrity(context.Background(), 2024)
	require.NoError(t, err)
	require.Equal(t, TaskLedgerIntegrity, info.Type)
	require.Equal(t, QueueDefault, info.Queue)

	info, err = client.EnqueueWarmup(context.Background(), 2024, "USD")
	require.NoError(t, err)
	require.Equal(t, TaskReportsWarmup, info.Type)
	require.JSONEq(t, `{"year":2024,"currency":"USD"}`, string(info.Payload))
}

func TestNewWorkerValidatesConfig(t *testing.T) {
	redisOpt := asynq.RedisClientOpt{Addr: "127.0.0.1:0"}
	noop := func(context.Context, *asynq.Task) error { return nil }

	_, err := NewWorker(WorkerConfig{Redis: redisOpt})
	require.Error(t, err)

	_, err = NewWorker(WorkerConfig{Tasks: map[string]asynq.HandlerFunc{TaskLedgerIntegrity: noop}})
	require.Error(t, err)

	_, err = NewWorker(WorkerConfig{Redis: redisOpt, Tasks: map[string]asynq.HandlerFunc{"": noop}})
	require.Error(t, err)

	task, err := NewIntegrityTask()
	require.NoError(t, err)
	_, err = NewWorker(WorkerConfig{
		Redis:     redisOpt,
		Tasks:     map[string]asynq.HandlerFunc{TaskLedgerIntegrity: noop},
		Schedules: []Schedule{{Cron: "not a cron", Task: task}},
	})
	require.ErrorContains(t, err, TaskLedgerIntegrity)

	w, err := NewWorker(WorkerConfig{
		Redis:     redisOpt,
		Tasks:     map[string]asynq.HandlerFunc{TaskLedgerIntegrity: noop},
		Schedules: []Schedule{{Cron: "0 2 * * *", Task: task}},
	})
	require.NoError(t, err)
	require.NotNil(t, w.scheduler)
}

func TestRedisOpt(t *testing.T) {
	opt, err := RedisOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, asynq.RedisClientOpt{Addr: "127.0.0.1:6379"}, opt)

	opt, err = RedisOpt("redis://:secret@cache.internal:6380/3")
	require.NoError(t, err)
	client, ok := opt.(asynq.RedisClientOpt)
	if !ok {
		t.Fatalf("RedisOpt returned %T, want asynq.RedisClientOpt", opt)
	}
	require.Equal(t, "cache.internal:6380", client.Addr)
	require.Equal(t, 3, client.DB)

	_, err = RedisOpt(" ")
	require.Error(t, err)
}

func TestStatsOnEmptyQueue(t *testing.T) {
	mr := miniredis.RunT(t)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })

	stats, err := Stats(inspector)
	require.NoError(t, err)
	require.Equal(t, QueueStats{Queue: QueueDefault}, stats)

	stats, err = Stats(nil)
	require.NoError(t, err)
	require.Equal(t, QueueDefault, stats.Queue)
}

func TestHealthEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Route("/jobs", NewHandler(nil, nil).MountRoutes)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"queue":"default","pending":0,"active":0,"scheduled":0,"retry":0,"archived":0,"processed_today":0,"failed_today":0,"latency_seconds":0}`, rec.Body.String())

	mr := miniredis.RunT(t)
	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = inspector.Close() })
	mr.Close()

	r = chi.NewRouter()
	r.Route("/jobs", NewHandler(inspector, slog.New(slog.NewTextHandler(io.Discard, nil))).MountRoutes)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
