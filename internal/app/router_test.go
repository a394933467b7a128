package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting"
	ledgerhttp "github.com/odyssey-erp/ledger/internal/accounting/http"
	"github.com/odyssey-erp/ledger/internal/shared"
)

type recordingAudit struct {
	logs []shared.AuditLog
}

func (r *recordingAudit) Record(_ context.Context, log shared.AuditLog) error {
	r.logs = append(r.logs, log)
	return nil
}

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	cfg := &Config{LedgerStore: StoreMemory, ReportingCurrency: "USD", AppRequestTimeout: 5 * time.Second}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	l, err := Bootstrap(context.Background(), cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestBootstrapMemoryStore(t *testing.T) {
	l := newTestLedger(t)
	require.NotNil(t, l.Ledger)
	require.NotNil(t, l.Reports)
	require.Nil(t, l.Pool)
	require.Nil(t, l.Redis)
	require.NoError(t, l.Ping(context.Background()))
}

func TestBootstrapSQLiteStore(t *testing.T) {
	cfg := &Config{LedgerStore: StoreSQLite, SQLitePath: t.TempDir() + "/ledger.db", ReportingCurrency: "USD"}
	l, err := Bootstrap(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	defer func() { require.NoError(t, l.Close()) }()
	require.NoError(t, l.Ping(context.Background()))
	_, err = l.Ledger.OpenPeriod(context.Background(), 2024)
	require.NoError(t, err)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	l := newTestLedger(t)
	router := NewRouter(RouterParams{
		Logger:        l.Logger,
		Config:        l.Config,
		LedgerHandler: ledgerhttp.NewHandler(l.Logger, l.Ledger, l.Reports, 0),
		Metrics:       l.Metrics,
		Health:        l.Ping,
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"ok"`)
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/accounts", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `ledger_http_requests_total{code="200",route="/api/v1/accounts`)
}

func TestRouterHealthDegraded(t *testing.T) {
	router := NewRouter(RouterParams{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		Health: func(context.Context) error { return errors.New("redis: connection refused") },
	})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "connection refused")
}

func TestActorHeaderReachesAudit(t *testing.T) {
	l := newTestLedger(t)
	audit := &recordingAudit{}
	svc := accounting.NewService(l.Store, audit, l.Logger)
	svc.WithNow(func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) })
	ctx := context.Background()
	_, err := svc.OpenPeriod(ctx, 2024)
	require.NoError(t, err)
	bank, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "1000", Name: "Bank", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.NoError(t, err)
	revenue, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "4000", Name: "Sales", Type: accounting.AccountTypeOperatingRevenue, Currency: "USD"})
	require.NoError(t, err)

	router := NewRouter(RouterParams{
		Logger:        l.Logger,
		Config:        l.Config,
		LedgerHandler: ledgerhttp.NewHandler(l.Logger, svc, l.Reports, 0),
	})
	payload, err := json.Marshal(map[string]any{
		"type": "CASH_SALE", "account_id": bank.ID.String(), "date": "2024-05-01", "post": true,
		"line_items": []map[string]any{{"account_id": revenue.ID.String(), "amount": "25"}},
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(payload))
	req.Header.Set(ActorHeader, "alice@example.com")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	require.NotEmpty(t, audit.logs)
	last := audit.logs[len(audit.logs)-1]
	require.Equal(t, "transaction.post", last.Action)
	require.Equal(t, "alice@example.com", last.Actor)
	require.True(t, strings.HasPrefix(last.Meta["reference"].(string), "CS01/"))
}
