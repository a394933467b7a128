package reports_test

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
	"github.com/odyssey-erp/ledger/internal/accounting/memory"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/currency"
)

type fixture struct {
	ctx     context.Context
	ledger  *accounting.Service
	reports *reports.Service
	recv    accounting.Account
	revenue accounting.Account
	vat     accounting.Account
}

func newFixture(t *testing.T, cache *reports.Cache) *fixture {
	t.Helper()
	ctx := context.Background()
	store := memory.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ledger := accounting.NewService(store, nil, logger)
	ledger.WithNow(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })
	ledger.WithCacheBumper(cache)
	_, err := ledger.OpenPeriod(ctx, 2024)
	require.NoError(t, err)

	resolver, err := currency.NewStatic("USD")
	require.NoError(t, err)
	svc := reports.NewService(store, chart.Default(), resolver, cache, logger)
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) })

	f := &fixture{ctx: ctx, ledger: ledger, reports: svc}
	create := func(code string, typ accounting.AccountType) accounting.Account {
		acct, err := ledger.CreateAccount(ctx, accounting.AccountInput{Code: code, Name: typ.Label(), Type: typ, Currency: "USD"})
		require.NoError(t, err)
		return acct
	}
	f.recv = create("1100", accounting.AccountTypeReceivable)
	f.vat = create("2100", accounting.AccountTypeControl)
	f.revenue = create("4000", accounting.AccountTypeOperatingRevenue)
	return f
}

func (f *fixture) invoice(t *testing.T, amount int64, day int) {
	t.Helper()
	tx := accounting.NewTransaction(accounting.ClientInvoice, f.recv, time.Date(2024, 3, day, 0, 0, 0, 0, time.UTC), "invoice")
	require.NoError(t, tx.AddLineItem(accounting.LineItem{
		Account: f.revenue, Amount: decimal.NewFromInt(amount),
		VatRate: decimal.NewFromInt(16), VatAccount: &f.vat,
	}))
	require.NoError(t, f.ledger.Post(f.ctx, tx))
}

func TestStatementsAfterInvoice(t *testing.T) {
	f := newFixture(t, nil)
	f.invoice(t, 100, 15)

	tb, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	require.Equal(t, "116.00", tb.Debit.StringFixed(2))
	require.Equal(t, "116.00", tb.Credit.StringFixed(2))
	require.Equal(t, "USD", tb.Currency)
	require.Equal(t, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC), tb.AsOf.UTC())

	is, err := f.reports.BuildIncomeStatement(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	require.Equal(t, "100.00", is.Revenues.StringFixed(2))
	require.Equal(t, "100.00", is.NetProfit.StringFixed(2))

	bs, err := f.reports.BuildBalanceSheet(f.ctx, reports.Request{})
	require.NoError(t, err)
	require.Equal(t, 2024, bs.Year)
	require.Equal(t, "116.00", bs.Assets.StringFixed(2))
	require.Equal(t, "0.00", bs.Liabilities.StringFixed(2))
}

func TestAsOfLimitsEntries(t *testing.T) {
	f := newFixture(t, nil)
	f.invoice(t, 100, 15)

	early := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	tb, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{AsOf: &early})
	require.NoError(t, err)
	require.True(t, tb.Debit.IsZero())

	before := time.Date(2023, 12, 31, 0, 0, 0, 0, time.UTC)
	_, err = f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024, AsOf: &before})
	require.ErrorIs(t, err, reports.ErrAsOfOutsidePeriod)

	_, err = f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2030})
	require.ErrorIs(t, err, accounting.ErrMissingPeriod)
}

func TestCurrencyScope(t *testing.T) {
	f := newFixture(t, nil)
	f.invoice(t, 100, 15)
	euro, err := f.ledger.CreateAccount(f.ctx, accounting.AccountInput{Code: "1001", Name: "Euro Bank", Type: accounting.AccountTypeBank, Currency: "eur"})
	require.NoError(t, err)
	require.NoError(t, f.ledger.SetOpeningBalance(f.ctx, euro.ID, 2024, accounting.Debit, decimal.NewFromInt(50)))

	usd, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	require.Equal(t, "116.00", usd.Debit.StringFixed(2))

	eur, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024, Currency: "EUR"})
	require.NoError(t, err)
	require.Equal(t, "50.00", eur.Debit.StringFixed(2))
	require.Equal(t, "EUR", eur.Currency)

	_, err = f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024, Currency: "XYZ1"})
	require.ErrorIs(t, err, currency.ErrInvalidCurrency)
}

func TestCachedStatementInvalidatedByPosting(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := reports.NewCache(client, time.Minute)
	f := newFixture(t, cache)
	f.invoice(t, 100, 15)

	first, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	require.Equal(t, "116.00", first.Debit.StringFixed(2))

	version, err := cache.Version(f.ctx)
	require.NoError(t, err)
	keys := mr.Keys()
	require.Contains(t, keys, "reports:trial_balance:2024:end:USD:"+strconv.FormatInt(version, 10))

	f.invoice(t, 50, 20)
	bumped, err := cache.Version(f.ctx)
	require.NoError(t, err)
	require.Greater(t, bumped, version)

	second, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	require.Equal(t, "174.00", second.Debit.StringFixed(2))
}

func TestCachedStatementInvalidatedByAccountChanges(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := reports.NewCache(client, time.Minute)
	f := newFixture(t, cache)
	f.invoice(t, 100, 15)

	first, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	require.Equal(t, "116.00", first.Debit.StringFixed(2))
	version, err := cache.Version(f.ctx)
	require.NoError(t, err)

	bank, err := f.ledger.CreateAccount(f.ctx, accounting.AccountInput{Code: "1000", Name: "Bank", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.NoError(t, err)
	afterCreate, err := cache.Version(f.ctx)
	require.NoError(t, err)
	require.Greater(t, afterCreate, version)

	require.NoError(t, f.ledger.SetOpeningBalance(f.ctx, bank.ID, 2024, accounting.Debit, decimal.NewFromInt(30)))
	afterOpening, err := cache.Version(f.ctx)
	require.NoError(t, err)
	require.Greater(t, afterOpening, afterCreate)

	second, err := f.reports.BuildTrialBalance(f.ctx, reports.Request{Year: 2024})
	require.NoError(t, err)
	if second.Debit.StringFixed(2) != "146.00" {
		t.Fatalf("expected the opening balance in a fresh statement, got debit %s", second.Debit.StringFixed(2))
	}
}

func TestBuildDispatch(t *testing.T) {
	f := newFixture(t, nil)
	out, err := f.reports.Build(f.ctx, reports.KindIncomeStatement, reports.Request{Year: 2024})
	require.NoError(t, err)
	_, ok := out.(reports.IncomeStatement)
	require.True(t, ok)

	_, err = f.reports.Build(f.ctx, reports.Kind("cash_flow"), reports.Request{Year: 2024})
	require.ErrorIs(t, err, reports.ErrUnknownKind)
}
