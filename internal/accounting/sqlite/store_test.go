package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newService(t *testing.T, store *Store) *accounting.Service {
	t.Helper()
	svc := accounting.NewService(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.WithNow(func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) })
	return svc
}

func TestPostRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	svc := newService(t, store)

	_, err := svc.OpenPeriod(ctx, 2024)
	require.NoError(t, err)
	create := func(code string, typ accounting.AccountType) accounting.Account {
		acct, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: code, Name: typ.Label(), Type: typ, Currency: "USD"})
		require.NoError(t, err)
		return acct
	}
	payable := create("2000", accounting.AccountTypePayable)
	vat := create("2100", accounting.AccountTypeControl)
	expense := create("5000", accounting.AccountTypeOperatingExpense)

	tx := accounting.NewTransaction(accounting.SupplierBill, payable, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), "rent")
	require.NoError(t, tx.AddLineItem(accounting.LineItem{
		Account: expense, Amount: decimal.RequireFromString("100.00"),
		VatRate: decimal.NewFromInt(16), VatAccount: &vat,
	}))
	require.NoError(t, svc.Post(ctx, tx))
	require.Equal(t, "BL01/0001", tx.Reference)

	loaded, err := svc.Find(ctx, tx.ID)
	require.NoError(t, err)
	require.True(t, loaded.Posted)
	require.NotNil(t, loaded.PostedAt)
	require.Len(t, loaded.LineItems, 1)
	require.Equal(t, vat.ID, loaded.LineItems[0].VatAccount.ID)
	require.True(t, loaded.LineItems[0].Amount.Equal(decimal.NewFromInt(100)))

	end := time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC)
	bal, err := svc.ClosingBalance(ctx, payable.ID, end)
	require.NoError(t, err)
	require.Equal(t, "-116.00", bal.StringFixed(2))
	bal, err = svc.ClosingBalance(ctx, expense.ID, end)
	require.NoError(t, err)
	require.Equal(t, "100.00", bal.StringFixed(2))

	totals, err := svc.VerifyPeriod(ctx, 2024)
	require.NoError(t, err)
	require.Equal(t, "116.00", totals.Debit.StringFixed(2))

	// second post is a no-op
	require.NoError(t, svc.Post(ctx, loaded))
	entries := 0
	require.NoError(t, store.Snapshot(ctx, func(ctx context.Context, r accounting.Reader) error {
		list, err := r.ListPeriodEntries(ctx, totals.Period.ID)
		entries = len(list)
		return err
	}))
	require.Equal(t, 4, entries)
}

func TestWithTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	boom := errors.New("boom")
	err := store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		if err := tx.SaveAccount(ctx, accounting.Account{ID: uuid.New(), Code: "1000", Type: accounting.AccountTypeBank, Currency: "USD"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, store.Snapshot(ctx, func(ctx context.Context, r accounting.Reader) error {
		accounts, err := r.ListAccounts(ctx)
		require.NoError(t, err)
		require.Empty(t, accounts)
		return nil
	}))
}

func TestDuplicateAccountCode(t *testing.T) {
	ctx := context.Background()
	svc := newService(t, openStore(t))
	_, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "1000", Name: "Bank", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.NoError(t, err)
	_, err = svc.CreateAccount(ctx, accounting.AccountInput{Code: "1000", Name: "Other", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.ErrorIs(t, err, accounting.ErrDuplicateAccount)
}

func TestPeriodLookupAndFilters(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	svc := newService(t, store)
	_, err := svc.OpenPeriod(ctx, 2024)
	require.NoError(t, err)
	closed, err := svc.ClosePeriod(ctx, 2024)
	require.NoError(t, err)
	require.Equal(t, accounting.PeriodStatusClosed, closed.Status)

	require.NoError(t, store.Snapshot(ctx, func(ctx context.Context, r accounting.Reader) error {
		p, err := r.FindPeriodByDate(ctx, time.Date(2024, 12, 31, 23, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		require.Equal(t, 2024, p.Year)
		require.Equal(t, accounting.PeriodStatusClosed, p.Status)
		_, err = r.FindPeriodByDate(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
		require.ErrorIs(t, err, accounting.ErrMissingPeriod)
		return nil
	}))

	_, err = svc.OpenPeriod(ctx, 2025)
	require.NoError(t, err)
	bank, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "1000", Name: "Bank", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.NoError(t, err)
	revenue, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "4000", Name: "Sales", Type: accounting.AccountTypeOperatingRevenue, Currency: "USD"})
	require.NoError(t, err)

	for _, day := range []int{3, 20} {
		tx := accounting.NewTransaction(accounting.CashSale, bank, time.Date(2025, 2, day, 0, 0, 0, 0, time.UTC), "sale")
		require.NoError(t, tx.AddLineItem(accounting.LineItem{Account: revenue, Amount: decimal.NewFromInt(10)}))
		require.NoError(t, svc.Save(ctx, tx))
	}
	from := time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)
	found, err := svc.Fetch(ctx, accounting.TransactionFilter{From: &from, Type: accounting.CashSale})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, "CS02/0002", found[0].Reference)

	require.NoError(t, svc.Delete(ctx, found[0].ID))
	_, err = svc.Find(ctx, found[0].ID)
	require.ErrorIs(t, err, accounting.ErrTransactionNotFound)
}

type ledgerFixture struct {
	svc     *accounting.Service
	bank    accounting.Account
	revenue accounting.Account
}

func newLedger(t *testing.T, store *Store) ledgerFixture {
	t.Helper()
	ctx := context.Background()
	svc := newService(t, store)
	_, err := svc.OpenPeriod(ctx, 2024)
	require.NoError(t, err)
	bank, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "1000", Name: "Bank", Type: accounting.AccountTypeBank, Currency: "USD"})
	require.NoError(t, err)
	revenue, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: "4000", Name: "Sales", Type: accounting.AccountTypeOperatingRevenue, Currency: "USD"})
	require.NoError(t, err)
	return ledgerFixture{svc: svc, bank: bank, revenue: revenue}
}

func (f ledgerFixture) cashSale(t *testing.T, amount int64) *accounting.Transaction {
	t.Helper()
	tx := accounting.NewTransaction(accounting.CashSale, f.bank, time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC), "till")
	require.NoError(t, tx.AddLineItem(accounting.LineItem{Account: f.revenue, Amount: decimal.NewFromInt(amount)}))
	require.NoError(t, f.svc.Save(context.Background(), tx))
	return tx
}

func TestDeletedDraftReferenceIsNotReused(t *testing.T) {
	ctx := context.Background()
	f := newLedger(t, openStore(t))

	first := f.cashSale(t, 10)
	second := f.cashSale(t, 20)
	require.NoError(t, f.svc.Delete(ctx, first.ID))
	third := f.cashSale(t, 30)

	require.Equal(t, "CS01/0001", first.Reference)
	require.Equal(t, "CS01/0002", second.Reference)
	if third.Reference != "CS01/0003" {
		t.Fatalf("expected CS01/0003 after deleting a draft, got %s", third.Reference)
	}
	require.NoError(t, f.svc.Post(ctx, third))
}

func TestSequenceSurvivesReopenAndSeedsLegacyFiles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := Open(path)
	require.NoError(t, err)
	f := newLedger(t, store)
	f.cashSale(t, 10)
	f.cashSale(t, 20)
	last := f.cashSale(t, 30)
	require.NoError(t, f.svc.Delete(ctx, last.ID))
	require.NoError(t, store.Close())

	store, err = Open(path)
	require.NoError(t, err)
	f.svc = newService(t, store)
	require.Equal(t, "CS01/0004", f.cashSale(t, 40).Reference)
	require.NoError(t, store.Close())

	// Files written before the counter table existed start from their highest reference.
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`DROP TABLE sequences`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	store, err = Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	f.svc = newService(t, store)
	require.Equal(t, "CS01/0005", f.cashSale(t, 50).Reference)
}

func TestReversalLinkPersists(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	f := newLedger(t, store)
	sale := f.cashSale(t, 25)
	require.NoError(t, f.svc.Post(ctx, sale))

	reversal, err := f.svc.Reverse(ctx, accounting.ReverseInput{TransactionID: sale.ID})
	require.NoError(t, err)

	loaded, err := f.svc.Find(ctx, reversal.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.ReversalOf)
	require.Equal(t, sale.ID, *loaded.ReversalOf)
	require.Nil(t, loaded.ReversedBy)

	original, err := f.svc.Find(ctx, sale.ID)
	require.NoError(t, err)
	require.NotNil(t, original.ReversedBy)
	require.Equal(t, reversal.ID, *original.ReversedBy)

	_, err = f.svc.Reverse(ctx, accounting.ReverseInput{TransactionID: sale.ID})
	require.ErrorIs(t, err, accounting.ErrTransactionReversed)

	err = store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		return tx.MarkReversed(ctx, sale.ID, uuid.New())
	})
	require.ErrorIs(t, err, accounting.ErrTransactionReversed)

	bal, err := f.svc.ClosingBalance(ctx, f.bank.ID, time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, bal.IsZero(), "expected zero bank balance, got %s", bal)
}

func TestClaimSequenceHonoursFloor(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	f := newLedger(t, store)
	period, err := f.svc.OpenPeriod(ctx, 2024)
	require.NoError(t, err)

	var got []int
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		for _, floor := range []int{0, 0, 7, 3, 0} {
			seq, err := tx.ClaimSequence(ctx, accounting.JournalEntry, period.ID, floor)
			if err != nil {
				return err
			}
			got = append(got, seq)
		}
		return nil
	}))
	require.Equal(t, []int{1, 2, 7, 8, 9}, got)

	boom := errors.New("boom")
	err = store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		if _, err := tx.ClaimSequence(ctx, accounting.JournalEntry, period.ID, 0); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, store.WithTx(ctx, func(ctx context.Context, tx accounting.TxRepository) error {
		seq, err := tx.ClaimSequence(ctx, accounting.JournalEntry, period.ID, 0)
		require.Equal(t, 10, seq)
		return err
	}))
}
