package reports

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
)

func balance(code string, typ accounting.AccountType, amount int64) AccountBalance {
	return AccountBalance{
		Account: accounting.Account{ID: uuid.New(), Code: code, Name: code, Type: typ, Currency: "USD"},
		Balance: decimal.NewFromInt(amount),
	}
}

func sampleBalances() []AccountBalance {
	return []AccountBalance{
		balance("1000", accounting.AccountTypeBank, 1616),
		balance("2000", accounting.AccountTypePayable, -400),
		balance("4000", accounting.AccountTypeOperatingRevenue, -1200),
		balance("2100", accounting.AccountTypeControl, -16),
		balance("1010", accounting.AccountTypeBank, 0),
		balance("5000", accounting.AccountTypeOperatingExpense, 300),
		balance("5100", accounting.AccountTypeOverheadExpense, 200),
		balance("3000", accounting.AccountTypeEquity, -500),
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Equal(decimal.RequireFromString(want)) {
		t.Fatalf("expected %s got %s", want, got.String())
	}
}

func TestBuildTrialBalance(t *testing.T) {
	tb := BuildTrialBalance(sampleBalances(), chart.Default())
	requireDecimal(t, "2116", tb.Debit)
	requireDecimal(t, "2116", tb.Credit)
	if !tb.Balanced() {
		t.Fatalf("expected balanced trial balance")
	}
	if len(tb.Sections) != 2 {
		t.Fatalf("expected 2 sections, got %d", len(tb.Sections))
	}
	is, _ := tb.Section(chart.IncomeStatement)
	if len(is.Buckets) != 3 {
		t.Fatalf("expected 3 income statement buckets, got %d", len(is.Buckets))
	}
	if is.Buckets[0].Type != accounting.AccountTypeOperatingRevenue {
		t.Fatalf("buckets should follow first appearance, got %s first", is.Buckets[0].Type)
	}
	bs, _ := tb.Section(chart.BalanceSheet)
	bank, ok := bs.Bucket(accounting.AccountTypeBank)
	if !ok {
		t.Fatalf("expected bank bucket")
	}
	if len(bank.Accounts) != 2 {
		t.Fatalf("zero balance account must be listed, got %d accounts", len(bank.Accounts))
	}
	if bank.Accounts[0].Code != "1000" || bank.Accounts[1].Code != "1010" {
		t.Fatalf("accounts should keep insertion order")
	}
	requireDecimal(t, "1616", bank.Balance)
	if _, ok := bs.Bucket(accounting.AccountTypeControl); ok {
		t.Fatalf("control account is unclassified and must not get a bucket")
	}
}

func TestTrialBalanceTotalsIgnoreOrder(t *testing.T) {
	balances := sampleBalances()
	reversed := make([]AccountBalance, len(balances))
	for i, b := range balances {
		reversed[len(balances)-1-i] = b
	}
	a := BuildTrialBalance(balances, chart.Default())
	b := BuildTrialBalance(reversed, chart.Default())
	if !a.Debit.Equal(b.Debit) || !a.Credit.Equal(b.Credit) {
		t.Fatalf("totals depend on order: %s/%s vs %s/%s", a.Debit, a.Credit, b.Debit, b.Credit)
	}
}

func TestBuildIncomeStatement(t *testing.T) {
	is := BuildIncomeStatement(sampleBalances(), chart.Default())
	if len(is.Sections) != 1 || is.Sections[0].Name != chart.IncomeStatement {
		t.Fatalf("expected only the income statement section")
	}
	requireDecimal(t, "500", is.Debit)
	requireDecimal(t, "1200", is.Credit)
	requireDecimal(t, "1200", is.Revenues)
	requireDecimal(t, "500", is.Expenses)
	requireDecimal(t, "700", is.NetProfit)
	revenue, ok := is.Sections[0].Bucket(accounting.AccountTypeOperatingRevenue)
	if !ok {
		t.Fatalf("expected revenue bucket")
	}
	requireDecimal(t, "1200", revenue.Accounts[0].Natural)
	requireDecimal(t, "-1200", revenue.Accounts[0].Balance)
}

func TestBuildBalanceSheet(t *testing.T) {
	bs := BuildBalanceSheet(sampleBalances(), chart.Default())
	requireDecimal(t, "1616", bs.Debit)
	requireDecimal(t, "900", bs.Credit)
	requireDecimal(t, "1616", bs.Assets)
	requireDecimal(t, "400", bs.Liabilities)
	requireDecimal(t, "500", bs.Equity)
	requireDecimal(t, "0", bs.Reconciliation)
	requireDecimal(t, "900", bs.TotalLiabilitiesAndEquity())
}

func TestContraAssetReducesAssets(t *testing.T) {
	balances := []AccountBalance{
		balance("1500", accounting.AccountTypeNonCurrentAsset, 1000),
		balance("1510", accounting.AccountTypeContraAsset, -250),
	}
	bs := BuildBalanceSheet(balances, chart.Default())
	requireDecimal(t, "750", bs.Assets)
	bucket, _ := bs.Sections[0].Bucket(accounting.AccountTypeContraAsset)
	requireDecimal(t, "250", bucket.Balance)
	requireDecimal(t, "250", bucket.Accounts[0].Natural)
}

func TestEmptyStatements(t *testing.T) {
	tb := BuildTrialBalance(nil, chart.Default())
	requireDecimal(t, "0", tb.Debit)
	requireDecimal(t, "0", tb.Credit)
	for _, sec := range tb.Sections {
		if len(sec.Buckets) != 0 {
			t.Fatalf("expected empty section %s", sec.Name)
		}
	}
	is := BuildIncomeStatement(nil, chart.Default())
	requireDecimal(t, "0", is.NetProfit)
}
