// Package seed loads a small demonstration ledger.
package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

// ErrNotEmpty indicates the ledger already holds accounts.
var ErrNotEmpty = errors.New("seed: ledger already has accounts")

// Result summarises a seed run.
type Result struct {
	Period       accounting.Period
	Accounts     map[string]accounting.Account
	Transactions []*accounting.Transaction
}

type accountSeed struct {
	Code string
	Name string
	Type accounting.AccountType
}

var chartSeed = []accountSeed{
	{"1000", "Operating Bank", accounting.AccountTypeBank},
	{"1010", "Petty Cash", accounting.AccountTypeBank},
	{"1100", "Trade Receivables", accounting.AccountTypeReceivable},
	{"1200", "Stock", accounting.AccountTypeInventory},
	{"1500", "Equipment", accounting.AccountTypeNonCurrentAsset},
	{"1510", "Accumulated Depreciation", accounting.AccountTypeContraAsset},
	{"2000", "Trade Payables", accounting.AccountTypePayable},
	{"2100", "VAT Control", accounting.AccountTypeControl},
	{"3000", "Owner Capital", accounting.AccountTypeEquity},
	{"4000", "Consulting Revenue", accounting.AccountTypeOperatingRevenue},
	{"5000", "Cost of Sales", accounting.AccountTypeDirectExpense},
	{"6000", "Rent", accounting.AccountTypeOverheadExpense},
	{"6100", "Depreciation", accounting.AccountTypeOperatingExpense},
}

// Run creates the chart, opens year and posts a handful of documents.
func Run(ctx context.Context, svc *accounting.Service, year int, currency string, out io.Writer) (Result, error) {
	if out == nil {
		out = io.Discard
	}
	existing, err := svc.ListAccounts(ctx)
	if err != nil {
		return Result{}, err
	}
	if len(existing) > 0 {
		return Result{}, ErrNotEmpty
	}

	res := Result{Accounts: make(map[string]accounting.Account, len(chartSeed))}
	fmt.Fprintf(out, "→ Opening period %d...\n", year)
	if res.Period, err = svc.OpenPeriod(ctx, year); err != nil {
		return Result{}, fmt.Errorf("open period: %w", err)
	}

	fmt.Fprintln(out, "→ Seeding accounts...")
	for _, a := range chartSeed {
		acct, err := svc.CreateAccount(ctx, accounting.AccountInput{Code: a.Code, Name: a.Name, Type: a.Type, Currency: currency})
		if err != nil {
			return Result{}, fmt.Errorf("account %s: %w", a.Code, err)
		}
		res.Accounts[a.Code] = acct
	}

	fmt.Fprintln(out, "→ Seeding opening balances...")
	openings := []struct {
		code   string
		side   accounting.EntryType
		amount int64
	}{
		{"1000", accounting.Debit, 20000},
		{"1500", accounting.Debit, 12000},
		{"3000", accounting.Credit, 32000},
	}
	for _, o := range openings {
		if err := svc.SetOpeningBalance(ctx, res.Accounts[o.code].ID, year, o.side, decimal.NewFromInt(o.amount)); err != nil {
			return Result{}, fmt.Errorf("opening balance %s: %w", o.code, err)
		}
	}

	fmt.Fprintln(out, "→ Posting transactions...")
	a := res.Accounts
	vat := a["2100"]
	day := func(month time.Month, d int) time.Time { return time.Date(year, month, d, 0, 0, 0, 0, time.UTC) }
	docs := []struct {
		typ       accounting.TransactionType
		main      accounting.Account
		date      time.Time
		narration string
		lines     []accounting.LineItem
	}{
		{accounting.ClientInvoice, a["1100"], day(1, 15), "January retainer", []accounting.LineItem{
			{Account: a["4000"], Amount: decimal.NewFromInt(5000), VatRate: decimal.NewFromInt(16), VatAccount: &vat},
		}},
		{accounting.ClientReceipt, a["1100"], day(2, 10), "January retainer receipt", []accounting.LineItem{
			{Account: a["1000"], Amount: decimal.NewFromInt(5800)},
		}},
		{accounting.SupplierBill, a["2000"], day(2, 1), "Stock purchase", []accounting.LineItem{
			{Account: a["1200"], Amount: decimal.NewFromInt(1500), VatRate: decimal.NewFromInt(16), VatAccount: &vat},
		}},
		{accounting.SupplierPayment, a["2000"], day(2, 28), "Stock purchase payment", []accounting.LineItem{
			{Account: a["1000"], Amount: decimal.NewFromInt(1740)},
		}},
		{accounting.CashPurchase, a["1000"], day(3, 1), "Office rent", []accounting.LineItem{
			{Account: a["6000"], Amount: decimal.NewFromInt(1200)},
		}},
		{accounting.CashSale, a["1000"], day(3, 20), "Workshop", []accounting.LineItem{
			{Account: a["4000"], Amount: decimal.NewFromInt(800), VatRate: decimal.NewFromInt(16), VatAccount: &vat},
		}},
		{accounting.ContraEntry, a["1010"], day(4, 2), "Petty cash float", []accounting.LineItem{
			{Account: a["1000"], Amount: decimal.NewFromInt(300)},
		}},
		{accounting.JournalEntry, a["1510"], day(12, 31), "Equipment depreciation", []accounting.LineItem{
			{Account: a["6100"], Amount: decimal.NewFromInt(2400), MainSide: accounting.Credit},
		}},
		{accounting.JournalEntry, a["5000"], day(12, 31), "Cost of stock sold", []accounting.LineItem{
			{Account: a["1200"], Amount: decimal.NewFromInt(900), MainSide: accounting.Debit},
		}},
	}
	for _, d := range docs {
		tx := accounting.NewTransaction(d.typ, d.main, d.date, d.narration)
		for _, line := range d.lines {
			if err := tx.AddLineItem(line); err != nil {
				return Result{}, err
			}
		}
		if err := svc.Post(ctx, tx); err != nil {
			return Result{}, fmt.Errorf("%s %q: %w", d.typ, d.narration, err)
		}
		fmt.Fprintf(out, "  %s %s %s\n", tx.Reference, tx.Amount().StringFixed(2), d.narration)
		res.Transactions = append(res.Transactions, tx)
	}

	fmt.Fprintf(out, "✓ Seed complete: %d accounts, %d transactions\n", len(res.Accounts), len(res.Transactions))
	return res, nil
}
