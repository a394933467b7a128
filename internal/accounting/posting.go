package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BuildEntries converts a validated transaction into ledger entry pairs. Each
// line item yields a pair between the main and folio accounts, plus a second
// pair against the vat account when the line is taxed.
func BuildEntries(tx *Transaction, period Period, now time.Time) ([]LedgerEntry, error) {
	policy, err := PolicyFor(tx.Type)
	if err != nil {
		return nil, err
	}
	entries := make([]LedgerEntry, 0, len(tx.LineItems)*4)
	for _, item := range tx.LineItems {
		side := policy.SideFor(item)
		entries = append(entries, entryPair(tx, item, side, item.Account.ID, item.Amount, period, now)...)
		if tax := item.Tax(); tax.IsPositive() {
			entries = append(entries, entryPair(tx, item, side, item.VatAccount.ID, tax, period, now)...)
		}
	}
	return entries, nil
}

func entryPair(tx *Transaction, item LineItem, side EntryType, folio uuid.UUID, amount decimal.Decimal, period Period, now time.Time) []LedgerEntry {
	base := LedgerEntry{
		TransactionID: tx.ID,
		LineItemID:    item.ID,
		Amount:        amount,
		PeriodID:      period.ID,
		Date:          tx.Date,
		Currency:      tx.Currency,
		CreatedAt:     now,
	}
	main := base
	main.ID = uuid.New()
	main.Type = side
	main.PostAccount = tx.Account.ID
	main.FolioAccount = folio

	counter := base
	counter.ID = uuid.New()
	counter.Type = side.Opposite()
	counter.PostAccount = folio
	counter.FolioAccount = tx.Account.ID
	return []LedgerEntry{main, counter}
}

// Totals sums the debit and credit sides of entries.
func Totals(entries []LedgerEntry) (debit, credit decimal.Decimal) {
	debit, credit = decimal.Zero, decimal.Zero
	for _, e := range entries {
		if e.Type == Debit {
			debit = debit.Add(e.Amount)
		} else {
			credit = credit.Add(e.Amount)
		}
	}
	return debit, credit
}

// CheckBalanced returns an UnbalancedPostingError when debits differ from credits.
func CheckBalanced(entries []LedgerEntry) error {
	debit, credit := Totals(entries)
	if !debit.Equal(credit) {
		return &UnbalancedPostingError{Debit: debit, Credit: credit}
	}
	return nil
}
