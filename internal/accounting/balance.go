package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceReader is the slice of Reader the balance resolver needs.
type BalanceReader interface {
	FindEntries(ctx context.Context, accountID uuid.UUID, periodID int64, upTo time.Time) ([]LedgerEntry, error)
	OpeningBalance(ctx context.Context, accountID uuid.UUID, periodID int64) (decimal.Decimal, error)
}

// ClosingBalance returns the signed balance of account at asOf within period,
// debit positive. Only entries posted to the account count; the folio side of
// each pair is carried by its counterpart entry.
func ClosingBalance(ctx context.Context, r BalanceReader, account Account, period Period, asOf time.Time) (decimal.Decimal, error) {
	opening, err := r.OpeningBalance(ctx, account.ID, period.ID)
	if err != nil {
		return decimal.Zero, err
	}
	entries, err := r.FindEntries(ctx, account.ID, period.ID, DateOf(asOf))
	if err != nil {
		return decimal.Zero, err
	}
	return opening.Add(SumEntries(account.ID, entries)), nil
}

// SumEntries nets the entries posted to accountID, debits positive.
func SumEntries(accountID uuid.UUID, entries []LedgerEntry) decimal.Decimal {
	total := decimal.Zero
	for _, e := range entries {
		if e.PostAccount != accountID {
			continue
		}
		if e.Type == Debit {
			total = total.Add(e.Amount)
		} else {
			total = total.Sub(e.Amount)
		}
	}
	return total
}
