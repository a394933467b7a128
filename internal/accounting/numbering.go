package accounting

import (
	"context"
	"fmt"
)

// Sequencer hands out the next reference sequence for a type within a period.
type Sequencer interface {
	Next(ctx context.Context, tx TxRepository, typ TransactionType, period Period) (int, error)
}

// StoreSequencer claims sequences from the counter kept by the store. The
// counter never goes down, so deleting a draft does not free its number.
type StoreSequencer struct{}

// Next claims the next value of the stored counter.
func (StoreSequencer) Next(ctx context.Context, tx TxRepository, typ TransactionType, period Period) (int, error) {
	return tx.ClaimSequence(ctx, typ, period.ID, 0)
}

// FormatReference renders a reference number such as DN01/0001.
func FormatReference(prefix string, periodCount, seq int) string {
	return fmt.Sprintf("%s%02d/%04d", prefix, periodCount, seq)
}
