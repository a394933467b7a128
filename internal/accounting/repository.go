package accounting

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Reader exposes the read side of the ledger store.
type Reader interface {
	BalanceReader
	FindAccount(ctx context.Context, id uuid.UUID) (Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)
	AccountHasEntries(ctx context.Context, accountID uuid.UUID) (bool, error)
	FindTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	FetchTransactions(ctx context.Context, filter TransactionFilter) ([]*Transaction, error)
	FindPeriodByDate(ctx context.Context, date time.Time) (Period, error)
	FindPeriodByYear(ctx context.Context, year int) (Period, error)
	ListPeriods(ctx context.Context) ([]Period, error)
	ListPeriodEntries(ctx context.Context, periodID int64) ([]LedgerEntry, error)
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	Reader
	// LockTransaction loads the transaction and holds it until the unit of work ends.
	LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error)
	SaveAccount(ctx context.Context, account Account) error
	SaveTransaction(ctx context.Context, tx *Transaction) error
	DeleteTransaction(ctx context.Context, id uuid.UUID) error
	SaveEntries(ctx context.Context, entries []LedgerEntry) error
	MarkPosted(ctx context.Context, id uuid.UUID, at time.Time) error
	// MarkReversed links a posted transaction to the journal entry reversing it.
	MarkReversed(ctx context.Context, id, reversal uuid.UUID) error
	// ClaimSequence advances the reference counter of typ in the period to
	// max(current+1, atLeast) and returns it. The counter never decreases.
	ClaimSequence(ctx context.Context, typ TransactionType, periodID int64, atLeast int) (int, error)
	SavePeriod(ctx context.Context, period Period) (Period, error)
	SaveOpeningBalance(ctx context.Context, balance OpeningBalance) error
}

// Repository runs units of work against the ledger store.
type Repository interface {
	// WithTx runs fn atomically. Nothing fn writes is visible unless it returns nil.
	// fn may run more than once when the store retries a serialization failure.
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	// Snapshot runs fn against a consistent read-only view.
	Snapshot(ctx context.Context, fn func(context.Context, Reader) error) error
}
