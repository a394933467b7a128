// Package memory keeps the ledger in process memory. Writers work on a copy of
// the state which replaces the current one only when the unit of work succeeds,
// so readers always see a complete posting or none of it.
package memory

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

type openingKey struct {
	account uuid.UUID
	period  int64
}

type sequenceKey struct {
	typ    accounting.TransactionType
	period int64
}

type state struct {
	accounts     map[uuid.UUID]accounting.Account
	transactions map[uuid.UUID]*accounting.Transaction
	entries      []accounting.LedgerEntry
	periods      []accounting.Period
	openings     map[openingKey]accounting.OpeningBalance
	sequences    map[sequenceKey]int
	nextPeriodID int64
}

func newState() *state {
	return &state{
		accounts:     make(map[uuid.UUID]accounting.Account),
		transactions: make(map[uuid.UUID]*accounting.Transaction),
		openings:     make(map[openingKey]accounting.OpeningBalance),
		sequences:    make(map[sequenceKey]int),
		nextPeriodID: 1,
	}
}

// clone copies the containers. Stored values are never mutated in place.
func (s *state) clone() *state {
	out := &state{
		accounts:     make(map[uuid.UUID]accounting.Account, len(s.accounts)),
		transactions: make(map[uuid.UUID]*accounting.Transaction, len(s.transactions)),
		entries:      append([]accounting.LedgerEntry(nil), s.entries...),
		periods:      append([]accounting.Period(nil), s.periods...),
		openings:     make(map[openingKey]accounting.OpeningBalance, len(s.openings)),
		sequences:    make(map[sequenceKey]int, len(s.sequences)),
		nextPeriodID: s.nextPeriodID,
	}
	for k, v := range s.sequences {
		out.sequences[k] = v
	}
	for k, v := range s.accounts {
		out.accounts[k] = v
	}
	for k, v := range s.transactions {
		out.transactions[k] = v
	}
	for k, v := range s.openings {
		out.openings[k] = v
	}
	return out
}

// Store is an accounting.Repository backed by memory.
type Store struct {
	mu      sync.Mutex
	current atomic.Pointer[state]
}

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.current.Store(newState())
	return s
}

// WithTx runs fn against a private copy and publishes it when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	draft := s.current.Load().clone()
	if err := fn(ctx, &view{st: draft}); err != nil {
		return err
	}
	s.current.Store(draft)
	return nil
}

// Snapshot runs fn against the state published at call time.
func (s *Store) Snapshot(ctx context.Context, fn func(context.Context, accounting.Reader) error) error {
	return fn(ctx, &view{st: s.current.Load()})
}

type view struct {
	st *state
}

func (v *view) FindAccount(ctx context.Context, id uuid.UUID) (accounting.Account, error) {
	a, ok := v.st.accounts[id]
	if !ok {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, nil
}

func (v *view) ListAccounts(ctx context.Context) ([]accounting.Account, error) {
	out := make([]accounting.Account, 0, len(v.st.accounts))
	for _, a := range v.st.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Code == out[j].Code {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Code < out[j].Code
	})
	return out, nil
}

func (v *view) AccountHasEntries(ctx context.Context, accountID uuid.UUID) (bool, error) {
	for _, e := range v.st.entries {
		if e.PostAccount == accountID || e.FolioAccount == accountID {
			return true, nil
		}
	}
	return false, nil
}

func (v *view) FindEntries(ctx context.Context, accountID uuid.UUID, periodID int64, upTo time.Time) ([]accounting.LedgerEntry, error) {
	var out []accounting.LedgerEntry
	for _, e := range v.st.entries {
		if e.PeriodID != periodID || e.Date.After(upTo) {
			continue
		}
		if e.PostAccount == accountID || e.FolioAccount == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) OpeningBalance(ctx context.Context, accountID uuid.UUID, periodID int64) (decimal.Decimal, error) {
	ob, ok := v.st.openings[openingKey{account: accountID, period: periodID}]
	if !ok {
		return decimal.Zero, nil
	}
	return ob.Signed(), nil
}

func (v *view) FindTransaction(ctx context.Context, id uuid.UUID) (*accounting.Transaction, error) {
	tx, ok := v.st.transactions[id]
	if !ok {
		return nil, accounting.ErrTransactionNotFound
	}
	return tx.Clone(), nil
}

func (v *view) FetchTransactions(ctx context.Context, filter accounting.TransactionFilter) ([]*accounting.Transaction, error) {
	out := make([]*accounting.Transaction, 0)
	for _, tx := range v.st.transactions {
		if filter.Matches(tx) {
			out = append(out, tx.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date.Equal(out[j].Date) {
			return out[i].Reference < out[j].Reference
		}
		return out[i].Date.Before(out[j].Date)
	})
	return out, nil
}

func (v *view) ClaimSequence(ctx context.Context, typ accounting.TransactionType, periodID int64, atLeast int) (int, error) {
	key := sequenceKey{typ: typ, period: periodID}
	next := max(v.st.sequences[key]+1, atLeast)
	v.st.sequences[key] = next
	return next, nil
}

func (v *view) FindPeriodByDate(ctx context.Context, date time.Time) (accounting.Period, error) {
	for _, p := range v.st.periods {
		if p.Contains(date) {
			return p, nil
		}
	}
	return accounting.Period{}, accounting.ErrMissingPeriod
}

func (v *view) FindPeriodByYear(ctx context.Context, year int) (accounting.Period, error) {
	for _, p := range v.st.periods {
		if p.Year == year {
			return p, nil
		}
	}
	return accounting.Period{}, accounting.ErrMissingPeriod
}

func (v *view) ListPeriods(ctx context.Context) ([]accounting.Period, error) {
	return append([]accounting.Period(nil), v.st.periods...), nil
}

func (v *view) ListPeriodEntries(ctx context.Context, periodID int64) ([]accounting.LedgerEntry, error) {
	var out []accounting.LedgerEntry
	for _, e := range v.st.entries {
		if e.PeriodID == periodID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (v *view) LockTransaction(ctx context.Context, id uuid.UUID) (*accounting.Transaction, error) {
	return v.FindTransaction(ctx, id)
}

func (v *view) SaveAccount(ctx context.Context, account accounting.Account) error {
	for id, existing := range v.st.accounts {
		if id != account.ID && account.Code != "" && existing.Code == account.Code {
			return accounting.ErrDuplicateAccount
		}
	}
	v.st.accounts[account.ID] = account
	return nil
}

func (v *view) SaveTransaction(ctx context.Context, tx *accounting.Transaction) error {
	v.st.transactions[tx.ID] = tx.Clone()
	return nil
}

func (v *view) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	if _, ok := v.st.transactions[id]; !ok {
		return accounting.ErrTransactionNotFound
	}
	delete(v.st.transactions, id)
	return nil
}

func (v *view) SaveEntries(ctx context.Context, entries []accounting.LedgerEntry) error {
	v.st.entries = append(v.st.entries, entries...)
	return nil
}

func (v *view) MarkPosted(ctx context.Context, id uuid.UUID, at time.Time) error {
	current, ok := v.st.transactions[id]
	if !ok {
		return accounting.ErrTransactionNotFound
	}
	posted := current.Clone()
	posted.Posted = true
	posted.PostedAt = &at
	v.st.transactions[id] = posted
	return nil
}

func (v *view) MarkReversed(ctx context.Context, id, reversal uuid.UUID) error {
	current, ok := v.st.transactions[id]
	if !ok {
		return accounting.ErrTransactionNotFound
	}
	if current.ReversedBy != nil {
		return accounting.ErrTransactionReversed
	}
	reversed := current.Clone()
	reversed.ReversedBy = &reversal
	v.st.transactions[id] = reversed
	return nil
}

func (v *view) SavePeriod(ctx context.Context, period accounting.Period) (accounting.Period, error) {
	if period.ID == 0 {
		period.ID = v.st.nextPeriodID
		v.st.nextPeriodID++
		v.st.periods = append(v.st.periods, period)
		return period, nil
	}
	for i, p := range v.st.periods {
		if p.ID == period.ID {
			v.st.periods[i] = period
			return period, nil
		}
	}
	return accounting.Period{}, accounting.ErrMissingPeriod
}

func (v *view) SaveOpeningBalance(ctx context.Context, balance accounting.OpeningBalance) error {
	v.st.openings[openingKey{account: balance.AccountID, period: balance.PeriodID}] = balance
	return nil
}
