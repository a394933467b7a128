package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/currency"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// CacheBumper invalidates derived report caches after the ledger changes.
type CacheBumper interface {
	Bump(ctx context.Context) error
}

// PostingObserver receives posting counters.
type PostingObserver interface {
	ObservePosting(txType string, entries int)
	ObservePostingFailure(txType, reason string)
}

// Service coordinates saving, posting, reversing and querying transactions.
type Service struct {
	repo     Repository
	audit    AuditPort
	seq      Sequencer
	bumper   CacheBumper
	observer PostingObserver
	logger   *slog.Logger
	now      func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo Repository, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, audit: audit, seq: StoreSequencer{}, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithSequencer replaces the reference sequence source.
func (s *Service) WithSequencer(seq Sequencer) {
	if seq != nil {
		s.seq = seq
	}
}

// WithCacheBumper registers a report cache to invalidate after postings.
func (s *Service) WithCacheBumper(b CacheBumper) {
	s.bumper = b
}

// WithObserver registers posting metrics.
func (s *Service) WithObserver(o PostingObserver) {
	s.observer = o
}

// AccountInput describes a new chart of accounts entry.
type AccountInput struct {
	Code        string
	Name        string
	Description string
	Type        AccountType
	Currency    string
}

// CreateAccount stores a new account.
func (s *Service) CreateAccount(ctx context.Context, in AccountInput) (Account, error) {
	if !in.Type.Valid() {
		return Account{}, ErrInvalidAccountType
	}
	if strings.TrimSpace(in.Name) == "" {
		return Account{}, errors.New("accounting: account name required")
	}
	code, err := currency.Normalize(in.Currency)
	if err != nil {
		return Account{}, err
	}
	now := s.now()
	account := Account{
		ID:          uuid.New(),
		Code:        strings.TrimSpace(in.Code),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Type:        in.Type,
		Currency:    code,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SaveAccount(ctx, account)
	})
	if err != nil {
		return Account{}, err
	}
	s.bump(ctx)
	return account, nil
}

// ChangeAccountType updates the type of an account without ledger entries.
func (s *Service) ChangeAccountType(ctx context.Context, id uuid.UUID, typ AccountType) (Account, error) {
	if !typ.Valid() {
		return Account{}, ErrInvalidAccountType
	}
	var account Account
	changed := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		changed = false
		current, err := tx.FindAccount(ctx, id)
		if err != nil {
			return err
		}
		if current.Type == typ {
			account = current
			return nil
		}
		used, err := tx.AccountHasEntries(ctx, id)
		if err != nil {
			return err
		}
		if used {
			return ErrAccountTypeLocked
		}
		current.Type = typ
		current.UpdatedAt = s.now()
		account = current
		changed = true
		return tx.SaveAccount(ctx, current)
	})
	if err != nil {
		return Account{}, err
	}
	if changed {
		s.bump(ctx)
	}
	return account, nil
}

// FindAccount loads an account.
func (s *Service) FindAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	var account Account
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		account, err = r.FindAccount(ctx, id)
		return err
	})
	return account, err
}

// ListAccounts returns the chart of accounts.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		accounts, err = r.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// OpenPeriod creates the calendar year period, or returns it when it exists.
func (s *Service) OpenPeriod(ctx context.Context, year int) (Period, error) {
	var period Period
	created := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created = false
		existing, err := tx.FindPeriodByYear(ctx, year)
		if err == nil {
			period = existing
			return nil
		}
		if !errors.Is(err, ErrMissingPeriod) {
			return err
		}
		periods, err := tx.ListPeriods(ctx)
		if err != nil {
			return err
		}
		period, err = tx.SavePeriod(ctx, CalendarPeriod(year, len(periods)+1))
		created = err == nil
		return err
	})
	if err != nil {
		return Period{}, err
	}
	if created {
		s.bump(ctx)
	}
	return period, nil
}

// ClosePeriod stops further postings into the year.
func (s *Service) ClosePeriod(ctx context.Context, year int) (Period, error) {
	var period Period
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.FindPeriodByYear(ctx, year)
		if err != nil {
			return err
		}
		current.Status = PeriodStatusClosed
		period, err = tx.SavePeriod(ctx, current)
		return err
	})
	if err != nil {
		return Period{}, err
	}
	s.bump(ctx)
	return period, nil
}

// SetOpeningBalance records the balance an account carries into a year.
func (s *Service) SetOpeningBalance(ctx context.Context, accountID uuid.UUID, year int, side EntryType, amount decimal.Decimal) error {
	if !side.Valid() {
		return fmt.Errorf("accounting: invalid entry type %q", side)
	}
	if amount.IsNegative() {
		return &NegativeAmountError{Field: "opening balance", Amount: amount}
	}
	if !fitsScale(amount) {
		return ErrAmountPrecision
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.FindAccount(ctx, accountID); err != nil {
			return err
		}
		period, err := tx.FindPeriodByYear(ctx, year)
		if err != nil {
			return err
		}
		return tx.SaveOpeningBalance(ctx, OpeningBalance{AccountID: accountID, PeriodID: period.ID, Type: side, Amount: amount})
	})
	if err != nil {
		return err
	}
	s.bump(ctx)
	return nil
}

// Save persists an unposted transaction, assigning its id and reference number.
func (s *Service) Save(ctx context.Context, t *Transaction) error {
	if t == nil {
		return errors.New("accounting: transaction required")
	}
	if t.Posted {
		return ErrTransactionPosted
	}
	var draft *Transaction
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft = t.Clone()
		if draft.ID != uuid.Nil {
			current, err := tx.LockTransaction(ctx, draft.ID)
			if err != nil && !errors.Is(err, ErrTransactionNotFound) {
				return err
			}
			if err == nil && current.Posted {
				return ErrTransactionPosted
			}
		}
		if err := s.hydrate(ctx, tx, draft); err != nil {
			return err
		}
		period, err := s.periodFor(ctx, tx, draft.Date)
		if err != nil {
			return err
		}
		return s.save(ctx, tx, draft, period)
	})
	if err != nil {
		return err
	}
	*t = *draft
	return nil
}

func (s *Service) save(ctx context.Context, tx TxRepository, t *Transaction, period Period) error {
	if _, err := PolicyFor(t.Type); err != nil {
		return err
	}
	if t.Account.ID == uuid.Nil {
		return ErrMainAccountRequired
	}
	t.Date = DateOf(t.Date)
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
		t.CreatedAt = s.now()
	}
	if t.Currency == "" {
		t.Currency = t.Account.Currency
	}
	if t.Currency != "" {
		code, err := currency.Normalize(t.Currency)
		if err != nil {
			return err
		}
		t.Currency = code
	}
	for i := range t.LineItems {
		if t.LineItems[i].ID == uuid.Nil {
			t.LineItems[i].ID = uuid.New()
		}
	}
	if t.Reference == "" || t.PeriodID != period.ID {
		policy, _ := PolicyFor(t.Type)
		seq, err := s.seq.Next(ctx, tx, t.Type, period)
		if err != nil {
			return err
		}
		t.Reference = FormatReference(policy.Prefix, period.Count, seq)
	}
	t.PeriodID = period.ID
	return tx.SaveTransaction(ctx, t)
}

func (s *Service) periodFor(ctx context.Context, tx Reader, date time.Time) (Period, error) {
	period, err := tx.FindPeriodByDate(ctx, date)
	if err != nil {
		return Period{}, err
	}
	if period.Status == PeriodStatusClosed {
		return Period{}, ErrPeriodClosed
	}
	return period, nil
}

// hydrate replaces caller supplied accounts with the stored versions.
func (s *Service) hydrate(ctx context.Context, tx Reader, t *Transaction) error {
	if t.Account.ID == uuid.Nil {
		return ErrMainAccountRequired
	}
	main, err := tx.FindAccount(ctx, t.Account.ID)
	if err != nil {
		return fmt.Errorf("main account: %w", err)
	}
	t.Account = main
	for i := range t.LineItems {
		item := &t.LineItems[i]
		folio, err := tx.FindAccount(ctx, item.Account.ID)
		if err != nil {
			return fmt.Errorf("line item account: %w", err)
		}
		item.Account = folio
		if item.VatAccount != nil && item.VatAccount.ID != uuid.Nil {
			vat, err := tx.FindAccount(ctx, item.VatAccount.ID)
			if err != nil {
				return fmt.Errorf("vat account: %w", err)
			}
			item.VatAccount = &vat
		}
	}
	return nil
}

// Post validates the transaction and writes its ledger entries atomically.
// Posting an already posted transaction is a no-op.
func (s *Service) Post(ctx context.Context, t *Transaction) error {
	if t == nil {
		return errors.New("accounting: transaction required")
	}
	if t.Posted {
		return nil
	}
	var draft *Transaction
	var entries []LedgerEntry
	alreadyPosted := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		draft = t.Clone()
		alreadyPosted = false
		if draft.ID != uuid.Nil {
			current, err := tx.LockTransaction(ctx, draft.ID)
			if err != nil && !errors.Is(err, ErrTransactionNotFound) {
				return err
			}
			if err == nil && current.Posted {
				alreadyPosted = true
				draft = current
				return nil
			}
		}
		var err error
		entries, err = s.post(ctx, tx, draft)
		return err
	})
	if err != nil {
		if s.observer != nil {
			s.observer.ObservePostingFailure(string(t.Type), failureReason(err))
		}
		return err
	}
	*t = *draft
	if alreadyPosted {
		return nil
	}
	s.afterPost(ctx, t, "transaction.post", len(entries))
	return nil
}

// post saves t and writes its balanced entries inside tx.
func (s *Service) post(ctx context.Context, tx TxRepository, t *Transaction) ([]LedgerEntry, error) {
	if err := s.hydrate(ctx, tx, t); err != nil {
		return nil, err
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	period, err := s.periodFor(ctx, tx, t.Date)
	if err != nil {
		return nil, err
	}
	if err := s.save(ctx, tx, t, period); err != nil {
		return nil, err
	}
	now := s.now()
	entries, err := BuildEntries(t, period, now)
	if err != nil {
		return nil, err
	}
	if err := CheckBalanced(entries); err != nil {
		s.logger.Error("unbalanced posting",
			slog.String("transaction_id", t.ID.String()),
			slog.String("reference", t.Reference),
			slog.Any("error", err))
		return nil, err
	}
	if err := tx.SaveEntries(ctx, entries); err != nil {
		return nil, err
	}
	if err := tx.MarkPosted(ctx, t.ID, now); err != nil {
		return nil, err
	}
	t.Posted = true
	t.PostedAt = &now
	return entries, nil
}

// bump invalidates cached statements. Failures only cost a stale read until
// the cache TTL expires, so they are logged.
func (s *Service) bump(ctx context.Context) {
	if s.bumper == nil {
		return
	}
	if err := s.bumper.Bump(ctx); err != nil {
		s.logger.Warn("bump report cache", slog.Any("error", err))
	}
}

func (s *Service) afterPost(ctx context.Context, t *Transaction, action string, entries int) {
	if s.observer != nil {
		s.observer.ObservePosting(string(t.Type), entries)
	}
	s.bump(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   action,
			Entity:   "transaction",
			EntityID: t.ID.String(),
			Meta: map[string]any{
				"reference": t.Reference,
				"type":      string(t.Type),
				"amount":    t.Amount().StringFixed(2),
				"entries":   entries,
			},
			At: s.now(),
		})
	}
}

func failureReason(err error) string {
	var unbalanced *UnbalancedPostingError
	switch {
	case errors.As(err, &unbalanced):
		return "unbalanced"
	case IsValidation(err):
		return "validation"
	case errors.Is(err, ErrPeriodClosed), errors.Is(err, ErrMissingPeriod):
		return "period"
	default:
		return "error"
	}
}

// ReverseInput wraps parameters for reversal.
type ReverseInput struct {
	TransactionID uuid.UUID
	Date          *time.Time
	Narration     string
}

// Reverse posts a journal entry that undoes a posted transaction. A
// transaction can be reversed once; the link is stored on both sides.
func (s *Service) Reverse(ctx context.Context, in ReverseInput) (*Transaction, error) {
	var reversal *Transaction
	var entries []LedgerEntry
	posting := false
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		posting = false
		original, err := tx.LockTransaction(ctx, in.TransactionID)
		if err != nil {
			return err
		}
		if !original.Posted {
			return ErrTransactionNotPosted
		}
		if original.ReversedBy != nil {
			return ErrTransactionReversed
		}
		reversal, err = reversalOf(original, in)
		if err != nil {
			return err
		}
		posting = true
		entries, err = s.post(ctx, tx, reversal)
		if err != nil {
			return err
		}
		return tx.MarkReversed(ctx, original.ID, reversal.ID)
	})
	if err != nil {
		if s.observer != nil && posting {
			s.observer.ObservePostingFailure(string(JournalEntry), failureReason(err))
		}
		return nil, err
	}
	s.afterPost(ctx, reversal, "transaction.post", len(entries))
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			Actor:    shared.ActorFromContext(ctx),
			Action:   "transaction.reverse",
			Entity:   "transaction",
			EntityID: in.TransactionID.String(),
			Meta:     map[string]any{"reversal_id": reversal.ID.String(), "reversal_reference": reversal.Reference},
			At:       s.now(),
		})
	}
	return reversal, nil
}

// reversalOf builds the unposted journal entry that flips every line of original.
func reversalOf(original *Transaction, in ReverseInput) (*Transaction, error) {
	policy, err := PolicyFor(original.Type)
	if err != nil {
		return nil, err
	}
	date := original.Date
	if in.Date != nil {
		date = *in.Date
	}
	narration := in.Narration
	if narration == "" {
		narration = "Reversal of " + original.Reference
	}
	reversal := NewTransaction(JournalEntry, original.Account, date, narration)
	reversal.Currency = original.Currency
	id := original.ID
	reversal.ReversalOf = &id
	for _, item := range original.LineItems {
		line := item
		line.ID = uuid.Nil
		line.MainSide = policy.SideFor(item).Opposite()
		if err := reversal.AddLineItem(line); err != nil {
			return nil, err
		}
	}
	return reversal, nil
}

// Delete removes an unposted transaction with its line items.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.LockTransaction(ctx, id)
		if err != nil {
			return err
		}
		if current.Posted {
			return ErrTransactionPosted
		}
		return tx.DeleteTransaction(ctx, id)
	})
}

// Find loads a transaction with its line items.
func (s *Service) Find(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	var found *Transaction
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		found, err = r.FindTransaction(ctx, id)
		return err
	})
	return found, err
}

// Fetch lists transactions matching the filter, oldest first.
func (s *Service) Fetch(ctx context.Context, filter TransactionFilter) ([]*Transaction, error) {
	if filter.Currency != "" {
		code, err := currency.Normalize(filter.Currency)
		if err != nil {
			return nil, err
		}
		filter.Currency = code
	}
	var out []*Transaction
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		var err error
		out, err = r.FetchTransactions(ctx, filter)
		return err
	})
	return out, err
}

// ClosingBalance returns the signed balance of the account at asOf.
func (s *Service) ClosingBalance(ctx context.Context, accountID uuid.UUID, asOf time.Time) (decimal.Decimal, error) {
	balance := decimal.Zero
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		account, err := r.FindAccount(ctx, accountID)
		if err != nil {
			return err
		}
		period, err := r.FindPeriodByDate(ctx, asOf)
		if err != nil {
			return err
		}
		balance, err = ClosingBalance(ctx, r, account, period, asOf)
		return err
	})
	return balance, err
}

// VerifyPeriod sums every entry in the year and fails when the sides differ.
func (s *Service) VerifyPeriod(ctx context.Context, year int) (PeriodTotals, error) {
	var totals PeriodTotals
	err := s.repo.Snapshot(ctx, func(ctx context.Context, r Reader) error {
		period, err := r.FindPeriodByYear(ctx, year)
		if err != nil {
			return err
		}
		entries, err := r.ListPeriodEntries(ctx, period.ID)
		if err != nil {
			return err
		}
		debit, credit := Totals(entries)
		totals = PeriodTotals{Period: period, Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return PeriodTotals{}, err
	}
	if !totals.Debit.Equal(totals.Credit) {
		return totals, &UnbalancedPostingError{Debit: totals.Debit, Credit: totals.Credit}
	}
	return totals, nil
}
