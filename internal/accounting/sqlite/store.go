// Package sqlite stores the ledger in a single SQLite file for local and
// single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

const (
	dateLayout      = "2006-01-02"
	timestampLayout = "2006-01-02 15:04:05.000000000"
)

// Store is an accounting.Repository backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
	// SQLite allows one writer; serialising here avoids busy errors.
	writeMu sync.Mutex
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	if err := applySchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(Schema); err != nil {
		return err
	}
	for _, up := range upgrades {
		var found int
		err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, up.table, up.column).Scan(&found)
		if err != nil {
			return err
		}
		if found > 0 {
			continue
		}
		if _, err := db.Exec(up.ddl); err != nil {
			return fmt.Errorf("%s.%s: %w", up.table, up.column, err)
		}
	}
	_, err := db.Exec(seedSequences)
	return err
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Ping checks the database handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WithTx runs fn in a write transaction committed only when fn succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, accounting.TxRepository) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(ctx, &repo{q: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Snapshot runs fn inside a read transaction. WAL mode keeps the view stable.
func (s *Store) Snapshot(ctx context.Context, fn func(context.Context, accounting.Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	return fn(ctx, &repo{q: tx})
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type scanner interface {
	Scan(dest ...any) error
}

type repo struct {
	q querier
}

func formatDate(t time.Time) string {
	return accounting.DateOf(t).Format(dateLayout)
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

func parseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

func parseTimestamp(s string) (time.Time, error) {
	return time.ParseInLocation(timestampLayout, s, time.UTC)
}

func isUnique(err error, column string) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique && strings.Contains(se.Error(), column)
	}
	return false
}

const accountColumns = `id, code, name, description, type, currency, created_at, updated_at`

func scanAccount(row scanner) (accounting.Account, error) {
	var a accounting.Account
	var created, updated string
	if err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Type, &a.Currency, &created, &updated); err != nil {
		return accounting.Account{}, err
	}
	var err error
	if a.CreatedAt, err = parseTimestamp(created); err != nil {
		return accounting.Account{}, err
	}
	if a.UpdatedAt, err = parseTimestamp(updated); err != nil {
		return accounting.Account{}, err
	}
	return a, nil
}

func (r *repo) FindAccount(ctx context.Context, id uuid.UUID) (accounting.Account, error) {
	a, err := scanAccount(r.q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return accounting.Account{}, accounting.ErrAccountNotFound
	}
	return a, err
}

func (r *repo) ListAccounts(ctx context.Context) ([]accounting.Account, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounting.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *repo) AccountHasEntries(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var used bool
	err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE post_account = ?1 OR folio_account = ?1)`, accountID.String()).Scan(&used)
	return used, err
}

func (r *repo) SaveAccount(ctx context.Context, a accounting.Account) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO accounts (`+accountColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET code = excluded.code, name = excluded.name, description = excluded.description,
type = excluded.type, currency = excluded.currency, updated_at = excluded.updated_at`,
		a.ID.String(), a.Code, a.Name, a.Description, string(a.Type), a.Currency, formatTimestamp(a.CreatedAt), formatTimestamp(a.UpdatedAt))
	if isUnique(err, "accounts.code") {
		return accounting.ErrDuplicateAccount
	}
	return err
}

const entryColumns = `id, transaction_id, line_item_id, type, amount, post_account, folio_account, period_id, date, currency, created_at`

func scanEntries(rows *sql.Rows) ([]accounting.LedgerEntry, error) {
	defer rows.Close()
	var out []accounting.LedgerEntry
	for rows.Next() {
		var e accounting.LedgerEntry
		var date, created string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.LineItemID, &e.Type, &e.Amount, &e.PostAccount, &e.FolioAccount, &e.PeriodID, &date, &e.Currency, &created); err != nil {
			return nil, err
		}
		var err error
		if e.Date, err = parseDate(date); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTimestamp(created); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *repo) FindEntries(ctx context.Context, accountID uuid.UUID, periodID int64, upTo time.Time) ([]accounting.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE (post_account = ?1 OR folio_account = ?1) AND period_id = ?2 AND date <= ?3 ORDER BY date, created_at`,
		accountID.String(), periodID, formatDate(upTo))
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *repo) ListPeriodEntries(ctx context.Context, periodID int64) ([]accounting.LedgerEntry, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE period_id = ? ORDER BY date, created_at`, periodID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *repo) SaveEntries(ctx context.Context, entries []accounting.LedgerEntry) error {
	for _, e := range entries {
		if _, err := r.q.ExecContext(ctx, `INSERT INTO ledger_entries (`+entryColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ID.String(), e.TransactionID.String(), e.LineItemID.String(), string(e.Type), e.Amount.String(),
			e.PostAccount.String(), e.FolioAccount.String(), e.PeriodID, formatDate(e.Date), e.Currency, formatTimestamp(e.CreatedAt)); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) OpeningBalance(ctx context.Context, accountID uuid.UUID, periodID int64) (decimal.Decimal, error) {
	var ob accounting.OpeningBalance
	err := r.q.QueryRowContext(ctx, `SELECT type, amount FROM opening_balances WHERE account_id = ? AND period_id = ?`,
		accountID.String(), periodID).Scan(&ob.Type, &ob.Amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return ob.Signed(), nil
}

func (r *repo) SaveOpeningBalance(ctx context.Context, b accounting.OpeningBalance) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO opening_balances (account_id, period_id, type, amount) VALUES (?, ?, ?, ?)
ON CONFLICT (account_id, period_id) DO UPDATE SET type = excluded.type, amount = excluded.amount`,
		b.AccountID.String(), b.PeriodID, string(b.Type), b.Amount.String())
	return err
}

const periodColumns = `id, count, year, start_date, end_date, status`

func scanPeriod(row scanner) (accounting.Period, error) {
	var p accounting.Period
	var start, end string
	if err := row.Scan(&p.ID, &p.Count, &p.Year, &start, &end, &p.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return accounting.Period{}, accounting.ErrMissingPeriod
		}
		return accounting.Period{}, err
	}
	var err error
	if p.Start, err = parseDate(start); err != nil {
		return accounting.Period{}, err
	}
	if p.End, err = parseDate(end); err != nil {
		return accounting.Period{}, err
	}
	return p, nil
}

func (r *repo) FindPeriodByDate(ctx context.Context, date time.Time) (accounting.Period, error) {
	return scanPeriod(r.q.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods
WHERE start_date <= ?1 AND end_date >= ?1 ORDER BY start_date LIMIT 1`, formatDate(date)))
}

func (r *repo) FindPeriodByYear(ctx context.Context, year int) (accounting.Period, error) {
	return scanPeriod(r.q.QueryRowContext(ctx, `SELECT `+periodColumns+` FROM periods WHERE year = ?`, year))
}

func (r *repo) ListPeriods(ctx context.Context) ([]accounting.Period, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []accounting.Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *repo) SavePeriod(ctx context.Context, p accounting.Period) (accounting.Period, error) {
	if p.ID == 0 {
		res, err := r.q.ExecContext(ctx, `INSERT INTO periods (count, year, start_date, end_date, status) VALUES (?, ?, ?, ?, ?)`,
			p.Count, p.Year, formatDate(p.Start), formatDate(p.End), string(p.Status))
		if err != nil {
			return accounting.Period{}, err
		}
		if p.ID, err = res.LastInsertId(); err != nil {
			return accounting.Period{}, err
		}
		return p, nil
	}
	res, err := r.q.ExecContext(ctx, `UPDATE periods SET count = ?, year = ?, start_date = ?, end_date = ?, status = ? WHERE id = ?`,
		p.Count, p.Year, formatDate(p.Start), formatDate(p.End), string(p.Status), p.ID)
	if err != nil {
		return accounting.Period{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accounting.Period{}, accounting.ErrMissingPeriod
	}
	return p, nil
}

const transactionColumns = `id, type, date, reference, account_id, narration, currency, period_id, posted, posted_at, created_at, reversal_of, reversed_by`

type transactionRow struct {
	tx        accounting.Transaction
	accountID uuid.UUID
}

func scanTransaction(row scanner) (transactionRow, error) {
	var out transactionRow
	t := &out.tx
	var date, created string
	var postedAt sql.NullString
	var reversalOf, reversedBy uuid.NullUUID
	if err := row.Scan(&t.ID, &t.Type, &date, &t.Reference, &out.accountID, &t.Narration, &t.Currency, &t.PeriodID, &t.Posted, &postedAt, &created, &reversalOf, &reversedBy); err != nil {
		return transactionRow{}, err
	}
	if reversalOf.Valid {
		t.ReversalOf = &reversalOf.UUID
	}
	if reversedBy.Valid {
		t.ReversedBy = &reversedBy.UUID
	}
	var err error
	if t.Date, err = parseDate(date); err != nil {
		return transactionRow{}, err
	}
	if t.CreatedAt, err = parseTimestamp(created); err != nil {
		return transactionRow{}, err
	}
	if postedAt.Valid {
		at, err := parseTimestamp(postedAt.String)
		if err != nil {
			return transactionRow{}, err
		}
		t.PostedAt = &at
	}
	return out, nil
}

func (r *repo) hydrate(ctx context.Context, row transactionRow) (*accounting.Transaction, error) {
	t := row.tx
	main, err := r.FindAccount(ctx, row.accountID)
	if err != nil {
		return nil, err
	}
	t.Account = main
	if t.LineItems, err = r.lineItems(ctx, t.ID); err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repo) lineItems(ctx context.Context, transactionID uuid.UUID) ([]accounting.LineItem, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, account_id, amount, vat_rate, vat_account_id, narration, main_side
FROM line_items WHERE transaction_id = ? ORDER BY position`, transactionID.String())
	if err != nil {
		return nil, err
	}
	type rawLine struct {
		item      accounting.LineItem
		accountID uuid.UUID
		vatID     uuid.NullUUID
	}
	var raws []rawLine
	for rows.Next() {
		var raw rawLine
		if err := rows.Scan(&raw.item.ID, &raw.accountID, &raw.item.Amount, &raw.item.VatRate, &raw.vatID, &raw.item.Narration, &raw.item.MainSide); err != nil {
			rows.Close()
			return nil, err
		}
		raws = append(raws, raw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items := make([]accounting.LineItem, 0, len(raws))
	for _, raw := range raws {
		item := raw.item
		if item.Account, err = r.FindAccount(ctx, raw.accountID); err != nil {
			return nil, err
		}
		if raw.vatID.Valid {
			vat, err := r.FindAccount(ctx, raw.vatID.UUID)
			if err != nil {
				return nil, err
			}
			item.VatAccount = &vat
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *repo) FindTransaction(ctx context.Context, id uuid.UUID) (*accounting.Transaction, error) {
	row, err := scanTransaction(r.q.QueryRowContext(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id = ?`, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, accounting.ErrTransactionNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, row)
}

// LockTransaction relies on WithTx admitting one writer at a time.
func (r *repo) LockTransaction(ctx context.Context, id uuid.UUID) (*accounting.Transaction, error) {
	return r.FindTransaction(ctx, id)
}

func (r *repo) FetchTransactions(ctx context.Context, f accounting.TransactionFilter) ([]*accounting.Transaction, error) {
	var clauses []string
	var args []any
	if f.Type != "" {
		clauses = append(clauses, "type = ?")
		args = append(args, string(f.Type))
	}
	if f.From != nil {
		clauses = append(clauses, "date >= ?")
		args = append(args, formatDate(*f.From))
	}
	if f.To != nil {
		clauses = append(clauses, "date <= ?")
		args = append(args, formatDate(*f.To))
	}
	if f.AccountID != uuid.Nil {
		clauses = append(clauses, "account_id = ?")
		args = append(args, f.AccountID.String())
	}
	if f.Currency != "" {
		clauses = append(clauses, "currency = ?")
		args = append(args, f.Currency)
	}
	query := `SELECT ` + transactionColumns + ` FROM transactions`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY date, reference"
	rows, err := r.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var found []transactionRow
	for rows.Next() {
		row, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		found = append(found, row)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*accounting.Transaction, 0, len(found))
	for _, row := range found {
		t, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (r *repo) ClaimSequence(ctx context.Context, typ accounting.TransactionType, periodID int64, atLeast int) (int, error) {
	var seq int
	err := r.q.QueryRowContext(ctx, `INSERT INTO sequences (type, period_id, value) VALUES (?, ?, max(1, ?))
ON CONFLICT (type, period_id) DO UPDATE SET value = max(sequences.value + 1, excluded.value)
RETURNING value`, string(typ), periodID, atLeast).Scan(&seq)
	return seq, err
}

func (r *repo) SaveTransaction(ctx context.Context, t *accounting.Transaction) error {
	var postedAt, reversalOf, reversedBy any
	if t.PostedAt != nil {
		postedAt = formatTimestamp(*t.PostedAt)
	}
	if t.ReversalOf != nil {
		reversalOf = t.ReversalOf.String()
	}
	if t.ReversedBy != nil {
		reversedBy = t.ReversedBy.String()
	}
	_, err := r.q.ExecContext(ctx, `INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (id) DO UPDATE SET type = excluded.type, date = excluded.date, reference = excluded.reference,
account_id = excluded.account_id, narration = excluded.narration, currency = excluded.currency, period_id = excluded.period_id`,
		t.ID.String(), string(t.Type), formatDate(t.Date), t.Reference, t.Account.ID.String(), t.Narration, t.Currency,
		t.PeriodID, t.Posted, postedAt, formatTimestamp(t.CreatedAt), reversalOf, reversedBy)
	if err != nil {
		if isUnique(err, "transactions.reference") {
			return accounting.ErrDuplicateReference
		}
		return err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM line_items WHERE transaction_id = ?`, t.ID.String()); err != nil {
		return err
	}
	for i, item := range t.LineItems {
		var vatID any
		if item.VatAccount != nil && item.VatAccount.ID != uuid.Nil {
			vatID = item.VatAccount.ID.String()
		}
		if _, err := r.q.ExecContext(ctx, `INSERT INTO line_items (id, transaction_id, position, account_id, amount, vat_rate, vat_account_id, narration, main_side)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, item.ID.String(), t.ID.String(), i, item.Account.ID.String(), item.Amount.String(),
			item.VatRate.String(), vatID, item.Narration, string(item.MainSide)); err != nil {
			return err
		}
	}
	return nil
}

func (r *repo) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `DELETE FROM transactions WHERE id = ? AND posted = 0`, id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accounting.ErrTransactionNotFound
	}
	return nil
}

func (r *repo) MarkPosted(ctx context.Context, id uuid.UUID, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE transactions SET posted = 1, posted_at = ? WHERE id = ?`, formatTimestamp(at), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accounting.ErrTransactionNotFound
	}
	return nil
}

// MarkReversed sets reversed_by once. A second reversal finds no row to update.
func (r *repo) MarkReversed(ctx context.Context, id, reversal uuid.UUID) error {
	res, err := r.q.ExecContext(ctx, `UPDATE transactions SET reversed_by = ? WHERE id = ? AND reversed_by IS NULL`, reversal.String(), id.String())
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return accounting.ErrTransactionReversed
	}
	return nil
}
