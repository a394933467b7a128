package accounting

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/platform/db"
)

const uniqueViolation = "23505"

// PostgresRepository persists the ledger in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository constructs PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction, retried on serialization failures.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// Snapshot executes fn within a read-only repeatable-read transaction.
func (r *PostgresRepository) Snapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	if r == nil || r.pool == nil {
		return errors.New("accounting repository not initialised")
	}
	return db.WithSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const accountColumns = `id, code, name, description, type, currency, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Description, &a.Type, &a.Currency, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *txRepository) FindAccount(ctx context.Context, id uuid.UUID) (Account, error) {
	a, err := scanAccount(r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code, created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (r *txRepository) AccountHasEntries(ctx context.Context, accountID uuid.UUID) (bool, error) {
	var used bool
	err := r.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_entries WHERE post_account=$1 OR folio_account=$1)`, accountID).Scan(&used)
	return used, err
}

func (r *txRepository) SaveAccount(ctx context.Context, a Account) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO accounts (`+accountColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO UPDATE SET code=EXCLUDED.code, name=EXCLUDED.name, description=EXCLUDED.description,
type=EXCLUDED.type, currency=EXCLUDED.currency, updated_at=EXCLUDED.updated_at`,
		a.ID, a.Code, a.Name, a.Description, a.Type, a.Currency, a.CreatedAt, a.UpdatedAt)
	if isUnique(err, "uq_accounts_code") {
		return ErrDuplicateAccount
	}
	return err
}

const entryColumns = `id, transaction_id, line_item_id, type, amount::text, post_account, folio_account, period_id, date, currency, created_at`

func scanEntries(rows pgx.Rows) ([]LedgerEntry, error) {
	defer rows.Close()
	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var amount string
		if err := rows.Scan(&e.ID, &e.TransactionID, &e.LineItemID, &e.Type, &amount, &e.PostAccount, &e.FolioAccount, &e.PeriodID, &e.Date, &e.Currency, &e.CreatedAt); err != nil {
			return nil, err
		}
		parsed, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, err
		}
		e.Amount = parsed
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) FindEntries(ctx context.Context, accountID uuid.UUID, periodID int64, upTo time.Time) ([]LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries
WHERE (post_account=$1 OR folio_account=$1) AND period_id=$2 AND date <= $3 ORDER BY date, created_at`, accountID, periodID, upTo)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *txRepository) ListPeriodEntries(ctx context.Context, periodID int64) ([]LedgerEntry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+` FROM ledger_entries WHERE period_id=$1 ORDER BY date, created_at`, periodID)
	if err != nil {
		return nil, err
	}
	return scanEntries(rows)
}

func (r *txRepository) SaveEntries(ctx context.Context, entries []LedgerEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(`INSERT INTO ledger_entries (id, transaction_id, line_item_id, type, amount, post_account, folio_account, period_id, date, currency, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`, e.ID, e.TransactionID, e.LineItemID, e.Type, toNumeric(e.Amount), e.PostAccount, e.FolioAccount, e.PeriodID, e.Date, e.Currency, e.CreatedAt)
	}
	return r.tx.SendBatch(ctx, batch).Close()
}

func (r *txRepository) OpeningBalance(ctx context.Context, accountID uuid.UUID, periodID int64) (decimal.Decimal, error) {
	var ob OpeningBalance
	var amount string
	err := r.tx.QueryRow(ctx, `SELECT type, amount::text FROM opening_balances WHERE account_id=$1 AND period_id=$2`, accountID, periodID).Scan(&ob.Type, &amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, err
	}
	ob.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return decimal.Zero, err
	}
	return ob.Signed(), nil
}

func (r *txRepository) SaveOpeningBalance(ctx context.Context, b OpeningBalance) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO opening_balances (account_id, period_id, type, amount) VALUES ($1,$2,$3,$4)
ON CONFLICT (account_id, period_id) DO UPDATE SET type=EXCLUDED.type, amount=EXCLUDED.amount`,
		b.AccountID, b.PeriodID, b.Type, toNumeric(b.Amount))
	return err
}

const periodColumns = `id, count, year, start_date, end_date, status`

func scanPeriod(row pgx.Row) (Period, error) {
	var p Period
	err := row.Scan(&p.ID, &p.Count, &p.Year, &p.Start, &p.End, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Period{}, ErrMissingPeriod
		}
		return Period{}, err
	}
	return p, nil
}

func (r *txRepository) FindPeriodByDate(ctx context.Context, date time.Time) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE $1::date BETWEEN start_date AND end_date ORDER BY start_date LIMIT 1`, DateOf(date)))
}

func (r *txRepository) FindPeriodByYear(ctx context.Context, year int) (Period, error) {
	return scanPeriod(r.tx.QueryRow(ctx, `SELECT `+periodColumns+` FROM periods WHERE year=$1`, year))
}

func (r *txRepository) ListPeriods(ctx context.Context) ([]Period, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+periodColumns+` FROM periods ORDER BY start_date`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var periods []Period
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

func (r *txRepository) SavePeriod(ctx context.Context, p Period) (Period, error) {
	if p.ID == 0 {
		err := r.tx.QueryRow(ctx, `INSERT INTO periods (count, year, start_date, end_date, status) VALUES ($1,$2,$3,$4,$5) RETURNING id`,
			p.Count, p.Year, p.Start, p.End, p.Status).Scan(&p.ID)
		return p, err
	}
	cmd, err := r.tx.Exec(ctx, `UPDATE periods SET count=$2, year=$3, start_date=$4, end_date=$5, status=$6 WHERE id=$1`,
		p.ID, p.Count, p.Year, p.Start, p.End, p.Status)
	if err != nil {
		return Period{}, err
	}
	if cmd.RowsAffected() == 0 {
		return Period{}, ErrMissingPeriod
	}
	return p, nil
}

const transactionColumns = `id, type, date, reference, account_id, narration, currency, period_id, posted, posted_at, created_at, reversal_of, reversed_by`

type transactionRow struct {
	tx        Transaction
	accountID uuid.UUID
}

func scanTransactionRow(row pgx.Row) (transactionRow, error) {
	var out transactionRow
	t := &out.tx
	err := row.Scan(&t.ID, &t.Type, &t.Date, &t.Reference, &out.accountID, &t.Narration, &t.Currency, &t.PeriodID, &t.Posted, &t.PostedAt, &t.CreatedAt, &t.ReversalOf, &t.ReversedBy)
	return out, err
}

func (r *txRepository) loadTransaction(ctx context.Context, query string, id uuid.UUID) (*Transaction, error) {
	row, err := scanTransactionRow(r.tx.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return r.hydrate(ctx, row)
}

func (r *txRepository) hydrate(ctx context.Context, row transactionRow) (*Transaction, error) {
	t := row.tx
	main, err := r.FindAccount(ctx, row.accountID)
	if err != nil {
		return nil, err
	}
	t.Account = main
	items, err := r.lineItems(ctx, t.ID)
	if err != nil {
		return nil, err
	}
	t.LineItems = items
	return &t, nil
}

func (r *txRepository) lineItems(ctx context.Context, transactionID uuid.UUID) ([]LineItem, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, account_id, amount::text, vat_rate::text, vat_account_id, narration, main_side
FROM line_items WHERE transaction_id=$1 ORDER BY position`, transactionID)
	if err != nil {
		return nil, err
	}
	type rawLine struct {
		item      LineItem
		accountID uuid.UUID
		vatID     *uuid.UUID
		amount    string
		rate      string
	}
	var raws []rawLine
	for rows.Next() {
		var raw rawLine
		if err := rows.Scan(&raw.item.ID, &raw.accountID, &raw.amount, &raw.rate, &raw.vatID, &raw.item.Narration, &raw.item.MainSide); err != nil {
			rows.Close()
			return nil, err
		}
		raws = append(raws, raw)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	items := make([]LineItem, 0, len(raws))
	for _, raw := range raws {
		item := raw.item
		if item.Amount, err = decimal.NewFromString(raw.amount); err != nil {
			return nil, err
		}
		if item.VatRate, err = decimal.NewFromString(raw.rate); err != nil {
			return nil, err
		}
		if item.Account, err = r.FindAccount(ctx, raw.accountID); err != nil {
			return nil, err
		}
		if raw.vatID != nil {
			vat, err := r.FindAccount(ctx, *raw.vatID)
			if err != nil {
				return nil, err
			}
			item.VatAccount = &vat
		}
		items = append(items, item)
	}
	return items, nil
}

func (r *txRepository) FindTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return r.loadTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1`, id)
}

func (r *txRepository) LockTransaction(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	return r.loadTransaction(ctx, `SELECT `+transactionColumns+` FROM transactions WHERE id=$1 FOR UPDATE`, id)
}

func (r *txRepository) FetchTransactions(ctx context.Context, f TransactionFilter) ([]*Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE 1=1`
	var args []any
	add := func(clause string, value any) {
		args = append(args, value)
		query += fmt.Sprintf(" AND "+clause, len(args))
	}
	if f.Type != "" {
		add("type=$%d", f.Type)
	}
	if f.From != nil {
		add("date >= $%d", DateOf(*f.From))
	}
	if f.To != nil {
		add("date <= $%d", DateOf(*f.To))
	}
	if f.AccountID != uuid.Nil {
		add("account_id=$%d", f.AccountID)
	}
	if f.Currency != "" {
		add("currency=$%d", f.Currency)
	}
	query += ` ORDER BY date, reference`
	rows, err := r.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var found []transactionRow
	for rows.Next() {
		row, err := scanTransactionRow(rows)
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
	out := make([]*Transaction, 0, len(found))
	for _, row := range found {
		t, err := r.hydrate(ctx, row)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ClaimSequence upserts the counter row. The row lock it takes makes
// concurrent saves of the same type wait for each other.
func (r *txRepository) ClaimSequence(ctx context.Context, typ TransactionType, periodID int64, atLeast int) (int, error) {
	var seq int
	err := r.tx.QueryRow(ctx, `INSERT INTO sequences (type, period_id, value) VALUES ($1, $2, GREATEST(1, $3::int))
ON CONFLICT (type, period_id) DO UPDATE SET value = GREATEST(sequences.value + 1, EXCLUDED.value)
RETURNING value`, typ, periodID, atLeast).Scan(&seq)
	return seq, err
}

func (r *txRepository) SaveTransaction(ctx context.Context, t *Transaction) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO transactions (`+transactionColumns+`)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, date=EXCLUDED.date, reference=EXCLUDED.reference,
account_id=EXCLUDED.account_id, narration=EXCLUDED.narration, currency=EXCLUDED.currency, period_id=EXCLUDED.period_id`,
		t.ID, t.Type, t.Date, t.Reference, t.Account.ID, t.Narration, t.Currency, t.PeriodID, t.Posted, t.PostedAt, t.CreatedAt, t.ReversalOf, t.ReversedBy)
	if err != nil {
		if isUnique(err, "uq_transactions_reference") {
			return ErrDuplicateReference
		}
		return err
	}
	if _, err := r.tx.Exec(ctx, `DELETE FROM line_items WHERE transaction_id=$1`, t.ID); err != nil {
		return err
	}
	for i, item := range t.LineItems {
		var vatID any
		if item.VatAccount != nil && item.VatAccount.ID != uuid.Nil {
			vatID = item.VatAccount.ID
		}
		if _, err := r.tx.Exec(ctx, `INSERT INTO line_items (id, transaction_id, position, account_id, amount, vat_rate, vat_account_id, narration, main_side)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`, item.ID, t.ID, i, item.Account.ID, toNumeric(item.Amount), toNumeric(item.VatRate), vatID, item.Narration, item.MainSide); err != nil {
			return err
		}
	}
	return nil
}

func (r *txRepository) DeleteTransaction(ctx context.Context, id uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `DELETE FROM transactions WHERE id=$1 AND posted=FALSE`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *txRepository) MarkPosted(ctx context.Context, id uuid.UUID, at time.Time) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET posted=TRUE, posted_at=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (r *txRepository) MarkReversed(ctx context.Context, id, reversal uuid.UUID) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE transactions SET reversed_by=$2 WHERE id=$1 AND reversed_by IS NULL`, id, reversal)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrTransactionReversed
	}
	return nil
}

func isUnique(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolation && pgErr.ConstraintName == constraint
	}
	return false
}

func toNumeric(v decimal.Decimal) any {
	return v.String()
}
