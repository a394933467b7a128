package sqlite

// Schema creates the ledger tables. Amounts are stored as decimal text and
// dates as YYYY-MM-DD so lexical comparison follows calendar order.
const Schema = `
CREATE TABLE IF NOT EXISTS accounts (
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    type        TEXT NOT NULL,
    currency    TEXT NOT NULL,
    created_at  TEXT NOT NULL,
    updated_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS periods (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    count      INTEGER NOT NULL,
    year       INTEGER NOT NULL UNIQUE,
    start_date TEXT NOT NULL,
    end_date   TEXT NOT NULL,
    status     TEXT NOT NULL DEFAULT 'OPEN'
);

CREATE TABLE IF NOT EXISTS transactions (
    id         TEXT PRIMARY KEY,
    type       TEXT NOT NULL,
    date       TEXT NOT NULL,
    reference  TEXT NOT NULL UNIQUE,
    account_id TEXT NOT NULL REFERENCES accounts (id),
    narration  TEXT NOT NULL DEFAULT '',
    currency   TEXT NOT NULL,
    period_id  INTEGER NOT NULL REFERENCES periods (id),
    posted     INTEGER NOT NULL DEFAULT 0,
    posted_at  TEXT,
    created_at TEXT NOT NULL,
    reversal_of TEXT REFERENCES transactions (id),
    reversed_by TEXT REFERENCES transactions (id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_date ON transactions (date);

CREATE TABLE IF NOT EXISTS line_items (
    id             TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL REFERENCES transactions (id) ON DELETE CASCADE,
    position       INTEGER NOT NULL,
    account_id     TEXT NOT NULL REFERENCES accounts (id),
    amount         TEXT NOT NULL,
    vat_rate       TEXT NOT NULL DEFAULT '0',
    vat_account_id TEXT REFERENCES accounts (id),
    narration      TEXT NOT NULL DEFAULT '',
    main_side      TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS ledger_entries (
    id             TEXT PRIMARY KEY,
    transaction_id TEXT NOT NULL REFERENCES transactions (id),
    line_item_id   TEXT NOT NULL,
    type           TEXT NOT NULL,
    amount         TEXT NOT NULL,
    post_account   TEXT NOT NULL REFERENCES accounts (id),
    folio_account  TEXT NOT NULL REFERENCES accounts (id),
    period_id      INTEGER NOT NULL REFERENCES periods (id),
    date           TEXT NOT NULL,
    currency       TEXT NOT NULL,
    created_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ledger_entries_post ON ledger_entries (post_account, period_id, date);
CREATE INDEX IF NOT EXISTS idx_ledger_entries_period ON ledger_entries (period_id);

CREATE TABLE IF NOT EXISTS opening_balances (
    account_id TEXT NOT NULL REFERENCES accounts (id),
    period_id  INTEGER NOT NULL REFERENCES periods (id),
    type       TEXT NOT NULL,
    amount     TEXT NOT NULL,
    PRIMARY KEY (account_id, period_id)
);

CREATE TABLE IF NOT EXISTS sequences (
    type      TEXT NOT NULL,
    period_id INTEGER NOT NULL REFERENCES periods (id),
    value     INTEGER NOT NULL,
    PRIMARY KEY (type, period_id)
);
`

// upgrades adds columns introduced after the first schema to existing files.
var upgrades = []struct {
	table  string
	column string
	ddl    string
}{
	{"transactions", "reversal_of", `ALTER TABLE transactions ADD COLUMN reversal_of TEXT REFERENCES transactions (id)`},
	{"transactions", "reversed_by", `ALTER TABLE transactions ADD COLUMN reversed_by TEXT REFERENCES transactions (id)`},
}

// seedSequences starts counters of files written before the sequences table
// at the highest stored reference number.
const seedSequences = `
INSERT OR IGNORE INTO sequences (type, period_id, value)
SELECT type, period_id, MAX(CAST(substr(reference, instr(reference, '/') + 1) AS INTEGER))
FROM transactions GROUP BY type, period_id`
