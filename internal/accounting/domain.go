package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType enumerates chart of accounts types.
type AccountType string

const (
	AccountTypeNonCurrentAsset     AccountType = "NON_CURRENT_ASSET"
	AccountTypeContraAsset         AccountType = "CONTRA_ASSET"
	AccountTypeInventory           AccountType = "INVENTORY"
	AccountTypeBank                AccountType = "BANK"
	AccountTypeCurrentAsset        AccountType = "CURRENT_ASSET"
	AccountTypeReceivable          AccountType = "RECEIVABLE"
	AccountTypeNonCurrentLiability AccountType = "NON_CURRENT_LIABILITY"
	AccountTypeControl             AccountType = "CONTROL_ACCOUNT"
	AccountTypeCurrentLiability    AccountType = "CURRENT_LIABILITY"
	AccountTypePayable             AccountType = "PAYABLE"
	AccountTypeReconciliation      AccountType = "RECONCILIATION"
	AccountTypeEquity              AccountType = "EQUITY"
	AccountTypeOperatingRevenue    AccountType = "OPERATING_REVENUE"
	AccountTypeOperatingExpense    AccountType = "OPERATING_EXPENSE"
	AccountTypeNonOperatingRevenue AccountType = "NON_OPERATING_REVENUE"
	AccountTypeDirectExpense       AccountType = "DIRECT_EXPENSE"
	AccountTypeOverheadExpense     AccountType = "OVERHEAD_EXPENSE"
	AccountTypeOtherExpense        AccountType = "OTHER_EXPENSE"
)

var accountTypeLabels = map[AccountType]string{
	AccountTypeNonCurrentAsset:     "Non Current Asset",
	AccountTypeContraAsset:         "Contra Asset",
	AccountTypeInventory:           "Inventory",
	AccountTypeBank:                "Bank",
	AccountTypeCurrentAsset:        "Current Asset",
	AccountTypeReceivable:          "Receivable",
	AccountTypeNonCurrentLiability: "Non Current Liability",
	AccountTypeControl:             "Control Account",
	AccountTypeCurrentLiability:    "Current Liability",
	AccountTypePayable:             "Payable",
	AccountTypeReconciliation:      "Reconciliation",
	AccountTypeEquity:              "Equity",
	AccountTypeOperatingRevenue:    "Operating Revenue",
	AccountTypeOperatingExpense:    "Operating Expense",
	AccountTypeNonOperatingRevenue: "Non Operating Revenue",
	AccountTypeDirectExpense:       "Direct Expense",
	AccountTypeOverheadExpense:     "Overhead Expense",
	AccountTypeOtherExpense:        "Other Expense",
}

// AccountTypes lists every account type in declaration order.
func AccountTypes() []AccountType {
	return []AccountType{
		AccountTypeNonCurrentAsset,
		AccountTypeContraAsset,
		AccountTypeInventory,
		AccountTypeBank,
		AccountTypeCurrentAsset,
		AccountTypeReceivable,
		AccountTypeNonCurrentLiability,
		AccountTypeControl,
		AccountTypeCurrentLiability,
		AccountTypePayable,
		AccountTypeReconciliation,
		AccountTypeEquity,
		AccountTypeOperatingRevenue,
		AccountTypeOperatingExpense,
		AccountTypeNonOperatingRevenue,
		AccountTypeDirectExpense,
		AccountTypeOverheadExpense,
		AccountTypeOtherExpense,
	}
}

// Label returns the human readable account type name.
func (t AccountType) Label() string {
	if label, ok := accountTypeLabels[t]; ok {
		return label
	}
	return string(t)
}

// Valid reports whether t is a known account type.
func (t AccountType) Valid() bool {
	_, ok := accountTypeLabels[t]
	return ok
}

// EntryType is the side of a ledger entry.
type EntryType string

const (
	Debit  EntryType = "DEBIT"
	Credit EntryType = "CREDIT"
)

// Opposite returns the other side.
func (e EntryType) Opposite() EntryType {
	if e == Debit {
		return Credit
	}
	return Debit
}

// Valid reports whether e is Debit or Credit.
func (e EntryType) Valid() bool {
	return e == Debit || e == Credit
}

// PeriodStatus enumerates valid period states.
type PeriodStatus string

const (
	PeriodStatusOpen   PeriodStatus = "OPEN"
	PeriodStatusClosed PeriodStatus = "CLOSED"
)

// Account models a chart of accounts node.
type Account struct {
	ID          uuid.UUID   `json:"id"`
	Code        string      `json:"code"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Type        AccountType `json:"type"`
	Currency    string      `json:"currency"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Period represents a reporting period window. Start and End are inclusive dates.
type Period struct {
	ID     int64        `json:"id"`
	Count  int          `json:"count"`
	Year   int          `json:"year"`
	Start  time.Time    `json:"start"`
	End    time.Time    `json:"end"`
	Status PeriodStatus `json:"status"`
}

// Contains reports whether the date falls inside the period.
func (p Period) Contains(date time.Time) bool {
	day := DateOf(date)
	return !day.Before(p.Start) && !day.After(p.End)
}

// CalendarPeriod returns the calendar year window for year.
func CalendarPeriod(year, count int) Period {
	start := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Count:  count,
		Year:   year,
		Start:  start,
		End:    start.AddDate(1, 0, -1),
		Status: PeriodStatusOpen,
	}
}

// LedgerEntry is a single debit or credit line posted to an account.
type LedgerEntry struct {
	ID            uuid.UUID       `json:"id"`
	TransactionID uuid.UUID       `json:"transaction_id"`
	LineItemID    uuid.UUID       `json:"line_item_id"`
	Type          EntryType       `json:"type"`
	Amount        decimal.Decimal `json:"amount"`
	PostAccount   uuid.UUID       `json:"post_account"`
	FolioAccount  uuid.UUID       `json:"folio_account"`
	PeriodID      int64           `json:"period_id"`
	Date          time.Time       `json:"date"`
	Currency      string          `json:"currency"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OpeningBalance is the balance an account carries into a period.
type OpeningBalance struct {
	AccountID uuid.UUID       `json:"account_id"`
	PeriodID  int64           `json:"period_id"`
	Type      EntryType       `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
}

// Signed returns the opening balance with debits positive.
func (o OpeningBalance) Signed() decimal.Decimal {
	if o.Type == Credit {
		return o.Amount.Neg()
	}
	return o.Amount
}

// TransactionFilter narrows Fetch results. Zero fields are ignored.
type TransactionFilter struct {
	Type      TransactionType
	From      *time.Time
	To        *time.Time
	AccountID uuid.UUID
	Currency  string
}

// Matches reports whether the transaction satisfies the filter.
func (f TransactionFilter) Matches(tx *Transaction) bool {
	if tx == nil {
		return false
	}
	if f.Type != "" && tx.Type != f.Type {
		return false
	}
	if f.From != nil && tx.Date.Before(DateOf(*f.From)) {
		return false
	}
	if f.To != nil && tx.Date.After(DateOf(*f.To)) {
		return false
	}
	if f.AccountID != uuid.Nil && tx.Account.ID != f.AccountID {
		return false
	}
	if f.Currency != "" && tx.Currency != f.Currency {
		return false
	}
	return true
}

// PeriodTotals reports the debit and credit sums of a period.
type PeriodTotals struct {
	Period Period          `json:"period"`
	Debit  decimal.Decimal `json:"debit"`
	Credit decimal.Decimal `json:"credit"`
}

// DateOf truncates t to its UTC calendar date.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
