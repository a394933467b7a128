package accounting

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// LineItem is one line of a transaction posted against a folio account.
type LineItem struct {
	ID         uuid.UUID       `json:"id"`
	Account    Account         `json:"account"`
	Amount     decimal.Decimal `json:"amount"`
	VatRate    decimal.Decimal `json:"vat_rate"`
	VatAccount *Account        `json:"vat_account,omitempty"`
	Narration  string          `json:"narration,omitempty"`
	// MainSide is only read for journal entries.
	MainSide EntryType `json:"main_side,omitempty"`
}

// Tax returns amount × rate / 100 rounded to two places.
func (l LineItem) Tax() decimal.Decimal {
	if !l.VatRate.IsPositive() {
		return decimal.Zero
	}
	return l.Amount.Mul(l.VatRate).Div(hundred).Round(2)
}

func (l LineItem) validate(main Account) error {
	if l.Account.ID == main.ID {
		return ErrFolioIsMainAccount
	}
	if l.Amount.IsNegative() {
		return &NegativeAmountError{Field: "amount", Amount: l.Amount}
	}
	if l.VatRate.IsNegative() {
		return &NegativeAmountError{Field: "vat rate", Amount: l.VatRate}
	}
	if !fitsScale(l.Amount) || !fitsScale(l.VatRate) {
		return ErrAmountPrecision
	}
	if l.VatRate.IsPositive() {
		if l.VatAccount == nil || l.VatAccount.ID == uuid.Nil {
			return ErrMissingVatAccount
		}
		if tax := l.Tax(); tax.IsNegative() {
			return &NegativeAmountError{Field: "tax", Amount: tax}
		}
	}
	return nil
}

// Transaction is a business document posted to the ledger as a unit.
type Transaction struct {
	ID        uuid.UUID       `json:"id"`
	Type      TransactionType `json:"type"`
	Date      time.Time       `json:"date"`
	Reference string          `json:"reference"`
	Account   Account         `json:"account"`
	Narration string          `json:"narration,omitempty"`
	Currency  string          `json:"currency"`
	LineItems []LineItem      `json:"line_items"`
	PeriodID  int64           `json:"period_id"`
	Posted    bool            `json:"posted"`
	PostedAt  *time.Time      `json:"posted_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	// ReversalOf is set on a journal entry created by Reverse.
	ReversalOf *uuid.UUID `json:"reversal_of,omitempty"`
	// ReversedBy is set on a transaction once it has been reversed.
	ReversedBy *uuid.UUID `json:"reversed_by,omitempty"`
}

// NewTransaction starts an unsaved transaction of the given type.
func NewTransaction(typ TransactionType, account Account, date time.Time, narration string) *Transaction {
	return &Transaction{
		Type:      typ,
		Account:   account,
		Date:      DateOf(date),
		Narration: narration,
		Currency:  account.Currency,
	}
}

// AddLineItem appends a line item. Account types are checked at post time.
func (t *Transaction) AddLineItem(item LineItem) error {
	if t.Posted {
		return ErrTransactionPosted
	}
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	t.LineItems = append(t.LineItems, item)
	return nil
}

// RemoveLineItem drops the line item with the given id.
func (t *Transaction) RemoveLineItem(id uuid.UUID) error {
	if t.Posted {
		return ErrTransactionPosted
	}
	kept := t.LineItems[:0]
	for _, item := range t.LineItems {
		if item.ID != id {
			kept = append(kept, item)
		}
	}
	t.LineItems = kept
	return nil
}

// Amount is the total of line amounts plus tax.
func (t *Transaction) Amount() decimal.Decimal {
	total := decimal.Zero
	for _, item := range t.LineItems {
		total = total.Add(item.Amount).Add(item.Tax())
	}
	return total
}

// Validate checks the transaction against its type policy.
func (t *Transaction) Validate() error {
	policy, err := PolicyFor(t.Type)
	if err != nil {
		return err
	}
	return policy.Validate(t)
}

// Clone returns a deep copy of the transaction.
func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	out := *t
	out.LineItems = make([]LineItem, len(t.LineItems))
	for i, item := range t.LineItems {
		if item.VatAccount != nil {
			vat := *item.VatAccount
			item.VatAccount = &vat
		}
		out.LineItems[i] = item
	}
	if t.PostedAt != nil {
		at := *t.PostedAt
		out.PostedAt = &at
	}
	out.ReversalOf = cloneID(t.ReversalOf)
	out.ReversedBy = cloneID(t.ReversedBy)
	return &out
}

func cloneID(id *uuid.UUID) *uuid.UUID {
	if id == nil {
		return nil
	}
	v := *id
	return &v
}

// MaxScale is the number of decimal places amounts and rates are stored with.
const MaxScale = 4

func fitsScale(d decimal.Decimal) bool {
	return d.Equal(d.Truncate(MaxScale))
}
