// Package reports builds the trial balance, income statement and balance sheet
// from account closing balances.
package reports

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
)

// Kind names a statement.
type Kind string

const (
	KindTrialBalance    Kind = "trial_balance"
	KindIncomeStatement Kind = "income_statement"
	KindBalanceSheet    Kind = "balance_sheet"
)

// Valid reports whether k is a known statement kind.
func (k Kind) Valid() bool {
	switch k {
	case KindTrialBalance, KindIncomeStatement, KindBalanceSheet:
		return true
	}
	return false
}

func (k Kind) sections() []chart.Section {
	switch k {
	case KindIncomeStatement:
		return []chart.Section{chart.IncomeStatement}
	case KindBalanceSheet:
		return []chart.Section{chart.BalanceSheet}
	default:
		return []chart.Section{chart.IncomeStatement, chart.BalanceSheet}
	}
}

// AccountBalance is the first pass output: an account and its closing balance.
type AccountBalance struct {
	Account accounting.Account
	Balance decimal.Decimal
}

// AccountSnapshot is an account as it appears on a statement.
type AccountSnapshot struct {
	ID       uuid.UUID              `json:"id"`
	Code     string                 `json:"code"`
	Name     string                 `json:"name"`
	Type     accounting.AccountType `json:"type"`
	Currency string                 `json:"currency"`
	Balance  decimal.Decimal        `json:"balance"`
	// Natural is the balance measured on the account type's natural side.
	Natural decimal.Decimal `json:"natural"`
}

// Bucket collects the accounts of one account type.
type Bucket struct {
	Type     accounting.AccountType `json:"type"`
	Label    string                 `json:"label"`
	Category string                 `json:"category"`
	Nature   chart.Nature           `json:"nature"`
	Accounts []AccountSnapshot      `json:"accounts"`
	Balance  decimal.Decimal        `json:"balance"`
}

// Section holds buckets in the order their first account was seen.
type Section struct {
	Name    chart.Section `json:"name"`
	Buckets []Bucket      `json:"buckets"`
}

// Bucket returns the bucket for t.
func (s Section) Bucket(t accounting.AccountType) (Bucket, bool) {
	for _, b := range s.Buckets {
		if b.Type == t {
			return b, true
		}
	}
	return Bucket{}, false
}

// Statement is a transient report. It is never persisted.
type Statement struct {
	Kind     Kind                             `json:"kind"`
	Year     int                              `json:"year"`
	AsOf     time.Time                        `json:"as_of"`
	Currency string                           `json:"currency"`
	Sections []Section                        `json:"sections"`
	Debit    decimal.Decimal                  `json:"debit"`
	Credit   decimal.Decimal                  `json:"credit"`
	Totals   map[chart.Nature]decimal.Decimal `json:"totals"`
}

// Section returns the named section.
func (s Statement) Section(name chart.Section) (Section, bool) {
	for _, sec := range s.Sections {
		if sec.Name == name {
			return sec, true
		}
	}
	return Section{}, false
}

// Total returns the total for n, measured on the side that increases it.
func (s Statement) Total(n chart.Nature) decimal.Decimal {
	if v, ok := s.Totals[n]; ok {
		return v
	}
	return decimal.Zero
}

// Balanced reports whether the debit and credit buckets agree.
func (s Statement) Balanced() bool {
	return s.Debit.Equal(s.Credit)
}

// Fold places balances into statement buckets. It depends only on its inputs.
//
// Every account of the statement's scope adds |balance| to Debit when the
// balance is positive and to Credit otherwise. Classified accounts are appended
// to their account type bucket, zero balances included. The trial balance
// counts unclassified accounts in its totals; the other statements count only
// accounts of their own section.
func Fold(kind Kind, balances []AccountBalance, c *chart.Chart) Statement {
	st := Statement{
		Kind:   kind,
		Debit:  decimal.Zero,
		Credit: decimal.Zero,
		Totals: make(map[chart.Nature]decimal.Decimal),
	}
	wanted := kind.sections()
	index := make(map[chart.Section]int, len(wanted))
	for i, name := range wanted {
		st.Sections = append(st.Sections, Section{Name: name, Buckets: []Bucket{}})
		index[name] = i
	}
	buckets := make(map[accounting.AccountType]int)

	for _, ab := range balances {
		cls, classified := c.Classify(ab.Account.Type)
		secIdx, inScope := index[cls.Section]
		if classified && !inScope {
			continue
		}
		if !classified && kind != KindTrialBalance {
			continue
		}
		abs := ab.Balance.Abs()
		if ab.Balance.IsPositive() {
			st.Debit = st.Debit.Add(abs)
		} else {
			st.Credit = st.Credit.Add(abs)
		}
		if !classified {
			continue
		}
		sec := &st.Sections[secIdx]
		pos, ok := buckets[ab.Account.Type]
		if !ok {
			sec.Buckets = append(sec.Buckets, Bucket{
				Type:     ab.Account.Type,
				Label:    ab.Account.Type.Label(),
				Category: cls.Category,
				Nature:   cls.Nature,
				Accounts: []AccountSnapshot{},
				Balance:  decimal.Zero,
			})
			pos = len(sec.Buckets) - 1
			buckets[ab.Account.Type] = pos
		}
		b := &sec.Buckets[pos]
		b.Accounts = append(b.Accounts, AccountSnapshot{
			ID:       ab.Account.ID,
			Code:     ab.Account.Code,
			Name:     ab.Account.Name,
			Type:     ab.Account.Type,
			Currency: ab.Account.Currency,
			Balance:  ab.Balance,
			Natural:  onSide(ab.Balance, c.NaturalSide(ab.Account.Type)),
		})
		b.Balance = b.Balance.Add(abs)
		st.Totals[cls.Nature] = st.Total(cls.Nature).Add(onSide(ab.Balance, cls.Nature.Side()))
	}
	return st
}

// onSide converts a debit-positive balance into one positive on side.
func onSide(balance decimal.Decimal, side accounting.EntryType) decimal.Decimal {
	if side == accounting.Credit {
		return balance.Neg()
	}
	return balance
}
