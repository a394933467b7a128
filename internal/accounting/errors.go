package accounting

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	// ErrAccountNotFound indicates a missing account.
	ErrAccountNotFound = errors.New("accounting: account not found")
	// ErrTransactionNotFound indicates a missing transaction.
	ErrTransactionNotFound = errors.New("accounting: transaction not found")
	// ErrTransactionPosted indicates a posted transaction cannot change.
	ErrTransactionPosted = errors.New("accounting: transaction already posted")
	// ErrTransactionNotPosted indicates the action requires a posted transaction.
	ErrTransactionNotPosted = errors.New("accounting: transaction not posted")
	// ErrUnknownTransactionType indicates no posting policy exists for the type.
	ErrUnknownTransactionType = errors.New("accounting: unknown transaction type")
	// ErrInvalidAccountType indicates an unknown account type.
	ErrInvalidAccountType = errors.New("accounting: invalid account type")
	// ErrAccountTypeLocked indicates the account already has ledger entries.
	ErrAccountTypeLocked = errors.New("accounting: account type cannot change once entries exist")
	// ErrMainAccountRequired indicates the transaction has no main account.
	ErrMainAccountRequired = errors.New("accounting: main account required")
	// ErrNoLineItems indicates a transaction without line items.
	ErrNoLineItems = errors.New("accounting: transaction requires at least one line item")
	// ErrFolioIsMainAccount indicates a line item posting against the main account.
	ErrFolioIsMainAccount = errors.New("accounting: line item account cannot be the main account")
	// ErrMissingVatAccount indicates a taxed line item without a vat account.
	ErrMissingVatAccount = errors.New("accounting: vat account required when vat rate is set")
	// ErrMissingPeriod indicates no reporting period covers the date.
	ErrMissingPeriod = errors.New("accounting: no reporting period for date")
	// ErrPeriodClosed indicates postings into a closed period.
	ErrPeriodClosed = errors.New("accounting: period is closed")
	// ErrDuplicateAccount indicates the account code already exists.
	ErrDuplicateAccount = errors.New("accounting: account code already exists")
	// ErrAmountPrecision indicates an amount or rate with more than MaxScale decimals.
	ErrAmountPrecision = errors.New("accounting: amounts and rates allow at most 4 decimal places")
	// ErrTransactionReversed indicates the transaction already has a reversing entry.
	ErrTransactionReversed = errors.New("accounting: transaction already reversed")
	// ErrDuplicateReference indicates the reference number is already taken.
	ErrDuplicateReference = errors.New("accounting: reference number already used")
)

// MainAccountTypeError reports a main account of the wrong type.
type MainAccountTypeError struct {
	Transaction string
	Required    AccountType
	Actual      AccountType
}

func (e *MainAccountTypeError) Error() string {
	return fmt.Sprintf("%s Main Account must be of type %s", e.Transaction, e.Required.Label())
}

// LineItemAccountTypeError reports a line item account outside the allowed types.
type LineItemAccountTypeError struct {
	Transaction string
	Allowed     []AccountType
	Actual      AccountType
}

func (e *LineItemAccountTypeError) Error() string {
	labels := make([]string, 0, len(e.Allowed))
	for _, t := range e.Allowed {
		labels = append(labels, t.Label())
	}
	return fmt.Sprintf("%s LineItem Account must be of type %s", e.Transaction, strings.Join(labels, ", "))
}

// NegativeAmountError reports a negative amount, rate or tax on a line item.
type NegativeAmountError struct {
	Field  string
	Amount decimal.Decimal
}

func (e *NegativeAmountError) Error() string {
	return fmt.Sprintf("accounting: %s cannot be negative, got %s", e.Field, e.Amount.String())
}

// UnbalancedPostingError reports a posting batch or period whose sides differ.
type UnbalancedPostingError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *UnbalancedPostingError) Error() string {
	return fmt.Sprintf("accounting: debits %s do not equal credits %s", e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// IsValidation reports whether err is a caller fixable validation failure.
func IsValidation(err error) bool {
	var mainErr *MainAccountTypeError
	var lineErr *LineItemAccountTypeError
	var negErr *NegativeAmountError
	switch {
	case errors.As(err, &mainErr), errors.As(err, &lineErr), errors.As(err, &negErr):
		return true
	case errors.Is(err, ErrNoLineItems),
		errors.Is(err, ErrFolioIsMainAccount),
		errors.Is(err, ErrMissingVatAccount),
		errors.Is(err, ErrAmountPrecision),
		errors.Is(err, ErrMainAccountRequired),
		errors.Is(err, ErrInvalidAccountType),
		errors.Is(err, ErrUnknownTransactionType):
		return true
	}
	return false
}
