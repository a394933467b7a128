package ledgerhttp

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

const dateLayout = "2006-01-02"

type accountRequest struct {
	Code        string `json:"code" validate:"required,max=32"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description" validate:"max=1024"`
	Type        string `json:"type" validate:"required"`
	Currency    string `json:"currency" validate:"required,len=3,alpha"`
}

func (r accountRequest) input() accounting.AccountInput {
	return accounting.AccountInput{
		Code:        r.Code,
		Name:        r.Name,
		Description: r.Description,
		Type:        accounting.AccountType(r.Type),
		Currency:    r.Currency,
	}
}

type accountTypeRequest struct {
	Type string `json:"type" validate:"required"`
}

type lineItemRequest struct {
	AccountID    string `json:"account_id" validate:"required,uuid"`
	Amount       string `json:"amount" validate:"required,numeric"`
	VatRate      string `json:"vat_rate" validate:"omitempty,numeric"`
	VatAccountID string `json:"vat_account_id" validate:"omitempty,uuid"`
	Narration    string `json:"narration" validate:"max=255"`
	Side         string `json:"side" validate:"omitempty,oneof=DEBIT CREDIT"`
}

type transactionRequest struct {
	Type      string            `json:"type" validate:"required"`
	AccountID string            `json:"account_id" validate:"required,uuid"`
	Date      string            `json:"date" validate:"required,datetime=2006-01-02"`
	Narration string            `json:"narration" validate:"max=255"`
	Currency  string            `json:"currency" validate:"omitempty,len=3,alpha"`
	Post      bool              `json:"post"`
	LineItems []lineItemRequest `json:"line_items" validate:"dive"`
}

// transaction converts a validated request. Accounts carry only their ids;
// the service loads the stored versions.
func (r transactionRequest) transaction() (*accounting.Transaction, error) {
	date, err := time.Parse(dateLayout, r.Date)
	if err != nil {
		return nil, err
	}
	tx := accounting.NewTransaction(accounting.TransactionType(r.Type), accounting.Account{ID: uuid.MustParse(r.AccountID)}, date, r.Narration)
	tx.Currency = r.Currency
	for _, line := range r.LineItems {
		item := accounting.LineItem{
			Account:   accounting.Account{ID: uuid.MustParse(line.AccountID)},
			Narration: line.Narration,
			MainSide:  accounting.EntryType(line.Side),
		}
		if item.Amount, err = decimal.NewFromString(line.Amount); err != nil {
			return nil, err
		}
		if line.VatRate != "" {
			if item.VatRate, err = decimal.NewFromString(line.VatRate); err != nil {
				return nil, err
			}
		}
		if line.VatAccountID != "" {
			item.VatAccount = &accounting.Account{ID: uuid.MustParse(line.VatAccountID)}
		}
		if err := tx.AddLineItem(item); err != nil {
			return nil, err
		}
	}
	return tx, nil
}

type reverseRequest struct {
	Date      string `json:"date" validate:"omitempty,datetime=2006-01-02"`
	Narration string `json:"narration" validate:"max=255"`
}

type balanceResponse struct {
	AccountID uuid.UUID       `json:"account_id"`
	AsOf      string          `json:"as_of"`
	Balance   decimal.Decimal `json:"balance"`
}
