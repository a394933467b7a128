package accounting

import "github.com/google/uuid"

// TransactionType tags the kind of business document.
type TransactionType string

const (
	CashSale        TransactionType = "CASH_SALE"
	ClientInvoice   TransactionType = "CLIENT_INVOICE"
	CreditNote      TransactionType = "CREDIT_NOTE"
	ClientReceipt   TransactionType = "CLIENT_RECEIPT"
	CashPurchase    TransactionType = "CASH_PURCHASE"
	SupplierBill    TransactionType = "SUPPLIER_BILL"
	DebitNote       TransactionType = "DEBIT_NOTE"
	SupplierPayment TransactionType = "SUPPLIER_PAYMENT"
	ContraEntry     TransactionType = "CONTRA_ENTRY"
	JournalEntry    TransactionType = "JOURNAL_ENTRY"
	SupplierReceipt TransactionType = "SUPPLIER_RECEIPT"
)

// purchaseLineTypes is shared by Cash Purchase, Supplier Bill and Debit Note.
var purchaseLineTypes = []AccountType{
	AccountTypeOperatingExpense,
	AccountTypeDirectExpense,
	AccountTypeOverheadExpense,
	AccountTypeOtherExpense,
	AccountTypeNonCurrentAsset,
	AccountTypeCurrentAsset,
	AccountTypeInventory,
}

// Policy captures the posting rules of a transaction type.
type Policy struct {
	Type            TransactionType
	Prefix          string
	Label           string
	MainAccountType AccountType
	LineItemTypes   []AccountType
	// MainSide is empty when each line item chooses its own side.
	MainSide EntryType
}

var policies = map[TransactionType]Policy{
	CashSale: {
		Type: CashSale, Prefix: "CS", Label: "Cash Sale",
		MainAccountType: AccountTypeBank,
		LineItemTypes:   []AccountType{AccountTypeOperatingRevenue},
		MainSide:        Debit,
	},
	ClientInvoice: {
		Type: ClientInvoice, Prefix: "IN", Label: "Client Invoice",
		MainAccountType: AccountTypeReceivable,
		LineItemTypes:   []AccountType{AccountTypeOperatingRevenue},
		MainSide:        Debit,
	},
	CreditNote: {
		Type: CreditNote, Prefix: "CN", Label: "Credit Note",
		MainAccountType: AccountTypeReceivable,
		LineItemTypes:   []AccountType{AccountTypeOperatingRevenue},
		MainSide:        Credit,
	},
	ClientReceipt: {
		Type: ClientReceipt, Prefix: "RC", Label: "Client Receipt",
		MainAccountType: AccountTypeReceivable,
		LineItemTypes:   []AccountType{AccountTypeBank},
		MainSide:        Credit,
	},
	CashPurchase: {
		Type: CashPurchase, Prefix: "CP", Label: "Cash Purchase",
		MainAccountType: AccountTypeBank,
		LineItemTypes:   purchaseLineTypes,
		MainSide:        Credit,
	},
	SupplierBill: {
		Type: SupplierBill, Prefix: "BL", Label: "Supplier Bill",
		MainAccountType: AccountTypePayable,
		LineItemTypes:   purchaseLineTypes,
		MainSide:        Credit,
	},
	DebitNote: {
		Type: DebitNote, Prefix: "DN", Label: "Debit Note",
		MainAccountType: AccountTypePayable,
		LineItemTypes:   purchaseLineTypes,
		MainSide:        Debit,
	},
	SupplierPayment: {
		Type: SupplierPayment, Prefix: "PY", Label: "Supplier Payment",
		MainAccountType: AccountTypePayable,
		LineItemTypes:   []AccountType{AccountTypeBank},
		MainSide:        Debit,
	},
	ContraEntry: {
		Type: ContraEntry, Prefix: "CE", Label: "Contra Entry",
		MainAccountType: AccountTypeBank,
		LineItemTypes:   []AccountType{AccountTypeBank},
		MainSide:        Debit,
	},
	JournalEntry: {
		Type: JournalEntry, Prefix: "JN", Label: "Journal Entry",
	},
	SupplierReceipt: {
		Type: SupplierReceipt, Prefix: "SR", Label: "Supplier Receipt",
		MainAccountType: AccountTypePayable,
		LineItemTypes:   []AccountType{AccountTypeBank},
		MainSide:        Credit,
	},
}

// TransactionTypes lists the supported transaction types.
func TransactionTypes() []TransactionType {
	return []TransactionType{
		CashSale, ClientInvoice, CreditNote, ClientReceipt, CashPurchase, SupplierBill,
		DebitNote, SupplierPayment, ContraEntry, JournalEntry, SupplierReceipt,
	}
}

// PolicyFor returns the posting policy for the transaction type.
func PolicyFor(t TransactionType) (Policy, error) {
	p, ok := policies[t]
	if !ok {
		return Policy{}, ErrUnknownTransactionType
	}
	return p, nil
}

// SideFor returns the side the main account takes for the line item.
func (p Policy) SideFor(item LineItem) EntryType {
	if p.MainSide != "" {
		return p.MainSide
	}
	if item.MainSide.Valid() {
		return item.MainSide
	}
	return Credit
}

func (p Policy) allows(t AccountType) bool {
	if len(p.LineItemTypes) == 0 {
		return true
	}
	for _, allowed := range p.LineItemTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// Validate checks the transaction against the policy. The main account is
// checked before any line item.
func (p Policy) Validate(tx *Transaction) error {
	if tx.Account.ID == uuid.Nil {
		return ErrMainAccountRequired
	}
	if p.MainAccountType != "" && tx.Account.Type != p.MainAccountType {
		return &MainAccountTypeError{Transaction: p.Label, Required: p.MainAccountType, Actual: tx.Account.Type}
	}
	if len(tx.LineItems) == 0 {
		return ErrNoLineItems
	}
	for _, item := range tx.LineItems {
		if !p.allows(item.Account.Type) {
			return &LineItemAccountTypeError{Transaction: p.Label, Allowed: p.LineItemTypes, Actual: item.Account.Type}
		}
	}
	for _, item := range tx.LineItems {
		if err := item.validate(tx.Account); err != nil {
			return err
		}
	}
	return nil
}
