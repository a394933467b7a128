package reports

import (
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
)

// TrialBalance lists every account with global debit and credit totals.
type TrialBalance struct {
	Statement
}

// BuildTrialBalance folds balances across both statement sections.
func BuildTrialBalance(balances []AccountBalance, c *chart.Chart) TrialBalance {
	return TrialBalance{Statement: Fold(KindTrialBalance, balances, c)}
}
