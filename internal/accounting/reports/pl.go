package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/chart"
)

// IncomeStatement summarises revenues and expenses for a period.
type IncomeStatement struct {
	Statement
	Revenues  decimal.Decimal `json:"revenues"`
	Expenses  decimal.Decimal `json:"expenses"`
	NetProfit decimal.Decimal `json:"net_profit"`
}

// BuildIncomeStatement folds income statement accounts and derives net profit.
func BuildIncomeStatement(balances []AccountBalance, c *chart.Chart) IncomeStatement {
	st := Fold(KindIncomeStatement, balances, c)
	revenues := st.Total(chart.NatureRevenue)
	expenses := st.Total(chart.NatureExpense)
	return IncomeStatement{
		Statement: st,
		Revenues:  revenues,
		Expenses:  expenses,
		NetProfit: revenues.Sub(expenses),
	}
}
