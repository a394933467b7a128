package reports

import (
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/ledger/internal/accounting/chart"
)

// BalanceSheet reports assets against liabilities and equity.
type BalanceSheet struct {
	Statement
	Assets         decimal.Decimal `json:"assets"`
	Liabilities    decimal.Decimal `json:"liabilities"`
	Equity         decimal.Decimal `json:"equity"`
	Reconciliation decimal.Decimal `json:"reconciliation"`
}

// TotalLiabilitiesAndEquity returns liabilities plus equity.
func (b BalanceSheet) TotalLiabilitiesAndEquity() decimal.Decimal {
	return b.Liabilities.Add(b.Equity)
}

// BuildBalanceSheet folds balance sheet accounts into their categories.
func BuildBalanceSheet(balances []AccountBalance, c *chart.Chart) BalanceSheet {
	st := Fold(KindBalanceSheet, balances, c)
	return BalanceSheet{
		Statement:      st,
		Assets:         st.Total(chart.NatureAsset),
		Liabilities:    st.Total(chart.NatureLiability),
		Equity:         st.Total(chart.NatureEquity),
		Reconciliation: st.Total(chart.NatureReconciliation),
	}
}
