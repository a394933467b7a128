package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting/reports"
)

// ReportOptions captures the report command flags.
type ReportOptions struct {
	Kind     string
	Year     int
	AsOf     string
	Currency string
	Format   string
}

func newReportCommand(rt *runtime) *cobra.Command {
	opts := ReportOptions{}
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Print a trial balance, income statement or balance sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			req, kind, err := opts.request()
			if err != nil {
				return err
			}
			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			statement, err := l.Reports.Build(cmd.Context(), kind, req)
			if err != nil {
				return err
			}
			return writeStatement(cmd.OutOrStdout(), opts.Format, statement)
		},
	}
	cmd.Flags().StringVar(&opts.Kind, "kind", "trial-balance", "trial-balance, income-statement or balance-sheet")
	cmd.Flags().IntVar(&opts.Year, "year", 0, "period year (defaults to the current year)")
	cmd.Flags().StringVar(&opts.AsOf, "as-of", "", "closing date YYYY-MM-DD (defaults to the period end)")
	cmd.Flags().StringVar(&opts.Currency, "currency", "", "ISO 4217 currency (defaults to the reporting currency)")
	cmd.Flags().StringVar(&opts.Format, "format", "text", "output format: text or json")
	return cmd
}

func (o ReportOptions) request() (reports.Request, reports.Kind, error) {
	kind := reports.Kind(strings.ReplaceAll(strings.ToLower(o.Kind), "-", "_"))
	if !kind.Valid() {
		return reports.Request{}, "", fmt.Errorf("%w: %q", reports.ErrUnknownKind, o.Kind)
	}
	switch o.Format {
	case "text", "json":
	default:
		return reports.Request{}, "", fmt.Errorf("unsupported format %q", o.Format)
	}
	req := reports.Request{Year: o.Year, Currency: o.Currency}
	if o.AsOf != "" {
		asOf, err := time.Parse("2006-01-02", o.AsOf)
		if err != nil {
			return reports.Request{}, "", fmt.Errorf("invalid --as-of: %w", err)
		}
		req.AsOf = &asOf
	}
	return req, kind, nil
}

func writeStatement(out io.Writer, format string, statement any) error {
	if format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(statement)
	}

	var st reports.Statement
	var summary [][2]string
	switch v := statement.(type) {
	case reports.TrialBalance:
		st = v.Statement
	case reports.IncomeStatement:
		st = v.Statement
		summary = [][2]string{
			{"Revenues", v.Revenues.StringFixed(2)},
			{"Expenses", v.Expenses.StringFixed(2)},
			{"Net profit", v.NetProfit.StringFixed(2)},
		}
	case reports.BalanceSheet:
		st = v.Statement
		summary = [][2]string{
			{"Assets", v.Assets.StringFixed(2)},
			{"Liabilities", v.Liabilities.StringFixed(2)},
			{"Equity", v.Equity.StringFixed(2)},
			{"Reconciliation", v.Reconciliation.StringFixed(2)},
		}
	default:
		return fmt.Errorf("unsupported statement %T", statement)
	}

	fmt.Fprintf(out, "%s %d as of %s (%s)\n", strings.ReplaceAll(string(st.Kind), "_", " "), st.Year, st.AsOf.Format("2006-01-02"), st.Currency)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', tabwriter.AlignRight)
	for _, section := range st.Sections {
		fmt.Fprintf(tw, "\n%s\t\t\t\n", section.Name)
		for _, bucket := range section.Buckets {
			fmt.Fprintf(tw, "  %s\t\t%s\t\n", bucket.Label, bucket.Balance.StringFixed(2))
			for _, acct := range bucket.Accounts {
				fmt.Fprintf(tw, "    %s %s\t%s\t\t\n", acct.Code, acct.Name, signed(acct.Balance))
			}
		}
	}
	fmt.Fprintf(tw, "\nDebit\t\t%s\t\n", st.Debit.StringFixed(2))
	fmt.Fprintf(tw, "Credit\t\t%s\t\n", st.Credit.StringFixed(2))
	for _, line := range summary {
		fmt.Fprintf(tw, "%s\t\t%s\t\n", line[0], line[1])
	}
	return tw.Flush()
}

func signed(d decimal.Decimal) string {
	if d.IsNegative() {
		return "(" + d.Abs().StringFixed(2) + ")"
	}
	return d.StringFixed(2)
}
