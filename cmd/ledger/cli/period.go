package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/accounting"
)

func newPeriodCommand(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "period",
		Short: "Open or close accounting periods",
	}
	cmd.AddCommand(
		periodAction(rt, "open", "Open the calendar year period", func(cmd *cobra.Command, svc *accounting.Service, year int) (accounting.Period, error) {
			return svc.OpenPeriod(cmd.Context(), year)
		}),
		periodAction(rt, "close", "Close a period to further postings", func(cmd *cobra.Command, svc *accounting.Service, year int) (accounting.Period, error) {
			return svc.ClosePeriod(cmd.Context(), year)
		}),
	)
	return cmd
}

func periodAction(rt *runtime, use, short string, action func(*cobra.Command, *accounting.Service, int) (accounting.Period, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " YEAR",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			year, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid year %q", args[0])
			}
			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
			p, err := action(cmd, l.Ledger, year)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "period %d (%s to %s) %s\n", p.Year, p.Start.Format("2006-01-02"), p.End.Format("2006-01-02"), p.Status)
			return nil
		},
	}
}
