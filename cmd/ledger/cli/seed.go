package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/seed"
)

func newSeedCommand(rt *runtime) *cobra.Command {
	var year int
	var currency string
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load a demonstration chart of accounts and transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
			if year == 0 {
				year = time.Now().Year()
			}
			if currency == "" {
				currency = rt.cfg.ReportingCurrency
			}
			_, err = seed.Run(cmd.Context(), l.Ledger, year, currency, cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "period year to seed (defaults to the current year)")
	cmd.Flags().StringVar(&currency, "currency", "", "account currency (defaults to the reporting currency)")
	return cmd
}
