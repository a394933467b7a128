package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jobmetrics "github.com/odyssey-erp/ledger/internal/jobs"
	"github.com/odyssey-erp/ledger/jobs"
)

func newIntegrityCommand(rt *runtime) *cobra.Command {
	var years []int
	cmd := &cobra.Command{
		Use:   "integrity",
		Short: "Check that debits equal credits for each period",
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()

			if len(years) == 0 {
				years = []int{time.Now().Year()}
			}
			job := jobs.NewIntegrityJob(l.Ledger, rt.logger, jobmetrics.NewMetrics(l.Metrics.Registerer()))
			totals, err := job.Check(cmd.Context(), years...)
			out := cmd.OutOrStdout()
			for _, t := range totals {
				status := "ok"
				if !t.Debit.Equal(t.Credit) {
					status = "UNBALANCED"
				}
				fmt.Fprintf(out, "%d\t%s\t%s\t%s\n", t.Period.Year, t.Debit.StringFixed(2), t.Credit.StringFixed(2), status)
			}
			return err
		},
	}
	cmd.Flags().IntSliceVar(&years, "year", nil, "period years to check (defaults to the current year)")
	return cmd
}
