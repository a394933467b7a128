package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/migrations"
)

func newMigrateCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch rt.cfg.LedgerStore {
			case app.StorePostgres:
			case app.StoreSQLite:
				fmt.Fprintf(out, "sqlite schema is applied on open (%s)\n", rt.cfg.SQLitePath)
				return nil
			default:
				fmt.Fprintf(out, "store %q has no schema\n", rt.cfg.LedgerStore)
				return nil
			}

			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = l.Close() }()
			names, err := migrations.Names()
			if err != nil {
				return err
			}
			if err := migrations.Apply(cmd.Context(), l.Pool); err != nil {
				return err
			}
			for _, name := range names {
				fmt.Fprintf(out, "✓ %s\n", name)
			}
			return nil
		},
	}
}
