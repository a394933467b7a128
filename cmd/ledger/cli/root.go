// Package cli wires the ledger command line.
package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/ledger/internal/app"
)

// Version is stamped at build time.
var Version = "dev"

type runtime struct {
	cfg    *app.Config
	logger *slog.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand() *cobra.Command {
	rt := &runtime{}
	var debug bool
	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Double-entry bookkeeping engine",
		Version: Version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if debug {
				cfg.LogLevel = "debug"
			}
			rt.cfg = cfg
			if cmd.Name() == "serve" || cmd.Name() == "worker" {
				rt.logger = app.NewLogger(cfg)
			} else {
				rt.logger = app.NewLoggerTo(cfg, cmd.ErrOrStderr())
			}
			slog.SetDefault(rt.logger)
			return nil
		},
	}
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newServeCommand(rt),
		newWorkerCommand(rt),
		newReportCommand(rt),
		newIntegrityCommand(rt),
		newMigrateCommand(rt),
		newSeedCommand(rt),
		newPeriodCommand(rt),
		newJobsCommand(rt),
	)
	return rootCmd
}

// open bootstraps the ledger services for a command.
func (rt *runtime) open(cmd *cobra.Command) (*app.Ledger, error) {
	return app.Bootstrap(cmd.Context(), rt.cfg, rt.logger)
}
