package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	ledgerhttp "github.com/odyssey-erp/ledger/internal/accounting/http"
	"github.com/odyssey-erp/ledger/internal/app"
	"github.com/odyssey-erp/ledger/jobs"
)

func newServeCommand(rt *runtime) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if app.InTestMode() {
				rt.logger.Info("test mode detected, skipping server startup")
				return nil
			}
			ctx := cmd.Context()
			l, err := rt.open(cmd)
			if err != nil {
				return err
			}
			defer func() {
				if err := l.Close(); err != nil {
					rt.logger.Warn("close ledger", slog.Any("error", err))
				}
			}()

			var jobHandler *jobs.Handler
			if l.Redis != nil {
				redisOpt, err := jobs.RedisOpt(rt.cfg.RedisAddr)
				if err != nil {
					return err
				}
				inspector := asynq.NewInspector(redisOpt)
				defer func() { _ = inspector.Close() }()
				jobHandler = jobs.NewHandler(inspector, rt.logger)
			}

			router := app.NewRouter(app.RouterParams{
				Logger:        rt.logger,
				Config:        rt.cfg,
				LedgerHandler: ledgerhttp.NewHandler(rt.logger, l.Ledger, l.Reports, rt.cfg.ReportRateLimit),
				JobHandler:    jobHandler,
				Metrics:       l.Metrics,
				Health:        l.Ping,
			})

			server := &http.Server{
				Addr:         rt.cfg.AppAddr,
				Handler:      router,
				ReadTimeout:  rt.cfg.AppReadTimeout,
				WriteTimeout: rt.cfg.AppWriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				rt.logger.Info("starting http server", slog.String("addr", rt.cfg.AppAddr))
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			rt.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				rt.logger.Error("graceful shutdown", slog.Any("error", err))
				return err
			}
			return nil
		},
	}
}
