package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/ledger/internal/accounting"
	"github.com/odyssey-erp/ledger/internal/accounting/chart"
	"github.com/odyssey-erp/ledger/internal/accounting/memory"
	"github.com/odyssey-erp/ledger/internal/accounting/reports"
	"github.com/odyssey-erp/ledger/internal/accounting/sqlite"
	"github.com/odyssey-erp/ledger/internal/currency"
	"github.com/odyssey-erp/ledger/internal/observability"
	"github.com/odyssey-erp/ledger/internal/platform/cache"
	"github.com/odyssey-erp/ledger/internal/platform/db"
	"github.com/odyssey-erp/ledger/internal/shared"
)

// Ledger bundles the wired services shared by the API server, worker and CLI.
type Ledger struct {
	Config  *Config
	Logger  *slog.Logger
	Store   accounting.Repository
	Ledger  *accounting.Service
	Reports *reports.Service
	Chart   *chart.Chart
	Metrics *observability.Metrics
	Pool    *pgxpool.Pool
	Redis   *redis.Client

	closers []func() error
}

// Bootstrap opens the configured store and wires the ledger services.
func Bootstrap(ctx context.Context, cfg *Config, logger *slog.Logger) (*Ledger, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = NewLogger(cfg)
	}
	l := &Ledger{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}

	var audit accounting.AuditPort = shared.NewSlogAuditor(logger)
	switch cfg.LedgerStore {
	case StorePostgres:
		pool, err := db.New(ctx, cfg.PGDSN)
		if err != nil {
			return nil, err
		}
		l.Pool = pool
		l.closers = append(l.closers, func() error { pool.Close(); return nil })
		l.Store = accounting.NewPostgresRepository(pool)
		audit = shared.NewAuditLogger(pool)
	case StoreSQLite:
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, store.Close)
		l.Store = store
	case StoreMemory:
		l.Store = memory.New()
	default:
		return nil, fmt.Errorf("app: unsupported store %q", cfg.LedgerStore)
	}

	c := chart.Default()
	if cfg.ChartPath != "" {
		loaded, err := chart.Load(cfg.ChartPath)
		if err != nil {
			_ = l.Close()
			return nil, err
		}
		c = loaded
	}
	l.Chart = c

	resolver, err := currency.NewStatic(cfg.ReportingCurrency)
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	l.Ledger = accounting.NewService(l.Store, audit, logger)
	l.Ledger.WithObserver(l.Metrics)

	var reportCache *reports.Cache
	if cfg.RedisEnabled() {
		client, err := cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("redis unavailable, running without sequencer and report cache", slog.Any("error", err))
		} else {
			l.Redis = client
			l.closers = append(l.closers, client.Close)
			l.Ledger.WithSequencer(accounting.NewRedisSequencer(client))
			reportCache = reports.NewCache(client, cfg.ReportCacheTTL)
			l.Ledger.WithCacheBumper(reportCache)
			if err := reportCache.ListenForInvalidation(ctx, reports.BumpChannel); err != nil {
				logger.Warn("subscribe report invalidation", slog.Any("error", err))
			}
		}
	}
	l.Reports = reports.NewService(l.Store, c, resolver, reportCache, logger)

	logger.Info("ledger ready",
		slog.String("store", cfg.LedgerStore),
		slog.Bool("redis", l.Redis != nil),
		slog.String("reporting_currency", resolver.Reporting()))
	return l, nil
}

// Ping checks the backing store and Redis.
func (l *Ledger) Ping(ctx context.Context) error {
	if l.Pool != nil {
		if err := l.Pool.Ping(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if pinger, ok := l.Store.(interface{ Ping(context.Context) error }); ok {
		if err := pinger.Ping(ctx); err != nil {
			return fmt.Errorf("sqlite: %w", err)
		}
	}
	if l.Redis != nil {
		if err := l.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	return nil
}

// Close releases resources in reverse acquisition order.
func (l *Ledger) Close() error {
	if l == nil {
		return nil
	}
	var errs []error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	l.closers = nil
	return errors.Join(errs...)
}
