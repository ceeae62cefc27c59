package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Clark-Hu/freelance-hub/internal/config"
	httpserver "github.com/Clark-Hu/freelance-hub/internal/http"
	"github.com/Clark-Hu/freelance-hub/internal/logging"
	"github.com/Clark-Hu/freelance-hub/internal/metrics"
	"github.com/Clark-Hu/freelance-hub/internal/paypal"
	"github.com/Clark-Hu/freelance-hub/internal/repository"
	"github.com/Clark-Hu/freelance-hub/internal/store"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API until interrupted.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply pending migrations on startup")
	return cmd
}

func runServe(ctx context.Context, skipMigrate bool) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	if !skipMigrate {
		if err := store.Migrate(cfg.DBURL, logger); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.New(dbCtx, cfg.DBURL, store.Options{
		MaxConns:               int32(cfg.DBMaxConns),
		MinConns:               int32(cfg.DBMinConns),
		MaxConnIdleTime:        time.Duration(cfg.DBMaxIdleSecs) * time.Second,
		MaxConnLifetime:        time.Duration(cfg.DBMaxLifeSecs) * time.Second,
		ConnTimeout:            time.Duration(cfg.DBConnTimeoutSecs) * time.Second,
		StatementCacheCapacity: cfg.DBStatementCache,
		Logger:                 logger,
	})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer st.Close()

	payClient, err := paypal.NewHTTPClient(cfg.PaypalURL, cfg.PaypalClientID, cfg.PaypalClientSecret,
		time.Duration(cfg.PaypalTimeoutSecs)*time.Second, logger)
	if err != nil {
		return fmt.Errorf("init paypal client: %w", err)
	}

	server := httpserver.New(cfg, st, repository.New(st), payClient, metrics.New(), logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(gctx)
	})
	g.Go(func() error {
		reportPoolStats(gctx, st, logger, time.Minute)
		return nil
	})

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server error", zap.Error(err))
		return err
	}
	logger.Info("server stopped")
	return nil
}

// reportPoolStats logs connection pool usage every interval until ctx ends.
func reportPoolStats(ctx context.Context, st *store.Store, logger *zap.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := st.Stats()
			if stats == nil {
				continue
			}
			logger.Debug("db pool",
				zap.Int32("total", stats.TotalConns()),
				zap.Int32("idle", stats.IdleConns()),
				zap.Int32("acquired", stats.AcquiredConns()),
				zap.Int64("acquire_count", stats.AcquireCount()),
			)
		}
	}
}
