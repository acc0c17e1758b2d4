// Command monitor runs the factory event monitor: the webhook receiver,
// the optional WebSocket live tail, and the Prometheus metrics endpoint.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/api"
	"github.com/itripleg/motherhaven-sub003/internal/config"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
	"github.com/itripleg/motherhaven-sub003/internal/factory"
	"github.com/itripleg/motherhaven-sub003/internal/ingest"
	"github.com/itripleg/motherhaven-sub003/internal/observability"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
	chstore "github.com/itripleg/motherhaven-sub003/internal/storage/clickhouse"
	"github.com/itripleg/motherhaven-sub003/internal/storage/memory"
	"github.com/itripleg/motherhaven-sub003/internal/storage/migrations"
	pgstore "github.com/itripleg/motherhaven-sub003/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	logger.Info().
		Str("network", cfg.Chain.Network).
		Str("factory", cfg.Chain.FactoryAddress).
		Str("listen", cfg.Server.ListenAddr).
		Msg("starting monitor")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *useMemory); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("monitor failed")
	}
	logger.Info().Msg("shutdown complete")
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, useMemory bool) error {
	handlersOpts := ingest.HandlersOptions{Logger: logger}
	var watchlist storage.WatchlistStore

	if useMemory {
		logger.Warn().Msg("using in-memory storage, nothing will be persisted")
		handlersOpts.TokenStore = memory.NewTokenStore()
		handlersOpts.TradeStore = memory.NewTradeStore()
		handlersOpts.UserStore = memory.NewUserStore()
		handlersOpts.PricePointStore = memory.NewPricePointStore()
		watchlist = memory.NewWatchlistStore()
	} else {
		if cfg.Storage.PostgresDSN == "" {
			return fmt.Errorf("storage.postgres-dsn is required (or pass --use-memory)")
		}
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			return fmt.Errorf("postgres migrations: %w", err)
		}
		handlersOpts.TokenStore = pgstore.NewTokenStore(pool)
		handlersOpts.TradeStore = pgstore.NewTradeStore(pool)
		handlersOpts.UserStore = pgstore.NewUserStore(pool)
		watchlist = pgstore.NewWatchlistStore(pool)
	}

	// Chart storage is optional: without a ClickHouse DSN the monitor
	// still ingests, it just skips price points.
	if !useMemory && cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		handlersOpts.PricePointStore = chstore.NewPricePointStore(conn)
	} else if !useMemory {
		logger.Warn().Msg("no clickhouse dsn configured, price points disabled")
	}

	// On-chain reconciliation is optional the same way: without an RPC
	// endpoint every trade falls back to event arithmetic.
	if cfg.Chain.RPCURL != "" {
		rpc := evm.NewClient(cfg.Chain.RPCURL)
		handlersOpts.Reconciler = ingest.NewReconciler(factory.NewReader(rpc, cfg.Chain.FactoryAddress), logger)
	} else {
		handlersOpts.Reconciler = ingest.NewReconciler(nil, logger)
		logger.Warn().Msg("no rpc url configured, reconciliation disabled")
	}

	decoder := factory.NewDecoder(cfg.Chain.FactoryAddress)
	pipeline := ingest.NewPipeline(decoder, ingest.NewHandlers(handlersOpts), logger)
	webhook := ingest.NewWebhook(pipeline, cfg.Chain.Network, logger)

	mux := http.NewServeMux()
	mux.Handle(ingest.WebhookPath, webhook)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	api.NewWatchlistHandler(watchlist, logger).Register(mux)
	if handlersOpts.PricePointStore != nil {
		api.NewPricePointHandler(handlersOpts.PricePointStore, logger).Register(mux)
	}

	server := &http.Server{
		Addr:        cfg.Server.ListenAddr,
		Handler:     mux,
		ReadTimeout: cfg.Server.ReadTimeout,
	}

	errCh := make(chan error, 3)

	go func() {
		logger.Info().Str("addr", cfg.Server.ListenAddr).Str("path", ingest.WebhookPath).Msg("webhook listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("webhook server: %w", err)
		}
	}()

	if cfg.Server.MetricsAddr != "" {
		go func() {
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", observability.Handler())
			logger.Info().Str("addr", cfg.Server.MetricsAddr).Msg("metrics listening")
			if err := http.ListenAndServe(cfg.Server.MetricsAddr, metricsMux); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("metrics server: %w", err)
			}
		}()
	}

	// Live tail: subscribe to factory logs over WebSocket alongside the
	// webhook, feeding the same pipeline.
	if cfg.Chain.WSURL != "" {
		sub, err := evm.NewLogSubscriber(ctx, cfg.Chain.WSURL, cfg.Chain.FactoryAddress, nil, logger)
		if err != nil {
			return fmt.Errorf("websocket subscribe: %w", err)
		}
		defer sub.Close()

		var rpc *evm.Client
		if cfg.Chain.RPCURL != "" {
			rpc = evm.NewClient(cfg.Chain.RPCURL)
		}
		go tailLogs(ctx, sub, pipeline, rpc, logger)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("webhook server shutdown")
	}
	return ctx.Err()
}

// tailLogs feeds subscribed logs through the pipeline one at a time,
// resolving each log's block timestamp over RPC when available.
func tailLogs(ctx context.Context, sub *evm.LogSubscriber, pipeline *ingest.Pipeline, rpc *evm.Client, logger zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case log, ok := <-sub.Logs():
			if !ok {
				return
			}
			pipeline.ProcessLogs(ctx, []evm.Log{log}, resolveBlockTime(ctx, rpc, &log, logger))
		}
	}
}

func resolveBlockTime(ctx context.Context, rpc *evm.Client, log *evm.Log, logger zerolog.Logger) time.Time {
	if rpc == nil || log.BlockNumber == "" {
		return time.Now().UTC()
	}
	number, err := evm.ParseQuantity(log.BlockNumber)
	if err != nil {
		return time.Now().UTC()
	}
	ts, err := rpc.BlockTimestamp(ctx, number)
	if err != nil {
		logger.Warn().Err(err).Uint64("block", number).Msg("block timestamp lookup failed")
		return time.Now().UTC()
	}
	return ts
}
