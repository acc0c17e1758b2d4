// Command restore rebuilds database state from chain history: it scans
// historical factory logs, reports tokens and trades missing from the
// stores, and optionally repairs them. A first interrupt cancels the
// scan at the next batch boundary, keeping partial results.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/backfill"
	"github.com/itripleg/motherhaven-sub003/internal/config"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
	"github.com/itripleg/motherhaven-sub003/internal/factory"
	"github.com/itripleg/motherhaven-sub003/internal/ingest"
	"github.com/itripleg/motherhaven-sub003/internal/observability"
	chstore "github.com/itripleg/motherhaven-sub003/internal/storage/clickhouse"
	"github.com/itripleg/motherhaven-sub003/internal/storage/migrations"
	pgstore "github.com/itripleg/motherhaven-sub003/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to YAML config file")
	mode := flag.String("mode", "tokens", "Scan mode: tokens, trades, or creation-block")
	fromBlock := flag.Uint64("from", 0, "Start block (creation block by default for token scans)")
	toBlock := flag.Uint64("to", 0, "End block (0 = latest)")
	batchSize := flag.Uint64("batch", 0, "Blocks per eth_getLogs batch (0 = config default)")
	repair := flag.Bool("repair", false, "Write missing entities back to the stores")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	logger := observability.NewLogger(cfg.Logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *mode, *fromBlock, *toBlock, *batchSize, *repair); err != nil {
		if errors.Is(err, backfill.ErrCancelled) {
			logger.Warn().Msg("scan cancelled, partial results reported above")
			os.Exit(130)
		}
		logger.Fatal().Err(err).Msg("restore failed")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger, mode string, from, to, batchSize uint64, repair bool) error {
	if cfg.Chain.RPCURL == "" {
		return fmt.Errorf("chain.rpc-url is required")
	}
	if cfg.Storage.PostgresDSN == "" {
		return fmt.Errorf("storage.postgres-dsn is required")
	}
	if batchSize == 0 {
		batchSize = cfg.Backfill.BatchSize
	}

	pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		return fmt.Errorf("postgres migrations: %w", err)
	}

	rpc := evm.NewClient(cfg.Chain.RPCURL)
	tokens := pgstore.NewTokenStore(pool)
	trades := pgstore.NewTradeStore(pool)

	handlersOpts := ingest.HandlersOptions{
		TokenStore: tokens,
		TradeStore: trades,
		UserStore:  pgstore.NewUserStore(pool),
		Reconciler: ingest.NewReconciler(factory.NewReader(rpc, cfg.Chain.FactoryAddress), logger),
		Logger:     logger,
	}
	if cfg.Storage.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
		if err != nil {
			return fmt.Errorf("clickhouse migrations: %w", err)
		}
		defer conn.Close()
		handlersOpts.PricePointStore = chstore.NewPricePointStore(conn)
	}

	scanner := backfill.NewScanner(backfill.ScannerOptions{
		Source:       rpc,
		Decoder:      factory.NewDecoder(cfg.Chain.FactoryAddress),
		TokenStore:   tokens,
		TradeStore:   trades,
		Handlers:     ingest.NewHandlers(handlersOpts),
		BatchSize:    batchSize,
		SearchWindow: cfg.Backfill.CreationSearchWindow,
		Logger:       logger,
	})

	// A signal stops the scan at the next batch boundary.
	go func() {
		<-ctx.Done()
		scanner.Cancel()
	}()

	switch mode {
	case "creation-block":
		block, err := scanner.FindCreationBlock(context.Background(), cfg.Chain.FactoryAddress)
		if err != nil {
			return err
		}
		fmt.Printf("factory %s created at block %d\n", cfg.Chain.FactoryAddress, block)
		return nil

	case "tokens":
		reader := factory.NewReader(rpc, cfg.Chain.FactoryAddress)
		return runTokenScan(scanner, reader, cfg.Chain.FactoryAddress, from, to, repair)

	case "trades":
		return runTradeScan(scanner, from, to, repair)

	default:
		return fmt.Errorf("unknown mode %q (want tokens, trades, or creation-block)", mode)
	}
}

func runTokenScan(scanner *backfill.Scanner, reader *factory.Reader, factoryAddress string, from, to uint64, repair bool) error {
	// Background context on purpose: cancellation runs through the
	// scanner's own flag so partial results survive.
	ctx := context.Background()

	if from == 0 {
		creation, err := scanner.FindCreationBlock(ctx, factoryAddress)
		if err != nil {
			return fmt.Errorf("find creation block: %w", err)
		}
		fmt.Printf("scanning from factory creation block %d\n", creation)
		from = creation
	}

	report, scanErr := scanner.ScanTokens(ctx, from, to, printProgress)
	if scanErr != nil && !errors.Is(scanErr, backfill.ErrCancelled) {
		return scanErr
	}

	missing := report.Missing()
	fmt.Printf("\nblocks %d-%d: %d tokens found on chain, %d missing from the database\n",
		report.FromBlock, report.ToBlock, len(report.Found), len(missing))
	for _, f := range missing {
		state := "unknown"
		if s, err := reader.TokenState(ctx, f.Event.Token); err == nil {
			state = string(s)
		}
		fmt.Printf("  missing %s (%s) created at block %d, on-chain state %s\n",
			f.Event.Token, f.Event.Symbol, f.Event.BlockNumber, state)
	}

	if repair && len(missing) > 0 {
		repaired, err := scanner.RepairTokens(ctx, missing)
		fmt.Printf("repaired %d of %d missing tokens\n", repaired, len(missing))
		if err != nil {
			return err
		}
	}
	return scanErr
}

func runTradeScan(scanner *backfill.Scanner, from, to uint64, repair bool) error {
	ctx := context.Background()

	report, scanErr := scanner.ScanTrades(ctx, from, to, printProgress)
	if scanErr != nil && !errors.Is(scanErr, backfill.ErrCancelled) {
		return scanErr
	}

	missing := report.Missing()
	fmt.Printf("\nblocks %d-%d: %d trades found on chain, %d missing from the database\n",
		report.FromBlock, report.ToBlock, len(report.Found), len(missing))

	tokens := make([]string, 0, len(report.Backups))
	for token := range report.Backups {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	for _, token := range tokens {
		b := report.Backups[token]
		status := "fully backed up"
		if b.Stored == 0 {
			status = "not backed up"
		} else if b.Partially() {
			status = "partially backed up"
		}
		fmt.Printf("  %s: %d/%d trades stored (%s)\n", token, b.Stored, b.Found, status)
	}

	if repair && len(missing) > 0 {
		repaired, err := scanner.RepairTrades(ctx, missing)
		fmt.Printf("repaired %d of %d missing trades\n", repaired, len(missing))
		if err != nil {
			return err
		}
	}
	return scanErr
}

func printProgress(p backfill.Progress) {
	fmt.Printf("batch %d/%d (blocks %d-%d): %d matches so far\n",
		p.Batch, p.TotalBatches, p.FromBlock, p.ToBlock, p.MatchesFound)
}
