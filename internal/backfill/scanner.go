// Package backfill implements the restore tools: bounded historical
// log scans that cross-reference chain history against the stores,
// report gaps and repair them one merge-write at a time under explicit
// user control.
package backfill

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
	"github.com/itripleg/motherhaven-sub003/internal/factory"
	"github.com/itripleg/motherhaven-sub003/internal/idhash"
	"github.com/itripleg/motherhaven-sub003/internal/ingest"
	"github.com/itripleg/motherhaven-sub003/internal/observability"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// ErrCancelled reports a user-requested scan stop. It is an intent
// signal, not a failure: partial results accumulated before the stop
// are still returned alongside it.
var ErrCancelled = errors.New("scan cancelled")

// LogSource is the chain read surface the scanner needs.
type LogSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	GetLogs(ctx context.Context, q evm.FilterQuery) ([]evm.Log, error)
	GetCode(ctx context.Context, address string, block uint64) (string, error)
	BlockTimestamp(ctx context.Context, number uint64) (time.Time, error)
}

// Progress reports scan advancement after each batch.
type Progress struct {
	Batch        int // 1-based
	TotalBatches int
	FromBlock    uint64
	ToBlock      uint64
	MatchesFound int // cumulative
}

// ProgressFunc observes scan progress. Called after every batch.
type ProgressFunc func(Progress)

// ScannerOptions contains the collaborators for creating a Scanner.
type ScannerOptions struct {
	Source       LogSource
	Decoder      *factory.Decoder
	TokenStore   storage.TokenStore
	TradeStore   storage.TradeStore
	Handlers     *ingest.Handlers
	BatchSize    uint64
	SearchWindow uint64 // creation-block search bound in blocks
	Logger       zerolog.Logger
}

// Scanner paginates historical log ranges and reconciles them against
// the stores.
type Scanner struct {
	source       LogSource
	decoder      *factory.Decoder
	tokens       storage.TokenStore
	trades       storage.TradeStore
	handlers     *ingest.Handlers
	batchSize    uint64
	searchWindow uint64
	logger       zerolog.Logger

	cancelled atomic.Bool

	mu         sync.Mutex
	timestamps map[uint64]time.Time
}

// NewScanner creates a Scanner.
func NewScanner(opts ScannerOptions) *Scanner {
	batchSize := opts.BatchSize
	if batchSize == 0 {
		batchSize = 2048
	}
	searchWindow := opts.SearchWindow
	if searchWindow == 0 {
		searchWindow = 5_000_000
	}
	return &Scanner{
		source:       opts.Source,
		decoder:      opts.Decoder,
		tokens:       opts.TokenStore,
		trades:       opts.TradeStore,
		handlers:     opts.Handlers,
		batchSize:    batchSize,
		searchWindow: searchWindow,
		logger:       opts.Logger.With().Str("component", "backfill").Logger(),
		timestamps:   make(map[uint64]time.Time),
	}
}

// Cancel requests a stop. The flag is checked at the top of each batch
// iteration; the running scan returns ErrCancelled with its partial
// results.
func (s *Scanner) Cancel() {
	s.cancelled.Store(true)
}

// Reset clears the cancellation flag for a new scan.
func (s *Scanner) Reset() {
	s.cancelled.Store(false)
}

// FoundToken is one on-chain token creation matched during a scan.
type FoundToken struct {
	Event  *domain.TokenCreated
	Stored bool
}

// TokenScanReport is the result of ScanTokens.
type TokenScanReport struct {
	FromBlock uint64
	ToBlock   uint64
	Found     []FoundToken
}

// Missing returns the creations absent from the store.
func (r *TokenScanReport) Missing() []FoundToken {
	var missing []FoundToken
	for _, f := range r.Found {
		if !f.Stored {
			missing = append(missing, f)
		}
	}
	return missing
}

// ScanTokens paginates TokenCreated logs across [from, to] and marks
// each found token as stored or missing. to == 0 means latest.
func (s *Scanner) ScanTokens(ctx context.Context, from, to uint64, progress ProgressFunc) (*TokenScanReport, error) {
	from, to, err := s.resolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &TokenScanReport{FromBlock: from, ToBlock: to}

	topic := s.decoder.TopicFor(domain.EventTokenCreated)
	err = s.forEachBatch(ctx, from, to, progress, func(ctx context.Context, batchFrom, batchTo uint64) (int, error) {
		logs, err := s.source.GetLogs(ctx, evm.FilterQuery{
			FromBlock: batchFrom,
			ToBlock:   batchTo,
			Address:   s.decoder.FactoryAddress(),
			Topics:    []string{topic},
		})
		if err != nil {
			return 0, fmt.Errorf("get creation logs %d-%d: %w", batchFrom, batchTo, err)
		}
		observability.DefaultMetrics.ScanLogsFetched.Add(float64(len(logs)))

		matched := 0
		for i := range logs {
			ev, err := s.decodeCreated(ctx, &logs[i])
			if err != nil {
				s.logger.Warn().Err(err).Str("tx", logs[i].TxHash).Msg("skipping undecodable creation log")
				continue
			}

			stored := true
			if _, err := s.tokens.GetByAddress(ctx, ev.Token); err != nil {
				if !errors.Is(err, storage.ErrNotFound) {
					return matched, fmt.Errorf("lookup token %s: %w", ev.Token, err)
				}
				stored = false
			}
			report.Found = append(report.Found, FoundToken{Event: ev, Stored: stored})
			matched++
		}
		return matched, nil
	})
	return report, err
}

// RepairTokens re-applies the missing creations one merge-write at a
// time. Returns the number repaired; stops on the first hard failure.
func (s *Scanner) RepairTokens(ctx context.Context, missing []FoundToken) (int, error) {
	repaired := 0
	for _, f := range missing {
		if err := s.handlers.HandleTokenCreated(ctx, f.Event); err != nil {
			return repaired, fmt.Errorf("repair token %s: %w", f.Event.Token, err)
		}
		repaired++
		observability.DefaultMetrics.TokensRestored.Inc()
	}
	return repaired, nil
}

// FoundTrade is one on-chain fill matched during a scan.
type FoundTrade struct {
	Event   domain.Event // *TokensPurchased or *TokensSold
	TradeID string
	Token   string
	Stored  bool
}

// TokenBackup summarizes per-token coverage found during a trade scan:
// whether any of the token's transactions already exist in the store.
type TokenBackup struct {
	Found  int
	Stored int
}

// Fully reports whether every found trade for the token is stored.
func (b *TokenBackup) Fully() bool { return b.Stored == b.Found }

// Partially reports whether some but not all found trades are stored.
func (b *TokenBackup) Partially() bool { return b.Stored > 0 && b.Stored < b.Found }

// TradeScanReport is the result of ScanTrades.
type TradeScanReport struct {
	FromBlock uint64
	ToBlock   uint64
	Found     []FoundTrade
	Backups   map[string]*TokenBackup // keyed by token address
}

// Missing returns the fills absent from the store.
func (r *TradeScanReport) Missing() []FoundTrade {
	var missing []FoundTrade
	for _, f := range r.Found {
		if !f.Stored {
			missing = append(missing, f)
		}
	}
	return missing
}

// ScanTrades paginates buy and sell logs across [from, to], fetching
// the two directions in parallel per batch, and marks each fill as
// stored or missing by trade ID. to == 0 means latest.
func (s *Scanner) ScanTrades(ctx context.Context, from, to uint64, progress ProgressFunc) (*TradeScanReport, error) {
	from, to, err := s.resolveRange(ctx, from, to)
	if err != nil {
		return nil, err
	}
	report := &TradeScanReport{
		FromBlock: from,
		ToBlock:   to,
		Backups:   make(map[string]*TokenBackup),
	}

	buyTopic := s.decoder.TopicFor(domain.EventTokensPurchased)
	sellTopic := s.decoder.TopicFor(domain.EventTokensSold)

	err = s.forEachBatch(ctx, from, to, progress, func(ctx context.Context, batchFrom, batchTo uint64) (int, error) {
		var (
			wg       sync.WaitGroup
			buyLogs  []evm.Log
			sellLogs []evm.Log
			buyErr   error
			sellErr  error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			buyLogs, buyErr = s.source.GetLogs(ctx, evm.FilterQuery{
				FromBlock: batchFrom, ToBlock: batchTo,
				Address: s.decoder.FactoryAddress(), Topics: []string{buyTopic},
			})
		}()
		go func() {
			defer wg.Done()
			sellLogs, sellErr = s.source.GetLogs(ctx, evm.FilterQuery{
				FromBlock: batchFrom, ToBlock: batchTo,
				Address: s.decoder.FactoryAddress(), Topics: []string{sellTopic},
			})
		}()
		wg.Wait()
		if buyErr != nil {
			return 0, fmt.Errorf("get buy logs %d-%d: %w", batchFrom, batchTo, buyErr)
		}
		if sellErr != nil {
			return 0, fmt.Errorf("get sell logs %d-%d: %w", batchFrom, batchTo, sellErr)
		}
		logs := append(buyLogs, sellLogs...)
		observability.DefaultMetrics.ScanLogsFetched.Add(float64(len(logs)))

		matched := 0
		for i := range logs {
			found, err := s.matchTrade(ctx, &logs[i])
			if err != nil {
				s.logger.Warn().Err(err).Str("tx", logs[i].TxHash).Msg("skipping undecodable trade log")
				continue
			}
			report.Found = append(report.Found, *found)
			matched++

			backup := report.Backups[found.Token]
			if backup == nil {
				backup = &TokenBackup{}
				report.Backups[found.Token] = backup
			}
			backup.Found++
			if found.Stored {
				backup.Stored++
			}
		}
		return matched, nil
	})
	return report, err
}

// RepairTrades re-applies the missing fills one at a time through the
// trade handler, which deduplicates and updates token aggregates.
func (s *Scanner) RepairTrades(ctx context.Context, missing []FoundTrade) (int, error) {
	repaired := 0
	for _, f := range missing {
		var err error
		switch ev := f.Event.(type) {
		case *domain.TokensPurchased:
			err = s.handlers.HandleTokensPurchased(ctx, ev)
		case *domain.TokensSold:
			err = s.handlers.HandleTokensSold(ctx, ev)
		default:
			err = fmt.Errorf("unexpected event %s", f.Event.Name())
		}
		if err != nil {
			return repaired, fmt.Errorf("repair trade %s: %w", f.TradeID, err)
		}
		repaired++
		observability.DefaultMetrics.TradesRestored.Inc()
	}
	return repaired, nil
}

// FindCreationBlock binary-searches for the factory contract's creation
// block: the lowest block at which eth_getCode returns bytecode. The
// search is bounded below by the configured window to keep the probe
// count logarithmic in a known range.
func (s *Scanner) FindCreationBlock(ctx context.Context, address string) (uint64, error) {
	latest, err := s.source.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("latest block: %w", err)
	}

	code, err := s.source.GetCode(ctx, address, latest)
	if err != nil {
		return 0, fmt.Errorf("code at %d: %w", latest, err)
	}
	if !hasCode(code) {
		return 0, fmt.Errorf("no contract code at %s", address)
	}

	low := uint64(0)
	if latest > s.searchWindow {
		low = latest - s.searchWindow
	}
	high := latest

	for low < high {
		mid := low + (high-low)/2
		code, err := s.source.GetCode(ctx, address, mid)
		if err != nil {
			return 0, fmt.Errorf("code at %d: %w", mid, err)
		}
		if hasCode(code) {
			high = mid
		} else {
			low = mid + 1
		}
	}
	return low, nil
}

// forEachBatch drives the bounded pagination: cancellation check at the
// top of each iteration, batch body, then the progress callback.
func (s *Scanner) forEachBatch(ctx context.Context, from, to uint64, progress ProgressFunc, batch func(ctx context.Context, batchFrom, batchTo uint64) (int, error)) error {
	totalBatches := int((to-from)/s.batchSize) + 1
	matches := 0

	for i := 0; ; i++ {
		batchFrom := from + uint64(i)*s.batchSize
		if batchFrom > to {
			break
		}
		if s.cancelled.Load() {
			s.logger.Info().Int("batch", i+1).Int("total", totalBatches).Msg("scan cancelled")
			return ErrCancelled
		}

		batchTo := batchFrom + s.batchSize - 1
		if batchTo > to {
			batchTo = to
		}

		matched, err := batch(ctx, batchFrom, batchTo)
		matches += matched
		if err != nil {
			return err
		}
		observability.DefaultMetrics.ScanBatches.Inc()

		if progress != nil {
			progress(Progress{
				Batch:        i + 1,
				TotalBatches: totalBatches,
				FromBlock:    batchFrom,
				ToBlock:      batchTo,
				MatchesFound: matches,
			})
		}
	}
	return nil
}

// resolveRange fills in "latest" and validates the block range.
func (s *Scanner) resolveRange(ctx context.Context, from, to uint64) (uint64, uint64, error) {
	if to == 0 {
		latest, err := s.source.BlockNumber(ctx)
		if err != nil {
			return 0, 0, fmt.Errorf("latest block: %w", err)
		}
		to = latest
	}
	if from > to {
		return 0, 0, fmt.Errorf("from block %d after to block %d", from, to)
	}
	return from, to, nil
}

// decodeCreated decodes one TokenCreated log, stamping it with the
// block timestamp (cached per block).
func (s *Scanner) decodeCreated(ctx context.Context, log *evm.Log) (*domain.TokenCreated, error) {
	ts, err := s.blockTime(ctx, log)
	if err != nil {
		return nil, err
	}
	ev, err := s.decoder.DecodeLog(log, ts)
	if err != nil {
		return nil, err
	}
	created, ok := ev.(*domain.TokenCreated)
	if !ok {
		return nil, fmt.Errorf("expected TokenCreated, got %s", ev.Name())
	}
	return created, nil
}

// matchTrade decodes one fill log and checks it against the store.
func (s *Scanner) matchTrade(ctx context.Context, log *evm.Log) (*FoundTrade, error) {
	ts, err := s.blockTime(ctx, log)
	if err != nil {
		return nil, err
	}
	ev, err := s.decoder.DecodeLog(log, ts)
	if err != nil {
		return nil, err
	}

	var direction, token string
	switch e := ev.(type) {
	case *domain.TokensPurchased:
		direction, token = domain.TradeBuy, e.Token
	case *domain.TokensSold:
		direction, token = domain.TradeSell, e.Token
	default:
		return nil, fmt.Errorf("expected trade event, got %s", ev.Name())
	}

	tradeID := idhash.TradeID(ev.Meta().TxHash, direction, token)
	stored, err := s.trades.Exists(ctx, tradeID)
	if err != nil {
		return nil, fmt.Errorf("lookup trade %s: %w", tradeID, err)
	}

	return &FoundTrade{Event: ev, TradeID: tradeID, Token: token, Stored: stored}, nil
}

// blockTime resolves a log's block timestamp with a per-scan cache.
func (s *Scanner) blockTime(ctx context.Context, log *evm.Log) (time.Time, error) {
	number, err := evm.ParseQuantity(log.BlockNumber)
	if err != nil {
		return time.Time{}, fmt.Errorf("block number: %w", err)
	}

	s.mu.Lock()
	ts, ok := s.timestamps[number]
	s.mu.Unlock()
	if ok {
		return ts, nil
	}

	ts, err = s.source.BlockTimestamp(ctx, number)
	if err != nil {
		return time.Time{}, fmt.Errorf("block %d timestamp: %w", number, err)
	}

	s.mu.Lock()
	s.timestamps[number] = ts
	s.mu.Unlock()
	return ts, nil
}

// hasCode reports whether an eth_getCode result contains bytecode.
func hasCode(code string) bool {
	return code != "" && code != "0x" && code != "0x0"
}
