package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
	"github.com/itripleg/motherhaven-sub003/internal/idhash"
	"github.com/itripleg/motherhaven-sub003/internal/observability"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// priceScale bounds the division precision when deriving a price from
// wei amounts.
const priceScale = 30

// ErrZeroTokenAmount marks a trade event whose token amount is zero.
// Such an event is a data error: it is rejected before any write.
var ErrZeroTokenAmount = errors.New("trade with zero token amount")

// Handlers applies decoded factory events to the stores. One instance
// serves both the live pipeline and the backfill repair path.
type Handlers struct {
	tokens      storage.TokenStore
	trades      storage.TradeStore
	users       storage.UserStore
	pricePoints storage.PricePointStore // optional, best-effort
	reconciler  *Reconciler
	logger      zerolog.Logger
}

// HandlersOptions contains the collaborators for creating Handlers.
type HandlersOptions struct {
	TokenStore      storage.TokenStore
	TradeStore      storage.TradeStore
	UserStore       storage.UserStore
	PricePointStore storage.PricePointStore
	Reconciler      *Reconciler
	Logger          zerolog.Logger
}

// NewHandlers creates Handlers with the provided stores.
func NewHandlers(opts HandlersOptions) *Handlers {
	return &Handlers{
		tokens:      opts.TokenStore,
		trades:      opts.TradeStore,
		users:       opts.UserStore,
		pricePoints: opts.PricePointStore,
		reconciler:  opts.Reconciler,
		logger:      opts.Logger.With().Str("component", "handlers").Logger(),
	}
}

// HandleTokenCreated mirrors a token launch: merge-upserts the token,
// records the launch under the creator's user document, and synthesizes
// the creation trade when the creator bought tokens in the same
// transaction. The synthesized trade carries the standard trade ID, so
// replaying the event never double-inserts it.
func (h *Handlers) HandleTokenCreated(ctx context.Context, ev *domain.TokenCreated) error {
	token := &domain.Token{
		Address:        domain.NormalizeAddress(ev.Token),
		Name:           ev.TokenName,
		Symbol:         ev.Symbol,
		ImageURL:       ev.ImageURL,
		Creator:        domain.NormalizeAddress(ev.Creator),
		State:          domain.StateTrading,
		FundingGoal:    ev.FundingGoal,
		CreationBlock:  ev.BlockNumber,
		CreationTxHash: ev.TxHash,
		CreatedAt:      ev.Timestamp,
	}
	if bm := domain.NormalizeAddress(ev.BurnManager); bm != "" && bm != evm.ZeroAddress {
		token.BurnManager = &bm
	}

	if err := h.tokens.Upsert(ctx, token); err != nil {
		return fmt.Errorf("upsert token %s: %w", token.Address, err)
	}
	observability.DefaultMetrics.TokensCreated.Inc()

	if err := h.users.RecordCreatedToken(ctx, token.Creator, token.Address, ev.Timestamp); err != nil {
		return fmt.Errorf("record creator %s: %w", token.Creator, err)
	}

	// The creator's launch allocation is the token's first trade and
	// first unique holder.
	if ev.CreatorTokens.IsPositive() && ev.EthSpent.IsPositive() {
		if err := h.applyTrade(ctx, &tradeInput{
			direction:   domain.TradeBuy,
			token:       token.Address,
			trader:      token.Creator,
			tokenAmount: ev.CreatorTokens,
			ethAmount:   ev.EthSpent,
			fee:         decimal.Zero,
			meta:        ev.EventMeta,
			reconcile:   false,
		}); err != nil {
			return fmt.Errorf("creation trade for %s: %w", token.Address, err)
		}
	}

	h.logger.Info().
		Str("token", token.Address).
		Str("symbol", token.Symbol).
		Str("creator", token.Creator).
		Uint64("block", ev.BlockNumber).
		Msg("token created")
	return nil
}

// HandleTokensPurchased applies a buy fill.
func (h *Handlers) HandleTokensPurchased(ctx context.Context, ev *domain.TokensPurchased) error {
	return h.applyTrade(ctx, &tradeInput{
		direction:   domain.TradeBuy,
		token:       domain.NormalizeAddress(ev.Token),
		trader:      domain.NormalizeAddress(ev.Buyer),
		tokenAmount: ev.Amount,
		ethAmount:   ev.Eth,
		fee:         ev.Fee,
		meta:        ev.EventMeta,
		reconcile:   true,
	})
}

// HandleTokensSold applies a sell fill.
func (h *Handlers) HandleTokensSold(ctx context.Context, ev *domain.TokensSold) error {
	return h.applyTrade(ctx, &tradeInput{
		direction:   domain.TradeSell,
		token:       domain.NormalizeAddress(ev.Token),
		trader:      domain.NormalizeAddress(ev.Seller),
		tokenAmount: ev.Amount,
		ethAmount:   ev.Eth,
		fee:         ev.Fee,
		meta:        ev.EventMeta,
		reconcile:   true,
	})
}

// tradeInput is the shared buy/sell handler input.
type tradeInput struct {
	direction   string
	token       string
	trader      string
	tokenAmount decimal.Decimal // wei
	ethAmount   decimal.Decimal // wei
	fee         decimal.Decimal // wei
	meta        domain.EventMeta
	reconcile   bool
}

// applyTrade runs the shared trade sequence: derive price, deduplicate,
// persist the trade, reconcile, update token aggregates, append the
// chart sample.
func (h *Handlers) applyTrade(ctx context.Context, in *tradeInput) error {
	if in.tokenAmount.IsZero() {
		observability.DefaultMetrics.TradesRejected.Inc()
		return fmt.Errorf("%s %s in tx %s: %w", in.direction, in.token, in.meta.TxHash, ErrZeroTokenAmount)
	}
	// Both amounts are wei, so the ratio is ETH per token directly.
	price := in.ethAmount.DivRound(in.tokenAmount, priceScale)

	tradeID := idhash.TradeID(in.meta.TxHash, in.direction, in.token)
	exists, err := h.trades.Exists(ctx, tradeID)
	if err != nil {
		return fmt.Errorf("check trade %s: %w", tradeID, err)
	}
	if exists {
		observability.DefaultMetrics.TradesDuplicate.Inc()
		h.logger.Debug().Str("trade_id", tradeID).Msg("trade already stored, skipping")
		return nil
	}

	trade := &domain.Trade{
		TradeID:     tradeID,
		Token:       in.token,
		Trader:      in.trader,
		Type:        in.direction,
		TokenAmount: in.tokenAmount,
		EthAmount:   in.ethAmount,
		Fee:         in.fee,
		Price:       price,
		BlockNumber: in.meta.BlockNumber,
		TxHash:      in.meta.TxHash,
		Timestamp:   in.meta.Timestamp,
	}
	if err := h.trades.Insert(ctx, trade); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Lost a race with a concurrent delivery of the same event.
			observability.DefaultMetrics.TradesDuplicate.Inc()
			return nil
		}
		return fmt.Errorf("insert trade %s: %w", tradeID, err)
	}

	var reconciled *storage.ReconciledState
	if in.reconcile && h.reconciler != nil {
		reconciled = h.reconciler.Read(ctx, in.token)
	}

	if err := h.tokens.ApplyTrade(ctx, &storage.TokenTradeUpdate{
		Token:      in.token,
		Trader:     in.trader,
		Direction:  in.direction,
		EthAmount:  in.ethAmount,
		Fee:        in.fee,
		Price:      price,
		Timestamp:  in.meta.Timestamp,
		Reconciled: reconciled,
	}); err != nil {
		return fmt.Errorf("apply trade %s: %w", tradeID, err)
	}

	h.appendPricePoint(ctx, trade, reconciled)
	observability.RecordTradeIngested(in.direction)

	h.logger.Info().
		Str("trade_id", tradeID).
		Str("direction", in.direction).
		Str("token", in.token).
		Str("price", price.String()).
		Bool("reconciled", reconciled != nil).
		Msg("trade ingested")
	return nil
}

// appendPricePoint feeds the chart sample store. Best-effort: a failure
// is logged and never fails the trade.
func (h *Handlers) appendPricePoint(ctx context.Context, trade *domain.Trade, reconciled *storage.ReconciledState) {
	if h.pricePoints == nil {
		return
	}

	price := trade.Price
	if reconciled != nil {
		price = reconciled.LastPrice
	}
	point := &domain.PricePoint{
		Token:     trade.Token,
		Timestamp: trade.Timestamp,
		Price:     price,
		EthVolume: trade.EthAmount,
		Side:      trade.Type,
	}
	if err := h.pricePoints.InsertBulk(ctx, []*domain.PricePoint{point}); err != nil {
		h.logger.Warn().Err(err).Str("token", trade.Token).Msg("price point append failed")
	}
}

// HandleTradingHalted transitions the token to GOAL_REACHED, freezing
// the collateral carried in the event.
func (h *Handlers) HandleTradingHalted(ctx context.Context, ev *domain.TradingHalted) error {
	token := domain.NormalizeAddress(ev.Token)
	if err := h.tokens.TransitionState(ctx, &storage.StateTransition{
		Token: token,
		State: domain.StateGoalReached,
		Block: ev.BlockNumber,
		At:    ev.Timestamp,
	}); err != nil {
		return fmt.Errorf("halt %s: %w", token, err)
	}
	observability.RecordStateTransition(string(domain.StateGoalReached))

	h.logger.Info().
		Str("token", token).
		Str("collateral", ev.Collateral.String()).
		Uint64("block", ev.BlockNumber).
		Msg("trading halted, goal reached")
	return nil
}

// HandleTradingResumed transitions the token to RESUMED (manual).
func (h *Handlers) HandleTradingResumed(ctx context.Context, ev *domain.TradingResumed) error {
	token := domain.NormalizeAddress(ev.Token)
	if err := h.tokens.TransitionState(ctx, &storage.StateTransition{
		Token: token,
		State: domain.StateResumed,
		Block: ev.BlockNumber,
		At:    ev.Timestamp,
	}); err != nil {
		return fmt.Errorf("resume %s: %w", token, err)
	}
	observability.RecordStateTransition(string(domain.StateResumed))

	h.logger.Info().Str("token", token).Uint64("block", ev.BlockNumber).Msg("trading resumed")
	return nil
}

// HandleTradingAutoResumed transitions the token to RESUMED using the
// resume timestamp carried in the event payload.
func (h *Handlers) HandleTradingAutoResumed(ctx context.Context, ev *domain.TradingAutoResumed) error {
	token := domain.NormalizeAddress(ev.Token)
	resumeTime := ev.ResumeTime
	if err := h.tokens.TransitionState(ctx, &storage.StateTransition{
		Token:      token,
		State:      domain.StateResumed,
		Block:      ev.BlockNumber,
		At:         ev.Timestamp,
		ResumeTime: &resumeTime,
	}); err != nil {
		return fmt.Errorf("auto resume %s: %w", token, err)
	}
	observability.RecordStateTransition(string(domain.StateResumed))

	h.logger.Info().
		Str("token", token).
		Time("resume_time", resumeTime).
		Uint64("block", ev.BlockNumber).
		Msg("trading auto-resumed")
	return nil
}
