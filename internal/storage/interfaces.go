package storage

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
)

// ReconciledState carries authoritative post-trade values read from the
// contract. When present, these win over delta arithmetic.
type ReconciledState struct {
	Collateral    decimal.Decimal // wei
	VirtualSupply decimal.Decimal // wei
	LastPrice     decimal.Decimal // ETH per token
}

// TokenTradeUpdate describes one trade's effect on a token's aggregate
// statistics. Applied atomically by the store: holder tracking, trade
// count, volume, last-trade snapshot and collateral in one step.
type TokenTradeUpdate struct {
	Token     string // lowercased token address
	Trader    string // lowercased trader address
	Direction string // domain.TradeBuy | domain.TradeSell
	EthAmount decimal.Decimal // wei
	Fee       decimal.Decimal // wei
	Price     decimal.Decimal // ETH per token, derived from the event
	Timestamp time.Time

	// Reconciled holds authoritative contract state when the reconciler
	// read succeeded. When nil the store falls back to delta arithmetic:
	// collateral moves by +EthAmount (buy) or -EthAmount (sell) and
	// Price becomes the last price.
	Reconciled *ReconciledState
}

// StateTransition moves a token's lifecycle state forward and records
// the transition's own audit fields.
type StateTransition struct {
	Token string
	State domain.TokenState
	Block uint64
	At    time.Time

	// ResumeTime is the payload timestamp of TradingAutoResumed.
	ResumeTime *time.Time
}

// TokenStore persists mirrored tokens. All writes are merges: a token
// is created on first upsert and never deleted.
type TokenStore interface {
	// Upsert merges the token document by address. Replaying the same
	// creation event converges to the same state.
	Upsert(ctx context.Context, t *domain.Token) error

	// GetByAddress retrieves a token. Returns ErrNotFound if absent.
	GetByAddress(ctx context.Context, address string) (*domain.Token, error)

	// ApplyTrade updates aggregate statistics for one trade in a single
	// atomic step. Returns ErrNotFound if the token is absent.
	ApplyTrade(ctx context.Context, upd *TokenTradeUpdate) error

	// TransitionState moves the lifecycle state forward. Transitions
	// that would move the state backward are ignored, so replays and
	// out-of-order deliveries never regress a token to trading.
	TransitionState(ctx context.Context, tr *StateTransition) error

	// ListAddresses returns all known token addresses.
	ListAddresses(ctx context.Context) ([]string, error)
}

// TradeStore persists trade fills. Append-only: trades are created
// exactly once and never mutated or deleted.
type TradeStore interface {
	// Insert adds a trade. Returns ErrDuplicateKey if the trade ID
	// already exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// Exists reports whether a trade with the ID is already stored.
	Exists(ctx context.Context, tradeID string) (bool, error)

	// ExistsByTxHash reports whether any trade from the transaction is
	// already stored.
	ExistsByTxHash(ctx context.Context, txHash string) (bool, error)

	// GetByToken retrieves all trades for a token, ordered by block
	// number then log order.
	GetByToken(ctx context.Context, token string) ([]*domain.Trade, error)
}

// UserStore persists per-wallet activity records.
type UserStore interface {
	// RecordCreatedToken merges a token launch under the creator's
	// address, creating the user document if needed.
	RecordCreatedToken(ctx context.Context, user, token string, at time.Time) error

	// GetByAddress retrieves a user. Returns ErrNotFound if absent.
	GetByAddress(ctx context.Context, address string) (*domain.User, error)
}

// WatchlistStore persists user watchlist entries.
type WatchlistStore interface {
	// Create stores a new entry and assigns its ID.
	Create(ctx context.Context, e *domain.WatchlistEntry) error

	// Update replaces a mutable entry's fields. Returns ErrNotFound if
	// the entry does not exist.
	Update(ctx context.Context, e *domain.WatchlistEntry) error

	// Delete removes an entry. Returns ErrNotFound if absent.
	Delete(ctx context.Context, id string) error

	// ListByUser retrieves all entries owned by a user, newest first.
	ListByUser(ctx context.Context, user string) ([]*domain.WatchlistEntry, error)
}

// PricePointStore persists per-trade chart samples.
type PricePointStore interface {
	// InsertBulk appends price points.
	InsertBulk(ctx context.Context, points []*domain.PricePoint) error

	// GetByTimeRange retrieves points for a token within [from, to],
	// ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, token string, from, to time.Time) ([]*domain.PricePoint, error)
}
