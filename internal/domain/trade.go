package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents one buy or sell fill mirrored from a factory event.
// Keyed by the deterministic composite trade ID (tx hash + direction +
// token address) so replays of the same on-chain event are no-ops.
// Trades are created exactly once and never mutated or deleted.
type Trade struct {
	TradeID string // deterministic composite key

	Token  string // lowercased token contract address
	Trader string // lowercased trader address
	Type   string // TradeBuy | TradeSell

	TokenAmount decimal.Decimal // wei
	EthAmount   decimal.Decimal // wei
	Fee         decimal.Decimal // wei
	Price       decimal.Decimal // ETH per token, EthAmount / TokenAmount

	BlockNumber uint64
	TxHash      string
	Timestamp   time.Time
}

// Trade direction constants.
const (
	TradeBuy  = "buy"
	TradeSell = "sell"
)
