package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PricePoint is one per-trade chart sample. Appended by the trade
// handler on a best-effort basis; a failed append never fails the
// trade itself.
type PricePoint struct {
	Token     string // lowercased token address
	Timestamp time.Time
	Price     decimal.Decimal // ETH per token
	EthVolume decimal.Decimal // wei moved by the trade
	Side      string          // TradeBuy | TradeSell
}
