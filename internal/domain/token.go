package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// TokenState is the lifecycle state of a launched token.
// States only move forward; no handler ever returns a token to Trading.
type TokenState string

const (
	// StateTrading is the initial state set on TokenCreated.
	StateTrading TokenState = "trading"
	// StateHalted is set when trading is stopped without the goal being met.
	StateHalted TokenState = "halted"
	// StateGoalReached is set on TradingHalted once the funding goal is met.
	// Collateral is frozen at the halt value.
	StateGoalReached TokenState = "goal_reached"
	// StateResumed is set on TradingResumed (manual) or TradingAutoResumed.
	StateResumed TokenState = "resumed"
)

// stateRank orders lifecycle states for the forward-only transition guard.
var stateRank = map[TokenState]int{
	StateTrading:     1,
	StateHalted:      2,
	StateGoalReached: 2,
	StateResumed:     3,
}

// Rank returns the monotonic position of the state in the lifecycle.
// Unknown states rank 0 and never win a transition.
func (s TokenState) Rank() int {
	return stateRank[s]
}

// CanTransitionTo reports whether moving from s to next is a forward move.
// Equal-rank moves are allowed (halted <-> goal_reached carry the same rank)
// so replays of the same event converge.
func (s TokenState) CanTransitionTo(next TokenState) bool {
	return next.Rank() >= s.Rank()
}

// Token represents one launched asset mirrored from the factory contract.
// Keyed by lowercased contract address. Created on the first TokenCreated
// observation and merged on every subsequent event; never deleted.
type Token struct {
	Address     string // lowercased contract address, canonical key
	Name        string
	Symbol      string
	ImageURL    string
	Creator     string  // lowercased creator address
	BurnManager *string // optional burn-manager contract address

	State       TokenState
	FundingGoal decimal.Decimal // wei
	Collateral  decimal.Decimal // wei, authoritative or delta-derived
	VirtualSupply decimal.Decimal // wei
	TotalSupply decimal.Decimal // wei
	LastPrice   decimal.Decimal // ETH per token

	// Aggregate statistics, maintained by the trade handler.
	VolumeETH     decimal.Decimal // wei, cumulative
	TradeCount    int64
	UniqueHolders int64

	// Last trade snapshot.
	LastTradeType string // "buy" | "sell"
	LastTradeFee  decimal.Decimal
	LastTradeAt   time.Time

	// Lifecycle audit fields, each written by its own transition.
	HaltedAt      *time.Time
	HaltBlock     *uint64
	ResumedAt     *time.Time
	ResumeBlock   *uint64
	AutoResumedAt *time.Time
	AutoResumeBlock *uint64

	// Provenance.
	CreationBlock  uint64
	CreationTxHash string
	CreatedAt      time.Time
}

// NormalizeAddress lowercases a hex address for use as a store key.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
