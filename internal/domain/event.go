package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Event is the typed union of factory contract events. The decoder
// produces exactly one variant per recognized event name; the router
// consumes the union exhaustively with a type switch.
type Event interface {
	// Name returns the on-chain event name.
	Name() string
	// Meta returns the shared log provenance fields.
	Meta() EventMeta
}

// EventMeta carries provenance shared by every decoded event.
type EventMeta struct {
	BlockNumber uint64
	TxHash      string
	LogIndex    uint64
	Timestamp   time.Time
}

// Event name constants, matching the contract ABI.
const (
	EventTokenCreated       = "TokenCreated"
	EventTokensPurchased    = "TokensPurchased"
	EventTokensSold         = "TokensSold"
	EventTradingHalted      = "TradingHalted"
	EventTradingResumed     = "TradingResumed"
	EventTradingAutoResumed = "TradingAutoResumed"
)

// TokenCreated signals a new token launch.
type TokenCreated struct {
	EventMeta

	Token         string // token contract address
	Creator       string
	TokenName     string
	Symbol        string
	ImageURL      string
	FundingGoal   decimal.Decimal // wei
	BurnManager   string          // zero address when unset
	CreatorTokens decimal.Decimal // wei, creator allocation bought at launch
	EthSpent      decimal.Decimal // wei spent by the creator at launch
}

func (e *TokenCreated) Name() string    { return EventTokenCreated }
func (e *TokenCreated) Meta() EventMeta { return e.EventMeta }

// TokensPurchased signals a buy fill.
type TokensPurchased struct {
	EventMeta

	Token  string
	Buyer  string
	Amount decimal.Decimal // wei, tokens received
	Eth    decimal.Decimal // wei, ETH paid
	Fee    decimal.Decimal // wei
}

func (e *TokensPurchased) Name() string    { return EventTokensPurchased }
func (e *TokensPurchased) Meta() EventMeta { return e.EventMeta }

// TokensSold signals a sell fill.
type TokensSold struct {
	EventMeta

	Token  string
	Seller string
	Amount decimal.Decimal // wei, tokens sold
	Eth    decimal.Decimal // wei, ETH received
	Fee    decimal.Decimal // wei
}

func (e *TokensSold) Name() string    { return EventTokensSold }
func (e *TokensSold) Meta() EventMeta { return e.EventMeta }

// TradingHalted signals the funding goal was met and trading stopped.
type TradingHalted struct {
	EventMeta

	Token      string
	Collateral decimal.Decimal // wei frozen at the halt
}

func (e *TradingHalted) Name() string    { return EventTradingHalted }
func (e *TradingHalted) Meta() EventMeta { return e.EventMeta }

// TradingResumed signals a manual trading resume.
type TradingResumed struct {
	EventMeta

	Token string
}

func (e *TradingResumed) Name() string    { return EventTradingResumed }
func (e *TradingResumed) Meta() EventMeta { return e.EventMeta }

// TradingAutoResumed signals a time-based trading resume. ResumeTime is
// carried in the event payload as epoch seconds.
type TradingAutoResumed struct {
	EventMeta

	Token      string
	ResumeTime time.Time
}

func (e *TradingAutoResumed) Name() string    { return EventTradingAutoResumed }
func (e *TradingAutoResumed) Meta() EventMeta { return e.EventMeta }
