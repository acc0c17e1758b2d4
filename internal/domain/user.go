package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User records platform activity per wallet address.
// Keyed by lowercased address; merged on each creation event.
type User struct {
	Address       string   // lowercased wallet address
	CreatedTokens []string // token addresses launched by this user
	UpdatedAt     time.Time
}

// AlertDirection is the comparison direction of a watchlist price alert.
type AlertDirection string

const (
	AlertAbove AlertDirection = "above"
	AlertBelow AlertDirection = "below"
)

// PriceAlert is an optional per-entry price trigger.
type PriceAlert struct {
	Direction AlertDirection
	Target    decimal.Decimal // ETH per token
}

// WatchlistEntry tracks one token for one user. Created, edited and
// deleted directly by the owning user; uniqueness of (user, token) is
// desirable but not enforced.
type WatchlistEntry struct {
	ID        string // assigned on create
	User      string // lowercased owner address
	Token     string // lowercased token address
	Label     string
	Category  *string
	Alert     *PriceAlert
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}
