// Package factory describes the token-launch factory contract surface:
// the fixed event vocabulary mirrored by the pipeline and the read
// functions consulted by the state reconciler.
package factory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
)

// Decode failures are expected per-log conditions, not pipeline errors.
var (
	// ErrForeignAddress marks a log emitted by a contract other than
	// the monitored factory. Filtered before decoding is attempted.
	ErrForeignAddress = errors.New("log from foreign contract address")

	// ErrUnknownEvent marks a factory log whose topic is not in the
	// fixed event set. New contract event types land here and are
	// skipped, keeping the pipeline forward-compatible.
	ErrUnknownEvent = errors.New("unknown event topic")
)

// Event definitions for the factory contract.
var (
	tokenCreatedDef = evm.NewEventDef(domain.EventTokenCreated,
		evm.Arg{Name: "token", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "creator", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "name", Type: evm.TypeString},
		evm.Arg{Name: "symbol", Type: evm.TypeString},
		evm.Arg{Name: "imageUrl", Type: evm.TypeString},
		evm.Arg{Name: "fundingGoal", Type: evm.TypeUint256},
		evm.Arg{Name: "burnManager", Type: evm.TypeAddress},
		evm.Arg{Name: "creatorTokens", Type: evm.TypeUint256},
		evm.Arg{Name: "ethSpent", Type: evm.TypeUint256},
	)

	tokensPurchasedDef = evm.NewEventDef(domain.EventTokensPurchased,
		evm.Arg{Name: "token", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "buyer", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "amount", Type: evm.TypeUint256},
		evm.Arg{Name: "eth", Type: evm.TypeUint256},
		evm.Arg{Name: "fee", Type: evm.TypeUint256},
	)

	tokensSoldDef = evm.NewEventDef(domain.EventTokensSold,
		evm.Arg{Name: "token", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "seller", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "amount", Type: evm.TypeUint256},
		evm.Arg{Name: "eth", Type: evm.TypeUint256},
		evm.Arg{Name: "fee", Type: evm.TypeUint256},
	)

	tradingHaltedDef = evm.NewEventDef(domain.EventTradingHalted,
		evm.Arg{Name: "token", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "collateral", Type: evm.TypeUint256},
	)

	tradingResumedDef = evm.NewEventDef(domain.EventTradingResumed,
		evm.Arg{Name: "token", Type: evm.TypeAddress, Indexed: true},
	)

	tradingAutoResumedDef = evm.NewEventDef(domain.EventTradingAutoResumed,
		evm.Arg{Name: "token", Type: evm.TypeAddress, Indexed: true},
		evm.Arg{Name: "resumeTime", Type: evm.TypeUint256},
	)
)

// EventNames lists the supported event set, in ABI declaration order.
func EventNames() []string {
	return []string{
		domain.EventTokenCreated,
		domain.EventTokensPurchased,
		domain.EventTokensSold,
		domain.EventTradingHalted,
		domain.EventTradingResumed,
		domain.EventTradingAutoResumed,
	}
}

// Decoder turns raw factory logs into typed domain events.
type Decoder struct {
	factoryAddress string
	byTopic        map[string]*evm.EventDef
}

// NewDecoder creates a decoder bound to one factory contract address.
func NewDecoder(factoryAddress string) *Decoder {
	defs := []*evm.EventDef{
		tokenCreatedDef,
		tokensPurchasedDef,
		tokensSoldDef,
		tradingHaltedDef,
		tradingResumedDef,
		tradingAutoResumedDef,
	}
	byTopic := make(map[string]*evm.EventDef, len(defs))
	for _, d := range defs {
		byTopic[strings.ToLower(d.Topic())] = d
	}
	return &Decoder{
		factoryAddress: domain.NormalizeAddress(factoryAddress),
		byTopic:        byTopic,
	}
}

// FactoryAddress returns the monitored contract address (lowercased).
func (d *Decoder) FactoryAddress() string {
	return d.factoryAddress
}

// Topics returns all topic0 hashes of the supported event set, for use
// in eth_getLogs filters.
func (d *Decoder) Topics() []string {
	topics := make([]string, 0, len(d.byTopic))
	for t := range d.byTopic {
		topics = append(topics, t)
	}
	return topics
}

// TopicFor returns the topic0 hash for an event name, or "".
func (d *Decoder) TopicFor(name string) string {
	for topic, def := range d.byTopic {
		if def.EventName == name {
			return topic
		}
	}
	return ""
}

// DecodeLog decodes one raw log into a typed event. Returns
// ErrForeignAddress for logs emitted by other contracts and
// ErrUnknownEvent for factory logs outside the fixed event set.
// blockTime stamps the event; it comes from the delivery envelope or a
// header lookup, since logs do not carry timestamps themselves.
func (d *Decoder) DecodeLog(log *evm.Log, blockTime time.Time) (domain.Event, error) {
	if !evm.SameAddress(log.Address, d.factoryAddress) {
		return nil, ErrForeignAddress
	}
	if len(log.Topics) == 0 {
		return nil, ErrUnknownEvent
	}

	def, ok := d.byTopic[strings.ToLower(log.Topics[0])]
	if !ok {
		return nil, ErrUnknownEvent
	}

	decoded, err := def.Decode(log)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", def.EventName, err)
	}

	meta, err := logMeta(log, blockTime)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", def.EventName, err)
	}

	switch def.EventName {
	case domain.EventTokenCreated:
		return &domain.TokenCreated{
			EventMeta:     meta,
			Token:         decoded.Address("token"),
			Creator:       decoded.Address("creator"),
			TokenName:     decoded.String("name"),
			Symbol:        decoded.String("symbol"),
			ImageURL:      decoded.String("imageUrl"),
			FundingGoal:   decimal.NewFromBigInt(decoded.BigInt("fundingGoal"), 0),
			BurnManager:   decoded.Address("burnManager"),
			CreatorTokens: decimal.NewFromBigInt(decoded.BigInt("creatorTokens"), 0),
			EthSpent:      decimal.NewFromBigInt(decoded.BigInt("ethSpent"), 0),
		}, nil

	case domain.EventTokensPurchased:
		return &domain.TokensPurchased{
			EventMeta: meta,
			Token:     decoded.Address("token"),
			Buyer:     decoded.Address("buyer"),
			Amount:    decimal.NewFromBigInt(decoded.BigInt("amount"), 0),
			Eth:       decimal.NewFromBigInt(decoded.BigInt("eth"), 0),
			Fee:       decimal.NewFromBigInt(decoded.BigInt("fee"), 0),
		}, nil

	case domain.EventTokensSold:
		return &domain.TokensSold{
			EventMeta: meta,
			Token:     decoded.Address("token"),
			Seller:    decoded.Address("seller"),
			Amount:    decimal.NewFromBigInt(decoded.BigInt("amount"), 0),
			Eth:       decimal.NewFromBigInt(decoded.BigInt("eth"), 0),
			Fee:       decimal.NewFromBigInt(decoded.BigInt("fee"), 0),
		}, nil

	case domain.EventTradingHalted:
		return &domain.TradingHalted{
			EventMeta:  meta,
			Token:      decoded.Address("token"),
			Collateral: decimal.NewFromBigInt(decoded.BigInt("collateral"), 0),
		}, nil

	case domain.EventTradingResumed:
		return &domain.TradingResumed{
			EventMeta: meta,
			Token:     decoded.Address("token"),
		}, nil

	case domain.EventTradingAutoResumed:
		resume := decoded.BigInt("resumeTime")
		return &domain.TradingAutoResumed{
			EventMeta:  meta,
			Token:      decoded.Address("token"),
			ResumeTime: time.Unix(resume.Int64(), 0).UTC(),
		}, nil
	}

	return nil, ErrUnknownEvent
}

// logMeta extracts provenance fields shared by every event.
func logMeta(log *evm.Log, blockTime time.Time) (domain.EventMeta, error) {
	meta := domain.EventMeta{
		TxHash:    strings.ToLower(log.TxHash),
		Timestamp: blockTime,
	}

	if log.BlockNumber != "" {
		n, err := evm.ParseQuantity(log.BlockNumber)
		if err != nil {
			return meta, fmt.Errorf("block number: %w", err)
		}
		meta.BlockNumber = n
	}
	if log.LogIndex != "" {
		i, err := evm.ParseQuantity(log.LogIndex)
		if err != nil {
			return meta, fmt.Errorf("log index: %w", err)
		}
		meta.LogIndex = i
	}
	return meta, nil
}
