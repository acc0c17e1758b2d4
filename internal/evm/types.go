// Package evm provides minimal EVM chain plumbing: JSON-RPC clients,
// log types and an event-ABI codec for a fixed contract surface.
package evm

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
)

// Log is one contract event log as returned by eth_getLogs or carried
// in a webhook delivery.
type Log struct {
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	BlockNumber string   `json:"blockNumber"`
	TxHash      string   `json:"transactionHash"`
	LogIndex    string   `json:"logIndex"`
	Removed     bool     `json:"removed"`
}

// FilterQuery selects logs for eth_getLogs.
type FilterQuery struct {
	FromBlock uint64
	ToBlock   uint64
	Address   string
	Topics    []string // topic0 candidates; empty means any
}

// BlockHeader is the subset of eth_getBlockByNumber used for timestamps.
type BlockHeader struct {
	Number    string `json:"number"`
	Timestamp string `json:"timestamp"`
}

// ParseQuantity parses a 0x-prefixed hex quantity into a uint64.
func ParseQuantity(s string) (uint64, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return 0, fmt.Errorf("empty hex quantity")
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return 0, fmt.Errorf("invalid hex quantity %q", s)
	}
	if !v.IsUint64() {
		return 0, fmt.Errorf("hex quantity %q overflows uint64", s)
	}
	return v.Uint64(), nil
}

// FormatQuantity renders a uint64 as a 0x-prefixed hex quantity.
func FormatQuantity(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

// DecodeHex decodes a 0x-prefixed hex string into bytes.
func DecodeHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode hex: %w", err)
	}
	return b, nil
}

// EncodeHex renders bytes as a 0x-prefixed hex string.
func EncodeHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// ZeroAddress is the EVM zero address.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// SameAddress compares two hex addresses case-insensitively.
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
