// Package idhash builds deterministic document IDs so that replayed
// events converge on the same records instead of duplicating them.
package idhash

import (
	"fmt"
	"strings"
)

// TradeID computes the deterministic trade document ID.
// Formula: {txHash}-{direction}-{tokenAddress}, all lowercased.
// The inputs are immutable transaction identifiers, so re-processing
// the same on-chain event always yields the same ID.
func TradeID(txHash, direction, token string) string {
	return fmt.Sprintf("%s-%s-%s",
		strings.ToLower(txHash),
		strings.ToLower(direction),
		strings.ToLower(token),
	)
}
