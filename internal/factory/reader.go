package factory

import (
	"context"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/evm"
)

// etherDecimals shifts wei quantities to ether units.
const etherDecimals = 18

// ContractCaller performs read-only contract calls.
type ContractCaller interface {
	CallContract(ctx context.Context, to, data string) (string, error)
}

// Reader exposes the factory contract's read functions.
type Reader struct {
	caller  ContractCaller
	factory string
}

// NewReader creates a Reader bound to one factory contract.
func NewReader(caller ContractCaller, factoryAddress string) *Reader {
	return &Reader{
		caller:  caller,
		factory: domain.NormalizeAddress(factoryAddress),
	}
}

// Collateral reads the token's collateral balance in wei.
func (r *Reader) Collateral(ctx context.Context, token string) (decimal.Decimal, error) {
	return r.readUint(ctx, "collateral(address)", token)
}

// VirtualSupply reads the token's virtual supply in wei.
func (r *Reader) VirtualSupply(ctx context.Context, token string) (decimal.Decimal, error) {
	return r.readUint(ctx, "virtualSupply(address)", token)
}

// LastPrice reads the token's last trade price, converted from the
// contract's wei representation to ETH per token.
func (r *Reader) LastPrice(ctx context.Context, token string) (decimal.Decimal, error) {
	wei, err := r.readUint(ctx, "lastPrice(address)", token)
	if err != nil {
		return decimal.Zero, err
	}
	return wei.Shift(-etherDecimals), nil
}

// Contract state enum values of getTokenState(address).
const (
	contractStateNotCreated  = 0
	contractStateTrading     = 1
	contractStateGoalReached = 2
	contractStateHalted      = 3
	contractStateResumed     = 4
)

// TokenState reads the token's lifecycle state from the contract.
func (r *Reader) TokenState(ctx context.Context, token string) (domain.TokenState, error) {
	v, err := r.readUint(ctx, "getTokenState(address)", token)
	if err != nil {
		return "", err
	}

	switch v.IntPart() {
	case contractStateTrading:
		return domain.StateTrading, nil
	case contractStateGoalReached:
		return domain.StateGoalReached, nil
	case contractStateHalted:
		return domain.StateHalted, nil
	case contractStateResumed:
		return domain.StateResumed, nil
	case contractStateNotCreated:
		return "", fmt.Errorf("token %s not created on contract", token)
	default:
		return "", fmt.Errorf("unknown contract state %s for token %s", v, token)
	}
}

// readUint calls a single-address-argument view function returning one
// uint word.
func (r *Reader) readUint(ctx context.Context, signature, token string) (decimal.Decimal, error) {
	arg, err := evm.PadAddress(token)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", signature, err)
	}

	result, err := r.caller.CallContract(ctx, r.factory, evm.CallData(signature, arg))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", signature, err)
	}

	raw, err := evm.DecodeHex(result)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: result: %w", signature, err)
	}
	if len(raw) == 0 {
		return decimal.Zero, fmt.Errorf("%s: empty result", signature)
	}

	return decimal.NewFromBigInt(new(big.Int).SetBytes(raw), 0), nil
}
