package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu      sync.RWMutex
	data    map[string]*domain.Token            // keyed by address
	holders map[string]map[string]struct{}      // token -> trader set
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		data:    make(map[string]*domain.Token),
		holders: make(map[string]map[string]struct{}),
	}
}

// Upsert merges the token document by address.
func (s *TokenStore) Upsert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Address == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	addr := domain.NormalizeAddress(t.Address)
	existing, ok := s.data[addr]
	if !ok {
		cp := *t
		cp.Address = addr
		s.data[addr] = &cp
		return nil
	}

	mergeToken(existing, t)
	return nil
}

// mergeToken applies merge-on-conflict semantics:
//   - descriptive fields overwrite when the incoming value is set
//   - lifecycle state only moves forward
//   - aggregates keep the larger value, so a repair write never
//     shrinks statistics accumulated by the live pipeline
//   - provenance is filled only when absent
func mergeToken(dst, src *domain.Token) {
	if src.Name != "" {
		dst.Name = src.Name
	}
	if src.Symbol != "" {
		dst.Symbol = src.Symbol
	}
	if src.ImageURL != "" {
		dst.ImageURL = src.ImageURL
	}
	if src.Creator != "" {
		dst.Creator = domain.NormalizeAddress(src.Creator)
	}
	if src.BurnManager != nil {
		dst.BurnManager = src.BurnManager
	}

	if src.State != "" && dst.State.CanTransitionTo(src.State) {
		dst.State = src.State
	}
	if !src.FundingGoal.IsZero() {
		dst.FundingGoal = src.FundingGoal
	}
	if !src.Collateral.IsZero() && dst.Collateral.IsZero() {
		dst.Collateral = src.Collateral
	}
	if !src.VirtualSupply.IsZero() && dst.VirtualSupply.IsZero() {
		dst.VirtualSupply = src.VirtualSupply
	}
	if !src.TotalSupply.IsZero() && dst.TotalSupply.IsZero() {
		dst.TotalSupply = src.TotalSupply
	}
	if !src.LastPrice.IsZero() && dst.LastPrice.IsZero() {
		dst.LastPrice = src.LastPrice
	}

	if src.VolumeETH.GreaterThan(dst.VolumeETH) {
		dst.VolumeETH = src.VolumeETH
	}
	if src.TradeCount > dst.TradeCount {
		dst.TradeCount = src.TradeCount
	}
	if src.UniqueHolders > dst.UniqueHolders {
		dst.UniqueHolders = src.UniqueHolders
	}

	if dst.CreationBlock == 0 {
		dst.CreationBlock = src.CreationBlock
	}
	if dst.CreationTxHash == "" {
		dst.CreationTxHash = src.CreationTxHash
	}
	if dst.CreatedAt.IsZero() {
		dst.CreatedAt = src.CreatedAt
	}
}

// GetByAddress retrieves a token. Returns ErrNotFound if absent.
func (s *TokenStore) GetByAddress(_ context.Context, address string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.data[domain.NormalizeAddress(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *t
	return &cp, nil
}

// ApplyTrade updates aggregate statistics for one trade atomically.
func (s *TokenStore) ApplyTrade(_ context.Context, upd *storage.TokenTradeUpdate) error {
	if upd == nil || upd.Token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	addr := domain.NormalizeAddress(upd.Token)
	t, ok := s.data[addr]
	if !ok {
		return storage.ErrNotFound
	}

	holders := s.holders[addr]
	if holders == nil {
		holders = make(map[string]struct{})
		s.holders[addr] = holders
	}
	trader := domain.NormalizeAddress(upd.Trader)
	if _, seen := holders[trader]; !seen {
		holders[trader] = struct{}{}
		t.UniqueHolders++
	}

	t.TradeCount++
	t.VolumeETH = t.VolumeETH.Add(upd.EthAmount)
	t.LastTradeType = upd.Direction
	t.LastTradeFee = upd.Fee
	t.LastTradeAt = upd.Timestamp

	if upd.Reconciled != nil {
		t.Collateral = upd.Reconciled.Collateral
		t.VirtualSupply = upd.Reconciled.VirtualSupply
		t.LastPrice = upd.Reconciled.LastPrice
		return nil
	}

	// Fallback arithmetic from the trade amounts.
	if upd.Direction == domain.TradeSell {
		t.Collateral = t.Collateral.Sub(upd.EthAmount)
	} else {
		t.Collateral = t.Collateral.Add(upd.EthAmount)
	}
	t.LastPrice = upd.Price
	return nil
}

// TransitionState moves the lifecycle state forward; backward moves are
// ignored.
func (s *TokenStore) TransitionState(_ context.Context, tr *storage.StateTransition) error {
	if tr == nil || tr.Token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.data[domain.NormalizeAddress(tr.Token)]
	if !ok {
		return storage.ErrNotFound
	}

	if !t.State.CanTransitionTo(tr.State) {
		return nil
	}
	t.State = tr.State

	at := tr.At
	block := tr.Block
	switch tr.State {
	case domain.StateGoalReached, domain.StateHalted:
		t.HaltedAt = &at
		t.HaltBlock = &block
	case domain.StateResumed:
		if tr.ResumeTime != nil {
			t.AutoResumedAt = tr.ResumeTime
			t.AutoResumeBlock = &block
		} else {
			t.ResumedAt = &at
			t.ResumeBlock = &block
		}
	}
	return nil
}

// ListAddresses returns all known token addresses, sorted.
func (s *TokenStore) ListAddresses(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addrs := make([]string, 0, len(s.data))
	for a := range s.data {
		addrs = append(addrs, a)
	}
	sort.Strings(addrs)
	return addrs, nil
}

var _ storage.TokenStore = (*TokenStore)(nil)
