package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// TradeStore is an in-memory implementation of storage.TradeStore.
type TradeStore struct {
	mu   sync.RWMutex
	data map[string]*domain.Trade // keyed by trade ID
}

// NewTradeStore creates a new in-memory trade store.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		data: make(map[string]*domain.Trade),
	}
}

// Insert adds a trade. Returns ErrDuplicateKey if the trade ID exists.
func (s *TradeStore) Insert(_ context.Context, t *domain.Trade) error {
	if t == nil || t.TradeID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[t.TradeID]; exists {
		return storage.ErrDuplicateKey
	}

	cp := *t
	s.data[t.TradeID] = &cp
	return nil
}

// Exists reports whether a trade with the ID is already stored.
func (s *TradeStore) Exists(_ context.Context, tradeID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.data[tradeID]
	return ok, nil
}

// ExistsByTxHash reports whether any trade from the transaction is
// already stored.
func (s *TradeStore) ExistsByTxHash(_ context.Context, txHash string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(txHash)
	for _, t := range s.data {
		if strings.ToLower(t.TxHash) == needle {
			return true, nil
		}
	}
	return false, nil
}

// GetByToken retrieves all trades for a token, ordered by block number
// then trade ID.
func (s *TradeStore) GetByToken(_ context.Context, token string) ([]*domain.Trade, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr := domain.NormalizeAddress(token)
	var result []*domain.Trade
	for _, t := range s.data {
		if t.Token == addr {
			cp := *t
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].BlockNumber != result[j].BlockNumber {
			return result[i].BlockNumber < result[j].BlockNumber
		}
		return result[i].TradeID < result[j].TradeID
	})

	return result, nil
}

var _ storage.TradeStore = (*TradeStore)(nil)
