package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// PricePointStore is an in-memory implementation of storage.PricePointStore.
type PricePointStore struct {
	mu   sync.RWMutex
	data []*domain.PricePoint
}

// NewPricePointStore creates a new in-memory price point store.
func NewPricePointStore() *PricePointStore {
	return &PricePointStore{}
}

// InsertBulk appends price points.
func (s *PricePointStore) InsertBulk(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		if p == nil || p.Token == "" {
			return storage.ErrInvalidInput
		}
		cp := *p
		cp.Token = domain.NormalizeAddress(cp.Token)
		s.data = append(s.data, &cp)
	}
	return nil
}

// GetByTimeRange retrieves points for a token within [from, to].
func (s *PricePointStore) GetByTimeRange(_ context.Context, token string, from, to time.Time) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr := domain.NormalizeAddress(token)
	var result []*domain.PricePoint
	for _, p := range s.data {
		if p.Token != addr {
			continue
		}
		if p.Timestamp.Before(from) || p.Timestamp.After(to) {
			continue
		}
		cp := *p
		result = append(result, &cp)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})

	return result, nil
}

var _ storage.PricePointStore = (*PricePointStore)(nil)
