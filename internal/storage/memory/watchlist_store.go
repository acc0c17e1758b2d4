package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// WatchlistStore is an in-memory implementation of storage.WatchlistStore.
type WatchlistStore struct {
	mu   sync.RWMutex
	data map[string]*domain.WatchlistEntry // keyed by entry ID
}

// NewWatchlistStore creates a new in-memory watchlist store.
func NewWatchlistStore() *WatchlistStore {
	return &WatchlistStore{
		data: make(map[string]*domain.WatchlistEntry),
	}
}

// Create stores a new entry and assigns its ID.
func (s *WatchlistStore) Create(_ context.Context, e *domain.WatchlistEntry) error {
	if e == nil || e.User == "" || e.Token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e.ID = uuid.NewString()
	e.User = domain.NormalizeAddress(e.User)
	e.Token = domain.NormalizeAddress(e.Token)

	cp := *e
	s.data[e.ID] = &cp
	return nil
}

// Update replaces a mutable entry's fields.
func (s *WatchlistStore) Update(_ context.Context, e *domain.WatchlistEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.data[e.ID]
	if !ok {
		return storage.ErrNotFound
	}

	existing.Label = e.Label
	existing.Category = e.Category
	existing.Alert = e.Alert
	existing.Notes = e.Notes
	existing.UpdatedAt = e.UpdatedAt
	return nil
}

// Delete removes an entry.
func (s *WatchlistStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, id)
	return nil
}

// ListByUser retrieves all entries owned by a user.
func (s *WatchlistStore) ListByUser(_ context.Context, user string) ([]*domain.WatchlistEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	addr := domain.NormalizeAddress(user)
	var result []*domain.WatchlistEntry
	for _, e := range s.data {
		if e.User == addr {
			cp := *e
			result = append(result, &cp)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return result, nil
}

var _ storage.WatchlistStore = (*WatchlistStore)(nil)
