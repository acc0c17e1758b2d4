package memory

import (
	"context"
	"sync"
	"time"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// UserStore is an in-memory implementation of storage.UserStore.
type UserStore struct {
	mu   sync.RWMutex
	data map[string]*domain.User // keyed by address
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *UserStore {
	return &UserStore{
		data: make(map[string]*domain.User),
	}
}

// RecordCreatedToken merges a token launch under the creator's address.
func (s *UserStore) RecordCreatedToken(_ context.Context, user, token string, at time.Time) error {
	if user == "" || token == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	addr := domain.NormalizeAddress(user)
	tokenAddr := domain.NormalizeAddress(token)

	u, ok := s.data[addr]
	if !ok {
		u = &domain.User{Address: addr}
		s.data[addr] = u
	}

	for _, existing := range u.CreatedTokens {
		if existing == tokenAddr {
			u.UpdatedAt = at
			return nil
		}
	}
	u.CreatedTokens = append(u.CreatedTokens, tokenAddr)
	u.UpdatedAt = at
	return nil
}

// GetByAddress retrieves a user. Returns ErrNotFound if absent.
func (s *UserStore) GetByAddress(_ context.Context, address string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.data[domain.NormalizeAddress(address)]
	if !ok {
		return nil, storage.ErrNotFound
	}

	cp := *u
	cp.CreatedTokens = append([]string(nil), u.CreatedTokens...)
	return &cp, nil
}

var _ storage.UserStore = (*UserStore)(nil)
