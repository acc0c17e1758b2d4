package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// UserStore implements storage.UserStore using PostgreSQL.
type UserStore struct {
	pool *Pool
}

// NewUserStore creates a new UserStore.
func NewUserStore(pool *Pool) *UserStore {
	return &UserStore{pool: pool}
}

var _ storage.UserStore = (*UserStore)(nil)

// RecordCreatedToken appends a token address to the creator's profile,
// creating the profile if it does not exist. Appending an address the
// profile already holds is a no-op.
func (s *UserStore) RecordCreatedToken(ctx context.Context, creator, token string, at time.Time) error {
	if creator == "" || token == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO users (address, created_tokens, updated_at)
		VALUES ($1, ARRAY[$2::text], $3)
		ON CONFLICT (address) DO UPDATE SET
			created_tokens = CASE
				WHEN $2 = ANY(users.created_tokens) THEN users.created_tokens
				ELSE array_append(users.created_tokens, $2)
			END,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.pool.Exec(ctx, query,
		domain.NormalizeAddress(creator), domain.NormalizeAddress(token), at)
	if err != nil {
		return fmt.Errorf("record created token: %w", err)
	}
	return nil
}

// GetByAddress retrieves a user profile.
func (s *UserStore) GetByAddress(ctx context.Context, address string) (*domain.User, error) {
	var u domain.User
	err := s.pool.QueryRow(ctx,
		`SELECT address, created_tokens, updated_at FROM users WHERE address = $1`,
		domain.NormalizeAddress(address),
	).Scan(&u.Address, &u.CreatedTokens, &u.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}
