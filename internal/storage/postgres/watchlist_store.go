package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// WatchlistStore implements storage.WatchlistStore using PostgreSQL.
type WatchlistStore struct {
	pool *Pool
}

// NewWatchlistStore creates a new WatchlistStore.
func NewWatchlistStore(pool *Pool) *WatchlistStore {
	return &WatchlistStore{pool: pool}
}

var _ storage.WatchlistStore = (*WatchlistStore)(nil)

// Create stores a new entry and assigns its ID.
func (s *WatchlistStore) Create(ctx context.Context, e *domain.WatchlistEntry) error {
	if e == nil || e.User == "" || e.Token == "" {
		return storage.ErrInvalidInput
	}
	e.ID = uuid.NewString()

	query := `
		INSERT INTO watchlist (
			id, user_address, token_address, label, category,
			alert_direction, alert_target, notes, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	alertDir, alertTarget := alertColumns(e.Alert)
	_, err := s.pool.Exec(ctx, query,
		e.ID, domain.NormalizeAddress(e.User), domain.NormalizeAddress(e.Token),
		e.Label, e.Category, alertDir, alertTarget, e.Notes, e.CreatedAt, e.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create watchlist entry: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of an entry.
func (s *WatchlistStore) Update(ctx context.Context, e *domain.WatchlistEntry) error {
	if e == nil || e.ID == "" {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE watchlist SET
			label = $2,
			category = $3,
			alert_direction = $4,
			alert_target = $5,
			notes = $6,
			updated_at = $7
		WHERE id = $1
	`

	alertDir, alertTarget := alertColumns(e.Alert)
	tag, err := s.pool.Exec(ctx, query,
		e.ID, e.Label, e.Category, alertDir, alertTarget, e.Notes, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update watchlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes an entry.
func (s *WatchlistStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM watchlist WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete watchlist entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// ListByUser retrieves all entries owned by a user, newest first.
func (s *WatchlistStore) ListByUser(ctx context.Context, user string) ([]*domain.WatchlistEntry, error) {
	query := `
		SELECT
			id, user_address, token_address, label, category,
			alert_direction, alert_target::text, notes, created_at, updated_at
		FROM watchlist
		WHERE user_address = $1
		ORDER BY created_at DESC
	`

	rows, err := s.pool.Query(ctx, query, domain.NormalizeAddress(user))
	if err != nil {
		return nil, fmt.Errorf("list watchlist: %w", err)
	}
	defer rows.Close()

	var entries []*domain.WatchlistEntry
	for rows.Next() {
		e, err := scanWatchlistEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan watchlist entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// alertColumns flattens the optional alert into nullable column values.
func alertColumns(alert *domain.PriceAlert) (dir *string, target *string) {
	if alert == nil {
		return nil, nil
	}
	d := string(alert.Direction)
	t := alert.Target.String()
	return &d, &t
}

func scanWatchlistEntry(row pgx.Row) (*domain.WatchlistEntry, error) {
	var (
		e                     domain.WatchlistEntry
		alertDir, alertTarget *string
	)

	err := row.Scan(
		&e.ID, &e.User, &e.Token, &e.Label, &e.Category,
		&alertDir, &alertTarget, &e.Notes, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if alertDir != nil && alertTarget != nil {
		target, err := decimal.NewFromString(*alertTarget)
		if err != nil {
			return nil, fmt.Errorf("parse alert_target: %w", err)
		}
		e.Alert = &domain.PriceAlert{
			Direction: domain.AlertDirection(*alertDir),
			Target:    target,
		}
	}
	return &e, nil
}
