package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

func testWatchlistEntry(user, token string) *domain.WatchlistEntry {
	now := time.Date(2025, 6, 10, 15, 0, 0, 0, time.UTC)
	return &domain.WatchlistEntry{
		User:      user,
		Token:     token,
		Label:     "watching",
		Notes:     "early launch",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestWatchlistStore_CreateAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWatchlistStore(pool)
	ctx := context.Background()

	user := "0xuser000000000000000000000000000000000f1"
	entry := testWatchlistEntry(user, "0xtoken00000000000000000000000000000000e1")
	entry.Category = ptr("memes")
	entry.Alert = &domain.PriceAlert{
		Direction: domain.AlertAbove,
		Target:    decimal.RequireFromString("0.005"),
	}
	require.NoError(t, store.Create(ctx, entry))
	assert.NotEmpty(t, entry.ID, "Create assigns the ID")

	entries, err := store.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got := entries[0]
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "watching", got.Label)
	require.NotNil(t, got.Category)
	assert.Equal(t, "memes", *got.Category)
	require.NotNil(t, got.Alert)
	assert.Equal(t, domain.AlertAbove, got.Alert.Direction)
	assert.True(t, got.Alert.Target.Equal(decimal.RequireFromString("0.005")))
}

func TestWatchlistStore_Update(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWatchlistStore(pool)
	ctx := context.Background()

	user := "0xuser000000000000000000000000000000000f2"
	entry := testWatchlistEntry(user, "0xtoken00000000000000000000000000000000e2")
	require.NoError(t, store.Create(ctx, entry))

	entry.Label = "renamed"
	entry.Alert = &domain.PriceAlert{
		Direction: domain.AlertBelow,
		Target:    decimal.RequireFromString("0.0001"),
	}
	entry.UpdatedAt = entry.UpdatedAt.Add(time.Hour)
	require.NoError(t, store.Update(ctx, entry))

	entries, err := store.ListByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "renamed", entries[0].Label)
	require.NotNil(t, entries[0].Alert)
	assert.Equal(t, domain.AlertBelow, entries[0].Alert.Direction)
}

func TestWatchlistStore_UpdateNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWatchlistStore(pool)
	entry := testWatchlistEntry("0xuser000000000000000000000000000000000f3", "0xtoken1")
	entry.ID = "does-not-exist"
	err := store.Update(context.Background(), entry)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestWatchlistStore_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewWatchlistStore(pool)
	ctx := context.Background()

	user := "0xuser000000000000000000000000000000000f4"
	entry := testWatchlistEntry(user, "0xtoken00000000000000000000000000000000e4")
	require.NoError(t, store.Create(ctx, entry))

	require.NoError(t, store.Delete(ctx, entry.ID))

	entries, err := store.ListByUser(ctx, user)
	require.NoError(t, err)
	assert.Empty(t, entries)

	err = store.Delete(ctx, entry.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
