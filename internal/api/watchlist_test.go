package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage/memory"
)

const (
	apiUser  = "0xUSER000000000000000000000000000000000001"
	apiToken = "0x70ce0000000000000000000000000000000000aa"
)

func newWatchlistServer() (*httptest.Server, *memory.WatchlistStore) {
	store := memory.NewWatchlistStore()
	mux := http.NewServeMux()
	NewWatchlistHandler(store, zerolog.Nop()).Register(mux)
	return httptest.NewServer(mux), store
}

func postEntry(t *testing.T, server *httptest.Server, body entryJSON) entryJSON {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/watchlist", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created entryJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	return created
}

func TestWatchlist_CreateAndList(t *testing.T) {
	server, _ := newWatchlistServer()
	defer server.Close()

	created := postEntry(t, server, entryJSON{
		User:  apiUser,
		Token: apiToken,
		Label: "haven",
		Alert: &alertJSON{Direction: "above", Target: "0.002"},
	})
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "0xuser000000000000000000000000000000000001", created.User, "address lowercased")

	resp, err := http.Get(server.URL + "/api/watchlist?user=" + apiUser)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var entries []entryJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "haven", entries[0].Label)
	require.NotNil(t, entries[0].Alert)
	assert.Equal(t, "above", entries[0].Alert.Direction)
	assert.Equal(t, "0.002", entries[0].Alert.Target)
}

func TestWatchlist_ListRequiresUser(t *testing.T) {
	server, _ := newWatchlistServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/watchlist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatchlist_CreateRejectsBadAlert(t *testing.T) {
	server, _ := newWatchlistServer()
	defer server.Close()

	raw, err := json.Marshal(entryJSON{
		User:  apiUser,
		Token: apiToken,
		Alert: &alertJSON{Direction: "sideways", Target: "0.002"},
	})
	require.NoError(t, err)

	resp, err := http.Post(server.URL+"/api/watchlist", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWatchlist_Update(t *testing.T) {
	server, _ := newWatchlistServer()
	defer server.Close()

	created := postEntry(t, server, entryJSON{User: apiUser, Token: apiToken, Label: "old"})

	raw, err := json.Marshal(entryJSON{User: apiUser, Token: apiToken, Label: "new", Notes: "watch closely"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/watchlist/"+created.ID, bytes.NewReader(raw))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	listResp, err := http.Get(server.URL + "/api/watchlist?user=" + apiUser)
	require.NoError(t, err)
	defer listResp.Body.Close()

	var entries []entryJSON
	require.NoError(t, json.NewDecoder(listResp.Body).Decode(&entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "new", entries[0].Label)
	assert.Equal(t, "watch closely", entries[0].Notes)
}

func TestWatchlist_UpdateMissing(t *testing.T) {
	server, _ := newWatchlistServer()
	defer server.Close()

	raw, err := json.Marshal(entryJSON{User: apiUser, Token: apiToken})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPut, server.URL+"/api/watchlist/no-such-id", bytes.NewReader(raw))
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestWatchlist_Delete(t *testing.T) {
	server, store := newWatchlistServer()
	defer server.Close()

	created := postEntry(t, server, entryJSON{User: apiUser, Token: apiToken})

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/api/watchlist/"+created.ID, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	entries, err := store.ListByUser(context.Background(), apiUser)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Second delete reports the entry gone.
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPricePoints_Get(t *testing.T) {
	store := memory.NewPricePointStore()
	mux := http.NewServeMux()
	NewPricePointHandler(store, zerolog.Nop()).Register(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, store.InsertBulk(context.Background(), []*domain.PricePoint{
		{Token: apiToken, Timestamp: base, Price: decimal.RequireFromString("0.001"), EthVolume: decimal.RequireFromString("1000000000000000000"), Side: domain.TradeBuy},
		{Token: apiToken, Timestamp: base.Add(time.Hour), Price: decimal.RequireFromString("0.002"), EthVolume: decimal.RequireFromString("500000000000000000"), Side: domain.TradeSell},
		{Token: apiToken, Timestamp: base.Add(48 * time.Hour), Price: decimal.RequireFromString("0.003"), EthVolume: decimal.RequireFromString("1"), Side: domain.TradeBuy},
	}))

	url := server.URL + "/api/price-points?token=" + apiToken +
		"&from=" + base.Format(time.RFC3339) +
		"&to=" + base.Add(2*time.Hour).Format(time.RFC3339)
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var points []pricePointJSON
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&points))
	require.Len(t, points, 2, "point outside the range excluded")
	assert.Equal(t, "0.001", points[0].Price)
	assert.Equal(t, domain.TradeSell, points[1].Side)
}

func TestPricePoints_RequiresToken(t *testing.T) {
	mux := http.NewServeMux()
	NewPricePointHandler(memory.NewPricePointStore(), zerolog.Nop()).Register(mux)
	server := httptest.NewServer(mux)
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/price-points")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
