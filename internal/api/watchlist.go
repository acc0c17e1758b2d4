// Package api serves the dashboard-facing read/write endpoints that sit
// next to the ingestion webhook: watchlist CRUD and chart data reads.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// WatchlistHandler serves per-user watchlist entries.
type WatchlistHandler struct {
	store  storage.WatchlistStore
	logger zerolog.Logger
}

// NewWatchlistHandler creates the handler.
func NewWatchlistHandler(store storage.WatchlistStore, logger zerolog.Logger) *WatchlistHandler {
	return &WatchlistHandler{
		store:  store,
		logger: logger.With().Str("component", "watchlist-api").Logger(),
	}
}

// Register mounts the watchlist routes on the mux.
func (h *WatchlistHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/watchlist", h.list)
	mux.HandleFunc("POST /api/watchlist", h.create)
	mux.HandleFunc("PUT /api/watchlist/{id}", h.update)
	mux.HandleFunc("DELETE /api/watchlist/{id}", h.delete)
}

// alertJSON is the wire form of a price alert.
type alertJSON struct {
	Direction string `json:"direction"`
	Target    string `json:"target"`
}

// entryJSON is the wire form of a watchlist entry.
type entryJSON struct {
	ID        string     `json:"id,omitempty"`
	User      string     `json:"user"`
	Token     string     `json:"token"`
	Label     string     `json:"label"`
	Category  *string    `json:"category,omitempty"`
	Alert     *alertJSON `json:"alert,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt,omitempty"`
}

func entryToJSON(e *domain.WatchlistEntry) entryJSON {
	out := entryJSON{
		ID:        e.ID,
		User:      e.User,
		Token:     e.Token,
		Label:     e.Label,
		Category:  e.Category,
		Notes:     e.Notes,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
	}
	if e.Alert != nil {
		out.Alert = &alertJSON{
			Direction: string(e.Alert.Direction),
			Target:    e.Alert.Target.String(),
		}
	}
	return out
}

func (in *entryJSON) toDomain() (*domain.WatchlistEntry, error) {
	user := domain.NormalizeAddress(in.User)
	token := domain.NormalizeAddress(in.Token)
	if !strings.HasPrefix(user, "0x") {
		return nil, fmt.Errorf("user must be a 0x-prefixed address")
	}
	if !strings.HasPrefix(token, "0x") {
		return nil, fmt.Errorf("token must be a 0x-prefixed address")
	}

	e := &domain.WatchlistEntry{
		ID:       in.ID,
		User:     user,
		Token:    token,
		Label:    in.Label,
		Category: in.Category,
		Notes:    in.Notes,
	}
	if in.Alert != nil {
		dir := domain.AlertDirection(in.Alert.Direction)
		if dir != domain.AlertAbove && dir != domain.AlertBelow {
			return nil, fmt.Errorf("alert direction must be %q or %q", domain.AlertAbove, domain.AlertBelow)
		}
		target, err := decimal.NewFromString(in.Alert.Target)
		if err != nil {
			return nil, fmt.Errorf("alert target: %w", err)
		}
		e.Alert = &domain.PriceAlert{Direction: dir, Target: target}
	}
	return e, nil
}

func (h *WatchlistHandler) list(w http.ResponseWriter, r *http.Request) {
	user := domain.NormalizeAddress(r.URL.Query().Get("user"))
	if user == "" {
		writeError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	entries, err := h.store.ListByUser(r.Context(), user)
	if err != nil {
		h.logger.Error().Err(err).Str("user", user).Msg("watchlist list failed")
		writeError(w, http.StatusInternalServerError, "failed to list watchlist")
		return
	}

	out := make([]entryJSON, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryToJSON(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *WatchlistHandler) create(w http.ResponseWriter, r *http.Request) {
	var in entryJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	entry, err := in.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	now := time.Now().UTC()
	entry.CreatedAt = now
	entry.UpdatedAt = now

	if err := h.store.Create(r.Context(), entry); err != nil {
		h.logger.Error().Err(err).Str("user", entry.User).Msg("watchlist create failed")
		writeError(w, http.StatusInternalServerError, "failed to create entry")
		return
	}
	writeJSON(w, http.StatusCreated, entryToJSON(entry))
}

func (h *WatchlistHandler) update(w http.ResponseWriter, r *http.Request) {
	var in entryJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	in.ID = r.PathValue("id")
	entry, err := in.toDomain()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := h.store.Update(r.Context(), entry); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		h.logger.Error().Err(err).Str("id", entry.ID).Msg("watchlist update failed")
		writeError(w, http.StatusInternalServerError, "failed to update entry")
		return
	}
	writeJSON(w, http.StatusOK, entryToJSON(entry))
}

func (h *WatchlistHandler) delete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "entry not found")
			return
		}
		h.logger.Error().Err(err).Str("id", id).Msg("watchlist delete failed")
		writeError(w, http.StatusInternalServerError, "failed to delete entry")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
