package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/domain"
	"github.com/itripleg/motherhaven-sub003/internal/storage"
)

// PricePointHandler serves chart samples for one token and time range.
type PricePointHandler struct {
	store  storage.PricePointStore
	logger zerolog.Logger
}

// NewPricePointHandler creates the handler.
func NewPricePointHandler(store storage.PricePointStore, logger zerolog.Logger) *PricePointHandler {
	return &PricePointHandler{
		store:  store,
		logger: logger.With().Str("component", "price-point-api").Logger(),
	}
}

// Register mounts the chart route on the mux.
func (h *PricePointHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/price-points", h.get)
}

// pricePointJSON is the wire form of one chart sample.
type pricePointJSON struct {
	Timestamp time.Time `json:"timestamp"`
	Price     string    `json:"price"`
	EthVolume string    `json:"ethVolume"`
	Side      string    `json:"side"`
}

func (h *PricePointHandler) get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	token := domain.NormalizeAddress(q.Get("token"))
	if !strings.HasPrefix(token, "0x") {
		writeError(w, http.StatusBadRequest, "token query parameter must be a 0x-prefixed address")
		return
	}

	from, to, err := parseTimeRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	points, err := h.store.GetByTimeRange(r.Context(), token, from, to)
	if err != nil {
		h.logger.Error().Err(err).Str("token", token).Msg("price point query failed")
		writeError(w, http.StatusInternalServerError, "failed to query price points")
		return
	}

	out := make([]pricePointJSON, 0, len(points))
	for _, p := range points {
		out = append(out, pricePointJSON{
			Timestamp: p.Timestamp,
			Price:     p.Price.String(),
			EthVolume: p.EthVolume.String(),
			Side:      p.Side,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// parseTimeRange parses RFC3339 bounds. from defaults to 24h ago, to
// defaults to now.
func parseTimeRange(fromStr, toStr string) (time.Time, time.Time, error) {
	now := time.Now().UTC()
	from := now.Add(-24 * time.Hour)
	to := now

	var err error
	if fromStr != "" {
		if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	return from, to, nil
}
