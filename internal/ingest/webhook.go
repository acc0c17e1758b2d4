package ingest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/itripleg/motherhaven-sub003/internal/evm"
	"github.com/itripleg/motherhaven-sub003/internal/factory"
	"github.com/itripleg/motherhaven-sub003/internal/observability"
)

// WebhookPath is the inbound delivery endpoint.
const WebhookPath = "/api/new-factory-monitor"

// Webhook accepts block payloads from the chain log provider and feeds
// them through the pipeline.
type Webhook struct {
	pipeline *Pipeline
	network  string
	logger   zerolog.Logger
}

// NewWebhook creates the webhook handler.
func NewWebhook(pipeline *Pipeline, network string, logger zerolog.Logger) *Webhook {
	return &Webhook{
		pipeline: pipeline,
		network:  network,
		logger:   logger.With().Str("component", "webhook").Logger(),
	}
}

// webhookPayload is the provider's delivery envelope.
type webhookPayload struct {
	Event struct {
		Data struct {
			Block struct {
				Number    flexQuantity `json:"number"`
				Timestamp flexQuantity `json:"timestamp"`
				Logs      []evm.Log    `json:"logs"`
			} `json:"block"`
		} `json:"data"`
	} `json:"event"`
}

// flexQuantity accepts block quantities as JSON numbers, decimal
// strings or 0x-prefixed hex strings, since providers differ.
type flexQuantity string

func (q *flexQuantity) UnmarshalJSON(b []byte) error {
	*q = flexQuantity(strings.Trim(strings.TrimSpace(string(b)), `"`))
	return nil
}

func (q flexQuantity) String() string { return string(q) }

type webhookResponse struct {
	Status          string   `json:"status"`
	BlockNumber     uint64   `json:"blockNumber"`
	LogsProcessed   int      `json:"logsProcessed"`
	FactoryAddress  string   `json:"factoryAddress"`
	Network         string   `json:"network"`
	EventsSupported []string `json:"eventsSupported"`
}

type webhookInfo struct {
	Endpoint        string   `json:"endpoint"`
	Methods         []string `json:"methods"`
	FactoryAddress  string   `json:"factoryAddress"`
	Network         string   `json:"network"`
	EventsSupported []string `json:"eventsSupported"`
	Usage           string   `json:"usage"`
}

// ServeHTTP implements http.Handler.
func (w *Webhook) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		w.handlePost(rw, r)
	case http.MethodGet:
		w.handleGet(rw)
	default:
		rw.Header().Set("Allow", "GET, POST")
		writeJSON(rw, http.StatusMethodNotAllowed, map[string]string{
			"error": fmt.Sprintf("method %s not allowed", r.Method),
		})
	}
}

func (w *Webhook) handlePost(rw http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		w.logger.Error().Err(err).Msg("malformed webhook body")
		writeJSON(rw, http.StatusInternalServerError, map[string]string{
			"error": "failed to process webhook",
		})
		return
	}

	block := payload.Event.Data.Block
	blockNumber, err := parseBlockNumber(block.Number)
	if err != nil {
		w.logger.Error().Err(err).Str("raw", block.Number.String()).Msg("malformed block number")
		writeJSON(rw, http.StatusInternalServerError, map[string]string{
			"error": "failed to process webhook",
		})
		return
	}
	blockTime := parseBlockTimestamp(block.Timestamp)

	observability.DefaultMetrics.BlocksReceived.Inc()
	observability.UpdateHighestBlock(blockNumber)

	handled := w.pipeline.ProcessLogs(r.Context(), block.Logs, blockTime)
	observability.DefaultMetrics.LastSuccessfulBlock.SetToCurrentTime()

	w.logger.Info().
		Uint64("block", blockNumber).
		Int("logs", len(block.Logs)).
		Int("events_handled", handled).
		Msg("block processed")

	writeJSON(rw, http.StatusOK, webhookResponse{
		Status:          "success",
		BlockNumber:     blockNumber,
		LogsProcessed:   len(block.Logs),
		FactoryAddress:  w.pipeline.Decoder().FactoryAddress(),
		Network:         w.network,
		EventsSupported: factory.EventNames(),
	})
}

func (w *Webhook) handleGet(rw http.ResponseWriter) {
	rw.Header().Set("Allow", "GET, POST")
	writeJSON(rw, http.StatusOK, webhookInfo{
		Endpoint:        WebhookPath,
		Methods:         []string{http.MethodGet, http.MethodPost},
		FactoryAddress:  w.pipeline.Decoder().FactoryAddress(),
		Network:         w.network,
		EventsSupported: factory.EventNames(),
		Usage:           "POST block payloads as {event:{data:{block:{number,timestamp,logs}}}}",
	})
}

func parseBlockNumber(n flexQuantity) (uint64, error) {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0, fmt.Errorf("missing block number")
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return evm.ParseQuantity(s)
	}
	return strconv.ParseUint(s, 10, 64)
}

// parseBlockTimestamp converts the envelope's epoch seconds. A missing
// or malformed timestamp falls back to now; events still ingest, their
// timestamps are just approximate.
func parseBlockTimestamp(n flexQuantity) time.Time {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return time.Now().UTC()
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if v, err := evm.ParseQuantity(s); err == nil {
			return time.Unix(int64(v), 0).UTC()
		}
		return time.Now().UTC()
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(v, 0).UTC()
	}
	return time.Now().UTC()
}

func writeJSON(rw http.ResponseWriter, status int, body interface{}) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(body)
}
