package ingest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itripleg/motherhaven-sub003/internal/evm"
)

func newTestWebhook(env *testEnv) *Webhook {
	pipeline := newTestPipeline(env)
	return NewWebhook(pipeline, "avalanche-fuji", pipeline.logger)
}

func blockPayload(number interface{}, timestamp interface{}, logs []evm.Log) []byte {
	payload := map[string]interface{}{
		"event": map[string]interface{}{
			"data": map[string]interface{}{
				"block": map[string]interface{}{
					"number":    number,
					"timestamp": timestamp,
					"logs":      logs,
				},
			},
		},
	}
	body, _ := json.Marshal(payload)
	return body
}

func TestWebhook_PostProcessesBlock(t *testing.T) {
	env := newTestEnv(nil)
	hook := newTestWebhook(env)

	logs := []evm.Log{
		createdLog(t, "0xcreate01"),
		buyLog(t, "0xbuy01", "0x1", "500000000000000000000", "600000000000000000"),
	}
	req := httptest.NewRequest(http.MethodPost, WebhookPath,
		bytes.NewReader(blockPayload(100, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).Unix(), logs)))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "success", resp.Status)
	assert.Equal(t, uint64(100), resp.BlockNumber)
	assert.Equal(t, 2, resp.LogsProcessed)
	assert.Equal(t, testFactory, resp.FactoryAddress)
	assert.Equal(t, "avalanche-fuji", resp.Network)
	assert.Len(t, resp.EventsSupported, 6)

	tok, err := env.tokens.GetByAddress(req.Context(), testToken)
	require.NoError(t, err)
	assert.Equal(t, int64(2), tok.TradeCount)
}

func TestWebhook_PostAcceptsHexQuantities(t *testing.T) {
	env := newTestEnv(nil)
	hook := newTestWebhook(env)

	req := httptest.NewRequest(http.MethodPost, WebhookPath,
		bytes.NewReader(blockPayload("0x64", "0x665a5f40", []evm.Log{createdLog(t, "0xcreate01")})))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(0x64), resp.BlockNumber)
	assert.Equal(t, 1, resp.LogsProcessed)
}

func TestWebhook_PostMalformedBody(t *testing.T) {
	env := newTestEnv(nil)
	hook := newTestWebhook(env)

	req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp["error"])
}

func TestWebhook_GetInfo(t *testing.T) {
	env := newTestEnv(nil)
	hook := newTestWebhook(env)

	req := httptest.NewRequest(http.MethodGet, WebhookPath, nil)
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))

	var info webhookInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &info))
	assert.Equal(t, WebhookPath, info.Endpoint)
	assert.Equal(t, testFactory, info.FactoryAddress)
	assert.Len(t, info.EventsSupported, 6)
}

func TestWebhook_MethodNotAllowed(t *testing.T) {
	env := newTestEnv(nil)
	hook := newTestWebhook(env)

	req := httptest.NewRequest(http.MethodPut, WebhookPath, nil)
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, POST", rec.Header().Get("Allow"))
}

func TestWebhook_BadLogKeepsDeliverySuccessful(t *testing.T) {
	env := newTestEnv(nil)
	hook := newTestWebhook(env)

	logs := []evm.Log{
		createdLog(t, "0xcreate01"),
		buyLog(t, "0xbuy01", "0x1", "0", "600000000000000000"),
	}
	req := httptest.NewRequest(http.MethodPost, WebhookPath,
		bytes.NewReader(blockPayload(100, 1700000000, logs)))
	rec := httptest.NewRecorder()

	hook.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code,
		fmt.Sprintf("per-log failures stay out of the HTTP status: %s", rec.Body.String()))
}
