package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-exchange/internal/engine"
	"curve-exchange/internal/storage/memory"
)

// newTestServer wires a Server over memory stores and returns it with the
// test HTTP server.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	coins := memory.NewCoinStore()
	holders := memory.NewHolderStore()
	trades := memory.NewTradeStore()

	eng, err := engine.New(engine.Options{
		CoinStore:   coins,
		HolderStore: holders,
		TradeStore:  trades,
		Applier:     memory.NewTradeApplier(coins, holders, trades),
		TickStore:   memory.NewTradeTickStore(),
		Logger:      log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	srv, err := New(Options{
		Engine:      eng,
		CoinStore:   coins,
		HolderStore: holders,
		TradeStore:  trades,
		TickStore:   memory.NewTradeTickStore(),
		Logger:      log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	data, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

// createCoin creates a coin through the API and returns its id.
func createCoin(t *testing.T, ts *httptest.Server) string {
	t.Helper()

	resp := postJSON(t, ts.URL+"/coins", map[string]string{
		"creator_id": "creator-1",
		"symbol":     "MEME",
		"name":       "Meme Coin",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var coin struct {
		CoinID string `json:"coin_id"`
	}
	decodeBody(t, resp, &coin)
	require.NotEmpty(t, coin.CoinID)
	return coin.CoinID
}

func TestCreateCoinEndpoint(t *testing.T) {
	ts := newTestServer(t)

	coinID := createCoin(t, ts)

	resp, err := http.Get(ts.URL + "/coins/" + coinID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var coin map[string]any
	decodeBody(t, resp, &coin)
	assert.Equal(t, "MEME", coin["symbol"])
	assert.Equal(t, "0.0001", coin["initial_price"])
	assert.Equal(t, true, coin["is_active"])
	// Tick store wired: detail carries the (empty) 24h volume
	assert.Equal(t, "0", coin["volume_24h"])
}

func TestCreateCoinEndpoint_Validation(t *testing.T) {
	ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/coins", map[string]string{"symbol": "X", "name": "X"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/coins", map[string]string{"creator_id": "u", "name": "X"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestBuyAndSellEndpoints(t *testing.T) {
	ts := newTestServer(t)
	coinID := createCoin(t, ts)

	resp := postJSON(t, ts.URL+"/coins/"+coinID+"/buy", map[string]any{
		"user_id":      "user-1",
		"token_amount": 100,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var buy map[string]any
	decodeBody(t, resp, &buy)
	assert.Equal(t, "buy", buy["side"])
	assert.Equal(t, "0.0100495", buy["quote_amount"])
	assert.NotEmpty(t, buy["signature"])

	resp = postJSON(t, ts.URL+"/coins/"+coinID+"/sell", map[string]any{
		"user_id":        "user-1",
		"token_amount":   100,
		"wallet_address": "some-wallet",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sell map[string]any
	decodeBody(t, resp, &sell)
	assert.Equal(t, "sell", sell["side"])
	assert.Equal(t, float64(0), sell["tokens_sold"])
}

func TestTradeEndpoints_ErrorStatuses(t *testing.T) {
	ts := newTestServer(t)
	coinID := createCoin(t, ts)

	cases := []struct {
		name   string
		url    string
		body   map[string]any
		status int
	}{
		{"missing user", "/coins/" + coinID + "/buy", map[string]any{"token_amount": 10}, http.StatusUnauthorized},
		{"zero amount", "/coins/" + coinID + "/buy", map[string]any{"user_id": "u", "token_amount": 0}, http.StatusBadRequest},
		{"unknown coin", "/coins/nope/buy", map[string]any{"user_id": "u", "token_amount": 10}, http.StatusNotFound},
		{"sell without holder", "/coins/" + coinID + "/sell", map[string]any{"user_id": "u", "token_amount": 10}, http.StatusNotFound},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := postJSON(t, ts.URL+tc.url, tc.body)
			defer resp.Body.Close()
			assert.Equal(t, tc.status, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestSellEndpoint_InsufficientBalance(t *testing.T) {
	ts := newTestServer(t)
	coinID := createCoin(t, ts)

	resp := postJSON(t, ts.URL+"/coins/"+coinID+"/buy", map[string]any{
		"user_id": "user-1", "token_amount": 50,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/coins/"+coinID+"/sell", map[string]any{
		"user_id": "user-1", "token_amount": 51,
	})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestListAndHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t)
	coinID := createCoin(t, ts)

	for i := 0; i < 3; i++ {
		user := fmt.Sprintf("user-%d", i)
		resp := postJSON(t, ts.URL+"/coins/"+coinID+"/buy", map[string]any{
			"user_id": user, "token_amount": 100,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		resp.Body.Close()
	}

	resp, err := http.Get(ts.URL + "/coins")
	require.NoError(t, err)
	var coins []map[string]any
	decodeBody(t, resp, &coins)
	require.Len(t, coins, 1)
	assert.Equal(t, float64(3), coins[0]["holder_count"])

	resp, err = http.Get(ts.URL + "/coins?creator=creator-1")
	require.NoError(t, err)
	decodeBody(t, resp, &coins)
	assert.Len(t, coins, 1)

	resp, err = http.Get(ts.URL + "/coins/" + coinID + "/trades?limit=2")
	require.NoError(t, err)
	var trades []map[string]any
	decodeBody(t, resp, &trades)
	assert.Len(t, trades, 2)

	resp, err = http.Get(ts.URL + "/coins/" + coinID + "/holders")
	require.NoError(t, err)
	var holders []map[string]any
	decodeBody(t, resp, &holders)
	assert.Len(t, holders, 3)

	resp, err = http.Get(ts.URL + "/users/user-0/trades")
	require.NoError(t, err)
	decodeBody(t, resp, &trades)
	require.Len(t, trades, 1)
	assert.Equal(t, "user-0", trades[0]["user_id"])
}

func TestDeactivateEndpoint(t *testing.T) {
	ts := newTestServer(t)
	coinID := createCoin(t, ts)

	resp := postJSON(t, ts.URL+"/coins/"+coinID+"/deactivate", map[string]any{"user_id": "intruder"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/coins/"+coinID+"/deactivate", map[string]any{"user_id": "creator-1"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/coins/"+coinID+"/buy", map[string]any{"user_id": "u", "token_amount": 1})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHealthAndStatusEndpoints(t *testing.T) {
	ts := newTestServer(t)
	coinID := createCoin(t, ts)

	resp := postJSON(t, ts.URL+"/coins/"+coinID+"/buy", map[string]any{"user_id": "u", "token_amount": 10})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp, err = http.Get(ts.URL + "/status")
	require.NoError(t, err)
	var status struct {
		Status string `json:"status"`
		Engine struct {
			TradesExecuted int64 `json:"trades_executed"`
			CoinsCreated   int64 `json:"coins_created"`
		} `json:"engine"`
	}
	decodeBody(t, resp, &status)
	assert.Equal(t, "running", status.Status)
	assert.Equal(t, int64(1), status.Engine.TradesExecuted)
	assert.Equal(t, int64(1), status.Engine.CoinsCreated)
}
