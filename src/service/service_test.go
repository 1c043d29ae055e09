package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mosaicnetworks/parley/src/common"
	"github.com/mosaicnetworks/parley/src/ledger"
	"github.com/mosaicnetworks/parley/src/net"
	"github.com/mosaicnetworks/parley/src/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *node.Node) {
	_, trans := net.NewInmemTransport("")

	conf := node.TestConfig(t)
	conf.GenesisPayload = "test"
	conf.Profile = node.Profile{ID: trans.LocalAddr(), Name: "tester"}

	n := node.NewNode(conf, trans, nil)
	require.NoError(t, n.Init())
	t.Cleanup(n.Shutdown)

	return NewService("127.0.0.1:0", n, common.NewTestEntry(t, common.TestLogLevel)), n
}

func do(t *testing.T, s *Service, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestConsumeAndRead(t *testing.T) {
	s, n := newTestService(t)

	w := do(t, s, "POST", "/consume", `{"actorId":"user_maril","payload":"hello","amount":10}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var receipt node.Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.True(t, receipt.Accepted)
	assert.Equal(t, 90.0, receipt.AvailableAfter)

	w = do(t, s, "GET", "/ledger", "")
	require.Equal(t, http.StatusOK, w.Code)
	var txs []ledger.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &txs))
	assert.Equal(t, n.Transactions(), txs)

	w = do(t, s, "GET", "/ledger/1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tx ledger.Transaction
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tx))
	assert.Equal(t, "hello", tx.Payload)

	w = do(t, s, "GET", "/history", "")
	var history []ledger.Utterance
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &history))
	assert.Equal(t, []ledger.Utterance{
		{ActorID: ledger.GenesisActor, Payload: "test"},
		{ActorID: "user_maril", Payload: "hello"},
	}, history)

	w = do(t, s, "GET", "/fingerprint", "")
	assert.Contains(t, w.Body.String(), n.Fingerprint())

	w = do(t, s, "GET", "/stats", "")
	var stats map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, "2", stats["ledger_length"])
	assert.Equal(t, "tester", stats["moniker"])
}

func TestConsumeDefaultAmount(t *testing.T) {
	s, n := newTestService(t)

	// 10 characters at 0.5
	w := do(t, s, "POST", "/consume", `{"actorId":"user","payload":"0123456789"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.InDelta(t, 95, n.Available(), 1e-9)

	// clamped to capacity, and the window is now too full
	w = do(t, s, "POST", "/consume", `{"actorId":"user","payload":"`+strings.Repeat("x", 500)+`"}`)
	require.Equal(t, http.StatusConflict, w.Code)

	var receipt node.Receipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.False(t, receipt.Accepted)
	assert.NotEmpty(t, receipt.Reason)
}

func TestBadRequests(t *testing.T) {
	s, _ := newTestService(t)

	cases := []struct {
		method string
		path   string
		body   string
		code   int
	}{
		{"POST", "/consume", "{not json", http.StatusBadRequest},
		{"POST", "/consume", `{"payload":"anonymous"}`, http.StatusBadRequest},
		{"POST", "/consume", `{"actorId":"a","payload":"x","amount":-1}`, http.StatusConflict},
		{"GET", "/ledger/abc", "", http.StatusBadRequest},
		{"GET", "/ledger/42", "", http.StatusNotFound},
		{"GET", "/consume", "", http.StatusMethodNotAllowed},
	}

	for _, c := range cases {
		w := do(t, s, c.method, c.path, c.body)
		assert.Equal(t, c.code, w.Code, "%s %s %s", c.method, c.path, c.body)
	}
}

func TestViews(t *testing.T) {
	s, _ := newTestService(t)

	w := do(t, s, "GET", "/available", "")
	require.Equal(t, http.StatusOK, w.Code)
	var available map[string]float64
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &available))
	assert.Equal(t, 100.0, available["available"])
	assert.Equal(t, 100.0, available["capacity"])

	w = do(t, s, "GET", "/companions", "")
	assert.JSONEq(t, "[]", w.Body.String())

	w = do(t, s, "GET", "/peers", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, s, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "parley_ledger_length")
}
