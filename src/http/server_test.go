// MIT License
//
// Copyright (c) 2024 sphinx-core
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

// go/src/http/server_test.go
package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sphinx-core/benor/src/consensus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type nopTransport struct{}

func (nopTransport) Send(context.Context, int, consensus.Vote) error { return nil }

func newHonest(t *testing.T, id int, params consensus.Params, initial consensus.Value, tr consensus.Transport) *consensus.HonestNode {
	t.Helper()
	n, err := consensus.NewHonestNode(consensus.NodeConfig{
		ID:        id,
		Params:    params,
		Initial:   initial,
		Transport: tr,
		Coin:      consensus.NewScriptedCoin(consensus.One),
	})
	require.NoError(t, err)
	return n
}

func do(t *testing.T, h http.Handler, method, path, body string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Code, w.Body.String()
}

func TestStatus(t *testing.T) {
	honest := NewServer("", newHonest(t, 0, consensus.Params{N: 4, F: 1}, consensus.One, nopTransport{}), nil, nil)
	code, body := do(t, honest.Handler(), http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusLive, body)

	faulty := NewServer("", consensus.NewFaultyNode(3, nil), nil, nil)
	code, body = do(t, faulty.Handler(), http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusInternalServerError, code)
	assert.Equal(t, StatusFaulty, body)
}

func TestMessage(t *testing.T) {
	node := newHonest(t, 0, consensus.Params{N: 4, F: 1}, consensus.One, nopTransport{})
	s := NewServer("", node, nil, nil)

	code, body := do(t, s.Handler(), http.MethodPost, "/message", `{"senderId":2,"phase":"R","round":0,"value":"?"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, MsgReceived, body)

	for _, bad := range []string{
		`{"senderId":2,"phase":"Q","round":0,"value":1}`,
		`{"senderId":2,"phase":"R","round":-3,"value":1}`,
		`{"senderId":2,"phase":"R","round":"x","value":1}`,
		`{"senderId":9,"phase":"R","round":0,"value":1}`,
		`garbage`,
	} {
		code, _ := do(t, s.Handler(), http.MethodPost, "/message", bad)
		assert.Equal(t, http.StatusBadRequest, code, bad)
	}
	assert.Equal(t, 1, node.Store().Len(), "rejected votes must not be stored")

	code, body = do(t, s.Handler(), http.MethodGet, "/votes/R/0", "")
	require.Equal(t, http.StatusOK, code)
	var votes []consensus.Vote
	require.NoError(t, json.Unmarshal([]byte(body), &votes))
	assert.Equal(t, []consensus.Vote{{SenderID: 2, Phase: consensus.PhaseR, Round: 0, Value: consensus.Unknown}}, votes)

	code, body = do(t, s.Handler(), http.MethodGet, "/votes/P/4", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	code, _ = do(t, s.Handler(), http.MethodGet, "/votes/X/0", "")
	assert.Equal(t, http.StatusBadRequest, code)

	faulty := NewServer("", consensus.NewFaultyNode(1, nil), nil, nil)
	code, _ = do(t, faulty.Handler(), http.MethodPost, "/message", `{"senderId":2,"phase":"R","round":0,"value":1}`)
	assert.Equal(t, http.StatusInternalServerError, code)
}

func TestVoteKeysInFirstSeenOrder(t *testing.T) {
	node := newHonest(t, 0, consensus.Params{N: 4, F: 1}, consensus.One, nopTransport{})
	s := NewServer("", node, nil, nil)

	code, body := do(t, s.Handler(), http.MethodGet, "/votes", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[]`, body)

	for _, msg := range []string{
		`{"senderId":1,"phase":"P","round":2,"value":"?"}`,
		`{"senderId":2,"phase":"R","round":0,"value":1}`,
		`{"senderId":3,"phase":"P","round":2,"value":0}`,
		`{"senderId":0,"phase":"R","round":1,"value":0}`,
	} {
		code, _ := do(t, s.Handler(), http.MethodPost, "/message", msg)
		require.Equal(t, http.StatusOK, code, msg)
	}

	code, body = do(t, s.Handler(), http.MethodGet, "/votes", "")
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[{"phase":"P","round":2},{"phase":"R","round":0},{"phase":"R","round":1}]`, body)
}

func TestStartStopAndState(t *testing.T) {
	// N=4 with nobody answering: the engine parks waiting for an R quorum.
	node := newHonest(t, 1, consensus.Params{N: 4, F: 1, PollInterval: 5 * time.Millisecond}, consensus.Zero, nopTransport{})
	s := NewServer("", node, nil, nil)

	code, body := do(t, s.Handler(), http.MethodGet, "/getState", "")
	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"killed":false,"x":0,"decided":false,"k":0}`, body)

	for i := 0; i < 2; i++ {
		code, body = do(t, s.Handler(), http.MethodGet, "/start", "")
		assert.Equal(t, http.StatusOK, code)
		assert.Equal(t, StatusStarted, body)
	}

	code, body = do(t, s.Handler(), http.MethodGet, "/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusKilled, body)

	select {
	case <-node.Stopped():
	case <-time.After(2 * time.Second):
		t.Fatal("engine did not exit after stop")
	}

	code, body = do(t, s.Handler(), http.MethodGet, "/getState", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `"killed":true`)

	code, _ = do(t, s.Handler(), http.MethodGet, "/start", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestFaultyStartStop(t *testing.T) {
	s := NewServer("", consensus.NewFaultyNode(3, nil), nil, nil)

	code, body := do(t, s.Handler(), http.MethodGet, "/start", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusFaulty, body)

	code, body = do(t, s.Handler(), http.MethodGet, "/stop", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, StatusKilled, body)

	_, body = do(t, s.Handler(), http.MethodGet, "/getState", "")
	assert.JSONEq(t, `{"killed":true,"x":null,"decided":null,"k":null}`, body)
}

func TestMetricsEndpoint(t *testing.T) {
	node := newHonest(t, 2, consensus.Params{N: 4, F: 1}, consensus.One, nopTransport{})
	s := NewServer("", node, nil, nil)
	do(t, s.Handler(), http.MethodPost, "/message", `{"senderId":0,"phase":"P","round":0,"value":1}`)

	code, body := do(t, s.Handler(), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `benor_votes_received_total{node="2",phase="P"} 1`)
}

func TestEventsStream(t *testing.T) {
	node := newHonest(t, 0, consensus.Params{N: 4, F: 1}, consensus.One, nopTransport{})
	s := NewServer("", node, nil, nil)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/events", nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var snap consensus.StateSnapshot
	require.NoError(t, conn.ReadJSON(&snap))
	assert.False(t, snap.Killed)
	require.NotNil(t, snap.X)
	assert.Equal(t, consensus.One, *snap.X)

	resp, err := http.Get(ts.URL + "/stop")
	require.NoError(t, err)
	resp.Body.Close()

	require.NoError(t, conn.ReadJSON(&snap))
	assert.True(t, snap.Killed)

	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
	assert.Equal(t, StatusKilled, closeErr.Text)
}

func TestListenSignalsReady(t *testing.T) {
	ready := make(chan int, 1)
	s := NewServer("127.0.0.1:0", consensus.NewFaultyNode(2, nil), func(id int) { ready <- id }, nil)
	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	select {
	case id := <-ready:
		assert.Equal(t, 2, id)
	case <-time.After(time.Second):
		t.Fatal("onReady not called")
	}
	assert.Error(t, s.Listen(), "second Listen must fail")

	resp, err := http.Get("http://" + s.Addr() + "/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, StatusFaulty, string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	_, err = http.Get("http://" + s.Addr() + "/status")
	assert.Error(t, err)
}
