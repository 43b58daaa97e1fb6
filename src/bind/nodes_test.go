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

// go/src/bind/nodes_test.go
package bind

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sphinx-core/benor/src/common"
	"github.com/sphinx-core/benor/src/consensus"
	"github.com/sphinx-core/benor/src/network"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(transport string) common.Config {
	cfg := common.DefaultConfig()
	cfg.Transport = transport
	cfg.FaultyIDs = []int{3}
	cfg.InitialValues = []string{"1", "1", "1", "0"}
	cfg.PollInterval = 5 * time.Millisecond
	cfg.RequestTimeout = time.Second
	cfg.ReadyTimeout = 5 * time.Second
	cfg.Seed = 42
	return cfg
}

func runToDecision(t *testing.T, cfg common.Config) Summary {
	t.Helper()
	nw, err := SetupNodes(cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, nw.Shutdown()) }()

	assert.True(t, nw.Registry.AllNodesReady())
	require.NoError(t, nw.StartAll())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, nw.AwaitDecisions(ctx))
	return nw.Summary()
}

func TestLocalNetworkDecides(t *testing.T) {
	for _, store := range []string{common.StoreMemory, common.StoreLevelDB} {
		t.Run(store, func(t *testing.T) {
			cfg := testConfig(common.TransportLocal)
			cfg.Store = store
			s := runToDecision(t, cfg)

			assert.True(t, s.AllDecided)
			assert.True(t, s.Agreement)
			require.NotNil(t, s.Value)
			assert.Equal(t, consensus.One, *s.Value)
			assert.Equal(t, 0, s.MaxRound)
			require.Len(t, s.Nodes, 4)
			assert.True(t, s.Nodes[3].Faulty)
			assert.Nil(t, s.Nodes[3].State.X)
		})
	}
}

func TestLocalNetworkRandomValues(t *testing.T) {
	for seed := int64(1); seed <= 3; seed++ {
		cfg := testConfig(common.TransportLocal)
		cfg.InitialValues = nil
		cfg.DedupVotes = true
		cfg.Seed = seed
		s := runToDecision(t, cfg)
		assert.True(t, s.AllDecided, "seed %d", seed)
		assert.True(t, s.Agreement, "seed %d", seed)
	}
}

func TestHTTPNetworkDecides(t *testing.T) {
	cfg := testConfig(common.TransportHTTP)
	port, err := network.FindFreePort(cfg.Host, 20000, cfg.Nodes)
	require.NoError(t, err)
	cfg.BasePort = port

	nw, err := SetupNodes(cfg)
	require.NoError(t, err)
	defer nw.Shutdown()

	resp, err := http.Get(nw.Nodes[3].URL + "/status")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "faulty", string(body))

	require.NoError(t, nw.StartAll())
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, nw.AwaitDecisions(ctx))

	s := nw.Summary()
	assert.True(t, s.AllDecided)
	assert.True(t, s.Agreement)
	assert.Equal(t, consensus.One, *s.Value)

	require.NoError(t, nw.Shutdown())
	_, err = http.Get(nw.Nodes[0].URL + "/status")
	assert.Error(t, err, "shell must be closed after shutdown")
}

func TestAwaitDecisionsTimeout(t *testing.T) {
	// Nobody is started, so nobody decides.
	nw, err := SetupNodes(testConfig(common.TransportLocal))
	require.NoError(t, err)
	defer nw.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = nw.AwaitDecisions(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	nw.StopAll()
	assert.True(t, nw.Finished(), "killed nodes count as finished")
	assert.False(t, nw.Summary().AllDecided)
}

func TestSetupNodesRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(common.TransportLocal)
	cfg.InitialValues = []string{"1"}
	_, err := SetupNodes(cfg)
	assert.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestSetupNodesPortInUse(t *testing.T) {
	cfg := testConfig(common.TransportHTTP)
	port, err := network.FindFreePort(cfg.Host, 21000, cfg.Nodes)
	require.NoError(t, err)
	cfg.BasePort = port

	first, err := SetupNodes(cfg)
	require.NoError(t, err)
	defer first.Shutdown()

	_, err = SetupNodes(cfg)
	assert.Error(t, err)
}
