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

// go/src/bind/nodes.go
package bind

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/lni/goutils/syncutil"
	"github.com/sphinx-core/benor/src/common"
	"github.com/sphinx-core/benor/src/consensus"
	httpapi "github.com/sphinx-core/benor/src/http"
	logger "github.com/sphinx-core/benor/src/log"
	"github.com/sphinx-core/benor/src/network"
	"go.uber.org/zap"
)

// SetupNodes builds every node of cfg, binds their shells and waits until all are ready.
func SetupNodes(cfg common.Config) (*Network, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	initial, err := InitialValues(cfg, seed)
	if err != nil {
		return nil, err
	}

	nw := &Network{
		Nodes:    make([]NodeResources, cfg.Nodes),
		Registry: network.NewRegistry(cfg.Nodes),
		cfg:      cfg,
		stopper:  syncutil.NewStopper(),
	}

	var transport consensus.Transport
	switch cfg.Transport {
	case common.TransportLocal:
		nw.local = consensus.NewLocalNetwork()
		transport = nw.local
	default:
		transport = httpapi.NewClient(cfg.Host, cfg.BasePort, cfg.RequestTimeout)
	}
	for i := 0; i < cfg.Nodes; i++ {
		name := fmt.Sprintf("Node-%d", i)
		log := logger.Named(fmt.Sprintf("node-%d", i))
		node, err := BuildNode(cfg, i, initial[i], seed, transport, nw.Registry.AllNodesReady, nw.stopper.RunWorker, log)
		if err != nil {
			nw.closeNodes(i)
			return nil, err
		}

		res := NodeResources{ID: i, Name: name, Node: node}
		if nw.local != nil {
			nw.local.Register(i, node.Deliver)
		} else {
			addr := network.Address(cfg.Host, cfg.BasePort, i)
			res.Server = httpapi.NewServer(addr, node, nw.Registry.SetNodeIsReady, log)
			res.URL = network.URL(cfg.Host, cfg.BasePort, i)
		}
		nw.Nodes[i] = res
	}

	if nw.local != nil {
		for i := range nw.Nodes {
			nw.Registry.SetNodeIsReady(i)
		}
	} else if err := BindHTTPServers(nw.Nodes, nw.stopper); err != nil {
		nw.Shutdown()
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ReadyTimeout)
	defer cancel()
	logger.Infof("Waiting for %d nodes to be ready", cfg.Nodes)
	if err := nw.Registry.Wait(ctx); err != nil {
		logger.Errorf("Timeout waiting for nodes: %v", err)
		nw.Shutdown()
		return nil, err
	}
	logger.Infof("All nodes are ready")
	return nw, nil
}

// BuildNode creates node id of cfg: a FaultyNode for configured faulty ids, otherwise an
// HonestNode with its own store and a coin seeded from the master seed. spawn runs the
// engine loop; nil means a plain goroutine.
func BuildNode(cfg common.Config, id int, initial consensus.Value, seed int64, transport consensus.Transport, peersReady func() bool, spawn func(func()), log *zap.SugaredLogger) (consensus.Node, error) {
	name := fmt.Sprintf("Node-%d", id)
	if cfg.IsFaulty(id) {
		logger.Infof("%s initialized as faulty", name)
		return consensus.NewFaultyNode(id, log), nil
	}
	store, err := consensus.NewStore(cfg.Store, cfg.DedupVotes)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	node, err := consensus.NewHonestNode(consensus.NodeConfig{
		ID:          id,
		Params:      consensus.Params{N: cfg.Nodes, F: cfg.Faulty, PollInterval: cfg.PollInterval},
		Initial:     initial,
		Store:       store,
		Transport:   transport,
		Coin:        consensus.NewRandCoin(common.DeriveSeed(seed, id)),
		Logger:      log,
		SendTimeout: cfg.RequestTimeout,
		PeersReady:  peersReady,
		Spawn:       spawn,
	})
	if err != nil {
		store.Close()
		return nil, err
	}
	logger.Infof("%s initialized with x=%s (%s store)", name, initial, cfg.Store)
	return node, nil
}

// InitialValues parses the configured estimates or draws random binary ones from seed.
func InitialValues(cfg common.Config, seed int64) ([]consensus.Value, error) {
	values := make([]consensus.Value, cfg.Nodes)
	if len(cfg.InitialValues) == 0 {
		rng := rand.New(rand.NewSource(seed))
		for i := range values {
			values[i] = consensus.Value(rng.Intn(2))
		}
		return values, nil
	}
	for i, s := range cfg.InitialValues {
		v, err := consensus.ParseValue(s)
		if err != nil {
			return nil, fmt.Errorf("initial value of node %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// closeNodes releases the stores of the first n nodes after a failed setup.
func (n *Network) closeNodes(count int) {
	for _, res := range n.Nodes[:count] {
		if res.Node != nil {
			res.Node.Store().Close()
		}
	}
}

// Node returns the node with the given id.
func (n *Network) Node(id int) consensus.Node {
	return n.Nodes[id].Node
}

// StartAll starts the engine of every honest node. Faulty nodes ignore the request.
func (n *Network) StartAll() error {
	for _, res := range n.Nodes {
		if err := res.Node.Start(); err != nil {
			return fmt.Errorf("start %s: %w", res.Name, err)
		}
	}
	logger.Infof("Consensus started on %d nodes", len(n.Nodes))
	return nil
}

// Finished reports whether every honest node decided or was killed.
func (n *Network) Finished() bool {
	for _, res := range n.Nodes {
		if res.Node.Faulty() {
			continue
		}
		st := res.Node.State()
		if !st.IsDecided() && !st.Killed {
			return false
		}
	}
	return true
}

// AwaitDecisions polls node states until Finished or ctx ends.
func (n *Network) AwaitDecisions(ctx context.Context) error {
	interval := n.cfg.PollInterval
	if interval <= 0 {
		interval = consensus.DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if n.Finished() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for decisions: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// StopAll kills every node.
func (n *Network) StopAll() {
	for _, res := range n.Nodes {
		res.Node.Stop()
	}
}
