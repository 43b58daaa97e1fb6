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

// go/src/consensus/node.go
package consensus

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// NodeConfig describes one participant.
type NodeConfig struct {
	ID          int
	Params      Params
	Initial     Value
	Store       Store // Defaults to an in-memory store without deduplication
	Transport   Transport
	Coin        Coin
	Logger      *zap.SugaredLogger
	SendTimeout time.Duration
	PeersReady  func() bool
	Spawn       func(func()) // Runs the engine loop; defaults to a plain goroutine
}

func (cfg *NodeConfig) defaults() {
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore(false)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Spawn == nil {
		cfg.Spawn = func(f func()) { go f() }
	}
}

// NewHonestNode creates a node that runs the engine once started.
func NewHonestNode(cfg NodeConfig) (*HonestNode, error) {
	if cfg.Transport == nil {
		return nil, fmt.Errorf("node %d: transport is required", cfg.ID)
	}
	if cfg.ID < 0 || cfg.ID >= cfg.Params.N {
		return nil, fmt.Errorf("node %d: id outside [0, %d)", cfg.ID, cfg.Params.N)
	}
	if !cfg.Initial.Valid() {
		return nil, fmt.Errorf("node %d: %w", cfg.ID, ErrInvalidValue)
	}
	cfg.defaults()

	state := NewNodeState(cfg.Initial)
	feed := NewStateFeed()
	metrics := NewMetrics(cfg.ID)
	engine := NewEngine(EngineConfig{
		ID:          cfg.ID,
		Params:      cfg.Params,
		Store:       cfg.Store,
		Transport:   cfg.Transport,
		Coin:        cfg.Coin,
		State:       state,
		Feed:        feed,
		Metrics:     metrics,
		Logger:      cfg.Logger,
		SendTimeout: cfg.SendTimeout,
		PeersReady:  cfg.PeersReady,
	})
	return &HonestNode{
		id:      cfg.ID,
		engine:  engine,
		store:   cfg.Store,
		state:   state,
		feed:    feed,
		metrics: metrics,
		log:     cfg.Logger,
		spawn:   cfg.Spawn,
		stopped: make(chan struct{}),
	}, nil
}

// ID returns the node identifier.
func (n *HonestNode) ID() int { return n.id }

// Faulty is always false for an honest node.
func (n *HonestNode) Faulty() bool { return false }

// State returns the current snapshot.
func (n *HonestNode) State() StateSnapshot { return n.state.Snapshot() }

// Deliver validates v and records it in the message store. Votes keep being accepted
// after the node decided or was killed; they simply have no further effect.
func (n *HonestNode) Deliver(v Vote) error {
	if err := v.Validate(n.engine.params.N); err != nil {
		n.metrics.VotesRejected.Inc()
		return err
	}
	if !n.store.Record(v) {
		n.metrics.VotesDuplicate.Inc()
		n.log.Debugf("Node %d dropped duplicate %s vote from %d for round %d", n.id, v.Phase, v.SenderID, v.Round)
		return nil
	}
	n.metrics.VotesReceived.WithLabelValues(string(v.Phase)).Inc()
	return nil
}

// Start launches the engine loop exactly once. Repeated calls are no-ops.
func (n *HonestNode) Start() error {
	if n.state.Killed() {
		return ErrKilled
	}
	if !n.started.CompareAndSwap(false, true) {
		n.log.Debugf("Node %d already started", n.id)
		return nil
	}
	n.spawn(func() {
		defer close(n.stopped)
		n.engine.Run()
	})
	return nil
}

// Started reports whether Start launched the engine.
func (n *HonestNode) Started() bool { return n.started.Load() }

// Stopped is closed when the engine loop has returned. It never closes if the node was
// never started.
func (n *HonestNode) Stopped() <-chan struct{} { return n.stopped }

// Stop sets killed; the engine exits at its next check point.
func (n *HonestNode) Stop() {
	n.state.Kill()
	n.feed.Publish(n.state.Snapshot())
	n.log.Infof("Node %d killed", n.id)
}

// Feed returns the state change feed.
func (n *HonestNode) Feed() *StateFeed { return n.feed }

// Store returns the message store.
func (n *HonestNode) Store() Store { return n.store }

// Metrics returns the node's collectors.
func (n *HonestNode) Metrics() *Metrics { return n.metrics }

// NewFaultyNode creates a node that never participates.
func NewFaultyNode(id int, log *zap.SugaredLogger) *FaultyNode {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &FaultyNode{
		id:      id,
		store:   NewMemoryStore(false),
		feed:    NewStateFeed(),
		metrics: NewMetrics(id),
		log:     log,
	}
}

// ID returns the node identifier.
func (n *FaultyNode) ID() int { return n.id }

// Faulty is always true.
func (n *FaultyNode) Faulty() bool { return true }

// State reports only killed; x, decided and k are absent.
func (n *FaultyNode) State() StateSnapshot { return FaultySnapshot(n.killed.Load()) }

// Deliver refuses every vote.
func (n *FaultyNode) Deliver(Vote) error { return ErrFaultyNode }

// Start does nothing: a faulty node never runs the engine.
func (n *FaultyNode) Start() error { return nil }

// Stop sets killed.
func (n *FaultyNode) Stop() {
	n.killed.Store(true)
	n.feed.Publish(n.State())
	n.log.Infof("Faulty node %d killed", n.id)
}

// Feed returns the state change feed.
func (n *FaultyNode) Feed() *StateFeed { return n.feed }

// Store returns an always-empty store.
func (n *FaultyNode) Store() Store { return n.store }

// Metrics returns the node's collectors.
func (n *FaultyNode) Metrics() *Metrics { return n.metrics }
