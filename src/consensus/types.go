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

// go/src/consensus/types.go
package consensus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Value is a binary estimate or vote value, or Unknown ("?") when a node has no preference.
type Value int8

// Phase identifies one of the two message classes of a round.
// R is the round-value exchange, P is the post-round exchange.
type Phase string

// Vote is a message exchanged between nodes. Votes are never mutated after creation.
type Vote struct {
	SenderID int   `json:"senderId"` // Originating node identifier, 0..N-1
	Phase    Phase `json:"phase"`    // R or P
	Round    int   `json:"round"`    // Round the vote belongs to
	Value    Value `json:"value"`    // 0, 1 or "?"
}

// StateSnapshot is the externally visible consensus status of a node.
// Nil fields are reported as null and only occur for faulty nodes.
type StateSnapshot struct {
	Killed  bool   `json:"killed"`
	X       *Value `json:"x"`
	Decided *bool  `json:"decided"`
	K       *int   `json:"k"`
}

// NodeState is owned by a single honest node. x, decided and k are written by the
// engine task only; killed is written by the stop entry point. Every field is atomic so
// status readers never lock.
type NodeState struct {
	killed  atomic.Bool
	x       atomic.Int32
	decided atomic.Bool
	k       atomic.Int64

	killOnce sync.Once
	done     chan struct{} // closed when killed becomes true
}

// Store is the concurrency-safe buffer of received votes keyed by (phase, round).
type Store interface {
	// Record appends a vote. It reports false when the vote was dropped as a duplicate.
	Record(v Vote) bool
	// VotesFor returns a snapshot of the votes stored for the key without blocking.
	VotesFor(phase Phase, round int) []Vote
	// Changed returns a channel that is closed on the next successful Record.
	Changed() <-chan struct{}
	// Keys lists every (phase, round) key seen so far, in first-seen order.
	Keys() []Key
	// Len returns the number of stored votes across all keys.
	Len() int
	Close() error
}

// Key addresses one sequence of votes in a Store.
type Key struct {
	Phase Phase `json:"phase"`
	Round int   `json:"round"`
}

// Transport delivers a single vote to a single target node.
type Transport interface {
	Send(ctx context.Context, target int, v Vote) error
}

// Coin is the random-bit source used by the all-unknown fallback.
type Coin interface {
	Flip() Value
}

// Params are the fixed protocol parameters of one run.
type Params struct {
	N            int           // Number of participants
	F            int           // Number of tolerated faulty participants
	PollInterval time.Duration // Re-check interval of the quorum waiter
}

// Node is the common surface of honest and faulty participants.
type Node interface {
	ID() int
	Faulty() bool
	State() StateSnapshot
	Deliver(v Vote) error
	Start() error
	Stop()
	Feed() *StateFeed
	Store() Store
	Metrics() *Metrics
}

// HonestNode runs the consensus engine.
type HonestNode struct {
	id      int
	engine  *Engine
	store   Store
	state   *NodeState
	feed    *StateFeed
	metrics *Metrics
	log     *zap.SugaredLogger
	spawn   func(func())

	started atomic.Bool
	stopped chan struct{} // closed when the engine loop returns
}

// FaultyNode never runs the engine; it only answers status, state and stop.
type FaultyNode struct {
	id      int
	killed  atomic.Bool
	store   Store
	feed    *StateFeed
	metrics *Metrics
	log     *zap.SugaredLogger
}

// Engine drives the two-phase rounds of one honest node.
type Engine struct {
	id     int
	params Params

	store   Store
	waiter  *QuorumWaiter
	bc      *Broadcaster
	coin    Coin
	state   *NodeState
	feed    *StateFeed
	metrics *Metrics
	log     *zap.SugaredLogger

	peersReady func() bool // Injected readiness probe, nil means ready
}

// QuorumWaiter blocks until a store holds a quorum for a key or the node is killed.
type QuorumWaiter struct {
	store    Store
	interval time.Duration
	state    *NodeState
}

// Broadcaster fans a vote out to every participant, including the sender itself.
type Broadcaster struct {
	id        int
	n         int
	transport Transport
	timeout   time.Duration
	metrics   *Metrics
	log       *zap.SugaredLogger
}

// QuorumVerifier checks the arithmetic preconditions of a Ben-Or configuration.
type QuorumVerifier struct {
	totalNodes  int // Total number of nodes in the network
	faultyNodes int // Number of faulty nodes to tolerate
}
