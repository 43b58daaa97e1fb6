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

// go/src/consensus/consensus.go
package consensus

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Workflow: R-broadcast → R-wait → R-tally → P-broadcast → P-wait → P-tally → next round

// EngineConfig carries the collaborators of an engine.
type EngineConfig struct {
	ID          int
	Params      Params
	Initial     Value
	Store       Store
	Transport   Transport
	Coin        Coin
	State       *NodeState
	Feed        *StateFeed
	Metrics     *Metrics
	Logger      *zap.SugaredLogger
	SendTimeout time.Duration
	PeersReady  func() bool
}

// NewEngine wires an engine from its collaborators.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Params.PollInterval <= 0 {
		cfg.Params.PollInterval = DefaultPollInterval
	}
	if cfg.State == nil {
		cfg.State = NewNodeState(cfg.Initial)
	}
	if cfg.Coin == nil {
		cfg.Coin = NewRandCoin(time.Now().UnixNano())
	}
	if cfg.Feed == nil {
		cfg.Feed = NewStateFeed()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = NewMetrics(cfg.ID)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Engine{
		id:         cfg.ID,
		params:     cfg.Params,
		store:      cfg.Store,
		waiter:     NewQuorumWaiter(cfg.Store, cfg.State, cfg.Params.PollInterval),
		bc:         NewBroadcaster(cfg.ID, cfg.Params.N, cfg.Transport, cfg.SendTimeout, cfg.Metrics, cfg.Logger),
		coin:       cfg.Coin,
		state:      cfg.State,
		feed:       cfg.Feed,
		metrics:    cfg.Metrics,
		log:        cfg.Logger,
		peersReady: cfg.PeersReady,
	}
}

// Run drives rounds until the node decides or is killed. It must run on a single goroutine.
func (e *Engine) Run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-e.state.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	if !e.waitForPeers() {
		e.log.Infof("Node %d killed before consensus started", e.id)
		return
	}

	quorum := QuorumSize(e.params.N, e.params.F)
	e.log.Infof("Node %d starting consensus with x=%s (N=%d, F=%d, quorum=%d)",
		e.id, e.state.X(), e.params.N, e.params.F, quorum)

	for k := e.state.Round(); ; k++ {
		if e.state.Killed() {
			e.log.Infof("Node %d killed at round %d", e.id, k)
			return
		}
		e.state.setRound(k)
		e.metrics.Round.Set(float64(k))
		e.publish()

		// R phase
		e.bc.Broadcast(ctx, PhaseR, k, e.state.X())
		rVotes, ok := e.await(PhaseR, k, quorum)
		if !ok {
			e.log.Infof("Node %d killed while waiting for R votes of round %d (%d collected)", e.id, k, len(rVotes))
			return
		}
		proposal := ProposeFromR(rVotes, e.params.N)
		e.log.Debugf("Node %d round %d R tally over %d votes proposes %s", e.id, k, len(rVotes), proposal)

		// P phase
		e.bc.Broadcast(ctx, PhaseP, k, proposal)
		pVotes, ok := e.await(PhaseP, k, quorum)
		if !ok {
			e.log.Infof("Node %d killed while waiting for P votes of round %d (%d collected)", e.id, k, len(pVotes))
			return
		}

		if e.applyP(k, pVotes) {
			return
		}
		e.metrics.RoundsTotal.Inc()
	}
}

// applyP updates the state from the P votes of round k and reports whether the node decided.
func (e *Engine) applyP(k int, pVotes []Vote) bool {
	value, outcome := DecideFromP(pVotes, e.params.F)
	switch outcome {
	case OutcomeDecide:
		e.state.decide(value)
		e.metrics.RoundsTotal.Inc()
		e.metrics.Decisions.WithLabelValues(value.String()).Inc()
		e.log.Infof("Node %d decided %s at round %d", e.id, value, k)
		e.publish()
		return true
	case OutcomeAdopt:
		e.state.setX(value)
		e.log.Debugf("Node %d adopts %s after round %d", e.id, value, k)
	case OutcomeFlip:
		flipped := e.coin.Flip()
		e.state.setX(flipped)
		e.metrics.CoinFlips.Inc()
		e.log.Infof("Node %d saw only unknown P votes in round %d, coin gave %s", e.id, k, flipped)
	}
	e.publish()
	return false
}

func (e *Engine) await(phase Phase, round, quorum int) ([]Vote, bool) {
	start := time.Now()
	votes, ok := e.waiter.Await(phase, round, quorum)
	e.metrics.QuorumWait.WithLabelValues(string(phase)).Observe(time.Since(start).Seconds())
	if !ok || e.state.Killed() {
		return votes, false
	}
	return votes, true
}

// waitForPeers polls the injected readiness probe until it succeeds or the node is killed.
func (e *Engine) waitForPeers() bool {
	if e.peersReady == nil {
		return !e.state.Killed()
	}
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()
	for {
		if e.state.Killed() {
			return false
		}
		if e.peersReady() {
			return true
		}
		select {
		case <-ticker.C:
		case <-e.state.Done():
		}
	}
}

func (e *Engine) publish() {
	e.feed.Publish(e.state.Snapshot())
}
