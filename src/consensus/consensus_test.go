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

// go/src/consensus/consensus_test.go
package consensus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func nopLogger() *zap.SugaredLogger { return zap.NewNop().Sugar() }

// countingTransport records every send before handing it to the local network.
type countingTransport struct {
	inner Transport
	mu    sync.Mutex
	sent  []Vote
}

func (ct *countingTransport) Send(ctx context.Context, target int, v Vote) error {
	ct.mu.Lock()
	ct.sent = append(ct.sent, v)
	ct.mu.Unlock()
	return ct.inner.Send(ctx, target, v)
}

func (ct *countingTransport) sentVotes() []Vote {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	out := make([]Vote, len(ct.sent))
	copy(out, ct.sent)
	return out
}

func (ct *countingTransport) count() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.sent)
}

type testCluster struct {
	net   *LocalNetwork
	nodes []Node
	sends []*countingTransport
}

// newTestCluster builds n nodes on a local network; ids in faulty become FaultyNodes.
func newTestCluster(t *testing.T, n, f int, initial []Value, faulty map[int]bool, seed int64) *testCluster {
	t.Helper()
	tc := &testCluster{net: NewLocalNetwork()}
	for id := 0; id < n; id++ {
		ct := &countingTransport{inner: tc.net}
		tc.sends = append(tc.sends, ct)
		var node Node
		if faulty[id] {
			node = NewFaultyNode(id, nil)
		} else {
			hn, err := NewHonestNode(NodeConfig{
				ID:        id,
				Params:    Params{N: n, F: f, PollInterval: 5 * time.Millisecond},
				Initial:   initial[id],
				Transport: ct,
				Coin:      NewRandCoin(seed + int64(id)),
			})
			require.NoError(t, err)
			node = hn
		}
		tc.net.Register(id, node.Deliver)
		tc.nodes = append(tc.nodes, node)
	}
	t.Cleanup(tc.stop)
	return tc
}

func (tc *testCluster) start(t *testing.T) {
	for _, n := range tc.nodes {
		require.NoError(t, n.Start())
	}
}

func (tc *testCluster) stop() {
	for _, n := range tc.nodes {
		n.Stop()
	}
}

func (tc *testCluster) honest() []*HonestNode {
	var out []*HonestNode
	for _, n := range tc.nodes {
		if hn, ok := n.(*HonestNode); ok {
			out = append(out, hn)
		}
	}
	return out
}

func (tc *testCluster) awaitDecided(t *testing.T, timeout time.Duration) {
	t.Helper()
	deadline := time.After(timeout)
	for _, hn := range tc.honest() {
		select {
		case <-hn.Stopped():
		case <-deadline:
			t.Fatalf("Timeout waiting for node %d to decide (state %+v)", hn.ID(), hn.State())
		}
		require.True(t, hn.State().IsDecided(), "node %d stopped without deciding", hn.ID())
	}
}

func TestSafetyScenarioDecidesAtRoundZero(t *testing.T) {
	tc := newTestCluster(t, 4, 1, []Value{One, One, One, One}, map[int]bool{3: true}, 1)
	tc.start(t)
	tc.awaitDecided(t, 5*time.Second)

	for _, hn := range tc.honest() {
		s := hn.State()
		assert.Equal(t, One, *s.X, "node %d", hn.ID())
		assert.Equal(t, 0, *s.K, "node %d", hn.ID())
		assert.False(t, s.Killed)
	}

	faulty := tc.nodes[3].State()
	assert.Nil(t, faulty.X)
	assert.Nil(t, faulty.Decided)
	assert.Nil(t, faulty.K)
}

func TestUnanimousZeroWithoutFaults(t *testing.T) {
	tc := newTestCluster(t, 3, 0, []Value{Zero, Zero, Zero}, nil, 1)
	tc.start(t)
	tc.awaitDecided(t, 5*time.Second)
	for _, hn := range tc.honest() {
		assert.Equal(t, Zero, *hn.State().X)
	}
}

func TestMixedValuesReachAgreement(t *testing.T) {
	for seed := int64(0); seed < 5; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			tc := newTestCluster(t, 4, 1, []Value{Zero, One, One, Zero}, map[int]bool{3: true}, seed*100)
			tc.start(t)
			tc.awaitDecided(t, 20*time.Second)

			decided := map[Value]bool{}
			for _, hn := range tc.honest() {
				decided[*hn.State().X] = true
			}
			assert.Len(t, decided, 1, "honest nodes disagree")
		})
	}
}

func TestDecisionIsIrreversible(t *testing.T) {
	tc := newTestCluster(t, 4, 1, []Value{One, One, One, One}, map[int]bool{3: true}, 1)
	tc.start(t)
	tc.awaitDecided(t, 5*time.Second)

	hn := tc.honest()[0]
	sentBefore := tc.sends[0].count()
	for r := 0; r < 3; r++ {
		for s := 0; s < 4; s++ {
			require.NoError(t, hn.Deliver(Vote{SenderID: s, Phase: PhaseP, Round: r, Value: Zero}))
		}
	}
	time.Sleep(50 * time.Millisecond)

	s := hn.State()
	assert.Equal(t, One, *s.X)
	assert.True(t, *s.Decided)
	assert.Equal(t, 0, *s.K)
	assert.Equal(t, sentBefore, tc.sends[0].count(), "decided node kept broadcasting")
}

func TestStartIsIdempotent(t *testing.T) {
	tc := newTestCluster(t, 1, 0, []Value{One}, nil, 1)
	hn := tc.honest()[0]
	for i := 0; i < 5; i++ {
		require.NoError(t, hn.Start())
	}
	tc.awaitDecided(t, 5*time.Second)
	// One R and one P broadcast to the single node.
	assert.Equal(t, 2, tc.sends[0].count())
	assert.True(t, hn.Started())
}

func TestStopWhileWaitingForQuorum(t *testing.T) {
	// Only node 0 runs; it can never reach a quorum of 3.
	tc := newTestCluster(t, 4, 1, []Value{One, One, One, One}, nil, 1)
	hn := tc.honest()[0]
	require.NoError(t, hn.Start())

	require.Eventually(t, func() bool { return tc.sends[0].count() == 4 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	hn.Stop()
	select {
	case <-hn.Stopped():
	case <-time.After(time.Second):
		t.Fatal("Engine did not exit after stop")
	}

	s := hn.State()
	assert.True(t, s.Killed)
	assert.False(t, *s.Decided)
	assert.Equal(t, 0, *s.K)
	assert.Equal(t, 4, tc.sends[0].count(), "no broadcast after stop")
	assert.ErrorIs(t, hn.Start(), ErrKilled)
}

func TestStopBeforePeersReady(t *testing.T) {
	var checks atomic.Int32
	hn, err := NewHonestNode(NodeConfig{
		ID:         0,
		Params:     Params{N: 1, F: 0},
		Initial:    Zero,
		Transport:  NewLocalNetwork(),
		PeersReady: func() bool { checks.Add(1); return false },
	})
	require.NoError(t, err)
	require.NoError(t, hn.Start())
	require.Eventually(t, func() bool { return checks.Load() > 0 }, time.Second, 5*time.Millisecond)

	hn.Stop()
	select {
	case <-hn.Stopped():
	case <-time.After(time.Second):
		t.Fatal("Engine did not exit while waiting for peers")
	}
	assert.Equal(t, 0, *hn.State().K)
}

func TestAllUnknownFallsBackToCoin(t *testing.T) {
	coin := NewScriptedCoin(One)
	state := NewNodeState(Zero)
	e := NewEngine(EngineConfig{
		ID:        0,
		Params:    Params{N: 4, F: 1},
		Store:     NewMemoryStore(false),
		Transport: NewLocalNetwork(),
		Coin:      coin,
		State:     state,
	})

	decided := e.applyP(0, votesOf(PhaseP, 0, Unknown, Unknown, Unknown))
	assert.False(t, decided)
	assert.False(t, state.Decided())
	assert.Equal(t, One, state.X())
	assert.Equal(t, 1, coin.Flips())
}

func TestPartialAdoptionDoesNotDecide(t *testing.T) {
	coin := NewScriptedCoin(One)
	state := NewNodeState(One)
	e := NewEngine(EngineConfig{
		ID:        0,
		Params:    Params{N: 7, F: 2},
		Store:     NewMemoryStore(false),
		Transport: NewLocalNetwork(),
		Coin:      coin,
		State:     state,
	})

	decided := e.applyP(4, votesOf(PhaseP, 4, One, Zero, Unknown, Unknown, Unknown))
	assert.False(t, decided)
	assert.False(t, state.Decided())
	assert.Equal(t, Zero, state.X())
	assert.Equal(t, 0, coin.Flips())
}

func TestRoundsAdvanceByOne(t *testing.T) {
	// Split initial values force a coin round; every coin lands on 1, so the run
	// decides 1 at round 1.
	initial := []Value{Zero, One, Unknown, Unknown}
	tc := newScriptedCluster(t, 4, 1, initial, 3)

	final := make(chan StateSnapshot, 1)
	ch, cancel := tc.honest()[0].Feed().Subscribe()
	t.Cleanup(cancel)
	go func() {
		for snap := range ch {
			if snap.IsDecided() {
				final <- snap
				return
			}
		}
	}()

	tc.start(t)
	tc.awaitDecided(t, 10*time.Second)

	for _, hn := range tc.honest() {
		s := hn.State()
		assert.Equal(t, One, *s.X)
		assert.Equal(t, 1, *s.K)

		var rounds []int
		for _, v := range tc.sends[hn.ID()].sentVotes() {
			if v.Phase == PhaseR && (len(rounds) == 0 || rounds[len(rounds)-1] != v.Round) {
				rounds = append(rounds, v.Round)
			}
		}
		assert.Equal(t, []int{0, 1}, rounds, "node %d", hn.ID())
	}

	select {
	case snap := <-final:
		assert.Equal(t, 1, *snap.K)
	case <-time.After(time.Second):
		t.Fatal("Decided snapshot was not published")
	}
}

// newScriptedCluster is newTestCluster with every coin landing on 1 and a single faulty node.
func newScriptedCluster(t *testing.T, n, f int, initial []Value, faultyID int) *testCluster {
	t.Helper()
	tc := &testCluster{net: NewLocalNetwork()}
	for id := 0; id < n; id++ {
		ct := &countingTransport{inner: tc.net}
		tc.sends = append(tc.sends, ct)
		var node Node
		if id == faultyID {
			node = NewFaultyNode(id, nil)
		} else {
			hn, err := NewHonestNode(NodeConfig{
				ID:        id,
				Params:    Params{N: n, F: f, PollInterval: 5 * time.Millisecond},
				Initial:   initial[id],
				Transport: ct,
				Coin:      NewScriptedCoin(One),
			})
			require.NoError(t, err)
			node = hn
		}
		tc.net.Register(id, node.Deliver)
		tc.nodes = append(tc.nodes, node)
	}
	t.Cleanup(tc.stop)
	return tc
}

func TestUnreachablePeerDoesNotFailBroadcast(t *testing.T) {
	ln := NewLocalNetwork()
	store := NewMemoryStore(false)
	var healed atomic.Int32
	ln.Register(0, func(v Vote) error { store.Record(v); return nil })
	ln.Register(1, func(v Vote) error { return fmt.Errorf("boom") })
	ln.Register(2, func(v Vote) error { healed.Add(1); return nil })
	ln.Partition(2, true)
	// node 3 never registers

	m := NewMetrics(0)
	bc := NewBroadcaster(0, 4, ln, time.Second, m, nopLogger())
	assert.Equal(t, 1, bc.Broadcast(context.Background(), PhaseR, 0, One))
	assert.Len(t, store.VotesFor(PhaseR, 0), 1)
	assert.Zero(t, healed.Load(), "partitioned node received a vote")

	ln.Partition(2, false)
	assert.Equal(t, 2, bc.Broadcast(context.Background(), PhaseP, 0, One))
	assert.Equal(t, int32(1), healed.Load())
	assert.Len(t, store.VotesFor(PhaseP, 0), 1)
}

func TestStartRunsEngineThroughSpawn(t *testing.T) {
	var (
		spawned atomic.Int32
		wg      sync.WaitGroup
	)
	ln := NewLocalNetwork()
	hn, err := NewHonestNode(NodeConfig{
		ID:        0,
		Params:    Params{N: 1, F: 0, PollInterval: 5 * time.Millisecond},
		Initial:   Zero,
		Transport: ln,
		Coin:      NewRandCoin(1),
		Spawn: func(f func()) {
			spawned.Add(1)
			wg.Add(1)
			go func() {
				defer wg.Done()
				f()
			}()
		},
	})
	require.NoError(t, err)
	ln.Register(0, hn.Deliver)
	t.Cleanup(hn.Stop)

	require.NoError(t, hn.Start())
	require.NoError(t, hn.Start())
	wg.Wait()

	assert.Equal(t, int32(1), spawned.Load())
	assert.True(t, hn.State().IsDecided())
	assert.Equal(t, Zero, *hn.State().X)
}

func TestFaultyNodeSurface(t *testing.T) {
	fn := NewFaultyNode(2, nil)
	assert.True(t, fn.Faulty())
	assert.NoError(t, fn.Start())
	assert.ErrorIs(t, fn.Deliver(Vote{Phase: PhaseR}), ErrFaultyNode)
	assert.False(t, fn.State().Killed)
	fn.Stop()
	assert.True(t, fn.State().Killed)
	assert.Nil(t, fn.State().X)
}

func TestHonestNodeRejectsMalformedVote(t *testing.T) {
	hn, err := NewHonestNode(NodeConfig{ID: 0, Params: Params{N: 2}, Initial: One, Transport: NewLocalNetwork()})
	require.NoError(t, err)

	assert.ErrorIs(t, hn.Deliver(Vote{SenderID: 0, Phase: "Q", Round: 0, Value: One}), ErrInvalidPhase)
	assert.ErrorIs(t, hn.Deliver(Vote{SenderID: 0, Phase: PhaseR, Round: -2, Value: One}), ErrInvalidRound)
	assert.Equal(t, 0, hn.Store().Len())

	require.NoError(t, hn.Deliver(Vote{SenderID: 1, Phase: PhaseR, Round: 0, Value: One}))
	assert.Equal(t, 1, hn.Store().Len())
}

func TestNewHonestNodeValidation(t *testing.T) {
	_, err := NewHonestNode(NodeConfig{ID: 0, Params: Params{N: 1}, Initial: One})
	assert.Error(t, err, "missing transport")
	_, err = NewHonestNode(NodeConfig{ID: 3, Params: Params{N: 3}, Initial: One, Transport: NewLocalNetwork()})
	assert.Error(t, err, "id out of range")
	_, err = NewHonestNode(NodeConfig{ID: 0, Params: Params{N: 3}, Initial: Value(5), Transport: NewLocalNetwork()})
	assert.ErrorIs(t, err, ErrInvalidValue)
}
