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

// go/src/consensus/quorum.go
package consensus

import "time"

// NewQuorumVerifier creates a new quorum verifier instance
// totalNodes: Total number of nodes in the network
// faultyNodes: Number of faulty nodes to tolerate
func NewQuorumVerifier(totalNodes, faultyNodes int) *QuorumVerifier {
	return &QuorumVerifier{
		totalNodes:  totalNodes,
		faultyNodes: faultyNodes,
	}
}

// VerifySafety reports whether the classical Ben-Or precondition N > 3F holds.
// The engine runs either way; callers decide whether to warn or refuse.
func (qv *QuorumVerifier) VerifySafety() bool {
	return qv.totalNodes > 3*qv.faultyNodes
}

// QuorumSize is the number of votes a phase waits for: N - F.
func (qv *QuorumVerifier) QuorumSize() int {
	return QuorumSize(qv.totalNodes, qv.faultyNodes)
}

// QuorumSize returns N - F, never less than 1.
func QuorumSize(n, f int) int {
	if n-f < 1 {
		return 1
	}
	return n - f
}

// Majority returns floor(N/2) + 1, the count an R-phase value needs to be proposed.
func Majority(n int) int {
	return n/2 + 1
}

// DecideThreshold returns F + 1, the count a P-phase value needs to be decided.
func DecideThreshold(f int) int {
	return f + 1
}

// countValues tallies the binary values among votes; Unknown is ignored.
func countValues(votes []Vote) (zeros, ones int) {
	for _, v := range votes {
		switch v.Value {
		case Zero:
			zeros++
		case One:
			ones++
		}
	}
	return zeros, ones
}

// ProposeFromR computes the P-phase proposal from the R-phase votes of a round.
func ProposeFromR(votes []Vote, n int) Value {
	c0, c1 := countValues(votes)
	majority := Majority(n)
	switch {
	case c0 >= majority:
		return Zero
	case c1 >= majority:
		return One
	default:
		return Unknown
	}
}

// Outcome is the result of a P-phase tally.
type Outcome int

const (
	OutcomeDecide Outcome = iota // F+1 identical binary votes: decide
	OutcomeAdopt                 // some binary vote seen: adopt it for the next round
	OutcomeFlip                  // every vote was Unknown: flip a coin
)

// DecideFromP applies the P-phase rule. For OutcomeFlip the returned value is Unknown
// and the caller is responsible for flipping. 0 is preferred over 1 when adopting.
func DecideFromP(votes []Vote, f int) (Value, Outcome) {
	d0, d1 := countValues(votes)
	threshold := DecideThreshold(f)
	switch {
	case d0 >= threshold:
		return Zero, OutcomeDecide
	case d1 >= threshold:
		return One, OutcomeDecide
	case d0 > 0:
		return Zero, OutcomeAdopt
	case d1 > 0:
		return One, OutcomeAdopt
	default:
		return Unknown, OutcomeFlip
	}
}

// NewQuorumWaiter creates a waiter polling store every interval until quorum or kill.
func NewQuorumWaiter(store Store, state *NodeState, interval time.Duration) *QuorumWaiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &QuorumWaiter{store: store, interval: interval, state: state}
}

// Await blocks until the store holds at least quorumSize votes for (phase, round)
// or the node is killed. On kill it returns whatever is stored and ok == false.
// Besides the fixed-interval recheck it also wakes on every append and on kill.
func (w *QuorumWaiter) Await(phase Phase, round, quorumSize int) (votes []Vote, ok bool) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		if w.state.Killed() {
			return w.store.VotesFor(phase, round), false
		}
		// Take the wake channel before reading so an append in between is not missed.
		changed := w.store.Changed()
		votes = w.store.VotesFor(phase, round)
		if len(votes) >= quorumSize {
			return votes, true
		}
		select {
		case <-changed:
		case <-ticker.C:
		case <-w.state.Done():
		}
	}
}
