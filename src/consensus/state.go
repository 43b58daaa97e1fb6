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

// go/src/consensus/state.go
package consensus

import "sync"

// NewNodeState creates the state of an honest node at round 0 with its initial estimate.
func NewNodeState(initial Value) *NodeState {
	s := &NodeState{done: make(chan struct{})}
	s.x.Store(int32(initial))
	return s
}

// X returns the current estimate.
func (s *NodeState) X() Value { return Value(s.x.Load()) }

// Decided reports whether finality has been reached.
func (s *NodeState) Decided() bool { return s.decided.Load() }

// Round returns the current round number.
func (s *NodeState) Round() int { return int(s.k.Load()) }

// Killed reports whether cancellation has been requested.
func (s *NodeState) Killed() bool { return s.killed.Load() }

// Done is closed once the node has been killed.
func (s *NodeState) Done() <-chan struct{} { return s.done }

// Kill sets killed. It is irreversible and safe to call repeatedly.
func (s *NodeState) Kill() {
	s.killOnce.Do(func() {
		s.killed.Store(true)
		close(s.done)
	})
}

// setX adopts a new estimate. Ignored once decided.
func (s *NodeState) setX(v Value) {
	if s.decided.Load() {
		return
	}
	s.x.Store(int32(v))
}

// decide fixes the estimate permanently.
func (s *NodeState) decide(v Value) {
	if s.decided.Load() {
		return
	}
	s.x.Store(int32(v))
	s.decided.Store(true)
}

func (s *NodeState) setRound(k int) { s.k.Store(int64(k)) }

// Snapshot reads every field atomically, one at a time.
func (s *NodeState) Snapshot() StateSnapshot {
	x := s.X()
	decided := s.Decided()
	k := s.Round()
	return StateSnapshot{
		Killed:  s.Killed(),
		X:       &x,
		Decided: &decided,
		K:       &k,
	}
}

// FaultySnapshot is what a faulty node reports: only killed is meaningful.
func FaultySnapshot(killed bool) StateSnapshot {
	return StateSnapshot{Killed: killed}
}

// IsDecided is a nil-safe accessor used by status consumers.
func (s StateSnapshot) IsDecided() bool {
	return s.Decided != nil && *s.Decided
}

// StateFeed fans snapshots out to subscribers without ever blocking the publisher.
// Each subscriber holds at most one pending snapshot; a newer one replaces it.
type StateFeed struct {
	mu     sync.Mutex
	subs   map[int]chan StateSnapshot
	nextID int
	closed bool
}

// NewStateFeed creates an empty feed.
func NewStateFeed() *StateFeed {
	return &StateFeed{subs: make(map[int]chan StateSnapshot)}
}

// Subscribe registers a subscriber. The returned func unsubscribes and closes the channel.
func (f *StateFeed) Subscribe() (<-chan StateSnapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ch := make(chan StateSnapshot, 1)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	id := f.nextID
	f.nextID++
	f.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			f.mu.Lock()
			defer f.mu.Unlock()
			if c, ok := f.subs[id]; ok {
				delete(f.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers snap to every subscriber, replacing any undelivered snapshot.
func (f *StateFeed) Publish(snap StateSnapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}

// Close unsubscribes everyone; later subscriptions receive a closed channel.
func (f *StateFeed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}
