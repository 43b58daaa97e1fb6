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

// go/src/consensus/store.go
package consensus

import (
	"sync"

	"github.com/elliotchance/orderedmap/v2"
)

// notifier hands out a channel that is closed and replaced on every signal,
// so any number of waiters wake up on the next append.
type notifier struct {
	mu sync.Mutex
	ch chan struct{}
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan struct{})}
}

func (n *notifier) wait() <-chan struct{} {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.ch
}

func (n *notifier) signal() {
	n.mu.Lock()
	defer n.mu.Unlock()
	close(n.ch)
	n.ch = make(chan struct{})
}

// senderSet tracks which senders already voted per key when deduplication is on.
type senderSet map[Key]map[int]struct{}

// has reports whether sender already voted for key.
func (s senderSet) has(key Key, sender int) bool {
	_, ok := s[key][sender]
	return ok
}

func (s senderSet) add(key Key, sender int) {
	senders, ok := s[key]
	if !ok {
		senders = make(map[int]struct{})
		s[key] = senders
	}
	senders[sender] = struct{}{}
}

// seen marks sender for key and reports whether it had been marked before.
func (s senderSet) seen(key Key, sender int) bool {
	if s.has(key, sender) {
		return true
	}
	s.add(key, sender)
	return false
}

// MemoryStore keeps votes in memory, keyed by (phase, round) in first-seen order.
type MemoryStore struct {
	mu     sync.RWMutex
	votes  *orderedmap.OrderedMap[Key, []Vote]
	total  int
	dedup  senderSet // nil unless deduplication is enabled
	notify *notifier
}

// NewMemoryStore creates an empty store. With dedup set only the first vote of each
// sender per (phase, round) is kept.
func NewMemoryStore(dedup bool) *MemoryStore {
	s := &MemoryStore{
		votes:  orderedmap.NewOrderedMap[Key, []Vote](),
		notify: newNotifier(),
	}
	if dedup {
		s.dedup = make(senderSet)
	}
	return s
}

// Record appends v to the sequence for its key. Votes with an unknown phase are refused.
func (s *MemoryStore) Record(v Vote) bool {
	if !v.Phase.Valid() {
		return false
	}
	key := Key{Phase: v.Phase, Round: v.Round}

	s.mu.Lock()
	if s.dedup != nil && s.dedup.seen(key, v.SenderID) {
		s.mu.Unlock()
		return false
	}
	seq, _ := s.votes.Get(key)
	s.votes.Set(key, append(seq, v))
	s.total++
	s.mu.Unlock()

	s.notify.signal()
	return true
}

// VotesFor returns a copy of the current sequence for the key.
func (s *MemoryStore) VotesFor(phase Phase, round int) []Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seq, _ := s.votes.Get(Key{Phase: phase, Round: round})
	out := make([]Vote, len(seq))
	copy(out, seq)
	return out
}

// Changed returns the wake channel for the next append.
func (s *MemoryStore) Changed() <-chan struct{} {
	return s.notify.wait()
}

// Keys lists the keys in first-seen order.
func (s *MemoryStore) Keys() []Key {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.votes.Keys()
}

// Len returns the number of stored votes.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
