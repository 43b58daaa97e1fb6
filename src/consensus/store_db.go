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

// go/src/consensus/store_db.go
package consensus

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelStore journals votes in a leveldb instance held on in-memory storage.
// Keys are phase(1) | round(8, big-endian) | seq(8, big-endian), so a prefix scan
// over phase|round yields the votes of that key in arrival order.
type LevelStore struct {
	mu     sync.Mutex // serialises seq allocation and dedup bookkeeping
	db     *leveldb.DB
	seq    uint64
	keys   []Key
	known  map[Key]struct{}
	dedup  senderSet
	notify *notifier
}

// NewLevelStore opens a fresh journal. Nothing survives Close.
func NewLevelStore(dedup bool) (*LevelStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open vote journal: %w", err)
	}
	s := &LevelStore{
		db:     db,
		known:  make(map[Key]struct{}),
		notify: newNotifier(),
	}
	if dedup {
		s.dedup = make(senderSet)
	}
	return s, nil
}

func keyPrefix(phase Phase, round int) []byte {
	buf := make([]byte, 9, 17)
	buf[0] = phase[0]
	binary.BigEndian.PutUint64(buf[1:], uint64(round))
	return buf
}

// Record appends v to the journal. Votes with an unknown phase are refused, and
// nothing is counted or marked unless the write succeeds.
func (s *LevelStore) Record(v Vote) bool {
	if !v.Phase.Valid() {
		return false
	}
	key := Key{Phase: v.Phase, Round: v.Round}
	data, err := json.Marshal(v)
	if err != nil {
		return false
	}

	s.mu.Lock()
	if s.dedup != nil && s.dedup.has(key, v.SenderID) {
		s.mu.Unlock()
		return false
	}
	dbKey := binary.BigEndian.AppendUint64(keyPrefix(v.Phase, v.Round), s.seq+1)
	if err := s.db.Put(dbKey, data, nil); err != nil {
		s.mu.Unlock()
		return false
	}
	s.seq++
	if s.dedup != nil {
		s.dedup.add(key, v.SenderID)
	}
	if _, ok := s.known[key]; !ok {
		s.known[key] = struct{}{}
		s.keys = append(s.keys, key)
	}
	s.mu.Unlock()

	s.notify.signal()
	return true
}

// VotesFor scans the journal for the key.
func (s *LevelStore) VotesFor(phase Phase, round int) []Vote {
	if !phase.Valid() || round < 0 {
		return []Vote{}
	}
	iter := s.db.NewIterator(util.BytesPrefix(keyPrefix(phase, round)), nil)
	defer iter.Release()

	out := []Vote{}
	for iter.Next() {
		var v Vote
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Changed returns the wake channel for the next append.
func (s *LevelStore) Changed() <-chan struct{} {
	return s.notify.wait()
}

// Keys lists the keys in first-seen order.
func (s *LevelStore) Keys() []Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Key, len(s.keys))
	copy(out, s.keys)
	return out
}

// Len returns the number of journaled votes.
func (s *LevelStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int(s.seq)
}

// Close releases the journal.
func (s *LevelStore) Close() error {
	return s.db.Close()
}

// NewStore builds the store kind named by kind ("memory" or "leveldb").
func NewStore(kind string, dedup bool) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemoryStore(dedup), nil
	case "leveldb":
		return NewLevelStore(dedup)
	default:
		return nil, fmt.Errorf("unknown store kind %q", kind)
	}
}
