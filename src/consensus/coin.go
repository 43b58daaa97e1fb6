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

// go/src/consensus/coin.go
package consensus

import (
	"math/rand"
	"sync"
)

// RandCoin flips a fair coin from a seedable source.
type RandCoin struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandCoin creates a coin seeded with seed.
func NewRandCoin(seed int64) *RandCoin {
	return &RandCoin{rng: rand.New(rand.NewSource(seed))}
}

// Flip returns 0 or 1 with equal probability.
func (c *RandCoin) Flip() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Value(c.rng.Intn(2))
}

// ScriptedCoin replays a fixed sequence of flips, cycling when exhausted.
type ScriptedCoin struct {
	mu    sync.Mutex
	seq   []Value
	next  int
	flips int
}

// NewScriptedCoin creates a coin replaying seq. An empty seq always yields 0.
func NewScriptedCoin(seq ...Value) *ScriptedCoin {
	return &ScriptedCoin{seq: seq}
}

// Flip returns the next scripted value.
func (c *ScriptedCoin) Flip() Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flips++
	if len(c.seq) == 0 {
		return Zero
	}
	v := c.seq[c.next%len(c.seq)]
	c.next++
	return v
}

// Flips returns how many times the coin was flipped.
func (c *ScriptedCoin) Flips() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.flips
}
