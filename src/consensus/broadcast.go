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

// go/src/consensus/broadcast.go
package consensus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// NewBroadcaster creates a broadcaster for node id in a network of n nodes.
func NewBroadcaster(id, n int, transport Transport, timeout time.Duration, metrics *Metrics, log *zap.SugaredLogger) *Broadcaster {
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	return &Broadcaster{
		id:        id,
		n:         n,
		transport: transport,
		timeout:   timeout,
		metrics:   metrics,
		log:       log,
	}
}

// Broadcast sends (phase, round, value) to every node in [0, n), self included.
// Sends run concurrently; a failed target is logged and skipped. It returns the number
// of targets that accepted the vote and never fails the caller.
func (b *Broadcaster) Broadcast(ctx context.Context, phase Phase, round int, value Value) int {
	vote := Vote{SenderID: b.id, Phase: phase, Round: round, Value: value}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		delivered int
	)
	for target := 0; target < b.n; target++ {
		wg.Add(1)
		go func(target int) {
			defer wg.Done()
			if err := b.send(ctx, target, vote); err != nil {
				b.metrics.BroadcastFailures.Inc()
				b.log.Warnf("Failed to send %s vote for round %d to node %d: %v", phase, round, target, err)
				return
			}
			mu.Lock()
			delivered++
			mu.Unlock()
		}(target)
	}
	wg.Wait()

	b.log.Debugf("Broadcast %s vote %s for round %d reached %d/%d nodes", phase, value, round, delivered, b.n)
	return delivered
}

func (b *Broadcaster) send(ctx context.Context, target int, vote Vote) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("transport panic: %v", r)
		}
	}()
	sendCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	return b.transport.Send(sendCtx, target, vote)
}

// LocalNetwork routes votes between nodes living in the same process.
type LocalNetwork struct {
	mu    sync.RWMutex
	nodes map[int]func(Vote) error
	drop  map[int]bool
}

// NewLocalNetwork creates an empty in-process router.
func NewLocalNetwork() *LocalNetwork {
	return &LocalNetwork{
		nodes: make(map[int]func(Vote) error),
		drop:  make(map[int]bool),
	}
}

// Register attaches a delivery function for node id.
func (ln *LocalNetwork) Register(id int, deliver func(Vote) error) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	ln.nodes[id] = deliver
}

// Partition makes every send to id fail until healed.
func (ln *LocalNetwork) Partition(id int, unreachable bool) {
	ln.mu.Lock()
	defer ln.mu.Unlock()
	ln.drop[id] = unreachable
}

// Send implements Transport.
func (ln *LocalNetwork) Send(ctx context.Context, target int, v Vote) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ln.mu.RLock()
	deliver, ok := ln.nodes[target]
	dropped := ln.drop[target]
	ln.mu.RUnlock()
	if !ok || dropped {
		return fmt.Errorf("node %d unreachable", target)
	}
	return deliver(v)
}
