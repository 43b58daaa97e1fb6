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

// go/src/network/registry.go
package network

import (
	"context"
	"fmt"
	"net/http"
	"time"

	logger "github.com/sphinx-core/benor/src/log"
)

// NewRegistry creates a readiness registry for n nodes.
func NewRegistry(n int) *Registry {
	return &Registry{
		ready:   make([]bool, n),
		readyCh: make(chan struct{}),
	}
}

// SetNodeIsReady marks node id as accepting requests. Repeated calls are no-ops.
func (r *Registry) SetNodeIsReady(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id < 0 || id >= len(r.ready) || r.ready[id] {
		return
	}
	r.ready[id] = true
	r.count++
	if r.count == len(r.ready) {
		close(r.readyCh)
	}
}

// IsReady reports whether node id has been marked ready.
func (r *Registry) IsReady(id int) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return id >= 0 && id < len(r.ready) && r.ready[id]
}

// AllNodesReady reports whether every node has been marked ready.
func (r *Registry) AllNodesReady() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count == len(r.ready)
}

// ReadyCount returns the number of ready nodes.
func (r *Registry) ReadyCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Wait blocks until all nodes are ready or ctx ends.
func (r *Registry) Wait(ctx context.Context) error {
	select {
	case <-r.readyCh:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d/%d nodes ready: %w", r.ReadyCount(), len(r.ready), ctx.Err())
	}
}

// Prober checks peer liveness over HTTP for nodes running in separate processes.
type Prober struct {
	client *http.Client
	urls   []string
	ready  []bool
}

// NewProber creates a prober for the given base URLs.
func NewProber(urls []string, timeout time.Duration) *Prober {
	return &Prober{
		client: &http.Client{Timeout: timeout},
		urls:   urls,
		ready:  make([]bool, len(urls)),
	}
}

// AllNodesReady probes every peer not yet seen. Any HTTP answer from /status counts,
// since a faulty node reports 500 but is still bound.
func (p *Prober) AllNodesReady() bool {
	all := true
	for i, u := range p.urls {
		if p.ready[i] {
			continue
		}
		resp, err := p.client.Get(u + "/status")
		if err != nil {
			all = false
			continue
		}
		resp.Body.Close()
		p.ready[i] = true
		logger.Debugf("Peer %d at %s is up (status %d)", i, u, resp.StatusCode)
	}
	return all
}
