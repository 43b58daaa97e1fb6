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

// go/src/network/types.go
package network

import (
	"sync"
)

// NodeStatus represents the operational state of a node in the network.
type NodeStatus string

const (
	NodeStatusLive   NodeStatus = "live"
	NodeStatusFaulty NodeStatus = "faulty"
)

// NodePortConfig defines the address assignment for a node.
type NodePortConfig struct {
	ID      int    // Node index in [0, N)
	Name    string // Node name (e.g., Node-0, Node-1)
	Address string // Listen address (e.g., 127.0.0.1:3000)
	URL     string // Base URL (e.g., http://127.0.0.1:3000)
}

// Registry tracks which node shells are bound and accepting requests.
type Registry struct {
	mu      sync.RWMutex
	ready   []bool
	count   int
	readyCh chan struct{}
}
