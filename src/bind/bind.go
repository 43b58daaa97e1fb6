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

// go/src/bind/bind.go
package bind

import (
	"sync"

	"github.com/lni/goutils/syncutil"
	"github.com/sphinx-core/benor/src/common"
	"github.com/sphinx-core/benor/src/consensus"
	httpapi "github.com/sphinx-core/benor/src/http"
	logger "github.com/sphinx-core/benor/src/log"
	"github.com/sphinx-core/benor/src/network"
)

// NodeResources holds everything built for one participant.
type NodeResources struct {
	ID     int
	Name   string
	Node   consensus.Node
	Server *httpapi.Server // nil with the local transport
	URL    string
}

// Network is a set of nodes running in one process.
type Network struct {
	Nodes    []NodeResources
	Registry *network.Registry

	cfg     common.Config
	local   *consensus.LocalNetwork
	stopper *syncutil.Stopper

	shutdownOnce sync.Once
	shutdownErr  error
}

// BindHTTPServers binds the listener of every shell and serves it on a stopper worker.
// A node is marked ready by its shell as soon as its listener is bound.
func BindHTTPServers(resources []NodeResources, stopper *syncutil.Stopper) error {
	for i, res := range resources {
		if res.Server == nil {
			continue
		}
		if err := res.Server.Listen(); err != nil {
			logger.Errorf("Failed to bind HTTP shell for %s: %v", res.Name, err)
			return err
		}
		srv, name := resources[i].Server, res.Name
		stopper.RunWorker(func() {
			if err := srv.Serve(); err != nil {
				logger.Errorf("HTTP shell failed for %s: %v", name, err)
			}
		})
	}
	return nil
}
