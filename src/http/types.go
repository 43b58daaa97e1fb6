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

// go/src/http/types.go
package http

import (
	"net"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sphinx-core/benor/src/consensus"
	"github.com/sphinx-core/benor/src/network"
	"go.uber.org/zap"
)

const (
	StatusLive    = string(network.NodeStatusLive)
	StatusFaulty  = string(network.NodeStatusFaulty)
	StatusStarted = "started"
	StatusKilled  = "killed"
	MsgReceived   = "message received"
)

// Server is the HTTP shell of one node.
type Server struct {
	address  string
	node     consensus.Node
	router   *gin.Engine
	server   *http.Server
	listener net.Listener
	upgrader websocket.Upgrader
	onReady  func(id int)
	log      *zap.SugaredLogger
	quit     chan struct{}
	quitOnce sync.Once
	mu       sync.Mutex
}

// Client delivers votes to peer shells over HTTP.
type Client struct {
	resolve func(target int) string
	http    *http.Client
}
