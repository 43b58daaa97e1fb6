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

// go/src/http/server.go
package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sphinx-core/benor/src/consensus"
	"go.uber.org/zap"
)

// NewServer creates the shell of node. onReady is called with the node id once the listener is bound.
func NewServer(address string, node consensus.Node, onReady func(id int), log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if onReady == nil {
		onReady = func(int) {}
	}
	r := gin.New()
	r.Use(gin.Recovery())
	s := &Server{
		address: address,
		node:    node,
		router:  r,
		onReady: onReady,
		log:     log,
		quit:    make(chan struct{}),
	}
	s.setupRoutes()
	return s
}

// setupRoutes defines HTTP endpoints.
func (s *Server) setupRoutes() {
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/getState", s.handleGetState)
	s.router.POST("/message", s.handleMessage)
	s.router.GET("/start", s.handleStart)
	s.router.GET("/stop", s.handleStop)
	s.router.GET("/votes", s.handleVoteKeys)
	s.router.GET("/votes/:phase/:round", s.handleVotes)
	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.node.Metrics().Registry, promhttp.HandlerOpts{})))
	s.router.GET("/events", s.handleEvents)
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// handleStatus reports live or faulty.
func (s *Server) handleStatus(c *gin.Context) {
	if s.node.Faulty() {
		c.String(http.StatusInternalServerError, StatusFaulty)
		return
	}
	c.String(http.StatusOK, StatusLive)
}

// handleGetState returns the node state snapshot.
func (s *Server) handleGetState(c *gin.Context) {
	c.JSON(http.StatusOK, s.node.State())
}

// handleMessage records an inbound vote.
func (s *Server) handleMessage(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	vote, err := consensus.DecodeVote(body, 0)
	if err != nil {
		s.node.Metrics().VotesRejected.Inc()
		s.log.Debugf("Rejected vote %q: %v", body, err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.node.Deliver(vote); err != nil {
		if errors.Is(err, consensus.ErrFaultyNode) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, MsgReceived)
}

// handleStart launches the engine once.
func (s *Server) handleStart(c *gin.Context) {
	if s.node.Faulty() {
		c.String(http.StatusOK, StatusFaulty)
		return
	}
	if err := s.node.Start(); err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.String(http.StatusOK, StatusStarted)
}

// handleStop kills the node.
func (s *Server) handleStop(c *gin.Context) {
	s.node.Stop()
	c.String(http.StatusOK, StatusKilled)
}

// handleVotes lists the stored votes of one (phase, round).
// handleVoteKeys lists the (phase, round) keys that hold votes, in first-seen order.
func (s *Server) handleVoteKeys(c *gin.Context) {
	keys := s.node.Store().Keys()
	if keys == nil {
		keys = []consensus.Key{}
	}
	c.JSON(http.StatusOK, keys)
}

func (s *Server) handleVotes(c *gin.Context) {
	phase := consensus.Phase(c.Param("phase"))
	if !phase.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": consensus.ErrInvalidPhase.Error()})
		return
	}
	round, err := strconv.Atoi(c.Param("round"))
	if err != nil || round < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": consensus.ErrInvalidRound.Error()})
		return
	}
	votes := s.node.Store().VotesFor(phase, round)
	if votes == nil {
		votes = []consensus.Vote{}
	}
	c.JSON(http.StatusOK, votes)
}

// handleEvents streams state snapshots over a websocket until either side goes away.
func (s *Server) handleEvents(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := s.node.Feed().Subscribe()
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	snap := s.node.State()
	for {
		if err := conn.WriteJSON(snap); err != nil {
			s.log.Debugf("WebSocket write error: %v", err)
			return
		}
		if snap.Killed {
			if err := conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, StatusKilled),
				time.Now().Add(time.Second)); err != nil {
				s.log.Debugf("WebSocket close error: %v", err)
			}
			return
		}
		var ok bool
		select {
		case snap, ok = <-updates:
			if !ok {
				return
			}
		case <-gone:
			return
		case <-s.quit:
			return
		}
	}
}

// Listen binds the listener and signals readiness.
func (s *Server) Listen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return fmt.Errorf("node %d: already listening on %s", s.node.ID(), s.listener.Addr())
	}
	ln, err := net.Listen("tcp", s.address)
	if err != nil {
		return fmt.Errorf("node %d: listen %s: %w", s.node.ID(), s.address, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.router, ReadHeaderTimeout: 5 * time.Second}
	s.log.Infof("HTTP shell listening on %s", ln.Addr())
	s.onReady(s.node.ID())
	return nil
}

// Serve blocks serving requests until Stop is called.
func (s *Server) Serve() error {
	s.mu.Lock()
	srv, ln := s.server, s.listener
	s.mu.Unlock()
	if srv == nil {
		return fmt.Errorf("node %d: Serve called before Listen", s.node.ID())
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Start binds and serves in the background.
func (s *Server) Start() error {
	if err := s.Listen(); err != nil {
		return err
	}
	go func() {
		if err := s.Serve(); err != nil {
			s.log.Errorf("HTTP shell failed: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or the configured one before Listen.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.address
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.quitOnce.Do(func() { close(s.quit) })
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
