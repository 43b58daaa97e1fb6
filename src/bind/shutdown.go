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

// go/src/bind/shutdown.go
package bind

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sphinx-core/benor/src/consensus"
	logger "github.com/sphinx-core/benor/src/log"
)

const shutdownTimeout = 5 * time.Second

// Shutdown kills every node, waits for running engines, stops the shells and releases
// stores. Later calls return the first result.
func (n *Network) Shutdown() error {
	n.shutdownOnce.Do(func() { n.shutdownErr = n.shutdown() })
	return n.shutdownErr
}

func (n *Network) shutdown() error {
	var errs []error
	n.StopAll()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	for _, res := range n.Nodes {
		if res.Node == nil {
			continue
		}
		if honest, ok := res.Node.(*consensus.HonestNode); ok && honest.Started() {
			select {
			case <-honest.Stopped():
			case <-ctx.Done():
				errs = append(errs, fmt.Errorf("engine of %s did not exit", res.Name))
			}
		}

		if res.Server != nil {
			logger.Infof("Shutting down HTTP shell for %s", res.Name)
			if err := res.Server.Stop(ctx); err != nil {
				logger.Errorf("Failed to shut down HTTP shell for %s: %v", res.Name, err)
				errs = append(errs, fmt.Errorf("HTTP shell shutdown failed for %s: %w", res.Name, err))
			}
		}
		res.Node.Feed().Close()
		if err := res.Node.Store().Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close failed for %s: %w", res.Name, err))
		}
	}
	n.stopper.Stop()

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
