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

// go/src/cli/cli/node.go
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sphinx-core/benor/src/bind"
	"github.com/sphinx-core/benor/src/common"
	httpapi "github.com/sphinx-core/benor/src/http"
	logger "github.com/sphinx-core/benor/src/log"
	"github.com/sphinx-core/benor/src/network"
)

func newNodeCommand(v *viper.Viper, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Run the shell of a single node on base-port+id until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			if cfg.Transport != common.TransportHTTP {
				return fmt.Errorf("%w: node mode needs the http transport", common.ErrInvalidConfig)
			}
			if opts.nodeID < 0 || opts.nodeID >= cfg.Nodes {
				return fmt.Errorf("%w: id %d outside [0, %d)", common.ErrInvalidConfig, opts.nodeID, cfg.Nodes)
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runNode(ctx, cfg, opts.nodeID, opts.autostart)
		},
	}
	cmd.Flags().IntVar(&opts.nodeID, "id", 0, "id of this node")
	cmd.Flags().BoolVar(&opts.autostart, "autostart", false, "start consensus without waiting for GET /start")
	return cmd
}

func runNode(ctx context.Context, cfg common.Config, id int, autostart bool) error {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	initial, err := bind.InitialValues(cfg, seed)
	if err != nil {
		return err
	}
	configs, err := network.GetNodePortConfigs(cfg.Host, cfg.BasePort, cfg.Nodes)
	if err != nil {
		return err
	}
	urls := make([]string, len(configs))
	for i, pc := range configs {
		urls[i] = pc.URL
	}

	log := logger.Named(configs[id].Name)
	prober := network.NewProber(urls, cfg.RequestTimeout)
	transport := httpapi.NewClient(cfg.Host, cfg.BasePort, cfg.RequestTimeout)
	node, err := bind.BuildNode(cfg, id, initial[id], seed, transport, prober.AllNodesReady, nil, log)
	if err != nil {
		return err
	}
	defer node.Store().Close()

	srv := httpapi.NewServer(configs[id].Address, node, func(int) {
		logger.Infof("%s ready at %s", configs[id].Name, configs[id].URL)
	}, log)
	if err := srv.Start(); err != nil {
		return err
	}
	if autostart {
		if err := node.Start(); err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Infof("Shutting down %s", configs[id].Name)
	node.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Stop(shutdownCtx)
	node.Feed().Close()
	logger.Sync()
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
