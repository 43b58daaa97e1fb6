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

// go/src/cli/cli/simulate.go
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/sphinx-core/benor/src/bind"
	"github.com/sphinx-core/benor/src/common"
	logger "github.com/sphinx-core/benor/src/log"
)

func newSimulateCommand(v *viper.Viper, opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run all N nodes in this process until every honest node decides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			return runSimulate(ctx, cmd, cfg, opts.output)
		},
	}
	cmd.Flags().StringVar(&opts.output, "output", "", "also write the summary to data/output/<file>")
	return cmd
}

func runSimulate(ctx context.Context, cmd *cobra.Command, cfg common.Config, output string) error {
	nw, err := bind.SetupNodes(cfg)
	if err != nil {
		return fmt.Errorf("setup nodes: %w", err)
	}
	defer func() {
		if err := nw.Shutdown(); err != nil {
			logger.Errorf("Shutdown: %v", err)
		}
		logger.Sync()
	}()

	if err := nw.StartAll(); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, cfg.DecisionTimeout)
	defer cancel()
	waitErr := nw.AwaitDecisions(ctx)

	summary := nw.Summary()
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	if output != "" {
		if err := common.WriteJSONToFile(summary, output); err != nil {
			logger.Errorf("Failed to write summary: %v", err)
		}
	}

	switch {
	case !summary.Agreement:
		return fmt.Errorf("honest nodes disagree")
	case waitErr != nil:
		return waitErr
	case !summary.AllDecided:
		return fmt.Errorf("not every honest node decided")
	}
	logger.Infof("All honest nodes decided %s by round %d", summary.Value, summary.MaxRound)
	return nil
}
