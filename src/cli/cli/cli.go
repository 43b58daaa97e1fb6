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

// go/src/cli/cli/cli.go
package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/sphinx-core/benor/src/common"
	"github.com/sphinx-core/benor/src/consensus"
	logger "github.com/sphinx-core/benor/src/log"
)

const envPrefix = "BENOR"

// Execute runs the benor command line.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// NewRootCommand builds the command tree with its own viper instance.
func NewRootCommand() *cobra.Command {
	v := viper.New()
	opts := &options{}

	root := &cobra.Command{
		Use:           "benor",
		Short:         "Ben-Or randomized binary consensus simulator",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, opts.configFile)
		},
	}

	def := common.DefaultConfig()
	f := root.PersistentFlags()
	f.StringVar(&opts.configFile, "config", "", "config file (json, yaml or toml)")
	f.Int("nodes", def.Nodes, "number of participants N")
	f.Int("faulty", def.Faulty, "number of tolerated faulty participants F")
	f.IntSlice("faulty-ids", nil, "ids of the nodes that are faulty (at most F)")
	f.StringSlice("initial-values", nil, "initial value per node: 0, 1 or ? (random when empty)")
	f.String("host", def.Host, "listen host of every node")
	f.Int("base-port", def.BasePort, "node i listens on base-port+i")
	f.Duration("poll-interval", def.PollInterval, "quorum re-check interval")
	f.Duration("request-timeout", def.RequestTimeout, "per-vote send timeout")
	f.Duration("ready-timeout", def.ReadyTimeout, "time allowed for all listeners to come up")
	f.Duration("decision-timeout", def.DecisionTimeout, "time allowed for all honest nodes to decide")
	f.Bool("dedup-votes", def.DedupVotes, "keep only the first vote per sender per phase and round")
	f.String("store", def.Store, "message store: memory or leveldb")
	f.String("transport", def.Transport, "vote transport: http or local")
	f.Int64("seed", def.Seed, "master coin seed (0 = time based)")
	f.String("log-level", def.LogLevel, "debug, info, warn or error")

	f.VisitAll(func(fl *pflag.Flag) {
		if fl.Name == "config" {
			return
		}
		v.BindPFlag(strings.ReplaceAll(fl.Name, "-", "_"), fl)
	})

	root.AddCommand(newSimulateCommand(v, opts), newNodeCommand(v, opts))
	return root
}

// initConfig reads the optional config file and BENOR_* environment variables.
func initConfig(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if cfgFile == "" {
		return nil
	}
	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}
	logger.Infof("Using config file: %s", v.ConfigFileUsed())
	return nil
}

// loadConfig merges defaults, config file, environment and flags, then validates.
func loadConfig(v *viper.Viper) (common.Config, error) {
	cfg := common.DefaultConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	logger.Init(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	if !consensus.NewQuorumVerifier(cfg.Nodes, cfg.Faulty).VerifySafety() {
		logger.Warnf("N=%d does not exceed 3F=%d: agreement and termination are not guaranteed", cfg.Nodes, 3*cfg.Faulty)
	}
	return cfg, nil
}
