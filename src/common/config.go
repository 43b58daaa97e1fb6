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

// go/src/common/config.go
package common

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	// DataDir is the unified output directory
	DataDir = "data"

	TransportHTTP  = "http"
	TransportLocal = "local"

	StoreMemory  = "memory"
	StoreLevelDB = "leveldb"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config describes one simulated run.
type Config struct {
	Nodes           int           `json:"nodes" mapstructure:"nodes"`                       // N
	Faulty          int           `json:"faulty" mapstructure:"faulty"`                     // F
	FaultyIDs       []int         `json:"faulty_ids" mapstructure:"faulty_ids"`             // Nodes that never run the engine
	InitialValues   []string      `json:"initial_values" mapstructure:"initial_values"`     // "0", "1" or "?" per node; empty means random
	Host            string        `json:"host" mapstructure:"host"`                         // Listen host of every node
	BasePort        int           `json:"base_port" mapstructure:"base_port"`               // Node i listens on BasePort+i
	PollInterval    time.Duration `json:"poll_interval" mapstructure:"poll_interval"`       // Quorum re-check interval
	RequestTimeout  time.Duration `json:"request_timeout" mapstructure:"request_timeout"`   // Per-vote send timeout
	ReadyTimeout    time.Duration `json:"ready_timeout" mapstructure:"ready_timeout"`       // Listener start-up budget
	DecisionTimeout time.Duration `json:"decision_timeout" mapstructure:"decision_timeout"` // Simulation budget
	DedupVotes      bool          `json:"dedup_votes" mapstructure:"dedup_votes"`           // One vote per sender per (phase, round)
	Store           string        `json:"store" mapstructure:"store"`                       // memory or leveldb
	Transport       string        `json:"transport" mapstructure:"transport"`               // http or local
	Seed            int64         `json:"seed" mapstructure:"seed"`                         // Master coin seed; 0 means time based
	LogLevel        string        `json:"log_level" mapstructure:"log_level"`
}

// DefaultConfig returns the settings of the classic N=4, F=1 run.
func DefaultConfig() Config {
	return Config{
		Nodes:           4,
		Faulty:          1,
		Host:            "127.0.0.1",
		BasePort:        3000,
		PollInterval:    10 * time.Millisecond,
		RequestTimeout:  2 * time.Second,
		ReadyTimeout:    10 * time.Second,
		DecisionTimeout: 60 * time.Second,
		Store:           StoreMemory,
		Transport:       TransportHTTP,
		LogLevel:        "info",
	}
}

// Validate checks the structural rules of the configuration. N > 3F is not enforced here.
func (c Config) Validate() error {
	if c.Nodes < 1 {
		return fmt.Errorf("%w: nodes must be at least 1, got %d", ErrInvalidConfig, c.Nodes)
	}
	if c.Faulty < 0 || c.Faulty >= c.Nodes {
		return fmt.Errorf("%w: faulty must be in [0, %d), got %d", ErrInvalidConfig, c.Nodes, c.Faulty)
	}
	if len(c.FaultyIDs) > c.Faulty {
		return fmt.Errorf("%w: %d faulty ids exceed F=%d", ErrInvalidConfig, len(c.FaultyIDs), c.Faulty)
	}
	seen := make(map[int]bool)
	for _, id := range c.FaultyIDs {
		if id < 0 || id >= c.Nodes {
			return fmt.Errorf("%w: faulty id %d outside [0, %d)", ErrInvalidConfig, id, c.Nodes)
		}
		if seen[id] {
			return fmt.Errorf("%w: faulty id %d listed twice", ErrInvalidConfig, id)
		}
		seen[id] = true
	}
	if len(c.InitialValues) != 0 && len(c.InitialValues) != c.Nodes {
		return fmt.Errorf("%w: expected %d initial values, got %d", ErrInvalidConfig, c.Nodes, len(c.InitialValues))
	}
	for _, v := range c.InitialValues {
		if v != "0" && v != "1" && v != "?" {
			return fmt.Errorf("%w: initial value %q", ErrInvalidConfig, v)
		}
	}
	switch c.Transport {
	case TransportHTTP:
		if c.BasePort < 1 || c.BasePort+c.Nodes-1 > 65535 {
			return fmt.Errorf("%w: port range %d..%d", ErrInvalidConfig, c.BasePort, c.BasePort+c.Nodes-1)
		}
	case TransportLocal:
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	switch c.Store {
	case StoreMemory, StoreLevelDB:
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalidConfig, c.Store)
	}
	return nil
}

// IsFaulty reports whether node id is configured as faulty.
func (c Config) IsFaulty(id int) bool {
	for _, f := range c.FaultyIDs {
		if f == id {
			return true
		}
	}
	return false
}

// DeriveSeed derives an independent coin seed for node id from the master seed.
func DeriveSeed(master int64, id int) int64 {
	var buf [16]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(master))
	binary.BigEndian.PutUint64(buf[8:], uint64(id))
	sum := blake2b.Sum256(buf[:])
	return int64(binary.BigEndian.Uint64(sum[:8]))
}

// WriteJSONToFile writes data as indented JSON below DataDir/output.
func WriteJSONToFile(data interface{}, filename string) error {
	outputDir := filepath.Join(DataDir, "output")
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	filePath := filepath.Join(outputDir, filename)
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file %s: %w", filePath, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")

	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}
