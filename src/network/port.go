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

// go/src/network/port.go
package network

import (
	"fmt"
	"net"
	"strconv"
)

// Address returns the listen address of node id.
func Address(host string, basePort, id int) string {
	return net.JoinHostPort(host, strconv.Itoa(basePort+id))
}

// URL returns the base URL of node id.
func URL(host string, basePort, id int) string {
	return "http://" + Address(host, basePort, id)
}

// FindFreePort finds a run of count consecutive free TCP ports starting from basePort.
func FindFreePort(host string, basePort, count int) (int, error) {
	if count < 1 {
		count = 1
	}
	for port := basePort; port+count-1 <= 65535; port++ {
		ok := true
		for i := 0; i < count; i++ {
			ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port+i)))
			if err != nil {
				ok = false
				port += i
				break
			}
			ln.Close()
		}
		if ok {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no %d free tcp ports available starting from %d", count, basePort)
}

// GetNodePortConfigs generates the port configuration of numNodes nodes.
func GetNodePortConfigs(host string, basePort, numNodes int) ([]NodePortConfig, error) {
	if numNodes < 1 {
		return nil, fmt.Errorf("invalid node count %d", numNodes)
	}
	if basePort < 1 || basePort+numNodes-1 > 65535 {
		return nil, fmt.Errorf("port range %d..%d out of bounds", basePort, basePort+numNodes-1)
	}
	configs := make([]NodePortConfig, numNodes)
	for i := 0; i < numNodes; i++ {
		configs[i] = NodePortConfig{
			ID:      i,
			Name:    fmt.Sprintf("Node-%d", i),
			Address: Address(host, basePort, i),
			URL:     URL(host, basePort, i),
		}
	}
	return configs, nil
}
