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

// go/src/bind/summary.go
package bind

import "github.com/sphinx-core/benor/src/consensus"

// NodeSummary is the final view of one node.
type NodeSummary struct {
	ID     int                     `json:"id"`
	Faulty bool                    `json:"faulty"`
	State  consensus.StateSnapshot `json:"state"`
}

// Summary is the outcome of a run.
type Summary struct {
	Nodes      []NodeSummary    `json:"nodes"`
	AllDecided bool             `json:"allDecided"`
	Agreement  bool             `json:"agreement"`
	Value      *consensus.Value `json:"value"`
	MaxRound   int              `json:"maxRound"`
}

// Summary collects the states of all nodes. Agreement holds when no two decided honest
// nodes hold different values.
func (n *Network) Summary() Summary {
	s := Summary{AllDecided: true, Agreement: true}
	for _, res := range n.Nodes {
		st := res.Node.State()
		s.Nodes = append(s.Nodes, NodeSummary{ID: res.ID, Faulty: res.Node.Faulty(), State: st})
		if res.Node.Faulty() {
			continue
		}
		if st.K != nil && *st.K > s.MaxRound {
			s.MaxRound = *st.K
		}
		if !st.IsDecided() {
			s.AllDecided = false
			continue
		}
		if s.Value == nil {
			v := *st.X
			s.Value = &v
		} else if *s.Value != *st.X {
			s.Agreement = false
		}
	}
	return s
}
