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

// go/src/consensus/global.go
package consensus

import (
	"errors"
	"time"
)

// Defaults
const (
	DefaultPollInterval = 10 * time.Millisecond
	DefaultSendTimeout  = 2 * time.Second
	readyPollInterval   = 50 * time.Millisecond
)

// Vote value constants
const (
	Zero    Value = 0
	One     Value = 1
	Unknown Value = -1
)

// Phase constants
const (
	PhaseR Phase = "R" // round-value exchange
	PhaseP Phase = "P" // post-round exchange
)

// Boundary errors
var (
	ErrInvalidPhase = errors.New("invalid phase")
	ErrInvalidRound = errors.New("invalid round")
	ErrInvalidValue = errors.New("invalid value")
	ErrInvalidNode  = errors.New("invalid sender id")
	ErrFaultyNode   = errors.New("node is faulty")
	ErrKilled       = errors.New("node has been stopped")
)
