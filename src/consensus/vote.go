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

// go/src/consensus/vote.go
package consensus

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// String renders the value the way it travels on the wire.
func (v Value) String() string {
	switch v {
	case Zero:
		return "0"
	case One:
		return "1"
	default:
		return "?"
	}
}

// Valid reports whether v is 0, 1 or Unknown.
func (v Value) Valid() bool {
	return v == Zero || v == One || v == Unknown
}

// Binary reports whether v is 0 or 1.
func (v Value) Binary() bool {
	return v == Zero || v == One
}

// MarshalJSON encodes 0 and 1 as numbers and Unknown as "?".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v {
	case Zero, One:
		return []byte(strconv.Itoa(int(v))), nil
	case Unknown:
		return []byte(`"?"`), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrInvalidValue, v)
	}
}

// UnmarshalJSON accepts the numbers 0 and 1 and the string "?".
func (v *Value) UnmarshalJSON(data []byte) error {
	switch string(bytes.TrimSpace(data)) {
	case "0":
		*v = Zero
	case "1":
		*v = One
	case `"?"`:
		*v = Unknown
	default:
		return fmt.Errorf("%w: %s", ErrInvalidValue, string(data))
	}
	return nil
}

// ParseValue parses the textual form of a value.
func ParseValue(s string) (Value, error) {
	switch s {
	case "0":
		return Zero, nil
	case "1":
		return One, nil
	case "?":
		return Unknown, nil
	}
	return Unknown, fmt.Errorf("%w: %q", ErrInvalidValue, s)
}

// Valid reports whether p is R or P.
func (p Phase) Valid() bool {
	return p == PhaseR || p == PhaseP
}

// Validate checks the boundary rules for an inbound vote.
// n bounds the sender id; n <= 0 skips that check.
func (v Vote) Validate(n int) error {
	if !v.Phase.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, v.Phase)
	}
	if v.Round < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidRound, v.Round)
	}
	if !v.Value.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidValue, v.Value)
	}
	if v.SenderID < 0 || (n > 0 && v.SenderID >= n) {
		return fmt.Errorf("%w: %d", ErrInvalidNode, v.SenderID)
	}
	return nil
}

// wireVote keeps every field raw so missing and non-integer fields can be told apart.
type wireVote struct {
	SenderID json.RawMessage `json:"senderId"`
	Phase    json.RawMessage `json:"phase"`
	Round    json.RawMessage `json:"round"`
	Value    json.RawMessage `json:"value"`
}

// DecodeVote parses and validates a vote received from the network. Besides phase and
// round it requires an integer senderId in [0, n) and a value of 0, 1 or "?".
func DecodeVote(data []byte, n int) (Vote, error) {
	var w wireVote
	if err := json.Unmarshal(data, &w); err != nil {
		return Vote{}, fmt.Errorf("failed to decode vote: %w", err)
	}

	var v Vote
	var phase string
	if len(w.Phase) == 0 || json.Unmarshal(w.Phase, &phase) != nil {
		return Vote{}, fmt.Errorf("%w: %s", ErrInvalidPhase, string(w.Phase))
	}
	v.Phase = Phase(phase)

	round, err := parseNonNegativeInt(w.Round)
	if err != nil {
		return Vote{}, fmt.Errorf("%w: %s", ErrInvalidRound, string(w.Round))
	}
	v.Round = round

	sender, err := parseNonNegativeInt(w.SenderID)
	if err != nil {
		return Vote{}, fmt.Errorf("%w: %s", ErrInvalidNode, string(w.SenderID))
	}
	v.SenderID = sender

	if len(w.Value) == 0 {
		return Vote{}, fmt.Errorf("%w: missing", ErrInvalidValue)
	}
	if err := v.Value.UnmarshalJSON(w.Value); err != nil {
		return Vote{}, err
	}

	if err := v.Validate(n); err != nil {
		return Vote{}, err
	}
	return v, nil
}

func parseNonNegativeInt(raw json.RawMessage) (int, error) {
	s := string(bytes.TrimSpace(raw))
	if s == "" || s == "null" {
		return 0, fmt.Errorf("missing")
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if i < 0 {
		return 0, fmt.Errorf("negative")
	}
	return i, nil
}
