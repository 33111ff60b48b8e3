// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package executor

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/exp/maps"
)

// CallMode selects how an executor invokes its bound target.
type CallMode int

const (
	// Isolated targets run in their own context and see the executor as caller.
	Isolated CallMode = iota
	// ContextPreserving targets run with the executor's assets, as if their
	// code was the executor's own. Batch-call aggregators need this to move
	// tokens held by the executor.
	ContextPreserving
)

func (m CallMode) String() string {
	switch m {
	case Isolated:
		return "isolated"
	case ContextPreserving:
		return "context-preserving"
	default:
		return fmt.Sprintf("CallMode(%d)", int(m))
	}
}

// Multicall3 is the address of the public batch-call aggregator deployed at
// the same address on most chains.
var Multicall3 = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// ModeClassifier decides the call mode for a target.
type ModeClassifier interface {
	Mode(target common.Address) CallMode
}

// CallModes is a registry of targets requiring context preserving calls.
// It is consulted on every execution, so updates apply to the next
// execution. CallModes is not safe for concurrent use.
type CallModes struct {
	contextPreserving map[common.Address]bool
}

// NewCallModes creates a registry flagging the given targets as context
// preserving.
func NewCallModes(contextPreserving ...common.Address) *CallModes {
	res := &CallModes{contextPreserving: map[common.Address]bool{}}
	for _, target := range contextPreserving {
		res.contextPreserving[target] = true
	}
	return res
}

// NewDefaultCallModes creates a registry seeded with Multicall3.
func NewDefaultCallModes() *CallModes {
	return NewCallModes(Multicall3)
}

func (c *CallModes) Set(target common.Address, contextPreserving bool) {
	if contextPreserving {
		c.contextPreserving[target] = true
	} else {
		delete(c.contextPreserving, target)
	}
}

func (c *CallModes) IsContextPreserving(target common.Address) bool {
	return c.contextPreserving[target]
}

func (c *CallModes) Mode(target common.Address) CallMode {
	if c.IsContextPreserving(target) {
		return ContextPreserving
	}
	return Isolated
}

// ContextPreservingTargets lists all flagged targets in ascending order.
func (c *CallModes) ContextPreservingTargets() []common.Address {
	res := maps.Keys(c.contextPreserving)
	slices.SortFunc(res, func(a, b common.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return res
}
