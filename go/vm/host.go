// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package vm

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/xcall"
)

const (
	MaxRecursiveDepth = 1024 // Maximum depth of the call stack.

	CallGas          = 700
	BalanceGas       = 100
	TokenTransferGas = 5_000
	ApproveGas       = 5_000
	SStoreGas        = 5_000
	LogGas           = 375
)

// CallKind selects how the code of a call is executed.
type CallKind int

const (
	// Call runs the recipient's code in the recipient's own context.
	Call CallKind = iota
	// DelegateCall runs the code found at CodeAddress in the context of the
	// recipient: assets touched by the code are the recipient's. No value is
	// transferred.
	DelegateCall
)

func (k CallKind) String() string {
	switch k {
	case Call:
		return "call"
	case DelegateCall:
		return "delegatecall"
	default:
		return fmt.Sprintf("CallKind(%d)", int(k))
	}
}

// BlockContext describes the block a call is executed in.
type BlockContext struct {
	Number    uint64
	Timestamp uint64
}

type CallParameters struct {
	Sender      common.Address // the caller of the frame
	Recipient   common.Address // the account whose context the code runs in
	CodeAddress common.Address // the account the code is loaded from
	Input       []byte
	Value       *uint256.Int
	Gas         uint64
}

// CallResult summarizes the outcome of a call. Unsuccessful calls have no
// effect on the state and report the reason in Err.
type CallResult struct {
	Output  []byte
	GasLeft uint64
	Success bool
	Err     error
}

// Host executes contract calls on top of a State. Calls are processed
// sequentially; a Host is not safe for concurrent use.
type Host struct {
	state *state.State
	block BlockContext
}

func NewHost(s *state.State, block BlockContext) *Host {
	return &Host{state: s, block: block}
}

func (h *Host) State() *state.State {
	return h.state
}

func (h *Host) Block() BlockContext {
	return h.block
}

func (h *Host) SetBlock(block BlockContext) {
	h.block = block
}

// AdvanceTime moves the block clock forward and starts a new block.
func (h *Host) AdvanceTime(seconds uint64) {
	h.block.Number++
	h.block.Timestamp += seconds
}

// Call runs a top level call of the given kind.
func (h *Host) Call(kind CallKind, parameters CallParameters) CallResult {
	return runContext{host: h}.Call(kind, parameters)
}

type runContext struct {
	host  *Host
	depth int
}

func (r runContext) Call(kind CallKind, parameters CallParameters) (callResult CallResult) {
	if parameters.Value == nil {
		parameters.Value = new(uint256.Int)
	}

	// The runContext is passed by value, therefore no decrement of depth is required.
	if err := r.incrementDepth(); err != nil {
		return CallResult{GasLeft: parameters.Gas, Err: err}
	}

	s := r.host.state
	snapshot := s.CreateSnapshot()
	defer func() {
		// For all unsuccessful results the snapshot will be restored.
		if !callResult.Success {
			s.RestoreSnapshot(snapshot)
		}
	}()

	if parameters.Gas < CallGas {
		return CallResult{Err: xcall.ErrOutOfGas}
	}
	gas := parameters.Gas - CallGas

	if kind == Call {
		if err := s.Transfer(parameters.Sender, parameters.Recipient, parameters.Value); err != nil {
			return CallResult{GasLeft: gas, Err: err}
		}
	}

	code := s.GetCode(parameters.CodeAddress)
	if kind == Call && isTokenContract(code) {
		return r.runTokenContract(parameters, gas)
	}
	if code == nil {
		// plain value transfers to accounts without code are allowed
		if kind == Call && len(parameters.Input) == 0 {
			return CallResult{GasLeft: gas, Success: true}
		}
		return CallResult{
			GasLeft: gas,
			Err:     fmt.Errorf("%w: %v", xcall.ErrNotContract, parameters.CodeAddress),
		}
	}

	f := &frame{
		run:        r,
		kind:       kind,
		parameters: parameters,
		gas:        gas,
	}
	output, err := runContract(code, f)
	if err != nil {
		if errors.Is(err, xcall.ErrOutOfGas) {
			f.gas = 0
		}
		return CallResult{Output: output, GasLeft: f.gas, Err: err}
	}
	return CallResult{Output: output, GasLeft: f.gas, Success: true}
}

// runContract runs the given code, converting panics into reverts.
func runContract(code xcall.Contract, f *frame) (output []byte, err error) {
	defer func() {
		if p := recover(); p != nil {
			output = nil
			err = fmt.Errorf("%w: contract panicked: %v", xcall.ErrReverted, p)
		}
	}()
	return code.Run(f)
}

// incrementDepth increases the depth of the run context.
// In case the maximum call depth is exceeded, an error is returned.
func (r *runContext) incrementDepth() error {
	if r.depth > MaxRecursiveDepth {
		return xcall.ErrDepthExceeded
	}
	r.depth++
	return nil
}
