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
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
)

// Storage layout of an executor, kept in the executor's own storage.
var (
	slotOwner        = common.BytesToHash([]byte{0})
	slotTarget       = common.BytesToHash([]byte{1})
	slotDeadline     = common.BytesToHash([]byte{2})
	slotActive       = common.BytesToHash([]byte{3})
	slotTrackedCount = common.BytesToHash([]byte{4})
	slotTrackedList  = common.BytesToHash([]byte{5}) // base of the list of tracked tokens
	slotTrackedSet   = common.BytesToHash([]byte{6}) // base of the tracked token membership map

	active = common.BytesToHash([]byte{1})
)

// executorCode is the code deployed at every executor address. Executors
// only accept plain value transfers from other contracts; all other
// interaction goes through the Executor type.
type executorCode struct{}

func (executorCode) Run(ctx xcall.CallContext) ([]byte, error) {
	if len(ctx.Input()) != 0 {
		return nil, fmt.Errorf("%w: executors accept no calls", xcall.ErrReverted)
	}
	return nil, nil
}

// Executor is the custody unit running one execution at a time on behalf of
// a single sender. It trusts exactly one caller, its owner, which is the
// first account initializing it.
type Executor struct {
	address common.Address
	host    *vm.Host
	modes   ModeClassifier
}

// Bind returns a handle to the executor at the given address.
func Bind(address common.Address, host *vm.Host, modes ModeClassifier) *Executor {
	return &Executor{address: address, host: host, modes: modes}
}

func (e *Executor) Address() common.Address {
	return e.address
}

func (e *Executor) state() *state.State {
	return e.host.State()
}

func (e *Executor) get(slot common.Hash) common.Hash {
	return e.state().GetState(e.address, e.address, slot)
}

func (e *Executor) set(slot, value common.Hash) {
	e.state().SetState(e.address, e.address, slot, value)
}

func (e *Executor) Owner() common.Address {
	return common.BytesToAddress(e.get(slotOwner).Bytes())
}

func (e *Executor) Target() common.Address {
	return common.BytesToAddress(e.get(slotTarget).Bytes())
}

func (e *Executor) Deadline() uint64 {
	return e.get(slotDeadline).Big().Uint64()
}

func (e *Executor) IsActive() bool {
	return e.get(slotActive) == active
}

// TrackedTokens lists the tokens registered for the current execution.
func (e *Executor) TrackedTokens() []common.Address {
	count := e.get(slotTrackedCount).Big().Uint64()
	res := make([]common.Address, 0, count)
	for i := uint64(0); i < count; i++ {
		res = append(res, common.BytesToAddress(e.get(trackedListSlot(i)).Bytes()))
	}
	return res
}

func trackedListSlot(index uint64) common.Hash {
	var buffer [8]byte
	binary.BigEndian.PutUint64(buffer[:], index)
	return crypto.Keccak256Hash(slotTrackedList[:], buffer[:])
}

func trackedSetSlot(token common.Address) common.Hash {
	return crypto.Keccak256Hash(slotTrackedSet[:], token[:])
}

func uint64ToHash(value uint64) common.Hash {
	var res common.Hash
	binary.BigEndian.PutUint64(res[24:], value)
	return res
}

func (e *Executor) checkOwner(caller common.Address) error {
	if caller != e.Owner() {
		return &xcall.UnauthorizedError{Caller: caller}
	}
	return nil
}

// Initialize claims the executor for a new execution against target. The
// first caller ever to initialize the executor becomes its owner.
func (e *Executor) Initialize(caller, target common.Address, deadline uint64) error {
	if e.IsActive() {
		return xcall.ErrAlreadyInitialized
	}
	if e.Owner() == (common.Address{}) {
		e.set(slotOwner, common.BytesToHash(caller[:]))
	} else if err := e.checkOwner(caller); err != nil {
		return err
	}
	e.set(slotTarget, common.BytesToHash(target[:]))
	e.set(slotDeadline, uint64ToHash(deadline))
	e.set(slotActive, active)
	return nil
}

// AddTrackedToken registers a token to be swept back to the owner when the
// execution ends. Registering a token twice has no effect.
func (e *Executor) AddTrackedToken(caller, token common.Address) error {
	if err := e.checkOwner(caller); err != nil {
		return err
	}
	if !e.IsActive() {
		return xcall.ErrInactive
	}
	if e.get(trackedSetSlot(token)) == active {
		return nil
	}
	count := e.get(slotTrackedCount).Big().Uint64()
	e.set(trackedListSlot(count), common.BytesToHash(token[:]))
	e.set(trackedSetSlot(token), active)
	e.set(slotTrackedCount, uint64ToHash(count+1))
	return nil
}

// ExecuteAndCleanup transfers value from the caller to the executor, calls
// the bound target with callData and, on success, sweeps all tracked tokens
// and the remaining native balance back to the owner. An unsuccessful target
// call leaves no trace and is reported as xcall.ExecutionFailedError.
func (e *Executor) ExecuteAndCleanup(caller common.Address, callData []byte, value *uint256.Int, gas uint64) (swept []xcall.TokenAmount, err error) {
	if value == nil {
		value = new(uint256.Int)
	}
	err = e.state().Atomic(func() error {
		if err := e.checkOwner(caller); err != nil {
			return err
		}
		if !e.IsActive() {
			return xcall.ErrInactive
		}
		now := e.host.Block().Timestamp
		if deadline := e.Deadline(); now >= deadline {
			return &xcall.DeadlineExceededError{Deadline: deadline, Now: now}
		}
		if err := e.state().Transfer(caller, e.address, value); err != nil {
			return err
		}

		target := e.Target()
		if result := e.invoke(caller, target, callData, value, gas); !result.Success {
			return &xcall.ExecutionFailedError{Target: target, Cause: result.Err}
		}
		swept, err = e.sweep()
		return err
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// invoke calls the target in the mode its classification requires.
func (e *Executor) invoke(caller, target common.Address, callData []byte, value *uint256.Int, gas uint64) vm.CallResult {
	switch e.modes.Mode(target) {
	case ContextPreserving:
		return e.host.Call(vm.DelegateCall, vm.CallParameters{
			Sender:      caller,
			Recipient:   e.address,
			CodeAddress: target,
			Input:       callData,
			Value:       value,
			Gas:         gas,
		})
	default:
		return e.host.Call(vm.Call, vm.CallParameters{
			Sender:      e.address,
			Recipient:   target,
			CodeAddress: target,
			Input:       callData,
			Value:       value,
			Gas:         gas,
		})
	}
}

// RecoverTokens ends the current execution without calling the target,
// sweeping all assets back to the owner.
func (e *Executor) RecoverTokens(caller common.Address) (swept []xcall.TokenAmount, err error) {
	err = e.state().Atomic(func() error {
		if err := e.checkOwner(caller); err != nil {
			return err
		}
		if !e.IsActive() {
			return xcall.ErrInactive
		}
		swept, err = e.sweep()
		return err
	})
	if err != nil {
		return nil, err
	}
	return swept, nil
}

// sweep returns every tracked token and the native balance to the owner,
// revokes all allowances granted by the executor and resets it to its
// inactive state.
func (e *Executor) sweep() ([]xcall.TokenAmount, error) {
	s := e.state()
	owner := e.Owner()
	var swept []xcall.TokenAmount
	tokens := e.TrackedTokens()
	for _, token := range tokens {
		balance := s.TokenBalance(token, e.address)
		if balance.IsZero() {
			continue
		}
		if err := s.TransferToken(token, e.address, owner, balance); err != nil {
			return nil, fmt.Errorf("failed to sweep token %v: %w", token, err)
		}
		swept = append(swept, xcall.TokenAmount{Token: token, Amount: balance})
	}
	if balance := s.GetBalance(e.address); !balance.IsZero() {
		if err := s.Transfer(e.address, owner, balance); err != nil {
			return nil, fmt.Errorf("failed to sweep native balance: %w", err)
		}
		swept = append(swept, xcall.TokenAmount{Token: xcall.NativeToken, Amount: balance})
	}

	// allowances granted by a context preserving target must not reach
	// into the assets of a later execution
	s.RevokeApprovals(e.address)

	for i, token := range tokens {
		e.set(trackedListSlot(uint64(i)), common.Hash{})
		e.set(trackedSetSlot(token), common.Hash{})
	}
	e.set(slotTrackedCount, common.Hash{})
	e.set(slotTarget, common.Hash{})
	e.set(slotDeadline, common.Hash{})
	e.set(slotActive, common.Hash{})
	return swept, nil
}
