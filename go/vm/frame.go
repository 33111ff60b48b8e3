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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/xcall"
)

// frame is the xcall.CallContext handed to a running contract.
type frame struct {
	run        runContext
	kind       CallKind
	parameters CallParameters
	gas        uint64
}

var _ xcall.CallContext = (*frame)(nil)

func (f *frame) Self() common.Address        { return f.parameters.Recipient }
func (f *frame) Caller() common.Address      { return f.parameters.Sender }
func (f *frame) CodeAddress() common.Address { return f.parameters.CodeAddress }
func (f *frame) Value() *uint256.Int         { return new(uint256.Int).Set(f.parameters.Value) }
func (f *frame) Input() []byte               { return common.CopyBytes(f.parameters.Input) }
func (f *frame) Timestamp() uint64           { return f.run.host.block.Timestamp }
func (f *frame) GasLeft() uint64             { return f.gas }

func (f *frame) UseGas(amount uint64) error {
	if f.gas < amount {
		f.gas = 0
		return xcall.ErrOutOfGas
	}
	f.gas -= amount
	return nil
}

func (f *frame) state() *state.State {
	return f.run.host.state
}

func (f *frame) Balance(account common.Address) *uint256.Int {
	// balance reads are cheap enough to not fail on lack of gas
	_ = f.UseGas(BalanceGas)
	return f.state().GetBalance(account)
}

func (f *frame) Call(target common.Address, input []byte, value *uint256.Int) ([]byte, error) {
	// all but one 64th of the remaining gas is forwarded
	forwarded := f.gas - f.gas/64
	f.gas -= forwarded

	result := f.run.Call(Call, CallParameters{
		Sender:      f.Self(),
		Recipient:   target,
		CodeAddress: target,
		Input:       input,
		Value:       value,
		Gas:         forwarded,
	})
	f.gas += result.GasLeft
	if !result.Success {
		return result.Output, fmt.Errorf("call to %v failed: %w", target, result.Err)
	}
	return result.Output, nil
}

func (f *frame) TokenBalance(token, holder common.Address) *uint256.Int {
	_ = f.UseGas(BalanceGas)
	return f.state().TokenBalance(token, holder)
}

func (f *frame) TokenAllowance(token, holder, spender common.Address) *uint256.Int {
	_ = f.UseGas(BalanceGas)
	return f.state().Allowance(token, holder, spender)
}

func (f *frame) TransferToken(token, to common.Address, amount *uint256.Int) error {
	if err := f.UseGas(TokenTransferGas); err != nil {
		return err
	}
	return f.state().TransferToken(token, f.Self(), to, amount)
}

func (f *frame) TransferTokenFrom(token, from, to common.Address, amount *uint256.Int) error {
	if err := f.UseGas(TokenTransferGas); err != nil {
		return err
	}
	return f.state().TransferTokenFrom(token, f.Self(), from, to, amount)
}

func (f *frame) ApproveToken(token, spender common.Address, amount *uint256.Int) error {
	if err := f.UseGas(ApproveGas); err != nil {
		return err
	}
	f.state().Approve(token, f.Self(), spender, amount)
	return nil
}

// Storage is kept per (Self, CodeAddress). Code running in a delegated
// context controls the caller's assets but not the caller's own storage.
func (f *frame) GetStorage(key common.Hash) common.Hash {
	return f.state().GetState(f.Self(), f.CodeAddress(), key)
}

func (f *frame) SetStorage(key, value common.Hash) error {
	if err := f.UseGas(SStoreGas); err != nil {
		return err
	}
	f.state().SetState(f.Self(), f.CodeAddress(), key, value)
	return nil
}

func (f *frame) Emit(event xcall.Event) error {
	if err := f.UseGas(LogGas); err != nil {
		return err
	}
	f.state().AddLog(state.Log{Address: f.Self(), Event: event})
	return nil
}
