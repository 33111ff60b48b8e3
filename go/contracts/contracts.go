// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package contracts provides target contracts for the host chain: a
// message echo, a batch-call aggregator, and contracts misbehaving in
// well defined ways.
package contracts

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
)

// decode resolves the method addressed by input and unpacks its arguments.
func decode(a abi.ABI, input []byte) (*abi.Method, []any, error) {
	if len(input) < 4 {
		return nil, nil, fmt.Errorf("%w: missing selector", xcall.ErrReverted)
	}
	method, err := a.MethodById(input[:4])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unknown selector %x", xcall.ErrReverted, input[:4])
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, nil, fmt.Errorf("%w: invalid arguments for %s: %v", xcall.ErrReverted, method.Name, err)
	}
	return method, args, nil
}

func pack(a abi.ABI, method string, args ...any) []byte {
	res, err := a.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("failed to pack %s: %v", method, err))
	}
	return res
}

func toUint256(value *big.Int) *uint256.Int {
	res, _ := uint256.FromBig(value)
	return res
}

// --- Echo ---

var echoABI = xcall.MustParseABI(`[
	{"type":"function","name":"echo","stateMutability":"payable",
	 "inputs":[{"name":"message","type":"string"}],
	 "outputs":[{"name":"","type":"string"}]}
]`)

// Echoed is emitted by Echo for every echoed message.
type Echoed struct {
	Caller  common.Address
	Message string
	Value   *uint256.Int
}

func (Echoed) EventName() string { return "Echoed" }

// Echo returns the message it is called with and emits an Echoed event.
// It has no fallback: calls with unknown selectors revert.
type Echo struct{}

func EchoCall(message string) []byte {
	return pack(echoABI, "echo", message)
}

func (Echo) Run(ctx xcall.CallContext) ([]byte, error) {
	method, args, err := decode(echoABI, ctx.Input())
	if err != nil {
		return nil, err
	}
	message := args[0].(string)
	if err := ctx.Emit(Echoed{Caller: ctx.Caller(), Message: message, Value: ctx.Value()}); err != nil {
		return nil, err
	}
	return method.Outputs.Pack(message)
}

// --- Multicall ---

var multicallABI = xcall.MustParseABI(`[
	{"type":"function","name":"aggregate","stateMutability":"payable",
	 "inputs":[{"name":"calls","type":"tuple[]","components":[
		{"name":"target","type":"address"},
		{"name":"callData","type":"bytes"}]}],
	 "outputs":[{"name":"returnData","type":"bytes[]"}]}
]`)

// Call is a single call of a Multicall batch.
type Call struct {
	Target   common.Address
	CallData []byte
}

// Multicall runs a batch of calls in order and fails if any of them fails.
// Run in a context preserving mode, the calls are issued by the account
// whose context the batch runs in.
type Multicall struct{}

func AggregateCall(calls ...Call) []byte {
	return pack(multicallABI, "aggregate", calls)
}

func (Multicall) Run(ctx xcall.CallContext) ([]byte, error) {
	method, args, err := decode(multicallABI, ctx.Input())
	if err != nil {
		return nil, err
	}
	calls := *abi.ConvertType(args[0], new([]Call)).(*[]Call)
	results := make([][]byte, 0, len(calls))
	for i, call := range calls {
		output, err := ctx.Call(call.Target, call.CallData, nil)
		if err != nil {
			return nil, fmt.Errorf("call %d failed: %w", i, err)
		}
		results = append(results, output)
	}
	return method.Outputs.Pack(results)
}

// --- Puller ---

var pullerABI = xcall.MustParseABI(`[
	{"type":"function","name":"pull","stateMutability":"nonpayable",
	 "inputs":[{"name":"token","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[]}
]`)

// Puller takes tokens from its caller using the allowance the caller granted.
type Puller struct{}

func PullCall(token common.Address, amount *uint256.Int) []byte {
	return pack(pullerABI, "pull", token, amount.ToBig())
}

func (Puller) Run(ctx xcall.CallContext) ([]byte, error) {
	_, args, err := decode(pullerABI, ctx.Input())
	if err != nil {
		return nil, err
	}
	token := args[0].(common.Address)
	amount := toUint256(args[1].(*big.Int))
	return nil, ctx.TransferTokenFrom(token, ctx.Caller(), ctx.Self(), amount)
}

// --- misbehaving contracts ---

// Reverter reverts every call.
type Reverter struct{}

func (Reverter) Run(xcall.CallContext) ([]byte, error) {
	return nil, fmt.Errorf("%w: always", xcall.ErrReverted)
}

// GasBurner consumes all gas it is given.
type GasBurner struct{}

func (GasBurner) Run(ctx xcall.CallContext) ([]byte, error) {
	for {
		if err := ctx.UseGas(1_000); err != nil {
			return nil, err
		}
	}
}

// Sink accepts every call and keeps whatever it receives.
type Sink struct{}

func (Sink) Run(xcall.CallContext) ([]byte, error) {
	return nil, nil
}
