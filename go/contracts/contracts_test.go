// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package contracts

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
	"github.com/stretchr/testify/require"
)

var (
	caller    = common.Address{0x01}
	echo      = common.Address{0xec}
	multicall = common.Address{0xca}
	puller    = common.Address{0x99}
	token     = common.Address{0x70}
	receiver  = common.Address{0x42}
)

func newHost(t *testing.T) *vm.Host {
	s := state.New()
	s.SetCode(echo, Echo{})
	s.SetCode(multicall, Multicall{})
	s.SetCode(puller, Puller{})
	s.SetCode(token, vm.TokenContract{})
	s.SetBalance(caller, uint256.NewInt(1_000))
	if err := s.Mint(token, caller, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	return vm.NewHost(s, vm.BlockContext{Timestamp: 1})
}

func call(host *vm.Host, kind vm.CallKind, target common.Address, input []byte, value uint64) vm.CallResult {
	recipient := target
	if kind == vm.DelegateCall {
		recipient = caller
	}
	return host.Call(kind, vm.CallParameters{
		Sender:      caller,
		Recipient:   recipient,
		CodeAddress: target,
		Input:       input,
		Value:       uint256.NewInt(value),
		Gas:         1_000_000,
	})
}

func TestEcho_ReturnsMessageAndEmitsEvent(t *testing.T) {
	require := require.New(t)
	host := newHost(t)

	result := call(host, vm.Call, echo, EchoCall("hi"), 10)
	require.True(result.Success, "echo failed: %v", result.Err)

	values, err := echoABI.Unpack("echo", result.Output)
	require.NoError(err)
	require.Equal("hi", values[0])

	logs := host.State().Logs()
	require.Len(logs, 1)
	require.Equal(echo, logs[0].Address)
	require.Equal(Echoed{Caller: caller, Message: "hi", Value: uint256.NewInt(10)}, logs[0].Event)
	require.Equal(uint256.NewInt(10), host.State().GetBalance(echo))
}

func TestEcho_UnknownSelectorReverts(t *testing.T) {
	host := newHost(t)
	result := call(host, vm.Call, echo, []byte{0x12, 0x34, 0x56, 0x78}, 10)
	if result.Success || !errors.Is(result.Err, xcall.ErrReverted) {
		t.Fatalf("expected revert, got %v", result.Err)
	}
	if got := host.State().GetBalance(echo); !got.IsZero() {
		t.Errorf("value kept by reverted call: %v", got)
	}
}

func TestMulticall_DelegatedBatchMovesTheCallersTokens(t *testing.T) {
	require := require.New(t)
	host := newHost(t)

	batch := AggregateCall(
		Call{Target: token, CallData: xcall.TransferCall(receiver, uint256.NewInt(30))},
		Call{Target: echo, CallData: EchoCall("done")},
	)
	result := call(host, vm.DelegateCall, multicall, batch, 0)
	require.True(result.Success, "batch failed: %v", result.Err)

	require.Equal(uint256.NewInt(70), host.State().TokenBalance(token, caller))
	require.Equal(uint256.NewInt(30), host.State().TokenBalance(token, receiver))
	logs := host.State().Logs()
	require.Len(logs, 1)
	require.Equal(caller, logs[0].Event.(Echoed).Caller)
}

func TestMulticall_IsolatedBatchCanNotMoveTheCallersTokens(t *testing.T) {
	host := newHost(t)
	batch := AggregateCall(Call{Target: token, CallData: xcall.TransferCall(receiver, uint256.NewInt(30))})
	result := call(host, vm.Call, multicall, batch, 0)
	if result.Success || !errors.Is(result.Err, xcall.ErrInsufficientBalance) {
		t.Fatalf("expected failure, got %v", result.Err)
	}
	if got := host.State().TokenBalance(token, caller); got.Uint64() != 100 {
		t.Errorf("caller tokens were moved: %v", got)
	}
}

func TestMulticall_FailingCallRevertsTheWholeBatch(t *testing.T) {
	host := newHost(t)
	batch := AggregateCall(
		Call{Target: token, CallData: xcall.TransferCall(receiver, uint256.NewInt(30))},
		Call{Target: echo, CallData: []byte{1, 2, 3, 4}},
	)
	result := call(host, vm.DelegateCall, multicall, batch, 0)
	if result.Success {
		t.Fatalf("batch should have failed")
	}
	if got := host.State().TokenBalance(token, receiver); !got.IsZero() {
		t.Errorf("partial batch effects kept: %v", got)
	}
}

func TestPuller_NeedsAllowance(t *testing.T) {
	require := require.New(t)
	host := newHost(t)

	result := call(host, vm.Call, puller, PullCall(token, uint256.NewInt(10)), 0)
	require.False(result.Success)
	require.ErrorIs(result.Err, xcall.ErrInsufficientAllowance)

	host.State().Approve(token, caller, puller, uint256.NewInt(10))
	result = call(host, vm.Call, puller, PullCall(token, uint256.NewInt(10)), 0)
	require.True(result.Success, "pull failed: %v", result.Err)
	require.Equal(uint256.NewInt(10), host.State().TokenBalance(token, puller))
}

func TestMisbehavingContracts(t *testing.T) {
	tests := map[string]struct {
		code xcall.Contract
		want error
	}{
		"reverter":   {Reverter{}, xcall.ErrReverted},
		"gas burner": {GasBurner{}, xcall.ErrOutOfGas},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			host := newHost(t)
			target := common.Address{0xee}
			host.State().SetCode(target, test.code)
			result := call(host, vm.Call, target, []byte{1}, 0)
			if result.Success || !errors.Is(result.Err, test.want) {
				t.Errorf("expected %v, got %v", test.want, result.Err)
			}
		})
	}
}
