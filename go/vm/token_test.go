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
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
	"github.com/stretchr/testify/require"
)

func newTokenHost(t *testing.T) *Host {
	host := newTestHost()
	host.State().SetCode(token, TokenContract{})
	if err := host.State().Mint(token, sender, uint256.NewInt(100)); err != nil {
		t.Fatal(err)
	}
	return host
}

func callToken(host *Host, caller common.Address, input []byte) CallResult {
	return host.Call(Call, CallParameters{
		Sender:      caller,
		Recipient:   token,
		CodeAddress: token,
		Input:       input,
		Gas:         100_000,
	})
}

func TestTokenContract_TransferMovesCallerTokens(t *testing.T) {
	require := require.New(t)
	host := newTokenHost(t)

	result := callToken(host, sender, xcall.TransferCall(recipient, uint256.NewInt(40)))
	require.True(result.Success, "transfer failed: %v", result.Err)
	require.Equal(uint256.NewInt(60), host.State().TokenBalance(token, sender))
	require.Equal(uint256.NewInt(40), host.State().TokenBalance(token, recipient))

	result = callToken(host, sender, xcall.BalanceOfCall(recipient))
	require.True(result.Success, "balanceOf failed: %v", result.Err)
	values, err := xcall.ERC20.Unpack("balanceOf", result.Output)
	require.NoError(err)
	require.Equal(big.NewInt(40), values[0])
}

func TestTokenContract_TransferFromRequiresAllowance(t *testing.T) {
	require := require.New(t)
	host := newTokenHost(t)

	result := callToken(host, recipient, xcall.TransferFromCall(sender, recipient, uint256.NewInt(10)))
	require.False(result.Success)
	require.ErrorIs(result.Err, xcall.ErrInsufficientAllowance)

	result = callToken(host, sender, xcall.ApproveCall(recipient, uint256.NewInt(10)))
	require.True(result.Success, "approve failed: %v", result.Err)

	result = callToken(host, recipient, xcall.TransferFromCall(sender, recipient, uint256.NewInt(10)))
	require.True(result.Success, "transferFrom failed: %v", result.Err)
	require.Equal(uint256.NewInt(10), host.State().TokenBalance(token, recipient))
	require.True(host.State().Allowance(token, sender, recipient).IsZero())
}

func TestTokenContract_InvalidCallsFail(t *testing.T) {
	tests := map[string][]byte{
		"empty":            nil,
		"unknown selector": {0xde, 0xad, 0xbe, 0xef},
		"truncated args":   xcall.TransferCall(recipient, uint256.NewInt(1))[:20],
		"insufficient":     xcall.TransferCall(recipient, uint256.NewInt(101)),
	}
	for name, input := range tests {
		t.Run(name, func(t *testing.T) {
			host := newTokenHost(t)
			result := callToken(host, sender, input)
			if result.Success {
				t.Fatalf("call should have failed")
			}
			if !errors.Is(result.Err, xcall.ErrReverted) && !errors.Is(result.Err, xcall.ErrInsufficientBalance) {
				t.Errorf("unexpected error %v", result.Err)
			}
		})
	}
}

func TestTokenContract_CanNotBeDelegatedTo(t *testing.T) {
	host := newTokenHost(t)
	result := host.Call(DelegateCall, CallParameters{
		Sender:      sender,
		Recipient:   recipient,
		CodeAddress: token,
		Input:       xcall.TransferCall(sender, uint256.NewInt(1)),
		Gas:         100_000,
	})
	if result.Success || !errors.Is(result.Err, xcall.ErrReverted) {
		t.Errorf("expected revert, got %v", result.Err)
	}
}
