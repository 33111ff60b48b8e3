// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package xcall

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const erc20JSON = `[
	{"type":"function","name":"transfer","stateMutability":"nonpayable",
	 "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"transferFrom","stateMutability":"nonpayable",
	 "inputs":[{"name":"from","type":"address"},{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable",
	 "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	 "outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"holder","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"allowance","stateMutability":"view",
	 "inputs":[{"name":"holder","type":"address"},{"name":"spender","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]}
]`

// ERC20 is the ABI of the token interface served by the host's token ledger.
var ERC20 = MustParseABI(erc20JSON)

// MustParseABI parses a JSON ABI definition, panicking on malformed input.
func MustParseABI(definition string) abi.ABI {
	res, err := abi.JSON(strings.NewReader(definition))
	if err != nil {
		panic(fmt.Sprintf("invalid ABI definition: %v", err))
	}
	return res
}

func mustPack(a abi.ABI, method string, args ...any) []byte {
	res, err := a.Pack(method, args...)
	if err != nil {
		panic(fmt.Sprintf("failed to pack %s: %v", method, err))
	}
	return res
}

func toBig(value *uint256.Int) *big.Int {
	if value == nil {
		return new(big.Int)
	}
	return value.ToBig()
}

// TransferCall is the call data of transfer(to, amount).
func TransferCall(to common.Address, amount *uint256.Int) []byte {
	return mustPack(ERC20, "transfer", to, toBig(amount))
}

// TransferFromCall is the call data of transferFrom(from, to, amount).
func TransferFromCall(from, to common.Address, amount *uint256.Int) []byte {
	return mustPack(ERC20, "transferFrom", from, to, toBig(amount))
}

// ApproveCall is the call data of approve(spender, amount).
func ApproveCall(spender common.Address, amount *uint256.Int) []byte {
	return mustPack(ERC20, "approve", spender, toBig(amount))
}

// BalanceOfCall is the call data of balanceOf(holder).
func BalanceOfCall(holder common.Address) []byte {
	return mustPack(ERC20, "balanceOf", holder)
}
