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
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// CallContext is the view a running contract has of the host chain. All asset
// operations act on behalf of Self, which is the account whose assets the
// running code controls. For context preserving calls Self is the calling
// account rather than the address the code was loaded from.
type CallContext interface {
	Self() common.Address        // the account whose assets are controlled
	Caller() common.Address      // the immediate caller of the frame
	CodeAddress() common.Address // the address the running code was loaded from
	Value() *uint256.Int         // native value attached to the call
	Input() []byte               // call data
	Timestamp() uint64           // timestamp of the current block
	GasLeft() uint64
	UseGas(amount uint64) error

	Balance(account common.Address) *uint256.Int
	// Call invokes target with Self as the caller, forwarding value.
	Call(target common.Address, input []byte, value *uint256.Int) ([]byte, error)

	TokenBalance(token, holder common.Address) *uint256.Int
	TokenAllowance(token, holder, spender common.Address) *uint256.Int
	TransferToken(token, to common.Address, amount *uint256.Int) error
	// TransferTokenFrom moves tokens of from, spending the allowance granted to Self.
	TransferTokenFrom(token, from, to common.Address, amount *uint256.Int) error
	ApproveToken(token, spender common.Address, amount *uint256.Int) error

	GetStorage(key common.Hash) common.Hash
	SetStorage(key, value common.Hash) error

	Emit(event Event) error
}
