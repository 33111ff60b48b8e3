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
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
)

// TokenContract is deployed at token addresses. Calls to it are served by
// the host's token ledger with the caller acting as msg.sender, following
// the xcall.ERC20 interface.
type TokenContract struct{}

func (TokenContract) Run(xcall.CallContext) ([]byte, error) {
	return nil, fmt.Errorf("%w: token ledger can not be delegated to", xcall.ErrReverted)
}

func isTokenContract(code xcall.Contract) bool {
	_, ok := code.(TokenContract)
	return ok
}

func (r runContext) runTokenContract(parameters CallParameters, gas uint64) CallResult {
	fail := func(err error) CallResult {
		return CallResult{GasLeft: gas, Err: err}
	}
	input := parameters.Input
	if len(input) < 4 {
		return fail(fmt.Errorf("%w: missing selector", xcall.ErrReverted))
	}
	method, err := xcall.ERC20.MethodById(input[:4])
	if err != nil {
		return fail(fmt.Errorf("%w: unknown token selector %x", xcall.ErrReverted, input[:4]))
	}
	args, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return fail(fmt.Errorf("%w: invalid %s arguments: %v", xcall.ErrReverted, method.Name, err))
	}

	s := r.host.state
	token := parameters.Recipient
	caller := parameters.Sender

	var cost uint64 = BalanceGas
	var effect func() (any, error)
	switch method.Name {
	case "transfer":
		cost = TokenTransferGas
		effect = func() (any, error) {
			return true, s.TransferToken(token, caller, args[0].(common.Address), amountArg(args[1]))
		}
	case "transferFrom":
		cost = TokenTransferGas
		effect = func() (any, error) {
			return true, s.TransferTokenFrom(token, caller, args[0].(common.Address), args[1].(common.Address), amountArg(args[2]))
		}
	case "approve":
		cost = ApproveGas
		effect = func() (any, error) {
			s.Approve(token, caller, args[0].(common.Address), amountArg(args[1]))
			return true, nil
		}
	case "balanceOf":
		effect = func() (any, error) {
			return s.TokenBalance(token, args[0].(common.Address)).ToBig(), nil
		}
	case "allowance":
		effect = func() (any, error) {
			return s.Allowance(token, args[0].(common.Address), args[1].(common.Address)).ToBig(), nil
		}
	default:
		return fail(fmt.Errorf("%w: unsupported token method %s", xcall.ErrReverted, method.Name))
	}

	if gas < cost {
		return CallResult{Err: xcall.ErrOutOfGas}
	}
	gas -= cost
	result, err := effect()
	if err != nil {
		return CallResult{GasLeft: gas, Err: err}
	}
	output, err := method.Outputs.Pack(result)
	if err != nil {
		return CallResult{GasLeft: gas, Err: err}
	}
	return CallResult{Output: output, GasLeft: gas, Success: true}
}

func amountArg(arg any) *uint256.Int {
	// abi decoding bounds the value to 256 bits
	value, _ := uint256.FromBig(arg.(*big.Int))
	return value
}
