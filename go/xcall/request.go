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

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

// ExecutionRequest is the instruction carried by a message: call Target with
// CallData and Value on behalf of OriginalSender.
type ExecutionRequest struct {
	Target         common.Address
	Value          *uint256.Int
	CallData       []byte
	OriginalSender common.Address
}

// requestArguments is the ABI tuple (address,uint256,bytes,address).
var requestArguments = func() abi.Arguments {
	mustType := func(name string) abi.Type {
		t, err := abi.NewType(name, "", nil)
		if err != nil {
			panic(err)
		}
		return t
	}
	return abi.Arguments{
		{Name: "target", Type: mustType("address")},
		{Name: "value", Type: mustType("uint256")},
		{Name: "callData", Type: mustType("bytes")},
		{Name: "originalSender", Type: mustType("address")},
	}
}()

// Encode produces the ABI encoding of the request.
func (r ExecutionRequest) Encode() ([]byte, error) {
	value := new(big.Int)
	if r.Value != nil {
		value = r.Value.ToBig()
	}
	data := r.CallData
	if data == nil {
		data = []byte{}
	}
	return requestArguments.Pack(r.Target, value, data, r.OriginalSender)
}

// DecodeExecutionRequest parses an ABI encoded request.
func DecodeExecutionRequest(payload []byte) (ExecutionRequest, error) {
	values, err := requestArguments.Unpack(payload)
	if err != nil {
		return ExecutionRequest{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if len(values) != len(requestArguments) {
		return ExecutionRequest{}, fmt.Errorf("%w: got %d fields", ErrMalformedPayload, len(values))
	}
	target, ok1 := values[0].(common.Address)
	valueBig, ok2 := values[1].(*big.Int)
	callData, ok3 := values[2].([]byte)
	sender, ok4 := values[3].(common.Address)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return ExecutionRequest{}, fmt.Errorf("%w: unexpected field types", ErrMalformedPayload)
	}
	value, overflow := uint256.FromBig(valueBig)
	if overflow {
		return ExecutionRequest{}, fmt.Errorf("%w: value overflow", ErrMalformedPayload)
	}
	return ExecutionRequest{
		Target:         target,
		Value:          value,
		CallData:       callData,
		OriginalSender: sender,
	}, nil
}

// PayloadHash is the content hash of an encoded request.
func PayloadHash(payload []byte) common.Hash {
	return crypto.Keccak256Hash(payload)
}
