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

//go:generate mockgen -source contract.go -destination contract_mock.go -package xcall

// Contract is code deployed at an address of the host chain. Run is invoked
// for every call reaching the contract. Returning an error reverts all state
// changes made by the call.
type Contract interface {
	Run(ctx CallContext) ([]byte, error)
}
