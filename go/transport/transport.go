// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package transport

//go:generate mockgen -source transport.go -destination transport_mock.go -package transport

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
)

// Router is the source chain side of the trusted cross-chain channel.
// Before calling Send, the sender moves the attached tokens and the fee to
// the router's address on the source chain.
type Router interface {
	// Address is the account of the router on its chain.
	Address() common.Address
	EstimateFee(ctx context.Context, envelope xcall.Envelope) (*uint256.Int, error)
	Send(ctx context.Context, from common.Address, envelope xcall.Envelope, fee *uint256.Int) (common.Hash, error)
}

// Receiver is the destination chain side. The router delivers every accepted
// message exactly once; attached tokens are credited to the receiver before
// Receive is called. An error is only expected for deliveries the receiver
// does not accept and rolls back the delivery.
type Receiver interface {
	Receive(caller common.Address, msg xcall.Message) error
}
