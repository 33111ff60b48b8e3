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

// Event is a log entry emitted by a contract or by the relay.
type Event interface {
	EventName() string
}

type ExecutorCreated struct {
	Sender   common.Address
	Executor common.Address
	Target   common.Address
	Deadline uint64
}

type ExecutorReused struct {
	Sender   common.Address
	Executor common.Address
	Target   common.Address
	Deadline uint64
}

// ExecutorRecovered is emitted when the assets of an executor are swept back
// to its owner without executing the target.
type ExecutorRecovered struct {
	Executor common.Address
	Swept    []TokenAmount
}

type MessageReceived struct {
	MessageID   common.Hash
	SourceChain ChainID
	Sender      common.Address
}

type ExecutionSucceeded struct {
	MessageID common.Hash
	Sender    common.Address
	Target    common.Address
	Value     *uint256.Int
	CallData  []byte
}

type ExecutionFailed struct {
	MessageID common.Hash
	Sender    common.Address
	Target    common.Address
	Reason    string
}

// MessageFailed is emitted when a message could not be dispatched and was
// recorded in the failure ledger.
type MessageFailed struct {
	MessageID common.Hash
	Reason    string
}

type MessageRecovered struct {
	MessageID common.Hash
	Receiver  common.Address
}

type MessageSent struct {
	MessageID        common.Hash
	DestinationChain ChainID
	Receiver         common.Address
	Target           common.Address
	Value            *uint256.Int
	Fee              *uint256.Int
}

type Claimed struct {
	Account common.Address
	Token   common.Address
	Amount  *uint256.Int
}

func (ExecutorCreated) EventName() string    { return "ExecutorCreated" }
func (ExecutorReused) EventName() string     { return "ExecutorReused" }
func (ExecutorRecovered) EventName() string  { return "ExecutorRecovered" }
func (MessageReceived) EventName() string    { return "MessageReceived" }
func (ExecutionSucceeded) EventName() string { return "ExecutionSucceeded" }
func (ExecutionFailed) EventName() string    { return "ExecutionFailed" }
func (MessageFailed) EventName() string      { return "MessageFailed" }
func (MessageRecovered) EventName() string   { return "MessageRecovered" }
func (MessageSent) EventName() string        { return "MessageSent" }
func (Claimed) EventName() string            { return "Claimed" }
