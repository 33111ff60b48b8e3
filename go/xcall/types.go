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

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ChainID identifies a chain reachable through the transport.
type ChainID uint64

// NativeToken is the token address used to refer to the chain's native
// currency in escrow bookkeeping.
var NativeToken = common.Address{}

// TokenAmount is a single token attachment of a message.
type TokenAmount struct {
	Token  common.Address
	Amount *uint256.Int
}

func (t TokenAmount) String() string {
	return fmt.Sprintf("%v:%v", t.Token, t.Amount)
}

// Message is a cross-chain message as delivered by the transport to the
// receiving relay. Attached tokens have been credited to the receiver before
// the message is delivered.
type Message struct {
	ID          common.Hash    // transport assigned message identifier
	SourceChain ChainID        // the chain the message originates from
	Sender      common.Address // the sending relay on the source chain
	Payload     []byte         // encoded ExecutionRequest
	Tokens      []TokenAmount  // tokens bridged along with the message
	GasLimit    uint64         // gas available for the target call
}

// Copy returns a deep copy of the message.
func (m Message) Copy() Message {
	res := m
	res.Payload = common.CopyBytes(m.Payload)
	if m.Tokens == nil {
		return res
	}
	res.Tokens = make([]TokenAmount, len(m.Tokens))
	for i, token := range m.Tokens {
		res.Tokens[i] = TokenAmount{Token: token.Token}
		if token.Amount != nil {
			res.Tokens[i].Amount = new(uint256.Int).Set(token.Amount)
		}
	}
	return res
}

// Envelope is what a sending relay hands to the transport.
type Envelope struct {
	DestinationChain ChainID
	Receiver         common.Address
	Payload          []byte
	Tokens           []TokenAmount
	GasLimit         uint64
}

// Status is the state of a message recorded in the failure ledger.
type Status uint8

const (
	Resolved Status = iota
	Failed
)

func (s Status) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", uint8(s))
	}
}

// FailedExecutionRecord is the failure ledger entry of a message whose
// dispatch could not be completed.
type FailedExecutionRecord struct {
	MessageID common.Hash
	Status    Status
	Reason    string
	Message   Message
}

// FailedMessageStatus is a page entry of the failure ledger listing.
type FailedMessageStatus struct {
	MessageID common.Hash
	Status    Status
}
