// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package relay

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
)

// SendRequest asks for Target to be called with CallData and Value on the
// destination chain. Tokens and Amounts are parallel lists of the tokens
// bridged along with the request.
type SendRequest struct {
	DestinationChain xcall.ChainID
	Receiver         common.Address // the relay on the destination chain
	Target           common.Address
	Value            *uint256.Int
	Tokens           []common.Address
	Amounts          []*uint256.Int
	CallData         []byte
	GasLimit         uint64
}

func (req SendRequest) value() *uint256.Int {
	if req.Value == nil {
		return new(uint256.Int)
	}
	return req.Value
}

// envelope encodes the request of sender for the router.
func (req SendRequest) envelope(sender common.Address) (xcall.Envelope, error) {
	if len(req.Tokens) != len(req.Amounts) {
		return xcall.Envelope{}, &xcall.LengthMismatchError{Tokens: len(req.Tokens), Amounts: len(req.Amounts)}
	}
	payload, err := xcall.ExecutionRequest{
		Target:         req.Target,
		Value:          req.value(),
		CallData:       req.CallData,
		OriginalSender: sender,
	}.Encode()
	if err != nil {
		return xcall.Envelope{}, fmt.Errorf("failed to encode request: %w", err)
	}
	tokens := make([]xcall.TokenAmount, 0, len(req.Tokens))
	for i, token := range req.Tokens {
		amount := req.Amounts[i]
		if amount == nil {
			amount = new(uint256.Int)
		}
		tokens = append(tokens, xcall.TokenAmount{Token: token, Amount: new(uint256.Int).Set(amount)})
	}
	return xcall.Envelope{
		DestinationChain: req.DestinationChain,
		Receiver:         req.Receiver,
		Payload:          payload,
		Tokens:           tokens,
		GasLimit:         req.GasLimit,
	}, nil
}

// EstimateFee returns the router fee for sending req from sender.
func (r *Relay) EstimateFee(ctx context.Context, sender common.Address, req SendRequest) (*uint256.Int, error) {
	envelope, err := req.envelope(sender)
	if err != nil {
		return nil, err
	}
	return r.router.EstimateFee(ctx, envelope)
}

func (r *Relay) validate(req SendRequest) error {
	if _, found := r.destinationChains[req.DestinationChain]; !found {
		return &xcall.ChainNotAllowedError{Chain: req.DestinationChain}
	}
	if len(req.Tokens) != len(req.Amounts) {
		return &xcall.LengthMismatchError{Tokens: len(req.Tokens), Amounts: len(req.Amounts)}
	}
	for _, token := range req.Tokens {
		if _, found := r.tokens[token]; !found {
			return &xcall.TokenNotAllowedError{Token: token}
		}
	}
	if req.GasLimit < MinGasLimit {
		return &xcall.GasLimitTooLowError{Provided: req.GasLimit, Min: MinGasLimit}
	}
	if req.GasLimit > MaxGasLimit {
		return &xcall.GasLimitTooHighError{Provided: req.GasLimit, Max: MaxGasLimit}
	}
	return nil
}

// Send hands a request of caller to the router. msgValue is the native
// value paid along with the call; it must cover the router fee and the
// value to be forwarded to the target. The forwarded value stays with this
// relay, any excess is returned to the caller. Attached tokens are taken
// from the caller using the allowance granted to the relay.
// Nothing is charged if the request is rejected.
func (r *Relay) Send(ctx context.Context, caller common.Address, msgValue *uint256.Int, req SendRequest) (common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.validate(req); err != nil {
		return common.Hash{}, err
	}
	envelope, err := req.envelope(caller)
	if err != nil {
		return common.Hash{}, err
	}
	fee, err := r.router.EstimateFee(ctx, envelope)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to estimate fee: %w", err)
	}
	if msgValue == nil {
		msgValue = new(uint256.Int)
	}
	required, overflow := new(uint256.Int).AddOverflow(fee, req.value())
	if overflow || msgValue.Cmp(required) < 0 {
		return common.Hash{}, &xcall.NotEnoughBalanceError{Provided: new(uint256.Int).Set(msgValue), Required: required}
	}

	var id common.Hash
	s := r.state()
	router := r.router.Address()
	err = s.Atomic(func() error {
		if err := s.Transfer(caller, r.address, msgValue); err != nil {
			return err
		}
		for _, token := range envelope.Tokens {
			if err := s.TransferTokenFrom(token.Token, r.address, caller, r.address, token.Amount); err != nil {
				return fmt.Errorf("failed to collect token %v: %w", token.Token, err)
			}
			if err := s.TransferToken(token.Token, r.address, router, token.Amount); err != nil {
				return err
			}
		}
		if err := s.Transfer(r.address, router, fee); err != nil {
			return err
		}
		excess := new(uint256.Int).Sub(msgValue, required)
		if err := s.Transfer(r.address, caller, excess); err != nil {
			return err
		}
		locked := r.getAmount(lockedSlot)
		r.setAmount(lockedSlot, locked.Add(locked, req.value()))

		id, err = r.router.Send(ctx, r.address, envelope, fee)
		if err != nil {
			return fmt.Errorf("router rejected message: %w", err)
		}
		r.emit(xcall.MessageSent{
			MessageID:        id,
			DestinationChain: req.DestinationChain,
			Receiver:         req.Receiver,
			Target:           req.Target,
			Value:            new(uint256.Int).Set(req.value()),
			Fee:              fee,
		})
		return nil
	})
	if err != nil {
		return common.Hash{}, err
	}
	r.metrics.sent.Inc(1)
	r.log.Info("Message sent", "id", id, "destination", req.DestinationChain, "target", req.Target, "fee", fee)
	return id, nil
}

// Claim pays out the escrow of caller for the given token. Native value is
// claimed with xcall.NativeToken.
func (r *Relay) Claim(caller, token common.Address) (*uint256.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	amount := r.getAmount(escrowSlot(caller, token))
	if amount.IsZero() {
		return amount, nil
	}
	s := r.state()
	err := s.Atomic(func() error {
		r.debit(caller, token, amount)
		var err error
		if token == xcall.NativeToken {
			err = s.Transfer(r.address, caller, amount)
		} else {
			err = s.TransferToken(token, r.address, caller, amount)
		}
		if err != nil {
			return err
		}
		r.emit(xcall.Claimed{Account: caller, Token: token, Amount: new(uint256.Int).Set(amount)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	r.metrics.claimed.Inc(1)
	r.log.Debug("Escrow claimed", "account", caller, "token", token, "amount", amount)
	return amount, nil
}
