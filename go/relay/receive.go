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
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panoptisDev/xcall/go/xcall"
)

// Receive is called by the router for every message addressed to the
// relay. Only messages from an unknown caller, from a chain that is not
// allowlisted, or from an account other than the trusted relay of that
// chain are rejected. Everything going wrong past that point is recorded in
// the failure ledger; the delivery itself succeeds.
func (r *Relay) Receive(caller common.Address, msg xcall.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if caller != r.router.Address() {
		return &xcall.UnauthorizedError{Caller: caller}
	}
	if err := r.checkSource(msg); err != nil {
		return err
	}
	r.metrics.received.Inc(1)
	r.emit(xcall.MessageReceived{MessageID: msg.ID, SourceChain: msg.SourceChain, Sender: msg.Sender})

	err := r.state().Atomic(func() error {
		return r.process(msg)
	})
	if err != nil {
		r.recordFailure(msg, err)
	}
	return nil
}

// process validates msg, hands its assets to the sender's executor and runs
// the execution. It fails only if the message could not be dispatched; a
// failing target is recovered from and reported as ExecutionFailed.
func (r *Relay) process(msg xcall.Message) error {
	if err := r.checkSource(msg); err != nil {
		return err
	}
	for i, token := range msg.Tokens {
		if token.Amount == nil {
			return fmt.Errorf("%w: no amount for token %d (%v)", xcall.ErrMalformedPayload, i, token.Token)
		}
	}
	request, err := xcall.DecodeExecutionRequest(msg.Payload)
	if err != nil {
		return err
	}
	key := r.replayKey(msg)
	if r.get(usedSlot(key)) == used {
		return &xcall.ReplayError{Key: key}
	}
	r.set(usedSlot(key), used)

	sender := request.OriginalSender
	exec, recovered, err := r.factory.GetOrCreate(sender, request.Target)
	if err != nil {
		return err
	}
	// leftovers of an abandoned execution belong to the same sender
	r.credit(sender, recovered)

	s := r.state()
	for _, token := range msg.Tokens {
		if err := r.reserve(token.Token, token.Amount); err != nil {
			return err
		}
		if err := s.TransferToken(token.Token, r.address, exec.Address(), token.Amount); err != nil {
			return fmt.Errorf("failed to hand over token %v: %w", token.Token, err)
		}
		if err := exec.AddTrackedToken(r.address, token.Token); err != nil {
			return err
		}
	}

	gas := msg.GasLimit
	if gas == 0 {
		gas = MaxGasLimit
	}
	// the value is fronted from funds not owed to anyone
	if err := r.reserve(xcall.NativeToken, request.Value); err != nil {
		return err
	}
	swept, execErr := exec.ExecuteAndCleanup(r.address, request.CallData, request.Value, gas)
	var failure *xcall.ExecutionFailedError
	if execErr != nil && !errors.As(execErr, &failure) {
		return fmt.Errorf("failed to execute on %v: %w", exec.Address(), execErr)
	}
	if execErr != nil {
		swept, err := exec.RecoverTokens(r.address)
		if err != nil {
			return fmt.Errorf("failed to recover executor %v: %w", exec.Address(), err)
		}
		r.credit(sender, swept)
		// the target call was rolled back, the fronted value is still here
		if request.Value != nil && !request.Value.IsZero() {
			r.credit(sender, []xcall.TokenAmount{{Token: xcall.NativeToken, Amount: request.Value}})
		}
		r.emit(xcall.ExecutionFailed{
			MessageID: msg.ID,
			Sender:    sender,
			Target:    request.Target,
			Reason:    execErr.Error(),
		})
		r.metrics.failed.Inc(1)
		r.log.Info("Execution failed, assets recovered", "id", msg.ID, "sender", sender, "target", request.Target, "err", execErr)
		return nil
	}

	r.credit(sender, swept)
	r.emit(xcall.ExecutionSucceeded{
		MessageID: msg.ID,
		Sender:    sender,
		Target:    request.Target,
		Value:     request.Value,
		CallData:  request.CallData,
	})
	r.metrics.succeeded.Inc(1)
	r.log.Debug("Execution succeeded", "id", msg.ID, "sender", sender, "target", request.Target)
	return nil
}

func (r *Relay) recordFailure(msg xcall.Message, cause error) {
	if _, found := r.failed[msg.ID]; !found {
		r.failedOrder = append(r.failedOrder, msg.ID)
	}
	r.failed[msg.ID] = &xcall.FailedExecutionRecord{
		MessageID: msg.ID,
		Status:    xcall.Failed,
		Reason:    cause.Error(),
		Message:   msg.Copy(),
	}
	r.emit(xcall.MessageFailed{MessageID: msg.ID, Reason: cause.Error()})
	r.metrics.recorded.Inc(1)
	r.log.Warn("Message dispatch failed", "id", msg.ID, "source", msg.SourceChain, "err", cause)
}

// Retry resolves a failed message by sweeping the tokens it carried to
// receiver. The execution is not attempted again.
func (r *Relay) Retry(caller common.Address, messageID common.Hash, receiver common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	if receiver == (common.Address{}) {
		return fmt.Errorf("token receiver: %w", xcall.ErrZeroAddress)
	}
	record, found := r.failed[messageID]
	if !found || record.Status != xcall.Failed {
		return fmt.Errorf("%w: %v", xcall.ErrMessageNotFailed, messageID)
	}

	s := r.state()
	err := s.Atomic(func() error {
		for _, token := range record.Message.Tokens {
			if err := r.reserve(token.Token, token.Amount); err != nil {
				return err
			}
			if err := s.TransferToken(token.Token, r.address, receiver, token.Amount); err != nil {
				return fmt.Errorf("failed to release token %v: %w", token.Token, err)
			}
		}
		r.emit(xcall.MessageRecovered{MessageID: messageID, Receiver: receiver})
		return nil
	})
	if err != nil {
		return err
	}
	record.Status = xcall.Resolved
	r.metrics.retried.Inc(1)
	r.log.Info("Failed message resolved", "id", messageID, "receiver", receiver)
	return nil
}

// ListFailed returns a page of the failure ledger in insertion order. An
// offset past the end yields an empty page.
func (r *Relay) ListFailed(offset, limit uint64) []xcall.FailedMessageStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := uint64(len(r.failedOrder))
	if offset >= total {
		return []xcall.FailedMessageStatus{}
	}
	end := total
	if limit < total-offset {
		end = offset + limit
	}
	res := make([]xcall.FailedMessageStatus, 0, end-offset)
	for _, id := range r.failedOrder[offset:end] {
		res = append(res, xcall.FailedMessageStatus{MessageID: id, Status: r.failed[id].Status})
	}
	return res
}

// FailedCount is the number of entries of the failure ledger.
func (r *Relay) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failedOrder)
}

// FailedMessage returns the failure ledger entry of the given message.
func (r *Relay) FailedMessage(messageID common.Hash) (xcall.FailedExecutionRecord, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, found := r.failed[messageID]
	if !found {
		return xcall.FailedExecutionRecord{}, false
	}
	res := *record
	res.Message = record.Message.Copy()
	return res, true
}
