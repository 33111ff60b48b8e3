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

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
	"golang.org/x/crypto/sha3"
)

const (
	ErrUnknownChain    = xcall.ConstError("unknown chain")
	ErrUnknownReceiver = xcall.ConstError("no receiver attached at destination")
	ErrFeeTooLow       = xcall.ConstError("fee too low")
	ErrDuplicateChain  = xcall.ConstError("chain already registered")
)

// FeeSchedule prices a message: BaseFee + len(payload)*ByteFee + gas*GasPrice.
type FeeSchedule struct {
	BaseFee  *uint256.Int
	ByteFee  *uint256.Int
	GasPrice *uint256.Int
}

func (f FeeSchedule) Fee(payloadSize int, gas uint64) *uint256.Int {
	orZero := func(v *uint256.Int) *uint256.Int {
		if v == nil {
			return new(uint256.Int)
		}
		return v
	}
	res := new(uint256.Int).Set(orZero(f.BaseFee))
	res.Add(res, new(uint256.Int).Mul(orZero(f.ByteFee), uint256.NewInt(uint64(payloadSize))))
	res.Add(res, new(uint256.Int).Mul(orZero(f.GasPrice), uint256.NewInt(gas)))
	return res
}

type delivery struct {
	destination xcall.ChainID
	receiver    common.Address
	message     xcall.Message
}

// Loopback is an in-memory channel connecting simulated chains of the same
// process. Messages are queued by Send and handed to their receivers by
// DeliverAll, each exactly once and in send order.
type Loopback struct {
	mu     sync.Mutex
	fees   FeeSchedule
	chains map[xcall.ChainID]*Endpoint
	queue  []delivery
	nonce  uint64
	log    log.Logger
}

func NewLoopback(fees FeeSchedule, logger log.Logger) *Loopback {
	if logger == nil {
		logger = log.Root()
	}
	return &Loopback{
		fees:   fees,
		chains: map[xcall.ChainID]*Endpoint{},
		log:    logger.New("component", "loopback"),
	}
}

// Register connects a chain to the loopback. The router of the chain lives
// at the given address of the chain's host.
func (l *Loopback) Register(chain xcall.ChainID, host *vm.Host, router common.Address) (*Endpoint, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, found := l.chains[chain]; found {
		return nil, fmt.Errorf("%w: %d", ErrDuplicateChain, chain)
	}
	endpoint := &Endpoint{
		loopback:  l,
		chain:     chain,
		host:      host,
		address:   router,
		receivers: map[common.Address]Receiver{},
	}
	l.chains[chain] = endpoint
	return endpoint, nil
}

// Pending is the number of queued, not yet delivered messages.
func (l *Loopback) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// DeliverAll delivers queued messages until the queue is empty, including
// messages sent while delivering. Rejected deliveries are rolled back on the
// destination chain and dropped; their errors are joined into the result.
func (l *Loopback) DeliverAll(ctx context.Context) (delivered int, err error) {
	var errs []error
	for {
		if err := ctx.Err(); err != nil {
			return delivered, errors.Join(append(errs, err)...)
		}
		next, ok := l.pop()
		if !ok {
			return delivered, errors.Join(errs...)
		}
		if err := l.deliver(next); err != nil {
			l.log.Warn("Delivery rejected", "id", next.message.ID, "destination", next.destination, "err", err)
			errs = append(errs, err)
			continue
		}
		delivered++
	}
}

func (l *Loopback) pop() (delivery, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return delivery{}, false
	}
	next := l.queue[0]
	l.queue = l.queue[1:]
	return next, true
}

func (l *Loopback) endpoint(chain xcall.ChainID) *Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.chains[chain]
}

func (l *Loopback) deliver(d delivery) error {
	destination := l.endpoint(d.destination)
	if destination == nil {
		return fmt.Errorf("%w: %d", ErrUnknownChain, d.destination)
	}
	receiver := destination.receiver(d.receiver)
	if receiver == nil {
		return fmt.Errorf("%w: %v on chain %d", ErrUnknownReceiver, d.receiver, d.destination)
	}

	s := destination.host.State()
	return s.Atomic(func() error {
		for _, token := range d.message.Tokens {
			if !s.HasCode(token.Token) {
				s.SetCode(token.Token, vm.TokenContract{})
			}
			if err := s.Mint(token.Token, d.receiver, token.Amount); err != nil {
				return err
			}
		}
		l.log.Debug("Delivering message", "id", d.message.ID, "source", d.message.SourceChain, "destination", d.destination)
		return receiver.Receive(destination.address, d.message.Copy())
	})
}

// MessageID derives the identifier of the nonce-th message of the loopback.
func MessageID(source, destination xcall.ChainID, nonce uint64, sender common.Address, payload []byte) common.Hash {
	hasher := sha3.NewLegacyKeccak256()
	var buffer [8]byte
	for _, field := range []uint64{uint64(source), uint64(destination), nonce} {
		binary.BigEndian.PutUint64(buffer[:], field)
		hasher.Write(buffer[:])
	}
	hasher.Write(sender[:])
	hasher.Write(payload)
	var res common.Hash
	hasher.Sum(res[:0])
	return res
}

// Endpoint is the Router of a single chain connected to a Loopback.
type Endpoint struct {
	loopback  *Loopback
	chain     xcall.ChainID
	host      *vm.Host
	address   common.Address
	receivers map[common.Address]Receiver // guarded by loopback.mu
}

func (e *Endpoint) Chain() xcall.ChainID {
	return e.chain
}

func (e *Endpoint) Address() common.Address {
	return e.address
}

// Attach makes receiver the handler of messages addressed to the given
// account of this chain.
func (e *Endpoint) Attach(address common.Address, receiver Receiver) {
	e.loopback.mu.Lock()
	defer e.loopback.mu.Unlock()
	e.receivers[address] = receiver
}

func (e *Endpoint) receiver(address common.Address) Receiver {
	e.loopback.mu.Lock()
	defer e.loopback.mu.Unlock()
	return e.receivers[address]
}

func (e *Endpoint) EstimateFee(ctx context.Context, envelope xcall.Envelope) (*uint256.Int, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if e.loopback.endpoint(envelope.DestinationChain) == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownChain, envelope.DestinationChain)
	}
	return e.loopback.fees.Fee(len(envelope.Payload), envelope.GasLimit), nil
}

// Send queues the envelope for delivery. The attached tokens and the fee are
// expected to have been moved to the endpoint's address already.
func (e *Endpoint) Send(ctx context.Context, from common.Address, envelope xcall.Envelope, fee *uint256.Int) (common.Hash, error) {
	required, err := e.EstimateFee(ctx, envelope)
	if err != nil {
		return common.Hash{}, err
	}
	if fee == nil || fee.Cmp(required) < 0 {
		return common.Hash{}, fmt.Errorf("%w: paid %v, required %v", ErrFeeTooLow, fee, required)
	}

	l := e.loopback
	l.mu.Lock()
	defer l.mu.Unlock()
	id := MessageID(e.chain, envelope.DestinationChain, l.nonce, from, envelope.Payload)
	l.nonce++
	message := xcall.Message{
		ID:          id,
		SourceChain: e.chain,
		Sender:      from,
		Payload:     envelope.Payload,
		Tokens:      envelope.Tokens,
		GasLimit:    envelope.GasLimit,
	}
	l.queue = append(l.queue, delivery{
		destination: envelope.DestinationChain,
		receiver:    envelope.Receiver,
		message:     message.Copy(),
	})
	l.log.Info("Message queued", "id", id, "source", e.chain, "destination", envelope.DestinationChain, "tokens", len(envelope.Tokens))
	return id, nil
}
