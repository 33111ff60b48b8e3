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
	"encoding/binary"
	"fmt"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/metrics"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/executor"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/transport"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
	"golang.org/x/exp/maps"
)

// Bounds of the gas limit a sender may request for the execution of a
// message on the destination chain.
const (
	MinGasLimit = 100_000
	MaxGasLimit = 5_000_000
)

// ReplayScope selects what identifies a message for replay protection.
type ReplayScope int

const (
	// ReplayByContent rejects any payload that has been executed before,
	// even if it arrives in a different transport message.
	ReplayByContent ReplayScope = iota
	// ReplayByMessage rejects transport messages delivered twice.
	ReplayByMessage
)

func (s ReplayScope) String() string {
	switch s {
	case ReplayByContent:
		return "content"
	case ReplayByMessage:
		return "message"
	default:
		return fmt.Sprintf("ReplayScope(%d)", int(s))
	}
}

// ParseReplayScope is the inverse of ReplayScope.String.
func ParseReplayScope(name string) (ReplayScope, error) {
	switch name {
	case "", "content":
		return ReplayByContent, nil
	case "message":
		return ReplayByMessage, nil
	}
	return 0, fmt.Errorf("unknown replay scope %q", name)
}

// Config holds the deployment parameters of a relay.
type Config struct {
	ChainID     xcall.ChainID
	Address     common.Address // the account of the relay on its chain
	Owner       common.Address
	Window      uint64 // execution window in seconds, executor.DefaultWindow if zero
	ReplayScope ReplayScope
	Logger      log.Logger       // log.Root() if nil
	Registry    metrics.Registry // a private registry if nil
}

// Relay dispatches messages delivered by a trusted router to per-sender
// executors and sends messages to relays on other chains. All operations
// are serialized; a Relay is safe for concurrent use.
type Relay struct {
	mu sync.Mutex

	chainID     xcall.ChainID
	address     common.Address
	owner       common.Address
	replayScope ReplayScope

	host    *vm.Host
	router  transport.Router
	modes   *executor.CallModes
	factory *executor.Factory

	sourceChains      map[xcall.ChainID]common.Address // the trusted relay of each source
	destinationChains map[xcall.ChainID]struct{}
	tokens            map[common.Address]struct{}

	failed      map[common.Hash]*xcall.FailedExecutionRecord
	failedOrder []common.Hash

	log     log.Logger
	metrics *relayMetrics
}

// New creates a relay running on the given host. The call-mode registry is
// shared with the relay's executors; a nil registry is replaced by
// executor.NewDefaultCallModes().
func New(config Config, host *vm.Host, router transport.Router, modes *executor.CallModes) (*Relay, error) {
	if config.Address == (common.Address{}) {
		return nil, fmt.Errorf("relay address: %w", xcall.ErrZeroAddress)
	}
	if config.Owner == (common.Address{}) {
		return nil, fmt.Errorf("relay owner: %w", xcall.ErrZeroAddress)
	}
	if host == nil || router == nil {
		return nil, fmt.Errorf("relay requires a host and a router")
	}
	if modes == nil {
		modes = executor.NewDefaultCallModes()
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Root()
	}
	registry := config.Registry
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Relay{
		chainID:           config.ChainID,
		address:           config.Address,
		owner:             config.Owner,
		replayScope:       config.ReplayScope,
		host:              host,
		router:            router,
		modes:             modes,
		factory:           executor.NewFactory(config.Address, host, modes, config.Window, logger),
		sourceChains:      map[xcall.ChainID]common.Address{},
		destinationChains: map[xcall.ChainID]struct{}{},
		tokens:            map[common.Address]struct{}{},
		failed:            map[common.Hash]*xcall.FailedExecutionRecord{},
		log:               logger.New("component", "relay", "chain", config.ChainID),
		metrics:           newRelayMetrics(registry),
	}, nil
}

func (r *Relay) Address() common.Address {
	return r.address
}

func (r *Relay) ChainID() xcall.ChainID {
	return r.chainID
}

func (r *Relay) Owner() common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

func (r *Relay) state() *state.State {
	return r.host.State()
}

func (r *Relay) emit(event xcall.Event) {
	r.state().AddLog(state.Log{Address: r.address, Event: event})
}

func (r *Relay) checkOwner(caller common.Address) error {
	if caller != r.owner {
		return &xcall.UnauthorizedError{Caller: caller}
	}
	return nil
}

// Predict returns the address of the executor of sender.
func (r *Relay) Predict(sender common.Address) common.Address {
	return r.factory.Predict(sender)
}

// Executor returns a handle to the executor of sender.
func (r *Relay) Executor(sender common.Address) *executor.Executor {
	return r.factory.Executor(sender)
}

// --- relay storage ---

var (
	usedPrefix   = []byte("used")
	escrowPrefix = []byte("escrow")
	owedPrefix   = []byte("owed")
	lockedSlot   = crypto.Keccak256Hash([]byte("locked"))
	used         = common.BytesToHash([]byte{1})
)

func (r *Relay) get(slot common.Hash) common.Hash {
	return r.state().GetState(r.address, r.address, slot)
}

func (r *Relay) set(slot, value common.Hash) {
	r.state().SetState(r.address, r.address, slot, value)
}

func (r *Relay) getAmount(slot common.Hash) *uint256.Int {
	value := r.get(slot)
	return new(uint256.Int).SetBytes32(value[:])
}

func (r *Relay) setAmount(slot common.Hash, amount *uint256.Int) {
	r.set(slot, amount.Bytes32())
}

func (r *Relay) replayKey(msg xcall.Message) common.Hash {
	if r.replayScope == ReplayByMessage {
		var chain [8]byte
		binary.BigEndian.PutUint64(chain[:], uint64(msg.SourceChain))
		return crypto.Keccak256Hash(chain[:], msg.ID[:])
	}
	return xcall.PayloadHash(msg.Payload)
}

func usedSlot(key common.Hash) common.Hash {
	return crypto.Keccak256Hash(usedPrefix, key[:])
}

// IsUsed reports whether the given replay key has been consumed.
func (r *Relay) IsUsed(key common.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(usedSlot(key)) == used
}

func escrowSlot(account, token common.Address) common.Hash {
	return crypto.Keccak256Hash(escrowPrefix, account[:], token[:])
}

// owedSlot holds the sum of all escrow balances of a token.
func owedSlot(token common.Address) common.Hash {
	return crypto.Keccak256Hash(owedPrefix, token[:])
}

// credit books assets held by the relay to the escrow of account.
func (r *Relay) credit(account common.Address, assets []xcall.TokenAmount) {
	for _, asset := range assets {
		slot := escrowSlot(account, asset.Token)
		balance := r.getAmount(slot)
		r.setAmount(slot, balance.Add(balance, asset.Amount))
		owed := r.getAmount(owedSlot(asset.Token))
		r.setAmount(owedSlot(asset.Token), owed.Add(owed, asset.Amount))
	}
}

// debit removes amount from the escrow of account. The caller pays it out.
func (r *Relay) debit(account, token common.Address, amount *uint256.Int) {
	slot := escrowSlot(account, token)
	r.setAmount(slot, new(uint256.Int).Sub(r.getAmount(slot), amount))
	owed := r.getAmount(owedSlot(token))
	r.setAmount(owedSlot(token), owed.Sub(owed, amount))
}

func (r *Relay) holding(token common.Address) *uint256.Int {
	if token == xcall.NativeToken {
		return r.state().GetBalance(r.address)
	}
	return r.state().TokenBalance(token, r.address)
}

// available is the part of the relay's holding of token not owed to any
// account.
func (r *Relay) available(token common.Address) *uint256.Int {
	holding, owed := r.holding(token), r.getAmount(owedSlot(token))
	if holding.Cmp(owed) <= 0 {
		return new(uint256.Int)
	}
	return holding.Sub(holding, owed)
}

// reserve fails unless amount of token can be paid out without touching
// escrowed funds.
func (r *Relay) reserve(token common.Address, amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return nil
	}
	if available := r.available(token); available.Cmp(amount) < 0 {
		return &xcall.InsufficientLiquidityError{Token: token, Available: available, Required: new(uint256.Int).Set(amount)}
	}
	return nil
}

// Escrow is the amount of token held by the relay on behalf of account.
// Native value is booked under xcall.NativeToken.
func (r *Relay) Escrow(account, token common.Address) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getAmount(escrowSlot(account, token))
}

// Owed is the sum of all escrow balances of token.
func (r *Relay) Owed(token common.Address) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getAmount(owedSlot(token))
}

// Available is the part of the relay's holding of token that is not owed
// to any account. Native value is reported under xcall.NativeToken.
func (r *Relay) Available(token common.Address) *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available(token)
}

// LockedValue is the native value retained for messages sent by this relay.
func (r *Relay) LockedValue() *uint256.Int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.getAmount(lockedSlot)
}

// --- administration ---

func toggle[K comparable](set map[K]struct{}, key K, allowed bool) {
	if allowed {
		set[key] = struct{}{}
	} else {
		delete(set, key)
	}
}

// AllowSourceChain accepts messages from chain that were sent by the relay
// at address remote of that chain. Allowing a chain again replaces the
// trusted relay.
func (r *Relay) AllowSourceChain(caller common.Address, chain xcall.ChainID, remote common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	if remote == (common.Address{}) {
		return fmt.Errorf("relay of source chain %d: %w", chain, xcall.ErrZeroAddress)
	}
	r.sourceChains[chain] = remote
	r.log.Info("Source chain allowed", "source", chain, "relay", remote)
	return nil
}

func (r *Relay) DenySourceChain(caller common.Address, chain xcall.ChainID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	delete(r.sourceChains, chain)
	r.log.Info("Source chain denied", "source", chain)
	return nil
}

// TrustedRelay returns the relay messages from chain must be sent by.
func (r *Relay) TrustedRelay(chain xcall.ChainID) (common.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	remote, found := r.sourceChains[chain]
	return remote, found
}

func (r *Relay) AllowDestinationChain(caller common.Address, chain xcall.ChainID, allowed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	toggle(r.destinationChains, chain, allowed)
	r.log.Info("Destination chain allowlist updated", "destination", chain, "allowed", allowed)
	return nil
}

func (r *Relay) AllowToken(caller, token common.Address, allowed bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	toggle(r.tokens, token, allowed)
	r.log.Info("Token allowlist updated", "token", token, "allowed", allowed)
	return nil
}

// SetCallMode flags target as requiring context preserving execution. The
// change applies to the next execution of any executor.
func (r *Relay) SetCallMode(caller, target common.Address, contextPreserving bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	r.modes.Set(target, contextPreserving)
	r.log.Info("Call mode updated", "target", target, "mode", r.modes.Mode(target))
	return nil
}

func (r *Relay) TransferOwnership(caller, newOwner common.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	if newOwner == (common.Address{}) {
		return fmt.Errorf("new owner: %w", xcall.ErrZeroAddress)
	}
	r.log.Info("Ownership transferred", "from", r.owner, "to", newOwner)
	r.owner = newOwner
	return nil
}

// WithdrawNative moves native funds of the relay to an arbitrary account.
// Funds owed to escrow accounts can not be withdrawn.
func (r *Relay) WithdrawNative(caller, to common.Address, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("withdrawal receiver: %w", xcall.ErrZeroAddress)
	}
	if err := r.reserve(xcall.NativeToken, amount); err != nil {
		return err
	}
	if err := r.state().Transfer(r.address, to, amount); err != nil {
		return err
	}
	r.log.Warn("Emergency native withdrawal", "to", to, "amount", amount)
	return nil
}

// WithdrawToken is the token counterpart of WithdrawNative.
func (r *Relay) WithdrawToken(caller, token, to common.Address, amount *uint256.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkOwner(caller); err != nil {
		return err
	}
	if to == (common.Address{}) {
		return fmt.Errorf("withdrawal receiver: %w", xcall.ErrZeroAddress)
	}
	if err := r.reserve(token, amount); err != nil {
		return err
	}
	if err := r.state().TransferToken(token, r.address, to, amount); err != nil {
		return err
	}
	r.log.Warn("Emergency token withdrawal", "token", token, "to", to, "amount", amount)
	return nil
}

func sortedChains[V any](set map[xcall.ChainID]V) []xcall.ChainID {
	res := maps.Keys(set)
	slices.Sort(res)
	return res
}

func (r *Relay) SourceChains() []xcall.ChainID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedChains(r.sourceChains)
}

func (r *Relay) DestinationChains() []xcall.ChainID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedChains(r.destinationChains)
}

func (r *Relay) Tokens() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := maps.Keys(r.tokens)
	slices.SortFunc(res, func(a, b common.Address) int { return a.Cmp(b) })
	return res
}

// CallModes lists the targets executed in context preserving mode.
func (r *Relay) CallModes() []common.Address {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.modes.ContextPreservingTargets()
}

// checkSource fails unless msg was sent by the trusted relay of an
// allowlisted chain.
func (r *Relay) checkSource(msg xcall.Message) error {
	remote, found := r.sourceChains[msg.SourceChain]
	if !found {
		return &xcall.ChainNotAllowedError{Chain: msg.SourceChain}
	}
	if msg.Sender != remote {
		return &xcall.UntrustedSenderError{Chain: msg.SourceChain, Sender: msg.Sender, Trusted: remote}
	}
	return nil
}
