// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package executor

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
)

// DefaultWindow is the default number of seconds an execution may take
// before its executor is considered abandoned.
const DefaultWindow = 60 * 60

const addressCacheSize = 1024

// executorTemplate identifies the code deployed at executor addresses and
// enters the address derivation like init code does for CREATE2.
var executorTemplate = []byte("xcall/executor/v1")

var executorTemplateHash = crypto.Keccak256(executorTemplate)

// Factory derives, deploys and hands out the executors of a relay. There is
// one executor per sender; it is deployed on first use and reused afterwards.
type Factory struct {
	relay  common.Address
	host   *vm.Host
	modes  ModeClassifier
	window uint64
	cache  *lru.Cache[common.Address, common.Address]
	log    log.Logger
}

func NewFactory(relay common.Address, host *vm.Host, modes ModeClassifier, window uint64, logger log.Logger) *Factory {
	cache, err := lru.New[common.Address, common.Address](addressCacheSize)
	if err != nil {
		// only fails for non-positive sizes
		panic(err)
	}
	if window == 0 {
		window = DefaultWindow
	}
	if logger == nil {
		logger = log.Root()
	}
	return &Factory{
		relay:  relay,
		host:   host,
		modes:  modes,
		window: window,
		cache:  cache,
		log:    logger.New("component", "executor-factory"),
	}
}

// Window is the duration of an execution window in seconds.
func (f *Factory) Window() uint64 {
	return f.window
}

// Salt is the deployment salt of the executor of sender.
func Salt(sender, relay common.Address) common.Hash {
	return crypto.Keccak256Hash(sender[:], relay[:])
}

// PredictAddress derives the executor address of sender for the given relay.
func PredictAddress(sender, relay common.Address) common.Address {
	return crypto.CreateAddress2(relay, Salt(sender, relay), executorTemplateHash)
}

// Predict returns the address the executor of sender has or will have.
func (f *Factory) Predict(sender common.Address) common.Address {
	if address, found := f.cache.Get(sender); found {
		return address
	}
	address := PredictAddress(sender, f.relay)
	f.cache.Add(sender, address)
	return address
}

// Executor returns a handle to the executor of sender, deployed or not.
func (f *Factory) Executor(sender common.Address) *Executor {
	return Bind(f.Predict(sender), f.host, f.modes)
}

// GetOrCreate claims the executor of sender for an execution against target.
// An executor still running an unexpired execution is busy. An executor whose
// execution window passed is recovered first; the assets swept back to the
// relay by that recovery are returned.
func (f *Factory) GetOrCreate(sender, target common.Address) (executor *Executor, recovered []xcall.TokenAmount, err error) {
	s := f.host.State()
	err = s.Atomic(func() error {
		executor = f.Executor(sender)
		address := executor.Address()
		now := f.host.Block().Timestamp
		deadline := now + f.window

		if !s.HasCode(address) {
			s.SetCode(address, executorCode{})
			if err := executor.Initialize(f.relay, target, deadline); err != nil {
				return err
			}
			f.emit(xcall.ExecutorCreated{Sender: sender, Executor: address, Target: target, Deadline: deadline})
			f.log.Debug("Executor created", "sender", sender, "executor", address, "deadline", deadline)
			return nil
		}

		if executor.IsActive() {
			if current := executor.Deadline(); now < current {
				return &xcall.ExecutorBusyError{Executor: address, Deadline: current}
			}
			swept, err := executor.RecoverTokens(f.relay)
			if err != nil {
				return err
			}
			recovered = swept
			f.emit(xcall.ExecutorRecovered{Executor: address, Swept: swept})
			f.log.Warn("Recovered abandoned executor", "sender", sender, "executor", address, "assets", len(swept))
		}

		if err := executor.Initialize(f.relay, target, deadline); err != nil {
			return err
		}
		f.emit(xcall.ExecutorReused{Sender: sender, Executor: address, Target: target, Deadline: deadline})
		f.log.Debug("Executor reused", "sender", sender, "executor", address, "deadline", deadline)
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return executor, recovered, nil
}

func (f *Factory) emit(event xcall.Event) {
	f.host.State().AddLog(state.Log{Address: f.relay, Event: event})
}
