// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"fmt"
	"math"
	"math/big"

	"github.com/dsnet/golib/unitconv"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/config"
	"github.com/panoptisDev/xcall/go/contracts"
	"github.com/panoptisDev/xcall/go/executor"
	"github.com/panoptisDev/xcall/go/relay"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/transport"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var (
	sendersFlag = &cli.IntFlag{
		Name:  "senders",
		Usage: "number of senders sending concurrently",
		Value: 3,
	}
	tokensFlag = &cli.StringFlag{
		Name:  "tokens",
		Usage: "tokens attached by each sender, SI prefixes allowed",
		Value: "100",
	}
	valueFlag = &cli.StringFlag{
		Name:  "value",
		Usage: "native value forwarded to the target, SI prefixes allowed",
		Value: "100k",
	}
	gasFlag = &cli.StringFlag{
		Name:  "gas",
		Usage: "gas limit of the execution",
		Value: "200k",
	}
	messageFlag = &cli.StringFlag{
		Name:  "message",
		Usage: "message echoed by the target",
		Value: "hi",
	}
	revertFlag = &cli.BoolFlag{
		Name:  "revert",
		Usage: "call a selector the target does not have",
	}
	batchFlag = &cli.BoolFlag{
		Name:  "batch",
		Usage: "run a Multicall3 batch moving half of the tokens",
	}
)

var simulateCmd = cli.Command{
	Name:   "simulate",
	Usage:  "send messages between two simulated chains and report the outcome",
	Flags:  []cli.Flag{sendersFlag, tokensFlag, valueFlag, gasFlag, messageFlag, revertFlag, batchFlag},
	Action: doSimulate,
}

var (
	simToken   = common.HexToAddress("0x0000000000000000000000000000000000070c3e")
	simEcho    = common.HexToAddress("0x00000000000000000000000000000000000ec407")
	simSink    = common.HexToAddress("0x000000000000000000000000000000000005141c")
	simFunding = uint256.NewInt(math.MaxUint64)
)

// parseAmount parses a decimal amount with an optional SI prefix.
func parseAmount(flag, value string) (uint64, error) {
	amount, err := unitconv.ParsePrefix(value, unitconv.SI)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", flag, value, err)
	}
	if amount < 0 || amount >= math.MaxUint64 || amount != math.Trunc(amount) {
		return 0, fmt.Errorf("invalid %s %q: not a natural number", flag, value)
	}
	return uint64(amount), nil
}

func formatAmount(amount *uint256.Int) string {
	value, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	return unitconv.FormatPrefix(value, unitconv.SI, 2)
}

type simulation struct {
	loopback     *transport.Loopback
	source       *relay.Relay
	destination  *relay.Relay
	sourceHost   *vm.Host
	destHost     *vm.Host
	relayAddress common.Address
}

func newChainHost() *vm.Host {
	s := state.New()
	s.SetCode(simToken, vm.TokenContract{})
	s.SetCode(simEcho, contracts.Echo{})
	s.SetCode(simSink, contracts.Sink{})
	s.SetCode(executor.Multicall3, contracts.Multicall{})
	return vm.NewHost(s, vm.BlockContext{Number: 1, Timestamp: 1_700_000_000})
}

// newSimulation connects the configured relay to a relay at the same
// address on the next chain id.
func newSimulation(cfg config.Config) (*simulation, error) {
	sourceChain := xcall.ChainID(cfg.Relay.ChainID)
	destinationChain := sourceChain + 1
	loopback := transport.NewLoopback(cfg.FeeSchedule(), log.Root())

	source := cfg
	source.Relay.DestinationChains = append([]uint64{uint64(destinationChain)}, cfg.Relay.DestinationChains...)
	source.Relay.Tokens = append([]common.Address{simToken}, cfg.Relay.Tokens...)
	destination := cfg
	destination.Relay.ChainID = uint64(destinationChain)
	destination.Relay.SourceChains = []config.SourceChain{{ChainID: uint64(sourceChain)}}

	sim := &simulation{
		loopback:     loopback,
		sourceHost:   newChainHost(),
		destHost:     newChainHost(),
		relayAddress: cfg.Relay.Address,
	}
	var err error
	if sim.source, err = deploy(loopback, sim.sourceHost, source); err != nil {
		return nil, err
	}
	if sim.destination, err = deploy(loopback, sim.destHost, destination); err != nil {
		return nil, err
	}
	sim.destHost.State().SetBalance(cfg.Relay.Address, simFunding)
	return sim, nil
}

func deploy(loopback *transport.Loopback, host *vm.Host, cfg config.Config) (*relay.Relay, error) {
	router, err := loopback.Register(xcall.ChainID(cfg.Relay.ChainID), host, cfg.Transport.Router)
	if err != nil {
		return nil, err
	}
	r, err := cfg.NewRelay(host, router, log.Root())
	if err != nil {
		return nil, fmt.Errorf("chain %d: %w", cfg.Relay.ChainID, err)
	}
	router.Attach(cfg.Relay.Address, r)
	return r, nil
}

func doSimulate(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	tokens, err := parseAmount(tokensFlag.Name, ctx.String(tokensFlag.Name))
	if err != nil {
		return err
	}
	value, err := parseAmount(valueFlag.Name, ctx.String(valueFlag.Name))
	if err != nil {
		return err
	}
	gas, err := parseAmount(gasFlag.Name, ctx.String(gasFlag.Name))
	if err != nil {
		return err
	}
	count := ctx.Int(sendersFlag.Name)
	if count <= 0 {
		return fmt.Errorf("at least one sender is required")
	}

	sim, err := newSimulation(cfg)
	if err != nil {
		return err
	}

	target, callData := simEcho, contracts.EchoCall(ctx.String(messageFlag.Name))
	switch {
	case ctx.Bool(revertFlag.Name):
		callData = []byte{0xde, 0xad, 0xbe, 0xef}
	case ctx.Bool(batchFlag.Name):
		target = executor.Multicall3
		callData = contracts.AggregateCall(
			contracts.Call{Target: simToken, CallData: xcall.TransferCall(simSink, uint256.NewInt(tokens/2))},
			contracts.Call{Target: simEcho, CallData: callData},
		)
		// the batch forwards no value
		value = 0
	}

	source := sim.sourceHost.State()
	senders := make([]common.Address, count)
	for i := range senders {
		senders[i] = common.BigToAddress(big.NewInt(int64(0x5e0000 + i)))
		source.SetBalance(senders[i], simFunding)
		if err := source.Mint(simToken, senders[i], uint256.NewInt(tokens)); err != nil {
			return err
		}
		source.Approve(simToken, senders[i], sim.relayAddress, uint256.NewInt(tokens))
	}

	request := relay.SendRequest{
		DestinationChain: sim.destination.ChainID(),
		Receiver:         sim.relayAddress,
		Target:           target,
		Value:            uint256.NewInt(value),
		CallData:         callData,
		GasLimit:         gas,
	}
	if tokens > 0 {
		request.Tokens = []common.Address{simToken}
		request.Amounts = []*uint256.Int{uint256.NewInt(tokens)}
	}

	group, groupCtx := errgroup.WithContext(ctx.Context)
	for _, sender := range senders {
		sender := sender
		group.Go(func() error {
			fee, err := sim.source.EstimateFee(groupCtx, sender, request)
			if err != nil {
				return err
			}
			paid := new(uint256.Int).Add(fee, request.Value)
			id, err := sim.source.Send(groupCtx, sender, paid, request)
			if err != nil {
				return fmt.Errorf("sender %v: %w", sender, err)
			}
			fmt.Printf("sent     %v from %v, fee %s\n", id, sender, formatAmount(fee))
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	delivered, err := sim.loopback.DeliverAll(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Printf("delivered %d messages\n", delivered)

	for _, sender := range senders {
		fmt.Printf("sender   %v executor %v escrow %s tokens, %s native\n",
			sender,
			sim.destination.Predict(sender),
			formatAmount(sim.destination.Escrow(sender, simToken)),
			formatAmount(sim.destination.Escrow(sender, xcall.NativeToken)),
		)
	}
	stats := sim.destination.Stats()
	fmt.Printf("executions: %d succeeded, %d failed, %d recorded failures\n",
		stats.Succeeded, stats.Failed, stats.RecordedFailures)
	for _, entry := range sim.destination.ListFailed(0, uint64(count)) {
		record, _ := sim.destination.FailedMessage(entry.MessageID)
		fmt.Printf("failed   %v: %s\n", entry.MessageID, record.Reason)
	}
	return nil
}
