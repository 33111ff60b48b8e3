// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package config loads the TOML description of a relay deployment.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"reflect"
	"unicode"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"github.com/naoina/toml"
	"github.com/panoptisDev/xcall/go/executor"
	"github.com/panoptisDev/xcall/go/relay"
	"github.com/panoptisDev/xcall/go/transport"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
)

const ErrInvalidConfig = xcall.ConstError("invalid configuration")

// Config describes a relay and the transport it is connected to.
type Config struct {
	Relay     RelayConfig
	Transport TransportConfig
}

type RelayConfig struct {
	ChainID           uint64
	Address           common.Address
	Owner             common.Address
	SourceChains      []SourceChain
	DestinationChains []uint64
	Tokens            []common.Address
	ContextPreserving []common.Address // targets run in the executor's context
	Window            uint64           // seconds
	ReplayScope       string           // "content" or "message"
}

// SourceChain is a chain messages are accepted from, together with the
// relay on that chain allowed to send them. A zero Relay stands for a relay
// deployed at the same address as the local one.
type SourceChain struct {
	ChainID uint64
	Relay   common.Address
}

type TransportConfig struct {
	Router   common.Address
	BaseFee  uint64
	ByteFee  uint64
	GasPrice uint64
}

// Default returns a single chain configuration for local simulations.
func Default() Config {
	return Config{
		Relay: RelayConfig{
			ChainID:           1,
			Address:           common.HexToAddress("0x00000000000000000000000000000000000c0411"),
			Owner:             common.HexToAddress("0x000000000000000000000000000000000000a11e"),
			ContextPreserving: []common.Address{executor.Multicall3},
			Window:            executor.DefaultWindow,
			ReplayScope:       relay.ReplayByContent.String(),
		},
		Transport: TransportConfig{
			Router:   common.HexToAddress("0x00000000000000000000000000000000000c0de7"),
			BaseFee:  100_000,
			ByteFee:  16,
			GasPrice: 1,
		},
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	var errs []error
	fail := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}
	if c.Relay.Address == (common.Address{}) {
		fail("relay address is not set")
	}
	if c.Relay.Owner == (common.Address{}) {
		fail("relay owner is not set")
	}
	if c.Transport.Router == (common.Address{}) {
		fail("router address is not set")
	}
	if c.Transport.Router == c.Relay.Address && c.Relay.Address != (common.Address{}) {
		fail("router and relay share address %v", c.Relay.Address)
	}
	if c.Relay.Window == 0 {
		fail("execution window must be positive")
	}
	if _, err := relay.ParseReplayScope(c.Relay.ReplayScope); err != nil {
		fail("%v", err)
	}
	sources := map[uint64]bool{}
	for _, source := range c.Relay.SourceChains {
		if source.ChainID == c.Relay.ChainID {
			fail("chain %d listed as its own source", source.ChainID)
		}
		if sources[source.ChainID] {
			fail("duplicate source chain %d", source.ChainID)
		}
		sources[source.ChainID] = true
	}
	for _, token := range c.Relay.Tokens {
		if token == (common.Address{}) {
			fail("zero token address")
		}
	}
	return errors.Join(errs...)
}

// FeeSchedule is the fee schedule of the transport.
func (c *Config) FeeSchedule() transport.FeeSchedule {
	return transport.FeeSchedule{
		BaseFee:  uint256.NewInt(c.Transport.BaseFee),
		ByteFee:  uint256.NewInt(c.Transport.ByteFee),
		GasPrice: uint256.NewInt(c.Transport.GasPrice),
	}
}

// NewRelay deploys the configured relay on host, connected to router, and
// applies the configured allowlists.
func (c *Config) NewRelay(host *vm.Host, router transport.Router, logger log.Logger) (*relay.Relay, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	scope, _ := relay.ParseReplayScope(c.Relay.ReplayScope)
	r, err := relay.New(relay.Config{
		ChainID:     xcall.ChainID(c.Relay.ChainID),
		Address:     c.Relay.Address,
		Owner:       c.Relay.Owner,
		Window:      c.Relay.Window,
		ReplayScope: scope,
		Logger:      logger,
	}, host, router, executor.NewCallModes(c.Relay.ContextPreserving...))
	if err != nil {
		return nil, err
	}
	owner := c.Relay.Owner
	for _, source := range c.Relay.SourceChains {
		remote := source.Relay
		if remote == (common.Address{}) {
			remote = c.Relay.Address
		}
		if err := r.AllowSourceChain(owner, xcall.ChainID(source.ChainID), remote); err != nil {
			return nil, err
		}
	}
	for _, chain := range c.Relay.DestinationChains {
		if err := r.AllowDestinationChain(owner, xcall.ChainID(chain), true); err != nil {
			return nil, err
		}
	}
	for _, token := range c.Relay.Tokens {
		if err := r.AllowToken(owner, token, true); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// Load reads the configuration in file on top of the defaults.
func Load(file string) (Config, error) {
	f, err := os.Open(file)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(bufio.NewReader(f), file)
}

// Decode parses a configuration on top of the defaults. The name is used
// to annotate errors.
func Decode(r io.Reader, name string) (Config, error) {
	config := Default()
	err := tomlSettings.NewDecoder(r).Decode(&config)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(name + ", " + err.Error())
	}
	if err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Dump writes the configuration in TOML format.
func Dump(w io.Writer, config Config) error {
	out, err := tomlSettings.Marshal(&config)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
