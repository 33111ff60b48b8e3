// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/panoptisDev/xcall/go/executor"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/transport"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
	"github.com/stretchr/testify/require"
)

const sample = `
[Relay]
ChainID = 10
Address = "0x0000000000000000000000000000000000000011"
Owner = "0x000000000000000000000000000000000000000e"
DestinationChains = [1]
Tokens = ["0x0000000000000000000000000000000000000070"]
ReplayScope = "message"

[[Relay.SourceChains]]
ChainID = 1

[[Relay.SourceChains]]
ChainID = 2
Relay = "0x0000000000000000000000000000000000000012"

[Transport]
Router = "0x0000000000000000000000000000000000000022"
BaseFee = 5
`

func TestDefault_IsValid(t *testing.T) {
	config := Default()
	if err := config.Validate(); err != nil {
		t.Errorf("default configuration is invalid: %v", err)
	}
}

func TestDecode_OverridesDefaults(t *testing.T) {
	require := require.New(t)
	config, err := Decode(strings.NewReader(sample), "sample.toml")
	require.NoError(err)

	require.Equal(uint64(10), config.Relay.ChainID)
	require.Equal(common.Address{19: 0x11}, config.Relay.Address)
	require.Equal([]SourceChain{{ChainID: 1}, {ChainID: 2, Relay: common.Address{19: 0x12}}}, config.Relay.SourceChains)
	require.Equal([]common.Address{{19: 0x70}}, config.Relay.Tokens)
	require.Equal("message", config.Relay.ReplayScope)
	require.Equal(uint64(5), config.Transport.BaseFee)

	// untouched fields keep their defaults
	require.Equal(uint64(executor.DefaultWindow), config.Relay.Window)
	require.Equal(Default().Transport.ByteFee, config.Transport.ByteFee)
	require.Equal([]common.Address{executor.Multicall3}, config.Relay.ContextPreserving)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("[Relay]\nChain = 1\n"), "bad.toml")
	if err == nil || !strings.Contains(err.Error(), "bad.toml") || !strings.Contains(err.Error(), "Chain") {
		t.Errorf("unexpected error %v", err)
	}
}

func TestDecode_ValidatesTheResult(t *testing.T) {
	_, err := Decode(strings.NewReader("[Relay]\nReplayScope = \"sender\"\n"), "scope.toml")
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	tests := map[string]struct {
		modify func(*Config)
		want   string
	}{
		"no relay address": {func(c *Config) { c.Relay.Address = common.Address{} }, "relay address"},
		"no owner":         {func(c *Config) { c.Relay.Owner = common.Address{} }, "owner"},
		"no router":        {func(c *Config) { c.Transport.Router = common.Address{} }, "router address"},
		"shared address":   {func(c *Config) { c.Transport.Router = c.Relay.Address }, "share address"},
		"zero window":      {func(c *Config) { c.Relay.Window = 0 }, "window"},
		"bad scope":        {func(c *Config) { c.Relay.ReplayScope = "x" }, "replay scope"},
		"own source":       {func(c *Config) { c.Relay.SourceChains = []SourceChain{{ChainID: c.Relay.ChainID}} }, "own source"},
		"duplicate source": {func(c *Config) { c.Relay.SourceChains = []SourceChain{{ChainID: 7}, {ChainID: 7}} }, "duplicate source"},
		"zero token":       {func(c *Config) { c.Relay.Tokens = []common.Address{{}} }, "zero token"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			config := Default()
			test.modify(&config)
			err := config.Validate()
			if !errors.Is(err, ErrInvalidConfig) || !strings.Contains(err.Error(), test.want) {
				t.Errorf("unexpected error %v, want mention of %q", err, test.want)
			}
		})
	}
}

func TestLoad_ReadsFiles(t *testing.T) {
	file := filepath.Join(t.TempDir(), "relay.toml")
	require.NoError(t, os.WriteFile(file, []byte(sample), 0600))
	config, err := Load(file)
	require.NoError(t, err)
	require.Equal(t, uint64(10), config.Relay.ChainID)

	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Errorf("loading a missing file should fail")
	}
}

func TestDump_CanBeDecodedAgain(t *testing.T) {
	config, err := Decode(strings.NewReader(sample), "sample.toml")
	require.NoError(t, err)
	var buffer bytes.Buffer
	require.NoError(t, Dump(&buffer, config))
	restored, err := Decode(&buffer, "dump.toml")
	require.NoError(t, err)
	require.Equal(t, config, restored)
}

func TestNewRelay_AppliesAllowlists(t *testing.T) {
	require := require.New(t)
	config, err := Decode(strings.NewReader(sample), "sample.toml")
	require.NoError(err)

	host := vm.NewHost(state.New(), vm.BlockContext{})
	router, err := transport.NewLoopback(config.FeeSchedule(), nil).Register(10, host, config.Transport.Router)
	require.NoError(err)
	r, err := config.NewRelay(host, router, nil)
	require.NoError(err)

	require.Equal(config.Relay.Owner, r.Owner())
	require.Equal(xcall.ChainID(10), r.ChainID())
	require.Equal([]xcall.ChainID{1, 2}, r.SourceChains())
	trusted, _ := r.TrustedRelay(1)
	require.Equal(config.Relay.Address, trusted, "a zero relay means the local address")
	trusted, _ = r.TrustedRelay(2)
	require.Equal(common.Address{19: 0x12}, trusted)
	require.Equal([]xcall.ChainID{1}, r.DestinationChains())
	require.Equal(config.Relay.Tokens, r.Tokens())
	require.Equal([]common.Address{executor.Multicall3}, r.CallModes())
}

func TestNewRelay_RejectsInvalidConfigurations(t *testing.T) {
	config := Default()
	config.Relay.Owner = common.Address{}
	host := vm.NewHost(state.New(), vm.BlockContext{})
	if _, err := config.NewRelay(host, nil, nil); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("unexpected error %v", err)
	}
}
