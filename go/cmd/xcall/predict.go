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

	"github.com/ethereum/go-ethereum/common"
	"github.com/panoptisDev/xcall/go/executor"
	"github.com/urfave/cli/v2"
)

var predictCmd = cli.Command{
	Name:      "predict",
	Usage:     "print the executor address of senders",
	ArgsUsage: "<sender> [<sender> ...]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "relay",
			Usage: "relay address, defaults to the configured one",
		},
	},
	Action: doPredict,
}

func doPredict(ctx *cli.Context) error {
	if ctx.NArg() == 0 {
		return fmt.Errorf("at least one sender is required")
	}
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	relay := cfg.Relay.Address
	if value := ctx.String("relay"); value != "" {
		if !common.IsHexAddress(value) {
			return fmt.Errorf("invalid relay address %q", value)
		}
		relay = common.HexToAddress(value)
	}
	for _, arg := range ctx.Args().Slice() {
		if !common.IsHexAddress(arg) {
			return fmt.Errorf("invalid sender address %q", arg)
		}
		sender := common.HexToAddress(arg)
		fmt.Printf("%v %v\n", sender, executor.PredictAddress(sender, relay))
	}
	return nil
}
