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
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/panoptisDev/xcall/go/config"
	"github.com/urfave/cli/v2"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file of the relay",
	}
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	}
)

func main() {
	app := &cli.App{
		Name:  "xcall",
		Usage: "cross-chain execution relay toolbox",
		Flags: []cli.Flag{configFlag, verbosityFlag},
		Before: func(ctx *cli.Context) error {
			setupLogging(ctx.Int(verbosityFlag.Name))
			return nil
		},
		Commands: []*cli.Command{
			&predictCmd,
			&simulateCmd,
			&dumpConfigCmd,
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogging(verbosity int) {
	handler := log.NewTerminalHandlerWithLevel(os.Stderr, log.FromLegacyLevel(verbosity), false)
	log.SetDefault(log.NewLogger(handler))
}

// loadConfig returns the configuration selected by the config flag or the
// defaults if none is given.
func loadConfig(ctx *cli.Context) (config.Config, error) {
	file := ctx.String(configFlag.Name)
	if file == "" {
		return config.Default(), nil
	}
	return config.Load(file)
}

var dumpConfigCmd = cli.Command{
	Name:  "dumpconfig",
	Usage: "print the effective configuration",
	Action: func(ctx *cli.Context) error {
		cfg, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		return config.Dump(os.Stdout, cfg)
	},
}
