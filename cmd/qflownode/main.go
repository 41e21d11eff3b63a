// Copyright 2024 The qflow Authors
// This file is part of the qflow library.
//
// The qflow library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The qflow library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the qflow library. If not, see <http://www.gnu.org/licenses/>.

// qflownode is the single-binary entry point for running one qflow node:
// load configuration, wire the node, start its background loops, and
// block until terminated — the same shape cmd/geth's main.go gives the
// full client behind a urfave/cli app.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/qflow/qflow/config"
	"github.com/qflow/qflow/node"
)

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "Path to a qflow node TOML configuration file",
	}
	nodeIDFlag = &cli.StringFlag{
		Name:  "node-id",
		Usage: "Override the configured node_id",
	}
	dataDirFlag = &cli.StringFlag{
		Name:  "datadir",
		Usage: "Override the configured data_dir (empty means in-memory storage)",
	}
)

func main() {
	app := cli.NewApp()
	app.Name = "qflownode"
	app.Usage = "run a qflow distributed automation engine node"
	app.Flags = []cli.Flag{configFlag, nodeIDFlag, dataDirFlag}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx *cli.Context) error {
	cfg, err := config.Load(ctx.String(configFlag.Name))
	if err != nil {
		return err
	}
	if v := ctx.String(nodeIDFlag.Name); v != "" {
		cfg.NodeID = v
	}
	if ctx.IsSet(dataDirFlag.Name) {
		cfg.DataDir = ctx.String(dataDirFlag.Name)
	}
	if cfg.NodeID == "" {
		return fmt.Errorf("qflownode: node_id is required (set in the config file or via --node-id)")
	}

	bgCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, err := node.New(bgCtx, cfg)
	if err != nil {
		return fmt.Errorf("qflownode: %w", err)
	}
	n.Start(bgCtx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.HeartbeatInterval()*2)
	defer stopCancel()
	return n.Stop(stopCtx)
}
