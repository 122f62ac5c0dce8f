// Copyright 2018 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

// aionp2p runs a standalone node of the peer-to-peer network.
package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/aionnetwork/aion-sub011/log"
	"github.com/aionnetwork/aion-sub011/metrics"
	"github.com/aionnetwork/aion-sub011/metrics/prometheus"
	"github.com/aionnetwork/aion-sub011/p2p"
)

const clientIdentifier = "aionp2p"

var gitCommit = "" // set via linker flag

var (
	configFileFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML configuration file",
	}
	nodeIDFlag = &cli.StringFlag{
		Name:  "nodeid",
		Usage: "Hex encoded 32 byte node identity (random if unset)",
	}
	netIDFlag = &cli.UintFlag{
		Name:  "netid",
		Usage: "Network identifier",
		Value: 256,
	}
	listenAddrFlag = &cli.StringFlag{
		Name:  "listen",
		Usage: "Network listening address",
		Value: p2p.DefaultConfig.ListenAddr,
	}
	bootnodesFlag = &cli.StringFlag{
		Name:  "bootnodes",
		Usage: "Comma separated p2p:// URLs of the seed nodes",
	}
	maxPeersFlag = &cli.IntFlag{
		Name:  "maxpeers",
		Usage: "Maximum number of active peers",
		Value: p2p.DefaultConfig.MaxActiveNodes,
	}
	maxTempFlag = &cli.IntFlag{
		Name:  "maxtemp",
		Usage: "Maximum number of queued dial candidates",
		Value: p2p.DefaultConfig.MaxTempNodes,
	}
	seedsOnlyFlag = &cli.BoolFlag{
		Name:  "seedsonly",
		Usage: "Only connect to the boot nodes and ignore peer gossip",
	}
	netrestrictFlag = &cli.StringFlag{
		Name:  "netrestrict",
		Usage: "Restricts network communication to the given IP networks (CIDR masks)",
	}
	outboundIPFlag = &cli.StringFlag{
		Name:  "outboundip",
		Usage: "Public IP of this node, connections from it are refused",
	}
	errToleranceFlag = &cli.IntFlag{
		Name:  "errtolerance",
		Usage: "Protocol errors tolerated before a peer is banned",
		Value: p2p.DefaultConfig.ErrTolerance,
	}
	readRateFlag = &cli.IntFlag{
		Name:  "readrate",
		Usage: "Frames accepted per route, connection and second",
		Value: p2p.DefaultConfig.ReadMaxRate,
	}
	sendLanesFlag = &cli.IntFlag{
		Name:  "sendlanes",
		Usage: "Number of send workers (0 = derived from CPU count)",
	}

	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: int(log.LvlInfo),
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a rotated file instead of the terminal",
	}
	logNoColorFlag = &cli.BoolFlag{
		Name:  "log.nocolor",
		Usage: "Disable terminal colors",
	}

	metricsEnabledFlag = &cli.BoolFlag{
		Name:  "metrics",
		Usage: "Enable metrics collection and reporting",
	}
	metricsAddrFlag = &cli.StringFlag{
		Name:  "metrics.addr",
		Usage: "Listening address of the Prometheus metrics endpoint",
		Value: "127.0.0.1:6060",
	}
)

var (
	nodeFlags = []cli.Flag{
		configFileFlag,
		nodeIDFlag,
		netIDFlag,
		listenAddrFlag,
		bootnodesFlag,
		maxPeersFlag,
		maxTempFlag,
		seedsOnlyFlag,
		netrestrictFlag,
		outboundIPFlag,
		errToleranceFlag,
		readRateFlag,
		sendLanesFlag,
	}
	logFlags = []cli.Flag{
		verbosityFlag,
		logFileFlag,
		logNoColorFlag,
	}
	metricsFlags = []cli.Flag{
		metricsEnabledFlag,
		metricsAddrFlag,
	}
)

func newApp() *cli.App {
	app := &cli.App{
		Name:    clientIdentifier,
		Usage:   "the peer-to-peer networking node",
		Version: version(),
		Action:  runNode,
		Before: func(ctx *cli.Context) error {
			return setupLogging(ctx)
		},
		Commands: []*cli.Command{
			dumpConfigCommand,
		},
	}
	app.Flags = append(app.Flags, nodeFlags...)
	app.Flags = append(app.Flags, logFlags...)
	app.Flags = append(app.Flags, metricsFlags...)
	return app
}

func version() string {
	if len(gitCommit) >= 8 {
		return "0.1.0-" + gitCommit[:8]
	}
	return "0.1.0"
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runNode starts the server and blocks until the process is interrupted.
func runNode(ctx *cli.Context) error {
	if args := ctx.Args().Slice(); len(args) > 0 {
		return fmt.Errorf("invalid command: %q", args[0])
	}
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	if cfg.Metrics.Enabled {
		startMetricsServer(cfg.Metrics.Addr)
	}

	srv := &p2p.Server{Config: cfg.Node}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("could not start p2p server: %w", err)
	}
	log.Info("Node started", "id", cfg.Node.NodeID, "listen", srv.Addr())

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	<-sigc
	log.Info("Got interrupt, shutting down...")
	srv.Stop()
	return nil
}

// startMetricsServer serves the default registry to Prometheus scrapers.
func startMetricsServer(addr string) {
	if !metrics.Enabled {
		// Meters created during package initialization remain no-ops.
		log.Warn("Metrics enabled after startup, pass --metrics to collect networking meters")
		metrics.Enable()
	}
	log.Info("Starting metrics server", "addr", fmt.Sprintf("http://%s/metrics", addr))
	mux := http.NewServeMux()
	mux.Handle("/metrics", prometheus.Handler(metrics.DefaultRegistry))
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Failure in running metrics server", "err", err)
		}
	}()
}
