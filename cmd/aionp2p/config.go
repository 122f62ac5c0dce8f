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

package main

import (
	"bufio"
	"crypto/rand"
	"errors"
	"fmt"
	"net"
	"os"
	"reflect"
	"strings"
	"unicode"

	"github.com/naoina/toml"
	"github.com/urfave/cli/v2"

	"github.com/aionnetwork/aion-sub011/log"
	"github.com/aionnetwork/aion-sub011/p2p"
	"github.com/aionnetwork/aion-sub011/p2p/netutil"
)

var dumpConfigCommand = &cli.Command{
	Action:      dumpConfig,
	Name:        "dumpconfig",
	Usage:       "Show configuration values",
	ArgsUsage:   "",
	Flags:       append(append([]cli.Flag{}, nodeFlags...), metricsFlags...),
	Description: `The dumpconfig command shows configuration values.`,
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
		link := ""
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

type metricsConfig struct {
	Enabled bool
	Addr    string
}

type aionConfig struct {
	Node    p2p.Config
	Metrics metricsConfig
}

func defaultConfig() aionConfig {
	return aionConfig{
		Node:    p2p.DefaultConfig,
		Metrics: metricsConfig{Addr: metricsAddrFlag.Value},
	}
}

func loadConfig(file string, cfg *aionConfig) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// makeConfig merges the defaults, the config file and the command line flags,
// in that order of precedence.
func makeConfig(ctx *cli.Context) (aionConfig, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := loadConfig(file, &cfg); err != nil {
			return cfg, err
		}
	}
	if err := applyNodeFlags(ctx, &cfg.Node); err != nil {
		return cfg, err
	}
	if ctx.IsSet(metricsEnabledFlag.Name) {
		cfg.Metrics.Enabled = ctx.Bool(metricsEnabledFlag.Name)
	}
	if ctx.IsSet(metricsAddrFlag.Name) {
		cfg.Metrics.Addr = ctx.String(metricsAddrFlag.Name)
	}
	if cfg.Node.NodeID == (p2p.NodeID{}) {
		if _, err := rand.Read(cfg.Node.NodeID[:]); err != nil {
			return cfg, err
		}
		log.Warn("No node id configured, using a random one", "id", cfg.Node.NodeID)
	}
	return cfg, nil
}

func applyNodeFlags(ctx *cli.Context, cfg *p2p.Config) error {
	if ctx.IsSet(nodeIDFlag.Name) {
		id, err := p2p.ParseNodeID(ctx.String(nodeIDFlag.Name))
		if err != nil {
			return fmt.Errorf("--%s: %v", nodeIDFlag.Name, err)
		}
		cfg.NodeID = id
	}
	if ctx.IsSet(netIDFlag.Name) || cfg.NetID == 0 {
		cfg.NetID = uint32(ctx.Uint(netIDFlag.Name))
	}
	if ctx.IsSet(listenAddrFlag.Name) {
		cfg.ListenAddr = ctx.String(listenAddrFlag.Name)
	}
	if ctx.IsSet(bootnodesFlag.Name) {
		cfg.BootNodes = splitAndTrim(ctx.String(bootnodesFlag.Name))
		for _, url := range cfg.BootNodes {
			if _, err := p2p.ParseNode(url); err != nil {
				return fmt.Errorf("--%s: invalid node %q: %v", bootnodesFlag.Name, url, err)
			}
		}
	}
	if ctx.IsSet(maxPeersFlag.Name) {
		cfg.MaxActiveNodes = ctx.Int(maxPeersFlag.Name)
	}
	if ctx.IsSet(maxTempFlag.Name) {
		cfg.MaxTempNodes = ctx.Int(maxTempFlag.Name)
	}
	if ctx.IsSet(seedsOnlyFlag.Name) {
		cfg.SyncSeedsOnly = ctx.Bool(seedsOnlyFlag.Name)
	}
	if ctx.IsSet(netrestrictFlag.Name) {
		list, err := netutil.ParseNetlist(ctx.String(netrestrictFlag.Name))
		if err != nil {
			return fmt.Errorf("--%s: %v", netrestrictFlag.Name, err)
		}
		cfg.NetRestrict = list
	}
	if ctx.IsSet(outboundIPFlag.Name) {
		ip := net.ParseIP(ctx.String(outboundIPFlag.Name))
		if ip == nil {
			return fmt.Errorf("--%s: invalid IP %q", outboundIPFlag.Name, ctx.String(outboundIPFlag.Name))
		}
		cfg.OutboundIP = ip
	}
	if ctx.IsSet(errToleranceFlag.Name) {
		cfg.ErrTolerance = ctx.Int(errToleranceFlag.Name)
	}
	if ctx.IsSet(readRateFlag.Name) {
		cfg.ReadMaxRate = ctx.Int(readRateFlag.Name)
	}
	if ctx.IsSet(sendLanesFlag.Name) {
		cfg.SendLanes = ctx.Int(sendLanesFlag.Name)
	}
	return nil
}

// splitAndTrim splits input separated by a comma
// and trims excessive white space from the substrings.
func splitAndTrim(input string) (ret []string) {
	l := strings.Split(input, ",")
	for _, r := range l {
		if r = strings.TrimSpace(r); r != "" {
			ret = append(ret, r)
		}
	}
	return ret
}

// dumpConfig is the dumpconfig command.
func dumpConfig(ctx *cli.Context) error {
	cfg, err := makeConfig(ctx)
	if err != nil {
		return err
	}
	out, err := tomlSettings.Marshal(&cfg)
	if err != nil {
		return err
	}

	dump := os.Stdout
	if ctx.NArg() > 0 {
		dump, err = os.OpenFile(ctx.Args().Get(0), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
		if err != nil {
			return err
		}
		defer dump.Close()
	}
	dump.WriteString("# Note: this config doesn't contain the route read rates, defaults are used for them.\n\n")
	dump.Write(out)
	return nil
}
