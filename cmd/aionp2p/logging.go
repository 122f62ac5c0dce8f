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
	"io"
	"os"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/aionnetwork/aion-sub011/log"
)

const (
	logFileMaxSizeMB  = 100
	logFileMaxBackups = 10
)

// setupLogging installs the root log handler configured by the logging flags.
func setupLogging(ctx *cli.Context) error {
	lvl := log.Lvl(ctx.Int(verbosityFlag.Name))
	if file := ctx.String(logFileFlag.Name); file != "" {
		h := log.RotatingFileHandler(file, logFileMaxSizeMB, logFileMaxBackups, true, log.LogfmtFormat())
		log.Root().SetHandler(log.LvlFilterHandler(lvl, h))
		return nil
	}
	log.Root().SetHandler(log.LvlFilterHandler(lvl, terminalHandler(os.Stderr, ctx.Bool(logNoColorFlag.Name))))
	return nil
}

// terminalHandler writes human readable records to f, colored if f is a
// terminal.
func terminalHandler(f *os.File, nocolor bool) log.Handler {
	usecolor := !nocolor && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) && os.Getenv("TERM") != "dumb"
	var output io.Writer = f
	if usecolor {
		output = colorable.NewColorable(f)
	}
	return log.StreamHandler(output, log.TerminalFormat(usecolor))
}
