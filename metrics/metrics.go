// Go port of Coda Hale's Metrics library
//
// <https://github.com/rcrowley/go-metrics>
//
// Coda Hale's original work: <https://github.com/codahale/metrics>

// Package metrics collects counters, gauges and meters for the networking
// engine and exposes them through a Registry.
package metrics

import (
	"os"
	"strings"
)

// Enabled is checked by the constructor functions for all of the
// standard metrics. If it is true, the metric returned is a stub.
//
// This global kill-switch helps quantify the observer effect and makes
// for less cluttered pprof profiles.
var Enabled = false

// Enable turns on metrics collection. It must be called before any metric is
// constructed; metrics created earlier stay no-ops.
func Enable() {
	Enabled = true
	startMeterTickerLoop()
}

// enablerFlags is the CLI flag names to use to enable metrics collections.
var enablerFlags = []string{"metrics"}

// Init enables metrics collection if the command line flags ask for it, so
// package level meters created during initialization are live.
func init() {
	for _, arg := range os.Args {
		flag := strings.TrimLeft(arg, "-")
		for _, enabler := range enablerFlags {
			if !Enabled && flag == enabler {
				Enable()
			}
		}
	}
}
