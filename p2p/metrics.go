// Copyright 2016 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

// Contains the meters and gauges used by the networking layer.

package p2p

import (
	"net"

	"github.com/aionnetwork/aion-sub011/metrics"
)

// Names of the connection meters.
const (
	MetricsInboundConnects  = "p2p/conn/in"
	MetricsOutboundConnects = "p2p/conn/out"
	MetricsInboundTraffic   = "p2p/bytes/in"
	MetricsOutboundTraffic  = "p2p/bytes/out"
)

var (
	acceptMeter   = metrics.NewRegisteredMeter(MetricsInboundConnects, nil)
	dialMeter     = metrics.NewRegisteredMeter(MetricsOutboundConnects, nil)
	bytesInMeter  = metrics.NewRegisteredMeter(MetricsInboundTraffic, nil)
	bytesOutMeter = metrics.NewRegisteredMeter(MetricsOutboundTraffic, nil)

	malformedMeter   = metrics.NewRegisteredMeter("p2p/msg/in/malformed", nil)
	rateLimitedMeter = metrics.NewRegisteredMeter("p2p/msg/in/ratelimited", nil)
	unroutedMeter    = metrics.NewRegisteredMeter("p2p/msg/in/unrouted", nil)
	inboundDropMeter = metrics.NewRegisteredMeter("p2p/msg/in/dropped", nil)
	staleMeter       = metrics.NewRegisteredMeter("p2p/msg/out/stale", nil)
	laneDropMeter    = metrics.NewRegisteredMeter("p2p/msg/out/dropped", nil)
	writeFailMeter   = metrics.NewRegisteredMeter("p2p/msg/out/failed", nil)

	activeGauge   = metrics.NewRegisteredGauge("p2p/peers/active", nil)
	inboundGauge  = metrics.NewRegisteredGauge("p2p/peers/inbound", nil)
	outboundGauge = metrics.NewRegisteredGauge("p2p/peers/outbound", nil)
	tempGauge     = metrics.NewRegisteredGauge("p2p/peers/temp", nil)
	inQueueGauge  = metrics.NewRegisteredGauge("p2p/queue/in", nil)
	outQueueGauge = metrics.NewRegisteredGauge("p2p/queue/out", nil)
)

// meteredConn counts the bytes moved over a peer connection.
type meteredConn struct {
	net.Conn
}

// newMeteredConn marks a new accepted or dialed connection and wraps conn.
// With metrics disabled conn is returned as is.
func newMeteredConn(conn net.Conn, accepted bool) net.Conn {
	if !metrics.Enabled {
		return conn
	}
	if accepted {
		acceptMeter.Mark(1)
	} else {
		dialMeter.Mark(1)
	}
	return &meteredConn{Conn: conn}
}

func (c *meteredConn) Read(b []byte) (int, error) {
	n, err := c.Conn.Read(b)
	bytesInMeter.Mark(int64(n))
	return n, err
}

func (c *meteredConn) Write(b []byte) (int, error) {
	n, err := c.Conn.Write(b)
	bytesOutMeter.Mark(int64(n))
	return n, err
}
