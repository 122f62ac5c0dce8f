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

package p2p

import (
	"context"
	"net"
	"runtime"
	"time"

	"github.com/aionnetwork/aion-sub011/common/mclock"
	"github.com/aionnetwork/aion-sub011/log"
	"github.com/aionnetwork/aion-sub011/p2p/netutil"
)

// TxBroadcastRoute is the application route used to gossip transactions. It
// gets its own read budget in the default configuration.
var TxBroadcastRoute = RouteOf(Ver0, CtrlSync, 6)

const (
	defaultDialInterval         = time.Second
	defaultTimeoutCheckInterval = 5 * time.Second
	defaultStatusInterval       = 10 * time.Second
	defaultActiveNodesInterval  = time.Second
	defaultActiveNodesDelay     = 5 * time.Second
)

// Config holds Server options.
type Config struct {
	// NodeID is the identity announced in handshakes. It must be set.
	NodeID NodeID

	// NetID separates networks; handshakes from other networks are ignored.
	NetID uint32

	// Revision is the binary version announced to peers.
	Revision string `toml:",omitempty"`

	// ListenAddr is the TCP address the server accepts connections on. An
	// empty address disables accepting.
	ListenAddr string

	// BootNodes are dialed first and their IPs are treated as seeds. They
	// use the p2p://<id>@<ip>:<port> format.
	BootNodes []string

	// MaxActiveNodes caps the number of peers that completed the handshake.
	MaxActiveNodes int

	// MaxTempNodes caps the pool of dial candidates.
	MaxTempNodes int

	// SyncSeedsOnly restricts the node to its boot nodes: peer gossip is
	// neither requested nor accepted.
	SyncSeedsOnly bool

	// ErrTolerance is the number of errors reported through ErrCheck before
	// a peer is banned.
	ErrTolerance int

	// BanDuration is how long a banned peer stays banned.
	BanDuration time.Duration

	// ReadMaxRate is the number of frames per route and connection accepted
	// within one second.
	ReadMaxRate int

	// RouteReadRates overrides ReadMaxRate for individual routes.
	RouteReadRates map[uint32]int `toml:"-"`

	// WriteTimeout is the maximum age of an outbound message. Older messages
	// are dropped instead of written.
	WriteTimeout time.Duration

	// ConnectTimeout bounds outbound dials.
	ConnectTimeout time.Duration

	// MaxWriteDuration bounds the time spent writing a single frame.
	MaxWriteDuration time.Duration

	// OutboundIP is this node's public IP. Connections from it are refused.
	OutboundIP net.IP `toml:",omitempty"`

	// NetRestrict, if set, limits connections to the given networks.
	NetRestrict *netutil.Netlist `toml:",omitempty"`

	// InboundQueueSize bounds the queue between the multiplexer and the
	// dispatch workers.
	InboundQueueSize int

	// LaneQueueSize bounds the queue of each send lane.
	LaneQueueSize int

	// SendLanes is the number of send workers.
	SendLanes int

	// ReceiveWorkers is the number of dispatch workers.
	ReceiveWorkers int

	// ReadBufferSize and WriteBufferSize set the socket buffers, zero keeps
	// the system default.
	ReadBufferSize  int `toml:",omitempty"`
	WriteBufferSize int `toml:",omitempty"`

	// Logger is a custom logger to use with the p2p.Server.
	Logger log.Logger `toml:"-"`

	// Dialer opens outbound connections. It defaults to a net.Dialer.
	Dialer NodeDialer `toml:"-"`

	// Registry tracks peers. It defaults to a NodeMgr.
	Registry NodeRegistry `toml:"-"`

	clock                mclock.Clock
	dialInterval         time.Duration
	timeoutCheckInterval time.Duration
	statusInterval       time.Duration
	activeNodesInterval  time.Duration
	activeNodesDelay     time.Duration
}

// NodeDialer is used to connect to nodes in the network.
type NodeDialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// DefaultConfig contains reasonable default settings.
var DefaultConfig = Config{
	ListenAddr:       ":30303",
	MaxActiveNodes:   128,
	MaxTempNodes:     128,
	ErrTolerance:     50,
	BanDuration:      10 * time.Minute,
	ReadMaxRate:      50,
	RouteReadRates:   map[uint32]int{TxBroadcastRoute: 20},
	WriteTimeout:     20 * time.Second,
	ConnectTimeout:   10 * time.Second,
	MaxWriteDuration: 5 * time.Second,
	InboundQueueSize: 50000,
	LaneQueueSize:    10000,
	ReceiveWorkers:   1,
}

// withDefaults fills zero values from DefaultConfig.
func (c Config) withDefaults() Config {
	d := DefaultConfig
	if c.MaxActiveNodes <= 0 {
		c.MaxActiveNodes = d.MaxActiveNodes
	}
	if c.MaxTempNodes <= 0 {
		c.MaxTempNodes = d.MaxTempNodes
	}
	if c.ErrTolerance <= 0 {
		c.ErrTolerance = d.ErrTolerance
	}
	if c.BanDuration <= 0 {
		c.BanDuration = d.BanDuration
	}
	if c.ReadMaxRate <= 0 {
		c.ReadMaxRate = d.ReadMaxRate
	}
	if c.RouteReadRates == nil {
		c.RouteReadRates = make(map[uint32]int, len(d.RouteReadRates))
		for route, rate := range d.RouteReadRates {
			c.RouteReadRates[route] = rate
		}
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = d.ConnectTimeout
	}
	if c.MaxWriteDuration <= 0 {
		c.MaxWriteDuration = d.MaxWriteDuration
	}
	if c.InboundQueueSize <= 0 {
		c.InboundQueueSize = d.InboundQueueSize
	}
	if c.LaneQueueSize <= 0 {
		c.LaneQueueSize = d.LaneQueueSize
	}
	if c.SendLanes <= 0 {
		c.SendLanes = defaultSendLanes()
	}
	if c.ReceiveWorkers <= 0 {
		c.ReceiveWorkers = d.ReceiveWorkers
	}
	if c.Logger == nil {
		c.Logger = log.Root()
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{}
	}
	if c.clock == nil {
		c.clock = mclock.System{}
	}
	if c.dialInterval <= 0 {
		c.dialInterval = defaultDialInterval
	}
	if c.timeoutCheckInterval <= 0 {
		c.timeoutCheckInterval = defaultTimeoutCheckInterval
	}
	if c.statusInterval <= 0 {
		c.statusInterval = defaultStatusInterval
	}
	if c.activeNodesInterval <= 0 {
		c.activeNodesInterval = defaultActiveNodesInterval
	}
	if c.activeNodesDelay <= 0 {
		c.activeNodesDelay = defaultActiveNodesDelay
	}
	return c
}

func defaultSendLanes() int {
	n := 2 * runtime.NumCPU()
	if n > 32 {
		n = 32
	}
	return n
}

// readRate returns the per second frame budget of a route.
func (c *Config) readRate(route uint32) int {
	if r, ok := c.RouteReadRates[route]; ok {
		return r
	}
	return c.ReadMaxRate
}
