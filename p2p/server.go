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

// Package p2p implements the peer-to-peer networking engine: connection
// management, the handshake, frame reassembly and message routing.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aionnetwork/aion-sub011/common/mclock"
	"github.com/aionnetwork/aion-sub011/event"
	"github.com/aionnetwork/aion-sub011/log"
	"github.com/aionnetwork/aion-sub011/p2p/netutil"
)

const (
	errCountCacheSize = 128
	eventQueueSize    = 64
)

var (
	ErrServerRunning = errors.New("server already running")
	errServerStopped = errors.New("server not running")
	errNetRoute      = errors.New("handlers cannot be registered for network control routes")
)

// Handler receives the application messages of one route.
type Handler interface {
	// Header names the route the handler is registered for.
	Header() Header
	// Receive is called from a dispatch worker for every message on the route.
	Receive(peer PeerID, displayID string, payload []byte)
}

// shutdowner is implemented by handlers that hold resources.
type shutdowner interface {
	ShutDown()
}

// PeerEventType is the type of peer events emitted by a p2p.Server
type PeerEventType string

const (
	// PeerEventTypeAdd is the type of event emitted when a peer completes the
	// handshake.
	PeerEventTypeAdd PeerEventType = "add"

	// PeerEventTypeDrop is the type of event emitted when a peer is
	// dropped from a p2p.Server
	PeerEventTypeDrop PeerEventType = "drop"
)

// PeerEvent is an event emitted when peers are either added or dropped from
// a p2p.Server.
type PeerEvent struct {
	Type      PeerEventType
	Peer      PeerID
	DisplayID string
	Inbound   bool
	Reason    string `json:",omitempty"`
}

// Server manages all peer connections.
type Server struct {
	// Config fields may not be modified while the server is running.
	Config

	lock    sync.Mutex // protects running and handlers
	running bool

	log        log.Logger
	clock      mclock.Clock
	nodes      NodeRegistry
	selfHash   PeerID
	handlers   map[uint32][]Handler
	listener   net.Listener
	listenPort int

	ctx    context.Context
	cancel context.CancelFunc
	quit   chan struct{}

	acceptc   chan net.Conn
	registerc chan *channel
	readc     chan readEvent
	inboundq  chan *MsgIn
	lanes     []chan *MsgOut
	eventc    chan *PeerEvent

	channels   map[uint64]*channel // owned by the run loop
	nextChanID atomic.Uint64

	errMu    sync.Mutex
	errCount *lru.Cache[PeerID, int]

	peerFeed event.FeedOf[*PeerEvent]
	loopWG   sync.WaitGroup
}

// Register adds application handlers. Handlers must be registered before the
// server is started, the route table is fixed afterwards.
func (srv *Server) Register(handlers ...Handler) error {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return ErrServerRunning
	}
	if srv.handlers == nil {
		srv.handlers = make(map[uint32][]Handler)
	}
	for _, h := range handlers {
		hdr := h.Header()
		if hdr.Ctrl != CtrlSync || hdr.Action > MaxKernelAction {
			return fmt.Errorf("%w: %v", errNetRoute, hdr)
		}
		route := hdr.Route()
		srv.handlers[route] = append(srv.handlers[route], h)
	}
	return nil
}

// Versions returns the protocol versions of the registered handlers.
func (srv *Server) Versions() []uint16 {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return srv.versions()
}

func (srv *Server) versions() []uint16 {
	seen := make(map[uint16]bool)
	var vers []uint16
	for route := range srv.handlers {
		v := uint16(route >> 16)
		if !seen[v] {
			seen[v] = true
			vers = append(vers, v)
		}
	}
	sort.Slice(vers, func(i, j int) bool { return vers[i] < vers[j] })
	return vers
}

// SelfIDHash returns the peer id of the local node.
func (srv *Server) SelfIDHash() PeerID {
	return srv.NodeID.Hash()
}

// Addr returns the listening address of the server, nil if not listening.
func (srv *Server) Addr() net.Addr {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.listener == nil {
		return nil
	}
	return srv.listener.Addr()
}

// SubscribeEvents subscribes the given channel to peer events.
func (srv *Server) SubscribeEvents(ch chan<- *PeerEvent) event.Subscription {
	return srv.peerFeed.Subscribe(ch)
}

// Start starts running the server.
// Servers can not be re-used after stopping.
func (srv *Server) Start() (err error) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	if srv.running {
		return ErrServerRunning
	}
	if srv.NodeID == (NodeID{}) {
		return errors.New("Server.NodeID must be set to a non-zero id")
	}
	srv.setup()
	srv.log.Info("Starting P2P networking", "self", srv.NodeID.Display(), "netid", srv.NetID)
	if srv.OutboundIP != nil && netutil.IsLAN(srv.OutboundIP) {
		srv.log.Warn("Outbound IP is not publicly routable", "ip", srv.OutboundIP)
	}

	if srv.ListenAddr != "" {
		if err := srv.setupListening(); err != nil {
			return err
		}
	}
	srv.addBootNodes()
	srv.running = true

	srv.loopWG.Add(6 + len(srv.lanes) + srv.ReceiveWorkers)
	go srv.run()
	go srv.dialLoop()
	go srv.timeoutLoop()
	go srv.statusLoop()
	go srv.activeNodesLoop()
	go srv.eventLoop()
	for _, lane := range srv.lanes {
		go srv.sendLoop(lane)
	}
	for i := 0; i < srv.ReceiveWorkers; i++ {
		go srv.receiveLoop()
	}
	return nil
}

// setup initializes the queues and the registry without starting any
// goroutine.
func (srv *Server) setup() {
	srv.Config = srv.Config.withDefaults()
	srv.log = srv.Config.Logger
	srv.clock = srv.Config.clock
	srv.selfHash = srv.NodeID.Hash()
	srv.nodes = srv.Config.Registry
	if srv.nodes == nil {
		srv.nodes = NewNodeMgr(srv.selfHash, srv.MaxActiveNodes, srv.MaxTempNodes, srv.BanDuration, srv.clock)
	}
	if srv.handlers == nil {
		srv.handlers = make(map[uint32][]Handler)
	}
	srv.ctx, srv.cancel = context.WithCancel(context.Background())
	srv.quit = make(chan struct{})
	srv.acceptc = make(chan net.Conn)
	srv.registerc = make(chan *channel)
	srv.readc = make(chan readEvent, 64)
	srv.inboundq = make(chan *MsgIn, srv.InboundQueueSize)
	srv.lanes = make([]chan *MsgOut, srv.SendLanes)
	for i := range srv.lanes {
		srv.lanes[i] = make(chan *MsgOut, srv.LaneQueueSize)
	}
	srv.eventc = make(chan *PeerEvent, eventQueueSize)
	srv.channels = make(map[uint64]*channel)
	srv.errCount, _ = lru.New[PeerID, int](errCountCacheSize)
}

func (srv *Server) setupListening() error {
	lc := net.ListenConfig{Control: reuseAddrControl}
	listener, err := lc.Listen(srv.ctx, "tcp", srv.ListenAddr)
	if err != nil {
		return err
	}
	srv.listener = listener
	if tcp, ok := listener.Addr().(*net.TCPAddr); ok {
		srv.listenPort = tcp.Port
	}
	srv.loopWG.Add(1)
	go srv.listenLoop()
	return nil
}

// addBootNodes seeds the temp pool from the configured boot nodes.
func (srv *Server) addBootNodes() {
	for _, url := range srv.BootNodes {
		n, err := ParseNode(url)
		if err != nil {
			srv.log.Error("Invalid boot node", "url", url, "err", err)
			continue
		}
		if n.IDHash == srv.selfHash {
			continue
		}
		n.fromBootList = true
		srv.nodes.AddSeedIP(n.IP)
		if err := srv.nodes.AddTempNode(n); err != nil {
			srv.log.Warn("Boot node not added", "node", n.DisplayID(), "err", err)
		}
	}
}

// Stop terminates the server and all active peer connections.
// It blocks until all active connections have been closed.
func (srv *Server) Stop() {
	srv.lock.Lock()
	if !srv.running {
		srv.lock.Unlock()
		return
	}
	srv.running = false
	srv.cancel()
	if srv.listener != nil {
		// this unblocks listener Accept
		srv.listener.Close()
	}
	close(srv.quit)
	srv.lock.Unlock()

	srv.loopWG.Wait()
	srv.nodes.Close()
	for _, hs := range srv.handlers {
		for _, h := range hs {
			if s, ok := h.(shutdowner); ok {
				s.ShutDown()
			}
		}
	}
	srv.log.Info("P2P networking stopped")
}

// Send queues msg for the active peer id. Delivery is not confirmed.
func (srv *Server) Send(id PeerID, displayID string, msg Msg) {
	srv.enqueue(&MsgOut{PeerID: id, DisplayID: displayID, Dest: DestActive, Msg: msg})
}

// ErrCheck records a protocol error of a peer. Once a peer exceeds the error
// tolerance it is banned and dropped.
func (srv *Server) ErrCheck(id PeerID, displayID string) {
	srv.errMu.Lock()
	count, _ := srv.errCount.Get(id)
	count++
	exceeded := count > srv.ErrTolerance
	if exceeded {
		srv.errCount.Remove(id)
	} else {
		srv.errCount.Add(id, count)
	}
	srv.errMu.Unlock()

	if exceeded {
		srv.log.Debug("Banning peer over error tolerance", "peer", displayID, "errors", count)
		srv.nodes.Ban(id)
		srv.DropActive(id, "error tolerance exceeded")
	}
}

// DropActive disconnects an active peer.
func (srv *Server) DropActive(id PeerID, reason string) {
	if n := srv.nodes.DropActive(id); n != nil {
		srv.log.Debug("Dropped active peer", "peer", n.DisplayID(), "reason", reason)
		srv.emit(PeerEventTypeDrop, n, reason)
	}
}

// ActiveNodes returns a snapshot of the active peers.
func (srv *Server) ActiveNodes() []NodeInfo {
	return srv.nodes.Snapshot()
}

// RandomNode returns a random active peer.
func (srv *Server) RandomNode() (NodeInfo, bool) {
	n := srv.nodes.RandomActive()
	if n == nil {
		return NodeInfo{}, false
	}
	return NodeInfo{ID: n.ID, IDHash: n.IDHash, DisplayID: n.DisplayID(), IP: n.IP, Port: n.Port, BinaryVersion: n.BinaryVersion}, true
}

// emit queues a peer event without blocking.
func (srv *Server) emit(typ PeerEventType, n *Node, reason string) {
	ev := &PeerEvent{Type: typ, Peer: n.IDHash, DisplayID: n.DisplayID(), Inbound: n.inbound, Reason: reason}
	select {
	case srv.eventc <- ev:
	default:
		srv.log.Trace("Peer event dropped", "type", typ, "peer", ev.DisplayID)
	}
}

func (srv *Server) eventLoop() {
	defer srv.loopWG.Done()
	for {
		select {
		case ev := <-srv.eventc:
			srv.peerFeed.SendAbort(ev, srv.quit)
		case <-srv.quit:
			return
		}
	}
}

func (srv *Server) listenLoop() {
	defer srv.loopWG.Done()
	for {
		conn, err := srv.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			srv.log.Debug("Accept error", "err", err)
			select {
			case <-srv.quit:
				return
			case <-srv.clock.After(50 * time.Millisecond):
			}
			continue
		}
		select {
		case srv.acceptc <- conn:
		case <-srv.quit:
			conn.Close()
			return
		}
	}
}

func (srv *Server) handshakeRequest() *ReqHandshake {
	return &ReqHandshake{
		NodeID:   srv.NodeID,
		NetID:    srv.NetID,
		Port:     uint32(srv.listenPort),
		Revision: []byte(srv.Revision),
		Versions: srv.versions(),
	}
}
