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
	"net"
	"testing"

	"github.com/aionnetwork/aion-sub011/common/mclock"
	"github.com/aionnetwork/aion-sub011/internal/testlog"
	"github.com/aionnetwork/aion-sub011/log"
)

// pipeConn is one end of a net.Pipe that reports a TCP remote address.
type pipeConn struct {
	net.Conn
	remote *net.TCPAddr
}

func (c *pipeConn) RemoteAddr() net.Addr { return c.remote }

func testNodeID(b byte) NodeID {
	var id NodeID
	for i := range id {
		id[i] = b + byte(i)
	}
	return id
}

func mustTCPAddr(t *testing.T, s string) *net.TCPAddr {
	t.Helper()
	addr, err := net.ResolveTCPAddr("tcp", s)
	if err != nil {
		t.Fatal(err)
	}
	return addr
}

// newTestServer creates a server with queues and registry but no running
// goroutines, driven by a simulated clock.
func newTestServer(t *testing.T, cfg Config) (*Server, *mclock.Simulated) {
	t.Helper()
	clock := new(mclock.Simulated)
	if cfg.NodeID == (NodeID{}) {
		cfg.NodeID = testNodeID(1)
	}
	cfg.Logger = testlog.Logger(t, log.LvlTrace)
	cfg.clock = clock
	srv := &Server{Config: cfg}
	srv.setup()
	t.Cleanup(func() {
		close(srv.quit)
		for _, ch := range srv.channels {
			ch.close()
		}
		srv.loopWG.Wait()
	})
	return srv, clock
}

// acceptPipe registers an inbound connection from addr. The returned conn is
// the remote end.
func acceptPipe(t *testing.T, srv *Server, addr string) (*channel, net.Conn) {
	t.Helper()
	local, remote := net.Pipe()
	t.Cleanup(func() { remote.Close() })
	ch := srv.acceptConn(&pipeConn{Conn: local, remote: mustTCPAddr(t, addr)})
	return ch, remote
}

// frame builds the wire form of msg.
func frame(msg Msg) []byte {
	body := msg.Encode()
	h := msg.Header()
	h.Len = uint32(len(body))
	return append(EncodeHeader(h), body...)
}

// connectPeer accepts a connection from addr and completes the handshake for
// id. The queued handshake response and the add event are consumed.
func connectPeer(t *testing.T, srv *Server, id NodeID, addr string) (*channel, net.Conn) {
	t.Helper()
	ch, remote := acceptPipe(t, srv, addr)
	if ch == nil {
		t.Fatalf("connection from %s refused", addr)
	}
	req := &ReqHandshake{NodeID: id, NetID: srv.NetID, Port: 30303}
	srv.handleRead(readEvent{ch: ch, data: frame(req)})
	if srv.nodes.ActiveNode(id.Hash()) == nil {
		t.Fatalf("peer %s not active after handshake", id.Display())
	}
	drainLanes(srv)
	drainEvents(srv)
	return ch, remote
}

func drainLanes(srv *Server) []*MsgOut {
	var out []*MsgOut
	for _, lane := range srv.lanes {
		for len(lane) > 0 {
			out = append(out, <-lane)
		}
	}
	return out
}

func drainEvents(srv *Server) []*PeerEvent {
	var evs []*PeerEvent
	for len(srv.eventc) > 0 {
		evs = append(evs, <-srv.eventc)
	}
	return evs
}

// testMsg is an application message on the CtrlSync class.
type testMsg struct {
	action uint8
	body   []byte
}

func (m *testMsg) Header() Header { return Header{Ver: Ver0, Ctrl: CtrlSync, Action: m.action} }
func (m *testMsg) Encode() []byte { return m.body }

// testHandler records delivered messages.
type testHandler struct {
	action uint8
	panics bool
	recv   chan *MsgIn
	closed bool
}

func newTestHandler(action uint8) *testHandler {
	return &testHandler{action: action, recv: make(chan *MsgIn, 16)}
}

func (h *testHandler) Header() Header { return Header{Ver: Ver0, Ctrl: CtrlSync, Action: h.action} }

func (h *testHandler) Receive(peer PeerID, displayID string, payload []byte) {
	if h.panics {
		panic("handler failure")
	}
	h.recv <- &MsgIn{PeerID: peer, DisplayID: displayID, Route: h.Header().Route(), Body: payload}
}

func (h *testHandler) ShutDown() { h.closed = true }
