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
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aionnetwork/aion-sub011/p2p/netutil"
)

func TestAcceptRejectsOwnAddress(t *testing.T) {
	srv, _ := newTestServer(t, Config{OutboundIP: net.ParseIP("10.0.0.9")})

	ch, remote := acceptPipe(t, srv, "10.0.0.9:4000")
	assert.Nil(t, ch)
	assert.Equal(t, 0, srv.nodes.Stats().Inbound)

	// The refused connection is closed.
	remote.SetReadDeadline(time.Now().Add(time.Second))
	_, err := remote.Read(make([]byte, 1))
	assert.Error(t, err)

	ch, _ = acceptPipe(t, srv, "10.0.0.10:4000")
	assert.NotNil(t, ch)
	assert.Equal(t, 1, srv.nodes.Stats().Inbound)
}

func TestAcceptRejectsSeedsInSeedOnlyMode(t *testing.T) {
	seed := NewNode(testNodeID(5), net.ParseIP("10.0.0.5"), 30303)
	srv, _ := newTestServer(t, Config{SyncSeedsOnly: true, BootNodes: []string{seed.URL()}})
	srv.addBootNodes()
	require.Equal(t, 1, srv.nodes.TempNodeCount())

	ch, _ := acceptPipe(t, srv, "10.0.0.5:4000")
	assert.Nil(t, ch)
	ch, _ = acceptPipe(t, srv, "10.0.0.6:4000")
	assert.NotNil(t, ch)
}

func TestAcceptNetRestrict(t *testing.T) {
	restrict, err := netutil.ParseNetlist("10.0.0.0/8")
	require.NoError(t, err)
	srv, _ := newTestServer(t, Config{NetRestrict: restrict})

	ch, _ := acceptPipe(t, srv, "192.0.2.1:4000")
	assert.Nil(t, ch)
	ch, _ = acceptPipe(t, srv, "10.1.1.1:4000")
	assert.NotNil(t, ch)
}

func TestAcceptRejectsWhenActiveFull(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 1, MaxActiveNodes: 1})
	connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")

	ch, _ := acceptPipe(t, srv, "10.0.0.3:4000")
	assert.Nil(t, ch)
}

// A handshake request arriving in several reads promotes the connection and
// queues exactly one response.
func TestHandshakeSplitAcrossReads(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7, Revision: "aion/v1"})
	ch, _ := acceptPipe(t, srv, "10.0.0.2:4000")
	require.NotNil(t, ch)

	id := testNodeID(2)
	body := (&ReqHandshake{NodeID: id, NetID: 7, Port: 30303}).Encode()
	require.Len(t, body, 40)
	header := EncodeHeader(Header{Ver: Ver1, Ctrl: CtrlNet, Action: ActReqHandshake, Len: 40})

	srv.handleRead(readEvent{ch: ch, data: header})
	srv.handleRead(readEvent{ch: ch, data: body[:15]})
	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))
	srv.handleRead(readEvent{ch: ch, data: body[15:]})

	assert.Empty(t, ch.buf.remain)
	n := srv.nodes.ActiveNode(id.Hash())
	require.NotNil(t, n)
	assert.Same(t, ch, n.ch)
	assert.Equal(t, 30303, n.Port)
	assert.Equal(t, id.Hash(), ch.buf.nodeIDHash)
	assert.Nil(t, srv.nodes.InboundNode(ch.id))

	out := drainLanes(srv)
	require.Len(t, out, 1)
	assert.Equal(t, id.Hash(), out[0].PeerID)
	assert.Equal(t, DestActive, out[0].Dest)
	res, ok := out[0].Msg.(*ResHandshake)
	require.True(t, ok, "queued %T", out[0].Msg)
	assert.True(t, res.Success)
	assert.Equal(t, "aion/v1", res.BinaryVersion)

	evs := drainEvents(srv)
	require.Len(t, evs, 1)
	assert.Equal(t, PeerEventTypeAdd, evs[0].Type)
	assert.True(t, evs[0].Inbound)
}

func TestHandshakeForeignNetwork(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	ch, _ := acceptPipe(t, srv, "10.0.0.2:4000")

	id := testNodeID(2)
	srv.handleRead(readEvent{ch: ch, data: frame(&ReqHandshake{NodeID: id, NetID: 8, Port: 30303})})

	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))
	assert.NotNil(t, srv.nodes.InboundNode(ch.id))
	assert.Empty(t, drainLanes(srv))
	assert.Empty(t, drainEvents(srv))
}

func TestHandshakeBannedNode(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	srv.nodes.Ban(id.Hash())

	ch, _ := acceptPipe(t, srv, "10.0.0.2:4000")
	srv.handleRead(readEvent{ch: ch, data: frame(&ReqHandshake{NodeID: id, NetID: 7, Port: 30303})})
	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))
	assert.Empty(t, drainLanes(srv))
}

func TestHandshakeDuplicateClosesConnection(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	first, _ := connectPeer(t, srv, id, "10.0.0.2:4000")

	second, _ := acceptPipe(t, srv, "10.0.0.3:4000")
	srv.handleRead(readEvent{ch: second, data: frame(&ReqHandshake{NodeID: id, NetID: 7, Port: 30303})})

	assert.True(t, second.buf.isClosed())
	assert.False(t, first.buf.isClosed())
	assert.Same(t, first, srv.nodes.ActiveNode(id.Hash()).ch)
	assert.Empty(t, drainLanes(srv))
}

func TestKernelFrameRouting(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	h := newTestHandler(5)
	require.NoError(t, srv.Register(h))
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")

	// No handler for action 6.
	srv.handleRead(readEvent{ch: ch, data: frame(&testMsg{action: 6, body: []byte{1}})})
	assert.Len(t, srv.inboundq, 0)

	srv.handleRead(readEvent{ch: ch, data: frame(&testMsg{action: 5, body: []byte{1, 2}})})
	require.Len(t, srv.inboundq, 1)
	msg := <-srv.inboundq
	assert.Equal(t, id.Hash(), msg.PeerID)
	assert.Equal(t, id.Display(), msg.DisplayID)
	assert.Equal(t, h.Header().Route(), msg.Route)
	assert.Equal(t, []byte{1, 2}, msg.Body)
}

func TestKernelFrameBeforeHandshake(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	require.NoError(t, srv.Register(newTestHandler(5)))
	ch, _ := acceptPipe(t, srv, "10.0.0.2:4000")

	srv.handleRead(readEvent{ch: ch, data: frame(&testMsg{action: 5})})
	assert.Len(t, srv.inboundq, 0)
	assert.True(t, ch.buf.isClosed())
	assert.Nil(t, srv.nodes.InboundNode(ch.id))
	assert.NotContains(t, srv.channels, ch.id)
}

// A connection without handshake cannot make the server buffer a large body.
func TestLargeFrameBeforeHandshake(t *testing.T) {
	tests := []struct {
		name   string
		header Header
	}{
		{"kernel", Header{Ver: Ver0, Ctrl: CtrlSync, Action: 5, Len: MaxBodySize}},
		{"net", Header{Ver: Ver0, Ctrl: CtrlNet, Action: ActReqHandshake, Len: maxHandshakeLen + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newTestServer(t, Config{NetID: 7})
			ch, _ := acceptPipe(t, srv, "10.0.0.2:4000")
			require.NotNil(t, ch)

			srv.handleRead(readEvent{ch: ch, data: EncodeHeader(tt.header)})
			assert.True(t, ch.buf.isClosed())
			assert.Nil(t, ch.buf.remain)
			assert.Nil(t, srv.nodes.InboundNode(ch.id))
			assert.NotContains(t, srv.channels, ch.id)

			// Later reads of the refused body are ignored.
			srv.handleRead(readEvent{ch: ch, data: make([]byte, 1<<20)})
			assert.Nil(t, ch.buf.remain)
		})
	}
}

func TestMaxHandshakeFrameAccepted(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	ch, _ := acceptPipe(t, srv, "10.0.0.2:4000")

	vers := make([]uint16, 255)
	req := &ReqHandshake{NodeID: testNodeID(2), NetID: 7, Port: 30303, Revision: make([]byte, 255), Versions: vers}
	data := frame(req)
	require.Len(t, data, HeaderLen+maxHandshakeLen)

	srv.handleRead(readEvent{ch: ch, data: data})
	assert.False(t, ch.buf.isClosed())
	assert.NotNil(t, srv.nodes.ActiveNode(testNodeID(2).Hash()))
}

// Once active, a peer may send bodies beyond the handshake limit.
func TestLargeFrameAfterHandshake(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	require.NoError(t, srv.Register(newTestHandler(5)))
	ch, _ := connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")

	srv.handleRead(readEvent{ch: ch, data: frame(&testMsg{action: 5, body: make([]byte, 4096)})})
	assert.False(t, ch.buf.isClosed())
	assert.Len(t, srv.inboundq, 1)
}

func TestUnknownVersionDropped(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	h := newTestHandler(5)
	require.NoError(t, srv.Register(h))
	ch, _ := connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")

	data := EncodeHeader(Header{Ver: 9, Ctrl: CtrlSync, Action: 5})
	srv.handleRead(readEvent{ch: ch, data: data})
	assert.Len(t, srv.inboundq, 0)
	assert.False(t, ch.buf.isClosed())
}

func TestRouteRateLimit(t *testing.T) {
	route := RouteOf(Ver0, CtrlSync, 5)
	srv, clock := newTestServer(t, Config{NetID: 7, RouteReadRates: map[uint32]int{route: 1000}})
	require.NoError(t, srv.Register(newTestHandler(5)))
	ch, _ := connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")

	f := frame(&testMsg{action: 5, body: []byte{0xaa}})
	for i := 0; i < 1100; i++ {
		if i == 550 {
			clock.Run(900 * time.Millisecond)
		}
		srv.handleRead(readEvent{ch: ch, data: f})
	}
	assert.Len(t, srv.inboundq, 1000)
	assert.False(t, ch.buf.isClosed())
}

func TestReadErrorClosesChannel(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")

	srv.handleRead(readEvent{ch: ch, err: net.ErrClosed})
	assert.True(t, ch.buf.isClosed())
	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))
	assert.NotContains(t, srv.channels, ch.id)

	evs := drainEvents(srv)
	require.Len(t, evs, 1)
	assert.Equal(t, PeerEventTypeDrop, evs[0].Type)
	assert.Equal(t, id.Hash(), evs[0].Peer)
}

func TestDisconnectMessage(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")

	srv.handleRead(readEvent{ch: ch, data: frame(&Disconnect{})})
	assert.True(t, ch.buf.isClosed())
	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))
}

func TestPingAnswered(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")

	srv.handleRead(readEvent{ch: ch, data: frame(&Ping{})})
	out := drainLanes(srv)
	require.Len(t, out, 1)
	assert.IsType(t, &Pong{}, out[0].Msg)
	assert.Equal(t, id.Hash(), out[0].PeerID)
}

func TestReqActiveNodesExcludesRequester(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	a, b := testNodeID(2), testNodeID(3)
	cha, _ := connectPeer(t, srv, a, "10.0.0.2:4000")
	connectPeer(t, srv, b, "10.0.0.3:4000")

	srv.handleRead(readEvent{ch: cha, data: frame(&ReqActiveNodes{})})
	out := drainLanes(srv)
	require.Len(t, out, 1)
	assert.Equal(t, a.Hash(), out[0].PeerID)
	res, ok := out[0].Msg.(*ResActiveNodes)
	require.True(t, ok)
	require.Len(t, res.Nodes, 1)
	assert.Equal(t, b, res.Nodes[0].ID)
}

func TestResActiveNodesFillsTempPool(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	ch, _ := connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")

	good := NewNode(testNodeID(10), net.ParseIP("10.0.1.1"), 30303)
	self := NewNode(srv.NodeID, net.ParseIP("10.0.1.2"), 30303)
	badPort := NewNode(testNodeID(11), net.ParseIP("10.0.1.3"), 0)
	loopback := NewNode(testNodeID(12), net.ParseIP("127.0.0.1"), 30303)
	active := NewNode(testNodeID(2), net.ParseIP("10.0.0.2"), 30303)

	res := &ResActiveNodes{Nodes: []*Node{good, self, badPort, loopback, active}}
	srv.handleRead(readEvent{ch: ch, data: frame(res)})

	require.Equal(t, 1, srv.nodes.TempNodeCount())
	n := srv.nodes.TakeTempNode()
	assert.Equal(t, good.ID, n.ID)
	assert.Equal(t, 30303, n.Port)
}

func TestResActiveNodesIgnoredInSeedOnlyMode(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7, SyncSeedsOnly: true})
	ch, _ := connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")

	res := &ResActiveNodes{Nodes: []*Node{NewNode(testNodeID(10), net.ParseIP("10.0.1.1"), 30303)}}
	srv.handleRead(readEvent{ch: ch, data: frame(res)})
	assert.Equal(t, 0, srv.nodes.TempNodeCount())
}

// panicRegistry fails while refreshing a peer.
type panicRegistry struct {
	*NodeMgr
}

func (panicRegistry) Touch(PeerID) { panic("touch failed") }

func TestHandleReadRecoversPanic(t *testing.T) {
	reg := panicRegistry{NewNodeMgr(testNodeID(1).Hash(), 10, 10, time.Minute, nil)}
	srv, _ := newTestServer(t, Config{NetID: 7, Registry: reg})
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")
	other, _ := connectPeer(t, srv, testNodeID(3), "10.0.0.3:4000")

	srv.handleRead(readEvent{ch: ch, data: frame(&Ping{})})

	assert.True(t, ch.buf.isClosed())
	assert.NotContains(t, srv.channels, ch.id)
	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))
	assert.False(t, other.buf.isClosed())
	assert.Contains(t, srv.channels, other.id)
}

func TestDefaultRouteReadRates(t *testing.T) {
	srv, _ := newTestServer(t, Config{})
	assert.Equal(t, 50, srv.readRate(RouteOf(Ver0, CtrlSync, 5)))
	assert.Equal(t, 20, srv.readRate(TxBroadcastRoute))
	assert.Less(t, srv.readRate(TxBroadcastRoute), srv.ReadMaxRate)
}
