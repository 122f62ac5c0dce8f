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
	"errors"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/aionnetwork/aion-sub011/internal/testlog"
	"github.com/aionnetwork/aion-sub011/log"
)

func startTestServer(t *testing.T, id NodeID, bootnodes []string, handlers ...Handler) *Server {
	t.Helper()
	srv := &Server{Config: Config{
		NodeID:       id,
		NetID:        31,
		Revision:     "aion/test",
		ListenAddr:   "127.0.0.1:0",
		BootNodes:    bootnodes,
		Logger:       testlog.Logger(t, log.LvlTrace).New("server", id.Display()),
		dialInterval: 20 * time.Millisecond,
	}}
	require.NoError(t, srv.Register(handlers...))
	require.NoError(t, srv.Start())
	return srv
}

func waitEvent(t *testing.T, ch <-chan *PeerEvent, typ PeerEventType) *PeerEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-ch:
			if ev.Type == typ {
				return ev
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s event", typ)
			return nil
		}
	}
}

func TestServerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	h := newTestHandler(1)
	srv := startTestServer(t, testNodeID(1), nil, h)
	require.NotNil(t, srv.Addr())
	assert.ErrorIs(t, srv.Start(), ErrServerRunning)
	assert.ErrorIs(t, srv.Register(newTestHandler(2)), ErrServerRunning)

	srv.Stop()
	srv.Stop()
	assert.True(t, h.closed)
}

func TestServerRequiresNodeID(t *testing.T) {
	srv := &Server{Config: Config{Logger: testlog.Logger(t, log.LvlTrace)}}
	assert.Error(t, srv.Start())
}

// Two servers connect over loopback, complete the handshake and exchange an
// application message.
func TestServerLoopback(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	recv := newTestHandler(3)
	a := startTestServer(t, testNodeID(1), nil, recv)
	defer a.Stop()
	aEvents := make(chan *PeerEvent, 8)
	sub := a.SubscribeEvents(aEvents)
	defer sub.Unsubscribe()

	boot := NewNode(a.NodeID, net.IPv4(127, 0, 0, 1), a.Addr().(*net.TCPAddr).Port)
	b := startTestServer(t, testNodeID(2), []string{boot.URL()}, newTestHandler(3))
	defer b.Stop()
	bEvents := make(chan *PeerEvent, 8)
	bsub := b.SubscribeEvents(bEvents)
	defer bsub.Unsubscribe()

	evA := waitEvent(t, aEvents, PeerEventTypeAdd)
	assert.Equal(t, b.SelfIDHash(), evA.Peer)
	assert.True(t, evA.Inbound)
	evB := waitEvent(t, bEvents, PeerEventTypeAdd)
	assert.Equal(t, a.SelfIDHash(), evB.Peer)
	assert.False(t, evB.Inbound)

	info, ok := b.RandomNode()
	require.True(t, ok)
	assert.Equal(t, a.NodeID, info.ID)
	assert.Equal(t, "aion/test", info.BinaryVersion)
	require.Len(t, a.ActiveNodes(), 1)
	assert.Equal(t, "aion/test", a.ActiveNodes()[0].BinaryVersion)

	b.Send(a.SelfIDHash(), a.NodeID.Display(), &testMsg{action: 3, body: []byte("block")})
	select {
	case msg := <-recv.recv:
		assert.Equal(t, b.SelfIDHash(), msg.PeerID)
		assert.Equal(t, []byte("block"), msg.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("message not delivered")
	}

	b.Stop()
	evA = waitEvent(t, aEvents, PeerEventTypeDrop)
	assert.Equal(t, b.SelfIDHash(), evA.Peer)
}

type failDialer struct{ calls chan string }

func (d *failDialer) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	d.calls <- addr
	return nil, errors.New("unreachable")
}

func TestDialOnceRequeuesSeeds(t *testing.T) {
	d := &failDialer{calls: make(chan string, 4)}
	seed := NewNode(testNodeID(5), net.ParseIP("10.0.0.5"), 30303)
	srv, _ := newTestServer(t, Config{Dialer: d, BootNodes: []string{seed.URL()}})
	srv.addBootNodes()

	srv.dialOnce()
	assert.Equal(t, "10.0.0.5:30303", <-d.calls)
	// Seeds stay dial candidates.
	require.Equal(t, 1, srv.nodes.TempNodeCount())
	srv.dialOnce()
	assert.Equal(t, "10.0.0.5:30303", <-d.calls)
}

func TestDialOnceSkipsWhenFull(t *testing.T) {
	d := &failDialer{calls: make(chan string, 4)}
	srv, _ := newTestServer(t, Config{NetID: 7, Dialer: d, MaxActiveNodes: 1})
	connectPeer(t, srv, testNodeID(2), "10.0.0.2:4000")
	srv.nodes.AddTempNode(NewNode(testNodeID(5), net.ParseIP("10.0.0.5"), 30303))

	srv.dialOnce()
	assert.Len(t, d.calls, 0)
	assert.Equal(t, 1, srv.nodes.TempNodeCount())
}

func TestErrCheckBans(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7, ErrTolerance: 2})
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")

	srv.ErrCheck(id.Hash(), id.Display())
	srv.ErrCheck(id.Hash(), id.Display())
	assert.False(t, srv.nodes.IsBanned(id.Hash()))
	srv.ErrCheck(id.Hash(), id.Display())
	assert.True(t, srv.nodes.IsBanned(id.Hash()))
	assert.True(t, ch.buf.isClosed())
	assert.Nil(t, srv.nodes.ActiveNode(id.Hash()))

	evs := drainEvents(srv)
	require.Len(t, evs, 1)
	assert.Equal(t, PeerEventTypeDrop, evs[0].Type)
}

func TestTimeoutCheckEmitsDrop(t *testing.T) {
	srv, clock := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	ch, _ := connectPeer(t, srv, id, "10.0.0.2:4000")
	pending, _ := acceptPipe(t, srv, "10.0.0.3:4000")

	clock.Run(maxActiveTimeout + time.Second)
	srv.timeoutCheck()
	assert.True(t, ch.buf.isClosed())
	assert.True(t, pending.buf.isClosed())

	// Connections without a known identity do not produce events.
	evs := drainEvents(srv)
	require.Len(t, evs, 1)
	assert.Equal(t, id.Hash(), evs[0].Peer)
	assert.Equal(t, "timeout", evs[0].Reason)
}

func TestStatusTable(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	id := testNodeID(2)
	connectPeer(t, srv, id, "10.0.0.2:4000")
	srv.Send(id.Hash(), id.Display(), &Ping{})

	out := srv.status()
	assert.Contains(t, out, "active=1/128")
	assert.Contains(t, out, "out=1")
	assert.Contains(t, out, id.Display())
	assert.Contains(t, out, "10.0.0.2:30303")
	assert.True(t, strings.Contains(out, "PEER"), out)
}

func TestRequestActiveNodes(t *testing.T) {
	srv, _ := newTestServer(t, Config{NetID: 7})
	srv.requestActiveNodes()
	assert.Empty(t, drainLanes(srv))

	id := testNodeID(2)
	connectPeer(t, srv, id, "10.0.0.2:4000")
	srv.requestActiveNodes()
	out := drainLanes(srv)
	require.Len(t, out, 1)
	assert.IsType(t, &ReqActiveNodes{}, out[0].Msg)
	assert.Equal(t, id.Hash(), out[0].PeerID)
}
