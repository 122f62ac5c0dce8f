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
	"fmt"
	"net"

	"github.com/aionnetwork/aion-sub011/p2p/netutil"
)

// run is the multiplexer. It is the only goroutine touching the channel
// table and the reassembly state of any connection.
func (srv *Server) run() {
	defer srv.loopWG.Done()
	srv.log.Debug("Multiplexer started")

	for {
		select {
		case <-srv.quit:
			for _, ch := range srv.channels {
				ch.close()
			}
			srv.log.Debug("Multiplexer stopped", "channels", len(srv.channels))
			return

		case conn := <-srv.acceptc:
			srv.acceptConn(conn)

		case ch := <-srv.registerc:
			srv.addChannel(ch)

		case ev := <-srv.readc:
			srv.handleRead(ev)
		}
	}
}

// checkInbound decides whether a connection from ip may be accepted.
func (srv *Server) checkInbound(ip net.IP) error {
	switch {
	case srv.nodes.Stats().Active >= srv.MaxActiveNodes:
		return errActiveFull
	case srv.SyncSeedsOnly && srv.nodes.IsSeedIP(ip):
		return fmt.Errorf("seed %v in seed-only mode", ip)
	case srv.OutboundIP != nil && netutil.SameIP(ip, srv.OutboundIP):
		return errSelfConnect
	case srv.NetRestrict != nil && !srv.NetRestrict.Contains(ip):
		return fmt.Errorf("%v not in netrestrict list", ip)
	}
	return nil
}

// acceptConn registers an accepted connection and records it as an inbound
// node. It returns nil if the connection was refused.
func (srv *Server) acceptConn(conn net.Conn) *channel {
	ip, port := remoteAddr(conn)
	if err := srv.checkInbound(ip); err != nil {
		srv.log.Debug("Rejected inbound connection", "addr", conn.RemoteAddr(), "err", err)
		conn.Close()
		return nil
	}
	srv.configureConn(conn)
	ch := srv.newChannel(newMeteredConn(conn, true), true, ip, port)
	srv.addChannel(ch)
	n := &Node{IP: ip, Port: port, ch: ch}
	srv.nodes.AddInboundNode(n)
	srv.log.Trace("Accepted connection", "addr", conn.RemoteAddr(), "id", ch.id)
	return ch
}

func (srv *Server) newChannel(conn net.Conn, inbound bool, ip net.IP, port int) *channel {
	ch := &channel{
		id:      srv.nextChanID.Add(1),
		conn:    conn,
		buf:     newChannelBuffer(srv.clock, srv.log),
		inbound: inbound,
		ip:      ip,
		port:    port,
	}
	ch.buf.admit = func(h Header) error { return srv.admitFrame(ch, h) }
	return ch
}

// admitFrame restricts a connection that has not completed the handshake to
// small network control frames.
func (srv *Server) admitFrame(ch *channel, h Header) error {
	if srv.activeNodeOf(ch) != nil {
		return nil
	}
	if h.Ctrl != CtrlNet {
		return fmt.Errorf("%w: route %d", errNotHandshaked, h.Route())
	}
	if h.Len > maxHandshakeLen {
		return fmt.Errorf("%w: %d bytes", errHandshakeTooLarge, h.Len)
	}
	return nil
}

// addChannel puts ch into the channel table and starts its reader.
func (srv *Server) addChannel(ch *channel) {
	srv.channels[ch.id] = ch
	srv.loopWG.Add(1)
	go func() {
		defer srv.loopWG.Done()
		ch.readLoop(srv.readc, srv.quit)
	}()
}

// closeChannel closes ch and forgets every registry entry bound to it.
func (srv *Server) closeChannel(ch *channel, reason string) {
	ch.close()
	delete(srv.channels, ch.id)
	for _, n := range srv.nodes.DropChannel(ch.id) {
		if n.IDHash != 0 {
			srv.log.Debug("Peer disconnected", "peer", n.DisplayID(), "reason", reason)
			srv.emit(PeerEventTypeDrop, n, reason)
		}
	}
}

// handleRead feeds one read result into the connection's buffer. A panic
// while processing closes only the affected connection.
func (srv *Server) handleRead(ev readEvent) {
	ch, ok := srv.channels[ev.ch.id]
	if !ok {
		return
	}
	if ev.err != nil {
		srv.closeChannel(ch, ev.err.Error())
		return
	}
	defer func() {
		if r := recover(); r != nil {
			srv.log.Error("Connection handling failed", "id", ch.id, "peer", ch.buf.displayID, "err", r)
			srv.closeChannel(ch, fmt.Sprint(r))
		}
	}()
	err := ch.buf.feed(ev.data, func(h Header, body []byte) {
		srv.handleFrame(ch, h, body)
	})
	if err != nil {
		malformedMeter.Mark(1)
		srv.log.Debug("Refused frame before handshake", "id", ch.id, "addr", ch.conn.RemoteAddr(), "err", err)
		srv.closeChannel(ch, err.Error())
	}
}

// handleFrame routes one completed frame.
func (srv *Server) handleFrame(ch *channel, h Header, body []byte) {
	if ch.buf.isClosed() {
		return
	}
	route := h.Route()
	if !ch.buf.shouldRoute(route, srv.readRate(route)) {
		rateLimitedMeter.Mark(1)
		srv.log.Debug("Dropped frame over route budget", "route", route, "peer", ch.buf.displayID, "count", ch.buf.routeCount(route))
		return
	}
	if !knownVersion(h.Ver) {
		srv.log.Debug("Dropped frame of unknown version", "ver", h.Ver, "peer", ch.buf.displayID)
		return
	}
	switch h.Ctrl {
	case CtrlNet:
		srv.handleNetMsg(ch, h, body)
	case CtrlSync:
		srv.handleKernelMsg(ch, route, body)
	}
}

// handleKernelMsg queues an application frame for dispatch.
func (srv *Server) handleKernelMsg(ch *channel, route uint32, body []byte) {
	if _, ok := srv.handlers[route]; !ok {
		unroutedMeter.Mark(1)
		srv.log.Debug("Dropped frame without handler", "route", route, "peer", ch.buf.displayID)
		return
	}
	id := ch.buf.nodeIDHash
	if n := srv.nodes.ActiveNode(id); id == 0 || n == nil || n.ch != ch {
		srv.log.Debug("Dropped frame from inactive connection", "route", route, "id", ch.id)
		return
	}
	srv.nodes.Touch(id)
	msg := &MsgIn{PeerID: id, DisplayID: ch.buf.displayID, Route: route, Body: body}
	select {
	case srv.inboundq <- msg:
	default:
		inboundDropMeter.Mark(1)
		srv.log.Debug("Inbound queue full, message dropped", "route", route, "peer", msg.DisplayID)
	}
}
