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
	"strconv"
	"time"
)

// dialLoop periodically dials one candidate from the temp pool.
func (srv *Server) dialLoop() {
	defer srv.loopWG.Done()
	ticker := time.NewTicker(srv.dialInterval)
	defer ticker.Stop()
	for {
		select {
		case <-srv.quit:
			return
		case <-ticker.C:
			srv.dialOnce()
		}
	}
}

// dialOnce takes the next temp node and connects to it unless the active
// table is full or the node is already known.
func (srv *Server) dialOnce() {
	if srv.nodes.Stats().Active >= srv.MaxActiveNodes {
		return
	}
	n := srv.nodes.TakeTempNode()
	if n == nil {
		return
	}
	if srv.nodes.IsSeedIP(n.IP) {
		n.fromBootList = true
		srv.nodes.AddTempNode(n.copyAddr())
	}
	if srv.nodes.OutboundNode(n.IDHash) != nil || srv.nodes.ActiveNode(n.IDHash) != nil {
		return
	}
	if err := srv.dial(n); err != nil {
		srv.log.Debug("Dial failed", "node", n.DisplayID(), "addr", n.IP, "port", n.Port, "err", err)
	}
}

func (srv *Server) dial(n *Node) error {
	ctx, cancel := context.WithTimeout(srv.ctx, srv.ConnectTimeout)
	defer cancel()
	addr := net.JoinHostPort(n.IP.String(), strconv.Itoa(n.Port))
	conn, err := srv.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	srv.configureConn(conn)

	ch := srv.newChannel(newMeteredConn(conn, false), false, n.IP, n.Port)
	ch.buf.nodeIDHash = n.IDHash
	ch.buf.displayID = n.DisplayID()
	n.ch = ch
	srv.nodes.AddOutboundNode(n)

	select {
	case srv.registerc <- ch:
	case <-srv.quit:
		ch.close()
		return nil
	}
	srv.log.Trace("Dialed node", "node", n.DisplayID(), "addr", addr)
	srv.enqueue(&MsgOut{PeerID: n.IDHash, DisplayID: n.DisplayID(), Dest: DestOutbound, Msg: srv.handshakeRequest()})
	return nil
}

// configureConn applies socket options to TCP connections.
func (srv *Server) configureConn(conn net.Conn) {
	tcp, ok := conn.(*net.TCPConn)
	if !ok {
		return
	}
	tcp.SetNoDelay(true)
	tcp.SetKeepAlive(true)
	if srv.ReadBufferSize > 0 {
		tcp.SetReadBuffer(srv.ReadBufferSize)
	}
	if srv.WriteBufferSize > 0 {
		tcp.SetWriteBuffer(srv.WriteBufferSize)
	}
}
