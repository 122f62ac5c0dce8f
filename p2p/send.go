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

// enqueue stamps mo and hands it to its lane without blocking. A full lane
// drops the message.
func (srv *Server) enqueue(mo *MsgOut) {
	if srv.lanes == nil {
		return
	}
	mo.Enqueued = srv.clock.Now()
	mo.Lane = laneFor(mo.PeerID, len(srv.lanes))
	select {
	case srv.lanes[mo.Lane] <- mo:
	default:
		laneDropMeter.Mark(1)
		srv.log.Debug("Send lane full, message dropped", "peer", mo.DisplayID, "lane", mo.Lane)
	}
}

// sendLoop drains one lane. Messages of a peer always use the same lane, so
// they are written in the order they were queued.
func (srv *Server) sendLoop(lane <-chan *MsgOut) {
	defer srv.loopWG.Done()
	for {
		select {
		case <-srv.quit:
			return
		case mo := <-lane:
			srv.sendMsg(mo)
		}
	}
}

// resolve finds the node a message is addressed to.
func (srv *Server) resolve(mo *MsgOut) *Node {
	switch mo.Dest {
	case DestActive:
		return srv.nodes.ActiveNode(mo.PeerID)
	case DestOutbound:
		return srv.nodes.OutboundNode(mo.PeerID)
	case DestInbound:
		return srv.nodes.InboundNode(uint64(mo.PeerID))
	}
	return nil
}

// sendMsg writes one message to its peer. Failures never propagate: the
// message is dropped and a broken connection is closed.
func (srv *Server) sendMsg(mo *MsgOut) {
	if age := srv.clock.Now().Sub(mo.Enqueued); age > srv.WriteTimeout {
		staleMeter.Mark(1)
		srv.log.Debug("Dropped stale message", "peer", mo.DisplayID, "age", age)
		return
	}
	n := srv.resolve(mo)
	if n == nil || n.ch == nil || n.ch.buf.isClosed() {
		srv.log.Trace("Dropped message for unknown peer", "peer", mo.DisplayID, "dest", mo.Dest)
		return
	}
	body := mo.Msg.Encode()
	if len(body) > MaxBodySize {
		srv.log.Error("Dropped oversized message", "peer", mo.DisplayID, "size", len(body))
		return
	}
	h := mo.Msg.Header()
	h.Len = uint32(len(body))
	frame := make([]byte, HeaderLen+len(body))
	putHeader(frame, h)
	copy(frame[HeaderLen:], body)

	if err := n.ch.write(frame, srv.MaxWriteDuration); err != nil {
		writeFailMeter.Mark(1)
		if isBrokenConn(err) {
			srv.log.Debug("Peer connection broken", "peer", mo.DisplayID, "err", err)
		} else {
			srv.log.Debug("Write failed, closing connection", "peer", mo.DisplayID, "route", h.Route(), "err", err)
		}
		// A partial frame corrupts the stream, the connection cannot be reused.
		n.ch.close()
	}
}
