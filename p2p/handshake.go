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

	"github.com/aionnetwork/aion-sub011/p2p/netutil"
)

// handleNetMsg interprets frames of the network control class.
func (srv *Server) handleNetMsg(ch *channel, h Header, body []byte) {
	switch h.Action {
	case ActReqHandshake:
		srv.handleReqHandshake(ch, body)
	case ActResHandshake:
		srv.handleResHandshake(ch, body)
	case ActReqActiveNodes:
		srv.handleReqActiveNodes(ch)
	case ActResActiveNodes:
		srv.handleResActiveNodes(ch, body)
	case ActPing:
		if n := srv.activeNodeOf(ch); n != nil {
			srv.nodes.Touch(n.IDHash)
			srv.enqueue(&MsgOut{PeerID: n.IDHash, DisplayID: n.DisplayID(), Dest: DestActive, Msg: &Pong{}})
		}
	case ActPong:
		if n := srv.activeNodeOf(ch); n != nil {
			srv.nodes.Touch(n.IDHash)
		}
	case ActDisconnect:
		srv.closeChannel(ch, "disconnect requested")
	}
}

// activeNodeOf returns the active node using ch, if any.
func (srv *Server) activeNodeOf(ch *channel) *Node {
	id := ch.buf.nodeIDHash
	if id == 0 {
		return nil
	}
	if n := srv.nodes.ActiveNode(id); n != nil && n.ch == ch {
		return n
	}
	return nil
}

// handleReqHandshake runs on the accepting side. A request for another
// network is dropped without answer.
func (srv *Server) handleReqHandshake(ch *channel, body []byte) {
	if srv.nodes.InboundNode(ch.id) == nil {
		return
	}
	req, err := decodeReqHandshake(body)
	if err != nil {
		srv.log.Debug("Invalid handshake request", "id", ch.id, "err", err)
		return
	}
	id := req.NodeID.Hash()
	if srv.nodes.IsBanned(id) {
		srv.log.Debug("Handshake from banned node", "peer", req.NodeID.Display())
		return
	}
	if req.NetID != srv.NetID {
		srv.log.Debug("Handshake for foreign network", "peer", req.NodeID.Display(), "netid", req.NetID)
		return
	}
	ch.buf.nodeIDHash = id
	ch.buf.displayID = req.NodeID.Display()

	n, err := srv.nodes.MoveInboundToActive(ch.id, req.NodeID, int(req.Port), string(req.Revision))
	if err != nil {
		srv.log.Debug("Inbound peer not promoted", "peer", ch.buf.displayID, "err", err)
		return
	}
	srv.log.Debug("Inbound peer active", "peer", n.DisplayID(), "addr", ch.conn.RemoteAddr(), "rev", n.BinaryVersion)
	srv.enqueue(&MsgOut{
		PeerID:    id,
		DisplayID: n.DisplayID(),
		Dest:      DestActive,
		Msg:       &ResHandshake{Success: true, BinaryVersion: srv.Revision},
	})
	srv.emit(PeerEventTypeAdd, n, "")
}

// handleResHandshake runs on the dialing side.
func (srv *Server) handleResHandshake(ch *channel, body []byte) {
	id := ch.buf.nodeIDHash
	if id == 0 {
		return
	}
	res, err := decodeResHandshake(body)
	if err != nil || !res.Success {
		srv.log.Debug("Handshake refused", "peer", ch.buf.displayID, "err", err)
		return
	}
	if srv.nodes.IsBanned(id) {
		return
	}
	if n := srv.nodes.OutboundNode(id); n == nil || n.ch != ch {
		return
	}
	n, err := srv.nodes.MoveOutboundToActive(id, res.BinaryVersion)
	if err != nil {
		srv.log.Debug("Outbound peer not promoted", "peer", ch.buf.displayID, "err", err)
		return
	}
	srv.log.Debug("Outbound peer active", "peer", n.DisplayID(), "addr", ch.conn.RemoteAddr(), "rev", n.BinaryVersion)
	srv.emit(PeerEventTypeAdd, n, "")
}

func (srv *Server) handleReqActiveNodes(ch *channel) {
	from := srv.activeNodeOf(ch)
	if from == nil {
		return
	}
	var nodes []*Node
	for _, n := range srv.nodes.ActiveNodes() {
		if n.IDHash == from.IDHash {
			continue
		}
		nodes = append(nodes, n)
		if len(nodes) == maxActiveNodesReply {
			break
		}
	}
	srv.enqueue(&MsgOut{PeerID: from.IDHash, DisplayID: from.DisplayID(), Dest: DestActive, Msg: &ResActiveNodes{Nodes: nodes}})
}

func (srv *Server) handleResActiveNodes(ch *channel, body []byte) {
	if srv.SyncSeedsOnly {
		return
	}
	from := srv.activeNodeOf(ch)
	if from == nil {
		return
	}
	srv.nodes.Touch(from.IDHash)
	res, err := decodeResActiveNodes(body)
	if err != nil {
		srv.log.Debug("Invalid active nodes response", "peer", from.DisplayID(), "err", err)
		return
	}
	for _, n := range res.Nodes {
		if srv.nodes.Stats().Temp >= srv.MaxTempNodes {
			break
		}
		if err := srv.validateNode(n, ch.ip); err != nil {
			srv.log.Trace("Skipped gossiped node", "node", n.DisplayID(), "err", err)
			continue
		}
		srv.nodes.AddTempNode(n)
	}
}

// validateNode checks a gossiped node before it becomes a dial candidate.
func (srv *Server) validateNode(n *Node, sender net.IP) error {
	switch {
	case n.IDHash == srv.selfHash:
		return errSelfConnect
	case srv.OutboundIP != nil && netutil.SameIP(n.IP, srv.OutboundIP) && n.Port == srv.listenPort:
		return errSelfConnect
	case srv.nodes.ActiveNode(n.IDHash) != nil:
		return errDuplicate
	case srv.nodes.OutboundNode(n.IDHash) != nil:
		return errDuplicate
	case n.Port <= 0 || n.Port > 65535:
		return errInvalidPort
	case srv.NetRestrict != nil && !srv.NetRestrict.Contains(n.IP):
		return errNotAllowed
	}
	if sender != nil {
		return netutil.CheckRelayIP(sender, n.IP)
	}
	return nil
}
