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
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// reqHandshakeMinLen is nodeID + netID + port.
const reqHandshakeMinLen = NodeIDLen + 4 + 4

// maxHandshakeLen is the largest REQ_HANDSHAKE body: the fixed part, a
// revision of up to 255 bytes and up to 255 versions.
const maxHandshakeLen = reqHandshakeMinLen + 1 + 255 + 1 + 2*255

// maxActiveNodesReply bounds the nodes listed in one RES_ACTIVE_NODES.
const maxActiveNodesReply = 40

// activeNodeLen is the encoded size of one entry in RES_ACTIVE_NODES.
const activeNodeLen = NodeIDLen + net.IPv6len + 4

var errMsgTooShort = errors.New("message body too short")

func netHeader(action uint8) Header {
	return Header{Ver: Ver0, Ctrl: CtrlNet, Action: action}
}

// ReqHandshake opens the handshake. The revision and version list are
// optional trailing fields.
type ReqHandshake struct {
	NodeID   NodeID
	NetID    uint32
	Port     uint32
	Revision []byte
	Versions []uint16
}

func (m *ReqHandshake) Header() Header { return netHeader(ActReqHandshake) }

func (m *ReqHandshake) Encode() []byte {
	b := make([]byte, reqHandshakeMinLen, reqHandshakeMinLen+2+len(m.Revision)+2*len(m.Versions))
	copy(b, m.NodeID[:])
	binary.BigEndian.PutUint32(b[NodeIDLen:], m.NetID)
	binary.BigEndian.PutUint32(b[NodeIDLen+4:], m.Port)
	if len(m.Revision) == 0 && len(m.Versions) == 0 {
		return b
	}
	rev := m.Revision
	if len(rev) > 255 {
		rev = rev[:255]
	}
	b = append(b, byte(len(rev)))
	b = append(b, rev...)
	vers := m.Versions
	if len(vers) > 255 {
		vers = vers[:255]
	}
	b = append(b, byte(len(vers)))
	for _, v := range vers {
		b = binary.BigEndian.AppendUint16(b, v)
	}
	return b
}

func decodeReqHandshake(b []byte) (*ReqHandshake, error) {
	if len(b) < reqHandshakeMinLen {
		return nil, fmt.Errorf("req handshake: %w (%d bytes)", errMsgTooShort, len(b))
	}
	m := new(ReqHandshake)
	copy(m.NodeID[:], b)
	m.NetID = binary.BigEndian.Uint32(b[NodeIDLen:])
	m.Port = binary.BigEndian.Uint32(b[NodeIDLen+4:])
	rest := b[reqHandshakeMinLen:]
	if len(rest) == 0 {
		return m, nil
	}
	revLen := int(rest[0])
	if len(rest) < 1+revLen+1 {
		return nil, fmt.Errorf("req handshake revision: %w", errMsgTooShort)
	}
	m.Revision = append([]byte(nil), rest[1:1+revLen]...)
	rest = rest[1+revLen:]
	count := int(rest[0])
	rest = rest[1:]
	if len(rest) < 2*count {
		return nil, fmt.Errorf("req handshake versions: %w", errMsgTooShort)
	}
	for i := 0; i < count; i++ {
		m.Versions = append(m.Versions, binary.BigEndian.Uint16(rest[2*i:]))
	}
	return m, nil
}

// ResHandshake answers a handshake request.
type ResHandshake struct {
	Success       bool
	BinaryVersion string
}

func (m *ResHandshake) Header() Header { return netHeader(ActResHandshake) }

func (m *ResHandshake) Encode() []byte {
	var ok byte
	if m.Success {
		ok = 1
	}
	if m.BinaryVersion == "" {
		return []byte{ok}
	}
	rev := m.BinaryVersion
	if len(rev) > 255 {
		rev = rev[:255]
	}
	b := make([]byte, 0, 2+len(rev))
	b = append(b, ok, byte(len(rev)))
	return append(b, rev...)
}

func decodeResHandshake(b []byte) (*ResHandshake, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("res handshake: %w", errMsgTooShort)
	}
	m := &ResHandshake{Success: b[0] == 1}
	if len(b) > 1 {
		n := int(b[1])
		if len(b) < 2+n {
			return nil, fmt.Errorf("res handshake revision: %w", errMsgTooShort)
		}
		m.BinaryVersion = string(b[2 : 2+n])
	}
	return m, nil
}

// ReqActiveNodes asks a peer for its active nodes.
type ReqActiveNodes struct{}

func (*ReqActiveNodes) Header() Header { return netHeader(ActReqActiveNodes) }
func (*ReqActiveNodes) Encode() []byte { return nil }

// ResActiveNodes lists active nodes of the sender.
type ResActiveNodes struct {
	Nodes []*Node
}

func (m *ResActiveNodes) Header() Header { return netHeader(ActResActiveNodes) }

func (m *ResActiveNodes) Encode() []byte {
	nodes := m.Nodes
	if len(nodes) > maxActiveNodesReply {
		nodes = nodes[:maxActiveNodesReply]
	}
	b := make([]byte, 1, 1+len(nodes)*activeNodeLen)
	b[0] = byte(len(nodes))
	for _, n := range nodes {
		b = append(b, n.ID[:]...)
		ip := n.IP.To16()
		if ip == nil {
			ip = net.IPv6zero
		}
		b = append(b, ip...)
		b = binary.BigEndian.AppendUint32(b, uint32(n.Port))
	}
	return b
}

func decodeResActiveNodes(b []byte) (*ResActiveNodes, error) {
	if len(b) < 1 {
		return nil, fmt.Errorf("res active nodes: %w", errMsgTooShort)
	}
	count := int(b[0])
	if count > maxActiveNodesReply {
		return nil, fmt.Errorf("res active nodes: %d entries exceeds limit", count)
	}
	if len(b) < 1+count*activeNodeLen {
		return nil, fmt.Errorf("res active nodes: %w", errMsgTooShort)
	}
	m := &ResActiveNodes{Nodes: make([]*Node, 0, count)}
	for i := 0; i < count; i++ {
		e := b[1+i*activeNodeLen:]
		var id NodeID
		copy(id[:], e)
		ip := make(net.IP, net.IPv6len)
		copy(ip, e[NodeIDLen:])
		port := binary.BigEndian.Uint32(e[NodeIDLen+net.IPv6len:])
		m.Nodes = append(m.Nodes, NewNode(id, ip, int(port)))
	}
	return m, nil
}

// Ping asks an active peer for a Pong.
type Ping struct{}

func (*Ping) Header() Header { return netHeader(ActPing) }
func (*Ping) Encode() []byte { return nil }

// Pong answers a Ping.
type Pong struct{}

func (*Pong) Header() Header { return netHeader(ActPong) }
func (*Pong) Encode() []byte { return nil }

// Disconnect announces that the sender is closing the connection.
type Disconnect struct{}

func (*Disconnect) Header() Header { return netHeader(ActDisconnect) }
func (*Disconnect) Encode() []byte { return nil }
