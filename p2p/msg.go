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
	"hash/fnv"

	"github.com/aionnetwork/aion-sub011/common/mclock"
)

// Msg is an outbound message. Header reports the frame header without the
// body length, which is filled in from the encoded body when the frame is
// written.
type Msg interface {
	Header() Header
	Encode() []byte
}

// Dest selects the registry table used to resolve the receiver of a MsgOut.
type Dest uint8

const (
	// DestInbound resolves PeerID as the connection id of an inbound
	// connection that has not completed the handshake.
	DestInbound Dest = iota
	// DestOutbound resolves a dialed node awaiting the handshake response.
	DestOutbound
	// DestActive resolves a node that completed the handshake.
	DestActive
)

func (d Dest) String() string {
	switch d {
	case DestInbound:
		return "inbound"
	case DestOutbound:
		return "outbound"
	case DestActive:
		return "active"
	default:
		return "unknown"
	}
}

// MsgIn is a completed application frame waiting for dispatch.
type MsgIn struct {
	PeerID    PeerID
	DisplayID string
	Route     uint32
	Body      []byte
}

// MsgOut is an outbound message envelope. It is consumed exactly once by the
// send worker owning its lane.
type MsgOut struct {
	PeerID    PeerID
	DisplayID string
	Dest      Dest
	Msg       Msg
	Enqueued  mclock.AbsTime
	Lane      int
}

// laneFor partitions peers over the send lanes so all messages for one peer
// are written by the same worker.
func laneFor(id PeerID, lanes int) int {
	if lanes <= 1 {
		return 0
	}
	h := fnv.New32a()
	h.Write([]byte{byte(id >> 24), byte(id >> 16), byte(id >> 8), byte(id)})
	return int(h.Sum32() % uint32(lanes))
}
