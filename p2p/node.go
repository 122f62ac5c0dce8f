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
	"encoding/hex"
	"errors"
	"fmt"
	"hash/fnv"
	"net"
	"net/url"
	"strconv"

	"github.com/aionnetwork/aion-sub011/common/mclock"
)

// NodeIDLen is the size of a node identity.
const NodeIDLen = 32

// PeerID is the numeric identity hash used to address peers.
type PeerID uint32

// NodeID is the identity a node announces in its handshake.
type NodeID [NodeIDLen]byte

// Hash returns the peer id derived from the node identity. It is never zero,
// zero marks a connection whose identity is unknown.
func (id NodeID) Hash() PeerID {
	h := fnv.New32a()
	h.Write(id[:])
	if s := h.Sum32(); s != 0 {
		return PeerID(s)
	}
	return 1
}

// Display returns the short form of the id used in logs.
func (id NodeID) Display() string {
	return hex.EncodeToString(id[:3])
}

func (id NodeID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalText implements encoding.TextMarshaler.
func (id NodeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *NodeID) UnmarshalText(text []byte) error {
	parsed, err := ParseNodeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParseNodeID parses a hex encoded node id.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("invalid node id: %v", err)
	}
	if len(b) != NodeIDLen {
		return id, fmt.Errorf("invalid node id length %d, want %d", len(b), NodeIDLen)
	}
	copy(id[:], b)
	return id, nil
}

var errNodeURLScheme = errors.New("node URL must use the p2p:// scheme")

// Node is a peer known to the registry. Identity and address fields are fixed
// once the node enters the active table; the remaining fields are guarded by
// the registry.
type Node struct {
	ID            NodeID
	IDHash        PeerID
	IP            net.IP
	Port          int
	BinaryVersion string

	ch           *channel
	lastSeen     mclock.AbsTime
	fromBootList bool
	inbound      bool
}

// NewNode creates a node with a known identity.
func NewNode(id NodeID, ip net.IP, port int) *Node {
	return &Node{ID: id, IDHash: id.Hash(), IP: ip, Port: port}
}

// ParseNode parses a node URL of the form p2p://<hex id>@<ip>:<port>.
func ParseNode(rawurl string) (*Node, error) {
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "p2p" {
		return nil, errNodeURLScheme
	}
	if u.User == nil {
		return nil, errors.New("node URL does not contain a node id")
	}
	id, err := ParseNodeID(u.User.Username())
	if err != nil {
		return nil, err
	}
	ip := net.ParseIP(u.Hostname())
	if ip == nil {
		return nil, fmt.Errorf("invalid IP address %q", u.Hostname())
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil || port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %q", u.Port())
	}
	return NewNode(id, ip, port), nil
}

// URL returns the p2p:// form of the node.
func (n *Node) URL() string {
	return fmt.Sprintf("p2p://%s@%s", n.ID, net.JoinHostPort(n.IP.String(), strconv.Itoa(n.Port)))
}

// DisplayID returns the short id used in logs.
func (n *Node) DisplayID() string {
	return n.ID.Display()
}

func (n *Node) String() string {
	return n.URL()
}

// copyAddr returns a fresh node with the same identity and address.
func (n *Node) copyAddr() *Node {
	c := NewNode(n.ID, n.IP, n.Port)
	c.fromBootList = n.fromBootList
	return c
}

// NodeInfo is a snapshot of a registry entry.
type NodeInfo struct {
	ID            NodeID
	IDHash        PeerID
	DisplayID     string
	IP            net.IP
	Port          int
	BinaryVersion string
	Inbound       bool
	FromBootList  bool
	LastSeen      mclock.AbsTime
}
