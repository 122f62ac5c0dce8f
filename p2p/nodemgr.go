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
	"errors"
	"math/rand"
	"net"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/aionnetwork/aion-sub011/common/mclock"
)

const (
	inboundTimeout   = 10 * time.Second
	outboundTimeout  = 20 * time.Second
	minActiveTimeout = 10 * time.Second
	maxActiveTimeout = 60 * time.Second
	activeIdleFactor = 5

	maxBannedNodes = 1024
)

var (
	errActiveFull   = errors.New("active table full")
	errSelfConnect  = errors.New("self connection")
	errDuplicate    = errors.New("already active")
	errUnknownNode  = errors.New("unknown node")
	errChannelGone  = errors.New("channel closed")
	errBannedNode   = errors.New("node banned")
	errTempPoolFull = errors.New("temp pool full")
	errInvalidPort  = errors.New("invalid port")
	errNotAllowed   = errors.New("not contained in netrestrict list")

	errNotHandshaked     = errors.New("frame before handshake")
	errHandshakeTooLarge = errors.New("oversized handshake frame")
)

// NodeRegistry tracks the lifecycle of peers: candidates in the temp pool,
// connections awaiting the handshake and active peers. Implementations must
// be safe for concurrent use.
type NodeRegistry interface {
	AddTempNode(n *Node) error
	TakeTempNode() *Node
	TempNodeCount() int

	AddSeedIP(ip net.IP)
	IsSeedIP(ip net.IP) bool

	AddInboundNode(n *Node)
	InboundNode(chanID uint64) *Node
	AddOutboundNode(n *Node)
	OutboundNode(id PeerID) *Node

	// MoveInboundToActive completes the handshake of an inbound connection.
	MoveInboundToActive(chanID uint64, id NodeID, port int, binaryVersion string) (*Node, error)
	// MoveOutboundToActive completes the handshake of a dialed node.
	MoveOutboundToActive(id PeerID, binaryVersion string) (*Node, error)

	ActiveNode(id PeerID) *Node
	ActiveNodes() []*Node
	RandomActive() *Node
	Touch(id PeerID)
	DropActive(id PeerID) *Node
	DropChannel(chanID uint64) []*Node

	Ban(id PeerID)
	IsBanned(id PeerID) bool

	// TimeoutCheck evicts expired entries and returns them.
	TimeoutCheck(now mclock.AbsTime) []*Node
	Stats() RegistryStats
	Snapshot() []NodeInfo
	Close()
}

// RegistryStats counts the entries per table.
type RegistryStats struct {
	Temp, Inbound, Outbound, Active int
}

// NodeMgr is the default NodeRegistry.
type NodeMgr struct {
	clock     mclock.Clock
	self      PeerID
	maxActive int
	maxTemp   int
	banFor    time.Duration

	mu       sync.Mutex
	temp     *lru.Cache[PeerID, *Node]
	seeds    mapset.Set[string]
	inbound  map[uint64]*Node
	outbound map[PeerID]*Node
	active   map[PeerID]*Node

	banMu  sync.Mutex // taken after mu
	banned *lru.Cache[PeerID, mclock.AbsTime] // ban expiry per peer
}

// NewNodeMgr creates a registry for a node whose own peer id is self.
func NewNodeMgr(self PeerID, maxActive, maxTemp int, banFor time.Duration, clock mclock.Clock) *NodeMgr {
	if clock == nil {
		clock = mclock.System{}
	}
	if maxTemp < 1 {
		maxTemp = 1
	}
	temp, _ := lru.New[PeerID, *Node](maxTemp)
	banned, _ := lru.New[PeerID, mclock.AbsTime](maxBannedNodes)
	return &NodeMgr{
		clock:     clock,
		self:      self,
		maxActive: maxActive,
		maxTemp:   maxTemp,
		banFor:    banFor,
		temp:      temp,
		seeds:     mapset.NewSet[string](),
		inbound:   make(map[uint64]*Node),
		outbound:  make(map[PeerID]*Node),
		active:    make(map[PeerID]*Node),
		banned:    banned,
	}
}

// AddTempNode queues a dial candidate. Known candidates are ignored and the
// pool never grows beyond its capacity.
func (m *NodeMgr) AddTempNode(n *Node) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.temp.Contains(n.IDHash) {
		return nil
	}
	if m.temp.Len() >= m.maxTemp {
		return errTempPoolFull
	}
	m.temp.Add(n.IDHash, n)
	return nil
}

// TakeTempNode removes and returns the oldest candidate.
func (m *NodeMgr) TakeTempNode() *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, n, ok := m.temp.RemoveOldest()
	if !ok {
		return nil
	}
	return n
}

func (m *NodeMgr) TempNodeCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.temp.Len()
}

func (m *NodeMgr) AddSeedIP(ip net.IP) {
	m.seeds.Add(ip.String())
}

func (m *NodeMgr) IsSeedIP(ip net.IP) bool {
	return ip != nil && m.seeds.Contains(ip.String())
}

func (m *NodeMgr) AddInboundNode(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.inbound = true
	n.lastSeen = m.clock.Now()
	m.inbound[n.ch.id] = n
}

func (m *NodeMgr) InboundNode(chanID uint64) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inbound[chanID]
}

func (m *NodeMgr) AddOutboundNode(n *Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.lastSeen = m.clock.Now()
	m.outbound[n.IDHash] = n
}

func (m *NodeMgr) OutboundNode(id PeerID) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outbound[id]
}

func (m *NodeMgr) MoveInboundToActive(chanID uint64, id NodeID, port int, binaryVersion string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.inbound[chanID]
	if !ok {
		return nil, errUnknownNode
	}
	delete(m.inbound, chanID)
	n.ID, n.IDHash, n.Port, n.BinaryVersion = id, id.Hash(), port, binaryVersion
	if err := m.promote(n); err != nil {
		n.ch.close()
		return nil, err
	}
	return n, nil
}

func (m *NodeMgr) MoveOutboundToActive(id PeerID, binaryVersion string) (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.outbound[id]
	if !ok {
		return nil, errUnknownNode
	}
	delete(m.outbound, id)
	n.BinaryVersion = binaryVersion
	if err := m.promote(n); err != nil {
		n.ch.close()
		return nil, err
	}
	return n, nil
}

// promote adds n to the active table. The caller holds m.mu.
func (m *NodeMgr) promote(n *Node) error {
	switch {
	case n.ch == nil || n.ch.buf.isClosed():
		return errChannelGone
	case n.IDHash == m.self:
		return errSelfConnect
	case m.IsBanned(n.IDHash):
		return errBannedNode
	case len(m.active) >= m.maxActive:
		return errActiveFull
	}
	if _, ok := m.active[n.IDHash]; ok {
		return errDuplicate
	}
	n.lastSeen = m.clock.Now()
	m.active[n.IDHash] = n
	return nil
}

func (m *NodeMgr) ActiveNode(id PeerID) *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[id]
}

func (m *NodeMgr) ActiveNodes() []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	nodes := make([]*Node, 0, len(m.active))
	for _, n := range m.active {
		nodes = append(nodes, n)
	}
	return nodes
}

func (m *NodeMgr) RandomActive() *Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) == 0 {
		return nil
	}
	i := rand.Intn(len(m.active))
	for _, n := range m.active {
		if i == 0 {
			return n
		}
		i--
	}
	return nil
}

// Touch refreshes the last seen time of an active node.
func (m *NodeMgr) Touch(id PeerID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n, ok := m.active[id]; ok {
		n.lastSeen = m.clock.Now()
	}
}

// DropActive removes an active node and closes its connection.
func (m *NodeMgr) DropActive(id PeerID) *Node {
	m.mu.Lock()
	n, ok := m.active[id]
	delete(m.active, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	n.ch.close()
	return n
}

// DropChannel removes every entry bound to the given connection.
func (m *NodeMgr) DropChannel(chanID uint64) []*Node {
	m.mu.Lock()
	defer m.mu.Unlock()
	var dropped []*Node
	if n, ok := m.inbound[chanID]; ok {
		delete(m.inbound, chanID)
		dropped = append(dropped, n)
	}
	for id, n := range m.outbound {
		if n.ch != nil && n.ch.id == chanID {
			delete(m.outbound, id)
			dropped = append(dropped, n)
		}
	}
	for id, n := range m.active {
		if n.ch != nil && n.ch.id == chanID {
			delete(m.active, id)
			dropped = append(dropped, n)
		}
	}
	return dropped
}

// Ban refuses the peer for the configured ban duration.
func (m *NodeMgr) Ban(id PeerID) {
	m.banMu.Lock()
	defer m.banMu.Unlock()
	m.banned.Add(id, m.clock.Now().Add(m.banFor))
}

// IsBanned reports whether id is banned. Expired bans are removed.
func (m *NodeMgr) IsBanned(id PeerID) bool {
	m.banMu.Lock()
	defer m.banMu.Unlock()
	until, ok := m.banned.Peek(id)
	if !ok {
		return false
	}
	if m.clock.Now() >= until {
		m.banned.Remove(id)
		return false
	}
	return true
}

// activeTimeout derives the idle limit of active nodes from their average
// idle time.
func (m *NodeMgr) activeTimeout(now mclock.AbsTime) time.Duration {
	if len(m.active) == 0 {
		return minActiveTimeout
	}
	var total time.Duration
	for _, n := range m.active {
		total += now.Sub(n.lastSeen)
	}
	timeout := total / time.Duration(len(m.active)) * activeIdleFactor
	if timeout < minActiveTimeout {
		return minActiveTimeout
	}
	if timeout > maxActiveTimeout {
		return maxActiveTimeout
	}
	return timeout
}

func (m *NodeMgr) TimeoutCheck(now mclock.AbsTime) []*Node {
	m.mu.Lock()
	var evicted []*Node
	for id, n := range m.inbound {
		if now.Sub(n.lastSeen) > inboundTimeout || n.ch.buf.isClosed() {
			delete(m.inbound, id)
			evicted = append(evicted, n)
		}
	}
	for id, n := range m.outbound {
		if now.Sub(n.lastSeen) > outboundTimeout || n.ch.buf.isClosed() {
			delete(m.outbound, id)
			evicted = append(evicted, n)
		}
	}
	timeout := m.activeTimeout(now)
	for id, n := range m.active {
		if now.Sub(n.lastSeen) > timeout || n.ch.buf.isClosed() {
			delete(m.active, id)
			evicted = append(evicted, n)
		}
	}
	m.mu.Unlock()

	for _, n := range evicted {
		n.ch.close()
	}
	return evicted
}

func (m *NodeMgr) Stats() RegistryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return RegistryStats{
		Temp:     m.temp.Len(),
		Inbound:  len(m.inbound),
		Outbound: len(m.outbound),
		Active:   len(m.active),
	}
}

// Snapshot describes the active nodes.
func (m *NodeMgr) Snapshot() []NodeInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := make([]NodeInfo, 0, len(m.active))
	for _, n := range m.active {
		infos = append(infos, NodeInfo{
			ID:            n.ID,
			IDHash:        n.IDHash,
			DisplayID:     n.DisplayID(),
			IP:            n.IP,
			Port:          n.Port,
			BinaryVersion: n.BinaryVersion,
			Inbound:       n.inbound,
			FromBootList:  n.fromBootList,
			LastSeen:      n.lastSeen,
		})
	}
	return infos
}

// Close drops every connected node.
func (m *NodeMgr) Close() {
	m.mu.Lock()
	var all []*Node
	for _, n := range m.inbound {
		all = append(all, n)
	}
	for _, n := range m.outbound {
		all = append(all, n)
	}
	for _, n := range m.active {
		all = append(all, n)
	}
	m.inbound = make(map[uint64]*Node)
	m.outbound = make(map[PeerID]*Node)
	m.active = make(map[PeerID]*Node)
	m.mu.Unlock()

	for _, n := range all {
		n.ch.close()
	}
}
