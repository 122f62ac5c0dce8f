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
	"sort"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
)

// timeoutLoop evicts idle and broken peers.
func (srv *Server) timeoutLoop() {
	defer srv.loopWG.Done()
	ticker := time.NewTicker(srv.timeoutCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-srv.quit:
			return
		case <-ticker.C:
			srv.timeoutCheck()
		}
	}
}

func (srv *Server) timeoutCheck() {
	for _, n := range srv.nodes.TimeoutCheck(srv.clock.Now()) {
		srv.log.Debug("Peer timed out", "peer", n.DisplayID(), "addr", n.IP, "inbound", n.inbound)
		if n.IDHash != 0 {
			srv.emit(PeerEventTypeDrop, n, "timeout")
		}
	}
}

// statusLoop periodically logs the connection table.
func (srv *Server) statusLoop() {
	defer srv.loopWG.Done()
	ticker := time.NewTicker(srv.statusInterval)
	defer ticker.Stop()
	for {
		select {
		case <-srv.quit:
			return
		case <-ticker.C:
			srv.log.Info("P2P status\n" + srv.status())
		}
	}
}

// queueDepth returns the number of queued inbound and outbound messages.
func (srv *Server) queueDepth() (in, out int) {
	for _, lane := range srv.lanes {
		out += len(lane)
	}
	return len(srv.inboundq), out
}

// status renders the registry counters and the active peers as a table. It
// also refreshes the peer and queue gauges.
func (srv *Server) status() string {
	stats := srv.nodes.Stats()
	in, out := srv.queueDepth()

	activeGauge.Update(int64(stats.Active))
	inboundGauge.Update(int64(stats.Inbound))
	outboundGauge.Update(int64(stats.Outbound))
	tempGauge.Update(int64(stats.Temp))
	inQueueGauge.Update(int64(in))
	outQueueGauge.Update(int64(out))

	infos := srv.nodes.Snapshot()
	sort.Slice(infos, func(i, j int) bool { return infos[i].DisplayID < infos[j].DisplayID })

	var b strings.Builder
	fmt.Fprintf(&b, "self=%s temp=%d inbound=%d outbound=%d active=%d/%d queue(in=%d out=%d)\n",
		srv.NodeID.Display(), stats.Temp, stats.Inbound, stats.Outbound, stats.Active, srv.MaxActiveNodes, in, out)

	table := tablewriter.NewWriter(&b)
	table.SetHeader([]string{"Peer", "Address", "Conn", "Seed", "Rev", "Idle"})
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	now := srv.clock.Now()
	for _, info := range infos {
		conn := "outbound"
		if info.Inbound {
			conn = "inbound"
		}
		table.Append([]string{
			info.DisplayID,
			fmt.Sprintf("%v:%d", info.IP, info.Port),
			conn,
			fmt.Sprint(info.FromBootList),
			info.BinaryVersion,
			now.Sub(info.LastSeen).Truncate(time.Millisecond).String(),
		})
	}
	table.Render()
	return b.String()
}

// activeNodesLoop asks a random active peer for its peers, once per interval
// after an initial delay. Seed-only nodes never ask.
func (srv *Server) activeNodesLoop() {
	defer srv.loopWG.Done()
	if srv.SyncSeedsOnly {
		return
	}
	select {
	case <-srv.quit:
		return
	case <-time.After(srv.activeNodesDelay):
	}
	ticker := time.NewTicker(srv.activeNodesInterval)
	defer ticker.Stop()
	for {
		select {
		case <-srv.quit:
			return
		case <-ticker.C:
			srv.requestActiveNodes()
		}
	}
}

func (srv *Server) requestActiveNodes() {
	if n := srv.nodes.RandomActive(); n != nil {
		srv.enqueue(&MsgOut{PeerID: n.IDHash, DisplayID: n.DisplayID(), Dest: DestActive, Msg: &ReqActiveNodes{}})
	}
}
