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

// receiveLoop drains the inbound queue.
func (srv *Server) receiveLoop() {
	defer srv.loopWG.Done()
	for {
		select {
		case <-srv.quit:
			return
		case msg := <-srv.inboundq:
			srv.dispatch(msg)
		}
	}
}

// dispatch delivers msg to every handler of its route.
func (srv *Server) dispatch(msg *MsgIn) {
	for _, h := range srv.handlers[msg.Route] {
		srv.deliver(h, msg)
	}
}

// deliver invokes one handler. A panicking handler does not affect the
// other handlers of the route.
func (srv *Server) deliver(h Handler, msg *MsgIn) {
	defer func() {
		if r := recover(); r != nil {
			srv.log.Error("Handler panicked", "route", msg.Route, "peer", msg.DisplayID, "err", r)
		}
	}()
	h.Receive(msg.PeerID, msg.DisplayID, msg.Body)
}
