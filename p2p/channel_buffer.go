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
	"sync"
	"sync/atomic"
	"time"

	"github.com/aionnetwork/aion-sub011/common/mclock"
	"github.com/aionnetwork/aion-sub011/log"
)

// routeWindow is the length of a rate limiting window.
const routeWindow = time.Second

type routeStatus struct {
	start mclock.AbsTime
	count int
}

// ChannelBuffer holds the reassembly and rate limiting state of one
// connection. Everything except writeLock and closed is owned by the
// multiplexer goroutine.
type ChannelBuffer struct {
	clock mclock.Clock
	log   log.Logger

	header *Header
	body   []byte
	remain []byte // bytes received but not yet consumed by a frame
	routes map[uint32]*routeStatus

	nodeIDHash PeerID
	displayID  string

	// admit, if set, vets every header before its body is buffered.
	admit func(Header) error

	writeLock sync.Mutex
	closed    atomic.Bool
}

func newChannelBuffer(clock mclock.Clock, logger log.Logger) *ChannelBuffer {
	return &ChannelBuffer{
		clock:  clock,
		log:    logger,
		routes: make(map[uint32]*routeStatus),
	}
}

// isHeaderPending reports whether the next bytes belong to a header.
func (b *ChannelBuffer) isHeaderPending() bool {
	return b.header == nil
}

// isBodyPending reports whether a header is parsed and its body is still missing.
func (b *ChannelBuffer) isBodyPending() bool {
	return b.header != nil && b.body == nil
}

// readHeader consumes one header from buf. It returns the number of bytes
// consumed, zero if buf is too short. A header that fails validation is
// consumed and dropped, leaving the header unset.
func (b *ChannelBuffer) readHeader(buf []byte) int {
	if len(buf) < HeaderLen {
		return 0
	}
	h, err := DecodeHeader(buf[:HeaderLen])
	if err != nil {
		b.log.Debug("Dropped invalid frame header", "peer", b.displayID, "err", err)
		malformedMeter.Mark(1)
		return HeaderLen
	}
	b.header = &h
	return HeaderLen
}

// readBody consumes the body announced by the current header. It reports
// false without consuming anything if buf does not hold the whole body.
func (b *ChannelBuffer) readBody(buf []byte) (int, bool) {
	n := int(b.header.Len)
	if len(buf) < n {
		return 0, false
	}
	b.body = make([]byte, n)
	copy(b.body, buf[:n])
	return n, true
}

// reset clears the current frame.
func (b *ChannelBuffer) reset() {
	b.header = nil
	b.body = nil
}

// feed appends data to the pending bytes and hands every completed frame to
// emit. The frame state is cleared before emit runs. A header refused by
// admit discards all pending bytes and is returned as an error.
func (b *ChannelBuffer) feed(data []byte, emit func(Header, []byte)) error {
	b.remain = append(b.remain, data...)
	buf := b.remain
	for {
		if b.isHeaderPending() {
			n := b.readHeader(buf)
			if n == 0 {
				break
			}
			buf = buf[n:]
			if b.header != nil && b.admit != nil {
				if err := b.admit(*b.header); err != nil {
					b.reset()
					b.remain = nil
					return err
				}
			}
			continue
		}
		n, ok := b.readBody(buf)
		if !ok {
			break
		}
		buf = buf[n:]
		h, body := *b.header, b.body
		b.reset()
		emit(h, body)
	}
	switch {
	case len(buf) == 0 && cap(b.remain) > readBufferSize:
		b.remain = nil
	case len(buf) == 0:
		b.remain = b.remain[:0]
	case len(buf) < len(b.remain):
		b.remain = append(make([]byte, 0, len(buf)), buf...)
	}
	return nil
}

// shouldRoute reports whether another frame on route fits into the current
// one second window, counting it if so.
func (b *ChannelBuffer) shouldRoute(route uint32, max int) bool {
	now := b.clock.Now()
	st, ok := b.routes[route]
	if !ok {
		st = &routeStatus{start: now}
		b.routes[route] = st
	}
	if now.Sub(st.start) > routeWindow {
		st.start = now
		st.count = 0
	}
	if st.count < max {
		st.count++
		return true
	}
	return false
}

// routeCount returns the number of frames counted in the current window.
func (b *ChannelBuffer) routeCount(route uint32) int {
	if st, ok := b.routes[route]; ok {
		return st.count
	}
	return 0
}

func (b *ChannelBuffer) markClosed() { b.closed.Store(true) }

func (b *ChannelBuffer) isClosed() bool { return b.closed.Load() }
