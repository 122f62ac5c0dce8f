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
	"io"
	"net"
	"os"
	"sync"
	"syscall"
	"time"
)

const (
	readBufferSize    = 64 * 1024
	writeSlice        = 100 * time.Millisecond // deadline of a single write attempt
	writeSpinInterval = time.Millisecond       // pause after a write made no progress
)

var errWriteBudget = errors.New("write exceeded time budget")

// channel is a registered connection. The multiplexer owns its read side, the
// send workers share its write side through buf.writeLock.
type channel struct {
	id      uint64
	conn    net.Conn
	buf     *ChannelBuffer
	inbound bool
	ip      net.IP
	port    int

	closeOnce sync.Once
}

// readEvent carries the result of one socket read to the multiplexer.
type readEvent struct {
	ch   *channel
	data []byte
	err  error
}

// readLoop forwards socket reads to the multiplexer until the connection
// fails or the server quits.
func (c *channel) readLoop(readc chan<- readEvent, quit <-chan struct{}) {
	for {
		buf := make([]byte, readBufferSize)
		n, err := c.conn.Read(buf)
		if n > 0 {
			select {
			case readc <- readEvent{ch: c, data: buf[:n]}:
			case <-quit:
				return
			}
		}
		if err != nil {
			select {
			case readc <- readEvent{ch: c, err: err}:
			case <-quit:
			}
			return
		}
	}
}

// write sends frame under the write lock. Each attempt carries a short
// deadline so a stalled peer is abandoned once budget is spent.
func (c *channel) write(frame []byte, budget time.Duration) error {
	c.buf.writeLock.Lock()
	defer c.buf.writeLock.Unlock()

	if c.buf.isClosed() {
		return net.ErrClosed
	}
	giveUp := time.Now().Add(budget)
	for len(frame) > 0 {
		now := time.Now()
		if now.After(giveUp) {
			return errWriteBudget
		}
		slice := writeSlice
		if left := giveUp.Sub(now); left < slice {
			slice = left
		}
		if err := c.conn.SetWriteDeadline(now.Add(slice)); err != nil {
			return err
		}
		n, err := c.conn.Write(frame)
		frame = frame[n:]
		if err != nil {
			if !errors.Is(err, os.ErrDeadlineExceeded) {
				return err
			}
			if n == 0 {
				time.Sleep(writeSpinInterval)
			}
		}
	}
	return c.conn.SetWriteDeadline(time.Time{})
}

// close marks the buffer closed and closes the socket. It is safe to call
// from any goroutine, repeatedly.
func (c *channel) close() {
	c.closeOnce.Do(func() {
		c.buf.markClosed()
		c.conn.Close()
	})
}

// isBrokenConn reports whether err means the peer is gone rather than slow.
func isBrokenConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ECONNRESET)
}

// remoteAddr extracts the peer address of conn.
func remoteAddr(conn net.Conn) (net.IP, int) {
	switch addr := conn.RemoteAddr().(type) {
	case *net.TCPAddr:
		return addr.IP, addr.Port
	default:
		return nil, 0
	}
}
