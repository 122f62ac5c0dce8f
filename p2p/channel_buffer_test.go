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
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/aionnetwork/aion-sub011/common/mclock"
	"github.com/aionnetwork/aion-sub011/log"
)

type emitted struct {
	h    Header
	body []byte
}

func collect(out *[]emitted) func(Header, []byte) {
	return func(h Header, body []byte) {
		*out = append(*out, emitted{h, body})
	}
}

// Frames must come out identical no matter how the stream is cut into reads.
func TestChannelBufferReassembly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var (
			stream []byte
			want   []emitted
		)
		nframes := rapid.IntRange(1, 6).Draw(t, "frames")
		for i := 0; i < nframes; i++ {
			body := rapid.SliceOfN(rapid.Byte(), 0, 300).Draw(t, "body")
			h := Header{
				Ver:    uint16(rapid.IntRange(0, 1).Draw(t, "ver")),
				Ctrl:   CtrlSync,
				Action: rapid.Uint8Range(0, MaxKernelAction).Draw(t, "action"),
				Len:    uint32(len(body)),
			}
			stream = append(stream, EncodeHeader(h)...)
			stream = append(stream, body...)
			want = append(want, emitted{h, body})
		}

		var got []emitted
		b := newChannelBuffer(new(mclock.Simulated), log.Root())
		for rest := stream; len(rest) > 0; {
			n := rapid.IntRange(1, len(rest)).Draw(t, "chunk")
			b.feed(rest[:n], collect(&got))
			rest = rest[n:]
		}

		if len(got) != len(want) {
			t.Fatalf("got %d frames, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].h != want[i].h {
				t.Fatalf("frame %d: header %v, want %v", i, got[i].h, want[i].h)
			}
			if !bytes.Equal(got[i].body, want[i].body) {
				t.Fatalf("frame %d: body mismatch", i)
			}
		}
		if len(b.remain) != 0 {
			t.Fatalf("%d bytes left after complete frames", len(b.remain))
		}
		if !b.isHeaderPending() {
			t.Fatal("frame state not reset")
		}
	})
}

func TestChannelBufferCarriesRemainder(t *testing.T) {
	b := newChannelBuffer(new(mclock.Simulated), log.Root())
	first := frame(&testMsg{action: 1, body: []byte("hello")})
	second := frame(&testMsg{action: 2, body: []byte("world")})

	var got []emitted
	b.feed(append(first, second[:5]...), collect(&got))
	require.Len(t, got, 1)
	assert.Equal(t, second[:5], b.remain)
	assert.True(t, b.isHeaderPending())

	b.feed(second[5:], collect(&got))
	require.Len(t, got, 2)
	assert.Equal(t, uint8(2), got[1].h.Action)
	assert.Equal(t, []byte("world"), got[1].body)
	assert.Empty(t, b.remain)
}

func TestChannelBufferEmptyBody(t *testing.T) {
	b := newChannelBuffer(new(mclock.Simulated), log.Root())
	var got []emitted
	b.feed(frame(&Ping{}), collect(&got))
	require.Len(t, got, 1)
	assert.Equal(t, uint8(ActPing), got[0].h.Action)
	assert.NotNil(t, got[0].body)
	assert.Len(t, got[0].body, 0)
}

func TestChannelBufferBodyPending(t *testing.T) {
	b := newChannelBuffer(new(mclock.Simulated), log.Root())
	f := frame(&testMsg{action: 3, body: make([]byte, 32)})

	var got []emitted
	b.feed(f[:HeaderLen+10], collect(&got))
	assert.Empty(t, got)
	assert.True(t, b.isBodyPending())
	assert.Len(t, b.remain, 10)

	b.feed(f[HeaderLen+10:], collect(&got))
	assert.Len(t, got, 1)
	assert.False(t, b.isBodyPending())
}

func TestChannelBufferDropsInvalidHeader(t *testing.T) {
	b := newChannelBuffer(new(mclock.Simulated), log.Root())
	bad := []byte{0, 0, 9, 0, 0, 0, 0, 0} // unknown control class
	good := frame(&testMsg{action: 4, body: []byte{1, 2, 3}})

	var got []emitted
	b.feed(append(bad, good...), collect(&got))
	require.Len(t, got, 1)
	assert.Equal(t, uint8(4), got[0].h.Action)
	assert.Equal(t, []byte{1, 2, 3}, got[0].body)
	assert.Empty(t, b.remain)
}

func TestChannelBufferAdmit(t *testing.T) {
	b := newChannelBuffer(new(mclock.Simulated), log.Root())
	errRefused := errors.New("refused")
	b.admit = func(h Header) error {
		if h.Ctrl != CtrlNet {
			return errRefused
		}
		return nil
	}
	kernel := frame(&testMsg{action: 1, body: []byte("payload")})

	var got []emitted
	err := b.feed(append(frame(&Ping{}), kernel...), collect(&got))
	require.ErrorIs(t, err, errRefused)
	require.Len(t, got, 1)
	assert.Equal(t, uint8(ActPing), got[0].h.Action)
	assert.Nil(t, b.remain)
	assert.True(t, b.isHeaderPending())
}

// A large frame does not pin its buffer once it has been consumed.
func TestChannelBufferReleasesLargeBuffer(t *testing.T) {
	b := newChannelBuffer(new(mclock.Simulated), log.Root())
	big := frame(&testMsg{action: 1, body: make([]byte, 4*readBufferSize)})

	var got []emitted
	require.NoError(t, b.feed(big[:readBufferSize], collect(&got)))
	require.NoError(t, b.feed(big[readBufferSize:], collect(&got)))
	require.Len(t, got, 1)
	assert.Nil(t, b.remain)

	require.NoError(t, b.feed(frame(&Ping{}), collect(&got)))
	require.Len(t, got, 2)
	assert.Empty(t, b.remain)
	assert.LessOrEqual(t, cap(b.remain), readBufferSize)
}

func TestShouldRouteWindow(t *testing.T) {
	clock := new(mclock.Simulated)
	b := newChannelBuffer(clock, log.Root())
	route := RouteOf(Ver0, CtrlSync, 6)
	other := RouteOf(Ver0, CtrlSync, 7)

	accepted := 0
	for i := 0; i < 1100; i++ {
		if i == 550 {
			clock.Run(900 * time.Millisecond)
		}
		if b.shouldRoute(route, 1000) {
			accepted++
		}
	}
	assert.Equal(t, 1000, accepted)
	assert.Equal(t, 1000, b.routeCount(route))

	// Routes are counted independently.
	assert.True(t, b.shouldRoute(other, 1000))
	assert.Equal(t, 1, b.routeCount(other))

	// A new window starts once the current one is older than a second.
	clock.Run(200 * time.Millisecond)
	assert.True(t, b.shouldRoute(route, 1000))
	assert.Equal(t, 1, b.routeCount(route))
}
