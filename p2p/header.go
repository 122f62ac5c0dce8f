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
)

// HeaderLen is the size of an encoded frame header.
const HeaderLen = 8

// MaxBodySize bounds the declared body length of a single frame.
const MaxBodySize = 64 << 20

// Protocol versions.
const (
	Ver0 uint16 = 0
	Ver1 uint16 = 1
)

// Control classes.
const (
	CtrlNet  uint8 = 0 // handshake and peer discovery, handled by the engine
	CtrlSync uint8 = 1 // application messages, delivered to registered handlers
)

// Actions of the CtrlNet class.
const (
	ActDisconnect uint8 = iota
	ActReqHandshake
	ActResHandshake
	ActPing
	ActPong
	ActReqActiveNodes
	ActResActiveNodes

	maxNetAction = ActResActiveNodes
)

// MaxKernelAction is the highest action accepted in the CtrlSync class.
const MaxKernelAction uint8 = 127

var (
	ErrShortHeader   = errors.New("short frame header")
	ErrInvalidCtrl   = errors.New("invalid control class")
	ErrInvalidAction = errors.New("invalid action")
	ErrBodyTooLarge  = errors.New("declared body length too large")
)

// Header is the fixed-size prefix of every frame on the wire:
//
//	[ver:2][ctrl:1][action:1][len:4]
//
// All integers are big endian.
type Header struct {
	Ver    uint16
	Ctrl   uint8
	Action uint8
	Len    uint32 // body length, set by the sender from the encoded body
}

// Route identifies the handlers a frame is delivered to.
func (h Header) Route() uint32 {
	return RouteOf(h.Ver, h.Ctrl, h.Action)
}

func (h Header) String() string {
	return fmt.Sprintf("v%d/c%d/a%d len=%d", h.Ver, h.Ctrl, h.Action, h.Len)
}

// RouteOf packs a version, control class and action into a route key.
func RouteOf(ver uint16, ctrl, action uint8) uint32 {
	return uint32(ver)<<16 | uint32(ctrl)<<8 | uint32(action)
}

// EncodeHeader serializes h. Len is written as given.
func EncodeHeader(h Header) []byte {
	b := make([]byte, HeaderLen)
	putHeader(b, h)
	return b
}

func putHeader(b []byte, h Header) {
	binary.BigEndian.PutUint16(b[0:2], h.Ver)
	b[2] = h.Ctrl
	b[3] = h.Action
	binary.BigEndian.PutUint32(b[4:8], h.Len)
}

// DecodeHeader parses and validates the first HeaderLen bytes of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderLen {
		return Header{}, ErrShortHeader
	}
	h := Header{
		Ver:    binary.BigEndian.Uint16(b[0:2]),
		Ctrl:   b[2],
		Action: b[3],
		Len:    binary.BigEndian.Uint32(b[4:8]),
	}
	switch h.Ctrl {
	case CtrlNet:
		if h.Action > maxNetAction {
			return h, fmt.Errorf("%w: net action %d", ErrInvalidAction, h.Action)
		}
	case CtrlSync:
		if h.Action > MaxKernelAction {
			return h, fmt.Errorf("%w: kernel action %d", ErrInvalidAction, h.Action)
		}
	default:
		return h, fmt.Errorf("%w: %d", ErrInvalidCtrl, h.Ctrl)
	}
	if h.Len > MaxBodySize {
		return h, fmt.Errorf("%w: %d", ErrBodyTooLarge, h.Len)
	}
	return h, nil
}

func knownVersion(v uint16) bool {
	return v == Ver0 || v == Ver1
}
