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
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseNode(t *testing.T) {
	id := testNodeID(7)
	n, err := ParseNode("p2p://" + id.String() + "@10.1.2.3:30303")
	require.NoError(t, err)
	assert.Equal(t, id, n.ID)
	assert.Equal(t, id.Hash(), n.IDHash)
	assert.True(t, n.IP.Equal(net.ParseIP("10.1.2.3")))
	assert.Equal(t, 30303, n.Port)
	assert.Equal(t, "p2p://"+id.String()+"@10.1.2.3:30303", n.URL())

	n, err = ParseNode("p2p://" + id.String() + "@[2001:db8::1]:1")
	require.NoError(t, err)
	assert.Equal(t, 1, n.Port)
}

func TestParseNodeErrors(t *testing.T) {
	id := testNodeID(7).String()
	tests := []string{
		"enode://" + id + "@10.1.2.3:30303",
		"p2p://10.1.2.3:30303",
		"p2p://abcd@10.1.2.3:30303",
		"p2p://" + id + "@host.example:30303",
		"p2p://" + id + "@10.1.2.3",
		"p2p://" + id + "@10.1.2.3:70000",
	}
	for _, url := range tests {
		_, err := ParseNode(url)
		assert.Error(t, err, url)
	}
}

func TestNodeIDText(t *testing.T) {
	id := testNodeID(9)
	text, err := id.MarshalText()
	require.NoError(t, err)

	var dec NodeID
	require.NoError(t, dec.UnmarshalText(text))
	assert.Equal(t, id, dec)
	assert.Error(t, dec.UnmarshalText([]byte("zz")))
	assert.Equal(t, id.String()[:6], id.Display())
}

func TestNodeIDHashNonZero(t *testing.T) {
	seen := make(map[PeerID]bool)
	for i := 0; i < 256; i++ {
		h := testNodeID(byte(i)).Hash()
		assert.NotZero(t, h)
		seen[h] = true
	}
	assert.Len(t, seen, 256)
}
