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

// Package netutil contains extensions to the net package.
package netutil

import (
	"errors"
	"net"
	"net/netip"
	"strings"
)

var special4, special6 Netlist

func init() {
	// Lists from RFC 5735, RFC 5156,
	// https://www.iana.org/assignments/iana-ipv4-special-registry/
	special4.Add("0.0.0.0/8")          // "This" network.
	special4.Add("192.0.0.0/29")       // IPv4 Service Continuity
	special4.Add("192.0.2.0/24")       // TEST-NET-1
	special4.Add("192.88.99.0/24")     // 6to4 Relay Anycast
	special4.Add("198.18.0.0/15")      // Device Benchmark Testing
	special4.Add("198.51.100.0/24")    // TEST-NET-2
	special4.Add("203.0.113.0/24")     // TEST-NET-3
	special4.Add("255.255.255.255/32") // Limited Broadcast

	// http://www.iana.org/assignments/iana-ipv6-special-registry/
	special6.Add("100::/64")
	special6.Add("2001::/32")
	special6.Add("2001:db8::/32")
	special6.Add("2002::/16")
}

// Netlist is a list of IP networks.
type Netlist []netip.Prefix

// ParseNetlist reads a comma separated CIDR list as given on the command line.
// Blanks and empty entries are skipped.
func ParseNetlist(s string) (*Netlist, error) {
	ws := strings.NewReplacer(" ", "", "\n", "", "\t", "")
	masks := strings.Split(ws.Replace(s), ",")
	l := make(Netlist, 0)
	for _, mask := range masks {
		if mask == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(mask)
		if err != nil {
			return nil, err
		}
		l = append(l, prefix)
	}
	return &l, nil
}

// MarshalTOML implements toml.MarshalerRec.
func (l Netlist) MarshalTOML() (interface{}, error) {
	list := make([]string, 0, len(l))
	for _, n := range l {
		list = append(list, n.String())
	}
	return list, nil
}

// UnmarshalTOML implements toml.UnmarshalerRec.
func (l *Netlist) UnmarshalTOML(fn func(interface{}) error) error {
	var masks []string
	if err := fn(&masks); err != nil {
		return err
	}
	for _, mask := range masks {
		prefix, err := netip.ParsePrefix(mask)
		if err != nil {
			return err
		}
		*l = append(*l, prefix)
	}
	return nil
}

// Add appends cidr to the list. Invalid input panics, so Add is only used for
// compiled-in lists.
func (l *Netlist) Add(cidr string) {
	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		panic(err)
	}
	*l = append(*l, prefix)
}

// Contains reports whether ip falls into one of the networks. A nil list
// contains nothing.
func (l *Netlist) Contains(ip net.IP) bool {
	if l == nil {
		return false
	}
	addr := IPToAddr(ip)
	for _, n := range *l {
		if n.Contains(addr) {
			return true
		}
	}
	return false
}

// IPToAddr converts net.IP to netip.Addr. IPv4-mapped IPv6 addresses are
// unmapped. The zero Addr is returned for invalid input.
func IPToAddr(ip net.IP) netip.Addr {
	addr, ok := netip.AddrFromSlice(ip)
	if !ok {
		return netip.Addr{}
	}
	return addr.Unmap()
}

// IsLAN reports whether ip is loopback, private or link-local.
func IsLAN(ip net.IP) bool {
	return addrIsLAN(IPToAddr(ip))
}

func addrIsLAN(ip netip.Addr) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// IsSpecialNetwork reports whether ip is multicast or belongs to one of the
// reserved IANA ranges.
func IsSpecialNetwork(ip net.IP) bool {
	addr := IPToAddr(ip)
	if addr.IsMulticast() {
		return true
	}
	if addr.Is4() {
		return special4.Contains(ip)
	}
	return special6.Contains(ip)
}

var (
	errInvalid     = errors.New("invalid IP")
	errUnspecified = errors.New("zero address")
	errSpecial     = errors.New("special network")
	errLoopback    = errors.New("loopback address from non-loopback host")
	errLAN         = errors.New("LAN address from WAN host")
)

// CheckRelayIP validates an address learned from the peer at sender before
// it is dialed. Reserved ranges are refused outright. Loopback and LAN
// targets are only trusted when the sender itself is on loopback or LAN.
func CheckRelayIP(sender, addr net.IP) error {
	s, a := IPToAddr(sender), IPToAddr(addr)
	if !a.IsValid() {
		return errInvalid
	}
	if a.IsUnspecified() {
		return errUnspecified
	}
	if IsSpecialNetwork(addr) {
		return errSpecial
	}
	if a.IsLoopback() && !s.IsLoopback() {
		return errLoopback
	}
	if addrIsLAN(a) && !addrIsLAN(s) {
		return errLAN
	}
	return nil
}

// SameIP reports whether two addresses are equal, treating IPv4 and its
// IPv4-mapped IPv6 form as the same address.
func SameIP(a, b net.IP) bool {
	return IPToAddr(a) == IPToAddr(b) && IPToAddr(a).IsValid()
}
