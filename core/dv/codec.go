package dv

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lattice-net/routesim/core"
)

// ErrUnparseable is returned by Decode when content is not a well-formed DV
// encoding. Callers processing an inbound Routing packet must drop it
// silently rather than propagate this error (spec §4.2, §7).
var ErrUnparseable = errors.New("dv: unparseable content")

// Encode serializes a distance vector into the wire content of a Routing
// packet. Entries are written in address-sorted order so that two routers
// serializing an identical vector produce byte-identical content. The
// receiving Router compares decoded vectors, not bytes, when deciding whether
// a neighbor's vector changed.
//
// Wire format: count(2) | [addrLen(2) | addr | cost(4)]*count, all
// little-endian.
func Encode(vector map[core.Address]core.Cost) []byte {
	addrs := core.SortedAddresses(vector)

	size := 2
	for _, a := range addrs {
		size += 2 + len(a) + 4
	}

	buf := make([]byte, size)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(addrs)))
	i := 2
	for _, a := range addrs {
		raw := []byte(a)
		binary.LittleEndian.PutUint16(buf[i:i+2], uint16(len(raw)))
		i += 2
		copy(buf[i:i+len(raw)], raw)
		i += len(raw)
		binary.LittleEndian.PutUint32(buf[i:i+4], uint32(vector[a]))
		i += 4
	}
	return buf
}

// Decode parses content produced by Encode back into a distance vector.
func Decode(content []byte) (map[core.Address]core.Cost, error) {
	if len(content) < 2 {
		return nil, ErrUnparseable
	}
	count := int(binary.LittleEndian.Uint16(content[0:2]))
	i := 2

	out := make(map[core.Address]core.Cost, count)
	for n := 0; n < count; n++ {
		if len(content) < i+2 {
			return nil, fmt.Errorf("%w: truncated address length", ErrUnparseable)
		}
		addrLen := int(binary.LittleEndian.Uint16(content[i : i+2]))
		i += 2

		if len(content) < i+addrLen+4 {
			return nil, fmt.Errorf("%w: truncated entry", ErrUnparseable)
		}
		addr := core.Address(content[i : i+addrLen])
		i += addrLen

		cost := core.Cost(binary.LittleEndian.Uint32(content[i : i+4]))
		i += 4

		out[addr] = cost
	}

	return out, nil
}
