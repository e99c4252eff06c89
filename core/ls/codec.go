package ls

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lattice-net/routesim/core"
)

// ErrUnparseable is returned by Decode when content is not a well-formed LSP
// encoding. As with core/dv, callers must drop silently rather than
// propagate this (spec §4.3, §7).
var ErrUnparseable = errors.New("ls: unparseable content")

// lsp is the decoded form of a flooded link-state packet: an origin, its
// sequence number, and its direct links.
type lsp struct {
	origin core.Address
	seq    uint64
	links  map[core.Address]core.Cost
}

// Encode serializes an LSP triple (origin, seq, links) into the wire content
// of a Routing packet. links is written in address-sorted order so that
// re-flooding the same LSP byte-for-byte produces identical content,
// matching the dedupe cache's content-hash model (core/dedupe).
//
// Wire format: originLen(2) | origin | seq(8) | count(2) | [addrLen(2) |
// addr | cost(4)]*count, all little-endian.
func Encode(origin core.Address, seq uint64, links map[core.Address]core.Cost) []byte {
	addrs := core.SortedAddresses(links)

	size := 2 + len(origin) + 8 + 2
	for _, a := range addrs {
		size += 2 + len(a) + 4
	}

	buf := make([]byte, size)
	i := 0

	originBytes := []byte(origin)
	binary.LittleEndian.PutUint16(buf[i:i+2], uint16(len(originBytes)))
	i += 2
	copy(buf[i:i+len(originBytes)], originBytes)
	i += len(originBytes)

	binary.LittleEndian.PutUint64(buf[i:i+8], seq)
	i += 8

	binary.LittleEndian.PutUint16(buf[i:i+2], uint16(len(addrs)))
	i += 2

	for _, a := range addrs {
		raw := []byte(a)
		binary.LittleEndian.PutUint16(buf[i:i+2], uint16(len(raw)))
		i += 2
		copy(buf[i:i+len(raw)], raw)
		i += len(raw)
		binary.LittleEndian.PutUint32(buf[i:i+4], uint32(links[a]))
		i += 4
	}

	return buf
}

// Decode parses content produced by Encode back into an lsp.
func Decode(content []byte) (lsp, error) {
	if len(content) < 2 {
		return lsp{}, ErrUnparseable
	}
	i := 0

	originLen := int(binary.LittleEndian.Uint16(content[i : i+2]))
	i += 2
	if len(content) < i+originLen+8+2 {
		return lsp{}, fmt.Errorf("%w: truncated header", ErrUnparseable)
	}
	origin := core.Address(content[i : i+originLen])
	i += originLen

	seq := binary.LittleEndian.Uint64(content[i : i+8])
	i += 8

	count := int(binary.LittleEndian.Uint16(content[i : i+2]))
	i += 2

	links := make(map[core.Address]core.Cost, count)
	for n := 0; n < count; n++ {
		if len(content) < i+2 {
			return lsp{}, fmt.Errorf("%w: truncated link length", ErrUnparseable)
		}
		addrLen := int(binary.LittleEndian.Uint16(content[i : i+2]))
		i += 2

		if len(content) < i+addrLen+4 {
			return lsp{}, fmt.Errorf("%w: truncated link entry", ErrUnparseable)
		}
		addr := core.Address(content[i : i+addrLen])
		i += addrLen

		cost := core.Cost(binary.LittleEndian.Uint32(content[i : i+4]))
		i += 4

		links[addr] = cost
	}

	return lsp{origin: origin, seq: seq, links: links}, nil
}

func cloneLinks(links map[core.Address]core.Cost) map[core.Address]core.Cost {
	out := make(map[core.Address]core.Cost, len(links))
	for k, v := range links {
		out[k] = v
	}
	return out
}
