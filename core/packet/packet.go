// Package packet defines the wire envelope shared by the distance-vector and
// link-state routers: a kind discriminator, an address pair, and an opaque
// content blob whose schema is owned by whichever protocol produced it.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/lattice-net/routesim/core"
)

// Kind discriminates the two packet variants carried on a link.
type Kind uint8

const (
	// Data carries a traceroute-style user payload, forwarded hop-by-hop
	// by consulting the forwarding table.
	Data Kind = iota
	// Routing carries a protocol-defined serialization in Content: a DV
	// vector or an LS LSP, depending on which router produced it.
	Routing
)

func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Routing:
		return "routing"
	default:
		return "unknown"
	}
}

// Wire format errors. None of these propagate out of a router's event
// handlers — callers parsing untrusted Content must drop on error.
var (
	ErrTooShort   = errors.New("packet: too short")
	ErrBadKind    = errors.New("packet: unrecognized kind")
	ErrBadAddrLen = errors.New("packet: address length exceeds frame")
)

// Packet is the envelope exchanged between routers over a port.
//
// For Data packets, Src/Dst name the traceroute's ultimate endpoints and
// Content is the opaque user payload. For Routing packets, Src is the
// immediate sender (not the LS originator), Dst is the intended neighbor,
// and Content holds a protocol-defined serialization (see core/dv and
// core/ls).
type Packet struct {
	Kind    Kind
	Src     core.Address
	Dst     core.Address
	Content []byte
}

// New builds a Packet, taking ownership of content (callers must not mutate
// it afterward — use Clone if the caller needs an independent copy first).
func New(kind Kind, src, dst core.Address, content []byte) *Packet {
	return &Packet{Kind: kind, Src: src, Dst: dst, Content: content}
}

// Clone returns a deep copy, safe to hand to a collaborator that owns the
// original's lifetime independently.
func (p *Packet) Clone() *Packet {
	c := &Packet{Kind: p.Kind, Src: p.Src, Dst: p.Dst}
	if len(p.Content) > 0 {
		c.Content = make([]byte, len(p.Content))
		copy(c.Content, p.Content)
	}
	return c
}

// WriteTo encodes the packet to raw bytes:
//
//	kind(1) | srcLen(2) | src | dstLen(2) | dst | content
func (p *Packet) WriteTo() []byte {
	src := []byte(p.Src)
	dst := []byte(p.Dst)

	size := 1 + 2 + len(src) + 2 + len(dst) + len(p.Content)
	buf := make([]byte, size)

	i := 0
	buf[i] = uint8(p.Kind)
	i++

	binary.LittleEndian.PutUint16(buf[i:i+2], uint16(len(src)))
	i += 2
	copy(buf[i:i+len(src)], src)
	i += len(src)

	binary.LittleEndian.PutUint16(buf[i:i+2], uint16(len(dst)))
	i += 2
	copy(buf[i:i+len(dst)], dst)
	i += len(dst)

	copy(buf[i:], p.Content)

	return buf
}

// ReadFrom decodes a packet from raw bytes produced by WriteTo.
func (p *Packet) ReadFrom(data []byte) error {
	if len(data) < 1+2+2 {
		return ErrTooShort
	}

	i := 0
	kind := Kind(data[i])
	if kind != Data && kind != Routing {
		return fmt.Errorf("%w: %d", ErrBadKind, kind)
	}
	i++

	srcLen := int(binary.LittleEndian.Uint16(data[i : i+2]))
	i += 2
	if len(data) < i+srcLen+2 {
		return ErrBadAddrLen
	}
	src := core.Address(data[i : i+srcLen])
	i += srcLen

	dstLen := int(binary.LittleEndian.Uint16(data[i : i+2]))
	i += 2
	if len(data) < i+dstLen {
		return ErrBadAddrLen
	}
	dst := core.Address(data[i : i+dstLen])
	i += dstLen

	content := make([]byte, len(data)-i)
	copy(content, data[i:])

	p.Kind = kind
	p.Src = src
	p.Dst = dst
	p.Content = content
	return nil
}
