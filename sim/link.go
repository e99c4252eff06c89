// Package sim provides an in-memory multi-node harness for exercising
// core/dv and core/ls routers without a real broker or serial port: a
// topology of device/router.Node instances connected by in-process
// transport.Transport implementations, with an explicit tick driver.
//
// Grounded in the pack's own simulator-driver shape (other_examples:
// kprusa-olsrsim's per-node goroutine reading an inbound channel; the
// anaximander driver's "step every node forward" loop), adapted to this
// module's transport.Transport interface instead of a bespoke message type.
package sim

import (
	"context"
	"log/slog"
	"sync"

	"github.com/lattice-net/routesim/core/packet"
	"github.com/lattice-net/routesim/transport"
)

// linkBufferSize bounds how many in-flight packets a link can hold before
// SendPacket starts dropping, mirroring the "best-effort fire-and-forget"
// contract in spec.md §6 (send never blocks, never reports failure upward).
const linkBufferSize = 64

// halfLink is one direction of an in-memory point-to-point link: an
// in-process transport.Transport that delivers whatever is written to out
// to the peer halfLink's in channel.
type halfLink struct {
	log *slog.Logger

	mu            sync.RWMutex
	packetHandler transport.PacketHandler
	stateHandler  transport.StateHandler
	connected     bool

	out chan<- *packet.Packet
	in  <-chan *packet.Packet

	cancel context.CancelFunc
}

// Compile-time interface check.
var _ transport.Transport = (*halfLink)(nil)

// NewLink creates a connected pair of in-memory transports: data sent on a
// is received by b, and vice versa.
func NewLink(name string, logger *slog.Logger) (a, b transport.Transport) {
	if logger == nil {
		logger = slog.Default()
	}
	abCh := make(chan *packet.Packet, linkBufferSize)
	baCh := make(chan *packet.Packet, linkBufferSize)

	ha := &halfLink{log: logger.WithGroup("sim").With("link", name, "side", "a"), out: abCh, in: baCh}
	hb := &halfLink{log: logger.WithGroup("sim").With("link", name, "side", "b"), out: baCh, in: abCh}
	return ha, hb
}

// Start begins the delivery loop and marks the link connected.
func (h *halfLink) Start(ctx context.Context) error {
	ctx, h.cancel = context.WithCancel(ctx)

	h.mu.Lock()
	h.connected = true
	handler := h.stateHandler
	h.mu.Unlock()

	if handler != nil {
		handler(h, transport.EventConnected)
	}

	go h.deliverLoop(ctx)
	return nil
}

func (h *halfLink) deliverLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-h.in:
			h.mu.RLock()
			handler := h.packetHandler
			h.mu.RUnlock()
			if handler != nil {
				handler(pkt)
			}
		}
	}
}

// Stop marks the link disconnected and ends the delivery loop.
func (h *halfLink) Stop() error {
	h.mu.Lock()
	h.connected = false
	handler := h.stateHandler
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if handler != nil {
		handler(h, transport.EventDisconnected)
	}
	return nil
}

// IsConnected reports whether Start has been called without a matching Stop.
func (h *halfLink) IsConnected() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connected
}

// SetPacketHandler sets the callback invoked for every packet delivered
// from the peer side of the link.
func (h *halfLink) SetPacketHandler(fn transport.PacketHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packetHandler = fn
}

// SetStateHandler sets the callback invoked on connect/disconnect.
func (h *halfLink) SetStateHandler(fn transport.StateHandler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stateHandler = fn
}

// SendPacket hands pkt to the peer side. A full buffer drops the packet
// silently, matching the "errors swallowed by the environment" contract.
func (h *halfLink) SendPacket(pkt *packet.Packet) error {
	if !h.IsConnected() {
		return errNotConnected
	}
	select {
	case h.out <- pkt.Clone():
		return nil
	default:
		h.log.Debug("link buffer full, dropping packet")
		return nil
	}
}

var errNotConnected = &linkError{"sim: link not connected"}

type linkError struct{ msg string }

func (e *linkError) Error() string { return e.msg }
