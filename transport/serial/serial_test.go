package serial

import (
	"sync"
	"testing"

	"github.com/lattice-net/routesim/core/codec"
	"github.com/lattice-net/routesim/core/packet"
)

func makeTestPacket() *packet.Packet {
	return packet.New(packet.Routing, "A", "B", []byte{0x01, 0x02, 0x03, 0x04})
}

// framePacket wraps a packet in an RS232 frame.
func framePacket(t *testing.T, pkt *packet.Packet) []byte {
	t.Helper()
	frame, err := codec.EncodeRS232Frame(pkt.WriteTo())
	if err != nil {
		t.Fatalf("failed to encode RS232 frame: %v", err)
	}
	return frame
}

func TestProcessFramesSingleFrame(t *testing.T) {
	pkt := makeTestPacket()
	frame := framePacket(t, pkt)

	var received []*packet.Packet
	var mu sync.Mutex

	tr := &Transport{}
	tr.packetHandler = func(p *packet.Packet) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p)
	}

	remaining := tr.processFrames(frame)
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 packet, got %d", len(received))
	}

	if received[0].Kind != pkt.Kind || received[0].Src != pkt.Src || received[0].Dst != pkt.Dst {
		t.Errorf("packet mismatch: got %+v, want %+v", received[0], pkt)
	}
}

func TestProcessFramesMultipleFrames(t *testing.T) {
	pkt1 := makeTestPacket()
	pkt2 := packet.New(packet.Data, "B", "A", []byte{0xAA, 0xBB, 0xCC, 0xDD})

	frame1 := framePacket(t, pkt1)
	frame2 := framePacket(t, pkt2)
	combined := append(frame1, frame2...)

	var received []*packet.Packet
	var mu sync.Mutex

	tr := &Transport{}
	tr.packetHandler = func(p *packet.Packet) {
		mu.Lock()
		defer mu.Unlock()
		received = append(received, p)
	}

	remaining := tr.processFrames(combined)
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 2 {
		t.Fatalf("expected 2 packets, got %d", len(received))
	}

	if received[0].Kind != pkt1.Kind {
		t.Errorf("first packet kind mismatch: got %v, want %v", received[0].Kind, pkt1.Kind)
	}
	if received[1].Kind != pkt2.Kind {
		t.Errorf("second packet kind mismatch: got %v, want %v", received[1].Kind, pkt2.Kind)
	}
}

func TestProcessFramesIncompleteFrame(t *testing.T) {
	pkt := makeTestPacket()
	frame := framePacket(t, pkt)

	// Truncate the frame to simulate incomplete data.
	partial := frame[:len(frame)-2]

	var received []*packet.Packet

	tr := &Transport{}
	tr.packetHandler = func(p *packet.Packet) {
		received = append(received, p)
	}

	remaining := tr.processFrames(partial)
	if len(received) != 0 {
		t.Errorf("expected 0 packets from incomplete frame, got %d", len(received))
	}
	if len(remaining) != len(partial) {
		t.Errorf("expected all bytes returned as remaining, got %d vs %d", len(remaining), len(partial))
	}
}

func TestProcessFramesIncrementalAssembly(t *testing.T) {
	pkt := makeTestPacket()
	frame := framePacket(t, pkt)

	var received []*packet.Packet

	tr := &Transport{}
	tr.packetHandler = func(p *packet.Packet) {
		received = append(received, p)
	}

	// Feed bytes one at a time, simulating slow serial arrival.
	var buf []byte
	for _, b := range frame {
		buf = append(buf, b)
		buf = tr.processFrames(buf)
	}

	if len(received) != 1 {
		t.Fatalf("expected 1 packet after incremental assembly, got %d", len(received))
	}
	if len(buf) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(buf))
	}
}

func TestProcessFramesGarbageBeforeFrame(t *testing.T) {
	pkt := makeTestPacket()
	frame := framePacket(t, pkt)

	garbage := []byte{0x00, 0x01, 0x02, 0xFF}
	data := append(garbage, frame...)

	var received []*packet.Packet

	tr := &Transport{}
	tr.packetHandler = func(p *packet.Packet) {
		received = append(received, p)
	}

	remaining := tr.processFrames(data)

	if len(received) != 1 {
		t.Fatalf("expected 1 packet after skipping garbage, got %d", len(received))
	}
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}
}

func TestProcessFramesNoHandler(t *testing.T) {
	pkt := makeTestPacket()
	frame := framePacket(t, pkt)

	tr := &Transport{}
	// No handler set — should not panic.

	remaining := tr.processFrames(frame)
	if len(remaining) != 0 {
		t.Errorf("expected no remaining bytes, got %d", len(remaining))
	}
}

func TestFindMagic(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want int
	}{
		{"magic at start", []byte{0xC0, 0x3E, 0x05}, 0},
		{"magic in middle", []byte{0x00, 0x01, 0xC0, 0x3E, 0x05}, 2},
		{"no magic", []byte{0x00, 0x01, 0x02, 0x03}, -1},
		{"partial magic at end", []byte{0x00, 0xC0}, -1},
		{"empty", []byte{}, -1},
		{"just magic", []byte{0xC0, 0x3E}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := findMagic(tt.data)
			if got != tt.want {
				t.Errorf("findMagic() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSendPacketNotConnected(t *testing.T) {
	tr := New(Config{Port: "/dev/null", BaudRate: 115200})

	pkt := makeTestPacket()
	err := tr.SendPacket(pkt)
	if err == nil {
		t.Fatal("expected error when not connected")
	}
}

func TestNewDefaults(t *testing.T) {
	tr := New(Config{Port: "/dev/ttyUSB0"})
	if tr.cfg.BaudRate != DefaultBaudRate {
		t.Errorf("expected default baud rate %d, got %d", DefaultBaudRate, tr.cfg.BaudRate)
	}
	if tr.log == nil {
		t.Error("expected logger to be set")
	}
}
