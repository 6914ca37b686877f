package poeserial

import (
	"testing"
	"time"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	pkt := Encode("H1", "ARG", "VAL")
	s := NewStore()
	var got []Packet
	s.Process("p1", pkt, time.Now(), func(p Packet) { got = append(got, p) })
	if len(got) != 1 {
		t.Fatalf("got %d packets, want 1", len(got))
	}
	p := got[0]
	if p.Header != "H1" || p.Argument != "ARG" || p.Value != "VAL" {
		t.Fatalf("decoded %+v, want header=H1 argument=ARG value=VAL", p)
	}
	// crc_hex should match a fresh computation over the same fields.
	recomputed := Encode(p.Header, p.Argument, p.Value)
	reDecoded, ok := parsePacket(recomputed[:len(recomputed)])
	if !ok {
		t.Fatalf("recomputed packet failed to parse")
	}
	if reDecoded.CRCHex != p.CRCHex {
		t.Fatalf("CRCHex mismatch: %q vs %q", reDecoded.CRCHex, p.CRCHex)
	}
}

func TestProcessSplitAcrossTwoReads(t *testing.T) {
	pkt := Encode("H", "A", "V")
	split := len(pkt) / 2
	s := NewStore()
	var got []Packet
	now := time.Now()
	s.Process("p1", pkt[:split], now, func(p Packet) { got = append(got, p) })
	if len(got) != 0 {
		t.Fatalf("premature emission: %+v", got)
	}
	s.Process("p1", pkt[split:], now, func(p Packet) { got = append(got, p) })
	if len(got) != 1 || got[0].Header != "H" {
		t.Fatalf("got %+v, want one packet with header H", got)
	}
}

func TestProcessPortIsolation(t *testing.T) {
	pkt := Encode("H", "A", "V")
	split := len(pkt) / 2
	s := NewStore()
	var got []Packet
	now := time.Now()
	s.Process("p1", pkt[:split], now, func(p Packet) { got = append(got, p) })
	// Feeding a different port's data must not complete p1's tail.
	s.Process("p2", []byte{0xFF}, now, func(p Packet) { got = append(got, p) })
	if len(got) != 0 {
		t.Fatalf("p2 traffic leaked into p1's partial: %+v", got)
	}
	s.Process("p1", pkt[split:], now, func(p Packet) { got = append(got, p) })
	if len(got) != 1 {
		t.Fatalf("got %+v, want one packet", got)
	}
}

func TestProcessTailExpires(t *testing.T) {
	pkt := Encode("H", "A", "V")
	split := len(pkt) / 2
	s := NewStore()
	var got []Packet
	start := time.Now()
	s.Process("p1", pkt[:split], start, func(p Packet) { got = append(got, p) })
	later := start.Add(TailExpiry + time.Millisecond)
	s.Process("p1", pkt[split:], later, func(p Packet) { got = append(got, p) })
	if len(got) != 0 {
		t.Fatalf("expired tail should not complete: %+v", got)
	}
}

func TestParsePacketAcceptsVariableLengthCRCField(t *testing.T) {
	// Device-emitted packet with a single-byte crc_hex field, not the
	// fixed 2-byte width the host's own Encode happens to produce.
	raw := []byte("\x01H\x1FA\x02V\x03\x00\x1F42\x04")
	s := NewStore()
	var got []Packet
	s.Process("p1", raw, time.Now(), func(p Packet) { got = append(got, p) })
	if len(got) != 1 {
		t.Fatalf("got %d packets, want 1", len(got))
	}
	p := got[0]
	if p.Header != "H" || p.Argument != "A" || p.Value != "V" || p.CRCHex != "\x00" || p.FreeHeapSize != "42" {
		t.Fatalf("decoded %+v, want header=H argument=A value=V crc=0x00 free_heap=42", p)
	}
}

func TestProcessMultiplePacketsInOneRead(t *testing.T) {
	combined := append(Encode("H1", "A1", "V1"), Encode("H2", "A2", "V2")...)
	s := NewStore()
	var got []Packet
	s.Process("p1", combined, time.Now(), func(p Packet) { got = append(got, p) })
	if len(got) != 2 {
		t.Fatalf("got %d packets, want 2", len(got))
	}
	if got[0].Header != "H1" || got[1].Header != "H2" {
		t.Fatalf("packets out of order: %+v", got)
	}
}
