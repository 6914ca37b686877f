package framecodec

import (
	"bytes"
	"testing"
)

func TestScanClassicStandardFrame(t *testing.T) {
	frames, tail := Scan([]byte("t1A33ABCDEF\r"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	if len(tail) != 0 {
		t.Fatalf("tail = %q, want empty", tail)
	}
	fr := frames[0]
	if fr.IsExtended || fr.IsRemote || fr.IsFD {
		t.Fatalf("unexpected flags: %+v", fr)
	}
	if fr.ID != 0x1A3 {
		t.Fatalf("ID = %#x, want 0x1A3", fr.ID)
	}
	if !bytes.Equal(fr.Data, []byte{0xAB, 0xCD, 0xEF}) {
		t.Fatalf("Data = % X, want AB CD EF", fr.Data)
	}
}

func TestScanExtendedRemoteFrame(t *testing.T) {
	frames, _ := Scan([]byte("R000000010\r"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	fr := frames[0]
	if !fr.IsExtended || !fr.IsRemote {
		t.Fatalf("expected extended remote frame, got %+v", fr)
	}
	if len(fr.Data) != 0 {
		t.Fatalf("remote frame carried data: %v", fr.Data)
	}
}

func TestScanFDFrameTrimsTrailingZeroPadding(t *testing.T) {
	// DLC nibble 9 -> 12 padded bytes; payload is 3 meaningful bytes
	// right-padded (per Encode) or simply zero-tailed here to exercise trim.
	raw := "B00000001" + "9" + "AABBCC" + "000000000000000000" + "\r"
	frames, _ := Scan([]byte(raw))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	fr := frames[0]
	if !fr.IsFD {
		t.Fatalf("expected FD frame")
	}
	if !bytes.Equal(fr.Data, []byte{0xAA, 0xBB, 0xCC}) {
		t.Fatalf("Data = % X, want AA BB CC", fr.Data)
	}
}

func TestScanTailPassesThroughUnmatchedBytes(t *testing.T) {
	frames, tail := Scan([]byte("garbage-before t0020000\rgarbage-after"))
	if len(frames) != 1 {
		t.Fatalf("got %d frames, want 1", len(frames))
	}
	want := "garbage-before garbage-after"
	if string(tail) != want {
		t.Fatalf("tail = %q, want %q", tail, want)
	}
}

func TestScanIncompleteFrameHeldForNextCall(t *testing.T) {
	// Truncated mid-frame: no CR yet, should report as tail (incomplete),
	// not as a spurious non-match.
	frames, tail := Scan([]byte("t123"))
	if len(frames) != 0 {
		t.Fatalf("got %d frames, want 0 for incomplete data", len(frames))
	}
	if string(tail) != "t123" {
		t.Fatalf("tail = %q, want %q", tail, "t123")
	}
}

func TestScanSplitAcrossTwoCallsMatchesOneCall(t *testing.T) {
	whole := "t0010011\rt0020022\r"
	oneShot, _ := Scan([]byte(whole))

	// Split mid-stream and feed the remainder prefixed with the first
	// call's tail, as the engine does.
	first, tail1 := Scan([]byte("t0010011\rt002"))
	second, _ := Scan(append(tail1, []byte("0022\r")...))

	if len(first)+len(second) != len(oneShot) {
		t.Fatalf("split scan produced %d+%d frames, want %d total", len(first), len(second), len(oneShot))
	}
	if first[0].ID != oneShot[0].ID {
		t.Fatalf("first split frame ID mismatch")
	}
	if second[0].ID != oneShot[1].ID {
		t.Fatalf("second split frame ID mismatch")
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	raw := []byte("t1A33ABCDEF\r")
	fr, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	encoded := Encode(fr.TypeChar, fr.ID, fr.DLC, fr.Data)
	if !bytes.Equal(encoded, raw) {
		t.Fatalf("Encode(Decode(x)) = %q, want %q", encoded, raw)
	}
}

func TestEncodeRightPadsClassicData(t *testing.T) {
	got := Encode('t', 0x001, 4, []byte{0xAB})
	want := []byte("t0014AB000000\r")
	if !bytes.Equal(got, want) {
		t.Fatalf("Encode = %q, want %q", got, want)
	}
}

func TestNibbleForLenClassicClamps(t *testing.T) {
	if got := NibbleForLen(3, false); got != 3 {
		t.Fatalf("NibbleForLen(3,false) = %d, want 3", got)
	}
	if got := NibbleForLen(20, false); got != 8 {
		t.Fatalf("NibbleForLen(20,false) = %d, want 8 (clamped)", got)
	}
}

func TestNibbleForLenFDBuckets(t *testing.T) {
	cases := []struct {
		n    int
		want uint8
	}{{0, 0}, {8, 8}, {9, 9}, {12, 9}, {13, 10}, {64, 15}}
	for _, c := range cases {
		if got := NibbleForLen(c.n, true); got != c.want {
			t.Fatalf("NibbleForLen(%d,true) = %d, want %d", c.n, got, c.want)
		}
	}
}

func TestDecodeRejectsTrailingBytes(t *testing.T) {
	if _, err := Decode([]byte("t0010011\rX")); err == nil {
		t.Fatalf("expected error for trailing bytes after frame")
	}
}

func TestDecodeRejectsMalformedHeader(t *testing.T) {
	if _, err := Decode([]byte("Z0010011\r")); err == nil {
		t.Fatalf("expected error for unknown type char")
	}
}
