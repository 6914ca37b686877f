package can

import "testing"

func TestDecomposeComposeFullIdRoundTrip(t *testing.T) {
	cases := []FullId{
		{IsFullPacket: true, HeaderCode: 0x3, ArgumentCode: 0x3FF, TargetID: 0xFF, ReturnID: 0xFF},
		{IsFullPacket: false, HeaderCode: 0x0, ArgumentCode: 0x000, TargetID: 0x00, ReturnID: 0x00},
		{IsFullPacket: true, HeaderCode: 0x2, ArgumentCode: 0x155, TargetID: 0x0A, ReturnID: 0x0B},
	}
	for _, want := range cases {
		id := ComposeFullId(want)
		got := DecomposeFullId(id)
		if got != want {
			t.Fatalf("round trip mismatch: want %+v got %+v (id=%#x)", want, got, id)
		}
	}
}

func TestFullIdMainID(t *testing.T) {
	f := FullId{HeaderCode: 0x2, ArgumentCode: 0x0AB}
	want := uint16(0x2)<<10 | 0x0AB
	if got := f.MainID(); got != want {
		t.Fatalf("MainID() = %#x, want %#x", got, want)
	}
}
