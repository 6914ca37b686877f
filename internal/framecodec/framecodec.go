// Package framecodec implements the ASCII CAN/CAN-FD-over-serial frame
// grammar used by the POECanable(FD) protocol: a hand-written scanner that
// plays the role of the regex
//
//	([tTrRdDbB])([0-9A-F]{3,8})([0-9A-F])([0-9A-F]*)\r
//
// without a regex dependency, mirroring the preamble/length scanner in the
// teacher's serial codec: try to match at the front, consume only the
// matched span, and hand back everything else untouched.
package framecodec

import (
	"fmt"

	"github.com/kosmoslabs/uartbridge/internal/can"
)

// Frame is one decoded ASCII CAN frame, still carrying the bit-field
// decomposition of extended identifiers so the POECanable engine doesn't
// need to re-derive it.
type Frame struct {
	TypeChar   byte
	IsExtended bool
	IsRemote   bool
	IsFD       bool
	ID         uint32 // flags-stripped, 11 or 29 bits
	DLC        uint8  // raw wire nibble, 0-15
	Data       []byte // parsed payload, FD right-trimmed of trailing zeros
	FullId     can.FullId
}

// MainID is the reassembly key for this frame: the combined header/argument
// code for extended frames, or the raw ID for standard frames (which are
// always single-frame messages).
func (f Frame) MainID() uint16 {
	if f.IsExtended {
		return f.FullId.MainID()
	}
	return uint16(f.ID)
}

func isTypeChar(b byte) bool {
	switch b {
	case 't', 'T', 'r', 'R', 'd', 'D', 'b', 'B':
		return true
	}
	return false
}

func isExtendedType(b byte) bool {
	switch b {
	case 'T', 'R', 'B', 'D':
		return true
	}
	return false
}

func isRemoteType(b byte) bool {
	return b == 'r' || b == 'R'
}

func isFDType(b byte) bool {
	switch b {
	case 'b', 'B', 'd', 'D':
		return true
	}
	return false
}

func isHex(b byte) bool {
	return (b >= '0' && b <= '9') || (b >= 'A' && b <= 'F')
}

func hexVal(b byte) uint32 {
	if b >= '0' && b <= '9' {
		return uint32(b - '0')
	}
	return uint32(b-'A') + 10
}

// fdDataLen maps an FD DLC nibble to its padded byte length. Values 0-8 pass
// through unchanged.
func fdDataLen(nibble uint32) int {
	switch nibble {
	case 9:
		return 12
	case 10:
		return 16
	case 11:
		return 20
	case 12:
		return 24
	case 13:
		return 32
	case 14:
		return 48
	case 15:
		return 64
	default:
		return int(nibble)
	}
}

// NibbleForLen returns the smallest DLC nibble whose padded byte length (per
// the FD table, or direct for classic) is >= n, for building an outbound
// frame around a chunk of n payload bytes. Encode then right-pads the chunk
// up to that bucket's length.
func NibbleForLen(n int, isFD bool) uint8 {
	if !isFD {
		if n > 8 {
			n = 8
		}
		return uint8(n)
	}
	buckets := []struct {
		n      int
		nibble uint8
	}{{0, 0}, {1, 1}, {2, 2}, {3, 3}, {4, 4}, {5, 5}, {6, 6}, {7, 7}, {8, 8},
		{12, 9}, {16, 10}, {20, 11}, {24, 12}, {32, 13}, {48, 14}, {64, 15}}
	for _, b := range buckets {
		if n <= b.n {
			return b.nibble
		}
	}
	return 15
}

func dataLenFor(dlc uint32, isFD bool) int {
	if isFD {
		return fdDataLen(dlc)
	}
	if dlc > 8 {
		return 8
	}
	return int(dlc)
}

// matchAt tries to parse one frame starting exactly at data[i]. It returns
// the parsed frame and the number of bytes consumed (including the trailing
// CR) on success. ok=false,incomplete=false means "definitely not a frame
// here, advance by one byte". incomplete=true means "need more bytes before
// this position can be resolved; stop scanning".
func matchAt(data []byte, i int) (fr Frame, consumed int, ok bool, incomplete bool) {
	if i >= len(data) {
		return Frame{}, 0, false, true
	}
	typeChar := data[i]
	if !isTypeChar(typeChar) {
		return Frame{}, 0, false, false
	}
	idLen := 3
	if isExtendedType(typeChar) {
		idLen = 8
	}
	// type + id + dlc
	if i+1+idLen+1 > len(data) {
		return Frame{}, 0, false, true
	}
	var id uint32
	for k := 0; k < idLen; k++ {
		c := data[i+1+k]
		if !isHex(c) {
			return Frame{}, 0, false, false
		}
		id = id<<4 | hexVal(c)
	}
	dlcChar := data[i+1+idLen]
	if !isHex(dlcChar) {
		return Frame{}, 0, false, false
	}
	dlc := hexVal(dlcChar)

	isRemote := isRemoteType(typeChar)
	isFD := isFDType(typeChar)
	isExt := isExtendedType(typeChar)

	wantBytes := 0
	if !isRemote {
		wantBytes = dataLenFor(dlc, isFD)
	}

	pos := i + 1 + idLen + 1
	hexStart := pos
	for pos < len(data) && isHex(data[pos]) {
		pos++
	}
	if pos >= len(data) {
		return Frame{}, 0, false, true // could still be mid-hex-run or mid-CR-wait
	}
	if data[pos] != '\r' {
		return Frame{}, 0, false, false
	}
	hexDigits := data[hexStart:pos]
	// Parse hex pairs up to wantBytes, skipping malformed pairs (advance by 2).
	var payload []byte
	for k := 0; k+1 < len(hexDigits) && len(payload) < wantBytes; k += 2 {
		hi, lo := hexDigits[k], hexDigits[k+1]
		if !isHex(hi) || !isHex(lo) {
			continue
		}
		payload = append(payload, byte(hexVal(hi)<<4|hexVal(lo)))
	}
	if isFD {
		// Right-trim trailing zero bytes.
		end := len(payload)
		for end > 0 && payload[end-1] == 0 {
			end--
		}
		payload = payload[:end]
	}

	full := can.FullId{}
	if isExt {
		full = can.DecomposeFullId(id)
	}

	fr = Frame{
		TypeChar:   typeChar,
		IsExtended: isExt,
		IsRemote:   isRemote,
		IsFD:       isFD,
		ID:         id,
		DLC:        uint8(dlc),
		Data:       payload,
		FullId:     full,
	}
	return fr, pos + 1 - i, true, false
}

// Scan finds every non-overlapping frame match in data, in order. It
// returns the matched frames and a tail consisting of every byte that was
// not part of a match (gaps before/between/after matches), concatenated in
// original order, so a caller can re-present it alongside newly arrived
// bytes on the next call.
func Scan(data []byte) (frames []Frame, tail []byte) {
	i := 0
	emitFrom := 0
	for i < len(data) {
		fr, n, ok, incomplete := matchAt(data, i)
		if incomplete {
			break
		}
		if !ok {
			i++
			continue
		}
		tail = append(tail, data[emitFrom:i]...)
		frames = append(frames, fr)
		i += n
		emitFrom = i
	}
	tail = append(tail, data[emitFrom:]...)
	return frames, tail
}

// Decode parses exactly one frame, matched at the very start of raw and
// requiring the whole slice to be consumed. Used for round-trip tests and
// callers that already isolated a single wire frame.
func Decode(raw []byte) (Frame, error) {
	fr, n, ok, incomplete := matchAt(raw, 0)
	if incomplete || !ok {
		return Frame{}, fmt.Errorf("framecodec: not a well-formed frame")
	}
	if n != len(raw) {
		return Frame{}, fmt.Errorf("framecodec: trailing bytes after frame")
	}
	return fr, nil
}

// Encode formats one ASCII CAN frame. dlc is the raw wire nibble (0-15);
// data is right-padded with 0x00 up to the padded length implied by dlc
// (classic clamps to 8, FD maps per the DLC table). Remote frames never
// carry data.
func Encode(typeChar byte, id uint32, dlc uint8, data []byte) []byte {
	isExt := isExtendedType(typeChar)
	isRemote := isRemoteType(typeChar)
	isFD := isFDType(typeChar)

	idLen := 3
	if isExt {
		idLen = 8
	}
	idMasked := id
	if isExt {
		idMasked &= can.EFFMask
	} else {
		idMasked &= can.SFFMask
	}

	out := make([]byte, 0, 1+idLen+1+2*64+1)
	out = append(out, typeChar)
	out = append(out, []byte(fmt.Sprintf("%0*X", idLen, idMasked))...)
	out = append(out, []byte(fmt.Sprintf("%X", dlc&0xF))...)

	if !isRemote {
		padded := dataLenFor(uint32(dlc&0xF), isFD)
		full := make([]byte, 0, padded)
		full = append(full, data...)
		if len(full) > padded {
			full = full[:padded]
		}
		for len(full) < padded {
			full = append(full, 0x00)
		}
		out = append(out, []byte(fmt.Sprintf("%X", full))...)
	}
	out = append(out, '\r')
	return out
}
