package poecanable

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/kosmoslabs/uartbridge/internal/can"
	"github.com/kosmoslabs/uartbridge/internal/framecodec"
	"github.com/kosmoslabs/uartbridge/internal/protoerr"
)

// Command is one outbound POECanable(FD) send request, as parsed from the
// dispatcher's command JSON.
type Command struct {
	Header          uint32
	Argument        uint32
	TargetID        uint32
	ReturnID        uint32
	ConvertToBase64 bool
	Data            string
	// IsFD selects CAN-FD data framing (64-byte fragmentation chunks, 'B'
	// type char) vs classic (8-byte chunks, 'T'), i.e. whether the
	// connection's protocol tag is "POECanableFD" rather than "POECanable".
	// The remote frame sent for blank data is 'R' either way.
	IsFD bool
}

// BuildResult is the wire output of one Command: the ordered frames to
// write, and any base64 UI-echo notifications to publish alongside them.
type BuildResult struct {
	Frames       [][]byte
	Base64Echoes []string
}

// Build validates and serializes cmd into one or more ASCII CAN frames,
// fragmenting the payload when it doesn't fit in a single frame.
func Build(cmd Command) (BuildResult, error) {
	if cmd.Header > 0x3 {
		return BuildResult{}, fmt.Errorf("%w: header %#x exceeds 2-bit field", protoerr.Config, cmd.Header)
	}
	if cmd.Argument > 0x3FF {
		return BuildResult{}, fmt.Errorf("%w: argument %#x exceeds 10-bit field", protoerr.Config, cmd.Argument)
	}
	if cmd.TargetID > 0xFF {
		return BuildResult{}, fmt.Errorf("%w: target_id %#x exceeds 8-bit field", protoerr.Config, cmd.TargetID)
	}
	if cmd.ReturnID > 0xFF {
		return BuildResult{}, fmt.Errorf("%w: return_id %#x exceeds 8-bit field", protoerr.Config, cmd.ReturnID)
	}

	base := can.ComposeFullId(can.FullId{
		HeaderCode:   uint8(cmd.Header),
		ArgumentCode: uint16(cmd.Argument),
		TargetID:     uint8(cmd.TargetID),
		ReturnID:     uint8(cmd.ReturnID),
	}) & can.EFFMask

	if strings.TrimSpace(cmd.Data) == "" {
		fr := framecodec.Encode('R', base|(1<<28), 0, nil)
		return BuildResult{Frames: [][]byte{fr}}, nil
	}

	payload, usedBase64, b64str := buildPayload(cmd.Data, cmd.ConvertToBase64)

	chunkSize := 8
	dataType := byte('T')
	if cmd.IsFD {
		chunkSize = 64
		dataType = 'B'
	}

	var out BuildResult
	total := len(payload)
	for start := 0; start < total; start += chunkSize {
		end := start + chunkSize
		if end > total {
			end = total
		}
		chunk := payload[start:end]
		isFinal := end >= total
		id := base
		if isFinal {
			id |= 1 << 28
		}
		nibble := framecodec.NibbleForLen(len(chunk), cmd.IsFD)
		out.Frames = append(out.Frames, framecodec.Encode(dataType, id, nibble, chunk))
		if usedBase64 && len(chunk) > 0 {
			out.Base64Echoes = append(out.Base64Echoes, b64str)
		}
	}
	return out, nil
}

// buildPayload implements the documented (not the original buggy) outbound
// payload construction: on the base64 path, the raw bytes are always
// base64-encoded, never transmitted as unencoded UTF-8 (see DESIGN.md,
// open question 2).
func buildPayload(data string, convertToBase64 bool) (payload []byte, usedBase64 bool, b64 string) {
	if !convertToBase64 {
		return []byte(data), false, ""
	}
	tokens := strings.Fields(data)
	hexBytes := make([]byte, 0, len(data)/2)
	allHex := len(tokens) > 0
	for _, tok := range tokens {
		b, err := hex.DecodeString(tok)
		if err != nil {
			allHex = false
			break
		}
		hexBytes = append(hexBytes, b...)
	}
	var raw []byte
	if allHex && len(hexBytes) > 0 {
		raw = hexBytes
	} else {
		raw = []byte(data)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)
	return append([]byte(encoded), 0x00), true, encoded
}
