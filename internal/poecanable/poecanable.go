// Package poecanable implements the POECanable(FD) protocol: reassembly of
// multi-frame logical messages out of ASCII CAN frames, the base64 payload
// pass, and outbound command fragmentation.
//
// The partial-packet store's sharding (port -> main_id -> partial) and its
// single-mutex snapshot discipline are grounded on the teacher's
// internal/hub.Hub client map: lock, mutate, unlock, never hold the lock
// across an emit.
package poecanable

import (
	"encoding/base64"
	"encoding/json"
	"regexp"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/kosmoslabs/uartbridge/internal/can"
	"github.com/kosmoslabs/uartbridge/internal/framecodec"
)

// PartialExpiry is how long a reassembly slot may sit idle before it is
// evicted.
const PartialExpiry = 2000 * time.Millisecond

// MaxPartialBytes is the overflow limit; a partial whose accumulated size
// exceeds this is dropped entirely.
const MaxPartialBytes = 1024

// MessageData is one fully or partially reassembled logical CAN message.
type MessageData struct {
	TimestampMS int64
	FullId      can.FullId
	MainID      uint16
	CanData     []byte
	JSON        string
	IsRemote    bool
	IsComplete  bool
}

type partialEntry struct {
	timestamp time.Time
	data      []byte
}

// Engine holds per-port raw byte buffers and the shared (port, main_id)
// reassembly store.
type Engine struct {
	bufMu   sync.Mutex
	buffers map[string][]byte

	partialMu sync.Mutex
	partials  map[string]map[uint16]partialEntry
}

// NewEngine returns an empty engine.
func NewEngine() *Engine {
	return &Engine{
		buffers:  make(map[string][]byte),
		partials: make(map[string]map[uint16]partialEntry),
	}
}

func (e *Engine) evictLocked(port string, now time.Time) {
	m := e.partials[port]
	for id, p := range m {
		if now.Sub(p.timestamp) > PartialExpiry {
			delete(m, id)
		}
	}
}

var base64Re = regexp.MustCompile(`^([A-Za-z0-9+/]{4})*(([A-Za-z0-9+/]{2}==)|([A-Za-z0-9+/]{3}=))?$`)

func maybeBase64Decode(data []byte) []byte {
	if len(data) == 0 {
		return data
	}
	s := string(data)
	if !base64Re.MatchString(s) {
		return data
	}
	decoded, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return data
	}
	return decoded
}

// Process consumes data for port, emitting the batch of MessageData decoded
// from this call (if any) via emit. Unparsed/gap bytes are retained as the
// port's pending buffer for the next call.
func (e *Engine) Process(port string, data []byte, now time.Time, emit func([]MessageData)) {
	e.partialMu.Lock()
	e.evictLocked(port, now)
	e.partialMu.Unlock()

	e.bufMu.Lock()
	buf := append(append([]byte(nil), e.buffers[port]...), data...)
	e.bufMu.Unlock()

	frames, tail := framecodec.Scan(buf)

	var messages []MessageData
	if len(frames) > 0 {
		e.partialMu.Lock()
		if e.partials[port] == nil {
			e.partials[port] = make(map[uint16]partialEntry)
		}
		slots := e.partials[port]
		for _, fr := range frames {
			messages = append(messages, e.reassemble(slots, fr, now)...)
		}
		e.partialMu.Unlock()
	}

	e.bufMu.Lock()
	e.buffers[port] = tail
	e.bufMu.Unlock()

	for i := range messages {
		messages[i].CanData = maybeBase64Decode(messages[i].CanData)
	}
	if len(messages) > 0 {
		emit(messages)
	}
}

// reassemble applies one matched frame against the (already locked) partial
// slot map for a single port, returning zero or one completed message.
func (e *Engine) reassemble(slots map[uint16]partialEntry, fr framecodec.Frame, now time.Time) []MessageData {
	mainID := fr.MainID()

	if fr.IsRemote {
		return []MessageData{{
			TimestampMS: now.UnixMilli(),
			FullId:      fr.FullId,
			MainID:      mainID,
			CanData:     []byte{},
			JSON:        "{}",
			IsRemote:    true,
			IsComplete:  true,
		}}
	}

	// is_full_packet is only defined on extended frames; a standard-ID data
	// frame is a complete single-frame message and never touches the partial
	// store (see DESIGN.md).
	if !fr.IsExtended || fr.FullId.IsFullPacket {
		var existing partialEntry
		had := false
		if fr.IsExtended {
			existing, had = slots[mainID]
			delete(slots, mainID)
		}
		concatenated := append(append([]byte(nil), existing.data...), fr.Data...)
		ts := now
		if had {
			ts = existing.timestamp
		}

		jsonText := "{}"
		attempt := len(concatenated) > 0
		if fr.IsFD {
			attempt = attempt && concatenated[0] == '{'
		}
		if attempt && utf8.Valid(concatenated) && json.Valid(concatenated) {
			jsonText = string(concatenated)
		}

		return []MessageData{{
			TimestampMS: ts.UnixMilli(),
			FullId:      fr.FullId,
			MainID:      mainID,
			CanData:     concatenated,
			JSON:        jsonText,
			IsRemote:    false,
			IsComplete:  true,
		}}
	}

	existing, had := slots[mainID]
	merged := append(append([]byte(nil), existing.data...), fr.Data...)
	if len(merged) > MaxPartialBytes {
		delete(slots, mainID)
		return nil
	}
	ts := now
	if had {
		ts = existing.timestamp
	}
	slots[mainID] = partialEntry{timestamp: ts, data: merged}
	return nil
}
