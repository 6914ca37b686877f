// Package simpleserial implements the line-oriented SimpleSerial protocol:
// split inbound bytes on CR/LF, time-flush a stuck partial line, and append
// a fixed terminator on send.
package simpleserial

import (
	"bytes"
	"time"
)

// FlushTimeout is how long an unterminated line may sit buffered before it
// is emitted anyway.
const FlushTimeout = 5 * time.Second

// Buffer accumulates bytes for one port between complete lines.
type Buffer struct {
	pending    []byte
	flushStart time.Time
}

// NewBuffer returns an empty accumulator.
func NewBuffer() *Buffer { return &Buffer{} }

// Process splits data on '\n' or '\r', emitting one line per terminated
// chunk via emit, and returns any unterminated remainder retained inside
// the buffer. If the buffer has held unterminated content for longer than
// FlushTimeout, it is emitted regardless of termination.
func (b *Buffer) Process(data []byte, now time.Time, emit func(line string)) {
	if len(b.pending) == 0 && len(data) > 0 {
		b.flushStart = now
	}
	start := 0
	for i := 0; i < len(data); i++ {
		if data[i] == '\n' || data[i] == '\r' {
			chunk := data[start : i+1]
			b.pending = append(b.pending, chunk...)
			line := bytes.TrimRight(b.pending, "\r\n")
			emit(string(line))
			b.pending = b.pending[:0]
			start = i + 1
			b.flushStart = now
		}
	}
	if start < len(data) {
		b.pending = append(b.pending, data[start:]...)
	}
	if len(b.pending) > 0 && now.Sub(b.flushStart) > FlushTimeout {
		emit(string(b.pending))
		b.pending = b.pending[:0]
	}
}

// Command is one outbound SimpleSerial send request.
type Command struct {
	Data       string
	EndPackage string
}

// Encode appends the terminator to the payload, unmodified otherwise.
func Encode(c Command) []byte {
	return []byte(c.Data + c.EndPackage)
}
