// Package loglevel provides the process-wide atomic log-level gate in
// front of the structured logger, so hot call sites in the protocol
// engines can skip building a log line without taking a lock. Levels
// mirror the original implementation's APP_LOG_LEVEL: 0=off, 1=error,
// 2=warn, 3=info, 4=debug.
package loglevel

import "sync/atomic"

const (
	Off = iota
	Err
	Warn
	Info
	Debug
)

var current atomic.Uint32

func init() { current.Store(Info) }

// Set updates the global level (readable from any goroutine without a lock).
func Set(level uint32) { current.Store(level) }

// Get returns the current level.
func Get() uint32 { return current.Load() }

// Enabled reports whether a message at level should be logged.
func Enabled(level uint32) bool { return current.Load() >= level }
